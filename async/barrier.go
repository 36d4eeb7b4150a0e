package async

import (
	"github.com/linchenxuan/uvbus/codes"
)

// Barrier fires a completion callback once a fixed number of parties have
// arrived. Each arrival may flag an error; the callback receives the error
// count so the completion site can distinguish clean and degraded runs.
type Barrier struct {
	total     int
	remaining int
	errCount  int
	fired     bool
	onDone    func(errCount int)
}

// NewBarrier creates a barrier expecting total arrivals.
func NewBarrier(total int, onDone func(errCount int)) (*Barrier, error) {
	if total <= 0 {
		return nil, codes.Errorf(codes.ErrInvalidParam, "barrier total %d", total)
	}
	return &Barrier{total: total, remaining: total, onDone: onDone}, nil
}

// Wait records one arrival, flagged as failed or not. The completion
// callback fires exactly once, on the arrival that empties the barrier.
// Arrivals beyond the total return ErrInvalidState.
func (b *Barrier) Wait(failed bool) error {
	if b.remaining == 0 {
		return codes.New(codes.ErrInvalidState, "barrier already complete")
	}
	if failed {
		b.errCount++
	}
	b.remaining--
	if b.remaining == 0 && !b.fired {
		b.fired = true
		if b.onDone != nil {
			b.onDone(b.errCount)
		}
	}
	return nil
}

// Remaining returns the number of arrivals still outstanding.
func (b *Barrier) Remaining() int { return b.remaining }

// ErrCount returns the number of failed arrivals so far.
func (b *Barrier) ErrCount() int { return b.errCount }

// Reset re-arms the barrier for another cycle of total arrivals.
func (b *Barrier) Reset() {
	b.remaining = b.total
	b.errCount = 0
	b.fired = false
}
