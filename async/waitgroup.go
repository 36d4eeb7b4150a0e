package async

import (
	"sync/atomic"

	"github.com/linchenxuan/uvbus/codes"
	"github.com/linchenxuan/uvbus/loop"
)

// WaitGroup counts outstanding work and notifies registered promises when
// the count returns to zero. The counter is atomic so producers on other
// goroutines may Add/Done; promise notification still flows through the
// loop.
type WaitGroup struct {
	lp    *loop.Loop
	count atomic.Int64

	// loop-owned
	waiting []*Promise
}

// NewWaitGroup creates a wait-group with a zero count.
func NewWaitGroup(lp *loop.Loop) *WaitGroup {
	return &WaitGroup{lp: lp}
}

// Add increases the count by delta. A negative delta that would drive the
// count below zero is an error.
func (w *WaitGroup) Add(delta int) error {
	n := w.count.Add(int64(delta))
	if n < 0 {
		w.count.Add(int64(-delta))
		return codes.Errorf(codes.ErrInvalidParam, "wait-group count would go negative")
	}
	if n == 0 && delta != 0 {
		w.notify()
	}
	return nil
}

// Done decrements the count by one; the zero transition fires the
// registered promises.
func (w *WaitGroup) Done() error {
	return w.Add(-1)
}

// Count returns the current count.
func (w *WaitGroup) Count() int64 {
	return w.count.Load()
}

// GetPromise registers p to resolve at the next zero transition. A
// wait-group already at zero resolves p immediately.
func (w *WaitGroup) GetPromise(p *Promise) error {
	if p == nil {
		return codes.New(codes.ErrInvalidParam, "nil promise")
	}
	if w.count.Load() == 0 {
		return p.Resolve(nil)
	}
	w.waiting = append(w.waiting, p)
	return nil
}

func (w *WaitGroup) notify() {
	w.lp.Post(func() {
		if w.count.Load() != 0 {
			// re-armed before the notification ran
			return
		}
		ps := w.waiting
		w.waiting = nil
		for _, p := range ps {
			if p.IsPending() {
				_ = p.Resolve(nil)
			}
		}
	})
}
