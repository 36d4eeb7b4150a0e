package async

import (
	"github.com/eapache/queue"
	"github.com/linchenxuan/uvbus/codes"
	"github.com/linchenxuan/uvbus/loop"
)

// Semaphore hands out permits to promises. When no permit is free the
// acquiring promise joins a FIFO queue and resolves when a release reaches
// it. Like every async primitive it is loop-bound and unsynchronized.
type Semaphore struct {
	lp      *loop.Loop
	permits int
	waiters *queue.Queue
}

// NewSemaphore creates a semaphore with the given number of free permits.
func NewSemaphore(lp *loop.Loop, permits int) (*Semaphore, error) {
	if permits < 0 {
		return nil, codes.Errorf(codes.ErrInvalidParam, "negative permit count %d", permits)
	}
	return &Semaphore{
		lp:      lp,
		permits: permits,
		waiters: queue.New(),
	}, nil
}

// AcquireAsync claims a permit for p. A free permit resolves p inline
// (delivery still deferred through the loop); otherwise p waits its turn.
func (s *Semaphore) AcquireAsync(p *Promise) error {
	if p == nil {
		return codes.New(codes.ErrInvalidParam, "nil promise")
	}
	if s.permits > 0 {
		s.permits--
		return p.Resolve(nil)
	}
	s.waiters.Add(p)
	return nil
}

// TryAcquire claims a permit without waiting. Returns false when none is
// free.
func (s *Semaphore) TryAcquire() bool {
	if s.permits <= 0 {
		return false
	}
	s.permits--
	return true
}

// Release returns a permit. The longest-waiting promise, if any, receives
// it immediately; otherwise the free count grows.
func (s *Semaphore) Release() {
	for s.waiters.Length() > 0 {
		p := s.waiters.Remove().(*Promise)
		if !p.IsPending() {
			// waiter was cancelled while queued; skip it
			continue
		}
		_ = p.Resolve(nil)
		return
	}
	s.permits++
}

// Resize grows or shrinks the permit pool by delta. Growth wakes waiters;
// shrink only affects future acquisitions and may drive the free count
// negative until enough permits are released.
func (s *Semaphore) Resize(delta int) {
	for delta > 0 {
		s.Release()
		delta--
	}
	s.permits += delta
}

// Available returns the number of free permits.
func (s *Semaphore) Available() int {
	if s.permits < 0 {
		return 0
	}
	return s.permits
}

// WaitingCount returns the number of queued waiters.
func (s *Semaphore) WaitingCount() int {
	return s.waiters.Length()
}

// Cleanup rejects every queued waiter with ErrCancelled and empties the
// queue.
func (s *Semaphore) Cleanup() {
	for s.waiters.Length() > 0 {
		p := s.waiters.Remove().(*Promise)
		if p.IsPending() {
			_ = p.Reject(codes.ErrCancelled, "semaphore destroyed")
		}
	}
}
