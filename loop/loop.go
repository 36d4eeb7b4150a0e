// Package loop provides a single-threaded event loop. All framework
// callbacks (receive, connect, error, promise settlement, timers) run on
// the loop goroutine, so user code never needs its own locking.
package loop

import (
	"container/heap"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"github.com/linchenxuan/uvbus/log"
	"github.com/linchenxuan/uvbus/metrics"
)

// Loop executes posted callbacks and expired timers on a single goroutine.
// Post is the only safe entry point from other goroutines; everything else
// must be called from the loop goroutine or before Run starts.
type Loop struct {
	mu     sync.Mutex
	runq   *queue.Queue
	timers timerHeap
	seq    uint64

	wake    chan struct{}
	stopped atomic.Bool
}

// New creates a stopped loop ready for Post and Run.
func New() *Loop {
	return &Loop{
		runq: queue.New(),
		wake: make(chan struct{}, 1),
	}
}

// Post schedules fn to run on the loop goroutine. Safe to call from any
// goroutine. Posting to a stopped loop is a no-op.
func (l *Loop) Post(fn func()) {
	if fn == nil || l.stopped.Load() {
		return
	}
	l.mu.Lock()
	l.runq.Add(fn)
	l.mu.Unlock()
	l.notify()
}

// After schedules fn to run on the loop goroutine after delay. The returned
// Timer can cancel the callback before it fires. Safe to call from any
// goroutine.
func (l *Loop) After(delay time.Duration, fn func()) *Timer {
	if fn == nil {
		return nil
	}
	t := &Timer{
		when: time.Now().Add(delay),
		fn:   fn,
		loop: l,
	}
	l.mu.Lock()
	l.seq++
	t.seq = l.seq
	heap.Push(&l.timers, t)
	l.mu.Unlock()
	l.notify()
	return t
}

// Run processes callbacks and timers until Stop is called. It returns once
// the stop flag is observed and the pending run queue has drained.
func (l *Loop) Run() {
	l.RunUntil(nil)
}

// RunUntil processes callbacks and timers until pred returns true or Stop
// is called. pred is evaluated on the loop goroutine between callbacks.
func (l *Loop) RunUntil(pred func() bool) {
	for {
		if pred != nil && pred() {
			return
		}
		if l.stopped.Load() && !l.pending() {
			return
		}
		l.RunOnce(100 * time.Millisecond)
	}
}

// RunOnce drains the ready work once: expired timers first, then every
// callback currently queued. If nothing is ready it blocks up to maxWait
// for new work. Returns the number of callbacks executed.
func (l *Loop) RunOnce(maxWait time.Duration) int {
	ran := l.drain()
	if ran > 0 {
		return ran
	}

	wait := maxWait
	if d, ok := l.nextTimer(); ok && d < wait {
		wait = d
	}
	if wait <= 0 {
		return l.drain()
	}

	idle := time.NewTimer(wait)
	defer idle.Stop()
	select {
	case <-l.wake:
	case <-idle.C:
	}
	return l.drain()
}

// Stop flags the loop to exit. Callbacks already queued still run; later
// Posts are dropped. Safe to call from any goroutine.
func (l *Loop) Stop() {
	if l.stopped.Swap(true) {
		return
	}
	l.notify()
}

// Stopped reports whether Stop has been called.
func (l *Loop) Stopped() bool {
	return l.stopped.Load()
}

func (l *Loop) drain() int {
	ran := 0
	now := time.Now()
	for {
		fn := l.next(now)
		if fn == nil {
			break
		}
		l.invoke(fn)
		ran++
	}
	return ran
}

// next pops one ready unit of work: expired timers win over queued
// callbacks so deadline work is never starved by a busy queue.
func (l *Loop) next(now time.Time) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for l.timers.Len() > 0 {
		t := l.timers[0]
		if t.when.After(now) {
			break
		}
		heap.Pop(&l.timers)
		if t.cancelled {
			continue
		}
		t.fired = true
		return t.fn
	}
	if l.runq.Length() > 0 {
		return l.runq.Remove().(func())
	}
	return nil
}

func (l *Loop) pending() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.runq.Length() > 0
}

func (l *Loop) nextTimer() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.timers.Len() == 0 {
		return 0, false
	}
	return time.Until(l.timers[0].when), true
}

func (l *Loop) notify() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			metrics.IncrCounterWithGroup("callback_panics", metrics.GroupAsync, 1)
			log.Error().Str("panic", panicString(r)).Msg("loop callback panic")
		}
	}()
	fn()
}
