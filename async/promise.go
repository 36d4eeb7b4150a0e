// Package async provides loop-bound asynchronous primitives: promises,
// combinators, semaphores, wait-groups, barriers and a concurrency-capped
// task scheduler. Every primitive belongs to one event loop and must be
// touched only from that loop's goroutine; the loop's Post is the bridge
// from elsewhere.
package async

import (
	"github.com/linchenxuan/uvbus/codes"
	"github.com/linchenxuan/uvbus/loop"
)

// State is the settlement state of a Promise.
type State int

const (
	Pending State = iota
	Fulfilled
	Rejected
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Fulfilled:
		return "fulfilled"
	case Rejected:
		return "rejected"
	}
	return "unknown"
}

// Promise is a single-assignment result cell. It settles at most once,
// pending to fulfilled or pending to rejected; a second settlement attempt
// is a no-op returning ErrInvalidState. Completion callbacks are always
// delivered through the loop, never inline from Resolve/Reject, so a
// resolver running inside a callback cannot re-enter its caller.
type Promise struct {
	lp *loop.Loop

	state   State
	result  []byte
	errCode int32
	errMsg  string

	observers []func(*Promise)
	cb        func(*Promise)
	scheduled bool
	delivered bool
}

// NewPromise creates a pending promise bound to lp.
func NewPromise(lp *loop.Loop) *Promise {
	return &Promise{lp: lp}
}

// Loop returns the loop the promise delivers on.
func (p *Promise) Loop() *loop.Loop { return p.lp }

// State returns the current settlement state.
func (p *Promise) State() State { return p.state }

// IsPending reports whether the promise has not settled.
func (p *Promise) IsPending() bool { return p.state == Pending }

// IsFulfilled reports whether the promise settled successfully.
func (p *Promise) IsFulfilled() bool { return p.state == Fulfilled }

// IsRejected reports whether the promise settled with an error.
func (p *Promise) IsRejected() bool { return p.state == Rejected }

// Result returns the fulfillment bytes; nil unless fulfilled.
func (p *Promise) Result() []byte {
	if p.state != Fulfilled {
		return nil
	}
	return p.result
}

// ErrCode returns the rejection code; 0 unless rejected.
func (p *Promise) ErrCode() int32 {
	if p.state != Rejected {
		return codes.OK
	}
	return p.errCode
}

// ErrMessage returns the rejection message; empty unless rejected.
func (p *Promise) ErrMessage() string {
	if p.state != Rejected {
		return ""
	}
	return p.errMsg
}

// Err returns the rejection as an error, or nil when not rejected.
func (p *Promise) Err() error {
	if p.state != Rejected {
		return nil
	}
	return codes.New(p.errCode, p.errMsg)
}

// Resolve settles the promise with a result. Only legal while pending.
func (p *Promise) Resolve(result []byte) error {
	if p.state != Pending {
		return codes.Errorf(codes.ErrInvalidState, "resolve on %s promise", p.state)
	}
	p.state = Fulfilled
	p.result = result
	p.scheduleDelivery()
	return nil
}

// Reject settles the promise with an error code and message. Only legal
// while pending.
func (p *Promise) Reject(code int32, msg string) error {
	if p.state != Pending {
		return codes.Errorf(codes.ErrInvalidState, "reject on %s promise", p.state)
	}
	if msg == "" {
		msg = codes.Strerror(code)
	}
	p.state = Rejected
	p.errCode = code
	p.errMsg = msg
	p.scheduleDelivery()
	return nil
}

// SetCallback registers the completion callback. On an already-settled
// promise delivery is scheduled immediately; it still arrives through the
// loop, never inline.
func (p *Promise) SetCallback(cb func(*Promise)) {
	p.cb = cb
	if p.state != Pending {
		p.scheduleDelivery()
	}
}

// addObserver registers an internal completion hook that fires before the
// public callback. Combinators and the scheduler observe settlement this
// way without clobbering the user's callback slot.
func (p *Promise) addObserver(fn func(*Promise)) {
	p.observers = append(p.observers, fn)
	if p.state != Pending {
		p.scheduleDelivery()
	}
}

func (p *Promise) scheduleDelivery() {
	if p.scheduled {
		return
	}
	p.scheduled = true
	p.lp.Post(p.deliver)
}

// deliver runs on the loop. Callback slots are cleared before invocation,
// so each registered callback fires exactly once even when delivery is
// scheduled again for a late-set callback.
func (p *Promise) deliver() {
	p.delivered = true
	p.scheduled = false
	obs := p.observers
	p.observers = nil
	for _, fn := range obs {
		fn(p)
	}
	if p.cb != nil {
		cb := p.cb
		p.cb = nil
		cb(p)
	}
}

// Await drives the loop until the promise settles and its callbacks have
// been delivered, then returns the rejection (if any). It must only be
// used from outside the loop's callback stack: calling it from within a
// loop callback would recurse into the loop.
func (p *Promise) Await() error {
	p.lp.RunUntil(func() bool {
		return p.state != Pending && (p.delivered || !p.scheduled)
	})
	return p.Err()
}

// Cleanup detaches callbacks and drops the result. The promise must not
// be reused afterwards.
func (p *Promise) Cleanup() {
	p.cb = nil
	p.observers = nil
	p.result = nil
}
