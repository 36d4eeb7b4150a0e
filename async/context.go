package async

import (
	"sync/atomic"

	"github.com/linchenxuan/uvbus/loop"
)

// Context groups a loop with cancellation state and opaque user data. A
// scheduler and a client share their context's cancellation flag: after
// CancelAll, new scheduler submissions fail and pending client callbacks
// skip user code.
type Context struct {
	lp        *loop.Loop
	ownsLoop  bool
	cancelled atomic.Bool
	userData  interface{}
}

// NewContext builds a context over lp. A nil lp creates a private loop
// that Cleanup will stop.
func NewContext(lp *loop.Loop) *Context {
	owns := false
	if lp == nil {
		lp = loop.New()
		owns = true
	}
	return &Context{lp: lp, ownsLoop: owns}
}

// Loop returns the context's event loop.
func (c *Context) Loop() *loop.Loop { return c.lp }

// SetUserData attaches opaque data to the context.
func (c *Context) SetUserData(v interface{}) { c.userData = v }

// UserData returns the attached data.
func (c *Context) UserData() interface{} { return c.userData }

// CancelAll marks the context cancelled. The flag is observed by
// schedulers at submission and by response dispatch before invoking user
// callbacks; work already in flight is not retracted.
func (c *Context) CancelAll() {
	c.cancelled.Store(true)
}

// Cancelled reports whether CancelAll has been called.
func (c *Context) Cancelled() bool {
	return c.cancelled.Load()
}

// Cleanup stops a privately owned loop. Borrowed loops are untouched.
func (c *Context) Cleanup() {
	if c.ownsLoop {
		c.lp.Stop()
	}
}
