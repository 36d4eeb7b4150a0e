// Package transport provides interchangeable byte transports (tcp, udp,
// ipc, inproc) behind a uniform interface. All transports speak
// length-prefixed frames and deliver events on an event loop, so a bus or
// rpc layer works identically over any of them.
package transport

import (
	"sync"

	"github.com/linchenxuan/uvbus/codes"
	"github.com/linchenxuan/uvbus/loop"
	"github.com/pkg/errors"
)

// Token identifies one remote peer on a server transport. Tokens are
// assigned monotonically and never reused, so a stale token held across a
// reconnect can never address the wrong peer.
type Token uint64

// Callbacks carries the event handlers a transport invokes. Every callback
// runs on the transport's loop goroutine. Nil members are skipped.
type Callbacks struct {
	// OnReceive is invoked once per complete frame with the de-framed
	// payload. peer identifies the sender on server transports; client
	// transports pass 0.
	OnReceive func(payload []byte, peer Token)
	// OnConnect reports the outcome of Connect: 0 on success, a negative
	// code on failure.
	OnConnect func(status int32)
	// OnError reports transport-level failures (read errors, framing
	// violations, accept errors, timeouts).
	OnError func(code int32, msg string)
}

// Transport is the uniform surface over all four transports. A transport
// is either a server (after Listen) or a client (after Connect), never
// both. Methods other than Free return an error carrying a codes value.
type Transport interface {
	// Listen binds the server side of the transport to addr.
	Listen(addr string) error
	// Connect establishes the client side toward addr. The outcome is
	// reported through OnConnect; a non-nil return means the attempt was
	// not even started.
	Connect(addr string) error
	// Disconnect closes the client connection or all accepted peers.
	Disconnect() error
	// Send transmits one payload: client sends to the server, server
	// broadcasts to every connected peer.
	Send(payload []byte) error
	// SendTo transmits one payload to a single peer token. Only valid on
	// server transports.
	SendTo(payload []byte, peer Token) error
	// SetTimeout sets the connect timeout in milliseconds. Zero disables.
	SetTimeout(ms int)
	// Free releases all resources. The transport is unusable afterwards.
	Free()
}

// Factory creates a transport bound to a loop and callback set.
type Factory func(lp *loop.Loop, cb Callbacks) Transport

var (
	_factoryMu sync.RWMutex
	_factories = map[string]Factory{}
)

// RegisterFactory installs a transport factory under a scheme name.
// Built-in schemes register from init; external code may add more.
func RegisterFactory(scheme string, f Factory) {
	_factoryMu.Lock()
	defer _factoryMu.Unlock()
	_factories[scheme] = f
}

// New creates a transport for the given scheme ("tcp", "udp", "ipc",
// "inproc").
func New(scheme string, lp *loop.Loop, cb Callbacks) (Transport, error) {
	_factoryMu.RLock()
	f, ok := _factories[scheme]
	_factoryMu.RUnlock()
	if !ok {
		return nil, errors.WithStack(codes.Errorf(codes.ErrInvalidParam, "unknown transport scheme: %s", scheme))
	}
	return f(lp, cb), nil
}

// NewFor parses addr and creates a transport matching its scheme.
func NewFor(addr string, lp *loop.Loop, cb Callbacks) (Transport, error) {
	a, err := Parse(addr)
	if err != nil {
		return nil, err
	}
	return New(a.Scheme, lp, cb)
}

func init() {
	RegisterFactory(SchemeTCP, func(lp *loop.Loop, cb Callbacks) Transport {
		return newStreamTransport("tcp", SchemeTCP, lp, cb)
	})
	RegisterFactory(SchemeIPC, func(lp *loop.Loop, cb Callbacks) Transport {
		return newIPCTransport(lp, cb)
	})
	RegisterFactory(SchemeUDP, func(lp *loop.Loop, cb Callbacks) Transport {
		return newUDPTransport(lp, cb)
	})
	RegisterFactory(SchemeInproc, func(lp *loop.Loop, cb Callbacks) Transport {
		return newInprocTransport(lp, cb)
	})
}

// callbackSink posts callback invocations onto the loop, skipping nil
// handlers.
type callbackSink struct {
	lp *loop.Loop
	cb Callbacks
}

func (s *callbackSink) postReceive(payload []byte, peer Token) {
	if s.cb.OnReceive == nil {
		return
	}
	s.lp.Post(func() { s.cb.OnReceive(payload, peer) })
}

func (s *callbackSink) postConnect(status int32) {
	if s.cb.OnConnect == nil {
		return
	}
	s.lp.Post(func() { s.cb.OnConnect(status) })
}

func (s *callbackSink) postError(code int32, msg string) {
	if s.cb.OnError == nil {
		return
	}
	s.lp.Post(func() { s.cb.OnError(code, msg) })
}
