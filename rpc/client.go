package rpc

import (
	"github.com/linchenxuan/uvbus/async"
	"github.com/linchenxuan/uvbus/bus"
	"github.com/linchenxuan/uvbus/codes"
	"github.com/linchenxuan/uvbus/log"
	"github.com/linchenxuan/uvbus/loop"
	"github.com/linchenxuan/uvbus/transport"
)

// Client issues method calls over a connected transport. Each call
// registers a one-shot bus callback keyed by a fresh message id and hands
// back a promise that settles with the response.
type Client struct {
	lp  *loop.Loop
	tr  transport.Transport
	b   *bus.Bus
	gen MsgIDGenerator
	ctx *async.Context
	cfg *ClientCfg

	connectP  *async.Promise
	connected bool
}

// NewClient builds a client over lp from cfg. A nil lp creates a private
// loop.
func NewClient(lp *loop.Loop, cfg *ClientCfg) (*Client, error) {
	if cfg == nil {
		return nil, codes.New(codes.ErrInvalidParam, "nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if lp == nil {
		lp = loop.New()
	}
	c := &Client{
		lp:  lp,
		b:   bus.New(),
		ctx: async.NewContext(lp),
		cfg: cfg,
	}

	tr, err := transport.NewFor(cfg.Address, lp, transport.Callbacks{
		OnReceive: c.onReceive,
		OnConnect: c.onConnect,
		OnError: func(code int32, msg string) {
			log.Warn().Int32("code", code).Str("msg", msg).Msg("client transport error")
		},
	})
	if err != nil {
		return nil, err
	}
	c.tr = tr
	if cfg.TimeoutMS > 0 {
		tr.SetTimeout(cfg.TimeoutMS)
	}
	return c, nil
}

// Loop returns the client's event loop.
func (c *Client) Loop() *loop.Loop { return c.lp }

// Context returns the client's async context, shared with schedulers that
// should observe CancelAll.
func (c *Client) Context() *async.Context { return c.ctx }

// Connect starts connecting to the configured address. The returned
// promise settles with the connect outcome.
func (c *Client) Connect() *async.Promise {
	p := async.NewPromise(c.lp)
	c.connectP = p
	if err := c.tr.Connect(c.cfg.Address); err != nil {
		c.connectP = nil
		_ = p.Reject(codes.CodeOf(err), err.Error())
	}
	return p
}

func (c *Client) onConnect(status int32) {
	p := c.connectP
	c.connectP = nil
	if status == codes.OK {
		c.connected = true
		if p != nil {
			_ = p.Resolve(nil)
		}
		return
	}
	if p != nil {
		_ = p.Reject(status, codes.Strerror(status))
	}
}

// Call issues one request. The promise fulfills with the result bytes or
// rejects with the remote error. Calls beyond the pending cap reject with
// ErrRateLimited without touching the wire.
func (c *Client) Call(method string, params []byte) *async.Promise {
	p := async.NewPromise(c.lp)

	if c.PendingCount() >= c.cfg.MaxPending {
		_ = p.Reject(codes.ErrRateLimited, "")
		return p
	}

	msgID := c.gen.Next()
	payload, err := EncodeRequest(msgID, method, params)
	if err != nil {
		_ = p.Reject(codes.CodeOf(err), err.Error())
		return p
	}

	rerr := c.b.RegisterCallback(msgID, func(resp *bus.Response) {
		// a cancelled context swallows the response: bookkeeping is done
		// but user-visible settlement must not happen
		if c.ctx.Cancelled() {
			return
		}
		if resp.Code != codes.OK {
			_ = p.Reject(resp.Code, resp.ErrMsg)
			return
		}
		_ = p.Resolve(resp.Result)
	})
	if rerr != nil {
		_ = p.Reject(codes.CodeOf(rerr), rerr.Error())
		return p
	}

	if serr := c.tr.Send(payload); serr != nil {
		_ = c.b.UnregisterCallback(msgID)
		_ = p.Reject(codes.CodeOf(serr), serr.Error())
	}
	return p
}

// CancelAll marks every pending call cancelled. Their responses, if they
// ever arrive, are dropped before reaching user callbacks; new work on
// schedulers sharing this context fails immediately.
func (c *Client) CancelAll() {
	c.ctx.CancelAll()
}

// PendingCount returns the number of in-flight calls.
func (c *Client) PendingCount() int {
	return c.b.Stats().TotalCallbacks
}

// Disconnect drops the connection. Pending calls stay registered and will
// never settle; CancelAll first if their callbacks must be swallowed.
func (c *Client) Disconnect() error {
	c.connected = false
	return c.tr.Disconnect()
}

// Free releases the transport and all pending registrations.
func (c *Client) Free() {
	c.tr.Free()
	c.b.Clear()
	c.ctx.Cleanup()
}

func (c *Client) onReceive(payload []byte, _ transport.Token) {
	env, err := Decode(payload)
	if err != nil {
		log.Warn().Err(err).Msg("undecodable envelope dropped")
		return
	}
	switch env.Type {
	case TypeResponse:
		c.b.DispatchResponse(&bus.Response{MsgID: env.MsgID, Code: codes.OK, Result: env.Body})
	case TypeError:
		c.b.DispatchResponse(&bus.Response{MsgID: env.MsgID, Code: env.Code, ErrMsg: env.ErrMsg})
	case TypeNotification:
		c.b.DispatchMessage(env.Topic, env.Body)
	default:
		log.Debug().Int("type", int(env.Type)).Msg("unexpected envelope type on client")
	}
}
