package rpc

import (
	"github.com/linchenxuan/uvbus/bus"
	"github.com/linchenxuan/uvbus/codes"
	"github.com/linchenxuan/uvbus/log"
	"github.com/linchenxuan/uvbus/loop"
	"github.com/linchenxuan/uvbus/metrics"
	"github.com/linchenxuan/uvbus/transport"
)

// Request is one inbound method call handed to a service handler. The
// handler answers through Reply or Fail; each request accepts exactly one
// answer.
type Request struct {
	Method string
	Params []byte
	Peer   transport.Token

	msgID   uint64
	srv     *Server
	replied bool
}

// Reply sends a success response carrying result back to the caller.
func (r *Request) Reply(result []byte) error {
	if r.replied {
		return codes.New(codes.ErrInvalidState, "request already answered")
	}
	r.replied = true
	return r.srv.tr.SendTo(EncodeResponse(r.msgID, result), r.Peer)
}

// Fail sends an error response back to the caller.
func (r *Request) Fail(code int32, msg string) error {
	if r.replied {
		return codes.New(codes.ErrInvalidState, "request already answered")
	}
	r.replied = true
	if msg == "" {
		msg = codes.Strerror(code)
	}
	return r.srv.tr.SendTo(EncodeError(r.msgID, code, msg), r.Peer)
}

// HandlerFunc serves one request.
type HandlerFunc func(req *Request)

// Server owns a loop, a listening transport and a bus, and routes inbound
// request envelopes to registered services. Unknown methods are answered
// with a not-found error envelope.
type Server struct {
	lp  *loop.Loop
	tr  transport.Transport
	b   *bus.Bus
	cfg *ServerCfg
}

// NewServer builds a server over lp from cfg. A nil lp creates a private
// loop.
func NewServer(lp *loop.Loop, cfg *ServerCfg) (*Server, error) {
	if cfg == nil {
		return nil, codes.New(codes.ErrInvalidParam, "nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if lp == nil {
		lp = loop.New()
	}
	s := &Server{lp: lp, b: bus.New(), cfg: cfg}

	tr, err := transport.NewFor(cfg.Address, lp, transport.Callbacks{
		OnReceive: s.onReceive,
		OnError: func(code int32, msg string) {
			log.Warn().Int32("code", code).Str("msg", msg).Msg("server transport error")
			metrics.IncrCounterWithDimGroup("transport_errors", metrics.GroupNet, 1,
				metrics.Dimension{metrics.DimRole: "server"})
		},
	})
	if err != nil {
		return nil, err
	}
	s.tr = tr
	if cfg.TimeoutMS > 0 {
		tr.SetTimeout(cfg.TimeoutMS)
	}
	return s, nil
}

// Start begins listening on the configured address.
func (s *Server) Start() error {
	return s.tr.Listen(s.cfg.Address)
}

// Loop returns the server's event loop, for the caller to drive.
func (s *Server) Loop() *loop.Loop { return s.lp }

// Run drives the server loop until Stop.
func (s *Server) Run() { s.lp.Run() }

// Stop stops the loop; the transport stays allocated until Free.
func (s *Server) Stop() { s.lp.Stop() }

// Free releases the transport and clears every registration.
func (s *Server) Free() {
	s.tr.Free()
	s.b.Clear()
}

// RegisterService installs a handler for a method name. Re-registering
// overwrites.
func (s *Server) RegisterService(method string, h HandlerFunc) error {
	if h == nil {
		return codes.New(codes.ErrInvalidParam, "nil handler")
	}
	return s.b.RegisterHandler(method, func(breq *bus.Request) {
		h(&Request{
			Method: breq.Method,
			Params: breq.Params,
			Peer:   breq.Peer,
			msgID:  breq.MsgID,
			srv:    s,
		})
	})
}

// UnregisterService removes a method handler.
func (s *Server) UnregisterService(method string) error {
	return s.b.UnregisterHandler(method)
}

// ServiceCount returns the number of registered methods.
func (s *Server) ServiceCount() int {
	return s.b.Stats().TotalHandlers
}

// BusStats exposes the routing counters.
func (s *Server) BusStats() bus.Stats { return s.b.Stats() }

func (s *Server) onReceive(payload []byte, peer transport.Token) {
	env, err := Decode(payload)
	if err != nil {
		log.Warn().Err(err).Uint64("peer", uint64(peer)).Msg("undecodable envelope dropped")
		return
	}
	switch env.Type {
	case TypeRequest:
		st := s.b.DispatchRequest(&bus.Request{
			Method: env.Method,
			MsgID:  env.MsgID,
			Params: env.Body,
			Peer:   peer,
		})
		if st == codes.ErrNotFound {
			if serr := s.tr.SendTo(EncodeError(env.MsgID, codes.ErrNotFound, "no such method: "+env.Method), peer); serr != nil {
				log.Warn().Err(serr).Msg("failed to send not-found response")
			}
		}
	case TypeNotification:
		s.b.DispatchMessage(env.Topic, env.Body)
	default:
		log.Debug().Int("type", int(env.Type)).Msg("unexpected envelope type on server")
	}
}
