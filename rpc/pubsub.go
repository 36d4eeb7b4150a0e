package rpc

import (
	"github.com/linchenxuan/uvbus/async"
	"github.com/linchenxuan/uvbus/bus"
	"github.com/linchenxuan/uvbus/codes"
	"github.com/linchenxuan/uvbus/log"
	"github.com/linchenxuan/uvbus/loop"
	"github.com/linchenxuan/uvbus/metrics"
	"github.com/linchenxuan/uvbus/transport"
)

// Publisher broadcasts topic notifications to every connected subscriber
// over a server-mode transport.
type Publisher struct {
	lp  *loop.Loop
	tr  transport.Transport
	cfg *ServerCfg
}

// NewPublisher builds a publisher over lp from cfg.
func NewPublisher(lp *loop.Loop, cfg *ServerCfg) (*Publisher, error) {
	if cfg == nil {
		return nil, codes.New(codes.ErrInvalidParam, "nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if lp == nil {
		lp = loop.New()
	}
	p := &Publisher{lp: lp, cfg: cfg}
	tr, err := transport.NewFor(cfg.Address, lp, transport.Callbacks{
		OnError: func(code int32, msg string) {
			log.Warn().Int32("code", code).Str("msg", msg).Msg("publisher transport error")
		},
	})
	if err != nil {
		return nil, err
	}
	p.tr = tr
	return p, nil
}

// Start begins listening for subscribers.
func (p *Publisher) Start() error {
	return p.tr.Listen(p.cfg.Address)
}

// Loop returns the publisher's event loop.
func (p *Publisher) Loop() *loop.Loop { return p.lp }

// Publish broadcasts one notification to every connected subscriber.
func (p *Publisher) Publish(topic string, data []byte) error {
	payload, err := EncodeNotification(topic, data)
	if err != nil {
		return err
	}
	metrics.IncrCounterWithDimGroup("published_total", metrics.GroupBus, 1,
		metrics.Dimension{metrics.DimSurface: "subscription"})
	return p.tr.Send(payload)
}

// Free releases the transport.
func (p *Publisher) Free() {
	p.tr.Free()
}

// Subscriber connects to a publisher and routes inbound notifications to
// topic callbacks, exact matches shadowing prefix wildcards.
type Subscriber struct {
	lp  *loop.Loop
	tr  transport.Transport
	b   *bus.Bus
	cfg *ClientCfg

	connectP *async.Promise
}

// NewSubscriber builds a subscriber over lp from cfg.
func NewSubscriber(lp *loop.Loop, cfg *ClientCfg) (*Subscriber, error) {
	if cfg == nil {
		return nil, codes.New(codes.ErrInvalidParam, "nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if lp == nil {
		lp = loop.New()
	}
	s := &Subscriber{lp: lp, b: bus.New(), cfg: cfg}
	tr, err := transport.NewFor(cfg.Address, lp, transport.Callbacks{
		OnReceive: s.onReceive,
		OnConnect: s.onConnect,
		OnError: func(code int32, msg string) {
			log.Warn().Int32("code", code).Str("msg", msg).Msg("subscriber transport error")
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

// Loop returns the subscriber's event loop.
func (s *Subscriber) Loop() *loop.Loop { return s.lp }

// Connect starts connecting to the publisher; the promise settles with
// the outcome.
func (s *Subscriber) Connect() *async.Promise {
	p := async.NewPromise(s.lp)
	s.connectP = p
	if err := s.tr.Connect(s.cfg.Address); err != nil {
		s.connectP = nil
		_ = p.Reject(codes.CodeOf(err), err.Error())
	}
	return p
}

func (s *Subscriber) onConnect(status int32) {
	p := s.connectP
	s.connectP = nil
	if p == nil {
		return
	}
	if status == codes.OK {
		_ = p.Resolve(nil)
	} else {
		_ = p.Reject(status, codes.Strerror(status))
	}
}

// Subscribe installs fn for a topic pattern. A trailing '*' matches every
// topic with the preceding prefix.
func (s *Subscriber) Subscribe(topic string, fn func(topic string, data []byte)) error {
	return s.b.Subscribe(topic, fn)
}

// Unsubscribe removes a topic pattern.
func (s *Subscriber) Unsubscribe(topic string) error {
	return s.b.Unsubscribe(topic)
}

// Free releases the transport and subscriptions.
func (s *Subscriber) Free() {
	s.tr.Free()
	s.b.Clear()
}

func (s *Subscriber) onReceive(payload []byte, _ transport.Token) {
	env, err := Decode(payload)
	if err != nil {
		log.Warn().Err(err).Msg("undecodable envelope dropped")
		return
	}
	if env.Type != TypeNotification {
		log.Debug().Int("type", int(env.Type)).Msg("unexpected envelope type on subscriber")
		return
	}
	s.b.DispatchMessage(env.Topic, env.Body)
}
