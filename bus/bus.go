// Package bus routes decoded messages to their consumers through three
// independent surfaces: method handlers for inbound requests, one-shot
// callbacks for responses keyed by message id, and topic subscriptions
// with prefix wildcards. All lookups are O(1) average via hash maps; the
// wildcard scan only runs when the exact topic misses.
//
// A bus belongs to one event loop. Every register and dispatch call must
// run on that loop; the bus carries no locking of its own.
package bus

import (
	"strings"

	"github.com/linchenxuan/uvbus/codes"
	"github.com/linchenxuan/uvbus/log"
	"github.com/linchenxuan/uvbus/metrics"
	"github.com/linchenxuan/uvbus/transport"
)

// Request is an inbound method invocation after envelope decoding.
type Request struct {
	Method string
	MsgID  uint64
	Params []byte
	Peer   transport.Token
}

// Response is an inbound reply after envelope decoding. Code carries the
// remote status: 0 for success, negative for an error response.
type Response struct {
	MsgID  uint64
	Code   int32
	Result []byte
	ErrMsg string
}

// Handler consumes one Request.
type Handler func(req *Request)

// Callback consumes one Response. Callbacks are one-shot: the bus removes
// the registration before invoking it.
type Callback func(resp *Response)

// Subscriber consumes one published message.
type Subscriber func(topic string, data []byte)

// Stats is a point-in-time snapshot of bus activity. The three Total*
// table sizes are current; the rest are cumulative since the last reset.
type Stats struct {
	TotalRouted        uint64
	TotalHandlers      int
	TotalCallbacks     int
	TotalSubscriptions int
	HandlerHits        uint64
	CallbackHits       uint64
	SubscriptionHits   uint64
}

// Bus holds the three routing tables.
type Bus struct {
	handlers  map[string]Handler
	callbacks map[uint64]Callback
	subs      map[string][]Subscriber

	totalRouted      uint64
	handlerHits      uint64
	callbackHits     uint64
	subscriptionHits uint64
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		handlers:  map[string]Handler{},
		callbacks: map[uint64]Callback{},
		subs:      map[string][]Subscriber{},
	}
}

// RegisterHandler installs h for a method name. Re-registering a method
// overwrites the previous handler.
func (b *Bus) RegisterHandler(method string, h Handler) error {
	if method == "" || h == nil {
		return codes.New(codes.ErrInvalidParam, "method and handler required")
	}
	if _, exists := b.handlers[method]; exists {
		log.Debug().Str("method", method).Msg("handler overwritten")
	}
	b.handlers[method] = h
	return nil
}

// UnregisterHandler removes a method handler.
func (b *Bus) UnregisterHandler(method string) error {
	if _, ok := b.handlers[method]; !ok {
		return codes.Errorf(codes.ErrNotFound, "no handler for method %q", method)
	}
	delete(b.handlers, method)
	return nil
}

// DispatchRequest routes a request to its method handler. Returns OK on a
// hit; ErrNotFound when no handler is registered, in which case the caller
// must emit the error response itself.
func (b *Bus) DispatchRequest(req *Request) int32 {
	b.totalRouted++
	if req == nil || req.Method == "" {
		return codes.ErrInvalidParam
	}
	h, ok := b.handlers[req.Method]
	if !ok {
		return codes.ErrNotFound
	}
	b.handlerHits++
	metrics.IncrCounterWithDimGroup("dispatch_total", metrics.GroupBus, 1,
		metrics.Dimension{metrics.DimSurface: "handler"})
	h(req)
	return codes.OK
}

// RegisterCallback installs a one-shot response callback for a message id.
// No two live registrations may share an id.
func (b *Bus) RegisterCallback(msgID uint64, cb Callback) error {
	if msgID == 0 || cb == nil {
		return codes.New(codes.ErrInvalidParam, "msgid and callback required")
	}
	if _, exists := b.callbacks[msgID]; exists {
		return codes.Errorf(codes.ErrAlreadyExists, "callback for msgid %d already registered", msgID)
	}
	b.callbacks[msgID] = cb
	return nil
}

// UnregisterCallback removes a pending callback without invoking it.
func (b *Bus) UnregisterCallback(msgID uint64) error {
	if _, ok := b.callbacks[msgID]; !ok {
		return codes.Errorf(codes.ErrNotFound, "no callback for msgid %d", msgID)
	}
	delete(b.callbacks, msgID)
	return nil
}

// DispatchResponse routes a response to its one-shot callback, removing
// the entry before the callback runs so re-entrant dispatch of the same id
// misses. Unknown ids return ErrNotFound and are dropped by callers.
func (b *Bus) DispatchResponse(resp *Response) int32 {
	b.totalRouted++
	if resp == nil || resp.MsgID == 0 {
		return codes.ErrInvalidParam
	}
	cb, ok := b.callbacks[resp.MsgID]
	if !ok {
		return codes.ErrNotFound
	}
	delete(b.callbacks, resp.MsgID)
	b.callbackHits++
	metrics.IncrCounterWithDimGroup("dispatch_total", metrics.GroupBus, 1,
		metrics.Dimension{metrics.DimSurface: "callback"})
	cb(resp)
	return codes.OK
}

// Subscribe installs a subscriber for a topic. A trailing '*' subscribes
// to every topic sharing the preceding prefix. Subscribing the same
// pattern again appends: subscribers under one pattern fire in
// registration order on a wildcard match.
func (b *Bus) Subscribe(topic string, s Subscriber) error {
	if topic == "" || s == nil {
		return codes.New(codes.ErrInvalidParam, "topic and subscriber required")
	}
	b.subs[topic] = append(b.subs[topic], s)
	return nil
}

// Unsubscribe removes every subscriber registered under a pattern. The
// topic must match the registered pattern literally, wildcard included.
func (b *Bus) Unsubscribe(topic string) error {
	if _, ok := b.subs[topic]; !ok {
		return codes.Errorf(codes.ErrNotFound, "no subscription for topic %q", topic)
	}
	delete(b.subs, topic)
	return nil
}

// DispatchMessage routes a published message. An exact topic match fires
// the first subscriber registered under that topic; otherwise every
// subscriber of every wildcard pattern whose prefix matches fires.
// Returns the number of subscribers notified; zero is a miss, not an
// error.
func (b *Bus) DispatchMessage(topic string, data []byte) int {
	b.totalRouted++
	if topic == "" {
		return 0
	}
	if list, ok := b.subs[topic]; ok && len(list) > 0 {
		b.subscriptionHits++
		metrics.IncrCounterWithDimGroup("dispatch_total", metrics.GroupBus, 1,
			metrics.Dimension{metrics.DimSurface: "subscription"})
		list[0](topic, data)
		return 1
	}
	matched := 0
	for pattern, list := range b.subs {
		if !strings.HasSuffix(pattern, "*") {
			continue
		}
		if strings.HasPrefix(topic, pattern[:len(pattern)-1]) {
			for _, s := range list {
				b.subscriptionHits++
				s(topic, data)
				matched++
			}
		}
	}
	if matched > 0 {
		metrics.IncrCounterWithDimGroup("dispatch_total", metrics.GroupBus, 1,
			metrics.Dimension{metrics.DimSurface: "subscription"})
	}
	return matched
}

// Stats returns a snapshot of the bus counters and table sizes.
func (b *Bus) Stats() Stats {
	nsubs := 0
	for _, list := range b.subs {
		nsubs += len(list)
	}
	return Stats{
		TotalRouted:        b.totalRouted,
		TotalHandlers:      len(b.handlers),
		TotalCallbacks:     len(b.callbacks),
		TotalSubscriptions: nsubs,
		HandlerHits:        b.handlerHits,
		CallbackHits:       b.callbackHits,
		SubscriptionHits:   b.subscriptionHits,
	}
}

// ResetStats clears the cumulative counters. Table sizes are live values
// and unaffected.
func (b *Bus) ResetStats() {
	b.totalRouted = 0
	b.handlerHits = 0
	b.callbackHits = 0
	b.subscriptionHits = 0
}

// Clear drops every registration, used at bus destruction.
func (b *Bus) Clear() {
	b.handlers = map[string]Handler{}
	b.callbacks = map[uint64]Callback{}
	b.subs = map[string][]Subscriber{}
}
