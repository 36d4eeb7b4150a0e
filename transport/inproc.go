package transport

import (
	"sync"

	"github.com/linchenxuan/uvbus/codes"
	"github.com/linchenxuan/uvbus/loop"
	"github.com/linchenxuan/uvbus/metrics"
)

// inprocEndpoint is one named rendezvous point in the process-global
// registry: a single listening server plus its connected clients.
type inprocEndpoint struct {
	server    *inprocTransport
	clients   map[Token]*inprocTransport
	nextToken uint64
}

var (
	_inprocMu       sync.Mutex
	_inprocRegistry = map[string]*inprocEndpoint{}
)

// inprocTransport connects peers inside one process. Frames never touch a
// length prefix: the payload slice is copied and handed straight to the
// remote side's OnReceive on the caller's goroutine.
type inprocTransport struct {
	sink callbackSink

	mu    sync.Mutex
	role  transportRole
	name  string
	token Token
	freed bool
}

func newInprocTransport(lp *loop.Loop, cb Callbacks) *inprocTransport {
	return &inprocTransport{sink: callbackSink{lp: lp, cb: cb}}
}

// SetTimeout is accepted for interface parity; inproc connect is a map
// lookup and cannot time out.
func (t *inprocTransport) SetTimeout(ms int) {}

func (t *inprocTransport) Listen(addr string) error {
	a, err := parseFor(addr, SchemeInproc)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.freed {
		return codes.New(codes.ErrInvalidParam, "transport already freed")
	}
	if t.role != roleNone {
		return codes.New(codes.ErrAlreadyExists, "transport already in use")
	}

	_inprocMu.Lock()
	defer _inprocMu.Unlock()
	ep := _inprocRegistry[a.Location]
	if ep != nil && ep.server != nil {
		return codes.Errorf(codes.ErrAlreadyExists, "inproc endpoint %q already has a listener", a.Location)
	}
	if ep == nil {
		ep = &inprocEndpoint{clients: map[Token]*inprocTransport{}}
		_inprocRegistry[a.Location] = ep
	}
	ep.server = t
	t.role = roleServer
	t.name = a.Location
	return nil
}

func (t *inprocTransport) Connect(addr string) error {
	a, err := parseFor(addr, SchemeInproc)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.freed {
		return codes.New(codes.ErrInvalidParam, "transport already freed")
	}
	if t.role != roleNone {
		return codes.New(codes.ErrAlreadyExists, "transport already in use")
	}

	_inprocMu.Lock()
	ep := _inprocRegistry[a.Location]
	if ep == nil || ep.server == nil {
		_inprocMu.Unlock()
		return codes.Errorf(codes.ErrNotConnected, "no inproc endpoint %q", a.Location)
	}
	ep.nextToken++
	tk := Token(ep.nextToken)
	ep.clients[tk] = t
	_inprocMu.Unlock()

	t.role = roleClient
	t.name = a.Location
	t.token = tk
	t.sink.postConnect(codes.OK)
	return nil
}

func (t *inprocTransport) Send(payload []byte) error {
	if len(payload) == 0 || len(payload) > MaxFrameSize {
		return codes.New(codes.ErrInvalidParam, "invalid frame payload size")
	}

	t.mu.Lock()
	role := t.role
	name := t.name
	token := t.token
	t.mu.Unlock()

	switch role {
	case roleClient:
		_inprocMu.Lock()
		ep := _inprocRegistry[name]
		var server *inprocTransport
		if ep != nil {
			server = ep.server
		}
		_inprocMu.Unlock()
		if server == nil {
			return codes.New(codes.ErrNotConnected, "")
		}
		server.deliver(clone(payload), token)
		return nil
	case roleServer:
		for _, c := range t.clientSnapshot() {
			c.deliver(clone(payload), 0)
		}
		return nil
	default:
		return codes.New(codes.ErrNotConnected, "")
	}
}

func (t *inprocTransport) SendTo(payload []byte, peer Token) error {
	if len(payload) == 0 || len(payload) > MaxFrameSize {
		return codes.New(codes.ErrInvalidParam, "invalid frame payload size")
	}

	t.mu.Lock()
	role := t.role
	name := t.name
	t.mu.Unlock()
	if role != roleServer {
		return codes.New(codes.ErrInvalidParam, "SendTo requires a server transport")
	}

	_inprocMu.Lock()
	ep := _inprocRegistry[name]
	var c *inprocTransport
	if ep != nil {
		c = ep.clients[peer]
	}
	_inprocMu.Unlock()
	if c == nil {
		return codes.Errorf(codes.ErrNotFound, "no peer with token %d", peer)
	}
	c.deliver(clone(payload), 0)
	return nil
}

// deliver invokes OnReceive synchronously on the caller's goroutine, the
// defining property of the inproc transport: no queueing, no copy beyond
// the payload clone.
func (t *inprocTransport) deliver(payload []byte, from Token) {
	if t.sink.cb.OnReceive == nil {
		return
	}
	metrics.IncrCounterWithDimGroup("frames_recv_total", metrics.GroupNet, 1,
		metrics.Dimension{metrics.DimTransport: SchemeInproc})
	t.sink.cb.OnReceive(payload, from)
}

func (t *inprocTransport) clientSnapshot() []*inprocTransport {
	_inprocMu.Lock()
	defer _inprocMu.Unlock()
	ep := _inprocRegistry[t.name]
	if ep == nil {
		return nil
	}
	out := make([]*inprocTransport, 0, len(ep.clients))
	for _, c := range ep.clients {
		out = append(out, c)
	}
	return out
}

func (t *inprocTransport) Disconnect() error {
	t.mu.Lock()
	role := t.role
	name := t.name
	token := t.token
	t.role = roleNone
	t.name = ""
	t.token = 0
	t.mu.Unlock()

	_inprocMu.Lock()
	defer _inprocMu.Unlock()
	ep := _inprocRegistry[name]
	if ep == nil {
		return nil
	}
	switch role {
	case roleClient:
		delete(ep.clients, token)
	case roleServer:
		if ep.server == t {
			ep.server = nil
		}
	}
	if ep.server == nil && len(ep.clients) == 0 {
		delete(_inprocRegistry, name)
	}
	return nil
}

func (t *inprocTransport) Free() {
	t.mu.Lock()
	if t.freed {
		t.mu.Unlock()
		return
	}
	t.freed = true
	t.mu.Unlock()
	_ = t.Disconnect()
}

func clone(p []byte) []byte {
	out := make([]byte, len(p))
	copy(out, p)
	return out
}
