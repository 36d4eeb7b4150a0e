package transport

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/linchenxuan/uvbus/codes"
	"github.com/linchenxuan/uvbus/log"
	"github.com/linchenxuan/uvbus/loop"
	"github.com/linchenxuan/uvbus/metrics"
	"github.com/linchenxuan/uvbus/utils/pool"
	"github.com/pkg/errors"
)

const (
	_recvBufSize   = 64 * 1024
	_sendQueueSize = 1024
)

type transportRole int

const (
	roleNone transportRole = iota
	roleServer
	roleClient
)

// streamPeer is one established stream connection. A reader goroutine
// de-frames inbound bytes and posts payloads to the loop; a writer
// goroutine drains the send queue. The loop goroutine never blocks on the
// network.
type streamPeer struct {
	token     Token
	conn      net.Conn
	sendCh    chan []byte
	done      chan struct{}
	closeOnce sync.Once
	owner     *streamTransport
}

var _recvBufPool = pool.NewPool("stream_recv_buf", func() any {
	return make([]byte, _recvBufSize)
})

func (p *streamPeer) serveRecv() {
	var fb frameBuffer
	buf := _recvBufPool.Get().([]byte)
	defer _recvBufPool.Put(buf)
	for {
		n, err := p.conn.Read(buf)
		if n > 0 {
			fb.feed(buf[:n])
			for {
				payload, ferr := fb.next()
				if ferr != nil {
					p.owner.sink.postError(codes.CodeOf(ferr), ferr.Error())
					p.owner.dropPeer(p)
					return
				}
				if payload == nil {
					break
				}
				metrics.IncrCounterWithDimGroup("frames_recv_total", metrics.GroupNet, 1,
					metrics.Dimension{metrics.DimTransport: p.owner.scheme})
				p.owner.sink.postReceive(payload, p.token)
			}
		}
		if err != nil {
			if !p.owner.isFreed() {
				p.owner.sink.postError(codes.ErrIO, err.Error())
			}
			p.owner.dropPeer(p)
			return
		}
	}
}

func (p *streamPeer) serveSend() {
	for {
		select {
		case <-p.done:
			return
		case frame := <-p.sendCh:
			if _, err := p.conn.Write(frame); err != nil {
				log.Error().Err(err).Uint64("peer", uint64(p.token)).Msg("stream write failed")
				p.owner.dropPeer(p)
				return
			}
			metrics.IncrCounterWithDimGroup("frames_sent_total", metrics.GroupNet, 1,
				metrics.Dimension{metrics.DimTransport: p.owner.scheme})
		}
	}
}

// enqueue hands a pre-encoded frame to the writer goroutine. A full queue
// drops the frame: sends are fire-and-forget and a slow peer must not
// stall the loop.
func (p *streamPeer) enqueue(frame []byte) error {
	select {
	case <-p.done:
		return codes.New(codes.ErrNotConnected, "")
	case p.sendCh <- frame:
		return nil
	default:
		log.Warn().Uint64("peer", uint64(p.token)).Msg("send queue full, frame dropped")
		metrics.IncrCounterWithDimGroup("frames_dropped_total", metrics.GroupNet, 1,
			metrics.Dimension{metrics.DimTransport: p.owner.scheme})
		return nil
	}
}

func (p *streamPeer) close() {
	p.closeOnce.Do(func() {
		close(p.done)
		_ = p.conn.Close()
	})
}

// streamTransport implements Transport over any stream network the net
// package supports; tcp and unix-socket transports share it.
type streamTransport struct {
	network string // net package network name
	scheme  string
	sink    callbackSink

	mu        sync.Mutex
	role      transportRole
	ln        net.Listener
	peers     map[Token]*streamPeer
	client    *streamPeer
	nextToken uint64
	freed     bool

	timeoutMS atomic.Int64

	// set for unix sockets: path unlinked before listen and after free
	socketPath string
}

func newStreamTransport(network, scheme string, lp *loop.Loop, cb Callbacks) *streamTransport {
	return &streamTransport{
		network: network,
		scheme:  scheme,
		sink:    callbackSink{lp: lp, cb: cb},
		peers:   map[Token]*streamPeer{},
	}
}

func (t *streamTransport) SetTimeout(ms int) {
	t.timeoutMS.Store(int64(ms))
}

func (t *streamTransport) Listen(addr string) error {
	a, err := parseFor(addr, t.scheme)
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
	if t.network == "unix" {
		removeStaleSocket(a.Location)
	}
	ln, lerr := net.Listen(t.network, a.Location)
	if lerr != nil {
		return codes.Errorf(codes.ErrIO, "listen %s: %v", addr, lerr)
	}
	t.ln = ln
	t.role = roleServer
	if t.network == "unix" {
		t.socketPath = a.Location
	}
	go t.acceptLoop(ln)
	log.Info().Str("addr", addr).Str("transport", t.scheme).Msg("listening")
	return nil
}

func (t *streamTransport) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if t.isFreed() || errors.Is(err, net.ErrClosed) {
				return
			}
			t.sink.postError(codes.ErrIO, err.Error())
			time.Sleep(10 * time.Millisecond)
			continue
		}
		t.addPeer(conn)
	}
}

func (t *streamTransport) addPeer(conn net.Conn) {
	t.mu.Lock()
	if t.freed {
		t.mu.Unlock()
		_ = conn.Close()
		return
	}
	t.nextToken++
	p := &streamPeer{
		token:  Token(t.nextToken),
		conn:   conn,
		sendCh: make(chan []byte, _sendQueueSize),
		done:   make(chan struct{}),
		owner:  t,
	}
	t.peers[p.token] = p
	n := len(t.peers)
	t.mu.Unlock()

	metrics.UpdateGaugeWithGroup("peers", metrics.GroupNet, metrics.Value(n))
	go p.serveRecv()
	go p.serveSend()
}

func (t *streamTransport) dropPeer(p *streamPeer) {
	p.close()
	t.mu.Lock()
	if t.client == p {
		t.client = nil
	}
	delete(t.peers, p.token)
	n := len(t.peers)
	t.mu.Unlock()
	metrics.UpdateGaugeWithGroup("peers", metrics.GroupNet, metrics.Value(n))
}

func (t *streamTransport) Connect(addr string) error {
	a, err := parseFor(addr, t.scheme)
	if err != nil {
		return err
	}

	t.mu.Lock()
	if t.freed {
		t.mu.Unlock()
		return codes.New(codes.ErrInvalidParam, "transport already freed")
	}
	if t.role != roleNone {
		t.mu.Unlock()
		return codes.New(codes.ErrAlreadyExists, "transport already in use")
	}
	t.role = roleClient
	t.mu.Unlock()

	timeout := time.Duration(t.timeoutMS.Load()) * time.Millisecond
	go t.dial(a, timeout)
	return nil
}

func (t *streamTransport) dial(a Addr, timeout time.Duration) {
	var timer *loop.Timer
	if timeout > 0 {
		timer = t.sink.lp.After(timeout, func() {
			if t.sink.cb.OnError != nil {
				t.sink.cb.OnError(codes.ErrTimeout, "connect timed out")
			}
			if t.sink.cb.OnConnect != nil {
				t.sink.cb.OnConnect(codes.ErrTimeout)
			}
			_ = t.Disconnect()
		})
	}

	var (
		conn net.Conn
		err  error
	)
	if timeout > 0 {
		conn, err = net.DialTimeout(t.network, a.Location, timeout)
	} else {
		conn, err = net.Dial(t.network, a.Location)
	}
	// Stop returning false means the timeout callback has run or has been
	// popped for running: the attempt is already reported as timed out and
	// OnConnect must not fire a second time.
	if timer != nil && !timer.Stop() {
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		code := codes.ErrNotConnected
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			code = codes.ErrTimeout
		}
		t.sink.postError(code, err.Error())
		t.sink.postConnect(code)
		return
	}

	t.mu.Lock()
	if t.freed {
		t.mu.Unlock()
		_ = conn.Close()
		return
	}
	p := &streamPeer{
		conn:   conn,
		sendCh: make(chan []byte, _sendQueueSize),
		done:   make(chan struct{}),
		owner:  t,
	}
	t.client = p
	t.mu.Unlock()

	go p.serveRecv()
	go p.serveSend()
	t.sink.postConnect(codes.OK)
}

func (t *streamTransport) Send(payload []byte) error {
	frame, err := EncodeFrame(payload)
	if err != nil {
		return err
	}

	t.mu.Lock()
	role := t.role
	client := t.client
	targets := make([]*streamPeer, 0, len(t.peers))
	for _, p := range t.peers {
		targets = append(targets, p)
	}
	t.mu.Unlock()

	switch role {
	case roleClient:
		if client == nil {
			return codes.New(codes.ErrNotConnected, "")
		}
		return client.enqueue(frame)
	case roleServer:
		for _, p := range targets {
			_ = p.enqueue(frame)
		}
		return nil
	default:
		return codes.New(codes.ErrNotConnected, "")
	}
}

func (t *streamTransport) SendTo(payload []byte, peer Token) error {
	frame, err := EncodeFrame(payload)
	if err != nil {
		return err
	}

	t.mu.Lock()
	if t.role != roleServer {
		t.mu.Unlock()
		return codes.New(codes.ErrInvalidParam, "SendTo requires a server transport")
	}
	p, ok := t.peers[peer]
	t.mu.Unlock()
	if !ok {
		return codes.Errorf(codes.ErrNotFound, "no peer with token %d", peer)
	}
	return p.enqueue(frame)
}

func (t *streamTransport) Disconnect() error {
	t.mu.Lock()
	client := t.client
	t.client = nil
	targets := make([]*streamPeer, 0, len(t.peers))
	for _, p := range t.peers {
		targets = append(targets, p)
	}
	t.peers = map[Token]*streamPeer{}
	t.mu.Unlock()

	if client != nil {
		client.close()
	}
	for _, p := range targets {
		p.close()
	}
	return nil
}

func (t *streamTransport) Free() {
	t.mu.Lock()
	if t.freed {
		t.mu.Unlock()
		return
	}
	t.freed = true
	ln := t.ln
	t.ln = nil
	sock := t.socketPath
	t.mu.Unlock()

	if ln != nil {
		_ = ln.Close()
	}
	_ = t.Disconnect()
	if sock != "" {
		removeStaleSocket(sock)
	}
}

// boundAddr reports the listener's actual address, useful after binding
// to port 0.
func (t *streamTransport) boundAddr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ln == nil {
		return ""
	}
	return t.ln.Addr().String()
}

func (t *streamTransport) isFreed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.freed
}
