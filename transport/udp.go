package transport

import (
	"encoding/binary"
	"net"
	"sync"

	"github.com/linchenxuan/uvbus/codes"
	"github.com/linchenxuan/uvbus/log"
	"github.com/linchenxuan/uvbus/loop"
	"github.com/linchenxuan/uvbus/metrics"
	"github.com/linchenxuan/uvbus/utils/pool"
)

const (
	// _udpRecvBufSize bounds one datagram read. Larger datagrams are
	// truncated by the kernel; the truncation is detected and logged.
	_udpRecvBufSize = 8 * 1024
	// _maxUDPPeers caps the observed-sender table so an address-spoofing
	// flood cannot grow it without bound.
	_maxUDPPeers = 1000
)

// udpTransport implements Transport over datagrams. One datagram carries
// exactly one frame; there is no reassembly. A server learns peers from
// inbound datagrams and can reply via their tokens.
type udpTransport struct {
	sink callbackSink

	mu         sync.Mutex
	role       transportRole
	conn       *net.UDPConn
	peers      map[Token]*net.UDPAddr
	peerTokens map[string]Token
	nextToken  uint64
	freed      bool
}

func newUDPTransport(lp *loop.Loop, cb Callbacks) *udpTransport {
	return &udpTransport{
		sink:       callbackSink{lp: lp, cb: cb},
		peers:      map[Token]*net.UDPAddr{},
		peerTokens: map[string]Token{},
	}
}

// SetTimeout is accepted for interface parity. UDP connect is local socket
// setup and cannot time out.
func (t *udpTransport) SetTimeout(ms int) {}

func (t *udpTransport) Listen(addr string) error {
	a, err := parseFor(addr, SchemeUDP)
	if err != nil {
		return err
	}
	ua, rerr := net.ResolveUDPAddr("udp", a.Location)
	if rerr != nil {
		return codes.Errorf(codes.ErrInvalidParam, "resolve %s: %v", addr, rerr)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.freed {
		return codes.New(codes.ErrInvalidParam, "transport already freed")
	}
	if t.role != roleNone {
		return codes.New(codes.ErrAlreadyExists, "transport already in use")
	}
	conn, lerr := net.ListenUDP("udp", ua)
	if lerr != nil {
		return codes.Errorf(codes.ErrIO, "listen %s: %v", addr, lerr)
	}
	t.conn = conn
	t.role = roleServer
	go t.readLoop(conn, true)
	log.Info().Str("addr", addr).Str("transport", SchemeUDP).Msg("listening")
	return nil
}

func (t *udpTransport) Connect(addr string) error {
	a, err := parseFor(addr, SchemeUDP)
	if err != nil {
		return err
	}
	ua, rerr := net.ResolveUDPAddr("udp", a.Location)
	if rerr != nil {
		return codes.Errorf(codes.ErrInvalidParam, "resolve %s: %v", addr, rerr)
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
	conn, derr := net.DialUDP("udp", nil, ua)
	if derr != nil {
		t.mu.Unlock()
		t.sink.postError(codes.ErrIO, derr.Error())
		t.sink.postConnect(codes.ErrNotConnected)
		return nil
	}
	t.conn = conn
	t.role = roleClient
	t.nextToken++
	tk := Token(t.nextToken)
	t.peers[tk] = ua
	t.peerTokens[ua.String()] = tk
	t.mu.Unlock()

	go t.readLoop(conn, false)
	// datagram sockets have no handshake: connect succeeds locally
	t.sink.postConnect(codes.OK)
	return nil
}

var _udpBufPool = pool.NewPool("udp_recv_buf", func() any {
	return make([]byte, _udpRecvBufSize)
})

func (t *udpTransport) readLoop(conn *net.UDPConn, server bool) {
	buf := _udpBufPool.Get().([]byte)
	defer _udpBufPool.Put(buf)
	for {
		var (
			n    int
			from *net.UDPAddr
			err  error
		)
		if server {
			n, from, err = conn.ReadFromUDP(buf)
		} else {
			n, err = conn.Read(buf)
		}
		if err != nil {
			if !t.isFreed() && !t.isDisconnected() {
				t.sink.postError(codes.ErrIO, err.Error())
			}
			return
		}
		payload, ok := t.decodeDatagram(buf[:n])
		if !ok {
			continue
		}
		peer := Token(0)
		if server {
			peer = t.trackPeer(from)
		}
		metrics.IncrCounterWithDimGroup("frames_recv_total", metrics.GroupNet, 1,
			metrics.Dimension{metrics.DimTransport: SchemeUDP})
		t.sink.postReceive(payload, peer)
	}
}

// decodeDatagram validates the frame prefix of one datagram. A datagram
// longer than the receive buffer arrives truncated: that case is logged
// and the truncated payload delivered as-is.
func (t *udpTransport) decodeDatagram(pkt []byte) ([]byte, bool) {
	if len(pkt) < lenPrefixSize+1 {
		t.sink.postError(codes.ErrIO, "datagram too short for frame prefix")
		return nil, false
	}
	n := binary.BigEndian.Uint32(pkt)
	if n == 0 || n > MaxFrameSize {
		t.sink.postError(codes.ErrIO, "framing violation in datagram")
		return nil, false
	}
	body := pkt[lenPrefixSize:]
	if int(n) > len(body) {
		log.Warn().Uint32("announced", n).Int("got", len(body)).Msg("udp datagram truncated")
		n = uint32(len(body))
	}
	payload := make([]byte, n)
	copy(payload, body[:n])
	return payload, true
}

// trackPeer returns the token for a sender address, registering it when
// unseen. Senders beyond the table cap still get their payload delivered
// but stay anonymous (token 0) and cannot be replied to.
func (t *udpTransport) trackPeer(from *net.UDPAddr) Token {
	if from == nil {
		return 0
	}
	key := from.String()
	t.mu.Lock()
	defer t.mu.Unlock()
	if tk, ok := t.peerTokens[key]; ok {
		return tk
	}
	if len(t.peers) >= _maxUDPPeers {
		log.Warn().Str("from", key).Int("cap", _maxUDPPeers).Msg("udp peer table full")
		return 0
	}
	t.nextToken++
	tk := Token(t.nextToken)
	t.peers[tk] = from
	t.peerTokens[key] = tk
	metrics.UpdateGaugeWithGroup("peers", metrics.GroupNet, metrics.Value(len(t.peers)))
	return tk
}

func (t *udpTransport) Send(payload []byte) error {
	frame, err := EncodeFrame(payload)
	if err != nil {
		return err
	}

	t.mu.Lock()
	role := t.role
	conn := t.conn
	targets := make([]*net.UDPAddr, 0, len(t.peers))
	for _, a := range t.peers {
		targets = append(targets, a)
	}
	t.mu.Unlock()

	if conn == nil {
		return codes.New(codes.ErrNotConnected, "")
	}
	switch role {
	case roleClient:
		if _, werr := conn.Write(frame); werr != nil {
			log.Error().Err(werr).Msg("udp write failed")
		}
		return nil
	case roleServer:
		for _, a := range targets {
			if _, werr := conn.WriteToUDP(frame, a); werr != nil {
				log.Error().Err(werr).Str("to", a.String()).Msg("udp write failed")
			}
		}
		return nil
	default:
		return codes.New(codes.ErrNotConnected, "")
	}
}

func (t *udpTransport) SendTo(payload []byte, peer Token) error {
	frame, err := EncodeFrame(payload)
	if err != nil {
		return err
	}

	t.mu.Lock()
	if t.role != roleServer {
		t.mu.Unlock()
		return codes.New(codes.ErrInvalidParam, "SendTo requires a server transport")
	}
	conn := t.conn
	addr, ok := t.peers[peer]
	t.mu.Unlock()
	if conn == nil {
		return codes.New(codes.ErrNotConnected, "")
	}
	if !ok {
		return codes.Errorf(codes.ErrNotFound, "no peer with token %d", peer)
	}
	if _, werr := conn.WriteToUDP(frame, addr); werr != nil {
		log.Error().Err(werr).Str("to", addr.String()).Msg("udp write failed")
	}
	metrics.IncrCounterWithDimGroup("frames_sent_total", metrics.GroupNet, 1,
		metrics.Dimension{metrics.DimTransport: SchemeUDP})
	return nil
}

func (t *udpTransport) Disconnect() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.role = roleNone
	t.peers = map[Token]*net.UDPAddr{}
	t.peerTokens = map[string]Token{}
	t.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	return nil
}

func (t *udpTransport) Free() {
	t.mu.Lock()
	if t.freed {
		t.mu.Unlock()
		return
	}
	t.freed = true
	t.mu.Unlock()
	_ = t.Disconnect()
}

func (t *udpTransport) boundAddr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return ""
	}
	return t.conn.LocalAddr().String()
}

func (t *udpTransport) isFreed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.freed
}

func (t *udpTransport) isDisconnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn == nil
}
