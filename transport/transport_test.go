package transport

import (
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/linchenxuan/uvbus/codes"
	"github.com/linchenxuan/uvbus/loop"
)

// runEcho wires a server that echoes every frame back to its sender and a
// client that sends msg once connected, then drives the loop until the
// echo lands or the failsafe fires.
func runEcho(t *testing.T, scheme, listenAddr string, connectAddr func(srv Transport) string, msg string) {
	t.Helper()
	lp := loop.New()

	var srv, cli Transport
	var echoed string

	srv, err := New(scheme, lp, Callbacks{
		OnReceive: func(payload []byte, peer Token) {
			if err := srv.SendTo(payload, peer); err != nil {
				t.Errorf("echo SendTo: %v", err)
			}
		},
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	defer srv.Free()
	if err := srv.Listen(listenAddr); err != nil {
		t.Fatalf("listen: %v", err)
	}

	cli, err = New(scheme, lp, Callbacks{
		OnConnect: func(status int32) {
			if status != codes.OK {
				t.Errorf("connect status %d", status)
				lp.Stop()
				return
			}
			if err := cli.Send([]byte(msg)); err != nil {
				t.Errorf("send: %v", err)
			}
		},
		OnReceive: func(payload []byte, peer Token) {
			echoed = string(payload)
		},
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer cli.Free()
	if err := cli.Connect(connectAddr(srv)); err != nil {
		t.Fatalf("connect: %v", err)
	}

	failsafe := lp.After(3*time.Second, lp.Stop)
	lp.RunUntil(func() bool { return echoed != "" })
	failsafe.Stop()

	if echoed != msg {
		t.Fatalf("echoed %q, want %q", echoed, msg)
	}
}

func TestTCPEchoRoundTrip(t *testing.T) {
	runEcho(t, SchemeTCP, "tcp://127.0.0.1:0", func(srv Transport) string {
		return "tcp://" + srv.(*streamTransport).boundAddr()
	}, "ping over tcp")
}

func TestIPCEchoRoundTrip(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "echo.sock")
	runEcho(t, SchemeIPC, "ipc://"+sock, func(Transport) string {
		return "ipc://" + sock
	}, "ping over ipc")
}

func TestUDPEchoRoundTrip(t *testing.T) {
	runEcho(t, SchemeUDP, "udp://127.0.0.1:0", func(srv Transport) string {
		return "udp://" + srv.(*udpTransport).boundAddr()
	}, "ping over udp")
}

func TestInprocEchoRoundTrip(t *testing.T) {
	runEcho(t, SchemeInproc, "inproc://echo-test", func(Transport) string {
		return "inproc://echo-test"
	}, "ping over inproc")
}

// A frame written to the socket in two arbitrary chunks must surface as a
// single receive.
func TestTCPSplitFrameReassembly(t *testing.T) {
	lp := loop.New()
	var gotLen int

	srv, err := New(SchemeTCP, lp, Callbacks{
		OnReceive: func(payload []byte, peer Token) {
			gotLen = len(payload)
		},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer srv.Free()
	if err := srv.Listen("tcp://127.0.0.1:0"); err != nil {
		t.Fatalf("listen: %v", err)
	}

	payload := make([]byte, 2044)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	frame, _ := EncodeFrame(payload)

	conn, err := net.Dial("tcp", srv.(*streamTransport).boundAddr())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	go func() {
		conn.Write(frame[:1000])
		time.Sleep(20 * time.Millisecond)
		conn.Write(frame[1000:])
	}()

	failsafe := lp.After(3*time.Second, lp.Stop)
	lp.RunUntil(func() bool { return gotLen != 0 })
	failsafe.Stop()

	if gotLen != 2044 {
		t.Fatalf("received %d bytes, want one 2044-byte payload", gotLen)
	}
}

// A zero announced length is stream corruption: the peer is reset and
// OnError reports ErrIO.
func TestTCPFramingViolationResetsPeer(t *testing.T) {
	lp := loop.New()
	var gotCode int32

	srv, err := New(SchemeTCP, lp, Callbacks{
		OnError: func(code int32, msg string) {
			gotCode = code
		},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer srv.Free()
	if err := srv.Listen("tcp://127.0.0.1:0"); err != nil {
		t.Fatalf("listen: %v", err)
	}

	conn, err := net.Dial("tcp", srv.(*streamTransport).boundAddr())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.Write([]byte{0, 0, 0, 0, 0xFF})

	failsafe := lp.After(3*time.Second, lp.Stop)
	lp.RunUntil(func() bool { return gotCode != 0 })
	failsafe.Stop()

	if gotCode != codes.ErrIO {
		t.Fatalf("got code %d, want %d", gotCode, codes.ErrIO)
	}

	// reset peer must be gone from the table
	st := srv.(*streamTransport)
	deadline := time.Now().Add(time.Second)
	for {
		st.mu.Lock()
		n := len(st.peers)
		st.mu.Unlock()
		if n == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("peer still tracked after framing violation")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// A failed connect attempt reports OnConnect exactly once, whether the
// dial errors out first or the timeout timer fires first.
func TestConnectTimeoutSingleReport(t *testing.T) {
	lp := loop.New()
	var connects []int32

	c, err := New(SchemeTCP, lp, Callbacks{
		OnConnect: func(status int32) { connects = append(connects, status) },
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer c.Free()

	c.SetTimeout(30)
	// non-routable test address: the dial hangs until the timeout or fails
	// fast, never succeeds
	if err := c.Connect("tcp://10.255.255.1:9"); err != nil {
		t.Fatalf("connect: %v", err)
	}

	failsafe := lp.After(3*time.Second, lp.Stop)
	lp.RunUntil(func() bool { return len(connects) > 0 })
	failsafe.Stop()

	// a duplicate report would land within this window
	grace := lp.After(100*time.Millisecond, lp.Stop)
	lp.Run()
	grace.Stop()

	if len(connects) != 1 {
		t.Fatalf("OnConnect fired %d times: %v", len(connects), connects)
	}
	if connects[0] == codes.OK {
		t.Fatalf("connect to non-routable address reported success")
	}
}

func TestInprocDuplicateListen(t *testing.T) {
	lp := loop.New()
	a, _ := New(SchemeInproc, lp, Callbacks{})
	b, _ := New(SchemeInproc, lp, Callbacks{})
	defer a.Free()
	defer b.Free()

	if err := a.Listen("inproc://dup-test"); err != nil {
		t.Fatalf("first listen: %v", err)
	}
	if err := b.Listen("inproc://dup-test"); codes.CodeOf(err) != codes.ErrAlreadyExists {
		t.Fatalf("duplicate listen: got %v, want already-exists", err)
	}
}

func TestInprocConnectMissingEndpoint(t *testing.T) {
	lp := loop.New()
	c, _ := New(SchemeInproc, lp, Callbacks{})
	defer c.Free()
	if err := c.Connect("inproc://nobody-home"); codes.CodeOf(err) != codes.ErrNotConnected {
		t.Fatalf("got %v, want not-connected", err)
	}
}

func TestClientSendToInvalid(t *testing.T) {
	lp := loop.New()
	srv, _ := New(SchemeInproc, lp, Callbacks{})
	defer srv.Free()
	if err := srv.Listen("inproc://sendto-test"); err != nil {
		t.Fatalf("listen: %v", err)
	}
	cli, _ := New(SchemeInproc, lp, Callbacks{})
	defer cli.Free()
	if err := cli.Connect("inproc://sendto-test"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := cli.SendTo([]byte("x"), 1); codes.CodeOf(err) != codes.ErrInvalidParam {
		t.Fatalf("client SendTo: got %v, want invalid-param", err)
	}
}

func TestSendWithoutConnection(t *testing.T) {
	lp := loop.New()
	c, _ := New(SchemeTCP, lp, Callbacks{})
	defer c.Free()
	if err := c.Send([]byte("x")); codes.CodeOf(err) != codes.ErrNotConnected {
		t.Fatalf("got %v, want not-connected", err)
	}
}

func TestFreedTransportRejectsOps(t *testing.T) {
	lp := loop.New()
	c, _ := New(SchemeTCP, lp, Callbacks{})
	c.Free()
	if err := c.Listen("tcp://127.0.0.1:0"); codes.CodeOf(err) != codes.ErrInvalidParam {
		t.Fatalf("listen after free: got %v", err)
	}
	if err := c.Connect("tcp://127.0.0.1:1"); codes.CodeOf(err) != codes.ErrInvalidParam {
		t.Fatalf("connect after free: got %v", err)
	}
}

func TestUnknownScheme(t *testing.T) {
	lp := loop.New()
	if _, err := New("carrier-pigeon", lp, Callbacks{}); codes.CodeOf(err) != codes.ErrInvalidParam {
		t.Fatalf("got %v, want invalid-param", err)
	}
}
