package protocol

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/udisondev/rconherd/internal/model"
)

// fakeSourceServer accepts one connection and answers auth and exec
// packets like a Source engine would.
type fakeSourceServer struct {
	ln       net.Listener
	password string
	// replies maps command body -> response body
	replies map[string]string
	// rejectAuth makes the server answer every auth with id -1
	rejectAuth bool
	// received collects exec command bodies in arrival order
	received chan string
}

func newFakeSourceServer(t *testing.T, password string) *fakeSourceServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &fakeSourceServer{
		ln:       ln,
		password: password,
		replies:  map[string]string{},
		received: make(chan string, 16),
	}
	t.Cleanup(func() { ln.Close() })
	go s.serve()
	return s
}

func (s *fakeSourceServer) addr() string { return s.ln.Addr().String() }

func (s *fakeSourceServer) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *fakeSourceServer) handle(conn net.Conn) {
	defer conn.Close()
	for {
		p, err := readPacket(conn)
		if err != nil {
			return
		}
		switch p.Type {
		case packetTypeAuth:
			id := p.ID
			if s.rejectAuth || p.Body != s.password {
				id = -1
			}
			conn.Write(encodePacket(sourcePacket{ID: p.ID, Type: packetTypeResponseValue}))
			conn.Write(encodePacket(sourcePacket{ID: id, Type: packetTypeAuthResponse}))
		case packetTypeExecCommand:
			s.received <- p.Body
			reply := s.replies[p.Body]
			conn.Write(encodePacket(sourcePacket{ID: p.ID, Type: packetTypeResponseValue, Body: reply}))
		}
	}
}

func TestSourceConn_AuthSuccess(t *testing.T) {
	srv := newFakeSourceServer(t, "pw")
	srv.replies["status"] = "hostname: test\n"

	c := NewSourceConn(srv.addr(), "pw", model.EngineSource,
		WithSourceTimeouts(time.Second, time.Second))
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	if !c.Connected() {
		t.Fatal("Connected() = false after successful auth")
	}

	out, err := c.Execute(context.Background(), "status")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "hostname: test\n" {
		t.Errorf("Execute = %q", out)
	}
	if got := <-srv.received; got != "status" {
		t.Errorf("server saw %q", got)
	}
}

func TestSourceConn_AuthFailure(t *testing.T) {
	srv := newFakeSourceServer(t, "pw")
	srv.rejectAuth = true

	c := NewSourceConn(srv.addr(), "wrong", model.EngineSource,
		WithSourceTimeouts(time.Second, time.Second))
	err := c.Connect(context.Background())
	if !IsKind(err, KindAuthFailed) {
		t.Fatalf("Connect err = %v, want AUTH_FAILED", err)
	}
	if c.Connected() {
		t.Error("Connected() = true after rejected auth")
	}
}

func TestSourceConn_ExecuteWritesExactFrame(t *testing.T) {
	// S1: the exec packet body must be "status" followed by the two NUL
	// terminators, with both counted in the size field.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	raw := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		// auth
		p, _ := readPacket(conn)
		conn.Write(encodePacket(sourcePacket{ID: p.ID, Type: packetTypeAuthResponse}))
		// capture the exec frame verbatim
		buf := make([]byte, 256)
		n, _ := conn.Read(buf)
		raw <- buf[:n]
		p2, _ := readPacket(bytes.NewReader(buf[:n]))
		conn.Write(encodePacket(sourcePacket{ID: p2.ID, Type: packetTypeResponseValue, Body: "ok"}))
	}()

	c := NewSourceConn(ln.Addr().String(), "pw", model.EngineSource,
		WithSourceTimeouts(time.Second, time.Second))
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()
	if _, err := c.Execute(context.Background(), "status"); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	frame := <-raw
	if !bytes.HasSuffix(frame, []byte("status\x00\x00")) {
		t.Errorf("frame = % X, want status body with two trailing NULs", frame)
	}
	wantSize := 4 + 4 + len("status") + 2
	if got := int(frame[0]) | int(frame[1])<<8 | int(frame[2])<<16 | int(frame[3])<<24; got != wantSize {
		t.Errorf("size = %d, want %d", got, wantSize)
	}
}

func TestSourceConn_EmptyCommandFailsFast(t *testing.T) {
	c := NewSourceConn("127.0.0.1:1", "pw", model.EngineSource)
	for _, cmd := range []string{"", "   ", "\t\n"} {
		if _, err := c.Execute(context.Background(), cmd); !IsKind(err, KindCommandFailed) {
			t.Errorf("Execute(%q) err = %v, want COMMAND_FAILED", cmd, err)
		}
	}
}

func TestSourceConn_ExecuteWithoutConnect(t *testing.T) {
	c := NewSourceConn("127.0.0.1:1", "pw", model.EngineSource)
	if _, err := c.Execute(context.Background(), "status"); !IsKind(err, KindNotConnected) {
		t.Errorf("err = %v, want NOT_CONNECTED", err)
	}
}

func TestSourceConn_CommandTimeoutKeepsConnection(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		p, _ := readPacket(conn)
		conn.Write(encodePacket(sourcePacket{ID: p.ID, Type: packetTypeAuthResponse}))
		// swallow the first exec silently, answer the second
		p2, _ := readPacket(conn)
		_ = p2
		p3, err := readPacket(conn)
		if err == nil {
			conn.Write(encodePacket(sourcePacket{ID: p3.ID, Type: packetTypeResponseValue, Body: "late ok"}))
		}
	}()

	c := NewSourceConn(ln.Addr().String(), "pw", model.EngineSource,
		WithSourceTimeouts(time.Second, 100*time.Millisecond))
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	if _, err := c.Execute(context.Background(), "slow"); !IsKind(err, KindTimeout) {
		t.Fatalf("err = %v, want TIMEOUT", err)
	}
	if !c.Connected() {
		t.Fatal("timeout must not drop the TCP connection")
	}

	out, err := c.Execute(context.Background(), "fast")
	if err != nil {
		t.Fatalf("Execute after timeout: %v", err)
	}
	if out != "late ok" {
		t.Errorf("Execute = %q", out)
	}
}
