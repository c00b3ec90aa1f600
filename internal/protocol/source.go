package protocol

import (
	"context"
	"errors"
	"io"
	"math"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/udisondev/rconherd/internal/model"
)

// SourceConn speaks the Source engine TCP RCON protocol.
//
// Commands are expected to arrive one at a time (the rcon service
// serializes per server); Execute matches replies by request id and skips
// stale frames from earlier timed-out commands.
type SourceConn struct {
	addr     string
	password string
	engine   model.GameEngine

	connectTimeout time.Duration
	commandTimeout time.Duration

	mu        sync.Mutex
	conn      net.Conn
	nextID    int32
	connected bool
}

// SourceOption tweaks a SourceConn.
type SourceOption func(*SourceConn)

// WithSourceTimeouts overrides the connect and command timeouts.
func WithSourceTimeouts(connect, command time.Duration) SourceOption {
	return func(c *SourceConn) {
		if connect > 0 {
			c.connectTimeout = connect
		}
		if command > 0 {
			c.commandTimeout = command
		}
	}
}

// NewSourceConn creates a disconnected Source RCON client.
func NewSourceConn(addr, password string, engine model.GameEngine, opts ...SourceOption) *SourceConn {
	c := &SourceConn{
		addr:           addr,
		password:       password,
		engine:         engine,
		connectTimeout: 5 * time.Second,
		commandTimeout: 3 * time.Second,
		nextID:         1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Engine returns the engine family this connection targets.
func (c *SourceConn) Engine() model.GameEngine { return c.engine }

// Connected reports whether the connection authenticated and has not
// failed since.
func (c *SourceConn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected && c.conn != nil
}

// Connect dials the server and authenticates. Success requires an
// AUTH_RESPONSE whose id equals the request id; id -1 means the password
// was rejected.
func (c *SourceConn) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	dialer := net.Dialer{Timeout: c.connectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		if isTimeout(err) {
			return Wrap(KindTimeout, err, "connect to %s timed out", c.addr)
		}
		return Wrap(KindConnectionFailed, err, "connect to %s", c.addr)
	}

	authID := c.claimID()
	deadline := time.Now().Add(c.connectTimeout)
	conn.SetDeadline(deadline)

	if _, err := conn.Write(encodePacket(sourcePacket{ID: authID, Type: packetTypeAuth, Body: c.password})); err != nil {
		conn.Close()
		return Wrap(KindConnectionFailed, err, "sending auth to %s", c.addr)
	}

	// Servers may emit an empty RESPONSE_VALUE before the auth verdict.
	for {
		p, err := readPacket(conn)
		if err != nil {
			conn.Close()
			return classifyReadErr(err, "auth response from "+c.addr)
		}
		if p.Type == packetTypeResponseValue {
			continue
		}
		if p.Type != packetTypeAuthResponse {
			conn.Close()
			return Errf(KindInvalidResponse, "unexpected packet type %d during auth", p.Type)
		}
		if p.ID == -1 {
			conn.Close()
			return Errf(KindAuthFailed, "server %s rejected rcon password", c.addr)
		}
		if p.ID != authID {
			conn.Close()
			return Errf(KindInvalidResponse, "auth response id %d does not match request %d", p.ID, authID)
		}
		break
	}

	conn.SetDeadline(time.Time{})
	c.conn = conn
	c.connected = true
	return nil
}

// Execute sends one command and returns the body of the matching
// RESPONSE_VALUE.
//
// Replies larger than a single 4096-byte packet are truncated at the
// first frame: the status output we issue fits one packet on every
// engine we target, and the empty-RESPONSE_VALUE reassembly trick costs
// a round-trip per command.
func (c *SourceConn) Execute(ctx context.Context, command string) (string, error) {
	if strings.TrimSpace(command) == "" {
		return "", Errf(KindCommandFailed, "empty command")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected || c.conn == nil {
		return "", Errf(KindNotConnected, "no live connection to %s", c.addr)
	}

	id := c.claimID()
	deadline := time.Now().Add(c.commandTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	c.conn.SetDeadline(deadline)
	defer c.conn.SetDeadline(time.Time{})

	if _, err := c.conn.Write(encodePacket(sourcePacket{ID: id, Type: packetTypeExecCommand, Body: command})); err != nil {
		c.failLocked()
		return "", Wrap(KindConnectionFailed, err, "sending command to %s", c.addr)
	}

	for {
		p, err := readPacket(c.conn)
		if err != nil {
			if isTimeout(err) {
				// Deadline hit: the TCP stream itself is still intact.
				return "", Wrap(KindTimeout, err, "command %q timed out", command)
			}
			c.failLocked()
			return "", classifyReadErr(err, "command response from "+c.addr)
		}
		if p.Type != packetTypeResponseValue || p.ID != id {
			// Stale frame from an earlier timed-out command.
			continue
		}
		return p.Body, nil
	}
}

// Close tears down the connection. Safe to call repeatedly.
func (c *SourceConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// claimID hands out the next request id, wrapping inside [1, 2^31-1).
// Caller must hold mu.
func (c *SourceConn) claimID() int32 {
	id := c.nextID
	c.nextID++
	if c.nextID >= math.MaxInt32 {
		c.nextID = 1
	}
	return id
}

// failLocked drops the connection after an unrecoverable transport error.
func (c *SourceConn) failLocked() {
	c.connected = false
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func classifyReadErr(err error, what string) error {
	if KindOf(err) != "" {
		return err
	}
	if isTimeout(err) {
		return Wrap(KindTimeout, err, "%s timed out", what)
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return Wrap(KindConnectionFailed, err, "%s: connection closed", what)
	}
	return Wrap(KindConnectionFailed, err, "%s", what)
}

func isTimeout(err error) bool {
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
