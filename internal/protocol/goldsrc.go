package protocol

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/udisondev/rconherd/internal/model"
)

// GoldSource datagram framing.
var (
	singlePrefix = []byte{0xFF, 0xFF, 0xFF, 0xFF}
	splitPrefix  = []byte{0xFE, 0xFF, 0xFF, 0xFF}
)

const (
	// legacyResponseType is the one-byte type GoldSource puts after the
	// 0xFF prefix on rcon replies.
	legacyResponseType = 0x6C

	challengeRequest = "challenge rcon"

	goldsrcReadBuf = 8192
)

// GoldsrcConn speaks the GoldSource UDP RCON protocol. Every exchange is
// preceded by a cached challenge token; the protocol is half duplex, so
// callers must not issue concurrent commands (the rcon service enforces
// this with its per-server queue).
type GoldsrcConn struct {
	addr     string
	password string

	connectTimeout time.Duration
	commandTimeout time.Duration

	mu        sync.Mutex
	conn      net.Conn
	challenge string
}

// GoldsrcOption tweaks a GoldsrcConn.
type GoldsrcOption func(*GoldsrcConn)

// WithGoldsrcTimeouts overrides the connect and command timeouts.
func WithGoldsrcTimeouts(connect, command time.Duration) GoldsrcOption {
	return func(c *GoldsrcConn) {
		if connect > 0 {
			c.connectTimeout = connect
		}
		if command > 0 {
			c.commandTimeout = command
		}
	}
}

// NewGoldsrcConn creates a disconnected GoldSource RCON client.
func NewGoldsrcConn(addr, password string, opts ...GoldsrcOption) *GoldsrcConn {
	c := &GoldsrcConn{
		addr:           addr,
		password:       password,
		connectTimeout: 5 * time.Second,
		commandTimeout: 3 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Engine returns the engine family this connection targets.
func (c *GoldsrcConn) Engine() model.GameEngine { return model.EngineGoldSrc }

// Connected reports whether the socket is open and a challenge is cached.
func (c *GoldsrcConn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && c.challenge != ""
}

// Connect opens the UDP socket and fetches the initial challenge. There
// is no handshake beyond that: a wrong password only surfaces on the
// first command.
func (c *GoldsrcConn) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && c.challenge != "" {
		return nil
	}

	if c.conn == nil {
		dialer := net.Dialer{Timeout: c.connectTimeout}
		conn, err := dialer.DialContext(ctx, "udp", c.addr)
		if err != nil {
			return Wrap(KindConnectionFailed, err, "dialing %s", c.addr)
		}
		c.conn = conn
	}

	challenge, err := c.fetchChallengeLocked()
	if err != nil {
		c.conn.Close()
		c.conn = nil
		return err
	}
	c.challenge = challenge
	return nil
}

// Execute sends one rcon command and returns the reassembled reply body.
// The command is trimmed; the wire line is exactly
// "rcon <challenge> <password> <command>\n" with no escaping.
func (c *GoldsrcConn) Execute(ctx context.Context, command string) (string, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return "", Errf(KindCommandFailed, "empty command")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return "", Errf(KindNotConnected, "no socket to %s", c.addr)
	}
	if c.challenge == "" {
		return "", Errf(KindNotConnected, "no challenge for %s", c.addr)
	}

	line := fmt.Sprintf("rcon %s %s %s\n", c.challenge, c.password, command)
	deadline := time.Now().Add(c.commandTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	body, err := c.exchangeLocked(line, deadline)
	if err != nil {
		return "", err
	}

	if strings.Contains(body, "Bad rcon_password") {
		return "", Errf(KindAuthFailed, "server %s rejected rcon password", c.addr)
	}
	return body, nil
}

// Close releases the socket and forgets the challenge; a later Connect
// must fetch a fresh one.
func (c *GoldsrcConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.challenge = ""
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// fetchChallengeLocked runs the "challenge rcon" exchange.
func (c *GoldsrcConn) fetchChallengeLocked() (string, error) {
	deadline := time.Now().Add(c.connectTimeout)
	body, err := c.exchangeLocked(challengeRequest+"\n", deadline)
	if err != nil {
		return "", err
	}

	// "challenge rcon <digits>"
	fields := strings.Fields(body)
	if len(fields) < 3 || fields[0] != "challenge" || fields[1] != "rcon" {
		return "", Errf(KindInvalidResponse, "unexpected challenge reply %q", body)
	}
	return fields[2], nil
}

// exchangeLocked sends one datagram and collects the reply, reassembling
// split responses. The deadline covers the whole fragment train, so a
// stalled train surfaces as TIMEOUT and the partial buffer is dropped.
func (c *GoldsrcConn) exchangeLocked(payload string, deadline time.Time) (string, error) {
	datagram := make([]byte, 0, len(singlePrefix)+len(payload))
	datagram = append(datagram, singlePrefix...)
	datagram = append(datagram, payload...)

	c.conn.SetDeadline(deadline)
	defer c.conn.SetDeadline(time.Time{})

	if _, err := c.conn.Write(datagram); err != nil {
		if isTimeout(err) {
			return "", Wrap(KindTimeout, err, "sending to %s", c.addr)
		}
		return "", Wrap(KindConnectionFailed, err, "sending to %s", c.addr)
	}

	fragments := map[int][]byte{}
	total := 0
	buf := make([]byte, goldsrcReadBuf)

	for {
		n, err := c.conn.Read(buf)
		if err != nil {
			if isTimeout(err) {
				return "", Wrap(KindTimeout, err, "awaiting reply from %s", c.addr)
			}
			return "", Wrap(KindConnectionFailed, err, "reading from %s", c.addr)
		}
		pkt := buf[:n]

		switch {
		case bytes.HasPrefix(pkt, singlePrefix):
			return trimReplyBody(pkt[len(singlePrefix):]), nil

		case bytes.HasPrefix(pkt, splitPrefix):
			// [0xFE FF FF FF][request id int32 LE][seq byte][payload]
			if len(pkt) < 9 {
				return "", Errf(KindInvalidResponse, "split fragment too short (%d bytes)", len(pkt))
			}
			_ = binary.LittleEndian.Uint32(pkt[4:8]) // request id, unused: one exchange in flight
			seq := pkt[8]
			index := int(seq >> 4)
			count := int(seq & 0x0F)
			if count == 0 || index >= count {
				return "", Errf(KindInvalidResponse, "split fragment seq %d/%d out of range", index, count)
			}
			fragments[index] = append([]byte(nil), pkt[9:]...)
			total = count

			if len(fragments) == total {
				var assembled []byte
				for i := range total {
					part, ok := fragments[i]
					if !ok {
						return "", Errf(KindInvalidResponse, "missing fragment %d of %d", i, total)
					}
					assembled = append(assembled, part...)
				}
				// The assembled stream carries the single-packet header.
				assembled = bytes.TrimPrefix(assembled, singlePrefix)
				return trimReplyBody(assembled), nil
			}

		default:
			return "", Errf(KindInvalidResponse, "unrecognized datagram prefix % X", pkt[:min(4, len(pkt))])
		}
	}
}

// trimReplyBody strips the optional legacy type byte and trailing NULs.
func trimReplyBody(body []byte) string {
	if len(body) > 0 && body[0] == legacyResponseType {
		body = body[1:]
	}
	return strings.TrimRight(string(body), "\x00\n ")
}
