// Package rcon owns RCON connections to the monitored fleet: one
// transport per server, strict per-server command serialization, bounded
// connect retries and the failure state machine that gates them.
package rcon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/udisondev/rconherd/internal/model"
	"github.com/udisondev/rconherd/internal/protocol"
)

// CredentialsSource produces decrypted RCON credentials on demand.
// Returning (nil, nil) means the server has no usable credentials.
type CredentialsSource interface {
	GetRconCredentials(ctx context.Context, serverID int) (*model.RconCredentials, error)
}

// ErrServiceClosed is returned for operations after Close.
var ErrServiceClosed = errors.New("rcon service closed")

// ServiceConfig tunes the connection manager.
type ServiceConfig struct {
	ConnectionTimeout time.Duration
	CommandTimeout    time.Duration
	MaxRetries        int
}

// DefaultServiceConfig returns the production defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		ConnectionTimeout: 5 * time.Second,
		CommandTimeout:    3 * time.Second,
		MaxRetries:        3,
	}
}

// Service manages RCON connections across the fleet. All operations for
// one server funnel through that server's FIFO worker, so at most one
// command is on the wire per server: mandatory for GoldSource's
// half-duplex UDP and enforced uniformly for Source. A failed command
// does not poison the queue: later submissions still reach the
// transport in order.
type Service struct {
	creds CredentialsSource
	cfg   ServiceConfig

	// dial builds the transport for freshly resolved credentials.
	// Replaceable in tests.
	dial func(model.RconCredentials) protocol.Conn

	// connect retry pacing; shrunk in tests.
	retryInitialDelay time.Duration
	retryMaxDelay     time.Duration

	// onAuthenticated, when set, runs after every fresh successful
	// authentication, on the worker goroutine.
	onAuthenticated func(serverID int)

	mu      sync.Mutex
	workers map[int]*serverWorker
	// conns tracks live (authenticated, not yet failed) connections.
	// Kept separate from workers: dropping a connection must not lose
	// commands already queued behind it.
	conns  map[int]protocol.Conn
	closed bool
}

// NewService creates the connection manager. Zero config fields fall
// back to defaults.
func NewService(creds CredentialsSource, cfg ServiceConfig) *Service {
	def := DefaultServiceConfig()
	if cfg.ConnectionTimeout <= 0 {
		cfg.ConnectionTimeout = def.ConnectionTimeout
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = def.CommandTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	s := &Service{
		creds:             creds,
		cfg:               cfg,
		workers:           make(map[int]*serverWorker),
		conns:             make(map[int]protocol.Conn),
		retryInitialDelay: time.Second,
		retryMaxDelay:     5 * time.Second,
	}
	s.dial = func(c model.RconCredentials) protocol.Conn {
		return protocol.New(c, cfg.ConnectionTimeout, cfg.CommandTimeout)
	}
	return s
}

// NotifyAuthenticated registers a callback fired after each fresh
// successful authentication. Set before the first Connect.
func (s *Service) NotifyAuthenticated(fn func(serverID int)) {
	s.onAuthenticated = fn
}

type opKind int

const (
	opConnect opKind = iota
	opExecute
	opDisconnect
)

type request struct {
	op      opKind
	ctx     context.Context
	command string
	reply   chan response
}

type response struct {
	body string
	err  error
}

// serverWorker owns the transport of one server and drains its FIFO
// queue.
type serverWorker struct {
	serverID int
	requests chan request
	quit     chan struct{}

	// conn is touched only by the worker goroutine.
	conn protocol.Conn
}

// Connect establishes an authenticated connection, retrying with bounded
// exponential backoff. A no-op when the server is already connected.
func (s *Service) Connect(ctx context.Context, serverID int) error {
	_, err := s.submit(ctx, serverID, request{op: opConnect, ctx: ctx})
	return err
}

// Execute runs one command on an established connection and returns the
// reply body. Calls for the same server complete in submission order.
func (s *Service) Execute(ctx context.Context, serverID int, command string) (string, error) {
	return s.submit(ctx, serverID, request{op: opExecute, ctx: ctx, command: command})
}

// IsConnected reports whether a live connection exists and the transport
// agrees.
func (s *Service) IsConnected(serverID int) bool {
	s.mu.Lock()
	conn, ok := s.conns[serverID]
	s.mu.Unlock()
	return ok && conn.Connected()
}

// Disconnect tears down one server's connection after the commands
// queued ahead of it drain. Safe for unknown servers and safe to repeat.
func (s *Service) Disconnect(ctx context.Context, serverID int) error {
	s.mu.Lock()
	_, known := s.workers[serverID]
	s.mu.Unlock()
	if !known {
		return nil
	}
	_, err := s.submit(ctx, serverID, request{op: opDisconnect, ctx: ctx})
	return err
}

// DisconnectAll drains every known connection concurrently.
func (s *Service) DisconnectAll(ctx context.Context) error {
	s.mu.Lock()
	ids := make([]int, 0, len(s.workers))
	for id := range s.workers {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	var g errgroup.Group
	for _, id := range ids {
		g.Go(func() error {
			return s.Disconnect(ctx, id)
		})
	}
	return g.Wait()
}

// Close disconnects everything and stops the workers.
func (s *Service) Close(ctx context.Context) error {
	err := s.DisconnectAll(ctx)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return err
	}
	s.closed = true
	workers := make([]*serverWorker, 0, len(s.workers))
	for _, w := range s.workers {
		workers = append(workers, w)
	}
	s.mu.Unlock()

	for _, w := range workers {
		close(w.quit)
	}
	return err
}

// submit enqueues one request on the server's FIFO worker and waits for
// its reply.
func (s *Service) submit(ctx context.Context, serverID int, req request) (string, error) {
	w, err := s.worker(serverID)
	if err != nil {
		return "", err
	}

	req.reply = make(chan response, 1)
	select {
	case w.requests <- req:
	case <-w.quit:
		return "", ErrServiceClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}

	select {
	case res := <-req.reply:
		return res.body, res.err
	case <-w.quit:
		return "", ErrServiceClosed
	case <-ctx.Done():
		// The worker still completes the request; the buffered reply
		// channel keeps it from blocking on our abandonment.
		return "", ctx.Err()
	}
}

func (s *Service) worker(serverID int) (*serverWorker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrServiceClosed
	}
	w, ok := s.workers[serverID]
	if !ok {
		w = &serverWorker{
			serverID: serverID,
			requests: make(chan request, 64),
			quit:     make(chan struct{}),
		}
		s.workers[serverID] = w
		go s.runWorker(w)
	}
	return w, nil
}

func (s *Service) runWorker(w *serverWorker) {
	for {
		select {
		case <-w.quit:
			if w.conn != nil {
				w.conn.Close()
				w.conn = nil
			}
			return
		case req := <-w.requests:
			var res response
			switch req.op {
			case opConnect:
				res.err = s.handleConnect(req.ctx, w)
			case opExecute:
				res.body, res.err = s.handleExecute(req.ctx, w, req.command)
			case opDisconnect:
				res.err = s.handleDisconnect(w)
			}
			req.reply <- res
		}
	}
}

// handleConnect resolves fresh credentials and authenticates with
// bounded retries: delay before attempt n+1 is min(1s * 2^(n-1), 5s).
// AUTH_FAILED is terminal: the password will not change mid-run.
func (s *Service) handleConnect(ctx context.Context, w *serverWorker) error {
	if w.conn != nil && w.conn.Connected() {
		// Re-arm the live map: the entry may have been dropped by a
		// command failure that left the transport itself intact.
		s.mu.Lock()
		s.conns[w.serverID] = w.conn
		s.mu.Unlock()
		return nil
	}

	creds, err := s.creds.GetRconCredentials(ctx, w.serverID)
	if err != nil {
		return protocol.Wrap(protocol.KindConnectionFailed, err, "resolving credentials for server %d", w.serverID)
	}
	if creds == nil {
		return protocol.Errf(protocol.KindInvalidCredentials, "server %d has no rcon credentials", w.serverID)
	}
	if err := creds.Validate(); err != nil {
		return protocol.Wrap(protocol.KindInvalidCredentials, err, "server %d", w.serverID)
	}

	if w.conn != nil {
		w.conn.Close()
	}
	conn := s.dial(*creds)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.retryInitialDelay
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	bo.MaxInterval = s.retryMaxDelay
	bo.MaxElapsedTime = 0

	attempts := 0
	operation := func() error {
		attempts++
		err := conn.Connect(ctx)
		if protocol.IsKind(err, protocol.KindAuthFailed) {
			return backoff.Permanent(err)
		}
		return err
	}

	err = backoff.Retry(operation,
		backoff.WithContext(backoff.WithMaxRetries(bo, uint64(s.cfg.MaxRetries-1)), ctx))
	if err != nil {
		if protocol.IsKind(err, protocol.KindAuthFailed) {
			return err
		}
		return protocol.Wrap(protocol.KindConnectionFailed, err,
			"server %d unreachable after %d attempts", w.serverID, attempts)
	}

	w.conn = conn
	s.mu.Lock()
	s.conns[w.serverID] = conn
	s.mu.Unlock()
	slog.Info("rcon connected", "server", w.serverID, "engine", conn.Engine(), "attempts", attempts)
	if s.onAuthenticated != nil {
		s.onAuthenticated(w.serverID)
	}
	return nil
}

// handleExecute forwards one command to the transport. On failure the
// connection is dropped from the live map and the error re-raised as
// COMMAND_FAILED unless it is already RCON-typed; queued commands behind
// it still run.
func (s *Service) handleExecute(ctx context.Context, w *serverWorker, command string) (string, error) {
	if w.conn == nil {
		return "", protocol.Errf(protocol.KindNotConnected, "server %d has no live connection", w.serverID)
	}

	body, err := w.conn.Execute(ctx, command)
	if err != nil {
		s.dropConn(w.serverID)
		if protocol.KindOf(err) == "" {
			err = protocol.Wrap(protocol.KindCommandFailed, err, "command on server %d", w.serverID)
		}
		return "", err
	}
	return body, nil
}

func (s *Service) handleDisconnect(w *serverWorker) error {
	s.dropConn(w.serverID)
	if w.conn == nil {
		return nil
	}
	err := w.conn.Close()
	w.conn = nil
	if err != nil {
		return fmt.Errorf("closing connection to server %d: %w", w.serverID, err)
	}
	return nil
}

func (s *Service) dropConn(serverID int) {
	s.mu.Lock()
	delete(s.conns, serverID)
	s.mu.Unlock()
}
