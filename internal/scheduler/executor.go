// Package scheduler dispatches administrator-defined cron jobs across
// the fleet: server filtering, per-server concurrency caps, retries and
// execution history.
package scheduler

import (
	"context"

	"github.com/udisondev/rconherd/internal/model"
	"github.com/udisondev/rconherd/internal/rcon"
)

// Context is everything an executor needs for one (server, schedule)
// run.
type Context struct {
	Server   model.ServerInfo
	Schedule model.ScheduledCommand
}

// Outcome reports what one execution touched.
type Outcome struct {
	ServersProcessed int
	CommandsSent     int
}

// Executor handles one command type. The scheduler dispatches by the
// schedule's command type string.
type Executor interface {
	// Execute runs the command against one server.
	Execute(ctx context.Context, ec Context) (Outcome, error)
	// Validate vets a schedule at registration time.
	Validate(s model.ScheduledCommand) bool
	// Type returns the command type string this executor owns.
	Type() string
}

// ServerStore is the server-record repository the scheduler reads.
type ServerStore interface {
	FindActiveServersWithRcon(ctx context.Context) ([]model.ServerInfo, error)
	FindByID(ctx context.Context, serverID int) (*model.ServerInfo, error)
	HasRconCredentials(ctx context.Context, serverID int) (bool, error)
}

// RconService is the command surface executors drive.
type RconService interface {
	Connect(ctx context.Context, serverID int) error
	Execute(ctx context.Context, serverID int, command string) (string, error)
	IsConnected(serverID int) bool
	Disconnect(ctx context.Context, serverID int) error
}

// CommandResolver maps a logical command kind to the concrete command
// of one server's mod.
type CommandResolver interface {
	GetCommand(ctx context.Context, serverID int, game, kind string) (string, error)
}

// RetryGate is the failure controller consulted before touching a
// server.
type RetryGate interface {
	ShouldRetry(serverID int) bool
	RecordFailure(serverID int) rcon.FailureState
	ResetFailureState(serverID int)
	GetFailureState(serverID int) rcon.FailureState
}

// StatusSink receives successful status captures: the write-through
// snapshot and the load-history row.
type StatusSink interface {
	UpdateServerStatus(ctx context.Context, serverID int, st model.ServerStatus) error
	InsertLoad(ctx context.Context, load model.ServerLoad) error
}

// SessionSyncer reconciles the in-memory session registry against a
// parsed player list.
type SessionSyncer interface {
	SynchronizeServerSessions(ctx context.Context, serverID int, players []model.PlayerEntry) int
}
