package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/udisondev/rconherd/internal/model"
	"github.com/udisondev/rconherd/internal/status"
)

// MonitoringExecutor polls servers with `status`, captures the parsed
// snapshot into the status sink and keeps the session registry in step
// with the live player table. Failures feed the retry controller instead
// of propagating out of the schedule callback.
type MonitoringExecutor struct {
	rcon    RconService
	retry   RetryGate
	servers ServerStore
	sink    StatusSink
	syncer  SessionSyncer
}

// NewMonitoringExecutor wires the monitoring executor.
func NewMonitoringExecutor(rconSvc RconService, retry RetryGate, servers ServerStore, sink StatusSink, syncer SessionSyncer) *MonitoringExecutor {
	return &MonitoringExecutor{
		rcon:    rconSvc,
		retry:   retry,
		servers: servers,
		sink:    sink,
		syncer:  syncer,
	}
}

// Type implements Executor.
func (e *MonitoringExecutor) Type() string { return model.CommandServerMonitoring }

// Validate implements Executor. Monitoring needs no parameters.
func (e *MonitoringExecutor) Validate(s model.ScheduledCommand) bool {
	return s.Command.Type == model.CommandServerMonitoring
}

// Execute polls one server. Servers inside a backoff window are skipped
// without error.
func (e *MonitoringExecutor) Execute(ctx context.Context, ec Context) (Outcome, error) {
	serverID := ec.Server.ServerID

	if !e.retry.ShouldRetry(serverID) {
		state := e.retry.GetFailureState(serverID)
		slog.Debug("skipping server in backoff",
			"server", serverID, "status", state.Status, "next_retry", state.NextRetryAt)
		return Outcome{}, nil
	}

	if err := e.monitorServer(ctx, ec.Server); err != nil {
		state := e.retry.RecordFailure(serverID)
		slog.Warn("server monitoring failed",
			"server", serverID,
			"engine", model.ClassifyEngine(ec.Server.Game),
			"failures", state.ConsecutiveFailures,
			"next_retry", state.NextRetryAt,
			"err", err)
		if derr := e.rcon.Disconnect(ctx, serverID); derr != nil {
			slog.Debug("disconnect after failed monitor", "server", serverID, "err", derr)
		}
		return Outcome{ServersProcessed: 1}, err
	}

	e.retry.ResetFailureState(serverID)
	return Outcome{ServersProcessed: 1, CommandsSent: 1}, nil
}

// monitorServer runs the poll pipeline: ensure connection, issue status,
// parse, persist, sync sessions.
func (e *MonitoringExecutor) monitorServer(ctx context.Context, server model.ServerInfo) error {
	serverID := server.ServerID

	if !e.rcon.IsConnected(serverID) {
		if err := e.rcon.Connect(ctx, serverID); err != nil {
			return fmt.Errorf("connecting: %w", err)
		}
	}

	raw, err := e.rcon.Execute(ctx, serverID, "status")
	if err != nil {
		return fmt.Errorf("status query: %w", err)
	}

	st := status.Parse(raw)
	e.captureStatus(ctx, serverID, st)
	return nil
}

// captureStatus persists a parsed snapshot and reconciles sessions.
// Sink failures are logged, not fatal: the poll itself succeeded.
func (e *MonitoringExecutor) captureStatus(ctx context.Context, serverID int, st model.ServerStatus) {
	if err := e.sink.UpdateServerStatus(ctx, serverID, st); err != nil {
		slog.Warn("status write-through failed", "server", serverID, "err", err)
	}

	load := model.ServerLoad{
		ServerID:      serverID,
		Timestamp:     st.Timestamp.Unix(),
		ActivePlayers: st.ActivePlayers(),
		MinPlayers:    st.ActivePlayers(),
		MaxPlayers:    st.MaxPlayers,
		Map:           st.Map,
		Uptime:        fmt.Sprintf("%d", st.Uptime),
		FPS:           fmt.Sprintf("%g", st.FPS),
	}
	if err := e.sink.InsertLoad(ctx, load); err != nil {
		slog.Warn("load history insert failed", "server", serverID, "err", err)
	}

	synced := e.syncer.SynchronizeServerSessions(ctx, serverID, st.PlayerList)
	slog.Debug("server monitored",
		"server", serverID, "map", st.Map,
		"players", st.Players, "sessions", synced)
}

// ConnectToServerImmediately is the event-bridge entry: connect a just
// authenticated server outside the cron calendar. Sessions are only
// synced when this call actually established the connection.
func (e *MonitoringExecutor) ConnectToServerImmediately(ctx context.Context, serverID int) error {
	hasCreds, err := e.servers.HasRconCredentials(ctx, serverID)
	if err != nil {
		return fmt.Errorf("checking rcon credentials for server %d: %w", serverID, err)
	}
	if !hasCreds {
		return nil
	}
	if !e.retry.ShouldRetry(serverID) {
		return nil
	}
	if e.rcon.IsConnected(serverID) {
		return nil
	}

	server, err := e.servers.FindByID(ctx, serverID)
	if err != nil {
		return fmt.Errorf("loading server %d: %w", serverID, err)
	}
	if server == nil {
		return ErrServerNotAvailable
	}

	if err := e.monitorServer(ctx, *server); err != nil {
		state := e.retry.RecordFailure(serverID)
		slog.Warn("immediate connect failed",
			"server", serverID,
			"engine", model.ClassifyEngine(server.Game),
			"failures", state.ConsecutiveFailures,
			"next_retry", state.NextRetryAt,
			"err", err)
		if derr := e.rcon.Disconnect(ctx, serverID); derr != nil {
			slog.Debug("disconnect after failed immediate connect", "server", serverID, "err", derr)
		}
		return err
	}

	e.retry.ResetFailureState(serverID)
	return nil
}
