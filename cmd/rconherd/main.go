package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/udisondev/rconherd/internal/config"
	"github.com/udisondev/rconherd/internal/crypto"
	"github.com/udisondev/rconherd/internal/db"
	"github.com/udisondev/rconherd/internal/events"
	"github.com/udisondev/rconherd/internal/model"
	"github.com/udisondev/rconherd/internal/rcon"
	"github.com/udisondev/rconherd/internal/scheduler"
	"github.com/udisondev/rconherd/internal/session"
)

const ConfigPath = "config/rconherd.yaml"

// monitorScheduleID is the built-in status poll registered when the
// config carries no monitoring schedule of its own.
const monitorScheduleID = "builtin-monitoring"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(config.Path(ConfigPath))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	})))
	slog.Info("rconherd starting", "log_level", cfg.LogLevel)

	if !cfg.Rcon.Enabled {
		slog.Info("rcon disabled, nothing to do")
		return nil
	}

	database, err := db.New(ctx, cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer database.Close()
	slog.Info("database connected")

	if err := db.RunMigrations(ctx, cfg.Database.DSN()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("database migrations applied")

	vault, err := crypto.NewVault([]byte(rconKey(cfg)))
	if err != nil {
		return fmt.Errorf("initializing credential vault: %w", err)
	}

	pool := database.Pool()
	serverRepo := db.NewServerRepository(pool)
	credsRepo := db.NewCredentialsRepository(pool, vault)
	configRepo := db.NewServerConfigRepository(pool)
	loadRepo := db.NewLoadRepository(pool)
	playerRepo := db.NewPlayerRepository(pool)

	if cfg.Rcon.MaxConnectionsPerServer > 1 {
		slog.Warn("max_connections_per_server above 1 is not supported, commands stay serialized",
			"configured", cfg.Rcon.MaxConnectionsPerServer)
	}
	rconSvc := rcon.NewService(credsRepo, rcon.ServiceConfig{
		ConnectionTimeout: cfg.Rcon.ConnectionTimeout,
		CommandTimeout:    cfg.Rcon.CommandTimeout,
		MaxRetries:        cfg.Rcon.MaxRetries,
	})
	retryCtrl := rcon.NewRetryController(rcon.RetryConfig{
		MaxConsecutiveFailures: cfg.Rcon.MaxConsecutiveFailures,
		BackoffMultiplier:      cfg.Rcon.BackoffMultiplier,
		MaxBackoffMinutes:      cfg.Rcon.MaxBackoffMinutes,
		DormantRetryMinutes:    cfg.Rcon.DormantRetryMinutes,
	})
	resolver := rcon.NewResolver(configRepo)

	registry := session.NewRegistry()
	syncSvc := session.NewSync(registry, playerRepo)

	bus := events.NewBus()
	rconSvc.NotifyAuthenticated(func(serverID int) {
		bus.Publish(events.TopicServerAuthenticated, events.ServerAuthenticated{ServerID: serverID})
	})

	monitor := scheduler.NewMonitoringExecutor(
		rconSvc, retryCtrl, serverRepo,
		statusSink{creds: credsRepo, loads: loadRepo}, syncSvc,
	)
	announcer := scheduler.NewMessageExecutor(rconSvc, resolver)

	sched := scheduler.New(scheduler.Config{
		Enabled:                cfg.Scheduler.Enabled,
		DefaultTimeout:         cfg.Scheduler.DefaultTimeout,
		DefaultRetryOnFailure:  cfg.Scheduler.DefaultRetryOnFailure,
		DefaultMaxRetries:      cfg.Scheduler.DefaultMaxRetries,
		HistoryRetentionHours:  cfg.Scheduler.HistoryRetentionHours,
		MaxConcurrentPerServer: cfg.Scheduler.MaxConcurrentPerServer,
		Schedules:              cfg.Scheduler.Schedules,
	}, serverRepo, bus, monitor, announcer)

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}

	if !hasMonitoringSchedule(cfg.Scheduler.Schedules) {
		if err := sched.RegisterSchedule(builtinMonitoring(cfg.Rcon.StatusInterval)); err != nil {
			slog.Warn("registering builtin monitoring schedule", "err", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	// Graceful stop: drain the scheduler first so no executor races the
	// closing connections.
	sched.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := rconSvc.Close(shutdownCtx); err != nil {
		slog.Warn("closing rcon service", "err", err)
	}
	registry.Clear()

	slog.Info("rconherd stopped")
	return nil
}

// statusSink fans a successful status capture into the server row and
// the load history.
type statusSink struct {
	creds *db.CredentialsRepository
	loads *db.LoadRepository
}

func (s statusSink) UpdateServerStatus(ctx context.Context, serverID int, st model.ServerStatus) error {
	return s.creds.UpdateServerStatus(ctx, serverID, st)
}

func (s statusSink) InsertLoad(ctx context.Context, load model.ServerLoad) error {
	return s.loads.Insert(ctx, load)
}

func hasMonitoringSchedule(schedules []model.ScheduledCommand) bool {
	for _, s := range schedules {
		if s.Enabled && s.Command.Type == model.CommandServerMonitoring {
			return true
		}
	}
	return false
}

func builtinMonitoring(interval time.Duration) model.ScheduledCommand {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return model.ScheduledCommand{
		ID:             monitorScheduleID,
		Name:           "Status poll",
		CronExpression: fmt.Sprintf("@every %s", interval),
		Command:        model.CommandSpec{Type: model.CommandServerMonitoring},
		Enabled:        true,
	}
}

func rconKey(cfg config.Config) string {
	if k := os.Getenv("RCONHERD_RCON_KEY"); k != "" {
		return k
	}
	return cfg.Rcon.RconKey
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
