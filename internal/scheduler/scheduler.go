package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/udisondev/rconherd/internal/events"
	"github.com/udisondev/rconherd/internal/model"
)

const (
	historyLimit      = 100
	retryBackoffUnit  = time.Second
	retryBackoffLimit = 10 * time.Second
)

// Config drives the scheduler. Zero values fall back to the defaults
// applied in New.
type Config struct {
	Enabled                bool                     `yaml:"enabled"`
	DefaultTimeout         time.Duration            `yaml:"default_timeout"`
	DefaultRetryOnFailure  bool                     `yaml:"default_retry_on_failure"`
	DefaultMaxRetries      int                      `yaml:"default_max_retries"`
	HistoryRetentionHours  int                      `yaml:"history_retention_hours"`
	MaxConcurrentPerServer int                      `yaml:"max_concurrent_per_server"`
	Schedules              []model.ScheduledCommand `yaml:"schedules"`
}

// job is one registered schedule plus its cron handle, counters and its
// own bounded ring of execution results.
type job struct {
	schedule model.ScheduledCommand
	entryID  cron.EntryID
	stats    model.ScheduleStats
	history  []model.ExecutionResult
}

// inflightKey identifies one running (server, schedule) pair.
type inflightKey struct {
	serverID   int
	scheduleID string
}

// Scheduler runs registered schedules on a UTC cron calendar, fanning
// each firing across the matching servers with a per-server concurrency
// cap.
type Scheduler struct {
	cfg       Config
	cron      *cron.Cron
	parser    cron.Parser
	executors map[string]Executor
	servers   ServerStore
	bus       *events.Bus

	mu       sync.Mutex
	jobs     map[string]*job
	inflight map[inflightKey]struct{}
	started  bool

	unsubscribe func()
	wg          sync.WaitGroup
	baseCtx     context.Context
	cancel      context.CancelFunc

	// overridable in tests to keep retries fast
	backoffUnit  time.Duration
	backoffLimit time.Duration
}

// New builds a stopped scheduler. Executors are keyed by their Type().
func New(cfg Config, servers ServerStore, bus *events.Bus, executors ...Executor) *Scheduler {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 30 * time.Second
	}
	if cfg.DefaultMaxRetries <= 0 {
		cfg.DefaultMaxRetries = 3
	}
	if cfg.MaxConcurrentPerServer <= 0 {
		cfg.MaxConcurrentPerServer = 1
	}
	if cfg.HistoryRetentionHours <= 0 {
		cfg.HistoryRetentionHours = 24
	}

	byType := make(map[string]Executor, len(executors))
	for _, e := range executors {
		byType[e.Type()] = e
	}

	parser := cron.NewParser(
		cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)

	return &Scheduler{
		cfg:          cfg,
		cron:         cron.New(cron.WithLocation(time.UTC), cron.WithParser(parser)),
		parser:       parser,
		executors:    byType,
		servers:      servers,
		bus:          bus,
		jobs:         make(map[string]*job),
		inflight:     make(map[inflightKey]struct{}),
		backoffUnit:  retryBackoffUnit,
		backoffLimit: retryBackoffLimit,
	}
}

// Start registers the configured schedules and begins firing them.
// Invalid schedules are skipped with a warning, never fatal. Calling
// Start on a running or disabled scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	if !s.cfg.Enabled {
		s.mu.Unlock()
		slog.Info("scheduler disabled")
		return nil
	}
	s.started = true
	s.baseCtx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Unlock()

	for _, sched := range s.cfg.Schedules {
		if !sched.Enabled {
			slog.Debug("schedule disabled", "schedule", sched.ID)
			continue
		}
		if err := s.RegisterSchedule(sched); err != nil {
			slog.Warn("skipping schedule", "schedule", sched.ID, "err", err)
		}
	}

	if s.bus != nil {
		s.unsubscribe = s.bus.Subscribe(events.TopicServerAuthenticated, s.onServerAuthenticated)
	}

	s.cron.Start()
	slog.Info("scheduler started", "schedules", len(s.Jobs()))
	return nil
}

// Stop cancels in-flight work, halts the cron calendar and clears all
// registrations. Safe to call on a stopped scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	unsub := s.unsubscribe
	s.unsubscribe = nil
	cancel := s.cancel
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	<-s.cron.Stop().Done()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()

	s.mu.Lock()
	s.jobs = make(map[string]*job)
	s.inflight = make(map[inflightKey]struct{})
	s.mu.Unlock()

	slog.Info("scheduler stopped")
}

// RegisterSchedule adds one schedule to the calendar. Duplicates,
// unparseable cron expressions and commands the executors reject are
// refused.
func (s *Scheduler) RegisterSchedule(sched model.ScheduledCommand) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[sched.ID]; exists {
		return fmt.Errorf("%w: %q", ErrScheduleAlreadyExists, sched.ID)
	}

	executor, ok := s.executors[sched.Command.Type]
	if !ok {
		return fmt.Errorf("%w: no executor for type %q", ErrInvalidCommand, sched.Command.Type)
	}
	if !executor.Validate(sched) {
		return fmt.Errorf("%w: executor %q rejected schedule %q", ErrInvalidCommand, sched.Command.Type, sched.ID)
	}
	if _, err := s.parser.Parse(sched.CronExpression); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidCronExpression, sched.CronExpression, err)
	}

	id := sched.ID
	entryID, err := s.cron.AddFunc(sched.CronExpression, func() {
		s.executeSchedule(id)
	})
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidCronExpression, sched.CronExpression, err)
	}

	s.jobs[sched.ID] = &job{schedule: sched, entryID: entryID}
	slog.Info("schedule registered",
		"schedule", sched.ID, "name", sched.Name,
		"cron", sched.CronExpression, "type", sched.Command.Type)
	return nil
}

// UnregisterSchedule removes a schedule from the calendar.
func (s *Scheduler) UnregisterSchedule(scheduleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[scheduleID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrScheduleNotFound, scheduleID)
	}
	s.cron.Remove(j.entryID)
	delete(s.jobs, scheduleID)
	slog.Info("schedule unregistered", "schedule", scheduleID)
	return nil
}

// ExecuteScheduleNow fires a registered schedule outside its calendar.
func (s *Scheduler) ExecuteScheduleNow(scheduleID string) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return ErrSchedulerNotStarted
	}
	_, ok := s.jobs[scheduleID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrScheduleNotFound, scheduleID)
	}

	s.executeSchedule(scheduleID)
	return nil
}

// Jobs returns a snapshot of the registered schedules.
func (s *Scheduler) Jobs() []model.ScheduledCommand {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.ScheduledCommand, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.schedule)
	}
	return out
}

// History returns a snapshot of one schedule's retained execution
// results, newest last.
func (s *Scheduler) History(scheduleID string) ([]model.ExecutionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[scheduleID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrScheduleNotFound, scheduleID)
	}
	out := make([]model.ExecutionResult, len(j.history))
	copy(out, j.history)
	return out, nil
}

// Stats returns the counters of one schedule.
func (s *Scheduler) Stats(scheduleID string) (model.ScheduleStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[scheduleID]
	if !ok {
		return model.ScheduleStats{}, fmt.Errorf("%w: %q", ErrScheduleNotFound, scheduleID)
	}
	return j.stats, nil
}

// executeSchedule fans one firing across the matching servers.
func (s *Scheduler) executeSchedule(scheduleID string) {
	s.mu.Lock()
	j, ok := s.jobs[scheduleID]
	if !ok || !s.started {
		s.mu.Unlock()
		return
	}
	sched := j.schedule
	ctx := s.baseCtx
	s.mu.Unlock()

	start := time.Now()
	servers, err := s.servers.FindActiveServersWithRcon(ctx)
	if err != nil {
		slog.Error("loading servers for schedule", "schedule", scheduleID, "err", err)
		return
	}

	var targets []model.ServerInfo
	for _, server := range servers {
		if !matchesFilter(server, sched.Filter) {
			continue
		}
		if !s.claimSlot(server.ServerID, scheduleID) {
			slog.Debug("server busy, skipping",
				"schedule", scheduleID, "server", server.ServerID)
			continue
		}
		targets = append(targets, server)
	}

	var wg sync.WaitGroup
	results := make([]model.ExecutionResult, len(targets))
	for i, server := range targets {
		wg.Go(func() {
			defer s.releaseSlot(server.ServerID, scheduleID)
			results[i] = s.executeOnServer(ctx, sched, server)
		})
	}
	wg.Wait()

	s.recordResults(scheduleID, start, results)
}

// executeOnServer runs one schedule against one server, retrying with
// exponential backoff when the schedule opts in.
func (s *Scheduler) executeOnServer(ctx context.Context, sched model.ScheduledCommand, server model.ServerInfo) model.ExecutionResult {
	executor := s.executors[sched.Command.Type]

	timeout := sched.Timeout
	if timeout <= 0 {
		timeout = s.cfg.DefaultTimeout
	}
	retryOnFailure := s.cfg.DefaultRetryOnFailure
	if sched.RetryOnFailure != nil {
		retryOnFailure = *sched.RetryOnFailure
	}
	maxRetries := s.cfg.DefaultMaxRetries
	if sched.MaxRetries != nil {
		maxRetries = *sched.MaxRetries
	}

	start := time.Now()
	result := model.ExecutionResult{
		ExecutionID: fmt.Sprintf("%s-%d-%d", sched.ID, server.ServerID, start.UnixMilli()),
		ScheduleID:  sched.ID,
		ServerID:    server.ServerID,
		StartTime:   start,
	}

	var outcome Outcome
	var err error
	for attempt := 1; ; attempt++ {
		runCtx, cancel := context.WithTimeout(ctx, timeout)
		outcome, err = executor.Execute(runCtx, Context{Server: server, Schedule: sched})
		cancel()
		if err == nil {
			break
		}
		result.Errors = append(result.Errors, err.Error())
		if !retryOnFailure || attempt > maxRetries || ctx.Err() != nil {
			break
		}

		delay := s.backoffUnit << (attempt - 1)
		if delay > s.backoffLimit {
			delay = s.backoffLimit
		}
		slog.Debug("retrying execution",
			"schedule", sched.ID, "server", server.ServerID,
			"attempt", attempt, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
		}
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	result.ServersProcessed = outcome.ServersProcessed
	result.CommandsSent = outcome.CommandsSent
	if err != nil {
		result.Status = model.ExecutionFailed
	} else {
		result.Status = model.ExecutionSuccess
	}
	return result
}

// claimSlot reserves a (server, schedule) execution slot. It refuses a
// duplicate of the same pair and enforces the per-server cap.
func (s *Scheduler) claimSlot(serverID int, scheduleID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := inflightKey{serverID: serverID, scheduleID: scheduleID}
	if _, running := s.inflight[key]; running {
		return false
	}

	count := 0
	for k := range s.inflight {
		if k.serverID == serverID {
			count++
		}
	}
	if count >= s.cfg.MaxConcurrentPerServer {
		return false
	}

	s.inflight[key] = struct{}{}
	return true
}

func (s *Scheduler) releaseSlot(serverID int, scheduleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, inflightKey{serverID: serverID, scheduleID: scheduleID})
}

// recordResults folds one firing's results into the job counters and the
// job's bounded history ring. Results older than the retention window
// are pruned on the way in.
func (s *Scheduler) recordResults(scheduleID string, start time.Time, results []model.ExecutionResult) {
	end := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[scheduleID]
	if !ok {
		// Unregistered while the firing ran; nowhere to record.
		return
	}

	j.stats.Total++
	failed := false
	for _, r := range results {
		if r.Status == model.ExecutionFailed {
			failed = true
			break
		}
	}
	if failed {
		j.stats.Failed++
	} else {
		j.stats.Successful++
	}
	j.stats.LastExecutionStart = start
	j.stats.LastExecutionEnd = end
	j.stats.LastExecutionDuration = end.Sub(start)

	j.history = append(j.history, results...)
	cutoff := end.Add(-time.Duration(s.cfg.HistoryRetentionHours) * time.Hour)
	for len(j.history) > 0 && j.history[0].EndTime.Before(cutoff) {
		j.history = j.history[1:]
	}
	if len(j.history) > historyLimit {
		j.history = j.history[len(j.history)-historyLimit:]
	}
}

// onServerAuthenticated bridges the event bus to an immediate connect
// through the monitoring executor, when one is registered.
func (s *Scheduler) onServerAuthenticated(payload any) {
	evt, ok := payload.(events.ServerAuthenticated)
	if !ok {
		return
	}

	monitor, ok := s.executors[model.CommandServerMonitoring].(*MonitoringExecutor)
	if !ok {
		return
	}

	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	ctx := s.baseCtx
	// Add under the lock: Stop flips started before it waits, so no
	// bridge goroutine can slip past wg.Wait.
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		if err := monitor.ConnectToServerImmediately(ctx, evt.ServerID); err != nil {
			slog.Warn("immediate connect after auth event failed",
				"server", evt.ServerID, "err", err)
		}
	}()
}
