package rcon

import (
	"log/slog"
	"math"
	"sync"
	"time"
)

// RetryStatus is the health classification of one server.
type RetryStatus string

const (
	StatusHealthy    RetryStatus = "HEALTHY"
	StatusBackingOff RetryStatus = "BACKING_OFF"
	StatusDormant    RetryStatus = "DORMANT"
)

// retryBaseDelay is the first backoff window.
const retryBaseDelay = 30 * time.Second

// RetryConfig tunes the failure state machine.
type RetryConfig struct {
	MaxConsecutiveFailures int
	BackoffMultiplier      float64
	MaxBackoffMinutes      int
	DormantRetryMinutes    int
}

// DefaultRetryConfig returns the production defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxConsecutiveFailures: 10,
		BackoffMultiplier:      2,
		MaxBackoffMinutes:      30,
		DormantRetryMinutes:    60,
	}
}

// FailureState is the tracked health of one server. A server absent from
// the controller is HEALTHY with zero failures.
type FailureState struct {
	ServerID            int
	ConsecutiveFailures int
	LastFailureAt       time.Time
	NextRetryAt         time.Time
	Status              RetryStatus
}

// RetryStats is a point-in-time view over all tracked servers.
type RetryStats struct {
	TotalServersInFailureState int
	HealthyServers             int
	BackingOffServers          int
	DormantServers             int
}

// RetryController isolates failing servers with exponential backoff so a
// dead target cannot eat scheduler capacity. HEALTHY servers are not
// tracked at all; crossing MaxConsecutiveFailures parks the server in
// DORMANT with a long fixed cooldown.
type RetryController struct {
	cfg RetryConfig

	mu     sync.Mutex
	states map[int]*FailureState

	now func() time.Time
}

// NewRetryController creates a controller; zero config fields fall back
// to defaults.
func NewRetryController(cfg RetryConfig) *RetryController {
	def := DefaultRetryConfig()
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = def.MaxConsecutiveFailures
	}
	if cfg.BackoffMultiplier <= 0 {
		cfg.BackoffMultiplier = def.BackoffMultiplier
	}
	if cfg.MaxBackoffMinutes <= 0 {
		cfg.MaxBackoffMinutes = def.MaxBackoffMinutes
	}
	if cfg.DormantRetryMinutes <= 0 {
		cfg.DormantRetryMinutes = def.DormantRetryMinutes
	}
	return &RetryController{
		cfg:    cfg,
		states: make(map[int]*FailureState),
		now:    time.Now,
	}
}

// RecordFailure bumps the failure count, recomputes the retry window and
// returns the new state.
func (c *RetryController) RecordFailure(serverID int) FailureState {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.states[serverID]
	if !ok {
		s = &FailureState{ServerID: serverID, Status: StatusHealthy}
		c.states[serverID] = s
	}

	prev := s.Status
	s.ConsecutiveFailures++
	s.LastFailureAt = c.now()
	s.NextRetryAt = c.calculateNextRetry(s.ConsecutiveFailures)
	s.Status = c.determineRetryStatus(s.ConsecutiveFailures)

	if s.Status != prev {
		slog.Warn("server retry status changed",
			"server", serverID,
			"from", prev,
			"to", s.Status,
			"failures", s.ConsecutiveFailures,
			"next_retry", s.NextRetryAt)
	}
	return *s
}

// GetFailureState returns the tracked state, or a HEALTHY zero state for
// unknown servers.
func (c *RetryController) GetFailureState(serverID int) FailureState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.states[serverID]; ok {
		return *s
	}
	return FailureState{ServerID: serverID, Status: StatusHealthy}
}

// ShouldRetry reports whether a connection attempt is allowed now:
// HEALTHY servers always, failing ones once their retry window opened.
func (c *RetryController) ShouldRetry(serverID int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.states[serverID]
	if !ok || s.Status == StatusHealthy {
		return true
	}
	return !s.NextRetryAt.IsZero() && !c.now().Before(s.NextRetryAt)
}

// ResetFailureState forgets a server after a successful exchange.
func (c *RetryController) ResetFailureState(serverID int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.states[serverID]
	if !ok {
		return
	}
	delete(c.states, serverID)
	if s.ConsecutiveFailures > 0 {
		slog.Info("server recovered", "server", serverID, "after_failures", s.ConsecutiveFailures)
	}
}

// Stats summarizes tracked servers. Healthy servers are never tracked,
// so BackingOff + Dormant always equals Total.
func (c *RetryController) Stats() RetryStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := RetryStats{TotalServersInFailureState: len(c.states)}
	for _, s := range c.states {
		switch s.Status {
		case StatusBackingOff:
			st.BackingOffServers++
		case StatusDormant:
			st.DormantServers++
		case StatusHealthy:
			st.HealthyServers++
		}
	}
	return st
}

// calculateNextRetry computes the moment the next attempt is allowed
// after the n-th consecutive failure.
func (c *RetryController) calculateNextRetry(n int) time.Time {
	now := c.now()
	if n >= c.cfg.MaxConsecutiveFailures {
		return now.Add(time.Duration(c.cfg.DormantRetryMinutes) * time.Minute)
	}
	delay := time.Duration(float64(retryBaseDelay) * math.Pow(c.cfg.BackoffMultiplier, float64(n-1)))
	if maxDelay := time.Duration(c.cfg.MaxBackoffMinutes) * time.Minute; delay > maxDelay {
		delay = maxDelay
	}
	return now.Add(delay)
}

func (c *RetryController) determineRetryStatus(n int) RetryStatus {
	switch {
	case n == 0:
		return StatusHealthy
	case n < c.cfg.MaxConsecutiveFailures:
		return StatusBackingOff
	default:
		return StatusDormant
	}
}
