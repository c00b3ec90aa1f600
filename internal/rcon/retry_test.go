package rcon

import (
	"testing"
	"time"
)

func newTestController(cfg RetryConfig) (*RetryController, *time.Time) {
	c := NewRetryController(cfg)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestRetryController_BackoffWindowBounds(t *testing.T) {
	c, nowRef := newTestController(RetryConfig{})
	now := *nowRef

	maxWindow := 30 * time.Minute
	for n := 1; n < DefaultRetryConfig().MaxConsecutiveFailures; n++ {
		next := c.calculateNextRetry(n)
		if !next.After(now) {
			t.Errorf("n=%d: nextRetry %v not after now", n, next)
		}
		if next.After(now.Add(maxWindow)) {
			t.Errorf("n=%d: nextRetry %v beyond max window", n, next)
		}
	}

	// First failures follow 30s * 2^(n-1) exactly until the cap.
	if got := c.calculateNextRetry(1); !got.Equal(now.Add(30 * time.Second)) {
		t.Errorf("n=1: %v, want now+30s", got)
	}
	if got := c.calculateNextRetry(3); !got.Equal(now.Add(2 * time.Minute)) {
		t.Errorf("n=3: %v, want now+120s", got)
	}

	// At or past the dormant threshold the window is fixed.
	dormant := c.calculateNextRetry(DefaultRetryConfig().MaxConsecutiveFailures)
	if !dormant.Equal(now.Add(60 * time.Minute)) {
		t.Errorf("dormant window = %v, want now+1h", dormant)
	}
}

func TestRetryController_WalkToDormant(t *testing.T) {
	c, nowRef := newTestController(RetryConfig{MaxConsecutiveFailures: 5})

	var last FailureState
	for range 5 {
		last = c.RecordFailure(1)
	}

	if last.ConsecutiveFailures != 5 {
		t.Errorf("ConsecutiveFailures = %d, want 5", last.ConsecutiveFailures)
	}
	if last.Status != StatusDormant {
		t.Errorf("Status = %s, want DORMANT", last.Status)
	}
	if want := nowRef.Add(3600 * time.Second); !last.NextRetryAt.Equal(want) {
		t.Errorf("NextRetryAt = %v, want %v", last.NextRetryAt, want)
	}

	c.ResetFailureState(1)
	if got := c.GetFailureState(1); got.Status != StatusHealthy || got.ConsecutiveFailures != 0 {
		t.Errorf("state after reset = %+v", got)
	}
}

func TestRetryController_ShouldRetryRespectsWindow(t *testing.T) {
	c, nowRef := newTestController(RetryConfig{})

	if !c.ShouldRetry(7) {
		t.Fatal("untracked server must be retryable")
	}

	c.RecordFailure(7)
	if c.ShouldRetry(7) {
		t.Error("ShouldRetry true immediately after failure")
	}

	*nowRef = nowRef.Add(29 * time.Second)
	if c.ShouldRetry(7) {
		t.Error("ShouldRetry true before window opens")
	}

	*nowRef = nowRef.Add(2 * time.Second)
	if !c.ShouldRetry(7) {
		t.Error("ShouldRetry false after window opened")
	}
}

func TestRetryController_HealthyIffUntracked(t *testing.T) {
	c, _ := newTestController(RetryConfig{})

	c.RecordFailure(1)
	c.RecordFailure(1)
	if got := c.GetFailureState(1); got.Status != StatusBackingOff || got.ConsecutiveFailures != 2 {
		t.Errorf("state = %+v", got)
	}
	if got := c.GetFailureState(1); got.NextRetryAt.IsZero() {
		t.Error("non-healthy state must carry NextRetryAt")
	}

	c.ResetFailureState(1)
	// Resetting an unknown server is a no-op.
	c.ResetFailureState(999)
	if got := c.Stats().TotalServersInFailureState; got != 0 {
		t.Errorf("tracked after reset = %d, want 0", got)
	}
}

func TestRetryController_Stats(t *testing.T) {
	c, _ := newTestController(RetryConfig{MaxConsecutiveFailures: 2})

	c.RecordFailure(1) // backing off
	c.RecordFailure(2) // backing off
	c.RecordFailure(2) // dormant

	st := c.Stats()
	if st.TotalServersInFailureState != 2 {
		t.Errorf("Total = %d, want 2", st.TotalServersInFailureState)
	}
	if st.BackingOffServers != 1 || st.DormantServers != 1 {
		t.Errorf("stats = %+v", st)
	}
	if st.BackingOffServers+st.DormantServers != st.TotalServersInFailureState {
		t.Error("backingOff + dormant must equal total")
	}
}
