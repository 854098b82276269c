package api

import (
	"fmt"
	"net/http/httptest"
	"testing"
	"time"
)

func TestEvaluateWindowThrottle(t *testing.T) {
	now := time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)

	failures := []time.Time{
		now.Add(-1 * time.Minute),
		now.Add(-2 * time.Minute),
		now.Add(-6 * time.Minute),
	}

	blocked, retry := evaluateWindowThrottle(now, failures, 2, 5*time.Minute)
	if !blocked {
		t.Fatalf("expected window throttle to block")
	}
	if retry != 3*time.Minute {
		t.Fatalf("expected retry=3m, got %v", retry)
	}

	blocked, retry = evaluateWindowThrottle(now, failures, 3, 5*time.Minute)
	if blocked {
		t.Fatalf("expected window throttle to allow")
	}
	if retry != 0 {
		t.Fatalf("expected retry=0, got %v", retry)
	}
}

func TestFailureThrottle_BlocksAndClears(t *testing.T) {
	now := time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)
	th := newFailureThrottle(3, time.Minute)

	for i := 0; i < 3; i++ {
		if blocked, _ := th.Check("198.51.100.1", now); blocked {
			t.Fatalf("blocked after %d failures", i)
		}
		th.Fail("198.51.100.1", now.Add(time.Duration(i)*time.Second))
	}

	blocked, retry := th.Check("198.51.100.1", now.Add(3*time.Second))
	if !blocked {
		t.Fatalf("expected block after 3 failures")
	}
	if retry != 57*time.Second {
		t.Fatalf("expected retry=57s, got %v", retry)
	}
	if blocked, _ := th.Check("203.0.113.9", now); blocked {
		t.Fatalf("other clients must not be blocked")
	}
	if blocked, _ := th.Check("198.51.100.1", now.Add(2*time.Minute)); blocked {
		t.Fatalf("expected block to clear after the window")
	}
}

func TestFailureThrottle_Disabled(t *testing.T) {
	th := newFailureThrottle(0, time.Minute)
	now := time.Now()
	for i := 0; i < 100; i++ {
		th.Fail("x", now)
	}
	if blocked, _ := th.Check("x", now); blocked {
		t.Fatalf("disabled throttle must never block")
	}
}

func TestWriteRateLimited_RoundsRetryAfterUp(t *testing.T) {
	rec := httptest.NewRecorder()
	writeRateLimited(rec, 1500*time.Millisecond)
	if rec.Code != 429 {
		t.Fatalf("status: got %d want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("Retry-After: got %q want 2", got)
	}
}

func TestFailureThrottle_BoundsTrackedKeys(t *testing.T) {
	now := time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)
	th := newFailureThrottle(3, time.Minute)
	th.maxKeys = 4

	// Expired keys are swept once the cap is reached.
	for i := 0; i < 4; i++ {
		th.Fail(fmt.Sprintf("198.51.100.%d", i), now)
	}
	later := now.Add(2 * time.Minute)
	th.Fail("203.0.113.1", later)
	if got := th.size(); got != 1 {
		t.Fatalf("tracked keys after sweep: got %d want 1", got)
	}

	// A spray of live keys never grows past the cap.
	for i := 0; i < 100; i++ {
		th.Fail(fmt.Sprintf("192.0.2.%d", i), later.Add(time.Duration(i)*time.Millisecond))
	}
	if got := th.size(); got > 4 {
		t.Fatalf("tracked keys: got %d want <= 4", got)
	}

	// The newest offender is still counted.
	for i := 0; i < 2; i++ {
		th.Fail("192.0.2.99", later.Add(time.Second))
	}
	if blocked, _ := th.Check("192.0.2.99", later.Add(time.Second)); !blocked {
		t.Fatalf("expected the newest key to keep its failures")
	}
}
