package api

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// defaultThrottleKeys bounds how many client keys failureThrottle tracks.
const defaultThrottleKeys = 10000

// failureThrottle counts failed redemptions per client key in memory.
// A zero limit disables it. At most maxKeys keys are tracked.
type failureThrottle struct {
	limit   int
	window  time.Duration
	maxKeys int

	mu       sync.Mutex
	failures map[string][]time.Time
}

func newFailureThrottle(limit int, window time.Duration) *failureThrottle {
	return &failureThrottle{
		limit:    limit,
		window:   window,
		maxKeys:  defaultThrottleKeys,
		failures: make(map[string][]time.Time),
	}
}

// Check reports whether key is currently blocked.
func (t *failureThrottle) Check(key string, now time.Time) (bool, time.Duration) {
	if t == nil || t.limit <= 0 || key == "" {
		return false, 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	kept := prune(t.failures[key], now, t.window)
	if len(kept) == 0 {
		delete(t.failures, key)
		return false, 0
	}
	t.failures[key] = kept
	return evaluateWindowThrottle(now, kept, t.limit, t.window)
}

// Fail records one failure for key.
func (t *failureThrottle) Fail(key string, now time.Time) {
	if t == nil || t.limit <= 0 || key == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	kept, tracked := t.failures[key]
	if !tracked && len(t.failures) >= t.maxKeys {
		t.sweep(now)
	}

	// Newest first, as evaluateWindowThrottle expects.
	kept = prune(kept, now, t.window)
	t.failures[key] = append([]time.Time{now}, kept...)
}

// sweep drops keys with no failure left in the window. If every key is still
// live, the one with the oldest latest failure goes. Callers hold mu.
func (t *failureThrottle) sweep(now time.Time) {
	cut := now.Add(-t.window)
	var (
		stalest   string
		stalestAt time.Time
	)
	for k, fs := range t.failures {
		if len(fs) == 0 || !fs[0].After(cut) {
			delete(t.failures, k)
			continue
		}
		if stalest == "" || fs[0].Before(stalestAt) {
			stalest, stalestAt = k, fs[0]
		}
	}
	if len(t.failures) >= t.maxKeys && stalest != "" {
		delete(t.failures, stalest)
	}
}

// size reports the number of tracked keys.
func (t *failureThrottle) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.failures)
}

func prune(failures []time.Time, now time.Time, window time.Duration) []time.Time {
	cut := now.Add(-window)
	out := failures[:0]
	for _, f := range failures {
		if f.After(cut) {
			out = append(out, f)
		}
	}
	return out
}

// evaluateWindowThrottle blocks once limit failures fall inside window. failures
// must be newest first. The retry hint is when the oldest counted failure
// leaves the window.
func evaluateWindowThrottle(now time.Time, failures []time.Time, limit int, window time.Duration) (bool, time.Duration) {
	if limit <= 0 || window <= 0 {
		return false, 0
	}
	cut := now.Add(-window)
	var inWindow []time.Time
	for _, f := range failures {
		if f.After(cut) {
			inWindow = append(inWindow, f)
		}
	}
	if len(inWindow) < limit {
		return false, 0
	}
	oldest := inWindow[limit-1]
	return true, oldest.Add(window).Sub(now)
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		secs := int64(retryAfter / time.Second)
		if retryAfter%time.Second != 0 {
			secs++
		}
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}
	writeError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts")
}
