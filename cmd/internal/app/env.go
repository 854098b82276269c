package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// envOverlay copies INVTRACK_* variables onto config fields. Unset or blank
// variables leave the field alone; malformed values are collected and
// reported together by err, so a typo fails startup instead of silently
// running on the default.
type envOverlay struct {
	lookup func(string) (string, bool)
	errs   []error
}

func newEnvOverlay() *envOverlay {
	return &envOverlay{lookup: os.LookupEnv}
}

func (e *envOverlay) raw(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (e *envOverlay) fail(key, v, want string) {
	e.errs = append(e.errs, fmt.Errorf("%s=%q: want %s", key, v, want))
}

func (e *envOverlay) str(key string, dst *string) {
	if v, ok := e.raw(key); ok {
		*dst = v
	}
}

func (e *envOverlay) boolean(key string, dst *bool) {
	v, ok := e.raw(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, v, "a boolean")
		return
	}
	*dst = b
}

// integer accepts values >= min.
func (e *envOverlay) integer(key string, dst *int, min int) {
	v, ok := e.raw(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < min {
		e.fail(key, v, fmt.Sprintf("an integer >= %d", min))
		return
	}
	*dst = n
}

func (e *envOverlay) conns(key string, dst *int32) {
	v, ok := e.raw(key)
	if !ok {
		return
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil || n < 0 {
		e.fail(key, v, "a connection count >= 0")
		return
	}
	*dst = int32(n) // #nosec G115 -- ParseInt bitSize 32 bounds n.
}

func (e *envOverlay) duration(key string, dst *time.Duration) {
	v, ok := e.raw(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		e.fail(key, v, "a positive duration such as 30s")
		return
	}
	*dst = d
}

// list reads a comma-separated value; blank items are dropped.
func (e *envOverlay) list(key string, dst *[]string) {
	v, ok := e.raw(key)
	if !ok {
		return
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}

func (e *envOverlay) err() error {
	if len(e.errs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid environment: %w", errors.Join(e.errs...))
}
