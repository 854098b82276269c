package codegen

import (
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// SuffixSource yields process-unique suffixes for the exhausted-slot fallback.
// Implementations must never return the same value twice within a process.
type SuffixSource interface {
	Suffix() (string, error)
}

// CounterSuffix combines a monotonic counter with the creation timestamp.
// The zero value is not usable; construct with NewCounterSuffix.
type CounterSuffix struct {
	now     func() time.Time
	counter atomic.Uint64
}

// NewCounterSuffix returns a CounterSuffix clocked by now (time.Now when nil).
func NewCounterSuffix(now func() time.Time) *CounterSuffix {
	if now == nil {
		now = time.Now
	}
	return &CounterSuffix{now: now}
}

// Suffix returns "<unix-micro hex><counter hex>", uppercased.
func (c *CounterSuffix) Suffix() (string, error) {
	n := c.counter.Add(1)
	ts := c.now().UTC().UnixMicro()
	return strings.ToUpper(strconv.FormatInt(ts, 16) + strconv.FormatUint(n, 16)), nil
}

// UUIDSuffix draws a random v4 UUID per call.
type UUIDSuffix struct{}

// Suffix returns the UUID hex without dashes, uppercased.
func (UUIDSuffix) Suffix() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")), nil
}

// SuffixSourceByName maps a config value to a SuffixSource ("counter" or "uuid").
func SuffixSourceByName(name string) SuffixSource {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "uuid":
		return UUIDSuffix{}
	default:
		return NewCounterSuffix(nil)
	}
}
