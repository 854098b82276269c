// Package audit is the append-only log of share link redemption attempts.
//
// Every terminal Resolve decision (allowed, gone, forbidden) produces exactly
// one AccessAttempt. Rows are never updated or deleted. A write failure is
// returned to the caller as errkind.ErrStorageUnavailable and never dropped.
package audit

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"invtrack/cmd/errkind"
	"invtrack/cmd/internal/metrics"
	"invtrack/cmd/inventory/ids"
)

const (
	// DefaultLimit is used when a list call passes limit <= 0.
	DefaultLimit = 50
	// MaxLimit caps list calls.
	MaxLimit = 500

	maxUserAgentLen = 512
	maxEmailLen     = 320

	defaultStoreTimeout = 5 * time.Second
)

// Outcome is the terminal decision for one redemption attempt.
type Outcome string

const (
	OutcomeAllowed   Outcome = "allowed"
	OutcomeGone      Outcome = "gone"
	OutcomeForbidden Outcome = "forbidden"
)

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeAllowed, OutcomeGone, OutcomeForbidden:
		return true
	default:
		return false
	}
}

// AccessAttempt is one audit row.
type AccessAttempt struct {
	ID            string    `json:"id"`
	ShareLinkID   string    `json:"share_link_id"`
	SuppliedEmail string    `json:"supplied_email,omitempty"`
	ClientIP      string    `json:"client_ip,omitempty"`
	UserAgent     string    `json:"user_agent,omitempty"`
	Success       bool      `json:"success"`
	Outcome       Outcome   `json:"outcome"`
	CreatedAt     time.Time `json:"created_at"`
}

// RecordInput describes one attempt to record.
type RecordInput struct {
	ShareLinkID string
	Email       string
	ClientIP    string
	UserAgent   string
	Outcome     Outcome
}

// Store is the persistence boundary for audit rows.
//
// List calls return newest first.
type Store interface {
	Append(ctx context.Context, a AccessAttempt) error
	ListRecent(ctx context.Context, limit int) ([]AccessAttempt, error)
	ListByLink(ctx context.Context, linkID string, limit int) ([]AccessAttempt, error)
	CountByLink(ctx context.Context, linkID string) (int, error)
}

// Publisher receives every recorded attempt (live operator feed).
type Publisher interface {
	PublishAccess(a AccessAttempt)
}

// Log records and lists access attempts.
type Log struct {
	store        Store
	pub          Publisher
	log          *slog.Logger
	metrics      *metrics.Metrics
	now          func() time.Time
	storeTimeout time.Duration
}

// Option configures a Log.
type Option func(*Log)

// WithPublisher sets the live feed publisher.
func WithPublisher(p Publisher) Option {
	return func(l *Log) { l.pub = p }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(l *Log) {
		if log != nil {
			l.log = log
		}
	}
}

// WithMetrics attaches collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Log) { l.metrics = m }
}

// WithClock sets the clock used for CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		if now != nil {
			l.now = now
		}
	}
}

// WithStoreTimeout bounds every store call (<= 0 keeps the default).
func WithStoreTimeout(d time.Duration) Option {
	return func(l *Log) {
		if d > 0 {
			l.storeTimeout = d
		}
	}
}

// NewLog constructs a Log over store.
func NewLog(store Store, opts ...Option) (*Log, error) {
	if store == nil {
		return nil, errkind.Invalid("audit.NewLog", "nil store")
	}
	l := &Log{
		store:        store,
		log:          slog.Default(),
		now:          time.Now,
		storeTimeout: defaultStoreTimeout,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(l)
	}
	return l, nil
}

// Record appends one attempt. Success is derived from the outcome.
func (l *Log) Record(ctx context.Context, in RecordInput) (AccessAttempt, error) {
	const op = "audit.Record"

	if strings.TrimSpace(in.ShareLinkID) == "" {
		return AccessAttempt{}, errkind.Invalid(op, "share link id required")
	}
	if !in.Outcome.Valid() {
		return AccessAttempt{}, errkind.Invalid(op, "unknown outcome")
	}

	now := l.now().UTC()
	id, err := ids.NewULID(now)
	if err != nil {
		return AccessAttempt{}, errkind.Storage(op, err)
	}
	a := AccessAttempt{
		ID:            id,
		ShareLinkID:   strings.TrimSpace(in.ShareLinkID),
		SuppliedEmail: truncate(strings.ToLower(strings.TrimSpace(in.Email)), maxEmailLen),
		ClientIP:      strings.TrimSpace(in.ClientIP),
		UserAgent:     truncate(strings.TrimSpace(in.UserAgent), maxUserAgentLen),
		Success:       in.Outcome == OutcomeAllowed,
		Outcome:       in.Outcome,
		CreatedAt:     now,
	}

	sctx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	err = l.store.Append(sctx, a)
	cancel()
	if err != nil {
		l.metrics.AuditWrite(false)
		l.log.Error("audit.insert.fail",
			"share_link_id", a.ShareLinkID,
			"outcome", a.Outcome,
			"err", err,
		)
		return AccessAttempt{}, errkind.StorageError{Op: op, Err: err}
	}
	l.metrics.AuditWrite(true)

	if l.pub != nil {
		l.pub.PublishAccess(a)
	}
	return a, nil
}

// ListRecent returns the newest attempts across all links.
func (l *Log) ListRecent(ctx context.Context, limit int) ([]AccessAttempt, error) {
	sctx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	defer cancel()
	out, err := l.store.ListRecent(sctx, ClampLimit(limit))
	if err != nil {
		return nil, errkind.Storage("audit.ListRecent", err)
	}
	return out, nil
}

// ListByLink returns the newest attempts for one link.
func (l *Log) ListByLink(ctx context.Context, linkID string, limit int) ([]AccessAttempt, error) {
	sctx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	defer cancel()
	out, err := l.store.ListByLink(sctx, strings.TrimSpace(linkID), ClampLimit(limit))
	if err != nil {
		return nil, errkind.Storage("audit.ListByLink", err)
	}
	return out, nil
}

// CountByLink returns how many attempts were recorded for one link.
func (l *Log) CountByLink(ctx context.Context, linkID string) (int, error) {
	sctx, cancel := context.WithTimeout(ctx, l.storeTimeout)
	defer cancel()
	n, err := l.store.CountByLink(sctx, strings.TrimSpace(linkID))
	if err != nil {
		return 0, errkind.Storage("audit.CountByLink", err)
	}
	return n, nil
}

// ClampLimit applies DefaultLimit and MaxLimit.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// Cut on a rune boundary.
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
