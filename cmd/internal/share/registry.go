package share

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"invtrack/cmd/errkind"
	"invtrack/cmd/internal/audit"
	"invtrack/cmd/internal/metrics"
	"invtrack/cmd/inventory"
	"invtrack/cmd/inventory/ids"
	"invtrack/cmd/security/token"
)

const (
	// DefaultMaxTTL caps link lifetimes unless configured otherwise.
	DefaultMaxTTL = 90 * 24 * time.Hour

	defaultStoreTimeout = 5 * time.Second
	maxIssueAttempts    = 3
	maxListLimit        = 500
	defaultListLimit    = 50
)

// Assets is the read side of the asset store the registry needs.
// inventory.Store satisfies it.
type Assets interface {
	OwnerExists(ctx context.Context, owner string) (bool, error)
	FindAssetsByOwner(ctx context.Context, owner string) ([]inventory.Asset, error)
	ListOwners(ctx context.Context) ([]string, error)
}

// Auditor records redemption decisions. *audit.Log satisfies it.
type Auditor interface {
	Record(ctx context.Context, in audit.RecordInput) (audit.AccessAttempt, error)
}

// Registry issues, resolves and revokes share links.
type Registry struct {
	store        Store
	assets       Assets
	auditor      Auditor
	hasher       token.Hasher
	tokenBytes   int
	maxTTL       time.Duration
	storeTimeout time.Duration
	now          func() time.Time
	log          *slog.Logger
	metrics      *metrics.Metrics
}

// Option configures a Registry.
type Option func(*Registry) error

// WithHasher sets the token hasher (default: SHA-256).
func WithHasher(h token.Hasher) Option {
	return func(r *Registry) error {
		r.hasher = h
		return nil
	}
}

// WithTokenBytes sets token entropy in bytes (minimum token.MinBytes).
func WithTokenBytes(n int) Option {
	return func(r *Registry) error {
		if n < token.MinBytes {
			return errkind.Invalid("share.WithTokenBytes", "token bytes below minimum")
		}
		r.tokenBytes = n
		return nil
	}
}

// WithMaxTTL caps link lifetimes.
func WithMaxTTL(d time.Duration) Option {
	return func(r *Registry) error {
		if d <= 0 {
			return errkind.Invalid("share.WithMaxTTL", "max ttl must be positive")
		}
		r.maxTTL = d
		return nil
	}
}

// WithStoreTimeout bounds every collaborator call.
func WithStoreTimeout(d time.Duration) Option {
	return func(r *Registry) error {
		if d > 0 {
			r.storeTimeout = d
		}
		return nil
	}
}

// WithClock sets the clock.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) error {
		if now != nil {
			r.now = now
		}
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(r *Registry) error {
		if log != nil {
			r.log = log
		}
		return nil
	}
}

// WithMetrics attaches collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) error {
		r.metrics = m
		return nil
	}
}

// NewRegistry constructs a Registry.
func NewRegistry(store Store, assets Assets, auditor Auditor, opts ...Option) (*Registry, error) {
	const op = "share.NewRegistry"
	if store == nil || assets == nil || auditor == nil {
		return nil, errkind.Invalid(op, "store, assets and auditor are required")
	}
	r := &Registry{
		store:        store,
		assets:       assets,
		auditor:      auditor,
		tokenBytes:   token.DefaultBytes,
		maxTTL:       DefaultMaxTTL,
		storeTimeout: defaultStoreTimeout,
		now:          time.Now,
		log:          slog.Default(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// IssueInput describes the links to issue.
type IssueInput struct {
	Scope      Scope
	Targets    []string
	AccessMode AccessMode
	Emails     []string
	// TTL 0 means no expiry. Values above the configured maximum are clamped.
	TTL       time.Duration
	CreatedBy string
}

// Issue creates share links. Allow-list mode yields one link per distinct
// email; anyone mode yields exactly one link. Returned links carry the plain
// token.
func (r *Registry) Issue(ctx context.Context, in IssueInput) ([]Link, error) {
	const op = "share.Issue"

	targets, err := r.validateTargets(ctx, in.Scope, in.Targets)
	if err != nil {
		return nil, err
	}

	var emails []string
	switch in.AccessMode {
	case AccessAnyone:
	case AccessEmailAllowlist:
		if emails, err = normalizeEmails(op, in.Emails); err != nil {
			return nil, err
		}
		if len(emails) == 0 {
			return nil, errkind.Invalid(op, "email allow-list requires at least one email")
		}
	default:
		return nil, errkind.Invalid(op, "unknown access mode")
	}

	if in.TTL < 0 {
		return nil, errkind.Invalid(op, "ttl must not be negative")
	}
	createdBy := strings.TrimSpace(in.CreatedBy)
	if createdBy == "" {
		return nil, errkind.Invalid(op, "created by required")
	}

	now := r.now().UTC()
	var expiresAt *time.Time
	if in.TTL > 0 {
		ttl := min(in.TTL, r.maxTTL)
		t := now.Add(ttl)
		expiresAt = &t
	}

	// One recipient slot per link: "" for anyone mode.
	recipients := emails
	if in.AccessMode == AccessAnyone {
		recipients = []string{""}
	}

	var lastErr error
	for attempt := 1; attempt <= maxIssueAttempts; attempt++ {
		links, err := r.mint(now, in.Scope, targets, in.AccessMode, recipients, expiresAt, createdBy)
		if err != nil {
			return nil, err
		}

		sctx, cancel := context.WithTimeout(ctx, r.storeTimeout)
		err = r.store.CreateAll(sctx, links)
		cancel()
		if err == nil {
			r.metrics.ShareIssued(string(in.Scope), string(in.AccessMode), len(links))
			r.log.Info("share.issue.ok",
				"scope", in.Scope,
				"access_mode", in.AccessMode,
				"links", len(links),
				"created_by", createdBy,
			)
			return links, nil
		}
		if !errkind.IsConflict(err, "token_hash") {
			return nil, errkind.Storage(op, err)
		}
		lastErr = err
		r.log.Warn("share.issue.token_conflict", "attempt", attempt)
	}
	return nil, lastErr
}

func (r *Registry) mint(now time.Time, scope Scope, targets []string, mode AccessMode, recipients []string, expiresAt *time.Time, createdBy string) ([]Link, error) {
	const op = "share.Issue"

	links := make([]Link, 0, len(recipients))
	for _, email := range recipients {
		plain, err := token.NewOpaque(r.tokenBytes)
		if err != nil {
			return nil, errkind.Storage(op, err)
		}
		id, err := ids.NewULID(now)
		if err != nil {
			return nil, errkind.Storage(op, err)
		}
		l := Link{
			ID:         id,
			Token:      plain,
			TokenHash:  r.hasher.Hash(plain),
			Scope:      scope,
			Targets:    append([]string(nil), targets...),
			AccessMode: mode,
			CreatedBy:  createdBy,
			CreatedAt:  now,
		}
		if email != "" {
			l.AllowedEmails = []string{email}
		}
		if expiresAt != nil {
			t := *expiresAt
			l.ExpiresAt = &t
		}
		links = append(links, l)
	}
	return links, nil
}

func (r *Registry) validateTargets(ctx context.Context, scope Scope, raw []string) ([]string, error) {
	const op = "share.Issue"

	if scope == ScopeAll {
		return nil, nil
	}
	if scope != ScopeSingle && scope != ScopeMultiple {
		return nil, errkind.OpError{Op: op, Kind: errkind.ErrInvalidScope, Msg: "unknown scope"}
	}

	// Single is checked on the input as given: a repeated target is still
	// two targets.
	given := 0
	for _, t := range raw {
		if inventory.NormalizeOwner(t) != "" {
			given++
		}
	}
	if scope == ScopeSingle && given != 1 {
		return nil, errkind.OpError{Op: op, Kind: errkind.ErrInvalidScope, Msg: "single scope requires exactly one target"}
	}

	seen := make(map[string]bool, len(raw))
	targets := make([]string, 0, len(raw))
	for _, t := range raw {
		t = inventory.NormalizeOwner(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		targets = append(targets, t)
	}

	if scope == ScopeMultiple && len(targets) == 0 {
		return nil, errkind.OpError{Op: op, Kind: errkind.ErrInvalidScope, Msg: "multiple scope requires at least one target"}
	}

	for _, t := range targets {
		sctx, cancel := context.WithTimeout(ctx, r.storeTimeout)
		ok, err := r.assets.OwnerExists(sctx, t)
		cancel()
		if err != nil {
			return nil, errkind.Storage(op, err)
		}
		if !ok {
			return nil, errkind.OpError{Op: op, Kind: errkind.ErrInvalidScope, Msg: "unknown target: " + t}
		}
	}
	return targets, nil
}

// Revoke revokes the link identified by its plain token. Revoking twice is a
// no-op that keeps the first revocation time.
func (r *Registry) Revoke(ctx context.Context, tok string) (Link, error) {
	const op = "share.Revoke"

	tok = strings.TrimSpace(tok)
	if tok == "" {
		return Link{}, errkind.OpError{Op: op, Kind: errkind.ErrNotFound, Msg: "share link"}
	}
	sctx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	l, err := r.store.GetByTokenHash(sctx, r.hasher.Hash(tok))
	cancel()
	if err != nil {
		return Link{}, errkind.Storage(op, err)
	}
	return r.revoke(ctx, l.ID)
}

// RevokeByID revokes the link with id. Operators use it because plain tokens
// are not stored.
func (r *Registry) RevokeByID(ctx context.Context, id string) (Link, error) {
	return r.revoke(ctx, strings.TrimSpace(id))
}

func (r *Registry) revoke(ctx context.Context, id string) (Link, error) {
	const op = "share.Revoke"

	sctx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	l, changed, err := r.store.Revoke(sctx, id, r.now().UTC())
	cancel()
	if err != nil {
		return Link{}, errkind.Storage(op, err)
	}
	if changed {
		r.metrics.ShareRevoked()
		r.log.Info("share.revoke.ok", "id", l.ID)
	}
	return l, nil
}

// Get returns one link by id.
func (r *Registry) Get(ctx context.Context, id string) (Link, error) {
	sctx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	defer cancel()
	l, err := r.store.GetByID(sctx, strings.TrimSpace(id))
	if err != nil {
		return Link{}, errkind.Storage("share.Get", err)
	}
	return l, nil
}

// List returns links newest first (default 50, max 500).
func (r *Registry) List(ctx context.Context, limit int) ([]Link, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	limit = min(limit, maxListLimit)

	sctx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	defer cancel()
	out, err := r.store.List(sctx, limit)
	if err != nil {
		return nil, errkind.Storage("share.List", err)
	}
	return out, nil
}
