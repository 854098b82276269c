package inventory

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"invtrack/cmd/errkind"
)

const (
	// MaxCreateAttempts bounds identifier regeneration after a unique-index conflict.
	MaxCreateAttempts = 5

	defaultStoreTimeout = 5 * time.Second
	defaultStatus       = "active"
)

// IdentifierGenerator produces candidate identifiers. *codegen.Generator satisfies it.
type IdentifierGenerator interface {
	GenerateIdentifier(ctx context.Context, displayName, ownerName string) (string, error)
}

// Service owns asset creation and the identifier backfill.
type Service struct {
	store        Store
	gen          IdentifierGenerator
	log          *slog.Logger
	storeTimeout time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithStoreTimeout bounds every store call (<= 0 keeps the default).
func WithStoreTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.storeTimeout = d
		}
	}
}

// NewService constructs a Service.
func NewService(store Store, gen IdentifierGenerator, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errkind.Invalid("inventory.NewService", "nil store")
	}
	if gen == nil {
		return nil, errkind.Invalid("inventory.NewService", "nil generator")
	}
	s := &Service{
		store:        store,
		gen:          gen,
		log:          slog.Default(),
		storeTimeout: defaultStoreTimeout,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}
	return s, nil
}

// Store exposes the underlying store for read paths.
func (s *Service) Store() Store { return s.store }

// CreateInput is the caller-supplied part of a new asset.
type CreateInput struct {
	OwnerName     string
	DisplayName   string
	Specification string
	Brand         string
	Status        string
	Location      string
}

// Create validates in, assigns a fresh identifier and stores the asset.
// A unique-index conflict on identifier triggers regeneration.
func (s *Service) Create(ctx context.Context, in CreateInput) (Asset, error) {
	const op = "inventory.Create"

	owner := NormalizeOwner(in.OwnerName)
	name := strings.TrimSpace(in.DisplayName)
	if owner == "" {
		return Asset{}, errkind.Invalid(op, "owner name required")
	}
	if name == "" {
		return Asset{}, errkind.Invalid(op, "display name required")
	}
	loc, ok := ParseLocation(in.Location)
	if !ok {
		return Asset{}, errkind.Invalid(op, "unknown location")
	}
	status := strings.TrimSpace(in.Status)
	if status == "" {
		status = defaultStatus
	}

	base := Asset{
		OwnerName:     owner,
		DisplayName:   name,
		Specification: strings.TrimSpace(in.Specification),
		Brand:         strings.TrimSpace(in.Brand),
		Status:        status,
		Location:      loc,
	}

	var lastErr error
	for attempt := 1; attempt <= MaxCreateAttempts; attempt++ {
		identifier, err := s.gen.GenerateIdentifier(ctx, name, owner)
		if err != nil {
			return Asset{}, err
		}

		a := base
		a.Identifier = identifier

		sctx, cancel := s.withTimeout(ctx)
		created, err := s.store.Create(sctx, a)
		cancel()
		if err == nil {
			s.log.Info("inventory.asset.created", "id", created.ID, "identifier", created.Identifier)
			return created, nil
		}
		if !errkind.IsConflict(err, "identifier") {
			return Asset{}, errkind.Storage(op, err)
		}
		lastErr = err
		s.log.Warn("inventory.identifier.conflict", "identifier", identifier, "attempt", attempt)
	}
	return Asset{}, lastErr
}

// BackfillResult summarizes a backfill run.
type BackfillResult struct {
	Total    int
	Assigned int
}

// Backfill assigns identifiers to legacy assets that have none.
// Assets that already carry an identifier are never touched.
func (s *Service) Backfill(ctx context.Context) (BackfillResult, error) {
	const op = "inventory.Backfill"

	sctx, cancel := s.withTimeout(ctx)
	missing, err := s.store.ListMissingIdentifier(sctx)
	cancel()
	if err != nil {
		return BackfillResult{}, errkind.Storage(op, err)
	}

	res := BackfillResult{Total: len(missing)}
	for _, a := range missing {
		if err := s.assign(ctx, a); err != nil {
			return res, err
		}
		res.Assigned++
	}
	s.log.Info("inventory.backfill.done", "total", res.Total, "assigned", res.Assigned)
	return res, nil
}

func (s *Service) assign(ctx context.Context, a Asset) error {
	const op = "inventory.Backfill"

	var lastErr error
	for attempt := 1; attempt <= MaxCreateAttempts; attempt++ {
		identifier, err := s.gen.GenerateIdentifier(ctx, a.DisplayName, a.OwnerName)
		if err != nil {
			return err
		}
		sctx, cancel := s.withTimeout(ctx)
		err = s.store.AssignIdentifier(sctx, a.ID, identifier)
		cancel()
		if err == nil {
			return nil
		}
		if !errkind.IsConflict(err, "identifier") {
			return errkind.Storage(op, err)
		}
		lastErr = err
	}
	return lastErr
}

// GetByIdentifier fetches one asset.
func (s *Service) GetByIdentifier(ctx context.Context, identifier string) (Asset, error) {
	sctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.store.GetByIdentifier(sctx, strings.TrimSpace(identifier))
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storeTimeout)
}
