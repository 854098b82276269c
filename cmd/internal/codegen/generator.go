package codegen

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"invtrack/cmd/errkind"
	"invtrack/cmd/internal/metrics"
)

const (
	// MaxAttempts bounds the random draws before the fallback suffix is used.
	MaxAttempts = 100

	digitSlots = 10_000
)

// Checker is the uniqueness capability. A unique index in storage stays the
// authoritative guard; callers retry on errkind.ConflictError.
type Checker interface {
	ExistsByIdentifier(ctx context.Context, identifier string) (bool, error)
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context, identifier string) (bool, error)

// ExistsByIdentifier implements Checker.
func (f CheckerFunc) ExistsByIdentifier(ctx context.Context, identifier string) (bool, error) {
	return f(ctx, identifier)
}

// Generator produces identifiers of the form IT-<initials><4 digits>.
type Generator struct {
	log     *slog.Logger
	checker Checker
	suffix  SuffixSource
	draw    func() int
	metrics *metrics.Metrics
}

// Option configures a Generator.
type Option func(*Generator)

// WithSuffixSource overrides the fallback suffix source.
func WithSuffixSource(s SuffixSource) Option {
	return func(g *Generator) {
		if s != nil {
			g.suffix = s
		}
	}
}

// WithDraw overrides the 4-digit draw (must return values in [0, 9999]).
func WithDraw(draw func() int) Option {
	return func(g *Generator) {
		if draw != nil {
			g.draw = draw
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(g *Generator) {
		if log != nil {
			g.log = log
		}
	}
}

// WithMetrics attaches collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Generator) { g.metrics = m }
}

// NewGenerator constructs a Generator over checker.
func NewGenerator(checker Checker, opts ...Option) (*Generator, error) {
	if checker == nil {
		return nil, errkind.Invalid("codegen.NewGenerator", "nil checker")
	}
	g := &Generator{
		log:     slog.Default(),
		checker: checker,
		suffix:  NewCounterSuffix(nil),
		draw:    func() int { return rand.IntN(digitSlots) },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(g)
	}
	return g, nil
}

// GenerateIdentifier returns an identifier not present in storage at check time.
// Checker failures count as redraws. The only error is a failing suffix source.
func (g *Generator) GenerateIdentifier(ctx context.Context, displayName, ownerName string) (string, error) {
	const op = "codegen.GenerateIdentifier"

	prefix := Prefix(displayName, ownerName)

	for i := 0; i < MaxAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return "", errkind.Storage(op, err)
		}
		candidate := fmt.Sprintf("%s%04d", prefix, g.draw()%digitSlots)
		exists, err := g.checker.ExistsByIdentifier(ctx, candidate)
		if err != nil {
			g.log.Warn("codegen.exists.fail", "err", err, "attempt", i+1)
			continue
		}
		if !exists {
			g.metrics.CodeGenerated("random")
			return candidate, nil
		}
	}

	suffix, err := g.suffix.Suffix()
	if err != nil {
		return "", fmt.Errorf("%s: fallback suffix: %w", op, err)
	}
	g.log.Warn("codegen.fallback", "prefix", prefix, "attempts", MaxAttempts)
	g.metrics.CodeGenerated("fallback")
	return prefix + suffix, nil
}
