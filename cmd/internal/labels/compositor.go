package labels

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"time"

	"invtrack/cmd/errkind"
	"invtrack/cmd/internal/artifact"
	"invtrack/cmd/internal/metrics"
	"invtrack/cmd/inventory"
)

// DefaultBase is the artifact directory used unless configured otherwise.
const DefaultBase = "inventory-codes"

// Kind selects one of the two artifacts.
type Kind string

const (
	KindQR      Kind = "qr"
	KindBarcode Kind = "barcode"
)

// ParseKind validates a kind string.
func ParseKind(s string) (Kind, bool) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindQR:
		return KindQR, true
	case KindBarcode:
		return KindBarcode, true
	default:
		return "", false
	}
}

// Artifacts describes the images produced by one EnsureArtifacts call.
type Artifacts struct {
	QRPath        string
	BarcodePath   string
	QRDigest      artifact.Digest
	BarcodeDigest artifact.Digest
	// Degraded is set when an image was stored without text bands or the
	// barcode could not be encoded. BarcodePath is empty in the latter case.
	Degraded    bool
	GeneratedAt time.Time
}

// PersistFunc records artifact paths on the owning asset.
type PersistFunc func(ctx context.Context, identifier, qrPath, barcodePath string) error

// AssetLookup resolves an identifier to its asset.
type AssetLookup interface {
	GetByIdentifier(ctx context.Context, identifier string) (inventory.Asset, error)
}

// AssetLister lists every asset that carries an identifier.
type AssetLister interface {
	ListWithIdentifier(ctx context.Context) ([]inventory.Asset, error)
}

// Compositor renders and stores labeled code images.
type Compositor struct {
	store    artifact.Store
	renderer TextRenderer
	base     string
	now      func() time.Time
	persist  PersistFunc
	assets   AssetLookup
	log      *slog.Logger
	metrics  *metrics.Metrics
}

// Option configures a Compositor.
type Option func(*Compositor)

// WithRenderer sets the text renderer (default FixedRenderer).
func WithRenderer(r TextRenderer) Option {
	return func(c *Compositor) {
		if r != nil {
			c.renderer = r
		}
	}
}

// WithBase sets the artifact directory.
func WithBase(base string) Option {
	return func(c *Compositor) {
		if base = strings.Trim(strings.TrimSpace(base), "/"); base != "" {
			c.base = base
		}
	}
}

// WithClock sets the clock used for the month label and file names.
func WithClock(now func() time.Time) Option {
	return func(c *Compositor) {
		if now != nil {
			c.now = now
		}
	}
}

// WithPersistHook registers fn to run after both images are stored.
func WithPersistHook(fn PersistFunc) Option {
	return func(c *Compositor) { c.persist = fn }
}

// WithAssetLookup enables Image by identifier.
func WithAssetLookup(l AssetLookup) Option {
	return func(c *Compositor) { c.assets = l }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Compositor) {
		if log != nil {
			c.log = log
		}
	}
}

// WithMetrics attaches collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Compositor) { c.metrics = m }
}

// NewCompositor constructs a Compositor over store.
func NewCompositor(store artifact.Store, opts ...Option) (*Compositor, error) {
	if store == nil {
		return nil, errkind.Invalid("labels.NewCompositor", "nil artifact store")
	}
	c := &Compositor{
		store:    store,
		renderer: FixedRenderer{},
		base:     DefaultBase,
		now:      time.Now,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(c)
	}
	return c, nil
}

// Renderer returns the active text renderer.
func (c *Compositor) Renderer() TextRenderer { return c.renderer }

// Paths returns the artifact paths for identifier at t.
func (c *Compositor) Paths(identifier string, t time.Time) (qrPath, barcodePath string) {
	stamp := t.Format("200601")
	return fmt.Sprintf("%s/%s_%s_qr.png", c.base, identifier, stamp),
		fmt.Sprintf("%s/%s_%s_barcode.png", c.base, identifier, stamp)
}

// MonthLabel formats t as the uppercase footer text ("MARCH 2025").
func MonthLabel(t time.Time) string {
	return strings.ToUpper(t.Format("January 2006"))
}

// EnsureArtifacts renders both images for identifier and stores them,
// overwriting prior files for the same month. Labeling failures degrade to the
// raw code image and an identifier Code-128 cannot carry gets a QR only; QR
// encoding and storage failures are returned.
func (c *Compositor) EnsureArtifacts(ctx context.Context, identifier, ownerName string) (Artifacts, error) {
	const op = "labels.EnsureArtifacts"

	identifier = strings.TrimSpace(identifier)
	if err := validateIdentifier(identifier); err != nil {
		return Artifacts{}, err
	}

	now := c.now()
	header := headerText(ownerName)
	footer := MonthLabel(now)
	qrPath, barPath := c.Paths(identifier, now)

	qrImg, err := encodeQR(identifier)
	if err != nil {
		return Artifacts{}, err
	}
	// Code-128 only covers ASCII. Without it the QR alone is stored.
	barImg, err := encodeCode128(identifier)
	if err != nil {
		c.log.Warn("labels.barcode.skipped", "identifier", identifier, "err", err)
		barPath = ""
	}

	out := Artifacts{QRPath: qrPath, BarcodePath: barPath, GeneratedAt: now, Degraded: barPath == ""}

	qrBytes, qrDegraded, err := c.render(identifier, KindQR, qrImg, header, footer)
	if err != nil {
		return Artifacts{}, err
	}
	out.Degraded = out.Degraded || qrDegraded
	if out.QRDigest, err = c.store.Put(ctx, qrPath, qrBytes); err != nil {
		return Artifacts{}, errkind.Storage(op, err)
	}

	if barPath != "" {
		barBytes, barDegraded, err := c.render(identifier, KindBarcode, barImg, header, footer)
		if err != nil {
			return Artifacts{}, err
		}
		out.Degraded = out.Degraded || barDegraded
		if out.BarcodeDigest, err = c.store.Put(ctx, barPath, barBytes); err != nil {
			return Artifacts{}, errkind.Storage(op, err)
		}
	}

	if c.persist != nil {
		if err := c.persist(ctx, identifier, qrPath, barPath); err != nil {
			c.log.Error("labels.persist.fail", "identifier", identifier, "err", err)
			return Artifacts{}, errkind.Storage(op, err)
		}
	}

	c.log.Info("labels.render.ok",
		"identifier", identifier,
		"qr", qrPath,
		"barcode", barPath,
		"degraded", out.Degraded,
	)
	return out, nil
}

// render labels img, falling back to the unlabeled PNG when labeling fails.
func (c *Compositor) render(identifier string, kind Kind, img image.Image, header, footer string) ([]byte, bool, error) {
	labeled, err := composeLabeled(img, header, footer, c.renderer)
	if err == nil {
		c.metrics.ArtifactRendered(string(kind), false)
		return labeled, false, nil
	}

	c.log.Warn("labels.render.degraded",
		"identifier", identifier,
		"kind", kind,
		"renderer", c.renderer.Name(),
		"err", errors.Join(errkind.ErrRenderDegraded, err),
	)
	raw, rerr := encodePNG(img)
	if rerr != nil {
		return nil, false, fmt.Errorf("labels.render: encode %s: %w", kind, rerr)
	}
	c.metrics.ArtifactRendered(string(kind), true)
	return raw, true, nil
}

// RenderSummary is the outcome of RenderAll.
type RenderSummary struct {
	Total   int `json:"total"`
	Updated int `json:"updated"`
}

// RenderAll regenerates artifacts for every asset that has an identifier.
// Per-asset failures are logged and skipped.
func (c *Compositor) RenderAll(ctx context.Context, lister AssetLister) (RenderSummary, error) {
	const op = "labels.RenderAll"

	assets, err := lister.ListWithIdentifier(ctx)
	if err != nil {
		return RenderSummary{}, errkind.Storage(op, err)
	}

	sum := RenderSummary{Total: len(assets)}
	for _, a := range assets {
		if err := ctx.Err(); err != nil {
			return sum, errkind.Storage(op, err)
		}
		if _, err := c.EnsureArtifacts(ctx, a.Identifier, a.OwnerName); err != nil {
			c.log.Warn("labels.render_all.skip", "identifier", a.Identifier, "err", err)
			continue
		}
		sum.Updated++
	}
	c.log.Info("labels.render_all.done", "total", sum.Total, "updated", sum.Updated)
	return sum, nil
}

func validateIdentifier(identifier string) error {
	const op = "labels.validateIdentifier"
	if identifier == "" {
		return errkind.Invalid(op, "empty identifier")
	}
	if strings.ContainsAny(identifier, `/\`) || strings.Contains(identifier, "..") {
		return errkind.Invalid(op, "identifier not usable as file name")
	}
	return nil
}
