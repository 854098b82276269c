package api

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"invtrack/cmd/internal/audit"
	"invtrack/cmd/internal/labels"
	"invtrack/cmd/internal/share"
	"invtrack/cmd/inventory"
	"invtrack/cmd/security/adminkey"
)

// Deps are the services the HTTP surface exposes.
type Deps struct {
	Assets *inventory.Service
	Labels *labels.Compositor
	Shares *share.Registry
	Audit  *audit.Log
	// Feed serves the admin live feed socket. Optional.
	Feed http.Handler
	// Admin verifies the operator key. When nil, admin routes answer 503.
	Admin *adminkey.Verifier
}

// Handler wires HTTP routes to the inventory, label, share and audit services.
type Handler struct {
	log  *slog.Logger
	cfg  Config
	deps Deps
	now  func() time.Time

	resolveFailures *failureThrottle
}

// HandlerOption configures optional handler behavior.
type HandlerOption func(*Handler)

// WithClock overrides the clock (tests).
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if h == nil || now == nil {
			return
		}
		h.now = now
	}
}

// NewHandler constructs a Handler.
func NewHandler(log *slog.Logger, cfg Config, deps Deps, opts ...HandlerOption) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if deps.Assets == nil || deps.Labels == nil || deps.Shares == nil || deps.Audit == nil {
		return nil, errors.New("api: assets, labels, shares and audit are required")
	}
	cfg = cfg.normalized()

	h := &Handler{
		log:             log,
		cfg:             cfg,
		deps:            deps,
		now:             time.Now,
		resolveFailures: newFailureThrottle(cfg.ResolveFailMax, cfg.ResolveFailWindow),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}
	return h, nil
}

// Register wires routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("GET /share/{token}", h.handleShareView)

	mux.Handle("POST /admin/assets", h.requireAdmin(h.handleCreateAsset))
	mux.Handle("GET /admin/assets/{identifier}", h.requireAdmin(h.handleGetAsset))
	mux.Handle("GET /admin/codes/{identifier}/{kind}", h.requireAdmin(h.handleCodeImage))
	mux.Handle("POST /admin/codes/backfill", h.requireAdmin(h.handleBackfill))
	mux.Handle("POST /admin/codes/generate-all", h.requireAdmin(h.handleGenerateAll))
	mux.Handle("POST /admin/shares", h.requireAdmin(h.handleIssueShares))
	mux.Handle("GET /admin/shares", h.requireAdmin(h.handleListShares))
	mux.Handle("GET /admin/shares/{id}", h.requireAdmin(h.handleGetShare))
	mux.Handle("POST /admin/shares/{id}/revoke", h.requireAdmin(h.handleRevokeShareByID))
	mux.Handle("POST /admin/shares/revoke", h.requireAdmin(h.handleRevokeShareByToken))
	mux.Handle("GET /admin/share-accesses", h.requireAdmin(h.handleListAccesses))
	if h.deps.Feed != nil {
		mux.Handle("GET /admin/share-accesses/ws", h.requireAdmin(h.deps.Feed.ServeHTTP))
	}
}

// ---- helpers ----

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}

func ipString(ip net.IP) string {
	if ip == nil {
		return ""
	}
	return ip.String()
}

// queryLimit parses ?limit=; invalid or missing values yield 0 (service default).
func queryLimit(r *http.Request) int {
	n, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("limit")))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func queryBool(r *http.Request, key string) bool {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
