// Package app wires the invtrack runtime: config, logging, storage, the core
// services, HTTP routes and the operator CLI.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"invtrack/cmd/internal/api"
	"invtrack/cmd/internal/artifact"
	"invtrack/cmd/internal/audit"
	"invtrack/cmd/internal/codegen"
	"invtrack/cmd/internal/labels"
	"invtrack/cmd/internal/metrics"
	"invtrack/cmd/internal/realtime"
	"invtrack/cmd/internal/share"
	"invtrack/cmd/inventory"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Services is the fully wired domain layer shared by the server and the CLI.
type Services struct {
	Assets *inventory.Service
	Labels *labels.Compositor
	Shares *share.Registry
	Audit  *audit.Log
	Hub    *realtime.Hub

	Security Security
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	pool *pgxpool.Pool
}

// DBEnabled reports whether services run on PostgreSQL.
func (s *Services) DBEnabled() bool { return s.pool != nil }

// Pool returns the database pool, or nil in in-memory mode.
func (s *Services) Pool() *pgxpool.Pool { return s.pool }

// Close releases the database pool.
func (s *Services) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// NewServices builds storage and the domain services from cfg.
// Without a database URL every store is in-memory.
func NewServices(ctx context.Context, cfg Config, log Logger) (*Services, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	sec, err := LoadSecurity(cfg, log)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		return nil, err
	}

	st, err := newStores(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	svc := &Services{Security: sec, Registry: reg, Metrics: m, pool: st.pool}

	fail := func(err error) (*Services, error) {
		svc.Close()
		return nil, err
	}

	gen, err := codegen.NewGenerator(st.assets,
		codegen.WithSuffixSource(codegen.SuffixSourceByName(cfg.SuffixSource)),
		codegen.WithLogger(log),
		codegen.WithMetrics(m),
	)
	if err != nil {
		return fail(err)
	}

	svc.Assets, err = inventory.NewService(st.assets, gen,
		inventory.WithLogger(log),
		inventory.WithStoreTimeout(cfg.StoreTimeout),
	)
	if err != nil {
		return fail(err)
	}

	files, err := artifact.NewFSStore(cfg.ArtifactDir)
	if err != nil {
		return fail(err)
	}
	svc.Labels, err = labels.NewCompositor(files,
		labels.WithRenderer(labels.SelectRenderer(log, labels.DefaultFontCandidates(cfg.FontPath))),
		labels.WithAssetLookup(st.assets),
		labels.WithPersistHook(st.assets.SetArtifactRefs),
		labels.WithLogger(log),
		labels.WithMetrics(m),
	)
	if err != nil {
		return fail(err)
	}

	svc.Hub = realtime.NewHub(log, m)
	svc.Audit, err = audit.NewLog(st.audit,
		audit.WithPublisher(svc.Hub),
		audit.WithLogger(log),
		audit.WithMetrics(m),
		audit.WithStoreTimeout(cfg.StoreTimeout),
	)
	if err != nil {
		return fail(err)
	}

	svc.Shares, err = share.NewRegistry(st.shares, st.assets, svc.Audit,
		share.WithHasher(sec.Hasher),
		share.WithTokenBytes(cfg.TokenBytes),
		share.WithMaxTTL(cfg.ShareMaxTTL),
		share.WithStoreTimeout(cfg.StoreTimeout),
		share.WithLogger(log),
		share.WithMetrics(m),
	)
	if err != nil {
		return fail(err)
	}

	return svc, nil
}

type stores struct {
	pool   *pgxpool.Pool
	assets inventory.Store
	shares share.Store
	audit  audit.Store
}

// newStores decides between Postgres-backed persistence and in-memory dev stores.
func newStores(ctx context.Context, cfg Config, log Logger) (stores, error) {
	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")
		return stores{
			assets: inventory.NewInMemoryStore(),
			shares: share.NewInMemoryStore(),
			audit:  audit.NewInMemoryStore(),
		}, nil
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return stores{}, err
	}
	log.Info("db.enabled.postgres_store", "schema", cfg.DBSchema)

	if cfg.DBAutoMigrate {
		if err := Migrate(ctx, pool, cfg.DBSchema); err != nil {
			pool.Close()
			return stores{}, err
		}
		log.Info("db.migrate.ok", "schema", cfg.DBSchema)
	}

	// The app owns the pool; store Close methods do not close it.
	assets, err := inventory.NewPostgresStore(pool, inventory.WithSchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return stores{}, err
	}
	links, err := share.NewPostgresStore(pool, share.WithSchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return stores{}, err
	}
	attempts, err := audit.NewPostgresStore(pool, audit.WithSchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return stores{}, err
	}

	return stores{pool: pool, assets: assets, shares: links, audit: attempts}, nil
}

// App is the invtrack server runtime.
type App struct {
	cfg Config
	log Logger
	svc *Services

	handler http.Handler
}

// New constructs a fully wired App instance from config and logger.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	svc, err := NewServices(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	h, err := newHTTPHandler(cfg, log, svc)
	if err != nil {
		svc.Close()
		return nil, err
	}

	return &App{cfg: cfg, log: log, svc: svc, handler: h}, nil
}

// Handler returns the root HTTP handler with middleware applied.
func (a *App) Handler() http.Handler { return a.handler }

// Services returns the wired domain layer.
func (a *App) Services() *Services { return a.svc }

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"db_enabled", a.svc.DBEnabled(),
		"admin_enabled", a.svc.Security.Admin != nil,
		"token_hmac", a.svc.Security.Hasher.Keyed(),
		"label_renderer", a.svc.Labels.Renderer().Name(),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		a.svc.Close()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
	defer cancel()

	// Feed sockets are hijacked and not tracked by Shutdown.
	a.svc.Hub.CloseAll()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		a.svc.Close()
		return err
	}

	a.svc.Close()
	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func apiConfig(cfg Config) api.Config {
	return api.Config{
		TrustProxy:        cfg.TrustProxy,
		MaxBodyBytes:      int64(cfg.MaxBodyBytes),
		ResolveFailMax:    cfg.ResolveFailMax,
		ResolveFailWindow: cfg.ResolveFailWindow,
		CodeCacheMaxAge:   cfg.CodeCacheMaxAge,
	}
}

func gatewayConfig(cfg Config) realtime.GatewayConfig {
	g := realtime.DefaultGatewayConfig()
	g.AllowedOrigins = cfg.FeedAllowedOrigins
	g.OriginRequired = cfg.FeedOriginRequired
	return g
}
