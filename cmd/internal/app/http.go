package app

import (
	"net/http"
	"time"

	"invtrack/cmd/internal/api"
	"invtrack/cmd/internal/realtime"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// newHTTPHandler builds the route table and wraps it in middleware.
func newHTTPHandler(cfg Config, log Logger, svc *Services) (http.Handler, error) {
	mux := http.NewServeMux()
	registerOps(mux, log, cfg, svc)

	feed := realtime.NewFeedGateway(log, svc.Hub, svc.Audit, gatewayConfig(cfg))

	h, err := api.NewHandler(log, apiConfig(cfg), api.Deps{
		Assets: svc.Assets,
		Labels: svc.Labels,
		Shares: svc.Shares,
		Audit:  svc.Audit,
		Feed:   feed,
		Admin:  svc.Security.Admin,
	})
	if err != nil {
		return nil, err
	}
	h.Register(mux)

	return WithSecurityHeaders(WithRequestLogging(mux, log)), nil
}

// registerOps mounts the liveness, readiness and metrics endpoints.
func registerOps(mux *http.ServeMux, log Logger, cfg Config, svc *Services) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.ReadinessRequireDB && !svc.DBEnabled() {
			http.Error(w, "db not configured", http.StatusServiceUnavailable)
			return
		}

		if svc.DBEnabled() {
			if err := CheckDB(r.Context(), svc.Pool(), cfg.DBSchema, 2*time.Second); err != nil {
				http.Error(w, "db not ready", http.StatusServiceUnavailable)
				log.Info("readyz.db.not_ready", "err", err)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	mux.Handle("GET /metrics", promhttp.HandlerFor(svc.Registry, promhttp.HandlerOpts{
		Registry: svc.Registry,
	}))
}
