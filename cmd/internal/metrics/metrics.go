// Package metrics holds the Prometheus collectors for invtrack.
//
// A nil *Metrics is valid and records nothing, so services can be built
// without a registry in tests and CLI commands.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "invtrack"

// Metrics groups the collectors recorded by the core services.
type Metrics struct {
	codesGenerated    *prometheus.CounterVec
	artifactsRendered *prometheus.CounterVec
	shareIssued       *prometheus.CounterVec
	shareResolved     *prometheus.CounterVec
	shareRevoked      prometheus.Counter
	auditWrites       *prometheus.CounterVec
	feedSubscribers   prometheus.Gauge
	feedRateLimited   prometheus.Counter
}

// New registers the collectors on reg (a fresh registry when nil).
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		codesGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "codes_generated_total",
			Help:      "Identifiers generated, by path (random|fallback).",
		}, []string{"path"}),
		artifactsRendered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_rendered_total",
			Help:      "Code images rendered, by kind and whether labeling degraded.",
		}, []string{"kind", "degraded"}),
		shareIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "share_links_issued_total",
			Help:      "Share links issued, by scope and access mode.",
		}, []string{"scope", "access_mode"}),
		shareResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "share_resolve_total",
			Help:      "Share token redemptions, by result.",
		}, []string{"result"}),
		shareRevoked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "share_links_revoked_total",
			Help:      "Share links transitioned to revoked.",
		}),
		auditWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_writes_total",
			Help:      "Access audit writes, by status (ok|fail).",
		}, []string{"status"}),
		feedSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "audit_feed_subscribers",
			Help:      "Connected live audit feed subscribers.",
		}),
		feedRateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_feed_rate_limited_total",
			Help:      "Feed sessions closed for sending too many frames.",
		}),
	}
	for _, c := range []prometheus.Collector{
		m.codesGenerated, m.artifactsRendered, m.shareIssued, m.shareResolved,
		m.shareRevoked, m.auditWrites, m.feedSubscribers, m.feedRateLimited,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// CodeGenerated counts one identifier produced via path.
func (m *Metrics) CodeGenerated(path string) {
	if m == nil {
		return
	}
	m.codesGenerated.WithLabelValues(path).Inc()
}

// ArtifactRendered counts one rendered image.
func (m *Metrics) ArtifactRendered(kind string, degraded bool) {
	if m == nil {
		return
	}
	d := "false"
	if degraded {
		d = "true"
	}
	m.artifactsRendered.WithLabelValues(kind, d).Inc()
}

// ShareIssued counts n links issued.
func (m *Metrics) ShareIssued(scope, accessMode string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.shareIssued.WithLabelValues(scope, accessMode).Add(float64(n))
}

// ShareResolved counts one redemption outcome.
func (m *Metrics) ShareResolved(result string) {
	if m == nil {
		return
	}
	m.shareResolved.WithLabelValues(result).Inc()
}

// ShareRevoked counts one revocation transition.
func (m *Metrics) ShareRevoked() {
	if m == nil {
		return
	}
	m.shareRevoked.Inc()
}

// AuditWrite counts one audit write attempt.
func (m *Metrics) AuditWrite(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.auditWrites.WithLabelValues("ok").Inc()
		return
	}
	m.auditWrites.WithLabelValues("fail").Inc()
}

// FeedSubscribers adjusts the live feed gauge by delta.
func (m *Metrics) FeedSubscribers(delta int) {
	if m == nil {
		return
	}
	m.feedSubscribers.Add(float64(delta))
}

// FeedRateLimited counts one feed session closed by its inbound frame budget.
func (m *Metrics) FeedRateLimited() {
	if m == nil {
		return
	}
	m.feedRateLimited.Inc()
}
