package metrics

import (
	"net/http"
	"path"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private Prometheus registry with the proxy's collectors.
type Metrics struct {
	registry *prometheus.Registry

	upstreamRequests *prometheus.CounterVec
	upstreamRetries  *prometheus.CounterVec
	pagesFetched     *prometheus.CounterVec
	pipelineDuration *prometheus.HistogramVec
}

// New builds and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hanet_upstream_requests_total",
			Help: "Upstream HANET calls by tenant, endpoint and outcome.",
		}, []string{"tenant", "endpoint", "outcome"}),
		upstreamRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hanet_upstream_retries_total",
			Help: "Retried upstream HANET calls by tenant.",
		}, []string{"tenant"}),
		pagesFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hanet_pages_fetched_total",
			Help: "Check-in pages requested by tenant.",
		}, []string{"tenant"}),
		pipelineDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hanet_checkin_pipeline_duration_seconds",
			Help:    "Duration of whole checkins aggregation runs by tenant.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"tenant"}),
	}
	m.registry.MustRegister(m.upstreamRequests, m.upstreamRetries, m.pagesFetched, m.pipelineDuration)
	return m
}

// Handler exposes the registry for the /metrics route.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ForTenant returns a recorder that labels observations with one tenant.
// It satisfies the upstream client's Recorder interface.
func (m *Metrics) ForTenant(tenant string) *TenantRecorder {
	return &TenantRecorder{metrics: m, tenant: tenant}
}

// TenantRecorder labels metric observations with a tenant name.
type TenantRecorder struct {
	metrics *Metrics
	tenant  string
}

// UpstreamRequest counts one upstream call. The endpoint is reduced to its
// last path segment to keep label cardinality bounded.
func (r *TenantRecorder) UpstreamRequest(endpoint, outcome string) {
	r.metrics.upstreamRequests.WithLabelValues(r.tenant, path.Base(endpoint), outcome).Inc()
}

// UpstreamRetry counts one retried upstream call.
func (r *TenantRecorder) UpstreamRetry(string) {
	r.metrics.upstreamRetries.WithLabelValues(r.tenant).Inc()
}

// PagesFetched counts the pages requested for one chunk.
func (r *TenantRecorder) PagesFetched(n int) {
	r.metrics.pagesFetched.WithLabelValues(r.tenant).Add(float64(n))
}

// ObservePipelineDuration records one whole checkins run.
func (r *TenantRecorder) ObservePipelineDuration(d time.Duration) {
	r.metrics.pipelineDuration.WithLabelValues(r.tenant).Observe(d.Seconds())
}
