// Package metrics exposes Prometheus instrumentation for message generation,
// analysis and dispatch.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors, all registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	MessagesGenerated *prometheus.CounterVec
	RenderFailures    *prometheus.CounterVec
	DispatchTotal     *prometheus.CounterVec
	AnalyzerFallbacks prometheus.Counter
	DispatchDuration  prometheus.Histogram
}

// New registers the collectors on a fresh registry together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return NewWithRegistry(reg)
}

// NewWithRegistry registers the collectors on reg.
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		MessagesGenerated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cdp_messages_generated_total",
			Help: "Messages generated by category and variation",
		}, []string{"category", "variation"}),
		RenderFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cdp_template_render_failures_total",
			Help: "Templates skipped because they failed to render",
		}, []string{"category"}),
		DispatchTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cdp_dispatch_total",
			Help: "Campaign dispatch attempts by result status",
		}, []string{"status"}),
		AnalyzerFallbacks: f.NewCounter(prometheus.CounterOpts{
			Name: "cdp_analyzer_fallbacks_total",
			Help: "Analyses answered with the static fallback plan",
		}),
		DispatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "cdp_dispatch_duration_seconds",
			Help:    "Duration of dispatch calls including retries",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
}

// ObserveDispatch records one dispatch outcome.
func (m *Metrics) ObserveDispatch(status string, elapsed time.Duration) {
	m.DispatchTotal.WithLabelValues(status).Inc()
	m.DispatchDuration.Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
