package metrics

import (
	"net/http"
	"time"

	"genrouter/internal/core"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "genrouter"

// Prometheus holds the exported collectors on a dedicated registry.
type Prometheus struct {
	registry *prometheus.Registry

	generations        *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
	httpDuration       prometheus.Histogram
	httpErrors         prometheus.Counter
	cacheLookups       *prometheus.CounterVec
	rateLimited        *prometheus.CounterVec
	providerErrors     *prometheus.CounterVec
	activeStreams      prometheus.Gauge
}

// NewPrometheus registers the collectors on reg, or on a fresh registry
// with the Go and process collectors when reg is nil.
func NewPrometheus(reg *prometheus.Registry) *Prometheus {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	factory := promauto.With(reg)

	return &Prometheus{
		registry: reg,
		generations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generations_total",
			Help:      "Generation requests dispatched to providers, by outcome.",
		}, []string{"kind", "provider", "outcome"}),
		generationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Provider call latency.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"kind", "provider"}),
		httpDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		httpErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_errors_total",
			Help:      "HTTP requests answered with a server error.",
		}),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_cache_lookups_total",
			Help:      "Model registry cache lookups, by result.",
		}, []string{"result"}),
		rateLimited: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by quota, by endpoint class.",
		}, []string{"class"}),
		providerErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Failed provider calls, by provider and failure kind.",
		}, []string{"provider", "kind"}),
		activeStreams: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_streams",
			Help:      "Streams currently relaying provider output.",
		}),
	}
}

func (p *Prometheus) observeGeneration(kind core.RequestKind, provider string, success bool, duration time.Duration) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	p.generations.WithLabelValues(string(kind), provider, outcome).Inc()
	p.generationDuration.WithLabelValues(string(kind), provider).Observe(duration.Seconds())
}

// Registry exposes the underlying registry.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus text format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}
