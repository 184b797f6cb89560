package metrics

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Create a custom registry
var registry = prometheus.NewRegistry()

// Create a registerer that uses our registry
var registerer = prometheus.WrapRegistererWith(nil, registry)

var (
	// Latency buckets in milliseconds
	latencyBuckets = []float64{
		1, 5, 10, 25,
		50, 100, 250,
		500, 1000, 2500,
		5000, 10000,
	}

	// EdgeDecisions counts pipeline outcomes by stage and action.
	EdgeDecisions = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_decisions_total",
			Help: "Total number of edge pipeline decisions",
		},
		[]string{"stage", "action", "reason"},
	)

	// RateLimitChecks counts limiter results: allowed, denied or error.
	RateLimitChecks = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_ratelimit_checks_total",
			Help: "Total number of rate limit checks by result",
		},
		[]string{"result"},
	)

	EdgeRequestTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "edge_requests_total",
			Help: "Total number of requests processed",
		},
		[]string{"tenant", "method", "status"},
	)

	EdgeRequestLatency = promauto.With(registerer).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "edge_latency_ms",
			Help:    "Request latency in milliseconds",
			Buckets: latencyBuckets,
		},
		[]string{"tenant", "type"}, // type can be "total" or "upstream"
	)

	// Per-route latency (optional, high cardinality)
	EdgeRouteLatency = promauto.With(registerer).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "edge_route_latency_ms",
			Help:    "Request latency by rewritten route",
			Buckets: latencyBuckets,
		},
		[]string{"tenant", "route"},
	)
)

// MetricsConfig holds configuration for which metrics to enable
type MetricsConfig struct {
	EnablePerRoute       bool // Per-route metrics (high cardinality)
	EnableDetailedStatus bool // Detailed status codes (vs. status classes)
}

// DefaultMetricsConfig returns default metrics configuration with safe defaults
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		EnablePerRoute:       false,
		EnableDetailedStatus: false,
	}
}

// Config holds the current metrics configuration
var Config = DefaultMetricsConfig()

var runtimeCollectors = []prometheus.Collector{
	collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	collectors.NewGoCollector(),
}

// Initialize applies cfg and registers the process and Go runtime collectors.
func Initialize(cfg MetricsConfig) {
	Config = cfg
	for _, c := range runtimeCollectors {
		if err := registry.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				panic(err)
			}
		}
	}
}

// Handler exposes the custom registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}

// GetStatusClass returns either the specific status code or its class (e.g., "2xx")
func GetStatusClass(status int) string {
	if !Config.EnableDetailedStatus {
		return fmt.Sprintf("%dxx", status/100)
	}
	return strconv.Itoa(status)
}
