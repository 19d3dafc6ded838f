// Package telemetry wires prometheus metrics and the observability HTTP
// endpoint.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"toolmesh/internal/domain"
)

// PrometheusMetrics implements domain.Metrics on a prometheus registry.
type PrometheusMetrics struct {
	callDuration    *prometheus.HistogramVec
	discoveryRuns   *prometheus.CounterVec
	discoveryTools  *prometheus.CounterVec
	retries         *prometheus.CounterVec
	cacheRequests   *prometheus.CounterVec
	connectorHealth *prometheus.GaugeVec
}

// NewPrometheusMetrics registers the metric families on registerer
// (DefaultRegisterer when nil).
func NewPrometheusMetrics(registerer prometheus.Registerer) *PrometheusMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &PrometheusMetrics{
		callDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "toolmesh_call_duration_seconds",
				Help:    "Duration of tool calls in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"server", "tool", "status"},
		),
		discoveryRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolmesh_discovery_runs_total",
				Help: "Total discovery passes per server",
			},
			[]string{"server", "status"},
		),
		discoveryTools: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolmesh_discovery_tools_total",
				Help: "Tools added, updated and removed by discovery",
			},
			[]string{"server", "change"},
		),
		retries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolmesh_retries_total",
				Help: "Retry attempts per operation",
			},
			[]string{"op"},
		),
		cacheRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "toolmesh_cache_requests_total",
				Help: "Cache lookups by namespace and outcome",
			},
			[]string{"namespace", "outcome"},
		),
		connectorHealth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "toolmesh_connector_healthy",
				Help: "Connector health (1 healthy, 0 unhealthy)",
			},
			[]string{"server"},
		),
	}
}

func (p *PrometheusMetrics) ObserveToolCall(serverID, toolName string, duration time.Duration, err error) {
	p.callDuration.WithLabelValues(serverID, toolName, statusLabel(err)).Observe(duration.Seconds())
}

func (p *PrometheusMetrics) ObserveDiscovery(serverID string, added, updated, removed int, err error) {
	p.discoveryRuns.WithLabelValues(serverID, statusLabel(err)).Inc()
	p.discoveryTools.WithLabelValues(serverID, "added").Add(float64(added))
	p.discoveryTools.WithLabelValues(serverID, "updated").Add(float64(updated))
	p.discoveryTools.WithLabelValues(serverID, "removed").Add(float64(removed))
}

func (p *PrometheusMetrics) ObserveRetry(op string) {
	p.retries.WithLabelValues(op).Inc()
}

func (p *PrometheusMetrics) ObserveCache(namespace string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	p.cacheRequests.WithLabelValues(namespace, outcome).Inc()
}

func (p *PrometheusMetrics) SetConnectorHealth(serverID string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	p.connectorHealth.WithLabelValues(serverID).Set(value)
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

var _ domain.Metrics = (*PrometheusMetrics)(nil)
