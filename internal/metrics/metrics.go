// Package metrics exposes the Prometheus metrics for the orchestrator,
// registered once via promauto behind a sync.Once singleton.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector used by the orchestrator.
type Metrics struct {
	SagaExecutions *prometheus.CounterVec
	SagaDuration   *prometheus.HistogramVec
	SagaStepErrors *prometheus.CounterVec

	GatewayCalls   *prometheus.CounterVec
	GatewayLatency *prometheus.HistogramVec
	GatewayRetries *prometheus.CounterVec

	ProjectsTotal *prometheus.GaugeVec

	ProxyRequestsTotal   *prometheus.CounterVec
	ProxyRequestDuration *prometheus.HistogramVec
	ProxyCacheHits       prometheus.Counter
	ProxyCacheMisses     prometheus.Counter

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

var (
	once   sync.Once
	shared *Metrics
)

// New returns the process-wide Metrics singleton, registering collectors on
// first call.
func New() *Metrics {
	once.Do(func() {
		shared = &Metrics{
			SagaExecutions: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "codeopen_saga_executions_total",
				Help: "Total saga executions by name and outcome",
			}, []string{"saga", "outcome"}),
			SagaDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "codeopen_saga_duration_seconds",
				Help:    "Saga execution duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
			}, []string{"saga"}),
			SagaStepErrors: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "codeopen_saga_step_errors_total",
				Help: "Saga step failures by saga and step name",
			}, []string{"saga", "step"}),

			GatewayCalls: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "codeopen_gateway_calls_total",
				Help: "Gateway calls by gateway, operation, and outcome",
			}, []string{"gateway", "operation", "outcome"}),
			GatewayLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "codeopen_gateway_latency_seconds",
				Help:    "Gateway call latency in seconds",
				Buckets: prometheus.DefBuckets,
			}, []string{"gateway", "operation"}),
			GatewayRetries: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "codeopen_gateway_retries_total",
				Help: "Gateway call retries by gateway and operation",
			}, []string{"gateway", "operation"}),

			ProjectsTotal: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: "codeopen_projects_total",
				Help: "Number of projects by status",
			}, []string{"status"}),

			ProxyRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "codeopen_proxy_requests_total",
				Help: "Assistant proxy requests by operation and outcome",
			}, []string{"operation", "outcome"}),
			ProxyRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "codeopen_proxy_request_duration_seconds",
				Help:    "Assistant proxy request duration in seconds",
				Buckets: prometheus.DefBuckets,
			}, []string{"operation"}),
			ProxyCacheHits: promauto.NewCounter(prometheus.CounterOpts{
				Name: "codeopen_proxy_client_cache_hits_total",
				Help: "Assistant proxy client-cache hits",
			}),
			ProxyCacheMisses: promauto.NewCounter(prometheus.CounterOpts{
				Name: "codeopen_proxy_client_cache_misses_total",
				Help: "Assistant proxy client-cache misses",
			}),

			HTTPRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "codeopen_http_requests_total",
				Help: "Inbound HTTP requests by method, route, and status",
			}, []string{"method", "route", "status"}),
			HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "codeopen_http_request_duration_seconds",
				Help:    "Inbound HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			}, []string{"method", "route"}),
		}
	})
	return shared
}
