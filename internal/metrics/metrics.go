// Package metrics exposes the gateway's Prometheus metrics.
//
// Metrics live in a private registry rather than the global default so they
// don't collide with host-level collectors when the gateway is embedded.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg *prometheus.Registry

	// bridge_http_requests_total{route,status}
	requestsTotal *prometheus.CounterVec

	// bridge_stream_events_total{type}
	streamEvents *prometheus.CounterVec

	// bridge_backend_errors_total{provider}
	backendErrors *prometheus.CounterVec
}

func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_http_requests_total",
			Help: "Inbound HTTP requests by route and status code.",
		}, []string{"route", "status"}),
		streamEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_stream_events_total",
			Help: "Streaming events emitted to clients by event type.",
		}, []string{"type"}),
		backendErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_backend_errors_total",
			Help: "Backend call failures by provider.",
		}, []string{"provider"}),
	}
	r.reg.MustRegister(r.requestsTotal, r.streamEvents, r.backendErrors)
	return r
}

func (r *Registry) RecordRequest(route string, status int) {
	r.requestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

func (r *Registry) RecordStreamEvent(eventType string) {
	r.streamEvents.WithLabelValues(eventType).Inc()
}

func (r *Registry) RecordBackendError(provider string) {
	r.backendErrors.WithLabelValues(provider).Inc()
}

// Handler serves the /metrics scrape endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
