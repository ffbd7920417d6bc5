// Package metrics defines the proxy's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "whitelabel"

type Metrics struct {
	// ResponsesTotal counts proxied responses by rewriter kind
	// (html, css, js, passthrough, websocket) and upstream status code.
	ResponsesTotal *prometheus.CounterVec
	// RewriteFailures counts rewriter errors that fell back to the original body.
	RewriteFailures *prometheus.CounterVec
	UpstreamErrors  prometheus.Counter
	// BufferedBytes observes the size of bodies buffered for rewriting.
	BufferedBytes prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ResponsesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "responses_total",
			Help:      "Proxied responses by rewrite kind and upstream status.",
		}, []string{"kind", "status"}),
		RewriteFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rewrite_failures_total",
			Help:      "Rewrites that failed and served the original body.",
		}, []string{"kind"}),
		UpstreamErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_errors_total",
			Help:      "Requests that could not be forwarded to the upstream.",
		}),
		BufferedBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "buffered_body_bytes",
			Help:      "Size of upstream bodies buffered for rewriting.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
		}),
	}

	reg.MustRegister(m.ResponsesTotal, m.RewriteFailures, m.UpstreamErrors, m.BufferedBytes)
	return m
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
