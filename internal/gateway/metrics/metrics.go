// Package metrics exposes the gateway's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the gateway.
type Metrics struct {
	// RequestsTotal counts served requests by endpoint and outcome route
	// (LOCAL, CLOUD, BLOCKED, ERROR, RATE_LIMITED).
	RequestsTotal *prometheus.CounterVec

	// StageDuration observes per-pipeline-stage latency in seconds.
	StageDuration *prometheus.HistogramVec

	// RateLimited counts rejected requests per client.
	RateLimited prometheus.Counter

	// Fallbacks counts provider failovers by the provider that failed.
	Fallbacks *prometheus.CounterVec

	// TokensSaved accumulates tokens removed by prompt compression.
	TokensSaved prometheus.Counter

	// Redactions counts masked PII values by type.
	Redactions *prometheus.CounterVec

	// BackgroundDropped counts background tasks evicted by queue overflow.
	BackgroundDropped prometheus.Counter
}

// New creates the gateway metrics, registered on reg. Pass
// prometheus.DefaultRegisterer in production; tests use a fresh registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_requests_total",
				Help: "Total requests served, by endpoint and outcome route",
			},
			[]string{"endpoint", "route"},
		),

		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_stage_duration_seconds",
				Help:    "Latency of each pipeline stage",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),

		RateLimited: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_rate_limited_total",
				Help: "Requests rejected by the sliding-window rate limiter",
			},
		),

		Fallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_provider_fallbacks_total",
				Help: "Provider failovers, by the provider that failed",
			},
			[]string{"failed_provider"},
		),

		TokensSaved: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_tokens_saved_total",
				Help: "Tokens removed from prompts by compression",
			},
		),

		Redactions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_pii_redactions_total",
				Help: "PII values masked, by entity type",
			},
			[]string{"type"},
		),

		BackgroundDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_background_dropped_total",
				Help: "Background tasks evicted by queue overflow",
			},
		),
	}
}
