// Package metrics defines the Prometheus metrics of the gateway and the
// functions that record them.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "folio"

// Request outcomes.
const (
	OutcomeSuccess       = "success"
	OutcomeAllFailed     = "all_failed"
	OutcomeTemplateError = "template_error"
	OutcomeInvalid       = "invalid"
	OutcomeCancelled     = "cancelled"
)

// Recorder holds the metric vectors. A nil *Recorder records nothing.
type Recorder struct {
	attemptsTotal   *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	requestsTotal   *prometheus.CounterVec
	classifications *prometheus.CounterVec
	tokensTotal     *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	httpInFlight    prometheus.Gauge
}

// New creates a Recorder and registers its collectors with reg.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)

	return &Recorder{
		attemptsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_attempts_total",
				Help:      "Provider attempts by provider and outcome (success or error kind)",
			},
			[]string{"provider", "outcome"},
		),
		attemptDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_attempt_duration_seconds",
				Help:      "Duration of a single provider attempt in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 3, 5, 10, 30},
			},
			[]string{"provider"},
		),
		requestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Orchestrated requests by final outcome",
			},
			[]string{"outcome"},
		),
		classifications: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "classifications_total",
				Help:      "Classified messages by intent",
			},
			[]string{"intent"},
		),
		tokensTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_tokens_total",
				Help:      "Tokens reported by providers on successful attempts",
			},
			[]string{"provider"},
		),
		httpRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		httpInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),
	}
}

// RecordAttempt records one provider attempt. outcome is OutcomeSuccess or
// the provider error kind.
func (r *Recorder) RecordAttempt(provider, outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.attemptsTotal.WithLabelValues(provider, outcome).Inc()
	r.attemptDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// RecordTokens adds provider-reported token usage.
func (r *Recorder) RecordTokens(provider string, tokens int) {
	if r == nil || tokens <= 0 {
		return
	}
	r.tokensTotal.WithLabelValues(provider).Add(float64(tokens))
}

// RecordRequest records the final outcome of an orchestrated request.
func (r *Recorder) RecordRequest(outcome string) {
	if r == nil {
		return
	}
	r.requestsTotal.WithLabelValues(outcome).Inc()
}

// RecordClassification counts a classified message.
func (r *Recorder) RecordClassification(intent string) {
	if r == nil {
		return
	}
	r.classifications.WithLabelValues(intent).Inc()
}

// RecordHTTPStart marks an HTTP request as in flight.
func (r *Recorder) RecordHTTPStart() {
	if r == nil {
		return
	}
	r.httpInFlight.Inc()
}

// RecordHTTPFinish records a completed HTTP request.
func (r *Recorder) RecordHTTPFinish(method, path, status string, d time.Duration) {
	if r == nil {
		return
	}
	r.httpInFlight.Dec()
	r.httpRequests.WithLabelValues(method, path, status).Inc()
	r.httpDuration.WithLabelValues(method, path, status).Observe(d.Seconds())
}
