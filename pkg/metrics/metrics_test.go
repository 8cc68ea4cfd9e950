package metrics_test

import (
	"strings"
	"testing"
	"time"

	"github.com/folio-dev/folio/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAttempt(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := metrics.New(reg)

	r.RecordAttempt("groq", "RATE_LIMIT", 120*time.Millisecond)
	r.RecordAttempt("openai", metrics.OutcomeSuccess, 800*time.Millisecond)
	r.RecordAttempt("openai", metrics.OutcomeSuccess, 900*time.Millisecond)

	expected := `
# HELP folio_provider_attempts_total Provider attempts by provider and outcome (success or error kind)
# TYPE folio_provider_attempts_total counter
folio_provider_attempts_total{outcome="RATE_LIMIT",provider="groq"} 1
folio_provider_attempts_total{outcome="success",provider="openai"} 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "folio_provider_attempts_total"))

	count, err := testutil.GatherAndCount(reg, "folio_provider_attempt_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRecordRequestAndClassification(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := metrics.New(reg)

	r.RecordRequest(metrics.OutcomeSuccess)
	r.RecordRequest(metrics.OutcomeAllFailed)
	r.RecordRequest(metrics.OutcomeSuccess)
	r.RecordClassification("question")
	r.RecordTokens("groq", 15)
	r.RecordTokens("groq", 0)

	expected := `
# HELP folio_requests_total Orchestrated requests by final outcome
# TYPE folio_requests_total counter
folio_requests_total{outcome="all_failed"} 1
folio_requests_total{outcome="success"} 2
# HELP folio_classifications_total Classified messages by intent
# TYPE folio_classifications_total counter
folio_classifications_total{intent="question"} 1
# HELP folio_provider_tokens_total Tokens reported by providers on successful attempts
# TYPE folio_provider_tokens_total counter
folio_provider_tokens_total{provider="groq"} 15
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"folio_requests_total", "folio_classifications_total", "folio_provider_tokens_total"))
}

func TestRecordHTTP(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := metrics.New(reg)

	r.RecordHTTPStart()
	r.RecordHTTPStart()
	r.RecordHTTPFinish("POST", "/api/ai/chat", "200", 10*time.Millisecond)

	expected := `
# HELP folio_http_requests_in_flight Current number of HTTP requests being processed
# TYPE folio_http_requests_in_flight gauge
folio_http_requests_in_flight 1
# HELP folio_http_requests_total Total number of HTTP requests
# TYPE folio_http_requests_total counter
folio_http_requests_total{method="POST",path="/api/ai/chat",status="200"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"folio_http_requests_in_flight", "folio_http_requests_total"))
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *metrics.Recorder

	assert.NotPanics(t, func() {
		r.RecordAttempt("groq", "AUTH", time.Second)
		r.RecordTokens("groq", 1)
		r.RecordRequest(metrics.OutcomeSuccess)
		r.RecordClassification("search")
		r.RecordHTTPStart()
		r.RecordHTTPFinish("GET", "/health", "200", time.Millisecond)
	})
}

func TestNew_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.New(reg)

	assert.Panics(t, func() { metrics.New(reg) })
}
