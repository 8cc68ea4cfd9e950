package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/folio-dev/folio/pkg/classifier"
	"github.com/folio-dev/folio/pkg/engine"
	"github.com/folio-dev/folio/pkg/metrics"
	"github.com/folio-dev/folio/pkg/modeladapter"
	"github.com/folio-dev/folio/pkg/orchestrator"
	"github.com/folio-dev/folio/pkg/prompts"
	"github.com/folio-dev/folio/pkg/server"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeBackend struct {
	resp orchestrator.Response
	err  error
	got  orchestrator.Request
}

func (f *fakeBackend) Process(_ context.Context, req orchestrator.Request) (orchestrator.Response, error) {
	f.got = req
	if f.err != nil {
		return orchestrator.Response{}, f.err
	}
	if err := req.Validate(); err != nil {
		return orchestrator.Response{}, err
	}
	return f.resp, nil
}

func (f *fakeBackend) Classify(text string) classifier.Result { return classifier.Classify(text) }

func (f *fakeBackend) Status() engine.Status {
	return engine.Status{
		Providers: []engine.ProviderStatus{
			{Name: "groq", Kind: "groq", Priority: 1, Model: "llama3-8b-8192", Available: true},
		},
		Templates:      []string{"question", "statement"},
		AttemptTimeout: "5s",
	}
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestChat_Success(t *testing.T) {
	tokens := 42
	be := &fakeBackend{resp: orchestrator.Response{
		Response: modeladapter.Response{
			Text:       "I built a gateway.",
			Provider:   "openai",
			Model:      "gpt-3.5-turbo",
			TokensUsed: &tokens,
			LatencyMs:  120,
			Succeeded:  true,
		},
		Intent:         classifier.Question,
		Classification: classifier.Result{Intent: classifier.Question, Confidence: 0.85},
		Attempts:       2,
	}}
	h := server.New(be, server.Options{}).Handler()

	rec := do(t, h, http.MethodPost, "/api/ai/chat",
		`{"message":"What have you built?","context":{"page":"home"},"max_tokens":200,"temperature":0.3,"provider":"openai"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get(server.HeaderRequestID), "req_"))

	var out server.ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "I built a gateway.", out.Text)
	assert.Equal(t, "openai", out.Provider)
	assert.Equal(t, "gpt-3.5-turbo", out.Model)
	require.NotNil(t, out.TokensUsed)
	assert.Equal(t, 42, *out.TokensUsed)
	assert.Equal(t, int64(120), out.LatencyMs)
	assert.True(t, out.Succeeded)
	assert.Equal(t, classifier.Question, out.Intent)
	assert.InDelta(t, 0.85, out.Confidence, 1e-9)
	assert.Equal(t, 2, out.Attempts)

	assert.Equal(t, "What have you built?", be.got.Message)
	assert.Equal(t, map[string]string{"page": "home"}, be.got.Context)
	assert.Equal(t, 200, be.got.MaxTokens)
	require.NotNil(t, be.got.Temperature)
	assert.InDelta(t, 0.3, *be.got.Temperature, 1e-9)
	assert.Equal(t, "openai", be.got.Provider)
}

func TestChat_KeepsClientRequestID(t *testing.T) {
	h := server.New(&fakeBackend{resp: orchestrator.Response{Response: modeladapter.Response{Text: "hi", Succeeded: true}}}, server.Options{}).Handler()

	req := httptest.NewRequest(http.MethodPost, "/api/ai/chat", strings.NewReader(`{"message":"hi"}`))
	req.Header.Set(server.HeaderRequestID, "req_client")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "req_client", rec.Header().Get(server.HeaderRequestID))
}

func TestChat_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		err      error
		wantCode int
		wantType string
	}{
		{"malformed json", `{"message":`, nil, http.StatusBadRequest, "invalid_request"},
		{"empty message", `{"message":"  "}`, nil, http.StatusBadRequest, "invalid_request"},
		{"bad temperature", `{"message":"hi","temperature":3}`, nil, http.StatusBadRequest, "invalid_request"},
		{"template", `{"message":"hi"}`, &prompts.TemplateError{Kind: prompts.KindNotFound, Template: "question"}, http.StatusInternalServerError, "template_error"},
		{"cancelled", `{"message":"hi"}`, context.Canceled, server.StatusClientClosedRequest, "cancelled"},
		{"unexpected", `{"message":"hi"}`, assert.AnError, http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := server.New(&fakeBackend{err: tt.err}, server.Options{}).Handler()

			rec := do(t, h, http.MethodPost, "/api/ai/chat", tt.body)
			require.Equal(t, tt.wantCode, rec.Code)

			errObj, ok := decode(t, rec)["error"].(map[string]any)
			require.True(t, ok)
			assert.Equal(t, tt.wantType, errObj["type"])
		})
	}
}

func TestChat_AllProvidersFailed(t *testing.T) {
	be := &fakeBackend{err: &orchestrator.AllProvidersFailedError{Attempts: []orchestrator.AttemptRecord{
		{Provider: "groq", Kind: modeladapter.KindRateLimit, Message: "slow down", DurationMs: 12},
		{Provider: "openai", Kind: modeladapter.KindTimeout, Message: "deadline", DurationMs: 5000},
	}}}
	h := server.New(be, server.Options{}).Handler()

	rec := do(t, h, http.MethodPost, "/api/ai/chat", `{"message":"hi"}`)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var out struct {
		Error struct {
			Type     string                       `json:"type"`
			Attempts []orchestrator.AttemptRecord `json:"attempts"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "all_providers_failed", out.Error.Type)
	require.Len(t, out.Error.Attempts, 2)
	assert.Equal(t, "groq", out.Error.Attempts[0].Provider)
	assert.Equal(t, modeladapter.KindRateLimit, out.Error.Attempts[0].Kind)
	assert.Equal(t, int64(5000), out.Error.Attempts[1].DurationMs)
}

func TestClassify(t *testing.T) {
	h := server.New(&fakeBackend{}, server.Options{}).Handler()

	rec := do(t, h, http.MethodPost, "/api/ai/classify", `{"message":"Find certificates related to AWS"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var out classifier.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, classifier.Search, out.Intent)
	assert.Contains(t, out.Entities, "AWS")

	rec = do(t, h, http.MethodPost, "/api/ai/classify", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusAndHealth(t *testing.T) {
	h := server.New(&fakeBackend{}, server.Options{}).Handler()

	rec := do(t, h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/ai/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	out := decode(t, rec)
	assert.Equal(t, "5s", out["attempt_timeout"])
	assert.Contains(t, out, "uptime_seconds")
	providers, ok := out["providers"].([]any)
	require.True(t, ok)
	require.Len(t, providers, 1)
	assert.Equal(t, "groq", providers[0].(map[string]any)["name"])
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := metrics.New(reg)
	h := server.New(&fakeBackend{}, server.Options{Metrics: rec, Gatherer: reg}).Handler()

	do(t, h, http.MethodGet, "/health", "")
	do(t, h, http.MethodGet, "/nope", "")

	count, err := testutil.GatherAndCount(reg, "folio_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	res := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), `folio_http_requests_total{method="GET",path="/health",status="200"} 1`)
	assert.Contains(t, res.Body.String(), `path="unmatched",status="404"`)
}

func TestMetricsEndpoint_Disabled(t *testing.T) {
	h := server.New(&fakeBackend{}, server.Options{}).Handler()

	rec := do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
