package modeladapter_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/folio-dev/folio/pkg/modeladapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time interface checks: ModelAdapter provides the optional reporters.
var (
	_ modeladapter.Describer             = (*modeladapter.ModelAdapter)(nil)
	_ modeladapter.UsageReporter         = (*modeladapter.ModelAdapter)(nil)
	_ modeladapter.RateLimitInfoReporter = (*modeladapter.ModelAdapter)(nil)
)

func newAdapter(t *testing.T, handler http.HandlerFunc) *modeladapter.ModelAdapter {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	a := modeladapter.New("test", srv.URL, modeladapter.Auth{Key: "sk-test"}, srv.Client())
	a.Model = "test-model"

	return &a
}

func TestNew_Defaults(t *testing.T) {
	a := modeladapter.New("groq", "https://api.example.com", modeladapter.Auth{}, nil)
	assert.Nil(t, a.Client)
	assert.Equal(t, "groq", a.ProviderName())
	assert.False(t, a.Available())

	a.Auth.Key = "k"
	a.Model = "m"
	assert.True(t, a.Available())
}

func TestReady_MissingKey(t *testing.T) {
	a := modeladapter.New("groq", "https://api.example.com", modeladapter.Auth{}, nil)

	err := a.Ready()
	require.Error(t, err)
	assert.Equal(t, modeladapter.KindAuth, modeladapter.KindOf(err))
	assert.EqualError(t, err, "groq: AUTH: api key is not configured")
}

func TestResolve_FillsDefaults(t *testing.T) {
	a := modeladapter.New("openai", "", modeladapter.Auth{}, nil)
	a.Model = "gpt-4o-mini"
	a.Temperature = 0.7
	a.MaxTokens = 1024

	got := a.Resolve(modeladapter.Options{})
	assert.Equal(t, "gpt-4o-mini", got.Model)
	require.NotNil(t, got.Temperature)
	assert.InDelta(t, 0.7, *got.Temperature, 1e-9)
	assert.Equal(t, 1024, got.MaxTokens)

	zero := 0.0
	got = a.Resolve(modeladapter.Options{Model: "gpt-4o", Temperature: &zero, MaxTokens: 10})
	assert.Equal(t, "gpt-4o", got.Model)
	assert.InDelta(t, 0.0, *got.Temperature, 1e-9, "explicit zero temperature is kept")
	assert.Equal(t, 10, got.MaxTokens)
}

func TestSucceed_RecordsUsage(t *testing.T) {
	a := modeladapter.New("groq", "", modeladapter.Auth{}, nil)

	resp := a.Succeed("hello", "llama", 10, 5, time.Now())
	assert.True(t, resp.Succeeded)
	assert.Equal(t, "groq", resp.Provider)
	require.NotNil(t, resp.TokensUsed)
	assert.Equal(t, 15, *resp.TokensUsed)
	assert.GreaterOrEqual(t, resp.LatencyMs, int64(0))
	assert.Equal(t, 15, a.Usage.Total().Total())

	resp = a.Succeed("hello", "llama", -1, -1, time.Now())
	assert.Nil(t, resp.TokensUsed)
	assert.Equal(t, 1, a.Usage.Count())
}

func TestNewRequest_BearerAuth(t *testing.T) {
	a := modeladapter.New("x", "https://api.example.com", modeladapter.Auth{Key: "sk-test"}, nil)

	req, err := a.NewRequest(context.Background(), http.MethodGet, "/v1/chat", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/v1/chat", req.URL.String())
	assert.Equal(t, "Bearer sk-test", req.Header.Get("Authorization"))
}

func TestNewRequest_CustomHeaderAndExtras(t *testing.T) {
	a := modeladapter.New("x", "https://api.example.com", modeladapter.Auth{Key: "sk-test", Header: "x-api-key"}, nil)
	a.Headers = map[string]string{"anthropic-version": "2023-06-01"}

	req, err := a.NewRequest(context.Background(), http.MethodGet, "/v1/messages", nil)
	require.NoError(t, err)
	assert.Equal(t, "sk-test", req.Header.Get("x-api-key"))
	assert.Empty(t, req.Header.Get("Authorization"))
	assert.Equal(t, "2023-06-01", req.Header.Get("anthropic-version"))
}

func TestPostJSON_Success(t *testing.T) {
	type reqBody struct {
		Model string `json:"model"`
	}
	type respBody struct {
		ID string `json:"id"`
	}

	a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var got reqBody
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, "gpt-4", got.Model)

		w.Header().Set("x-ratelimit-remaining-requests", "9")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(respBody{ID: "chatcmpl-123"})
	})
	a.HeaderParser = modeladapter.ParseOpenAIRateLimitHeaders

	var dest respBody
	require.NoError(t, a.PostJSON(context.Background(), "/v1/chat", reqBody{Model: "gpt-4"}, &dest))
	assert.Equal(t, "chatcmpl-123", dest.ID)

	info := a.LastRateLimitInfo()
	require.NotNil(t, info)
	assert.Equal(t, 9, info.RemainingRequests)
}

func TestPostJSON_StatusKinds(t *testing.T) {
	tests := []struct {
		status int
		kind   modeladapter.ErrorKind
	}{
		{http.StatusUnauthorized, modeladapter.KindAuth},
		{http.StatusForbidden, modeladapter.KindAuth},
		{http.StatusTooManyRequests, modeladapter.KindRateLimit},
		{http.StatusRequestTimeout, modeladapter.KindTimeout},
		{http.StatusGatewayTimeout, modeladapter.KindTimeout},
		{http.StatusInternalServerError, modeladapter.KindTransport},
		{http.StatusServiceUnavailable, modeladapter.KindTransport},
		{529, modeladapter.KindTransport},
		{http.StatusBadRequest, modeladapter.KindInvalidResponse},
		{http.StatusNotFound, modeladapter.KindInvalidResponse},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			a := newAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Retry-After", "7")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"type":"x","message":"nope"}}`))
			})

			err := a.PostJSON(context.Background(), "/v1/chat", map[string]string{}, nil)

			var pe *modeladapter.ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.kind, pe.Kind)
			assert.Equal(t, tt.status, pe.StatusCode)
			assert.Equal(t, "test", pe.Provider)
			assert.Contains(t, pe.Message, "nope")

			if tt.kind == modeladapter.KindRateLimit {
				assert.Equal(t, 7*time.Second, pe.RetryAfter)
			} else {
				assert.Zero(t, pe.RetryAfter)
			}
		})
	}
}

func TestPostJSON_MalformedBody(t *testing.T) {
	a := newAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	})

	var dest map[string]any
	err := a.PostJSON(context.Background(), "/v1/chat", map[string]string{}, &dest)
	assert.Equal(t, modeladapter.KindInvalidResponse, modeladapter.KindOf(err))
}

func TestPostJSON_Timeout(t *testing.T) {
	release := make(chan struct{})
	a := newAdapter(t, func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := a.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := a.PostJSON(ctx, "/v1/chat", map[string]string{}, nil)

	assert.Equal(t, modeladapter.KindTimeout, modeladapter.KindOf(err))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestPostJSON_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	a := modeladapter.New("down", url, modeladapter.Auth{Key: "k"}, nil)

	err := a.PostJSON(context.Background(), "/v1/chat", map[string]string{}, nil)
	assert.Equal(t, modeladapter.KindTransport, modeladapter.KindOf(err))
}

func TestPostJSON_MarshalError(t *testing.T) {
	a := modeladapter.New("x", "https://api.example.com", modeladapter.Auth{}, nil)

	err := a.PostJSON(context.Background(), "/v1/chat", make(chan int), nil)
	assert.ErrorContains(t, err, "marshal payload")
}

func TestDo_Passthrough(t *testing.T) {
	a := newAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	req, err := a.NewRequest(context.Background(), http.MethodGet, "/ping", nil)
	require.NoError(t, err)

	resp, err := a.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "ok", string(body))
}

func TestProviderError_Format(t *testing.T) {
	pe := &modeladapter.ProviderError{Kind: modeladapter.KindRateLimit, Provider: "groq", RetryAfter: 2 * time.Second, Message: "slow down"}
	assert.Equal(t, "groq: RATE_LIMIT (retry after 2s): slow down", pe.Error())
	assert.True(t, pe.Retryable())

	cause := errors.New("boom")
	pe = &modeladapter.ProviderError{Kind: modeladapter.KindAuth, Err: cause}
	assert.Equal(t, "AUTH: boom", pe.Error())
	assert.ErrorIs(t, pe, cause)
	assert.False(t, pe.Retryable())

	assert.Equal(t, modeladapter.ErrorKind(""), modeladapter.KindOf(cause))
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, time.Duration(0), modeladapter.ParseRetryAfter(""))
	assert.Equal(t, 3*time.Second, modeladapter.ParseRetryAfter("3"))
	assert.Equal(t, time.Duration(0), modeladapter.ParseRetryAfter("soon"))

	past := time.Now().Add(-time.Hour).UTC().Format(http.TimeFormat)
	assert.Equal(t, time.Duration(0), modeladapter.ParseRetryAfter(past))

	future := time.Now().Add(time.Hour).UTC().Format(http.TimeFormat)
	assert.Greater(t, modeladapter.ParseRetryAfter(future), 50*time.Minute)
}
