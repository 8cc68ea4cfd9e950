package modeladapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/folio-dev/folio/pkg/modeladapter/usage"
)

// maxErrorBody caps how much of a failed response body is kept for diagnostics.
const maxErrorBody = 4096

// Options tunes a single Send call. Zero values fall back to the adapter's
// configured defaults.
type Options struct {
	Model       string        // Model identifier; empty uses the adapter default.
	Temperature *float64      // Sampling temperature; nil uses the adapter default.
	MaxTokens   int           // Maximum tokens in the reply; 0 uses the adapter default.
	System      string        // Optional system instruction sent alongside the prompt.
	Timeout     time.Duration // Per-call deadline; 0 means only the caller's context bounds the call.
}

// Response is the normalized reply of a successful provider call.
type Response struct {
	Text       string
	Provider   string
	Model      string
	TokensUsed *int // Nil when the provider did not report usage.
	LatencyMs  int64
	Succeeded  bool
}

// Sender sends one rendered prompt to an LLM provider and returns its reply.
// Implementations make exactly one outbound call per invocation and report
// every failure as a *ProviderError.
type Sender interface {
	Send(ctx context.Context, prompt string, opts Options) (Response, error)
}

// Describer is implemented by adapters that can report their identity and
// readiness for status pages.
type Describer interface {
	ProviderName() string
	DefaultModel() string
	Available() bool
}

// UsageReporter provides token usage information from a sender.
// Senders that embed ModelAdapter implement this interface automatically.
type UsageReporter interface {
	UsageTracker() *usage.Tracker
}

// Auth holds authentication settings for an LLM provider API.
type Auth struct {
	Key    string // API key value.
	Header string // Header name (default: "Authorization").
	Scheme string // Scheme prefix (default: "Bearer" when Header is "Authorization").
}

// ModelAdapter holds shared state for LLM provider implementations. Embed it in
// concrete provider structs to get HTTP helpers, auth, custom headers, option
// defaults and usage tracking. Concrete types define their own Send method.
type ModelAdapter struct {
	Name         string                // Provider name used in errors and responses (e.g. "groq").
	Model        string                // Default model identifier.
	Temperature  float64               // Default sampling temperature.
	MaxTokens    int                   // Default maximum tokens in the response.
	Auth         Auth                  // Authentication settings.
	BaseURL      string                // API base URL (no trailing slash).
	Client       *http.Client          // HTTP client; falls back to a shared default client.
	Headers      map[string]string     // Extra headers applied to every request.
	Usage        usage.Tracker         // Token usage totals.
	HeaderParser RateLimitHeaderParser // Optional parser for rate limit response headers.

	rateLimitInfo atomic.Pointer[RateLimitInfo]
	clientOnce    sync.Once
	defaultClient *http.Client
}

// New creates a ModelAdapter with the given settings.
// A nil client falls back to a default client at call time.
func New(name, baseURL string, auth Auth, client *http.Client) ModelAdapter {
	return ModelAdapter{
		Name:    name,
		Auth:    auth,
		BaseURL: baseURL,
		Client:  client,
	}
}

// ProviderName returns the adapter's provider name.
func (a *ModelAdapter) ProviderName() string { return a.Name }

// DefaultModel returns the model used when Options.Model is empty.
func (a *ModelAdapter) DefaultModel() string { return a.Model }

// Available reports whether the adapter has the credentials and model it
// needs to make a call.
func (a *ModelAdapter) Available() bool { return a.Auth.Key != "" && a.Model != "" }

// UsageTracker returns the adapter's token usage tracker.
func (a *ModelAdapter) UsageTracker() *usage.Tracker { return &a.Usage }

// LastRateLimitInfo returns the most recently observed rate limit info, or nil.
func (a *ModelAdapter) LastRateLimitInfo() *RateLimitInfo { return a.rateLimitInfo.Load() }

// Ready checks the adapter can be called at all. A missing key is an AUTH
// failure detected without touching the network.
func (a *ModelAdapter) Ready() error {
	if a.Auth.Key == "" {
		return a.Fail(KindAuth, "api key is not configured")
	}
	return nil
}

// Resolve fills zero-valued options with the adapter defaults.
func (a *ModelAdapter) Resolve(opts Options) Options {
	if opts.Model == "" {
		opts.Model = a.Model
	}
	if opts.Temperature == nil {
		t := a.Temperature
		opts.Temperature = &t
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = a.MaxTokens
	}
	return opts
}

// WithTimeout derives the per-call context. A zero timeout keeps the
// caller's context as is.
func (a *ModelAdapter) WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// Fail builds a ProviderError tagged with this adapter's name.
func (a *ModelAdapter) Fail(kind ErrorKind, format string, args ...any) *ProviderError {
	return &ProviderError{
		Kind:     kind,
		Provider: a.Name,
		Message:  fmt.Sprintf(format, args...),
	}
}

// Succeed builds the normalized response for a completed call, recording usage.
// A negative token count means the provider did not report usage.
func (a *ModelAdapter) Succeed(text, model string, inputTokens, outputTokens int, start time.Time) Response {
	resp := Response{
		Text:      text,
		Provider:  a.Name,
		Model:     model,
		LatencyMs: time.Since(start).Milliseconds(),
		Succeeded: true,
	}

	if inputTokens >= 0 && outputTokens >= 0 {
		a.Usage.Add(usage.TokenCount{InputTokens: inputTokens, OutputTokens: outputTokens})
		total := inputTokens + outputTokens
		resp.TokensUsed = &total
	}

	return resp
}

// httpClient returns the configured client or a cached default client with a 2-minute timeout.
func (a *ModelAdapter) httpClient() *http.Client {
	if a.Client != nil {
		return a.Client
	}

	a.clientOnce.Do(func() {
		a.defaultClient = &http.Client{Timeout: 2 * time.Minute}
	})

	return a.defaultClient
}

// NewRequest builds an *http.Request with the base URL, auth, and custom
// headers already applied.
func (a *ModelAdapter) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, a.BaseURL+path, body)
	if err != nil {
		return nil, err
	}

	if a.Auth.Key != "" {
		header := a.Auth.Header
		if header == "" {
			header = "Authorization"
		}

		value := a.Auth.Key
		if header == "Authorization" {
			scheme := a.Auth.Scheme
			if scheme == "" {
				scheme = "Bearer"
			}

			value = scheme + " " + value
		} else if a.Auth.Scheme != "" {
			value = a.Auth.Scheme + " " + value
		}

		req.Header.Set(header, value)
	}

	for k, v := range a.Headers {
		req.Header.Set(k, v)
	}

	return req, nil
}

// Do sends the request using the configured HTTP client.
func (a *ModelAdapter) Do(req *http.Request) (*http.Response, error) {
	return a.httpClient().Do(req) //nolint:gosec // URL is built from trusted BaseURL config, not user input.
}

// PostJSON marshals payload as JSON, sends a POST to the given path,
// checks for a 2xx status, and unmarshals the response body into dest.
// Every failure is returned as a *ProviderError with its kind already
// normalized.
func (a *ModelAdapter) PostJSON(ctx context.Context, path string, payload any, dest any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &ProviderError{Kind: KindTransport, Provider: a.Name, Message: "marshal payload", Err: err}
	}

	req, err := a.NewRequest(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return &ProviderError{Kind: KindTransport, Provider: a.Name, Message: "build request", Err: err}
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := a.Do(req)
	if err != nil {
		return &ProviderError{
			Kind:     kindForTransportError(ctx, err),
			Provider: a.Name,
			Message:  "do request",
			Err:      err,
		}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		pe := &ProviderError{
			Kind:       KindForStatus(resp.StatusCode),
			Provider:   a.Name,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("HTTP %d: %s", resp.StatusCode, errorMessage(respBody)),
		}
		if pe.Kind == KindRateLimit {
			pe.RetryAfter = ParseRetryAfter(resp.Header.Get("Retry-After"))
		}
		return pe
	}

	if a.HeaderParser != nil {
		if info := a.HeaderParser(resp.Header, time.Now()); info != nil {
			a.rateLimitInfo.Store(info)
		}
	}

	if dest == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		kind := KindInvalidResponse
		if ctx.Err() != nil {
			kind = kindForTransportError(ctx, err)
		}
		return &ProviderError{Kind: kind, Provider: a.Name, StatusCode: resp.StatusCode, Message: "decode response", Err: err}
	}

	return nil
}

// errorMessage extracts the message of an OpenAI or Anthropic style error
// envelope, falling back to the raw body.
func errorMessage(body []byte) string {
	var envelope struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}

	return string(body)
}
