// Package anthropic provides a Sender implementation for the Anthropic Messages API.
package anthropic

import (
	"context"
	"strings"
	"time"

	"github.com/folio-dev/folio/pkg/modeladapter"
)

const (
	// DefaultBaseURL is the public Anthropic API endpoint.
	DefaultBaseURL = "https://api.anthropic.com"
	// DefaultModel is used when the configuration names no model.
	DefaultModel = "claude-3-sonnet-20240229"

	messagesPath = "/v1/messages"
	apiVersion   = "2023-06-01"
)

var (
	_ modeladapter.Sender                = (*Adapter)(nil)
	_ modeladapter.Describer             = (*Adapter)(nil)
	_ modeladapter.RateLimitInfoReporter = (*Adapter)(nil)
)

// Adapter implements modeladapter.Sender for the Anthropic Messages API.
type Adapter struct {
	modeladapter.ModelAdapter
}

// New creates an Adapter configured for the Anthropic API.
// The baseURL should be "https://api.anthropic.com" (no trailing slash).
func New(baseURL, apiKey, model string) *Adapter {
	a := &Adapter{
		ModelAdapter: modeladapter.New("anthropic", baseURL, modeladapter.Auth{
			Key:    apiKey,
			Header: "x-api-key",
		}, nil),
	}
	a.Model = model
	a.Temperature = 0.7
	a.MaxTokens = 1024
	a.Headers = map[string]string{
		"anthropic-version": apiVersion,
	}
	a.HeaderParser = modeladapter.ParseAnthropicRateLimitHeaders

	return a
}

// Send posts prompt as a single user turn to the Messages API and returns the
// concatenated text blocks of the reply.
func (a *Adapter) Send(ctx context.Context, prompt string, opts modeladapter.Options) (modeladapter.Response, error) {
	if err := a.Ready(); err != nil {
		return modeladapter.Response{}, err
	}

	opts = a.Resolve(opts)

	ctx, cancel := a.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	req := apiRequest{
		Model:       opts.Model,
		MaxTokens:   opts.MaxTokens,
		System:      opts.System,
		Temperature: opts.Temperature,
		Messages: []apiMessage{{
			Role:    "user",
			Content: []apiContent{{Type: "text", Text: prompt}},
		}},
	}

	start := time.Now()

	var resp apiResponse
	if err := a.PostJSON(ctx, messagesPath, req, &resp); err != nil {
		return modeladapter.Response{}, err
	}

	text := strings.TrimSpace(resp.text())
	if text == "" {
		return modeladapter.Response{}, a.Fail(modeladapter.KindInvalidResponse, "no text content in response (stop_reason %q)", resp.StopReason)
	}

	model := resp.Model
	if model == "" {
		model = opts.Model
	}

	in, out := -1, -1
	if resp.Usage != nil {
		in, out = resp.Usage.InputTokens, resp.Usage.OutputTokens
	}

	return a.Succeed(text, model, in, out, start), nil
}

// --- request types ---

type apiRequest struct {
	Model       string       `json:"model"`
	MaxTokens   int          `json:"max_tokens"`
	System      string       `json:"system,omitempty"`
	Messages    []apiMessage `json:"messages"`
	Temperature *float64     `json:"temperature,omitempty"`
}

type apiMessage struct {
	Role    string       `json:"role"`
	Content []apiContent `json:"content"`
}

type apiContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// --- response types ---

type apiResponse struct {
	Model      string       `json:"model"`
	Content    []apiContent `json:"content"`
	StopReason string       `json:"stop_reason"`
	Usage      *apiUsage    `json:"usage"`
}

type apiUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func (r apiResponse) text() string {
	var sb strings.Builder
	for _, c := range r.Content {
		if c.Type == "text" {
			sb.WriteString(c.Text)
		}
	}
	return sb.String()
}
