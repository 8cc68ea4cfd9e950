// Package openai provides a Sender implementation for the OpenAI Chat Completions API.
package openai

import (
	"context"
	"strings"
	"time"

	"github.com/folio-dev/folio/pkg/modeladapter"
)

const (
	// DefaultBaseURL is the public OpenAI API endpoint.
	DefaultBaseURL = "https://api.openai.com"
	// DefaultModel is used when the configuration names no model.
	DefaultModel = "gpt-3.5-turbo"

	completionsPath = "/v1/chat/completions"
)

var (
	_ modeladapter.Sender                = (*Adapter)(nil)
	_ modeladapter.Describer             = (*Adapter)(nil)
	_ modeladapter.RateLimitInfoReporter = (*Adapter)(nil)
)

// Adapter implements modeladapter.Sender for the OpenAI Chat Completions API.
type Adapter struct {
	modeladapter.ModelAdapter
}

// New creates an Adapter configured for the OpenAI API.
// The baseURL should be "https://api.openai.com" (no trailing slash).
func New(baseURL, apiKey, model string) *Adapter {
	a := &Adapter{
		ModelAdapter: modeladapter.New("openai", baseURL, modeladapter.Auth{Key: apiKey}, nil),
	}
	a.Model = model
	a.Temperature = 0.7
	a.MaxTokens = 1024
	a.HeaderParser = modeladapter.ParseOpenAIRateLimitHeaders

	return a
}

// Send renders prompt as a single user message, optionally preceded by a
// system message, and returns the first choice's text.
func (a *Adapter) Send(ctx context.Context, prompt string, opts modeladapter.Options) (modeladapter.Response, error) {
	if err := a.Ready(); err != nil {
		return modeladapter.Response{}, err
	}

	opts = a.Resolve(opts)

	ctx, cancel := a.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	start := time.Now()

	var resp apiResponse
	if err := a.PostJSON(ctx, completionsPath, buildRequest(prompt, opts), &resp); err != nil {
		return modeladapter.Response{}, err
	}

	if len(resp.Choices) == 0 {
		return modeladapter.Response{}, a.Fail(modeladapter.KindInvalidResponse, "empty choices in response")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return modeladapter.Response{}, a.Fail(modeladapter.KindInvalidResponse, "empty message content (finish_reason %q)", resp.Choices[0].FinishReason)
	}

	model := resp.Model
	if model == "" {
		model = opts.Model
	}

	in, out := -1, -1
	if resp.Usage != nil {
		in, out = resp.Usage.PromptTokens, resp.Usage.CompletionTokens
	}

	return a.Succeed(text, model, in, out, start), nil
}

// --- request types ---

type apiRequest struct {
	Model       string       `json:"model"`
	Messages    []apiMessage `json:"messages"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Temperature *float64     `json:"temperature,omitempty"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// --- response types ---

type apiResponse struct {
	ID      string      `json:"id"`
	Model   string      `json:"model"`
	Choices []apiChoice `json:"choices"`
	Usage   *apiUsage   `json:"usage"`
}

type apiChoice struct {
	Message      apiMessage `json:"message"`
	FinishReason string     `json:"finish_reason"`
}

type apiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

func buildRequest(prompt string, opts modeladapter.Options) apiRequest {
	req := apiRequest{
		Model:       opts.Model,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}

	if opts.System != "" {
		req.Messages = append(req.Messages, apiMessage{Role: "system", Content: opts.System})
	}

	req.Messages = append(req.Messages, apiMessage{Role: "user", Content: prompt})

	return req
}
