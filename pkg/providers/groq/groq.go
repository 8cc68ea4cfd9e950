// Package groq implements modeladapter.Sender for Groq-hosted models using
// the OpenAI-compatible chat completions API.
package groq

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/folio-dev/folio/pkg/modeladapter"
)

// DefaultBaseURL is the base URL for the Groq OpenAI-compatible API.
const DefaultBaseURL = "https://api.groq.com/openai"

// DefaultModel is used when the configuration names no model.
const DefaultModel = "llama3-8b-8192"

const completionsPath = "/v1/chat/completions"

// GroqAdapter sends chat completions to Groq's API.
type GroqAdapter struct {
	modeladapter.ModelAdapter
}

// New creates a GroqAdapter with the given API key and HTTP client.
// A nil client falls back to a default client.
func New(apiKey string, client *http.Client) *GroqAdapter {
	g := &GroqAdapter{
		ModelAdapter: modeladapter.New("groq", DefaultBaseURL, modeladapter.Auth{Key: apiKey}, client),
	}
	g.Model = DefaultModel
	g.Temperature = 0.7
	g.MaxTokens = 1024
	g.HeaderParser = modeladapter.ParseOpenAIRateLimitHeaders

	return g
}

// Send sends prompt to the Groq chat completions endpoint and returns the
// assistant's reply.
func (g *GroqAdapter) Send(ctx context.Context, prompt string, opts modeladapter.Options) (modeladapter.Response, error) {
	if err := g.Ready(); err != nil {
		return modeladapter.Response{}, err
	}

	opts = g.Resolve(opts)

	ctx, cancel := g.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	req := chatRequest{
		Model:       opts.Model,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	if opts.System != "" {
		req.Messages = append(req.Messages, apiMessage{Role: "system", Content: opts.System})
	}
	req.Messages = append(req.Messages, apiMessage{Role: "user", Content: prompt})

	start := time.Now()

	var resp chatResponse
	if err := g.PostJSON(ctx, completionsPath, req, &resp); err != nil {
		return modeladapter.Response{}, err
	}

	if len(resp.Choices) == 0 {
		return modeladapter.Response{}, g.Fail(modeladapter.KindInvalidResponse, "empty response")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return modeladapter.Response{}, g.Fail(modeladapter.KindInvalidResponse, "empty message content")
	}

	model := resp.Model
	if model == "" {
		model = opts.Model
	}

	in, out := -1, -1
	if resp.Usage != nil {
		in, out = resp.Usage.PromptTokens, resp.Usage.CompletionTokens
	}

	return g.Succeed(text, model, in, out, start), nil
}

// API request/response types.

type chatRequest struct {
	Model       string       `json:"model"`
	Messages    []apiMessage `json:"messages"`
	Temperature *float64     `json:"temperature,omitempty"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string    `json:"id"`
	Model   string    `json:"model"`
	Choices []choice  `json:"choices"`
	Usage   *apiUsage `json:"usage"`
}

type choice struct {
	Message      apiMessage `json:"message"`
	FinishReason string     `json:"finish_reason"`
}

type apiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// verifySender ensures GroqAdapter satisfies the Sender interface at compile time.
var _ modeladapter.Sender = (*GroqAdapter)(nil)
