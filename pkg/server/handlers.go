package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/folio-dev/folio/pkg/classifier"
	"github.com/folio-dev/folio/pkg/engine"
	"github.com/folio-dev/folio/pkg/orchestrator"
	"github.com/folio-dev/folio/pkg/prompts"
	"github.com/gin-gonic/gin"
)

// StatusClientClosedRequest is returned when the client goes away before a
// provider answers.
const StatusClientClosedRequest = 499

// ChatRequest is the body of POST /api/ai/chat.
type ChatRequest struct {
	Message     string            `json:"message"`
	Intent      string            `json:"intent,omitempty"`
	Context     map[string]string `json:"context,omitempty"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Temperature *float64          `json:"temperature,omitempty"`
	Provider    string            `json:"provider,omitempty"`
}

// ChatResponse is the success body of POST /api/ai/chat.
type ChatResponse struct {
	Text       string            `json:"text"`
	Provider   string            `json:"provider"`
	Model      string            `json:"model"`
	TokensUsed *int              `json:"tokens_used"`
	LatencyMs  int64             `json:"latency_ms"`
	Succeeded  bool              `json:"succeeded"`
	Intent     classifier.Intent `json:"intent"`
	Confidence float64           `json:"confidence"`
	Attempts   int               `json:"attempts"`
}

// ClassifyRequest is the body of POST /api/ai/classify.
type ClassifyRequest struct {
	Message string `json:"message"`
}

// StatusResponse is the body of GET /api/ai/status.
type StatusResponse struct {
	engine.Status
	UptimeSeconds int64 `json:"uptime_seconds"`
}

type errorBody struct {
	Type     string                       `json:"type"`
	Message  string                       `json:"message"`
	Attempts []orchestrator.AttemptRecord `json:"attempts,omitempty"`
}

func (s *Server) chat(c *gin.Context) {
	log := requestLogger(c, s.log)

	var body ChatRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		log.Warn("decode chat request", "error", err)
		writeError(c, http.StatusBadRequest, errorBody{Type: "invalid_request", Message: "invalid JSON body: " + err.Error()})
		return
	}

	resp, err := s.backend.Process(c.Request.Context(), orchestrator.Request{
		Message:     body.Message,
		Intent:      classifier.Intent(body.Intent),
		Context:     body.Context,
		MaxTokens:   body.MaxTokens,
		Temperature: body.Temperature,
		Provider:    body.Provider,
	})
	if err != nil {
		s.chatError(c, err)
		return
	}

	c.JSON(http.StatusOK, ChatResponse{
		Text:       resp.Text,
		Provider:   resp.Provider,
		Model:      resp.Model,
		TokensUsed: resp.TokensUsed,
		LatencyMs:  resp.LatencyMs,
		Succeeded:  resp.Succeeded,
		Intent:     resp.Intent,
		Confidence: resp.Classification.Confidence,
		Attempts:   resp.Attempts,
	})
}

// chatError maps orchestrator failures to HTTP statuses.
func (s *Server) chatError(c *gin.Context, err error) {
	var (
		allFailed *orchestrator.AllProvidersFailedError
		tmplErr   *prompts.TemplateError
	)

	switch {
	case errors.Is(err, orchestrator.ErrInvalidRequest):
		writeError(c, http.StatusBadRequest, errorBody{Type: "invalid_request", Message: err.Error()})
	case errors.As(err, &tmplErr):
		writeError(c, http.StatusInternalServerError, errorBody{Type: "template_error", Message: err.Error()})
	case errors.As(err, &allFailed):
		writeError(c, http.StatusServiceUnavailable, errorBody{
			Type:     "all_providers_failed",
			Message:  "no AI provider could answer the request",
			Attempts: allFailed.Attempts,
		})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(c, StatusClientClosedRequest, errorBody{Type: "cancelled", Message: err.Error()})
	default:
		requestLogger(c, s.log).Error("process chat request", "error", err)
		writeError(c, http.StatusInternalServerError, errorBody{Type: "internal_error", Message: "internal error"})
	}
}

func (s *Server) classify(c *gin.Context) {
	var body ClassifyRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, errorBody{Type: "invalid_request", Message: "invalid JSON body: " + err.Error()})
		return
	}

	if body.Message == "" {
		writeError(c, http.StatusBadRequest, errorBody{Type: "invalid_request", Message: "message is required"})
		return
	}

	c.JSON(http.StatusOK, s.backend.Classify(body.Message))
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, StatusResponse{
		Status:        s.backend.Status(),
		UptimeSeconds: int64(engine.Uptime() / time.Second),
	})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func writeError(c *gin.Context, status int, body errorBody) {
	c.AbortWithStatusJSON(status, gin.H{"error": body})
}
