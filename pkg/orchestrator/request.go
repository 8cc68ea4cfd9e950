package orchestrator

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/folio-dev/folio/pkg/classifier"
)

// MaxContextEntries bounds Request.Context.
const MaxContextEntries = 32

// ErrInvalidRequest is wrapped by every Request validation failure.
var ErrInvalidRequest = errors.New("orchestrator: invalid request")

// Template variables set by the orchestrator. Request context may not use
// these names.
const (
	VarMessage    = "message"
	VarIntent     = "intent"
	VarTopic      = "topic"
	VarConfidence = "confidence"
	VarKeywords   = "keywords"
	VarEntities   = "entities"
)

var reservedVars = []string{VarMessage, VarIntent, VarTopic, VarConfidence, VarKeywords, VarEntities}

// Request is a normalized chat request. Treat it as immutable once passed to
// Process.
type Request struct {
	Message     string
	Intent      classifier.Intent // Optional; overrides the classified intent.
	Context     map[string]string // Optional extra template variables.
	MaxTokens   int               // 0 uses the provider default.
	Temperature *float64          // Nil uses the provider default.
	Provider    string            // Optional preferred provider, tried first.
}

// Validate checks the request before any provider is called.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Message) == "" {
		return fmt.Errorf("%w: message is required", ErrInvalidRequest)
	}

	if r.Intent != "" && !r.Intent.Valid() {
		return fmt.Errorf("%w: unknown intent %q", ErrInvalidRequest, r.Intent)
	}

	if r.MaxTokens < 0 {
		return fmt.Errorf("%w: max tokens must be positive", ErrInvalidRequest)
	}

	if t := r.Temperature; t != nil && (math.IsNaN(*t) || *t < 0 || *t > 1) {
		return fmt.Errorf("%w: temperature must be within [0, 1]", ErrInvalidRequest)
	}

	if len(r.Context) > MaxContextEntries {
		return fmt.Errorf("%w: context has %d entries, limit is %d", ErrInvalidRequest, len(r.Context), MaxContextEntries)
	}

	for _, name := range reservedVars {
		if _, ok := r.Context[name]; ok {
			return fmt.Errorf("%w: context key %q is reserved", ErrInvalidRequest, name)
		}
	}

	return nil
}
