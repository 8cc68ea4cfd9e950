// Package orchestrator sends a classified, rendered prompt to a prioritized
// list of providers and returns the first successful reply.
//
// Providers are tried one at a time in ascending priority. Each gets exactly
// one attempt per request, bounded by the attempt timeout; any provider error
// moves on to the next provider. Template errors and caller cancellation stop
// the request immediately.
package orchestrator

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/folio-dev/folio/pkg/classifier"
	"github.com/folio-dev/folio/pkg/logging"
	"github.com/folio-dev/folio/pkg/metrics"
	"github.com/folio-dev/folio/pkg/modeladapter"
)

// DefaultAttemptTimeout bounds a single provider attempt when Options leaves
// it unset.
const DefaultAttemptTimeout = 5 * time.Second

// Renderer renders named prompt templates. *prompts.Resolver implements it.
type Renderer interface {
	Render(name string, vars map[string]string) (string, error)
	Has(name string) bool
}

// Provider is one entry of the fallback list.
type Provider struct {
	Name     string
	Priority int // Lower is tried first; unique across providers.
	Sender   modeladapter.Sender
}

// AttemptRecord describes one failed provider attempt.
type AttemptRecord struct {
	Provider   string                 `json:"provider"`
	Kind       modeladapter.ErrorKind `json:"kind"`
	Message    string                 `json:"message"`
	DurationMs int64                  `json:"duration_ms"`
}

// AllProvidersFailedError is returned when every provider failed. Attempts
// are in the order the providers were tried.
type AllProvidersFailedError struct {
	Attempts []AttemptRecord
}

func (e *AllProvidersFailedError) Error() string {
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = fmt.Sprintf("%s: %s", a.Provider, a.Kind)
	}
	return fmt.Sprintf("orchestrator: all %d providers failed (%s)", len(e.Attempts), strings.Join(parts, "; "))
}

// Response is the successful result of Process.
type Response struct {
	modeladapter.Response
	Intent         classifier.Intent
	Template       string
	Classification classifier.Result
	Attempts       int // Providers tried, including the successful one.
}

// Options configures an Orchestrator.
type Options struct {
	// AttemptTimeout bounds each provider attempt. Zero means DefaultAttemptTimeout.
	AttemptTimeout time.Duration
	// Templates maps an intent to a template name. Intents not listed use
	// their label as the template name.
	Templates map[classifier.Intent]string
	// SystemTemplate, when present in the Renderer, is rendered with the same
	// variables and sent as the system instruction.
	SystemTemplate string
	Logger         *slog.Logger
	Metrics        *metrics.Recorder
	// Classify replaces classifier.Classify, mainly in tests.
	Classify func(string) classifier.Result
}

// Orchestrator is safe for concurrent use; it holds no per-request state.
type Orchestrator struct {
	providers      []Provider
	renderer       Renderer
	attemptTimeout time.Duration
	templates      map[classifier.Intent]string
	systemTemplate string
	log            *slog.Logger
	metrics        *metrics.Recorder
	classify       func(string) classifier.Result
}

// New builds an Orchestrator. Provider names and priorities must be unique.
func New(providers []Provider, renderer Renderer, opts Options) (*Orchestrator, error) {
	if len(providers) == 0 {
		return nil, errors.New("orchestrator: at least one provider is required")
	}
	if renderer == nil {
		return nil, errors.New("orchestrator: renderer is required")
	}

	names := make(map[string]struct{}, len(providers))
	priorities := make(map[int]string, len(providers))
	for _, p := range providers {
		if p.Name == "" {
			return nil, errors.New("orchestrator: provider name is required")
		}
		if p.Sender == nil {
			return nil, fmt.Errorf("orchestrator: provider %q: sender is required", p.Name)
		}
		if _, dup := names[p.Name]; dup {
			return nil, fmt.Errorf("orchestrator: duplicate provider name %q", p.Name)
		}
		if other, dup := priorities[p.Priority]; dup {
			return nil, fmt.Errorf("orchestrator: providers %q and %q share priority %d", other, p.Name, p.Priority)
		}
		names[p.Name] = struct{}{}
		priorities[p.Priority] = p.Name
	}

	sorted := slices.Clone(providers)
	slices.SortFunc(sorted, func(a, b Provider) int { return cmp.Compare(a.Priority, b.Priority) })

	o := &Orchestrator{
		providers:      sorted,
		renderer:       renderer,
		attemptTimeout: opts.AttemptTimeout,
		templates:      opts.Templates,
		systemTemplate: opts.SystemTemplate,
		log:            opts.Logger,
		metrics:        opts.Metrics,
		classify:       opts.Classify,
	}

	if o.attemptTimeout <= 0 {
		o.attemptTimeout = DefaultAttemptTimeout
	}
	if o.log == nil {
		o.log = logging.Discard()
	}
	if o.classify == nil {
		o.classify = classifier.Classify
	}

	return o, nil
}

// Providers returns the providers in priority order.
func (o *Orchestrator) Providers() []Provider {
	return slices.Clone(o.providers)
}

// AttemptTimeout returns the per-attempt deadline.
func (o *Orchestrator) AttemptTimeout() time.Duration { return o.attemptTimeout }

// Classify classifies text without calling any provider.
func (o *Orchestrator) Classify(text string) classifier.Result {
	res := o.classify(text)
	o.metrics.RecordClassification(string(res.Intent))
	return res
}

// Process classifies the request, renders its template and tries providers
// in order until one returns non-empty text.
//
// Errors: ErrInvalidRequest (wrapped) for bad input, *prompts.TemplateError
// for template problems, the context error if ctx ends first, and
// *AllProvidersFailedError when every provider failed.
func (o *Orchestrator) Process(ctx context.Context, req Request) (Response, error) {
	log := logging.FromContext(ctx, o.log)

	if err := req.Validate(); err != nil {
		o.metrics.RecordRequest(metrics.OutcomeInvalid)
		return Response{}, err
	}

	cls := o.Classify(req.Message)

	intent := cls.Intent
	if req.Intent != "" {
		intent = req.Intent
	}

	tmpl := o.templateFor(intent)
	vars := templateVars(req, intent, cls)

	prompt, err := o.renderer.Render(tmpl, vars)
	if err != nil {
		o.metrics.RecordRequest(metrics.OutcomeTemplateError)
		log.ErrorContext(ctx, "render prompt", "template", tmpl, "error", err)
		return Response{}, err
	}

	var system string
	if o.systemTemplate != "" && o.renderer.Has(o.systemTemplate) {
		system, err = o.renderer.Render(o.systemTemplate, vars)
		if err != nil {
			o.metrics.RecordRequest(metrics.OutcomeTemplateError)
			log.ErrorContext(ctx, "render system prompt", "template", o.systemTemplate, "error", err)
			return Response{}, err
		}
	}

	opts := modeladapter.Options{
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		System:      system,
		Timeout:     o.attemptTimeout,
	}

	order := o.order(req.Provider)
	attempts := make([]AttemptRecord, 0, len(order))

	for i, p := range order {
		if err := ctx.Err(); err != nil {
			return Response{}, o.cancelled(ctx, log, err)
		}

		resp, rec, ok := o.attempt(ctx, p, prompt, opts)

		if err := ctx.Err(); err != nil {
			return Response{}, o.cancelled(ctx, log, err)
		}

		if !ok {
			attempts = append(attempts, rec)
			log.WarnContext(ctx, "provider attempt failed",
				"provider", rec.Provider,
				"kind", rec.Kind,
				"duration_ms", rec.DurationMs,
				"error", rec.Message,
			)
			continue
		}

		log.InfoContext(ctx, "provider attempt succeeded",
			"provider", p.Name,
			"model", resp.Model,
			"intent", intent,
			"attempt", i+1,
			"latency_ms", resp.LatencyMs,
		)
		o.metrics.RecordRequest(metrics.OutcomeSuccess)

		return Response{
			Response:       resp,
			Intent:         intent,
			Template:       tmpl,
			Classification: cls,
			Attempts:       i + 1,
		}, nil
	}

	o.metrics.RecordRequest(metrics.OutcomeAllFailed)
	log.ErrorContext(ctx, "all providers failed", "attempts", len(attempts))

	return Response{}, &AllProvidersFailedError{Attempts: attempts}
}

// attempt makes the single call allowed for p. On failure it returns the
// record to append.
func (o *Orchestrator) attempt(ctx context.Context, p Provider, prompt string, opts modeladapter.Options) (modeladapter.Response, AttemptRecord, bool) {
	attemptCtx, cancel := context.WithTimeout(ctx, o.attemptTimeout)
	defer cancel()

	start := time.Now()
	resp, err := p.Sender.Send(attemptCtx, prompt, opts)
	elapsed := time.Since(start)

	if err == nil {
		resp.Text = strings.TrimSpace(resp.Text)
		if resp.Text == "" {
			err = &modeladapter.ProviderError{Kind: modeladapter.KindInvalidResponse, Provider: p.Name, Message: "empty response text"}
		}
	}

	if err != nil {
		kind := modeladapter.KindOf(err)
		if kind == "" {
			kind = modeladapter.KindTransport
			if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
				kind = modeladapter.KindTimeout
			}
		}

		o.metrics.RecordAttempt(p.Name, string(kind), elapsed)

		return modeladapter.Response{}, AttemptRecord{
			Provider:   p.Name,
			Kind:       kind,
			Message:    err.Error(),
			DurationMs: elapsed.Milliseconds(),
		}, false
	}

	resp.Provider = p.Name
	resp.Succeeded = true
	if resp.LatencyMs <= 0 {
		resp.LatencyMs = elapsed.Milliseconds()
	}

	o.metrics.RecordAttempt(p.Name, metrics.OutcomeSuccess, elapsed)
	if resp.TokensUsed != nil {
		o.metrics.RecordTokens(p.Name, *resp.TokensUsed)
	}

	return resp, AttemptRecord{}, true
}

func (o *Orchestrator) cancelled(ctx context.Context, log *slog.Logger, err error) error {
	o.metrics.RecordRequest(metrics.OutcomeCancelled)
	log.InfoContext(ctx, "request cancelled", "error", err)
	return err
}

// order returns the providers to try, with preferred moved to the front when
// it names a configured provider.
func (o *Orchestrator) order(preferred string) []Provider {
	if preferred == "" {
		return o.providers
	}

	idx := slices.IndexFunc(o.providers, func(p Provider) bool { return p.Name == preferred })
	if idx <= 0 {
		return o.providers
	}

	out := make([]Provider, 0, len(o.providers))
	out = append(out, o.providers[idx])
	out = append(out, o.providers[:idx]...)
	out = append(out, o.providers[idx+1:]...)

	return out
}

func (o *Orchestrator) templateFor(intent classifier.Intent) string {
	if name, ok := o.templates[intent]; ok && name != "" {
		return name
	}
	return string(intent)
}

func templateVars(req Request, intent classifier.Intent, cls classifier.Result) map[string]string {
	vars := make(map[string]string, len(req.Context)+len(reservedVars))
	for k, v := range req.Context {
		vars[k] = v
	}

	vars[VarMessage] = strings.TrimSpace(req.Message)
	vars[VarIntent] = string(intent)
	vars[VarTopic] = string(cls.Topic)
	vars[VarConfidence] = strconv.FormatFloat(cls.Confidence, 'f', 2, 64)
	vars[VarKeywords] = joinOrNone(cls.Keywords)
	vars[VarEntities] = joinOrNone(cls.Entities)

	return vars
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}
