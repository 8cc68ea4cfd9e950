package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/folio-dev/folio/pkg/classifier"
	"github.com/folio-dev/folio/pkg/logging"
	"github.com/folio-dev/folio/pkg/metrics"
	"github.com/folio-dev/folio/pkg/modeladapter"
	"github.com/folio-dev/folio/pkg/modeladapter/usage"
	"github.com/folio-dev/folio/pkg/orchestrator"
	"github.com/folio-dev/folio/pkg/prompts"
	"github.com/prometheus/client_golang/prometheus"
)

const defaultSystemTemplate = "system"

// Options carries process-level dependencies that do not come from YAML.
type Options struct {
	Logger     *slog.Logger          // Base logger; nil discards logs.
	Registerer prometheus.Registerer // Nil disables metric registration.
}

// Engine is the composition root that assembles the prompt resolver, the
// provider adapters and the orchestrator from configuration. It is read-only
// after New and safe for concurrent use.
type Engine struct {
	cfg       Config
	log       *slog.Logger
	metrics   *metrics.Recorder
	prompts   *prompts.Resolver
	orch      *orchestrator.Orchestrator
	providers []providerEntry // Priority order.
}

type providerEntry struct {
	cfg    ProviderConfig
	sender modeladapter.Sender
}

// ProviderStatus is a point-in-time view of one provider.
type ProviderStatus struct {
	Name      string                      `json:"name"`
	Kind      string                      `json:"kind"`
	Priority  int                         `json:"priority"`
	Model     string                      `json:"model"`
	Available bool                        `json:"available"`
	Calls     int                         `json:"calls"`
	Usage     usage.TokenCount            `json:"usage"`
	RateLimit *modeladapter.RateLimitInfo `json:"rate_limit,omitempty"`
}

// Status summarizes the engine for status endpoints.
type Status struct {
	Providers      []ProviderStatus `json:"providers"`
	Templates      []string         `json:"templates"`
	AttemptTimeout string           `json:"attempt_timeout"`
}

// New creates an Engine from the given configuration. It validates the config,
// loads prompt templates, creates provider adapters and wires the orchestrator.
func New(cfg Config, opts Options) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}

	e := &Engine{
		cfg: cfg,
		log: logging.WithComponent(log, "engine"),
	}

	if opts.Registerer != nil {
		e.metrics = metrics.New(opts.Registerer)
	}

	// Load prompt templates.
	if cfg.PromptsFile != "" {
		r, err := prompts.Load(cfg.PromptsFile)
		if err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
		e.prompts = r
	} else {
		e.prompts = prompts.Defaults()
	}

	// Build provider senders.
	providers := make([]orchestrator.Provider, 0, len(cfg.Providers))
	byName := make(map[string]providerEntry, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		s, err := buildSender(pc)
		if err != nil {
			return nil, fmt.Errorf("engine: provider %q: %w", pc.Name, err)
		}

		providers = append(providers, orchestrator.Provider{Name: pc.Name, Priority: pc.Priority, Sender: s})
		byName[pc.Name] = providerEntry{cfg: pc, sender: s}

		if d, ok := s.(modeladapter.Describer); ok && !d.Available() {
			e.log.Warn("provider is not configured; it will fail with AUTH", "provider", pc.Name, "kind", pc.Kind)
		}
	}

	attemptTimeout, _ := parseDuration(cfg.AttemptTimeout)

	templates := make(map[classifier.Intent]string, len(cfg.IntentTemplates))
	for intent, name := range cfg.IntentTemplates {
		templates[classifier.Intent(intent)] = name
	}

	for _, intent := range classifier.Intents {
		name := string(intent)
		if t, ok := templates[intent]; ok {
			name = t
		}
		if !e.prompts.Has(name) {
			e.log.Warn("no template for intent; requests with it will fail", "intent", intent, "template", name)
		}
	}

	systemTemplate := cfg.SystemTemplate
	if systemTemplate == "" {
		systemTemplate = defaultSystemTemplate
	}

	orch, err := orchestrator.New(providers, e.prompts, orchestrator.Options{
		AttemptTimeout: attemptTimeout,
		Templates:      templates,
		SystemTemplate: systemTemplate,
		Logger:         logging.WithComponent(log, "orchestrator"),
		Metrics:        e.metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	e.orch = orch

	for _, p := range orch.Providers() {
		e.providers = append(e.providers, byName[p.Name])
	}

	e.log.Info("engine ready",
		"providers", len(e.providers),
		"templates", len(e.prompts.Names()),
		"attempt_timeout", orch.AttemptTimeout(),
	)

	return e, nil
}

// Config returns the configuration the engine was built from.
func (e *Engine) Config() Config { return e.cfg }

// Metrics returns the metrics recorder, or nil when metrics are disabled.
func (e *Engine) Metrics() *metrics.Recorder { return e.metrics }

// Process runs one request through the orchestrator.
func (e *Engine) Process(ctx context.Context, req orchestrator.Request) (orchestrator.Response, error) {
	return e.orch.Process(ctx, req)
}

// Classify classifies text without calling any provider.
func (e *Engine) Classify(text string) classifier.Result {
	return e.orch.Classify(text)
}

// Status reports providers in priority order and the loaded templates.
func (e *Engine) Status() Status {
	st := Status{
		Providers:      make([]ProviderStatus, 0, len(e.providers)),
		Templates:      e.prompts.Names(),
		AttemptTimeout: e.orch.AttemptTimeout().String(),
	}

	for _, p := range e.providers {
		ps := ProviderStatus{
			Name:      p.cfg.Name,
			Kind:      p.cfg.Kind,
			Priority:  p.cfg.Priority,
			Model:     p.cfg.Model,
			Available: true,
		}

		if d, ok := p.sender.(modeladapter.Describer); ok {
			ps.Model = d.DefaultModel()
			ps.Available = d.Available()
		}
		if ur, ok := p.sender.(modeladapter.UsageReporter); ok {
			ps.Usage = ur.UsageTracker().Total()
			ps.Calls = ur.UsageTracker().Count()
		}
		if rr, ok := p.sender.(modeladapter.RateLimitInfoReporter); ok {
			ps.RateLimit = rr.LastRateLimitInfo()
		}

		st.Providers = append(st.Providers, ps)
	}

	return st
}

var startedAt = time.Now()

// Uptime returns how long the process has been running.
func Uptime() time.Duration { return time.Since(startedAt) }
