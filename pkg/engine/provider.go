package engine

import (
	"fmt"
	"sync"

	"github.com/folio-dev/folio/pkg/modeladapter"
	"github.com/folio-dev/folio/pkg/providers/anthropic"
	"github.com/folio-dev/folio/pkg/providers/groq"
	"github.com/folio-dev/folio/pkg/providers/openai"
)

// ProviderFactory creates a Sender from a ProviderConfig.
type ProviderFactory func(cfg ProviderConfig) (modeladapter.Sender, error)

var (
	factoryMu   sync.RWMutex
	factories   = map[string]ProviderFactory{}
	defaultsReg sync.Once
)

func ensureDefaults() {
	defaultsReg.Do(func() {
		factories["anthropic"] = newAnthropic
		factories["openai"] = newOpenAI
		factories["groq"] = newGroq
	})
}

// RegisterProvider registers a custom provider factory under the given kind.
// It can be called before New to extend the engine with additional providers.
func RegisterProvider(kind string, factory ProviderFactory) {
	ensureDefaults()

	factoryMu.Lock()
	defer factoryMu.Unlock()

	factories[kind] = factory
}

// getFactory returns the factory for the given kind.
func getFactory(kind string) (ProviderFactory, bool) {
	ensureDefaults()

	factoryMu.RLock()
	defer factoryMu.RUnlock()

	f, ok := factories[kind]
	return f, ok
}

// applyDefaults copies the per-provider defaults from cfg onto the adapter.
func applyDefaults(a *modeladapter.ModelAdapter, cfg ProviderConfig) {
	a.Name = cfg.Name
	if cfg.Model != "" {
		a.Model = cfg.Model
	}
	if cfg.Temperature != nil {
		a.Temperature = *cfg.Temperature
	}
	if cfg.MaxTokens > 0 {
		a.MaxTokens = cfg.MaxTokens
	}
}

func newAnthropic(cfg ProviderConfig) (modeladapter.Sender, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = anthropic.DefaultBaseURL
	}

	a := anthropic.New(baseURL, cfg.APIKey, anthropic.DefaultModel)
	applyDefaults(&a.ModelAdapter, cfg)

	return a, nil
}

func newOpenAI(cfg ProviderConfig) (modeladapter.Sender, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = openai.DefaultBaseURL
	}

	a := openai.New(baseURL, cfg.APIKey, openai.DefaultModel)
	applyDefaults(&a.ModelAdapter, cfg)

	return a, nil
}

func newGroq(cfg ProviderConfig) (modeladapter.Sender, error) {
	a := groq.New(cfg.APIKey, nil)
	if cfg.BaseURL != "" {
		a.BaseURL = cfg.BaseURL
	}
	applyDefaults(&a.ModelAdapter, cfg)

	return a, nil
}

// buildSender creates a Sender from a ProviderConfig using the registered
// factory for its Kind. If rate limiting is configured, the sender is wrapped
// with a Throttle.
func buildSender(cfg ProviderConfig) (modeladapter.Sender, error) {
	factory, ok := getFactory(cfg.Kind)
	if !ok {
		return nil, fmt.Errorf("engine: unknown provider kind %q", cfg.Kind)
	}

	s, err := factory(cfg)
	if err != nil {
		return nil, err
	}

	rl := cfg.RateLimit
	if rl.RPM > 0 || rl.InputTPM > 0 {
		s = modeladapter.NewThrottle(s, modeladapter.ThrottleOpts{
			RPM:      rl.RPM,
			InputTPM: rl.InputTPM,
		})
	}

	return s, nil
}
