package engine

import (
	"fmt"
	"os"
	"time"

	"github.com/folio-dev/folio/pkg/classifier"
	"gopkg.in/yaml.v3"
)

// Config is the top-level gateway configuration.
type Config struct {
	Server          ServerConfig      `yaml:"server"`
	Log             LogConfig         `yaml:"log"`
	Providers       []ProviderConfig  `yaml:"providers"`
	PromptsFile     string            `yaml:"prompts_file"`     // Empty uses the built-in templates.
	SystemTemplate  string            `yaml:"system_template"`  // Template sent as system instruction (default "system").
	AttemptTimeout  string            `yaml:"attempt_timeout"`  // Per-provider attempt timeout, e.g. "5s".
	IntentTemplates map[string]string `yaml:"intent_templates"` // Intent label → template name.
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// LogConfig selects the log handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error.
	Format string `yaml:"format"` // json or text.
}

// RateLimitConfig controls the client-side rate guard of a provider.
type RateLimitConfig struct {
	RPM      int `yaml:"rpm"`       // Requests per minute (0 = no limit).
	InputTPM int `yaml:"input_tpm"` // Estimated input tokens per minute (0 = no limit).
}

// ProviderConfig describes an LLM provider instance.
type ProviderConfig struct {
	Name        string          `yaml:"name"`
	Kind        string          `yaml:"kind"`
	BaseURL     string          `yaml:"base_url"`
	APIKey      string          `yaml:"api_key"` //nolint:gosec // configuration field, not a hardcoded secret
	Model       string          `yaml:"model"`
	Priority    int             `yaml:"priority"` // Lower is tried first; unique.
	Temperature *float64        `yaml:"temperature"`
	MaxTokens   int             `yaml:"max_tokens"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
}

// LoadConfig reads a YAML file and returns a Config.
// Environment variables referenced as ${VAR} or $VAR in the YAML are expanded
// before parsing. This allows API keys and other secrets to be kept in
// environment variables (e.g. loaded from a .env file) rather than committed
// in the config.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-provided configuration, not user input
	if err != nil {
		return Config{}, fmt.Errorf("engine: load config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("engine: parse config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns the three-tier setup used when no config file exists:
// Groq, then OpenAI, then Anthropic, keyed from the usual environment variables.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{Addr: ":8000"},
		Providers: []ProviderConfig{
			{Name: "groq", Kind: "groq", APIKey: os.Getenv("GROQ_API_KEY"), Priority: 1},
			{Name: "openai", Kind: "openai", APIKey: os.Getenv("OPENAI_API_KEY"), Priority: 2},
			{Name: "anthropic", Kind: "anthropic", APIKey: os.Getenv("ANTHROPIC_API_KEY"), Priority: 3},
		},
	}
}

// Validate checks that the configuration is internally consistent.
func (c Config) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("engine: config: at least one provider is required")
	}

	providerNames := make(map[string]struct{}, len(c.Providers))
	priorities := make(map[int]string, len(c.Providers))
	for _, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("engine: config: provider name is required")
		}
		if p.Kind == "" {
			return fmt.Errorf("engine: config: provider %q: kind is required", p.Name)
		}
		if _, dup := providerNames[p.Name]; dup {
			return fmt.Errorf("engine: config: duplicate provider name %q", p.Name)
		}
		providerNames[p.Name] = struct{}{}

		if other, dup := priorities[p.Priority]; dup {
			return fmt.Errorf("engine: config: providers %q and %q share priority %d", other, p.Name, p.Priority)
		}
		priorities[p.Priority] = p.Name

		if t := p.Temperature; t != nil && (*t < 0 || *t > 1) {
			return fmt.Errorf("engine: config: provider %q: temperature must be within [0, 1]", p.Name)
		}
		if p.MaxTokens < 0 {
			return fmt.Errorf("engine: config: provider %q: max_tokens must not be negative", p.Name)
		}
		if p.RateLimit.RPM < 0 || p.RateLimit.InputTPM < 0 {
			return fmt.Errorf("engine: config: provider %q: rate_limit values must not be negative", p.Name)
		}
	}

	if _, err := parseDuration(c.AttemptTimeout); err != nil {
		return fmt.Errorf("engine: config: attempt_timeout: %w", err)
	}
	if _, err := parseDuration(c.Server.ShutdownTimeout); err != nil {
		return fmt.Errorf("engine: config: server.shutdown_timeout: %w", err)
	}

	for intent, tmpl := range c.IntentTemplates {
		if !classifier.Intent(intent).Valid() {
			return fmt.Errorf("engine: config: intent_templates: unknown intent %q", intent)
		}
		if tmpl == "" {
			return fmt.Errorf("engine: config: intent_templates: intent %q: template name is required", intent)
		}
	}

	return nil
}

// ShutdownTimeout returns the graceful shutdown deadline (default 10s).
func (c Config) ShutdownTimeout() time.Duration {
	d, _ := parseDuration(c.Server.ShutdownTimeout)
	if d == 0 {
		return 10 * time.Second
	}
	return d
}

// parseDuration parses an optional positive duration; empty yields zero.
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration %q must be positive", s)
	}

	return d, nil
}
