// Package prompts loads named prompt templates and renders them with
// variables.
//
// Templates use {name} placeholders; {{ and }} produce literal braces. A
// Resolver is built once at startup and is read-only afterwards, so it is
// safe for concurrent use.
package prompts

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrorKind classifies a TemplateError.
type ErrorKind string

const (
	KindNotFound        ErrorKind = "NOT_FOUND"
	KindMissingVariable ErrorKind = "MISSING_VARIABLE"
)

// TemplateError is returned by Render when a template does not exist or a
// placeholder has no value.
type TemplateError struct {
	Kind     ErrorKind
	Template string
	Variable string // Set for KindMissingVariable.
}

func (e *TemplateError) Error() string {
	if e.Kind == KindMissingVariable {
		return fmt.Sprintf("prompts: template %q: missing variable %q", e.Template, e.Variable)
	}
	return fmt.Sprintf("prompts: template %q not found", e.Template)
}

// segment is either literal text or a placeholder name.
type segment struct {
	text     string
	variable bool
}

type template struct {
	segments []segment
}

// Resolver holds parsed templates by name.
type Resolver struct {
	templates map[string]template
}

// file is the on-disk layout of a prompts source.
type file struct {
	Prompts map[string]string `yaml:"prompts"`
}

// New parses the given templates. It fails on malformed placeholders.
func New(templates map[string]string) (*Resolver, error) {
	r := &Resolver{templates: make(map[string]template, len(templates))}

	for name, raw := range templates {
		if name == "" {
			return nil, fmt.Errorf("prompts: template name is required")
		}

		t, err := parse(raw)
		if err != nil {
			return nil, fmt.Errorf("prompts: template %q: %w", name, err)
		}

		r.templates[name] = t
	}

	return r, nil
}

// Load reads a YAML file with a top-level "prompts" mapping of template name
// to template text.
func Load(path string) (*Resolver, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-provided configuration, not user input
	if err != nil {
		return nil, fmt.Errorf("prompts: load: %w", err)
	}

	return Parse(data)
}

// Parse builds a Resolver from YAML bytes in the same layout Load expects.
func Parse(data []byte) (*Resolver, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("prompts: parse: %w", err)
	}

	if len(f.Prompts) == 0 {
		return nil, fmt.Errorf("prompts: parse: no templates under \"prompts\"")
	}

	return New(f.Prompts)
}

// Defaults returns the built-in templates.
func Defaults() *Resolver {
	r, err := Parse(defaultsYAML)
	if err != nil {
		panic(err)
	}
	return r
}

// Render substitutes vars into the named template. Every placeholder must
// have a value; extra variables are ignored.
func (r *Resolver) Render(name string, vars map[string]string) (string, error) {
	t, ok := r.templates[name]
	if !ok {
		return "", &TemplateError{Kind: KindNotFound, Template: name}
	}

	var sb strings.Builder
	for _, s := range t.segments {
		if !s.variable {
			sb.WriteString(s.text)
			continue
		}

		v, ok := vars[s.text]
		if !ok {
			return "", &TemplateError{Kind: KindMissingVariable, Template: name, Variable: s.text}
		}
		sb.WriteString(v)
	}

	return sb.String(), nil
}

// Has reports whether a template with the given name exists.
func (r *Resolver) Has(name string) bool {
	_, ok := r.templates[name]
	return ok
}

// Names returns the template names in sorted order.
func (r *Resolver) Names() []string {
	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Variables returns the distinct placeholder names of a template in order of
// first appearance, or nil if the template does not exist.
func (r *Resolver) Variables(name string) []string {
	t, ok := r.templates[name]
	if !ok {
		return nil
	}

	var vars []string
	for _, s := range t.segments {
		if s.variable && !slices.Contains(vars, s.text) {
			vars = append(vars, s.text)
		}
	}
	return vars
}

func parse(raw string) (template, error) {
	var (
		t   template
		lit strings.Builder
	)

	flush := func() {
		if lit.Len() > 0 {
			t.segments = append(t.segments, segment{text: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(raw); i++ {
		c := raw[i]

		switch c {
		case '{':
			if i+1 < len(raw) && raw[i+1] == '{' {
				lit.WriteByte('{')
				i++
				continue
			}

			end := strings.IndexByte(raw[i+1:], '}')
			if end < 0 {
				return template{}, fmt.Errorf("unclosed placeholder at offset %d", i)
			}

			name := raw[i+1 : i+1+end]
			if !isIdentifier(name) {
				return template{}, fmt.Errorf("invalid placeholder %q at offset %d", name, i)
			}

			flush()
			t.segments = append(t.segments, segment{text: name, variable: true})
			i += end + 1
		case '}':
			if i+1 < len(raw) && raw[i+1] == '}' {
				lit.WriteByte('}')
				i++
				continue
			}
			return template{}, fmt.Errorf("unmatched '}' at offset %d", i)
		default:
			lit.WriteByte(c)
		}
	}

	flush()

	return t, nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}

	for i, c := range s {
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case i > 0 && c >= '0' && c <= '9':
		default:
			return false
		}
	}

	return true
}
