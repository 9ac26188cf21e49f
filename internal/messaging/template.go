package messaging

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/osteele/liquid"
)

// ErrMissingVariable is returned when a template references a variable the
// render context does not define.
var ErrMissingVariable = errors.New("template variable not defined")

// MissingVariableError names the undefined variable.
type MissingVariableError struct {
	Variable string
}

func (e *MissingVariableError) Error() string {
	return fmt.Sprintf("%s: %q", ErrMissingVariable, e.Variable)
}

func (e *MissingVariableError) Unwrap() error { return ErrMissingVariable }

// Matches {{ var }}, {{ var | filter }}, {{var}}, {{- var -}} and dotted
// paths such as {{ user.name }}.
var placeholderPattern = regexp.MustCompile(`\{\{-?\s*([a-zA-Z_][a-zA-Z0-9_.]*)\s*(?:\||-?\}\})`)

// Template is a parsed catalog template. Safe for concurrent rendering.
type Template struct {
	source       string
	placeholders []string
	compiled     *liquid.Template
}

// Source returns the Liquid source text.
func (t *Template) Source() string { return t.source }

// Placeholders returns the variable names referenced by the template, in
// order of first appearance.
func (t *Template) Placeholders() []string {
	out := make([]string, len(t.placeholders))
	copy(out, t.placeholders)
	return out
}

// TemplateEngine compiles and renders catalog templates with Liquid. Rendering
// is strict: every placeholder must be bound.
type TemplateEngine struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*Template
}

// NewTemplateEngine creates an engine with the catalog filters registered.
func NewTemplateEngine() *TemplateEngine {
	te := &TemplateEngine{engine: liquid.NewEngine()}
	te.registerFilters()
	return te
}

func (te *TemplateEngine) registerFilters() {
	// {{ name | default: "고객" }}
	te.engine.RegisterFilter("default", func(value interface{}, fallback string) interface{} {
		if value == nil {
			return fallback
		}
		if s := fmt.Sprintf("%v", value); s == "" || s == "<nil>" {
			return fallback
		}
		return value
	})

	// {{ amount | number_with_delimiter }}
	te.engine.RegisterFilter("number_with_delimiter", func(value interface{}) string {
		s := strings.ReplaceAll(fmt.Sprintf("%v", value), ",", "")
		neg := strings.HasPrefix(s, "-")
		s = strings.TrimPrefix(s, "-")
		for _, r := range s {
			if r < '0' || r > '9' {
				return fmt.Sprintf("%v", value)
			}
		}
		var b strings.Builder
		for i, r := range s {
			if i > 0 && (len(s)-i)%3 == 0 {
				b.WriteRune(',')
			}
			b.WriteRune(r)
		}
		if neg {
			return "-" + b.String()
		}
		return b.String()
	})
}

// Parse compiles source. Identical sources share one compiled template.
func (te *TemplateEngine) Parse(source string) (*Template, error) {
	if cached, ok := te.cache.Load(source); ok {
		return cached.(*Template), nil
	}
	compiled, err := te.engine.ParseString(source)
	if err != nil {
		return nil, fmt.Errorf("parse template %q: %w", source, err)
	}
	t := &Template{
		source:       source,
		placeholders: Placeholders(source),
		compiled:     compiled,
	}
	actual, _ := te.cache.LoadOrStore(source, t)
	return actual.(*Template), nil
}

// Render renders t against vars. A placeholder with no binding fails the
// render with a *MissingVariableError before Liquid is invoked. vars is flat,
// so a dotted path never resolves.
func (te *TemplateEngine) Render(t *Template, vars map[string]string) (string, error) {
	for _, name := range t.placeholders {
		if _, ok := vars[name]; !ok || strings.Contains(name, ".") {
			return "", &MissingVariableError{Variable: name}
		}
	}
	bindings := make(map[string]interface{}, len(vars))
	for k, v := range vars {
		bindings[k] = v
	}
	out, err := t.compiled.RenderString(bindings)
	if err != nil {
		return "", fmt.Errorf("render template %q: %w", t.source, err)
	}
	return out, nil
}

// Placeholders lists the variable names referenced in a Liquid source string.
func Placeholders(source string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range placeholderPattern.FindAllStringSubmatch(source, -1) {
		name := m[1]
		if seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

// HasPlaceholder reports whether text still contains an unrendered {{ name }}.
func HasPlaceholder(text, name string) bool {
	for _, got := range Placeholders(text) {
		if got == name {
			return true
		}
	}
	return false
}
