package messaging

import (
	"errors"
	"time"

	"github.com/ignite/cdp-messenger/internal/pkg/logger"
)

const (
	defaultTemplatesPerPersona = 2
	defaultCustomerName        = "고객"
)

// Composer renders control messages for every matched category and derives
// one test variant per control message.
type Composer struct {
	catalog             *Catalog
	variants            *VariantGenerator
	templatesPerPersona int
}

// ComposerOption configures a Composer.
type ComposerOption func(*Composer)

// WithTemplatesPerPersona caps how many templates of the resolved persona are
// rendered per category. Values below 1 are ignored.
func WithTemplatesPerPersona(n int) ComposerOption {
	return func(c *Composer) {
		if n > 0 {
			c.templatesPerPersona = n
		}
	}
}

// NewComposer creates a composer over catalog. A nil generator uses the
// first-rule strategy.
func NewComposer(catalog *Catalog, variants *VariantGenerator, opts ...ComposerOption) *Composer {
	if variants == nil {
		variants = NewVariantGenerator(nil)
	}
	c := &Composer{
		catalog:             catalog,
		variants:            variants,
		templatesPerPersona: defaultTemplatesPerPersona,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RenderFailure records a template skipped during composition.
type RenderFailure struct {
	Category Category `json:"category"`
	Persona  Persona  `json:"persona"`
	Template string   `json:"template"`
	Variable string   `json:"variable,omitempty"`
	Error    string   `json:"error"`
}

// Composition is the output of one composition pass.
type Composition struct {
	Persona  Persona         `json:"persona"`
	Messages []Message       `json:"messages"`
	Skipped  []RenderFailure `json:"skipped,omitempty"`
}

// Compose builds the message list. Each control message (group A) is
// immediately followed by its derived variant (group B). No matching
// category yields an empty, non-nil list. A nil rnd is seeded from the clock.
func (c *Composer) Compose(tags TagSet, analysis *AnalysisResult, profile *UserProfile, rnd RandomSource) Composition {
	if rnd == nil {
		rnd = NewRandomSource(uint64(time.Now().UnixNano()))
	}
	persona := ClassifyPersona(analysis)
	out := Composition{Persona: persona, Messages: []Message{}}

	controlIndex := 0
	for _, cat := range c.catalog.categories {
		if !cat.MatchesAny(tags.Primary) {
			continue
		}
		resolved, fellBack := cat.ResolvePersona(persona)
		if fellBack {
			logger.Debug("persona not declared for category, using first declared",
				"category", cat.name, "persona", persona, "resolved", resolved.Name)
		}

		vars := mergeVariables(resolved.Variables(), profile)
		base := Message{
			Category:  cat.name,
			Tags:      cat.Tags(),
			Priority:  messagePriority(cat, tags),
			Channel:   c.catalog.ChannelFor(cat.name, persona),
			Persona:   persona,
			Variation: VariationControl,
			TestGroup: GroupControl,
			Timing:    c.catalog.TimingFor(cat.name),
		}

		templates := resolved.templates
		if len(templates) > c.templatesPerPersona {
			templates = templates[:c.templatesPerPersona]
		}
		for _, tpl := range templates {
			text, err := c.catalog.engine.Render(tpl, vars)
			if err != nil {
				failure := RenderFailure{
					Category: cat.name,
					Persona:  resolved.Name,
					Template: tpl.Source(),
					Error:    err.Error(),
				}
				var missing *MissingVariableError
				if errors.As(err, &missing) {
					failure.Variable = missing.Variable
				}
				logger.Warn("skipping template", "category", cat.name, "persona", resolved.Name,
					"variable", failure.Variable, "error", err)
				out.Skipped = append(out.Skipped, failure)
				continue
			}

			control := base
			control.Tags = cat.Tags()
			control.Text = text
			out.Messages = append(out.Messages, control, c.variants.Derive(control, controlIndex, rnd))
			controlIndex++
		}
	}
	return out
}

// mergeVariables overlays profile fields on the persona defaults.
func mergeVariables(defaults map[string]string, profile *UserProfile) map[string]string {
	if profile == nil {
		defaults["name"] = defaultCustomerName
		return defaults
	}
	name := profile.Name
	if name == "" {
		name = defaultCustomerName
	}
	defaults["name"] = name
	defaults["age"] = profile.Age
	defaults["gender"] = profile.Gender
	return defaults
}

// messagePriority is high when at least two distinct vocabulary tags of the
// category matched with primary evidence.
func messagePriority(cat *CategoryEntry, tags TagSet) Priority {
	if cat.CountMatches(tags.Primary) >= 2 {
		return PriorityHigh
	}
	return PriorityMedium
}
