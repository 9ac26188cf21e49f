package messaging

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// catalogFile is the YAML schema of a message catalog.
type catalogFile struct {
	DefaultChannel Channel        `yaml:"default_channel"`
	DefaultTiming  Timing         `yaml:"default_timing"`
	Categories     []categoryFile `yaml:"categories"`
}

type categoryFile struct {
	Name     Category      `yaml:"name"`
	Tags     []string      `yaml:"tags"`
	Channels channelsFile  `yaml:"channels"`
	Timing   *Timing       `yaml:"timing"`
	Personas []personaFile `yaml:"personas"`
}

type channelsFile struct {
	Default  Channel             `yaml:"default"`
	Personas map[Persona]Channel `yaml:"personas"`
}

type personaFile struct {
	Name      Persona           `yaml:"name"`
	Templates []string          `yaml:"templates"`
	Variables map[string]string `yaml:"variables"`
}

// Catalog is the immutable registry of categories, personas, templates,
// channel routing and send timing. Build one with LoadCatalog or
// DefaultCatalog and share it freely; nothing mutates it after loading.
type Catalog struct {
	engine         *TemplateEngine
	categories     []*CategoryEntry
	byName         map[Category]*CategoryEntry
	defaultChannel Channel
	defaultTiming  Timing
}

// CategoryEntry is one catalog category.
type CategoryEntry struct {
	name            Category
	tags            []string
	personas        []PersonaEntry
	defaultChannel  Channel
	personaChannels map[Persona]Channel
	timing          *Timing
}

// PersonaEntry holds the templates and default variables of one persona
// within a category.
type PersonaEntry struct {
	Name      Persona
	templates []*Template
	variables map[string]string
}

// Templates returns the compiled templates in declaration order.
func (p PersonaEntry) Templates() []*Template {
	out := make([]*Template, len(p.templates))
	copy(out, p.templates)
	return out
}

// Variables returns a copy of the persona's default template variables.
func (p PersonaEntry) Variables() map[string]string {
	out := make(map[string]string, len(p.variables))
	for k, v := range p.variables {
		out[k] = v
	}
	return out
}

// Name returns the category name.
func (c *CategoryEntry) Name() Category { return c.name }

// Tags returns the category's tag vocabulary.
func (c *CategoryEntry) Tags() []string {
	out := make([]string, len(c.tags))
	copy(out, c.tags)
	return out
}

// Personas returns the declared personas in declaration order.
func (c *CategoryEntry) Personas() []PersonaEntry {
	out := make([]PersonaEntry, len(c.personas))
	copy(out, c.personas)
	return out
}

// MatchesAny reports whether any vocabulary tag is in set.
func (c *CategoryEntry) MatchesAny(set StringSet) bool {
	return c.CountMatches(set) > 0
}

// CountMatches returns how many vocabulary tags are in set.
func (c *CategoryEntry) CountMatches(set StringSet) int {
	n := 0
	for _, tag := range c.tags {
		if set.Has(tag) {
			n++
		}
	}
	return n
}

// ResolvePersona returns the entry for p. When the category has no templates
// for p it falls back to the first declared persona and reports fellBack.
func (c *CategoryEntry) ResolvePersona(p Persona) (entry PersonaEntry, fellBack bool) {
	for _, pe := range c.personas {
		if pe.Name == p {
			return pe, false
		}
	}
	return c.firstPersona(), true
}

func (c *CategoryEntry) firstPersona() PersonaEntry {
	return c.personas[0]
}

// DefaultCatalog loads the catalog embedded in the binary.
func DefaultCatalog() (*Catalog, error) {
	return LoadCatalog(bytes.NewReader(defaultCatalogYAML))
}

// LoadCatalogFile loads a catalog from a YAML file.
func LoadCatalogFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return LoadCatalog(f)
}

// LoadCatalog decodes and validates a YAML catalog and compiles its templates.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	var file catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return buildCatalog(file, NewTemplateEngine())
}

func buildCatalog(file catalogFile, engine *TemplateEngine) (*Catalog, error) {
	if len(file.Categories) == 0 {
		return nil, fmt.Errorf("catalog: no categories")
	}
	if !file.DefaultChannel.Valid() {
		return nil, fmt.Errorf("catalog: invalid default_channel %q", file.DefaultChannel)
	}
	if file.DefaultTiming == (Timing{}) {
		return nil, fmt.Errorf("catalog: default_timing is required")
	}

	cat := &Catalog{
		engine:         engine,
		byName:         make(map[Category]*CategoryEntry, len(file.Categories)),
		defaultChannel: file.DefaultChannel,
		defaultTiming:  file.DefaultTiming,
	}

	for _, cf := range file.Categories {
		entry, err := buildCategory(cf, engine)
		if err != nil {
			return nil, err
		}
		if _, dup := cat.byName[entry.name]; dup {
			return nil, fmt.Errorf("catalog: duplicate category %q", entry.name)
		}
		cat.byName[entry.name] = entry
		cat.categories = append(cat.categories, entry)
	}
	return cat, nil
}

func buildCategory(cf categoryFile, engine *TemplateEngine) (*CategoryEntry, error) {
	if !cf.Name.Valid() {
		return nil, fmt.Errorf("catalog: unknown category %q", cf.Name)
	}
	if len(cf.Tags) == 0 {
		return nil, fmt.Errorf("catalog: category %q has no tags", cf.Name)
	}
	if len(cf.Personas) == 0 {
		return nil, fmt.Errorf("catalog: category %q has no personas", cf.Name)
	}
	if cf.Channels.Default != "" && !cf.Channels.Default.Valid() {
		return nil, fmt.Errorf("catalog: category %q: invalid default channel %q", cf.Name, cf.Channels.Default)
	}

	entry := &CategoryEntry{
		name:            cf.Name,
		tags:            append([]string(nil), cf.Tags...),
		defaultChannel:  cf.Channels.Default,
		personaChannels: make(map[Persona]Channel, len(cf.Channels.Personas)),
		timing:          cf.Timing,
	}
	for p, ch := range cf.Channels.Personas {
		if !p.Valid() || !ch.Valid() {
			return nil, fmt.Errorf("catalog: category %q: invalid channel route %q -> %q", cf.Name, p, ch)
		}
		entry.personaChannels[p] = ch
	}

	seen := make(map[Persona]bool, len(cf.Personas))
	for _, pf := range cf.Personas {
		if !pf.Name.Valid() {
			return nil, fmt.Errorf("catalog: category %q: unknown persona %q", cf.Name, pf.Name)
		}
		if seen[pf.Name] {
			return nil, fmt.Errorf("catalog: category %q: duplicate persona %q", cf.Name, pf.Name)
		}
		seen[pf.Name] = true
		if len(pf.Templates) == 0 {
			return nil, fmt.Errorf("catalog: category %q persona %q has no templates", cf.Name, pf.Name)
		}

		pe := PersonaEntry{Name: pf.Name, variables: make(map[string]string, len(pf.Variables))}
		for k, v := range pf.Variables {
			pe.variables[k] = v
		}
		for _, src := range pf.Templates {
			tpl, err := engine.Parse(src)
			if err != nil {
				return nil, fmt.Errorf("catalog: category %q persona %q: %w", cf.Name, pf.Name, err)
			}
			pe.templates = append(pe.templates, tpl)
		}
		entry.personas = append(entry.personas, pe)
	}
	return entry, nil
}

// Engine returns the template engine the catalog was compiled with.
func (c *Catalog) Engine() *TemplateEngine { return c.engine }

// Categories returns the categories in declaration order.
func (c *Catalog) Categories() []*CategoryEntry {
	out := make([]*CategoryEntry, len(c.categories))
	copy(out, c.categories)
	return out
}

// Category looks up a category by name.
func (c *Catalog) Category(name Category) (*CategoryEntry, bool) {
	e, ok := c.byName[name]
	return e, ok
}

// DefaultChannel is the channel used for categories the catalog does not know.
func (c *Catalog) DefaultChannel() Channel { return c.defaultChannel }

// ChannelFor routes a (category, persona) pair to a delivery channel:
// persona route, then the category default, then the catalog default.
func (c *Catalog) ChannelFor(category Category, persona Persona) Channel {
	entry, ok := c.byName[category]
	if !ok {
		return c.defaultChannel
	}
	if ch, ok := entry.personaChannels[persona]; ok {
		return ch
	}
	return c.categoryDefaultChannel(entry)
}

// CategoryChannel returns the channel a category uses when no persona route
// applies: the category default, else the catalog default.
func (c *Catalog) CategoryChannel(category Category) Channel {
	entry, ok := c.byName[category]
	if !ok {
		return c.defaultChannel
	}
	return c.categoryDefaultChannel(entry)
}

func (c *Catalog) categoryDefaultChannel(entry *CategoryEntry) Channel {
	if entry.defaultChannel != "" {
		return entry.defaultChannel
	}
	return c.defaultChannel
}

// TimingFor returns the send timing for category, or the catalog default.
func (c *Catalog) TimingFor(category Category) Timing {
	if entry, ok := c.byName[category]; ok && entry.timing != nil {
		return *entry.timing
	}
	return c.defaultTiming
}
