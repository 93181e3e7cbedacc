// Package prompt implements versioned, per-entity-type prompt template
// rendering. Templates are immutable once published; a new version is a
// new entry, never an in-place edit, which makes the render cache safe
// without invalidation.
package prompt

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"
	texttemplate "text/template"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/text/language"

	"github.com/vitalyst/enrich/pkg/types"
)

// ErrTemplateNotFound is returned when no template exists for the
// requested (entityType, version) pair.
var ErrTemplateNotFound = errors.New("prompt template not found")

// Config carries the generation hints and schema binding of a template
// version. The schema binding is version-scoped, not language-scoped.
type Config struct {
	Temperature     float64  `yaml:"temperature" json:"temperature"`
	MaxTokens       int      `yaml:"max_tokens" json:"max_tokens"`
	SchemaVersion   string   `yaml:"schema_version" json:"schema_version"`
	ValidationRules []string `yaml:"validation_rules" json:"validation_rules,omitempty"`
}

// Template is one published (entityType, version) entry with its three
// renderable variants and optional per-language content overrides.
type Template struct {
	EntityType types.EntityType
	Version    string
	System     string
	Config     Config
	Variants   map[types.Variant]string
	// Languages maps a BCP 47 tag to variant overrides. Missing
	// variants fall back to the default (English) content.
	Languages map[string]map[types.Variant]string
}

type compiled struct {
	tmpl     *Template
	parsed   map[string]*texttemplate.Template // variant|lang -> parsed
	langTags []language.Tag
	matcher  language.Matcher
}

// Engine resolves and renders templates. Read-heavy after startup; the
// render cache is keyed so stale entries are impossible mid-version.
type Engine struct {
	mu       sync.RWMutex
	versions map[types.EntityType]map[string]*compiled
	latest   map[types.EntityType]string
	cache    *gocache.Cache
}

// NewEngine creates an engine with an empty catalog.
func NewEngine() *Engine {
	return &Engine{
		versions: make(map[types.EntityType]map[string]*compiled),
		latest:   make(map[types.EntityType]string),
		cache:    gocache.New(30*time.Minute, 10*time.Minute),
	}
}

// Register publishes a template version. Re-publishing an existing
// (entityType, version) pair is rejected: versions are immutable.
func (e *Engine) Register(t Template) error {
	if t.EntityType == "" || t.Version == "" {
		return fmt.Errorf("template: entity type and version are required")
	}
	if len(t.Variants) == 0 {
		return fmt.Errorf("template %s/%s: at least one variant is required", t.EntityType, t.Version)
	}

	c := &compiled{
		tmpl:   &t,
		parsed: make(map[string]*texttemplate.Template),
	}

	for variant, text := range t.Variants {
		parsed, err := texttemplate.New(string(t.EntityType) + "/" + string(variant)).Option("missingkey=zero").Parse(text)
		if err != nil {
			return fmt.Errorf("template %s/%s variant %s: %w", t.EntityType, t.Version, variant, err)
		}
		c.parsed[key(variant, "")] = parsed
	}

	tags := []language.Tag{language.English}
	for lang, overrides := range t.Languages {
		tag, err := language.Parse(lang)
		if err != nil {
			return fmt.Errorf("template %s/%s: invalid language %q: %w", t.EntityType, t.Version, lang, err)
		}
		tags = append(tags, tag)
		for variant, text := range overrides {
			parsed, err := texttemplate.New(string(t.EntityType) + "/" + string(variant) + "/" + lang).Option("missingkey=zero").Parse(text)
			if err != nil {
				return fmt.Errorf("template %s/%s variant %s lang %s: %w", t.EntityType, t.Version, variant, lang, err)
			}
			c.parsed[key(variant, lang)] = parsed
		}
	}
	c.langTags = tags
	c.matcher = language.NewMatcher(tags)

	e.mu.Lock()
	defer e.mu.Unlock()

	byVersion, ok := e.versions[t.EntityType]
	if !ok {
		byVersion = make(map[string]*compiled)
		e.versions[t.EntityType] = byVersion
	}
	if _, exists := byVersion[t.Version]; exists {
		return fmt.Errorf("template %s/%s already published", t.EntityType, t.Version)
	}
	byVersion[t.Version] = c

	// The most recently published version becomes the default.
	e.latest[t.EntityType] = t.Version
	return nil
}

// Resolve returns the template for (entityType, version), taking the
// latest published version when version is empty.
func (e *Engine) Resolve(entity types.EntityType, version string) (*Template, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	c, err := e.resolveLocked(entity, version)
	if err != nil {
		return nil, err
	}
	return c.tmpl, nil
}

// Versions lists the published versions for an entity type, sorted.
func (e *Engine) Versions(entity types.EntityType) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	byVersion := e.versions[entity]
	out := make([]string, 0, len(byVersion))
	for v := range byVersion {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Render produces the prompt text for the given variant, context, and
// language. Rendering is pure: identical inputs yield byte-identical
// output, which makes the cache safe.
func (e *Engine) Render(entity types.EntityType, variant types.Variant, ctx types.EntityContext, version, lang string) (string, *Template, error) {
	if ctx == nil {
		return "", nil, fmt.Errorf("render %s: nil context", entity)
	}
	if ctx.EntityType() != entity {
		return "", nil, fmt.Errorf("render %s: context is for entity type %s", entity, ctx.EntityType())
	}
	if err := ctx.Validate(); err != nil {
		return "", nil, err
	}
	if variant == "" {
		variant = types.VariantInitial
	}

	e.mu.RLock()
	c, err := e.resolveLocked(entity, version)
	e.mu.RUnlock()
	if err != nil {
		return "", nil, err
	}

	matchedLang := c.matchLanguage(lang)
	cacheKey := fmt.Sprintf("%s|%s|%s|%s|%x", entity, c.tmpl.Version, variant, matchedLang, types.ContextHash(ctx))
	if cached, found := e.cache.Get(cacheKey); found {
		if s, ok := cached.(string); ok {
			return s, c.tmpl, nil
		}
	}

	parsed, ok := c.parsed[key(variant, matchedLang)]
	if !ok {
		// Fall back to the default-language variant.
		parsed, ok = c.parsed[key(variant, "")]
	}
	if !ok {
		return "", nil, fmt.Errorf("%w: %s/%s variant %s", ErrTemplateNotFound, entity, c.tmpl.Version, variant)
	}

	var buf bytes.Buffer
	if err := parsed.Execute(&buf, ctx.TemplateData()); err != nil {
		return "", nil, fmt.Errorf("render %s/%s: %w", entity, c.tmpl.Version, err)
	}

	rendered := buf.String()
	e.cache.Set(cacheKey, rendered, gocache.DefaultExpiration)
	return rendered, c.tmpl, nil
}

func (e *Engine) resolveLocked(entity types.EntityType, version string) (*compiled, error) {
	byVersion, ok := e.versions[entity]
	if !ok || len(byVersion) == 0 {
		return nil, fmt.Errorf("%w: entity type %s", ErrTemplateNotFound, entity)
	}
	if version == "" {
		version = e.latest[entity]
	}
	c, ok := byVersion[version]
	if !ok {
		return nil, fmt.Errorf("%w: %s version %s", ErrTemplateNotFound, entity, version)
	}
	return c, nil
}

// matchLanguage maps a requested BCP 47 tag onto the closest registered
// language. The empty string and unmatched tags resolve to the default
// (English) content.
func (c *compiled) matchLanguage(lang string) string {
	if lang == "" || len(c.langTags) <= 1 {
		return ""
	}
	requested, err := language.Parse(lang)
	if err != nil {
		return ""
	}
	_, idx, conf := c.matcher.Match(requested)
	if conf == language.No || idx == 0 {
		return ""
	}
	matched := c.langTags[idx].String()
	if _, ok := c.tmpl.Languages[matched]; !ok {
		// Matcher may canonicalize the tag; fall back to scanning the
		// registered keys for the same base language.
		base, _ := c.langTags[idx].Base()
		for registered := range c.tmpl.Languages {
			if tag, err := language.Parse(registered); err == nil {
				if b, _ := tag.Base(); b == base {
					return registered
				}
			}
		}
		return ""
	}
	return matched
}

func key(variant types.Variant, lang string) string {
	return string(variant) + "|" + lang
}
