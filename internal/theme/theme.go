// Package theme holds the catalog of diagram themes: the built-in palettes
// plus any loaded from YAML catalog files.
package theme

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/rendis/lienzo/internal/validation"
	"github.com/rendis/lienzo/pkg/schema"
)

// DefaultID is the theme a new session starts with.
const DefaultID = "default"

const defaultFont = "trebuchet ms, verdana, arial, sans-serif"

var builtins = []schema.ThemeSpec{
	{ID: "default", Base: "default", Variables: map[string]string{
		"primaryColor": "#ECECFF", "primaryBorderColor": "#9370DB", "primaryTextColor": "#333333",
		"lineColor": "#333333", "background": "white", "clusterBkg": "#ffffde", "fontFamily": defaultFont,
	}},
	{ID: "dark", Base: "dark", Variables: map[string]string{
		"primaryColor": "#1f2020", "primaryBorderColor": "#81B1DB", "primaryTextColor": "#cccccc",
		"lineColor": "#d3d3d3", "background": "#333333", "clusterBkg": "#1f2020", "fontFamily": defaultFont,
	}},
	{ID: "forest", Base: "forest", Variables: map[string]string{
		"primaryColor": "#cde498", "primaryBorderColor": "#13540c", "primaryTextColor": "#000000",
		"lineColor": "#008000", "background": "white", "clusterBkg": "#cdffb2", "fontFamily": defaultFont,
	}},
	{ID: "neutral", Base: "neutral", Variables: map[string]string{
		"primaryColor": "#eeeeee", "primaryBorderColor": "#999999", "primaryTextColor": "#333333",
		"lineColor": "#666666", "background": "white", "clusterBkg": "#f4f4f4", "fontFamily": defaultFont,
	}},
	{ID: "base", Base: "base", Variables: map[string]string{
		"primaryColor": "#fff4dd", "primaryBorderColor": "#9f6d1b", "primaryTextColor": "#333333",
		"lineColor": "#333333", "background": "white", "clusterBkg": "#fff4dd", "fontFamily": defaultFont,
	}},
}

// Builtins returns copies of the built-in themes.
func Builtins() []schema.ThemeSpec {
	out := make([]schema.ThemeSpec, len(builtins))
	for i, th := range builtins {
		out[i] = clone(th)
	}
	return out
}

func clone(th schema.ThemeSpec) schema.ThemeSpec {
	vars := make(map[string]string, len(th.Variables))
	for k, v := range th.Variables {
		vars[k] = v
	}
	th.Variables = vars
	return th
}

// Catalog resolves theme ids. It is safe for concurrent use.
type Catalog struct {
	mu     sync.RWMutex
	themes map[string]schema.ThemeSpec
}

// NewCatalog creates a catalog holding the built-in themes.
func NewCatalog() *Catalog {
	c := &Catalog{themes: make(map[string]schema.ThemeSpec, len(builtins))}
	for _, th := range builtins {
		c.themes[th.ID] = clone(th)
	}
	return c
}

// Theme returns the theme with id. Unknown ids fail with THEME_UNKNOWN.
func (c *Catalog) Theme(id string) (schema.ThemeSpec, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	th, ok := c.themes[id]
	if !ok {
		return schema.ThemeSpec{}, schema.NewErrorf(schema.ErrCodeTheme, "unknown theme %q", id).
			WithDetails(map[string]any{"theme_id": id})
	}
	return clone(th), nil
}

// Has reports whether id is known.
func (c *Catalog) Has(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.themes[id]
	return ok
}

// List returns every theme sorted by id.
func (c *Catalog) List() []schema.ThemeSpec {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]schema.ThemeSpec, 0, len(c.themes))
	for _, th := range c.themes {
		out = append(out, clone(th))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Add registers th. Its variables are layered over those of its base
// palette; an empty base defaults to "default".
func (c *Catalog) Add(th schema.ThemeSpec) {
	if th.Base == "" {
		th.Base = DefaultID
	}
	resolved := schema.ThemeSpec{ID: th.ID, Base: th.Base, Variables: map[string]string{}}
	for _, b := range builtins {
		if b.ID == th.Base {
			for k, v := range b.Variables {
				resolved.Variables[k] = v
			}
		}
	}
	for k, v := range th.Variables {
		resolved.Variables[k] = v
	}

	c.mu.Lock()
	c.themes[th.ID] = resolved
	c.mu.Unlock()
}

type catalogFile struct {
	Themes []schema.ThemeSpec `yaml:"themes"`
}

// Load validates a YAML catalog document and merges its themes. Nothing is
// merged when validation fails; warnings are returned alongside success.
func (c *Catalog) Load(data []byte) (*schema.ValidationResult, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "theme catalog is not valid YAML").WithCause(err)
	}

	ids := make([]string, len(builtins))
	for i, b := range builtins {
		ids[i] = b.ID
	}
	v, err := validation.NewThemeCatalogValidator(ids...)
	if err != nil {
		return nil, fmt.Errorf("theme: build validator: %w", err)
	}
	result := v.Validate(doc)
	if err := result.ToError(); err != nil {
		return result, err
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return result, schema.NewError(schema.ErrCodeValidation, "theme catalog is not valid YAML").WithCause(err)
	}
	for _, th := range file.Themes {
		c.Add(th)
	}
	return result, nil
}

// LoadFile reads and merges a YAML catalog file.
func (c *Catalog) LoadFile(path string) (*schema.ValidationResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("theme: read catalog: %w", err)
	}
	return c.Load(data)
}
