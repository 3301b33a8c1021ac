package templates

import (
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/hyperengineering/simtracker/internal/position"
	"gopkg.in/yaml.v3"
)

//go:embed builtin/*.html
var builtinFS embed.FS

// Built-in template names.
const (
	BuiltinDefault = "default"
	BuiltinTabbed  = "tabbed"
)

// Inline is a named inline template used by [[DISPLAY=name, DATA={...}]] markers.
type Inline struct {
	Name string `json:"insertName" yaml:"insertName"`
	HTML string `json:"htmlContent" yaml:"htmlContent"`
}

// Definition is a template preset as stored on disk.
type Definition struct {
	Name            string   `json:"templateName" yaml:"templateName"`
	HTML            string   `json:"htmlTemplate" yaml:"htmlTemplate"`
	Position        string   `json:"templatePosition,omitempty" yaml:"templatePosition,omitempty"`
	InlineEnabled   bool     `json:"inlineTemplatesEnabled,omitempty" yaml:"inlineTemplatesEnabled,omitempty"`
	InlineTemplates []Inline `json:"inlineTemplates,omitempty" yaml:"inlineTemplates,omitempty"`
}

// Builtin returns one of the embedded templates.
func Builtin(name string) (Definition, error) {
	data, err := builtinFS.ReadFile("builtin/" + name + ".html")
	if err != nil {
		return Definition{}, fmt.Errorf("%w: %s", ErrUnknownBuiltin, name)
	}
	return Definition{Name: name, HTML: string(data)}, nil
}

// LoadDefinition reads a preset from .html, .json, .yaml or .yml.
// An .html file yields a definition named after the file.
func LoadDefinition(path string) (Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("loading template: %w", err)
	}

	base := filepath.Base(path)
	var def Definition
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm", ".hbs":
		def = Definition{Name: strings.TrimSuffix(base, filepath.Ext(base)), HTML: string(data)}
	case ".json":
		if err := json.Unmarshal(data, &def); err != nil {
			return Definition{}, fmt.Errorf("loading template %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &def); err != nil {
			return Definition{}, fmt.Errorf("loading template %s: %w", path, err)
		}
	default:
		return Definition{}, fmt.Errorf("%w: %s", ErrUnsupportedFile, path)
	}

	if strings.TrimSpace(def.Name) == "" {
		def.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return def, nil
}

var tabbedMarker = regexp.MustCompile(`(?i)<!--\s*TABBED\s*-->|data-tabbed\s*=\s*["']?true`)

// IsTabbed reports whether a template renders all characters in one invocation,
// declared by its name or by a structural marker in its source.
func IsTabbed(name, source string) bool {
	return strings.Contains(strings.ToLower(name), "tabbed") || tabbedMarker.MatchString(source)
}

// Active is the compiled template set a render pass uses.
type Active struct {
	Definition Definition
	Main       *Template
	Tabbed     bool
	inline     map[string]*Template
}

// Activate compiles a definition. Tabbed detection can be switched off, in
// which case the template is always invoked once per character.
func Activate(def Definition, detectTabbed bool) *Active {
	a := &Active{
		Definition: def,
		Main:       Compile(def.Name, def.HTML),
		Tabbed:     detectTabbed && IsTabbed(def.Name, def.HTML),
		inline:     make(map[string]*Template),
	}
	if def.InlineEnabled {
		for _, in := range def.InlineTemplates {
			if strings.TrimSpace(in.Name) == "" {
				continue
			}
			a.inline[in.Name] = Compile(in.Name, in.HTML)
		}
	}
	return a
}

// Metadata exposes the template's declared placement to the position policy.
func (a *Active) Metadata() position.Metadata {
	return position.Metadata{Declared: a.Definition.Position, Source: a.Definition.HTML}
}
