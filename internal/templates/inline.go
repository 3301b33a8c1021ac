package templates

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Pack is a shareable set of inline templates.
type Pack struct {
	Name      string   `json:"name" yaml:"name"`
	Enabled   bool     `json:"enabled" yaml:"enabled"`
	Templates []Inline `json:"templates" yaml:"templates"`
}

// LoadPack reads a template pack from JSON or YAML.
func LoadPack(path string) (Pack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Pack{}, fmt.Errorf("loading template pack: %w", err)
	}

	var p Pack
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &p)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &p)
	default:
		return Pack{}, fmt.Errorf("%w: %s", ErrUnsupportedFile, path)
	}
	if err != nil {
		return Pack{}, fmt.Errorf("loading template pack %s: %w", path, err)
	}
	if p.Name == "" {
		p.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return p, nil
}

// Registry resolves inline template names. The active template's own inline
// templates shadow same-named templates from packs.
type Registry struct {
	templates map[string]*Template
}

// NewRegistry combines the active template's inline templates with every enabled pack.
func NewRegistry(active *Active, packs []Pack) *Registry {
	r := &Registry{templates: make(map[string]*Template)}
	for _, p := range packs {
		if !p.Enabled {
			continue
		}
		for _, in := range p.Templates {
			if strings.TrimSpace(in.Name) == "" {
				continue
			}
			r.templates[in.Name] = Compile(in.Name, in.HTML)
		}
	}
	if active != nil {
		for name, t := range active.inline {
			r.templates[name] = t
		}
	}
	return r
}

// Names returns the registered inline template names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	return names
}

// RenderInline renders the named inline template with data.
// found is false when no template has that name.
func (r *Registry) RenderInline(name string, data map[string]any) (string, bool, error) {
	t, ok := r.templates[name]
	if !ok {
		return "", false, nil
	}
	out, err := t.Render(data)
	return out, true, err
}
