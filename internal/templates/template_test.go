package templates

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperengineering/simtracker/internal/position"
)

func TestCompile_Render(t *testing.T) {
	tpl := Compile("card", `<b>{{name}}</b>{{{raw}}}{{escaped}}`)
	if tpl.Err() != nil {
		t.Fatalf("expected no compile error, got %v", tpl.Err())
	}
	out, err := tpl.Render(map[string]any{"name": "Alice", "raw": "<i>x</i>", "escaped": "<i>y</i>"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(out, "<b>Alice</b>") || !strings.Contains(out, "<i>x</i>") {
		t.Fatalf("unexpected output %q", out)
	}
	if strings.Contains(out, "<i>y</i>") {
		t.Fatalf("double-brace interpolation must escape: %q", out)
	}
}

func TestCompile_FallbackBlock(t *testing.T) {
	tpl := Compile("broken", `{{#if open}}never closed`)
	if !errors.Is(tpl.Err(), ErrTemplate) {
		t.Fatalf("expected ErrTemplate, got %v", tpl.Err())
	}
	out, err := tpl.Render(map[string]any{})
	if err != nil {
		t.Fatalf("fallback render must not fail, got %v", err)
	}
	if !strings.Contains(out, "sim-tracker-template-error") || !strings.Contains(out, "broken") {
		t.Fatalf("expected labeled fallback block, got %q", out)
	}
}

func TestHelpers(t *testing.T) {
	cases := []struct {
		name string
		src  string
		ctx  map[string]any
		want string
	}{
		{"eq numbers", `{{#if (eq a 2)}}yes{{else}}no{{/if}}`, map[string]any{"a": float64(2)}, "yes"},
		{"eq strings", `{{#if (eq a "x")}}yes{{else}}no{{/if}}`, map[string]any{"a": "y"}, "no"},
		{"gt", `{{#if (gt a 50)}}big{{else}}small{{/if}}`, map[string]any{"a": float64(75)}, "big"},
		{"gt missing", `{{#if (gt a 50)}}big{{else}}small{{/if}}`, map[string]any{}, "small"},
		{"divideRoundUp", `{{divideRoundUp a 2}}`, map[string]any{"a": float64(7)}, "4"},
		{"divide by zero", `{{divide a 0}}`, map[string]any{"a": float64(7)}, "0"},
		{"add index", `{{#each items}}{{add @index 1}};{{/each}}`, map[string]any{"items": []any{"a", "b"}}, "1;2;"},
		{"unless", `{{#unless a}}none{{/unless}}`, map[string]any{"a": false}, "none"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tpl := Compile(tc.name, tc.src)
			if tpl.Err() != nil {
				t.Fatalf("compile: %v", tpl.Err())
			}
			got, err := tpl.Render(tc.ctx)
			if err != nil {
				t.Fatalf("render: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestDarken(t *testing.T) {
	if got := Darken("#000000", DarkenFactor); got != "#000000" {
		t.Fatalf("black stays black, got %s", got)
	}
	got := Darken("#ff0000", 0.5)
	if got != "#800000" && got != "#7f0000" {
		t.Fatalf("expected half-lightness red, got %s", got)
	}
	if got := Darken("slateblue", DarkenFactor); got != "slateblue" {
		t.Fatalf("non-hex colors pass through, got %s", got)
	}
}

func TestIsTabbed(t *testing.T) {
	if !IsTabbed("dating-card-tabbed", "") {
		t.Fatalf("expected name convention to mark tabbed")
	}
	if !IsTabbed("cards", "<!-- TABBED --><div></div>") {
		t.Fatalf("expected comment marker to mark tabbed")
	}
	if !IsTabbed("cards", `<div data-tabbed="true"></div>`) {
		t.Fatalf("expected attribute marker to mark tabbed")
	}
	if IsTabbed("cards", "<div></div>") {
		t.Fatalf("expected plain template not tabbed")
	}
}

func TestBuiltin(t *testing.T) {
	for _, name := range []string{BuiltinDefault, BuiltinTabbed} {
		def, err := Builtin(name)
		if err != nil {
			t.Fatalf("builtin %s: %v", name, err)
		}
		a := Activate(def, true)
		if a.Main.Err() != nil {
			t.Fatalf("builtin %s does not compile: %v", name, a.Main.Err())
		}
		if a.Tabbed != (name == BuiltinTabbed) {
			t.Fatalf("unexpected tabbed flag for %s", name)
		}
	}
	if _, err := Builtin("missing"); !errors.Is(err, ErrUnknownBuiltin) {
		t.Fatalf("expected ErrUnknownBuiltin, got %v", err)
	}
}

func TestActivate_DetectTabbedOff(t *testing.T) {
	def, err := Builtin(BuiltinTabbed)
	if err != nil {
		t.Fatalf("builtin: %v", err)
	}
	if Activate(def, false).Tabbed {
		t.Fatalf("expected detection switch to disable tabbed mode")
	}
}

func TestLoadDefinition(t *testing.T) {
	dir := t.TempDir()

	t.Run("html file", func(t *testing.T) {
		path := writeFile(t, dir, "sidebar-card.html", "<!-- POSITION: LEFT --><div>{{characterName}}</div>")
		def, err := LoadDefinition(path)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if def.Name != "sidebar-card" {
			t.Fatalf("unexpected name %q", def.Name)
		}
		if got := position.Resolve(Activate(def, true).Metadata(), "TOP"); got != position.Left {
			t.Fatalf("expected declared LEFT, got %s", got)
		}
	})

	t.Run("yaml preset", func(t *testing.T) {
		path := writeFile(t, dir, "preset.yaml", "templateName: Preset\nhtmlTemplate: \"<div></div>\"\ntemplatePosition: RIGHT\ninlineTemplatesEnabled: true\ninlineTemplates:\n  - insertName: mood\n    htmlContent: \"<span>{{mood}}</span>\"\n")
		def, err := LoadDefinition(path)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if def.Name != "Preset" || def.Position != "RIGHT" || len(def.InlineTemplates) != 1 {
			t.Fatalf("unexpected definition %#v", def)
		}
	})

	t.Run("json preset", func(t *testing.T) {
		path := writeFile(t, dir, "preset.json", `{"templateName":"J","htmlTemplate":"<p></p>"}`)
		def, err := LoadDefinition(path)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if def.Name != "J" {
			t.Fatalf("unexpected name %q", def.Name)
		}
	})

	t.Run("unsupported extension", func(t *testing.T) {
		path := writeFile(t, dir, "preset.toml", "x")
		if _, err := LoadDefinition(path); !errors.Is(err, ErrUnsupportedFile) {
			t.Fatalf("expected ErrUnsupportedFile, got %v", err)
		}
	})
}

func TestRegistry(t *testing.T) {
	active := Activate(Definition{
		Name:            "main",
		HTML:            "<div></div>",
		InlineEnabled:   true,
		InlineTemplates: []Inline{{Name: "mood", HTML: "<b>active {{m}}</b>"}},
	}, true)
	packs := []Pack{
		{Name: "p1", Enabled: true, Templates: []Inline{{Name: "mood", HTML: "<b>pack {{m}}</b>"}, {Name: "hp", HTML: "<i>{{hp}}</i>"}}},
		{Name: "p2", Enabled: false, Templates: []Inline{{Name: "off", HTML: "x"}}},
	}
	reg := NewRegistry(active, packs)

	out, found, err := reg.RenderInline("mood", map[string]any{"m": "calm"})
	if err != nil || !found {
		t.Fatalf("expected mood found, got found=%v err=%v", found, err)
	}
	if out != "<b>active calm</b>" {
		t.Fatalf("active template must shadow pack template, got %q", out)
	}

	out, found, _ = reg.RenderInline("hp", map[string]any{"hp": float64(3)})
	if !found || out != "<i>3</i>" {
		t.Fatalf("expected pack template, got %q found=%v", out, found)
	}

	if _, found, _ := reg.RenderInline("off", nil); found {
		t.Fatalf("disabled pack must not register templates")
	}
}

func TestRegistry_InlineDisabledOnActive(t *testing.T) {
	active := Activate(Definition{
		Name:            "main",
		InlineTemplates: []Inline{{Name: "mood", HTML: "x"}},
	}, true)
	if _, found, _ := NewRegistry(active, nil).RenderInline("mood", nil); found {
		t.Fatalf("inline templates of the active template need inlineTemplatesEnabled")
	}
}

func TestLoadPack(t *testing.T) {
	path := writeFile(t, t.TempDir(), "pack.yaml", "enabled: true\ntemplates:\n  - insertName: a\n    htmlContent: \"<a></a>\"\n")
	p, err := LoadPack(path)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if p.Name != "pack" || !p.Enabled || len(p.Templates) != 1 {
		t.Fatalf("unexpected pack %#v", p)
	}
}

func writeFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}
