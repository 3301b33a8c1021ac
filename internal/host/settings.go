package host

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/hyperengineering/simtracker/internal/config"
	"github.com/hyperengineering/simtracker/internal/render"
	"github.com/hyperengineering/simtracker/internal/sidebar"
	"github.com/hyperengineering/simtracker/internal/templates"
)

// SettingsFrom resolves tracker configuration into a render snapshot and the
// inline template registry that goes with it. Template files are read here,
// once per settings change, not on every render.
func SettingsFrom(t config.TrackerConfig) (render.Settings, *templates.Registry, error) {
	def, err := loadDefinition(t.TemplatePath)
	if err != nil {
		return render.Settings{}, nil, err
	}

	active := templates.Activate(def, t.DetectTabbed)
	if err := active.Main.Err(); err != nil {
		slog.Warn("template does not compile, cards will show the error",
			"component", "render",
			"template", def.Name,
			"error", err,
		)
	}

	packs := make([]templates.Pack, 0, len(t.TemplatePacks))
	for _, path := range t.TemplatePacks {
		p, err := templates.LoadPack(path)
		if err != nil {
			return render.Settings{}, nil, err
		}
		packs = append(packs, p)
	}

	s := render.Settings{
		Enabled:           t.Enabled,
		Identifier:        t.Identifier,
		HideBlocks:        t.HideBlocks,
		Position:          t.Position,
		DefaultBgColor:    t.DefaultBgColor,
		ShowThoughtBubble: t.ShowThoughtBubble,
		MacroToken:        t.MacroToken,
		Template:          active,
		Sidebar: sidebar.Options{
			RetryDelay:    time.Duration(t.AnchorRetryDelay),
			RetryAttempts: t.AnchorRetryAttempts,
		},
	}
	return s, templates.NewRegistry(active, packs), nil
}

// loadDefinition accepts a built-in name, a file path, or nothing.
func loadDefinition(path string) (templates.Definition, error) {
	switch path {
	case "", templates.BuiltinDefault:
		return templates.Builtin(templates.BuiltinDefault)
	case templates.BuiltinTabbed:
		return templates.Builtin(templates.BuiltinTabbed)
	}
	def, err := templates.LoadDefinition(path)
	if err != nil {
		return templates.Definition{}, fmt.Errorf("tracker template: %w", err)
	}
	return def, nil
}
