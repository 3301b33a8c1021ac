package render

import (
	"github.com/hyperengineering/simtracker/internal/position"
	"github.com/hyperengineering/simtracker/internal/sidebar"
	"github.com/hyperengineering/simtracker/internal/templates"
	"github.com/hyperengineering/simtracker/internal/tracker"
)

// Default values of the tracker settings.
const (
	DefaultBgColor    = "#6a5acd"
	DefaultMacroToken = "{{sim_tracker}}"
)

// Settings is the snapshot of tracker configuration one render pass uses.
type Settings struct {
	Enabled           bool
	Identifier        string
	HideBlocks        bool
	Position          string
	DefaultBgColor    string
	ShowThoughtBubble bool
	MacroToken        string
	Template          *templates.Active
	Sidebar           sidebar.Options
}

// DefaultSettings returns the documented defaults with the built-in template.
func DefaultSettings() Settings {
	def, _ := templates.Builtin(templates.BuiltinDefault)
	return Settings{
		Enabled:           true,
		Identifier:        tracker.DefaultIdentifier,
		HideBlocks:        true,
		DefaultBgColor:    DefaultBgColor,
		ShowThoughtBubble: true,
		MacroToken:        DefaultMacroToken,
		Template:          templates.Activate(def, true),
		Sidebar:           sidebar.DefaultOptions,
	}
}

// withDefaults fills unset fields so a partially built snapshot still renders.
func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.Identifier == "" {
		s.Identifier = d.Identifier
	}
	if s.DefaultBgColor == "" {
		s.DefaultBgColor = d.DefaultBgColor
	}
	if s.MacroToken == "" {
		s.MacroToken = d.MacroToken
	}
	if s.Template == nil {
		s.Template = d.Template
	}
	return s
}

// ResolvePosition applies the template declaration over the user setting.
func (s Settings) ResolvePosition() position.Position {
	if s.Template == nil {
		return position.Resolve(position.Metadata{}, s.Position)
	}
	return position.Resolve(s.Template.Metadata(), s.Position)
}
