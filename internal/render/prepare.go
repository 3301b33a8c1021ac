package render

import (
	"strings"

	"github.com/hyperengineering/simtracker/internal/tracker"
)

// Markup the pipeline leaves in formatted message content.
const (
	HiddenBlockClass       = "sim-tracker-hidden-block"
	MacroPlaceholderClass  = "sim-tracker-macro-placeholder"
	ContainerClass         = "sim-tracker-container"
	ErrorClass             = "sim-tracker-error"
	hiddenBlockOpen        = `<div class="` + HiddenBlockClass + `" style="display: none;">`
	macroPlaceholderMarkup = `<span class="` + MacroPlaceholderClass + `"></span>`
)

// PrepareText rewrites raw message text before it reaches the host formatter:
// tracker fences are wrapped in a hidden block when HideBlocks is set, and the
// macro token becomes an empty placeholder node.
//
// Blank lines around the fence keep the markdown formatter treating the
// wrapper as raw HTML and the fence as a code block.
func PrepareText(s Settings, text string) string {
	s = s.withDefaults()
	if s.HideBlocks {
		blocks := tracker.ExtractAll(text, s.Identifier)
		if len(blocks) > 0 {
			var b strings.Builder
			last := 0
			for _, blk := range blocks {
				b.WriteString(text[last:blk.Start])
				b.WriteString(hiddenBlockOpen)
				b.WriteString("\n\n")
				b.WriteString(blk.Raw)
				b.WriteString("\n\n</div>")
				last = blk.End
			}
			b.WriteString(text[last:])
			text = b.String()
		}
	}
	if s.MacroToken != "" {
		text = strings.ReplaceAll(text, s.MacroToken, macroPlaceholderMarkup)
	}
	return text
}
