package host

import (
	"bytes"
	"html"
	"log/slog"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldhtml "github.com/yuin/goldmark/renderer/html"
)

// newMarkdown builds the message formatter. Raw HTML passes through because
// the render pipeline inserts wrapper and placeholder elements before
// formatting.
func newMarkdown() goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(
			goldhtml.WithUnsafe(),
			goldhtml.WithHardWraps(),
		),
	)
}

func formatMarkdown(md goldmark.Markdown, text string, id int) string {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		slog.Warn("message formatting failed",
			"component", "render",
			"message_id", id,
			"error", err,
		)
		return "<p>" + html.EscapeString(text) + "</p>"
	}
	return buf.String()
}
