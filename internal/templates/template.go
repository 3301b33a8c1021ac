// Package templates compiles Handlebars-style tracker templates and keeps the
// registry of inline templates used by display markers.
package templates

import (
	"fmt"
	"html"
	"log/slog"

	"github.com/aymerick/raymond"
)

// Template is a compiled template. A template that failed to compile still
// renders: it produces a labeled error block in place of its output.
type Template struct {
	Name   string
	Source string
	tpl    *raymond.Template
	err    error
}

// Compile parses source. Compile errors are kept on the template, see Err.
func Compile(name, source string) *Template {
	t := &Template{Name: name, Source: source}
	tpl, err := raymond.Parse(source)
	if err != nil {
		t.err = fmt.Errorf("%w: compile %s: %v", ErrTemplate, name, err)
		slog.Error("template compile failed",
			"component", "templates",
			"template", name,
			"error", err,
		)
		return t
	}
	tpl.RegisterHelpers(helpers())
	t.tpl = tpl
	return t
}

// Err returns the compile error, if any.
func (t *Template) Err() error {
	return t.err
}

// Render executes the template against ctx. Execution errors are returned;
// a template that did not compile returns its fallback block and no error.
func (t *Template) Render(ctx interface{}) (string, error) {
	if t.err != nil {
		return FallbackBlock(t.Name, t.err), nil
	}
	out, err := t.tpl.Exec(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: render %s: %v", ErrTemplate, t.Name, err)
	}
	return out, nil
}

// FallbackBlock is the visible stand-in for a template that cannot be used.
func FallbackBlock(name string, err error) string {
	return fmt.Sprintf(`<div class="sim-tracker-template-error"><strong>Template error (%s)</strong><pre>%s</pre></div>`,
		html.EscapeString(name), html.EscapeString(err.Error()))
}
