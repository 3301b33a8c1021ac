// Package macro resolves inline display markers of the form
// [[DISPLAY=name, DATA={...}]] (or [[D=name, DATA={...}]]) in rendered
// message content, hiding markers that are still streaming in.
package macro

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Classes of the nodes this package inserts.
const (
	HiddenClass    = "sim-tracker-hidden-marker"
	ContainerClass = "sim-inline-template"
	ErrorClass     = "sim-inline-error"
	UnknownClass   = "sim-inline-unknown"
	openToken      = "[["
)

// Registry looks up and renders inline templates by name.
type Registry interface {
	RenderInline(name string, data map[string]any) (string, bool, error)
}

// markerPattern matches a complete marker in formatted HTML. DATA may contain
// inline formatting tags left by the markdown formatter but never a span or
// another "[[", so a marker split by a hidden-marker span does not match until
// it is unhidden and a broken marker cannot swallow the next one.
var markerPattern = regexp.MustCompile(
	`(?s)\[\[(?:DISPLAY|D)=\s*([^,\]<]+?)\s*,\s*DATA=(\{(?:[^<\[]|\[[^\[<]|</?(?:em|strong|i|b|u|s|del|code|br)\b[^>]*>)*?\})\]\]`)

// HidePartialMarkers wraps every incomplete marker in a hidden span so raw
// bracket syntax never shows while a message streams. Text before the opening
// brackets stays visible. It returns the number of markers hidden.
func HidePartialMarkers(node *goquery.Selection) int {
	var textNodes []*html.Node
	for _, n := range node.Nodes {
		collectText(n, &textNodes)
	}

	hidden := 0
	for _, t := range textNodes {
		i := unmatchedOpen(t.Data)
		if i < 0 {
			continue
		}
		span := &html.Node{
			Type:     html.ElementNode,
			Data:     "span",
			DataAtom: atom.Span,
			Attr: []html.Attribute{
				{Key: "class", Val: HiddenClass},
				{Key: "style", Val: "display: none;"},
			},
		}
		span.AppendChild(&html.Node{Type: html.TextNode, Data: t.Data[i:]})
		t.Parent.InsertBefore(span, t.NextSibling)
		if i == 0 {
			t.Parent.RemoveChild(t)
		} else {
			t.Data = t.Data[:i]
		}
		hidden++
	}
	return hidden
}

// collectText gathers text nodes outside hidden-marker spans and raw text elements.
func collectText(n *html.Node, out *[]*html.Node) {
	switch n.Type {
	case html.TextNode:
		if n.Parent != nil {
			*out = append(*out, n)
		}
		return
	case html.ElementNode:
		if n.DataAtom == atom.Script || n.DataAtom == atom.Style || hasClass(n, HiddenClass) {
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, out)
	}
}

// unmatchedOpen returns the offset of the first "[[" in text that does not
// start a complete marker, or -1.
func unmatchedOpen(text string) int {
	if !strings.Contains(text, openToken) {
		return -1
	}
	complete := markerPattern.FindAllStringIndex(text, -1)
	for from := 0; from < len(text); {
		i := strings.Index(text[from:], openToken)
		if i < 0 {
			return -1
		}
		i += from
		covered := false
		for _, loc := range complete {
			if i >= loc[0] && i < loc[1] {
				covered = true
				from = loc[1]
				break
			}
		}
		if !covered {
			return i
		}
	}
	return -1
}

// ProcessComplete replaces every complete marker with its rendered inline
// template. Already processed markers no longer match, so running it again
// changes nothing. It returns the number of markers replaced.
func ProcessComplete(node *goquery.Selection, reg Registry) int {
	replaced := 0
	node.Each(func(_ int, s *goquery.Selection) {
		inner, err := s.Html()
		if err != nil || !markerPattern.MatchString(inner) {
			return
		}
		out := markerPattern.ReplaceAllStringFunc(inner, func(m string) string {
			sub := markerPattern.FindStringSubmatch(m)
			replaced++
			return renderMarker(reg, strings.TrimSpace(html.UnescapeString(sub[1])), sub[2])
		})
		s.SetHtml(out)
	})
	return replaced
}

// UnhideAndProcess restores hidden markers to plain text and processes them.
// It runs once a message has finished streaming.
func UnhideAndProcess(node *goquery.Selection, reg Registry) int {
	node.Find("span." + HiddenClass).Each(func(_ int, s *goquery.Selection) {
		n := s.Get(0)
		parent := n.Parent
		if parent == nil {
			return
		}
		parent.InsertBefore(&html.Node{Type: html.TextNode, Data: s.Text()}, n)
		parent.RemoveChild(n)
		mergeText(parent)
	})
	return ProcessComplete(node, reg) + processLeftovers(node, reg)
}

// processLeftovers handles markers the pattern cannot match, such as DATA with
// nested arrays or "[[" inside a quoted string. Each is scanned with bracket
// balancing; one that never closes renders as invalid data so no raw marker
// text remains once streaming has ended.
func processLeftovers(node *goquery.Selection, reg Registry) int {
	var textNodes []*html.Node
	for _, n := range node.Nodes {
		collectText(n, &textNodes)
	}

	replaced := 0
	for _, t := range textNodes {
		if !strings.Contains(t.Data, openToken) {
			continue
		}
		var b strings.Builder
		rest := t.Data
		found := false
		for {
			i := markerStart(rest)
			if i < 0 {
				b.WriteString(html.EscapeString(rest))
				break
			}
			found = true
			replaced++
			b.WriteString(html.EscapeString(rest[:i]))
			name, data, end := scanMarker(rest[i:])
			if end < 0 {
				b.WriteString(invalidData(html.EscapeString(name)))
				rest = ""
				continue
			}
			b.WriteString(renderMarker(reg, name, html.EscapeString(data)))
			rest = rest[i+end:]
		}
		if found {
			replaceText(t, b.String())
		}
	}
	return replaced
}

// markerStart returns the offset of the next marker opening in text, or -1.
func markerStart(text string) int {
	for from := 0; ; {
		i := strings.Index(text[from:], openToken)
		if i < 0 {
			return -1
		}
		i += from
		tail := text[i+len(openToken):]
		if strings.HasPrefix(tail, "D=") || strings.HasPrefix(tail, "DISPLAY=") {
			return i
		}
		from = i + len(openToken)
	}
}

// scanMarker reads one marker at the start of text. It returns the template
// name, the DATA object and the offset just past the closing "]]", or an
// end of -1 when the marker is not closed.
func scanMarker(text string) (name, data string, end int) {
	body := strings.TrimPrefix(text, openToken)
	eq := strings.IndexByte(body, '=')
	comma := strings.IndexByte(body, ',')
	if eq < 0 || comma < eq {
		return strings.TrimSpace(body[eq+1:]), "", -1
	}
	name = strings.TrimSpace(body[eq+1 : comma])
	rest := strings.TrimLeft(body[comma+1:], " \t\n")
	if !strings.HasPrefix(rest, "DATA=") {
		return name, "", -1
	}
	rest = strings.TrimPrefix(rest, "DATA=")
	offset := len(text) - len(rest)

	n := balanced(rest)
	if n < 0 || !strings.HasPrefix(rest[n:], "]]") {
		return name, "", -1
	}
	return name, rest[:n], offset + n + 2
}

// balanced returns the length of the brace-delimited object at the start of s,
// skipping brackets inside quoted strings, or -1 when it does not close.
func balanced(s string) int {
	if !strings.HasPrefix(s, "{") {
		return -1
	}
	depth := 0
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' && quote == '"' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '{' || c == '[':
			depth++
		case c == '}' || c == ']':
			depth--
			if depth == 0 {
				return i + 1
			}
			if depth < 0 {
				return -1
			}
		}
	}
	return -1
}

// replaceText swaps text node t for the nodes parsed from markup.
func replaceText(t *html.Node, markup string) {
	parent := t.Parent
	nodes, err := html.ParseFragment(strings.NewReader(markup), parent)
	if err != nil {
		slog.Warn("inline marker output did not parse",
			"component", "macro",
			"error", err,
		)
		return
	}
	for _, n := range nodes {
		parent.InsertBefore(n, t)
	}
	parent.RemoveChild(t)
}

// mergeText joins adjacent text children of n.
func mergeText(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.TextNode && next != nil && next.Type == html.TextNode {
			c.Data += next.Data
			n.RemoveChild(next)
			continue
		}
		c = next
	}
}

func renderMarker(reg Registry, name, rawData string) string {
	attrName := html.EscapeString(name)
	data, err := ParseData(rawData)
	if err != nil {
		slog.Warn("inline marker data did not parse",
			"component", "macro",
			"template", name,
			"error", err,
		)
		return invalidData(attrName)
	}

	if reg == nil {
		return unknown(attrName)
	}
	out, found, err := reg.RenderInline(name, data)
	if !found {
		return unknown(attrName)
	}
	if err != nil {
		slog.Error("inline template failed",
			"component", "macro",
			"template", name,
			"error", err,
		)
		return fmt.Sprintf(`<span class="%s" data-template="%s">[Template error in %s]</span>`, ErrorClass, attrName, attrName)
	}
	return fmt.Sprintf(`<span class="%s" data-template="%s">%s</span>`, ContainerClass, attrName, out)
}

func invalidData(name string) string {
	return fmt.Sprintf(`<span class="%s" data-template="%s">[Invalid data for %s]</span>`, ErrorClass, name, name)
}

func unknown(name string) string {
	return fmt.Sprintf(`<span class="%s" data-template="%s">[Unknown template: %s]</span>`, UnknownClass, name, name)
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key == "class" {
			for _, c := range strings.Fields(a.Val) {
				if c == class {
					return true
				}
			}
		}
	}
	return false
}
