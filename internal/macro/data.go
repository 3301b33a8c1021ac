package macro

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"gopkg.in/yaml.v3"
)

// ErrInvalidData indicates a DATA object that no parser accepted.
var ErrInvalidData = errors.New("invalid inline DATA")

var (
	tagPattern      = regexp.MustCompile(`<[^>]*>`)
	barewordPattern = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_\-]*)\s*:`)
)

// ParseData decodes the DATA object of a display marker as it appears in
// formatted HTML. Markup left by the formatter is stripped and entities are
// decoded, then the object is read as JSON, as JSON with bareword keys quoted,
// and finally as a YAML flow mapping.
func ParseData(raw string) (map[string]any, error) {
	text := strings.TrimSpace(html.UnescapeString(tagPattern.ReplaceAllString(raw, "")))
	if text == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidData)
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(text), &out); err == nil && out != nil {
		return out, nil
	}

	quoted := barewordPattern.ReplaceAllString(text, `$1"$2":`)
	out = nil
	if err := json.Unmarshal([]byte(quoted), &out); err == nil && out != nil {
		return out, nil
	}

	if out := parseFlowYAML(text); out != nil {
		return out, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidData, text)
}

func parseFlowYAML(text string) map[string]any {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(text), &doc); err != nil || len(doc.Content) == 0 {
		return nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil
	}
	untagTimestamps(root)
	var out map[string]any
	if err := root.Decode(&out); err != nil {
		return nil
	}
	return out
}

// untagTimestamps keeps bare dates as the text that was written.
func untagTimestamps(n *yaml.Node) {
	if n.Kind == yaml.ScalarNode && n.ShortTag() == "!!timestamp" {
		n.Tag = "!!str"
	}
	for _, c := range n.Content {
		untagTimestamps(c)
	}
}
