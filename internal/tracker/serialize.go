package tracker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format is the user-selectable tracker output format.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts "json" or "yaml" in any case; empty means JSON.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Serialize renders a record in the canonical modern shape.
func Serialize(r Record, f Format) (string, error) {
	if r.WorldData == nil {
		r.WorldData = map[string]any{}
	}
	if r.Characters == nil {
		r.Characters = []Character{}
	}

	var buf bytes.Buffer
	switch f {
	case FormatJSON, "":
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r); err != nil {
			return "", fmt.Errorf("serialize tracker json: %w", err)
		}
	case FormatYAML:
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return "", fmt.Errorf("serialize tracker yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return "", fmt.Errorf("serialize tracker yaml: %w", err)
		}
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
	return strings.TrimSpace(buf.String()), nil
}

// SerializeFence renders a record and wraps it in tracker fence delimiters.
func SerializeFence(r Record, identifier string, f Format) (string, error) {
	body, err := Serialize(r, f)
	if err != nil {
		return "", err
	}
	return Fence(identifier, body), nil
}
