package tracker

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

var errNotObject = errors.New("payload is not an object")

// Parse decodes a tracker payload. Strict JSON is tried first; on failure the
// payload is read as a YAML mapping. The result is classified into its source shape.
func Parse(payload string) (Source, error) {
	obj, order, jsonErr := parseJSON(payload)
	if jsonErr == nil {
		return Classify(obj, order), nil
	}

	obj, order, yamlErr := parseYAML(payload)
	if yamlErr == nil {
		return Classify(obj, order), nil
	}

	return nil, &ParseError{Payload: payload, JSONErr: jsonErr, YAMLErr: yamlErr}
}

// ParseRecord is Parse followed by Normalize.
func ParseRecord(payload string) (Record, error) {
	src, err := Parse(payload)
	if err != nil {
		return Record{}, err
	}
	return Normalize(src), nil
}

func parseJSON(payload string) (map[string]any, []string, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(payload), &obj); err != nil {
		return nil, nil, err
	}
	if obj == nil {
		return nil, nil, errNotObject
	}
	return obj, jsonKeyOrder(payload), nil
}

// jsonKeyOrder walks the top-level object tokens to recover authored key order.
func jsonKeyOrder(payload string) []string {
	dec := json.NewDecoder(strings.NewReader(payload))
	tok, err := dec.Token()
	if err != nil {
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil
	}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return keys
		}
		key, ok := tok.(string)
		if !ok {
			return keys
		}
		keys = append(keys, key)
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return keys
		}
	}
	return keys
}

func parseYAML(payload string) (map[string]any, []string, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(payload), &doc); err != nil {
		return nil, nil, err
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, nil, errNotObject
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, nil, fmt.Errorf("%w: yaml %s", errNotObject, root.ShortTag())
	}

	keepTimestampText(root)
	var obj map[string]any
	if err := root.Decode(&obj); err != nil {
		return nil, nil, err
	}

	keys := make([]string, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		keys = append(keys, root.Content[i].Value)
	}
	return obj, keys, nil
}

// keepTimestampText re-tags implicit timestamps as strings so bare dates and
// times keep the text the author wrote.
func keepTimestampText(n *yaml.Node) {
	if n.Kind == yaml.ScalarNode && n.ShortTag() == "!!timestamp" {
		n.Tag = "!!str"
	}
	for _, c := range n.Content {
		keepTimestampText(c)
	}
}
