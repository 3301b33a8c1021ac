package tracker

import (
	"bytes"
	"encoding/json"
	"sort"

	"gopkg.in/yaml.v3"
)

// Reserved top-level keys of the legacy flat shape that belong to world data.
const (
	KeyCurrentDate = "current_date"
	KeyCurrentTime = "current_time"
)

// WorldDataKeys is the reserved key set used to partition legacy records.
var WorldDataKeys = []string{KeyCurrentDate, KeyCurrentTime}

// Record is the canonical tracker shape. WorldData and Characters are never nil
// after Normalize; Characters keep their authored (display) order.
type Record struct {
	WorldData  map[string]any `json:"worldData" yaml:"worldData"`
	Characters []Character    `json:"characters" yaml:"characters"`
}

// Character is one tracked character. Name is its identity for the duration of a render.
type Character struct {
	Name  string
	Stats map[string]any
}

// Stat returns a stat value by key. The key "name" resolves to Name.
func (c Character) Stat(key string) (any, bool) {
	if key == "name" {
		return c.Name, true
	}
	v, ok := c.Stats[key]
	return v, ok
}

// Fields returns the character as a flat map including "name".
func (c Character) Fields() map[string]any {
	out := make(map[string]any, len(c.Stats)+1)
	for k, v := range c.Stats {
		out[k] = v
	}
	out["name"] = c.Name
	return out
}

func (c Character) sortedKeys() []string {
	keys := make([]string, 0, len(c.Stats))
	for k := range c.Stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MarshalJSON emits "name" first, then stats in key order.
func (c Character) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"name":`)
	name, err := json.Marshal(c.Name)
	if err != nil {
		return nil, err
	}
	buf.Write(name)
	for _, k := range c.sortedKeys() {
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(c.Stats[k])
		if err != nil {
			return nil, err
		}
		buf.WriteByte(',')
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalYAML emits "name" first, then stats in key order.
func (c Character) MarshalYAML() (interface{}, error) {
	n := &yaml.Node{Kind: yaml.MappingNode}
	add := func(key string, value any) error {
		var k, v yaml.Node
		k.SetString(key)
		if err := v.Encode(value); err != nil {
			return err
		}
		n.Content = append(n.Content, &k, &v)
		return nil
	}
	if err := add("name", c.Name); err != nil {
		return nil, err
	}
	for _, k := range c.sortedKeys() {
		if err := add(k, c.Stats[k]); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// Source is a parsed tracker payload in one of the two accepted shapes.
type Source interface {
	isSource()
}

// LegacySource is the flat shape: reserved world-data keys plus character names
// mapping to stat objects. Order carries the authored key order when known.
type LegacySource struct {
	Fields map[string]any
	Order  []string
}

// ModernSource is the nested {worldData, characters} shape.
type ModernSource struct {
	WorldData  map[string]any
	Characters []any
}

func (LegacySource) isSource() {}
func (ModernSource) isSource() {}

// Classify picks the shape of a decoded object: modern when worldData is an
// object and characters is an array, legacy otherwise.
func Classify(obj map[string]any, order []string) Source {
	world, worldOK := obj["worldData"].(map[string]any)
	chars, charsOK := obj["characters"].([]any)
	if worldOK && charsOK {
		return ModernSource{WorldData: world, Characters: chars}
	}
	return LegacySource{Fields: obj, Order: order}
}

// Source returns the record in modern source form, so that
// Normalize(r.Source()) reproduces r.
func (r Record) Source() Source {
	chars := make([]any, 0, len(r.Characters))
	for _, c := range r.Characters {
		chars = append(chars, c.Fields())
	}
	world := make(map[string]any, len(r.WorldData))
	for k, v := range r.WorldData {
		world[k] = v
	}
	return ModernSource{WorldData: world, Characters: chars}
}

// Normalize converts either source shape into a Record. It is pure and idempotent.
// Numbers are canonicalized to float64 so JSON and YAML inputs compare equal.
// Character entries that are not objects or carry no name are dropped.
func Normalize(src Source) Record {
	rec := Record{
		WorldData:  map[string]any{},
		Characters: []Character{},
	}

	switch s := src.(type) {
	case ModernSource:
		for k, v := range s.WorldData {
			rec.WorldData[k] = canonical(v)
		}
		for _, item := range s.Characters {
			obj, ok := canonical(item).(map[string]any)
			if !ok {
				continue
			}
			name, ok := obj["name"].(string)
			if !ok || name == "" {
				continue
			}
			delete(obj, "name")
			rec.Characters = append(rec.Characters, Character{Name: name, Stats: obj})
		}
	case LegacySource:
		for _, key := range legacyOrder(s) {
			value := canonical(s.Fields[key])
			if isWorldDataKey(key) {
				rec.WorldData[key] = value
				continue
			}
			stats := map[string]any{}
			if obj, ok := value.(map[string]any); ok {
				for k, v := range obj {
					if k == "name" {
						continue
					}
					stats[k] = v
				}
			}
			rec.Characters = append(rec.Characters, Character{Name: key, Stats: stats})
		}
	}

	return rec
}

// legacyOrder returns the authored key order, falling back to sorted keys for
// keys the order list does not mention.
func legacyOrder(s LegacySource) []string {
	seen := make(map[string]struct{}, len(s.Fields))
	keys := make([]string, 0, len(s.Fields))
	for _, k := range s.Order {
		if _, ok := s.Fields[k]; !ok {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	var rest []string
	for k := range s.Fields {
		if _, ok := seen[k]; !ok {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

func isWorldDataKey(key string) bool {
	for _, k := range WorldDataKeys {
		if k == key {
			return true
		}
	}
	return false
}
