package render

import (
	"strconv"
	"strings"

	"github.com/hyperengineering/simtracker/internal/templates"
	"github.com/hyperengineering/simtracker/internal/tracker"
)

// Stat keys with derived display.
const (
	StatBg              = "bg"
	StatHealth          = "health"
	StatLastReact       = "last_react"
	StatInactive        = "inactive"
	StatInactiveReason  = "inactiveReason"
	StatThought         = "internal_thought"
	StatRelationship    = "relationshipStatus"
	StatDesire          = "desireStatus"
	defaultThought      = "No thoughts shown"
	defaultRelationship = "Unknown Status"
	defaultDesire       = "Unknown Desire"
)

var reactionGlyphs = map[int]string{
	0: "😐",
	1: "👍",
	2: "👎",
}

var healthGlyphs = map[int]string{
	1: "🤕",
	2: "💀",
}

var inactiveReasonGlyphs = map[int]string{
	1: "😴",
	2: "🏥",
	3: "😡",
	4: "🫥",
	5: "🪦",
}

// statDefaults fill missing stats so templates never see a hole.
var statDefaults = map[string]any{
	StatThought:        defaultThought,
	StatRelationship:   defaultRelationship,
	StatDesire:         defaultDesire,
	StatInactive:       false,
	StatInactiveReason: float64(0),
}

// ViewModel builds the template context of one character.
func ViewModel(s Settings, rec tracker.Record, c tracker.Character) map[string]any {
	stats := c.Fields()
	for k, v := range statDefaults {
		if _, ok := stats[k]; !ok {
			stats[k] = v
		}
	}
	stats[StatInactive] = truthy(stats[StatInactive])

	bg := s.DefaultBgColor
	if v, ok := c.Stat(StatBg); ok {
		if str, ok := v.(string); ok && strings.TrimSpace(str) != "" {
			bg = strings.TrimSpace(str)
		}
	}

	reaction := reactionGlyphs[0]
	if n, ok := statInt(c, StatLastReact); ok {
		if g, ok := reactionGlyphs[n]; ok {
			reaction = g
		}
	}

	health := ""
	if n, ok := statInt(c, StatHealth); ok {
		health = healthGlyphs[n]
	}

	inactiveReason := ""
	if n, ok := statInt(c, StatInactiveReason); ok {
		inactiveReason = inactiveReasonGlyphs[n]
	}

	return map[string]any{
		"characterName":       c.Name,
		"currentDate":         worldString(rec, tracker.KeyCurrentDate),
		"currentTime":         worldString(rec, tracker.KeyCurrentTime),
		"worldData":           rec.WorldData,
		"bgColor":             bg,
		"darkerBgColor":       templates.Darken(bg, templates.DarkenFactor),
		"reactionEmoji":       reaction,
		"healthIcon":          health,
		"inactiveReasonEmoji": inactiveReason,
		"showThoughtBubble":   s.ShowThoughtBubble,
		"stats":               stats,
	}
}

// TabbedContext is the single context a tabbed template receives.
func TabbedContext(s Settings, rec tracker.Record) map[string]any {
	chars := make([]map[string]any, len(rec.Characters))
	for i, c := range rec.Characters {
		chars[i] = ViewModel(s, rec, c)
	}
	return map[string]any{
		"characters":  chars,
		"currentDate": worldString(rec, tracker.KeyCurrentDate),
		"currentTime": worldString(rec, tracker.KeyCurrentTime),
		"worldData":   rec.WorldData,
	}
}

func worldString(rec tracker.Record, key string) string {
	v, ok := rec.WorldData[key]
	if !ok || v == nil {
		return ""
	}
	return toString(v)
}

func toString(v any) string {
	switch t := v.(type) {
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case string:
		return t
	default:
		return ""
	}
}

func statInt(c tracker.Character, key string) (int, bool) {
	v, ok := c.Stat(key)
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return int(t), true
	case int:
		return t, true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		s := strings.ToLower(strings.TrimSpace(t))
		return s == "true" || s == "yes" || s == "1"
	default:
		return false
	}
}
