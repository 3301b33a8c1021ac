// Package position resolves where a rendered tracker is mounted.
package position

import (
	"regexp"
	"strings"
)

// Position is one of the five mount strategies.
type Position string

const (
	Top    Position = "TOP"
	Bottom Position = "BOTTOM"
	Left   Position = "LEFT"
	Right  Position = "RIGHT"
	Macro  Position = "MACRO"
)

// Default applies when neither the template nor the user declares a position.
const Default = Bottom

// All lists every position in declaration order.
var All = []Position{Top, Bottom, Left, Right, Macro}

// Parse accepts a position name in any case.
func Parse(s string) (Position, bool) {
	p := Position(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range All {
		if p == known {
			return p, true
		}
	}
	return "", false
}

// IsSidebar reports whether p mounts into a page-level sidebar.
func (p Position) IsSidebar() bool {
	return p == Left || p == Right
}

// IsExclusive reports whether only the most recent tracker message may be displayed.
func (p Position) IsExclusive() bool {
	return p != Macro
}

// Metadata is what a template declares about its own placement.
type Metadata struct {
	// Declared is a structured position field (preset files).
	Declared string
	// Source is the template body, scanned for a POSITION comment.
	Source string
}

var commentPattern = regexp.MustCompile(`(?i)<!--\s*POSITION\s*:\s*([A-Za-z]+)\s*-->`)

// FromComment returns the position declared by a <!-- POSITION: X --> comment.
func FromComment(source string) (Position, bool) {
	m := commentPattern.FindStringSubmatch(source)
	if m == nil {
		return "", false
	}
	return Parse(m[1])
}

// Position returns the template's own position, structured field first.
func (m Metadata) Position() (Position, bool) {
	if p, ok := Parse(m.Declared); ok {
		return p, true
	}
	return FromComment(m.Source)
}

// Resolve applies the precedence template declaration > user setting > Default.
// Callers resolve once per render pass and reuse the result.
func Resolve(meta Metadata, userSetting string) Position {
	if p, ok := meta.Position(); ok {
		return p
	}
	if p, ok := Parse(userSetting); ok {
		return p
	}
	return Default
}
