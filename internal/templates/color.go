package templates

import (
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// DarkenFactor is the luminance multiplier used for secondary card UI.
const DarkenFactor = 0.7

// Darken scales the HSL lightness of a hex color by factor.
// Colors that are not #rgb or #rrggbb are returned unchanged.
func Darken(hex string, factor float64) string {
	c, err := colorful.Hex(strings.TrimSpace(hex))
	if err != nil {
		return hex
	}
	h, s, l := c.Hsl()
	return colorful.Hsl(h, s, l*factor).Clamped().Hex()
}
