package catalog

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// HSVToRGB converts hue (0-360), saturation and value (0-100) to a
// "#RRGGBB" string.
func HSVToRGB(h, s, v float64) string {
	h = math.Mod(math.Max(h, 0), 360) / 60
	s = math.Min(math.Max(s, 0), 100) / 100
	v = math.Min(math.Max(v, 0), 100) / 100

	c := v * s
	x := c * (1 - math.Abs(math.Mod(h, 2)-1))
	var r, g, b float64
	switch int(h) {
	case 0:
		r, g, b = c, x, 0
	case 1:
		r, g, b = x, c, 0
	case 2:
		r, g, b = 0, c, x
	case 3:
		r, g, b = 0, x, c
	case 4:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	m := v - c
	to8 := func(f float64) int { return int(math.Round((f + m) * 255)) }
	return fmt.Sprintf("#%02X%02X%02X", to8(r), to8(g), to8(b))
}

// RGBToHSV converts a "#RRGGBB" string to hue (0-360), saturation and
// value (0-100), each rounded to an integer.
func RGBToHSV(rgb string) (h, s, v float64, err error) {
	hex := strings.TrimPrefix(rgb, "#")
	if len(hex) != 6 {
		return 0, 0, 0, fmt.Errorf("%w: %q", ErrInvalidColor, rgb)
	}
	n, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("%w: %q", ErrInvalidColor, rgb)
	}
	r := float64(n>>16&0xFF) / 255
	g := float64(n>>8&0xFF) / 255
	b := float64(n&0xFF) / 255

	hi := math.Max(r, math.Max(g, b))
	lo := math.Min(r, math.Min(g, b))
	d := hi - lo

	switch {
	case d == 0:
		h = 0
	case hi == r:
		h = 60 * math.Mod((g-b)/d, 6)
	case hi == g:
		h = 60 * ((b-r)/d + 2)
	default:
		h = 60 * ((r-g)/d + 4)
	}
	if h < 0 {
		h += 360
	}
	if hi > 0 {
		s = d / hi
	}
	return math.Mod(math.Round(h), 360), math.Round(s * 100), math.Round(hi * 100), nil
}
