// Package color derives display colors for users and tag categories.
package color

import (
	"fmt"
	"hash/fnv"
)

// Marker colors, indexed by category id. Ids outside the table wrap around.
var categoryPalette = []string{
	"#E57373", // 校園設施
	"#FFB74D", // 校園問題
	"#4FC3F7", // 校園狀態
	"#81C784",
	"#BA68C8",
}

// ForUser returns a stable avatar color for a uid, for users without a picture.
// Returns "" for an empty uid.
func ForUser(uid string) string {
	if uid == "" {
		return ""
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(uid))
	hue := float64(h.Sum32() % 360)

	r, g, b := hslToRGB(hue, 0.4, 0.65)
	return fmt.Sprintf("#%02X%02X%02X", r, g, b)
}

// ForCategory returns the marker color of a category.
func ForCategory(id int) string {
	if id <= 0 {
		return categoryPalette[len(categoryPalette)-1]
	}
	return categoryPalette[(id-1)%len(categoryPalette)]
}

// hslToRGB converts h in [0,360) and s, l in [0,1] to 8-bit RGB.
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	h /= 360.0

	if s == 0 {
		v := uint8(l * 255)
		return v, v, v
	}

	q := l + s - l*s
	if l < 0.5 {
		q = l * (1 + s)
	}
	p := 2*l - q

	return uint8(hueToRGB(p, q, h+1.0/3.0) * 255),
		uint8(hueToRGB(p, q, h) * 255),
		uint8(hueToRGB(p, q, h-1.0/3.0) * 255)
}

func hueToRGB(p, q, t float64) float64 {
	switch {
	case t < 0:
		t++
	case t > 1:
		t--
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 1.0/2.0:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	default:
		return p
	}
}
