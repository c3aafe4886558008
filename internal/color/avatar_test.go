package color

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

var hexColor = regexp.MustCompile(`^#[0-9A-F]{6}$`)

func TestForUser(t *testing.T) {
	assert.Empty(t, ForUser(""))

	c := ForUser("u1")
	assert.Regexp(t, hexColor, c)
	assert.Equal(t, c, ForUser("u1"))
	assert.NotEqual(t, ForUser("u1"), ForUser("u2-some-other-user"))
}

func TestForCategory(t *testing.T) {
	assert.Equal(t, "#E57373", ForCategory(1))
	assert.Equal(t, "#FFB74D", ForCategory(2))
	assert.Equal(t, "#4FC3F7", ForCategory(3))
	assert.Equal(t, ForCategory(1), ForCategory(6))
	assert.Regexp(t, hexColor, ForCategory(0))
}

func TestHSLToRGB(t *testing.T) {
	r, g, b := hslToRGB(0, 0, 0.5)
	assert.Equal(t, []uint8{127, 127, 127}, []uint8{r, g, b})

	r, g, b = hslToRGB(0, 1, 0.5)
	assert.Equal(t, []uint8{255, 0, 0}, []uint8{r, g, b})
}
