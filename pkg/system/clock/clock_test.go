//go:build darwin

package clock

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseMode(t *testing.T) {
	m, ok := ParseMode("wall")
	assert.True(t, ok)
	assert.Equal(t, Wall, m)

	m, ok = ParseMode("active")
	assert.True(t, ok)
	assert.Equal(t, Active, m)

	_, ok = ParseMode("bogus")
	assert.False(t, ok)
}

func TestMode_String(t *testing.T) {
	assert.Equal(t, "wall", Wall.String())
	assert.Equal(t, "active", Active.String())
}

// Both clocks must be monotonic non-decreasing across consecutive samples.
func TestClocksMonotonic(t *testing.T) {
	for _, mode := range []Mode{Wall, Active} {
		a := Now(mode)
		b := Now(mode)
		assert.GreaterOrEqual(t, b, a, mode.String())
	}
}
