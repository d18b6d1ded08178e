package chrono

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestElapsed(t *testing.T) {
	v, ok := Elapsed(100, 150)
	assert.True(t, ok)
	assert.Equal(t, uint64(50), v)

	_, ok = Elapsed(150, 100)
	assert.False(t, ok)

	v, ok = Elapsed(100, 100)
	assert.True(t, ok)
	assert.Equal(t, uint64(0), v)
}

func TestRemaining(t *testing.T) {
	assert.Equal(t, uint64(50), Remaining(150, 100))
	assert.Equal(t, uint64(0), Remaining(100, 150))
	assert.Equal(t, uint64(0), Remaining(100, 100))
}

func TestAdvance(t *testing.T) {
	assert.Equal(t, uint64(150), Advance(100, 50))
	assert.Equal(t, uint64(math.MaxUint64), Advance(math.MaxUint64-10, 50))
	assert.Equal(t, uint64(math.MaxUint64), Advance(math.MaxUint64, 1))
}

func TestAdjustBack(t *testing.T) {
	v, ok := AdjustBack(100, 50)
	assert.True(t, ok)
	assert.Equal(t, uint64(50), v)

	_, ok = AdjustBack(50, 100)
	assert.False(t, ok)
}

// Checked time arithmetic invariant: for all (a, b),
// Advance(a, b) is either exact or saturates, and AdjustBack(a, b) fails
// iff b > a.
func TestCheckedArithmeticInvariant(t *testing.T) {
	pairs := [][2]uint64{
		{0, 0}, {1, 1}, {math.MaxUint64, 1}, {0, math.MaxUint64},
		{math.MaxUint64 / 2, math.MaxUint64 / 2}, {5, 10}, {10, 5},
	}
	for _, p := range pairs {
		a, b := p[0], p[1]
		sum := Advance(a, b)
		if b > math.MaxUint64-a {
			assert.Equal(t, uint64(math.MaxUint64), sum)
		} else {
			assert.Equal(t, a+b, sum)
		}

		_, ok := AdjustBack(a, b)
		assert.Equal(t, b <= a, ok)
	}
}

func TestDeadlineReached(t *testing.T) {
	assert.True(t, DeadlineReached(100, 100))
	assert.True(t, DeadlineReached(100, 150))
	assert.False(t, DeadlineReached(100, 99))
}

func TestDeadline(t *testing.T) {
	d := NewDeadline(1000, 500)
	assert.Equal(t, uint64(1500), d.At())
	assert.False(t, d.Reached(1400))
	assert.True(t, d.Reached(1500))
	assert.Equal(t, uint64(100), d.RemainingAt(1400))
}

func TestDeadline_SaturatesOnOverflow(t *testing.T) {
	d := NewDeadline(math.MaxUint64-5, 100)
	assert.Equal(t, uint64(math.MaxUint64), d.At())
	assert.False(t, d.Reached(math.MaxUint64-1))
}
