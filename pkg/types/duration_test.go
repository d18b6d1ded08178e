package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDurationNS_Suffixes(t *testing.T) {
	cases := []struct {
		in string
		want uint64
	}{
		{"0", 0},
		{"0s", 0},
		{"1", 1_000_000_000},
		{"1s", 1_000_000_000},
		{"500ms", 500_000_000},
		{"1500ms", 1_500_000_000},
		{"1.5s", 1_500_000_000},
		{"3/2s", 1_500_000_000},
		{"250us", 250_000},
		{"250µs", 250_000},
		{"2m", 120_000_000_000},
		{"1h", 3_600_000_000_000},
		{"1d", 86_400_000_000_000},
	}
	for _, tc := range cases {
		got, err := ParseDurationNS(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

// Parse monotonicity: the same nominal duration expressed in different
// units parses to the same nanosecond value ( property 6).
func TestParseDurationNS_Monotonicity(t *testing.T) {
	a, err := ParseDurationNS("1500ms")
	require.NoError(t, err)
	b, err := ParseDurationNS("1.5s")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestParseDurationNS_Errors(t *testing.T) {
	for _, in := range []string{"", "abc", "1.5xx", "1/0s", "-1s"} {
		_, err := ParseDurationNS(in)
		assert.Error(t, err, in)
	}
}

func TestParseDurationNS_Overflow(t *testing.T) {
	_, err := ParseDurationNS("99999999999999999999d")
	assert.Error(t, err)
}
