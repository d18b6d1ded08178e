package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSize(t *testing.T) {
	cases := []struct {
		in   string
		want Bytes
	}{
		{"512", 512},
		{"1K", 1024},
		{"1KB", 1024},
		{"1k", 1024},
		{"16M", 16 * 1024 * 1024},
		{"2G", 2 * 1024 * 1024 * 1024},
		{"1T", 1024 * 1024 * 1024 * 1024},
	}
	for _, tc := range cases {
		got, err := ParseSize(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestParseSize_Errors(t *testing.T) {
	for _, in := range []string{"", "K", "abc", "-1M"} {
		_, err := ParseSize(in)
		assert.Error(t, err, in)
	}
}
