package types

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSignal_Forms(t *testing.T) {
	cases := []struct {
		in   string
		want Signal
	}{
		{"TERM", 15},
		{"term", 15},
		{"SIGTERM", 15},
		{"sigterm", 15},
		{"15", 15},
		{"INT", 2},
		{"HUP", 1},
		{"USR1", Signal(syscall.SIGUSR1)},
		{"USR2", Signal(syscall.SIGUSR2)},
		{"QUIT", 3},
	}
	for _, tc := range cases {
		got, err := ParseSignal(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestParseSignal_Errors(t *testing.T) {
	for _, in := range []string{"", "0", "32", "NOTASIGNAL", "-1"} {
		_, err := ParseSignal(in)
		assert.Error(t, err, in)
	}
}

func TestSignal_String(t *testing.T) {
	sig, err := ParseSignal("TERM")
	require.NoError(t, err)
	assert.Equal(t, "TERM", sig.String())
}
