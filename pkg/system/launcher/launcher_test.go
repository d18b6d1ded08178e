//go:build darwin

package launcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildArgvWithoutLimitsPassesThrough(t *testing.T) {
	argv := buildArgv("/bin/sleep", Spec{Argv: []string{"sleep", "10"}})
	assert.Equal(t, []string{"/bin/sleep", "10"}, argv)
}

func TestIsTrampoline(t *testing.T) {
	assert.True(t, IsTrampoline([]string{"/x/timeoutd", TrampolineArg, "1", "0", "/bin/sleep", "10"}))
	assert.False(t, IsTrampoline([]string{"/x/timeoutd", "run", "sleep", "10"}))
	assert.False(t, IsTrampoline([]string{"/x/timeoutd"}))
}

func TestRunTrampolineRejectsMalformedArgv(t *testing.T) {
	err := RunTrampoline([]string{"/x/timeoutd", TrampolineArg, "1"})
	assert.Error(t, err)
}

func TestRunTrampolineRejectsNonTrampoline(t *testing.T) {
	err := RunTrampoline([]string{"/x/timeoutd", "run"})
	assert.Error(t, err)
}

func TestLaunchRejectsEmptyArgv(t *testing.T) {
	_, err := Launch(Spec{})
	assert.Error(t, err)
}

func TestLaunchMapsLookupFailure(t *testing.T) {
	_, err := Launch(Spec{Argv: []string{"definitely-not-a-real-binary-xyz"}})
	assert.Error(t, err)
	var lookupErr *LookupError
	assert.ErrorAs(t, err, &lookupErr)
}
