package runconfig

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	assert.NoError(t, c.Validate())
	assert.Equal(t, 124, c.TimeoutExitCode)
	assert.Equal(t, uint64(DefaultOnTimeoutLimitNS), c.OnTimeoutLimitNS)
	assert.Equal(t, uint64(1), c.RetryBackoffNum)
	assert.Equal(t, uint64(1), c.RetryBackoffDen)
}

func TestValidateRejectsVerboseAndQuiet(t *testing.T) {
	c := Default()
	c.Verbose = true
	c.Quiet = true
	assert.Error(t, c.Validate())
}

func TestValidateRejectsOutOfRangeExitCode(t *testing.T) {
	c := Default()
	c.TimeoutExitCode = 300
	assert.Error(t, c.Validate())
}

func TestValidateRejectsZeroBackoffDenominator(t *testing.T) {
	c := Default()
	c.RetryBackoffDen = 0
	assert.Error(t, c.Validate())
}

func TestValidateAcceptsMultiCoreCPUPercent(t *testing.T) {
	c := Default()
	c.CPUPercent = 350
	assert.NoError(t, c.Validate())
}

func TestEnvDefault(t *testing.T) {
	require.NoError(t, os.Setenv(EnvTimeoutRetry, "3"))
	defer os.Unsetenv(EnvTimeoutRetry)

	v, ok := EnvDefault(EnvTimeoutRetry)
	assert.True(t, ok)
	assert.Equal(t, "3", v)

	n, ok := EnvDefaultUint(EnvTimeoutRetry)
	assert.True(t, ok)
	assert.Equal(t, uint64(3), n)
}

func TestEnvDefaultMissing(t *testing.T) {
	os.Unsetenv("TIMEOUT_DOES_NOT_EXIST")
	_, ok := EnvDefault("TIMEOUT_DOES_NOT_EXIST")
	assert.False(t, ok)
}
