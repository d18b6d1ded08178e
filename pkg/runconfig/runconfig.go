// Package runconfig holds the immutable configuration for one invocation
// and the environment-variable default layer cobra's flag parsing
// falls back to when a flag was not explicitly set.
package runconfig

import (
	"fmt"
	"os"
	"strconv"

	"github.com/denispol/darwin-timeout/pkg/system/clock"
	"github.com/denispol/darwin-timeout/pkg/types"
)

// Config is the immutable per-invocation configuration the supervision
// loop consumes. Every *_ns field is 0 when disabled unless noted.
type Config struct {
	TimeoutNS uint64
	ClockMode clock.Mode
	GracefulSignal types.Signal
	KillAfterNS uint64
	PreserveStatus bool
	Foreground bool
	Verbose bool
	Quiet bool
	TimeoutExitCode int
	OnTimeoutCmd string
	OnTimeoutLimitNS uint64
	WaitForFile string
	WaitForFileTimeoutNS uint64
	RetryCount uint64
	RetryDelayNS uint64
	RetryBackoffNum uint64
	RetryBackoffDen uint64
	HeartbeatNS uint64
	StdinIdleNS uint64
	StdinPassthrough bool
	MemLimitBytes types.Bytes
	CPUTimeNS uint64
	CPUPercent uint64
}

// DefaultOnTimeoutLimitNS is its default hook deadline (5s).
const DefaultOnTimeoutLimitNS = 5_000_000_000

// Default constructs a Config with every spec-mandated default applied.
// Callers then overlay explicit flags and environment-variable fallbacks
// on top.
func Default() Config {
	return Config{
		ClockMode: clock.Wall,
		GracefulSignal: mustSignal("TERM"),
		TimeoutExitCode: 124,
		OnTimeoutLimitNS: DefaultOnTimeoutLimitNS,
		RetryBackoffNum: 1,
		RetryBackoffDen: 1,
	}
}

func mustSignal(name string) types.Signal {
	sig, err := types.ParseSignal(name)
	if err != nil {
		panic(err) // unreachable: "TERM" always parses
	}
	return sig
}

// Validate enforces the invariants construction must satisfy: mutually
// exclusive verbose/quiet, in-range timeout exit code, in-range CPU
// percent, and a sane retry backoff ratio.
func (c Config) Validate() error {
	if c.Verbose && c.Quiet {
		return fmt.Errorf("runconfig: --verbose and --quiet are mutually exclusive")
	}
	if c.TimeoutExitCode < 0 || c.TimeoutExitCode > 255 {
		return fmt.Errorf("runconfig: timeout exit code %d out of range [0,255]", c.TimeoutExitCode)
	}
	if c.CPUPercent != 0 && (c.CPUPercent < 1 || c.CPUPercent > 6400) {
		return fmt.Errorf("runconfig: cpu percent %d out of range [1,6400]", c.CPUPercent)
	}
	if c.RetryBackoffDen == 0 {
		return fmt.Errorf("runconfig: retry backoff denominator must be nonzero")
	}
	return nil
}

// EnvDefault reads env as a fallback for a flag the user did not set
// explicitly, per its "provide defaults only when the corresponding flag
// is absent" rule. The caller is responsible for checking
// cmd.Flags().Changed before calling this.
func EnvDefault(env string) (string, bool) {
	v, ok := os.LookupEnv(env)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// EnvDefaultUint is EnvDefault for an already-parsed nanosecond/count
// value (used for flags whose environment fallback is a raw integer
// rather than a duration/size literal needing grammar parsing elsewhere).
func EnvDefaultUint(env string) (uint64, bool) {
	v, ok := EnvDefault(env)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Environment variable names.
const (
	EnvTimeout = "TIMEOUT"
	EnvTimeoutSignal = "TIMEOUT_SIGNAL"
	EnvTimeoutKillAfter = "TIMEOUT_KILL_AFTER"
	EnvTimeoutRetry = "TIMEOUT_RETRY"
	EnvTimeoutHeartbeat = "TIMEOUT_HEARTBEAT"
	EnvTimeoutStdinTimeout = "TIMEOUT_STDIN_TIMEOUT"
	EnvTimeoutWaitForFile = "TIMEOUT_WAIT_FOR_FILE"
	EnvTimeoutWaitForFileTimeout = "TIMEOUT_WAIT_FOR_FILE_TIMEOUT"
)
