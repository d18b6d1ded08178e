//go:build darwin

package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/denispol/darwin-timeout/pkg/configfile"
	"github.com/denispol/darwin-timeout/pkg/gate"
	"github.com/denispol/darwin-timeout/pkg/outcome"
	"github.com/denispol/darwin-timeout/pkg/retry"
	"github.com/denispol/darwin-timeout/pkg/runconfig"
	"github.com/denispol/darwin-timeout/pkg/supervisor"
	"github.com/denispol/darwin-timeout/pkg/system/clock"
	"github.com/denispol/darwin-timeout/pkg/system/launcher"
	"github.com/denispol/darwin-timeout/pkg/types"
)

// rawFlags holds every flag as the string/bool cobra parsed it, before
// the duration/signal/size grammars in pkg/types turn them into the
// nanosecond/byte values runconfig.Config actually carries.
type rawFlags struct {
	signal          string
	killAfter       string
	preserveStatus  bool
	foreground      bool
	verbose         bool
	quiet           bool
	confine         string
	heartbeat       string
	stdinTimeout    string
	stdinPassthru   bool
	retry           int
	retryDelay      string
	retryBackoff    string
	onTimeout       string
	onTimeoutLimit  string
	timeoutExitCode int
	waitForFile     string
	waitForTimeout  string
	memLimit        string
	cpuTime         string
	cpuPercent      uint64
	json            bool
	config          string
}

func main() {
	// A re-exec'd trampoline invocation (see launcher.buildArgv) must never
	// reach cobra: argv[1] is the trampoline marker, not a flag, and
	// argv[2] is a cpu-seconds count, not a DURATION. Intercept it first,
	// apply the rlimits, and execve into the real target.
	if launcher.IsTrampoline(os.Args) {
		if err := launcher.RunTrampoline(os.Args); err != nil {
			fmt.Fprintln(os.Stderr, "timeoutd:", err)
			os.Exit(126)
		}
	}

	var f rawFlags

	root := &cobra.Command{
		Use:   "timeoutd [OPTIONS] DURATION COMMAND [ARG...]",
		Short: "Run a command under a sleep-resilient wall-clock timeout",
		Long: `timeoutd runs COMMAND and terminates it if it is still running after
DURATION has elapsed. Unlike a timer built on a process-local monotonic
clock, the wall-clock mode keeps counting across system sleep/hibernate, so
a laptop closing its lid does not grant the command a free pause.

Examples:
  timeoutd 30s curl https://example.com
  timeoutd -s KILL -k 10s 5m ./long-running-job
  timeoutd --mem-limit 512M --cpu-percent 150 1h ./worker`,
		Args:                  cobra.MinimumNArgs(1),
		DisableFlagsInUseLine: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, f, args)
		},
	}
	root.Flags().SetInterspersed(false)

	root.Flags().StringVarP(&f.signal, "signal", "s", "TERM", "graceful signal sent on timeout (name or number)")
	root.Flags().StringVarP(&f.killAfter, "kill-after", "k", "", "send SIGKILL if the child is still alive this long after the graceful signal")
	root.Flags().BoolVarP(&f.preserveStatus, "preserve-status", "p", false, "exit with the child's own status on timeout instead of the timeout exit code")
	root.Flags().BoolVarP(&f.foreground, "foreground", "f", false, "leave the child in the caller's process group instead of a new one")
	root.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "enable debug diagnostics on stderr")
	root.Flags().BoolVarP(&f.quiet, "quiet", "q", false, "suppress stderr diagnostics, warnings included")
	root.Flags().StringVarP(&f.confine, "confine", "c", "wall", "clock mode: wall (sleep-resilient) or active")
	root.Flags().StringVarP(&f.heartbeat, "heartbeat", "H", "", "emit a periodic status line to stderr")
	root.Flags().StringVarP(&f.stdinTimeout, "stdin-timeout", "S", "", "kill the child if stdin is idle this long")
	root.Flags().BoolVar(&f.stdinPassthru, "stdin-passthrough", false, "relay stdin bytes to the child instead of consuming them")
	root.Flags().IntVarP(&f.retry, "retry", "r", 0, "number of extra attempts after a timeout")
	root.Flags().StringVar(&f.retryDelay, "retry-delay", "1s", "delay before the first retry")
	root.Flags().StringVar(&f.retryBackoff, "retry-backoff", "1x", "multiplier applied to the retry delay after each attempt")
	root.Flags().StringVar(&f.onTimeout, "on-timeout", "", "command run before the graceful signal; %p is the child PID, %% a literal percent")
	root.Flags().StringVar(&f.onTimeoutLimit, "on-timeout-limit", "5s", "deadline for --on-timeout")
	root.Flags().IntVar(&f.timeoutExitCode, "timeout-exit-code", 124, "exit code reported on timeout (0-255)")
	root.Flags().StringVar(&f.waitForFile, "wait-for-file", "", "poll for this path to exist before running the command")
	root.Flags().StringVar(&f.waitForTimeout, "wait-for-file-timeout", "", "give up waiting for --wait-for-file after this long (default: infinite)")
	root.Flags().StringVar(&f.memLimit, "mem-limit", "", "kill the child if its physical memory footprint exceeds this size")
	root.Flags().StringVar(&f.cpuTime, "cpu-time", "", "RLIMIT_CPU applied to the child before it starts")
	root.Flags().Uint64Var(&f.cpuPercent, "cpu-percent", 0, "suspend/resume the child to hold it near this CPU percentage (100 = one core)")
	root.Flags().BoolVar(&f.json, "json", false, "also emit a single-line JSON report to stdout; the exit code is unchanged")
	root.Flags().StringVar(&f.config, "config", "", "YAML file of flag defaults, consulted below environment variables")

	if err := root.Execute(); err != nil {
		slog.Error(err.Error())
		os.Exit(125)
	}
}

func run(cmd *cobra.Command, f rawFlags, args []string) error {
	durationArg, commandArgv, err := splitDurationAndCommand(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "timeoutd:", err)
		os.Exit(125)
	}

	cf, err := configfile.Load(f.config)
	if err != nil {
		fmt.Fprintln(os.Stderr, "timeoutd:", err)
		os.Exit(125)
	}

	cfg, err := buildConfig(cmd, f, durationArg, cf)
	if err != nil {
		fmt.Fprintln(os.Stderr, "timeoutd:", err)
		os.Exit(125)
	}

	configureLogging(cfg)

	if cfg.Quiet {
		// no diagnostics, warnings included
	} else if cfg.Verbose {
		slog.Debug("configuration resolved", slog.Uint64("timeout_ns", cfg.TimeoutNS), slog.String("clock", cfg.ClockMode.String()))
	}

	if cfg.WaitForFile != "" {
		ok := gate.Wait(cfg.WaitForFile, time.Duration(cfg.WaitForFileTimeoutNS), time.Now, time.Sleep)
		if !ok {
			o := outcome.AttemptOutcome{Status: outcome.TimedOut, TimeoutReason: outcome.ReasonWallClock}
			emitAndExit(o, cfg, nil, f.json)
			return nil
		}
	}

	policy := retry.Policy{
		RetryCount: cfg.RetryCount,
		DelayNS:    cfg.RetryDelayNS,
		BackoffNum: cfg.RetryBackoffNum,
		BackoffDen: cfg.RetryBackoffDen,
	}

	result := retry.Run(policy, func(int) outcome.AttemptOutcome {
		return supervisor.Run(cfg, commandArgv, os.Stdin, os.Stdout, os.Stderr)
	}, time.Sleep)

	var attemptResults []outcome.AttemptResult
	if cfg.RetryCount > 0 {
		for _, a := range result.PerAttempt {
			attemptResults = append(attemptResults, outcome.AttemptResult{
				Status:    a.Status,
				ExitCode:  a.ProcessExitCode(cfg.PreserveStatus, cfg.TimeoutExitCode),
				ElapsedMS: int64(a.Metrics.ElapsedNS / 1_000_000),
			})
		}
	}

	emitAndExit(result.FinalOutcome, cfg, attemptResults, f.json)
	return nil
}

// splitDurationAndCommand separates the positional DURATION from the
// COMMAND argv. When only one positional is given, TIMEOUT in the
// environment supplies the duration and the lone positional is the
// command itself; this lets TIMEOUT act as a default for the whole
// duration argument rather than just one flag.
func splitDurationAndCommand(args []string) (string, []string, error) {
	if len(args) >= 2 {
		return args[0], args[1:], nil
	}
	v, ok := runconfig.EnvDefault(runconfig.EnvTimeout)
	if !ok {
		return "", nil, fmt.Errorf("DURATION is required (or set TIMEOUT) and COMMAND is required")
	}
	return v, args, nil
}

func emitAndExit(o outcome.AttemptOutcome, cfg runconfig.Config, attemptResults []outcome.AttemptResult, jsonOut bool) {
	exitCode := o.ProcessExitCode(cfg.PreserveStatus, cfg.TimeoutExitCode)

	if jsonOut {
		report := outcome.BuildReport(o, cfg.ClockMode.String(), cfg.GracefulSignal.String(), attemptResults)
		line, err := report.MarshalJSONLine()
		if err == nil {
			fmt.Println(string(line))
		}
	}

	os.Exit(exitCode)
}

func configureLogging(cfg runconfig.Config) {
	level := slog.LevelInfo
	switch {
	case cfg.Quiet:
		level = slog.LevelWarn + 1
	case cfg.Verbose:
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

func buildConfig(cmd *cobra.Command, f rawFlags, durationArg string, cf *configfile.File) (runconfig.Config, error) {
	cfg := runconfig.Default()

	timeoutNS, err := types.ParseDurationNS(durationArg)
	if err != nil {
		return cfg, fmt.Errorf("duration: %w", err)
	}
	cfg.TimeoutNS = timeoutNS

	mode, ok := clock.ParseMode(f.confine)
	if !ok {
		return cfg, fmt.Errorf("confine: unknown clock mode %q", f.confine)
	}
	cfg.ClockMode = mode

	sig, err := types.ParseSignal(envOr(cmd, f.signal, "signal", runconfig.EnvTimeoutSignal, cf))
	if err != nil {
		return cfg, fmt.Errorf("signal: %w", err)
	}
	cfg.GracefulSignal = sig

	if v, ok := resolvedDuration(cmd, f.killAfter, "kill-after", runconfig.EnvTimeoutKillAfter, cf); ok {
		d, err := types.ParseDurationNS(v)
		if err != nil {
			return cfg, fmt.Errorf("kill-after: %w", err)
		}
		cfg.KillAfterNS = d
	}

	cfg.PreserveStatus = f.preserveStatus
	cfg.Foreground = f.foreground
	cfg.Verbose = f.verbose
	cfg.Quiet = f.quiet

	if v, ok := resolvedDuration(cmd, f.heartbeat, "heartbeat", runconfig.EnvTimeoutHeartbeat, cf); ok {
		d, err := types.ParseDurationNS(v)
		if err != nil {
			return cfg, fmt.Errorf("heartbeat: %w", err)
		}
		cfg.HeartbeatNS = d
	}

	if v, ok := resolvedDuration(cmd, f.stdinTimeout, "stdin-timeout", runconfig.EnvTimeoutStdinTimeout, cf); ok {
		d, err := types.ParseDurationNS(v)
		if err != nil {
			return cfg, fmt.Errorf("stdin-timeout: %w", err)
		}
		cfg.StdinIdleNS = d
	}
	cfg.StdinPassthrough = f.stdinPassthru

	if v, ok := resolvedUint(cmd, f.retry, "retry", runconfig.EnvTimeoutRetry, cf); ok {
		cfg.RetryCount = v
	}
	if f.retryDelay != "" {
		d, err := types.ParseDurationNS(f.retryDelay)
		if err != nil {
			return cfg, fmt.Errorf("retry-delay: %w", err)
		}
		cfg.RetryDelayNS = d
	}
	if f.retryBackoff != "" {
		num, den, err := types.ParseBackoffRatio(f.retryBackoff)
		if err != nil {
			return cfg, fmt.Errorf("retry-backoff: %w", err)
		}
		cfg.RetryBackoffNum, cfg.RetryBackoffDen = num, den
	}

	cfg.OnTimeoutCmd = f.onTimeout
	if f.onTimeoutLimit != "" {
		d, err := types.ParseDurationNS(f.onTimeoutLimit)
		if err != nil {
			return cfg, fmt.Errorf("on-timeout-limit: %w", err)
		}
		cfg.OnTimeoutLimitNS = d
	}

	cfg.TimeoutExitCode = f.timeoutExitCode

	if v, ok := resolvedString(cmd, f.waitForFile, "wait-for-file", runconfig.EnvTimeoutWaitForFile, cf); ok {
		cfg.WaitForFile = v
	}
	if v, ok := resolvedDuration(cmd, f.waitForTimeout, "wait-for-file-timeout", runconfig.EnvTimeoutWaitForFileTimeout, cf); ok {
		d, err := types.ParseDurationNS(v)
		if err != nil {
			return cfg, fmt.Errorf("wait-for-file-timeout: %w", err)
		}
		cfg.WaitForFileTimeoutNS = d
	}

	if f.memLimit != "" {
		size, err := types.ParseSize(f.memLimit)
		if err != nil {
			return cfg, fmt.Errorf("mem-limit: %w", err)
		}
		cfg.MemLimitBytes = size
	}
	if f.cpuTime != "" {
		d, err := types.ParseDurationNS(f.cpuTime)
		if err != nil {
			return cfg, fmt.Errorf("cpu-time: %w", err)
		}
		cfg.CPUTimeNS = d
	}
	cfg.CPUPercent = f.cpuPercent

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// envOr returns flagValue unless the flag was left at its default and an
// environment or config-file fallback is present: lower layers supply
// defaults only when the corresponding flag was never given, and the
// environment always outranks the config file.
func envOr(cmd *cobra.Command, flagValue, flagName, envName string, cf *configfile.File) string {
	if cmd.Flags().Changed(flagName) {
		return flagValue
	}
	if v, ok := runconfig.EnvDefault(envName); ok {
		return v
	}
	if v, ok := cf.Get(flagName); ok {
		return v
	}
	return flagValue
}

func resolvedString(cmd *cobra.Command, flagValue, flagName, envName string, cf *configfile.File) (string, bool) {
	if cmd.Flags().Changed(flagName) {
		return flagValue, flagValue != ""
	}
	if v, ok := runconfig.EnvDefault(envName); ok {
		return v, true
	}
	if v, ok := cf.Get(flagName); ok {
		return v, true
	}
	return flagValue, flagValue != ""
}

func resolvedDuration(cmd *cobra.Command, flagValue, flagName, envName string, cf *configfile.File) (string, bool) {
	return resolvedString(cmd, flagValue, flagName, envName, cf)
}

func resolvedUint(cmd *cobra.Command, flagValue int, flagName, envName string, cf *configfile.File) (uint64, bool) {
	if cmd.Flags().Changed(flagName) {
		return uint64(flagValue), flagValue != 0
	}
	if v, ok := runconfig.EnvDefaultUint(envName); ok {
		return v, true
	}
	if v, ok := cf.Get(flagName); ok {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n, true
		}
	}
	return uint64(flagValue), flagValue != 0
}
