//go:build darwin

package launcher

import (
	"fmt"
	"os"
	"strconv"
	"syscall"

	"github.com/denispol/darwin-timeout/pkg/system/rlimit"
)

// IsTrampoline reports whether args (as os.Args) is a re-exec invocation
// produced by buildArgv, i.e. argv[1] == TrampolineArg.
func IsTrampoline(args []string) bool {
	return len(args) > 1 && args[1] == TrampolineArg
}

// RunTrampoline applies the requested rlimits to the current process and
// then execve's into the real target, replacing this process image
// entirely. It never returns on success; on failure it returns an error
// so the caller can map it to the exit codes (126/127).
//
// Argv layout: [self, TrampolineArg, cpuSeconds, memLimitBytes, target, args...]
func RunTrampoline(args []string) error {
	if !IsTrampoline(args) {
		return fmt.Errorf("launcher: not a trampoline invocation")
	}
	if len(args) < 5 {
		return fmt.Errorf("launcher: malformed trampoline argv")
	}

	cpuSeconds, err := strconv.ParseUint(args[2], 10, 64)
	if err != nil {
		return fmt.Errorf("launcher: trampoline cpu seconds: %w", err)
	}
	memLimit, err := strconv.ParseUint(args[3], 10, 64)
	if err != nil {
		return fmt.Errorf("launcher: trampoline mem limit: %w", err)
	}

	if cpuSeconds > 0 {
		if err := rlimit.ApplyCPUSeconds(cpuSeconds); err != nil {
			return err
		}
	}
	if memLimit > 0 {
		// Best-effort: a refusal here is not fatal, the memory
		// monitor is the real backstop.
		_ = rlimit.ApplyAddressSpace(memLimit)
	}

	target := args[4]
	targetArgv := args[4:]
	return syscall.Exec(target, targetArgv, os.Environ())
}
