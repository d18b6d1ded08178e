//go:build darwin

// Package launcher starts the supervised command in its own process group
// with the kernel resource limits applied before the target
// program's own code runs.
//
// Go's runtime does not expose a hook to run arbitrary code between the
// fork and the exec that os/exec performs internally, which is exactly
// where RLIMIT_CPU/RLIMIT_AS need to be installed (setrlimit always
// applies to the calling process, never to a not-yet-running sibling).
// The launcher works around this the way process supervisors without a
// custom exec path typically do: it re-execs its own binary as a thin
// trampoline (see trampoline.go) that applies the limits to itself and
// then replaces itself with the real target via execve. The observable
// result: the user's command starts already constrained.
package launcher

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"github.com/denispol/darwin-timeout/pkg/types"
)

// TrampolineArg marks argv[1] of a re-exec as the hidden trampoline
// command; RunTrampoline recognizes it and never reaches cobra's command
// tree.
const TrampolineArg = "__timeoutd_exec_trampoline__"

// Spec describes the child to launch.
type Spec struct {
	Argv []string
	Foreground bool
	CPUTimeNS uint64 // 0 = unset
	MemLimitByte types.Bytes

	// StdinIdleNS > 0 attaches a pipe to the child's stdin instead of
	// Stdin directly, so the loop can measure idle time on the
	// real stdin independently of what the child receives.
	StdinIdleNS uint64
	StdinPassthrough bool

	Stdin *os.File
	Stdout *os.File
	Stderr *os.File
}

// Handle wraps the started *exec.Cmd plus the process-group id signals are
// fanned out to.
type Handle struct {
	Cmd *exec.Cmd
	PGID int

	// StdinWatch is the real stdin the loop polls for idle-reset
	// activity; nil unless StdinIdleNS was set.
	StdinWatch *os.File
	// StdinRelay is the write end of the child's stdin pipe, written to
	// only in passthrough mode; nil unless StdinIdleNS was set.
	StdinRelay *os.File
}

// CloseStdinRelay releases the launcher's own end of the stdin pipe. It
// never touches StdinWatch, which belongs to the caller.
func (h *Handle) CloseStdinRelay() {
	if h.StdinRelay != nil {
		_ = h.StdinRelay.Close()
		h.StdinRelay = nil
	}
}

// Launch resolves the target binary, builds the trampoline argv when any
// rlimit is requested, and starts the process. Setpgid places the child
// (the trampoline, in the rlimit case, which execve's into the real
// target and so keeps the same pid/pgid) in its own process group unless
// Foreground is set, matching its "child becomes its own group leader
// unless foreground" rule.
func Launch(spec Spec) (*Handle, error) {
	if len(spec.Argv) == 0 {
		return nil, fmt.Errorf("launcher: empty argv")
	}

	resolved, err := exec.LookPath(spec.Argv[0])
	if err != nil {
		return nil, &LookupError{Path: spec.Argv[0], Err: err}
	}

	argv := buildArgv(resolved, spec)

	childStdin := spec.Stdin
	var watch, relay *os.File
	if spec.StdinIdleNS > 0 {
		pr, pw, perr := os.Pipe()
		if perr != nil {
			return nil, perr
		}
		childStdin = pr
		watch = spec.Stdin
		relay = pw
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdin = childStdin
	cmd.Stdout = spec.Stdout
	cmd.Stderr = spec.Stderr

	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: !spec.Foreground,
	}

	if err := cmd.Start(); err != nil {
		if relay != nil {
			_ = relay.Close()
			_ = childStdin.Close()
		}
		return nil, err
	}

	if childStdin != spec.Stdin {
		// The child holds its own dup of the read end after Start; the
		// parent's copy would otherwise keep stdin-idle detection from
		// ever seeing EOF.
		_ = childStdin.Close()
	}

	pgid := cmd.Process.Pid
	if !spec.Foreground {
		if g, err := syscall.Getpgid(cmd.Process.Pid); err == nil {
			pgid = g
		}
	}

	return &Handle{Cmd: cmd, PGID: pgid, StdinWatch: watch, StdinRelay: relay}, nil
}

// buildArgv returns the trampoline re-exec argv when a resource limit is
// requested, otherwise the resolved target argv unmodified.
func buildArgv(resolved string, spec Spec) []string {
	if spec.CPUTimeNS == 0 && spec.MemLimitByte == 0 {
		return append([]string{resolved}, spec.Argv[1:]...)
	}

	self, err := os.Executable()
	if err != nil {
		return append([]string{resolved}, spec.Argv[1:]...)
	}

	cpuSeconds := uint64(0)
	if spec.CPUTimeNS > 0 {
		cpuSeconds = (spec.CPUTimeNS + 999_999_999) / 1_000_000_000
		if cpuSeconds == 0 {
			cpuSeconds = 1
		}
	}

	out := []string{
		self,
		TrampolineArg,
		strconv.FormatUint(cpuSeconds, 10),
		strconv.FormatUint(uint64(spec.MemLimitByte), 10),
		resolved,
	}
	return append(out, spec.Argv[1:]...)
}

// LookupError reports a command that could not be resolved on PATH,
// mapped by the caller to exit code 127 (command not found), or 126 when
// the wrapped error is a permission error.
type LookupError struct {
	Path string
	Err error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("launcher: %s: %v", e.Path, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }
