//go:build darwin

// Package rlimit applies the kernel resource limits the launcher installs
// on a child before exec: RLIMIT_CPU from cpu_time_ns (ceiling to
// whole seconds, soft == hard) and a best-effort RLIMIT_AS from
// mem_limit_bytes. Both calls run inside the trampoline process, i.e.
// after the fork that separates the child from the supervisor and before
// the execve that becomes the user's command — never on the supervisor's
// own process.
//
// Grounded on the Getrlimit-then-Setrlimit read-modify-write shape used by
// Darwin rlimit tuning in the example pack (limits_posix_darwin.go): read
// the current limit, only raise/lower what's requested, and treat EPERM on
// the hard ceiling as a soft failure rather than aborting the spawn.
package rlimit

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// ApplyCPUSeconds sets RLIMIT_CPU to seconds (soft == hard, ceiling of the
// requested duration). The kernel delivers SIGXCPU/SIGKILL to the child
// once its cumulative CPU time exceeds this, independent of the
// supervisor's own CPU-time tracking.
func ApplyCPUSeconds(seconds uint64) error {
	lim := unix.Rlimit{Cur: seconds, Max: seconds}
	if err := unix.Setrlimit(unix.RLIMIT_CPU, &lim); err != nil {
		return fmt.Errorf("rlimit: set RLIMIT_CPU to %ds: %w", seconds, err)
	}
	return nil
}

// ApplyAddressSpace attempts to cap RLIMIT_AS at limitBytes. The kernel may
// silently refuse an increase past the hard ceiling (EPERM); this
// is not fatal to the spawn — enforcement then falls entirely to the
// memory monitor polling phys_footprint.
func ApplyAddressSpace(limitBytes uint64) error {
	var current unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_AS, &current); err != nil {
		return fmt.Errorf("rlimit: read RLIMIT_AS: %w", err)
	}

	desired := unix.Rlimit{Cur: limitBytes, Max: limitBytes}
	if current.Max < desired.Max && current.Max != unlimitedRlim {
		desired.Max = current.Max
	}
	if desired.Cur > desired.Max {
		desired.Cur = desired.Max
	}

	if err := unix.Setrlimit(unix.RLIMIT_AS, &desired); err != nil {
		// Best-effort: RLIMIT_AS on a memory-mapped binary can legitimately
		// be refused by the kernel. The memory monitor is the real backstop.
		return fmt.Errorf("rlimit: set RLIMIT_AS to %d bytes (non-fatal): %w", limitBytes, err)
	}
	return nil
}

const unlimitedRlim = ^uint64(0)
