// Package memmonitor polls a child's physical memory footprint at a
// 100 ms cadence, comparing it against the configured
// mem_limit_bytes and reporting an exceeded event to the supervision
// loop.
//
// Darwin does not expose phys_footprint through /proc (there is no
// /proc on Darwin) or through any pure-Go syscall wrapper — it is a
// field inside libproc's rusage_info_v4 struct, obtained via
// proc_pid_rusage(3), a libproc.dylib call with no cgo-free equivalent
// in the standard library or golang.org/x/sys. This package reaches for
// cgo instead of a third-party library, following the clock package's precedent for the same reason
// (mach_continuous_time has no syscall wrapper either).
package memmonitor

import "github.com/denispol/darwin-timeout/pkg/types"

// Sample is one rusage_info_v4 reading. UserNS/SystemNS are read from the
// same proc_pid_rusage call as PhysFootprint, so the throttle controller
// reuses this package's Poller rather than opening a second libproc
// session just for CPU time.
type Sample struct {
	PhysFootprint types.Bytes
	UserNS uint64
	SystemNS uint64
}

// CPUTimeNS returns the child's cumulative user+system CPU time, the
// figure its throttle controller compares against its budget.
func (s Sample) CPUTimeNS() uint64 {
	return s.UserNS + s.SystemNS
}

// Poller reads a single PID's rusage_info_v4 on demand; the supervision
// loop drives the 100 ms cadence itself via the event multiplexer's
// memory-poll and throttle-poll timers rather than this package running
// its own ticker, keeping the loop single-threaded.
type Poller struct {
	pid int
}

// New returns a Poller bound to pid.
func New(pid int) *Poller {
	return &Poller{pid: pid}
}

// Sample reads the child's current rusage_info_v4 fields.
func (p *Poller) Sample() (Sample, error) {
	raw, err := rusage(p.pid)
	if err != nil {
		return Sample{}, err
	}
	return Sample{
		PhysFootprint: types.Bytes(raw.physFootprint),
		UserNS: raw.userNS,
		SystemNS: raw.systemNS,
	}, nil
}

// Exceeded reports whether sample breaches limit. A zero limit means
// "unconfigured" and never trips.
func Exceeded(sample Sample, limit types.Bytes) bool {
	return limit != 0 && sample.PhysFootprint > limit
}
