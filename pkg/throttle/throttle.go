// Package throttle implements the CPU throttle controller: an
// integral controller that, on every 100 ms poll, compares the child's
// cumulative CPU time against target% of elapsed wall clock and issues
// suspend/resume control signals to keep the child near its budget.
//
// Grounded on the Accumulator shape in pkg/consumption's energy model:
// a small struct carrying running state, fed one
// snapshot at a time through a single Apply-like entry point that both
// updates the state and returns this tick's result. The energy integral
// becomes a CPU-time budget integral; floating point accumulation
// becomes integer ratio math per its no-floats invariant on control
// decisions.
package throttle

// ControlSignal is the action the controller wants applied to the child's
// process group this tick.
type ControlSignal int

const (
	// None means no state change this tick.
	None ControlSignal = iota
	// Suspend requests SIGSTOP (or equivalent) be sent.
	Suspend
	// Resume requests SIGCONT (or equivalent) be sent.
	Resume
)

// State is the throttle state machine. Zero value is not
// usable; construct with New.
type State struct {
	TargetPercent uint64
	IntervalNS uint64
	CumulativeCPUNS uint64
	LastWallNS uint64
	Suspended bool
	Exited bool
}

// DefaultIntervalNS is the poll cadence the controller runs at.
const DefaultIntervalNS = 100_000_000

// LowTargetWarningThreshold is the target below which New's caller should
// emit a startup warning ("targets below 10 emit a warning").
const LowTargetWarningThreshold = 10

// New constructs a throttle State for targetPercent, which may exceed 100
// to permit multi-core budgets. Zero or negative targets must be rejected
// at config time before reaching here; New itself does not validate since
// that responsibility belongs to configuration parsing.
func New(targetPercent uint64) *State {
	return &State{
		TargetPercent: targetPercent,
		IntervalNS: DefaultIntervalNS,
	}
}

// Observe runs one poll tick: cpuNS is the child's cumulative user+system
// CPU time, wallNS is elapsed wall clock since the child started. It
// updates the state in place and returns the control signal this tick
// requires, or None.
func (s *State) Observe(cpuNS, wallNS uint64) ControlSignal {
	s.CumulativeCPUNS = cpuNS
	s.LastWallNS = wallNS

	budget := (wallNS * s.TargetPercent) / 100

	switch {
	case cpuNS > budget && !s.Suspended:
		s.Suspended = true
		return Suspend
	case cpuNS <= budget && s.Suspended:
		s.Suspended = false
		if s.Exited {
			return None
		}
		return Resume
	default:
		return None
	}
}

// MarkExited sets the sticky exited flag. Once set, ResumeBeforeKill and
// Observe must never again report Resume — per its invariant, no
// resume control signal is emitted once the child has exited.
func (s *State) MarkExited() {
	s.Exited = true
}

// ResumeBeforeKill implements the termination-path invariant: before any
// termination signal is sent to a currently suspended child, a resume
// must be issued first so the child can run its signal handler. Returns
// (Resume, true) when a resume is actually needed; (None, false)
// otherwise, including when Exited is already set.
func (s *State) ResumeBeforeKill() (ControlSignal, bool) {
	if s.Exited || !s.Suspended {
		return None, false
	}
	s.Suspended = false
	return Resume, true
}
