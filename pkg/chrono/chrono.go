// Package chrono provides checked nanosecond time arithmetic for the
// supervisor: every deadline computation goes through one of these
// functions so that overflow is a detectable failure rather than a silent
// wraparound. No expression outside this package performs native
// wrapping arithmetic on a nanosecond timestamp.
package chrono

import "math"

// Elapsed returns now-start, or false if now < start (a clock went
// backwards, which is a bug in the caller rather than something to paper
// over).
func Elapsed(start, now uint64) (uint64, bool) {
	if now < start {
		return 0, false
	}
	return now - start, true
}

// Remaining returns the time left until deadline, clamped to zero once the
// deadline has passed.
func Remaining(deadline, now uint64) uint64 {
	if now >= deadline {
		return 0
	}
	return deadline - now
}

// Advance adds d to t, saturating at math.MaxUint64 instead of wrapping.
func Advance(t, d uint64) uint64 {
	if d > math.MaxUint64-t {
		return math.MaxUint64
	}
	return t + d
}

// AdjustBack subtracts d from t, failing when d > t instead of wrapping.
func AdjustBack(t, d uint64) (uint64, bool) {
	if d > t {
		return 0, false
	}
	return t - d, true
}

// DeadlineReached reports whether now has reached or passed deadline.
func DeadlineReached(deadline, now uint64) bool {
	return now >= deadline
}

// Deadline is a (start, remaining) pair; the clock both are measured on is
// chosen by the caller, not stored here. start+remaining is computed with
// Advance so overflow saturates to "infinity" (never fires)
// rather than wrapping into the past.
type Deadline struct {
	StartNS uint64
	RemainingNS uint64
}

// At returns the absolute deadline timestamp, saturated.
func (d Deadline) At() uint64 {
	return Advance(d.StartNS, d.RemainingNS)
}

// Reached reports whether now has reached the deadline.
func (d Deadline) Reached(now uint64) bool {
	return DeadlineReached(d.At(), now)
}

// RemainingAt returns the time left until the deadline, from now.
func (d Deadline) RemainingAt(now uint64) uint64 {
	return Remaining(d.At(), now)
}

// NewDeadline builds a Deadline that fires durationNS after startNS. A
// durationNS of 0 still produces a Deadline whose At() equals startNS
// (already reached) — callers representing "disabled" must check that
// case themselves (RunConfig's timeout_ns==0 means "no deadline at all",
// which is a distinct state from "already due").
func NewDeadline(startNS, durationNS uint64) Deadline {
	return Deadline{StartNS: startNS, RemainingNS: durationNS}
}
