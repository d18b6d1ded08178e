// Package eventloop is a thin wrapper over Darwin's kqueue that the
// supervision loop uses as its single blocking call. It registers
// the child-exit filter, one-shot timers for every active deadline, and
// read-readiness on the signal self-pipe and (optionally) stdin, then
// returns a tagged event list from one kevent(2) call per wake-up so the
// loop spends zero CPU between events.
//
// Grounded on the EVFILT_PROC/kevent wrapping in the example pack's
// process watcher (addPID/runProcKqueueLoop), generalized from a
// PID-only watch to also cover EVFILT_TIMER and EVFILT_READ, since the
// supervisor multiplexes timers and pipes on the same queue rather than
// running a dedicated goroutine per source.
package eventloop

// Tag identifies the stable user-data value carried by every registered
// source so Wait's caller can dispatch without inspecting raw kqueue
// filter/ident pairs.
type Tag uint64

const (
	TagChildExit Tag = iota + 1
	TagWallDeadline
	TagKillAfter
	TagHookLimit
	TagStdinIdle
	TagHeartbeat
	TagMemoryPoll
	TagThrottlePoll
	TagSignalPipe
	TagStdinRead
)

// priority implements the fixed wake-up ordering: when multiple
// events fire in the same kevent(2) return, Wait sorts by this rank so
// the caller can process them child-exit-first without its own sort.
var priority = map[Tag]int{
	TagChildExit: 0,
	TagMemoryPoll: 1,
	TagWallDeadline: 2,
	TagStdinIdle: 2,
	TagKillAfter: 3,
	TagHookLimit: 4,
	TagHeartbeat: 5,
	TagThrottlePoll: 6,
	TagSignalPipe: 7,
	TagStdinRead: 8,
}

// Priority returns tag's dispatch rank; lower fires first.
func Priority(tag Tag) int { return priority[tag] }

// Event is one fired kqueue entry translated to the loop's vocabulary.
type Event struct {
	Tag Tag
	Data int64 // exit status, bytes available, etc. — filter-dependent
}
