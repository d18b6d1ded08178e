//go:build darwin

package eventloop

import (
	"fmt"
	"sort"
	"time"

	"golang.org/x/sys/unix"
)

// Loop owns one kqueue descriptor for the lifetime of a single supervised
// attempt. It is not safe for concurrent use — the supervision loop is
// single-threaded by design and this is its only blocking call.
type Loop struct {
	fd int
	tags map[[2]uint64]Tag
}

// New opens a fresh kqueue. A registration failure anywhere after this is
// fatal for the attempt (internal error, exit 125).
func New() (*Loop, error) {
	fd, err := unix.Kqueue()
	if err != nil {
		return nil, fmt.Errorf("eventloop: kqueue: %w", err)
	}
	return &Loop{fd: fd, tags: make(map[[2]uint64]Tag)}, nil
}

// Close releases the kqueue descriptor.
func (l *Loop) Close() error {
	return unix.Close(l.fd)
}

// RegisterChildExit arms EVFILT_PROC/NOTE_EXIT for pid, tagged TagChildExit.
func (l *Loop) RegisterChildExit(pid int) error {
	return l.register(unix.Kevent_t{
		Ident: uint64(pid),
		Filter: unix.EVFILT_PROC,
		Flags: unix.EV_ADD | unix.EV_ENABLE | unix.EV_ONESHOT,
		Fflags: unix.NOTE_EXIT,
		Udata: nil,
	}, TagChildExit)
}

// RegisterTimer arms a one-shot EVFILT_TIMER firing durationNS nanoseconds
// from now, tagged tag. NOTE_NSECONDS requests nanosecond precision; the
// kernel is free to round to whatever resolution it actually supports.
func (l *Loop) RegisterTimer(tag Tag, durationNS uint64) error {
	data := int64(durationNS)
	if data < 0 {
		// A duration too large to fit in an int64 nanosecond count is
		// effectively "never" for any practical deadline; clamp rather
		// than wrap negative, since the timer filter interprets Data as
		// signed.
		data = int64(^uint64(0) >> 1)
	}
	return l.register(unix.Kevent_t{
		Ident: uint64(tag),
		Filter: unix.EVFILT_TIMER,
		Flags: unix.EV_ADD | unix.EV_ENABLE | unix.EV_ONESHOT,
		Fflags: unix.NOTE_NSECONDS,
		Data: data,
	}, tag)
}

// RegisterRead arms EVFILT_READ on fd, tagged tag. Used for the signal
// self-pipe and, when stdin-idle tracking is enabled, stdin itself.
func (l *Loop) RegisterRead(tag Tag, fd int) error {
	return l.register(unix.Kevent_t{
		Ident: uint64(fd),
		Filter: unix.EVFILT_READ,
		Flags: unix.EV_ADD | unix.EV_ENABLE | unix.EV_CLEAR,
		Udata: nil,
	}, tag)
}

// UnregisterRead disables EVFILT_READ on fd. Used on stdin EOF so the
// filter never fires again and the loop stops busy-checking a closed
// pipe, per its "EOF disables this filter permanently" rule.
func (l *Loop) UnregisterRead(fd int) error {
	_, err := unix.Kevent(l.fd, []unix.Kevent_t{{
		Ident: uint64(fd),
		Filter: unix.EVFILT_READ,
		Flags: unix.EV_DELETE,
	}}, nil, nil)
	return err
}

// register arms kev and records its (filter, ident) pair against tag so
// Wait can map a fired event back to a stable tag without trusting Ident
// alone — EVFILT_PROC/EVFILT_READ key by pid/fd, EVFILT_TIMER keys by the
// Tag's own numeric value.
func (l *Loop) register(kev unix.Kevent_t, tag Tag) error {
	if kev.Filter == unix.EVFILT_TIMER {
		kev.Ident = uint64(tag)
	}
	l.tags[kevKey(kev.Filter, kev.Ident)] = tag
	_, err := unix.Kevent(l.fd, []unix.Kevent_t{kev}, nil, nil)
	return err
}

func kevKey(filter int16, ident uint64) [2]uint64 {
	return [2]uint64{uint64(filter), ident}
}

// Wait blocks until at least one registered event fires or timeout
// elapses (nil timeout blocks indefinitely), then returns the fired
// events sorted by the dispatch priority.
func (l *Loop) Wait(timeout *time.Duration) ([]Event, error) {
	buf := make([]unix.Kevent_t, 16)

	var ts *unix.Timespec
	if timeout != nil {
		t := unix.NsecToTimespec(timeout.Nanoseconds())
		ts = &t
	}

	n, err := unix.Kevent(l.fd, nil, buf, ts)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("eventloop: kevent wait: %w", err)
	}

	events := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		kev := buf[i]
		tag, ok := l.tags[kevKey(kev.Filter, kev.Ident)]
		if !ok {
			continue
		}
		if kev.Filter == unix.EVFILT_PROC || kev.Flags&unix.EV_ONESHOT != 0 {
			delete(l.tags, kevKey(kev.Filter, kev.Ident))
		}
		events = append(events, Event{Tag: tag, Data: kev.Data})
	}

	sort.SliceStable(events, func(i, j int) bool {
		return Priority(events[i].Tag) < Priority(events[j].Tag)
	})
	return events, nil
}
