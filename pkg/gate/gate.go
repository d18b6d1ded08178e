// Package gate implements the pre-run wait-for-file gate:
// poll a path's existence every 100 ms until it appears or a timeout
// elapses, before the first attempt ever runs.
package gate

import (
	"os"
	"time"
)

// PollInterval is the cadence the gate polls at.
const PollInterval = 100 * time.Millisecond

// Exists is a cheap metadata probe; symlinks are followed.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Sleep abstracts time.Sleep for test injection.
type Sleep func(d time.Duration)

// Now abstracts time.Now for test injection.
type Now func() time.Time

// Wait polls path until it exists or timeout elapses. A zero timeout
// means wait indefinitely, per its "default = infinite". Returns
// true if the path appeared, false if the timeout elapsed first.
func Wait(path string, timeout time.Duration, now Now, sleep Sleep) bool {
	if Exists(path) {
		return true
	}

	var deadline time.Time
	hasDeadline := timeout > 0
	if hasDeadline {
		deadline = now().Add(timeout)
	}

	for {
		sleep(PollInterval)
		if Exists(path) {
			return true
		}
		if hasDeadline && !now().Before(deadline) {
			return false
		}
	}
}
