//go:build darwin

package clock

/*
#include <mach/mach_time.h>

static unsigned long long continuous_time_ns(void) {
	static mach_timebase_info_data_t timebase;
	if (timebase.denom == 0) {
		mach_timebase_info(&timebase);
	}
	unsigned long long t = mach_continuous_time();
	return t * timebase.numer / timebase.denom;
}
*/
import "C"

import "golang.org/x/sys/unix"

// wallNow samples mach_continuous_time, which keeps advancing across system
// sleep/hibernate: the sleep-resilient "wall" clock mode.
func wallNow() uint64 {
	return uint64(C.continuous_time_ns())
}

// activeNow samples CLOCK_MONOTONIC_RAW, which Darwin pauses while the
// system sleeps: the "active" clock mode.
func activeNow() uint64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC_RAW, &ts); err != nil {
		// A failed read yields 0. Measured against an earlier nonzero
		// start, chrono.Elapsed then reports a backwards clock (false)
		// instead of wrapping.
		return 0
	}
	return uint64(ts.Sec)*1_000_000_000 + uint64(ts.Nsec)
}
