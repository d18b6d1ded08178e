//go:build darwin

package memmonitor

/*
#include <libproc.h>
#include <string.h>
#include <errno.h>

// rusage_info_v4 is ABI-stable on Darwin but not exposed by cgo's libproc.h
// translation in every SDK revision, so the fields this package actually
// reads are mirrored here rather than trusting <libproc.h>'s macro-guarded
// declaration.
typedef struct {
	uint8_t ri_uuid[16];
	uint64_t ri_user_time;
	uint64_t ri_system_time;
	uint64_t ri_pkg_idle_wkups;
	uint64_t ri_interrupt_wkups;
	uint64_t ri_pageins;
	uint64_t ri_wired_size;
	uint64_t ri_resident_size;
	uint64_t ri_phys_footprint;
	uint64_t ri_proc_start_abstime;
	uint64_t ri_proc_exit_abstime;
	// Remaining rusage_info_v4 fields are not read by this package.
} ru_footprint_t;

typedef struct {
	unsigned long long user_time;
	unsigned long long system_time;
	unsigned long long phys_footprint;
} ru_result_t;

static int read_rusage(int pid, ru_result_t *out) {
	ru_footprint_t ru;
	memset(&ru, 0, sizeof(ru));
	int rc = proc_pid_rusage(pid, RUSAGE_INFO_V4, (rusage_info_t *)&ru);
	if (rc != 0) {
		return errno;
	}
	out->user_time = ru.ri_user_time;
	out->system_time = ru.ri_system_time;
	out->phys_footprint = ru.ri_phys_footprint;
	return 0;
}
*/
import "C"

import "fmt"

// Field offsets inside the mirrored struct above, used by parseRusage to
// bounds-check a raw buffer before indexing into it. Layout:
// 16-byte uuid, then ri_user_time, ri_system_time,..., ri_phys_footprint
// as the 8th uint64 field.
const (
	userTimeFieldOffset = 16
	systemTimeFieldOffset = 16 + 8
	physFootprintFieldOffset = 16 + 8*7
	rusageFieldSize = 8
)

type rusageReading struct {
	userNS uint64
	systemNS uint64
	physFootprint uint64
}

// rusage calls proc_pid_rusage(RUSAGE_INFO_V4) for pid and returns the
// three fields this package tracks: cumulative user/system CPU time (in
// nanoseconds, matching Mach's absolute-time units on Darwin) and the
// physical memory footprint in bytes.
func rusage(pid int) (rusageReading, error) {
	var out C.ru_result_t
	if rc := C.read_rusage(C.int(pid), &out); rc != 0 {
		return rusageReading{}, fmt.Errorf("memmonitor: proc_pid_rusage(pid=%d): errno %d", pid, int(rc))
	}
	return rusageReading{
		userNS: uint64(out.user_time),
		systemNS: uint64(out.system_time),
		physFootprint: uint64(out.phys_footprint),
	}, nil
}

// parseRusage reads ri_user_time, ri_system_time, and ri_phys_footprint
// out of a raw little-endian rusage_info_v4 buffer, bounds-checking every
// offset before the read. This path exists for unit tests that exercise
// the offset arithmetic without a live PID; the production path above
// reads the fields directly off the cgo struct.
func parseRusage(buf []byte) (rusageReading, error) {
	readField := func(offset int) (uint64, error) {
		if len(buf) < offset+rusageFieldSize {
			return 0, fmt.Errorf("memmonitor: rusage buffer too short: %d bytes", len(buf))
		}
		var v uint64
		for i := 0; i < rusageFieldSize; i++ {
			v |= uint64(buf[offset+i]) << (8 * i)
		}
		return v, nil
	}

	user, err := readField(userTimeFieldOffset)
	if err != nil {
		return rusageReading{}, err
	}
	system, err := readField(systemTimeFieldOffset)
	if err != nil {
		return rusageReading{}, err
	}
	phys, err := readField(physFootprintFieldOffset)
	if err != nil {
		return rusageReading{}, err
	}
	return rusageReading{userNS: user, systemNS: system, physFootprint: phys}, nil
}
