package outcome

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProcessExitCodeCompleted(t *testing.T) {
	o := AttemptOutcome{Status: Completed, ExitCode: 3}
	assert.Equal(t, 3, o.ProcessExitCode(false, 124))
}

func TestProcessExitCodeTimedOutDefault(t *testing.T) {
	o := AttemptOutcome{Status: TimedOut, CommandExitCode: 0}
	assert.Equal(t, 124, o.ProcessExitCode(false, 124))
}

func TestProcessExitCodeTimedOutPreserveStatus(t *testing.T) {
	o := AttemptOutcome{Status: TimedOut, CommandExitCode: 7}
	assert.Equal(t, 7, o.ProcessExitCode(true, 124))
}

func TestProcessExitCodeTimedOutCustomExitCode(t *testing.T) {
	o := AttemptOutcome{Status: TimedOut}
	assert.Equal(t, 99, o.ProcessExitCode(false, 99))
}

func TestProcessExitCodeSignalForwarded(t *testing.T) {
	o := AttemptOutcome{Status: SignalForwarded, Signal: 15}
	assert.Equal(t, 143, o.ProcessExitCode(false, 124))
}

func TestProcessExitCodeError(t *testing.T) {
	o := AttemptOutcome{Status: Error, Err: errors.New("boom")}
	assert.Equal(t, 125, o.ProcessExitCode(false, 124))
}

func TestProcessExitCodeErrorWithClassifiedCode(t *testing.T) {
	o := AttemptOutcome{Status: Error, Err: errors.New("not found"), ExitCode: 127}
	assert.Equal(t, 127, o.ProcessExitCode(false, 124))
}

func TestBuildReportCompleted(t *testing.T) {
	o := AttemptOutcome{
		Status:  Completed,
		ExitCode: 0,
		Metrics: Metrics{ElapsedNS: 1_500_000_000, UserNS: 100_000_000, SystemNS: 50_000_000, MaxRSSBytes: 2048},
	}
	r := BuildReport(o, "wall", "", nil)
	assert.Equal(t, 8, r.SchemaVersion)
	assert.Equal(t, Completed, r.Status)
	assert.Equal(t, int64(1500), r.ElapsedMS)
	assert.Equal(t, int64(2), r.MaxRSSKB)
	assert.Nil(t, r.TimeoutReason)
}

func TestBuildReportTimedOut(t *testing.T) {
	o := AttemptOutcome{
		Status:          TimedOut,
		TimeoutReason:   ReasonWallClock,
		Signal:          15,
		Killed:          false,
		CommandExitCode: 0,
	}
	r := BuildReport(o, "wall", "TERM", nil)
	assert.Equal(t, ReasonWallClock, *r.TimeoutReason)
	assert.Equal(t, "TERM", *r.Signal)
	assert.Equal(t, 15, *r.SignalNum)
	assert.False(t, *r.Killed)
}

func TestBuildReportMemoryExceeded(t *testing.T) {
	o := AttemptOutcome{Status: MemoryExceeded, LimitBytes: 100, ActualBytes: 200, Signal: 9}
	r := BuildReport(o, "wall", "", nil)
	assert.Equal(t, uint64(100), *r.LimitBytes)
	assert.Equal(t, uint64(200), *r.ActualBytes)
	assert.Equal(t, "100 B", *r.LimitHuman)
	assert.Equal(t, "200 B", *r.ActualHuman)
}

func TestMemoryExceededExitCodeReflectsKillingSignal(t *testing.T) {
	o := AttemptOutcome{Status: MemoryExceeded, Signal: 9}
	assert.Equal(t, 137, o.ProcessExitCode(false, 124))
}

func TestBuildReportWithHook(t *testing.T) {
	o := AttemptOutcome{
		Status: TimedOut,
		Hook:   &HookResult{Ran: true, ExitCode: 0, TimedOut: false, ElapsedNS: 250_000_000},
	}
	r := BuildReport(o, "wall", "TERM", nil)
	assert.True(t, *r.HookRan)
	assert.Equal(t, int64(250), *r.HookElapsedMS)
}

func TestBuildReportWithRetries(t *testing.T) {
	attempts := []AttemptResult{
		{Status: TimedOut, ExitCode: 124, ElapsedMS: 500},
		{Status: Completed, ExitCode: 0, ElapsedMS: 100},
	}
	r := BuildReport(AttemptOutcome{Status: Completed}, "wall", "", attempts)
	assert.Equal(t, 2, *r.Attempts)
	assert.Len(t, r.AttemptResults, 2)
}

func TestMarshalJSONLineIsSingleLine(t *testing.T) {
	r := BuildReport(AttemptOutcome{Status: Completed, ExitCode: 0}, "wall", "", nil)
	b, err := r.MarshalJSONLine()
	assert.NoError(t, err)
	assert.NotContains(t, string(b), "\n")
	assert.Contains(t, string(b), `"schema_version":8`)
}
