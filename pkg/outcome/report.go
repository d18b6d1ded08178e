package outcome

import (
	"encoding/json"

	"github.com/denispol/darwin-timeout/pkg/types"
)

// SchemaVersion is the current JSON report schema version. Within
// one version, existing field semantics never change; new fields may be
// added.
const SchemaVersion = 8

// AttemptResult is one entry of a retry report's attempt_results array.
type AttemptResult struct {
	Status Status `json:"status"`
	ExitCode int `json:"exit_code"`
	ElapsedMS int64 `json:"elapsed_ms"`
}

// Report is the single-line JSON object emitted on --json. Fields
// are pointers/omitempty so that only the ones meaningful to the actual
// outcome appear on the wire, matching "optional... fields appear when"
// language in the schema description.
type Report struct {
	SchemaVersion int `json:"schema_version"`
	Status Status `json:"status"`
	Clock string `json:"clock"`
	ElapsedMS int64 `json:"elapsed_ms"`
	UserTimeMS int64 `json:"user_time_ms"`
	SystemTimeMS int64 `json:"system_time_ms"`
	MaxRSSKB int64 `json:"max_rss_kb"`

	TimeoutReason *TimeoutReason `json:"timeout_reason,omitempty"`
	Signal *string `json:"signal,omitempty"`
	SignalNum *int `json:"signal_num,omitempty"`
	Killed *bool `json:"killed,omitempty"`
	CommandExitCode *int `json:"command_exit_code,omitempty"`
	ExitCode *int `json:"exit_code,omitempty"`

	HookRan *bool `json:"hook_ran,omitempty"`
	HookExitCode *int `json:"hook_exit_code,omitempty"`
	HookTimedOut *bool `json:"hook_timed_out,omitempty"`
	HookElapsedMS *int64 `json:"hook_elapsed_ms,omitempty"`

	Attempts *int `json:"attempts,omitempty"`
	AttemptResults []AttemptResult `json:"attempt_results,omitempty"`

	LimitBytes *uint64 `json:"limit_bytes,omitempty"`
	ActualBytes *uint64 `json:"actual_bytes,omitempty"`
	LimitHuman *string `json:"limit_human,omitempty"`
	ActualHuman *string `json:"actual_human,omitempty"`

	ErrorMessage *string `json:"error,omitempty"`
}

// BuildReport translates an AttemptOutcome (plus the clock mode and any
// retry history) into the wire Report.
func BuildReport(o AttemptOutcome, clockMode string, signalName string, attemptResults []AttemptResult) Report {
	r := Report{
		SchemaVersion: SchemaVersion,
		Status: o.Status,
		Clock: clockMode,
		ElapsedMS: nsToMS(o.Metrics.ElapsedNS),
		UserTimeMS: nsToMS(o.Metrics.UserNS),
		SystemTimeMS: nsToMS(o.Metrics.SystemNS),
		MaxRSSKB: int64(o.Metrics.MaxRSSBytes / 1024),
	}

	switch o.Status {
	case TimedOut:
		reason := o.TimeoutReason
		r.TimeoutReason = &reason
		r.Signal = &signalName
		r.SignalNum = &o.Signal
		r.Killed = &o.Killed
		r.CommandExitCode = &o.CommandExitCode
		exitCode := o.CommandExitCode
		r.ExitCode = &exitCode
	case SignalForwarded:
		forwardedName := types.Signal(o.Signal).String()
		r.Signal = &forwardedName
		r.SignalNum = &o.Signal
		r.CommandExitCode = &o.CommandExitCode
	case MemoryExceeded:
		r.LimitBytes = &o.LimitBytes
		r.ActualBytes = &o.ActualBytes
		limitHuman := types.Bytes(o.LimitBytes).Humanized()
		actualHuman := types.Bytes(o.ActualBytes).Humanized()
		r.LimitHuman = &limitHuman
		r.ActualHuman = &actualHuman
	case Error:
		if o.Err != nil {
			msg := o.Err.Error()
			r.ErrorMessage = &msg
		}
	}

	if o.Hook != nil {
		ran := o.Hook.Ran
		r.HookRan = &ran
		if ran {
			code := o.Hook.ExitCode
			r.HookExitCode = &code
			timedOut := o.Hook.TimedOut
			r.HookTimedOut = &timedOut
			elapsed := nsToMS(o.Hook.ElapsedNS)
			r.HookElapsedMS = &elapsed
		}
	}

	if len(attemptResults) > 0 {
		n := len(attemptResults)
		r.Attempts = &n
		r.AttemptResults = attemptResults
	}

	return r
}

// MarshalJSONLine renders r as the single-line JSON object required on
// stdout for --json.
func (r Report) MarshalJSONLine() ([]byte, error) {
	return json.Marshal(r)
}

func nsToMS(ns uint64) int64 {
	return int64(ns / 1_000_000)
}
