// Package retry implements the retry orchestrator: run up to
// retryCount+1 attempts, sleeping and scaling the delay by an integer
// backoff ratio after each TimedOut outcome, stopping on any other
// outcome.
package retry

import (
	"time"

	"github.com/denispol/darwin-timeout/pkg/outcome"
)

// Attempt runs a single supervised attempt and returns its outcome.
type Attempt func(attemptIndex int) outcome.AttemptOutcome

// Sleep abstracts time.Sleep so tests can inject a fake clock instead of
// waiting on wall time between attempts.
type Sleep func(d time.Duration)

// Policy is the retry configuration defines on RunConfig.
type Policy struct {
	RetryCount uint64
	DelayNS uint64
	BackoffNum uint64
	BackoffDen uint64
}

// Result is RunResult : the final outcome plus every attempt's
// outcome in order.
type Result struct {
	FinalOutcome outcome.AttemptOutcome
	PerAttempt []outcome.AttemptOutcome
}

// Run drives attempt up to policy.RetryCount+1 times. Sleep is called
// between attempts (never after the last one), with the delay scaled by
// BackoffNum/BackoffDen after each retry. Only a TimedOut outcome
// triggers a retry; any other outcome — including Completed or
// MemoryExceeded — stops the loop immediately.
func Run(policy Policy, attempt Attempt, sleep Sleep) Result {
	if policy.BackoffDen == 0 {
		policy.BackoffDen = 1
	}

	delay := policy.DelayNS
	var per []outcome.AttemptOutcome

	maxAttempts := policy.RetryCount + 1
	var last outcome.AttemptOutcome

	for i := uint64(0); i < maxAttempts; i++ {
		last = attempt(int(i))
		per = append(per, last)

		if last.Status != outcome.TimedOut {
			break
		}
		if i+1 >= maxAttempts {
			break
		}

		sleep(time.Duration(delay))
		delay = (delay * policy.BackoffNum) / policy.BackoffDen
	}

	return Result{FinalOutcome: last, PerAttempt: per}
}
