package domain

import (
	"errors"
	"time"
)

// Status is the terminal state of a test.
type Status string

const (
	// StatusPassed means the final attempt succeeded.
	StatusPassed Status = "passed"
	// StatusFailed means the test failed, at discovery or at runtime.
	StatusFailed Status = "failed"
	// StatusSkipped means the test never ran.
	StatusSkipped Status = "skipped"
	// StatusCancelled means the session was cancelled before the test completed.
	StatusCancelled Status = "cancelled"
)

// Reason qualifies a non-passing outcome.
type Reason string

const (
	ReasonNone                   Reason = ""
	ReasonCyclicDependency       Reason = "cyclic-dependency"
	ReasonUnresolvedDependency   Reason = "unresolved-dependency"
	ReasonDependencyFailed       Reason = "dependency-failed"
	ReasonDeclaredSkip           Reason = "declared-skip"
	ReasonResourceInitialization Reason = "resource-initialization"
	ReasonHook                   Reason = "hook"
	ReasonTimeout                Reason = "timeout"
	ReasonBody                   Reason = "body"
	ReasonDeadlock               Reason = "deadlock"
)

// IsDiscovery reports whether the reason stems from graph construction rather than execution.
func (r Reason) IsDiscovery() bool {
	return r == ReasonCyclicDependency || r == ReasonUnresolvedDependency
}

// Outcome is the terminal result of a test's whole attempt sequence.
type Outcome struct {
	Status Status
	Reason Reason
	// Errors lists the causes in order: body error first, then hook errors.
	Errors   []error
	Attempts int
	Duration time.Duration
}

// Passed returns a passing outcome.
func Passed(attempts int) Outcome {
	return Outcome{Status: StatusPassed, Attempts: attempts}
}

// Failed returns a failing outcome.
func Failed(reason Reason, errs ...error) Outcome {
	return Outcome{Status: StatusFailed, Reason: reason, Errors: errs}
}

// Skipped returns a skipped outcome.
func Skipped(reason Reason, errs ...error) Outcome {
	return Outcome{Status: StatusSkipped, Reason: reason, Errors: errs}
}

// Cancelled returns a cancelled outcome.
func Cancelled(errs ...error) Outcome {
	return Outcome{Status: StatusCancelled, Errors: errs}
}

// Err joins the outcome's errors, or returns nil when there are none.
func (o Outcome) Err() error {
	return errors.Join(o.Errors...)
}

// Verdict is the discovery-time classification of a descriptor.
type Verdict struct {
	Excluded bool
	Reason   Reason
	// Cause explains an exclusion, e.g. the cycle path.
	Cause error
}

// Ready returns the verdict of a schedulable descriptor.
func Ready() Verdict {
	return Verdict{}
}

// Excluded returns the verdict of a descriptor that must never be scheduled.
func Excluded(reason Reason, cause error) Verdict {
	return Verdict{Excluded: true, Reason: reason, Cause: cause}
}
