package domain

import (
	"context"
	"io"
	"time"
)

// Body is the executable part of a test.
// It must honour ctx cancellation; a body that ignores it is abandoned when its timeout elapses.
type Body func(ctx context.Context, tc *TestContext) error

// DependencyRef points at either a single test or every test of a declaring unit.
type DependencyRef struct {
	// Test is the id of the referenced test. Exactly one of Test and Unit is set.
	Test InternedString
	// Unit references all tests declared by the named unit.
	Unit InternedString
	// Optional references only order execution: a missing or failing target is ignored.
	Optional bool
	// ProceedOnFailure references must resolve but do not gate on the target's outcome.
	ProceedOnFailure bool
}

// DependsOn returns a hard dependency on a single test.
func DependsOn(id string) DependencyRef {
	return DependencyRef{Test: NewInternedString(id)}
}

// DependsOnUnit returns a hard dependency on every test of a unit.
func DependsOnUnit(unit string) DependencyRef {
	return DependencyRef{Unit: NewInternedString(unit)}
}

// IsUnit reports whether the reference targets a declaring unit.
func (r DependencyRef) IsUnit() bool {
	return r.Unit.String() != ""
}

// Gating reports whether a target that did not pass prevents the dependent from running.
func (r DependencyRef) Gating() bool {
	return !r.Optional && !r.ProceedOnFailure
}

// String returns a human readable form of the reference.
func (r DependencyRef) String() string {
	if r.IsUnit() {
		return "unit:" + r.Unit.String()
	}
	return r.Test.String()
}

// ParallelLimit caps the number of concurrently running tests that share Name.
type ParallelLimit struct {
	Name  string
	Limit int
}

// TestDescriptor is the static, fully resolved description of one test.
type TestDescriptor struct {
	ID           InternedString
	Unit         InternedString
	Module       InternedString
	Dependencies []DependencyRef
	Constraint   Constraint
	// Priority orders eligible tests; higher runs first.
	Priority int
	// RetryLimit is the number of extra attempts. Zero inherits the engine default, negative disables retries.
	RetryLimit int
	// Timeout bounds each body invocation. Zero inherits the engine default, negative disables it.
	Timeout   time.Duration
	Resources []ResourceRequest
	Limiter   *ParallelLimit
	// Skip, when non-empty, is the reason the test is skipped without running.
	Skip string
	Body Body
}

// EffectiveRetries resolves the retry limit against the engine default.
func (d *TestDescriptor) EffectiveRetries(defaultRetries int) int {
	switch {
	case d.RetryLimit < 0:
		return 0
	case d.RetryLimit == 0:
		return max(defaultRetries, 0)
	default:
		return d.RetryLimit
	}
}

// EffectiveTimeout resolves the timeout against the engine default.
// A zero result means the body runs unbounded.
func (d *TestDescriptor) EffectiveTimeout(defaultTimeout time.Duration) time.Duration {
	switch {
	case d.Timeout < 0:
		return 0
	case d.Timeout == 0:
		return max(defaultTimeout, 0)
	default:
		return d.Timeout
	}
}

// TestContext is handed to a running body.
type TestContext struct {
	Test    *TestDescriptor
	Attempt int
	// Output receives the test's log output. It is never nil.
	Output    io.Writer
	resources map[string]any
}

// NewTestContext creates the context for one attempt of a test.
func NewTestContext(test *TestDescriptor, attempt int, output io.Writer, resources map[string]any) *TestContext {
	if output == nil {
		output = io.Discard
	}
	return &TestContext{
		Test:      test,
		Attempt:   attempt,
		Output:    output,
		resources: resources,
	}
}

// Resource returns the instance of the named shared resource acquired for this attempt.
func (tc *TestContext) Resource(name string) (any, bool) {
	v, ok := tc.resources[name]
	return v, ok
}
