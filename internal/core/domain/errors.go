package domain

import "go.trai.ch/zerr"

var (
	// ErrDuplicateTest is returned when a catalog receives two descriptors with the same id.
	ErrDuplicateTest = zerr.New("test already exists")

	// ErrTestNotFound is returned when a requested test is not part of the catalog.
	ErrTestNotFound = zerr.New("test not found")

	// ErrInvalidDescriptor is returned when a descriptor is structurally unusable.
	ErrInvalidDescriptor = zerr.New("invalid test descriptor")

	// ErrInvalidPattern is returned when a selection pattern is malformed.
	ErrInvalidPattern = zerr.New("invalid selection pattern")

	// ErrCyclicDependency marks tests that are part of, or depend on, a dependency cycle.
	ErrCyclicDependency = zerr.New("cyclic dependency")

	// ErrUnresolvedDependency marks tests with a non-optional dependency that does not exist.
	ErrUnresolvedDependency = zerr.New("unresolved dependency")

	// ErrDependencyFailed is recorded for tests skipped because a gating dependency did not pass.
	ErrDependencyFailed = zerr.New("dependency did not pass")

	// ErrResourceInitialization is returned to every consumer of a resource whose factory failed.
	ErrResourceInitialization = zerr.New("shared resource initialization failed")

	// ErrResourceDisposal is returned when disposing a shared resource fails.
	ErrResourceDisposal = zerr.New("shared resource disposal failed")

	// ErrHookFailed is returned when a lifecycle hook fails.
	ErrHookFailed = zerr.New("hook failed")

	// ErrTestFailed is returned when a test body fails.
	ErrTestFailed = zerr.New("test failed")

	// ErrTestPanicked is returned when a test body or hook panics.
	ErrTestPanicked = zerr.New("test panicked")

	// ErrTimeout is the cancellation cause of a body that exceeded its timeout.
	ErrTimeout = zerr.New("test timed out")

	// ErrCancelled is recorded for tests interrupted by session cancellation.
	ErrCancelled = zerr.New("test cancelled")

	// ErrFailFast is the cancellation cause used when fail-fast stops a session.
	ErrFailFast = zerr.New("session stopped after first failure")

	// ErrSchedulingDeadlock is recorded for tests that could never become dispatchable.
	ErrSchedulingDeadlock = zerr.New("test can never be scheduled")

	// ErrTestsFailed is returned by the application when at least one test did not pass.
	ErrTestsFailed = zerr.New("test run failed")

	// ErrConfigRead is returned when a suite file cannot be read.
	ErrConfigRead = zerr.New("failed to read suite file")

	// ErrConfigParse is returned when a suite file cannot be parsed.
	ErrConfigParse = zerr.New("failed to parse suite file")

	// ErrUnknownResource is returned when a test references an undeclared resource.
	ErrUnknownResource = zerr.New("unknown resource")

	// ErrInvalidScope is returned when a resource scope name is not recognized.
	ErrInvalidScope = zerr.New("invalid resource scope")

	// ErrInvalidDuration is returned when a duration value cannot be parsed.
	ErrInvalidDuration = zerr.New("invalid duration")

	// ErrUnsupportedFormat is returned for suite files with an unknown extension.
	ErrUnsupportedFormat = zerr.New("unsupported suite file format")

	// ErrEmptyCommand is returned when a command has no arguments.
	ErrEmptyCommand = zerr.New("command is empty")

	// ErrHistoryRead is returned when a history record exists but cannot be read.
	ErrHistoryRead = zerr.New("failed to read run history")

	// ErrHistoryCorrupt is returned when a history record cannot be decoded.
	ErrHistoryCorrupt = zerr.New("run history is corrupt")

	// ErrHistoryWrite is returned when a history record cannot be written.
	ErrHistoryWrite = zerr.New("failed to write run history")

	// ErrConfigNotFound is returned when no suite file exists in the directory tree.
	ErrConfigNotFound = zerr.New("no suite file found")

	// ErrInvalidHook is returned when a hook declaration cannot be bound.
	ErrInvalidHook = zerr.New("invalid hook")
)
