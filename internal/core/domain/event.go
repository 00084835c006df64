package domain

import "time"

// EventKind enumerates the result stream events.
type EventKind uint8

const (
	// EventDiscovered is emitted once per test before scheduling starts.
	EventDiscovered EventKind = iota
	// EventStarted is emitted when the first attempt of a test begins.
	EventStarted
	// EventRetrying is emitted before every attempt after the first.
	EventRetrying
	// EventTerminal carries the final outcome.
	EventTerminal
)

// String returns the lowercase name of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventDiscovered:
		return "discovered"
	case EventStarted:
		return "started"
	case EventRetrying:
		return "retrying"
	case EventTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Event is one element of the result stream.
type Event struct {
	Kind EventKind
	Test *TestDescriptor
	// Attempt is the attempt about to run for Started and Retrying events.
	Attempt int
	Verdict Verdict
	Outcome Outcome
	Time    time.Time
}

// ID returns the id of the test the event belongs to.
func (e Event) ID() string {
	if e.Test == nil {
		return ""
	}
	return e.Test.ID.String()
}
