package domain

import (
	"context"
	"time"
)

// HookLevel is the nesting level a hook is bound to.
type HookLevel uint8

const (
	// LevelSession hooks run once per engine session.
	LevelSession HookLevel = iota
	// LevelModule hooks run once per module.
	LevelModule
	// LevelUnit hooks run once per declaring unit.
	LevelUnit
	// LevelTest hooks run around every test attempt.
	LevelTest
)

// String returns the lowercase name of the level.
func (l HookLevel) String() string {
	switch l {
	case LevelSession:
		return "session"
	case LevelModule:
		return "module"
	case LevelUnit:
		return "unit"
	case LevelTest:
		return "test"
	default:
		return "unknown"
	}
}

// HookContext describes where a hook is running.
type HookContext struct {
	Level HookLevel
	// Scope is the scope-instance id: the module or unit name, or the test id for test hooks.
	Scope   string
	Test    *TestDescriptor
	Attempt int
}

// HookFunc is an opaque lifecycle callback.
type HookFunc func(ctx context.Context, hc HookContext) error

// Hook is a named callback with an optional timeout of its own.
type Hook struct {
	Name    string
	Run     HookFunc
	Timeout time.Duration
}

// HookSet is the ordered entry and exit hooks bound to one scope.
type HookSet struct {
	Entry []Hook
	Exit  []Hook
}

// Empty reports whether the set has no hooks.
func (s HookSet) Empty() bool {
	return len(s.Entry) == 0 && len(s.Exit) == 0
}

// HookBindings holds every hook known to a session, already flattened into ordered lists.
type HookBindings struct {
	Session HookSet
	Modules map[string]HookSet
	Units   map[string]HookSet
	// Tests holds per-test hooks keyed by declaring unit.
	Tests map[string]HookSet
	// EveryTest wraps every test regardless of unit.
	EveryTest HookSet
}

// NewHookBindings returns empty bindings.
func NewHookBindings() *HookBindings {
	return &HookBindings{
		Modules: make(map[string]HookSet),
		Units:   make(map[string]HookSet),
		Tests:   make(map[string]HookSet),
	}
}

// Scoped returns the hooks bound to a run-once scope instance.
func (b *HookBindings) Scoped(level HookLevel, instance string) HookSet {
	if b == nil {
		return HookSet{}
	}
	switch level {
	case LevelSession:
		return b.Session
	case LevelModule:
		return b.Modules[instance]
	case LevelUnit:
		return b.Units[instance]
	default:
		return HookSet{}
	}
}

// ForTest returns the test-level hooks wrapping test in execution order.
// Entry runs EveryTest before the unit's hooks; exit runs the unit's hooks first.
func (b *HookBindings) ForTest(test *TestDescriptor) HookSet {
	if b == nil {
		return HookSet{}
	}
	unit := b.Tests[test.Unit.String()]
	entry := make([]Hook, 0, len(b.EveryTest.Entry)+len(unit.Entry))
	entry = append(entry, b.EveryTest.Entry...)
	entry = append(entry, unit.Entry...)

	exit := make([]Hook, 0, len(b.EveryTest.Exit)+len(unit.Exit))
	exit = append(exit, unit.Exit...)
	exit = append(exit, b.EveryTest.Exit...)

	return HookSet{Entry: entry, Exit: exit}
}
