package domain

import (
	"context"
	"strings"

	"go.trai.ch/zerr"
)

// ResourceScope determines which tests share a resource instance and when it is disposed.
type ResourceScope uint8

const (
	// ScopeNone gives every consumer its own instance, disposed on release.
	ScopeNone ResourceScope = iota
	// ScopeGlobal shares one instance for the whole session.
	ScopeGlobal
	// ScopeModule shares one instance per module.
	ScopeModule
	// ScopeUnit shares one instance per declaring unit.
	ScopeUnit
	// ScopeKeyed shares one instance per custom key.
	ScopeKeyed
)

var scopeNames = map[ResourceScope]string{
	ScopeNone:   "none",
	ScopeGlobal: "global",
	ScopeModule: "module",
	ScopeUnit:   "unit",
	ScopeKeyed:  "keyed",
}

// String returns the configuration name of the scope.
func (s ResourceScope) String() string {
	if n, ok := scopeNames[s]; ok {
		return n
	}
	return "unknown"
}

// ParseResourceScope converts a configuration name into a ResourceScope.
// The empty string selects ScopeNone.
func ParseResourceScope(name string) (ResourceScope, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return ScopeNone, nil
	}
	for s, candidate := range scopeNames {
		if candidate == n {
			return s, nil
		}
	}
	return ScopeNone, zerr.With(zerr.Wrap(ErrInvalidScope, "parse resource scope"), "scope", name)
}

// ResourceFactory creates a shared resource instance.
type ResourceFactory func(ctx context.Context) (any, error)

// ResourceDisposer releases an instance created by a ResourceFactory.
type ResourceDisposer func(ctx context.Context, instance any) error

// ResourceRequest declares that a test needs a shared resource.
type ResourceRequest struct {
	Name    string
	Scope   ResourceScope
	Key     string
	Init    ResourceFactory
	Dispose ResourceDisposer
}

// Instance returns the scope-instance identifier for the request when made by test.
func (r ResourceRequest) Instance(test *TestDescriptor) string {
	switch r.Scope {
	case ScopeModule:
		return test.Module.String()
	case ScopeUnit:
		return test.Unit.String()
	case ScopeKeyed:
		return r.Key
	default:
		return ""
	}
}
