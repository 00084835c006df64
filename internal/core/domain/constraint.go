package domain

import (
	"slices"
	"strconv"
	"strings"
)

// ConstraintKind enumerates the concurrency constraints a test can declare.
type ConstraintKind uint8

const (
	// ConstraintNone places the test in the unconstrained pool.
	ConstraintNone ConstraintKind = iota
	// ConstraintExclusive serializes the test against every other test sharing a key.
	ConstraintExclusive
	// ConstraintGroup orders the test inside a named parallel group.
	ConstraintGroup
)

// Constraint describes how a test may overlap with others.
type Constraint struct {
	Kind  ConstraintKind
	Keys  []string
	Group string
	Order int
}

// Unconstrained returns the default constraint.
func Unconstrained() Constraint {
	return Constraint{}
}

// Exclusive returns a constraint holding every given key for the duration of the test.
// Keys are deduplicated and sorted.
func Exclusive(keys ...string) Constraint {
	k := slices.Clone(keys)
	slices.Sort(k)
	return Constraint{Kind: ConstraintExclusive, Keys: slices.Compact(k)}
}

// ParallelGroup returns a constraint placing the test at position order of group name.
func ParallelGroup(name string, order int) Constraint {
	return Constraint{Kind: ConstraintGroup, Group: name, Order: order}
}

// String returns a compact description of the constraint.
func (c Constraint) String() string {
	switch c.Kind {
	case ConstraintExclusive:
		return "exclusive(" + strings.Join(c.Keys, ",") + ")"
	case ConstraintGroup:
		return "group(" + c.Group + "#" + strconv.Itoa(c.Order) + ")"
	default:
		return "unconstrained"
	}
}
