// Package domain contains the core domain models of the test orchestration engine.
package domain

import (
	"iter"
	"path"

	"go.trai.ch/zerr"
)

// Catalog is the ordered set of test descriptors handed to the engine.
type Catalog struct {
	tests map[InternedString]*TestDescriptor
	order []InternedString
	units map[InternedString][]InternedString
}

// NewCatalog creates a new empty Catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		tests: make(map[InternedString]*TestDescriptor),
		units: make(map[InternedString][]InternedString),
	}
}

// Add registers a descriptor. Registration order is preserved.
// It returns an error if a test with the same id already exists.
func (c *Catalog) Add(d *TestDescriptor) error {
	if d.ID.String() == "" {
		return zerr.Wrap(ErrInvalidDescriptor, "test id is empty")
	}
	if _, exists := c.tests[d.ID]; exists {
		return zerr.With(ErrDuplicateTest, "test_id", d.ID.String())
	}
	c.tests[d.ID] = d
	c.order = append(c.order, d.ID)
	c.units[d.Unit] = append(c.units[d.Unit], d.ID)
	return nil
}

// Get returns the descriptor with the given id.
func (c *Catalog) Get(id InternedString) (*TestDescriptor, bool) {
	d, ok := c.tests[id]
	return d, ok
}

// Len returns the number of descriptors.
func (c *Catalog) Len() int {
	return len(c.order)
}

// UnitTests returns the ids declared by unit in registration order.
func (c *Catalog) UnitTests(unit InternedString) []InternedString {
	return c.units[unit]
}

// All yields the descriptors in registration order together with their index.
func (c *Catalog) All() iter.Seq2[int, *TestDescriptor] {
	return func(yield func(int, *TestDescriptor) bool) {
		for i, id := range c.order {
			if !yield(i, c.tests[id]) {
				return
			}
		}
	}
}

// Select returns a catalog holding the tests whose id matches any of the glob patterns,
// plus everything they transitively depend on. An empty pattern list selects everything.
func (c *Catalog) Select(patterns []string) (*Catalog, error) {
	if len(patterns) == 0 {
		return c, nil
	}

	var roots []InternedString
	for _, id := range c.order {
		matched, err := matchAny(patterns, id.String())
		if err != nil {
			return nil, err
		}
		if matched {
			roots = append(roots, id)
		}
	}

	keep := c.collectDependencies(roots)

	out := NewCatalog()
	for _, id := range c.order {
		if !keep[id] {
			continue
		}
		if err := out.Add(c.tests[id]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// collectDependencies walks the dependency references breadth first.
// Dangling references are ignored here; the graph builder reports them.
func (c *Catalog) collectDependencies(roots []InternedString) map[InternedString]bool {
	seen := make(map[InternedString]bool, len(roots))
	queue := make([]InternedString, 0, len(roots))
	for _, id := range roots {
		if !seen[id] {
			seen[id] = true
			queue = append(queue, id)
		}
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		d, ok := c.tests[id]
		if !ok {
			continue
		}
		for _, ref := range d.Dependencies {
			targets := []InternedString{ref.Test}
			if ref.IsUnit() {
				targets = c.units[ref.Unit]
			}
			for _, dep := range targets {
				if _, exists := c.tests[dep]; !exists || seen[dep] {
					continue
				}
				seen[dep] = true
				queue = append(queue, dep)
			}
		}
	}
	return seen
}

func matchAny(patterns []string, id string) (bool, error) {
	for _, p := range patterns {
		ok, err := path.Match(p, id)
		if err != nil {
			return false, zerr.With(zerr.Wrap(ErrInvalidPattern, err.Error()), "pattern", p)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
