// Package graph resolves declared test dependencies into a predecessor graph.
package graph

import (
	"iter"
	"strings"

	"go.trai.ch/tern/internal/core/domain"
	"go.trai.ch/zerr"
)

// Edge points from a node to one of its predecessors.
type Edge struct {
	To domain.InternedString
	// Gating edges skip the dependent when the predecessor did not pass.
	Gating bool
	// Optional edges only order execution.
	Optional bool
}

// Node is a descriptor together with its resolved edges and verdict.
type Node struct {
	Descriptor   *domain.TestDescriptor
	Seq          int
	Verdict      domain.Verdict
	Predecessors []Edge
	Dependents   []domain.InternedString
}

// ID returns the descriptor id.
func (n *Node) ID() domain.InternedString {
	return n.Descriptor.ID
}

// Graph is the resolved dependency graph of a catalog.
type Graph struct {
	nodes map[domain.InternedString]*Node
	order []domain.InternedString
}

// Node returns the node with the given id.
func (g *Graph) Node(id domain.InternedString) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Len returns the number of nodes, ready or excluded.
func (g *Graph) Len() int {
	return len(g.order)
}

// Nodes yields every node in registration order.
func (g *Graph) Nodes() iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		for _, id := range g.order {
			if !yield(g.nodes[id]) {
				return
			}
		}
	}
}

// Ready returns the schedulable nodes in registration order.
func (g *Graph) Ready() []*Node {
	var out []*Node
	for n := range g.Nodes() {
		if !n.Verdict.Excluded {
			out = append(out, n)
		}
	}
	return out
}

// Excluded returns the nodes rejected at discovery in registration order.
func (g *Graph) Excluded() []*Node {
	var out []*Node
	for n := range g.Nodes() {
		if n.Verdict.Excluded {
			out = append(out, n)
		}
	}
	return out
}

// Build resolves the catalog.
//
// Unit references expand to every test of the unit except the dependent itself.
// Tests in a dependency cycle, tests with an unresolvable non-optional dependency,
// and every test reaching one of those through a non-optional edge are excluded.
// Optional edges to missing or excluded tests are dropped.
func Build(c *domain.Catalog) *Graph {
	g := &Graph{nodes: make(map[domain.InternedString]*Node, c.Len())}

	for seq, d := range c.All() {
		g.nodes[d.ID] = &Node{Descriptor: d, Seq: seq, Verdict: domain.Ready()}
		g.order = append(g.order, d.ID)
	}

	for _, id := range g.order {
		g.resolve(c, g.nodes[id])
	}

	g.excludeCycles()
	g.propagateExclusions()
	g.link()

	return g
}

// resolve turns dependency references into edges, merging duplicates.
func (g *Graph) resolve(c *domain.Catalog, n *Node) {
	index := make(map[domain.InternedString]int)

	add := func(to domain.InternedString, ref domain.DependencyRef) {
		if i, ok := index[to]; ok {
			e := &n.Predecessors[i]
			e.Gating = e.Gating || ref.Gating()
			e.Optional = e.Optional && ref.Optional
			return
		}
		index[to] = len(n.Predecessors)
		n.Predecessors = append(n.Predecessors, Edge{To: to, Gating: ref.Gating(), Optional: ref.Optional})
	}

	for _, ref := range n.Descriptor.Dependencies {
		var targets []domain.InternedString
		if ref.IsUnit() {
			for _, id := range c.UnitTests(ref.Unit) {
				if id != n.ID() {
					targets = append(targets, id)
				}
			}
		} else if _, ok := g.nodes[ref.Test]; ok {
			targets = []domain.InternedString{ref.Test}
		}

		if len(targets) == 0 {
			if !ref.Optional && !n.Verdict.Excluded {
				n.Verdict = domain.Excluded(domain.ReasonUnresolvedDependency, zerr.With(
					zerr.Wrap(domain.ErrUnresolvedDependency, "dependency "+ref.String()+" does not exist"),
					"dependency", ref.String(),
				))
			}
			continue
		}

		for _, to := range targets {
			add(to, ref)
		}
	}
}

// excludeCycles marks every member of a strongly connected component that contains a cycle.
func (g *Graph) excludeCycles() {
	for _, scc := range g.components() {
		if len(scc) == 1 && !g.selfLoop(scc[0]) {
			continue
		}

		path := g.cyclePath(scc)
		for _, id := range scc {
			g.nodes[id].Verdict = domain.Excluded(domain.ReasonCyclicDependency, zerr.With(
				zerr.Wrap(domain.ErrCyclicDependency, "test is part of cycle "+path),
				"cycle", path,
			))
		}
	}
}

func (g *Graph) selfLoop(id domain.InternedString) bool {
	for _, e := range g.nodes[id].Predecessors {
		if e.To == id {
			return true
		}
	}
	return false
}

// components runs Tarjan's algorithm over the predecessor edges.
func (g *Graph) components() [][]domain.InternedString {
	var (
		index   int
		stack   []domain.InternedString
		onStack = make(map[domain.InternedString]bool)
		indices = make(map[domain.InternedString]int)
		low     = make(map[domain.InternedString]int)
		out     [][]domain.InternedString
	)

	var visit func(id domain.InternedString)
	visit = func(id domain.InternedString) {
		indices[id] = index
		low[id] = index
		index++
		stack = append(stack, id)
		onStack[id] = true

		for _, e := range g.nodes[id].Predecessors {
			if _, seen := indices[e.To]; !seen {
				visit(e.To)
				low[id] = min(low[id], low[e.To])
			} else if onStack[e.To] {
				low[id] = min(low[id], indices[e.To])
			}
		}

		if low[id] != indices[id] {
			return
		}

		var scc []domain.InternedString
		for {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[top] = false
			scc = append(scc, top)
			if top == id {
				break
			}
		}
		out = append(out, scc)
	}

	for _, id := range g.order {
		if _, seen := indices[id]; !seen {
			visit(id)
		}
	}
	return out
}

// cyclePath renders one cycle through the component, e.g. "A -> B -> A".
func (g *Graph) cyclePath(scc []domain.InternedString) string {
	members := make(map[domain.InternedString]bool, len(scc))
	start := scc[0]
	for _, id := range scc {
		members[id] = true
		if g.nodes[id].Seq < g.nodes[start].Seq {
			start = id
		}
	}

	visited := make(map[domain.InternedString]bool)
	var path []domain.InternedString

	var walk func(id domain.InternedString) bool
	walk = func(id domain.InternedString) bool {
		visited[id] = true
		path = append(path, id)
		for _, e := range g.nodes[id].Predecessors {
			if !members[e.To] {
				continue
			}
			if e.To == start {
				return true
			}
			if !visited[e.To] && walk(e.To) {
				return true
			}
		}
		path = path[:len(path)-1]
		return false
	}
	walk(start)

	parts := make([]string, 0, len(path)+1)
	for _, id := range path {
		parts = append(parts, id.String())
	}
	parts = append(parts, start.String())
	return strings.Join(parts, " -> ")
}

// propagateExclusions excludes every test that reaches an excluded test over a non-optional edge.
func (g *Graph) propagateExclusions() {
	dependents := make(map[domain.InternedString][]domain.InternedString)
	for _, id := range g.order {
		for _, e := range g.nodes[id].Predecessors {
			if !e.Optional {
				dependents[e.To] = append(dependents[e.To], id)
			}
		}
	}

	var queue []domain.InternedString
	for _, id := range g.order {
		if g.nodes[id].Verdict.Excluded {
			queue = append(queue, id)
		}
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		reason := g.nodes[id].Verdict.Reason

		for _, dep := range dependents[id] {
			n := g.nodes[dep]
			if n.Verdict.Excluded {
				continue
			}
			sentinel := domain.ErrUnresolvedDependency
			if reason == domain.ReasonCyclicDependency {
				sentinel = domain.ErrCyclicDependency
			}
			n.Verdict = domain.Excluded(reason, zerr.With(
				zerr.Wrap(sentinel, "depends on excluded test "+id.String()),
				"dependency", id.String(),
			))
			queue = append(queue, dep)
		}
	}
}

// link drops edges to excluded tests and records dependents among ready tests.
func (g *Graph) link() {
	for _, id := range g.order {
		n := g.nodes[id]
		if n.Verdict.Excluded {
			continue
		}
		kept := n.Predecessors[:0]
		for _, e := range n.Predecessors {
			pred := g.nodes[e.To]
			if pred.Verdict.Excluded {
				continue
			}
			kept = append(kept, e)
			pred.Dependents = append(pred.Dependents, id)
		}
		n.Predecessors = kept
	}
}
