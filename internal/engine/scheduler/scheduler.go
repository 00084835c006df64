// Package scheduler implements the test execution scheduler.
package scheduler

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"go.trai.ch/tern/internal/core/domain"
	"go.trai.ch/tern/internal/core/ports"
	"go.trai.ch/tern/internal/engine/graph"
	"go.trai.ch/zerr"
	"golang.org/x/sync/semaphore"
)

// NodeStatus represents the scheduling state of a test.
type NodeStatus string

const (
	// StatusPending indicates the test is waiting for predecessors.
	StatusPending NodeStatus = "Pending"
	// StatusReady indicates the test is eligible but not dispatched yet.
	StatusReady NodeStatus = "Ready"
	// StatusRunning indicates the test was handed to the runner.
	StatusRunning NodeStatus = "Running"
	// StatusDone indicates the test has its outcome.
	StatusDone NodeStatus = "Done"
)

// TerminalFunc is called exactly once per test after its outcome is set and
// before any dependent becomes eligible. It may be called concurrently.
type TerminalFunc func(ctx context.Context, node *domain.ExecutionNode)

// Scheduler dispatches the tests of a dependency graph onto a bounded set of workers.
type Scheduler struct {
	runner ports.TestRunner
	logger ports.Logger

	mu         sync.RWMutex
	nodeStatus map[domain.InternedString]NodeStatus
}

// NewScheduler creates a new Scheduler.
func NewScheduler(runner ports.TestRunner, logger ports.Logger) *Scheduler {
	return &Scheduler{
		runner:     runner,
		logger:     logger,
		nodeStatus: make(map[domain.InternedString]NodeStatus),
	}
}

func (s *Scheduler) updateStatus(id domain.InternedString, status NodeStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodeStatus[id] = status
}

// Status returns the scheduling state of a test in the current or last run.
func (s *Scheduler) Status(id domain.InternedString) NodeStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nodeStatus[id]
}

// Run schedules every ready node of g with at most workers tests running at once.
//
// A test becomes eligible once all its predecessors are terminal. An eligible test with a
// gating predecessor that did not pass is skipped without running. Among dispatchable tests,
// higher priority runs first and registration order breaks ties. Exclusive keys, parallel
// group orders and named parallel limits further restrict dispatch.
//
// When ctx is cancelled no further test is dispatched, every undispatched test is cancelled,
// running tests are awaited, and the cancellation cause is returned.
func (s *Scheduler) Run(ctx context.Context, g *graph.Graph, workers int, onTerminal TerminalFunc) error {
	state := s.newRunState(ctx, g, max(workers, 1), onTerminal)
	state.seed()

	done := ctx.Done()
	for state.finished < len(state.order) {
		if ctx.Err() == nil {
			state.schedule()
		} else {
			state.cancelPending()
		}

		if state.finished == len(state.order) {
			break
		}

		if state.active == 0 {
			if ctx.Err() == nil {
				state.breakDeadlock()
			}
			continue
		}

		select {
		case node := <-state.resultsCh:
			state.handleResult(node)
		case <-done:
			done = nil
		}
	}

	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	return nil
}

type groupState struct {
	// remaining counts the non-terminal tests per order.
	remaining map[int]int
}

func (gs *groupState) open(order int) bool {
	for o, n := range gs.remaining {
		if o < order && n > 0 {
			return false
		}
	}
	return true
}

type runState struct {
	s          *Scheduler
	ctx        context.Context
	g          *graph.Graph
	workers    int
	onTerminal TerminalFunc

	order    []*domain.ExecutionNode
	nodes    map[domain.InternedString]*domain.ExecutionNode
	waiting  map[domain.InternedString]int
	status   map[domain.InternedString]NodeStatus
	ready    []*domain.ExecutionNode
	sorted   bool
	active   int
	finished int

	held      map[string]bool
	groups    map[string]*groupState
	limiters  map[string]*semaphore.Weighted
	resultsCh chan *domain.ExecutionNode
}

func (s *Scheduler) newRunState(ctx context.Context, g *graph.Graph, workers int, onTerminal TerminalFunc) *runState {
	state := &runState{
		s:          s,
		ctx:        ctx,
		g:          g,
		workers:    workers,
		onTerminal: onTerminal,
		nodes:      make(map[domain.InternedString]*domain.ExecutionNode),
		waiting:    make(map[domain.InternedString]int),
		status:     make(map[domain.InternedString]NodeStatus),
		held:       make(map[string]bool),
		groups:     make(map[string]*groupState),
		limiters:   make(map[string]*semaphore.Weighted),
		resultsCh:  make(chan *domain.ExecutionNode, workers),
	}

	for _, n := range g.Ready() {
		node := domain.NewExecutionNode(n.Descriptor, n.Seq)
		state.order = append(state.order, node)
		state.nodes[n.ID()] = node
		state.waiting[n.ID()] = len(n.Predecessors)
		state.setStatus(node, StatusPending)

		c := n.Descriptor.Constraint
		if c.Kind == domain.ConstraintGroup {
			gs, ok := state.groups[c.Group]
			if !ok {
				gs = &groupState{remaining: make(map[int]int)}
				state.groups[c.Group] = gs
			}
			gs.remaining[c.Order]++
		}

		if l := n.Descriptor.Limiter; l != nil && l.Limit > 0 {
			if _, ok := state.limiters[l.Name]; !ok {
				state.limiters[l.Name] = semaphore.NewWeighted(int64(l.Limit))
			}
		}
	}
	return state
}

func (state *runState) setStatus(node *domain.ExecutionNode, status NodeStatus) {
	state.status[node.ID()] = status
	state.s.updateStatus(node.ID(), status)
}

func (state *runState) seed() {
	for _, node := range state.order {
		if state.waiting[node.ID()] == 0 {
			state.eligible(node)
		}
	}
}

// eligible is called once all predecessors of node are terminal.
func (state *runState) eligible(node *domain.ExecutionNode) {
	n, _ := state.g.Node(node.ID())
	for _, e := range n.Predecessors {
		if !e.Gating {
			continue
		}
		pred := state.nodes[e.To]
		if pred.Outcome.Status == domain.StatusPassed {
			continue
		}
		state.finish(node, domain.Skipped(domain.ReasonDependencyFailed, zerr.With(
			zerr.Wrap(domain.ErrDependencyFailed, "dependency "+e.To.String()+" "+string(pred.Outcome.Status)),
			"dependency", e.To.String(),
		)))
		return
	}

	state.setStatus(node, StatusReady)
	state.ready = append(state.ready, node)
	state.sorted = false
}

func (state *runState) sortReady() {
	if state.sorted {
		return
	}
	slices.SortStableFunc(state.ready, func(a, b *domain.ExecutionNode) int {
		if a.Descriptor.Priority != b.Descriptor.Priority {
			return b.Descriptor.Priority - a.Descriptor.Priority
		}
		return a.Seq - b.Seq
	})
	state.sorted = true
}

func (state *runState) schedule() {
	state.sortReady()

	kept := state.ready[:0]
	for _, node := range state.ready {
		if state.active >= state.workers || !state.admit(node) {
			kept = append(kept, node)
			continue
		}
		state.dispatch(node)
	}
	clear(state.ready[len(kept):])
	state.ready = kept
}

// admit checks the constraints of node and takes its exclusive keys and limiter slot.
func (state *runState) admit(node *domain.ExecutionNode) bool {
	d := node.Descriptor
	c := d.Constraint

	switch c.Kind {
	case domain.ConstraintExclusive:
		for _, k := range c.Keys {
			if state.held[k] {
				return false
			}
		}
	case domain.ConstraintGroup:
		if !state.groups[c.Group].open(c.Order) {
			return false
		}
	}

	if l := d.Limiter; l != nil {
		if sem, ok := state.limiters[l.Name]; ok && !sem.TryAcquire(1) {
			return false
		}
	}

	if c.Kind == domain.ConstraintExclusive {
		for _, k := range c.Keys {
			state.held[k] = true
		}
	}
	return true
}

func (state *runState) dispatch(node *domain.ExecutionNode) {
	state.active++
	state.setStatus(node, StatusRunning)

	go func() {
		node.Outcome = state.s.runner.Run(state.ctx, node)
		if state.onTerminal != nil {
			state.onTerminal(state.ctx, node)
		}
		state.resultsCh <- node
	}()
}

func (state *runState) handleResult(node *domain.ExecutionNode) {
	state.active--

	d := node.Descriptor
	if d.Constraint.Kind == domain.ConstraintExclusive {
		for _, k := range d.Constraint.Keys {
			delete(state.held, k)
		}
	}
	if l := d.Limiter; l != nil {
		if sem, ok := state.limiters[l.Name]; ok {
			sem.Release(1)
		}
	}

	state.complete(node)
}

// finish sets the outcome of a test that never reached a worker.
func (state *runState) finish(node *domain.ExecutionNode, outcome domain.Outcome) {
	node.Outcome = outcome
	if state.onTerminal != nil {
		state.onTerminal(state.ctx, node)
	}
	state.complete(node)
}

// complete marks node terminal and releases its dependents.
func (state *runState) complete(node *domain.ExecutionNode) {
	state.setStatus(node, StatusDone)
	state.finished++

	if c := node.Descriptor.Constraint; c.Kind == domain.ConstraintGroup {
		state.groups[c.Group].remaining[c.Order]--
	}

	n, _ := state.g.Node(node.ID())
	for _, id := range n.Dependents {
		state.waiting[id]--
		if state.waiting[id] == 0 && state.ctx.Err() == nil {
			state.eligible(state.nodes[id])
		}
	}
}

// cancelPending cancels every test that has not been dispatched.
func (state *runState) cancelPending() {
	cause := zerr.Wrap(context.Cause(state.ctx), domain.ErrCancelled.Error())
	state.ready = state.ready[:0]
	for _, node := range state.order {
		switch state.status[node.ID()] {
		case StatusPending, StatusReady:
			state.finish(node, domain.Cancelled(cause))
		}
	}
}

// breakDeadlock fails the tests that can never be dispatched because nothing is running
// and their constraints will not open.
func (state *runState) breakDeadlock() {
	stuck := state.ready
	if len(stuck) == 0 {
		for _, node := range state.order {
			if state.status[node.ID()] == StatusPending {
				stuck = append(stuck, node)
			}
		}
	}
	state.ready = nil

	for _, node := range stuck {
		state.s.logger.Warn(fmt.Sprintf("test %s can never be dispatched", node.ID()))
		state.finish(node, domain.Failed(domain.ReasonDeadlock, zerr.With(
			zerr.Wrap(domain.ErrSchedulingDeadlock, "no schedulable test remains"),
			"constraint", node.Descriptor.Constraint.String(),
		)))
	}
}
