package engine

import (
	"context"
	"sync"

	"go.trai.ch/tern/internal/core/domain"
	"go.trai.ch/tern/internal/engine/graph"
	"go.trai.ch/tern/internal/engine/hooks"
	"go.trai.ch/tern/internal/engine/resources"
)

// lifecycle closes units, modules and keyed resource scopes once their last test is terminal.
// A module only closes after every unit it contains has finished its exit hooks.
// Closures run in the background so that slow exit hooks never stall dispatch.
type lifecycle struct {
	hooks     *hooks.Orchestrator
	resources *resources.Manager
	report    *Report
	closing   sync.WaitGroup

	mu sync.Mutex
	// units counts non-terminal tests per unit.
	units map[string]int
	// unitModules lists the modules a unit contributes tests to.
	unitModules map[string][]string
	// modules counts open units per module.
	modules map[string]int
	// keys counts non-terminal tests per keyed resource instance.
	keys map[string]int
}

func newLifecycle(g *graph.Graph, orch *hooks.Orchestrator, res *resources.Manager, report *Report) *lifecycle {
	l := &lifecycle{
		hooks:       orch,
		resources:   res,
		report:      report,
		units:       make(map[string]int),
		unitModules: make(map[string][]string),
		modules:     make(map[string]int),
		keys:        make(map[string]int),
	}

	seen := make(map[[2]string]bool)
	for _, n := range g.Ready() {
		d := n.Descriptor
		unit, module := d.Unit.String(), d.Module.String()
		l.units[unit]++

		if pair := [2]string{unit, module}; !seen[pair] {
			seen[pair] = true
			l.unitModules[unit] = append(l.unitModules[unit], module)
			l.modules[module]++
		}

		for _, key := range keyedInstances(d) {
			l.keys[key]++
		}
	}
	return l
}

func keyedInstances(d *domain.TestDescriptor) []string {
	var keys []string
	for _, req := range d.Resources {
		if req.Scope == domain.ScopeKeyed {
			keys = append(keys, req.Key)
		}
	}
	return keys
}

// leave is called once per scheduled test after its outcome is known.
// Scopes it ends are closed asynchronously; wait blocks until they are done.
func (l *lifecycle) leave(ctx context.Context, d *domain.TestDescriptor) {
	unit := d.Unit.String()

	l.mu.Lock()
	l.units[unit]--
	unitDone := l.units[unit] == 0
	var doneKeys []string
	for _, key := range keyedInstances(d) {
		l.keys[key]--
		if l.keys[key] == 0 {
			doneKeys = append(doneKeys, key)
		}
	}
	l.mu.Unlock()

	if !unitDone && len(doneKeys) == 0 {
		return
	}
	l.closing.Go(func() {
		l.close(context.WithoutCancel(ctx), unit, unitDone, doneKeys)
	})
}

func (l *lifecycle) close(ctx context.Context, unit string, unitDone bool, keys []string) {
	for _, key := range keys {
		l.report.addScopeError(l.resources.CloseScope(ctx, domain.ScopeKeyed, key))
	}

	if !unitDone {
		return
	}
	l.report.addScopeError(l.hooks.ExitScope(ctx, domain.LevelUnit, unit))
	l.report.addScopeError(l.resources.CloseScope(ctx, domain.ScopeUnit, unit))

	var doneModules []string
	l.mu.Lock()
	for _, module := range l.unitModules[unit] {
		l.modules[module]--
		if l.modules[module] == 0 {
			doneModules = append(doneModules, module)
		}
	}
	l.mu.Unlock()

	for _, module := range doneModules {
		l.report.addScopeError(l.hooks.ExitScope(ctx, domain.LevelModule, module))
		l.report.addScopeError(l.resources.CloseScope(ctx, domain.ScopeModule, module))
	}
}

func (l *lifecycle) wait() {
	l.closing.Wait()
}
