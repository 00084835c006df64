// Package hooks runs lifecycle hooks around sessions, modules, units and test attempts.
package hooks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.trai.ch/tern/internal/core/domain"
	"go.trai.ch/tern/internal/core/ports"
	"go.trai.ch/zerr"
)

const (
	phasePending int32 = iota
	phaseRunning
	phaseCompleted
)

// phase runs at most once. Later callers wait for the first run and observe its result.
type phase struct {
	state atomic.Int32
	done  chan struct{}
	err   error
}

func newPhase() *phase {
	return &phase{done: make(chan struct{})}
}

func (p *phase) started() bool {
	return p.state.Load() != phasePending
}

func (p *phase) do(ctx context.Context, fn func() error) error {
	if p.state.CompareAndSwap(phasePending, phaseRunning) {
		p.err = fn()
		p.state.Store(phaseCompleted)
		close(p.done)
		return p.err
	}

	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

type scopeID struct {
	level    domain.HookLevel
	instance string
}

type scope struct {
	entry *phase
	exit  *phase
}

// Orchestrator runs hooks in a fixed nesting order: session, module, unit, test.
// Scoped entry hooks run once however many tests enter the scope concurrently,
// and their failure is remembered for every later test.
type Orchestrator struct {
	bindings *domain.HookBindings
	timeout  time.Duration
	logger   ports.Logger

	mu     sync.Mutex
	scopes map[scopeID]*scope
}

// New creates an Orchestrator. timeout applies to hooks that declare none; zero means unbounded.
func New(bindings *domain.HookBindings, timeout time.Duration, logger ports.Logger) *Orchestrator {
	return &Orchestrator{
		bindings: bindings,
		timeout:  timeout,
		logger:   logger,
		scopes:   make(map[scopeID]*scope),
	}
}

func (o *Orchestrator) scope(level domain.HookLevel, instance string) *scope {
	o.mu.Lock()
	defer o.mu.Unlock()

	id := scopeID{level: level, instance: instance}
	s, ok := o.scopes[id]
	if !ok {
		s = &scope{entry: newPhase(), exit: newPhase()}
		o.scopes[id] = s
	}
	return s
}

func (o *Orchestrator) lookup(level domain.HookLevel, instance string) (*scope, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.scopes[scopeID{level: level, instance: instance}]
	return s, ok
}

// EnterScopes makes sure the session, module and unit entry hooks of test have run.
// It stops at the first failing level and returns that failure.
func (o *Orchestrator) EnterScopes(ctx context.Context, test *domain.TestDescriptor) error {
	levels := []struct {
		level    domain.HookLevel
		instance string
	}{
		{domain.LevelSession, ""},
		{domain.LevelModule, test.Module.String()},
		{domain.LevelUnit, test.Unit.String()},
	}

	for _, l := range levels {
		s := o.scope(l.level, l.instance)
		hc := domain.HookContext{Level: l.level, Scope: l.instance, Test: test}
		set := o.bindings.Scoped(l.level, l.instance)

		err := s.entry.do(ctx, func() error {
			if len(set.Entry) > 0 {
				o.logger.Debug(fmt.Sprintf("running %s entry hooks for %q", l.level, l.instance))
			}
			return o.runEntry(ctx, hc, set.Entry)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// ExitScope runs the exit hooks of a module or unit, or of the session.
// Exit hooks only run when the scope's entry hooks were started; a running entry is awaited first.
// Every exit hook runs even if an earlier one fails.
func (o *Orchestrator) ExitScope(ctx context.Context, level domain.HookLevel, instance string) error {
	s, ok := o.lookup(level, instance)
	if !ok || !s.entry.started() {
		return nil
	}
	<-s.entry.done

	ctx = context.WithoutCancel(ctx)
	hc := domain.HookContext{Level: level, Scope: instance}
	set := o.bindings.Scoped(level, instance)

	return s.exit.do(ctx, func() error {
		if len(set.Exit) > 0 {
			o.logger.Debug(fmt.Sprintf("running %s exit hooks for %q", level, instance))
		}
		return errors.Join(o.runExit(ctx, hc, set.Exit)...)
	})
}

// ExitSession runs the session exit hooks.
func (o *Orchestrator) ExitSession(ctx context.Context) error {
	return o.ExitScope(ctx, domain.LevelSession, "")
}

// EnterTest runs the entry hooks wrapping one attempt of test.
func (o *Orchestrator) EnterTest(ctx context.Context, test *domain.TestDescriptor, attempt int) error {
	hc := domain.HookContext{Level: domain.LevelTest, Scope: test.ID.String(), Test: test, Attempt: attempt}
	return o.runEntry(ctx, hc, o.bindings.ForTest(test).Entry)
}

// ExitTest runs every exit hook wrapping one attempt of test and returns their failures in order.
// The hooks run even when ctx is already cancelled.
func (o *Orchestrator) ExitTest(ctx context.Context, test *domain.TestDescriptor, attempt int) []error {
	hc := domain.HookContext{Level: domain.LevelTest, Scope: test.ID.String(), Test: test, Attempt: attempt}
	return o.runExit(context.WithoutCancel(ctx), hc, o.bindings.ForTest(test).Exit)
}

func (o *Orchestrator) runEntry(ctx context.Context, hc domain.HookContext, hooks []domain.Hook) error {
	for _, h := range hooks {
		if err := o.run(ctx, hc, h); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) runExit(ctx context.Context, hc domain.HookContext, hooks []domain.Hook) []error {
	var errs []error
	for _, h := range hooks {
		if err := o.run(ctx, hc, h); err != nil {
			o.logger.Error(err)
			errs = append(errs, err)
		}
	}
	return errs
}

func (o *Orchestrator) run(ctx context.Context, hc domain.HookContext, h domain.Hook) error {
	if h.Run == nil {
		return nil
	}

	timeout := h.Timeout
	if timeout <= 0 {
		timeout = o.timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, timeout, domain.ErrTimeout)
		defer cancel()
	}

	result := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				result <- zerr.With(zerr.New("hook panicked"), "panic", fmt.Sprint(r))
			}
		}()
		result <- h.Run(ctx, hc)
	}()

	var err error
	select {
	case err = <-result:
	case <-ctx.Done():
		err = context.Cause(ctx)
	}
	if err == nil {
		return nil
	}

	wrapped := zerr.With(zerr.Wrap(err, domain.ErrHookFailed.Error()), "hook", h.Name)
	wrapped = zerr.With(wrapped, "level", hc.Level.String())
	if hc.Scope != "" {
		wrapped = zerr.With(wrapped, "scope", hc.Scope)
	}
	return wrapped
}
