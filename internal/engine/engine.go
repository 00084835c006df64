// Package engine runs a test suite session end to end.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.trai.ch/tern/internal/core/domain"
	"go.trai.ch/tern/internal/core/ports"
	"go.trai.ch/tern/internal/engine/executor"
	"go.trai.ch/tern/internal/engine/graph"
	"go.trai.ch/tern/internal/engine/hooks"
	"go.trai.ch/tern/internal/engine/resources"
	"go.trai.ch/tern/internal/engine/scheduler"
	"go.trai.ch/zerr"
)

// Engine runs sessions. It is safe to run several sessions concurrently.
type Engine struct {
	logger ports.Logger
	sinks  fanout
}

// New creates an Engine that publishes every session to sinks.
func New(logger ports.Logger, sinks ...ports.ResultSink) *Engine {
	return &Engine{logger: logger, sinks: fanout(sinks)}
}

// Run executes suite and returns its report.
//
// Every test gets exactly one Terminal event. Tests excluded at discovery fail immediately
// without running. The returned error is non-nil only when the session could not start or
// ctx was cancelled; failing tests are reported through the Report.
func (e *Engine) Run(ctx context.Context, suite *domain.Suite, extra ...ports.ResultSink) (*Report, error) {
	if suite == nil || suite.Catalog == nil {
		return nil, zerr.Wrap(domain.ErrInvalidDescriptor, "suite has no catalog")
	}

	sink := e.sinks
	if len(extra) > 0 {
		sink = append(append(fanout(nil), e.sinks...), extra...)
	}

	cfg := suite.Config
	report := newReport(uuid.NewString(), suite.Catalog, time.Now())
	g := graph.Build(suite.Catalog)

	for n := range g.Nodes() {
		sink.Publish(domain.Event{Kind: domain.EventDiscovered, Test: n.Descriptor, Verdict: n.Verdict, Time: time.Now()})
	}
	for _, n := range g.Excluded() {
		o := domain.Failed(n.Verdict.Reason, n.Verdict.Cause)
		report.record(n.Descriptor, o)
		e.logger.Warn(fmt.Sprintf("test %s excluded: %s", n.ID(), n.Verdict.Reason))
		sink.Publish(domain.Event{Kind: domain.EventTerminal, Test: n.Descriptor, Outcome: o, Time: time.Now()})
	}

	workers := cfg.WorkerLimit()
	e.logger.Info(fmt.Sprintf("session %s: running %d tests on %d workers", report.SessionID, len(g.Ready()), workers))

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	res := resources.NewManager(e.logger)
	orch := hooks.New(suite.Hooks, cfg.HookTimeout, e.logger)
	exec := executor.New(cfg, res, orch, sink, e.logger)
	life := newLifecycle(g, orch, res, report)
	sched := scheduler.NewScheduler(exec, e.logger)

	runErr := sched.Run(runCtx, g, workers, func(ctx context.Context, node *domain.ExecutionNode) {
		report.record(node.Descriptor, node.Outcome)
		sink.Publish(domain.Event{
			Kind:    domain.EventTerminal,
			Test:    node.Descriptor,
			Attempt: node.Attempt,
			Outcome: node.Outcome,
			Time:    time.Now(),
		})
		if cfg.FailFast && node.Outcome.Status == domain.StatusFailed {
			cancel(domain.ErrFailFast)
		}
		life.leave(ctx, node.Descriptor)
	})

	life.wait()
	report.addScopeError(orch.ExitSession(ctx))
	report.addScopeError(res.Close(ctx))
	for _, err := range report.ScopeErrors() {
		e.logger.Error(err)
	}

	report.Finished = time.Now()
	if err := sink.Flush(); err != nil {
		e.logger.Error(zerr.Wrap(err, "flush result sinks"))
	}

	if runErr != nil && !errors.Is(runErr, domain.ErrFailFast) {
		return report, zerr.Wrap(runErr, domain.ErrCancelled.Error())
	}
	return report, nil
}
