// Package executor runs the attempts of a single test.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.trai.ch/tern/internal/core/domain"
	"go.trai.ch/tern/internal/core/ports"
	"go.trai.ch/tern/internal/engine/hooks"
	"go.trai.ch/tern/internal/engine/resources"
	"go.trai.ch/zerr"
)

// Executor drives one test from its Started event to its final outcome.
type Executor struct {
	cfg       domain.Config
	resources *resources.Manager
	hooks     *hooks.Orchestrator
	sink      ports.ResultSink
	logger    ports.Logger
}

// New creates an Executor. When sink also implements ports.OutputSink, test output is routed to it.
func New(
	cfg domain.Config,
	res *resources.Manager,
	orch *hooks.Orchestrator,
	sink ports.ResultSink,
	logger ports.Logger,
) *Executor {
	return &Executor{
		cfg:       cfg,
		resources: res,
		hooks:     orch,
		sink:      sink,
		logger:    logger,
	}
}

// Run executes node until it passes, exhausts its retries, or fails in a way that is not retried.
// It publishes Started and Retrying events; the Terminal event belongs to the caller.
func (e *Executor) Run(ctx context.Context, node *domain.ExecutionNode) domain.Outcome {
	d := node.Descriptor
	if d.Skip != "" {
		return domain.Skipped(domain.ReasonDeclaredSkip, zerr.Wrap(zerr.New(d.Skip), "test declared skipped"))
	}

	start := time.Now()
	out := e.output(d)
	retries := d.EffectiveRetries(e.cfg.DefaultRetries)

	var outcome domain.Outcome
	for attempt := 1; ; attempt++ {
		node.Attempt = attempt
		kind := domain.EventStarted
		if attempt > 1 {
			kind = domain.EventRetrying
		}
		e.sink.Publish(domain.Event{Kind: kind, Test: d, Attempt: attempt, Time: time.Now()})

		var retryable bool
		outcome, retryable = e.attempt(ctx, d, attempt, out)
		outcome.Attempts = attempt

		if outcome.Status != domain.StatusFailed || !retryable || attempt > retries || ctx.Err() != nil {
			break
		}
		e.logger.Warn(fmt.Sprintf("test %s failed attempt %d of %d, retrying", d.ID, attempt, retries+1))
	}

	outcome.Duration = time.Since(start)
	return outcome
}

func (e *Executor) output(d *domain.TestDescriptor) io.Writer {
	if osink, ok := e.sink.(ports.OutputSink); ok {
		if w := osink.TestOutput(d); w != nil {
			return w
		}
	}
	return io.Discard
}

// attempt runs one attempt and reports whether a failure may be retried.
func (e *Executor) attempt(
	ctx context.Context,
	d *domain.TestDescriptor,
	attempt int,
	out io.Writer,
) (domain.Outcome, bool) {
	if ctx.Err() != nil {
		return cancelled(ctx), false
	}

	handles, instances, err := e.acquire(ctx, d)
	defer e.release(ctx, handles)
	if err != nil {
		if ctx.Err() != nil {
			return cancelled(ctx), false
		}
		return domain.Failed(domain.ReasonResourceInitialization, err), false
	}

	if err := e.hooks.EnterScopes(ctx, d); err != nil {
		if ctx.Err() != nil {
			return cancelled(ctx), false
		}
		return domain.Failed(domain.ReasonHook, err), false
	}

	if err := e.hooks.EnterTest(ctx, d, attempt); err != nil {
		errs := append([]error{err}, e.hooks.ExitTest(ctx, d, attempt)...)
		if ctx.Err() != nil {
			return cancelled(ctx), false
		}
		return domain.Failed(domain.ReasonHook, errs...), true
	}

	timedOut, bodyErr := e.body(ctx, d, attempt, out, instances)
	hookErrs := e.hooks.ExitTest(ctx, d, attempt)

	if ctx.Err() != nil {
		return cancelled(ctx), false
	}
	if bodyErr == nil && len(hookErrs) == 0 {
		return domain.Passed(attempt), false
	}

	var errs []error
	reason := domain.ReasonHook
	if bodyErr != nil {
		errs = append(errs, bodyErr)
		reason = domain.ReasonBody
		if timedOut {
			reason = domain.ReasonTimeout
		}
	}
	errs = append(errs, hookErrs...)

	retryable := !timedOut || e.cfg.RetryTimeouts
	return domain.Failed(reason, errs...), retryable
}

func (e *Executor) acquire(ctx context.Context, d *domain.TestDescriptor) ([]*resources.Handle, map[string]any, error) {
	if len(d.Resources) == 0 {
		return nil, nil, nil
	}

	handles := make([]*resources.Handle, 0, len(d.Resources))
	instances := make(map[string]any, len(d.Resources))
	for _, req := range d.Resources {
		h, err := e.resources.Acquire(ctx, req.Instance(d), req)
		if err != nil {
			return handles, nil, err
		}
		handles = append(handles, h)
		instances[req.Name] = h.Instance()
	}
	return handles, instances, nil
}

func (e *Executor) release(ctx context.Context, handles []*resources.Handle) {
	for i := len(handles) - 1; i >= 0; i-- {
		if err := e.resources.Release(ctx, handles[i]); err != nil {
			e.logger.Error(err)
		}
	}
}

// body runs the test body under its timeout. A body that ignores cancellation is abandoned.
func (e *Executor) body(
	ctx context.Context,
	d *domain.TestDescriptor,
	attempt int,
	out io.Writer,
	instances map[string]any,
) (timedOut bool, err error) {
	if d.Body == nil {
		return false, nil
	}

	timeout := d.EffectiveTimeout(e.cfg.DefaultTimeout)
	bctx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		bctx, cancel = context.WithTimeoutCause(ctx, timeout, domain.ErrTimeout)
	}
	defer cancel()

	tc := domain.NewTestContext(d, attempt, out, instances)
	result := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				result <- zerr.With(zerr.Wrap(domain.ErrTestPanicked, "test body panicked"), "panic", fmt.Sprint(r))
			}
		}()
		result <- d.Body(bctx, tc)
	}()

	returned := false
	select {
	case err = <-result:
		returned = true
	case <-bctx.Done():
	}
	if returned && err == nil {
		return false, nil
	}

	if ctx.Err() == nil && errors.Is(context.Cause(bctx), domain.ErrTimeout) {
		return true, zerr.With(
			zerr.Wrap(domain.ErrTimeout, "test body exceeded its timeout"),
			"timeout", timeout.String(),
		)
	}
	if err != nil {
		return false, zerr.With(zerr.Wrap(err, domain.ErrTestFailed.Error()), "test", d.ID.String())
	}
	return false, context.Cause(bctx)
}

func cancelled(ctx context.Context) domain.Outcome {
	return domain.Cancelled(zerr.Wrap(context.Cause(ctx), domain.ErrCancelled.Error()))
}
