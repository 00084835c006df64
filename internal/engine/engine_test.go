package engine_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/tern/internal/core/domain"
	"go.trai.ch/tern/internal/core/ports/mocks"
	"go.trai.ch/tern/internal/engine"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"
)

type recorder struct {
	mu      sync.Mutex
	events  []domain.Event
	output  map[string]*bytes.Buffer
	flushes int
}

func newRecorder() *recorder {
	return &recorder{output: make(map[string]*bytes.Buffer)}
}

func (r *recorder) Publish(ev domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) TestOutput(test *domain.TestDescriptor) io.Writer {
	r.mu.Lock()
	defer r.mu.Unlock()
	buf := &bytes.Buffer{}
	r.output[test.ID.String()] = buf
	return buf
}

func (r *recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushes++
	return nil
}

func (r *recorder) kinds(id string) []domain.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.EventKind
	for _, ev := range r.events {
		if ev.ID() == id {
			out = append(out, ev.Kind)
		}
	}
	return out
}

type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(s string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, s)
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

func (j *journal) hook(name string) domain.Hook {
	return domain.Hook{Name: name, Run: func(context.Context, domain.HookContext) error {
		j.add(name)
		return nil
	}}
}

func quietLogger(t *testing.T) *mocks.MockLogger {
	t.Helper()
	l := mocks.NewMockLogger(gomock.NewController(t))
	l.EXPECT().Debug(gomock.Any()).AnyTimes()
	l.EXPECT().Info(gomock.Any()).AnyTimes()
	l.EXPECT().Warn(gomock.Any()).AnyTimes()
	l.EXPECT().Error(gomock.Any()).AnyTimes()
	return l
}

func pass(context.Context, *domain.TestContext) error { return nil }

func fail(msg string) domain.Body {
	return func(context.Context, *domain.TestContext) error { return errors.New(msg) }
}

func suite(t *testing.T, cfg domain.Config, hooks *domain.HookBindings, tests ...*domain.TestDescriptor) *domain.Suite {
	t.Helper()
	c := domain.NewCatalog()
	for _, d := range tests {
		if d.Unit.String() == "" {
			d.Unit = domain.NewInternedString("U")
		}
		if d.Module.String() == "" {
			d.Module = domain.NewInternedString("M")
		}
		require.NoError(t, c.Add(d))
	}
	return &domain.Suite{Catalog: c, Hooks: hooks, Config: cfg}
}

func tc(id string, body domain.Body, deps ...domain.DependencyRef) *domain.TestDescriptor {
	return &domain.TestDescriptor{ID: domain.NewInternedString(id), Body: body, Dependencies: deps}
}

func TestEngine_FailedDependency(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := newRecorder()
	e := engine.New(quietLogger(t), sink)
	report, err := e.Run(t.Context(), suite(t, domain.Config{Workers: 4}, nil,
		tc("A", fail("A broke")),
		tc("B", pass, domain.DependsOn("A")),
		tc("C", pass),
	))
	require.NoError(t, err)

	a, _ := report.Outcome("A")
	b, _ := report.Outcome("B")
	c, _ := report.Outcome("C")
	assert.Equal(t, domain.StatusFailed, a.Status)
	assert.Equal(t, domain.StatusSkipped, b.Status)
	assert.Equal(t, domain.ReasonDependencyFailed, b.Reason)
	assert.Equal(t, domain.StatusPassed, c.Status)
	assert.True(t, report.Failed())
	assert.Equal(t, map[domain.Status]int{
		domain.StatusFailed:  1,
		domain.StatusSkipped: 1,
		domain.StatusPassed:  1,
	}, report.Counts())

	assert.Equal(t, []domain.EventKind{domain.EventDiscovered, domain.EventStarted, domain.EventTerminal}, sink.kinds("A"))
	assert.Equal(t, []domain.EventKind{domain.EventDiscovered, domain.EventTerminal}, sink.kinds("B"))
	assert.Equal(t, 1, sink.flushes)
	assert.NotEmpty(t, report.SessionID)
	assert.False(t, report.Finished.Before(report.Started))
}

func TestEngine_ExcludedTestsFailWithoutRunning(t *testing.T) {
	defer goleak.VerifyNone(t)

	var ran atomic.Int32
	body := func(context.Context, *domain.TestContext) error {
		ran.Add(1)
		return nil
	}

	sink := newRecorder()
	report, err := engine.New(quietLogger(t), sink).Run(t.Context(), suite(t, domain.Config{}, nil,
		tc("A", body, domain.DependsOn("B")),
		tc("B", body, domain.DependsOn("A")),
		tc("C", body, domain.DependsOn("ghost")),
		tc("D", body),
	))
	require.NoError(t, err)

	for id, reason := range map[string]domain.Reason{
		"A": domain.ReasonCyclicDependency,
		"B": domain.ReasonCyclicDependency,
		"C": domain.ReasonUnresolvedDependency,
	} {
		o, ok := report.Outcome(id)
		require.True(t, ok)
		assert.Equal(t, domain.StatusFailed, o.Status, id)
		assert.Equal(t, reason, o.Reason, id)
		assert.Equal(t, []domain.EventKind{domain.EventDiscovered, domain.EventTerminal}, sink.kinds(id))
	}
	assert.Equal(t, int32(1), ran.Load())
}

// inOrder asserts that entries appear in list in the given order.
func inOrder(t *testing.T, list []string, entries ...string) {
	t.Helper()
	last := -1
	for _, e := range entries {
		i := slices.Index(list, e)
		if !assert.GreaterOrEqual(t, i, 0, "%s missing from %v", e, list) {
			return
		}
		assert.Greater(t, i, last, "%s out of order in %v", e, list)
		last = i
	}
}

func TestEngine_ScopeLifecycle(t *testing.T) {
	defer goleak.VerifyNone(t)

	var j journal
	b := domain.NewHookBindings()
	b.Session = domain.HookSet{Entry: []domain.Hook{j.hook("session-in")}, Exit: []domain.Hook{j.hook("session-out")}}
	b.Modules["M"] = domain.HookSet{Entry: []domain.Hook{j.hook("module-in")}, Exit: []domain.Hook{j.hook("module-out")}}
	b.Units["U1"] = domain.HookSet{Entry: []domain.Hook{j.hook("u1-in")}, Exit: []domain.Hook{j.hook("u1-out")}}
	b.Units["U2"] = domain.HookSet{Entry: []domain.Hook{j.hook("u2-in")}, Exit: []domain.Hook{j.hook("u2-out")}}

	var inits, disposes atomic.Int32
	db := domain.ResourceRequest{
		Name:  "db",
		Scope: domain.ScopeUnit,
		Init: func(context.Context) (any, error) {
			inits.Add(1)
			return "conn", nil
		},
		Dispose: func(context.Context, any) error {
			disposes.Add(1)
			j.add("db-disposed")
			return nil
		},
	}

	mk := func(id, unit string, deps ...domain.DependencyRef) *domain.TestDescriptor {
		d := tc(id, func(context.Context, *domain.TestContext) error {
			j.add(id)
			return nil
		}, deps...)
		d.Unit = domain.NewInternedString(unit)
		d.Resources = []domain.ResourceRequest{db}
		return d
	}

	_, err := engine.New(quietLogger(t)).Run(t.Context(), suite(t, domain.Config{Workers: 1}, b,
		mk("a", "U1"),
		mk("b", "U1", domain.DependsOn("a")),
		mk("c", "U2", domain.DependsOn("b")),
	))
	require.NoError(t, err)

	got := j.list()
	assert.ElementsMatch(t, []string{
		"session-in", "module-in", "u1-in", "u2-in",
		"a", "b", "c",
		"u1-out", "u2-out", "db-disposed", "db-disposed",
		"module-out", "session-out",
	}, got)
	assert.Equal(t, []string{"session-in", "module-in", "u1-in", "a", "b"}, got[:5])
	inOrder(t, got, "b", "u1-out", "module-out", "session-out")
	inOrder(t, got, "b", "u2-in", "c", "u2-out", "module-out")
	assert.Equal(t, "session-out", got[len(got)-1])
	assert.Equal(t, int32(2), inits.Load())
	assert.Equal(t, int32(2), disposes.Load())
}

func TestEngine_FailFast(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		var ran atomic.Int32
		slow := func(ctx context.Context, _ *domain.TestContext) error {
			ran.Add(1)
			select {
			case <-time.After(time.Second):
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		report, err := engine.New(quietLogger(t)).Run(t.Context(), suite(t, domain.Config{Workers: 1, FailFast: true}, nil,
			tc("a", fail("boom")),
			tc("b", slow),
			tc("c", slow),
		))
		require.NoError(t, err)

		a, _ := report.Outcome("a")
		assert.Equal(t, domain.StatusFailed, a.Status)
		for _, id := range []string{"b", "c"} {
			o, _ := report.Outcome(id)
			assert.Equal(t, domain.StatusCancelled, o.Status, id)
			require.ErrorContains(t, o.Err(), domain.ErrFailFast.Error())
		}
		assert.Zero(t, ran.Load())
	})
}

func TestEngine_ParentCancellation(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		started := make(chan struct{})
		var once sync.Once

		body := func(ctx context.Context, _ *domain.TestContext) error {
			once.Do(func() { close(started) })
			<-ctx.Done()
			return ctx.Err()
		}

		go func() {
			<-started
			cancel()
		}()

		report, err := engine.New(quietLogger(t)).Run(ctx, suite(t, domain.Config{Workers: 1}, nil,
			tc("a", body),
			tc("b", body),
		))
		require.ErrorContains(t, err, domain.ErrCancelled.Error())
		require.NotNil(t, report)

		for _, res := range report.Results() {
			assert.Equal(t, domain.StatusCancelled, res.Outcome.Status, res.Test.ID.String())
		}
	})
}

func TestEngine_ScopeErrorsDoNotChangeOutcomes(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := domain.NewHookBindings()
	b.Units["U"] = domain.HookSet{
		Entry: []domain.Hook{{Name: "noop", Run: func(context.Context, domain.HookContext) error { return nil }}},
		Exit:  []domain.Hook{{Name: "teardown", Run: func(context.Context, domain.HookContext) error { return errors.New("teardown broke") }}},
	}
	d := tc("a", pass)
	d.Resources = []domain.ResourceRequest{{
		Name:    "cache",
		Scope:   domain.ScopeGlobal,
		Init:    func(context.Context) (any, error) { return 1, nil },
		Dispose: func(context.Context, any) error { return errors.New("dispose broke") },
	}}

	report, err := engine.New(quietLogger(t)).Run(t.Context(), suite(t, domain.Config{}, b, d))
	require.NoError(t, err)

	o, _ := report.Outcome("a")
	assert.Equal(t, domain.StatusPassed, o.Status)
	assert.False(t, report.Failed())

	errs := report.ScopeErrors()
	require.Len(t, errs, 2)
	require.ErrorContains(t, errs[0], "teardown broke")
	require.ErrorContains(t, errs[1], "dispose broke")
}

func TestEngine_OutputAndExtraSinks(t *testing.T) {
	defer goleak.VerifyNone(t)

	first, second := newRecorder(), newRecorder()
	e := engine.New(quietLogger(t), first)

	report, err := e.Run(t.Context(), suite(t, domain.Config{}, nil,
		tc("chatty", func(_ context.Context, tc *domain.TestContext) error {
			_, err := io.WriteString(tc.Output, "line\n")
			return err
		}),
	), second)
	require.NoError(t, err)

	o, _ := report.Outcome("chatty")
	assert.Equal(t, domain.StatusPassed, o.Status)
	assert.Equal(t, "line\n", first.output["chatty"].String())
	assert.Equal(t, "line\n", second.output["chatty"].String())

	records := report.Records()
	require.Len(t, records, 1)
	assert.True(t, records[0].Passed())
}

func TestEngine_RejectsEmptySuite(t *testing.T) {
	_, err := engine.New(quietLogger(t)).Run(t.Context(), nil)
	require.ErrorContains(t, err, domain.ErrInvalidDescriptor.Error())
}

func TestEngine_SlowScopeExitDoesNotStallDispatch(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		var exited atomic.Bool
		b := domain.NewHookBindings()
		b.Units["U"] = domain.HookSet{
			Entry: []domain.Hook{{Name: "noop", Run: func(context.Context, domain.HookContext) error { return nil }}},
			Exit: []domain.Hook{{Name: "slow-teardown", Run: func(ctx context.Context, _ domain.HookContext) error {
				select {
				case <-time.After(10 * time.Second):
					exited.Store(true)
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			}}},
		}

		start := time.Now()
		var cStarted time.Time
		c := tc("c", func(context.Context, *domain.TestContext) error {
			cStarted = time.Now()
			return nil
		}, domain.DependencyRef{Test: domain.NewInternedString("x"), ProceedOnFailure: true})
		c.Unit = domain.NewInternedString("V")

		report, err := engine.New(quietLogger(t)).Run(t.Context(), suite(t, domain.Config{Workers: 2, HookTimeout: time.Minute}, b,
			tc("x", fail("x broke")),
			tc("b", pass, domain.DependsOn("x")),
			c,
		))
		require.NoError(t, err)

		o, _ := report.Outcome("c")
		assert.Equal(t, domain.StatusPassed, o.Status)
		assert.Less(t, cStarted.Sub(start), 10*time.Second)
		assert.True(t, exited.Load())
		assert.GreaterOrEqual(t, time.Since(start), 10*time.Second)
		assert.Empty(t, report.ScopeErrors())
	})
}

func TestEngine_CancellationReleasesResourcesAndRunsExitHooks(t *testing.T) {
	defer goleak.VerifyNone(t)

	var exits, inits, disposes atomic.Int32
	b := domain.NewHookBindings()
	b.Units["U"] = domain.HookSet{
		Entry: []domain.Hook{{Name: "noop", Run: func(context.Context, domain.HookContext) error { return nil }}},
		Exit: []domain.Hook{{Name: "teardown", Run: func(context.Context, domain.HookContext) error {
			exits.Add(1)
			return nil
		}}},
	}
	db := domain.ResourceRequest{
		Name:  "db",
		Scope: domain.ScopeUnit,
		Init: func(context.Context) (any, error) {
			inits.Add(1)
			return "conn", nil
		},
		Dispose: func(context.Context, any) error {
			disposes.Add(1)
			return nil
		},
	}

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	var running atomic.Int32
	body := func(ctx context.Context, _ *domain.TestContext) error {
		if running.Add(1) == 2 {
			cancel()
		}
		<-ctx.Done()
		return ctx.Err()
	}

	var tests []*domain.TestDescriptor
	for _, id := range []string{"a", "b", "c", "d"} {
		d := tc(id, body)
		d.Resources = []domain.ResourceRequest{db}
		tests = append(tests, d)
	}

	report, err := engine.New(quietLogger(t)).Run(ctx, suite(t, domain.Config{Workers: 2}, b, tests...))
	require.ErrorContains(t, err, domain.ErrCancelled.Error())
	require.NotNil(t, report)

	for _, res := range report.Results() {
		assert.Equal(t, domain.StatusCancelled, res.Outcome.Status, res.Test.ID.String())
	}
	assert.Equal(t, int32(2), running.Load())
	assert.Equal(t, int32(1), inits.Load())
	assert.Equal(t, int32(1), disposes.Load())
	assert.Equal(t, int32(1), exits.Load())
}
