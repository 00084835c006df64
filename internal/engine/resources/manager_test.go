package resources_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/tern/internal/core/domain"
	"go.trai.ch/tern/internal/core/ports/mocks"
	"go.trai.ch/tern/internal/engine/resources"
	"go.uber.org/mock/gomock"
)

func quietLogger(t *testing.T) *mocks.MockLogger {
	t.Helper()
	ctrl := gomock.NewController(t)
	l := mocks.NewMockLogger(ctrl)
	l.EXPECT().Debug(gomock.Any()).AnyTimes()
	l.EXPECT().Info(gomock.Any()).AnyTimes()
	l.EXPECT().Warn(gomock.Any()).AnyTimes()
	l.EXPECT().Error(gomock.Any()).AnyTimes()
	return l
}

type counter struct {
	inits    atomic.Int32
	disposes atomic.Int32
}

func (c *counter) request(name string, scope domain.ResourceScope) domain.ResourceRequest {
	return domain.ResourceRequest{
		Name:  name,
		Scope: scope,
		Init: func(ctx context.Context) (any, error) {
			c.inits.Add(1)
			select {
			case <-time.After(10 * time.Millisecond):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return name + "-instance", nil
		},
		Dispose: func(context.Context, any) error {
			c.disposes.Add(1)
			return nil
		},
	}
}

func TestManager_ConcurrentAcquireInitializesOnce(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		m := resources.NewManager(quietLogger(t))
		var c counter
		req := c.request("db", domain.ScopeModule)

		const consumers = 16
		handles := make([]*resources.Handle, consumers)
		var wg sync.WaitGroup
		for i := range consumers {
			wg.Go(func() {
				h, err := m.Acquire(t.Context(), "M", req)
				assert.NoError(t, err)
				handles[i] = h
			})
		}
		wg.Wait()

		assert.Equal(t, int32(1), c.inits.Load())
		for _, h := range handles {
			require.NotNil(t, h)
			assert.Same(t, handles[0], h)
			assert.Equal(t, "db-instance", h.Instance())
		}
		assert.Equal(t, consumers, handles[0].Refs())
	})
}

func TestManager_DisposesAfterLastReleaseOfClosedScope(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		m := resources.NewManager(quietLogger(t))
		var c counter
		req := c.request("db", domain.ScopeUnit)

		a, err := m.Acquire(t.Context(), "U", req)
		require.NoError(t, err)
		b, err := m.Acquire(t.Context(), "U", req)
		require.NoError(t, err)

		require.NoError(t, m.Release(t.Context(), a))
		require.NoError(t, m.CloseScope(t.Context(), domain.ScopeUnit, "U"))
		assert.Equal(t, int32(0), c.disposes.Load(), "still referenced")

		require.NoError(t, m.Release(t.Context(), b))
		assert.Equal(t, int32(1), c.disposes.Load())
		assert.Equal(t, 0, m.Live())

		// A second close is a no-op.
		require.NoError(t, m.CloseScope(t.Context(), domain.ScopeUnit, "U"))
		assert.Equal(t, int32(1), c.disposes.Load())
	})
}

func TestManager_ScopeInstancesAreIndependent(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		m := resources.NewManager(quietLogger(t))
		var c counter
		req := c.request("db", domain.ScopeModule)

		a, err := m.Acquire(t.Context(), "M1", req)
		require.NoError(t, err)
		b, err := m.Acquire(t.Context(), "M2", req)
		require.NoError(t, err)
		assert.NotSame(t, a, b)
		assert.Equal(t, int32(2), c.inits.Load())

		require.NoError(t, m.Release(t.Context(), a))
		require.NoError(t, m.CloseScope(t.Context(), domain.ScopeModule, "M1"))
		assert.Equal(t, int32(1), c.disposes.Load())
		assert.Equal(t, 1, m.Live())

		require.NoError(t, m.Release(t.Context(), b))
		require.NoError(t, m.Close(t.Context()))
		assert.Equal(t, int32(2), c.disposes.Load())
	})
}

func TestManager_FailureIsCachedForEveryConsumer(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		m := resources.NewManager(quietLogger(t))
		var inits atomic.Int32
		req := domain.ResourceRequest{
			Name:  "broker",
			Scope: domain.ScopeGlobal,
			Init: func(context.Context) (any, error) {
				inits.Add(1)
				time.Sleep(time.Millisecond)
				return nil, errors.New("connection refused")
			},
		}

		var wg sync.WaitGroup
		errs := make([]error, 5)
		for i := range 5 {
			wg.Go(func() {
				h, err := m.Acquire(t.Context(), "", req)
				assert.Nil(t, h)
				errs[i] = err
			})
		}
		wg.Wait()

		_, err := m.Acquire(t.Context(), "", req)
		errs = append(errs, err)

		assert.Equal(t, int32(1), inits.Load())
		for _, err := range errs {
			require.ErrorContains(t, err, domain.ErrResourceInitialization.Error())
			require.ErrorContains(t, err, "connection refused")
		}
	})
}

func TestManager_FactoryPanicIsAFailure(t *testing.T) {
	m := resources.NewManager(quietLogger(t))
	_, err := m.Acquire(t.Context(), "", domain.ResourceRequest{
		Name:  "boom",
		Scope: domain.ScopeGlobal,
		Init:  func(context.Context) (any, error) { panic("kaput") },
	})
	require.ErrorContains(t, err, domain.ErrResourceInitialization.Error())
	require.ErrorContains(t, err, "resource factory panicked")
}

func TestManager_DisposalErrorsAreIsolated(t *testing.T) {
	m := resources.NewManager(quietLogger(t))
	var disposed atomic.Int32

	failing := domain.ResourceRequest{
		Name:    "a",
		Scope:   domain.ScopeGlobal,
		Init:    func(context.Context) (any, error) { return 1, nil },
		Dispose: func(context.Context, any) error { return errors.New("stuck") },
	}
	healthy := domain.ResourceRequest{
		Name:  "b",
		Scope: domain.ScopeGlobal,
		Init:  func(context.Context) (any, error) { return 2, nil },
		Dispose: func(context.Context, any) error {
			disposed.Add(1)
			return nil
		},
	}

	for _, req := range []domain.ResourceRequest{failing, healthy} {
		h, err := m.Acquire(t.Context(), "", req)
		require.NoError(t, err)
		require.NoError(t, m.Release(t.Context(), h))
	}

	err := m.Close(t.Context())
	require.ErrorContains(t, err, domain.ErrResourceDisposal.Error())
	require.ErrorContains(t, err, "stuck")
	assert.Equal(t, int32(1), disposed.Load())
	assert.Equal(t, 0, m.Live())
}

func TestManager_UnsharedInstances(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		m := resources.NewManager(quietLogger(t))
		var c counter
		req := c.request("tmp", domain.ScopeNone)

		a, err := m.Acquire(t.Context(), "", req)
		require.NoError(t, err)
		b, err := m.Acquire(t.Context(), "", req)
		require.NoError(t, err)

		assert.NotSame(t, a, b)
		assert.NotEqual(t, a.Key(), b.Key())
		assert.Equal(t, int32(2), c.inits.Load())
		assert.Equal(t, 0, m.Live())

		require.NoError(t, m.Release(t.Context(), a))
		assert.Equal(t, int32(1), c.disposes.Load())
		require.NoError(t, m.Release(t.Context(), b))
		assert.Equal(t, int32(2), c.disposes.Load())
	})
}

type closer struct{ closed atomic.Bool }

func (c *closer) Close() error {
	c.closed.Store(true)
	return nil
}

func TestManager_FallsBackToCloser(t *testing.T) {
	m := resources.NewManager(quietLogger(t))
	inst := &closer{}
	h, err := m.Acquire(t.Context(), "k", domain.ResourceRequest{
		Name:  "file",
		Scope: domain.ScopeKeyed,
		Key:   "k",
		Init:  func(context.Context) (any, error) { return inst, nil },
	})
	require.NoError(t, err)
	assert.Equal(t, "keyed/k/file", h.Key().String())

	require.NoError(t, m.Release(t.Context(), h))
	require.NoError(t, m.CloseScope(t.Context(), domain.ScopeKeyed, "k"))
	assert.True(t, inst.closed.Load())
}

func TestManager_WaiterHonoursContext(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		m := resources.NewManager(quietLogger(t))
		release := make(chan struct{})
		var c counter
		req := domain.ResourceRequest{
			Name:  "slow",
			Scope: domain.ScopeGlobal,
			Init: func(context.Context) (any, error) {
				<-release
				return "ready", nil
			},
			Dispose: func(context.Context, any) error {
				c.disposes.Add(1)
				return nil
			},
		}

		first := make(chan error, 1)
		go func() {
			h, err := m.Acquire(t.Context(), "", req)
			if err == nil {
				err = m.Release(t.Context(), h)
			}
			first <- err
		}()
		synctest.Wait()

		ctx, cancel := context.WithCancel(t.Context())
		waiter := make(chan error, 1)
		go func() {
			_, err := m.Acquire(ctx, "", req)
			waiter <- err
		}()
		synctest.Wait()

		cancel()
		require.ErrorContains(t, <-waiter, context.Canceled.Error())

		close(release)
		require.NoError(t, <-first)
		require.NoError(t, m.Close(t.Context()))
		assert.Equal(t, int32(1), c.disposes.Load())
	})
}

func TestManager_MissingFactory(t *testing.T) {
	m := resources.NewManager(quietLogger(t))
	_, err := m.Acquire(t.Context(), "", domain.ResourceRequest{Name: "x", Scope: domain.ScopeGlobal})
	require.ErrorContains(t, err, domain.ErrResourceInitialization.Error())
}

func TestManager_KeysWithSlashesDoNotShareInitialization(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		m := resources.NewManager(quietLogger(t))
		var c counter
		first := c.request("db", domain.ScopeUnit)
		second := c.request("users/db", domain.ScopeUnit)

		var a, b *resources.Handle
		var errA, errB error
		var wg sync.WaitGroup
		wg.Go(func() { a, errA = m.Acquire(t.Context(), "api/users", first) })
		wg.Go(func() { b, errB = m.Acquire(t.Context(), "api", second) })
		wg.Wait()

		require.NoError(t, errA)
		require.NoError(t, errB)
		assert.Equal(t, int32(2), c.inits.Load())
		assert.Equal(t, "db-instance", a.Instance())
		assert.Equal(t, "users/db-instance", b.Instance())
		assert.NotSame(t, a, b)
	})
}
