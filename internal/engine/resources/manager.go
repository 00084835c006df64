// Package resources implements the shared resource manager.
package resources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"go.trai.ch/tern/internal/core/domain"
	"go.trai.ch/tern/internal/core/ports"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const shardCount = 32

type shard struct {
	mu      sync.Mutex
	handles map[Key]*Handle
}

// Disposer is implemented by instances that release themselves.
type Disposer interface {
	Dispose(ctx context.Context) error
}

// Manager owns every shared resource handle of one session.
type Manager struct {
	shards [shardCount]shard
	group  singleflight.Group
	logger ports.Logger
	seq    atomic.Uint64
}

// NewManager creates an empty Manager.
func NewManager(logger ports.Logger) *Manager {
	m := &Manager{logger: logger}
	for i := range m.shards {
		m.shards[i].handles = make(map[Key]*Handle)
	}
	return m
}

func (m *Manager) shardFor(k Key) *shard {
	return &m.shards[xxhash.Sum64String(k.String())%shardCount]
}

// Acquire returns the handle for req within the given scope instance, initializing it on first use.
//
// Concurrent callers for the same key share one initialization. A failed initialization is
// cached and returned to every later caller until the scope closes. On error the caller holds
// no reference.
func (m *Manager) Acquire(ctx context.Context, instance string, req domain.ResourceRequest) (*Handle, error) {
	if req.Init == nil {
		return nil, zerr.With(zerr.Wrap(domain.ErrResourceInitialization, "resource has no factory"), "resource", req.Name)
	}

	h := m.reference(instance, req)
	if err := m.initialize(ctx, h, req); err != nil {
		if relErr := m.Release(ctx, h); relErr != nil {
			m.logger.Error(relErr)
		}
		return nil, err
	}
	return h, nil
}

// reference finds or creates the handle and takes a reference on it.
func (m *Manager) reference(instance string, req domain.ResourceRequest) *Handle {
	if req.Scope == domain.ScopeNone {
		id := m.seq.Add(1)
		h := newHandle(id, unsharedKey(req, id), req)
		h.refs = 1
		h.closed = true
		return h
	}

	key := Key{Scope: req.Scope, Instance: instance, Name: req.Name}
	s := m.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.handles[key]
	if ok {
		h.mu.Lock()
		if h.state != stateDisposed {
			h.refs++
			h.mu.Unlock()
			return h
		}
		h.mu.Unlock()
	}

	h = newHandle(m.seq.Add(1), key, req)
	h.refs = 1
	s.handles[key] = h
	return h
}

func (m *Manager) initialize(ctx context.Context, h *Handle, req domain.ResourceRequest) error {
	for {
		if done, err := h.settled(); done {
			return err
		}

		ch := m.group.DoChan(h.flight(), func() (any, error) {
			m.run(ctx, h, req)
			return nil, nil
		})

		select {
		case <-ch:
		case <-ctx.Done():
			return zerr.With(zerr.Wrap(ctx.Err(), "waiting for shared resource"), "resource", h.key.String())
		}
	}
}

// run calls the factory for a pending handle and records the result.
func (m *Manager) run(ctx context.Context, h *Handle, req domain.ResourceRequest) {
	h.mu.Lock()
	pending := h.state == statePending
	h.mu.Unlock()
	if !pending {
		return
	}

	m.logger.Debug("initializing shared resource " + h.key.String())
	inst, err := create(ctx, req)

	h.mu.Lock()
	if h.state == stateDisposed {
		// Every consumer left and the scope closed while the factory ran.
		h.mu.Unlock()
		if err == nil {
			if dErr := m.dispose(ctx, h, inst); dErr != nil {
				m.logger.Error(dErr)
			}
		}
		return
	}
	if err != nil {
		h.state = stateFailed
		h.err = zerr.With(zerr.Wrap(err, domain.ErrResourceInitialization.Error()), "resource", h.key.String())
	} else {
		h.state = stateReady
		h.instance = inst
	}
	h.mu.Unlock()
}

func (h *Handle) settled() (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.state {
	case stateReady:
		return true, nil
	case stateFailed:
		return true, h.err
	case stateDisposed:
		return true, zerr.With(zerr.New("shared resource already disposed"), "resource", h.key.String())
	default:
		return false, nil
	}
}

func create(ctx context.Context, req domain.ResourceRequest) (inst any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = zerr.With(zerr.New("resource factory panicked"), "panic", fmt.Sprint(r))
		}
	}()
	return req.Init(ctx)
}

// Release drops one reference. When it was the last one and the scope has closed,
// the resource is disposed and any disposal error is returned.
func (m *Manager) Release(ctx context.Context, h *Handle) error {
	h.mu.Lock()
	if h.refs > 0 {
		h.refs--
	}
	inst, disposeNow, ready := h.retireLocked()
	h.mu.Unlock()

	if !disposeNow {
		return nil
	}
	m.forget(h)
	if !ready {
		return nil
	}
	return m.dispose(context.WithoutCancel(ctx), h, inst)
}

// retireLocked moves an unreferenced handle of a closed scope to the disposed state.
// It must be called with h.mu held.
func (h *Handle) retireLocked() (inst any, retired, ready bool) {
	if h.refs != 0 || !h.closed || h.state == stateDisposed {
		return nil, false, false
	}
	ready = h.state == stateReady
	inst = h.instance
	h.state = stateDisposed
	h.instance = nil
	return inst, true, ready
}

func (m *Manager) forget(h *Handle) {
	if h.key.Scope == domain.ScopeNone {
		return
	}
	s := m.shardFor(h.key)
	s.mu.Lock()
	if s.handles[h.key] == h {
		delete(s.handles, h.key)
	}
	s.mu.Unlock()
}

// CloseScope signals that a scope instance has ended. Unreferenced handles are disposed
// now, the others on their last release. Disposal errors are joined.
func (m *Manager) CloseScope(ctx context.Context, scope domain.ResourceScope, instance string) error {
	return m.closeMatching(ctx, func(k Key) bool {
		return k.Scope == scope && k.Instance == instance
	})
}

// Close ends every scope. It is called once at session shutdown.
func (m *Manager) Close(ctx context.Context) error {
	return m.closeMatching(ctx, func(Key) bool { return true })
}

// Live returns the number of handles that have not been disposed.
func (m *Manager) Live() int {
	n := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		n += len(s.handles)
		s.mu.Unlock()
	}
	return n
}

func (m *Manager) closeMatching(ctx context.Context, match func(Key) bool) error {
	var victims []*Handle
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		for k, h := range s.handles {
			if match(k) {
				victims = append(victims, h)
			}
		}
		s.mu.Unlock()
	}
	if len(victims) == 0 {
		return nil
	}

	ctx = context.WithoutCancel(ctx)

	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	g.SetLimit(runtime.NumCPU())

	for _, h := range victims {
		h.mu.Lock()
		h.closed = true
		inst, disposeNow, ready := h.retireLocked()
		h.mu.Unlock()

		if !disposeNow {
			continue
		}
		m.forget(h)
		if !ready {
			continue
		}

		g.Go(func() error {
			if err := m.dispose(ctx, h, inst); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

func (m *Manager) dispose(ctx context.Context, h *Handle, inst any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = zerr.With(zerr.New("resource disposal panicked"), "panic", fmt.Sprint(r))
		}
		if err != nil {
			err = zerr.With(zerr.Wrap(err, domain.ErrResourceDisposal.Error()), "resource", h.key.String())
		}
	}()

	m.logger.Debug("disposing shared resource " + h.key.String())

	switch {
	case h.dispose != nil:
		return h.dispose(ctx, inst)
	default:
		switch v := inst.(type) {
		case Disposer:
			return v.Dispose(ctx)
		case io.Closer:
			return v.Close()
		}
	}
	return nil
}
