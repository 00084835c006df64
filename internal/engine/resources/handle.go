package resources

import (
	"strconv"
	"sync"

	"go.trai.ch/tern/internal/core/domain"
)

// Key identifies a shared resource instance.
type Key struct {
	Scope    domain.ResourceScope
	Instance string
	Name     string
}

// String renders the key as scope/instance/name.
func (k Key) String() string {
	return k.Scope.String() + "/" + k.Instance + "/" + k.Name
}

type state uint8

const (
	statePending state = iota
	stateReady
	stateFailed
	stateDisposed
)

// Handle is a reference-counted shared resource.
// Consumers only read it; every transition happens inside the Manager.
type Handle struct {
	// id is unique per Manager and names the handle's initialization flight.
	id      uint64
	key     Key
	dispose domain.ResourceDisposer

	mu       sync.Mutex
	state    state
	refs     int
	closed   bool
	instance any
	err      error
}

func newHandle(id uint64, key Key, req domain.ResourceRequest) *Handle {
	return &Handle{id: id, key: key, dispose: req.Dispose}
}

func (h *Handle) flight() string {
	return strconv.FormatUint(h.id, 10)
}

// Key returns the handle's key.
func (h *Handle) Key() Key {
	return h.key
}

// Instance returns the initialized instance, or nil before initialization succeeded.
func (h *Handle) Instance() any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.instance
}

// Refs returns the current reference count.
func (h *Handle) Refs() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.refs
}

// unshared handles get a unique instance id so that they never collide in logs.
func unsharedKey(req domain.ResourceRequest, seq uint64) Key {
	return Key{Scope: domain.ScopeNone, Instance: "#" + strconv.FormatUint(seq, 10), Name: req.Name}
}
