// Package registry provides the default thread-safe Object Registry: an
// in-memory map from local-object cookie to interfaces.LocalObject and
// from remote handle to interfaces.RemoteObject.
package registry

import (
	"sync"

	"github.com/ngrantham/go-binder/internal/interfaces"
)

// Registry is the default interfaces.ObjectRegistry implementation.
type Registry struct {
	mu      sync.RWMutex
	locals  map[uint64]interfaces.LocalObject
	remotes map[uint32]interfaces.RemoteObject
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		locals:  make(map[uint64]interfaces.LocalObject),
		remotes: make(map[uint32]interfaces.RemoteObject),
	}
}

// GetLocal resolves cookie to a registered LocalObject, or nil if none.
func (r *Registry) GetLocal(cookie uint64) interfaces.LocalObject {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.locals[cookie]
}

// GetRemote resolves handle to a registered RemoteObject, or nil if none.
func (r *Registry) GetRemote(handle uint32) interfaces.RemoteObject {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.remotes[handle]
}

// RegisterLocal associates cookie with obj, the identity the kernel will
// use in every BR_INCREFS/BR_ACQUIRE/BR_TRANSACTION that targets it.
func (r *Registry) RegisterLocal(cookie uint64, obj interfaces.LocalObject) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locals[cookie] = obj
}

// UnregisterLocal removes cookie, typically once HandleRelease has fired.
func (r *Registry) UnregisterLocal(cookie uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.locals, cookie)
}

// RegisterRemote associates handle with a death-notification proxy so
// GetRemote can resolve it by handle. Delivery of BR_DEAD_BINDER does not
// go through this map; the Command Loop routes it by death cookie.
func (r *Registry) RegisterRemote(handle uint32, obj interfaces.RemoteObject) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remotes[handle] = obj
}

// UnregisterRemote removes handle, typically once its death notification
// has been cleared or delivered.
func (r *Registry) UnregisterRemote(handle uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.remotes, handle)
}

var _ interfaces.ObjectRegistry = (*Registry)(nil)
