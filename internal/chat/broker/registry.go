package broker

import "sync"

// Registry - concurrency safe set of connected handles.
type Registry struct {
	mu      sync.RWMutex
	members map[*Handle]struct{}
}

// NewRegistry - builds empty Registry.
func NewRegistry() *Registry {
	return &Registry{members: make(map[*Handle]struct{})}
}

// Len - returns number of registered handles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Add - inserts handle, adding a present handle is no-op.
func (r *Registry) Add(h *Handle) {
	if h == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[h] = struct{}{}
}

// Remove - removes handle and reports whether it was registered.
func (r *Registry) Remove(h *Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[h]; !ok {
		return false
	}
	delete(r.members, h)
	return true
}

// Contains - reports whether handle is registered.
func (r *Registry) Contains(h *Handle) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[h]
	return ok
}

// SnapshotExcluding - makes copy of registered handles except the given one (may be nil).
// The copy is safe to iterate without any lock.
func (r *Registry) SnapshotExcluding(exclude *Handle) []*Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snapshot := make([]*Handle, 0, len(r.members))
	for h := range r.members {
		if h != exclude {
			snapshot = append(snapshot, h)
		}
	}
	return snapshot
}

// Snapshot - makes copy of all registered handles.
func (r *Registry) Snapshot() []*Handle {
	return r.SnapshotExcluding(nil)
}
