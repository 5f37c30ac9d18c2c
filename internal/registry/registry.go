// Package registry tracks the live sessions of a server by id.
//
// Ids are handed out by NextID, start at 1 and are never reused within
// one Registry.  Iteration works on a snapshot taken under the read
// lock, so callbacks may block on I/O or call back into the registry.
package registry

import (
	"sort"
	"sync"

	chaterr "chatd/internal/errors"
)

// Member is anything that can be registered.
type Member interface {
	ID() uint64
}

// Registry is a concurrent id -> member map.  The zero value is not
// usable; call New.
type Registry[T Member] struct {
	mu      sync.RWMutex
	members map[uint64]T
	nextID  uint64
}

// New creates an empty registry.
func New[T Member]() *Registry[T] {
	return &Registry[T]{members: make(map[uint64]T)}
}

// NextID reserves and returns the next unused id.
func (r *Registry[T]) NextID() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	return r.nextID
}

// Add registers m.  It fails with ErrDuplicateSession if m's id is
// already present.
func (r *Registry[T]) Add(m T) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := m.ID()
	if _, ok := r.members[id]; ok {
		return chaterr.ErrDuplicateSession
	}
	r.members[id] = m
	return nil
}

// Remove deregisters id and reports whether it was present.
func (r *Registry[T]) Remove(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[id]; !ok {
		return false
	}
	delete(r.members, id)
	return true
}

// Get returns the member registered under id.
func (r *Registry[T]) Get(id uint64) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.members[id]
	return m, ok
}

// Has reports whether id is registered.
func (r *Registry[T]) Has(id uint64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[id]
	return ok
}

// Count returns the number of registered members.
func (r *Registry[T]) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Snapshot returns the registered members ordered by id.
func (r *Registry[T]) Snapshot() []T {
	r.mu.RLock()
	out := make([]T, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// ForEachExcept calls fn for every member but the one with id skip.
// fn runs outside the lock.
func (r *Registry[T]) ForEachExcept(skip uint64, fn func(T)) {
	for _, m := range r.Snapshot() {
		if m.ID() == skip {
			continue
		}
		fn(m)
	}
}
