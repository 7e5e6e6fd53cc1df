package process

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// Entry is one registry slot. It owns the Handle of a tracked child and
// carries the slot's cancellation flag.
type Entry struct {
	handle atomic.Pointer[Handle]
	kill   atomic.Bool
}

// Handle returns the tracked process, or nil while the slot is reserved and
// the child is still being spawned.
func (e *Entry) Handle() *Handle {
	return e.handle.Load()
}

// RequestKill marks the entry for cancellation. The owner of the entry
// performs the actual termination when it next checks the flag.
func (e *Entry) RequestKill() {
	e.kill.Store(true)
}

// ConsumeKill clears a pending kill request and reports whether there was one.
// Each request is consumed at most once.
func (e *Entry) ConsumeKill() bool {
	return e.kill.CompareAndSwap(true, false)
}

// Registry maps caller-assigned ids to tracked processes. The lock is held
// only for map access, never across spawning, signalling or waiting.
type Registry struct {
	name    string
	mu      sync.Mutex
	entries map[string]*Entry
}

// NewRegistry creates an empty registry. name is used in log messages.
func NewRegistry(name string) *Registry {
	return &Registry{
		name:    name,
		entries: make(map[string]*Entry),
	}
}

// Register stores h under id and returns the new entry. A previous entry
// under the same id is replaced; its owner will find it no longer held.
func (r *Registry) Register(id string, h *Handle) *Entry {
	e := &Entry{}
	e.handle.Store(h)

	r.mu.Lock()
	_, replaced := r.entries[id]
	r.entries[id] = e
	r.mu.Unlock()

	if replaced {
		log.Warn().
			Str("registry", r.name).
			Str("id", id).
			Msg("replaced tracked process with the same id")
	}
	return e
}

// Reserve claims id exclusively before its process exists. It returns false
// if the id is already present. The slot is filled with Attach, or given
// back with Remove if the spawn fails.
func (r *Registry) Reserve(id string) (*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[id]; exists {
		return nil, false
	}
	e := &Entry{}
	r.entries[id] = e
	return e, true
}

// Attach fills a reserved entry. It returns false if the entry was removed
// in the meantime, in which case the caller still owns h.
func (r *Registry) Attach(id string, e *Entry, h *Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.entries[id] != e {
		return false
	}
	e.handle.Store(h)
	return true
}

// Get returns the entry under id.
func (r *Registry) Get(id string) (*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	return e, ok
}

// Take removes and returns the entry under id. Exactly one caller can take
// a given entry, so a process is never stopped or reaped twice.
func (r *Registry) Take(id string) (*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	return e, ok
}

// Remove deletes id only if it still maps to e and reports whether it did.
// Removing an entry twice is a no-op.
func (r *Registry) Remove(id string, e *Entry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.entries[id] != e {
		return false
	}
	delete(r.entries, id)
	return true
}

// Holds reports whether id still maps to e.
func (r *Registry) Holds(id string, e *Entry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[id] == e
}

// Contains reports whether id is present.
func (r *Registry) Contains(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[id]
	return ok
}

// RequestKill flags the entry currently under id for cancellation. It
// reports whether an entry was found; a miss has no side effects.
func (r *Registry) RequestKill(id string) bool {
	e, ok := r.Get(id)
	if !ok {
		return false
	}
	e.RequestKill()
	return true
}

// ConsumeKill consumes a pending kill request on the entry under id.
func (r *Registry) ConsumeKill(id string) bool {
	e, ok := r.Get(id)
	if !ok {
		return false
	}
	return e.ConsumeKill()
}

// IDs returns a sorted snapshot of the registered ids.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	sort.Strings(ids)
	return ids
}

// Len returns the number of registered ids.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
