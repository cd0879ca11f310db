// Package registry implements the broker's session registry: the two
// string-keyed, unique-valued maps of spec.md §4.C (client_id -> Client,
// closure_id -> Closure). Both are instances of the same generic type,
// which is the natural Go reformulation of the source's two hand-rolled
// hashtable instantiations.
package registry

import "sync"

// Destroyable is implemented by anything a Registry can own: Put (on
// displacement) and Delete each invoke Destroy exactly once on the
// value they remove. Destroy covers only what must happen
// unconditionally regardless of caller (close the client's socket,
// release the closure's pending payload buffer) — a caller that needs
// something conditional, such as the client destructor's subscriber
// purge, must run it itself before calling Put or Delete, since
// Destroy has no way to know which caller invoked it.
type Destroyable interface {
	Destroy()
}

// Registry is a string-keyed map of unique Destroyable values.
type Registry[V Destroyable] struct {
	mu      sync.RWMutex
	entries map[string]V
}

// New returns an empty Registry.
func New[V Destroyable]() *Registry[V] {
	return &Registry[V]{entries: make(map[string]V)}
}

// Put stores value under key, displacing (and destroying) any prior
// value at that key — the CONNECT handler relies on this to implement
// "a second CONNECT with the same client_id displaces the prior
// session" (spec.md §4.E). Displacement must purge the prior client's
// subscriber entries unconditionally, which is stronger than what
// Destroy does on its own; the CONNECT handler runs that purge itself
// before calling Put, rather than leaving it to Destroy.
func (r *Registry[V]) Put(key string, value V) {
	r.mu.Lock()
	prev, existed := r.entries[key]
	r.entries[key] = value
	r.mu.Unlock()
	if existed {
		prev.Destroy()
	}
}

// Get returns the value stored at key, if any.
func (r *Registry[V]) Get(key string) (V, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.entries[key]
	return v, ok
}

// Delete removes the value stored at key and invokes its Destroy
// method. It is a no-op if key is absent.
func (r *Registry[V]) Delete(key string) {
	r.mu.Lock()
	v, ok := r.entries[key]
	if ok {
		delete(r.entries, key)
	}
	r.mu.Unlock()
	if ok {
		v.Destroy()
	}
}

// Len reports the number of entries currently stored.
func (r *Registry[V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Each calls fn once per entry, over a point-in-time snapshot of the
// registry (safe to call concurrently with Put/Delete, but fn may run
// against entries that have since been removed).
func (r *Registry[V]) Each(fn func(key string, value V)) {
	r.mu.RLock()
	snapshot := make(map[string]V, len(r.entries))
	for k, v := range r.entries {
		snapshot[k] = v
	}
	r.mu.RUnlock()

	for k, v := range snapshot {
		fn(k, v)
	}
}
