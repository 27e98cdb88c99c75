// Package keyedmap provides a concurrent map with per-key exclusive access.
//
// Each key owns its own RWMutex, so writers on distinct keys never wait on each other and
// a reader holding one entry does not block writers of another. The key index itself is an
// xsync.MapOf, which shards its buckets internally.
//
// Callers never receive a reference that outlives the lock guarding it: View and Update
// run a callback while the entry is locked and release the lock when it returns.
package keyedmap

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

type entry[V any] struct {
	mu    sync.RWMutex
	value V
	// live is false until the first write and after the entry has been deleted.
	live bool
	dead bool
}

// Map is a concurrent map from K to V with per-key locking.
// The zero value is not usable; create maps with New.
type Map[K comparable, V any] struct {
	index *xsync.MapOf[K, *entry[V]]
}

// New returns an empty map.
func New[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{index: xsync.NewMapOf[K, *entry[V]]()}
}

// Load returns a shallow copy of the value stored under key.
// Values holding references (pointers, maps, slices) must be copied by the caller
// inside View if the copy needs to be consistent.
func (m *Map[K, V]) Load(key K) (V, bool) {
	var (
		out V
		ok  bool
	)
	m.View(key, func(v V) {
		out = v
		ok = true
	})
	return out, ok
}

// Has reports whether key is currently present.
func (m *Map[K, V]) Has(key K) bool {
	return m.View(key, func(V) {})
}

// View runs fn with the value under a read lock. It reports false, without calling fn,
// when the key is absent.
func (m *Map[K, V]) View(key K, fn func(v V)) bool {
	e, ok := m.index.Load(key)
	if !ok {
		return false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.live || e.dead {
		return false
	}
	fn(e.value)
	return true
}

// Update runs fn with exclusive access to an existing value. It reports false, without
// calling fn, when the key is absent.
func (m *Map[K, V]) Update(key K, fn func(v *V)) bool {
	for {
		e, ok := m.index.Load(key)
		if !ok {
			return false
		}
		e.mu.Lock()
		if e.dead {
			// Deleted between lookup and lock; the index may hold a newer entry.
			e.mu.Unlock()
			continue
		}
		if !e.live {
			e.mu.Unlock()
			return false
		}
		fn(&e.value)
		e.mu.Unlock()
		return true
	}
}

// Upsert runs fn with exclusive access to the value under key, creating the entry first
// when it does not exist. loaded reports whether a value was already present; when it is
// false, *v holds the zero value.
func (m *Map[K, V]) Upsert(key K, fn func(v *V, loaded bool)) {
	for {
		e, _ := m.index.LoadOrCompute(key, func() *entry[V] { return &entry[V]{} })
		e.mu.Lock()
		if e.dead {
			e.mu.Unlock()
			continue
		}
		fn(&e.value, e.live)
		e.live = true
		e.mu.Unlock()
		return
	}
}

// Swap stores value under key and returns the value it replaced.
func (m *Map[K, V]) Swap(key K, value V) (old V, loaded bool) {
	m.Upsert(key, func(v *V, ok bool) {
		if ok {
			old = *v
			loaded = true
		}
		*v = value
	})
	return old, loaded
}

// Store sets the value under key.
func (m *Map[K, V]) Store(key K, value V) {
	m.Upsert(key, func(v *V, _ bool) { *v = value })
}

// Delete removes key and returns the value it held.
func (m *Map[K, V]) Delete(key K) (old V, loaded bool) {
	e, ok := m.index.LoadAndDelete(key)
	if !ok {
		return old, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dead = true
	if !e.live {
		return old, false
	}
	old = e.value
	var zero V
	e.value = zero
	return old, true
}

// Range calls fn for each present key with the value under a read lock. Iteration stops
// when fn returns false. Range does not observe a consistent snapshot across keys.
func (m *Map[K, V]) Range(fn func(key K, v V) bool) {
	m.index.Range(func(key K, e *entry[V]) bool {
		e.mu.RLock()
		if !e.live || e.dead {
			e.mu.RUnlock()
			return true
		}
		cont := fn(key, e.value)
		e.mu.RUnlock()
		return cont
	})
}

// Keys returns the keys currently present, in no particular order.
func (m *Map[K, V]) Keys() []K {
	keys := make([]K, 0, m.index.Size())
	m.Range(func(key K, _ V) bool {
		keys = append(keys, key)
		return true
	})
	return keys
}

// Len returns the number of index slots. Entries being created or removed concurrently
// may be counted.
func (m *Map[K, V]) Len() int {
	return m.index.Size()
}

// Clear removes every key.
func (m *Map[K, V]) Clear() {
	for _, key := range m.Keys() {
		m.Delete(key)
	}
}
