// Package singleflight tracks in-flight loads and the callbacks waiting on them.
package singleflight

import "sync"

// Group maps a key to the ordered list of waiters for its in-flight load.
// A key is present iff a load for it is running.
//
// Concurrency notes:
//   - The first Join for an absent key makes the caller the leader; it must
//     start the load and eventually call Done exactly once.
//   - Done detaches the whole waiter list under the lock, so a Join that
//     happens after Done starts a fresh load instead of joining a finished one.
//   - Waiters are returned to the caller and must be invoked outside the lock.
type Group[K comparable, W any] struct {
	mu sync.Mutex
	m  map[K][]W
}

// Join registers w as a waiter for key. It reports true when no load was in
// flight and the caller is now responsible for starting one.
func (g *Group[K, W]) Join(key K, w W) (leader bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.m == nil {
		g.m = make(map[K][]W)
	}
	if ws, ok := g.m[key]; ok {
		g.m[key] = append(ws, w)
		return false
	}
	g.m[key] = []W{w}
	return true
}

// Attach appends w only if a load for key is already in flight.
func (g *Group[K, W]) Attach(key K, w W) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	ws, ok := g.m[key]
	if !ok {
		return false
	}
	g.m[key] = append(ws, w)
	return true
}

// Done removes key and returns its waiters in registration order.
// A second Done for the same flight returns nil.
func (g *Group[K, W]) Done(key K) []W {
	g.mu.Lock()
	defer g.mu.Unlock()

	ws, ok := g.m[key]
	if !ok {
		return nil
	}
	delete(g.m, key)
	return ws
}

// Len returns the number of keys with a load in flight.
func (g *Group[K, W]) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.m)
}
