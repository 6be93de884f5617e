// Package lru implements the LRU eviction policy.
package lru

import "github.com/IvanBrykalov/asynclru/policy"

// lru is a classic "move-to-front" Least-Recently-Used policy.
// List manipulation goes through the store's hooks.
type lru[K comparable, V any] struct {
	h policy.Hooks[K, V]
}

type lruPolicy[K comparable, V any] struct{}

// New returns a Policy factory that constructs LRU instances.
func New[K comparable, V any]() policy.Policy[K, V] { return lruPolicy[K, V]{} }

// New implements policy.Policy.
func (lruPolicy[K, V]) New(h policy.Hooks[K, V]) policy.Instance[K, V] {
	return &lru[K, V]{h: h}
}

// OnAdd places the new entry at MRU. When that overflows the bound, the
// least recently used entry is the victim.
func (p *lru[K, V]) OnAdd(n policy.Node[K, V]) (evict policy.Node[K, V]) {
	p.h.PushFront(n)
	if c := p.h.Cap(); c > 0 && p.h.Len() > c {
		return p.h.Back()
	}
	return nil
}

// OnGet promotes the entry to MRU.
func (p *lru[K, V]) OnGet(n policy.Node[K, V]) { p.h.MoveToFront(n) }

// OnUpdate promotes the entry to MRU; an overwrite counts as a use.
func (p *lru[K, V]) OnUpdate(n policy.Node[K, V]) { p.h.MoveToFront(n) }

// OnRemove is a no-op for pure LRU.
func (p *lru[K, V]) OnRemove(_ policy.Node[K, V]) {}
