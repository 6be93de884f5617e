package cache

import (
	"sync"
	"time"

	"github.com/IvanBrykalov/asynclru/policy"
)

// store is the bounded LRU map under the loading layer: a map for lookups
// and an intrusive doubly linked list (head=MRU, tail=LRU) for ordering.
// It knows nothing about pending loads.
type store[K comparable, V any] struct {
	// ---- guarded by mu ----
	mu   sync.RWMutex
	m    map[K]*node[K, V]
	head *node[K, V] // MRU
	tail *node[K, V] // LRU
	len  int
	pol  policy.Instance[K, V]

	// ---- immutable after newStore ----
	max     int   // 0 = unbounded
	maxAge  int64 // nanoseconds, 0 = no expiry
	factory policy.Policy[K, V]
	clock   Clock
	metrics Metrics
	evicted func([]Eviction[K, V]) // called without mu held
}

func newStore[K comparable, V any](opt Options[K, V], evicted func([]Eviction[K, V])) *store[K, V] {
	s := &store[K, V]{
		m:       make(map[K]*node[K, V]),
		max:     opt.Max,
		maxAge:  int64(opt.MaxAge),
		factory: opt.Policy,
		clock:   opt.Clock,
		metrics: opt.Metrics,
		evicted: evicted,
	}
	s.pol = s.factory.New(storeHooks[K, V]{s: s})
	return s
}

// Set inserts or overwrites k→v, promotes it and refreshes its age.
// Entries pushed out by the capacity bound are reported oldest first.
func (s *store[K, V]) Set(k K, v V) V {
	s.emit(s.set(k, v))
	return v
}

// set is Set without the notification: the caller owns the returned
// evictions and must pass them to emit.
func (s *store[K, V]) set(k K, v V) []Eviction[K, V] {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Eviction[K, V]
	if n, ok := s.m[k]; ok {
		n.val = v
		n.touched = s.now()
		s.pol.OnUpdate(n)
	} else {
		n := &node[K, V]{key: k, val: v, touched: s.now()}
		s.m[k] = n
		if ev := s.pol.OnAdd(n); ev != nil {
			out = s.evictLocked(out, ev.(*node[K, V]), EvictCapacity)
		}
	}
	return s.enforceLimitLocked(out)
}

// Get returns the value and promotes the entry. An entry older than maxAge
// is evicted and reported as a miss.
func (s *store[K, V]) Get(k K) (V, bool) {
	s.mu.Lock()

	n, ok := s.m[k]
	if !ok {
		s.mu.Unlock()
		s.metrics.Miss()
		var zero V
		return zero, false
	}
	now := s.now()
	if s.expired(n, now) {
		out := s.evictLocked(nil, n, EvictExpired)
		s.metrics.Size(s.len)
		s.mu.Unlock()

		s.emit(out)
		s.metrics.Miss()
		var zero V
		return zero, false
	}

	n.touched = now
	s.pol.OnGet(n)
	v := n.val
	s.mu.Unlock()

	s.metrics.Hit()
	return v, true
}

// Peek returns the value without promotion or any other mutation.
// An expired entry reads as absent but stays until Get or a later Set
// observes it.
func (s *store[K, V]) Peek(k K) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.m[k]
	if !ok || s.expired(n, s.now()) {
		var zero V
		return zero, false
	}
	return n.val, true
}

// Remove deletes k if present. It is not reported as an eviction.
func (s *store[K, V]) Remove(k K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.m[k]
	if !ok {
		return false
	}
	s.pol.OnRemove(n)
	s.removeNode(n)
	delete(s.m, k)
	s.metrics.Size(s.len)
	return true
}

// Clear drops every entry and rebinds a fresh policy instance, returning the
// store to the state newStore left it in. Nothing is reported as evicted.
func (s *store[K, V]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.m = make(map[K]*node[K, V])
	s.head, s.tail = nil, nil
	s.len = 0
	s.pol = s.factory.New(storeHooks[K, V]{s: s})
	s.metrics.Size(0)
}

// Len returns the number of resident entries, including expired ones that
// no read has observed yet.
func (s *store[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.len
}

// Keys returns resident keys from least to most recently used.
func (s *store[K, V]) Keys() []K {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]K, 0, s.len)
	for n := s.tail; n != nil; n = n.prev {
		keys = append(keys, n.key)
	}
	return keys
}

// -------------------- internals (mu held) --------------------

func (s *store[K, V]) expired(n *node[K, V], now int64) bool {
	return s.maxAge > 0 && now-n.touched > s.maxAge
}

func (s *store[K, V]) now() int64 {
	if s.clock != nil {
		return s.clock.NowUnixNano()
	}
	return time.Now().UnixNano()
}

// insertFront inserts n at MRU in O(1).
func (s *store[K, V]) insertFront(n *node[K, V]) {
	n.prev = nil
	n.next = s.head
	if s.head != nil {
		s.head.prev = n
	}
	s.head = n
	if s.tail == nil {
		s.tail = n
	}
	s.len++
}

// moveToFront promotes n to MRU in O(1).
func (s *store[K, V]) moveToFront(n *node[K, V]) {
	if n == s.head {
		return
	}
	// detach
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if s.tail == n {
		s.tail = n.prev
	}
	// insert at head
	n.prev = nil
	n.next = s.head
	if s.head != nil {
		s.head.prev = n
	}
	s.head = n
	if s.tail == nil {
		s.tail = n
	}
}

// removeNode unlinks n and decrements len in O(1).
func (s *store[K, V]) removeNode(n *node[K, V]) {
	if n.prev != nil {
		n.prev.next = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	}
	if s.head == n {
		s.head = n.next
	}
	if s.tail == n {
		s.tail = n.prev
	}
	n.prev, n.next = nil, nil
	s.len--
}

// evictLocked removes n and appends it to out for later notification.
func (s *store[K, V]) evictLocked(out []Eviction[K, V], n *node[K, V], reason EvictReason) []Eviction[K, V] {
	s.pol.OnRemove(n)
	s.removeNode(n)
	delete(s.m, n.key)
	s.metrics.Evict(reason)
	return append(out, Eviction[K, V]{Key: n.key, Value: n.val, Reason: reason})
}

// enforceLimitLocked evicts from the LRU end until len <= max. With the LRU
// policy OnAdd has already done this; it backs up policies that never
// propose a victim.
func (s *store[K, V]) enforceLimitLocked(out []Eviction[K, V]) []Eviction[K, V] {
	for s.max > 0 && s.len > s.max && s.tail != nil {
		out = s.evictLocked(out, s.tail, EvictCapacity)
	}
	s.metrics.Size(s.len)
	return out
}

func (s *store[K, V]) emit(out []Eviction[K, V]) {
	if len(out) > 0 && s.evicted != nil {
		s.evicted(out)
	}
}

// -------------------- policy hooks --------------------

// storeHooks adapts the store's list operations to policy.Hooks.
type storeHooks[K comparable, V any] struct{ s *store[K, V] }

func (h storeHooks[K, V]) MoveToFront(x policy.Node[K, V]) { h.s.moveToFront(x.(*node[K, V])) }
func (h storeHooks[K, V]) PushFront(x policy.Node[K, V])   { h.s.insertFront(x.(*node[K, V])) }
func (h storeHooks[K, V]) Remove(x policy.Node[K, V])      { h.s.removeNode(x.(*node[K, V])) }
func (h storeHooks[K, V]) Back() policy.Node[K, V] {
	if h.s.tail == nil {
		return nil
	}
	return h.s.tail
}
func (h storeHooks[K, V]) Len() int { return h.s.len }
func (h storeHooks[K, V]) Cap() int { return h.s.max }
