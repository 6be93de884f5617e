package cache

// node is an intrusive doubly linked list element owned by the store.
type node[K comparable, V any] struct {
	key K
	val V

	// Intrusive list links: head is MRU, tail is LRU.
	prev *node[K, V]
	next *node[K, V]

	// Last Set/Get in UnixNano; compared against MaxAge.
	touched int64
}

// Key returns the node key (part of policy.Node interface).
func (n *node[K, V]) Key() K { return n.key }

// Value returns a pointer to the stored value (part of policy.Node interface).
// Only valid while holding the store lock.
func (n *node[K, V]) Value() *V { return &n.val }
