// Package cache provides a generic, bounded LRU cache whose misses are
// filled by an asynchronous, caller-supplied loader, with at most one load
// in flight per key.
//
// Design
//
//   - Storage: a map[K]*node for lookups and an intrusive MRU↔LRU doubly
//     linked list for ordering. Set and Get promote; Peek does not. When
//     Options.Max is set, the least recently used entries are evicted as
//     soon as Len() would exceed it.
//
//   - Expiry: Options.MaxAge is measured from an entry's last Set or Get.
//     Expiration is lazy: Get evicts an expired entry and reports a miss,
//     Peek reports a miss without evicting.
//
//   - Coalescing: a Get that misses registers its callback as the only
//     waiter for the key and calls Options.Load. Gets that arrive while that
//     load is in flight append their callbacks instead of loading again.
//     When the loader calls done, a successful value is stored, the waiter
//     list is detached, and every waiter receives the same (value, error)
//     in the order it called Get. A Get that arrives after detachment starts
//     a fresh load.
//
//   - Delivery: callbacks never run on the caller's stack. Hits and load
//     results are handed to Options.Dispatch (default: a new goroutine).
//
//   - Errors: loader errors go verbatim to every waiter and are never
//     stored. There is no retry, backoff or timeout; wrap the loader for
//     that. Remove, Clear and Set do not cancel loads in flight, and a
//     successful load overwrites whatever Set stored meanwhile.
//
//   - Events: OnEvict subscribes to capacity and expiry evictions, oldest
//     first. Remove and Clear are not evictions.
//
//   - Observability: Options.Metrics receives Hit/Miss/Evict/Size/Load/
//     Coalesce signals (see package metrics/prom), every loader call gets an
//     OpenTelemetry span, and Options.Logger receives debug/warn records.
//
// Basic usage
//
//	c, err := cache.New(cache.Options[string, string]{
//	    Max: 1024,
//	    Load: func(req cache.LoadRequest[string], done func(string, error)) {
//	        go func() { done(fetch(req.Context, req.Key)) }()
//	    },
//	})
//	if err != nil {
//	    return err
//	}
//	_ = c.Get(ctx, "user:1", nil, func(v string, err error) {
//	    // called exactly once, on another goroutine
//	})
//
// Blocking form
//
//	v, err := c.Load(ctx, "user:1")
//
// Auxiliary loader arguments
//
//	_ = c.Get(ctx, "avatar:7", []any{"128x128"}, cb)
//	// the loader sees req.Args == []any{"128x128"}
package cache
