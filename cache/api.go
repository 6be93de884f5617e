package cache

import "context"

// LoadRequest describes one loader invocation.
type LoadRequest[K comparable] struct {
	// Context carries values (trace spans, request IDs) from the Get that
	// started the load. It is never cancelled by the cache; a shared load
	// outlives the caller that happened to trigger it.
	Context context.Context

	// Key is the missing key.
	Key K

	// Args are the auxiliary arguments passed to Get, unchanged. May be empty.
	Args []any
}

// LoadFunc fetches the value for a missing key and reports it through done.
// done may be called synchronously or later from any goroutine; only the
// first call counts. The cache performs no retry, backoff or timeout: wrap
// the loader if you need any of those.
type LoadFunc[K comparable, V any] func(req LoadRequest[K], done func(V, error))

// Callback receives the outcome of Get exactly once.
type Callback[V any] func(v V, err error)

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits       uint64 // Get served from the store
	Misses     uint64 // Get that started a load
	Coalesced  uint64 // Get that joined an in-flight load
	Loads      uint64 // loader results received
	LoadErrors uint64 // loader results carrying an error
	Evictions  uint64 // capacity and expiry evictions
}
