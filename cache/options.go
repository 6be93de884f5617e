package cache

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/IvanBrykalov/asynclru/policy"
)

// EvictReason explains why an entry was removed.
type EvictReason int

const (
	// EvictCapacity — removed by the policy to keep Len() <= Max.
	EvictCapacity EvictReason = iota
	// EvictExpired — older than MaxAge when a read observed it.
	EvictExpired
)

// String returns a stable lowercase name, used as a metrics label.
func (r EvictReason) String() string {
	switch r {
	case EvictExpired:
		return "expired"
	default:
		return "capacity"
	}
}

// Eviction is delivered to listeners for every store-initiated removal.
type Eviction[K comparable, V any] struct {
	Key    K
	Value  V
	Reason EvictReason
}

// Metrics exposes cache-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
type Metrics interface {
	Hit()
	Miss()
	Evict(reason EvictReason)
	Size(entries int)
	// Load is called once per loader invocation when its result arrives.
	Load(d time.Duration, err error)
	// Coalesce is called for every Get that joined an in-flight load.
	Coalesce()
}

// Clock provides time in UnixNano; useful for deterministic tests.
type Clock interface{ NowUnixNano() int64 }

// Options configures the cache. Only Load is required; zero values elsewhere
// get defaults in New():
//   - Max == 0        => unbounded
//   - MaxAge == 0     => entries never expire
//   - nil Policy      => LRU
//   - nil Metrics     => NoopMetrics
//   - nil Logger      => discard
//   - nil Dispatch    => each delivery runs on its own goroutine
//   - nil TracerProvider => otel.GetTracerProvider()
type Options[K comparable, V any] struct {
	// Max is the entry count limit (0 = unbounded).
	Max int

	// MaxAge is how long an entry stays valid after its last Set or Get.
	MaxAge time.Duration

	// Load fetches a value on a miss. Required.
	Load LoadFunc[K, V]

	// Policy is a pluggable eviction policy; nil => LRU.
	Policy policy.Policy[K, V]

	// OnEvict is registered as the first eviction listener.
	// Listeners run after the store lock is released.
	OnEvict func(Eviction[K, V])

	// Observability
	Metrics        Metrics
	TracerProvider trace.TracerProvider
	Logger         *slog.Logger

	// Dispatch runs fn on a later turn. It must not call fn synchronously.
	Dispatch func(fn func())

	// Clock allows overriding time source (tests). Nil => time.Now().
	Clock Clock
}
