package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/IvanBrykalov/asynclru/internal/singleflight"
	"github.com/IvanBrykalov/asynclru/internal/util"
	"github.com/IvanBrykalov/asynclru/policy/lru"
)

var (
	// ErrNoLoader is returned by New when Options.Load is nil.
	ErrNoLoader = errorsNew("cache: missing required Load option")
	// ErrInvalidMax is returned by New for a negative Max.
	ErrInvalidMax = errorsNew("cache: Max must be >= 0")
	// ErrInvalidMaxAge is returned by New for a negative MaxAge.
	ErrInvalidMaxAge = errorsNew("cache: MaxAge must be >= 0")
	// ErrNilCallback is returned by Get when no callback is supplied.
	ErrNilCallback = errorsNew("cache: nil callback")
	// ErrClosed is returned by Get after Close.
	ErrClosed = errorsNew("cache: closed")
	// ErrLoaderPanic wraps a value recovered from a panicking loader.
	ErrLoaderPanic = errorsNew("cache: loader panicked")
)

// lightweight local errors.New to avoid importing std 'errors' everywhere
func errorsNew(s string) error { return &strErr{s} }

type strErr struct{ s string }

func (e *strErr) Error() string { return e.s }

// Cache is a bounded LRU cache that fills misses through an asynchronous
// loader. Concurrent Gets for a key whose load is in flight wait on that
// load instead of starting another one.
// All methods are safe for concurrent use by multiple goroutines.
type Cache[K comparable, V any] struct {
	store    *store[K, V]
	flights  singleflight.Group[K, Callback[V]]
	load     LoadFunc[K, V]
	dispatch func(func())
	metrics  Metrics
	tracer   trace.Tracer
	log      *slog.Logger
	closed   atomic.Bool

	lmu       sync.RWMutex
	listeners []listener[K, V]
	nextID    uint64

	// ---- hot counters ----
	_         util.CacheLinePad
	hits      util.PaddedAtomicUint64
	misses    util.PaddedAtomicUint64
	coalesced util.PaddedAtomicUint64
	loads     util.PaddedAtomicUint64
	loadErrs  util.PaddedAtomicUint64
	evicts    util.PaddedAtomicUint64
}

type listener[K comparable, V any] struct {
	id uint64
	fn func(Eviction[K, V])
}

// New constructs a cache with the provided Options.
// Options.Load is required; see Options for the remaining defaults.
func New[K comparable, V any](opt Options[K, V]) (*Cache[K, V], error) {
	if opt.Load == nil {
		return nil, ErrNoLoader
	}
	if opt.Max < 0 {
		return nil, ErrInvalidMax
	}
	if opt.MaxAge < 0 {
		return nil, ErrInvalidMaxAge
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Policy == nil {
		opt.Policy = lru.New[K, V]()
	}
	if opt.Logger == nil {
		opt.Logger = slog.New(slog.DiscardHandler)
	}
	if opt.Dispatch == nil {
		opt.Dispatch = func(fn func()) { go fn() }
	}

	c := &Cache[K, V]{
		load:     opt.Load,
		dispatch: opt.Dispatch,
		metrics:  opt.Metrics,
		tracer:   newTracer(opt.TracerProvider),
		log:      opt.Logger,
	}
	c.store = newStore(opt, c.emitEvictions)
	if opt.OnEvict != nil {
		c.OnEvict(opt.OnEvict)
	}
	return c, nil
}

// Get delivers the value for k to cb, exactly once and never on the
// caller's stack.
//
//   - If a load for k is in flight, cb joins it.
//   - Otherwise a store hit is dispatched to cb.
//   - Otherwise cb becomes the first waiter and the loader is called with
//     k and args.
//
// When the load finishes, a successful value is stored and every waiter
// receives (v, err) in the order it called Get. A failed load stores
// nothing, so the next Get retries.
//
// The returned error is non-nil only for invalid calls (nil cb, closed
// cache); in that case cb is never invoked.
func (c *Cache[K, V]) Get(ctx context.Context, k K, args []any, cb Callback[V]) error {
	if cb == nil {
		return ErrNilCallback
	}
	if c.closed.Load() {
		return ErrClosed
	}

	if c.flights.Attach(k, cb) {
		c.joined()
		return nil
	}
	if v, ok := c.store.Get(k); ok {
		c.hits.Add(1)
		c.dispatch(func() { cb(v, nil) })
		return nil
	}
	// A load may have started since Attach; Join settles it atomically.
	if !c.flights.Join(k, cb) {
		c.joined()
		return nil
	}
	c.misses.Add(1)
	if ctx == nil {
		ctx = context.Background()
	}
	c.startLoad(ctx, k, args)
	return nil
}

// Load is the blocking form of Get. If ctx is done first, Load returns
// ctx.Err(); the shared load keeps running for the other waiters. A nil
// ctx means context.Background().
func (c *Cache[K, V]) Load(ctx context.Context, k K, args ...any) (V, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	type result struct {
		v   V
		err error
	}
	ch := make(chan result, 1)
	if err := c.Get(ctx, k, args, func(v V, err error) { ch <- result{v, err} }); err != nil {
		var zero V
		return zero, err
	}

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Set stores k→v and returns v. It does not touch pending loads: a load in
// flight for k overwrites v when it succeeds.
func (c *Cache[K, V]) Set(k K, v V) V {
	if c.closed.Load() {
		return v
	}
	return c.store.Set(k, v)
}

// Peek returns the stored value without promotion. It never consults
// pending loads.
func (c *Cache[K, V]) Peek(k K) (V, bool) { return c.store.Peek(k) }

// Remove deletes k if present and reports whether it was. A load in flight
// for k is not cancelled and will store its result.
func (c *Cache[K, V]) Remove(k K) bool { return c.store.Remove(k) }

// Clear empties the store. Loads in flight are not cancelled.
func (c *Cache[K, V]) Clear() { c.store.Clear() }

// Len returns the number of resident entries.
func (c *Cache[K, V]) Len() int { return c.store.Len() }

// Keys returns resident keys, least recently used first.
func (c *Cache[K, V]) Keys() []K { return c.store.Keys() }

// Pending returns the number of keys with a load in flight.
func (c *Cache[K, V]) Pending() int { return c.flights.Len() }

// OnEvict subscribes fn to capacity and expiry evictions. Listeners run in
// subscription order, after the store lock is released, so they may call
// back into the cache. The returned func unsubscribes fn.
func (c *Cache[K, V]) OnEvict(fn func(Eviction[K, V])) (cancel func()) {
	c.lmu.Lock()
	c.nextID++
	id := c.nextID
	c.listeners = append(c.listeners, listener[K, V]{id: id, fn: fn})
	c.lmu.Unlock()

	return func() {
		c.lmu.Lock()
		defer c.lmu.Unlock()
		for i, l := range c.listeners {
			if l.id == id {
				c.listeners = append(c.listeners[:i:i], c.listeners[i+1:]...)
				return
			}
		}
	}
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[K, V]) Stats() Stats {
	return Stats{
		Hits:       c.hits.Load(),
		Misses:     c.misses.Load(),
		Coalesced:  c.coalesced.Load(),
		Loads:      c.loads.Load(),
		LoadErrors: c.loadErrs.Load(),
		Evictions:  c.evicts.Load(),
	}
}

// Close marks the cache as closed: Get fails with ErrClosed and Set is
// ignored. Loads already in flight still complete and notify their waiters.
func (c *Cache[K, V]) Close() error {
	c.closed.Store(true)
	return nil
}

// ---- helpers ----

func (c *Cache[K, V]) joined() {
	c.coalesced.Add(1)
	c.metrics.Coalesce()
}

// startLoad calls the loader for k. The caller has just become the flight
// leader for k.
func (c *Cache[K, V]) startLoad(ctx context.Context, k K, args []any) {
	req := LoadRequest[K]{Context: context.WithoutCancel(ctx), Key: k, Args: args}
	spanCtx, span := startLoadSpan(req.Context, c.tracer, req)
	req.Context = spanCtx

	start := time.Now()
	var fired atomic.Bool
	done := func(v V, err error) {
		if !fired.CompareAndSwap(false, true) {
			c.log.Warn("loader called done more than once", "key", k)
			return
		}
		c.finish(k, v, err, start, span)
	}

	c.log.Debug("load started", "key", k, "args", len(args))
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("loader panicked", "key", k, "panic", r)
			var zero V
			done(zero, fmt.Errorf("%w: %v", ErrLoaderPanic, r))
		}
	}()
	c.load(req, done)
}

// finish stores a successful result, detaches the waiters and hands the
// result to all of them in one dispatched batch. Evictions caused by the
// store write are announced last, so a failing listener cannot leave the
// key registered or its waiters unanswered.
func (c *Cache[K, V]) finish(k K, v V, err error, start time.Time, span trace.Span) {
	var evicted []Eviction[K, V]
	if err == nil {
		evicted = c.store.set(k, v)
	}
	waiters := c.flights.Done(k)

	c.loads.Add(1)
	if err != nil {
		c.loadErrs.Add(1)
	}
	elapsed := time.Since(start)
	c.metrics.Load(elapsed, err)
	endLoadSpan(span, len(waiters), err)
	c.log.Debug("load finished", "key", k, "waiters", len(waiters), "elapsed", elapsed, "err", err)

	c.dispatch(func() {
		for _, w := range waiters {
			w(v, err)
		}
	})
	c.store.emit(evicted)
}

// emitEvictions is the store's eviction sink.
func (c *Cache[K, V]) emitEvictions(evs []Eviction[K, V]) {
	c.evicts.Add(uint64(len(evs)))

	c.lmu.RLock()
	ls := make([]func(Eviction[K, V]), len(c.listeners))
	for i, l := range c.listeners {
		ls[i] = l.fn
	}
	c.lmu.RUnlock()

	for _, ev := range evs {
		for _, fn := range ls {
			fn(ev)
		}
	}
}
