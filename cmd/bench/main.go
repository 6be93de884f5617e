// Command bench drives a read-heavy Zipf workload through the loading cache
// against a simulated, rate-limited backend and exposes optional
// pprof/Prometheus endpoints.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"os"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/IvanBrykalov/asynclru/cache"
	pmet "github.com/IvanBrykalov/asynclru/metrics/prom"
)

func main() {
	// ---- Flags ----
	var (
		capacity = flag.Int("max", 100_000, "cache capacity (entries, 0 = unbounded)")
		maxAge   = flag.Duration("max_age", 0, "entry max age (0 = no expiry)")

		workers  = flag.Int("workers", 2*runtime.GOMAXPROCS(0), "number of worker goroutines")
		duration = flag.Duration("duration", 10*time.Second, "benchmark duration")
		writePct = flag.Int("writes", 5, "percentage of operations that Set instead of Get [0..100]")

		keys  = flag.Int("keys", 1_000_000, "keyspace size")
		zipfS = flag.Float64("zipf_s", 1.1, "Zipf s > 1 (skew)")
		zipfV = flag.Float64("zipf_v", 1.0, "Zipf v")
		seed  = flag.Int64("seed", time.Now().UnixNano(), "random seed")

		backendQPS   = flag.Float64("backend_qps", 5_000, "loader rate limit (0 = unlimited)")
		backendDelay = flag.Duration("backend_delay", time.Millisecond, "simulated backend latency")
		failPct      = flag.Int("fail", 0, "percentage of loads that fail [0..100]")

		pprofAddr   = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
		metricsAddr = flag.String("http", ":8080", "serve Prometheus metrics at addr")
		verbose     = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	// ---- pprof server (on DefaultServeMux) ----
	if *pprofAddr != "" {
		go func() {
			log.Printf("pprof: serving at %s", *pprofAddr)
			log.Println(http.ListenAndServe(*pprofAddr, nil))
		}()
	}

	// ---- Prometheus metrics (on DefaultServeMux) ----
	metrics := pmet.New(nil, "asynclru", "bench", nil)
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Printf("metrics: serving at %s", *metricsAddr)
		log.Println(http.ListenAndServe(*metricsAddr, nil))
	}()

	// ---- Simulated backend ----
	limit := rate.Inf
	if *backendQPS > 0 {
		limit = rate.Limit(*backendQPS)
	}
	backend := &backend{
		lim:     rate.NewLimiter(limit, 1+int(*backendQPS/100)),
		delay:   *backendDelay,
		failPct: *failPct,
	}

	// ---- Build cache ----
	c, err := cache.New(cache.Options[string, string]{
		Max:     *capacity,
		MaxAge:  *maxAge,
		Load:    backend.load,
		Metrics: metrics,
		Logger:  logger,
	})
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	defer func() { _ = c.Close() }()

	// ---- Snapshot flags for goroutines ----
	writePctVal := *writePct
	keysMax := uint64(*keys - 1)
	seedBase := *seed
	workersN := *workers
	if workersN <= 0 {
		workersN = 1
	}

	// ---- Load generation ----
	var gets, sets, failed uint64
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workersN; w++ {
		id := w
		g.Go(func() error {
			// Each worker gets its own RNG + Zipf (rand.Rand is NOT goroutine-safe).
			localR := rand.New(rand.NewSource(seedBase + int64(id)*9973))
			localZipf := rand.NewZipf(localR, *zipfS, *zipfV, keysMax)

			for gctx.Err() == nil {
				k := "k:" + strconv.FormatUint(localZipf.Uint64(), 10)
				if int(localR.Int31n(100)) < writePctVal {
					atomic.AddUint64(&sets, 1)
					c.Set(k, "v"+strconv.Itoa(localR.Int()))
					continue
				}
				atomic.AddUint64(&gets, 1)
				_, err := c.Load(gctx, k)
				switch {
				case err == nil:
				case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
					return nil
				case errors.Is(err, errBackend):
					atomic.AddUint64(&failed, 1)
				default:
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Fatalf("worker: %v", err)
	}
	elapsed := time.Since(start)

	// ---- Report ----
	st := c.Stats()
	getsN := atomic.LoadUint64(&gets)
	hitRate := 0.0
	if getsN > 0 {
		hitRate = float64(st.Hits) / float64(getsN) * 100
	}

	fmt.Printf("max=%d max_age=%v workers=%d keys=%d dur=%v seed=%d\n",
		*capacity, *maxAge, workersN, *keys, elapsed, seedBase)
	fmt.Printf("gets=%d (%.0f ops/s)  sets=%d  failed=%d\n",
		getsN, float64(getsN)/elapsed.Seconds(), atomic.LoadUint64(&sets), atomic.LoadUint64(&failed))
	fmt.Printf("hits=%d  misses=%d  coalesced=%d  hit-rate=%.2f%%\n", st.Hits, st.Misses, st.Coalesced, hitRate)
	fmt.Printf("loads=%d  load-errors=%d  evictions=%d  Len()=%d\n", st.Loads, st.LoadErrors, st.Evictions, c.Len())
}

var errBackend = errors.New("backend: simulated failure")

// backend is a fake remote store behind a token bucket.
type backend struct {
	lim     *rate.Limiter
	delay   time.Duration
	failPct int
	calls   atomic.Uint64
}

func (b *backend) load(req cache.LoadRequest[string], done func(string, error)) {
	go func() {
		n := b.calls.Add(1)
		if err := b.lim.Wait(req.Context); err != nil {
			done("", err)
			return
		}
		time.Sleep(b.delay)
		if b.failPct > 0 && int(n%100) < b.failPct {
			done("", errBackend)
			return
		}
		done("v:"+req.Key, nil)
	}()
}
