package main

import (
	"context"
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	mrand "math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	tokenlife "github.com/tokenlife/tokenlife"
	"github.com/tokenlife/tokenlife/signer"
)

type setState struct {
	mu      sync.Mutex
	access  string
	refresh string
}

func main() {
	var (
		sets        = flag.Int("sets", 10000, "number of token sets to seed")
		concurrency = flag.Int("concurrency", 128, "number of concurrent workers")
		ops         = flag.Int("ops", 50000, "operations per phase (validate + refresh)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "tl", "redis key prefix")
	)
	flag.Parse()

	if *sets <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "sets, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		fmt.Fprintf(os.Stderr, "secret generation failed: %v\n", err)
		os.Exit(1)
	}
	sgn, err := signer.NewManager(signer.Config{
		SigningMethod: signer.MethodHS256,
		PrivateKey:    secret,
		Issuer:        "tokenlife-loadtest",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "signer setup failed: %v\n", err)
		os.Exit(1)
	}

	cfg := tokenlife.DefaultConfig()
	cfg.RedisPrefix = *prefix
	cfg.Session.MaxConcurrentSessions = 0
	cfg.Refresh.MaxUsage = 0
	cfg.Refresh.AllowConcurrent = true
	cfg.Metrics.Enabled = true

	engine, err := tokenlife.New().
		WithConfig(cfg).
		WithRedis(client).
		WithSigner(sgn).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build failed: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	states := make([]setState, *sets)
	fmt.Printf("seeding %d token sets...\n", *sets)
	startSeed := time.Now()
	for i := 0; i < *sets; i++ {
		set, err := engine.CreateTokenSet(ctx, tokenlife.UserPayload{
			UserID: fmt.Sprintf("user-%d", i),
			Role:   "member",
		}, &tokenlife.SecurityContext{ClientIP: "10.0.0.1"})
		if err != nil {
			fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
			os.Exit(1)
		}
		states[i].access = set.AccessToken.Value
		states[i].refresh = set.RefreshToken.Value
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	validateStats := runValidatePhase(ctx, engine, states, *ops, *concurrency)
	refreshStats := runRefreshPhase(ctx, engine, states, *ops, *concurrency)

	fmt.Println("---- results ----")
	printStats("validate", validateStats)
	printStats("refresh", refreshStats)

	snap := engine.GetMetrics()
	fmt.Printf("engine counters: validate_ok=%d refresh_ok=%d refresh_concurrent_rejected=%d\n",
		snap.Counters[tokenlife.MetricValidateSuccess],
		snap.Counters[tokenlife.MetricRefreshSuccess],
		snap.Counters[tokenlife.MetricRefreshConcurrentRejected],
	)
}

func runValidatePhase(ctx context.Context, engine *tokenlife.Engine, states []setState, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := mrand.New(mrand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				idx := r.Intn(len(states))
				state := &states[idx]
				state.mu.Lock()
				access := state.access
				state.mu.Unlock()

				t0 := time.Now()
				result, err := engine.ValidateAccessToken(ctx, access, &tokenlife.SecurityContext{ClientIP: "10.0.0.1"})
				d := time.Since(t0)
				if err != nil || !result.Valid {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

func runRefreshPhase(ctx context.Context, engine *tokenlife.Engine, states []setState, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := mrand.New(mrand.NewSource(time.Now().UnixNano() + int64(worker)*6151))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				idx := r.Intn(len(states))
				state := &states[idx]

				state.mu.Lock()
				t0 := time.Now()
				set, err := engine.RefreshTokenSet(ctx, state.refresh, &tokenlife.SecurityContext{ClientIP: "10.0.0.1"})
				d := time.Since(t0)
				if err == nil {
					state.access = set.AccessToken.Value
					state.refresh = set.RefreshToken.Value
				} else if !errors.Is(err, tokenlife.ErrConcurrentRefresh) {
					atomic.AddInt64(&failures, 1)
				}
				state.mu.Unlock()

				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
