package tokenlife

import (
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/tokenlife/tokenlife/signer"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{
		now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func newTestSigner(t *testing.T, clock *testClock) *signer.Manager {
	t.Helper()

	mgr, err := signer.NewManager(signer.Config{
		SigningMethod: signer.MethodHS256,
		PrivateKey:    []byte("lifecycle-test-secret"),
		Issuer:        "tokenlife-test",
		Clock:         clock.Now,
	})
	if err != nil {
		t.Fatalf("signer.NewManager failed: %v", err)
	}
	return mgr
}

func lifecycleTestConfig() Config {
	cfg := DefaultConfig()
	cfg.Sweep.Interval = 0
	cfg.Metrics.Enabled = true
	return cfg
}

type lifecycleHarness struct {
	engine *Engine
	mr     *miniredis.Miniredis
	rdb    *redis.Client
	clock  *testClock
	sink   *ChannelSink
}

func newLifecycleEngine(t *testing.T, cfg Config) *lifecycleHarness {
	t.Helper()

	mr, rdb := newTestRedis(t)
	clock := newTestClock()

	builder := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithSigner(newTestSigner(t, clock)).
		WithClock(clock.Now).
		WithWarnLogger(func(format string, args ...any) { t.Logf(format, args...) })

	var sink *ChannelSink
	if cfg.Audit.Enabled {
		sink = NewChannelSink(64)
		builder = builder.WithEventSink(sink)
	}

	engine, err := builder.Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	})

	return &lifecycleHarness{
		engine: engine,
		mr:     mr,
		rdb:    rdb,
		clock:  clock,
		sink:   sink,
	}
}

// advance moves both the engine clock and the miniredis TTL clock so token
// expiry and key expiry stay in step.
func (h *lifecycleHarness) advance(d time.Duration) {
	h.clock.Advance(d)
	h.mr.FastForward(d)
}

func waitForEvent(t *testing.T, sink *ChannelSink, eventType string) Event {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case event := <-sink.Events():
			if event.Type == eventType {
				return event
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", eventType)
		}
	}
}
