package stores

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestGateSingleAcquire(t *testing.T) {
	g := NewRefreshGate()
	now := time.Now()

	if !g.TryAcquire("u1|10.0.0.1", now, 5*time.Second) {
		t.Fatal("first acquire must succeed")
	}
	if g.TryAcquire("u1|10.0.0.1", now, 5*time.Second) {
		t.Fatal("second acquire inside grace must fail")
	}
	if !g.TryAcquire("u1|10.0.0.2", now, 5*time.Second) {
		t.Fatal("different key must acquire independently")
	}
}

func TestGateExpiredEntryReusable(t *testing.T) {
	g := NewRefreshGate()
	now := time.Now()

	if !g.TryAcquire("u1|10.0.0.1", now, 5*time.Second) {
		t.Fatal("first acquire must succeed")
	}
	if !g.TryAcquire("u1|10.0.0.1", now.Add(6*time.Second), 5*time.Second) {
		t.Fatal("acquire past grace must succeed in place")
	}
	// The overwrite restarts the grace window.
	if g.TryAcquire("u1|10.0.0.1", now.Add(7*time.Second), 5*time.Second) {
		t.Fatal("acquire inside the restarted window must fail")
	}
}

func TestGateSweepRemovesExpired(t *testing.T) {
	g := NewRefreshGate()
	now := time.Now()

	for i := 0; i < 10; i++ {
		g.TryAcquire(fmt.Sprintf("u%d|addr", i), now, 5*time.Second)
	}
	g.TryAcquire("fresh|addr", now.Add(4*time.Second), 5*time.Second)

	removed := g.Sweep(now.Add(5*time.Second), 5*time.Second)
	if removed != 10 {
		t.Fatalf("swept %d entries, want 10", removed)
	}
	if g.Len() != 1 {
		t.Fatalf("gate holds %d entries, want 1", g.Len())
	}
}

func TestGateConcurrentSingleWinner(t *testing.T) {
	g := NewRefreshGate()
	now := time.Now()

	const n = 64
	var wg sync.WaitGroup
	wg.Add(n)

	wins := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if g.TryAcquire("u1|10.0.0.1", now, 5*time.Second) {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	count := 0
	for range wins {
		count++
	}
	if count != 1 {
		t.Fatalf("expected exactly one winner, got %d", count)
	}
}
