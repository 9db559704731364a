package stores

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, client
}

func TestRegistryRegisterAndList(t *testing.T) {
	_, rdb := newTestRedis(t)
	reg := NewSessionRegistry(rdb, "tl")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		evicted, err := reg.Register(ctx, "u1", fmt.Sprintf("set-%d", i), 0, "")
		if err != nil {
			t.Fatalf("register %d failed: %v", i, err)
		}
		if evicted != "" {
			t.Fatalf("unexpected eviction %q with no cap", evicted)
		}
	}

	ids, err := reg.List(ctx, "u1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("listed %d ids, want 3", len(ids))
	}
	for i, id := range ids {
		if want := fmt.Sprintf("set-%d", i); id != want {
			t.Fatalf("position %d holds %q, want %q (insertion order)", i, id, want)
		}
	}
}

func TestRegistryCapEvictsOldest(t *testing.T) {
	_, rdb := newTestRedis(t)
	reg := NewSessionRegistry(rdb, "tl")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := reg.Register(ctx, "u1", fmt.Sprintf("set-%d", i), 3, ""); err != nil {
			t.Fatalf("register %d failed: %v", i, err)
		}
	}

	evicted, err := reg.Register(ctx, "u1", "set-3", 3, "")
	if err != nil {
		t.Fatalf("register over cap failed: %v", err)
	}
	if evicted != "set-0" {
		t.Fatalf("evicted %q, want set-0", evicted)
	}

	count, err := reg.Count(ctx, "u1")
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 3 {
		t.Fatalf("count %d, want 3", count)
	}
}

func TestRegistryReplaceSwapsWithoutGrowingCount(t *testing.T) {
	_, rdb := newTestRedis(t)
	reg := NewSessionRegistry(rdb, "tl")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := reg.Register(ctx, "u1", fmt.Sprintf("set-%d", i), 3, ""); err != nil {
			t.Fatalf("register %d failed: %v", i, err)
		}
	}

	// Replacing a middle entry at the cap must not trip eviction.
	evicted, err := reg.Register(ctx, "u1", "set-1b", 3, "set-1")
	if err != nil {
		t.Fatalf("replacing register failed: %v", err)
	}
	if evicted != "" {
		t.Fatalf("replacement evicted %q, want none", evicted)
	}

	ids, err := reg.List(ctx, "u1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("listed %d ids after replacement, want 3", len(ids))
	}
	for _, id := range ids {
		if id == "set-1" {
			t.Fatalf("replaced id set-1 still listed: %v", ids)
		}
	}
	if ids[0] != "set-0" {
		t.Fatalf("oldest entry is %q after replacement, want set-0", ids[0])
	}
}

func TestRegistryEvictionOrderSurvivesSameInstant(t *testing.T) {
	_, rdb := newTestRedis(t)
	reg := NewSessionRegistry(rdb, "tl")
	ctx := context.Background()

	// All registrations land at the same wall-clock instant; the sequence
	// score must still keep strict insertion order.
	for i := 0; i < 5; i++ {
		if _, err := reg.Register(ctx, "u1", fmt.Sprintf("set-%d", i), 0, ""); err != nil {
			t.Fatalf("register %d failed: %v", i, err)
		}
	}
	for i := 5; i < 8; i++ {
		evicted, err := reg.Register(ctx, "u1", fmt.Sprintf("set-%d", i), 5, "")
		if err != nil {
			t.Fatalf("register %d failed: %v", i, err)
		}
		if want := fmt.Sprintf("set-%d", i-5); evicted != want {
			t.Fatalf("evicted %q, want %q", evicted, want)
		}
	}
}

func TestRegistryUnregisterDropsEmptyUser(t *testing.T) {
	_, rdb := newTestRedis(t)
	reg := NewSessionRegistry(rdb, "tl")
	ctx := context.Background()

	if _, err := reg.Register(ctx, "u1", "set-0", 0, ""); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := reg.Unregister(ctx, "u1", "set-0"); err != nil {
		t.Fatalf("unregister failed: %v", err)
	}

	users, sessions, err := reg.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if users != 0 || sessions != 0 {
		t.Fatalf("summary %d/%d, want 0/0", users, sessions)
	}
}

func TestRegistryUnregisterUnknownIsNoOp(t *testing.T) {
	_, rdb := newTestRedis(t)
	reg := NewSessionRegistry(rdb, "tl")

	if err := reg.Unregister(context.Background(), "u1", "never-registered"); err != nil {
		t.Fatalf("unregister of unknown entry failed: %v", err)
	}
}

func TestRegistrySummaryAcrossUsers(t *testing.T) {
	_, rdb := newTestRedis(t)
	reg := NewSessionRegistry(rdb, "tl")
	ctx := context.Background()

	for _, pair := range [][2]string{{"u1", "a"}, {"u1", "b"}, {"u2", "c"}} {
		if _, err := reg.Register(ctx, pair[0], pair[1], 0, ""); err != nil {
			t.Fatalf("register failed: %v", err)
		}
	}

	users, sessions, err := reg.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if users != 2 || sessions != 3 {
		t.Fatalf("summary %d/%d, want 2/3", users, sessions)
	}
}
