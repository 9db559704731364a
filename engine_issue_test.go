package tokenlife

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCreateTokenSetMintsAccessAndRefresh(t *testing.T) {
	h := newLifecycleEngine(t, lifecycleTestConfig())

	set, err := h.engine.CreateTokenSet(context.Background(), UserPayload{
		UserID:      "u1",
		Role:        "member",
		Permissions: []string{"read"},
	}, &SecurityContext{ClientIP: "10.0.0.1", UserAgent: "test-agent"})
	if err != nil {
		t.Fatalf("CreateTokenSet failed: %v", err)
	}

	if set.ID == "" {
		t.Fatal("expected token set id")
	}
	if set.AccessToken.Value == "" || set.RefreshToken.Value == "" {
		t.Fatal("expected access and refresh token material")
	}
	if set.AccessToken.ID == set.RefreshToken.ID {
		t.Fatal("access and refresh tokens must have distinct ids")
	}
	if set.IDToken != nil {
		t.Fatal("id token must not be minted unless configured")
	}
	if set.ChainID == "" {
		t.Fatal("expected chain id on a fresh set")
	}
	if set.RefreshChain != 0 {
		t.Fatalf("fresh set must start at chain depth 0, got %d", set.RefreshChain)
	}
	if !set.ChainIssuedAt.Equal(h.clock.Now()) {
		t.Fatalf("chain anchor %v, want %v", set.ChainIssuedAt, h.clock.Now())
	}

	wantAccessExpiry := h.clock.Now().Add(h.engine.config.Tokens.AccessTTL)
	if !set.AccessToken.ExpiresAt.Equal(wantAccessExpiry) {
		t.Fatalf("access expiry %v, want %v", set.AccessToken.ExpiresAt, wantAccessExpiry)
	}

	if got := h.engine.metrics.Value(MetricIssueSuccess); got != 1 {
		t.Fatalf("issue success counter %d, want 1", got)
	}
}

func TestCreateTokenSetRequiresUserID(t *testing.T) {
	cfg := lifecycleTestConfig()
	cfg.Audit.Enabled = true
	h := newLifecycleEngine(t, cfg)

	if _, err := h.engine.CreateTokenSet(context.Background(), UserPayload{}, nil); !errors.Is(err, ErrUserIDRequired) {
		t.Fatalf("expected ErrUserIDRequired, got %v", err)
	}

	// Rejected issuance still signals through the event stream.
	event := waitForEvent(t, h.sink, EventTokenSetCreateFailed)
	if event.Success || event.Error == "" {
		t.Fatalf("failure event malformed: %+v", event)
	}
}

func TestCreateTokenSetIssuesIDTokenWhenConfigured(t *testing.T) {
	cfg := lifecycleTestConfig()
	cfg.Tokens.IssueIDToken = true
	h := newLifecycleEngine(t, cfg)

	set, err := h.engine.CreateTokenSet(context.Background(), UserPayload{
		UserID:  "u1",
		Profile: map[string]string{"name": "Alice"},
	}, nil)
	if err != nil {
		t.Fatalf("CreateTokenSet failed: %v", err)
	}
	if set.IDToken == nil || set.IDToken.Value == "" {
		t.Fatal("expected identity token")
	}
	if set.IDToken.Kind != KindID {
		t.Fatalf("identity token kind %q, want %q", set.IDToken.Kind, KindID)
	}
}

func TestCreateTokenSetReadsSecurityContextFromContext(t *testing.T) {
	h := newLifecycleEngine(t, lifecycleTestConfig())

	ctx := WithClientIP(context.Background(), "192.0.2.7")
	ctx = WithUserAgent(ctx, "cli/1.0")

	set, err := h.engine.CreateTokenSet(ctx, UserPayload{UserID: "u1"}, nil)
	if err != nil {
		t.Fatalf("CreateTokenSet failed: %v", err)
	}
	if set.SecurityContext.ClientIP != "192.0.2.7" {
		t.Fatalf("client ip %q, want 192.0.2.7", set.SecurityContext.ClientIP)
	}

	info, err := h.engine.InspectTokenSet(context.Background(), set.ID)
	if err != nil {
		t.Fatalf("InspectTokenSet failed: %v", err)
	}
	if info.SecurityContext.UserAgent != "cli/1.0" {
		t.Fatalf("persisted user agent %q, want cli/1.0", info.SecurityContext.UserAgent)
	}
}

func TestSessionCapEvictsOldestSet(t *testing.T) {
	cfg := lifecycleTestConfig()
	cfg.Session.MaxConcurrentSessions = 3
	cfg.Audit.Enabled = true
	h := newLifecycleEngine(t, cfg)

	ctx := context.Background()
	var sets []*TokenSet
	for i := 0; i < 4; i++ {
		set, err := h.engine.CreateTokenSet(ctx, UserPayload{UserID: "u1"}, nil)
		if err != nil {
			t.Fatalf("create %d failed: %v", i, err)
		}
		sets = append(sets, set)
		h.advance(time.Second)
	}

	info, err := h.engine.GetActiveSessions(ctx, "u1")
	if err != nil {
		t.Fatalf("GetActiveSessions failed: %v", err)
	}
	if info.Count != 3 {
		t.Fatalf("active sessions %d, want 3", info.Count)
	}
	for _, id := range info.TokenSetIDs {
		if id == sets[0].ID {
			t.Fatal("oldest set must have been evicted")
		}
	}

	event := waitForEvent(t, h.sink, EventSessionEvicted)
	if event.TokenSetID != sets[0].ID {
		t.Fatalf("evicted set %q, want %q", event.TokenSetID, sets[0].ID)
	}

	if got := h.engine.metrics.Value(MetricSessionEvicted); got != 1 {
		t.Fatalf("eviction counter %d, want 1", got)
	}
}

func TestEvictedSetCannotRefresh(t *testing.T) {
	cfg := lifecycleTestConfig()
	cfg.Session.MaxConcurrentSessions = 1
	h := newLifecycleEngine(t, cfg)

	ctx := context.Background()
	first, err := h.engine.CreateTokenSet(ctx, UserPayload{UserID: "u1"}, nil)
	if err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	h.advance(time.Second)
	if _, err := h.engine.CreateTokenSet(ctx, UserPayload{UserID: "u1"}, nil); err != nil {
		t.Fatalf("second create failed: %v", err)
	}
	h.advance(10 * time.Second)

	if _, err := h.engine.RefreshTokenSet(ctx, first.RefreshToken.Value, nil); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked for evicted set, got %v", err)
	}
}

func TestSoftEvictionLeavesTokensUsable(t *testing.T) {
	cfg := lifecycleTestConfig()
	cfg.Session.MaxConcurrentSessions = 1
	cfg.Session.RevokeOnEvict = false
	h := newLifecycleEngine(t, cfg)

	ctx := context.Background()
	first, err := h.engine.CreateTokenSet(ctx, UserPayload{UserID: "u1"}, nil)
	if err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	h.advance(time.Second)
	if _, err := h.engine.CreateTokenSet(ctx, UserPayload{UserID: "u1"}, nil); err != nil {
		t.Fatalf("second create failed: %v", err)
	}

	result, err := h.engine.ValidateAccessToken(ctx, first.AccessToken.Value, nil)
	if err != nil {
		t.Fatalf("ValidateAccessToken failed: %v", err)
	}
	if !result.Valid {
		t.Fatalf("soft-evicted access token must stay valid, got code %s", result.Code)
	}
}

func TestGetSessionSummaryCountsUsersAndSessions(t *testing.T) {
	h := newLifecycleEngine(t, lifecycleTestConfig())

	ctx := context.Background()
	for _, userID := range []string{"u1", "u1", "u2"} {
		if _, err := h.engine.CreateTokenSet(ctx, UserPayload{UserID: userID}, nil); err != nil {
			t.Fatalf("create for %s failed: %v", userID, err)
		}
	}

	summary, err := h.engine.GetSessionSummary(ctx)
	if err != nil {
		t.Fatalf("GetSessionSummary failed: %v", err)
	}
	if summary.Users != 2 {
		t.Fatalf("users %d, want 2", summary.Users)
	}
	if summary.Sessions != 3 {
		t.Fatalf("sessions %d, want 3", summary.Sessions)
	}
}

func TestInspectTokenSetMissingRecord(t *testing.T) {
	h := newLifecycleEngine(t, lifecycleTestConfig())

	if _, err := h.engine.InspectTokenSet(context.Background(), "no-such-set"); !errors.Is(err, ErrTokenSetNotFound) {
		t.Fatalf("expected ErrTokenSetNotFound, got %v", err)
	}
}

func TestEngineClosedRejectsOperations(t *testing.T) {
	h := newLifecycleEngine(t, lifecycleTestConfig())
	h.engine.Close()

	if _, err := h.engine.CreateTokenSet(context.Background(), UserPayload{UserID: "u1"}, nil); !errors.Is(err, ErrEngineClosed) {
		t.Fatalf("expected ErrEngineClosed, got %v", err)
	}
	if _, err := h.engine.ValidateAccessToken(context.Background(), "x", nil); !errors.Is(err, ErrEngineClosed) {
		t.Fatalf("expected ErrEngineClosed, got %v", err)
	}
}
