package tokenlife

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tokenlife/tokenlife/internal/stores"
	"github.com/tokenlife/tokenlife/signer"
)

// chainInfo carries rotation lineage through mints. A fresh set starts a new
// chain; a rotation inherits the chain, advances its depth, and names the set
// it replaces so registration swaps instead of adding.
type chainInfo struct {
	ChainID         string
	ChainIssuedAt   time.Time
	RefreshChain    int
	PreviousTokenID string
	ReplacesSetID   string
}

// CreateTokenSet mints an access token, a refresh token, and optionally an
// identity token for an already-authenticated identity, persists them as one
// TokenSet, and registers the session. No partial set is ever visible: any
// sub-step failure unwinds what was written.
func (e *Engine) CreateTokenSet(ctx context.Context, payload UserPayload, secCtx *SecurityContext) (*TokenSet, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	sc := securityContextFrom(ctx, secCtx)
	if payload.UserID == "" {
		e.metricInc(MetricIssueFailure)
		e.emit(ctx, Event{
			Type:    EventTokenSetCreateFailed,
			IP:      sc.ClientIP,
			Success: false,
			Error:   ErrUserIDRequired.Error(),
		})
		return nil, ErrUserIDRequired
	}

	chain := chainInfo{
		ChainID:       uuid.NewString(),
		ChainIssuedAt: e.now(),
	}

	set, err := e.mintTokenSet(ctx, payload, sc, chain)
	if err != nil {
		e.metricInc(MetricIssueFailure)
		e.emit(ctx, Event{
			Type:    EventTokenSetCreateFailed,
			UserID:  payload.UserID,
			IP:      sc.ClientIP,
			Success: false,
			Error:   err.Error(),
		})
		return nil, err
	}

	e.metricInc(MetricIssueSuccess)
	e.emit(ctx, Event{
		Type:       EventTokenSetCreated,
		UserID:     set.UserID,
		TokenSetID: set.ID,
		TokenID:    set.AccessToken.ID,
		IP:         sc.ClientIP,
		Success:    true,
	})
	return set, nil
}

// mintTokenSet does the shared issuance work for CreateTokenSet and the
// refresh coordinator's Mint step: sign all constituent tokens, persist the
// record, register the session, and handle cap eviction.
func (e *Engine) mintTokenSet(ctx context.Context, payload UserPayload, sc SecurityContext, chain chainInfo) (*TokenSet, error) {
	now := e.now()
	setID := uuid.NewString()

	// The refresh token must not outlive the chain's absolute deadline.
	refreshTTL := e.config.Tokens.RefreshTTL
	if remaining := chain.ChainIssuedAt.Add(e.config.Tokens.AbsoluteExpiry).Sub(now); remaining < refreshTTL {
		if remaining <= 0 {
			return nil, ErrAbsoluteExpiry
		}
		refreshTTL = remaining
	}

	access, err := e.signer.CreateToken(ctx, signer.Payload{
		UserID:      payload.UserID,
		Kind:        string(KindAccess),
		SetID:       setID,
		Role:        payload.Role,
		Permissions: payload.Permissions,
	}, signer.CreateOptions{TTL: e.config.Tokens.AccessTTL})
	if err != nil {
		return nil, fmt.Errorf("mint access token: %w", err)
	}

	refresh, err := e.signer.CreateToken(ctx, signer.Payload{
		UserID: payload.UserID,
		Kind:   string(KindRefresh),
		SetID:  setID,
	}, signer.CreateOptions{TTL: refreshTTL})
	if err != nil {
		return nil, fmt.Errorf("mint refresh token: %w", err)
	}

	set := &TokenSet{
		ID:     setID,
		UserID: payload.UserID,
		AccessToken: Token{
			Value:     access.Token,
			ID:        access.TokenID,
			Kind:      KindAccess,
			UserID:    payload.UserID,
			IssuedAt:  access.IssuedAt,
			ExpiresAt: access.ExpiresAt,
		},
		RefreshToken: Token{
			Value:     refresh.Token,
			ID:        refresh.TokenID,
			Kind:      KindRefresh,
			UserID:    payload.UserID,
			IssuedAt:  refresh.IssuedAt,
			ExpiresAt: refresh.ExpiresAt,
		},
		CreatedAt:       now,
		ChainID:         chain.ChainID,
		ChainIssuedAt:   chain.ChainIssuedAt,
		RefreshChain:    chain.RefreshChain,
		PreviousTokenID: chain.PreviousTokenID,
		SecurityContext: sc,
	}

	if e.config.Tokens.IssueIDToken {
		id, err := e.signer.CreateToken(ctx, signer.Payload{
			UserID:  payload.UserID,
			Kind:    string(KindID),
			SetID:   setID,
			Profile: payload.Profile,
		}, signer.CreateOptions{TTL: e.config.Tokens.AccessTTL})
		if err != nil {
			return nil, fmt.Errorf("mint id token: %w", err)
		}
		set.IDToken = &Token{
			Value:     id.Token,
			ID:        id.TokenID,
			Kind:      KindID,
			UserID:    payload.UserID,
			IssuedAt:  id.IssuedAt,
			ExpiresAt: id.ExpiresAt,
		}
	}

	rec := recordFromSet(set, payload)
	if err := e.sets.Put(ctx, rec, refreshTTL); err != nil {
		return nil, fmt.Errorf("%w: persist token set: %v", ErrStoreUnavailable, err)
	}

	evicted, err := e.registry.Register(ctx, payload.UserID, setID, e.config.Session.MaxConcurrentSessions, chain.ReplacesSetID)
	if err != nil {
		// Unwind so the set never becomes visible half-registered.
		if delErr := e.sets.Delete(ctx, setID); delErr != nil {
			e.warn("tokenlife: unwind of unregistered set %s failed: %v", setID, delErr)
		}
		return nil, fmt.Errorf("%w: register session: %v", ErrStoreUnavailable, err)
	}
	e.metricInc(MetricSessionRegistered)

	if evicted != "" {
		e.handleEviction(ctx, payload.UserID, evicted, sc)
	}

	return set, nil
}

// handleEviction processes a cap overflow: advisory event plus, unless
// soft eviction is configured, revocation of the evicted set's tokens so the
// evicted session cannot keep renewing. The evicted access token is left to
// its natural short expiry either way.
func (e *Engine) handleEviction(ctx context.Context, userID, evictedSetID string, sc SecurityContext) {
	e.metricInc(MetricSessionEvicted)
	e.emit(ctx, Event{
		Type:       EventSessionEvicted,
		UserID:     userID,
		TokenSetID: evictedSetID,
		IP:         sc.ClientIP,
		Success:    true,
		Metadata:   map[string]string{"reason": "session_cap"},
	})

	if !e.config.Session.RevokeOnEvict {
		return
	}

	rec, err := e.sets.Get(ctx, evictedSetID)
	if err != nil {
		e.warn("tokenlife: evicted set %s not loadable for revocation: %v", evictedSetID, err)
		return
	}
	if err := e.retireSet(ctx, rec, ReasonEvicted, ""); err != nil {
		e.warn("tokenlife: revoking evicted set %s failed: %v", evictedSetID, err)
	}
}

func recordFromSet(set *TokenSet, payload UserPayload) *stores.TokenSetRecord {
	rec := &stores.TokenSetRecord{
		ID:              set.ID,
		UserID:          set.UserID,
		AccessTokenID:   set.AccessToken.ID,
		RefreshTokenID:  set.RefreshToken.ID,
		CreatedAt:       set.CreatedAt.Unix(),
		ChainID:         set.ChainID,
		ChainIssuedAt:   set.ChainIssuedAt.Unix(),
		RefreshChain:    set.RefreshChain,
		PreviousTokenID: set.PreviousTokenID,
		Role:            payload.Role,
		Permissions:     payload.Permissions,
		Profile:         payload.Profile,
		ClientIP:        set.SecurityContext.ClientIP,
		UserAgent:       set.SecurityContext.UserAgent,
		DeviceID:        set.SecurityContext.DeviceID,
	}
	if set.IDToken != nil {
		rec.IDTokenID = set.IDToken.ID
	}
	return rec
}
