package tokenlife

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/tokenlife/tokenlife/internal/flows"
	"github.com/tokenlife/tokenlife/internal/stores"
	"github.com/tokenlife/tokenlife/signer"
)

// RefreshTokenSet validates a refresh token and atomically produces a
// replacement token set while retiring the old one. Concurrent refreshes for
// the same (user, address) key are rejected with [ErrConcurrentRefresh] and
// a retry hint; callers retry after the grace period.
func (e *Engine) RefreshTokenSet(ctx context.Context, refreshToken string, secCtx *SecurityContext) (*TokenSet, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}

	sc := securityContextFrom(ctx, secCtx)

	var (
		minted *TokenSet
		oldRec *stores.TokenSetRecord
	)
	deps := flows.RefreshDeps{
		Now:             e.now,
		ClientIP:        sc.ClientIP,
		AllowConcurrent: e.config.Refresh.AllowConcurrent,
		GracePeriod:     e.config.Refresh.GracePeriod,
		Gate:            e.gate,
		PeekUserID: func(token string) (string, error) {
			_, userID, err := e.signer.Peek(token)
			return userID, err
		},
		Validate: func(ctx context.Context, token string) (*flows.RefreshTokenInfo, error) {
			claims, err := e.signer.ValidateToken(ctx, token)
			if err != nil {
				return nil, err
			}
			if claims.Kind != string(KindRefresh) {
				return nil, fmt.Errorf("%w: not a refresh token", signer.ErrMalformed)
			}
			return &flows.RefreshTokenInfo{
				TokenID:   claims.TokenID,
				UserID:    claims.UserID,
				SetID:     claims.SetID,
				IssuedAt:  claims.IssuedAt,
				ExpiresAt: claims.ExpiresAt,
			}, nil
		},
		IsRevoked:      e.revocations.IsRevoked,
		LoadSet:        e.sets.Get,
		NotFound:       func(err error) bool { return errors.Is(err, stores.ErrNotFound) },
		ChainUsage:     e.sets.ChainUsage,
		MaxUsage:       e.config.Refresh.MaxUsage,
		AbsoluteExpiry: e.config.Tokens.AbsoluteExpiry,
		Mint: func(ctx context.Context, old *stores.TokenSetRecord, consumedTokenID string) (*flows.MintedSet, error) {
			oldRec = old
			// Under rotation the replacement swaps into the old set's
			// registry slot; the session count never moves, so a refresh
			// at the cap cannot evict an unrelated session.
			replaces := ""
			if e.config.Refresh.Rotation {
				replaces = old.ID
			}
			set, err := e.mintTokenSet(ctx, UserPayload{
				UserID:      old.UserID,
				Role:        old.Role,
				Permissions: old.Permissions,
				Profile:     old.Profile,
			}, sc, chainInfo{
				ChainID:         old.ChainID,
				ChainIssuedAt:   time.Unix(old.ChainIssuedAt, 0),
				RefreshChain:    old.RefreshChain + 1,
				PreviousTokenID: consumedTokenID,
				ReplacesSetID:   replaces,
			})
			if err != nil {
				return nil, err
			}
			minted = set
			return &flows.MintedSet{
				SetID:          set.ID,
				RefreshTokenID: set.RefreshToken.ID,
			}, nil
		},
		Rotation: e.config.Refresh.Rotation,
		RevokeOld: func(ctx context.Context, old *stores.TokenSetRecord, consumedTokenID, newSetID string) error {
			rec := stores.RevocationRecord{
				TokenID:    consumedTokenID,
				UserID:     old.UserID,
				Reason:     ReasonRotated,
				RevokedAt:  e.now().Unix(),
				TTLSeconds: int64(e.config.Revocation.TTL / time.Second),
				NewSetID:   newSetID,
			}
			if err := e.revocations.Revoke(ctx, rec, e.config.Revocation.TTL); err != nil {
				return err
			}
			// The registry swap already happened at Mint; only the durable
			// record remains to retire.
			return e.sets.Delete(ctx, old.ID)
		},
		Rollback: func(ctx context.Context, m *flows.MintedSet) {
			if minted == nil {
				return
			}
			if err := e.registry.Unregister(ctx, minted.UserID, m.SetID); err != nil {
				e.warn("tokenlife: rollback unregister of set %s failed: %v", m.SetID, err)
			}
			if err := e.sets.Delete(ctx, m.SetID); err != nil {
				e.warn("tokenlife: rollback delete of set %s failed: %v", m.SetID, err)
			}
			// The mint swapped the old set out of the registry; put it back
			// so the still-live session stays visible. No cap here, the slot
			// was the old set's own.
			if oldRec != nil {
				if _, err := e.registry.Register(ctx, oldRec.UserID, oldRec.ID, 0, ""); err != nil {
					e.warn("tokenlife: rollback re-register of set %s failed: %v", oldRec.ID, err)
				}
			}
			minted = nil
		},
		CommitUsage: func(ctx context.Context, chainID string, ttl time.Duration) error {
			_, err := e.sets.IncrementChainUsage(ctx, chainID, ttl)
			return err
		},
		Warn: e.warn,
	}

	res := flows.RunRefresh(ctx, refreshToken, deps)
	if res.Failure != flows.RefreshFailureNone {
		return nil, e.refreshFailure(ctx, res, sc)
	}

	e.metricInc(MetricRefreshSuccess)
	e.emit(ctx, Event{
		Type:       EventTokenSetRefreshed,
		UserID:     res.UserID,
		TokenSetID: res.Minted.SetID,
		TokenID:    res.ConsumedTokenID,
		IP:         sc.ClientIP,
		Success:    true,
		Metadata: map[string]string{
			"previous_set_id": res.OldSetID,
			"refresh_chain":   strconv.Itoa(res.RefreshChain),
		},
	})
	return minted, nil
}

// refreshFailure maps state-machine outcomes onto the error taxonomy and
// records metrics and events.
func (e *Engine) refreshFailure(ctx context.Context, res flows.RefreshResult, sc SecurityContext) error {
	var err error
	switch res.Failure {
	case flows.RefreshFailureConcurrent:
		e.metricInc(MetricRefreshConcurrentRejected)
		err = &ConcurrentRefreshError{RetryAfter: e.config.Refresh.GracePeriod}
	case flows.RefreshFailureInvalid:
		err = ErrRefreshInvalid
	case flows.RefreshFailureRevoked:
		err = ErrTokenRevoked
	case flows.RefreshFailureSetNotFound:
		err = ErrTokenSetNotFound
	case flows.RefreshFailureUsage:
		e.metricInc(MetricRefreshUsageExceeded)
		err = ErrUsageExceeded
	case flows.RefreshFailureAbsoluteExpiry:
		e.metricInc(MetricRefreshAbsoluteExpiry)
		err = ErrAbsoluteExpiry
	case flows.RefreshFailureStore:
		err = fmt.Errorf("%w: %v", ErrStoreUnavailable, res.Err)
	case flows.RefreshFailureMint:
		err = fmt.Errorf("mint replacement set: %w", res.Err)
	case flows.RefreshFailureRotate:
		err = fmt.Errorf("%w: rotate old set: %v", ErrStoreUnavailable, res.Err)
	default:
		err = ErrRefreshInvalid
	}

	e.metricInc(MetricRefreshFailure)
	e.emit(ctx, Event{
		Type:       EventRefreshFailed,
		UserID:     res.UserID,
		TokenSetID: res.OldSetID,
		TokenID:    res.ConsumedTokenID,
		IP:         sc.ClientIP,
		Success:    false,
		Error:      err.Error(),
		Metadata:   map[string]string{"code": CodeOf(err)},
	})
	return err
}
