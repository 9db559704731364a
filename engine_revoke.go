package tokenlife

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/tokenlife/tokenlife/internal/stores"
)

// RevokeToken denylists the presented token and retires its owning token
// set. Revocation must be robust to garbage input: a malformed token still
// produces a best-effort record keyed by a digest of the raw value rather
// than failing the call. Repeat revocations are idempotent.
func (e *Engine) RevokeToken(ctx context.Context, token string, reason string) (*RevocationRecord, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	if reason == "" {
		reason = ReasonUserRequest
	}

	tokenID, userID, setID := e.identifyToken(ctx, token)

	now := e.now()
	rec := RevocationRecord{
		TokenID:   tokenID,
		UserID:    userID,
		Reason:    reason,
		RevokedAt: now,
		TTL:       e.config.Revocation.TTL,
	}
	if err := e.revocations.Revoke(ctx, stores.RevocationRecord{
		TokenID:    tokenID,
		UserID:     userID,
		Reason:     reason,
		RevokedAt:  now.Unix(),
		TTLSeconds: int64(e.config.Revocation.TTL / time.Second),
	}, e.config.Revocation.TTL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	// Retire the owning set so its refresh token cannot renew what was just
	// revoked. Best-effort: the denylist entry above already stands.
	if setID != "" {
		if setRec, err := e.sets.Get(ctx, setID); err == nil {
			if err := e.retireSet(ctx, setRec, reason, ""); err != nil {
				e.warn("tokenlife: retiring set %s after revoke failed: %v", setID, err)
			}
		}
	}

	e.metricInc(MetricRevocation)
	e.emit(ctx, Event{
		Type:       EventTokenRevoked,
		UserID:     userID,
		TokenSetID: setID,
		TokenID:    tokenID,
		Success:    true,
		Metadata:   map[string]string{"reason": reason},
	})
	return &rec, nil
}

// RevokeAllUserTokens revokes every registered session of the user.
// Individual failures (missing or corrupt records) are counted and skipped;
// the batch never aborts.
func (e *Engine) RevokeAllUserTokens(ctx context.Context, userID string, reason string) (*RevokeAllResult, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	if reason == "" {
		reason = ReasonRevokeAll
	}

	setIDs, err := e.registry.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	result := &RevokeAllResult{UserID: userID}
	for _, setID := range setIDs {
		rec, err := e.sets.Get(ctx, setID)
		if err != nil {
			e.warn("tokenlife: revoke-all skipping set %s: %v", setID, err)
			// Drop the dangling registry entry so it does not linger.
			_ = e.registry.Unregister(ctx, userID, setID)
			result.Failed++
			continue
		}
		if err := e.retireSet(ctx, rec, reason, ""); err != nil {
			e.warn("tokenlife: revoke-all failed for set %s: %v", setID, err)
			result.Failed++
			continue
		}
		result.RevokedSetIDs = append(result.RevokedSetIDs, setID)
	}

	e.metricInc(MetricRevokeAllBatch)
	e.emit(ctx, Event{
		Type:    EventUserTokensRevoked,
		UserID:  userID,
		Success: result.Failed == 0,
		Metadata: map[string]string{
			"reason":  reason,
			"revoked": strconv.Itoa(len(result.RevokedSetIDs)),
			"failed":  strconv.Itoa(result.Failed),
		},
	})
	return result, nil
}

// retireSet denylists the set's access and refresh token ids, removes the
// registry entry, and deletes the durable record.
func (e *Engine) retireSet(ctx context.Context, rec *stores.TokenSetRecord, reason, newSetID string) error {
	now := e.now().Unix()
	ttlSeconds := int64(e.config.Revocation.TTL / time.Second)

	for _, tokenID := range []string{rec.RefreshTokenID, rec.AccessTokenID} {
		if tokenID == "" {
			continue
		}
		if err := e.revocations.Revoke(ctx, stores.RevocationRecord{
			TokenID:    tokenID,
			UserID:     rec.UserID,
			Reason:     reason,
			RevokedAt:  now,
			TTLSeconds: ttlSeconds,
			NewSetID:   newSetID,
		}, e.config.Revocation.TTL); err != nil {
			return err
		}
	}

	if err := e.registry.Unregister(ctx, rec.UserID, rec.ID); err != nil {
		return err
	}
	return e.sets.Delete(ctx, rec.ID)
}

// identifyToken extracts (tokenID, userID, setID) from a presented token,
// degrading from verified claims to an unverified peek to a digest of the
// raw value.
func (e *Engine) identifyToken(ctx context.Context, token string) (tokenID, userID, setID string) {
	if claims, err := e.signer.ValidateToken(ctx, token); err == nil {
		return claims.TokenID, claims.UserID, claims.SetID
	}
	if id, uid, err := e.signer.Peek(token); err == nil {
		return id, uid, ""
	}
	sum := sha256.Sum256([]byte(token))
	return "unknown:" + hex.EncodeToString(sum[:6]), "", ""
}
