package tokenlife

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tokenlife/tokenlife/internal/stores"
)

// GetActiveSessions returns one user's active token-set ids in insertion
// order.
func (e *Engine) GetActiveSessions(ctx context.Context, userID string) (*SessionInfo, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}

	ids, err := e.registry.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return &SessionInfo{
		UserID:      userID,
		Count:       len(ids),
		TokenSetIDs: ids,
	}, nil
}

// GetSessionSummary returns the global registry view: total users with at
// least one active session and total sessions.
func (e *Engine) GetSessionSummary(ctx context.Context) (*SessionSummary, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}

	users, sessions, err := e.registry.Summary(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return &SessionSummary{
		Users:    users,
		Sessions: sessions,
	}, nil
}

// TokenSetInfo is the operational view of a durable token-set record. Raw
// token values are never stored, so none are returned.
type TokenSetInfo struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	AccessTokenID   string          `json:"access_token_id"`
	RefreshTokenID  string          `json:"refresh_token_id"`
	IDTokenID       string          `json:"id_token_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	ChainID         string          `json:"chain_id"`
	ChainIssuedAt   time.Time       `json:"chain_issued_at"`
	RefreshChain    int             `json:"refresh_chain"`
	PreviousTokenID string          `json:"previous_token_id,omitempty"`
	RefreshUsage    int             `json:"refresh_usage"`
	SecurityContext SecurityContext `json:"security_context"`
}

// InspectTokenSet reads the durable record of a token set for operational
// debugging. A missing record returns [ErrTokenSetNotFound], never a crash.
func (e *Engine) InspectTokenSet(ctx context.Context, setID string) (*TokenSetInfo, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}

	rec, err := e.sets.Get(ctx, setID)
	if err != nil {
		if errors.Is(err, stores.ErrNotFound) || errors.Is(err, stores.ErrCorrupt) {
			return nil, ErrTokenSetNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	usage, err := e.sets.ChainUsage(ctx, rec.ChainID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return &TokenSetInfo{
		ID:              rec.ID,
		UserID:          rec.UserID,
		AccessTokenID:   rec.AccessTokenID,
		RefreshTokenID:  rec.RefreshTokenID,
		IDTokenID:       rec.IDTokenID,
		CreatedAt:       time.Unix(rec.CreatedAt, 0),
		ChainID:         rec.ChainID,
		ChainIssuedAt:   time.Unix(rec.ChainIssuedAt, 0),
		RefreshChain:    rec.RefreshChain,
		PreviousTokenID: rec.PreviousTokenID,
		RefreshUsage:    usage,
		SecurityContext: SecurityContext{
			ClientIP:  rec.ClientIP,
			UserAgent: rec.UserAgent,
			DeviceID:  rec.DeviceID,
		},
	}, nil
}
