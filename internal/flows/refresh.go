package flows

import (
	"context"
	"time"

	"github.com/tokenlife/tokenlife/internal/stores"
)

// RefreshFailureKind classifies refresh failures for root-level error
// mapping. The zero value means success.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureConcurrent
	RefreshFailureInvalid
	RefreshFailureRevoked
	RefreshFailureSetNotFound
	RefreshFailureUsage
	RefreshFailureAbsoluteExpiry
	RefreshFailureStore
	RefreshFailureMint
	RefreshFailureRotate
)

// RefreshTokenInfo is the verified view of the presented refresh token.
type RefreshTokenInfo struct {
	TokenID   string
	UserID    string
	SetID     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// MintedSet identifies the replacement set produced by the Mint step. The
// root engine keeps the full token material; the flow only needs ids.
type MintedSet struct {
	SetID          string
	RefreshTokenID string
}

// RefreshResult carries either the minted replacement or failure metadata.
type RefreshResult struct {
	Failure RefreshFailureKind
	Err     error

	UserID          string
	ConsumedTokenID string
	OldSetID        string
	ChainID         string
	RefreshChain    int
	Minted          *MintedSet
}

// RefreshGate is the concurrency gate consumed by the flow.
type RefreshGate interface {
	TryAcquire(key string, now time.Time, grace time.Duration) bool
}

// RefreshDeps captures every refresh collaborator. The gate check runs first
// and touches nothing but an unverified claim peek, so refresh storms fail
// fast before any signature or storage work.
type RefreshDeps struct {
	Now             func() time.Time
	ClientIP        string
	AllowConcurrent bool
	GracePeriod     time.Duration
	Gate            RefreshGate

	// PeekUserID extracts the subject without signature verification; it
	// only feeds the gate key, never an authorization decision.
	PeekUserID func(token string) (string, error)
	Validate   func(ctx context.Context, token string) (*RefreshTokenInfo, error)
	IsRevoked  func(ctx context.Context, tokenID string) (bool, error)

	LoadSet    func(ctx context.Context, setID string) (*stores.TokenSetRecord, error)
	NotFound   func(error) bool
	ChainUsage func(ctx context.Context, chainID string) (int, error)

	MaxUsage       int
	AbsoluteExpiry time.Duration

	Mint     func(ctx context.Context, old *stores.TokenSetRecord, consumedTokenID string) (*MintedSet, error)
	Rotation bool
	// RevokeOld denylists the consumed refresh token and retires the old
	// set; Rollback unwinds the minted set when rotation fails so no two
	// live sets ever share a chain position.
	RevokeOld func(ctx context.Context, old *stores.TokenSetRecord, consumedTokenID, newSetID string) error
	Rollback  func(ctx context.Context, minted *MintedSet)

	CommitUsage func(ctx context.Context, chainID string, ttl time.Duration) error
	Warn        func(format string, args ...any)
}

// RunRefresh executes the refresh state machine:
// gate, validate, usage check, absolute-expiry check, mint, rotate, commit.
// Any failure aborts without partial effects; the minted set becomes
// externally visible only once rotation has retired its predecessor.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	now := deps.Now()

	if !deps.AllowConcurrent {
		userID, err := deps.PeekUserID(refreshToken)
		if err != nil {
			return RefreshResult{Failure: RefreshFailureInvalid, Err: err}
		}
		key := userID + "|" + deps.ClientIP
		if !deps.Gate.TryAcquire(key, now, deps.GracePeriod) {
			return RefreshResult{Failure: RefreshFailureConcurrent, UserID: userID}
		}
	}

	info, err := deps.Validate(ctx, refreshToken)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureInvalid, Err: err}
	}

	revoked, err := deps.IsRevoked(ctx, info.TokenID)
	if err != nil {
		return RefreshResult{
			Failure:         RefreshFailureStore,
			Err:             err,
			UserID:          info.UserID,
			ConsumedTokenID: info.TokenID,
		}
	}
	if revoked {
		return RefreshResult{
			Failure:         RefreshFailureRevoked,
			UserID:          info.UserID,
			ConsumedTokenID: info.TokenID,
			OldSetID:        info.SetID,
		}
	}

	old, err := deps.LoadSet(ctx, info.SetID)
	if err != nil {
		if deps.NotFound(err) {
			return RefreshResult{
				Failure:         RefreshFailureSetNotFound,
				Err:             err,
				UserID:          info.UserID,
				ConsumedTokenID: info.TokenID,
				OldSetID:        info.SetID,
			}
		}
		return RefreshResult{
			Failure:         RefreshFailureStore,
			Err:             err,
			UserID:          info.UserID,
			ConsumedTokenID: info.TokenID,
			OldSetID:        info.SetID,
		}
	}

	fail := func(kind RefreshFailureKind, err error) RefreshResult {
		return RefreshResult{
			Failure:         kind,
			Err:             err,
			UserID:          old.UserID,
			ConsumedTokenID: info.TokenID,
			OldSetID:        old.ID,
			ChainID:         old.ChainID,
			RefreshChain:    old.RefreshChain,
		}
	}

	if deps.MaxUsage > 0 {
		usage, err := deps.ChainUsage(ctx, old.ChainID)
		if err != nil {
			return fail(RefreshFailureStore, err)
		}
		if usage >= deps.MaxUsage {
			return fail(RefreshFailureUsage, nil)
		}
	}

	chainIssued := time.Unix(old.ChainIssuedAt, 0)
	chainDeadline := chainIssued.Add(deps.AbsoluteExpiry)
	if now.After(chainDeadline) {
		return fail(RefreshFailureAbsoluteExpiry, nil)
	}

	minted, err := deps.Mint(ctx, old, info.TokenID)
	if err != nil {
		return fail(RefreshFailureMint, err)
	}

	if deps.Rotation {
		if err := deps.RevokeOld(ctx, old, info.TokenID, minted.SetID); err != nil {
			deps.Rollback(ctx, minted)
			return fail(RefreshFailureRotate, err)
		}
	}

	// Usage accounting is audit data on an already-rotated chain; its
	// failure must not strand the caller without the set that now exists.
	if err := deps.CommitUsage(ctx, old.ChainID, chainDeadline.Sub(now)); err != nil && deps.Warn != nil {
		deps.Warn("tokenlife: chain usage commit failed: %v", err)
	}

	return RefreshResult{
		Failure:         RefreshFailureNone,
		UserID:          old.UserID,
		ConsumedTokenID: info.TokenID,
		OldSetID:        old.ID,
		ChainID:         old.ChainID,
		RefreshChain:    old.RefreshChain + 1,
		Minted:          minted,
	}
}
