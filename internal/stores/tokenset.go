package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenSetRecord is the durable view of an issued token set. Raw token
// values are never persisted; only identifiers and the claims needed to mint
// a replacement set during rotation.
type TokenSetRecord struct {
	ID             string `json:"id"`
	UserID         string `json:"user_id"`
	AccessTokenID  string `json:"access_token_id"`
	RefreshTokenID string `json:"refresh_token_id"`
	IDTokenID      string `json:"id_token_id,omitempty"`
	CreatedAt      int64  `json:"created_at"`

	ChainID         string `json:"chain_id"`
	ChainIssuedAt   int64  `json:"chain_issued_at"`
	RefreshChain    int    `json:"refresh_chain"`
	PreviousTokenID string `json:"previous_token_id,omitempty"`

	Role        string            `json:"role,omitempty"`
	Permissions []string          `json:"permissions,omitempty"`
	Profile     map[string]string `json:"profile,omitempty"`

	ClientIP  string `json:"client_ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	DeviceID  string `json:"device_id,omitempty"`
}

// TokenSetStore persists token-set records and the per-chain refresh usage
// counters keyed by token-set id and chain id respectively.
type TokenSetStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewTokenSetStore(redisClient redis.UniversalClient, prefix string) *TokenSetStore {
	if prefix == "" {
		prefix = "tl"
	}
	return &TokenSetStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *TokenSetStore) key(setID string) string {
	return s.prefix + ":ts:" + setID
}

func (s *TokenSetStore) chainKey(chainID string) string {
	return s.prefix + ":chain:" + chainID
}

func (s *TokenSetStore) Put(ctx context.Context, rec *TokenSetRecord, ttl time.Duration) error {
	encoded, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(rec.ID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Get returns ErrNotFound for absent records and ErrCorrupt for records that
// no longer decode; callers treat both as "token set not found" but report
// corruption distinctly in batch operations.
func (s *TokenSetStore) Get(ctx context.Context, setID string) (*TokenSetRecord, error) {
	data, err := s.redis.Get(ctx, s.key(setID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var rec TokenSetRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if rec.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrCorrupt)
	}
	return &rec, nil
}

func (s *TokenSetStore) Delete(ctx context.Context, setID string) error {
	if err := s.redis.Del(ctx, s.key(setID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// ChainUsage returns how many refreshes the chain has consumed.
func (s *TokenSetStore) ChainUsage(ctx context.Context, chainID string) (int, error) {
	n, err := s.redis.Get(ctx, s.chainKey(chainID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return int(n), nil
}

// IncrementChainUsage bumps the chain's consumed-refresh counter. The TTL is
// set on first increment only and spans the chain's remaining absolute
// lifetime, so the counter outlives every rotation inside it.
func (s *TokenSetStore) IncrementChainUsage(ctx context.Context, chainID string, ttl time.Duration) (int, error) {
	count, err := s.redis.Incr(ctx, s.chainKey(chainID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if count == 1 && ttl > 0 {
		if err := s.redis.Expire(ctx, s.chainKey(chainID), ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return int(count), nil
}
