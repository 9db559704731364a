package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrUnavailable wraps redis transport failures.
	ErrUnavailable = errors.New("redis unavailable")
	// ErrNotFound is returned when a looked-up record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrCorrupt is returned when a stored record cannot be decoded.
	ErrCorrupt = errors.New("record corrupt")
)

// RevocationRecord is the persisted denylist entry. RevokedAt and TTL are
// kept in the value for observability; the key TTL is authoritative.
type RevocationRecord struct {
	TokenID    string `json:"token_id"`
	UserID     string `json:"user_id,omitempty"`
	Reason     string `json:"reason"`
	RevokedAt  int64  `json:"revoked_at"`
	TTLSeconds int64  `json:"ttl_seconds"`
	NewSetID   string `json:"new_set_id,omitempty"`
}

// RevocationStore is the time-bounded denylist of revoked token ids.
type RevocationStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRevocationStore(redisClient redis.UniversalClient, prefix string) *RevocationStore {
	if prefix == "" {
		prefix = "tl"
	}
	return &RevocationStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *RevocationStore) key(tokenID string) string {
	return s.prefix + ":rvk:" + tokenID
}

func (s *RevocationStore) seenKey(tokenID string) string {
	return s.prefix + ":seen:" + tokenID
}

// Revoke inserts or overwrites the denylist entry. Overwriting makes repeat
// revocations idempotent.
func (s *RevocationStore) Revoke(ctx context.Context, rec RevocationRecord, ttl time.Duration) error {
	encoded, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(rec.TokenID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// IsRevoked reports whether the token id is currently denylisted.
func (s *RevocationStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.key(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n > 0, nil
}

// Get returns the denylist entry for a token id, ErrNotFound when absent.
func (s *RevocationStore) Get(ctx context.Context, tokenID string) (*RevocationRecord, error) {
	data, err := s.redis.Get(ctx, s.key(tokenID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var rec RevocationRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &rec, nil
}

// MarkValidated records a validation sighting of the token and reports
// whether the token was already seen inside the window. Drives the replay
// heuristic; a repeat sighting is an anomaly signal, never a failure.
func (s *RevocationStore) MarkValidated(ctx context.Context, tokenID string, window time.Duration) (repeat bool, err error) {
	ok, err := s.redis.SetNX(ctx, s.seenKey(tokenID), "1", window).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return !ok, nil
}
