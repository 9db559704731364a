package stores

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// registerSessionScript adds the set id to the user's insertion-ordered
// session list and, when the cap is exceeded, pops and returns the oldest
// entry. ARGV[4] names a set id being replaced in the same step; removing it
// before the cap check keeps a rotation from counting as a second session.
// The score comes from a monotonic sequence key so same-millisecond
// registrations still evict in insertion order.
const registerSessionScript = `
if ARGV[4] ~= "" then
  redis.call("ZREM", KEYS[1], ARGV[4])
end
local seq = redis.call("INCR", KEYS[3])
redis.call("ZADD", KEYS[1], seq, ARGV[1])
redis.call("SADD", KEYS[2], ARGV[2])
local max = tonumber(ARGV[3])
if max > 0 then
  local count = redis.call("ZCARD", KEYS[1])
  if count > max then
    local oldest = redis.call("ZRANGE", KEYS[1], 0, 0)
    if oldest[1] then
      redis.call("ZREM", KEYS[1], oldest[1])
      return oldest[1]
    end
  end
end
return ""
`

var registerSessionLua = redis.NewScript(registerSessionScript)

const unregisterSessionScript = `
redis.call("ZREM", KEYS[1], ARGV[1])
if redis.call("ZCARD", KEYS[1]) == 0 then
  redis.call("DEL", KEYS[1])
  redis.call("SREM", KEYS[2], ARGV[2])
end
return 1
`

var unregisterSessionLua = redis.NewScript(unregisterSessionScript)

// SessionRegistry maps a user id to the insertion-ordered set of active
// token-set ids, enforcing the concurrency cap atomically.
type SessionRegistry struct {
	redis  redis.UniversalClient
	prefix string
}

func NewSessionRegistry(redisClient redis.UniversalClient, prefix string) *SessionRegistry {
	if prefix == "" {
		prefix = "tl"
	}
	return &SessionRegistry{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (r *SessionRegistry) sessionsKey(userID string) string {
	return r.prefix + ":sess:" + userID
}

func (r *SessionRegistry) usersKey() string {
	return r.prefix + ":users"
}

func (r *SessionRegistry) seqKey() string {
	return r.prefix + ":sess_seq"
}

// Register adds the token set to the user's active sessions. A non-empty
// replaces id is removed in the same script, so swapping one set for another
// never changes the session count. When maxSessions is positive and the cap
// is exceeded, the oldest entry is removed and its id returned for advisory
// handling by the caller.
func (r *SessionRegistry) Register(ctx context.Context, userID, setID string, maxSessions int, replaces string) (evicted string, err error) {
	res, err := registerSessionLua.Run(ctx, r.redis,
		[]string{r.sessionsKey(userID), r.usersKey(), r.seqKey()},
		setID, userID, maxSessions, replaces,
	).Result()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	out, _ := res.(string)
	return out, nil
}

// Unregister removes the entry; a user with no remaining sessions is dropped
// entirely.
func (r *SessionRegistry) Unregister(ctx context.Context, userID, setID string) error {
	if err := unregisterSessionLua.Run(ctx, r.redis,
		[]string{r.sessionsKey(userID), r.usersKey()},
		setID, userID,
	).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// List returns the user's active token-set ids in insertion order.
func (r *SessionRegistry) List(ctx context.Context, userID string) ([]string, error) {
	ids, err := r.redis.ZRange(ctx, r.sessionsKey(userID), 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return ids, nil
}

// Count returns the user's active session count.
func (r *SessionRegistry) Count(ctx context.Context, userID string) (int, error) {
	n, err := r.redis.ZCard(ctx, r.sessionsKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return int(n), nil
}

// Summary reports total users with at least one session and total sessions.
// Users whose session set emptied without an Unregister are pruned lazily.
func (r *SessionRegistry) Summary(ctx context.Context) (users, sessions int, err error) {
	ids, err := r.redis.SMembers(ctx, r.usersKey()).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	for _, userID := range ids {
		n, err := r.redis.ZCard(ctx, r.sessionsKey(userID)).Result()
		if err != nil {
			return 0, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if n == 0 {
			_ = r.redis.SRem(ctx, r.usersKey(), userID).Err()
			continue
		}
		users++
		sessions += int(n)
	}
	return users, sessions, nil
}
