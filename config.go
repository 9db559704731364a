package tokenlife

import (
	"errors"
	"time"
)

// Config groups all engine tuning parameters. Start from [DefaultConfig] and
// override fields: [Builder.Build] backfills zero durations and sizes, but a
// false [RefreshConfig].Rotation, a false [SessionConfig].RevokeOnEvict, or a
// zero [SessionConfig].MaxConcurrentSessions is a meaningful setting and is
// kept as given. Validation errors in Build are fatal.
type Config struct {
	Tokens     TokenConfig
	Refresh    RefreshConfig
	Session    SessionConfig
	Revocation RevocationConfig
	Security   SecurityConfig
	Sweep      SweepConfig
	Audit      AuditConfig
	Metrics    MetricsConfig

	// RedisPrefix namespaces every key written by the engine.
	RedisPrefix string
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig controls token lifetimes and the optional identity token.
type TokenConfig struct {
	// AccessTTL is the access token lifetime. Default 15 minutes.
	AccessTTL time.Duration
	// RefreshTTL is the individual refresh token lifetime. Default 30 days.
	RefreshTTL time.Duration
	// AbsoluteExpiry bounds a refresh chain's total lifetime independent of
	// rotation. Default 90 days.
	AbsoluteExpiry time.Duration
	// IssueIDToken mints an identity token carrying profile claims alongside
	// the access/refresh pair.
	IssueIDToken bool
	// RenewalThreshold is the remaining-lifetime fraction below which
	// validation sets ShouldRefresh. Default 0.3.
	RenewalThreshold float64
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig controls rotation and the concurrency gate.
type RefreshConfig struct {
	// MaxUsage bounds how many times one chain may be refreshed. 0 means
	// unlimited.
	MaxUsage int
	// Rotation revokes the consumed refresh token the instant the
	// replacement set is minted. Default on.
	Rotation bool
	// AllowConcurrent disables the per-(user, address) concurrency gate.
	AllowConcurrent bool
	// GracePeriod is both the gate entry lifetime and the RetryAfter hint
	// handed to rejected callers. Default 5 seconds.
	GracePeriod time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls the per-user session registry.
type SessionConfig struct {
	// MaxConcurrentSessions caps active token sets per user; the oldest
	// entry is evicted past the cap. 0 means unlimited. Default 3.
	MaxConcurrentSessions int
	// RevokeOnEvict additionally revokes the evicted set's refresh token so
	// a capped-out session cannot keep renewing. Disable to restore the
	// soft-eviction behavior where eviction only drops the registry entry.
	RevokeOnEvict bool
}

/*
====================================
REVOCATION CONFIG
====================================
*/

// RevocationConfig controls the denylist.
type RevocationConfig struct {
	// TTL bounds how long a revocation record is remembered. Default 24h.
	TTL time.Duration
}

// SecurityConfig controls contextual binding checks and the replay
// heuristic. Binding findings are advisory warnings unless Strict is set.
type SecurityConfig struct {
	BindClientIP  bool
	BindUserAgent bool
	// Strict turns a binding mismatch into a SECURITY_MISMATCH failure
	// instead of a warning.
	Strict bool
	// PreventReuse enables the fast-revalidation heuristic: a token seen
	// twice inside ReuseWindow emits an anomaly event. It never fails
	// validation on its own.
	PreventReuse bool
	// ReuseWindow is the replay detection window. Default 1 second.
	ReuseWindow time.Duration
}

// SweepConfig controls the background cleanup of expired concurrency-gate
// entries. Redis-held state expires via key TTLs and needs no sweep.
type SweepConfig struct {
	// Interval between sweeps. 0 disables the sweeper. Default 60 seconds.
	Interval time.Duration
}

// AuditConfig controls lifecycle event dispatch buffering.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops events instead of applying backpressure when the
	// buffer is full; drops are counted.
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the engine defaults: 15m access tokens, 30d refresh
// tokens, 90d absolute chain expiry, rotation on, 5s refresh grace period,
// 3 concurrent sessions with revoke-on-evict, 24h revocation TTL, 1s replay
// window, 60s sweep interval.
func DefaultConfig() Config {
	return Config{
		Tokens: TokenConfig{
			AccessTTL:        15 * time.Minute,
			RefreshTTL:       30 * 24 * time.Hour,
			AbsoluteExpiry:   90 * 24 * time.Hour,
			RenewalThreshold: 0.3,
		},
		Refresh: RefreshConfig{
			Rotation:    true,
			GracePeriod: 5 * time.Second,
		},
		Session: SessionConfig{
			MaxConcurrentSessions: 3,
			RevokeOnEvict:         true,
		},
		Revocation: RevocationConfig{
			TTL: 24 * time.Hour,
		},
		Security: SecurityConfig{
			ReuseWindow: time.Second,
		},
		Sweep: SweepConfig{
			Interval: time.Minute,
		},
		Audit: AuditConfig{
			BufferSize: 256,
			DropIfFull: true,
		},
		RedisPrefix: "tl",
	}
}

func normalizeConfig(cfg Config) Config {
	def := DefaultConfig()
	if cfg.Tokens.AccessTTL <= 0 {
		cfg.Tokens.AccessTTL = def.Tokens.AccessTTL
	}
	if cfg.Tokens.RefreshTTL <= 0 {
		cfg.Tokens.RefreshTTL = def.Tokens.RefreshTTL
	}
	if cfg.Tokens.AbsoluteExpiry <= 0 {
		cfg.Tokens.AbsoluteExpiry = def.Tokens.AbsoluteExpiry
	}
	if cfg.Tokens.RenewalThreshold <= 0 {
		cfg.Tokens.RenewalThreshold = def.Tokens.RenewalThreshold
	}
	if cfg.Refresh.GracePeriod <= 0 {
		cfg.Refresh.GracePeriod = def.Refresh.GracePeriod
	}
	if cfg.Revocation.TTL <= 0 {
		cfg.Revocation.TTL = def.Revocation.TTL
	}
	if cfg.Security.ReuseWindow <= 0 {
		cfg.Security.ReuseWindow = def.Security.ReuseWindow
	}
	if cfg.Audit.BufferSize <= 0 {
		cfg.Audit.BufferSize = def.Audit.BufferSize
	}
	if cfg.RedisPrefix == "" {
		cfg.RedisPrefix = def.RedisPrefix
	}
	return cfg
}

func validateConfig(cfg Config) error {
	if cfg.Tokens.RenewalThreshold >= 1 {
		return errors.New("renewal threshold must be below 1")
	}
	if cfg.Tokens.AbsoluteExpiry < cfg.Tokens.RefreshTTL {
		return errors.New("absolute expiry must not undercut refresh TTL")
	}
	if cfg.Refresh.MaxUsage < 0 {
		return errors.New("max usage must not be negative")
	}
	if cfg.Session.MaxConcurrentSessions < 0 {
		return errors.New("max concurrent sessions must not be negative")
	}
	return nil
}
