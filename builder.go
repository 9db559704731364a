package tokenlife

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tokenlife/tokenlife/internal/stores"
	"github.com/tokenlife/tokenlife/signer"
)

// Builder assembles an [Engine]. Construction is allocation-only until Build;
// Build fails fast with [ErrDependencyMissing] when a required collaborator
// was not injected instead of degrading to a stub.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	signer signer.Signer
	sink   EventSink
	clock  func() time.Time
	warn   func(format string, args ...any)

	built bool
}

func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithSigner(s signer.Signer) *Builder {
	b.signer = s
	return b
}

// WithEventSink injects the lifecycle event subscriber. Required when audit
// is enabled; pass [NoOpSink] explicitly to discard events.
func (b *Builder) WithEventSink(sink EventSink) *Builder {
	b.sink = sink
	return b
}

// WithClock overrides the engine time source. Tests use it to drive expiry
// and grace-period behavior deterministically.
func (b *Builder) WithClock(clock func() time.Time) *Builder {
	b.clock = clock
	return b
}

// WithWarnLogger overrides the destination for operational warnings, which
// default to log.Printf.
func (b *Builder) WithWarnLogger(warn func(format string, args ...any)) *Builder {
	b.warn = warn
	return b
}

// Build validates configuration and dependencies and returns a ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := normalizeConfig(b.config)
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	if b.redis == nil {
		return nil, fmt.Errorf("%w: redis client", ErrDependencyMissing)
	}
	if b.signer == nil {
		return nil, fmt.Errorf("%w: token signer", ErrDependencyMissing)
	}
	if cfg.Audit.Enabled && b.sink == nil {
		return nil, fmt.Errorf("%w: event sink (audit enabled)", ErrDependencyMissing)
	}

	now := b.clock
	if now == nil {
		now = time.Now
	}
	warn := b.warn
	if warn == nil {
		warn = log.Printf
	}

	engine := &Engine{
		config:      cfg,
		signer:      b.signer,
		revocations: stores.NewRevocationStore(b.redis, cfg.RedisPrefix),
		registry:    stores.NewSessionRegistry(b.redis, cfg.RedisPrefix),
		sets:        stores.NewTokenSetStore(b.redis, cfg.RedisPrefix),
		gate:        stores.NewRefreshGate(),
		audit:       newEventDispatcher(cfg.Audit, b.sink),
		metrics:     NewMetrics(cfg.Metrics),
		now:         now,
		warn:        warn,
	}
	engine.startSweeper()

	b.built = true
	return engine, nil
}
