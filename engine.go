package tokenlife

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tokenlife/tokenlife/internal/stores"
	"github.com/tokenlife/tokenlife/signer"
)

// Engine is the token lifecycle facade: issuance, validation, refresh
// rotation, revocation, and session tracking. Construct it through
// [Builder.Build]; all methods are then safe for concurrent use.
type Engine struct {
	config      Config
	signer      signer.Signer
	revocations *stores.RevocationStore
	registry    *stores.SessionRegistry
	sets        *stores.TokenSetStore
	gate        *stores.RefreshGate
	audit       *eventDispatcher
	metrics     *Metrics
	now         func() time.Time
	warn        func(format string, args ...any)

	sweepStop chan struct{}
	sweepWG   sync.WaitGroup
	closed    atomic.Bool
}

// Close stops the background sweeper and drains buffered lifecycle events.
// Engine methods called after Close return [ErrEngineClosed].
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.closed.Swap(true) {
		return
	}
	e.stopSweeper()
	if e.audit != nil {
		e.audit.Close()
	}
}

func (e *Engine) checkOpen() error {
	if e == nil || e.closed.Load() {
		return ErrEngineClosed
	}
	return nil
}

// GetMetrics returns a point-in-time copy of the engine counters.
func (e *Engine) GetMetrics() MetricsSnapshot {
	return e.MetricsSnapshot()
}

// MetricsSnapshot implements the source contract consumed by the exporters
// under metrics/export.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// AuditDropped reports lifecycle events dropped under dispatcher
// backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) emit(ctx context.Context, event Event) {
	if e == nil || e.audit == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = e.now()
	}
	e.audit.Emit(ctx, event)
}
