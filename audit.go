package tokenlife

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Lifecycle event types emitted by the engine.
const (
	EventTokenSetCreated      = "token_set_created"
	EventTokenSetCreateFailed = "token_set_create_failed"
	EventTokenSetRefreshed    = "token_set_refreshed"
	EventRefreshFailed        = "token_set_refresh_failed"
	EventTokenRevoked         = "token_revoked"
	EventUserTokensRevoked    = "user_tokens_revoked"
	EventSessionEvicted       = "session_evicted"
	EventSecurityAnomaly      = "security_anomaly"
)

// Event is the lifecycle notification payload. Emission is fire-and-forget:
// a slow or failing sink never blocks issuance or validation.
type Event struct {
	Timestamp  time.Time         `json:"timestamp"`
	Type       string            `json:"type"`
	UserID     string            `json:"user_id,omitempty"`
	TokenSetID string            `json:"token_set_id,omitempty"`
	TokenID    string            `json:"token_id,omitempty"`
	IP         string            `json:"ip,omitempty"`
	Success    bool              `json:"success"`
	Error      string            `json:"error,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// EventSink receives lifecycle events from the dispatcher goroutine.
// Implementations must tolerate concurrent Emit calls.
type EventSink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink discards events. It must be injected explicitly; the engine never
// substitutes it on its own.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink forwards events to a buffered channel, mainly for tests and
// in-process subscribers.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan Event, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line to the writer.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}
