package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Event records the outcome of one account operation. Email is set only
// when no user id is known yet (failed login, duplicate registration).
type Event struct {
	Timestamp   time.Time         `json:"timestamp"`
	EventType   string            `json:"event_type"`
	UserID      string            `json:"user_id,omitempty"`
	AccountType string            `json:"account_type,omitempty"`
	Email       string            `json:"email,omitempty"`
	IP          string            `json:"ip,omitempty"`
	UserAgent   string            `json:"user_agent,omitempty"`
	Success     bool              `json:"success"`
	Error       string            `json:"error,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Sink receives audit events. Emit must not block past ctx.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// SinkFunc adapts a plain function to Sink.
type SinkFunc func(ctx context.Context, event Event)

// Emit calls f.
func (f SinkFunc) Emit(ctx context.Context, event Event) { f(ctx, event) }

// NoOpSink discards every event.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink hands events to a reader of Events. Emit blocks while the
// buffer is full unless ctx ends.
type ChannelSink struct {
	events chan Event
}

// NewChannelSink buffers up to buffer events, at least one.
func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{events: make(chan Event, max(buffer, 1))}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case <-ctx.Done():
	case s.events <- event:
	}
}

func (s *ChannelSink) Events() <-chan Event { return s.events }

// JSONWriterSink appends events to w as newline-delimited JSON. Write errors
// are ignored.
type JSONWriterSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	if w == nil {
		return &JSONWriterSink{}
	}
	return &JSONWriterSink{enc: json.NewEncoder(w)}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil || s.enc == nil {
		return
	}
	s.mu.Lock()
	_ = s.enc.Encode(event)
	s.mu.Unlock()
}
