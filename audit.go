package boxumco

import (
	"io"

	"github.com/Yellowatch/boxumco/internal/audit"
)

// AuditEvent is one security audit record.
type AuditEvent = audit.Event

// AuditSink receives audit events from the engine's dispatcher.
type AuditSink = audit.Sink

// NoOpSink discards audit events.
type NoOpSink = audit.NoOpSink

// ChannelSink buffers audit events in a channel.
type ChannelSink = audit.ChannelSink

// JSONWriterSink writes audit events as JSON lines.
type JSONWriterSink = audit.JSONWriterSink

// NewChannelSink returns a ChannelSink with the given capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a JSONWriterSink writing to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}
