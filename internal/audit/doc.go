// Package audit carries the security audit trail: the Event model, Sink
// implementations, and an asynchronous Dispatcher with a bounded buffer.
//
// The package decides nothing about which events exist; the engine emits them.
// Sinks must tolerate concurrent Emit calls only when they are used outside a
// Dispatcher, which always calls its sink from a single goroutine.
package audit
