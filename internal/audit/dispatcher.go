package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// Dispatcher hands events to a single background worker which forwards them
// to the sink in emission order. A nil *Dispatcher is valid and discards
// everything.
type Dispatcher struct {
	sink       Sink
	dropIfFull bool

	mu     sync.RWMutex
	closed bool
	queue  chan Event
	stop   chan struct{}
	idle   chan struct{}

	stopOnce sync.Once

	dropped   atomic.Uint64
	delivered atomic.Uint64
	panics    atomic.Uint64
}

// NewDispatcher starts the worker. It returns nil when cfg.Enabled is false.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	size := cfg.BufferSize
	if size < 1 {
		size = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		sink:       sink,
		dropIfFull: cfg.DropIfFull,
		queue:      make(chan Event, size),
		stop:       make(chan struct{}),
		idle:       make(chan struct{}),
	}
	go d.work()
	return d
}

// work drains the queue until Close closes it.
func (d *Dispatcher) work() {
	defer close(d.idle)
	for event := range d.queue {
		d.deliver(event)
	}
}

// deliver isolates the worker from a panicking sink.
func (d *Dispatcher) deliver(event Event) {
	defer func() {
		if recover() != nil {
			d.panics.Add(1)
		}
	}()
	d.sink.Emit(context.Background(), event)
	d.delivered.Add(1)
}

// Emit queues event. With DropIfFull it never blocks and counts the event as
// dropped when the queue is full; otherwise it waits for room, ctx or Close.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	if d.dropIfFull {
		select {
		case d.queue <- event:
		default:
			d.dropped.Add(1)
		}
		return
	}
	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.dropped.Add(1)
	case <-d.stop:
	}
}

// Close stops accepting events, flushes what is queued and waits for the
// worker. It is safe to call more than once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.RLock()
	already := d.closed
	d.mu.RUnlock()
	if already {
		<-d.idle
		return
	}

	// Wake blocked emitters before taking the write lock.
	d.stopOnce.Do(func() { close(d.stop) })
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.idle
}

// Dropped reports events discarded because the queue was full or the
// emitter's context ended first.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Delivered reports events the sink accepted without panicking.
func (d *Dispatcher) Delivered() uint64 {
	if d == nil {
		return 0
	}
	return d.delivered.Load()
}

// SinkPanics reports sink calls that panicked.
func (d *Dispatcher) SinkPanics() uint64 {
	if d == nil {
		return 0
	}
	return d.panics.Load()
}
