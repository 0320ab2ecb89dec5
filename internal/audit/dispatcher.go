package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const defaultEmitTimeout = 5 * time.Second

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull discards events when the buffer is full instead of
	// blocking the caller.
	DropIfFull bool
	// EmitTimeout bounds each sink call. Default 5s.
	EmitTimeout time.Duration
	Logger      zerolog.Logger
}

// Stats counts dispatcher outcomes since creation.
type Stats struct {
	Delivered uint64
	Dropped   uint64
	Failed    uint64
}

// Dispatcher forwards audit events to a sink from a single goroutine so
// request paths never wait on sink I/O. A nil *Dispatcher is a valid
// disabled dispatcher.
type Dispatcher struct {
	cfg       Config
	sink      Sink
	queue     chan Event
	stop      chan struct{}
	stopped   sync.WaitGroup
	delivered atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
	closing   atomic.Bool
	closeOnce sync.Once
}

// NewDispatcher starts a dispatcher, or returns nil when cfg is disabled.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if cfg.EmitTimeout <= 0 {
		cfg.EmitTimeout = defaultEmitTimeout
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		cfg:   cfg,
		sink:  sink,
		queue: make(chan Event, cfg.BufferSize),
		stop:  make(chan struct{}),
	}
	d.stopped.Add(1)
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	defer d.stopped.Done()

	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		case <-d.stop:
			// Drain whatever is already buffered, then exit.
			for {
				select {
				case event := <-d.queue:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

// deliver isolates the loop from a misbehaving sink.
func (d *Dispatcher) deliver(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.EmitTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			d.failed.Add(1)
			d.cfg.Logger.Error().
				Interface("panic", r).
				Str("event", event.EventType).
				Msg("audit sink panicked")
		}
	}()

	d.sink.Emit(ctx, event)
	d.delivered.Add(1)
}

// Emit queues event. With DropIfFull a full buffer drops the event;
// otherwise Emit blocks until there is room, ctx ends, or the dispatcher
// closes.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closing.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.cfg.DropIfFull {
		select {
		case d.queue <- event:
		case <-d.stop:
		default:
			d.recordDrop(event)
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.recordDrop(event)
	case <-d.stop:
	}
}

// recordDrop logs the first drop and then every 1000th.
func (d *Dispatcher) recordDrop(event Event) {
	n := d.dropped.Add(1)
	if n == 1 || n%1000 == 0 {
		d.cfg.Logger.Warn().
			Uint64("dropped_total", n).
			Str("event", event.EventType).
			Msg("audit buffer full, dropping events")
	}
}

// Close stops intake, drains the buffer into the sink and waits for the
// loop to exit. It is safe to call more than once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closing.Store(true)
		close(d.stop)
		d.stopped.Wait()
	})
}

// Dropped returns the number of events discarded.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Stats returns the dispatcher counters.
func (d *Dispatcher) Stats() Stats {
	if d == nil {
		return Stats{}
	}
	return Stats{
		Delivered: d.delivered.Load(),
		Dropped:   d.dropped.Load(),
		Failed:    d.failed.Load(),
	}
}
