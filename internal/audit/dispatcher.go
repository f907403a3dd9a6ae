package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config controls dispatcher buffering.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull makes Emit non-blocking; events that do not fit are counted
	// and passed to OnDrop.
	DropIfFull bool
	OnDrop     func(Event)
}

// Dispatcher forwards events to a sink from a single background goroutine.
// A nil *Dispatcher is valid and discards everything.
type Dispatcher struct {
	cfg       Config
	sink      Sink
	queue     chan Event
	stop      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewDispatcher starts a dispatcher, or returns nil when cfg.Enabled is false.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
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
	d.wg.Add(1)
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()
	ctx := context.Background()
	for {
		select {
		case ev := <-d.queue:
			d.sink.Emit(ctx, ev)
		case <-d.stop:
			// drain what is already queued
			for {
				select {
				case ev := <-d.queue:
					d.sink.Emit(ctx, ev)
				default:
					return
				}
			}
		}
	}
}

// Emit queues event. It never blocks past ctx or Close.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
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
			d.dropped.Add(1)
			if d.cfg.OnDrop != nil {
				d.cfg.OnDrop(event)
			}
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
	case <-d.stop:
	}
}

// Close stops accepting events, flushes the queue and waits for the sink.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.stop)
		d.wg.Wait()
	})
}

// Dropped returns how many events were discarded because the buffer was full.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
