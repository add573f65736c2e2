package gradauth

import (
	"context"
	"sync"
	"sync/atomic"
)

// auditPump moves audit events from the authentication flows to the
// configured sink on one background goroutine, so Signup, Login, Refresh and
// the token flows never wait on sink I/O. With DropIfFull set a full buffer
// sheds the event and counts it; otherwise the emitting flow blocks until
// the sink catches up or its context ends.
type auditPump struct {
	sink    AuditSink
	events  chan AuditEvent
	drained chan struct{}
	block   bool
	dropped atomic.Uint64

	mu     sync.RWMutex
	closed bool
}

func newAuditPump(cfg AuditConfig, sink AuditSink) *auditPump {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	p := &auditPump{
		sink:    sink,
		events:  make(chan AuditEvent, cfg.BufferSize),
		drained: make(chan struct{}),
		block:   !cfg.DropIfFull,
	}

	go p.pump()

	return p
}

// pump drains the buffer until Close closes the channel, then signals that
// every accepted event reached the sink.
func (p *auditPump) pump() {
	for event := range p.events {
		p.sink.Emit(context.Background(), event)
	}
	close(p.drained)
}

// Emit hands one event to the pump. Events offered after Close are discarded
// without counting as drops.
func (p *auditPump) Emit(ctx context.Context, event AuditEvent) {
	if p == nil {
		return
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}

	if !p.block {
		select {
		case p.events <- event:
		default:
			p.dropped.Add(1)
		}
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case p.events <- event:
	case <-ctx.Done():
	}
}

// Close stops intake, waits for the buffered backlog to reach the sink, and
// returns. Safe to call more than once.
func (p *auditPump) Close() {
	if p == nil {
		return
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.events)
	p.mu.Unlock()

	<-p.drained
}

// Dropped reports how many events were shed under backpressure.
func (p *auditPump) Dropped() uint64 {
	if p == nil {
		return 0
	}
	return p.dropped.Load()
}
