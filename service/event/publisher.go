package event

import (
	"context"
	"sync"

	"github.com/epicflow/epicflow/internal/clock"
	"github.com/epicflow/epicflow/service/messaging"
	qmem "github.com/epicflow/epicflow/service/messaging/memory"
)

// Publisher fans epic lifecycle events out to an embedding host via a
// buffered queue and an optional synchronous listener.
type Publisher struct {
	queue    messaging.Queue[Event]
	listener func(*Event)
	mux      sync.RWMutex
}

// NewPublisher creates a publisher backed by the supplied queue; a nil queue
// gets an in-memory default.
func NewPublisher(queue messaging.Queue[Event]) *Publisher {
	if queue == nil {
		queue = qmem.NewQueue[Event](qmem.DefaultConfig())
	}
	return &Publisher{queue: queue}
}

// SetListener installs a synchronous callback invoked for every event in
// addition to queue delivery.
func (p *Publisher) SetListener(fn func(*Event)) {
	p.mux.Lock()
	defer p.mux.Unlock()
	p.listener = fn
}

// Publish emits one event.
func (p *Publisher) Publish(ctx context.Context, e Event) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = clock.Now()
	}
	p.mux.RLock()
	listener := p.listener
	p.mux.RUnlock()
	if listener != nil {
		listener(&e)
	}
	_ = p.queue.Publish(ctx, &e)
}

// Queue exposes the underlying event queue for consumers.
func (p *Publisher) Queue() messaging.Queue[Event] {
	return p.queue
}
