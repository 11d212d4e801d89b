package hits

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/serroba/shortqr/internal/messaging"
	"go.uber.org/zap"
)

// DefaultQueueSize bounds the events waiting to be published.
const DefaultQueueSize = 1024

const publishTimeout = 2 * time.Second

// Dispatcher hands resolved-link events to a publisher off the request path.
// Record never blocks: when the queue is full the event is dropped.
type Dispatcher struct {
	queue   chan LinkResolvedEvent
	publish messaging.Publish[LinkResolvedEvent]
	logger  *zap.Logger
	dropped atomic.Int64

	stop     chan struct{}
	done     chan struct{}
	started  atomic.Bool
	stopOnce sync.Once
}

// NewDispatcher creates a dispatcher with a queue of the given size.
func NewDispatcher(publish messaging.Publish[LinkResolvedEvent], size int, logger *zap.Logger) *Dispatcher {
	if size <= 0 {
		size = DefaultQueueSize
	}

	return &Dispatcher{
		queue:   make(chan LinkResolvedEvent, size),
		publish: publish,
		logger:  logger,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Record enqueues an event and reports whether it was accepted.
func (d *Dispatcher) Record(event LinkResolvedEvent) bool {
	select {
	case <-d.stop:
		return false
	default:
	}

	select {
	case d.queue <- event:
		return true
	default:
		n := d.dropped.Add(1)
		d.logger.Warn("hit queue full, dropping event",
			zap.String("code", event.Code),
			zap.Int64("dropped_total", n),
		)

		return false
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Start publishes queued events in the background until Shutdown.
func (d *Dispatcher) Start(ctx context.Context) error {
	if !d.started.CompareAndSwap(false, true) {
		return nil
	}

	go d.run(context.WithoutCancel(ctx))

	return nil
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.done)

	for {
		select {
		case event := <-d.queue:
			d.send(ctx, event)
		case <-d.stop:
			d.drain(ctx)

			return
		}
	}
}

func (d *Dispatcher) drain(ctx context.Context) {
	for {
		select {
		case event := <-d.queue:
			d.send(ctx, event)
		default:
			return
		}
	}
}

func (d *Dispatcher) send(ctx context.Context, event LinkResolvedEvent) {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := d.publish(ctx, &event); err != nil {
		d.logger.Warn("failed to publish hit event",
			zap.String("code", event.Code),
			zap.Error(err),
		)
	}
}

// Shutdown stops accepting events, publishes what is queued and waits.
func (d *Dispatcher) Shutdown() error {
	d.stopOnce.Do(func() { close(d.stop) })

	if d.started.Load() {
		<-d.done
	}

	return nil
}
