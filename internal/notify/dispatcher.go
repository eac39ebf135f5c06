package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrQueueFull is returned by Dispatcher.Send when the buffer is full.
var ErrQueueFull = errors.New("notification queue full")

// deliverTimeout bounds one delivery attempt.
const deliverTimeout = 30 * time.Second

// Dispatcher is an in-process Sink: a buffered channel drained by a fixed
// set of goroutines. It serves deployments without Redis.
type Dispatcher struct {
	delivery *Delivery
	queue    chan Message
	workers  int
	log      *zap.Logger
	wg       sync.WaitGroup
}

// NewDispatcher builds a Dispatcher with queue capacity tied to worker count.
func NewDispatcher(delivery *Delivery, workers int, log *zap.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	return &Dispatcher{
		delivery: delivery,
		queue:    make(chan Message, workers*16),
		workers:  workers,
		log:      log,
	}
}

// Start launches worker goroutines. They exit when ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
}

// Wait blocks until every worker has exited.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Send queues msg without blocking. A full buffer drops the message.
func (d *Dispatcher) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	select {
	case d.queue <- msg:
		return nil
	default:
		d.log.Warn("notification queue full, dropping message",
			zap.String("kind", string(msg.Kind)),
			zap.String("to", msg.To))
		return ErrQueueFull
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-d.queue:
			d.deliver(ctx, msg)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, msg Message) {
	ctx, cancel := context.WithTimeout(ctx, deliverTimeout)
	defer cancel()
	if err := d.delivery.Deliver(ctx, msg); err != nil {
		d.log.Error("notification delivery failed",
			zap.String("kind", string(msg.Kind)),
			zap.String("to", msg.To),
			zap.Error(err))
	}
}
