// Package events emits the kernel's outbound audit and usage events.
//
// Both streams are fire-and-forget, at-most-once, best-effort: callers hand
// an event to a bounded in-memory queue and continue immediately. A single
// drain goroutine publishes to RabbitMQ. On overflow the oldest queued event
// is dropped; emission never blocks or fails a kernel decision.
package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zebra-devops/marketedge-access-kernel/pkg/logger"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/messaging"
)

// Publisher is the transport the recorder drains into.
// *messaging.Publisher satisfies it; tests substitute a mock.
type Publisher interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
}

type queued struct {
	eventType string
	data      interface{}
}

// Recorder is a bounded, non-blocking event emitter.
type Recorder struct {
	name      string
	publisher Publisher
	queue     chan queued
	stop      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Int64
	logger    *logger.Logger
}

// NewAuditRecorder creates the recorder for compliance audit events.
func NewAuditRecorder(publisher Publisher, queueSize int, log *logger.Logger) *Recorder {
	return newRecorder("audit", publisher, queueSize, log)
}

// NewUsageRecorder creates the recorder for flag evaluation usage events.
func NewUsageRecorder(publisher Publisher, queueSize int, log *logger.Logger) *Recorder {
	return newRecorder("usage", publisher, queueSize, log)
}

func newRecorder(name string, publisher Publisher, queueSize int, log *logger.Logger) *Recorder {
	if queueSize <= 0 {
		queueSize = 1024
	}
	r := &Recorder{
		name:      name,
		publisher: publisher,
		queue:     make(chan queued, queueSize),
		stop:      make(chan struct{}),
		logger:    log.WithComponent(name + "-recorder"),
	}
	r.wg.Add(1)
	go r.drain()
	return r
}

// Record enqueues an event without blocking. When the queue is full the
// oldest queued event is dropped to make room.
func (r *Recorder) Record(eventType string, data interface{}) {
	ev := queued{eventType: eventType, data: data}
	for {
		select {
		case r.queue <- ev:
			return
		default:
		}
		select {
		case <-r.queue:
			r.dropped.Add(1)
		default:
		}
	}
}

// Dropped returns how many events were discarded due to overflow.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Close stops the drain goroutine. Queued events not yet published are lost;
// the streams are best-effort by contract.
func (r *Recorder) Close() {
	close(r.stop)
	r.wg.Wait()
}

func (r *Recorder) drain() {
	defer r.wg.Done()
	for {
		select {
		case <-r.stop:
			return
		case ev := <-r.queue:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := r.publisher.Publish(ctx, ev.eventType, ev.data); err != nil {
				r.logger.Warn().Err(err).Str("event_type", ev.eventType).Msg("failed to publish event")
			}
			cancel()
		}
	}
}

// NewAccessPublisher wires a messaging publisher on the access events exchange.
func NewAccessPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*messaging.Publisher, error) {
	return messaging.NewPublisher(rmq, messaging.ExchangeAccessEvents, "access-service", log)
}
