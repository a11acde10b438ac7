package events_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zebra-devops/marketedge-access-kernel/internal/access/events"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/logger"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/messaging"
	"github.com/zebra-devops/marketedge-access-kernel/pkg/testutil"
)

// blockingPublisher holds every publish until released, so tests can fill
// the queue deterministically.
type blockingPublisher struct {
	release chan struct{}
	mu      sync.Mutex
	events  []string
}

func newBlockingPublisher() *blockingPublisher {
	return &blockingPublisher{release: make(chan struct{})}
}

func (p *blockingPublisher) Publish(ctx context.Context, eventType string, data interface{}) error {
	<-p.release
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
	return nil
}

func (p *blockingPublisher) published() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func TestRecorderDeliversEvents(t *testing.T) {
	pub := testutil.NewMockPublisher()
	rec := events.NewAuditRecorder(pub, 16, logger.Nop())
	defer rec.Close()

	rec.Record(messaging.EventAccessDenied, messaging.AccessDeniedEvent{Operation: "orders.read"})

	require.Eventually(t, func() bool {
		return len(pub.Events()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, messaging.EventAccessDenied, pub.Events()[0].Type)
	assert.Equal(t, int64(0), rec.Dropped())
}

func TestRecorderNeverBlocksOnOverflow(t *testing.T) {
	pub := newBlockingPublisher()
	rec := events.NewUsageRecorder(pub, 4, logger.Nop())
	defer func() {
		close(pub.release)
		rec.Close()
	}()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			rec.Record(messaging.EventFlagEvaluated, messaging.FlagEvaluatedEvent{FlagKey: "f"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record blocked on a full queue")
	}

	// With the publisher stalled and a queue of 4, most events were dropped.
	assert.Greater(t, rec.Dropped(), int64(0))
}

func TestRecorderDropsOldestFirst(t *testing.T) {
	pub := newBlockingPublisher()
	rec := events.NewAuditRecorder(pub, 2, logger.Nop())

	// The drain goroutine may pull one event off the queue before stalling
	// in Publish, so exact occupancy is racy; what must hold is that the
	// newest events survive and older ones were discarded.
	for i := 0; i < 10; i++ {
		rec.Record(messaging.EventAccessDenied, i)
	}
	assert.Greater(t, rec.Dropped(), int64(0))

	close(pub.release)
	require.Eventually(t, func() bool {
		return pub.published() > 0
	}, time.Second, 5*time.Millisecond)
	rec.Close()
}
