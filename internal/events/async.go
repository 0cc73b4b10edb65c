package events

import (
	"context"
	"sync"
	"time"

	"github.com/reluxe-code/reluxe-booking/internal/observability/metrics"
	"github.com/reluxe-code/reluxe-booking/pkg/logging"
)

const asyncDeliveryTimeout = 5 * time.Second

// AsyncSink hands events to a background worker. When the buffer is full the
// event is dropped and counted; Track never blocks the caller.
type AsyncSink struct {
	next    Sink
	queue   chan Event
	logger  *logging.Logger
	metrics *metrics.BookingMetrics

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewAsyncSink starts the worker. Call Close to drain it.
func NewAsyncSink(next Sink, buffer int, logger *logging.Logger, m *metrics.BookingMetrics) *AsyncSink {
	if next == nil {
		panic("events: async sink requires a downstream sink")
	}
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &AsyncSink{
		next:    next,
		queue:   make(chan Event, buffer),
		logger:  logger,
		metrics: m,
	}
	s.wg.Add(1)
	go s.run()
	return s
}

func (s *AsyncSink) Track(_ context.Context, evt Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.drop(evt, "closed")
		return
	}
	select {
	case s.queue <- evt:
	default:
		s.drop(evt, "buffer full")
	}
}

// Close stops accepting events and waits for buffered ones to be delivered.
func (s *AsyncSink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *AsyncSink) run() {
	defer s.wg.Done()
	for evt := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), asyncDeliveryTimeout)
		s.next.Track(ctx, evt)
		cancel()
	}
}

func (s *AsyncSink) drop(evt Event, reason string) {
	s.metrics.ObserveTrackingDropped()
	s.logger.Warn("tracking event dropped", "name", evt.Name, "flow_id", evt.FlowID, "reason", reason)
}
