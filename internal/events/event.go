// Package events carries booking tracking events from the engine to the
// analytics pipeline. Tracking is fire-and-forget: Track never returns an
// error and callers never branch on delivery.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/reluxe-code/reluxe-booking/pkg/logging"
)

// Tracking event names.
const (
	ServiceSelected  = "service_selected"
	ProviderSelected = "provider_selected"
	DateSelected     = "date_selected"
	TimeSelected     = "time_selected"
	ContactProvided  = "contact_provided"
)

// Event is one named tracking event.
type Event struct {
	ID         uuid.UUID      `json:"id"`
	Name       string         `json:"name"`
	FlowID     string         `json:"flow_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// New stamps an event with a fresh id and the current time.
func New(name, flowID string, payload map[string]any) Event {
	return Event{
		ID:         uuid.New(),
		Name:       name,
		FlowID:     flowID,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	}
}

// Sink receives tracking events.
type Sink interface {
	Track(ctx context.Context, evt Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, evt Event)

func (f SinkFunc) Track(ctx context.Context, evt Event) { f(ctx, evt) }

// NopSink discards events.
type NopSink struct{}

func (NopSink) Track(context.Context, Event) {}

// LogSink writes events to the structured log.
type LogSink struct {
	logger *logging.Logger
}

func NewLogSink(logger *logging.Logger) *LogSink {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Track(_ context.Context, evt Event) {
	s.logger.Info("tracking event", "event_id", evt.ID, "name", evt.Name, "flow_id", evt.FlowID, "payload", evt.Payload)
}

// MultiSink fans an event out to every sink in order.
type MultiSink []Sink

func (m MultiSink) Track(ctx context.Context, evt Event) {
	for _, s := range m {
		if s != nil {
			s.Track(ctx, evt)
		}
	}
}
