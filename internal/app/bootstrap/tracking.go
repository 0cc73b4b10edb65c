package bootstrap

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	appconfig "github.com/reluxe-code/reluxe-booking/internal/config"
	"github.com/reluxe-code/reluxe-booking/internal/events"
	"github.com/reluxe-code/reluxe-booking/internal/observability/metrics"
	"github.com/reluxe-code/reluxe-booking/pkg/logging"
)

// Tracking is the wired event pipeline. Sink never blocks its caller.
type Tracking struct {
	Sink events.Sink

	async     *events.AsyncSink
	deliverer *events.Deliverer
}

// Run drains the outbox until ctx is done. It returns immediately when no
// delivery transport is configured.
func (t *Tracking) Run(ctx context.Context) {
	if t == nil || t.deliverer == nil {
		return
	}
	t.deliverer.Start(ctx)
}

// Close flushes buffered events.
func (t *Tracking) Close() {
	if t != nil && t.async != nil {
		t.async.Close()
	}
}

// Delivers reports whether outbox entries are forwarded to a queue.
func (t *Tracking) Delivers() bool {
	return t != nil && t.deliverer != nil
}

// BuildTracking wires events through the Postgres outbox when a pool is
// given, otherwise to the log. Outbox entries are delivered to SQS when a
// client and TRACKING_QUEUE_URL are both present.
func BuildTracking(cfg *appconfig.Config, pool *pgxpool.Pool, sqsClient *sqs.Client, m *metrics.BookingMetrics, logger *logging.Logger) *Tracking {
	if logger == nil {
		logger = logging.Default()
	}

	var next events.Sink = events.NewLogSink(logger)
	var deliverer *events.Deliverer
	if pool != nil {
		store := events.NewOutboxStore(pool)
		next = events.NewOutboxSink(store, logger)
		queueURL := strings.TrimSpace(cfg.TrackingQueueURL)
		if sqsClient != nil && queueURL != "" {
			deliverer = events.NewDeliverer(store, events.NewSQSPublisher(sqsClient, queueURL), logger)
			logger.Info("tracking outbox delivery enabled", "queue_url", queueURL)
		} else {
			logger.Warn("tracking queue not configured; outbox entries are not delivered")
		}
	}

	async := events.NewAsyncSink(next, cfg.TrackingBuffer, logger, m)
	return &Tracking{Sink: async, async: async, deliverer: deliverer}
}
