package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinicbook/booking-platform/pkg/logging"
)

// DeliveryHandler emits events to the downstream notification/audit
// collaborator.
type DeliveryHandler interface {
	Handle(ctx context.Context, entry OutboxEntry) error
}

// Source exposes the outbox rows the deliverer drains. The storage layer
// implements it; events are appended inside the committing transaction of
// each appointment operation.
type Source interface {
	FetchPendingEvents(ctx context.Context, limit int32) ([]OutboxEntry, error)
	MarkEventDelivered(ctx context.Context, id uuid.UUID) (bool, error)
}

// Deliverer polls the outbox and invokes the handler. A delivery failure is
// logged and retried on the next pass; it never affects the appointment
// that produced the event.
type Deliverer struct {
	source    Source
	handler   DeliveryHandler
	logger    *logging.Logger
	batchSize int32
	interval  time.Duration
}

// NewDeliverer creates an outbox deliverer with default batch and interval.
func NewDeliverer(source Source, handler DeliveryHandler, logger *logging.Logger) *Deliverer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Deliverer{
		source:    source,
		handler:   handler,
		logger:    logger,
		batchSize: 25,
		interval:  2 * time.Second,
	}
}

// WithBatchSize overrides the number of rows drained per pass.
func (d *Deliverer) WithBatchSize(size int32) *Deliverer {
	if size > 0 {
		d.batchSize = size
	}
	return d
}

// WithInterval overrides the polling interval.
func (d *Deliverer) WithInterval(interval time.Duration) *Deliverer {
	if interval > 0 {
		d.interval = interval
	}
	return d
}

// Start polls until the context is cancelled.
func (d *Deliverer) Start(ctx context.Context) {
	if d.source == nil || d.handler == nil {
		return
	}
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Drain(ctx)
		}
	}
}

// Drain delivers one batch of pending events.
func (d *Deliverer) Drain(ctx context.Context) {
	entries, err := d.source.FetchPendingEvents(ctx, d.batchSize)
	if err != nil {
		d.logger.Error("outbox fetch failed", "error", err)
		return
	}
	for _, entry := range entries {
		if err := d.handler.Handle(ctx, entry); err != nil {
			d.logger.Error("outbox delivery failed", "error", err, "event_id", entry.ID, "type", entry.Type)
			continue
		}
		if ok, err := d.source.MarkEventDelivered(ctx, entry.ID); err != nil {
			d.logger.Error("failed to mark outbox delivered", "error", err, "event_id", entry.ID)
		} else if ok {
			d.logger.Debug("outbox delivered", "event_id", entry.ID, "type", entry.Type)
		}
	}
}

// LogHandler is the default delivery handler: it writes each event to the
// structured log. Real deployments plug a push/SMS/email dispatcher in.
type LogHandler struct {
	logger *logging.Logger
}

// NewLogHandler creates a logging delivery handler.
func NewLogHandler(logger *logging.Logger) *LogHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogHandler{logger: logger}
}

// Handle logs the event payload.
func (h *LogHandler) Handle(ctx context.Context, entry OutboxEntry) error {
	h.logger.Info("appointment event",
		"event_id", entry.ID,
		"type", entry.Type,
		"payload", string(entry.Payload),
	)
	return nil
}
