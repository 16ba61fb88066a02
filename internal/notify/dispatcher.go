package notify

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/taskmateai/taskmate/internal/observability"
	"github.com/taskmateai/taskmate/internal/queue"
	"github.com/taskmateai/taskmate/internal/timeutil"
)

// Emitter is the hub surface the dispatcher needs.
type Emitter interface {
	Emit(email string, n *Notification)
	Offset(email string) (float64, bool)
}

// Dispatcher drains the reminder queue into the websocket hub.
type Dispatcher struct {
	queue   queue.ReminderQueue
	hub     Emitter
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewDispatcher wires the queue consumer.
func NewDispatcher(q queue.ReminderQueue, hub Emitter, metrics *observability.Metrics, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{queue: q, hub: hub, metrics: metrics, logger: logger}
}

// Run consumes until the context is canceled or the queue closes.
func (d *Dispatcher) Run(ctx context.Context) error {
	events, errs, err := d.queue.Consume(ctx)
	if err != nil {
		return fmt.Errorf("starting reminder consumer: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-errs:
			if !ok {
				return nil
			}
			d.logger.Error("reminder_consumer_error", zap.Error(err))
		case event, ok := <-events:
			if !ok {
				return nil
			}
			d.deliver(event)
		}
	}
}

// deliver pushes one event to every recipient whose declared offset matches
// the zone the reminder was computed for. Users with no declared offset get
// it anyway; missing a reminder is worse than an off-zone one.
func (d *Dispatcher) deliver(event *queue.ReminderEvent) {
	n := &Notification{
		ID:        event.TaskID.String(),
		Title:     event.Title,
		StartTime: timeutil.Format(event.StartTime),
		Message:   reminderMessage(event),
		Type:      notificationType(event.Kind),
		UTCOffset: event.OffsetHours,
	}

	sent := 0
	for _, email := range event.Recipients {
		offset, known := d.hub.Offset(email)
		if known && math.Abs(offset-event.OffsetHours) >= 0.1 {
			continue
		}
		d.hub.Emit(email, n)
		sent++
	}

	if d.metrics != nil && sent > 0 {
		d.metrics.RemindersSent.WithLabelValues(event.Kind).Add(float64(sent))
	}
	d.logger.Debug("reminder_delivered",
		zap.String("task_id", event.TaskID.String()),
		zap.String("kind", event.Kind),
		zap.Int("recipients", sent))
}

func reminderMessage(event *queue.ReminderEvent) string {
	start := timeutil.Format(event.StartTime)
	if event.Kind == queue.KindImmediate && event.MinutesUntil != 60 {
		return fmt.Sprintf("%q starts in %d minutes at %s", event.Title, event.MinutesUntil, start)
	}
	return fmt.Sprintf("%q starts in 1 hour at %s", event.Title, start)
}

func notificationType(kind string) string {
	if kind == queue.KindImmediate {
		return "immediate"
	}
	return "reminder"
}
