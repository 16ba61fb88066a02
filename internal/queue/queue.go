// Package queue carries reminder events from the scanner to the websocket
// dispatcher. A broker keeps the scanner decoupled from delivery; single-node
// deployments fall back to an in-memory channel.
package queue

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/taskmateai/taskmate/internal/models"
)

// Reminder kinds.
const (
	KindUpcoming  = "task_starting_soon"
	KindImmediate = "task_starting_soon_immediate"
)

// ReminderEvent is one "task starts soon" notification to deliver.
type ReminderEvent struct {
	ID           uuid.UUID        `json:"id"`
	TaskID       uuid.UUID        `json:"task_id"`
	Title        string           `json:"title"`
	Section      models.Section   `json:"section"`
	Date         string           `json:"date"`
	StartTime    models.TimeOfDay `json:"start_time"`
	Kind         string           `json:"kind"`
	Recipients   []string         `json:"recipients"` // owner + collaborator emails
	OffsetHours  float64          `json:"offset_hours"`
	MinutesUntil int              `json:"minutes_until"`
	CreatedAt    time.Time        `json:"created_at"`
}

// ReminderQueue is the transport between scanner and dispatcher.
type ReminderQueue interface {
	Publish(ctx context.Context, event *ReminderEvent) error
	// Consume delivers events until the context is canceled. The event
	// channel is closed on shutdown; the error channel reports transport
	// failures.
	Consume(ctx context.Context) (<-chan *ReminderEvent, <-chan error, error)
	Close() error
}
