// Package chat owns the conversational surface: the propose/confirm/cancel
// lifecycle and the task mutations it gates. Storage and notification are
// consumed through narrow interfaces so tests can run against fakes.
package chat

import (
	"context"

	"github.com/google/uuid"

	"github.com/taskmateai/taskmate/internal/models"
)

// TaskStore is the slice of the task repository the executor needs.
type TaskStore interface {
	Insert(ctx context.Context, task *models.Task) error
	ActiveByDate(ctx context.Context, userID uuid.UUID, date, section string) ([]models.Task, error)
	Active(ctx context.Context, userID uuid.UUID, section string) ([]models.Task, error)
	Archived(ctx context.Context, userID uuid.UUID) ([]models.Task, error)
	ByIDs(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) ([]models.Task, error)
	FindDuplicate(ctx context.Context, userID uuid.UUID, title, section, date string, start models.TimeOfDay, end *models.TimeOfDay, excludeID uuid.UUID) (*models.Task, error)
	SoftDeleteByIDs(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) ([]string, error)
	SoftDeleteBySection(ctx context.Context, userID uuid.UUID, section string) ([]string, error)
	Restore(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) ([]string, error)
	Update(ctx context.Context, task *models.Task) error
}

// UserDirectory resolves collaborator mentions.
type UserDirectory interface {
	List(ctx context.Context) ([]models.User, error)
}

// Notifier receives the "should an immediate reminder fire" hook after a
// task is created, edited, or restored.
type Notifier interface {
	CheckImmediate(ctx context.Context, task *models.Task)
}

// Response is the chat reply shape. Logical failures still travel as
// HTTP-success payloads with Success=false so the UI renders a bubble, not a
// transport error.
type Response struct {
	Success              bool     `json:"success"`
	Reply                string   `json:"reply"`
	Suggestions          []string `json:"suggestions,omitempty"`
	AwaitingConfirmation bool     `json:"awaitingConfirmation,omitempty"`
	Action               string   `json:"action,omitempty"`
	TaskID               string   `json:"taskId,omitempty"`
}

func failure(reply string, suggestions ...string) *Response {
	if len(suggestions) == 0 {
		suggestions = []string{"Show my tasks", "Create a task", "What's my schedule today?"}
	}
	return &Response{Success: false, Reply: reply, Suggestions: suggestions}
}

// storeFailure is the uniform reply for transient storage errors. The error
// itself is logged by the caller, never surfaced.
func storeFailure() *Response {
	return failure("Something went wrong on my end. Please try that again in a moment.")
}
