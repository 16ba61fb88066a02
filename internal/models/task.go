package models

import (
	"time"

	"github.com/google/uuid"
)

// Section is the bucket a task lives in.
type Section string

const (
	SectionWork     Section = "work"
	SectionSchool   Section = "school"
	SectionPersonal Section = "personal"
)

// Priority is the optional task priority.
type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

// Recurring is the optional repetition cadence.
type Recurring string

const (
	RecurringDaily    Recurring = "Daily"
	RecurringWeekdays Recurring = "Weekdays"
	RecurringWeekly   Recurring = "Weekly"
	RecurringMonthly  Recurring = "Monthly"
	RecurringYearly   Recurring = "Yearly"
)

// TaskStatus represents the stored status of a task. Complete and InProgress
// are display states derived from the clock; only Pending and Deleted are
// written by mutations.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "Pending"
	TaskStatusInProgress TaskStatus = "InProgress"
	TaskStatusComplete   TaskStatus = "Complete"
	TaskStatusDeleted    TaskStatus = "Deleted"
)

// TimeOfDay is a 12-hour clock triple. Hour and Minute are kept as strings
// because that is the wire shape the UI and the oracle both speak.
type TimeOfDay struct {
	Hour   string `json:"hour"`
	Minute string `json:"minute"`
	Period string `json:"period"` // "AM" or "PM"
}

// Task is the unit being managed.
type Task struct {
	ID            uuid.UUID  `json:"id"`
	Title         string     `json:"title"`
	Section       Section    `json:"section"`
	Date          string     `json:"date"` // YYYY-MM-DD, the user's calendar day
	StartTime     TimeOfDay  `json:"start_time"`
	EndTime       *TimeOfDay `json:"end_time,omitempty"`
	Priority      *Priority  `json:"priority,omitempty"`
	Recurring     *Recurring `json:"recurring,omitempty"`
	Collaborators []string   `json:"collaborators"`
	Status        TaskStatus `json:"status"`
	CreatedBy     string     `json:"created_by"` // owner email
	UserID        uuid.UUID  `json:"user_id"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Archived reports whether the task is soft-deleted.
func (t *Task) Archived() bool {
	return t.DeletedAt != nil || t.Status == TaskStatusDeleted
}

// ContextSource tags whether a cached task list refers to live or archived
// tasks. It governs which mutation kinds may reference the list.
type ContextSource string

const (
	SourceActive  ContextSource = "active"
	SourceArchive ContextSource = "archive"
)

// TaskRef is the lightweight reference the session keeps for each task the
// user was last shown. Index is 1-based and stable for the life of the view.
type TaskRef struct {
	ID       uuid.UUID     `json:"id"`
	Title    string        `json:"title"`
	Section  Section       `json:"section"`
	Index    int           `json:"index"`
	Source   ContextSource `json:"source"`
	Archived bool          `json:"archived"`
}
