// Package nlp turns raw chat text plus session context into structured task
// intents. Semantic parsing is delegated to an external completion API; this
// package owns everything around that call: lexical fast paths, context
// protection, and defensive validation of the model's output.
package nlp

import (
	"github.com/google/uuid"

	"github.com/taskmateai/taskmate/internal/models"
)

// IntentType is the closed set of intents the resolver can produce. Anything
// the oracle returns outside this set degrades to a validation error.
type IntentType string

const (
	IntentCreateTaskDirect            IntentType = "create_task_direct"
	IntentCreateTaskConfirmation      IntentType = "create_task_confirmation"
	IntentShowTasks                   IntentType = "show_tasks"
	IntentScheduleQuery               IntentType = "schedule_query"
	IntentEditTaskConfirmation        IntentType = "edit_task_confirmation"
	IntentDeleteSingleConfirmation    IntentType = "delete_single_task_confirmation"
	IntentDeleteMultipleConfirmation  IntentType = "delete_multiple_tasks_confirmation"
	IntentRestoreTaskConfirmation     IntentType = "restore_task_confirmation"
	IntentRestoreMultipleConfirmation IntentType = "restore_multiple_tasks_confirmation"
	IntentShowArchivedTasks           IntentType = "show_archived_tasks"
	IntentListCollaborators           IntentType = "list_collaborators"
	IntentValidationError             IntentType = "validation_error"

	// State-machine transitions produced without semantic parsing.
	IntentConfirmPending IntentType = "confirm_pending"
	IntentCancelPending  IntentType = "cancel_pending"
	IntentGenericYes     IntentType = "generic_yes"

	IntentUnknown IntentType = "unknown"
)

// knownOracleTypes is the whitelist applied to oracle output. The transition
// intents are deliberately absent: the oracle never drives confirm/cancel.
var knownOracleTypes = map[IntentType]bool{
	IntentCreateTaskDirect:            true,
	IntentCreateTaskConfirmation:      true,
	IntentShowTasks:                   true,
	IntentScheduleQuery:               true,
	IntentEditTaskConfirmation:        true,
	IntentDeleteSingleConfirmation:    true,
	IntentDeleteMultipleConfirmation:  true,
	IntentRestoreTaskConfirmation:     true,
	IntentRestoreMultipleConfirmation: true,
	IntentShowArchivedTasks:           true,
	IntentListCollaborators:           true,
	IntentValidationError:             true,
}

// TaskData is the payload of a create intent.
type TaskData struct {
	Title         string            `json:"title"`
	Section       string            `json:"section"`
	Date          string            `json:"date"`
	StartTime     *models.TimeOfDay `json:"startTime,omitempty"`
	EndTime       *models.TimeOfDay `json:"endTime,omitempty"`
	Priority      string            `json:"priority,omitempty"`
	Recurring     string            `json:"recurring,omitempty"`
	Collaborators []string          `json:"collaborators,omitempty"`
	// BypassOverlap is set when the user has already confirmed a schedule
	// conflict; it never comes from the oracle.
	BypassOverlap bool `json:"-"`
}

// RecurringNone is the sentinel an edit payload uses to clear the recurring
// field, distinguishing "remove it" from "leave it alone".
const RecurringNone = "__NONE__"

// EditData is the payload of an edit intent. Nil pointers mean "unchanged".
type EditData struct {
	TaskRef             string            `json:"taskRef"` // id or title fragment
	Title               *string           `json:"title,omitempty"`
	Section             *string           `json:"section,omitempty"`
	Date                *string           `json:"date,omitempty"`
	StartTime           *models.TimeOfDay `json:"startTime,omitempty"`
	EndTime             *models.TimeOfDay `json:"endTime,omitempty"`
	Priority            *string           `json:"priority,omitempty"`
	Recurring           *string           `json:"recurring,omitempty"` // RecurringNone clears
	AddCollaborators    []string          `json:"addCollaborators,omitempty"`
	RemoveCollaborators []string          `json:"removeCollaborators,omitempty"`
	SetCollaborators    []string          `json:"setCollaborators,omitempty"`
}

// DeleteData is the payload of a delete intent. Exactly one of TaskRef,
// TaskRefs, or Section is expected to be set.
type DeleteData struct {
	TaskRef  string   `json:"taskRef,omitempty"`
	TaskRefs []string `json:"taskRefs,omitempty"`
	Section  string   `json:"section,omitempty"`
}

// RestoreData is the payload of a restore intent. IDs are only ever copied
// from the session's archived context, never parsed from user or oracle text.
type RestoreData struct {
	TaskIDs []uuid.UUID `json:"taskIds"`
	Titles  []string    `json:"titles"`
}

// QueryData scopes a show/schedule intent.
type QueryData struct {
	Section string `json:"section,omitempty"`
	Date    string `json:"date,omitempty"`
}

// Intent is a resolved, validated instruction for the executor.
type Intent struct {
	Type        IntentType
	Task        *TaskData
	Edit        *EditData
	Delete      *DeleteData
	Restore     *RestoreData
	Query       *QueryData
	Message     string   // reply text for validation errors and acknowledgments
	Suggestions []string // follow-up chips for the UI
}

func validationError(message string, suggestions ...string) *Intent {
	if len(suggestions) == 0 {
		suggestions = []string{"Show my tasks", "Create a task", "What's my schedule today?"}
	}
	return &Intent{
		Type:        IntentValidationError,
		Message:     message,
		Suggestions: suggestions,
	}
}
