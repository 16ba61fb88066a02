package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskmateai/taskmate/internal/models"
	"github.com/taskmateai/taskmate/internal/observability"
	"github.com/taskmateai/taskmate/internal/services/nlp"
	"github.com/taskmateai/taskmate/internal/session"
	"github.com/taskmateai/taskmate/internal/timeutil"
	"github.com/taskmateai/taskmate/internal/validation"
)

// Staged payload shapes. Targets are resolved at staging time so a later
// "yes" acts on the exact ids the preview named, immune to list drift.
type pendingCreate struct {
	Data nlp.TaskData
}

type pendingEdit struct {
	TaskID uuid.UUID
	Title  string
	Data   nlp.EditData
}

type pendingDelete struct {
	TaskIDs []uuid.UUID
	Titles  []string
	Section string // set for whole-section deletes instead of ids
}

type pendingRestore struct {
	TaskIDs []uuid.UUID
	Titles  []string
}

// Service routes resolved intents: it stages confirmations, executes
// confirmed ones, and dispatches simple intents straight to the executor.
type Service struct {
	sessions *session.Store
	resolver *nlp.Resolver
	exec     *Executor
	metrics  *observability.Metrics
	logger   *zap.Logger
	nowFn    func() time.Time
}

// NewService wires the chat service.
func NewService(sessions *session.Store, resolver *nlp.Resolver, exec *Executor, metrics *observability.Metrics, logger *zap.Logger) *Service {
	return &Service{
		sessions: sessions,
		resolver: resolver,
		exec:     exec,
		metrics:  metrics,
		logger:   logger,
		nowFn:    time.Now,
	}
}

// HandleMessage is the single entry point for a chat turn. It never returns
// an error; everything below it converts failures into Success=false replies.
func (s *Service) HandleMessage(ctx context.Context, userID uuid.UUID, email, message string, caller *nlp.CallerContext) *Response {
	start := s.nowFn()
	message = validation.SanitizeText(message)
	if message == "" {
		return failure("I didn't catch that. What would you like to do?")
	}

	sess := s.sessions.GetOrCreate(userID)
	sess.AppendLog("user", message)

	intent := s.resolver.Resolve(ctx, userID, message, caller)
	if s.metrics != nil {
		s.metrics.ChatIntents.WithLabelValues(string(intent.Type)).Inc()
		if intent.Type == nlp.IntentUnknown {
			s.metrics.OracleFallbacks.Inc()
		}
		defer func() {
			s.metrics.ChatLatency.Observe(float64(time.Since(start).Milliseconds()))
		}()
	}

	resp := s.dispatch(ctx, userID, email, intent)
	sess.AppendLog("assistant", resp.Reply)
	return resp
}

func (s *Service) dispatch(ctx context.Context, userID uuid.UUID, email string, intent *nlp.Intent) *Response {
	switch intent.Type {
	case nlp.IntentConfirmPending:
		return s.confirm(ctx, userID, email)

	case nlp.IntentCancelPending:
		return s.cancel(userID)

	case nlp.IntentGenericYes:
		return failure("There's nothing waiting for a confirmation right now. What would you like to do?")

	case nlp.IntentCreateTaskDirect:
		return s.exec.Create(ctx, userID, email, *intent.Task, s.stageOverlapBypass(userID))

	case nlp.IntentCreateTaskConfirmation:
		return s.stageCreate(userID, *intent.Task)

	case nlp.IntentShowTasks:
		return s.exec.Show(ctx, userID, intent.Query)

	case nlp.IntentScheduleQuery:
		return s.exec.Schedule(ctx, userID, intent.Query)

	case nlp.IntentShowArchivedTasks:
		return s.exec.ShowArchived(ctx, userID)

	case nlp.IntentListCollaborators:
		return s.exec.ListCollaborators(ctx, userID)

	case nlp.IntentEditTaskConfirmation:
		return s.stageEdit(ctx, userID, *intent.Edit)

	case nlp.IntentDeleteSingleConfirmation, nlp.IntentDeleteMultipleConfirmation:
		return s.stageDelete(ctx, userID, *intent.Delete)

	case nlp.IntentRestoreTaskConfirmation, nlp.IntentRestoreMultipleConfirmation:
		return s.stageRestore(userID, *intent.Restore)

	case nlp.IntentValidationError, nlp.IntentUnknown:
		return failure(intent.Message, intent.Suggestions...)
	}

	s.logger.Warn("unhandled_intent_type", zap.String("type", string(intent.Type)))
	return failure("I didn't quite understand that. Could you rephrase?")
}

// stage records a pending confirmation. A newly staged action overwrites any
// stale one: the user has moved on, and the preview they see is the action a
// later "yes" will run. Non-staging intents leave an existing pending action
// untouched.
func (s *Service) stage(userID uuid.UUID, kind session.ConfirmationKind, payload any) {
	sess := s.sessions.GetOrCreate(userID)
	sess.Pending = &session.PendingConfirmation{
		Kind:     kind,
		Payload:  payload,
		StagedAt: s.nowFn(),
	}
}

// confirm executes the staged action. Idempotent: a second confirm with
// nothing staged replies neutrally instead of erroring or re-executing.
func (s *Service) confirm(ctx context.Context, userID uuid.UUID, email string) *Response {
	sess := s.sessions.GetOrCreate(userID)
	pending := sess.Pending
	if pending == nil {
		return &Response{Success: true, Reply: "There's nothing to confirm right now."}
	}
	sess.Pending = nil

	var resp *Response
	switch payload := pending.Payload.(type) {
	case pendingCreate:
		resp = s.exec.Create(ctx, userID, email, payload.Data, s.stageOverlapBypass(userID))
	case pendingEdit:
		resp = s.exec.Edit(ctx, userID, payload.TaskID, payload.Data)
	case pendingDelete:
		resp = s.exec.Delete(ctx, userID, payload)
	case pendingRestore:
		resp = s.exec.Restore(ctx, userID, payload.TaskIDs)
	default:
		s.logger.Error("unknown_pending_payload", zap.String("kind", string(pending.Kind)))
		resp = failure("I lost track of what we were confirming. Could you start over?")
	}

	if s.metrics != nil {
		outcome := "executed"
		if !resp.Success {
			outcome = "failed"
		}
		s.metrics.Confirmations.WithLabelValues(string(pending.Kind), outcome).Inc()
	}
	return resp
}

// cancel discards the staged action.
func (s *Service) cancel(userID uuid.UUID) *Response {
	sess := s.sessions.GetOrCreate(userID)
	if sess.Pending == nil {
		return &Response{Success: true, Reply: "Okay, nothing to cancel."}
	}
	kind := sess.Pending.Kind
	sess.Pending = nil
	if s.metrics != nil {
		s.metrics.Confirmations.WithLabelValues(string(kind), "canceled").Inc()
	}
	return &Response{
		Success:     true,
		Reply:       "No problem, I've canceled that.",
		Suggestions: []string{"Show my tasks", "Create a task"},
	}
}

// stageOverlapBypass gives the executor a way to stage the second-level
// overlap confirmation without importing the orchestrator.
func (s *Service) stageOverlapBypass(userID uuid.UUID) func(data nlp.TaskData) {
	return func(data nlp.TaskData) {
		data.BypassOverlap = true
		s.stage(userID, session.ConfirmCreate, pendingCreate{Data: data})
	}
}

func (s *Service) stageCreate(userID uuid.UUID, data nlp.TaskData) *Response {
	// Validate enough to make the preview honest; full validation runs on
	// execution.
	if strings.TrimSpace(data.Title) == "" || data.StartTime == nil {
		return failure("I need at least a task name and a start time. Try something like \"add gym at 6pm\".")
	}

	s.stage(userID, session.ConfirmCreate, pendingCreate{Data: data})

	preview := fmt.Sprintf("I'll create %q in %s on %s at %s.",
		normalizeTitle(data.Title), sectionOrDefault(data.Section), data.Date,
		timeutil.FormatRange(*data.StartTime, data.EndTime))
	if len(data.Collaborators) > 0 {
		preview += fmt.Sprintf(" Collaborators: %s.", strings.Join(data.Collaborators, ", "))
	}
	preview += " Should I go ahead?"

	return &Response{
		Success:              true,
		Reply:                preview,
		AwaitingConfirmation: true,
		Suggestions:          []string{"Yes, create it", "No, cancel"},
	}
}

func (s *Service) stageEdit(ctx context.Context, userID uuid.UUID, data nlp.EditData) *Response {
	task, resp := s.exec.resolveActiveTask(ctx, userID, data.TaskRef)
	if resp != nil {
		return resp
	}

	changes := describeEditChanges(data)
	if len(changes) == 0 {
		return failure(fmt.Sprintf("I found %q, but I couldn't tell what you want to change about it.", task.Title))
	}

	s.stage(userID, session.ConfirmEdit, pendingEdit{TaskID: task.ID, Title: task.Title, Data: data})

	return &Response{
		Success:              true,
		Reply:                fmt.Sprintf("I'll update %q: %s. Should I go ahead?", task.Title, strings.Join(changes, ", ")),
		AwaitingConfirmation: true,
		Suggestions:          []string{"Yes, update it", "No, cancel"},
	}
}

func (s *Service) stageDelete(ctx context.Context, userID uuid.UUID, data nlp.DeleteData) *Response {
	if data.Section != "" {
		sec := strings.ToLower(strings.TrimSpace(data.Section))
		if err := validation.ValidateSection(sec); err != nil {
			return failure(fmt.Sprintf("%q isn't a section I know. Sections are work, school, and personal.", data.Section))
		}
		tasks, err := s.exec.store.Active(ctx, userID, sec)
		if err != nil {
			s.logger.Error("store_error", zap.String("operation", "stage_delete_section"), zap.Error(err))
			return storeFailure()
		}
		if len(tasks) == 0 {
			return failure(fmt.Sprintf("You have no active tasks in %s.", sec))
		}
		s.stage(userID, session.ConfirmDelete, pendingDelete{Section: sec})
		return &Response{
			Success:              true,
			Reply:                fmt.Sprintf("This will delete all %d task(s) in %s. Are you sure?", len(tasks), sec),
			AwaitingConfirmation: true,
			Suggestions:          []string{"Yes, delete them", "No, cancel"},
		}
	}

	refs := data.TaskRefs
	if data.TaskRef != "" {
		refs = append(refs, data.TaskRef)
	}

	var ids []uuid.UUID
	var titles []string
	for _, ref := range refs {
		task, resp := s.exec.resolveActiveTask(ctx, userID, ref)
		if resp != nil {
			return resp
		}
		ids = append(ids, task.ID)
		titles = append(titles, task.Title)
	}
	if len(ids) == 0 {
		return failure("I couldn't tell which task(s) you want to delete.", "Show my tasks")
	}

	s.stage(userID, session.ConfirmDelete, pendingDelete{TaskIDs: ids, Titles: titles})

	reply := fmt.Sprintf("Delete %q?", titles[0])
	if len(titles) > 1 {
		reply = fmt.Sprintf("Delete these %d tasks: %s?", len(titles), strings.Join(titles, ", "))
	}
	return &Response{
		Success:              true,
		Reply:                reply + " They'll move to your archive.",
		AwaitingConfirmation: true,
		Suggestions:          []string{"Yes, delete", "No, cancel"},
	}
}

func (s *Service) stageRestore(userID uuid.UUID, data nlp.RestoreData) *Response {
	if len(data.TaskIDs) == 0 {
		return failure("I couldn't tell which archived task you want to restore.", "Show archived tasks")
	}

	s.stage(userID, session.ConfirmRestore, pendingRestore{TaskIDs: data.TaskIDs, Titles: data.Titles})

	reply := fmt.Sprintf("Restore %q back to your active tasks?", data.Titles[0])
	if len(data.TaskIDs) > 1 {
		reply = fmt.Sprintf("Restore these %d tasks: %s?", len(data.TaskIDs), strings.Join(data.Titles, ", "))
	}
	return &Response{
		Success:              true,
		Reply:                reply,
		AwaitingConfirmation: true,
		Suggestions:          []string{"Yes, restore", "No, cancel"},
	}
}

// describeEditChanges summarizes which fields an edit will touch.
func describeEditChanges(data nlp.EditData) []string {
	var changes []string
	if data.Title != nil {
		changes = append(changes, fmt.Sprintf("title to %q", *data.Title))
	}
	if data.Section != nil {
		changes = append(changes, "section to "+*data.Section)
	}
	if data.Date != nil {
		changes = append(changes, "date to "+*data.Date)
	}
	if data.StartTime != nil {
		changes = append(changes, "start time to "+timeutil.Format(*data.StartTime))
	}
	if data.EndTime != nil {
		changes = append(changes, "end time to "+timeutil.Format(*data.EndTime))
	}
	if data.Priority != nil {
		changes = append(changes, "priority to "+*data.Priority)
	}
	if data.Recurring != nil {
		if *data.Recurring == nlp.RecurringNone {
			changes = append(changes, "remove recurring")
		} else {
			changes = append(changes, "recurring to "+*data.Recurring)
		}
	}
	if len(data.AddCollaborators) > 0 {
		changes = append(changes, "add collaborators "+strings.Join(data.AddCollaborators, ", "))
	}
	if len(data.RemoveCollaborators) > 0 {
		changes = append(changes, "remove collaborators "+strings.Join(data.RemoveCollaborators, ", "))
	}
	if len(data.SetCollaborators) > 0 {
		changes = append(changes, "set collaborators to "+strings.Join(data.SetCollaborators, ", "))
	}
	return changes
}

func sectionOrDefault(section string) models.Section {
	sec := models.Section(strings.ToLower(strings.TrimSpace(section)))
	switch sec {
	case models.SectionWork, models.SectionSchool, models.SectionPersonal:
		return sec
	}
	return models.SectionPersonal
}
