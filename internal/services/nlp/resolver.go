package nlp

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskmateai/taskmate/internal/models"
	"github.com/taskmateai/taskmate/internal/session"
	"github.com/taskmateai/taskmate/internal/timeutil"
)

// CallerContext is the optional "last shown tasks" payload a client may send
// with a chat message. Its source label is a claim, not a fact; the session
// store re-derives the tag from the tasks themselves.
type CallerContext struct {
	Source string        `json:"source"` // "active" or "archive"
	Tasks  []models.Task `json:"tasks"`
}

// Resolver turns raw text plus session state into a validated Intent.
type Resolver struct {
	sessions        *session.Store
	oracle          Oracle
	logger          *zap.Logger
	nowFn           func() time.Time
	maxContextTasks int
}

// NewResolver creates a resolver bound to a session store and an oracle.
func NewResolver(sessions *session.Store, oracle Oracle, logger *zap.Logger) *Resolver {
	return &Resolver{
		sessions:        sessions,
		oracle:          oracle,
		logger:          logger,
		nowFn:           time.Now,
		maxContextTasks: DefaultMaxContextTasks,
	}
}

var (
	affirmativeRe = regexp.MustCompile(`(?i)^\s*(yes|yeah|yep|yup|sure|ok(?:ay)?|confirm|correct|absolutely|do it|go ahead|please do|sounds good)[\s!.,]*$`)
	negativeRe    = regexp.MustCompile(`(?i)^\s*(no|nope|nah|cancel|stop|don'?t|never\s?mind|forget it)[\s!.,]*$`)
)

// Resolve runs the full resolution protocol. It never returns an error: every
// failure mode degrades to a validation-error or unknown intent so the
// conversational surface stays responsive.
func (r *Resolver) Resolve(ctx context.Context, userID uuid.UUID, message string, caller *CallerContext) *Intent {
	sess := r.sessions.GetOrCreate(userID)

	// 1. Context protection. An active-looking payload must not clobber an
	// archive view the user is engaged with; list refreshes arrive
	// asynchronously from the UI.
	if caller != nil && len(caller.Tasks) > 0 {
		if r.acceptCallerContext(sess, caller) {
			r.sessions.SetTaskContext(userID, caller.Tasks, nil)
			sess = r.sessions.GetOrCreate(userID)
		} else {
			r.logger.Debug("caller_context_rejected",
				zap.String("user_id", userID.String()),
				zap.String("claimed_source", caller.Source),
				zap.String("session_focus", string(sess.CurrentFocus)))
		}
	}

	// 2. Confirmation fast path. Pure state-machine transition, checked
	// before any content analysis.
	if sess.Pending != nil {
		if affirmativeRe.MatchString(message) {
			return &Intent{Type: IntentConfirmPending}
		}
		if negativeRe.MatchString(message) {
			return &Intent{Type: IntentCancelPending}
		}
	} else if affirmativeRe.MatchString(message) {
		return &Intent{Type: IntentGenericYes}
	}

	lower := strings.ToLower(strings.TrimSpace(message))

	// 3. Archive restore fast paths. Index resolution against the session's
	// own list beats delegating it.
	if strings.Contains(lower, "restore") {
		if sess.CurrentFocus == session.FocusArchived {
			archived := sess.ArchivedRefs()
			if len(archived) == 0 {
				return validationError("You have 0 archived tasks to restore. View your archive first to see what's there.",
					"Show archived tasks", "Show my tasks")
			}
			if intent := r.resolveRestoreFastPath(lower, archived); intent != nil {
				return intent
			}
		} else {
			// 4. Restore requires archive focus; the oracle has no ground
			// truth about what the user is viewing.
			return validationError("To restore a task, please view your archived tasks first so I know which one you mean.",
				"Show archived tasks", "Show my tasks")
		}
	}

	// 5. Oracle delegation.
	convo := r.buildConversationContext(sess)
	raw, err := r.oracle.Interpret(ctx, message, convo)
	if err != nil {
		// 8. Oracle unreachable: degrade to the lexical parser.
		r.logger.Warn("oracle_unavailable",
			zap.String("user_id", userID.String()),
			zap.Bool("rate_limited", IsRateLimitError(err)),
			zap.Bool("quota_exceeded", IsQuotaError(err)),
			zap.Error(err))
		return ParseFallback(message, r.nowFn())
	}

	// 6 + 7. Validate the untrusted response.
	return r.processOracleResponse(raw, sess, message)
}

// acceptCallerContext applies the protection rule: archive-looking payloads
// are always accepted, active-looking ones only when the session is not
// focused on the archive.
func (r *Resolver) acceptCallerContext(sess *session.Session, caller *CallerContext) bool {
	if caller.Source == "archive" {
		return true
	}
	for i := range caller.Tasks {
		if caller.Tasks[i].Archived() {
			return true
		}
	}
	return sess.CurrentFocus != session.FocusArchived
}

var ordinalWords = map[string]int{
	"first":  1,
	"second": 2,
	"third":  3,
	"fourth": 4,
	"fifth":  5,
}

var (
	restoreNumberRe  = regexp.MustCompile(`restore\s+(?:the\s+)?(?:task\s+)?(?:number\s+)?(\d+)(?:st|nd|rd|th)?(?:\s+task)?\s*$`)
	restoreOrdinalRe = regexp.MustCompile(`restore\s+(?:the\s+)?(first|second|third|fourth|fifth|last)(?:\s+(?:task|one))?\s*$`)
	restoreRangeRe   = regexp.MustCompile(`restore\s+(?:the\s+)?tasks?\s+(\d+)\s*(?:-|to)\s*(\d+)`)
	restoreFirstNRe  = regexp.MustCompile(`restore\s+(?:the\s+)?first\s+(\d+)\s+tasks?`)
)

// resolveRestoreFastPath matches explicit restore references against the
// archived context. Returns nil when no pattern applies and the oracle should
// take over.
func (r *Resolver) resolveRestoreFastPath(lower string, archived []models.TaskRef) *Intent {
	count := len(archived)

	outOfRange := func(n int) *Intent {
		return validationError(fmt.Sprintf("You only have %d archived task(s). Please pick a number between 1 and %d.", count, count),
			"Show archived tasks")
	}

	restoreRefs := func(refs []models.TaskRef) *Intent {
		data := &RestoreData{}
		for _, ref := range refs {
			data.TaskIDs = append(data.TaskIDs, ref.ID)
			data.Titles = append(data.Titles, ref.Title)
		}
		typ := IntentRestoreTaskConfirmation
		if len(refs) > 1 {
			typ = IntentRestoreMultipleConfirmation
		}
		return &Intent{Type: typ, Restore: data}
	}

	// "restore the first 2 tasks" before the plain ordinal pattern, since
	// "first" appears in both.
	if m := restoreFirstNRe.FindStringSubmatch(lower); m != nil {
		n, _ := strconv.Atoi(m[1])
		if n < 1 || n > count {
			return outOfRange(n)
		}
		return restoreRefs(archived[:n])
	}

	if m := restoreRangeRe.FindStringSubmatch(lower); m != nil {
		from, _ := strconv.Atoi(m[1])
		to, _ := strconv.Atoi(m[2])
		if from < 1 || to > count || from > to {
			return outOfRange(to)
		}
		return restoreRefs(archived[from-1 : to])
	}

	if strings.Contains(lower, "restore both") || strings.Contains(lower, "restore all") {
		return restoreRefs(archived)
	}

	if m := restoreNumberRe.FindStringSubmatch(lower); m != nil {
		n, _ := strconv.Atoi(m[1])
		if n < 1 || n > count {
			return outOfRange(n)
		}
		return restoreRefs(archived[n-1 : n])
	}

	if m := restoreOrdinalRe.FindStringSubmatch(lower); m != nil {
		n := count // "last"
		if m[1] != "last" {
			n = ordinalWords[m[1]]
		}
		if n < 1 || n > count {
			return outOfRange(n)
		}
		return restoreRefs(archived[n-1 : n])
	}

	// Name match, substring in either direction.
	name := strings.TrimSpace(strings.TrimPrefix(lower, "restore"))
	name = strings.TrimSpace(strings.TrimPrefix(name, "the "))
	name = strings.TrimSpace(strings.TrimPrefix(name, "task "))
	if name != "" {
		for _, ref := range archived {
			title := strings.ToLower(ref.Title)
			if strings.Contains(title, name) || strings.Contains(name, title) {
				return restoreRefs([]models.TaskRef{ref})
			}
		}
	}

	return nil
}

// buildConversationContext snapshots what the session can vouch for. Only
// refs matching the current focus are sent; the other view's indices must
// not leak into the prompt.
func (r *Resolver) buildConversationContext(sess *session.Session) ConversationContext {
	now := r.nowFn()

	var refs []models.TaskRef
	if sess.CurrentFocus == session.FocusArchived {
		refs = sess.ArchivedRefs()
	} else {
		refs = sess.ActiveRefs()
	}
	if len(refs) > r.maxContextTasks {
		refs = refs[:r.maxContextTasks]
	}

	return ConversationContext{
		Today:    timeutil.LocalDate(now, 0),
		Tomorrow: timeutil.LocalDate(now, 1),
		Focus:    string(sess.CurrentFocus),
		ViewType: string(sess.LastViewedType),
		Tasks:    refs,
	}
}

// processOracleResponse validates the untrusted oracle output against the
// closed type set and the session's authoritative context before letting it
// drive any mutation.
func (r *Resolver) processOracleResponse(raw *RawResponse, sess *session.Session, message string) *Intent {
	typ := IntentType(raw.Type)
	if !knownOracleTypes[typ] {
		r.logger.Warn("oracle_unknown_type", zap.String("type", raw.Type))
		return validationError("I didn't quite understand that. Could you rephrase?")
	}

	switch typ {
	case IntentValidationError:
		msg := raw.Reply
		if msg == "" {
			msg = "I couldn't work out what you meant. Could you rephrase?"
		}
		return validationError(msg, raw.Suggestions...)

	case IntentRestoreTaskConfirmation, IntentRestoreMultipleConfirmation:
		return r.validateRestoreResponse(raw, sess)

	case IntentCreateTaskDirect, IntentCreateTaskConfirmation:
		return r.validateCreateResponse(raw, typ, message)

	case IntentEditTaskConfirmation:
		if raw.EditData == nil || strings.TrimSpace(raw.EditData.TaskRef) == "" {
			return validationError("I couldn't tell which task you want to change. Try naming it or its position in the list.",
				"Show my tasks")
		}
		return &Intent{Type: typ, Edit: raw.EditData, Message: raw.Reply, Suggestions: raw.Suggestions}

	case IntentDeleteSingleConfirmation, IntentDeleteMultipleConfirmation:
		if raw.DeleteData == nil ||
			(raw.DeleteData.TaskRef == "" && len(raw.DeleteData.TaskRefs) == 0 && raw.DeleteData.Section == "") {
			return validationError("I couldn't tell which task(s) you want to delete.", "Show my tasks")
		}
		return &Intent{Type: typ, Delete: raw.DeleteData, Message: raw.Reply, Suggestions: raw.Suggestions}

	case IntentShowTasks, IntentScheduleQuery, IntentShowArchivedTasks, IntentListCollaborators:
		return &Intent{
			Type:        typ,
			Query:       &QueryData{Section: raw.Section, Date: raw.Date},
			Message:     raw.Reply,
			Suggestions: raw.Suggestions,
		}
	}

	return validationError("I didn't quite understand that. Could you rephrase?")
}

// validateRestoreResponse re-checks a restore-type response against the
// session: focus must be the archive and every id must be one the user was
// actually shown. The oracle's claims alone never move data.
func (r *Resolver) validateRestoreResponse(raw *RawResponse, sess *session.Session) *Intent {
	if sess.CurrentFocus != session.FocusArchived {
		return validationError("To restore a task, please view your archived tasks first so I know which one you mean.",
			"Show archived tasks")
	}
	if raw.RestoreData == nil || len(raw.RestoreData.TaskIDs) == 0 {
		return validationError("I couldn't tell which archived task you want to restore.", "Show archived tasks")
	}

	known := sess.ArchivedIDs()
	titleByID := make(map[uuid.UUID]string)
	for _, ref := range sess.ArchivedRefs() {
		titleByID[ref.ID] = ref.Title
	}

	data := &RestoreData{}
	for _, idStr := range raw.RestoreData.TaskIDs {
		id, err := uuid.Parse(idStr)
		if err != nil || !known[id] {
			r.logger.Warn("oracle_restore_id_rejected", zap.String("task_id", idStr))
			return validationError("That task isn't in the archived list you were shown. View your archive and try again.",
				"Show archived tasks")
		}
		data.TaskIDs = append(data.TaskIDs, id)
		data.Titles = append(data.Titles, titleByID[id])
	}

	typ := IntentRestoreTaskConfirmation
	if len(data.TaskIDs) > 1 {
		typ = IntentRestoreMultipleConfirmation
	}
	return &Intent{Type: typ, Restore: data, Message: raw.Reply}
}

// validateCreateResponse checks a create-type response and recovers a
// missing start time from the original text before giving up.
func (r *Resolver) validateCreateResponse(raw *RawResponse, typ IntentType, message string) *Intent {
	if raw.TaskData == nil || strings.TrimSpace(raw.TaskData.Title) == "" {
		return validationError("I need at least a task name to create something. What should I call it?")
	}
	data := *raw.TaskData

	if data.StartTime == nil {
		start, end := timeutil.ExtractTimes(message)
		if start != nil {
			data.StartTime = start
			if data.EndTime == nil {
				data.EndTime = end
			}
		}
	}
	if data.StartTime == nil {
		return validationError(fmt.Sprintf("What time should %q start? For example: \"at 3pm\" or \"from 9am to 10am\".", data.Title))
	}

	if data.Date == "" {
		data.Date = timeutil.LocalDate(r.nowFn(), 0)
	}

	return &Intent{Type: typ, Task: &data, Message: raw.Reply, Suggestions: raw.Suggestions}
}
