package chat

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskmateai/taskmate/internal/models"
	"github.com/taskmateai/taskmate/internal/services/nlp"
	"github.com/taskmateai/taskmate/internal/session"
	"github.com/taskmateai/taskmate/internal/timeutil"
	"github.com/taskmateai/taskmate/internal/validation"
)

// Executor performs the single task-store operation behind each validated
// intent and computes the user-facing outcome.
type Executor struct {
	store    TaskStore
	users    UserDirectory
	notifier Notifier
	sessions *session.Store
	logger   *zap.Logger
	nowFn    func() time.Time
}

// NewExecutor wires the mutation executor.
func NewExecutor(store TaskStore, users UserDirectory, notifier Notifier, sessions *session.Store, logger *zap.Logger) *Executor {
	return &Executor{
		store:    store,
		users:    users,
		notifier: notifier,
		sessions: sessions,
		logger:   logger,
		nowFn:    time.Now,
	}
}

var titleVerbRe = regexp.MustCompile(`(?i)^((create|add|make|schedule|new)\s+)+((a|an|the)\s+)?(task\s+)?((called|named|for|to)\s+)?`)

// normalizeTitle strips leading command verbs so "create homework task"
// stores as "homework task", not the instruction.
func normalizeTitle(title string) string {
	return strings.TrimSpace(titleVerbRe.ReplaceAllString(strings.TrimSpace(title), ""))
}

// Create validates and inserts a task. Overlaps warn rather than block: the
// first attempt stages a bypass confirmation naming the conflicts, and a
// confirmed retry (BypassOverlap set) goes through. Exact duplicates are
// refused outright.
func (e *Executor) Create(ctx context.Context, userID uuid.UUID, email string, data nlp.TaskData, stageBypass func(nlp.TaskData)) *Response {
	title := normalizeTitle(data.Title)
	section := strings.ToLower(strings.TrimSpace(data.Section))

	var missing []string
	if title == "" {
		missing = append(missing, "a task name")
	}
	if section == "" {
		missing = append(missing, "a section (work, school, or personal)")
	}
	if data.Date == "" {
		missing = append(missing, "a date")
	}
	if data.StartTime == nil {
		missing = append(missing, "a start time")
	}
	if len(missing) > 0 {
		return failure("I still need " + strings.Join(missing, " and ") + " to create this task.")
	}

	if err := validation.ValidateSection(section); err != nil {
		return failure(fmt.Sprintf("%q isn't a section I know. Sections are work, school, and personal.", data.Section))
	}
	if data.Priority != "" {
		if err := validation.ValidatePriority(data.Priority); err != nil {
			return failure("Priority can be High, Medium, or Low.")
		}
	}
	if data.Recurring != "" {
		if err := validation.ValidateRecurring(data.Recurring); err != nil {
			return failure("Recurring can be Daily, Weekdays, Weekly, Monthly, or Yearly.")
		}
	}
	if !timeutil.IsRangeValid(*data.StartTime, data.EndTime) {
		if data.EndTime == nil {
			return failure("I couldn't make sense of that start time. Try something like \"at 3pm\".")
		}
		return failure(fmt.Sprintf("The end time (%s) has to come after the start time (%s).",
			timeutil.Format(*data.EndTime), timeutil.Format(*data.StartTime)))
	}

	collaborators, resp := e.resolveCollaborators(ctx, data.Collaborators)
	if resp != nil {
		return resp
	}

	// Exact duplicates are refused before the overlap warning; confirming
	// "create it anyway" must never smuggle in a duplicate.
	dup, err := e.store.FindDuplicate(ctx, userID, title, section, data.Date, *data.StartTime, data.EndTime, uuid.Nil)
	if err != nil {
		e.logger.Error("store_error", zap.String("operation", "create_duplicate_check"), zap.Error(err))
		return storeFailure()
	}
	if dup != nil {
		return failure(fmt.Sprintf("You already have %q in %s on %s at that time. I won't create a duplicate.",
			dup.Title, dup.Section, dup.Date))
	}

	sameDay, err := e.store.ActiveByDate(ctx, userID, data.Date, "")
	if err != nil {
		e.logger.Error("store_error", zap.String("operation", "create_overlap_check"), zap.Error(err))
		return storeFailure()
	}

	if !data.BypassOverlap {
		var conflicts []string
		for i := range sameDay {
			if timeutil.RangesOverlap(*data.StartTime, data.EndTime, sameDay[i].StartTime, sameDay[i].EndTime) {
				conflicts = append(conflicts, fmt.Sprintf("%q (%s)",
					sameDay[i].Title, timeutil.FormatRange(sameDay[i].StartTime, sameDay[i].EndTime)))
			}
		}
		if len(conflicts) > 0 {
			stageBypass(data)
			return &Response{
				Success:              false,
				Reply:                fmt.Sprintf("Heads up: that overlaps with %s. Create it anyway?", strings.Join(conflicts, " and ")),
				AwaitingConfirmation: true,
				Suggestions:          []string{"Yes, create it anyway", "No, cancel"},
			}
		}
	}

	task := &models.Task{
		ID:            uuid.New(),
		Title:         title,
		Section:       models.Section(section),
		Date:          data.Date,
		StartTime:     *data.StartTime,
		EndTime:       data.EndTime,
		Collaborators: collaborators,
		Status:        models.TaskStatusPending,
		CreatedBy:     email,
		UserID:        userID,
	}
	// Unset optionals stay unset; no silent defaults.
	if data.Priority != "" {
		p := models.Priority(data.Priority)
		task.Priority = &p
	}
	if data.Recurring != "" {
		rec := models.Recurring(data.Recurring)
		task.Recurring = &rec
	}

	if err := e.store.Insert(ctx, task); err != nil {
		e.logger.Error("store_error", zap.String("operation", "create_insert"), zap.Error(err))
		return storeFailure()
	}

	e.notifier.CheckImmediate(ctx, task)

	reply := fmt.Sprintf("Done! %q is on your %s list for %s at %s.",
		task.Title, task.Section, task.Date, timeutil.FormatRange(task.StartTime, task.EndTime))
	var extras []string
	if task.Priority != nil {
		extras = append(extras, string(*task.Priority)+" priority")
	}
	if task.Recurring != nil {
		extras = append(extras, "repeats "+string(*task.Recurring))
	}
	if len(task.Collaborators) > 0 {
		extras = append(extras, "with "+strings.Join(task.Collaborators, ", "))
	}
	if len(extras) > 0 {
		reply += " (" + strings.Join(extras, ", ") + ")"
	}

	return &Response{
		Success:     true,
		Reply:       reply,
		Action:      "task_created",
		TaskID:      task.ID.String(),
		Suggestions: []string{"Show my tasks", "What's my schedule today?"},
	}
}

// Show lists active tasks by recency and establishes the active task context
// later "the first task" references resolve against.
func (e *Executor) Show(ctx context.Context, userID uuid.UUID, q *nlp.QueryData) *Response {
	date, section := e.queryScope(q)
	tasks, err := e.store.ActiveByDate(ctx, userID, date, section)
	if err != nil {
		e.logger.Error("store_error", zap.String("operation", "show_tasks"), zap.Error(err))
		return storeFailure()
	}

	e.sessions.SetTaskContext(userID, tasks, nil)

	if len(tasks) == 0 {
		scope := date
		if section != "" {
			scope = section + " tasks on " + date
		}
		return &Response{
			Success:     true,
			Reply:       fmt.Sprintf("You have nothing scheduled for %s. Want to add something?", scope),
			Suggestions: []string{"Add gym at 6pm", "Show archived tasks"},
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Here's what you have for %s:\n", date)
	for i := range tasks {
		fmt.Fprintf(&b, "%d. %s (%s, %s)\n", i+1, tasks[i].Title, tasks[i].Section,
			timeutil.FormatRange(tasks[i].StartTime, tasks[i].EndTime))
	}

	return &Response{
		Success:     true,
		Reply:       strings.TrimRight(b.String(), "\n"),
		Suggestions: []string{"Edit the first task", "Delete a task", "What's my schedule?"},
	}
}

// Schedule shows the same tasks ordered by start time and grouped by
// section. The context indices follow this display order.
func (e *Executor) Schedule(ctx context.Context, userID uuid.UUID, q *nlp.QueryData) *Response {
	date, section := e.queryScope(q)
	tasks, err := e.store.ActiveByDate(ctx, userID, date, section)
	if err != nil {
		e.logger.Error("store_error", zap.String("operation", "schedule_query"), zap.Error(err))
		return storeFailure()
	}

	sort.SliceStable(tasks, func(i, j int) bool {
		return timeutil.ToMinutes(tasks[i].StartTime) < timeutil.ToMinutes(tasks[j].StartTime)
	})

	e.sessions.SetTaskContext(userID, tasks, nil)

	if len(tasks) == 0 {
		return &Response{
			Success:     true,
			Reply:       fmt.Sprintf("Your schedule for %s is clear.", date),
			Suggestions: []string{"Add a task", "Show my tasks"},
		}
	}

	bySection := make(map[models.Section][]string)
	var order []models.Section
	index := 1
	for i := range tasks {
		sec := tasks[i].Section
		if _, seen := bySection[sec]; !seen {
			order = append(order, sec)
		}
		bySection[sec] = append(bySection[sec], fmt.Sprintf("%d. %s at %s",
			index, tasks[i].Title, timeutil.FormatRange(tasks[i].StartTime, tasks[i].EndTime)))
		index++
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Your schedule for %s:\n", date)
	for _, sec := range order {
		fmt.Fprintf(&b, "%s:\n%s\n", strings.ToUpper(string(sec)[:1])+string(sec)[1:], strings.Join(bySection[sec], "\n"))
	}

	return &Response{
		Success:     true,
		Reply:       strings.TrimRight(b.String(), "\n"),
		Suggestions: []string{"Edit the first task", "Add another task"},
	}
}

// ShowArchived lists soft-deleted tasks and flips the session into archive
// focus, which is what later restore references resolve against.
func (e *Executor) ShowArchived(ctx context.Context, userID uuid.UUID) *Response {
	tasks, err := e.store.Archived(ctx, userID)
	if err != nil {
		e.logger.Error("store_error", zap.String("operation", "show_archived"), zap.Error(err))
		return storeFailure()
	}

	e.sessions.SetTaskContext(userID, tasks, nil)

	if len(tasks) == 0 {
		// The user is looking at the archive even though it's empty; a
		// follow-up "restore X" should be answered in archive terms.
		e.sessions.FocusArchive(userID)
		return &Response{
			Success:     true,
			Reply:       "Your archive is empty.",
			Suggestions: []string{"Show my tasks", "Create a task"},
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You have %d archived task(s):\n", len(tasks))
	for i := range tasks {
		fmt.Fprintf(&b, "%d. %s (%s, was %s)\n", i+1, tasks[i].Title, tasks[i].Section, tasks[i].Date)
	}
	b.WriteString("Say \"restore task 1\" or \"restore all\" to bring them back.")

	return &Response{
		Success:     true,
		Reply:       b.String(),
		Suggestions: []string{"Restore the first task", "Restore all", "Show my tasks"},
	}
}

// Delete soft-deletes the staged targets.
func (e *Executor) Delete(ctx context.Context, userID uuid.UUID, payload pendingDelete) *Response {
	var titles []string
	var err error
	if payload.Section != "" {
		titles, err = e.store.SoftDeleteBySection(ctx, userID, payload.Section)
	} else {
		titles, err = e.store.SoftDeleteByIDs(ctx, userID, payload.TaskIDs)
	}
	if err != nil {
		e.logger.Error("store_error", zap.String("operation", "delete_tasks"), zap.Error(err))
		return storeFailure()
	}

	if len(titles) == 0 {
		return failure("Those tasks seem to be gone already. Try listing your tasks to see what's current.",
			"Show my tasks")
	}

	reply := fmt.Sprintf("Moved %q to your archive.", titles[0])
	if len(titles) > 1 {
		reply = fmt.Sprintf("Moved %d tasks to your archive: %s.", len(titles), strings.Join(titles, ", "))
	}
	return &Response{
		Success:     true,
		Reply:       reply + " You can restore them anytime.",
		Action:      "task_deleted",
		Suggestions: []string{"Show my tasks", "Show archived tasks"},
	}
}

// Edit applies a field-sparse update to one active task, re-checking time
// ordering and duplicates when identity fields change.
func (e *Executor) Edit(ctx context.Context, userID uuid.UUID, taskID uuid.UUID, data nlp.EditData) *Response {
	tasks, err := e.store.ByIDs(ctx, userID, []uuid.UUID{taskID})
	if err != nil {
		e.logger.Error("store_error", zap.String("operation", "edit_fetch"), zap.Error(err))
		return storeFailure()
	}
	if len(tasks) == 0 {
		return failure("I can't find that task anymore. Try listing your tasks.", "Show my tasks")
	}
	task := tasks[0]
	if task.Archived() {
		return failure(fmt.Sprintf("%q is archived. Restore it first if you want to change it.", task.Title),
			"Show archived tasks")
	}

	var changed []string
	identityChanged := false

	if data.Title != nil {
		title := strings.TrimSpace(*data.Title)
		if title == "" {
			return failure("A task needs a non-empty title.")
		}
		task.Title = title
		changed = append(changed, "title")
		identityChanged = true
	}
	if data.Section != nil {
		sec := strings.ToLower(strings.TrimSpace(*data.Section))
		if err := validation.ValidateSection(sec); err != nil {
			return failure(fmt.Sprintf("%q isn't a section I know. Sections are work, school, and personal.", *data.Section))
		}
		task.Section = models.Section(sec)
		changed = append(changed, "section")
		identityChanged = true
	}
	if data.Date != nil {
		task.Date = *data.Date
		changed = append(changed, "date")
		identityChanged = true
	}
	if data.StartTime != nil {
		task.StartTime = *data.StartTime
		changed = append(changed, "start time")
		identityChanged = true
	}
	if data.EndTime != nil {
		task.EndTime = data.EndTime
		changed = append(changed, "end time")
		identityChanged = true
	}
	if data.Priority != nil {
		if err := validation.ValidatePriority(*data.Priority); err != nil {
			return failure("Priority can be High, Medium, or Low.")
		}
		p := models.Priority(*data.Priority)
		task.Priority = &p
		changed = append(changed, "priority")
	}
	if data.Recurring != nil {
		if *data.Recurring == nlp.RecurringNone {
			task.Recurring = nil
			changed = append(changed, "recurring (removed)")
		} else {
			if err := validation.ValidateRecurring(*data.Recurring); err != nil {
				return failure("Recurring can be Daily, Weekdays, Weekly, Monthly, or Yearly.")
			}
			rec := models.Recurring(*data.Recurring)
			task.Recurring = &rec
			changed = append(changed, "recurring")
		}
	}

	if len(data.SetCollaborators) > 0 {
		resolved, resp := e.resolveCollaborators(ctx, data.SetCollaborators)
		if resp != nil {
			return resp
		}
		task.Collaborators = resolved
		changed = append(changed, "collaborators")
	} else {
		if len(data.AddCollaborators) > 0 {
			resolved, resp := e.resolveCollaborators(ctx, data.AddCollaborators)
			if resp != nil {
				return resp
			}
			task.Collaborators = unionStrings(task.Collaborators, resolved)
			changed = append(changed, "collaborators")
		}
		if len(data.RemoveCollaborators) > 0 {
			resolved, resp := e.resolveCollaborators(ctx, data.RemoveCollaborators)
			if resp != nil {
				return resp
			}
			task.Collaborators = subtractStrings(task.Collaborators, resolved)
			changed = append(changed, "collaborators")
		}
	}

	if len(changed) == 0 {
		return failure(fmt.Sprintf("I couldn't tell what you want to change about %q.", task.Title))
	}

	if !timeutil.IsRangeValid(task.StartTime, task.EndTime) {
		if task.EndTime == nil {
			return failure("I couldn't make sense of that start time. Try something like \"at 3pm\".")
		}
		return failure(fmt.Sprintf("That would put the end time (%s) before the start time (%s).",
			timeutil.Format(*task.EndTime), timeutil.Format(task.StartTime)))
	}

	if identityChanged {
		dup, err := e.store.FindDuplicate(ctx, userID, task.Title, string(task.Section), task.Date, task.StartTime, task.EndTime, task.ID)
		if err != nil {
			e.logger.Error("store_error", zap.String("operation", "edit_duplicate_check"), zap.Error(err))
			return storeFailure()
		}
		if dup != nil {
			return failure(fmt.Sprintf("That change would collide with your existing task %q on %s at the same time.",
				dup.Title, dup.Date))
		}
	}

	if err := e.store.Update(ctx, &task); err != nil {
		e.logger.Error("store_error", zap.String("operation", "edit_update"), zap.Error(err))
		return storeFailure()
	}

	e.notifier.CheckImmediate(ctx, &task)

	return &Response{
		Success:     true,
		Reply:       fmt.Sprintf("Updated %q: changed %s.", task.Title, strings.Join(changed, ", ")),
		Action:      "task_updated",
		TaskID:      task.ID.String(),
		Suggestions: []string{"Show my tasks", "What's my schedule?"},
	}
}

// Restore brings archived tasks back to the active list.
func (e *Executor) Restore(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) *Response {
	titles, err := e.store.Restore(ctx, userID, ids)
	if err != nil {
		e.logger.Error("store_error", zap.String("operation", "restore_tasks"), zap.Error(err))
		return storeFailure()
	}
	if len(titles) == 0 {
		return failure("Those tasks don't seem to be in your archive anymore.", "Show archived tasks", "Show my tasks")
	}

	// Restored tasks may start within the reminder window right now.
	restored, err := e.store.ByIDs(ctx, userID, ids)
	if err == nil {
		for i := range restored {
			e.notifier.CheckImmediate(ctx, &restored[i])
		}
	}

	reply := fmt.Sprintf("Welcome back, %q! It's active again.", titles[0])
	if len(titles) > 1 {
		reply = fmt.Sprintf("Restored %d tasks: %s.", len(titles), strings.Join(titles, ", "))
	}
	return &Response{
		Success:     true,
		Reply:       reply,
		Action:      "task_restored",
		Suggestions: []string{"Show my tasks", "Show archived tasks"},
	}
}

// ListCollaborators returns the user directory annotated with whether each
// person is on any of the owner's active tasks.
func (e *Executor) ListCollaborators(ctx context.Context, userID uuid.UUID) *Response {
	users, err := e.users.List(ctx)
	if err != nil {
		e.logger.Error("store_error", zap.String("operation", "list_collaborators"), zap.Error(err))
		return storeFailure()
	}
	if len(users) == 0 {
		return &Response{Success: true, Reply: "I don't know any collaborators yet."}
	}

	active, err := e.store.Active(ctx, userID, "")
	if err != nil {
		e.logger.Error("store_error", zap.String("operation", "list_collaborators_tasks"), zap.Error(err))
		return storeFailure()
	}
	inUse := make(map[string]bool)
	for i := range active {
		for _, email := range active[i].Collaborators {
			inUse[strings.ToLower(email)] = true
		}
	}

	var b strings.Builder
	b.WriteString("People you can add to tasks:\n")
	for i := range users {
		line := fmt.Sprintf("- %s (%s)", users[i].Username(), users[i].Email)
		if inUse[strings.ToLower(users[i].Email)] {
			line += " — already on your tasks"
		}
		b.WriteString(line + "\n")
	}

	return &Response{
		Success:     true,
		Reply:       strings.TrimRight(b.String(), "\n"),
		Suggestions: []string{"Add a task with a collaborator", "Show my tasks"},
	}
}

// resolveActiveTask finds one non-archived task by exact id or
// case-insensitive title substring. The failure response is ready to return
// to the user.
func (e *Executor) resolveActiveTask(ctx context.Context, userID uuid.UUID, ref string) (*models.Task, *Response) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, failure("I couldn't tell which task you mean.", "Show my tasks")
	}

	if id, err := uuid.Parse(ref); err == nil {
		tasks, err := e.store.ByIDs(ctx, userID, []uuid.UUID{id})
		if err != nil {
			e.logger.Error("store_error", zap.String("operation", "resolve_by_id"), zap.Error(err))
			return nil, storeFailure()
		}
		if len(tasks) == 0 || tasks[0].Archived() {
			return nil, failure("I can't find that task among your active ones.", "Show my tasks")
		}
		return &tasks[0], nil
	}

	active, err := e.store.Active(ctx, userID, "")
	if err != nil {
		e.logger.Error("store_error", zap.String("operation", "resolve_by_title"), zap.Error(err))
		return nil, storeFailure()
	}
	needle := strings.ToLower(ref)
	for i := range active {
		title := strings.ToLower(active[i].Title)
		if strings.Contains(title, needle) || strings.Contains(needle, title) {
			return &active[i], nil
		}
	}
	return nil, failure(fmt.Sprintf("I couldn't find an active task matching %q. Try listing your tasks first.", ref),
		"Show my tasks")
}

// resolveCollaborators maps free-text mentions to canonical emails.
// Unmatched plain names are dropped; strings containing "@" pass through as
// literal emails.
func (e *Executor) resolveCollaborators(ctx context.Context, tokens []string) ([]string, *Response) {
	if len(tokens) == 0 {
		return nil, nil
	}
	users, err := e.users.List(ctx)
	if err != nil {
		e.logger.Error("store_error", zap.String("operation", "resolve_collaborators"), zap.Error(err))
		return nil, storeFailure()
	}

	var resolved []string
	seen := make(map[string]bool)
	add := func(email string) {
		key := strings.ToLower(email)
		if !seen[key] {
			seen[key] = true
			resolved = append(resolved, email)
		}
	}

	for _, token := range tokens {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		lower := strings.ToLower(token)

		matched := false
		for i := range users {
			u := &users[i]
			if strings.EqualFold(u.Email, token) ||
				strings.EqualFold(u.Username(), token) ||
				(u.Name != nil && strings.EqualFold(*u.Name, token)) {
				add(u.Email)
				matched = true
				break
			}
		}
		if matched {
			continue
		}
		if strings.Contains(lower, "@") {
			add(token)
		}
		// Unmatched plain names are silently dropped.
	}

	return resolved, nil
}

func (e *Executor) queryScope(q *nlp.QueryData) (date, section string) {
	date = timeutil.LocalDate(e.nowFn(), 0)
	if q == nil {
		return date, ""
	}
	if q.Date != "" {
		date = timeutil.ParseDate(q.Date, e.nowFn())
	}
	section = strings.ToLower(strings.TrimSpace(q.Section))
	if validation.ValidateSection(section) != nil {
		section = ""
	}
	return date, section
}

func unionStrings(base, extra []string) []string {
	seen := make(map[string]bool, len(base))
	out := make([]string, 0, len(base)+len(extra))
	for _, s := range base {
		seen[strings.ToLower(s)] = true
		out = append(out, s)
	}
	for _, s := range extra {
		if !seen[strings.ToLower(s)] {
			seen[strings.ToLower(s)] = true
			out = append(out, s)
		}
	}
	return out
}

func subtractStrings(base, remove []string) []string {
	drop := make(map[string]bool, len(remove))
	for _, s := range remove {
		drop[strings.ToLower(s)] = true
	}
	out := make([]string, 0, len(base))
	for _, s := range base {
		if !drop[strings.ToLower(s)] {
			out = append(out, s)
		}
	}
	return out
}
