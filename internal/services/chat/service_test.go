package chat

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskmateai/taskmate/internal/models"
	"github.com/taskmateai/taskmate/internal/services/nlp"
	"github.com/taskmateai/taskmate/internal/session"
	"github.com/taskmateai/taskmate/internal/timeutil"
)

type testEnv struct {
	service  *Service
	store    *fakeStore
	oracle   *scriptedOracle
	notifier *recordingNotifier
	sessions *session.Store
	userID   uuid.UUID
	email    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	sessions := session.NewStore(logger)
	store := newFakeStore()
	oracle := &scriptedOracle{}
	notifier := &recordingNotifier{}
	dir := &fakeDirectory{users: []models.User{
		{ID: uuid.New(), Email: "alex@example.com", Name: strPtr("Alex Chen")},
		{ID: uuid.New(), Email: "sam@example.com"},
	}}

	resolver := nlp.NewResolver(sessions, oracle, logger)
	exec := NewExecutor(store, dir, notifier, sessions, logger)
	service := NewService(sessions, resolver, exec, nil, logger)

	return &testEnv{
		service:  service,
		store:    store,
		oracle:   oracle,
		notifier: notifier,
		sessions: sessions,
		userID:   uuid.New(),
		email:    "me@example.com",
	}
}

func strPtr(s string) *string { return &s }

func todP(hour, minute, period string) *models.TimeOfDay {
	return &models.TimeOfDay{Hour: hour, Minute: minute, Period: period}
}

func (env *testEnv) send(t *testing.T, message string) *Response {
	t.Helper()
	return env.service.HandleMessage(context.Background(), env.userID, env.email, message, nil)
}

func (env *testEnv) seedActive(title string, section models.Section, date string, start models.TimeOfDay, end *models.TimeOfDay) *models.Task {
	return env.store.add(models.Task{
		Title:     title,
		Section:   section,
		Date:      date,
		StartTime: start,
		EndTime:   end,
		Status:    models.TaskStatusPending,
		CreatedBy: env.email,
		UserID:    env.userID,
	})
}

func (env *testEnv) seedArchived(title string, section models.Section) *models.Task {
	now := time.Now()
	return env.store.add(models.Task{
		Title:     title,
		Section:   section,
		Date:      "2026-06-10",
		StartTime: models.TimeOfDay{Hour: "9", Minute: "00", Period: "AM"},
		Status:    models.TaskStatusDeleted,
		DeletedAt: &now,
		CreatedBy: env.email,
		UserID:    env.userID,
	})
}

// Scenario: a simple direct create lands in the store with only the fields
// the user actually gave.
func TestCreateHomeworkDirect(t *testing.T) {
	env := newTestEnv(t)
	env.oracle.responses = []*nlp.RawResponse{{
		Type: string(nlp.IntentCreateTaskDirect),
		TaskData: &nlp.TaskData{
			Title:     "homework",
			Section:   "school",
			StartTime: todP("6", "0", "PM"),
		},
	}}

	resp := env.send(t, "create homework task for school at 6pm")
	if !resp.Success {
		t.Fatalf("create failed: %s", resp.Reply)
	}
	if env.oracle.callCount() != 1 {
		t.Errorf("oracle consulted %d times, want 1", env.oracle.callCount())
	}
	if resp.TaskID == "" {
		t.Fatal("no task id in response")
	}

	task := env.store.get(uuid.MustParse(resp.TaskID))
	if task == nil {
		t.Fatal("task not in store")
	}
	if task.Section != models.SectionSchool {
		t.Errorf("section = %q", task.Section)
	}
	if timeutil.ToMinutes(task.StartTime) != 18*60 {
		t.Errorf("start time = %+v, want 6 PM", task.StartTime)
	}
	if task.Priority != nil || task.EndTime != nil || task.Recurring != nil || len(task.Collaborators) != 0 {
		t.Errorf("optional fields were defaulted: %+v", task)
	}
	if env.notifier.count() != 1 {
		t.Errorf("immediate notify hook fired %d times, want 1", env.notifier.count())
	}
}

// Scenario: view archive, "restore the first task" resolves without the
// oracle, "yes" executes it.
func TestRestoreFirstTaskEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	first := env.seedArchived("Old essay", models.SectionSchool)
	time.Sleep(2 * time.Millisecond) // deterministic recency ordering
	env.seedArchived("Old gym", models.SectionPersonal)

	env.oracle.responses = []*nlp.RawResponse{{Type: string(nlp.IntentShowArchivedTasks)}}
	resp := env.send(t, "show my archived tasks")
	if !resp.Success {
		t.Fatalf("show archived failed: %s", resp.Reply)
	}
	callsAfterShow := env.oracle.callCount()

	// Archived list is recency-ordered, so index 1 is the newer entry.
	sess, _ := env.sessions.Get(env.userID)
	indexOneID := sess.LastMentionedTasks[0].ID

	resp = env.send(t, "restore the first task")
	if env.oracle.callCount() != callsAfterShow {
		t.Error("oracle consulted for fast-path restore")
	}
	if !resp.AwaitingConfirmation {
		t.Fatalf("restore not staged: %s", resp.Reply)
	}

	resp = env.send(t, "yes")
	if !resp.Success {
		t.Fatalf("confirm failed: %s", resp.Reply)
	}
	restored := env.store.get(indexOneID)
	if restored.DeletedAt != nil || restored.Status != models.TaskStatusPending {
		t.Errorf("task not restored: %+v", restored)
	}
	// The other task stays archived.
	other := env.store.get(first.ID)
	if indexOneID != first.ID && !other.Archived() {
		t.Errorf("wrong task restored")
	}
}

// Scenario: archive focus with an empty archive.
func TestRestoreFromEmptyArchive(t *testing.T) {
	env := newTestEnv(t)
	env.oracle.responses = []*nlp.RawResponse{{Type: string(nlp.IntentShowArchivedTasks)}}

	resp := env.send(t, "show archived tasks")
	if !strings.Contains(resp.Reply, "empty") {
		t.Fatalf("reply = %q", resp.Reply)
	}

	resp = env.send(t, "restore the first task")
	if resp.Success {
		t.Fatal("restore from empty archive succeeded")
	}
	if !strings.Contains(resp.Reply, "0 archived") {
		t.Errorf("reply = %q, want mention of 0 archived tasks", resp.Reply)
	}
}

// Scenario: restore attempted while viewing active tasks short-circuits
// before the oracle.
func TestRestoreWhileViewingActive(t *testing.T) {
	env := newTestEnv(t)
	env.seedActive("Testing", models.SectionWork, "2026-06-15", models.TimeOfDay{Hour: "9", Minute: "00", Period: "AM"}, nil)

	env.oracle.responses = []*nlp.RawResponse{{Type: string(nlp.IntentShowTasks)}}
	env.send(t, "show my tasks")
	calls := env.oracle.callCount()

	resp := env.send(t, "restore Testing")
	if env.oracle.callCount() != calls {
		t.Error("oracle consulted: guard must short-circuit first")
	}
	if resp.Success {
		t.Fatal("restore without archive focus succeeded")
	}
	if !strings.Contains(strings.ToLower(resp.Reply), "archived") {
		t.Errorf("reply = %q, want pointer to the archive", resp.Reply)
	}
}

func TestDuplicateCreateRefused(t *testing.T) {
	env := newTestEnv(t)
	data := &nlp.TaskData{
		Title:     "Gym",
		Section:   "personal",
		Date:      "2025-06-01",
		StartTime: todP("9", "0", "AM"),
	}
	env.oracle.responses = []*nlp.RawResponse{
		{Type: string(nlp.IntentCreateTaskDirect), TaskData: data},
		{Type: string(nlp.IntentCreateTaskDirect), TaskData: data},
	}

	resp := env.send(t, "add gym at 9am on june 1st")
	if !resp.Success {
		t.Fatalf("first create failed: %s", resp.Reply)
	}

	resp = env.send(t, "add gym at 9am on june 1st")
	if resp.Success {
		t.Fatal("duplicate create succeeded")
	}
	if !strings.Contains(resp.Reply, "already have") {
		t.Errorf("reply = %q, want an already-exists message", resp.Reply)
	}
}

func TestOverlapWarnsThenBypasses(t *testing.T) {
	env := newTestEnv(t)
	env.seedActive("Standup", models.SectionWork, "2026-06-15",
		models.TimeOfDay{Hour: "9", Minute: "00", Period: "AM"}, todP("10", "0", "AM"))

	env.oracle.responses = []*nlp.RawResponse{{
		Type: string(nlp.IntentCreateTaskDirect),
		TaskData: &nlp.TaskData{
			Title:     "Dentist",
			Section:   "personal",
			Date:      "2026-06-15",
			StartTime: todP("9", "30", "AM"),
		},
	}}

	resp := env.send(t, "add dentist at 9:30am")
	if resp.Success {
		t.Fatal("overlapping create went through without confirmation")
	}
	if !resp.AwaitingConfirmation {
		t.Fatal("overlap did not stage a bypass confirmation")
	}
	if !strings.Contains(resp.Reply, "Standup") {
		t.Errorf("reply = %q, want conflicting task named", resp.Reply)
	}

	resp = env.send(t, "yes")
	if !resp.Success {
		t.Fatalf("bypass create failed: %s", resp.Reply)
	}
	active, _ := env.store.Active(context.Background(), env.userID, "")
	if len(active) != 2 {
		t.Errorf("active tasks = %d, want 2", len(active))
	}
}

func TestConfirmIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.seedArchived("Old thing", models.SectionWork)

	env.oracle.responses = []*nlp.RawResponse{{Type: string(nlp.IntentShowArchivedTasks)}}
	env.send(t, "show archive")
	env.send(t, "restore the first task")

	resp := env.send(t, "yes")
	if !resp.Success {
		t.Fatalf("first confirm failed: %s", resp.Reply)
	}

	// Second yes: nothing staged, must not re-execute or error.
	resp = env.send(t, "yes")
	if !strings.Contains(resp.Reply, "nothing to confirm") {
		t.Errorf("second confirm reply = %q", resp.Reply)
	}

	archived, _ := env.store.Archived(context.Background(), env.userID)
	if len(archived) != 0 {
		t.Errorf("archive has %d tasks, want 0", len(archived))
	}
}

func TestCancelDiscardsPending(t *testing.T) {
	env := newTestEnv(t)
	env.seedArchived("Keep me archived", models.SectionWork)

	env.oracle.responses = []*nlp.RawResponse{{Type: string(nlp.IntentShowArchivedTasks)}}
	env.send(t, "show archive")
	env.send(t, "restore the first task")

	resp := env.send(t, "cancel")
	if !resp.Success {
		t.Fatalf("cancel failed: %s", resp.Reply)
	}

	archived, _ := env.store.Archived(context.Background(), env.userID)
	if len(archived) != 1 {
		t.Errorf("cancel did not keep the task archived")
	}

	// A later yes finds nothing staged.
	resp = env.send(t, "yes")
	if strings.Contains(resp.Reply, "Restored") || strings.Contains(resp.Reply, "Welcome back") {
		t.Error("canceled action executed on later yes")
	}
}

func TestDeleteBySectionBatch(t *testing.T) {
	env := newTestEnv(t)
	env.seedActive("Essay", models.SectionSchool, "2026-06-15", models.TimeOfDay{Hour: "1", Minute: "00", Period: "PM"}, nil)
	env.seedActive("Lab report", models.SectionSchool, "2026-06-16", models.TimeOfDay{Hour: "2", Minute: "00", Period: "PM"}, nil)
	env.seedActive("Groceries", models.SectionPersonal, "2026-06-15", models.TimeOfDay{Hour: "5", Minute: "00", Period: "PM"}, nil)

	env.oracle.responses = []*nlp.RawResponse{{
		Type:       string(nlp.IntentDeleteMultipleConfirmation),
		DeleteData: &nlp.DeleteData{Section: "school"},
	}}

	resp := env.send(t, "delete all my school tasks")
	if !resp.AwaitingConfirmation {
		t.Fatalf("section delete not staged: %s", resp.Reply)
	}

	resp = env.send(t, "yes")
	if !resp.Success {
		t.Fatalf("section delete failed: %s", resp.Reply)
	}

	archived, _ := env.store.Archived(context.Background(), env.userID)
	if len(archived) != 2 {
		t.Errorf("archived %d tasks, want 2", len(archived))
	}
	active, _ := env.store.Active(context.Background(), env.userID, "")
	if len(active) != 1 || active[0].Title != "Groceries" {
		t.Errorf("active tasks wrong: %+v", active)
	}
}

func TestEditSparseUpdate(t *testing.T) {
	env := newTestEnv(t)
	rec := models.RecurringWeekly
	task := env.store.add(models.Task{
		Title:         "Gym",
		Section:       models.SectionPersonal,
		Date:          "2026-06-15",
		StartTime:     models.TimeOfDay{Hour: "6", Minute: "00", Period: "PM"},
		Recurring:     &rec,
		Collaborators: []string{"alex@example.com"},
		Status:        models.TaskStatusPending,
		UserID:        env.userID,
		CreatedBy:     env.email,
	})

	env.oracle.responses = []*nlp.RawResponse{{
		Type: string(nlp.IntentEditTaskConfirmation),
		EditData: &nlp.EditData{
			TaskRef:   "gym",
			StartTime: todP("7", "0", "PM"),
			Recurring: strPtr(nlp.RecurringNone),
		},
	}}

	resp := env.send(t, "move gym to 7pm and stop repeating it")
	if !resp.AwaitingConfirmation {
		t.Fatalf("edit not staged: %s", resp.Reply)
	}

	resp = env.send(t, "yes")
	if !resp.Success {
		t.Fatalf("edit failed: %s", resp.Reply)
	}

	updated := env.store.get(task.ID)
	if timeutil.ToMinutes(updated.StartTime) != 19*60 {
		t.Errorf("start time not updated: %+v", updated.StartTime)
	}
	if updated.Recurring != nil {
		t.Error("recurring sentinel did not clear the field")
	}
	// Untouched fields survive.
	if updated.Title != "Gym" || len(updated.Collaborators) != 1 {
		t.Errorf("sparse edit clobbered other fields: %+v", updated)
	}
	if env.notifier.count() != 1 {
		t.Errorf("immediate notify hook fired %d times, want 1", env.notifier.count())
	}
}

func TestCollaboratorResolution(t *testing.T) {
	env := newTestEnv(t)
	env.oracle.responses = []*nlp.RawResponse{{
		Type: string(nlp.IntentCreateTaskDirect),
		TaskData: &nlp.TaskData{
			Title:         "Study session",
			Section:       "school",
			Date:          "2026-06-20",
			StartTime:     todP("4", "0", "PM"),
			Collaborators: []string{"Alex Chen", "sam", "stranger@elsewhere.org", "nobody-known"},
		},
	}}

	resp := env.send(t, "study session with alex and sam at 4pm")
	if !resp.Success {
		t.Fatalf("create failed: %s", resp.Reply)
	}

	task := env.store.get(uuid.MustParse(resp.TaskID))
	want := map[string]bool{
		"alex@example.com":       true, // matched by full name
		"sam@example.com":        true, // matched by username
		"stranger@elsewhere.org": true, // literal email passthrough
	}
	if len(task.Collaborators) != len(want) {
		t.Fatalf("collaborators = %v", task.Collaborators)
	}
	for _, email := range task.Collaborators {
		if !want[email] {
			t.Errorf("unexpected collaborator %q", email)
		}
	}
}

func TestVerbStrippedTitle(t *testing.T) {
	env := newTestEnv(t)
	env.oracle.responses = []*nlp.RawResponse{{
		Type: string(nlp.IntentCreateTaskDirect),
		TaskData: &nlp.TaskData{
			Title:     "create a task called water the plants",
			Section:   "personal",
			Date:      "2026-06-15",
			StartTime: todP("8", "0", "AM"),
		},
	}}

	resp := env.send(t, "create a task called water the plants at 8am")
	if !resp.Success {
		t.Fatalf("create failed: %s", resp.Reply)
	}
	task := env.store.get(uuid.MustParse(resp.TaskID))
	if task.Title != "water the plants" {
		t.Errorf("title = %q, want verb-stripped", task.Title)
	}
}

func TestStoreErrorsBecomeRetryReplies(t *testing.T) {
	env := newTestEnv(t)
	env.store.fail = true
	env.oracle.responses = []*nlp.RawResponse{{Type: string(nlp.IntentShowTasks)}}

	resp := env.send(t, "show my tasks")
	if resp.Success {
		t.Fatal("store failure reported as success")
	}
	if !strings.Contains(resp.Reply, "try that again") {
		t.Errorf("reply = %q, want a retry suggestion", resp.Reply)
	}
}

func TestShowEstablishesContextIndices(t *testing.T) {
	env := newTestEnv(t)
	env.seedActive("A", models.SectionWork, "2026-06-15", models.TimeOfDay{Hour: "9", Minute: "00", Period: "AM"}, nil)
	time.Sleep(2 * time.Millisecond)
	env.seedActive("B", models.SectionWork, "2026-06-15", models.TimeOfDay{Hour: "11", Minute: "00", Period: "AM"}, nil)

	env.oracle.responses = []*nlp.RawResponse{{Type: string(nlp.IntentShowTasks), Date: "2026-06-15"}}
	resp := env.send(t, "show my tasks for june 15")
	if !resp.Success {
		t.Fatalf("show failed: %s", resp.Reply)
	}

	sess, ok := env.sessions.Get(env.userID)
	if !ok || len(sess.LastMentionedTasks) != 2 {
		t.Fatalf("context not established: %+v", sess)
	}
	for i, ref := range sess.LastMentionedTasks {
		if ref.Index != i+1 {
			t.Errorf("ref %d index = %d", i, ref.Index)
		}
		if ref.Source != models.SourceActive {
			t.Errorf("ref %d source = %q", i, ref.Source)
		}
	}
}
