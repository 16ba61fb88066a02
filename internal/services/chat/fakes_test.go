package chat

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskmateai/taskmate/internal/models"
	"github.com/taskmateai/taskmate/internal/services/nlp"
	"github.com/taskmateai/taskmate/internal/timeutil"
)

// fakeStore is an in-memory TaskStore for executor tests.
type fakeStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*models.Task
	fail  bool // when set, every call errors
}

func newFakeStore() *fakeStore {
	return &fakeStore{tasks: make(map[uuid.UUID]*models.Task)}
}

type fakeStoreError struct{}

func (fakeStoreError) Error() string { return "store unavailable" }

func (f *fakeStore) add(task models.Task) *models.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	copied := task
	f.tasks[task.ID] = &copied
	return &copied
}

func (f *fakeStore) Insert(_ context.Context, task *models.Task) error {
	if f.fail {
		return fakeStoreError{}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	task.CreatedAt = time.Now()
	task.UpdatedAt = task.CreatedAt
	copied := *task
	f.tasks[task.ID] = &copied
	return nil
}

func (f *fakeStore) list(filter func(*models.Task) bool) []models.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Task
	for _, t := range f.tasks {
		if filter(t) {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (f *fakeStore) ActiveByDate(_ context.Context, userID uuid.UUID, date, section string) ([]models.Task, error) {
	if f.fail {
		return nil, fakeStoreError{}
	}
	return f.list(func(t *models.Task) bool {
		return t.UserID == userID && !t.Archived() && t.Date == date &&
			(section == "" || string(t.Section) == section)
	}), nil
}

func (f *fakeStore) Active(_ context.Context, userID uuid.UUID, section string) ([]models.Task, error) {
	if f.fail {
		return nil, fakeStoreError{}
	}
	return f.list(func(t *models.Task) bool {
		return t.UserID == userID && !t.Archived() && (section == "" || string(t.Section) == section)
	}), nil
}

func (f *fakeStore) Archived(_ context.Context, userID uuid.UUID) ([]models.Task, error) {
	if f.fail {
		return nil, fakeStoreError{}
	}
	return f.list(func(t *models.Task) bool {
		return t.UserID == userID && t.Archived()
	}), nil
}

func (f *fakeStore) ByIDs(_ context.Context, userID uuid.UUID, ids []uuid.UUID) ([]models.Task, error) {
	if f.fail {
		return nil, fakeStoreError{}
	}
	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	return f.list(func(t *models.Task) bool {
		return t.UserID == userID && want[t.ID]
	}), nil
}

func (f *fakeStore) FindDuplicate(_ context.Context, userID uuid.UUID, title, section, date string, start models.TimeOfDay, end *models.TimeOfDay, excludeID uuid.UUID) (*models.Task, error) {
	if f.fail {
		return nil, fakeStoreError{}
	}
	wantStart := timeutil.ToMinutes(start)
	wantEnd := -1
	if end != nil {
		wantEnd = timeutil.ToMinutes(*end)
	}
	candidates := f.list(func(t *models.Task) bool {
		return t.UserID == userID && !t.Archived() && t.ID != excludeID &&
			strings.EqualFold(t.Title, title) && string(t.Section) == section && t.Date == date
	})
	for i := range candidates {
		gotEnd := -1
		if candidates[i].EndTime != nil {
			gotEnd = timeutil.ToMinutes(*candidates[i].EndTime)
		}
		if timeutil.ToMinutes(candidates[i].StartTime) == wantStart && gotEnd == wantEnd {
			return &candidates[i], nil
		}
	}
	return nil, nil
}

func (f *fakeStore) SoftDeleteByIDs(_ context.Context, userID uuid.UUID, ids []uuid.UUID) ([]string, error) {
	if f.fail {
		return nil, fakeStoreError{}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	var titles []string
	for _, id := range ids {
		if t, ok := f.tasks[id]; ok && t.UserID == userID && !t.Archived() {
			t.Status = models.TaskStatusDeleted
			t.DeletedAt = &now
			titles = append(titles, t.Title)
		}
	}
	return titles, nil
}

func (f *fakeStore) SoftDeleteBySection(_ context.Context, userID uuid.UUID, section string) ([]string, error) {
	if f.fail {
		return nil, fakeStoreError{}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	var titles []string
	for _, t := range f.tasks {
		if t.UserID == userID && !t.Archived() && string(t.Section) == section {
			t.Status = models.TaskStatusDeleted
			t.DeletedAt = &now
			titles = append(titles, t.Title)
		}
	}
	return titles, nil
}

func (f *fakeStore) Restore(_ context.Context, userID uuid.UUID, ids []uuid.UUID) ([]string, error) {
	if f.fail {
		return nil, fakeStoreError{}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var titles []string
	for _, id := range ids {
		if t, ok := f.tasks[id]; ok && t.UserID == userID && t.Archived() {
			t.Status = models.TaskStatusPending
			t.DeletedAt = nil
			titles = append(titles, t.Title)
		}
	}
	return titles, nil
}

func (f *fakeStore) Update(_ context.Context, task *models.Task) error {
	if f.fail {
		return fakeStoreError{}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *task
	copied.UpdatedAt = time.Now()
	f.tasks[task.ID] = &copied
	return nil
}

func (f *fakeStore) get(id uuid.UUID) *models.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.tasks[id]; ok {
		copied := *t
		return &copied
	}
	return nil
}

// fakeDirectory serves a static user list.
type fakeDirectory struct {
	users []models.User
}

func (f *fakeDirectory) List(_ context.Context) ([]models.User, error) {
	return f.users, nil
}

// recordingNotifier counts immediate-check invocations.
type recordingNotifier struct {
	mu    sync.Mutex
	tasks []uuid.UUID
}

func (n *recordingNotifier) CheckImmediate(_ context.Context, task *models.Task) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tasks = append(n.tasks, task.ID)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.tasks)
}

// scriptedOracle replays queued responses and records consultations.
type scriptedOracle struct {
	mu        sync.Mutex
	responses []*nlp.RawResponse
	err       error
	calls     int
}

func (o *scriptedOracle) Interpret(_ context.Context, _ string, _ nlp.ConversationContext) (*nlp.RawResponse, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	if o.err != nil {
		return nil, o.err
	}
	if len(o.responses) == 0 {
		return &nlp.RawResponse{Type: "validation_error", Reply: "unscripted"}, nil
	}
	resp := o.responses[0]
	o.responses = o.responses[1:]
	return resp, nil
}

func (o *scriptedOracle) callCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}
