package session

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskmateai/taskmate/internal/models"
)

func newTestStore() *Store {
	return NewStore(zap.NewNop())
}

func TestGetOrCreateDefaults(t *testing.T) {
	st := newTestStore()
	userID := uuid.New()

	s := st.GetOrCreate(userID)
	if s.CurrentFocus != FocusTasks {
		t.Errorf("CurrentFocus = %q, want %q", s.CurrentFocus, FocusTasks)
	}
	if s.LastViewedType != ViewActive {
		t.Errorf("LastViewedType = %q, want %q", s.LastViewedType, ViewActive)
	}
	if s.Pending != nil {
		t.Errorf("new session has pending confirmation")
	}

	again := st.GetOrCreate(userID)
	if again.ID != s.ID {
		t.Errorf("second GetOrCreate returned a different session")
	}
}

func TestSetTaskContextInfersArchiveSource(t *testing.T) {
	st := newTestStore()
	userID := uuid.New()
	now := time.Now()

	tasks := []models.Task{
		{ID: uuid.New(), Title: "Old report", Section: models.SectionWork},
		{ID: uuid.New(), Title: "Old gym", Section: models.SectionPersonal, DeletedAt: &now, Status: models.TaskStatusDeleted},
	}
	st.SetTaskContext(userID, tasks, nil)

	s, ok := st.Get(userID)
	if !ok {
		t.Fatal("session missing after SetTaskContext")
	}
	if s.CurrentFocus != FocusArchived {
		t.Errorf("CurrentFocus = %q, want %q", s.CurrentFocus, FocusArchived)
	}
	if s.LastViewedType != ViewArchived {
		t.Errorf("LastViewedType = %q, want %q", s.LastViewedType, ViewArchived)
	}
	for _, ref := range s.LastMentionedTasks {
		if ref.Source != models.SourceArchive {
			t.Errorf("ref %q tagged %q, want archive", ref.Title, ref.Source)
		}
		if !ref.Archived {
			t.Errorf("ref %q not flagged archived", ref.Title)
		}
	}
}

func TestSetTaskContextActiveBatch(t *testing.T) {
	st := newTestStore()
	userID := uuid.New()

	tasks := []models.Task{
		{ID: uuid.New(), Title: "A", Status: models.TaskStatusPending},
		{ID: uuid.New(), Title: "B", Status: models.TaskStatusPending},
		{ID: uuid.New(), Title: "C", Status: models.TaskStatusPending},
	}
	st.SetTaskContext(userID, tasks, &tasks[1])

	s, _ := st.Get(userID)
	if s.CurrentFocus != FocusTasks {
		t.Errorf("CurrentFocus = %q, want %q", s.CurrentFocus, FocusTasks)
	}
	for i, ref := range s.LastMentionedTasks {
		if ref.Index != i+1 {
			t.Errorf("ref %d has index %d", i, ref.Index)
		}
		if ref.Source != models.SourceActive {
			t.Errorf("ref %q tagged %q, want active", ref.Title, ref.Source)
		}
	}
	if s.LastFocusTask == nil || s.LastFocusTask.ID != tasks[1].ID {
		t.Errorf("LastFocusTask not set to primary task")
	}
}

func TestArchivedIDs(t *testing.T) {
	st := newTestStore()
	userID := uuid.New()
	now := time.Now()

	archived := []models.Task{
		{ID: uuid.New(), Title: "X", DeletedAt: &now},
		{ID: uuid.New(), Title: "Y", DeletedAt: &now},
	}
	st.SetTaskContext(userID, archived, nil)

	s, _ := st.Get(userID)
	ids := s.ArchivedIDs()
	if len(ids) != 2 {
		t.Fatalf("ArchivedIDs returned %d ids, want 2", len(ids))
	}
	for _, task := range archived {
		if !ids[task.ID] {
			t.Errorf("id %s missing from archived set", task.ID)
		}
	}
}

func TestEvictIdle(t *testing.T) {
	st := newTestStore()
	stale := uuid.New()
	fresh := uuid.New()

	s := st.GetOrCreate(stale)
	s.LastActivity = time.Now().Add(-time.Hour)
	st.GetOrCreate(fresh)

	if n := st.EvictIdle(30 * time.Minute); n != 1 {
		t.Errorf("EvictIdle = %d, want 1", n)
	}
	if _, ok := st.Get(stale); ok {
		t.Errorf("stale session survived eviction")
	}
	if _, ok := st.Get(fresh); !ok {
		t.Errorf("fresh session was evicted")
	}
}

func TestAppendLogBounded(t *testing.T) {
	s := &Session{}
	for i := 0; i < maxLogEntries+20; i++ {
		s.AppendLog("user", "message")
	}
	if len(s.Log) != maxLogEntries {
		t.Errorf("log length = %d, want %d", len(s.Log), maxLogEntries)
	}
}
