// Package session keeps per-user conversational state. Everything here is
// process-local and intentionally lost on restart; durability belongs to the
// task store, not the conversation.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskmateai/taskmate/internal/models"
)

// Focus is what the user is currently looking at.
type Focus string

const (
	FocusTasks    Focus = "tasks"
	FocusArchived Focus = "archived_tasks"
)

// ViewType mirrors Focus for the caller-facing context payload.
type ViewType string

const (
	ViewActive   ViewType = "active"
	ViewArchived ViewType = "archived"
)

// ConfirmationKind tags a staged mutation.
type ConfirmationKind string

const (
	ConfirmCreate  ConfirmationKind = "create"
	ConfirmEdit    ConfirmationKind = "edit"
	ConfirmDelete  ConfirmationKind = "delete"
	ConfirmRestore ConfirmationKind = "restore"
)

// PendingConfirmation is a staged, not-yet-executed mutation. It exists only
// between propose and confirm/cancel.
type PendingConfirmation struct {
	Kind     ConfirmationKind
	Payload  any
	StagedAt time.Time
}

// LogEntry is one turn of the conversation, kept for diagnostics.
type LogEntry struct {
	Role string // "user" or "assistant"
	Text string
	At   time.Time
}

const maxLogEntries = 50

// Session is the conversational memory for one user.
type Session struct {
	ID                  uuid.UUID
	UserID              uuid.UUID
	LastActivity        time.Time
	CurrentFocus        Focus
	LastViewedType      ViewType
	Pending             *PendingConfirmation
	LastMentionedTasks  []models.TaskRef
	LastFocusTask       *models.TaskRef
	Log                 []LogEntry
	ContextualRefs      map[string]time.Time
	NotifyOffsetHours   *float64 // declared UTC offset, when the user's socket has joined
}

// ArchivedIDs returns the set of archived task ids the session can vouch for.
// Restore references are only honored against this set.
func (s *Session) ArchivedIDs() map[uuid.UUID]bool {
	ids := make(map[uuid.UUID]bool, len(s.LastMentionedTasks))
	for _, ref := range s.LastMentionedTasks {
		if ref.Source == models.SourceArchive {
			ids[ref.ID] = true
		}
	}
	return ids
}

// ActiveRefs returns the last-mentioned tasks tagged active, in index order.
func (s *Session) ActiveRefs() []models.TaskRef {
	var refs []models.TaskRef
	for _, ref := range s.LastMentionedTasks {
		if ref.Source == models.SourceActive {
			refs = append(refs, ref)
		}
	}
	return refs
}

// ArchivedRefs returns the last-mentioned tasks tagged archive, in index order.
func (s *Session) ArchivedRefs() []models.TaskRef {
	var refs []models.TaskRef
	for _, ref := range s.LastMentionedTasks {
		if ref.Source == models.SourceArchive {
			refs = append(refs, ref)
		}
	}
	return refs
}

// AppendLog records a conversation turn, keeping the log bounded.
func (s *Session) AppendLog(role, text string) {
	s.Log = append(s.Log, LogEntry{Role: role, Text: text, At: time.Now()})
	if len(s.Log) > maxLogEntries {
		s.Log = s.Log[len(s.Log)-maxLogEntries:]
	}
}

// Store holds sessions partitioned by user id.
type Store struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	logger   *zap.Logger
}

// NewStore creates an empty session store.
func NewStore(logger *zap.Logger) *Store {
	return &Store{
		sessions: make(map[uuid.UUID]*Session),
		logger:   logger,
	}
}

// GetOrCreate returns the user's session, refreshing its activity timestamp,
// creating it with defaults on first contact.
func (st *Store) GetOrCreate(userID uuid.UUID) *Session {
	st.mu.RLock()
	s, ok := st.sessions[userID]
	st.mu.RUnlock()
	if ok {
		st.mu.Lock()
		s.LastActivity = time.Now()
		st.mu.Unlock()
		return s
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	// Double-check: another request may have created it between the locks.
	if s, ok := st.sessions[userID]; ok {
		s.LastActivity = time.Now()
		return s
	}
	s = &Session{
		ID:             uuid.New(),
		UserID:         userID,
		LastActivity:   time.Now(),
		CurrentFocus:   FocusTasks,
		LastViewedType: ViewActive,
		ContextualRefs: make(map[string]time.Time),
	}
	st.sessions[userID] = s
	st.logger.Debug("session_created",
		zap.String("user_id", userID.String()),
		zap.String("session_id", s.ID.String()))
	return s
}

// Get returns the session if it exists, without creating one.
func (st *Store) Get(userID uuid.UUID) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[userID]
	return s, ok
}

// SetTaskContext rebuilds the session's last-mentioned task list from a
// fresh batch. The source tag is inferred from the tasks themselves: if any
// task in the batch carries an archived marker the whole batch is tagged
// archive and the session's focus follows. Caller-supplied labels are never
// trusted for this.
func (st *Store) SetTaskContext(userID uuid.UUID, tasks []models.Task, primary *models.Task) {
	s := st.GetOrCreate(userID)

	source := models.SourceActive
	for i := range tasks {
		if tasks[i].Archived() {
			source = models.SourceArchive
			break
		}
	}

	refs := make([]models.TaskRef, 0, len(tasks))
	for i := range tasks {
		refs = append(refs, models.TaskRef{
			ID:       tasks[i].ID,
			Title:    tasks[i].Title,
			Section:  tasks[i].Section,
			Index:    i + 1,
			Source:   source,
			Archived: source == models.SourceArchive,
		})
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	s.LastMentionedTasks = refs
	if source == models.SourceArchive {
		s.CurrentFocus = FocusArchived
		s.LastViewedType = ViewArchived
	} else {
		s.CurrentFocus = FocusTasks
		s.LastViewedType = ViewActive
	}
	s.LastFocusTask = nil
	if primary != nil {
		for i := range refs {
			if refs[i].ID == primary.ID {
				s.LastFocusTask = &refs[i]
				break
			}
		}
	}
	if s.LastFocusTask == nil && len(refs) > 0 {
		s.LastFocusTask = &refs[0]
	}
	s.ContextualRefs["task_context"] = time.Now()
	s.LastActivity = time.Now()
}

// FocusArchive flips the session into archive focus without touching the
// task list. Used when the user views an empty archive, so follow-up restore
// attempts are answered in archive terms.
func (st *Store) FocusArchive(userID uuid.UUID) {
	s := st.GetOrCreate(userID)
	st.mu.Lock()
	s.CurrentFocus = FocusArchived
	s.LastViewedType = ViewArchived
	st.mu.Unlock()
}

// SetOffset records the UTC offset a user declared when joining the
// notification socket, so immediate reminder checks can target their zone.
func (st *Store) SetOffset(userID uuid.UUID, offsetHours float64) {
	s := st.GetOrCreate(userID)
	st.mu.Lock()
	s.NotifyOffsetHours = &offsetHours
	st.mu.Unlock()
}

// EvictIdle removes sessions whose last activity predates now-threshold.
// Returns the number evicted.
func (st *Store) EvictIdle(threshold time.Duration) int {
	cutoff := time.Now().Add(-threshold)
	st.mu.Lock()
	defer st.mu.Unlock()
	evicted := 0
	for userID, s := range st.sessions {
		if s.LastActivity.Before(cutoff) {
			delete(st.sessions, userID)
			evicted++
		}
	}
	if evicted > 0 {
		st.logger.Info("sessions_evicted", zap.Int("count", evicted))
	}
	return evicted
}

// Start runs the idle-eviction sweep until the context is canceled.
func (st *Store) Start(ctx context.Context, interval, threshold time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st.EvictIdle(threshold)
		}
	}
}
