package notify

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskmateai/taskmate/internal/models"
	"github.com/taskmateai/taskmate/internal/queue"
)

type fakeTaskSource struct {
	byDate map[string][]models.Task
}

func (f *fakeTaskSource) AllActiveByDate(_ context.Context, date string) ([]models.Task, error) {
	return f.byDate[date], nil
}

type fakeReminderLog struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newFakeReminderLog() *fakeReminderLog {
	return &fakeReminderLog{seen: make(map[string]bool)}
}

func (f *fakeReminderLog) MarkSent(_ context.Context, key string, _ uuid.UUID, _ string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	return true, nil
}

type capturingQueue struct {
	mu     sync.Mutex
	events []*queue.ReminderEvent
}

func (q *capturingQueue) Publish(_ context.Context, event *queue.ReminderEvent) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = append(q.events, event)
	return nil
}

func (q *capturingQueue) Consume(context.Context) (<-chan *queue.ReminderEvent, <-chan error, error) {
	return nil, nil, nil
}

func (q *capturingQueue) Close() error { return nil }

func (q *capturingQueue) published() []*queue.ReminderEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*queue.ReminderEvent, len(q.events))
	copy(out, q.events)
	return out
}

type fakeOffsets struct {
	active  []float64
	byEmail map[string]float64
}

func (f *fakeOffsets) ActiveOffsets() []float64 { return f.active }

func (f *fakeOffsets) Offset(email string) (float64, bool) {
	o, ok := f.byEmail[email]
	return o, ok
}

func taskAt(title string, hour, minute int, period, date string) models.Task {
	return models.Task{
		ID:        uuid.New(),
		Title:     title,
		Section:   models.SectionWork,
		Date:      date,
		StartTime: models.TimeOfDay{Hour: strconv.Itoa(hour), Minute: fmt.Sprintf("%02d", minute), Period: period},
		Status:    models.TaskStatusPending,
		CreatedBy: "me@example.com",
	}
}

func newTestScanner(store *fakeTaskSource, offsets *fakeOffsets, now time.Time) (*Scanner, *capturingQueue, *fakeReminderLog) {
	q := &capturingQueue{}
	log := newFakeReminderLog()
	s := NewScanner(store, log, q, offsets, zap.NewNop())
	s.nowFn = func() time.Time { return now }
	return s, q, log
}

func TestScanNoticeWindow(t *testing.T) {
	// 10:00 UTC; the one-hour window covers starts at 10:59-11:01.
	now := time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)
	store := &fakeTaskSource{byDate: map[string][]models.Task{
		"2026-06-15": {
			taskAt("too soon", 10, 58, "AM", "2026-06-15"),
			taskAt("low edge", 10, 59, "AM", "2026-06-15"),
			taskAt("exact hour", 11, 0, "AM", "2026-06-15"),
			taskAt("high edge", 11, 1, "AM", "2026-06-15"),
			taskAt("too far", 11, 2, "AM", "2026-06-15"),
		},
	}}
	scanner, q, _ := newTestScanner(store, &fakeOffsets{active: []float64{0}}, now)

	scanner.ScanOnce(context.Background())

	events := q.published()
	if len(events) != 3 {
		t.Fatalf("published %d events, want 3", len(events))
	}
	want := map[string]int{"low edge": 59, "exact hour": 60, "high edge": 61}
	for _, e := range events {
		m, ok := want[e.Title]
		if !ok {
			t.Errorf("unexpected reminder for %q", e.Title)
			continue
		}
		if e.MinutesUntil != m {
			t.Errorf("%q minutes until = %d, want %d", e.Title, e.MinutesUntil, m)
		}
		if e.Kind != queue.KindUpcoming {
			t.Errorf("%q kind = %q", e.Title, e.Kind)
		}
	}
}

func TestScanDeduplicates(t *testing.T) {
	now := time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)
	store := &fakeTaskSource{byDate: map[string][]models.Task{
		"2026-06-15": {taskAt("meeting", 11, 0, "AM", "2026-06-15")},
	}}
	scanner, q, _ := newTestScanner(store, &fakeOffsets{active: []float64{0}}, now)

	scanner.ScanOnce(context.Background())
	scanner.ScanOnce(context.Background())

	if got := len(q.published()); got != 1 {
		t.Errorf("published %d events after two scans, want 1", got)
	}
}

func TestScanRestrictsToActiveOffsets(t *testing.T) {
	// 08:00 UTC. In UTC+2 it's 10:00 with an 11:00 AM local task in window.
	// The UTC zone also has a task in window, but nobody is connected there.
	now := time.Date(2026, 6, 15, 8, 0, 0, 0, time.UTC)
	store := &fakeTaskSource{byDate: map[string][]models.Task{
		"2026-06-15": {
			taskAt("berlin standup", 11, 0, "AM", "2026-06-15"),
			taskAt("utc task", 9, 0, "AM", "2026-06-15"),
		},
	}}
	scanner, q, _ := newTestScanner(store, &fakeOffsets{active: []float64{2}}, now)

	scanner.ScanOnce(context.Background())

	events := q.published()
	if len(events) != 1 || events[0].Title != "berlin standup" {
		t.Fatalf("events = %+v, want only the UTC+2 reminder", events)
	}
	if events[0].OffsetHours != 2 {
		t.Errorf("offset = %v, want 2", events[0].OffsetHours)
	}
}

func TestScanHalfHourOffset(t *testing.T) {
	// 05:30 UTC is 11:00 in UTC+5.5; a noon task there is 60 minutes out.
	now := time.Date(2026, 6, 15, 5, 30, 0, 0, time.UTC)
	store := &fakeTaskSource{byDate: map[string][]models.Task{
		"2026-06-15": {taskAt("mumbai lunch", 12, 0, "PM", "2026-06-15")},
	}}
	scanner, q, _ := newTestScanner(store, &fakeOffsets{active: []float64{5.5}}, now)

	scanner.ScanOnce(context.Background())

	events := q.published()
	if len(events) != 1 {
		t.Fatalf("published %d events, want 1", len(events))
	}
	if events[0].MinutesUntil != 60 {
		t.Errorf("minutes until = %d, want 60", events[0].MinutesUntil)
	}
}

func TestImmediateKnownOffset(t *testing.T) {
	now := time.Date(2026, 6, 15, 10, 30, 0, 0, time.UTC)
	offsets := &fakeOffsets{byEmail: map[string]float64{"me@example.com": 0}}
	scanner, q, _ := newTestScanner(&fakeTaskSource{}, offsets, now)

	task := taskAt("starts soon", 11, 0, "AM", "2026-06-15")
	scanner.CheckImmediate(context.Background(), &task)

	events := q.published()
	if len(events) != 1 {
		t.Fatalf("published %d events, want 1", len(events))
	}
	if events[0].Kind != queue.KindImmediate {
		t.Errorf("kind = %q", events[0].Kind)
	}
	if events[0].MinutesUntil != 30 {
		t.Errorf("minutes until = %d, want 30", events[0].MinutesUntil)
	}
}

func TestImmediateOutsideWindow(t *testing.T) {
	now := time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)
	offsets := &fakeOffsets{byEmail: map[string]float64{"me@example.com": 0}}
	scanner, q, _ := newTestScanner(&fakeTaskSource{}, offsets, now)

	// 66 minutes out: past the window.
	far := taskAt("later", 11, 6, "AM", "2026-06-15")
	scanner.CheckImmediate(context.Background(), &far)

	// Already started.
	past := taskAt("started", 9, 0, "AM", "2026-06-15")
	scanner.CheckImmediate(context.Background(), &past)

	if got := len(q.published()); got != 0 {
		t.Errorf("published %d events, want 0", got)
	}
}

func TestImmediateUnknownOffsetSweepsCommonZones(t *testing.T) {
	// 15:00 UTC: in UTC-5 it's 10:00 and a 10:45 AM local task is 45
	// minutes out. The scanner should find it without a declared offset.
	now := time.Date(2026, 6, 15, 15, 0, 0, 0, time.UTC)
	scanner, q, _ := newTestScanner(&fakeTaskSource{}, &fakeOffsets{}, now)

	task := taskAt("new york call", 10, 45, "AM", "2026-06-15")
	scanner.CheckImmediate(context.Background(), &task)

	events := q.published()
	if len(events) != 1 {
		t.Fatalf("published %d events, want exactly 1 (first matching zone)", len(events))
	}
	if events[0].OffsetHours != -5 {
		t.Errorf("offset = %v, want -5", events[0].OffsetHours)
	}
}

func TestDedupKeyFormat(t *testing.T) {
	id := uuid.MustParse("11111111-2222-3333-4444-555555555555")
	cases := []struct {
		offset float64
		want   string
	}{
		{5.5, "11111111-2222-3333-4444-555555555555_2026-06-15_task_starting_soon_UTC+5.5"},
		{-8, "11111111-2222-3333-4444-555555555555_2026-06-15_task_starting_soon_UTC-8"},
		{0, "11111111-2222-3333-4444-555555555555_2026-06-15_task_starting_soon_UTC+0"},
	}
	for _, tc := range cases {
		got := DedupKey(id, "2026-06-15", queue.KindUpcoming, tc.offset)
		if got != tc.want {
			t.Errorf("DedupKey(%v) = %q, want %q", tc.offset, got, tc.want)
		}
	}
}
