package notify

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskmateai/taskmate/internal/models"
	"github.com/taskmateai/taskmate/internal/queue"
	"github.com/taskmateai/taskmate/internal/timeutil"
)

// TaskSource is the slice of the task repository the scanner reads.
type TaskSource interface {
	AllActiveByDate(ctx context.Context, date string) ([]models.Task, error)
}

// ReminderLog deduplicates reminders across restarts and replicas. MarkSent
// returns true exactly once per key.
type ReminderLog interface {
	MarkSent(ctx context.Context, key string, taskID uuid.UUID, kind string) (bool, error)
}

// OffsetDirectory reports which UTC offsets have connected users, and the
// declared offset of a specific user.
type OffsetDirectory interface {
	ActiveOffsets() []float64
	Offset(email string) (float64, bool)
}

const (
	// Scan tick and the one-hour notice window, in minutes before start.
	ScanInterval      = 60 * time.Second
	noticeWindowLow   = 59
	noticeWindowHigh  = 61
	immediateWindowHi = 65
)

// allUTCOffsets covers every inhabited timezone: whole hours UTC-12..UTC+14
// plus the half-hour and 45-minute zones.
func allUTCOffsets() []float64 {
	offsets := make([]float64, 0, 36)
	for o := -12; o <= 14; o++ {
		offsets = append(offsets, float64(o))
	}
	offsets = append(offsets, -9.5, -4.5, 3.5, 4.5, 5.5, 6.5, 9.5, 10.5, 12.75)
	return offsets
}

// commonOffsets is the fallback sweep for immediate checks when the user's
// own offset is unknown.
var commonOffsets = []float64{-8, -7, -6, -5, -4, 0, 1, 2, 5.5, 8, 9}

// Scanner walks candidate UTC offsets each minute and queues a reminder for
// every task entering its one-hour window in that zone.
type Scanner struct {
	store   TaskSource
	log     ReminderLog
	queue   queue.ReminderQueue
	offsets OffsetDirectory
	logger  *zap.Logger
	nowFn   func() time.Time
	all     []float64
}

// NewScanner wires the reminder scanner.
func NewScanner(store TaskSource, log ReminderLog, q queue.ReminderQueue, offsets OffsetDirectory, logger *zap.Logger) *Scanner {
	return &Scanner{
		store:   store,
		log:     log,
		queue:   q,
		offsets: offsets,
		logger:  logger,
		nowFn:   time.Now,
		all:     allUTCOffsets(),
	}
}

// Run sweeps immediately and then once per tick until the context is
// canceled.
func (s *Scanner) Run(ctx context.Context) {
	s.ScanOnce(ctx)
	ticker := time.NewTicker(ScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.ScanOnce(ctx)
		}
	}
}

// ScanOnce checks every candidate offset. When any users have declared their
// offsets, only those zones are swept; an empty hub means every zone on
// Earth gets checked so nobody's reminder is silently skipped.
func (s *Scanner) ScanOnce(ctx context.Context) {
	offsets := s.offsets.ActiveOffsets()
	if len(offsets) == 0 {
		offsets = s.all
	}
	now := s.nowFn().UTC()
	for _, offset := range offsets {
		if err := s.scanOffset(ctx, now, offset); err != nil {
			s.logger.Error("reminder_scan_failed",
				zap.Float64("utc_offset", offset),
				zap.Error(err))
		}
	}
}

func (s *Scanner) scanOffset(ctx context.Context, now time.Time, offset float64) error {
	local := now.Add(offsetDuration(offset))
	date := local.Format("2006-01-02")

	tasks, err := s.store.AllActiveByDate(ctx, date)
	if err != nil {
		return fmt.Errorf("loading tasks for %s: %w", date, err)
	}

	for i := range tasks {
		task := &tasks[i]
		m, ok := minutesUntilStart(task, local)
		if !ok || m < noticeWindowLow || m > noticeWindowHigh {
			continue
		}

		key := DedupKey(task.ID, now.Format("2006-01-02"), queue.KindUpcoming, offset)
		first, err := s.log.MarkSent(ctx, key, task.ID, queue.KindUpcoming)
		if err != nil {
			s.logger.Error("reminder_dedup_failed", zap.String("key", key), zap.Error(err))
			continue
		}
		if !first {
			continue
		}

		event := &queue.ReminderEvent{
			ID:           uuid.New(),
			TaskID:       task.ID,
			Title:        task.Title,
			Section:      task.Section,
			Date:         task.Date,
			StartTime:    task.StartTime,
			Kind:         queue.KindUpcoming,
			Recipients:   recipients(task),
			OffsetHours:  offset,
			MinutesUntil: m,
			CreatedAt:    now,
		}
		if err := s.queue.Publish(ctx, event); err != nil {
			s.logger.Error("reminder_publish_failed",
				zap.String("task_id", task.ID.String()),
				zap.Error(err))
			continue
		}
		s.logger.Info("reminder_queued",
			zap.String("task_id", task.ID.String()),
			zap.String("title", task.Title),
			zap.Float64("utc_offset", offset),
			zap.Int("minutes_until", m))
	}
	return nil
}

// CheckImmediate queues a reminder for a just-created, just-edited, or
// just-restored task that already starts within the next hour. It checks the
// creator's declared offset when known, otherwise sweeps the common zones
// and stops at the first hit.
func (s *Scanner) CheckImmediate(ctx context.Context, task *models.Task) {
	candidates := commonOffsets
	if offset, ok := s.offsets.Offset(task.CreatedBy); ok {
		candidates = []float64{offset}
	}

	now := s.nowFn().UTC()
	for _, offset := range candidates {
		local := now.Add(offsetDuration(offset))
		if task.Date != local.Format("2006-01-02") {
			continue
		}
		m, ok := minutesUntilStart(task, local)
		if !ok || m <= 0 || m > immediateWindowHi {
			continue
		}

		event := &queue.ReminderEvent{
			ID:           uuid.New(),
			TaskID:       task.ID,
			Title:        task.Title,
			Section:      task.Section,
			Date:         task.Date,
			StartTime:    task.StartTime,
			Kind:         queue.KindImmediate,
			Recipients:   recipients(task),
			OffsetHours:  offset,
			MinutesUntil: m,
			CreatedAt:    now,
		}
		if err := s.queue.Publish(ctx, event); err != nil {
			s.logger.Error("reminder_publish_failed",
				zap.String("task_id", task.ID.String()),
				zap.Error(err))
		}
		return // one immediate reminder is enough
	}
}

// minutesUntilStart returns whole minutes between the local clock and the
// task's start time on the same local day.
func minutesUntilStart(task *models.Task, local time.Time) (int, bool) {
	start := timeutil.ToMinutes(task.StartTime)
	if start < 0 {
		return 0, false
	}
	nowMinutes := local.Hour()*60 + local.Minute()
	return start - nowMinutes, true
}

// recipients is the creator plus collaborators, deduplicated.
func recipients(task *models.Task) []string {
	seen := make(map[string]bool, 1+len(task.Collaborators))
	var out []string
	add := func(email string) {
		if email == "" || seen[email] {
			return
		}
		seen[email] = true
		out = append(out, email)
	}
	add(task.CreatedBy)
	for _, c := range task.Collaborators {
		add(c)
	}
	return out
}

// DedupKey identifies one reminder: task, day, kind, and zone. The log keeps
// at most one send per key.
func DedupKey(taskID uuid.UUID, date, kind string, offset float64) string {
	return fmt.Sprintf("%s_%s_%s_UTC%s", taskID, date, kind, formatOffset(offset))
}

func formatOffset(offset float64) string {
	s := strconv.FormatFloat(offset, 'f', -1, 64)
	if offset >= 0 {
		return "+" + s
	}
	return s
}

func offsetDuration(offset float64) time.Duration {
	return time.Duration(offset * float64(time.Hour))
}
