// Package timeutil holds the 12-hour clock arithmetic and the best-effort
// date/time text parsing the conversational layer leans on. Everything here
// is pure; callers inject "now" where it matters.
package timeutil

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/taskmateai/taskmate/internal/models"
)

// ToMinutes converts a 12-hour triple to minutes since midnight.
// 12 AM maps to 0, 12 PM maps to 720. Returns -1 for an unparsable triple so
// validity checks fail closed.
func ToMinutes(t models.TimeOfDay) int {
	hour, err := strconv.Atoi(strings.TrimSpace(t.Hour))
	if err != nil || hour < 1 || hour > 12 {
		return -1
	}
	minute := 0
	if t.Minute != "" {
		minute, err = strconv.Atoi(strings.TrimSpace(t.Minute))
		if err != nil || minute < 0 || minute > 59 {
			return -1
		}
	}
	switch strings.ToUpper(strings.TrimSpace(t.Period)) {
	case "AM":
		if hour == 12 {
			hour = 0
		}
	case "PM":
		if hour != 12 {
			hour += 12
		}
	default:
		return -1
	}
	return hour*60 + minute
}

// IsRangeValid reports whether end (when present) is strictly after start.
// An unparsable start fails closed; a missing or unparsable end is allowed,
// matching the store's optional end-time semantics.
func IsRangeValid(start models.TimeOfDay, end *models.TimeOfDay) bool {
	startMins := ToMinutes(start)
	if startMins < 0 {
		return false
	}
	if end == nil {
		return true
	}
	endMins := ToMinutes(*end)
	if endMins < 0 {
		return true
	}
	return endMins > startMins
}

// RangesOverlap reports whether two same-day ranges intersect. A missing end
// is treated as a 1-minute point interval, so back-to-back tasks never
// conflict but a shared start minute does.
func RangesOverlap(aStart models.TimeOfDay, aEnd *models.TimeOfDay, bStart models.TimeOfDay, bEnd *models.TimeOfDay) bool {
	aS := ToMinutes(aStart)
	bS := ToMinutes(bStart)
	if aS < 0 || bS < 0 {
		return false
	}
	aE := aS + 1
	if aEnd != nil {
		if m := ToMinutes(*aEnd); m >= 0 {
			aE = m
		}
	}
	bE := bS + 1
	if bEnd != nil {
		if m := ToMinutes(*bEnd); m >= 0 {
			bE = m
		}
	}
	return max(aS, bS) < min(aE, bE)
}

// Format renders a triple as "h:mm AM" for replies. Unset triples render as
// a placeholder rather than garbage.
func Format(t models.TimeOfDay) string {
	if t.Hour == "" || t.Period == "" {
		return "No time set"
	}
	minute := t.Minute
	if minute == "" {
		minute = "0"
	}
	if len(minute) < 2 {
		minute = "0" + minute
	}
	return fmt.Sprintf("%s:%s %s", t.Hour, minute, strings.ToUpper(t.Period))
}

// FormatRange renders "h:mm AM to h:mm PM", or just the start when no end
// time is set.
func FormatRange(start models.TimeOfDay, end *models.TimeOfDay) string {
	if end == nil {
		return Format(start)
	}
	return Format(start) + " to " + Format(*end)
}

var (
	clockRe = regexp.MustCompile(`(?i)\b(\d{1,2})(?::(\d{2}))?\s*(am|pm)\b`)
	rangeRe = regexp.MustCompile(`(?i)\b(\d{1,2})(?::(\d{2}))?\s*(am|pm)\s*(?:to|-)\s*(\d{1,2})(?::(\d{2}))?\s*(am|pm)\b`)
)

func toTriple(hour, minute, period string) models.TimeOfDay {
	if minute == "" {
		minute = "0"
	}
	return models.TimeOfDay{
		Hour:   strings.TrimLeft(hour, "0"),
		Minute: minute,
		Period: strings.ToUpper(period),
	}
}

// ExtractTimes pulls "10am to 11am" / "at 6:30 pm" style times out of free
// text. It recovers start times the oracle sometimes omits from create
// intents, so it deliberately accepts sloppy input and returns nils rather
// than errors.
func ExtractTimes(text string) (start, end *models.TimeOfDay) {
	if m := rangeRe.FindStringSubmatch(text); m != nil {
		s := toTriple(m[1], m[2], m[3])
		e := toTriple(m[4], m[5], m[6])
		return &s, &e
	}
	if m := clockRe.FindStringSubmatch(text); m != nil {
		s := toTriple(m[1], m[2], m[3])
		return &s, nil
	}
	return nil, nil
}

// ParseClock parses a standalone time expression ("6pm", "6:30 pm", "18:30",
// "18") into a triple. Bare 24-hour values are converted; ambiguous bare
// hours 1-6 are read as PM since users rarely schedule tasks before dawn.
func ParseClock(text string) *models.TimeOfDay {
	input := strings.ToLower(strings.TrimSpace(text))
	if m := clockRe.FindStringSubmatch(input); m != nil {
		t := toTriple(m[1], m[2], m[3])
		return &t
	}
	m := regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?$`).FindStringSubmatch(input)
	if m == nil {
		return nil
	}
	hour, _ := strconv.Atoi(m[1])
	minute := 0
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	if hour > 23 || minute > 59 {
		return nil
	}
	period := "AM"
	switch {
	case hour == 0:
		hour = 12
	case hour == 12:
		period = "PM"
	case hour > 12:
		hour -= 12
		period = "PM"
	case hour < 7:
		period = "PM"
	}
	t := models.TimeOfDay{Hour: strconv.Itoa(hour), Minute: fmt.Sprintf("%02d", minute), Period: period}
	return &t
}

// LocalDate formats now+offsetDays as the YYYY-MM-DD calendar day.
func LocalDate(now time.Time, offsetDays int) string {
	return now.AddDate(0, 0, offsetDays).Format("2006-01-02")
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseDate resolves a free-text date ("today", "tomorrow", "next monday",
// "in 3 days", "06/15/2026", "2026-06-15") to YYYY-MM-DD relative to now.
// Unparsable input falls back to today; the conversational surface prefers a
// plausible default over a hard failure.
func ParseDate(text string, now time.Time) string {
	input := strings.ToLower(strings.TrimSpace(text))
	switch input {
	case "", "today":
		return LocalDate(now, 0)
	case "tomorrow":
		return LocalDate(now, 1)
	case "next week":
		return LocalDate(now, 7)
	}

	if m := regexp.MustCompile(`^next\s+(\w+)$`).FindStringSubmatch(input); m != nil {
		if wd, ok := weekdays[m[1]]; ok {
			days := (int(wd) - int(now.Weekday()) + 7) % 7
			if days == 0 {
				days = 7
			}
			return LocalDate(now, days)
		}
	}

	if m := regexp.MustCompile(`^in\s+(\d+)\s+days?$`).FindStringSubmatch(input); m != nil {
		days, _ := strconv.Atoi(m[1])
		return LocalDate(now, days)
	}

	for _, layout := range []string{"2006-01-02", "01/02/2006", "01-02-2006"} {
		if d, err := time.Parse(layout, input); err == nil {
			return d.Format("2006-01-02")
		}
	}

	return LocalDate(now, 0)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
