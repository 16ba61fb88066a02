package nlp

import (
	"regexp"
	"strings"
	"time"

	"github.com/taskmateai/taskmate/internal/timeutil"
)

// ParseFallback is the secondary, purely lexical parser used when the oracle
// is unreachable. It recognizes explicit verbs and regex-extractable times;
// everything else becomes an unknown intent with generic suggestions. It is
// an ordered pattern list, intentionally separate from the oracle path so it
// can be swapped out without touching the state machine.
func ParseFallback(message string, now time.Time) *Intent {
	lower := strings.ToLower(strings.TrimSpace(message))

	if matchAny(lower, "archived", "archive", "deleted tasks", "trash") {
		return &Intent{Type: IntentShowArchivedTasks, Query: &QueryData{}}
	}

	if matchAny(lower, "schedule", "agenda", "what's on", "whats on") {
		return &Intent{
			Type:  IntentScheduleQuery,
			Query: &QueryData{Section: fallbackSection(lower), Date: fallbackDate(lower, now)},
		}
	}

	if matchAny(lower, "show", "list", "view", "my tasks", "what do i have") {
		return &Intent{
			Type:  IntentShowTasks,
			Query: &QueryData{Section: fallbackSection(lower), Date: fallbackDate(lower, now)},
		}
	}

	if matchAny(lower, "collaborator", "who can i add", "team members") {
		return &Intent{Type: IntentListCollaborators, Query: &QueryData{}}
	}

	if matchAny(lower, "create", "add", "new task", "remind me") {
		start, end := timeutil.ExtractTimes(message)
		if start == nil {
			return validationError("I can create that, but I need a time. Try something like \"add gym at 6pm\".")
		}
		title := fallbackTitle(message)
		if title == "" {
			return validationError("What should I call the task?")
		}
		return &Intent{
			Type: IntentCreateTaskConfirmation,
			Task: &TaskData{
				Title:     title,
				Section:   fallbackSectionDefault(lower),
				Date:      fallbackDate(lower, now),
				StartTime: start,
				EndTime:   end,
			},
		}
	}

	return &Intent{
		Type:        IntentUnknown,
		Message:     "I'm having trouble understanding right now. You can ask me to show your tasks or create one with a time.",
		Suggestions: []string{"Show my tasks", "What's my schedule today?", "Add gym at 6pm"},
	}
}

func matchAny(text string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}

func fallbackSection(lower string) string {
	switch {
	case strings.Contains(lower, "school"):
		return "school"
	case strings.Contains(lower, "work"):
		return "work"
	case strings.Contains(lower, "personal"):
		return "personal"
	}
	return ""
}

func fallbackSectionDefault(lower string) string {
	if s := fallbackSection(lower); s != "" {
		return s
	}
	return "personal"
}

func fallbackDate(lower string, now time.Time) string {
	switch {
	case strings.Contains(lower, "tomorrow"):
		return timeutil.LocalDate(now, 1)
	case strings.Contains(lower, "next week"):
		return timeutil.LocalDate(now, 7)
	}
	return timeutil.LocalDate(now, 0)
}

var (
	fallbackVerbRe  = regexp.MustCompile(`(?i)^(please\s+)?(remind me to|create|add|make|new)\s+(a\s+|an\s+)?(task\s+)?(called\s+|named\s+|for\s+)?`)
	fallbackTimeRe  = regexp.MustCompile(`(?i)\b(at|from)?\s*\d{1,2}(:\d{2})?\s*(am|pm)(\s*(to|-)\s*\d{1,2}(:\d{2})?\s*(am|pm))?\b.*$`)
	fallbackNoiseRe = regexp.MustCompile(`(?i)\b(today|tomorrow|next week|for (work|school|personal))\b`)
)

// fallbackTitle strips the command verb, the time expression, and date noise
// out of the message, leaving a plausible task title.
func fallbackTitle(message string) string {
	title := fallbackVerbRe.ReplaceAllString(strings.TrimSpace(message), "")
	title = fallbackTimeRe.ReplaceAllString(title, "")
	title = fallbackNoiseRe.ReplaceAllString(title, "")
	title = strings.Trim(strings.TrimSpace(title), ".,!")
	return title
}
