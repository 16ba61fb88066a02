package validation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/taskmateai/taskmate/internal/models"
)

var (
	// Validate is a shared validator instance
	Validate *validator.Validate
)

func init() {
	Validate = validator.New()

	// Register custom validators for enums
	if err := Validate.RegisterValidation("task_section", validateSection); err != nil {
		panic(fmt.Sprintf("failed to register task_section validator: %v", err))
	}
	if err := Validate.RegisterValidation("task_priority", validatePriority); err != nil {
		panic(fmt.Sprintf("failed to register task_priority validator: %v", err))
	}
	if err := Validate.RegisterValidation("task_recurring", validateRecurring); err != nil {
		panic(fmt.Sprintf("failed to register task_recurring validator: %v", err))
	}
	if err := Validate.RegisterValidation("task_status", validateStatus); err != nil {
		panic(fmt.Sprintf("failed to register task_status validator: %v", err))
	}
}

func validateSection(fl validator.FieldLevel) bool {
	// Sections arrive in whatever case the client prefers.
	return ValidateSection(strings.ToLower(fl.Field().String())) == nil
}

func validatePriority(fl validator.FieldLevel) bool {
	return ValidatePriority(fl.Field().String()) == nil
}

func validateRecurring(fl validator.FieldLevel) bool {
	return ValidateRecurring(fl.Field().String()) == nil
}

func validateStatus(fl validator.FieldLevel) bool {
	return ValidateStatus(fl.Field().String()) == nil
}

// SanitizeText sanitizes text input by trimming whitespace and removing control characters
func SanitizeText(text string) string {
	text = strings.TrimSpace(text)

	var sanitized strings.Builder
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sanitized.WriteRune(r)
	}

	return sanitized.String()
}

// ValidateSection validates a Section string value
func ValidateSection(value string) error {
	switch models.Section(value) {
	case models.SectionWork, models.SectionSchool, models.SectionPersonal:
		return nil
	default:
		return fmt.Errorf("invalid section: %s (must be 'work', 'school', or 'personal')", value)
	}
}

// ValidatePriority validates a Priority string value
func ValidatePriority(value string) error {
	switch models.Priority(value) {
	case models.PriorityHigh, models.PriorityMedium, models.PriorityLow:
		return nil
	default:
		return fmt.Errorf("invalid priority: %s (must be 'High', 'Medium', or 'Low')", value)
	}
}

// ValidateRecurring validates a Recurring string value
func ValidateRecurring(value string) error {
	switch models.Recurring(value) {
	case models.RecurringDaily, models.RecurringWeekdays, models.RecurringWeekly, models.RecurringMonthly, models.RecurringYearly:
		return nil
	default:
		return fmt.Errorf("invalid recurring: %s (must be 'Daily', 'Weekdays', 'Weekly', 'Monthly', or 'Yearly')", value)
	}
}

// ValidateStatus validates a TaskStatus string value
func ValidateStatus(value string) error {
	switch models.TaskStatus(value) {
	case models.TaskStatusPending, models.TaskStatusInProgress, models.TaskStatusComplete, models.TaskStatusDeleted:
		return nil
	default:
		return fmt.Errorf("invalid status: %s (must be 'Pending', 'InProgress', 'Complete', or 'Deleted')", value)
	}
}
