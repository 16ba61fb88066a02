package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/taskmateai/taskmate/internal/database"
	"github.com/taskmateai/taskmate/internal/models"
	"github.com/taskmateai/taskmate/internal/request"
	"github.com/taskmateai/taskmate/internal/services/chat"
	"github.com/taskmateai/taskmate/internal/timeutil"
	"github.com/taskmateai/taskmate/internal/validation"
)

// TaskHandler serves owner-scoped task CRUD.
type TaskHandler struct {
	repo     *database.TaskRepository
	notifier chat.Notifier
	logger   *zap.Logger
}

// NewTaskHandler creates a new task handler. The notifier fires the
// immediate reminder check after create, update, and restore.
func NewTaskHandler(repo *database.TaskRepository, notifier chat.Notifier, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{repo: repo, notifier: notifier, logger: logger}
}

// RegisterRoutes registers task routes on an authenticated subrouter.
func (h *TaskHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/tasks", h.List).Methods("GET")
	r.HandleFunc("/tasks", h.Create).Methods("POST")
	r.HandleFunc("/tasks/archived", h.ListArchived).Methods("GET")
	r.HandleFunc("/tasks/{id}", h.Get).Methods("GET")
	r.HandleFunc("/tasks/{id}", h.Update).Methods("PATCH")
	r.HandleFunc("/tasks/{id}", h.Delete).Methods("DELETE")
	r.HandleFunc("/tasks/{id}/restore", h.Restore).Methods("POST")
}

// CreateTaskRequest is the POST /tasks body.
type CreateTaskRequest struct {
	Title         string            `json:"title" validate:"required,max=500"`
	Section       string            `json:"section" validate:"required,task_section"`
	Date          string            `json:"date" validate:"required"`
	StartTime     *models.TimeOfDay `json:"startTime" validate:"required"`
	EndTime       *models.TimeOfDay `json:"endTime,omitempty"`
	Priority      string            `json:"priority,omitempty" validate:"omitempty,task_priority"`
	Recurring     string            `json:"recurring,omitempty" validate:"omitempty,task_recurring"`
	Collaborators []string          `json:"collaborators,omitempty"`
}

// UpdateTaskRequest is the PATCH /tasks/{id} body. Nil means "leave alone";
// for priority and recurring, the empty string clears the field.
type UpdateTaskRequest struct {
	Title         *string           `json:"title,omitempty" validate:"omitempty,max=500"`
	Section       *string           `json:"section,omitempty" validate:"omitempty,task_section"`
	Date          *string           `json:"date,omitempty"`
	StartTime     *models.TimeOfDay `json:"startTime,omitempty"`
	EndTime       *models.TimeOfDay `json:"endTime,omitempty"`
	Priority      *string           `json:"priority,omitempty" validate:"omitempty,task_priority"`
	Recurring     *string           `json:"recurring,omitempty" validate:"omitempty,task_recurring"`
	Status        *string           `json:"status,omitempty" validate:"omitempty,task_status"`
	Collaborators *[]string         `json:"collaborators,omitempty"`
}

// validateRequest runs the struct tags and reports the first field failure.
func validateRequest(w http.ResponseWriter, req any) bool {
	if err := validation.Validate.Struct(req); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			for _, fieldError := range validationErrors {
				respondJSONError(w, http.StatusBadRequest, "Bad Request", fmt.Sprintf("Validation failed: %s", fieldError.Error()))
				return false
			}
		}
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Validation failed")
		return false
	}
	return true
}

// List serves GET /tasks?date=YYYY-MM-DD&section=work. Without a date it
// returns all active tasks.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	section := strings.ToLower(r.URL.Query().Get("section"))
	if section != "" {
		if err := validation.ValidateSection(section); err != nil {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", err.Error())
			return
		}
	}

	var tasks []models.Task
	var err error
	if date := r.URL.Query().Get("date"); date != "" {
		tasks, err = h.repo.ActiveByDate(r.Context(), user.ID, date, section)
	} else {
		tasks, err = h.repo.Active(r.Context(), user.ID, section)
	}
	if err != nil {
		h.logger.Error("task_list_failed", zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to list tasks")
		return
	}

	respondJSON(w, http.StatusOK, tasks)
}

// ListArchived serves GET /tasks/archived.
func (h *TaskHandler) ListArchived(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	tasks, err := h.repo.Archived(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("task_archive_list_failed", zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to list archived tasks")
		return
	}

	respondJSON(w, http.StatusOK, tasks)
}

// Get serves GET /tasks/{id}.
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}
	id, ok := taskID(w, r)
	if !ok {
		return
	}

	task, err := h.repo.ByID(r.Context(), user.ID, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondJSONError(w, http.StatusNotFound, "Not Found", "Task not found")
			return
		}
		h.logger.Error("task_get_failed", zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to load task")
		return
	}

	respondJSON(w, http.StatusOK, task)
}

// Create serves POST /tasks.
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	var req CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid request body")
		return
	}

	if !validateRequest(w, req) {
		return
	}

	req.Title = validation.SanitizeText(req.Title)
	if req.Title == "" {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "title cannot be empty after sanitization")
		return
	}
	section := strings.ToLower(req.Section)
	if !timeutil.IsRangeValid(*req.StartTime, req.EndTime) {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "end time must come after start time")
		return
	}

	dup, err := h.repo.FindDuplicate(r.Context(), user.ID, req.Title, section, req.Date, *req.StartTime, req.EndTime, uuid.Nil)
	if err != nil {
		h.logger.Error("task_duplicate_check_failed", zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to create task")
		return
	}
	if dup != nil {
		respondJSONError(w, http.StatusConflict, "Conflict", "an identical task already exists")
		return
	}

	task := &models.Task{
		ID:            uuid.New(),
		Title:         req.Title,
		Section:       models.Section(section),
		Date:          req.Date,
		StartTime:     *req.StartTime,
		EndTime:       req.EndTime,
		Collaborators: req.Collaborators,
		Status:        models.TaskStatusPending,
		CreatedBy:     user.Email,
		UserID:        user.ID,
	}
	if req.Priority != "" {
		p := models.Priority(req.Priority)
		task.Priority = &p
	}
	if req.Recurring != "" {
		rec := models.Recurring(req.Recurring)
		task.Recurring = &rec
	}

	if err := h.repo.Insert(r.Context(), task); err != nil {
		h.logger.Error("task_insert_failed", zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to create task")
		return
	}

	h.notifier.CheckImmediate(r.Context(), task)

	respondJSON(w, http.StatusCreated, task)
}

// Update serves PATCH /tasks/{id} with field-sparse semantics.
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}
	id, ok := taskID(w, r)
	if !ok {
		return
	}

	var req UpdateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid request body")
		return
	}
	if !validateRequest(w, req) {
		return
	}
	// omitempty skips empty strings, but an explicit "" is not a valid value
	// for these two fields (priority and recurring use "" to clear).
	if req.Section != nil && *req.Section == "" {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "section cannot be empty")
		return
	}
	if req.Status != nil && *req.Status == "" {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "status cannot be empty")
		return
	}

	task, err := h.repo.ByID(r.Context(), user.ID, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondJSONError(w, http.StatusNotFound, "Not Found", "Task not found")
			return
		}
		h.logger.Error("task_get_failed", zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to load task")
		return
	}
	if task.Archived() {
		respondJSONError(w, http.StatusConflict, "Conflict", "archived tasks must be restored before editing")
		return
	}

	if req.Title != nil {
		title := validation.SanitizeText(*req.Title)
		if title == "" {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", "title cannot be empty")
			return
		}
		task.Title = title
	}
	if req.Section != nil {
		task.Section = models.Section(strings.ToLower(*req.Section))
	}
	if req.Date != nil {
		task.Date = *req.Date
	}
	if req.StartTime != nil {
		task.StartTime = *req.StartTime
	}
	if req.EndTime != nil {
		task.EndTime = req.EndTime
	}
	if req.Priority != nil {
		if *req.Priority == "" {
			task.Priority = nil
		} else {
			p := models.Priority(*req.Priority)
			task.Priority = &p
		}
	}
	if req.Recurring != nil {
		if *req.Recurring == "" {
			task.Recurring = nil
		} else {
			rec := models.Recurring(*req.Recurring)
			task.Recurring = &rec
		}
	}
	if req.Status != nil {
		task.Status = models.TaskStatus(*req.Status)
	}
	if req.Collaborators != nil {
		task.Collaborators = *req.Collaborators
	}

	if !timeutil.IsRangeValid(task.StartTime, task.EndTime) {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "end time must come after start time")
		return
	}

	dup, err := h.repo.FindDuplicate(r.Context(), user.ID, task.Title, string(task.Section), task.Date, task.StartTime, task.EndTime, task.ID)
	if err != nil {
		h.logger.Error("task_duplicate_check_failed", zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to update task")
		return
	}
	if dup != nil {
		respondJSONError(w, http.StatusConflict, "Conflict", "an identical task already exists")
		return
	}

	if err := h.repo.Update(r.Context(), task); err != nil {
		h.logger.Error("task_update_failed", zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to update task")
		return
	}

	h.notifier.CheckImmediate(r.Context(), task)

	respondJSON(w, http.StatusOK, task)
}

// Delete serves DELETE /tasks/{id} (soft).
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}
	id, ok := taskID(w, r)
	if !ok {
		return
	}

	titles, err := h.repo.SoftDeleteByIDs(r.Context(), user.ID, []uuid.UUID{id})
	if err != nil {
		h.logger.Error("task_delete_failed", zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to delete task")
		return
	}
	if len(titles) == 0 {
		respondJSONError(w, http.StatusNotFound, "Not Found", "Task not found or already archived")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"archived": titles[0]})
}

// Restore serves POST /tasks/{id}/restore.
func (h *TaskHandler) Restore(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}
	id, ok := taskID(w, r)
	if !ok {
		return
	}

	titles, err := h.repo.Restore(r.Context(), user.ID, []uuid.UUID{id})
	if err != nil {
		h.logger.Error("task_restore_failed", zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to restore task")
		return
	}
	if len(titles) == 0 {
		respondJSONError(w, http.StatusNotFound, "Not Found", "Task not found in archive")
		return
	}

	// A restored task may already be inside the reminder window.
	if task, err := h.repo.ByID(r.Context(), user.ID, id); err == nil {
		h.notifier.CheckImmediate(r.Context(), task)
	}

	respondJSON(w, http.StatusOK, map[string]any{"restored": titles[0]})
}

func taskID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "invalid task id")
		return uuid.Nil, false
	}
	return id, true
}
