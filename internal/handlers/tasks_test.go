package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/taskmateai/taskmate/internal/models"
	"github.com/taskmateai/taskmate/internal/request"
)

// Validation runs before any repository access, so these tests get away with
// a nil repo: a request that reaches the store would panic and fail loudly.

func authedRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	user := &models.User{ID: uuid.New(), Email: "ada@example.com"}
	return req.WithContext(request.WithUser(req.Context(), user))
}

func decodeErrorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	msg, _ := body["message"].(string)
	return msg
}

func TestCreateTaskRejectsInvalidFields(t *testing.T) {
	t.Parallel()

	h := NewTaskHandler(nil, nil, zap.NewNop())

	tests := []struct {
		name        string
		body        string
		wantMessage string
	}{
		{
			name:        "missing title",
			body:        `{"section":"work","date":"2026-08-29","startTime":{"hour":"6","minute":"0","period":"PM"}}`,
			wantMessage: "required",
		},
		{
			name:        "missing start time",
			body:        `{"title":"Standup","section":"work","date":"2026-08-29"}`,
			wantMessage: "required",
		},
		{
			name:        "unknown section",
			body:        `{"title":"Standup","section":"hobby","date":"2026-08-29","startTime":{"hour":"6","minute":"0","period":"PM"}}`,
			wantMessage: "task_section",
		},
		{
			name:        "unknown priority",
			body:        `{"title":"Standup","section":"work","date":"2026-08-29","startTime":{"hour":"6","minute":"0","period":"PM"},"priority":"Urgent"}`,
			wantMessage: "task_priority",
		},
		{
			name:        "unknown recurring",
			body:        `{"title":"Standup","section":"work","date":"2026-08-29","startTime":{"hour":"6","minute":"0","period":"PM"},"recurring":"Fortnightly"}`,
			wantMessage: "task_recurring",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			h.Create(rec, authedRequest(http.MethodPost, "/tasks", tt.body))

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("Expected status 400, got %d", rec.Code)
			}
			if msg := decodeErrorMessage(t, rec); !strings.Contains(msg, tt.wantMessage) {
				t.Errorf("Expected message containing %q, got %q", tt.wantMessage, msg)
			}
		})
	}
}

func TestUpdateTaskRejectsInvalidFields(t *testing.T) {
	t.Parallel()

	h := NewTaskHandler(nil, nil, zap.NewNop())

	tests := []struct {
		name        string
		body        string
		wantMessage string
	}{
		{
			name:        "unknown section",
			body:        `{"section":"hobby"}`,
			wantMessage: "task_section",
		},
		{
			name:        "empty section",
			body:        `{"section":""}`,
			wantMessage: "section cannot be empty",
		},
		{
			name:        "unknown status",
			body:        `{"status":"Paused"}`,
			wantMessage: "task_status",
		},
		{
			name:        "empty status",
			body:        `{"status":""}`,
			wantMessage: "status cannot be empty",
		},
		{
			name:        "unknown recurring",
			body:        `{"recurring":"Hourly"}`,
			wantMessage: "task_recurring",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			id := uuid.New().String()
			req := authedRequest(http.MethodPatch, "/tasks/"+id, tt.body)
			req = mux.SetURLVars(req, map[string]string{"id": id})
			rec := httptest.NewRecorder()
			h.Update(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("Expected status 400, got %d", rec.Code)
			}
			if msg := decodeErrorMessage(t, rec); !strings.Contains(msg, tt.wantMessage) {
				t.Errorf("Expected message containing %q, got %q", tt.wantMessage, msg)
			}
		})
	}
}
