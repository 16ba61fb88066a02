package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskmateai/taskmate/internal/models"
	"github.com/taskmateai/taskmate/internal/request"
	"github.com/taskmateai/taskmate/internal/session"
)

func TestSendMessageRejectsMissingUser(t *testing.T) {
	t.Parallel()

	h := NewChatHandler(nil, session.NewStore(zap.NewNop()))

	req := httptest.NewRequest(http.MethodPost, "/chat/message", strings.NewReader(`{"message":"hi"}`))
	rec := httptest.NewRecorder()
	h.SendMessage(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("Expected status 401, got %d", rec.Code)
	}
}

func TestSendMessageRejectsBadBody(t *testing.T) {
	t.Parallel()

	h := NewChatHandler(nil, session.NewStore(zap.NewNop()))

	user := &models.User{ID: uuid.New(), Email: "ada@example.com"}
	req := httptest.NewRequest(http.MethodPost, "/chat/message", strings.NewReader(`{not json`))
	req = req.WithContext(request.WithUser(req.Context(), user))
	rec := httptest.NewRecorder()
	h.SendMessage(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", rec.Code)
	}
}

func TestSessionInfoDefaultsWithoutSession(t *testing.T) {
	t.Parallel()

	h := NewChatHandler(nil, session.NewStore(zap.NewNop()))

	user := &models.User{ID: uuid.New(), Email: "ada@example.com"}
	req := httptest.NewRequest(http.MethodGet, "/chat/session-info", nil)
	req = req.WithContext(request.WithUser(req.Context(), user))
	rec := httptest.NewRecorder()
	h.SessionInfo(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var body struct {
		Data SessionInfoResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body.Data.Focus != string(session.FocusTasks) {
		t.Errorf("Expected default focus %q, got %q", session.FocusTasks, body.Data.Focus)
	}
	if body.Data.LastViewedType != string(session.ViewActive) {
		t.Errorf("Expected default view %q, got %q", session.ViewActive, body.Data.LastViewedType)
	}
	if body.Data.PendingKind != "" {
		t.Errorf("Expected no pending confirmation, got %q", body.Data.PendingKind)
	}
}
