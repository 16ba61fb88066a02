package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/taskmateai/taskmate/internal/request"
	"github.com/taskmateai/taskmate/internal/services/chat"
	"github.com/taskmateai/taskmate/internal/services/nlp"
	"github.com/taskmateai/taskmate/internal/session"
)

// ChatHandler serves the conversational endpoint.
type ChatHandler struct {
	service  *chat.Service
	sessions *session.Store
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(service *chat.Service, sessions *session.Store) *ChatHandler {
	return &ChatHandler{service: service, sessions: sessions}
}

// RegisterRoutes registers chat routes on an authenticated subrouter.
func (h *ChatHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/chat/message", h.SendMessage).Methods("POST")
	r.HandleFunc("/chat/session-info", h.SessionInfo).Methods("GET")
}

// ChatMessageRequest is the chat request body. LastTaskContext is the list
// the client believes the user is looking at; the server treats it as a
// claim and re-derives the source tag.
type ChatMessageRequest struct {
	Message         string             `json:"message"`
	LastTaskContext *nlp.CallerContext `json:"lastTaskContext,omitempty"`
}

// SendMessage handles one chat turn. Logical failures come back as HTTP 200
// with success=false; only transport-level problems use error statuses.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	var req ChatMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid request body")
		return
	}

	resp := h.service.HandleMessage(r.Context(), user.ID, user.Email, req.Message, req.LastTaskContext)
	respondRaw(w, http.StatusOK, resp)
}

// SessionInfoResponse describes the caller's conversational state.
type SessionInfoResponse struct {
	Focus              string `json:"focus"`
	LastViewedType     string `json:"lastViewedType"`
	PendingKind        string `json:"pendingConfirmation,omitempty"`
	LastMentionedCount int    `json:"lastMentionedCount"`
}

// SessionInfo reports the session's focus and any staged confirmation,
// mostly for debugging the conversational flow from the client.
func (h *ChatHandler) SessionInfo(w http.ResponseWriter, r *http.Request) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "User not found in context")
		return
	}

	info := SessionInfoResponse{
		Focus:          string(session.FocusTasks),
		LastViewedType: string(session.ViewActive),
	}
	if sess, ok := h.sessions.Get(user.ID); ok {
		info.Focus = string(sess.CurrentFocus)
		info.LastViewedType = string(sess.LastViewedType)
		info.LastMentionedCount = len(sess.LastMentionedTasks)
		if sess.Pending != nil {
			info.PendingKind = string(sess.Pending.Kind)
		}
	}

	respondJSON(w, http.StatusOK, info)
}
