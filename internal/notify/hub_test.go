package notify

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

func dialHub(t *testing.T, hub *Hub) (*websocket.Conn, func()) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}
	return conn, func() {
		_ = conn.Close()
		srv.Close()
	}
}

func (h *Hub) connected(email string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[email]
	return ok
}

func waitForCondition(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestHubDeliversToJoinedClient(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, true)
	conn, cleanup := dialHub(t, hub)
	defer cleanup()

	offset := 2.0
	if err := conn.WriteJSON(joinMessage{Email: "Ada@Example.com", Timezone: "Europe/Berlin", Offset: &offset}); err != nil {
		t.Fatalf("join: %v", err)
	}
	waitForCondition(t, "registration", func() bool { return hub.connected("ada@example.com") })

	if got, ok := hub.Offset("ada@example.com"); !ok || got != 2.0 {
		t.Errorf("Offset() = %v, %v; want 2, true", got, ok)
	}

	hub.Emit("ada@example.com", &Notification{ID: "n1", Title: "Standup", Type: "reminder"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Notification
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read notification: %v", err)
	}
	if got.ID != "n1" || got.Title != "Standup" {
		t.Errorf("notification = %+v", got)
	}
}

// A disconnect must fully unregister the client before its send channel
// closes; otherwise a reminder delivered in that gap panics the emitter.
func TestHubEmitDuringDisconnectDoesNotPanic(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, true)
	conn, cleanup := dialHub(t, hub)
	defer cleanup()

	if err := conn.WriteJSON(joinMessage{Email: "ada@example.com"}); err != nil {
		t.Fatalf("join: %v", err)
	}
	waitForCondition(t, "registration", func() bool { return hub.connected("ada@example.com") })

	// Hammer the room while the client goes away. A send on the closed
	// channel would panic this goroutine and fail the test.
	stop := make(chan struct{})
	emitterDone := make(chan struct{})
	go func() {
		defer close(emitterDone)
		for {
			select {
			case <-stop:
				return
			default:
				hub.Emit("ada@example.com", &Notification{ID: "n", Type: "reminder"})
			}
		}
	}()

	_ = conn.Close()
	waitForCondition(t, "unregistration", func() bool { return !hub.connected("ada@example.com") })

	close(stop)
	<-emitterDone

	// The room is gone; a late emit is a no-op.
	hub.Emit("ada@example.com", &Notification{ID: "late", Type: "reminder"})
}
