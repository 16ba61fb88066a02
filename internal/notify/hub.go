// Package notify delivers task reminders: a websocket hub keyed by user
// email, a periodic scanner that walks every plausible UTC offset, and a
// dispatcher that drains the reminder queue into the hub.
package notify

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/taskmateai/taskmate/internal/observability"
)

// joinMessage is the first frame a client sends after the upgrade. Offset is
// the client's UTC offset in hours; half-hour zones send fractional values.
type joinMessage struct {
	Email    string   `json:"email"`
	Timezone string   `json:"timezone"`
	Offset   *float64 `json:"offset"`
}

// Notification is the frame pushed to clients.
type Notification struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	StartTime string  `json:"startTime"`
	Message   string  `json:"message"`
	Type      string  `json:"type"` // "reminder" or "immediate"
	UTCOffset float64 `json:"utcOffset"`
}

type client struct {
	conn *websocket.Conn
	send chan *Notification
}

type offsetRecord struct {
	offset   float64
	timezone string
	lastSeen time.Time
}

// Hub tracks connected sockets by email and remembers each user's declared
// UTC offset so reminders can be targeted to their zone.
type Hub struct {
	mu       sync.RWMutex
	rooms    map[string]map[*client]bool
	offsets  map[string]offsetRecord
	upgrader websocket.Upgrader
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewHub creates the notification hub. When allowAnyOrigin is false only
// same-origin browser connections (or clients that omit Origin) may connect.
func NewHub(logger *zap.Logger, metrics *observability.Metrics, allowAnyOrigin bool) *Hub {
	return &Hub{
		rooms:   make(map[string]map[*client]bool),
		offsets: make(map[string]offsetRecord),
		metrics: metrics,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if allowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

// HandleWS upgrades the connection, waits for the join frame, and serves the
// socket until the client goes away.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	conn.SetReadLimit(4 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))

	var join joinMessage
	if err := conn.ReadJSON(&join); err != nil {
		return
	}
	email := strings.ToLower(strings.TrimSpace(join.Email))
	if email == "" {
		return
	}

	c := &client{conn: conn, send: make(chan *Notification, 16)}
	h.register(email, c, join)

	h.logger.Debug("socket_joined",
		zap.String("email", email),
		zap.String("timezone", join.Timezone))

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for n := range c.send {
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(n); err != nil {
				return
			}
		}
	}()

	// Read loop only services pings and detects disconnects; clients never
	// send anything after the join frame.
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	}

	// Unregister before closing the channel: Emit holds the read lock while
	// sending, so once unregister returns no sender can still see this client.
	h.unregister(email, c)
	close(c.send)
	<-writerDone
}

func (h *Hub) register(email string, c *client, join joinMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[email] == nil {
		h.rooms[email] = make(map[*client]bool)
	}
	h.rooms[email][c] = true
	if join.Offset != nil {
		h.offsets[email] = offsetRecord{
			offset:   *join.Offset,
			timezone: join.Timezone,
			lastSeen: time.Now(),
		}
	}
	if h.metrics != nil {
		h.metrics.ConnectedSockets.Inc()
	}
}

func (h *Hub) unregister(email string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if room := h.rooms[email]; room != nil {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, email)
		}
	}
	if h.metrics != nil {
		h.metrics.ConnectedSockets.Dec()
	}
}

// Emit pushes a notification to every socket in the user's room. Slow
// clients get dropped frames rather than blocking delivery to others.
func (h *Hub) Emit(email string, n *Notification) {
	email = strings.ToLower(strings.TrimSpace(email))
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[email] {
		select {
		case c.send <- n:
		default:
			h.logger.Warn("socket_send_dropped", zap.String("email", email))
		}
	}
}

// Offset reports the user's declared UTC offset, if any socket of theirs has
// joined with one in the last day.
func (h *Hub) Offset(email string) (float64, bool) {
	email = strings.ToLower(strings.TrimSpace(email))
	h.mu.RLock()
	defer h.mu.RUnlock()
	rec, ok := h.offsets[email]
	if !ok {
		return 0, false
	}
	return rec.offset, true
}

// ActiveOffsets returns the distinct offsets of currently remembered users.
// The scanner restricts its sweep to these when the set is non-empty.
func (h *Hub) ActiveOffsets() []float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	seen := make(map[float64]bool, len(h.offsets))
	var out []float64
	for _, rec := range h.offsets {
		if !seen[rec.offset] {
			seen[rec.offset] = true
			out = append(out, rec.offset)
		}
	}
	return out
}

// CleanupStale drops offset records for users not seen within maxAge.
// Disconnected users keep their offset for a while so reminders raised just
// after a disconnect still target the right zone.
func (h *Hub) CleanupStale(maxAge time.Duration) {
	cutoff := time.Now().Add(-maxAge)
	h.mu.Lock()
	defer h.mu.Unlock()
	for email, rec := range h.offsets {
		if _, connected := h.rooms[email]; connected {
			continue
		}
		if rec.lastSeen.Before(cutoff) {
			delete(h.offsets, email)
		}
	}
}
