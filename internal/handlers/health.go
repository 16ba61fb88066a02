package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/taskmateai/taskmate/internal/database"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// HealthChecker handles liveness and readiness probes.
type HealthChecker struct {
	db *database.DB
}

// NewHealthChecker creates a new health checker.
func NewHealthChecker(db *database.DB) *HealthChecker {
	return &HealthChecker{db: db}
}

// HealthResponse is the health probe body.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthCheck serves /healthz. Extended mode (?mode=extended) pings the
// database.
func (h *HealthChecker) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	statusCode := http.StatusOK
	if r.URL.Query().Get("mode") == "extended" {
		checks := make(map[string]string)
		if err := h.checkDatabase(r.Context()); err != nil {
			response.Status = "unhealthy"
			checks["database"] = "unhealthy: " + err.Error()
			statusCode = http.StatusServiceUnavailable
		} else {
			checks["database"] = "healthy"
		}
		response.Checks = checks
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

// VersionInfo serves /version.
func (h *HealthChecker) VersionInfo(w http.ResponseWriter, _ *http.Request) {
	respondRaw(w, http.StatusOK, map[string]string{"version": Version})
}

func (h *HealthChecker) checkDatabase(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return h.db.PingContext(ctx)
}
