package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthCheckBasicMode(t *testing.T) {
	t.Parallel()

	// Basic mode never touches the database, so a nil pool is fine here.
	// Extended mode needs a live Postgres and belongs to integration tests.
	h := NewHealthChecker(nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.HealthCheck(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var body HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body.Status != "healthy" {
		t.Errorf("Expected status 'healthy', got %q", body.Status)
	}
	if body.Checks != nil {
		t.Errorf("Expected no checks in basic mode, got %v", body.Checks)
	}
	if body.Timestamp == "" {
		t.Error("Expected timestamp to be present")
	}
}

func TestVersionInfo(t *testing.T) {
	t.Parallel()

	h := NewHealthChecker(nil)

	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	rec := httptest.NewRecorder()
	h.VersionInfo(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body["version"] != Version {
		t.Errorf("Expected version %q, got %q", Version, body["version"])
	}
}
