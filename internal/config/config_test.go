package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("TASKMATE_CONFIG", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "s3cret")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when DATABASE_URL is missing")
	}
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("TASKMATE_CONFIG", "")
	t.Setenv("DATABASE_URL", "postgres://localhost/taskmate")
	t.Setenv("JWT_SECRET", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when JWT_SECRET is missing")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TASKMATE_CONFIG", "")
	t.Setenv("DATABASE_URL", "postgres://localhost/taskmate")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("SERVER_PORT", "")
	t.Setenv("RATE_LIMIT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %q", cfg.ServerPort)
	}
	if cfg.RateLimit != "30-M" {
		t.Errorf("RateLimit = %q", cfg.RateLimit)
	}
	if cfg.SessionIdleTTL != 30*time.Minute {
		t.Errorf("SessionIdleTTL = %v", cfg.SessionIdleTTL)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "server_port: \"9000\"\nrate_limit: \"10-S\"\ndatabase_url: \"postgres://file/db\"\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("TASKMATE_CONFIG", path)
	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("SERVER_PORT", "")
	t.Setenv("RATE_LIMIT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DatabaseURL != "postgres://env/db" {
		t.Errorf("DatabaseURL = %q, env must win", cfg.DatabaseURL)
	}
	if cfg.ServerPort != "9000" || cfg.RateLimit != "10-S" {
		t.Errorf("file values not applied: port=%q rate=%q", cfg.ServerPort, cfg.RateLimit)
	}
}

func TestDurationFromBareHours(t *testing.T) {
	t.Setenv("TASKMATE_CONFIG", "")
	t.Setenv("DATABASE_URL", "postgres://localhost/taskmate")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("ARCHIVE_RETENTION", "48")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ArchiveRetention != 48*time.Hour {
		t.Errorf("ArchiveRetention = %v, want 48h", cfg.ArchiveRetention)
	}
}
