// Package testdb locates and opens the PostgreSQL database used by
// integration tests. Tests skip when no database URL is configured, except
// in CI where a missing database is a failure.
package testdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/phrazzld/scry-queue/internal/redact"
)

// Database URL variables, in order of preference.
const (
	EnvDatabaseURL     = "DATABASE_URL"
	EnvScryTestDBURL   = "SCRY_TEST_DB_URL"
	EnvScryDatabaseURL = "SCRY_DATABASE_URL"
)

var urlEnvVars = []string{EnvDatabaseURL, EnvScryTestDBURL, EnvScryDatabaseURL}

// IsCI reports whether the tests run under a CI provider.
func IsCI() bool {
	for _, v := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "CIRCLECI"} {
		if os.Getenv(v) != "" {
			return true
		}
	}
	return false
}

// GetEnvWithFallbacks returns the first non-empty variable of envVars.
// Using anything but the first name logs a warning.
func GetEnvWithFallbacks(envVars []string, logger *slog.Logger) string {
	for i, name := range envVars {
		val := os.Getenv(name)
		if val == "" {
			continue
		}
		if i > 0 && logger != nil {
			logger.Warn("using fallback environment variable",
				"used_var", name,
				"preferred_var", envVars[0],
				"value", redact.String(val))
		}
		return val
	}
	return ""
}

// URL returns the configured test database URL, or "" when none is set.
func URL() string {
	return GetEnvWithFallbacks(urlEnvVars, slog.Default())
}

// Open connects to the test database and registers cleanup with t.
// It skips t when no URL is configured outside CI.
func Open(t *testing.T) *sql.DB {
	t.Helper()

	url := URL()
	if url == "" {
		if IsCI() {
			t.Fatalf("no test database configured; set one of %v", urlEnvVars)
		}
		t.Skipf("%s not set, skipping database test", EnvDatabaseURL)
	}

	db, err := open(url)
	if err != nil {
		t.Fatalf("test database unavailable: %v", redact.Error(err))
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("failed to close test database: %v", err)
		}
	})
	return db
}

func open(url string) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// ResetQueue deletes every queued task row so a test starts from an empty
// queue. The table must already exist.
func ResetQueue(t *testing.T, db *sql.DB) {
	t.Helper()
	if _, err := db.ExecContext(context.Background(), "TRUNCATE queue_tasks"); err != nil {
		t.Fatalf("failed to reset queue_tasks: %v", err)
	}
}
