package testutil

import (
	"context"
	"database/sql"
	"net"
	"net/url"
	"testing"
	"time"

	// pgx registers the "pgx" database/sql driver.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/target/mmk-jobqueue/internal/migrate"
)

// queueTables are emptied between tests, children first.
var queueTables = []string{"queue_jobs", "queue_counters", "queue_fire_keys"}

// TestDBConfig locates the test database.
type TestDBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DefaultTestDBConfig reads TEST_DB_* variables. The port defaults to 55432 so a local test
// database does not collide with a development one; CI sets TEST_DB_PORT=5432.
func DefaultTestDBConfig() TestDBConfig {
	return TestDBConfig{
		Host:     envOr("TEST_DB_HOST", "localhost"),
		Port:     envOr("TEST_DB_PORT", "55432"),
		User:     envOr("TEST_DB_USER", "jobqueue"),
		Password: envOr("TEST_DB_PASSWORD", "jobqueue"),
		DBName:   envOr("TEST_DB_NAME", "jobqueue"),
		SSLMode:  envOr("TEST_DB_SSL_MODE", "disable"),
	}
}

// DSN renders the config as a postgres URL.
func (c TestDBConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: url.Values{"sslmode": []string{c.SSLMode}}.Encode(),
	}
	return u.String()
}

// SkipIfNoTestDB skips t when the test database cannot be reached.
func SkipIfNoTestDB(t testing.TB) {
	t.Helper()
	db := OpenTestDB(t)
	if err := db.Close(); err != nil {
		t.Logf("close probe db: %v", err)
	}
}

// OpenTestDB connects to the test database without touching the schema.
func OpenTestDB(t testing.TB) *sql.DB {
	t.Helper()
	cfg := DefaultTestDBConfig()
	db, err := sql.Open("pgx", cfg.DSN())
	if err != nil {
		unavailable(t, requireDB(), "open test database: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		unavailable(t, requireDB(), "test database not available at %s:%s: %v", cfg.Host, cfg.Port, err)
	}
	return db
}

// SetupTestDB connects, applies the embedded migrations and empties the queue tables.
func SetupTestDB(t testing.TB) *sql.DB {
	t.Helper()
	db := OpenTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := migrate.Run(ctx, db, nil); err != nil {
		_ = db.Close()
		t.Fatalf("migrate test database: %v", err)
	}
	CleanupTestDB(t, db)
	return db
}

// CleanupTestDB deletes every row from the queue tables.
func CleanupTestDB(t testing.TB, db *sql.DB) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, table := range queueTables {
		if _, err := db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			t.Fatalf("clean table %s: %v", table, err)
		}
	}
}

// TeardownTestDB empties the queue tables and closes db.
func TeardownTestDB(t testing.TB, db *sql.DB) {
	t.Helper()
	if db == nil {
		return
	}
	CleanupTestDB(t, db)
	if err := db.Close(); err != nil {
		t.Fatalf("close test database: %v", err)
	}
}
