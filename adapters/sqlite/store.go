package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Store owns the SQLite handle shared by the session and submission repositories
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open creates the database file if needed and applies the schema
func Open(dbPath string, logger *zap.Logger) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// one writer keeps SQLITE_BUSY away
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &Store{db: db, logger: logger}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	logger.Info("SQLite store opened", zap.String("path", dbPath))
	return store, nil
}

func (s *Store) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		subject TEXT NOT NULL,
		start_time INTEGER NOT NULL,
		end_time INTEGER,
		interactions INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		messages_json TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_status_start ON sessions(status, start_time);

	CREATE TABLE IF NOT EXISTS submissions (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		organization TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		preferred_time INTEGER,
		status TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_submissions_kind_created ON submissions(kind, created_at);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_submissions_waitlist_email ON submissions(email) WHERE kind = 'waitlist';
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Sessions returns the session repository backed by this store
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

// Submissions returns the submission repository backed by this store
func (s *Store) Submissions() *SubmissionRepository {
	return &SubmissionRepository{db: s.db}
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func timeFromNull(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64).UTC()
	return &t
}
