// Package db is the SQLite store behind the scheduling services.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateBooking  = errors.New("booking already exists")
	ErrInsufficientFunds = errors.New("insufficient credit balance")
	ErrSlotTaken         = errors.New("slot already booked")
)

// DB wraps sql.DB for the scheduling store.
type DB struct {
	*sql.DB
	path string
}

// Open opens the database at path and runs migrations.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// SQLite serializes writers; one connection keeps transactions simple.
	conn.SetMaxOpenConns(1)

	if err := createTables(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return &DB{DB: conn, path: path}, nil
}

// Path returns the file the store was opened from.
func (db *DB) Path() string {
	return db.path
}

func createTables(conn *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS providers (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			time_zone TEXT,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS event_templates (
			id INTEGER PRIMARY KEY,
			provider_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			description TEXT,
			start_at DATETIME NOT NULL,
			duration_minutes INTEGER NOT NULL,
			tags TEXT,
			join_url TEXT,
			recurrence TEXT,
			metadata TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (provider_id) REFERENCES providers(id)
		)`,

		`CREATE TABLE IF NOT EXISTS instance_overrides (
			instance_id TEXT PRIMARY KEY,
			template_id INTEGER NOT NULL,
			cancelled BOOLEAN NOT NULL DEFAULT 0,
			start_at DATETIME,
			duration_minutes INTEGER NOT NULL DEFAULT 0,
			reason TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (template_id) REFERENCES event_templates(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS availability_windows (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			provider_id INTEGER NOT NULL,
			day_of_week TEXT NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			FOREIGN KEY (provider_id) REFERENCES providers(id)
		)`,

		`CREATE TABLE IF NOT EXISTS session_types (
			id INTEGER PRIMARY KEY,
			provider_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			duration_minutes INTEGER NOT NULL,
			credit_cost INTEGER NOT NULL DEFAULT 0,
			allow_recurring BOOLEAN NOT NULL DEFAULT 0,
			min_lead_hours INTEGER NOT NULL DEFAULT 0,
			max_advance_days INTEGER NOT NULL DEFAULT 0,
			min_cancel_hours INTEGER NOT NULL DEFAULT 0,
			min_reschedule_hours INTEGER NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			FOREIGN KEY (provider_id) REFERENCES providers(id)
		)`,

		`CREATE TABLE IF NOT EXISTS bookings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			provider_id INTEGER NOT NULL,
			session_type_id INTEGER NOT NULL,
			series_id TEXT,
			occurrence INTEGER NOT NULL DEFAULT 0,
			start_at DATETIME NOT NULL,
			end_at DATETIME NOT NULL,
			credit_cost INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'confirmed',
			idempotency_key TEXT NOT NULL UNIQUE,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS credit_transactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			kind TEXT NOT NULL,
			amount INTEGER NOT NULL,
			booking_id INTEGER,
			note TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS memberships (
			user_id INTEGER PRIMARY KEY,
			active BOOLEAN NOT NULL DEFAULT 0,
			expires_at DATETIME,
			tier TEXT,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS enrollments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			instance_id TEXT NOT NULL,
			template_id INTEGER NOT NULL,
			joined_at DATETIME NOT NULL,
			UNIQUE (user_id, instance_id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_templates_provider ON event_templates(provider_id)`,
		`CREATE INDEX IF NOT EXISTS idx_availability_provider ON availability_windows(provider_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_times ON bookings(provider_id, start_at, end_at)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_user ON bookings(user_id, start_at)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_series ON bookings(series_id)`,
		`CREATE INDEX IF NOT EXISTS idx_credit_user ON credit_transactions(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_enrollments_instance ON enrollments(instance_id)`,
	}

	for _, q := range queries {
		if _, err := conn.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

type scanner interface {
	Scan(dest ...any) error
}
