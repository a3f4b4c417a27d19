package database

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQL database connection
type DB struct {
	*sql.DB
}

// New opens the sqlite database at the given path
func New(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// sqlite handles one writer at a time; keep the pool small
	db.SetMaxOpenConns(1)
	db.SetConnMaxIdleTime(1 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Println("✅ SQLite database connected")

	return &DB{db}, nil
}

// Initialize creates all required tables
func (db *DB) Initialize() error {
	log.Println("🔍 Checking database schema...")

	statements := []string{
		`CREATE TABLE IF NOT EXISTS routing_rules (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			priority INTEGER NOT NULL DEFAULT 0,
			conditions TEXT NOT NULL,
			target_model TEXT NOT NULL,
			fallback_model TEXT,
			enabled INTEGER NOT NULL DEFAULT 1,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS ai_assignments (
			level TEXT NOT NULL,
			scope_owner_id TEXT NOT NULL DEFAULT '',
			task_type TEXT NOT NULL,
			primary_model TEXT NOT NULL,
			fallback_model TEXT,
			allowed_models TEXT,
			priority INTEGER NOT NULL DEFAULT 0,
			expires_at TIMESTAMP,
			created_by TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (level, scope_owner_id, task_type)
		)`,
		`CREATE TABLE IF NOT EXISTS cost_entries (
			id TEXT PRIMARY KEY,
			model_id TEXT NOT NULL,
			account_id TEXT,
			user_id TEXT,
			input_tokens INTEGER NOT NULL,
			output_tokens INTEGER NOT NULL,
			input_cost REAL NOT NULL,
			output_cost REAL NOT NULL,
			total_cost REAL NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cost_entries_account_time
			ON cost_entries (account_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS cost_daily (
			day TEXT NOT NULL,
			account_id TEXT NOT NULL DEFAULT '',
			model_id TEXT NOT NULL,
			entries INTEGER NOT NULL,
			input_tokens INTEGER NOT NULL,
			output_tokens INTEGER NOT NULL,
			total_cost REAL NOT NULL,
			PRIMARY KEY (day, account_id, model_id)
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	log.Println("✅ Database initialized successfully")
	return nil
}
