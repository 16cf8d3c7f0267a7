package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema is idempotent. users is owned by the identity store; only the
// instructor profile columns are created here when missing.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		full_name TEXT NOT NULL,
		role TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`ALTER TABLE users ADD COLUMN IF NOT EXISTS assigned_grade INTEGER`,
	`ALTER TABLE users ADD COLUMN IF NOT EXISTS assigned_section INTEGER`,
	`ALTER TABLE users ADD COLUMN IF NOT EXISTS assigned_subject TEXT`,
	`ALTER TABLE users ADD COLUMN IF NOT EXISTS assigned_room TEXT`,
	`CREATE TABLE IF NOT EXISTS section_assignments (
		id TEXT PRIMARY KEY,
		instructor_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		grade INTEGER NOT NULL CHECK (grade BETWEEN 4 AND 6),
		section INTEGER NOT NULL CHECK (section BETWEEN 1 AND 8),
		subject TEXT NOT NULL,
		room TEXT NOT NULL,
		days TEXT[],
		start_time TEXT,
		end_time TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_section_assignments_slot ON section_assignments (grade, section, subject)`,
	`CREATE INDEX IF NOT EXISTS idx_section_assignments_instructor ON section_assignments (instructor_id)`,
	`CREATE TABLE IF NOT EXISTS enrollments (
		id TEXT PRIMARY KEY,
		student_name TEXT NOT NULL,
		grade_level TEXT NOT NULL,
		section INTEGER,
		status TEXT NOT NULL,
		parent_name TEXT NOT NULL DEFAULT '',
		contact_email TEXT NOT NULL DEFAULT '',
		contact_phone TEXT NOT NULL DEFAULT '',
		account_id TEXT,
		enrolled_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		CHECK ((status = 'approved') = (section IS NOT NULL))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_enrollments_placement ON enrollments (grade_level, section, status)`,
	`CREATE TABLE IF NOT EXISTS subject_enrollments (
		id TEXT PRIMARY KEY,
		enrollment_id TEXT NOT NULL REFERENCES enrollments(id),
		subject TEXT NOT NULL,
		instructor_id TEXT NOT NULL,
		instructor_name TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
}

// Migrate applies the schema statements in order.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
