package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type migration struct {
	version    int
	statements []string
}

// migrations are applied in order exactly once; applied versions are tracked
// in schema_migrations.
var migrations = []migration{
	{
		version: 1,
		statements: []string{
			`CREATE TABLE IF NOT EXISTS sessions (
				token TEXT PRIMARY KEY,
				training_ref TEXT NOT NULL,
				mode TEXT NOT NULL CHECK (mode IN ('gps', 'wifi', 'manual')),
				radius_meters INTEGER NOT NULL DEFAULT 0,
				anchor_lat REAL NOT NULL DEFAULT 0,
				anchor_lon REAL NOT NULL DEFAULT 0,
				hotspot_id TEXT NOT NULL DEFAULT '',
				state TEXT NOT NULL CHECK (state IN ('active', 'ended')),
				created_by TEXT NOT NULL DEFAULT '',
				started_at TEXT NOT NULL,
				ended_at TEXT
			)`,
			`CREATE TABLE IF NOT EXISTS attendance_records (
				id TEXT NOT NULL,
				session_token TEXT NOT NULL REFERENCES sessions (token),
				trainee_id TEXT NOT NULL,
				method TEXT NOT NULL,
				device_meta TEXT NOT NULL DEFAULT '{}',
				lat REAL,
				lon REAL,
				marked_at TEXT NOT NULL,
				PRIMARY KEY (session_token, trainee_id)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_attendance_marked_at
				ON attendance_records (session_token, marked_at)`,
		},
	},
	{
		version: 2,
		statements: []string{
			`CREATE TABLE IF NOT EXISTS trainers (
				id TEXT PRIMARY KEY,
				username TEXT NOT NULL UNIQUE COLLATE NOCASE,
				display_name TEXT NOT NULL DEFAULT '',
				password_hash TEXT NOT NULL,
				created_at TEXT NOT NULL
			)`,
		},
	},
}

// Migrate brings the schema up to date. Safe to call on every startup.
func (s *Storage) Migrate(ctx context.Context) error {
	if _, err := s.pool.DB().ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	for _, m := range migrations {
		applied, err := s.migrationApplied(ctx, m.version)
		if err != nil {
			return err
		}
		if applied {
			continue
		}

		err = s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			for _, stmt := range m.statements {
				if _, err := tx.Exec(stmt); err != nil {
					return fmt.Errorf("migration %d failed: %w", m.version, err)
				}
			}
			_, err := tx.Exec(
				`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
				m.version, time.Now().UTC().Format(time.RFC3339),
			)
			return err
		})
		if err != nil {
			return err
		}
	}

	return nil
}

func (s *Storage) migrationApplied(ctx context.Context, version int) (bool, error) {
	var count int
	err := s.pool.DB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to read schema_migrations: %w", err)
	}
	return count > 0, nil
}
