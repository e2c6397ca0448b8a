package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/example/training-attendance/internal/persistence"
)

// timeLayout is a fixed-width UTC timestamp encoding so that lexicographic
// ordering of stored values matches chronological ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Storage implements the persistence repositories over SQLite.
type Storage struct {
	pool *ConnectionPool
}

// Open opens (or creates) the SQLite database at the given DSN.
func Open(dsn string) (*Storage, error) {
	pool, err := NewConnectionPool(dsn)
	if err != nil {
		return nil, err
	}
	return &Storage{pool: pool}, nil
}

// Close releases the underlying database handle.
func (s *Storage) Close() error {
	return s.pool.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", value, err)
	}
	return t, nil
}

// --- SessionRepository implementation ---

// CreateSession inserts a new session row, reporting token collisions as
// ErrDuplicate so callers can re-roll the token.
func (s *Storage) CreateSession(ctx context.Context, session persistence.Session) (persistence.Session, error) {
	if strings.TrimSpace(session.Token) == "" {
		return persistence.Session{}, persistence.ErrConstraintViolation
	}

	var endedAt sql.NullString
	if session.EndedAt != nil {
		endedAt.String = formatTime(*session.EndedAt)
		endedAt.Valid = true
	}

	_, err := s.pool.DB().ExecContext(ctx, `
		INSERT INTO sessions (token, training_ref, mode, radius_meters, anchor_lat, anchor_lon, hotspot_id, state, created_by, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		session.Token,
		session.TrainingRef,
		session.Mode,
		session.RadiusMeters,
		session.AnchorLat,
		session.AnchorLon,
		session.HotspotID,
		session.State,
		session.CreatedBy,
		formatTime(session.StartedAt),
		endedAt,
	)
	if err != nil {
		return persistence.Session{}, mapError(err)
	}

	return s.GetSession(ctx, session.Token)
}

// GetSession retrieves a session by its token.
func (s *Storage) GetSession(ctx context.Context, token string) (persistence.Session, error) {
	return scanSession(s.pool.DB().QueryRowContext(ctx, `
		SELECT token, training_ref, mode, radius_meters, anchor_lat, anchor_lon, hotspot_id, state, created_by, started_at, ended_at
		FROM sessions
		WHERE token = ?
	`, token))
}

// EndSession transitions a session from active to ended. The guarded UPDATE
// makes the transition race-safe: whichever caller flips the row wins, the
// loser observes ErrSessionEnded.
func (s *Storage) EndSession(ctx context.Context, token string, endedAt time.Time) (persistence.Session, error) {
	var session persistence.Session
	err := s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.Exec(`
			UPDATE sessions
			SET state = ?, ended_at = ?
			WHERE token = ? AND state = ?
		`, persistence.StateEnded, formatTime(endedAt), token, persistence.StateActive)
		if err != nil {
			return mapError(err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if affected == 0 {
			var state string
			err := tx.QueryRow(`SELECT state FROM sessions WHERE token = ?`, token).Scan(&state)
			if err == sql.ErrNoRows {
				return persistence.ErrNotFound
			}
			if err != nil {
				return mapError(err)
			}
			return persistence.ErrSessionEnded
		}

		session, err = scanSession(tx.QueryRow(`
			SELECT token, training_ref, mode, radius_meters, anchor_lat, anchor_lon, hotspot_id, state, created_by, started_at, ended_at
			FROM sessions
			WHERE token = ?
		`, token))
		return err
	})
	if err != nil {
		return persistence.Session{}, err
	}
	return session, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (persistence.Session, error) {
	var session persistence.Session
	var startedAt string
	var endedAt sql.NullString

	err := row.Scan(
		&session.Token,
		&session.TrainingRef,
		&session.Mode,
		&session.RadiusMeters,
		&session.AnchorLat,
		&session.AnchorLon,
		&session.HotspotID,
		&session.State,
		&session.CreatedBy,
		&startedAt,
		&endedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return persistence.Session{}, persistence.ErrNotFound
		}
		return persistence.Session{}, mapError(err)
	}

	if session.StartedAt, err = parseTime(startedAt); err != nil {
		return persistence.Session{}, err
	}
	if endedAt.Valid {
		t, err := parseTime(endedAt.String)
		if err != nil {
			return persistence.Session{}, err
		}
		session.EndedAt = &t
	}

	return session, nil
}
