package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/example/training-attendance/internal/persistence"
)

// Upsert inserts an attendance record unless one already exists for the
// (session, trainee) pair. The session state check, the existence check and
// the conditional insert run in one transaction, so an admit racing a
// session-end resolves on exactly one side of the transition.
func (s *Storage) Upsert(ctx context.Context, record persistence.AttendanceRecord) (persistence.AttendanceRecord, bool, error) {
	var stored persistence.AttendanceRecord
	var inserted bool

	err := s.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		var state string
		err := tx.QueryRow(`SELECT state FROM sessions WHERE token = ?`, record.SessionToken).Scan(&state)
		if err == sql.ErrNoRows {
			return persistence.ErrNotFound
		}
		if err != nil {
			return mapError(err)
		}

		existing, err := scanRecord(tx.QueryRow(selectRecordQuery+` WHERE session_token = ? AND trainee_id = ?`,
			record.SessionToken, record.TraineeID))
		if err == nil {
			stored = existing
			inserted = false
			return nil
		}
		if err != persistence.ErrNotFound {
			return err
		}

		if state == persistence.StateEnded {
			return persistence.ErrSessionEnded
		}

		meta, err := encodeDeviceMeta(record.DeviceMeta)
		if err != nil {
			return err
		}

		var lat, lon sql.NullFloat64
		if record.Lat != nil {
			lat = sql.NullFloat64{Float64: *record.Lat, Valid: true}
		}
		if record.Lon != nil {
			lon = sql.NullFloat64{Float64: *record.Lon, Valid: true}
		}

		result, err := tx.Exec(`
			INSERT INTO attendance_records (id, session_token, trainee_id, method, device_meta, lat, lon, marked_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (session_token, trainee_id) DO NOTHING
		`,
			record.ID,
			record.SessionToken,
			record.TraineeID,
			record.Method,
			meta,
			lat,
			lon,
			formatTime(record.MarkedAt),
		)
		if err != nil {
			return mapError(err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}

		stored, err = scanRecord(tx.QueryRow(selectRecordQuery+` WHERE session_token = ? AND trainee_id = ?`,
			record.SessionToken, record.TraineeID))
		if err != nil {
			return err
		}
		inserted = affected > 0
		return nil
	})
	if err != nil {
		return persistence.AttendanceRecord{}, false, err
	}

	return stored, inserted, nil
}

// Find retrieves the record for a session and trainee pair.
func (s *Storage) Find(ctx context.Context, sessionToken, traineeID string) (persistence.AttendanceRecord, error) {
	return scanRecord(s.pool.DB().QueryRowContext(ctx,
		selectRecordQuery+` WHERE session_token = ? AND trainee_id = ?`,
		sessionToken, traineeID))
}

// ListFor returns a session's records ordered by marked time ascending.
func (s *Storage) ListFor(ctx context.Context, sessionToken string) ([]persistence.AttendanceRecord, error) {
	rows, err := s.pool.DB().QueryContext(ctx,
		selectRecordQuery+` WHERE session_token = ? ORDER BY marked_at ASC, trainee_id ASC`,
		sessionToken)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	records := make([]persistence.AttendanceRecord, 0)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}

	return records, nil
}

// CountFor returns the number of records stored for a session.
func (s *Storage) CountFor(ctx context.Context, sessionToken string) (int, error) {
	var count int
	err := s.pool.DB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attendance_records WHERE session_token = ?`,
		sessionToken).Scan(&count)
	if err != nil {
		return 0, mapError(err)
	}
	return count, nil
}

const selectRecordQuery = `
	SELECT id, session_token, trainee_id, method, device_meta, lat, lon, marked_at
	FROM attendance_records`

func scanRecord(row rowScanner) (persistence.AttendanceRecord, error) {
	var record persistence.AttendanceRecord
	var meta string
	var lat, lon sql.NullFloat64
	var markedAt string

	err := row.Scan(
		&record.ID,
		&record.SessionToken,
		&record.TraineeID,
		&record.Method,
		&meta,
		&lat,
		&lon,
		&markedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return persistence.AttendanceRecord{}, persistence.ErrNotFound
		}
		return persistence.AttendanceRecord{}, mapError(err)
	}

	if record.DeviceMeta, err = decodeDeviceMeta(meta); err != nil {
		return persistence.AttendanceRecord{}, err
	}
	if lat.Valid {
		value := lat.Float64
		record.Lat = &value
	}
	if lon.Valid {
		value := lon.Float64
		record.Lon = &value
	}
	if record.MarkedAt, err = parseTime(markedAt); err != nil {
		return persistence.AttendanceRecord{}, err
	}

	return record, nil
}

func encodeDeviceMeta(meta map[string]string) (string, error) {
	if len(meta) == 0 {
		return "{}", nil
	}
	encoded, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("failed to encode device meta: %w", err)
	}
	return string(encoded), nil
}

func decodeDeviceMeta(encoded string) (map[string]string, error) {
	if encoded == "" || encoded == "{}" {
		return nil, nil
	}
	var meta map[string]string
	if err := json.Unmarshal([]byte(encoded), &meta); err != nil {
		return nil, fmt.Errorf("failed to decode device meta: %w", err)
	}
	return meta, nil
}
