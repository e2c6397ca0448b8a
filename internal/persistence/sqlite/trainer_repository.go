package sqlite

import (
	"context"
	"database/sql"

	"github.com/example/training-attendance/internal/persistence"
)

// CreateTrainer stores a new trainer account. Username collisions map to
// ErrDuplicate via the UNIQUE constraint.
func (s *Storage) CreateTrainer(ctx context.Context, trainer persistence.Trainer) error {
	_, err := s.pool.DB().ExecContext(ctx, `
		INSERT INTO trainers (id, username, display_name, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		trainer.ID,
		trainer.Username,
		trainer.DisplayName,
		trainer.PasswordHash,
		formatTime(trainer.CreatedAt),
	)
	return mapError(err)
}

// GetTrainerByUsername retrieves a trainer account; the lookup is
// case-insensitive per the column collation.
func (s *Storage) GetTrainerByUsername(ctx context.Context, username string) (persistence.Trainer, error) {
	var trainer persistence.Trainer
	var createdAt string

	err := s.pool.DB().QueryRowContext(ctx, `
		SELECT id, username, display_name, password_hash, created_at
		FROM trainers
		WHERE username = ?
	`, username).Scan(
		&trainer.ID,
		&trainer.Username,
		&trainer.DisplayName,
		&trainer.PasswordHash,
		&createdAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return persistence.Trainer{}, persistence.ErrNotFound
		}
		return persistence.Trainer{}, mapError(err)
	}

	if trainer.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Trainer{}, err
	}

	return trainer, nil
}
