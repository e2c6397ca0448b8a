package persistence

import (
	"context"
	"time"
)

// SessionRepository stores check-in sessions keyed by their join token.
type SessionRepository interface {
	// CreateSession inserts a session if its token is absent. A token
	// collision, including with ended sessions, returns ErrDuplicate so the
	// caller can re-roll; tokens are never reused.
	CreateSession(ctx context.Context, session Session) (Session, error)
	GetSession(ctx context.Context, token string) (Session, error)
	// EndSession transitions active -> ended, recording endedAt. It returns
	// ErrSessionEnded when the session already ended, so a double-end race is
	// reported rather than absorbed.
	EndSession(ctx context.Context, token string, endedAt time.Time) (Session, error)
}

// AttendanceRepository stores the append-only attendance ledger.
type AttendanceRepository interface {
	// Upsert atomically inserts the record unless one already exists for
	// (SessionToken, TraineeID), in which case the stored record is returned
	// untouched and inserted is false. The session's state is re-checked in
	// the same critical section: once the session is observed ended, the
	// insert fails with ErrSessionEnded.
	Upsert(ctx context.Context, record AttendanceRecord) (stored AttendanceRecord, inserted bool, err error)
	Find(ctx context.Context, sessionToken, traineeID string) (AttendanceRecord, error)
	// ListFor returns the session's records ordered by MarkedAt ascending,
	// with trainee ID as a deterministic tie-break.
	ListFor(ctx context.Context, sessionToken string) ([]AttendanceRecord, error)
	CountFor(ctx context.Context, sessionToken string) (int, error)
}

// TrainerRepository stores trainer accounts used by the login surface.
type TrainerRepository interface {
	CreateTrainer(ctx context.Context, trainer Trainer) error
	GetTrainerByUsername(ctx context.Context, username string) (Trainer, error)
}
