package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/training-attendance/internal/persistence"
)

// maxTokenAttempts bounds the re-roll loop when a generated token collides
// with an existing session.
const maxTokenAttempts = 5

// SessionStore captures the persistence operations needed by the service.
type SessionStore interface {
	CreateSession(ctx context.Context, session Session) (Session, error)
	GetSession(ctx context.Context, token string) (Session, error)
	EndSession(ctx context.Context, token string, endedAt time.Time) (Session, error)
}

// AttendanceLedger captures the ledger operations shared by the session and
// admission services. Upsert reports whether a new record was inserted, or the
// previously stored record when the trainee had already checked in.
type AttendanceLedger interface {
	Upsert(ctx context.Context, record AttendanceRecord) (AttendanceRecord, bool, error)
	Find(ctx context.Context, sessionToken, traineeID string) (AttendanceRecord, error)
	ListFor(ctx context.Context, sessionToken string) ([]AttendanceRecord, error)
	CountFor(ctx context.Context, sessionToken string) (int, error)
}

// SessionService owns the session lifecycle and the trainer-facing roster reads.
type SessionService struct {
	sessions       SessionStore
	ledger         AttendanceLedger
	tokenGenerator func() string
	now            func() time.Time
	logger         *slog.Logger
}

// NewSessionService constructs a session service with the provided dependencies.
func NewSessionService(sessions SessionStore, ledger AttendanceLedger, tokenGenerator func() string, now func() time.Time) *SessionService {
	return NewSessionServiceWithLogger(sessions, ledger, tokenGenerator, now, nil)
}

// NewSessionServiceWithLogger constructs a session service with a specified logger.
func NewSessionServiceWithLogger(sessions SessionStore, ledger AttendanceLedger, tokenGenerator func() string, now func() time.Time, logger *slog.Logger) *SessionService {
	if tokenGenerator == nil {
		tokenGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &SessionService{
		sessions:       sessions,
		ledger:         ledger,
		tokenGenerator: tokenGenerator,
		now:            now,
		logger:         defaultLogger(logger),
	}
}

func (s *SessionService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "SessionService", operation, attrs...)
}

// CreateSession validates input, generates a unique token, and persists the
// session in the active state. Token collisions are re-rolled rather than
// surfaced to the caller.
func (s *SessionService) CreateSession(ctx context.Context, params CreateSessionParams) (session Session, err error) {
	if s == nil {
		err = fmt.Errorf("SessionService is nil")
		return
	}
	if s.sessions == nil {
		err = fmt.Errorf("session store not configured")
		return
	}

	logger := s.loggerWith(ctx, "CreateSession",
		"trainer_id", params.Principal.TrainerID,
		"training_ref", params.Input.TrainingRef,
		"mode", string(params.Input.Mode),
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create session", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("session_token", session.Token).InfoContext(ctx, "session created")
	}()

	if params.Principal.TrainerID == "" {
		err = ErrUnauthorized
		return
	}

	vErr := validateSessionInput(params.Input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	candidate := Session{
		TrainingRef:  strings.TrimSpace(params.Input.TrainingRef),
		Mode:         params.Input.Mode,
		RadiusMeters: params.Input.RadiusMeters,
		Anchor:       params.Input.Anchor,
		HotspotID:    strings.TrimSpace(params.Input.HotspotID),
		State:        StateActive,
		CreatedBy:    params.Principal.TrainerID,
		StartedAt:    s.now(),
	}

	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		candidate.Token = s.tokenGenerator()
		if candidate.Token == "" {
			err = fmt.Errorf("token generator returned an empty token")
			return
		}

		var persisted Session
		persisted, err = s.sessions.CreateSession(ctx, candidate)
		if err == nil {
			session = persisted
			return
		}
		if !errors.Is(err, persistence.ErrDuplicate) {
			return
		}
	}

	err = fmt.Errorf("could not generate a unique session token after %d attempts: %w", maxTokenAttempts, err)
	return
}

// GetSession looks up a session by token.
func (s *SessionService) GetSession(ctx context.Context, token string) (Session, error) {
	if s == nil || s.sessions == nil {
		return Session{}, fmt.Errorf("session store not configured")
	}

	session, err := s.sessions.GetSession(ctx, token)
	if err != nil {
		return Session{}, mapSessionStoreError(err)
	}
	return session, nil
}

// EndSession transitions a session from active to ended. A session that was
// already ended reports ErrAlreadyEnded so callers can detect double-end races.
func (s *SessionService) EndSession(ctx context.Context, params EndSessionParams) (session Session, err error) {
	if s == nil || s.sessions == nil {
		err = fmt.Errorf("session store not configured")
		return
	}

	logger := s.loggerWith(ctx, "EndSession",
		"trainer_id", params.Principal.TrainerID,
		"session_token", params.Token,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to end session", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "session ended")
	}()

	if params.Principal.TrainerID == "" {
		err = ErrUnauthorized
		return
	}

	session, err = s.sessions.EndSession(ctx, params.Token, s.now())
	if err != nil {
		session = Session{}
		if errors.Is(err, persistence.ErrSessionEnded) {
			err = ErrAlreadyEnded
			return
		}
		err = mapSessionStoreError(err)
		return
	}
	return
}

// ListAttendance returns the roster for a session ordered by the time each
// trainee was marked. It is cheap to call repeatedly and reflects the current
// ledger state on every call.
func (s *SessionService) ListAttendance(ctx context.Context, token string) ([]AttendanceRecord, error) {
	if s == nil || s.sessions == nil || s.ledger == nil {
		return nil, fmt.Errorf("session store not configured")
	}

	if _, err := s.sessions.GetSession(ctx, token); err != nil {
		return nil, mapSessionStoreError(err)
	}
	return s.ledger.ListFor(ctx, token)
}

// CountAttendance returns the number of trainees marked for a session.
func (s *SessionService) CountAttendance(ctx context.Context, token string) (int, error) {
	if s == nil || s.sessions == nil || s.ledger == nil {
		return 0, fmt.Errorf("session store not configured")
	}

	if _, err := s.sessions.GetSession(ctx, token); err != nil {
		return 0, mapSessionStoreError(err)
	}
	return s.ledger.CountFor(ctx, token)
}

func validateSessionInput(input SessionInput) *ValidationError {
	vErr := &ValidationError{}

	if strings.TrimSpace(input.TrainingRef) == "" {
		vErr.add("trainingRef", "training reference is required")
	}

	switch input.Mode {
	case ModeGPS:
		if input.RadiusMeters <= 0 {
			vErr.add("radiusMeters", "radius must be a positive number of meters")
		}
		if !input.Anchor.Valid() {
			vErr.add("anchorLocation", "anchor location must be a valid coordinate pair")
		}
	case ModeWifi:
		if strings.TrimSpace(input.HotspotID) == "" {
			vErr.add("hotspotId", "hotspot identifier is required for wifi sessions")
		}
	case ModeManual:
	default:
		vErr.add("mode", "mode must be one of gps, wifi, manual")
	}

	return vErr
}

func mapSessionStoreError(err error) error {
	if errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
