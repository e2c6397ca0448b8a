package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// SessionReader is the session lookup needed by the resolver.
type SessionReader interface {
	GetSession(ctx context.Context, token string) (Session, error)
}

// Admitter evaluates a join attempt against a session.
type Admitter interface {
	Admit(ctx context.Context, params AdmitParams) (AdmitResult, error)
}

// ResolverService maps a raw scanned or typed code onto one of the two join
// mechanisms: the external event join first, then the session token fallback.
type ResolverService struct {
	events   EventJoiner
	sessions SessionReader
	gate     Admitter
	logger   *slog.Logger
}

// NewResolverService constructs a resolver with the provided dependencies.
func NewResolverService(events EventJoiner, sessions SessionReader, gate Admitter) *ResolverService {
	return NewResolverServiceWithLogger(events, sessions, gate, nil)
}

// NewResolverServiceWithLogger constructs a resolver with a specified logger.
func NewResolverServiceWithLogger(events EventJoiner, sessions SessionReader, gate Admitter, logger *slog.Logger) *ResolverService {
	return &ResolverService{
		events:   events,
		sessions: sessions,
		gate:     gate,
		logger:   defaultLogger(logger),
	}
}

func (s *ResolverService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "ResolverService", operation, attrs...)
}

// Resolve tries the event join mechanism, then falls back to treating the
// code as a session token. The two attempts run sequentially, one try each;
// retrying after a transient failure is the caller's decision. Expected
// rejections come back as an OutcomeFailed value carrying the most specific
// reason; only infrastructure faults are returned as errors.
func (s *ResolverService) Resolve(ctx context.Context, params ResolveParams) (outcome JoinOutcome, err error) {
	if s == nil {
		err = fmt.Errorf("ResolverService is nil")
		return
	}

	code := strings.TrimSpace(params.RawCode)
	traineeID := strings.TrimSpace(params.TraineeID)

	logger := s.loggerWith(ctx, "Resolve",
		"trainee_id", traineeID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "code resolution faulted", "error", err, "error_kind", ErrorKind(err))
			return
		}
		attrs := []any{"outcome", string(outcome.Kind)}
		if outcome.Kind == OutcomeFailed {
			attrs = append(attrs, "reason", ErrorKind(outcome.Reason))
		}
		logger.With(attrs...).InfoContext(ctx, "code resolved")
	}()

	vErr := &ValidationError{}
	if code == "" {
		vErr.add("code", "join code is required")
	}
	if traineeID == "" {
		vErr.add("traineeId", "trainee identifier is required")
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	if s.events != nil {
		joined, joinErr := s.events.JoinEventByCode(ctx, code, traineeID)
		if joinErr == nil {
			membership := joined.Membership
			kind := OutcomeJoinedEvent
			if joined.AlreadyJoined {
				kind = OutcomeAlreadyJoined
			}
			outcome = JoinOutcome{Kind: kind, Membership: &membership}
			return
		}
		logger.DebugContext(ctx, "event join declined the code, trying session token", "error", joinErr)
	}

	if s.sessions == nil || s.gate == nil {
		err = fmt.Errorf("session fallback not configured")
		return
	}

	session, getErr := s.sessions.GetSession(ctx, code)
	if getErr != nil {
		if errors.Is(getErr, ErrNotFound) {
			outcome = JoinOutcome{Kind: OutcomeFailed, Reason: ErrResolutionFailed}
			return
		}
		err = getErr
		return
	}

	result, admitErr := s.gate.Admit(ctx, AdmitParams{
		Session:    session,
		TraineeID:  traineeID,
		Location:   params.Location,
		DeviceMeta: params.DeviceMeta,
	})
	if admitErr != nil {
		if isAdmissionRejection(admitErr) {
			outcome = JoinOutcome{Kind: OutcomeFailed, Reason: admitErr}
			return
		}
		err = admitErr
		return
	}

	record := result.Record
	outcome = JoinOutcome{Kind: OutcomeAttended, Record: &record, AlreadyMarked: result.AlreadyMarked}
	return
}

// isAdmissionRejection reports whether the error is an expected admission
// rejection rather than an infrastructure fault.
func isAdmissionRejection(err error) bool {
	if errors.Is(err, ErrSessionEnded) ||
		errors.Is(err, ErrOutOfRange) ||
		errors.Is(err, ErrLocationRequired) ||
		errors.Is(err, ErrNetworkMismatch) {
		return true
	}
	var vErr *ValidationError
	return errors.As(err, &vErr)
}
