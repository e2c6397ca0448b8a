package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/training-attendance/internal/geo"
	"github.com/example/training-attendance/internal/persistence"
)

// DefaultNetworkPolicy matches the session's hotspot identifier against the
// device-reported "network_id" entry, case-insensitively.
func DefaultNetworkPolicy(session Session, deviceMeta map[string]string) bool {
	reported := strings.TrimSpace(deviceMeta["network_id"])
	expected := strings.TrimSpace(session.HotspotID)
	if reported == "" || expected == "" {
		return false
	}
	return strings.EqualFold(reported, expected)
}

// AdmissionService decides whether a join attempt becomes a stored
// attendance record.
type AdmissionService struct {
	ledger        AttendanceLedger
	networkPolicy NetworkPolicy
	idGenerator   func() string
	now           func() time.Time
	logger        *slog.Logger
}

// NewAdmissionService constructs an admission service with the provided dependencies.
func NewAdmissionService(ledger AttendanceLedger, policy NetworkPolicy, idGenerator func() string, now func() time.Time) *AdmissionService {
	return NewAdmissionServiceWithLogger(ledger, policy, idGenerator, now, nil)
}

// NewAdmissionServiceWithLogger constructs an admission service with a specified logger.
func NewAdmissionServiceWithLogger(ledger AttendanceLedger, policy NetworkPolicy, idGenerator func() string, now func() time.Time, logger *slog.Logger) *AdmissionService {
	if policy == nil {
		policy = DefaultNetworkPolicy
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &AdmissionService{
		ledger:        ledger,
		networkPolicy: policy,
		idGenerator:   idGenerator,
		now:           now,
		logger:        defaultLogger(logger),
	}
}

func (s *AdmissionService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AdmissionService", operation, attrs...)
}

// Admit evaluates a join attempt against the session's admission rule and, on
// acceptance, stores an attendance record. Preconditions are checked in a
// fixed order with the first failure winning: session state, existing record
// (an idempotent success, never an error), then the mode-specific rule. A
// concurrent repeat that loses the insert race is reported as AlreadyMarked
// with the stored record.
func (s *AdmissionService) Admit(ctx context.Context, params AdmitParams) (result AdmitResult, err error) {
	if s == nil {
		err = fmt.Errorf("AdmissionService is nil")
		return
	}
	if s.ledger == nil {
		err = fmt.Errorf("attendance ledger not configured")
		return
	}

	logger := s.loggerWith(ctx, "Admit",
		"session_token", params.Session.Token,
		"trainee_id", params.TraineeID,
		"mode", string(params.Session.Mode),
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "join attempt rejected", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("already_marked", result.AlreadyMarked).InfoContext(ctx, "join attempt admitted")
	}()

	if strings.TrimSpace(params.TraineeID) == "" {
		vErr := &ValidationError{}
		vErr.add("traineeId", "trainee identifier is required")
		err = vErr
		return
	}

	if !params.Session.Active() {
		err = ErrSessionEnded
		return
	}

	existing, findErr := s.ledger.Find(ctx, params.Session.Token, params.TraineeID)
	if findErr == nil {
		result = AdmitResult{Record: existing, AlreadyMarked: true}
		return
	}
	if !errors.Is(findErr, persistence.ErrNotFound) {
		err = findErr
		return
	}

	switch params.Session.Mode {
	case ModeGPS:
		if params.Location == nil {
			err = ErrLocationRequired
			return
		}
		distance := geo.Haversine(params.Session.Anchor, *params.Location)
		if distance > float64(params.Session.RadiusMeters) {
			err = fmt.Errorf("%w: %.1fm from anchor exceeds %dm radius", ErrOutOfRange, distance, params.Session.RadiusMeters)
			return
		}
	case ModeWifi:
		if !s.networkPolicy(params.Session, params.DeviceMeta) {
			err = ErrNetworkMismatch
			return
		}
	case ModeManual:
	default:
		err = fmt.Errorf("unsupported session mode %q", params.Session.Mode)
		return
	}

	record := AttendanceRecord{
		ID:           s.idGenerator(),
		SessionToken: params.Session.Token,
		TraineeID:    params.TraineeID,
		Method:       params.Session.Mode,
		DeviceMeta:   params.DeviceMeta,
		Location:     params.Location,
		MarkedAt:     s.now(),
	}

	stored, inserted, upsertErr := s.ledger.Upsert(ctx, record)
	if upsertErr != nil {
		if errors.Is(upsertErr, persistence.ErrSessionEnded) {
			err = ErrSessionEnded
			return
		}
		err = upsertErr
		return
	}

	result = AdmitResult{Record: stored, AlreadyMarked: !inserted}
	return
}
