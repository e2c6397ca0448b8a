package application

import (
	"context"
	"time"

	"github.com/example/training-attendance/internal/geo"
)

// Mode selects the admission rule applied to join attempts against a session.
type Mode string

const (
	// ModeGPS admits trainees inside the session geofence.
	ModeGPS Mode = "gps"
	// ModeWifi admits trainees reporting the session's hotspot network.
	ModeWifi Mode = "wifi"
	// ModeManual admits any trainee presenting the session token.
	ModeManual Mode = "manual"
)

// SessionState tracks the one-way active to ended lifecycle of a session.
type SessionState string

const (
	// StateActive marks a session that accepts join attempts.
	StateActive SessionState = "active"
	// StateEnded marks a session that rejects further join attempts.
	StateEnded SessionState = "ended"
)

// Principal represents the authenticated trainer invoking a service method.
type Principal struct {
	TrainerID string
	Username  string
}

// SessionInput captures caller provided session fields.
type SessionInput struct {
	TrainingRef  string
	Mode         Mode
	RadiusMeters int
	Anchor       geo.Point
	HotspotID    string
}

// Session represents a check-in window tied to one training occurrence.
type Session struct {
	Token        string
	TrainingRef  string
	Mode         Mode
	RadiusMeters int
	Anchor       geo.Point
	HotspotID    string
	State        SessionState
	CreatedBy    string
	StartedAt    time.Time
	EndedAt      *time.Time
}

// Active reports whether the session still accepts join attempts.
func (s Session) Active() bool {
	return s.State == StateActive
}

// CreateSessionParams wraps the data required to open a session.
type CreateSessionParams struct {
	Principal Principal
	Input     SessionInput
}

// EndSessionParams wraps the data required to end a session.
type EndSessionParams struct {
	Principal Principal
	Token     string
}

// AttendanceRecord represents one trainee's stored check-in for a session.
type AttendanceRecord struct {
	ID           string
	SessionToken string
	TraineeID    string
	Method       Mode
	DeviceMeta   map[string]string
	Location     *geo.Point
	MarkedAt     time.Time
}

// AdmitParams wraps the data required to evaluate a join attempt.
type AdmitParams struct {
	Session    Session
	TraineeID  string
	Location   *geo.Point
	DeviceMeta map[string]string
}

// AdmitResult captures the stored record for an accepted join attempt.
// AlreadyMarked is set when the trainee had previously checked in and the
// existing record was returned unchanged.
type AdmitResult struct {
	Record        AttendanceRecord
	AlreadyMarked bool
}

// EventMembership describes a trainee's membership in a higher-level event,
// as reported by the external event-join collaborator.
type EventMembership struct {
	EventID   string
	EventName string
	TraineeID string
}

// EventJoinResult captures the collaborator's answer for a join code.
type EventJoinResult struct {
	Membership    EventMembership
	AlreadyJoined bool
}

// EventJoiner is the external collaborator that accepts event join codes.
type EventJoiner interface {
	JoinEventByCode(ctx context.Context, code, traineeID string) (EventJoinResult, error)
}

// JoinOutcomeKind discriminates the possible results of resolving a join code.
type JoinOutcomeKind string

const (
	// OutcomeJoinedEvent reports a first-time event membership.
	OutcomeJoinedEvent JoinOutcomeKind = "joined_event"
	// OutcomeAlreadyJoined reports an idempotent repeat of an event join.
	OutcomeAlreadyJoined JoinOutcomeKind = "already_joined"
	// OutcomeAttended reports a stored attendance record for a session token.
	OutcomeAttended JoinOutcomeKind = "attended"
	// OutcomeFailed reports that neither mechanism accepted the code.
	OutcomeFailed JoinOutcomeKind = "failed"
)

// JoinOutcome is the tagged result of resolving a raw join code. Exactly the
// fields relevant to Kind are populated; Reason is set only for OutcomeFailed.
type JoinOutcome struct {
	Kind          JoinOutcomeKind
	Membership    *EventMembership
	Record        *AttendanceRecord
	AlreadyMarked bool
	Reason        error
}

// ResolveParams wraps the data required to resolve a raw join code.
type ResolveParams struct {
	RawCode    string
	TraineeID  string
	Location   *geo.Point
	DeviceMeta map[string]string
}

// NetworkPolicy decides whether a Wi-Fi join attempt's reported network
// matches the session's configured hotspot.
type NetworkPolicy func(session Session, deviceMeta map[string]string) bool

// Trainer represents a staff account that may open and end sessions.
type Trainer struct {
	ID          string
	Username    string
	DisplayName string
	CreatedAt   time.Time
}

// TrainerCredentials models the authentication attributes persisted for a trainer.
type TrainerCredentials struct {
	Trainer      Trainer
	PasswordHash string
}

// LoginParams captures the data required to authenticate a trainer.
type LoginParams struct {
	Username string
	Password string
}

// LoginResult captures the outcome of a successful login.
type LoginResult struct {
	Trainer   Trainer
	Token     string
	ExpiresAt time.Time
}
