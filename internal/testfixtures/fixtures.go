package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/training-attendance/internal/application"
	"github.com/example/training-attendance/internal/geo"
	"github.com/example/training-attendance/internal/persistence"
)

var (
	sessionCounter uint64
	recordCounter  uint64
	trainerCounter uint64
)

var referenceTime = time.Date(2025, time.June, 2, 9, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ---------------------------- Session fixtures ----------------------------

// SessionFixture represents a deterministic session record that can be
// materialised for application or persistence tests.
type SessionFixture struct {
	Token        string
	TrainingRef  string
	Mode         string
	RadiusMeters int
	AnchorLat    float64
	AnchorLon    float64
	HotspotID    string
	State        string
	CreatedBy    string
	StartedAt    time.Time
	EndedAt      *time.Time
}

// SessionOption configures the generated session fixture.
type SessionOption func(*SessionFixture)

// NewSessionFixture returns a deterministic session fixture with optional overrides.
func NewSessionFixture(opts ...SessionOption) SessionFixture {
	idx := atomic.AddUint64(&sessionCounter, 1)
	fixture := SessionFixture{
		Token:        fmt.Sprintf("session-%03d", idx),
		TrainingRef:  fmt.Sprintf("training-%03d", idx),
		Mode:         persistence.ModeGPS,
		RadiusMeters: 30,
		AnchorLat:    22.0797,
		AnchorLon:    82.1391,
		State:        persistence.StateActive,
		CreatedBy:    "trainer-001",
		StartedAt:    referenceTime.Add(time.Duration(idx) * time.Minute),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithSessionToken overrides the generated token.
func WithSessionToken(token string) SessionOption {
	return func(f *SessionFixture) {
		f.Token = token
	}
}

// WithSessionTrainingRef overrides the generated training reference.
func WithSessionTrainingRef(ref string) SessionOption {
	return func(f *SessionFixture) {
		f.TrainingRef = ref
	}
}

// WithSessionMode overrides the admission mode.
func WithSessionMode(mode string) SessionOption {
	return func(f *SessionFixture) {
		f.Mode = mode
	}
}

// WithSessionRadius overrides the geofence radius.
func WithSessionRadius(meters int) SessionOption {
	return func(f *SessionFixture) {
		f.RadiusMeters = meters
	}
}

// WithSessionAnchor overrides the anchor coordinates.
func WithSessionAnchor(lat, lon float64) SessionOption {
	return func(f *SessionFixture) {
		f.AnchorLat = lat
		f.AnchorLon = lon
	}
}

// WithSessionHotspotID sets the hotspot identifier for wifi sessions.
func WithSessionHotspotID(id string) SessionOption {
	return func(f *SessionFixture) {
		f.HotspotID = id
	}
}

// WithSessionState overrides the lifecycle state.
func WithSessionState(state string) SessionOption {
	return func(f *SessionFixture) {
		f.State = state
	}
}

// WithSessionEndedAt marks the session ended at the given instant.
func WithSessionEndedAt(t time.Time) SessionOption {
	return func(f *SessionFixture) {
		f.State = persistence.StateEnded
		f.EndedAt = &t
	}
}

// Persistence returns the fixture as a persistence.Session value.
func (f SessionFixture) Persistence() persistence.Session {
	return persistence.Session{
		Token:        f.Token,
		TrainingRef:  f.TrainingRef,
		Mode:         f.Mode,
		RadiusMeters: f.RadiusMeters,
		AnchorLat:    f.AnchorLat,
		AnchorLon:    f.AnchorLon,
		HotspotID:    f.HotspotID,
		State:        f.State,
		CreatedBy:    f.CreatedBy,
		StartedAt:    f.StartedAt,
		EndedAt:      f.EndedAt,
	}
}

// Application returns the fixture as an application.Session value.
func (f SessionFixture) Application() application.Session {
	return application.Session{
		Token:        f.Token,
		TrainingRef:  f.TrainingRef,
		Mode:         application.Mode(f.Mode),
		RadiusMeters: f.RadiusMeters,
		Anchor:       geo.Point{Lat: f.AnchorLat, Lon: f.AnchorLon},
		HotspotID:    f.HotspotID,
		State:        application.SessionState(f.State),
		CreatedBy:    f.CreatedBy,
		StartedAt:    f.StartedAt,
		EndedAt:      f.EndedAt,
	}
}

// --------------------------- Attendance fixtures ---------------------------

// AttendanceFixture represents a deterministic attendance record.
type AttendanceFixture struct {
	ID           string
	SessionToken string
	TraineeID    string
	Method       string
	DeviceMeta   map[string]string
	Lat          *float64
	Lon          *float64
	MarkedAt     time.Time
}

// AttendanceOption configures the generated attendance fixture.
type AttendanceOption func(*AttendanceFixture)

// NewAttendanceFixture returns a deterministic attendance fixture with optional
// overrides. Trainee identifiers and marked times are unique per fixture so
// batches of fixtures land as distinct, ordered records.
func NewAttendanceFixture(opts ...AttendanceOption) AttendanceFixture {
	idx := atomic.AddUint64(&recordCounter, 1)
	fixture := AttendanceFixture{
		ID:           fmt.Sprintf("record-%03d", idx),
		SessionToken: "session-001",
		TraineeID:    fmt.Sprintf("trainee-%03d", idx),
		Method:       persistence.ModeManual,
		MarkedAt:     referenceTime.Add(time.Duration(idx) * time.Second),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithRecordID overrides the generated record ID.
func WithRecordID(id string) AttendanceOption {
	return func(f *AttendanceFixture) {
		f.ID = id
	}
}

// WithRecordSession sets the session token the record belongs to.
func WithRecordSession(token string) AttendanceOption {
	return func(f *AttendanceFixture) {
		f.SessionToken = token
	}
}

// WithRecordTrainee overrides the generated trainee ID.
func WithRecordTrainee(traineeID string) AttendanceOption {
	return func(f *AttendanceFixture) {
		f.TraineeID = traineeID
	}
}

// WithRecordMethod overrides the admission method recorded.
func WithRecordMethod(method string) AttendanceOption {
	return func(f *AttendanceFixture) {
		f.Method = method
	}
}

// WithRecordDevice sets the device metadata blob.
func WithRecordDevice(meta map[string]string) AttendanceOption {
	return func(f *AttendanceFixture) {
		f.DeviceMeta = meta
	}
}

// WithRecordLocation sets the trainee coordinates on the record.
func WithRecordLocation(lat, lon float64) AttendanceOption {
	return func(f *AttendanceFixture) {
		f.Lat = &lat
		f.Lon = &lon
	}
}

// WithRecordMarkedAt overrides the generated marked time.
func WithRecordMarkedAt(t time.Time) AttendanceOption {
	return func(f *AttendanceFixture) {
		f.MarkedAt = t
	}
}

// Persistence returns the fixture as a persistence.AttendanceRecord value.
func (f AttendanceFixture) Persistence() persistence.AttendanceRecord {
	return persistence.AttendanceRecord{
		ID:           f.ID,
		SessionToken: f.SessionToken,
		TraineeID:    f.TraineeID,
		Method:       f.Method,
		DeviceMeta:   f.DeviceMeta,
		Lat:          f.Lat,
		Lon:          f.Lon,
		MarkedAt:     f.MarkedAt,
	}
}

// Application returns the fixture as an application.AttendanceRecord value.
func (f AttendanceFixture) Application() application.AttendanceRecord {
	var location *geo.Point
	if f.Lat != nil && f.Lon != nil {
		location = &geo.Point{Lat: *f.Lat, Lon: *f.Lon}
	}
	return application.AttendanceRecord{
		ID:           f.ID,
		SessionToken: f.SessionToken,
		TraineeID:    f.TraineeID,
		Method:       application.Mode(f.Method),
		DeviceMeta:   f.DeviceMeta,
		Location:     location,
		MarkedAt:     f.MarkedAt,
	}
}

// ----------------------------- Trainer fixtures ----------------------------

// TrainerFixture represents a deterministic trainer account.
type TrainerFixture struct {
	ID           string
	Username     string
	DisplayName  string
	PasswordHash string
	CreatedAt    time.Time
}

// TrainerOption configures the generated trainer fixture.
type TrainerOption func(*TrainerFixture)

// NewTrainerFixture returns a deterministic trainer fixture with optional overrides.
func NewTrainerFixture(opts ...TrainerOption) TrainerFixture {
	idx := atomic.AddUint64(&trainerCounter, 1)
	fixture := TrainerFixture{
		ID:           fmt.Sprintf("trainer-%03d", idx),
		Username:     fmt.Sprintf("trainer%03d", idx),
		DisplayName:  fmt.Sprintf("Trainer %03d", idx),
		PasswordHash: fmt.Sprintf("hash-%03d", idx),
		CreatedAt:    referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithTrainerUsername overrides the generated username.
func WithTrainerUsername(username string) TrainerOption {
	return func(f *TrainerFixture) {
		f.Username = username
	}
}

// WithTrainerPasswordHash overrides the generated password hash.
func WithTrainerPasswordHash(hash string) TrainerOption {
	return func(f *TrainerFixture) {
		f.PasswordHash = hash
	}
}

// Persistence returns the fixture as a persistence.Trainer value.
func (f TrainerFixture) Persistence() persistence.Trainer {
	return persistence.Trainer{
		ID:           f.ID,
		Username:     f.Username,
		DisplayName:  f.DisplayName,
		PasswordHash: f.PasswordHash,
		CreatedAt:    f.CreatedAt,
	}
}

// Application returns the fixture's application view with its password hash.
func (f TrainerFixture) Application() application.TrainerCredentials {
	return application.TrainerCredentials{
		Trainer: application.Trainer{
			ID:          f.ID,
			Username:    f.Username,
			DisplayName: f.DisplayName,
			CreatedAt:   f.CreatedAt,
		},
		PasswordHash: f.PasswordHash,
	}
}
