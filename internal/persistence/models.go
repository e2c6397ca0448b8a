package persistence

import "time"

// Session modes understood by the attendance store.
const (
	ModeGPS    = "gps"
	ModeWifi   = "wifi"
	ModeManual = "manual"
)

// Session states. The transition is one-way: active -> ended.
const (
	StateActive = "active"
	StateEnded  = "ended"
)

// Session represents a check-in window persisted for a training occurrence.
// Token doubles as primary key and externally shown join code; it is never
// reused, even after the session has ended.
type Session struct {
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

// AttendanceRecord represents one trainee's mark against a session. Records
// are immutable once stored; the (SessionToken, TraineeID) pair is unique.
type AttendanceRecord struct {
	ID           string
	SessionToken string
	TraineeID    string
	Method       string
	DeviceMeta   map[string]string
	Lat          *float64
	Lon          *float64
	MarkedAt     time.Time
}

// Trainer represents a credentialed trainer account.
type Trainer struct {
	ID           string
	Username     string
	DisplayName  string
	PasswordHash string
	CreatedAt    time.Time
}
