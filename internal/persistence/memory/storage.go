// Package memory provides a mutex-guarded in-memory implementation of the
// persistence repositories, suitable for tests and ephemeral deployments.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/example/training-attendance/internal/persistence"
)

// Storage implements the persistence repositories over in-process maps. A
// single mutex guards sessions and the ledger together so that an admit
// racing a session-end resolves on exactly one side of the transition.
type Storage struct {
	mu       sync.RWMutex
	sessions map[string]persistence.Session
	records  map[string]map[string]persistence.AttendanceRecord
	trainers map[string]persistence.Trainer
}

// Open returns an empty Storage.
func Open() *Storage {
	return &Storage{
		sessions: make(map[string]persistence.Session),
		records:  make(map[string]map[string]persistence.AttendanceRecord),
		trainers: make(map[string]persistence.Trainer),
	}
}

// Close releases resources held by the storage. No-op for the in-memory
// implementation.
func (s *Storage) Close() error {
	return nil
}

// Migrate initialises the storage. No-op for the in-memory implementation.
func (s *Storage) Migrate(context.Context) error {
	return nil
}

// --- SessionRepository implementation ---

// CreateSession stores a new session, rejecting token collisions.
func (s *Storage) CreateSession(ctx context.Context, session persistence.Session) (persistence.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[session.Token]; ok {
		return persistence.Session{}, persistence.ErrDuplicate
	}

	s.sessions[session.Token] = cloneSession(session)
	return cloneSession(session), nil
}

// GetSession retrieves a session by its token.
func (s *Storage) GetSession(ctx context.Context, token string) (persistence.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[token]
	if !ok {
		return persistence.Session{}, persistence.ErrNotFound
	}

	return cloneSession(session), nil
}

// EndSession transitions a session from active to ended.
func (s *Storage) EndSession(ctx context.Context, token string, endedAt time.Time) (persistence.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[token]
	if !ok {
		return persistence.Session{}, persistence.ErrNotFound
	}
	if session.State == persistence.StateEnded {
		return persistence.Session{}, persistence.ErrSessionEnded
	}

	ended := endedAt.UTC()
	session.State = persistence.StateEnded
	session.EndedAt = &ended
	s.sessions[token] = cloneSession(session)
	return cloneSession(session), nil
}

// --- AttendanceRepository implementation ---

// Upsert inserts the record unless one exists for the same session and
// trainee. The session state is checked under the same lock as the insert.
func (s *Storage) Upsert(ctx context.Context, record persistence.AttendanceRecord) (persistence.AttendanceRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[record.SessionToken]
	if !ok {
		return persistence.AttendanceRecord{}, false, persistence.ErrNotFound
	}

	byTrainee := s.records[record.SessionToken]
	if existing, ok := byTrainee[record.TraineeID]; ok {
		return cloneRecord(existing), false, nil
	}

	if session.State == persistence.StateEnded {
		return persistence.AttendanceRecord{}, false, persistence.ErrSessionEnded
	}

	if byTrainee == nil {
		byTrainee = make(map[string]persistence.AttendanceRecord)
		s.records[record.SessionToken] = byTrainee
	}

	byTrainee[record.TraineeID] = cloneRecord(record)
	return cloneRecord(record), true, nil
}

// Find retrieves the record for a session and trainee pair.
func (s *Storage) Find(ctx context.Context, sessionToken, traineeID string) (persistence.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[sessionToken][traineeID]
	if !ok {
		return persistence.AttendanceRecord{}, persistence.ErrNotFound
	}

	return cloneRecord(record), nil
}

// ListFor returns a session's records ordered by MarkedAt ascending.
func (s *Storage) ListFor(ctx context.Context, sessionToken string) ([]persistence.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byTrainee := s.records[sessionToken]
	records := make([]persistence.AttendanceRecord, 0, len(byTrainee))
	for _, record := range byTrainee {
		records = append(records, cloneRecord(record))
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].MarkedAt.Equal(records[j].MarkedAt) {
			return records[i].TraineeID < records[j].TraineeID
		}
		return records[i].MarkedAt.Before(records[j].MarkedAt)
	})

	return records, nil
}

// CountFor returns the number of records stored for a session.
func (s *Storage) CountFor(ctx context.Context, sessionToken string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.records[sessionToken]), nil
}

// --- TrainerRepository implementation ---

// CreateTrainer stores a new trainer account.
func (s *Storage) CreateTrainer(ctx context.Context, trainer persistence.Trainer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(trainer.Username)
	if _, ok := s.trainers[key]; ok {
		return persistence.ErrDuplicate
	}

	s.trainers[key] = trainer
	return nil
}

// GetTrainerByUsername retrieves a trainer account by username.
func (s *Storage) GetTrainerByUsername(ctx context.Context, username string) (persistence.Trainer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trainer, ok := s.trainers[strings.ToLower(username)]
	if !ok {
		return persistence.Trainer{}, persistence.ErrNotFound
	}

	return trainer, nil
}

// --- Helpers ---

func cloneSession(session persistence.Session) persistence.Session {
	clone := session
	if session.EndedAt != nil {
		ended := *session.EndedAt
		clone.EndedAt = &ended
	}
	return clone
}

func cloneRecord(record persistence.AttendanceRecord) persistence.AttendanceRecord {
	clone := record
	if record.Lat != nil {
		lat := *record.Lat
		clone.Lat = &lat
	}
	if record.Lon != nil {
		lon := *record.Lon
		clone.Lon = &lon
	}
	if record.DeviceMeta != nil {
		meta := make(map[string]string, len(record.DeviceMeta))
		for k, v := range record.DeviceMeta {
			meta[k] = v
		}
		clone.DeviceMeta = meta
	}
	return clone
}
