// Package roster keeps a live view of who has marked attendance for a
// session by polling the ledger on a fixed interval.
package roster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/training-attendance/internal/application"
	"github.com/example/training-attendance/internal/logging"
)

const defaultInterval = 3 * time.Second

// AttendanceSource exposes the session and ledger reads the syncer polls.
type AttendanceSource interface {
	GetSession(ctx context.Context, token string) (application.Session, error)
	ListAttendance(ctx context.Context, token string) ([]application.AttendanceRecord, error)
}

// Renderer receives each refreshed snapshot of the roster.
type Renderer interface {
	Render(session application.Session, records []application.AttendanceRecord) error
}

// Syncer polls the attendance ledger for one session and pushes every
// snapshot to the renderer until the session ends or the context is
// cancelled.
type Syncer struct {
	source   AttendanceSource
	renderer Renderer
	interval time.Duration
	logger   *slog.Logger
}

func NewSyncer(source AttendanceSource, renderer Renderer, interval time.Duration) *Syncer {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Syncer{
		source:   source,
		renderer: renderer,
		interval: interval,
		logger:   slog.Default(),
	}
}

// WithLogger replaces the logger used for sync progress and fetch failures.
func (s *Syncer) WithLogger(logger *slog.Logger) *Syncer {
	if s != nil && logger != nil {
		s.logger = logger
	}
	return s
}

// Run polls until the session ends or ctx is cancelled. The first snapshot
// is fetched immediately, subsequent ones on the configured interval. An
// unknown session token is fatal; transient fetch and render failures are
// logged and retried on the next tick. Once ctx is cancelled the renderer
// is never called again.
func (s *Syncer) Run(ctx context.Context, token string) error {
	if s == nil || s.source == nil || s.renderer == nil {
		return errors.New("roster: syncer is not configured")
	}

	logger := s.log(ctx, token)
	logger.InfoContext(ctx, "roster sync started", "interval", s.interval)

	ended, err := s.syncOnce(ctx, token)
	if err != nil {
		return err
	}
	if ended {
		logger.InfoContext(ctx, "roster sync finished", "reason", "session ended")
		return nil
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.InfoContext(ctx, "roster sync stopped", "reason", "context cancelled")
			return ctx.Err()
		case <-ticker.C:
			ended, err := s.syncOnce(ctx, token)
			if err != nil {
				return err
			}
			if ended {
				logger.InfoContext(ctx, "roster sync finished", "reason", "session ended")
				return nil
			}
		}
	}
}

// syncOnce fetches the session and its records and renders them. It reports
// whether the session has ended; the final snapshot for an ended session is
// still rendered so the roster shows the closing state. A snapshot whose
// context was cancelled mid-fetch is discarded without rendering.
func (s *Syncer) syncOnce(ctx context.Context, token string) (bool, error) {
	logger := s.log(ctx, token)

	session, err := s.source.GetSession(ctx, token)
	if err != nil {
		if errors.Is(err, application.ErrNotFound) {
			return false, fmt.Errorf("roster: session lookup failed: %w", err)
		}
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		logger.ErrorContext(ctx, "failed to refresh session, will retry", "error", err)
		return false, nil
	}

	records, err := s.source.ListAttendance(ctx, token)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		logger.ErrorContext(ctx, "failed to refresh attendance, will retry", "error", err)
		return false, nil
	}

	if err := ctx.Err(); err != nil {
		return false, err
	}

	if err := s.renderer.Render(session, records); err != nil {
		logger.ErrorContext(ctx, "failed to render roster, will retry", "error", err)
		return false, nil
	}

	return !session.Active(), nil
}

func (s *Syncer) log(ctx context.Context, token string) *slog.Logger {
	return logging.FromContextOr(ctx, s.logger).With("service", "RosterSyncer", "session_token", token)
}

// LogRenderer writes each roster snapshot as a structured log line. It is
// the headless renderer used when no display is attached.
type LogRenderer struct {
	logger *slog.Logger
}

func NewLogRenderer(logger *slog.Logger) *LogRenderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogRenderer{logger: logger}
}

func (r *LogRenderer) Render(session application.Session, records []application.AttendanceRecord) error {
	if r == nil || r.logger == nil {
		return nil
	}

	trainees := make([]string, 0, len(records))
	for _, record := range records {
		trainees = append(trainees, record.TraineeID)
	}

	r.logger.Info("roster snapshot",
		"session_token", session.Token,
		"state", string(session.State),
		"attendee_count", len(records),
		"trainees", trainees,
	)
	return nil
}
