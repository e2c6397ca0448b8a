package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/example/training-attendance/internal/application"
	"github.com/example/training-attendance/internal/config"
	"github.com/example/training-attendance/internal/events"
	"github.com/example/training-attendance/internal/geo"
	httptransport "github.com/example/training-attendance/internal/http"
	"github.com/example/training-attendance/internal/persistence"
	"github.com/example/training-attendance/internal/persistence/memory"
	"github.com/example/training-attendance/internal/persistence/sqlite"
	"github.com/example/training-attendance/internal/roster"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Local .env files are optional; the environment always wins.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	storage, err := openStorage(cfg.SQLiteDSN)
	if err != nil {
		logger.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		if cerr := storage.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	if err := storage.Migrate(context.Background()); err != nil {
		logger.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}

	idGenerator := uuid.NewString
	sessionTokenGenerator := func() string { return randomHex(cfg.SessionTokenBytes) }
	authTokenGenerator := func() string { return randomHex(32) }
	now := time.Now

	sessionStore := newSessionStoreAdapter(storage)
	ledger := newLedgerAdapter(storage)
	trainerDirectory := newTrainerDirectoryAdapter(storage)

	sessionService := application.NewSessionServiceWithLogger(sessionStore, ledger, sessionTokenGenerator, now, logger)
	admissionService := application.NewAdmissionServiceWithLogger(ledger, application.DefaultNetworkPolicy, idGenerator, now, logger)

	var joiner application.EventJoiner = events.Disabled{}
	if cfg.EventDirectoryURL != "" {
		joiner = events.NewClient(cfg.EventDirectoryURL, logger)
	}
	resolverService := application.NewResolverServiceWithLogger(joiner, sessionService, admissionService, logger)

	authService := application.NewAuthServiceWithLogger(trainerDirectory, application.VerifyPassword, authTokenGenerator, idGenerator, now, cfg.TokenTTL, logger)
	if cfg.BootstrapUsername != "" {
		if err := authService.EnsureTrainer(ctx, cfg.BootstrapUsername, cfg.BootstrapPassword, cfg.BootstrapUsername); err != nil {
			logger.Error("failed to bootstrap trainer account", "error", err)
			os.Exit(1)
		}
	}

	authHandler := httptransport.NewAuthHandler(authService, logger)
	sessionHandler := httptransport.NewSessionHandler(sessionService, logger)
	joinHandler := httptransport.NewJoinHandler(resolverService, logger)

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Auth:     authHandler,
		Sessions: sessionHandler,
		Join:     joinHandler,
	})

	// Trainees hit /join and trainers hit /login without a token; everything
	// else requires an authenticated trainer.
	protected := httptransport.RequireTrainer(authService, logger)(router)
	handler := httptransport.RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.EqualFold(r.URL.Path, "/login") || strings.EqualFold(r.URL.Path, "/join") {
			router.ServeHTTP(w, r)
			return
		}
		protected.ServeHTTP(w, r)
	}))

	if cfg.RosterSession != "" {
		syncer := roster.NewSyncer(sessionService, roster.NewLogRenderer(logger), cfg.RosterInterval).WithLogger(logger)
		go func() {
			if err := syncer.Run(ctx, cfg.RosterSession); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("roster sync stopped", "error", err)
			}
		}()
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("attendance API listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server encountered error", "error", err)
		os.Exit(1)
	}
}

// storageBackend is the surface shared by the sqlite and in-memory stores.
type storageBackend interface {
	Close() error
	Migrate(ctx context.Context) error
	persistence.SessionRepository
	persistence.AttendanceRepository
	persistence.TrainerRepository
}

// openStorage picks the backend from the DSN. The literal "memory" selects
// the in-process store, which is handy for demos and throwaway environments.
func openStorage(dsn string) (storageBackend, error) {
	if strings.EqualFold(strings.TrimSpace(dsn), "memory") {
		return memory.Open(), nil
	}
	return sqlite.Open(dsn)
}

func randomHex(bytes int) string {
	if bytes <= 0 {
		bytes = 16
	}
	buf := make([]byte, bytes)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return fmt.Sprintf("fallback-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}

type sessionStoreAdapter struct {
	repo persistence.SessionRepository
}

func newSessionStoreAdapter(repo persistence.SessionRepository) *sessionStoreAdapter {
	return &sessionStoreAdapter{repo: repo}
}

func (a *sessionStoreAdapter) CreateSession(ctx context.Context, session application.Session) (application.Session, error) {
	stored, err := a.repo.CreateSession(ctx, toPersistenceSession(session))
	if err != nil {
		return application.Session{}, err
	}
	return toApplicationSession(stored), nil
}

func (a *sessionStoreAdapter) GetSession(ctx context.Context, token string) (application.Session, error) {
	stored, err := a.repo.GetSession(ctx, token)
	if err != nil {
		return application.Session{}, err
	}
	return toApplicationSession(stored), nil
}

func (a *sessionStoreAdapter) EndSession(ctx context.Context, token string, endedAt time.Time) (application.Session, error) {
	stored, err := a.repo.EndSession(ctx, token, endedAt)
	if err != nil {
		return application.Session{}, err
	}
	return toApplicationSession(stored), nil
}

type ledgerAdapter struct {
	repo persistence.AttendanceRepository
}

func newLedgerAdapter(repo persistence.AttendanceRepository) *ledgerAdapter {
	return &ledgerAdapter{repo: repo}
}

func (a *ledgerAdapter) Upsert(ctx context.Context, record application.AttendanceRecord) (application.AttendanceRecord, bool, error) {
	stored, inserted, err := a.repo.Upsert(ctx, toPersistenceRecord(record))
	if err != nil {
		return application.AttendanceRecord{}, false, err
	}
	return toApplicationRecord(stored), inserted, nil
}

func (a *ledgerAdapter) Find(ctx context.Context, sessionToken, traineeID string) (application.AttendanceRecord, error) {
	stored, err := a.repo.Find(ctx, sessionToken, traineeID)
	if err != nil {
		return application.AttendanceRecord{}, err
	}
	return toApplicationRecord(stored), nil
}

func (a *ledgerAdapter) ListFor(ctx context.Context, sessionToken string) ([]application.AttendanceRecord, error) {
	models, err := a.repo.ListFor(ctx, sessionToken)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	records := make([]application.AttendanceRecord, 0, len(models))
	for _, model := range models {
		records = append(records, toApplicationRecord(model))
	}
	return records, nil
}

func (a *ledgerAdapter) CountFor(ctx context.Context, sessionToken string) (int, error) {
	return a.repo.CountFor(ctx, sessionToken)
}

type trainerDirectoryAdapter struct {
	repo persistence.TrainerRepository
}

func newTrainerDirectoryAdapter(repo persistence.TrainerRepository) *trainerDirectoryAdapter {
	return &trainerDirectoryAdapter{repo: repo}
}

func (a *trainerDirectoryAdapter) GetTrainerCredentialsByUsername(ctx context.Context, username string) (application.TrainerCredentials, error) {
	stored, err := a.repo.GetTrainerByUsername(ctx, username)
	if err != nil {
		return application.TrainerCredentials{}, err
	}
	return application.TrainerCredentials{
		Trainer: application.Trainer{
			ID:          stored.ID,
			Username:    stored.Username,
			DisplayName: stored.DisplayName,
			CreatedAt:   stored.CreatedAt,
		},
		PasswordHash: stored.PasswordHash,
	}, nil
}

func (a *trainerDirectoryAdapter) CreateTrainer(ctx context.Context, creds application.TrainerCredentials) error {
	return a.repo.CreateTrainer(ctx, persistence.Trainer{
		ID:           creds.Trainer.ID,
		Username:     creds.Trainer.Username,
		DisplayName:  creds.Trainer.DisplayName,
		PasswordHash: creds.PasswordHash,
		CreatedAt:    creds.Trainer.CreatedAt,
	})
}

func toApplicationSession(model persistence.Session) application.Session {
	return application.Session{
		Token:        model.Token,
		TrainingRef:  model.TrainingRef,
		Mode:         application.Mode(model.Mode),
		RadiusMeters: model.RadiusMeters,
		Anchor:       geo.Point{Lat: model.AnchorLat, Lon: model.AnchorLon},
		HotspotID:    model.HotspotID,
		State:        application.SessionState(model.State),
		CreatedBy:    model.CreatedBy,
		StartedAt:    model.StartedAt,
		EndedAt:      cloneTime(model.EndedAt),
	}
}

func toPersistenceSession(session application.Session) persistence.Session {
	return persistence.Session{
		Token:        session.Token,
		TrainingRef:  session.TrainingRef,
		Mode:         string(session.Mode),
		RadiusMeters: session.RadiusMeters,
		AnchorLat:    session.Anchor.Lat,
		AnchorLon:    session.Anchor.Lon,
		HotspotID:    session.HotspotID,
		State:        string(session.State),
		CreatedBy:    session.CreatedBy,
		StartedAt:    session.StartedAt,
		EndedAt:      cloneTime(session.EndedAt),
	}
}

func toApplicationRecord(model persistence.AttendanceRecord) application.AttendanceRecord {
	record := application.AttendanceRecord{
		ID:           model.ID,
		SessionToken: model.SessionToken,
		TraineeID:    model.TraineeID,
		Method:       application.Mode(model.Method),
		DeviceMeta:   cloneMeta(model.DeviceMeta),
		MarkedAt:     model.MarkedAt,
	}
	if model.Lat != nil && model.Lon != nil {
		record.Location = &geo.Point{Lat: *model.Lat, Lon: *model.Lon}
	}
	return record
}

func toPersistenceRecord(record application.AttendanceRecord) persistence.AttendanceRecord {
	model := persistence.AttendanceRecord{
		ID:           record.ID,
		SessionToken: record.SessionToken,
		TraineeID:    record.TraineeID,
		Method:       string(record.Method),
		DeviceMeta:   cloneMeta(record.DeviceMeta),
		MarkedAt:     record.MarkedAt,
	}
	if record.Location != nil {
		lat, lon := record.Location.Lat, record.Location.Lon
		model.Lat, model.Lon = &lat, &lon
	}
	return model
}

func cloneMeta(meta map[string]string) map[string]string {
	if len(meta) == 0 {
		return nil
	}
	clone := make(map[string]string, len(meta))
	for key, value := range meta {
		clone[key] = value
	}
	return clone
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}
