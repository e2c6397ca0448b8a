package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/training-attendance/internal/application"
	"github.com/example/training-attendance/internal/geo"
)

type sessionService interface {
	CreateSession(ctx context.Context, params application.CreateSessionParams) (application.Session, error)
	GetSession(ctx context.Context, token string) (application.Session, error)
	EndSession(ctx context.Context, params application.EndSessionParams) (application.Session, error)
	ListAttendance(ctx context.Context, token string) ([]application.AttendanceRecord, error)
	CountAttendance(ctx context.Context, token string) (int, error)
}

// SessionHandler exposes the trainer-facing session lifecycle and roster reads.
type SessionHandler struct {
	service   sessionService
	responder responder
	logger    *slog.Logger
}

func NewSessionHandler(service sessionService, logger *slog.Logger) *SessionHandler {
	base := defaultLogger(logger)
	return &SessionHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *SessionHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "SessionHandler", operation, attrs...)
}

func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Create", "trainer_id", principal.TrainerID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode session request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Create", "trainer_id", principal.TrainerID)

	session, err := h.service.CreateSession(r.Context(), application.CreateSessionParams{
		Principal: principal,
		Input:     req.toInput(),
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "session creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("session_token", session.Token).InfoContext(r.Context(), "session created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, sessionResponse{Session: toSessionDTO(session, 0)})
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request, token string) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	token = strings.TrimSpace(token)
	if token == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingSession)
		return
	}

	logger := h.log(r.Context(), "Get", "session_token", token)

	session, err := h.service.GetSession(r.Context(), token)
	if err != nil {
		logger.ErrorContext(r.Context(), "session lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	count, err := h.service.CountAttendance(r.Context(), token)
	if err != nil {
		logger.ErrorContext(r.Context(), "attendance count failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, sessionResponse{Session: toSessionDTO(session, count)})
}

func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request, token string) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	token = strings.TrimSpace(token)
	if token == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingSession)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "End", "trainer_id", principal.TrainerID, "session_token", token)

	session, err := h.service.EndSession(r.Context(), application.EndSessionParams{
		Principal: principal,
		Token:     token,
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "session end failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "session ended")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, sessionResponse{Session: toSessionDTO(session, 0)})
}

func (h *SessionHandler) Roster(w http.ResponseWriter, r *http.Request, token string) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	token = strings.TrimSpace(token)
	if token == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingSession)
		return
	}

	logger := h.log(r.Context(), "Roster", "session_token", token)

	records, err := h.service.ListAttendance(r.Context(), token)
	if err != nil {
		logger.ErrorContext(r.Context(), "roster fetch failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	dtos := make([]attendanceDTO, 0, len(records))
	for _, record := range records {
		dtos = append(dtos, toAttendanceDTO(record))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, rosterResponse{Records: dtos, Count: len(dtos)})
}

type pointDTO struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type sessionRequest struct {
	TrainingRef  string    `json:"training_ref"`
	Mode         string    `json:"mode"`
	RadiusMeters int       `json:"radius_meters"`
	Anchor       *pointDTO `json:"anchor_location"`
	HotspotID    string    `json:"hotspot_id"`
}

func (req sessionRequest) toInput() application.SessionInput {
	input := application.SessionInput{
		TrainingRef:  req.TrainingRef,
		Mode:         application.Mode(req.Mode),
		RadiusMeters: req.RadiusMeters,
		HotspotID:    req.HotspotID,
	}
	if req.Anchor != nil {
		input.Anchor = geo.Point{Lat: req.Anchor.Lat, Lon: req.Anchor.Lon}
	}
	return input
}

type sessionDTO struct {
	Token         string    `json:"token"`
	TrainingRef   string    `json:"training_ref"`
	Mode          string    `json:"mode"`
	RadiusMeters  int       `json:"radius_meters,omitempty"`
	Anchor        *pointDTO `json:"anchor_location,omitempty"`
	HotspotID     string    `json:"hotspot_id,omitempty"`
	State         string    `json:"state"`
	StartedAt     string    `json:"started_at"`
	EndedAt       string    `json:"ended_at,omitempty"`
	AttendeeCount int       `json:"attendee_count"`
}

type sessionResponse struct {
	Session sessionDTO `json:"session"`
}

func toSessionDTO(session application.Session, count int) sessionDTO {
	dto := sessionDTO{
		Token:         session.Token,
		TrainingRef:   session.TrainingRef,
		Mode:          string(session.Mode),
		State:         string(session.State),
		StartedAt:     session.StartedAt.UTC().Format(time.RFC3339Nano),
		AttendeeCount: count,
	}
	if session.Mode == application.ModeGPS {
		dto.RadiusMeters = session.RadiusMeters
		dto.Anchor = &pointDTO{Lat: session.Anchor.Lat, Lon: session.Anchor.Lon}
	}
	if session.Mode == application.ModeWifi {
		dto.HotspotID = session.HotspotID
	}
	if session.EndedAt != nil {
		dto.EndedAt = session.EndedAt.UTC().Format(time.RFC3339Nano)
	}
	return dto
}

type attendanceDTO struct {
	ID           string            `json:"id"`
	SessionToken string            `json:"session_token"`
	TraineeID    string            `json:"trainee_id"`
	Method       string            `json:"method"`
	DeviceMeta   map[string]string `json:"device_meta,omitempty"`
	Location     *pointDTO         `json:"location,omitempty"`
	MarkedAt     string            `json:"marked_at"`
}

type rosterResponse struct {
	Records []attendanceDTO `json:"records"`
	Count   int             `json:"count"`
}

func toAttendanceDTO(record application.AttendanceRecord) attendanceDTO {
	dto := attendanceDTO{
		ID:           record.ID,
		SessionToken: record.SessionToken,
		TraineeID:    record.TraineeID,
		Method:       string(record.Method),
		DeviceMeta:   record.DeviceMeta,
		MarkedAt:     record.MarkedAt.UTC().Format(time.RFC3339Nano),
	}
	if record.Location != nil {
		dto.Location = &pointDTO{Lat: record.Location.Lat, Lon: record.Location.Lon}
	}
	return dto
}
