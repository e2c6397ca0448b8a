package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/example/training-attendance/internal/application"
	"github.com/example/training-attendance/internal/geo"
)

type resolverService interface {
	Resolve(ctx context.Context, params application.ResolveParams) (application.JoinOutcome, error)
}

// JoinHandler exposes the trainee-facing join endpoint. It is unauthenticated;
// trainees identify themselves by their trainee ID.
type JoinHandler struct {
	service   resolverService
	responder responder
	logger    *slog.Logger
}

func NewJoinHandler(service resolverService, logger *slog.Logger) *JoinHandler {
	base := defaultLogger(logger)
	return &JoinHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *JoinHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "JoinHandler", operation, attrs...)
}

func (h *JoinHandler) Join(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Join", "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode join request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Join", "trainee_id", req.TraineeID)

	params := application.ResolveParams{
		RawCode:    req.Code,
		TraineeID:  req.TraineeID,
		DeviceMeta: req.DeviceMeta,
	}
	if req.Location != nil {
		params.Location = &geo.Point{Lat: req.Location.Lat, Lon: req.Location.Lon}
	}

	outcome, err := h.service.Resolve(r.Context(), params)
	if err != nil {
		logger.ErrorContext(r.Context(), "join resolution failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("outcome", string(outcome.Kind)).InfoContext(r.Context(), "join resolved")

	switch outcome.Kind {
	case application.OutcomeJoinedEvent:
		h.responder.writeJSON(r.Context(), w, http.StatusCreated, toJoinResponse(outcome))
	case application.OutcomeAlreadyJoined:
		h.responder.writeJSON(r.Context(), w, http.StatusOK, toJoinResponse(outcome))
	case application.OutcomeAttended:
		status := http.StatusCreated
		if outcome.AlreadyMarked {
			status = http.StatusOK
		}
		h.responder.writeJSON(r.Context(), w, status, toJoinResponse(outcome))
	case application.OutcomeFailed:
		h.responder.handleServiceError(r.Context(), w, outcome.Reason)
	default:
		h.responder.writeError(r.Context(), w, http.StatusInternalServerError, nil)
	}
}

type joinRequest struct {
	Code       string            `json:"code"`
	TraineeID  string            `json:"trainee_id"`
	Location   *pointDTO         `json:"location"`
	DeviceMeta map[string]string `json:"device_meta"`
}

type eventDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	TraineeID string `json:"trainee_id"`
}

type joinResponse struct {
	Outcome    string         `json:"outcome"`
	Event      *eventDTO      `json:"event,omitempty"`
	Attendance *attendanceDTO `json:"attendance,omitempty"`
}

func toJoinResponse(outcome application.JoinOutcome) joinResponse {
	resp := joinResponse{Outcome: string(outcome.Kind)}
	if outcome.Membership != nil {
		resp.Event = &eventDTO{
			ID:        outcome.Membership.EventID,
			Name:      outcome.Membership.EventName,
			TraineeID: outcome.Membership.TraineeID,
		}
	}
	if outcome.Record != nil {
		dto := toAttendanceDTO(*outcome.Record)
		resp.Attendance = &dto
	}
	return resp
}
