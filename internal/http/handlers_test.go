package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/example/training-attendance/internal/application"
	"github.com/example/training-attendance/internal/testfixtures"
)

type sessionServiceStub struct {
	createSession application.Session
	createErr     error

	getSession application.Session
	getErr     error

	endSession application.Session
	endErr     error

	records []application.AttendanceRecord
	listErr error

	count    int
	countErr error
}

func (s *sessionServiceStub) CreateSession(ctx context.Context, params application.CreateSessionParams) (application.Session, error) {
	if s.createErr != nil {
		return application.Session{}, s.createErr
	}
	return s.createSession, nil
}

func (s *sessionServiceStub) GetSession(ctx context.Context, token string) (application.Session, error) {
	if s.getErr != nil {
		return application.Session{}, s.getErr
	}
	return s.getSession, nil
}

func (s *sessionServiceStub) EndSession(ctx context.Context, params application.EndSessionParams) (application.Session, error) {
	if s.endErr != nil {
		return application.Session{}, s.endErr
	}
	return s.endSession, nil
}

func (s *sessionServiceStub) ListAttendance(ctx context.Context, token string) ([]application.AttendanceRecord, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.records, nil
}

func (s *sessionServiceStub) CountAttendance(ctx context.Context, token string) (int, error) {
	if s.countErr != nil {
		return 0, s.countErr
	}
	return s.count, nil
}

type resolverServiceStub struct {
	outcome application.JoinOutcome
	err     error
}

func (s *resolverServiceStub) Resolve(ctx context.Context, params application.ResolveParams) (application.JoinOutcome, error) {
	if s.err != nil {
		return application.JoinOutcome{}, s.err
	}
	return s.outcome, nil
}

type authServiceStub struct {
	result    application.LoginResult
	err       error
	loggedOut []string
}

func (s *authServiceStub) Login(ctx context.Context, params application.LoginParams) (application.LoginResult, error) {
	if s.err != nil {
		return application.LoginResult{}, s.err
	}
	return s.result, nil
}

func (s *authServiceStub) Logout(ctx context.Context, token string) {
	s.loggedOut = append(s.loggedOut, token)
}

// withPrincipal injects an authenticated trainer the way RequireTrainer would.
func withPrincipal(principal application.Principal) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

func newTestRouter(sessions sessionService, resolver resolverService, auth authService) http.Handler {
	cfg := RouterConfig{
		Middleware: []func(http.Handler) http.Handler{
			withPrincipal(application.Principal{TrainerID: "trainer-1", Username: "priya"}),
		},
	}
	if sessions != nil {
		cfg.Sessions = NewSessionHandler(sessions, nil)
	}
	if resolver != nil {
		cfg.Join = NewJoinHandler(resolver, nil)
	}
	if auth != nil {
		cfg.Auth = NewAuthHandler(auth, nil)
	}
	return NewRouter(cfg)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, into any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(into); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
}

func TestSessionHandlers(t *testing.T) {
	t.Parallel()

	t.Run("create returns the new session", func(t *testing.T) {
		t.Parallel()

		session := testfixtures.NewSessionFixture(
			testfixtures.WithSessionToken("tok-1"),
			testfixtures.WithSessionMode("gps"),
			testfixtures.WithSessionRadius(30),
		).Application()
		router := newTestRouter(&sessionServiceStub{createSession: session}, nil, nil)

		body := `{"training_ref":"training-1","mode":"gps","radius_meters":30,"anchor_location":{"lat":22.0797,"lon":82.1391}}`
		req := httptest.NewRequest(http.MethodPost, "/sessions", strings.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}

		var resp sessionResponse
		decodeBody(t, rec, &resp)
		if resp.Session.Token != "tok-1" || resp.Session.State != "active" {
			t.Fatalf("unexpected session payload: %#v", resp.Session)
		}
		if resp.Session.Anchor == nil || resp.Session.RadiusMeters != 30 {
			t.Fatalf("expected geofence fields for gps sessions: %#v", resp.Session)
		}
	})

	t.Run("create surfaces validation errors", func(t *testing.T) {
		t.Parallel()

		vErr := &application.ValidationError{FieldErrors: map[string]string{"radiusMeters": "radius must be a positive number of meters"}}
		router := newTestRouter(&sessionServiceStub{createErr: vErr}, nil, nil)

		req := httptest.NewRequest(http.MethodPost, "/sessions", strings.NewReader(`{"training_ref":"t","mode":"gps"}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", rec.Code)
		}

		var resp errorResponse
		decodeBody(t, rec, &resp)
		if _, ok := resp.Errors["radiusMeters"]; !ok {
			t.Fatalf("expected field errors, got %#v", resp)
		}
	})

	t.Run("create rejects malformed bodies", func(t *testing.T) {
		t.Parallel()

		router := newTestRouter(&sessionServiceStub{}, nil, nil)

		req := httptest.NewRequest(http.MethodPost, "/sessions", strings.NewReader("{"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("get includes the attendee count", func(t *testing.T) {
		t.Parallel()

		session := testfixtures.NewSessionFixture(testfixtures.WithSessionToken("tok-2")).Application()
		router := newTestRouter(&sessionServiceStub{getSession: session, count: 4}, nil, nil)

		req := httptest.NewRequest(http.MethodGet, "/sessions/tok-2", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		var resp sessionResponse
		decodeBody(t, rec, &resp)
		if resp.Session.AttendeeCount != 4 {
			t.Fatalf("expected attendee count 4, got %#v", resp.Session)
		}
	})

	t.Run("get maps unknown sessions to 404", func(t *testing.T) {
		t.Parallel()

		router := newTestRouter(&sessionServiceStub{getErr: application.ErrNotFound}, nil, nil)

		req := httptest.NewRequest(http.MethodGet, "/sessions/absent", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("delete ends the session once", func(t *testing.T) {
		t.Parallel()

		endedAt := testfixtures.ReferenceTime()
		session := testfixtures.NewSessionFixture(
			testfixtures.WithSessionToken("tok-3"),
			testfixtures.WithSessionEndedAt(endedAt),
		).Application()
		router := newTestRouter(&sessionServiceStub{endSession: session}, nil, nil)

		req := httptest.NewRequest(http.MethodDelete, "/sessions/tok-3", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		var resp sessionResponse
		decodeBody(t, rec, &resp)
		if resp.Session.State != "ended" || resp.Session.EndedAt == "" {
			t.Fatalf("unexpected payload: %#v", resp.Session)
		}
	})

	t.Run("double delete maps to 409", func(t *testing.T) {
		t.Parallel()

		router := newTestRouter(&sessionServiceStub{endErr: application.ErrAlreadyEnded}, nil, nil)

		req := httptest.NewRequest(http.MethodDelete, "/sessions/tok-3", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
	})

	t.Run("roster returns the ordered records", func(t *testing.T) {
		t.Parallel()

		base := testfixtures.ReferenceTime()
		records := []application.AttendanceRecord{
			testfixtures.NewAttendanceFixture(
				testfixtures.WithRecordSession("tok-4"),
				testfixtures.WithRecordTrainee("trainee-a"),
				testfixtures.WithRecordMarkedAt(base),
			).Application(),
			testfixtures.NewAttendanceFixture(
				testfixtures.WithRecordSession("tok-4"),
				testfixtures.WithRecordTrainee("trainee-b"),
				testfixtures.WithRecordMarkedAt(base.Add(time.Second)),
			).Application(),
		}
		router := newTestRouter(&sessionServiceStub{records: records}, nil, nil)

		req := httptest.NewRequest(http.MethodGet, "/sessions/tok-4/attendance", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		var resp rosterResponse
		decodeBody(t, rec, &resp)
		if resp.Count != 2 || len(resp.Records) != 2 {
			t.Fatalf("unexpected roster: %#v", resp)
		}
		if resp.Records[0].TraineeID != "trainee-a" || resp.Records[1].TraineeID != "trainee-b" {
			t.Fatalf("unexpected order: %#v", resp.Records)
		}
	})

	t.Run("rejects unsupported methods", func(t *testing.T) {
		t.Parallel()

		router := newTestRouter(&sessionServiceStub{}, nil, nil)

		req := httptest.NewRequest(http.MethodPut, "/sessions/tok-5", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("expected 405, got %d", rec.Code)
		}
	})
}

func TestJoinHandler(t *testing.T) {
	t.Parallel()

	joinBody := `{"code":"CODE-1","trainee_id":"trainee-1"}`

	postJoin := func(router http.Handler, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/join", strings.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	t.Run("first event join returns 201", func(t *testing.T) {
		t.Parallel()

		outcome := application.JoinOutcome{
			Kind:       application.OutcomeJoinedEvent,
			Membership: &application.EventMembership{EventID: "event-1", TraineeID: "trainee-1"},
		}
		rec := postJoin(newTestRouter(nil, &resolverServiceStub{outcome: outcome}, nil), joinBody)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d", rec.Code)
		}

		var resp joinResponse
		decodeBody(t, rec, &resp)
		if resp.Outcome != "joined_event" || resp.Event == nil || resp.Event.ID != "event-1" {
			t.Fatalf("unexpected payload: %#v", resp)
		}
	})

	t.Run("repeat event join returns 200", func(t *testing.T) {
		t.Parallel()

		outcome := application.JoinOutcome{
			Kind:       application.OutcomeAlreadyJoined,
			Membership: &application.EventMembership{EventID: "event-1", TraineeID: "trainee-1"},
		}
		rec := postJoin(newTestRouter(nil, &resolverServiceStub{outcome: outcome}, nil), joinBody)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("attendance returns 201 then 200 on repeats", func(t *testing.T) {
		t.Parallel()

		record := testfixtures.NewAttendanceFixture(testfixtures.WithRecordSession("tok-1")).Application()

		first := application.JoinOutcome{Kind: application.OutcomeAttended, Record: &record}
		rec := postJoin(newTestRouter(nil, &resolverServiceStub{outcome: first}, nil), joinBody)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201 for first attendance, got %d", rec.Code)
		}

		repeat := application.JoinOutcome{Kind: application.OutcomeAttended, Record: &record, AlreadyMarked: true}
		rec = postJoin(newTestRouter(nil, &resolverServiceStub{outcome: repeat}, nil), joinBody)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 for repeat attendance, got %d", rec.Code)
		}

		var resp joinResponse
		decodeBody(t, rec, &resp)
		if resp.Attendance == nil || resp.Attendance.SessionToken != "tok-1" {
			t.Fatalf("unexpected payload: %#v", resp)
		}
	})

	t.Run("maps rejection reasons to statuses", func(t *testing.T) {
		t.Parallel()

		cases := []struct {
			reason error
			status int
		}{
			{fmt.Errorf("%w: 52.3m from anchor exceeds 30m radius", application.ErrOutOfRange), http.StatusForbidden},
			{application.ErrNetworkMismatch, http.StatusForbidden},
			{application.ErrSessionEnded, http.StatusConflict},
			{application.ErrLocationRequired, http.StatusUnprocessableEntity},
			{application.ErrResolutionFailed, http.StatusNotFound},
		}
		for _, tc := range cases {
			outcome := application.JoinOutcome{Kind: application.OutcomeFailed, Reason: tc.reason}
			rec := postJoin(newTestRouter(nil, &resolverServiceStub{outcome: outcome}, nil), joinBody)
			if rec.Code != tc.status {
				t.Fatalf("expected %d for %v, got %d", tc.status, tc.reason, rec.Code)
			}
		}
	})

	t.Run("validation errors map to 422", func(t *testing.T) {
		t.Parallel()

		vErr := &application.ValidationError{FieldErrors: map[string]string{"code": "join code is required"}}
		rec := postJoin(newTestRouter(nil, &resolverServiceStub{err: vErr}, nil), `{"trainee_id":"trainee-1"}`)

		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", rec.Code)
		}
	})

	t.Run("faults map to 500", func(t *testing.T) {
		t.Parallel()

		rec := postJoin(newTestRouter(nil, &resolverServiceStub{err: errors.New("storage unavailable")}, nil), joinBody)

		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", rec.Code)
		}
	})
}

func TestAuthHandlers(t *testing.T) {
	t.Parallel()

	t.Run("login issues the token via body, header and cookie", func(t *testing.T) {
		t.Parallel()

		expires := testfixtures.ReferenceTime().Add(12 * time.Hour)
		auth := &authServiceStub{result: application.LoginResult{
			Trainer:   application.Trainer{ID: "trainer-1", Username: "priya"},
			Token:     "token-1",
			ExpiresAt: expires,
		}}
		router := newTestRouter(nil, nil, auth)

		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"username":"Priya","password":"hunter2"}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		if rec.Header().Get("X-Auth-Token") != "token-1" {
			t.Fatalf("expected token header, got %q", rec.Header().Get("X-Auth-Token"))
		}

		var resp loginResponse
		decodeBody(t, rec, &resp)
		if resp.Token != "token-1" || resp.Trainer.ID != "trainer-1" {
			t.Fatalf("unexpected payload: %#v", resp)
		}

		cookies := rec.Result().Cookies()
		found := false
		for _, cookie := range cookies {
			if cookie.Name == "trainer_token" && cookie.Value == "token-1" {
				found = true
			}
		}
		if !found {
			t.Fatalf("expected trainer_token cookie, got %#v", cookies)
		}
	})

	t.Run("invalid credentials map to 401", func(t *testing.T) {
		t.Parallel()

		router := newTestRouter(nil, nil, &authServiceStub{err: application.ErrInvalidCredentials})

		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"username":"priya","password":"wrong"}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("logout discards the presented token", func(t *testing.T) {
		t.Parallel()

		auth := &authServiceStub{}
		router := newTestRouter(nil, nil, auth)

		req := httptest.NewRequest(http.MethodPost, "/logout", nil)
		req.Header.Set("Authorization", "Bearer token-1")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", rec.Code)
		}
		if len(auth.loggedOut) != 1 || auth.loggedOut[0] != "token-1" {
			t.Fatalf("expected logout call, got %#v", auth.loggedOut)
		}
	})

	t.Run("logout without a token is unauthorized", func(t *testing.T) {
		t.Parallel()

		router := newTestRouter(nil, nil, &authServiceStub{})

		req := httptest.NewRequest(http.MethodPost, "/logout", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})
}
