package http

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/example/training-attendance/internal/application"
)

type validatorStub struct {
	principal application.Principal
	err       error
	seen      []string
}

func (v *validatorStub) ValidateToken(ctx context.Context, token string) (application.Principal, error) {
	v.seen = append(v.seen, token)
	if v.err != nil {
		return application.Principal{}, v.err
	}
	return v.principal, nil
}

func TestRequireTrainer(t *testing.T) {
	t.Parallel()

	capturePrincipal := func(dst *application.Principal, called *bool) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			*called = true
			if principal, ok := PrincipalFromContext(r.Context()); ok {
				*dst = principal
			}
			w.WriteHeader(http.StatusOK)
		})
	}

	t.Run("passes the principal through on a valid bearer token", func(t *testing.T) {
		t.Parallel()

		validator := &validatorStub{principal: application.Principal{TrainerID: "trainer-1", Username: "priya"}}
		var (
			got    application.Principal
			called bool
		)
		handler := RequireTrainer(validator, nil)(capturePrincipal(&got, &called))

		req := httptest.NewRequest(http.MethodGet, "/sessions/tok-1", nil)
		req.Header.Set("Authorization", "Bearer token-1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if !called {
			t.Fatal("expected the wrapped handler to run")
		}
		if got.TrainerID != "trainer-1" {
			t.Fatalf("expected principal in context, got %#v", got)
		}
		if len(validator.seen) != 1 || validator.seen[0] != "token-1" {
			t.Fatalf("expected the extracted token to reach the validator, got %#v", validator.seen)
		}
	})

	t.Run("accepts the token from the cookie", func(t *testing.T) {
		t.Parallel()

		validator := &validatorStub{principal: application.Principal{TrainerID: "trainer-1"}}
		var (
			got    application.Principal
			called bool
		)
		handler := RequireTrainer(validator, nil)(capturePrincipal(&got, &called))

		req := httptest.NewRequest(http.MethodGet, "/sessions/tok-1", nil)
		req.AddCookie(&http.Cookie{Name: "trainer_token", Value: "token-2"})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if !called {
			t.Fatal("expected the wrapped handler to run")
		}
		if len(validator.seen) != 1 || validator.seen[0] != "token-2" {
			t.Fatalf("expected the cookie token, got %#v", validator.seen)
		}
	})

	t.Run("rejects requests without a token", func(t *testing.T) {
		t.Parallel()

		validator := &validatorStub{}
		var (
			got    application.Principal
			called bool
		)
		handler := RequireTrainer(validator, nil)(capturePrincipal(&got, &called))

		req := httptest.NewRequest(http.MethodGet, "/sessions/tok-1", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
		if called {
			t.Fatal("wrapped handler must not run without a token")
		}
		if len(validator.seen) != 0 {
			t.Fatalf("validator must not be consulted without a token, got %#v", validator.seen)
		}
	})

	t.Run("rejects expired tokens", func(t *testing.T) {
		t.Parallel()

		validator := &validatorStub{err: application.ErrUnauthorized}
		var (
			got    application.Principal
			called bool
		)
		handler := RequireTrainer(validator, nil)(capturePrincipal(&got, &called))

		req := httptest.NewRequest(http.MethodGet, "/sessions/tok-1", nil)
		req.Header.Set("Authorization", "Bearer stale")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
		if called {
			t.Fatal("wrapped handler must not run with an expired token")
		}
		if !strings.Contains(rec.Body.String(), "AUTH_REQUIRED") {
			t.Fatalf("expected AUTH_REQUIRED error code, got %s", rec.Body.String())
		}
	})

	t.Run("maps validator faults to 500", func(t *testing.T) {
		t.Parallel()

		validator := &validatorStub{err: errors.New("backing store down")}
		var (
			got    application.Principal
			called bool
		)
		handler := RequireTrainer(validator, nil)(capturePrincipal(&got, &called))

		req := httptest.NewRequest(http.MethodGet, "/sessions/tok-1", nil)
		req.Header.Set("Authorization", "Bearer token-1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", rec.Code)
		}
		if called {
			t.Fatal("wrapped handler must not run when validation faults")
		}
	})
}

func TestRequestLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	var hadLogger bool
	handler := RequestLogger(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := LoggerFromContext(r.Context())
		hadLogger = logger != nil
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/join", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected the wrapped handler status, got %d", rec.Code)
	}
	if !hadLogger {
		t.Fatal("expected a request-scoped logger in the context")
	}

	logged := buf.String()
	if !strings.Contains(logged, "request started") || !strings.Contains(logged, "request completed") {
		t.Fatalf("expected start and completion lines, got %s", logged)
	}
	if !strings.Contains(logged, `"request_id"`) || !strings.Contains(logged, `"path":"/join"`) {
		t.Fatalf("expected request attributes in log lines, got %s", logged)
	}
}
