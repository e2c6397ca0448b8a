package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
)

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
	ctx := ContextWithLogger(context.Background(), logger)

	if got := FromContext(ctx); got != logger {
		t.Fatalf("FromContext returned %v, want the attached logger", got)
	}
	if got := FromContext(context.Background()); got != nil {
		t.Fatalf("expected nil for a bare context, got %v", got)
	}
}

func TestFromContextOr(t *testing.T) {
	t.Parallel()

	attached := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
	fallback := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))

	if got := FromContextOr(ContextWithLogger(context.Background(), attached), fallback); got != attached {
		t.Fatal("attached logger must win over the fallback")
	}
	if got := FromContextOr(context.Background(), fallback); got != fallback {
		t.Fatal("fallback logger must be used when none is attached")
	}
	if got := FromContextOr(context.Background(), nil); got == nil {
		t.Fatal("expected the default logger, got nil")
	}
}
