// Package events talks to the external event directory that owns
// event-level join codes. Session tokens are resolved locally; event codes
// are resolved here.
package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/training-attendance/internal/application"
)

// ErrDisabled reports that no event directory is configured. The resolver
// treats it like any other event-join failure and falls through to the
// session token lookup.
var ErrDisabled = errors.New("events: event directory is not configured")

// ErrUnknownCode reports that the directory does not recognise the code.
var ErrUnknownCode = errors.New("events: code is not an event join code")

// Client joins trainees to events over the directory's HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	if c != nil && httpClient != nil {
		c.httpClient = httpClient
	}
	return c
}

type joinEventRequest struct {
	Code      string `json:"code"`
	TraineeID string `json:"trainee_id"`
}

type joinEventResponse struct {
	EventID       string `json:"event_id"`
	EventName     string `json:"event_name"`
	TraineeID     string `json:"trainee_id"`
	AlreadyJoined bool   `json:"already_joined"`
}

// JoinEventByCode asks the directory to enroll the trainee under the code.
// A 404 from the directory means the code is not an event code.
func (c *Client) JoinEventByCode(ctx context.Context, code, traineeID string) (application.EventJoinResult, error) {
	if c == nil || c.baseURL == "" {
		return application.EventJoinResult{}, ErrDisabled
	}

	payload, err := json.Marshal(joinEventRequest{Code: code, TraineeID: traineeID})
	if err != nil {
		return application.EventJoinResult{}, fmt.Errorf("events: failed to encode join request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/events/join", bytes.NewReader(payload))
	if err != nil {
		return application.EventJoinResult{}, fmt.Errorf("events: failed to build join request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return application.EventJoinResult{}, fmt.Errorf("events: join request failed: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		var body joinEventResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return application.EventJoinResult{}, fmt.Errorf("events: failed to decode join response: %w", err)
		}
		return application.EventJoinResult{
			Membership: application.EventMembership{
				EventID:   body.EventID,
				EventName: body.EventName,
				TraineeID: body.TraineeID,
			},
			AlreadyJoined: body.AlreadyJoined,
		}, nil
	case http.StatusNotFound:
		return application.EventJoinResult{}, ErrUnknownCode
	default:
		c.logger.ErrorContext(ctx, "event directory rejected the join request", "status", resp.StatusCode)
		return application.EventJoinResult{}, fmt.Errorf("events: directory returned status %d", resp.StatusCode)
	}
}

// Disabled is the joiner used when no directory is configured. Every code
// falls through to the session token lookup.
type Disabled struct{}

func (Disabled) JoinEventByCode(ctx context.Context, code, traineeID string) (application.EventJoinResult, error) {
	return application.EventJoinResult{}, ErrDisabled
}
