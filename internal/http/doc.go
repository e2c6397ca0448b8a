// Package http provides HTTP handlers and middleware for the attendance API.
//
// The router exposes the following endpoints:
//   - POST /login: issues a trainer token. Body: {"username","password"}.
//     Response: {"token","expires_at","trainer"} with the token also surfaced
//     via the `X-Auth-Token` header and a `trainer_token` cookie.
//   - POST /logout: discards the current trainer token extracted from the
//     Authorization header or cookie. Returns 204 No Content.
//   - POST /sessions: opens a check-in session. Trainer authenticated.
//   - GET /sessions/{token}: returns the session with its attendee count.
//   - DELETE /sessions/{token}: ends the session; a second call returns 409.
//   - GET /sessions/{token}/attendance: returns the roster ordered by the time
//     each trainee was marked, suitable for repeated polling.
//   - POST /join: trainee-facing, unauthenticated. Body: {"code","trainee_id",
//     "location","device_meta"}. The code is resolved against the event join
//     collaborator first and the session token fallback second; the response
//     carries the outcome kind plus the event membership or attendance record.
//
// Request/response DTOs live alongside their respective handlers so tests and
// documentation share the same ground truth.
package http
