package application

import "errors"

var (
	// ErrUnauthorized is returned when the caller lacks a valid trainer credential.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrNotFound is returned when the requested session or trainer does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrSessionEnded is returned when a join attempt targets a session that has ended.
	ErrSessionEnded = errors.New("application: session ended")
	// ErrAlreadyEnded is returned when EndSession targets a session that was already ended.
	ErrAlreadyEnded = errors.New("application: session already ended")
	// ErrOutOfRange is returned when a GPS join attempt falls outside the session geofence.
	ErrOutOfRange = errors.New("application: location out of range")
	// ErrLocationRequired is returned when a GPS join attempt omits the trainee location.
	ErrLocationRequired = errors.New("application: location required")
	// ErrNetworkMismatch is returned when a Wi-Fi join attempt reports an unexpected network.
	ErrNetworkMismatch = errors.New("application: network mismatch")
	// ErrResolutionFailed is returned when neither join mechanism accepts a code.
	ErrResolutionFailed = errors.New("application: code resolution failed")
	// ErrInvalidCredentials is returned when a login attempt presents a bad username or password.
	ErrInvalidCredentials = errors.New("application: invalid credentials")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}
