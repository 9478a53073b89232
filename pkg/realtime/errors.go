package realtime

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the realtime package.
var (
	// ErrMissingAPIKey indicates the API key was not provided.
	ErrMissingAPIKey = errors.New("realtime: API key is required")

	// ErrNotConnected indicates the socket is not open.
	ErrNotConnected = errors.New("realtime: not connected")

	// ErrConnectionClosed indicates the connection was closed unexpectedly.
	ErrConnectionClosed = errors.New("realtime: connection closed")

	// ErrPongTimeout indicates the keepalive ping went unanswered.
	ErrPongTimeout = errors.New("realtime: pong timeout")

	// ErrInvalidMessage indicates a malformed message was received.
	ErrInvalidMessage = errors.New("realtime: invalid message")
)

// APIError is an "error" event reported by the server.
type APIError struct {
	// Type is the error category, e.g. "invalid_request_error".
	Type string

	// Code is the error code from the API.
	Code string

	// Message is the human-readable error message.
	Message string

	// EventID is the client event that caused the error, if any.
	EventID string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("realtime: API error [%s]: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("realtime: API error: %s", e.Message)
}

// SessionFatal reports whether the error leaves the session unusable.
// The server does not classify errors, so any message mentioning the
// session is treated as fatal.
func (e *APIError) SessionFatal() bool {
	return strings.Contains(strings.ToLower(e.Message), "session")
}

// ConnectionError represents a websocket transport failure.
type ConnectionError struct {
	// Reason describes why the connection failed.
	Reason string

	// StatusCode is the HTTP status of a failed handshake, if any.
	StatusCode int

	// Cause is the underlying error.
	Cause error

	// Retryable indicates if reconnection should be attempted.
	Retryable bool
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("realtime: connection error: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("realtime: connection error: %s", e.Reason)
}

// Unwrap returns the underlying cause.
func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// NewConnectionError creates a new ConnectionError.
func NewConnectionError(reason string, cause error, retryable bool) *ConnectionError {
	return &ConnectionError{
		Reason:    reason,
		Cause:     cause,
		Retryable: retryable,
	}
}

// IsNotConnected returns true if the error indicates no connection.
func IsNotConnected(err error) bool {
	return errors.Is(err, ErrNotConnected) || errors.Is(err, ErrConnectionClosed)
}

// IsRetryable returns true if reconnecting may help.
func IsRetryable(err error) bool {
	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return connErr.Retryable
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.SessionFatal()
	}
	return errors.Is(err, ErrConnectionClosed) || errors.Is(err, ErrPongTimeout)
}
