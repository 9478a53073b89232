package realtime

import (
	"errors"
	"fmt"
	"testing"
)

func TestAPIError_SessionFatal(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"Session expired", true},
		{"Your SESSION has ended", true},
		{"Invalid value for audio_end_ms", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			if got := (&APIError{Message: tt.msg}).SessionFatal(); got != tt.want {
				t.Errorf("SessionFatal(%q) = %v, want %v", tt.msg, got, tt.want)
			}
		})
	}
}

func TestErrorHelpers(t *testing.T) {
	cause := errors.New("connection refused")
	connErr := NewConnectionError("dial failed", cause, true)

	if !errors.Is(connErr, cause) {
		t.Error("ConnectionError should unwrap to its cause")
	}
	if !IsRetryable(fmt.Errorf("wrapped: %w", connErr)) {
		t.Error("retryable connection error not detected through wrapping")
	}
	if IsRetryable(NewConnectionError("bad url", nil, false)) {
		t.Error("non-retryable connection error reported retryable")
	}
	if !IsRetryable(&APIError{Message: "session closed"}) {
		t.Error("session-fatal API error should be retryable by reconnecting")
	}
	if !IsRetryable(ErrPongTimeout) {
		t.Error("pong timeout should be retryable")
	}
	if !IsNotConnected(fmt.Errorf("send: %w", ErrNotConnected)) {
		t.Error("IsNotConnected missed wrapped ErrNotConnected")
	}
	if IsNotConnected(cause) {
		t.Error("unrelated error reported as not connected")
	}

	apiErr := &APIError{Code: "invalid_value", Message: "bad"}
	if apiErr.Error() != "realtime: API error [invalid_value]: bad" {
		t.Errorf("unexpected message %q", apiErr.Error())
	}
}

func TestConnectionState_String(t *testing.T) {
	for s, want := range map[ConnectionState]string{
		StateDisconnected:   "disconnected",
		StateConnecting:     "connecting",
		StateOpen:           "open",
		ConnectionState(99): "unknown",
	} {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", s, s.String(), want)
		}
	}
}
