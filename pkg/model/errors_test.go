package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_Error(t *testing.T) {
	err := &Error{Op: "send alert", Kind: KindStatus, StatusCode: 503, Message: "busy"}
	want := "send alert: status (HTTP 503): busy"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("refresh: %w", &Error{Op: "list friends", Kind: KindTransport, Err: cause})
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the transport cause")
	}
	if KindOf(err) != KindTransport {
		t.Errorf("KindOf = %q, want %q", KindOf(err), KindTransport)
	}
}

func TestError_Retryable(t *testing.T) {
	tests := []struct {
		err  *Error
		want bool
	}{
		{&Error{Kind: KindTransport}, true},
		{&Error{Kind: KindStatus, StatusCode: 500}, true},
		{&Error{Kind: KindStatus, StatusCode: 429}, true},
		{&Error{Kind: KindStatus, StatusCode: 404}, false},
		{&Error{Kind: KindRejected}, false},
		{&Error{Kind: KindDecode}, false},
		{NewValidationError("login", "short password"), false},
	}
	for _, tt := range tests {
		if got := tt.err.Retryable(); got != tt.want {
			t.Errorf("%+v Retryable() = %v, want %v", tt.err, got, tt.want)
		}
	}
	if IsRetryable(errors.New("plain")) {
		t.Error("plain errors are not retryable")
	}
}

func TestUserMessage(t *testing.T) {
	if got := UserMessage(&Error{Kind: KindRejected, Message: "Invalid login credentials"}); got != "Invalid login credentials" {
		t.Errorf("rejected message = %q", got)
	}
	if got := UserMessage(&Error{Kind: KindStatus, StatusCode: 401}); got != "Check credentials." {
		t.Errorf("401 message = %q", got)
	}
	if got := UserMessage(NewNoSessionError("send alert")); got != "Please sign in first." {
		t.Errorf("no session message = %q", got)
	}
}
