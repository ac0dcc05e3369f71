package model

import (
	"testing"
	"time"
)

func TestSession_Expiry(t *testing.T) {
	s := &Session{ID: "u1"}
	if s.IsExpired() || s.IsTokenExpired() {
		t.Error("zero expiry times never expire")
	}
	s.ExpiresAt = time.Now().Add(-time.Minute)
	s.TokenExp = time.Now().Add(-time.Minute)
	if !s.IsExpired() || !s.IsTokenExpired() {
		t.Error("past expiry times should expire")
	}
}

func TestParseRole(t *testing.T) {
	if r, ok := ParseRole("receiver"); !ok || r != RoleReceiver {
		t.Errorf("ParseRole(receiver) = %q, %v", r, ok)
	}
	if _, ok := ParseRole("admin"); ok {
		t.Error("admin is not a Luna role")
	}
	if RoleReceiver.HomePath() != "/receiver" || RoleSender.HomePath() != "/dashboard" {
		t.Error("unexpected home paths")
	}
}
