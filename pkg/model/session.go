package model

import "time"

// Role is the part a user plays when an alert goes out.
type Role string

const (
	RoleSender   Role = "sender"
	RoleReceiver Role = "receiver"
)

// ParseRole converts a wire value to a Role. Unknown values report false.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleSender, RoleReceiver:
		return Role(s), true
	}
	return "", false
}

// HomePath returns the web route a user with this role lands on after login.
func (r Role) HomePath() string {
	if r == RoleReceiver {
		return "/receiver"
	}
	return "/dashboard"
}

// Session represents the authenticated user on this client.
type Session struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	Token     string    `json:"-"` // backend access token, if login returned one
	TokenExp  time.Time `json:"-"` // zero when the backend did not say
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired reports whether the session has expired.
func (s *Session) IsExpired() bool {
	return !s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt)
}

// IsTokenExpired reports whether the backend token has expired.
func (s *Session) IsTokenExpired() bool {
	return !s.TokenExp.IsZero() && time.Now().After(s.TokenExp)
}

// Clone returns a copy that shares no state with s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
