package ui

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/me/luna/internal/controller"
	"github.com/me/luna/internal/store"
)

// SessionCookieName is the name of the browser session cookie.
const SessionCookieName = "luna_session"

// ControllerFactory builds an unauthenticated controller whose session is
// persisted under profile.
type ControllerFactory func(profile string) *controller.Controller

type entry struct {
	ctl      *controller.Controller
	lastSeen time.Time
}

// SessionManager maps browser cookies to controllers. Each cookie gets its
// own controller, polling loop and persisted session profile, so a restart
// of the web server resumes signed-in browsers from the store.
type SessionManager struct {
	store   store.Store
	factory ControllerFactory

	mu      sync.Mutex
	entries map[string]*entry
}

// NewSessionManager creates a new session manager.
func NewSessionManager(st store.Store, factory ControllerFactory) *SessionManager {
	return &SessionManager{
		store:   st,
		factory: factory,
		entries: make(map[string]*entry),
	}
}

func profileFor(cookieID string) string {
	return "web:" + cookieID
}

// Lookup returns the signed-in controller for cookieID, resuming it from
// the store if needed. Returns nil when the cookie has no live session.
func (sm *SessionManager) Lookup(ctx context.Context, cookieID string) (*controller.Controller, error) {
	if cookieID == "" {
		return nil, nil
	}
	sm.mu.Lock()
	e, ok := sm.entries[cookieID]
	if ok {
		e.lastSeen = time.Now()
	}
	sm.mu.Unlock()

	if ok {
		sess := e.ctl.Session()
		if sess == nil {
			return nil, nil
		}
		if sess.IsExpired() || sess.IsTokenExpired() {
			return nil, sm.End(ctx, cookieID)
		}
		return e.ctl, nil
	}

	ctl := sm.factory(profileFor(cookieID))
	resumed, err := ctl.Resume(ctx)
	if err != nil || !resumed {
		ctl.Close()
		return nil, err
	}
	return sm.adopt(cookieID, ctl), nil
}

// adopt registers ctl under cookieID unless another request got there
// first, in which case ctl is closed and the existing one returned.
func (sm *SessionManager) adopt(cookieID string, ctl *controller.Controller) *controller.Controller {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if e, ok := sm.entries[cookieID]; ok {
		ctl.Close()
		e.lastSeen = time.Now()
		return e.ctl
	}
	sm.entries[cookieID] = &entry{ctl: ctl, lastSeen: time.Now()}
	return ctl
}

// Begin returns a new cookie ID and a controller to sign in with. The
// controller is not registered until Establish, so a failed sign-in only
// needs ctl.Close.
func (sm *SessionManager) Begin() (string, *controller.Controller) {
	id := uuid.NewString()
	return id, sm.factory(profileFor(id))
}

// Establish registers a signed-in controller under cookieID. Any session the
// browser held under previousID is ended, so a cookie issued before sign-in
// never becomes a signed-in session.
func (sm *SessionManager) Establish(ctx context.Context, cookieID string, ctl *controller.Controller, previousID string) error {
	sm.adopt(cookieID, ctl)
	if previousID == "" || previousID == cookieID {
		return nil
	}
	return sm.End(ctx, previousID)
}

// End signs cookieID out and forgets its controller.
func (sm *SessionManager) End(ctx context.Context, cookieID string) error {
	sm.mu.Lock()
	e, ok := sm.entries[cookieID]
	delete(sm.entries, cookieID)
	sm.mu.Unlock()

	if ok {
		err := e.ctl.EndSession(ctx)
		e.ctl.Close()
		return err
	}
	return sm.store.DeleteSession(ctx, profileFor(cookieID))
}

// Sweep stops controllers not used for idle. Their sessions stay in the
// store and are resumed on the next request. Returns how many were stopped.
func (sm *SessionManager) Sweep(idle time.Duration) int {
	cutoff := time.Now().Add(-idle)
	var stale []*controller.Controller

	sm.mu.Lock()
	for id, e := range sm.entries {
		if e.lastSeen.Before(cutoff) {
			stale = append(stale, e.ctl)
			delete(sm.entries, id)
		}
	}
	sm.mu.Unlock()

	for _, ctl := range stale {
		ctl.Close()
	}
	return len(stale)
}

// CleanupExpiredSessions removes all expired sessions from the store.
func (sm *SessionManager) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	return sm.store.DeleteExpiredSessions(ctx)
}

// Close stops every controller.
func (sm *SessionManager) Close() {
	sm.mu.Lock()
	entries := sm.entries
	sm.entries = make(map[string]*entry)
	sm.mu.Unlock()
	for _, e := range entries {
		e.ctl.Close()
	}
}

// Active returns how many controllers are live.
func (sm *SessionManager) Active() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.entries)
}

func cookieID(r *http.Request) string {
	c, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// SetSessionCookie sets the session cookie on the response.
func SetSessionCookie(w http.ResponseWriter, id string, expires time.Time, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  expires,
	})
}

// ClearSessionCookie removes the session cookie.
func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}
