// Package controller owns the client side of a Luna session: who is signed
// in, the local mirror of friends, requests and alerts, and the polling loop
// that keeps that mirror in step with the backend.
//
// The mirror is a cache. Mutations go to the backend first and the affected
// collections are then re-fetched; the only exception is cancelling the
// session's own alert, which clears the slot directly.
package controller

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/me/luna/internal/api"
	"github.com/me/luna/internal/store"
	"github.com/me/luna/pkg/model"
)

// DefaultPollInterval is how often the backend is polled while signed in.
const DefaultPollInterval = 5 * time.Second

// MinPasswordLength is enforced before credentials are sent anywhere.
const MinPasswordLength = 6

// Backend is the subset of the API client the controller depends on.
type Backend interface {
	Signup(ctx context.Context, req api.SignupRequest) (*api.AuthResult, error)
	Login(ctx context.Context, email, password string) (*api.AuthResult, error)
	ListFriends(ctx context.Context, userID string) ([]model.Friend, error)
	ListFriendRequests(ctx context.Context, userID string) ([]model.FriendRequest, error)
	SendFriendRequest(ctx context.Context, fromUserID, toUserID string) error
	AcceptFriendRequest(ctx context.Context, requestID string) error
	DenyFriendRequest(ctx context.Context, requestID string) error
	RemoveFriend(ctx context.Context, userID, friendID string) error
	SearchUsers(ctx context.Context, query, userID string) ([]model.User, error)
	ActiveAlerts(ctx context.Context) ([]model.Alert, error)
	CreateAlert(ctx context.Context, req api.CreateAlertRequest) error
	AcceptAlert(ctx context.Context, alertID, helperID string) error
	CancelAlert(ctx context.Context, alertID string) error
	SetToken(token string)
}

// Config holds controller configuration.
type Config struct {
	// PollInterval defaults to DefaultPollInterval when zero. A negative
	// value disables the background loop; callers then refresh by hand.
	PollInterval time.Duration

	// SessionTTL bounds how long a persisted session may be resumed. Zero
	// means until the backend token expires, or forever without one.
	SessionTTL time.Duration

	// Coordinates sent with every new alert.
	Latitude  float64
	Longitude float64

	// SyncFriendRemovals sends deny/remove to the backend. When false they
	// only touch the local cache.
	SyncFriendRemovals bool

	// Store persists the session under Profile. Optional.
	Store   store.Store
	Profile string

	// OnChange is called with a fresh snapshot after state changes. It runs
	// on the goroutine that made the change, possibly the polling loop, and
	// must not call Authenticate, Resume, EndSession or Close.
	OnChange func(State)
}

// State is a point-in-time copy of everything the controller mirrors.
type State struct {
	Session      *model.Session
	UserAlert    *model.Alert
	FriendAlerts []model.Alert
	Friends      []model.Friend
	Requests     []model.FriendRequest
}

// Controller is the single writer of session and sync state. All methods
// are safe for concurrent use.
type Controller struct {
	backend Backend
	cfg     Config
	logger  *slog.Logger

	mu           sync.Mutex
	session      *model.Session
	epoch        uint64 // bumped whenever the session is installed or cleared
	userAlert    *model.Alert
	ownAlertIDs  map[string]bool // every own alert in the last fetch, not just userAlert
	friendAlerts []model.Alert
	friends      []model.Friend
	requests     []model.FriendRequest
	friendsSeq   seqGuard
	requestsSeq  seqGuard
	alertsSeq    seqGuard
	poll         *poller
}

// New creates a controller with no session.
func New(backend Backend, cfg Config, logger *slog.Logger) *Controller {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Profile == "" {
		cfg.Profile = store.DefaultProfile
	}
	c := &Controller{
		backend: backend,
		cfg:     cfg,
		logger:  logger.With("component", "controller"),
	}
	c.resetLocked()
	return c
}

// Snapshot returns a deep copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Session:      c.session.Clone(),
		UserAlert:    c.userAlert.Clone(),
		FriendAlerts: cloneAlerts(c.friendAlerts),
		Friends:      append([]model.Friend{}, c.friends...),
		Requests:     append([]model.FriendRequest{}, c.requests...),
	}
}

// Session returns a copy of the current session, or nil.
func (c *Controller) Session() *model.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Clone()
}

// Mode selects between creating an account and signing in to one.
type Mode string

const (
	ModeLogin  Mode = "login"
	ModeSignup Mode = "signup"
)

// Credentials are what the user typed. Name and Role are only sent on signup
// but also serve as fallbacks when the backend omits them.
type Credentials struct {
	Email    string
	Password string
	Name     string
	Role     model.Role
}

func (cr Credentials) validate(mode Mode) error {
	const op = "authenticate"
	if mode != ModeLogin && mode != ModeSignup {
		return model.NewValidationError(op, "unknown mode "+string(mode))
	}
	if strings.TrimSpace(cr.Email) == "" || strings.TrimSpace(cr.Password) == "" {
		return model.NewValidationError(op, "Email and password are required.")
	}
	if len(cr.Password) < MinPasswordLength {
		return model.NewValidationError(op, "Password must be at least 6 characters long.")
	}
	if mode == ModeSignup {
		if strings.TrimSpace(cr.Name) == "" {
			return model.NewValidationError(op, "Name is required.")
		}
		if cr.Role != "" {
			if _, ok := model.ParseRole(string(cr.Role)); !ok {
				return model.NewValidationError(op, "Role must be sender or receiver.")
			}
		}
	}
	return nil
}

// Authenticate signs up or logs in. On success it installs the new session,
// persists it and starts polling. On failure the current session, if any,
// is left alone.
func (c *Controller) Authenticate(ctx context.Context, cr Credentials, mode Mode) (*model.Session, error) {
	if err := cr.validate(mode); err != nil {
		return nil, err
	}

	var res *api.AuthResult
	var err error
	if mode == ModeSignup {
		role := cr.Role
		if role == "" {
			role = model.RoleSender
		}
		res, err = c.backend.Signup(ctx, api.SignupRequest{
			Email:    strings.TrimSpace(cr.Email),
			Password: cr.Password,
			Name:     strings.TrimSpace(cr.Name),
			Role:     role,
		})
	} else {
		res, err = c.backend.Login(ctx, strings.TrimSpace(cr.Email), cr.Password)
	}
	if err != nil {
		c.logger.Warn("authentication failed", "mode", mode, "error", err)
		return nil, err
	}

	sess := c.newSession(res, cr)
	c.install(ctx, sess, true)
	c.logger.Info("signed in", "user_id", sess.ID, "role", sess.Role, "mode", mode)
	return sess.Clone(), nil
}

func (c *Controller) newSession(res *api.AuthResult, cr Credentials) *model.Session {
	name := res.User.Name
	if name == "" {
		name = strings.TrimSpace(cr.Name)
	}
	if name == "" {
		name = "Anonymous"
	}
	role, ok := model.ParseRole(res.User.Role)
	if !ok {
		role, ok = model.ParseRole(string(cr.Role))
	}
	if !ok {
		role = model.RoleSender
	}

	now := time.Now()
	sess := &model.Session{
		ID:        res.User.ID,
		Name:      name,
		Role:      role,
		Token:     res.Token,
		TokenExp:  res.TokenExp,
		CreatedAt: now,
	}
	if c.cfg.SessionTTL > 0 {
		sess.ExpiresAt = now.Add(c.cfg.SessionTTL)
	}
	// Never outlive the backend token.
	if !sess.TokenExp.IsZero() && (sess.ExpiresAt.IsZero() || sess.TokenExp.Before(sess.ExpiresAt)) {
		sess.ExpiresAt = sess.TokenExp
	}
	return sess
}

// Resume installs the persisted session, if one exists and has not expired,
// without contacting the backend. It reports whether a session was resumed.
func (c *Controller) Resume(ctx context.Context) (bool, error) {
	if c.cfg.Store == nil {
		return false, nil
	}
	sess, err := c.cfg.Store.LoadSession(ctx, c.cfg.Profile)
	if err != nil {
		return false, err
	}
	if sess == nil {
		return false, nil
	}
	if sess.IsExpired() || sess.IsTokenExpired() {
		c.logger.Info("stored session expired", "user_id", sess.ID)
		return false, c.cfg.Store.DeleteSession(ctx, c.cfg.Profile)
	}
	c.install(ctx, sess, false)
	c.logger.Debug("session resumed", "user_id", sess.ID)
	return true, nil
}

// EndSession signs out locally: it stops polling, forgets the session and
// every cached collection, and deletes the persisted session. The backend is
// not contacted. State is cleared even when the store delete fails.
func (c *Controller) EndSession(ctx context.Context) error {
	c.mu.Lock()
	p := c.poll
	c.poll = nil
	c.epoch++
	c.session = nil
	c.resetLocked()
	c.mu.Unlock()

	if p != nil {
		p.stop()
	}
	c.backend.SetToken("")
	c.notify()

	if c.cfg.Store != nil {
		return c.cfg.Store.DeleteSession(ctx, c.cfg.Profile)
	}
	return nil
}

// Close stops the polling loop. The session, cache and persisted session
// are kept.
func (c *Controller) Close() {
	c.mu.Lock()
	p := c.poll
	c.poll = nil
	c.mu.Unlock()
	if p != nil {
		p.stop()
	}
}

// install makes sess the current session with empty caches and starts the
// polling loop for it.
func (c *Controller) install(ctx context.Context, sess *model.Session, persist bool) {
	c.mu.Lock()
	old := c.poll
	c.poll = nil
	c.epoch++
	epoch := c.epoch
	c.session = sess.Clone()
	c.resetLocked()
	c.mu.Unlock()

	if old != nil {
		old.stop()
	}
	c.backend.SetToken(sess.Token)

	if persist && c.cfg.Store != nil {
		if err := c.cfg.Store.SaveSession(ctx, c.cfg.Profile, sess); err != nil {
			c.logger.Warn("persist session failed", "user_id", sess.ID, "error", err)
		}
	}

	if c.cfg.PollInterval > 0 {
		c.mu.Lock()
		if c.epoch == epoch {
			c.poll = startPoller(c.cfg.PollInterval, func(ctx context.Context) {
				if err := c.Refresh(ctx); err != nil && ctx.Err() == nil {
					c.logger.Warn("poll refresh failed", "error", err, "retryable", model.IsRetryable(err))
				}
			})
		}
		c.mu.Unlock()
	}
	c.notify()
}

// resetLocked empties every cached collection and drops in-flight fetches.
func (c *Controller) resetLocked() {
	c.userAlert = nil
	c.ownAlertIDs = nil
	c.friendAlerts = []model.Alert{}
	c.friends = []model.Friend{}
	c.requests = []model.FriendRequest{}
	c.friendsSeq.invalidate()
	c.requestsSeq.invalidate()
	c.alertsSeq.invalidate()
}

func (c *Controller) notify() {
	if c.cfg.OnChange != nil {
		c.cfg.OnChange(c.Snapshot())
	}
}

// current returns the session id and epoch, or a no-session error.
func (c *Controller) current(op string) (string, uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return "", 0, model.NewNoSessionError(op)
	}
	return c.session.ID, c.epoch, nil
}

func cloneAlerts(in []model.Alert) []model.Alert {
	out := make([]model.Alert, len(in))
	for i := range in {
		out[i] = *in[i].Clone()
	}
	return out
}
