package ui

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/me/luna/internal/controller"
	"github.com/me/luna/pkg/model"
)

// UI handles the web user interface.
type UI struct {
	sessions  *SessionManager
	logger    *slog.Logger
	startTime time.Time
	secure    bool // Use secure cookies (HTTPS)
}

// Config holds UI configuration.
type Config struct {
	Secure bool // Use secure cookies for HTTPS
}

// New creates a new UI handler.
func New(sessions *SessionManager, logger *slog.Logger, cfg Config) *UI {
	return &UI{
		sessions:  sessions,
		logger:    logger.With("component", "ui"),
		startTime: time.Now(),
		secure:    cfg.Secure,
	}
}

// dashboardTabs are the sections of the sender dashboard.
var dashboardTabs = []string{"home", "alerts", "friends", "requests", "search"}

// HandleAuth renders the sign-in / sign-up page, or sends signed-in
// browsers to the home page for their role.
func (ui *UI) HandleAuth(w http.ResponseWriter, r *http.Request) {
	if ctl, _ := ui.sessions.Lookup(r.Context(), cookieID(r)); ctl != nil {
		if sess := ctl.Session(); sess != nil {
			http.Redirect(w, r, sess.Role.HomePath(), http.StatusSeeOther)
			return
		}
	}

	mode := controller.ModeLogin
	if r.URL.Query().Get("mode") == string(controller.ModeSignup) {
		mode = controller.ModeSignup
	}
	ui.render(w, "auth", map[string]any{
		"Title": "Luna",
		"Mode":  string(mode),
		"Email": "",
		"Name":  "",
		"Role":  string(model.RoleSender),
	})
}

// HandleAuthPost processes the sign-in / sign-up form.
func (ui *UI) HandleAuthPost(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	mode := controller.ModeLogin
	if r.FormValue("mode") == string(controller.ModeSignup) {
		mode = controller.ModeSignup
	}
	cr := controller.Credentials{
		Email:    strings.TrimSpace(r.FormValue("email")),
		Password: r.FormValue("password"),
		Name:     strings.TrimSpace(r.FormValue("name")),
		Role:     model.Role(r.FormValue("role")),
	}

	id, ctl := ui.sessions.Begin()
	sess, err := ctl.Authenticate(r.Context(), cr, mode)
	if err != nil {
		ctl.Close()
		ui.render(w, "auth", map[string]any{
			"Title": "Luna",
			"Mode":  string(mode),
			"Email": cr.Email,
			"Name":  cr.Name,
			"Role":  string(cr.Role),
			"Error": model.UserMessage(err),
		})
		return
	}

	if err := ui.sessions.Establish(r.Context(), id, ctl, cookieID(r)); err != nil {
		ui.logger.Warn("end previous session failed", "error", err)
	}
	SetSessionCookie(w, id, sess.ExpiresAt, ui.secure)
	ui.logger.Info("user signed in", "user_id", sess.ID, "role", sess.Role, "mode", mode)
	http.Redirect(w, r, sess.Role.HomePath(), http.StatusSeeOther)
}

// HandleLogout ends the session and returns to the auth page.
func (ui *UI) HandleLogout(w http.ResponseWriter, r *http.Request) {
	id := cookieFromContext(r.Context())
	if err := ui.sessions.End(r.Context(), id); err != nil {
		ui.logger.Warn("end session failed", "error", err)
	}
	ClearSessionCookie(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleDashboard renders the sender dashboard.
func (ui *UI) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	ctl := ControllerFromContext(r.Context())
	state := ctl.Snapshot()

	tab := r.URL.Query().Get("tab")
	if !contains(dashboardTabs, tab) {
		tab = "home"
	}
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	var results []searchResult
	if query != "" {
		tab = "search"
		results = ui.searchResults(r.Context(), ctl, state, query)
	}

	pending := 0
	for _, a := range state.FriendAlerts {
		if a.Status == model.AlertStatusPending {
			pending++
		}
	}

	ui.render(w, "dashboard", map[string]any{
		"Title":    "Dashboard - Luna",
		"Session":  state.Session,
		"State":    state,
		"Tab":      tab,
		"Tabs":     dashboardTabs,
		"Pending":  pending,
		"Query":    query,
		"Results":  results,
		"Products": model.Products,
		"Return":   "/dashboard",
		"Notice":   r.URL.Query().Get("notice"),
		"Error":    r.URL.Query().Get("error"),
	})
}

// searchResult is a directory hit annotated with its relation to the viewer.
type searchResult struct {
	model.User
	IsFriend bool
}

func (ui *UI) searchResults(ctx context.Context, ctl *controller.Controller, state controller.State, query string) []searchResult {
	friends := make(map[string]bool, len(state.Friends))
	for _, f := range state.Friends {
		friends[f.ID] = true
	}
	users := ctl.SearchDirectory(ctx, query)
	out := make([]searchResult, 0, len(users))
	for _, u := range users {
		out = append(out, searchResult{User: u, IsFriend: friends[u.ID]})
	}
	return out
}

// HandleReceiver renders incoming friend alerts.
func (ui *UI) HandleReceiver(w http.ResponseWriter, r *http.Request) {
	state := ControllerFromContext(r.Context()).Snapshot()
	ui.render(w, "receiver", map[string]any{
		"Title":   "Incoming alerts - Luna",
		"Session": state.Session,
		"State":   state,
		"Return":  "/receiver",
		"Notice":  r.URL.Query().Get("notice"),
		"Error":   r.URL.Query().Get("error"),
	})
}

// HandleHealth reports liveness and how many browser sessions are active.
func (ui *UI) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"uptime":   time.Since(ui.startTime).Round(time.Second).String(),
		"sessions": ui.sessions.Active(),
	})
}

// --- Actions ---

// HandleSendAlert broadcasts an alert for the chosen product.
func (ui *UI) HandleSendAlert(w http.ResponseWriter, r *http.Request) {
	ctl := ControllerFromContext(r.Context())
	err := ctl.SendAlert(r.Context(), r.FormValue("product"))
	ui.finish(w, r, err, "Alert sent! Your friends have been notified.")
}

// HandleCancelAlert withdraws the user's own alert.
func (ui *UI) HandleCancelAlert(w http.ResponseWriter, r *http.Request) {
	err := ControllerFromContext(r.Context()).CancelAlert(r.Context())
	ui.finish(w, r, err, "Alert cancelled.")
}

// HandleAcceptAlert volunteers to help with a friend's alert.
func (ui *UI) HandleAcceptAlert(w http.ResponseWriter, r *http.Request) {
	err := ControllerFromContext(r.Context()).AcceptFriendAlert(r.Context(), chi.URLParam(r, "id"))
	ui.finish(w, r, err, "You accepted the alert. Their location is now visible.")
}

// HandleFriendRequest sends a friend request to a directory user.
func (ui *UI) HandleFriendRequest(w http.ResponseWriter, r *http.Request) {
	target := model.User{ID: r.FormValue("user_id"), Name: r.FormValue("name")}
	err := ControllerFromContext(r.Context()).SendFriendRequest(r.Context(), target)
	ui.finish(w, r, err, "Friend request sent.")
}

// HandleAcceptFriendRequest accepts an incoming friend request.
func (ui *UI) HandleAcceptFriendRequest(w http.ResponseWriter, r *http.Request) {
	err := ControllerFromContext(r.Context()).AcceptFriendRequest(r.Context(), chi.URLParam(r, "id"))
	ui.finish(w, r, err, "Friend request accepted.")
}

// HandleDenyFriendRequest drops an incoming friend request.
func (ui *UI) HandleDenyFriendRequest(w http.ResponseWriter, r *http.Request) {
	err := ControllerFromContext(r.Context()).DenyFriendRequest(r.Context(), chi.URLParam(r, "id"))
	ui.finish(w, r, err, "Friend request denied.")
}

// HandleRemoveFriend drops a friend.
func (ui *UI) HandleRemoveFriend(w http.ResponseWriter, r *http.Request) {
	err := ControllerFromContext(r.Context()).RemoveFriend(r.Context(), chi.URLParam(r, "id"))
	ui.finish(w, r, err, "Friend removed.")
}

// finish redirects an action back to the page it came from with either a
// notice or the error's user message.
func (ui *UI) finish(w http.ResponseWriter, r *http.Request, err error, notice string) {
	path, q := ui.returnPath(r)
	if err != nil {
		ui.logger.Warn("action failed", "path", r.URL.Path, "error", err)
		q.Set("error", model.UserMessage(err))
	} else {
		q.Set("notice", notice)
	}
	http.Redirect(w, r, path+"?"+q.Encode(), http.StatusSeeOther)
}

// returnPath picks where an action redirects: the form's "return" page and
// tab if it names one of ours, else the role's home page.
func (ui *UI) returnPath(r *http.Request) (string, url.Values) {
	q := url.Values{}
	switch ret := r.FormValue("return"); ret {
	case "/dashboard", "/receiver":
		if tab := r.FormValue("tab"); ret == "/dashboard" && contains(dashboardTabs, tab) {
			q.Set("tab", tab)
		}
		return ret, q
	}
	if sess := ControllerFromContext(r.Context()).Session(); sess != nil {
		return sess.Role.HomePath(), q
	}
	return "/", q
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (ui *UI) render(w http.ResponseWriter, template string, data map[string]any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	var buf bytes.Buffer
	if err := renderTemplate(&buf, template, data); err != nil {
		ui.logger.Error("template render failed", "template", template, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}
