// Package apitest provides an in-memory Luna backend for tests. It follows
// the HTTP contract the client speaks and nothing more.
package apitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/me/luna/pkg/model"
)

type account struct {
	id       string
	email    string
	password string
	name     string
	role     model.Role
}

type friendRequest struct {
	id        string
	from      string
	to        string
	createdAt time.Time
}

type failure struct {
	status int
	body   string
}

// Backend is a fake Luna server.
type Backend struct {
	// URL is the API base URL, set by Start.
	URL string

	mu       sync.Mutex
	accounts map[string]*account // by id
	emails   map[string]string   // email -> id
	friends  map[string]map[string]bool
	requests map[string]*friendRequest
	alerts   []*model.Alert
	calls    []string
	failures map[string]failure
	seq      int
	router   chi.Router
}

// New creates an empty backend that is not yet listening.
func New() *Backend {
	b := &Backend{
		accounts: make(map[string]*account),
		emails:   make(map[string]string),
		friends:  make(map[string]map[string]bool),
		requests: make(map[string]*friendRequest),
		failures: make(map[string]failure),
	}
	b.router = b.routes()
	return b
}

// Start creates a backend served by httptest for the duration of t.
func Start(t testing.TB) *Backend {
	t.Helper()
	b := New()
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)
	b.URL = srv.URL + "/api"
	return b
}

// ServeHTTP implements http.Handler.
func (b *Backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.router.ServeHTTP(w, r)
}

func (b *Backend) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(b.record)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/signup", b.handleSignup)
		r.Post("/auth/login", b.handleLogin)

		r.Get("/friends/requests/{userID}", b.handleListRequests)
		r.Post("/friends/request", b.handleSendRequest)
		r.Put("/friends/accept/{requestID}", b.handleAcceptRequest)
		r.Put("/friends/deny/{requestID}", b.handleDenyRequest)
		r.Get("/friends/{userID}", b.handleListFriends)
		r.Delete("/friends/{userID}/{friendID}", b.handleRemoveFriend)

		r.Get("/users/search", b.handleSearch)

		r.Get("/alerts/active", b.handleActiveAlerts)
		r.Post("/alerts", b.handleCreateAlert)
		r.Put("/alerts/{alertID}/accept", b.handleAcceptAlert)
		r.Put("/alerts/{alertID}/cancel", b.handleCancelAlert)
	})
	return r
}

// record logs the call and applies any injected failure.
func (b *Backend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + strings.TrimPrefix(r.URL.Path, "/api")
		b.mu.Lock()
		b.calls = append(b.calls, key)
		f, failing := b.failures[key]
		b.mu.Unlock()

		if failing {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(f.status)
			fmt.Fprint(w, f.body)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- test controls ---

// AddUser registers an account and returns its id.
func (b *Backend) AddUser(name, email, password string, role model.Role) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addUserLocked(name, email, password, role)
}

func (b *Backend) addUserLocked(name, email, password string, role model.Role) string {
	id := "usr_" + uuid.New().String()[:8]
	b.accounts[id] = &account{id: id, email: email, password: password, name: name, role: role}
	b.emails[strings.ToLower(email)] = id
	return id
}

// MakeFriends links two accounts.
func (b *Backend) MakeFriends(a, c string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.linkLocked(a, c)
}

func (b *Backend) linkLocked(a, c string) {
	if b.friends[a] == nil {
		b.friends[a] = make(map[string]bool)
	}
	if b.friends[c] == nil {
		b.friends[c] = make(map[string]bool)
	}
	b.friends[a][c] = true
	b.friends[c][a] = true
}

// AddFriendRequest creates a pending request and returns its id.
func (b *Backend) AddFriendRequest(from, to string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addRequestLocked(from, to)
}

func (b *Backend) addRequestLocked(from, to string) string {
	b.seq++
	id := fmt.Sprintf("req_%d", b.seq)
	b.requests[id] = &friendRequest{id: id, from: from, to: to, createdAt: time.Now().UTC()}
	return id
}

// AddAlert creates a pending alert from sender and returns its id.
func (b *Backend) AddAlert(sender, productType string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addAlertLocked(sender, productType)
}

func (b *Backend) addAlertLocked(sender, productType string) string {
	b.seq++
	id := fmt.Sprintf("alert_%d", b.seq)
	dist := 1.2
	name := ""
	if acct := b.accounts[sender]; acct != nil {
		name = acct.name
	}
	b.alerts = append(b.alerts, &model.Alert{
		ID:          id,
		SenderID:    sender,
		SenderName:  name,
		ProductType: productType,
		Status:      model.AlertStatusPending,
		Distance:    &dist,
		Timestamp:   time.Now().UTC(),
	})
	return id
}

// Alert returns a copy of the stored alert.
func (b *Backend) Alert(id string) (model.Alert, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, a := range b.alerts {
		if a.ID == id {
			return *a.Clone(), true
		}
	}
	return model.Alert{}, false
}

// AreFriends reports whether a and c are linked.
func (b *Backend) AreFriends(a, c string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.friends[a][c]
}

// HasRequest reports whether a pending request with id exists.
func (b *Backend) HasRequest(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.requests[id]
	return ok
}

// Fail makes every "METHOD /path" call answer with status and body until
// Recover is called. Paths omit the /api prefix.
func (b *Backend) Fail(call string, status int, body string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[call] = failure{status: status, body: body}
}

// Recover removes an injected failure.
func (b *Backend) Recover(call string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.failures, call)
}

// Calls returns every "METHOD /path" received so far.
func (b *Backend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

// CallCount returns how many calls started with prefix.
func (b *Backend) CallCount(prefix string) int {
	n := 0
	for _, c := range b.Calls() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// ResetCalls forgets recorded calls.
func (b *Backend) ResetCalls() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = nil
}

// --- handlers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func (b *Backend) userJSON(a *account) map[string]any {
	return map[string]any{"id": a.id, "name": a.name, "role": string(a.role)}
}

func (b *Backend) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
		Role     string `json:"role"`
	}
	if err := decode(r, &req); err != nil || req.Email == "" || req.Password == "" {
		writeErr(w, http.StatusBadRequest, "email and password required")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, taken := b.emails[strings.ToLower(req.Email)]; taken {
		writeErr(w, http.StatusBadRequest, "User already registered")
		return
	}
	role, ok := model.ParseRole(req.Role)
	if !ok {
		role = model.RoleSender
	}
	id := b.addUserLocked(req.Name, req.Email, req.Password, role)
	writeJSON(w, http.StatusOK, map[string]any{"message": "signed up", "user": b.userJSON(b.accounts[id])})
}

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decode(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid body")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.emails[strings.ToLower(req.Email)]
	if !ok || b.accounts[id].password != req.Password {
		writeErr(w, http.StatusBadRequest, "Invalid login credentials")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session": map[string]any{
			"access_token": "tok_" + uuid.New().String(),
			"expires_at":   time.Now().Add(time.Hour).Unix(),
		},
		"user": b.userJSON(b.accounts[id]),
	})
}

func (b *Backend) handleListFriends(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	b.mu.Lock()
	defer b.mu.Unlock()
	out := []map[string]any{}
	for id := range b.friends[userID] {
		if a := b.accounts[id]; a != nil {
			out = append(out, b.userJSON(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i]["name"].(string) < out[j]["name"].(string) })
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) handleListRequests(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	b.mu.Lock()
	defer b.mu.Unlock()
	out := []model.FriendRequest{}
	for _, req := range b.requests {
		if req.to != userID {
			continue
		}
		created := req.createdAt
		fr := model.FriendRequest{ID: req.id, SenderID: req.from, CreatedAt: &created}
		if a := b.accounts[req.from]; a != nil {
			fr.SenderName = a.name
		}
		out = append(out, fr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) handleSendRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		From string `json:"fromUserId"`
		To   string `json:"toUserId"`
	}
	if err := decode(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid body")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if req.From == req.To || b.accounts[req.From] == nil || b.accounts[req.To] == nil {
		writeErr(w, http.StatusBadRequest, "invalid users")
		return
	}
	if b.friends[req.From][req.To] {
		// The real backend answers 200 with an error body here.
		writeErr(w, http.StatusOK, "Already friends")
		return
	}
	id := b.addRequestLocked(req.From, req.To)
	writeJSON(w, http.StatusOK, map[string]any{"id": id})
}

func (b *Backend) handleAcceptRequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "requestID")
	b.mu.Lock()
	defer b.mu.Unlock()
	req, ok := b.requests[id]
	if !ok {
		writeErr(w, http.StatusNotFound, "request not found")
		return
	}
	delete(b.requests, id)
	b.linkLocked(req.from, req.to)
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (b *Backend) handleDenyRequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "requestID")
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.requests[id]; !ok {
		writeErr(w, http.StatusNotFound, "request not found")
		return
	}
	delete(b.requests, id)
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (b *Backend) handleRemoveFriend(w http.ResponseWriter, r *http.Request) {
	userID, friendID := chi.URLParam(r, "userID"), chi.URLParam(r, "friendID")
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.friends[userID], friendID)
	delete(b.friends[friendID], userID)
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (b *Backend) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.ToLower(r.URL.Query().Get("q"))
	self := r.URL.Query().Get("userId")
	b.mu.Lock()
	defer b.mu.Unlock()
	out := []map[string]any{}
	for id, a := range b.accounts {
		if id == self || q == "" || !strings.Contains(strings.ToLower(a.name), q) {
			continue
		}
		out = append(out, b.userJSON(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i]["name"].(string) < out[j]["name"].(string) })
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) handleActiveAlerts(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := []model.Alert{}
	for _, a := range b.alerts {
		if a.Status != model.AlertStatusCancelled {
			out = append(out, *a.Clone())
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SenderID    string  `json:"sender_id"`
		ProductType string  `json:"product_type"`
		Latitude    float64 `json:"latitude"`
		Longitude   float64 `json:"longitude"`
	}
	if err := decode(r, &req); err != nil || req.SenderID == "" || req.ProductType == "" {
		writeErr(w, http.StatusBadRequest, "sender_id and product_type required")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.accounts[req.SenderID] == nil {
		writeErr(w, http.StatusBadRequest, "unknown sender")
		return
	}
	id := b.addAlertLocked(req.SenderID, req.ProductType)
	writeJSON(w, http.StatusOK, map[string]any{"id": id})
}

func (b *Backend) findAlertLocked(id string) *model.Alert {
	for _, a := range b.alerts {
		if a.ID == id {
			return a
		}
	}
	return nil
}

func (b *Backend) handleAcceptAlert(w http.ResponseWriter, r *http.Request) {
	var req struct {
		HelperID string `json:"helperId"`
	}
	if err := decode(r, &req); err != nil || req.HelperID == "" {
		writeErr(w, http.StatusBadRequest, "helperId required")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	a := b.findAlertLocked(chi.URLParam(r, "alertID"))
	if a == nil {
		writeErr(w, http.StatusNotFound, "alert not found")
		return
	}
	if !a.Status.CanTransitionTo(model.AlertStatusAccepted) {
		writeErr(w, http.StatusConflict, "alert already "+a.Status.String())
		return
	}
	a.Status = model.AlertStatusAccepted
	a.HelperID = req.HelperID
	if h := b.accounts[req.HelperID]; h != nil {
		a.HelperName = h.name
	}
	a.Location = "40.7128, -74.0060"
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (b *Backend) handleCancelAlert(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	a := b.findAlertLocked(chi.URLParam(r, "alertID"))
	if a == nil {
		writeErr(w, http.StatusNotFound, "alert not found")
		return
	}
	a.Status = model.AlertStatusCancelled
	writeJSON(w, http.StatusOK, map[string]any{})
}
