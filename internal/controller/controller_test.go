package controller

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/me/luna/internal/api"
	"github.com/me/luna/internal/apitest"
	"github.com/me/luna/internal/logging"
	"github.com/me/luna/internal/store"
	"github.com/me/luna/pkg/model"
)

type fixture struct {
	be    *apitest.Backend
	ctl   *Controller
	alice string
	bob   string
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	be := apitest.Start(t)
	f := &fixture{
		be:    be,
		alice: be.AddUser("Alice", "alice@example.com", "secret1", model.RoleSender),
		bob:   be.AddUser("Bob", "bob@example.com", "secret2", model.RoleReceiver),
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = -1
	}
	client := api.NewClient(be.URL, 5*time.Second, logging.Discard())
	f.ctl = New(client, cfg, logging.Discard())
	t.Cleanup(f.ctl.Close)
	return f
}

func (f *fixture) login(t *testing.T, email, password string) *model.Session {
	t.Helper()
	sess, err := f.ctl.Authenticate(context.Background(), Credentials{Email: email, Password: password}, ModeLogin)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	return sess
}

func TestAuthenticate_ShortPasswordMakesNoRequest(t *testing.T) {
	f := newFixture(t, Config{})
	_, err := f.ctl.Authenticate(context.Background(), Credentials{Email: "alice@example.com", Password: "12345"}, ModeLogin)
	if model.KindOf(err) != model.KindValidation {
		t.Fatalf("err = %v, want validation", err)
	}
	if got := model.UserMessage(err); got != "Password must be at least 6 characters long." {
		t.Errorf("message = %q", got)
	}
	if n := len(f.be.Calls()); n != 0 {
		t.Errorf("backend calls = %d, want 0", n)
	}
}

func TestAuthenticate_Validation(t *testing.T) {
	f := newFixture(t, Config{})
	tests := []struct {
		name string
		cr   Credentials
		mode Mode
		want string
	}{
		{"blank email", Credentials{Password: "secret1"}, ModeLogin, "Email and password are required."},
		{"blank password", Credentials{Email: "a@example.com"}, ModeLogin, "Email and password are required."},
		{"signup without name", Credentials{Email: "a@example.com", Password: "secret1"}, ModeSignup, "Name is required."},
		{"signup bad role", Credentials{Email: "a@example.com", Password: "secret1", Name: "A", Role: "admin"}, ModeSignup, "Role must be sender or receiver."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ctl.Authenticate(context.Background(), tt.cr, tt.mode)
			if got := model.UserMessage(err); got != tt.want {
				t.Errorf("message = %q, want %q", got, tt.want)
			}
		})
	}
	if n := len(f.be.Calls()); n != 0 {
		t.Errorf("backend calls = %d, want 0", n)
	}
}

func TestAuthenticate_FailureKeepsNoSession(t *testing.T) {
	f := newFixture(t, Config{})
	_, err := f.ctl.Authenticate(context.Background(), Credentials{Email: "alice@example.com", Password: "wrong-pw"}, ModeLogin)
	if err == nil {
		t.Fatal("expected error")
	}
	if got := model.UserMessage(err); got != "Invalid login credentials" {
		t.Errorf("message = %q", got)
	}
	if f.ctl.Session() != nil {
		t.Error("session should stay nil")
	}
}

func TestAuthenticate_Signup(t *testing.T) {
	f := newFixture(t, Config{})
	sess, err := f.ctl.Authenticate(context.Background(), Credentials{
		Email: "carol@example.com", Password: "secret3", Name: "Carol", Role: model.RoleReceiver,
	}, ModeSignup)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if sess.Name != "Carol" || sess.Role != model.RoleReceiver || sess.ID == "" {
		t.Errorf("session = %+v", sess)
	}
	if f.be.CallCount("POST /auth/signup") != 1 {
		t.Errorf("calls = %v", f.be.Calls())
	}
}

func TestEndSession_MatchesInitialState(t *testing.T) {
	f := newFixture(t, Config{})
	initial := f.ctl.Snapshot()

	f.be.MakeFriends(f.alice, f.bob)
	f.be.AddAlert(f.bob, model.ProductPad)
	f.login(t, "alice@example.com", "secret1")
	if err := f.ctl.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if st := f.ctl.Snapshot(); len(st.Friends) != 1 || len(st.FriendAlerts) != 1 {
		t.Fatalf("state before end = %+v", st)
	}

	if err := f.ctl.EndSession(context.Background()); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	if got := f.ctl.Snapshot(); !reflect.DeepEqual(got, initial) {
		t.Errorf("state after end = %+v, want %+v", got, initial)
	}
}

func TestRefresh_WithoutSessionIsNoop(t *testing.T) {
	f := newFixture(t, Config{})
	if err := f.ctl.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if err := f.ctl.FetchAlerts(context.Background()); err != nil {
		t.Fatalf("FetchAlerts: %v", err)
	}
	if n := len(f.be.Calls()); n != 0 {
		t.Errorf("backend calls = %d, want 0", n)
	}
}

func TestRefresh_PartialFailureAppliesTheRest(t *testing.T) {
	f := newFixture(t, Config{})
	f.be.MakeFriends(f.alice, f.bob)
	sess := f.login(t, "alice@example.com", "secret1")
	f.be.Fail("GET /friends/requests/"+sess.ID, 500, `{"error":"boom"}`)

	err := f.ctl.Refresh(context.Background())
	if err == nil || !model.IsRetryable(err) {
		t.Fatalf("err = %v, want retryable", err)
	}
	if st := f.ctl.Snapshot(); len(st.Friends) != 1 {
		t.Errorf("friends = %v, want Bob", st.Friends)
	}
}

func TestSendAlert(t *testing.T) {
	f := newFixture(t, Config{Latitude: 1.5, Longitude: 2.5})
	f.login(t, "alice@example.com", "secret1")

	if err := f.ctl.SendAlert(context.Background(), " "); model.KindOf(err) != model.KindValidation {
		t.Errorf("blank product err = %v", err)
	}
	if err := f.ctl.SendAlert(context.Background(), model.ProductPad); err != nil {
		t.Fatalf("SendAlert: %v", err)
	}
	st := f.ctl.Snapshot()
	if st.UserAlert == nil {
		t.Fatal("own alert slot empty after send")
	}
	if st.UserAlert.ProductType != model.ProductPad || st.UserAlert.Status != model.AlertStatusPending {
		t.Errorf("alert = %+v", st.UserAlert)
	}
	if len(st.FriendAlerts) != 0 {
		t.Errorf("friend alerts = %v, want none", st.FriendAlerts)
	}
}

func TestSendAlert_NoSession(t *testing.T) {
	f := newFixture(t, Config{})
	if err := f.ctl.SendAlert(context.Background(), model.ProductPad); model.KindOf(err) != model.KindNoSession {
		t.Errorf("err = %v, want no session", err)
	}
}

func TestAcceptFriendAlert_RevealsLocation(t *testing.T) {
	f := newFixture(t, Config{})
	f.be.MakeFriends(f.alice, f.bob)
	alertID := f.be.AddAlert(f.alice, model.ProductTampon)
	f.login(t, "bob@example.com", "secret2")
	if err := f.ctl.FetchAlerts(context.Background()); err != nil {
		t.Fatalf("FetchAlerts: %v", err)
	}
	st := f.ctl.Snapshot()
	if len(st.FriendAlerts) != 1 || st.FriendAlerts[0].LocationRevealed() {
		t.Fatalf("friend alerts before accept = %+v", st.FriendAlerts)
	}

	if err := f.ctl.AcceptFriendAlert(context.Background(), alertID); err != nil {
		t.Fatalf("AcceptFriendAlert: %v", err)
	}
	st = f.ctl.Snapshot()
	if len(st.FriendAlerts) != 1 {
		t.Fatalf("friend alerts = %+v", st.FriendAlerts)
	}
	got := st.FriendAlerts[0]
	if got.Status != model.AlertStatusAccepted || !got.LocationRevealed() || got.HelperName != "Bob" {
		t.Errorf("alert after accept = %+v", got)
	}
}

func TestAcceptFriendAlert_RejectsOwnAlert(t *testing.T) {
	f := newFixture(t, Config{})
	alertID := f.be.AddAlert(f.alice, model.ProductPad)
	f.login(t, "alice@example.com", "secret1")
	if err := f.ctl.FetchAlerts(context.Background()); err != nil {
		t.Fatalf("FetchAlerts: %v", err)
	}
	f.be.ResetCalls()
	if err := f.ctl.AcceptFriendAlert(context.Background(), alertID); model.KindOf(err) != model.KindValidation {
		t.Errorf("err = %v, want validation", err)
	}
	if f.be.CallCount("PUT /alerts/") != 0 {
		t.Errorf("calls = %v", f.be.Calls())
	}
}

func TestAcceptFriendAlert_RejectsUnselectedOwnAlert(t *testing.T) {
	f := newFixture(t, Config{})
	first := f.be.AddAlert(f.alice, model.ProductPad)
	second := f.be.AddAlert(f.alice, model.ProductTampon)
	f.login(t, "alice@example.com", "secret1")
	if err := f.ctl.FetchAlerts(context.Background()); err != nil {
		t.Fatalf("FetchAlerts: %v", err)
	}
	if got := f.ctl.Snapshot().UserAlert; got == nil || got.ID != first {
		t.Fatalf("own alert = %+v, want %s", got, first)
	}
	f.be.ResetCalls()
	if err := f.ctl.AcceptFriendAlert(context.Background(), second); model.KindOf(err) != model.KindValidation {
		t.Errorf("err = %v, want validation", err)
	}
	if f.be.CallCount("PUT /alerts/") != 0 {
		t.Errorf("calls = %v", f.be.Calls())
	}
}

func TestAcceptFriendAlert_Conflict(t *testing.T) {
	f := newFixture(t, Config{})
	f.be.MakeFriends(f.alice, f.bob)
	alertID := f.be.AddAlert(f.alice, model.ProductPad)
	f.login(t, "bob@example.com", "secret2")
	if err := f.ctl.AcceptFriendAlert(context.Background(), alertID); err != nil {
		t.Fatalf("first accept: %v", err)
	}
	err := f.ctl.AcceptFriendAlert(context.Background(), alertID)
	if model.KindOf(err) != model.KindStatus {
		t.Errorf("second accept err = %v, want status error", err)
	}
}

func TestCancelAlert(t *testing.T) {
	f := newFixture(t, Config{})
	f.login(t, "alice@example.com", "secret1")

	if err := f.ctl.CancelAlert(context.Background()); err != nil {
		t.Fatalf("CancelAlert without alert: %v", err)
	}
	if f.be.CallCount("PUT /alerts/") != 0 {
		t.Errorf("cancel without alert made calls: %v", f.be.Calls())
	}

	if err := f.ctl.SendAlert(context.Background(), model.ProductPad); err != nil {
		t.Fatalf("SendAlert: %v", err)
	}
	id := f.ctl.Snapshot().UserAlert.ID
	f.be.ResetCalls()
	if err := f.ctl.CancelAlert(context.Background()); err != nil {
		t.Fatalf("CancelAlert: %v", err)
	}
	if f.ctl.Snapshot().UserAlert != nil {
		t.Error("own alert slot should be empty")
	}
	if got, _ := f.be.Alert(id); got.Status != model.AlertStatusCancelled {
		t.Errorf("backend status = %s", got.Status)
	}
	if f.be.CallCount("GET /alerts/active") != 0 {
		t.Error("cancel should not re-fetch")
	}
}

func TestCancelAlert_FailureKeepsSlot(t *testing.T) {
	f := newFixture(t, Config{})
	f.login(t, "alice@example.com", "secret1")
	if err := f.ctl.SendAlert(context.Background(), model.ProductPad); err != nil {
		t.Fatalf("SendAlert: %v", err)
	}
	id := f.ctl.Snapshot().UserAlert.ID
	f.be.Fail("PUT /alerts/"+id+"/cancel", 500, `{"error":"down"}`)
	if err := f.ctl.CancelAlert(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if st := f.ctl.Snapshot(); st.UserAlert == nil || st.UserAlert.ID != id {
		t.Errorf("own alert = %+v, want %s kept", st.UserAlert, id)
	}
}

func TestFriendRequests(t *testing.T) {
	f := newFixture(t, Config{})
	f.login(t, "alice@example.com", "secret1")

	if err := f.ctl.SendFriendRequest(context.Background(), model.User{}); model.KindOf(err) != model.KindValidation {
		t.Errorf("empty target err = %v", err)
	}
	if err := f.ctl.SendFriendRequest(context.Background(), model.User{ID: f.alice}); model.KindOf(err) != model.KindValidation {
		t.Errorf("self target err = %v", err)
	}
	if err := f.ctl.SendFriendRequest(context.Background(), model.User{ID: f.bob, Name: "Bob"}); err != nil {
		t.Fatalf("SendFriendRequest: %v", err)
	}

	// Bob accepts on his side.
	if err := f.ctl.EndSession(context.Background()); err != nil {
		t.Fatal(err)
	}
	f.login(t, "bob@example.com", "secret2")
	if err := f.ctl.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	st := f.ctl.Snapshot()
	if len(st.Requests) != 1 || st.Requests[0].SenderName != "Alice" {
		t.Fatalf("requests = %+v", st.Requests)
	}
	if err := f.ctl.AcceptFriendRequest(context.Background(), st.Requests[0].ID); err != nil {
		t.Fatalf("AcceptFriendRequest: %v", err)
	}
	st = f.ctl.Snapshot()
	if len(st.Requests) != 0 || len(st.Friends) != 1 || st.Friends[0].Name != "Alice" {
		t.Errorf("after accept: requests=%v friends=%v", st.Requests, st.Friends)
	}
	if !f.be.AreFriends(f.alice, f.bob) {
		t.Error("backend should record friendship")
	}
}

func TestSendFriendRequest_AlreadyFriends(t *testing.T) {
	f := newFixture(t, Config{})
	f.be.MakeFriends(f.alice, f.bob)
	f.login(t, "alice@example.com", "secret1")
	err := f.ctl.SendFriendRequest(context.Background(), model.User{ID: f.bob})
	if model.KindOf(err) != model.KindRejected {
		t.Errorf("err = %v, want rejected", err)
	}
}

func TestDenyAndRemove_LocalOnly(t *testing.T) {
	f := newFixture(t, Config{})
	f.be.MakeFriends(f.alice, f.bob)
	carol := f.be.AddUser("Carol", "carol@example.com", "secret3", model.RoleSender)
	reqID := f.be.AddFriendRequest(carol, f.alice)
	f.login(t, "alice@example.com", "secret1")
	if err := f.ctl.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	f.be.ResetCalls()

	if err := f.ctl.DenyFriendRequest(context.Background(), reqID); err != nil {
		t.Fatalf("DenyFriendRequest: %v", err)
	}
	if err := f.ctl.RemoveFriend(context.Background(), f.bob); err != nil {
		t.Fatalf("RemoveFriend: %v", err)
	}
	st := f.ctl.Snapshot()
	if len(st.Requests) != 0 || len(st.Friends) != 0 {
		t.Errorf("local state = %+v", st)
	}
	if n := len(f.be.Calls()); n != 0 {
		t.Errorf("backend calls = %v, want none", f.be.Calls())
	}
	if !f.be.HasRequest(reqID) || !f.be.AreFriends(f.alice, f.bob) {
		t.Error("backend should be untouched")
	}

	// The next poll brings them back.
	if err := f.ctl.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if st := f.ctl.Snapshot(); len(st.Requests) != 1 || len(st.Friends) != 1 {
		t.Errorf("after refresh = %+v", st)
	}
}

func TestDenyAndRemove_Synced(t *testing.T) {
	f := newFixture(t, Config{SyncFriendRemovals: true})
	f.be.MakeFriends(f.alice, f.bob)
	carol := f.be.AddUser("Carol", "carol@example.com", "secret3", model.RoleSender)
	reqID := f.be.AddFriendRequest(carol, f.alice)
	f.login(t, "alice@example.com", "secret1")

	if err := f.ctl.DenyFriendRequest(context.Background(), reqID); err != nil {
		t.Fatalf("DenyFriendRequest: %v", err)
	}
	if err := f.ctl.RemoveFriend(context.Background(), f.bob); err != nil {
		t.Fatalf("RemoveFriend: %v", err)
	}
	if f.be.HasRequest(reqID) || f.be.AreFriends(f.alice, f.bob) {
		t.Error("backend should record deny and remove")
	}
	if st := f.ctl.Snapshot(); len(st.Requests) != 0 || len(st.Friends) != 0 {
		t.Errorf("state = %+v", st)
	}
}

func TestSearchDirectory(t *testing.T) {
	f := newFixture(t, Config{})
	if got := f.ctl.SearchDirectory(context.Background(), "bo"); len(got) != 0 {
		t.Errorf("search without session = %v", got)
	}
	f.login(t, "alice@example.com", "secret1")

	got := f.ctl.SearchDirectory(context.Background(), "BO")
	if len(got) != 1 || got[0].ID != f.bob {
		t.Errorf("search = %+v", got)
	}
	if got := f.ctl.SearchDirectory(context.Background(), "alice"); len(got) != 0 {
		t.Errorf("search should exclude self, got %+v", got)
	}
	f.be.ResetCalls()
	if got := f.ctl.SearchDirectory(context.Background(), "   "); got == nil || len(got) != 0 {
		t.Errorf("blank search = %#v, want empty", got)
	}
	if f.be.CallCount("GET /users/search") != 0 {
		t.Error("blank search should not hit the backend")
	}

	f.be.Fail("GET /users/search", 500, `{"error":"down"}`)
	if got := f.ctl.SearchDirectory(context.Background(), "bob"); got == nil || len(got) != 0 {
		t.Errorf("failed search = %#v, want empty", got)
	}
}

func TestPolling_StartsAndStops(t *testing.T) {
	f := newFixture(t, Config{PollInterval: 20 * time.Millisecond})
	f.login(t, "alice@example.com", "secret1")

	deadline := time.Now().Add(2 * time.Second)
	for f.be.CallCount("GET /alerts/active") < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("poller made %d alert fetches", f.be.CallCount("GET /alerts/active"))
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := f.ctl.EndSession(context.Background()); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	n := f.be.CallCount("GET /")
	time.Sleep(100 * time.Millisecond)
	if got := f.be.CallCount("GET /"); got != n {
		t.Errorf("polling continued after EndSession: %d -> %d", n, got)
	}
}

func TestOnChange(t *testing.T) {
	changes := make(chan State, 16)
	f := newFixture(t, Config{OnChange: func(s State) {
		select {
		case changes <- s:
		default:
		}
	}})
	f.login(t, "alice@example.com", "secret1")
	select {
	case st := <-changes:
		if st.Session == nil || st.Session.ID != f.alice {
			t.Errorf("first change = %+v", st)
		}
	default:
		t.Fatal("no change after Authenticate")
	}
}

func TestResume(t *testing.T) {
	st, err := store.NewSQLiteStore(":memory:", logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatal(err)
	}

	f := newFixture(t, Config{Store: st, SessionTTL: time.Hour})
	sess := f.login(t, "alice@example.com", "secret1")
	f.ctl.Close()

	client := api.NewClient(f.be.URL, 5*time.Second, logging.Discard())
	again := New(client, Config{Store: st, PollInterval: -1}, logging.Discard())
	ok, err := again.Resume(context.Background())
	if err != nil || !ok {
		t.Fatalf("Resume = %v, %v", ok, err)
	}
	if got := again.Session(); got == nil || got.ID != sess.ID || got.Name != "Alice" {
		t.Errorf("resumed session = %+v", got)
	}
	// The token came back with the session.
	if err := again.SendAlert(context.Background(), model.ProductPad); err != nil {
		t.Errorf("SendAlert after resume: %v", err)
	}

	if err := again.EndSession(context.Background()); err != nil {
		t.Fatal(err)
	}
	if loaded, _ := st.LoadSession(context.Background(), store.DefaultProfile); loaded != nil {
		t.Error("EndSession should delete the stored session")
	}
}

func TestResume_Expired(t *testing.T) {
	st, err := store.NewSQLiteStore(":memory:", logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatal(err)
	}
	past := time.Now().Add(-time.Minute)
	if err := st.SaveSession(context.Background(), store.DefaultProfile, &model.Session{
		ID: "u1", Name: "Old", Role: model.RoleSender, CreatedAt: past.Add(-time.Hour), ExpiresAt: past,
	}); err != nil {
		t.Fatal(err)
	}

	f := newFixture(t, Config{Store: st})
	ok, err := f.ctl.Resume(context.Background())
	if err != nil || ok {
		t.Fatalf("Resume = %v, %v, want false", ok, err)
	}
	if f.ctl.Session() != nil {
		t.Error("expired session installed")
	}
	if loaded, _ := st.LoadSession(context.Background(), store.DefaultProfile); loaded != nil {
		t.Error("expired session should be deleted")
	}
}
