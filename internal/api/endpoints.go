package api

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/me/luna/pkg/model"
)

// SignupRequest is the body of POST /auth/signup.
type SignupRequest struct {
	Email    string     `json:"email"`
	Password string     `json:"password"`
	Name     string     `json:"name"`
	Role     model.Role `json:"role"`
}

// AuthUser is the user payload returned by login and signup.
type AuthUser struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// AuthResult is a successful login or signup.
type AuthResult struct {
	User     AuthUser
	Token    string
	TokenExp time.Time
}

type authResponse struct {
	User    *AuthUser `json:"user"`
	Session *struct {
		AccessToken string `json:"access_token"`
		ExpiresAt   int64  `json:"expires_at"`
	} `json:"session"`
}

func (r *authResponse) result(op string) (*AuthResult, error) {
	if r.User == nil || r.User.ID == "" {
		return nil, &model.Error{Op: op, Kind: model.KindDecode, Message: "response has no user"}
	}
	res := &AuthResult{User: AuthUser{
		ID:   r.User.ID,
		Name: clean(r.User.Name),
		Role: r.User.Role,
	}}
	if r.Session != nil {
		res.Token = r.Session.AccessToken
		if r.Session.ExpiresAt > 0 {
			res.TokenExp = time.Unix(r.Session.ExpiresAt, 0)
		} else {
			res.TokenExp = tokenExpiry(res.Token)
		}
	}
	return res, nil
}

// Signup registers a new account.
func (c *Client) Signup(ctx context.Context, req SignupRequest) (*AuthResult, error) {
	var resp authResponse
	if err := c.do(ctx, "signup", http.MethodPost, "/auth/signup", req, &resp); err != nil {
		return nil, err
	}
	return resp.result("signup")
}

// Login authenticates an existing account.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	body := map[string]string{"email": email, "password": password}
	var resp authResponse
	if err := c.do(ctx, "login", http.MethodPost, "/auth/login", body, &resp); err != nil {
		return nil, err
	}
	return resp.result("login")
}

// ListFriends returns the friends of userID.
func (c *Client) ListFriends(ctx context.Context, userID string) ([]model.Friend, error) {
	var friends []model.Friend
	if err := c.do(ctx, "list friends", http.MethodGet, "/friends/"+seg(userID), nil, &friends); err != nil {
		return nil, err
	}
	for i := range friends {
		friends[i].Name = clean(friends[i].Name)
	}
	return nonNil(friends), nil
}

// ListFriendRequests returns pending requests addressed to userID.
func (c *Client) ListFriendRequests(ctx context.Context, userID string) ([]model.FriendRequest, error) {
	var reqs []model.FriendRequest
	if err := c.do(ctx, "list friend requests", http.MethodGet, "/friends/requests/"+seg(userID), nil, &reqs); err != nil {
		return nil, err
	}
	for i := range reqs {
		reqs[i].SenderName = clean(reqs[i].SenderName)
	}
	return nonNil(reqs), nil
}

// SendFriendRequest asks toUserID to become a friend of fromUserID.
func (c *Client) SendFriendRequest(ctx context.Context, fromUserID, toUserID string) error {
	body := map[string]string{"fromUserId": fromUserID, "toUserId": toUserID}
	return c.do(ctx, "send friend request", http.MethodPost, "/friends/request", body, nil)
}

// AcceptFriendRequest accepts an incoming request.
func (c *Client) AcceptFriendRequest(ctx context.Context, requestID string) error {
	return c.do(ctx, "accept friend request", http.MethodPut, "/friends/accept/"+seg(requestID), nil, nil)
}

// DenyFriendRequest rejects an incoming request. Only sent when the
// deployment enables friend removals on the backend.
func (c *Client) DenyFriendRequest(ctx context.Context, requestID string) error {
	return c.do(ctx, "deny friend request", http.MethodPut, "/friends/deny/"+seg(requestID), nil, nil)
}

// RemoveFriend deletes the friendship between userID and friendID. Only sent
// when the deployment enables friend removals on the backend.
func (c *Client) RemoveFriend(ctx context.Context, userID, friendID string) error {
	return c.do(ctx, "remove friend", http.MethodDelete, "/friends/"+seg(userID)+"/"+seg(friendID), nil, nil)
}

// SearchUsers looks up directory entries matching query on behalf of userID.
func (c *Client) SearchUsers(ctx context.Context, query, userID string) ([]model.User, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("userId", userID)
	var users []model.User
	if err := c.do(ctx, "search users", http.MethodGet, "/users/search?"+q.Encode(), nil, &users); err != nil {
		return nil, err
	}
	for i := range users {
		users[i].Name = clean(users[i].Name)
	}
	return nonNil(users), nil
}

// ActiveAlerts returns every active alert visible to the caller.
func (c *Client) ActiveAlerts(ctx context.Context) ([]model.Alert, error) {
	var alerts []model.Alert
	if err := c.do(ctx, "active alerts", http.MethodGet, "/alerts/active", nil, &alerts); err != nil {
		return nil, err
	}
	for i := range alerts {
		a := &alerts[i]
		if a.ID == "" || a.SenderID == "" {
			return nil, &model.Error{Op: "active alerts", Kind: model.KindDecode, Message: "alert without id or senderId"}
		}
		a.SenderName = clean(a.SenderName)
		a.ProductType = clean(a.ProductType)
		a.Location = clean(a.Location)
		a.HelperName = clean(a.HelperName)
	}
	return nonNil(alerts), nil
}

// CreateAlertRequest is the body of POST /alerts.
type CreateAlertRequest struct {
	SenderID    string  `json:"sender_id"`
	ProductType string  `json:"product_type"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

// CreateAlert broadcasts a new alert to the sender's friends.
func (c *Client) CreateAlert(ctx context.Context, req CreateAlertRequest) error {
	return c.do(ctx, "send alert", http.MethodPost, "/alerts", req, nil)
}

// AcceptAlert records helperID as the helper for alertID.
func (c *Client) AcceptAlert(ctx context.Context, alertID, helperID string) error {
	body := map[string]string{"helperId": helperID}
	return c.do(ctx, "accept alert", http.MethodPut, "/alerts/"+seg(alertID)+"/accept", body, nil)
}

// CancelAlert withdraws an alert.
func (c *Client) CancelAlert(ctx context.Context, alertID string) error {
	return c.do(ctx, "cancel alert", http.MethodPut, "/alerts/"+seg(alertID)+"/cancel", nil, nil)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
