// Package api is a JSON/HTTP client for the Luna backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/me/luna/pkg/model"
)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 1 << 20

// Client communicates with the Luna backend on behalf of one user.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	mu    sync.RWMutex
	token string
}

// NewClient creates a backend client. A zero timeout means no per-request limit.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		logger: logger.With("component", "api"),
	}
}

// SetToken sets the bearer token sent with every request. Empty clears it.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// do executes one request. body and dest may be nil. Every failure comes
// back as a *model.Error tagged with op.
func (c *Client) do(ctx context.Context, op, method, path string, body, dest any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &model.Error{Op: op, Kind: model.KindValidation, Message: "encode request", Err: err}
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return &model.Error{Op: op, Kind: model.KindTransport, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	reqID := uuid.New().String()
	req.Header.Set("X-Request-ID", reqID)
	if tok := c.bearer(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("HTTP request failed", "op", op, "method", method, "path", path, "request_id", reqID, "error", err)
		return &model.Error{Op: op, Kind: model.KindTransport, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &model.Error{Op: op, Kind: model.KindTransport, Err: fmt.Errorf("read response: %w", err)}
	}

	c.logger.Debug("HTTP response",
		"op", op,
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"request_id", reqID,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &model.Error{
			Op:         op,
			Kind:       model.KindStatus,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(respBody),
		}
	}

	if msg := errorMessage(respBody); msg != "" {
		return &model.Error{Op: op, Kind: model.KindRejected, StatusCode: resp.StatusCode, Message: msg}
	}

	if dest == nil {
		return nil
	}
	if len(bytes.TrimSpace(respBody)) == 0 {
		return &model.Error{Op: op, Kind: model.KindDecode, StatusCode: resp.StatusCode, Message: "empty response body"}
	}
	if err := json.Unmarshal(respBody, dest); err != nil {
		return &model.Error{Op: op, Kind: model.KindDecode, StatusCode: resp.StatusCode, Err: err}
	}
	return nil
}

// errorMessage extracts the "error" field of a JSON object body. The backend
// sends either a string or an object with a "message".
func errorMessage(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return ""
	}
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil || len(envelope.Error) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(envelope.Error, &s); err == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(envelope.Error, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	if string(envelope.Error) == "null" || string(envelope.Error) == "false" {
		return ""
	}
	return string(envelope.Error)
}

func seg(s string) string {
	return url.PathEscape(s)
}
