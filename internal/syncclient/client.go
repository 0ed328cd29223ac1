// Package syncclient is the HTTP client for the replog sync server.
//
// Types here mirror internal/api's wire format but are defined
// independently so the client binary does not link server code.
package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Sentinel errors for common failure classes. Transport-level failures
// (server unreachable, request timed out) are distinguished from HTTP
// error statuses so callers can tell "offline" apart from "rejected".
var (
	ErrUnreachable  = errors.New("server unreachable")
	ErrTimeout      = errors.New("request timed out")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
)

// Client is an HTTP client for the replog sync server.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

// New creates a client for the given server. The token may be empty for
// unauthenticated calls such as anonymous provisioning.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// --- Sync types ---

// WireEvent is a single event in a sync request.
type WireEvent struct {
	EventID        string          `json:"event_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	SequenceNumber int64           `json:"sequence_number"`
	CorrelationID  string          `json:"correlation_id,omitempty"`
}

// SyncRequest is the body for POST /api/v1/sync.
type SyncRequest struct {
	DeviceID string      `json:"device_id"`
	UserID   string      `json:"user_id"`
	Events   []WireEvent `json:"events"`
}

// AckCursor reports the highest sequence number the server holds for a
// device. Null means the server has never stored an event for it.
type AckCursor struct {
	DeviceID          string `json:"device_id"`
	LastAckedSequence *int64 `json:"last_acked_sequence"`
}

// Rejection is the server's reason for refusing one event.
type Rejection struct {
	EventID string `json:"event_id"`
	Reason  string `json:"reason"`
}

// SyncResponse is the server's accounting for one sync request.
// Duplicates count as accepted.
type SyncResponse struct {
	AckCursor        AckCursor   `json:"ack_cursor"`
	AcceptedCount    int         `json:"accepted_count"`
	RejectedCount    int         `json:"rejected_count"`
	RejectedEventIDs []string    `json:"rejected_event_ids,omitempty"`
	Rejections       []Rejection `json:"rejections,omitempty"`
}

// SyncStatusResponse is the response from GET /api/v1/sync/status.
type SyncStatusResponse struct {
	DeviceID          string `json:"device_id"`
	EventCount        int64  `json:"event_count"`
	LastAckedSequence *int64 `json:"last_acked_sequence"`
}

// --- User types ---

// AnonymousUserRequest is the body for POST /api/v1/users/anonymous.
// UserID is optional; the server mints one when it is absent.
type AnonymousUserRequest struct {
	UserID string `json:"user_id,omitempty"`
}

// AnonymousUserResponse carries the provisioned identity and its token.
// The token is shown exactly once; the server stores only a hash.
type AnonymousUserResponse struct {
	UserID      string `json:"user_id"`
	Token       string `json:"token"`
	IsAnonymous bool   `json:"is_anonymous"`
}

// UserResponse is the response from GET /api/v1/users/me.
type UserResponse struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email,omitempty"`
	IsAnonymous bool   `json:"is_anonymous"`
	CreatedAt   string `json:"created_at"`
}

// MergeRequest is the body for POST /api/v1/users/merge.
type MergeRequest struct {
	AnonymousUserID string `json:"anonymous_user_id"`
}

// MergeResponse reports how many events moved to the authenticated user.
type MergeResponse struct {
	UserID           string `json:"user_id"`
	MergedEventCount int64  `json:"merged_event_count"`
}

// HealthResponse is the response from GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

// --- Methods ---

// Push sends one batch of queued events for ingestion. An empty batch is
// legal and acks nothing.
func (c *Client) Push(ctx context.Context, req SyncRequest) (*SyncResponse, error) {
	if req.Events == nil {
		req.Events = []WireEvent{}
	}
	var resp SyncResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/sync", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SyncStatus reports the server-side cursor for one device.
func (c *Client) SyncStatus(ctx context.Context, deviceID string) (*SyncStatusResponse, error) {
	params := url.Values{}
	params.Set("device_id", deviceID)
	var resp SyncStatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/sync/status?"+params.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateAnonymousUser provisions an anonymous identity. No token required.
func (c *Client) CreateAnonymousUser(ctx context.Context, userID string) (*AnonymousUserResponse, error) {
	var resp AnonymousUserResponse
	if err := c.doNoAuth(ctx, http.MethodPost, "/api/v1/users/anonymous", AnonymousUserRequest{UserID: userID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Me returns the identity behind the client's token.
func (c *Client) Me(ctx context.Context) (*UserResponse, error) {
	var resp UserResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/users/me", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// MergeUsers folds an anonymous user's history into the identity behind
// the client's token. Returns ErrConflict when the two histories claim
// the same (device_id, sequence_number) slot.
func (c *Client) MergeUsers(ctx context.Context, anonymousUserID string) (*MergeResponse, error) {
	var resp MergeResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/users/merge", MergeRequest{AnonymousUserID: anonymousUserID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health hits /healthz to verify server reachability.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.doNoAuth(ctx, http.MethodGet, "/healthz", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// --- HTTP helpers ---

// errorBody is the server's error envelope.
type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// do executes an authenticated HTTP request.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	return c.doRequest(ctx, method, path, body, result, true)
}

// doNoAuth executes an unauthenticated HTTP request.
func (c *Client) doNoAuth(ctx context.Context, method, path string, body, result any) error {
	return c.doRequest(ctx, method, path, body, result, false)
}

func (c *Client) doRequest(ctx context.Context, method, path string, body, result any, auth bool) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth && c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return classifyTransport(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return statusError(resp.StatusCode, respBody)
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}

// classifyTransport maps connection-level failures onto sentinels so
// callers can distinguish offline from rejected.
func classifyTransport(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	return fmt.Errorf("http request: %w", err)
}

// statusError decodes the server's error envelope. Bodies that are not
// the envelope (proxies, panics) fall back to the raw text.
func statusError(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	var eb errorBody
	if json.Unmarshal(body, &eb) == nil && eb.Error.Code != "" {
		msg = eb.Error.Message
		if msg == "" {
			msg = eb.Error.Code
		}
	}
	switch status {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthorized, msg)
	case http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrForbidden, msg)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, msg)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", ErrConflict, msg)
	default:
		return fmt.Errorf("HTTP %d: %s", status, msg)
	}
}
