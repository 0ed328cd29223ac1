package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mvarner/replog/internal/serverdb"
	"github.com/mvarner/replog/internal/webhook"
)

// newTestServer creates a Server backed by a temp database.
func newTestServer(t *testing.T) (*Server, *serverdb.ServerDB) {
	return newTestServerWithConfig(t, nil)
}

// newTestServerWithConfig creates a test server with a custom config modifier.
func newTestServerWithConfig(t *testing.T, modCfg func(*Config)) (*Server, *serverdb.ServerDB) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "server.db")
	store, err := serverdb.Open(dbPath)
	if err != nil {
		t.Fatalf("open server db: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := Config{
		ListenAddr:      ":0",
		DBPath:          dbPath,
		MaxBatch:        10000,
		RebuildDebounce: 0,
	}
	if modCfg != nil {
		modCfg(&cfg)
	}

	srv, err := NewServer(cfg, store)
	if err != nil {
		t.Fatalf("create server: %v", err)
	}
	return srv, store
}

// createTestUser creates a registered user and a token, returning both.
func createTestUser(t *testing.T, store *serverdb.ServerDB, email string) (string, string) {
	t.Helper()
	user, err := store.CreateUser(context.Background(), email)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	token, _, err := store.IssueToken(context.Background(), user.ID, "test")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return user.ID, token
}

// createAnonUser provisions an anonymous user directly in the store.
func createAnonUser(t *testing.T, store *serverdb.ServerDB) (string, string) {
	t.Helper()
	user, err := store.EnsureAnonymousUser(context.Background(), "")
	if err != nil {
		t.Fatalf("ensure anonymous user: %v", err)
	}
	token, _, err := store.IssueToken(context.Background(), user.ID, "test")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return user.ID, token
}

func doRequest(srv *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}

	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	srv.routes().ServeHTTP(w, req)
	return w
}

// doRaw sends a request with a raw, unencoded body.
func doRaw(srv *Server, method, path, token, raw string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(raw))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	srv.routes().ServeHTTP(w, req)
	return w
}

// evInput builds a push event with a fresh event id.
func evInput(typ, payload string, seq int64) EventInput {
	return EventInput{
		EventID:        uuid.NewString(),
		EventType:      typ,
		Payload:        json.RawMessage(payload),
		SequenceNumber: seq,
	}
}

func errCodeOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp.Error.Code
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doRequest(srv, "GET", "/healthz", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp map[string]string
	json.NewDecoder(w.Body).Decode(&resp)
	if resp["status"] != "ok" {
		t.Fatalf("expected status ok, got %s", resp["status"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	doRequest(srv, "GET", "/healthz", "", nil)

	w := doRequest(srv, "GET", "/metricz", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var snap MetricsSnapshot
	json.NewDecoder(w.Body).Decode(&snap)
	if snap.Requests < 1 {
		t.Fatalf("expected at least 1 request recorded, got %d", snap.Requests)
	}
}

func TestSyncRequiresAuth(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doRequest(srv, "POST", "/api/v1/sync", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	w = doRequest(srv, "POST", "/api/v1/sync", "rl_bogus", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bogus token: expected 401, got %d", w.Code)
	}
}

func TestSyncPushSuccess(t *testing.T) {
	srv, store := newTestServer(t)
	userID, token := createTestUser(t, store, "push@test.com")

	body := SyncRequest{
		DeviceID: "dev1",
		UserID:   userID,
		Events: []EventInput{
			evInput("WorkoutStarted", `{"workout_id":"w1","started_at":"2026-03-02T10:00:00Z"}`, 1),
			evInput("SetCompleted", `{"workout_id":"w1","exercise_id":"back-squat","set_id":"s1","reps":5,"weight":100,"completed_at":"2026-03-02T10:05:00Z"}`, 2),
		},
	}

	w := doRequest(srv, "POST", "/api/v1/sync", token, body)
	if w.Code != http.StatusOK {
		t.Fatalf("push: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp SyncResponse
	json.NewDecoder(w.Body).Decode(&resp)

	if resp.AcceptedCount != 2 {
		t.Fatalf("expected 2 accepted, got %d", resp.AcceptedCount)
	}
	if resp.RejectedCount != 0 {
		t.Fatalf("expected 0 rejected, got %d", resp.RejectedCount)
	}
	if resp.AckCursor.DeviceID != "dev1" {
		t.Fatalf("ack cursor device: got %q", resp.AckCursor.DeviceID)
	}
	if resp.AckCursor.LastAckedSequence == nil || *resp.AckCursor.LastAckedSequence != 2 {
		t.Fatalf("ack cursor: got %v, want 2", resp.AckCursor.LastAckedSequence)
	}

	count, err := store.CountEventsForUser(context.Background(), userID)
	if err != nil {
		t.Fatalf("count events: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 stored events, got %d", count)
	}
}

func TestSyncPushDuplicateRedelivery(t *testing.T) {
	srv, store := newTestServer(t)
	userID, token := createTestUser(t, store, "dup@test.com")

	body := SyncRequest{
		DeviceID: "dev1",
		UserID:   userID,
		Events: []EventInput{
			evInput("WorkoutStarted", `{"workout_id":"w1","started_at":"2026-03-02T10:00:00Z"}`, 1),
			evInput("WorkoutCancelled", `{"workout_id":"w1"}`, 2),
		},
	}

	w := doRequest(srv, "POST", "/api/v1/sync", token, body)
	if w.Code != http.StatusOK {
		t.Fatalf("first push: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// Retry the same batch, as a client that crashed before marking synced
	// would.
	w = doRequest(srv, "POST", "/api/v1/sync", token, body)
	if w.Code != http.StatusOK {
		t.Fatalf("retry push: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp SyncResponse
	json.NewDecoder(w.Body).Decode(&resp)

	if resp.AcceptedCount != 2 {
		t.Fatalf("retry: expected 2 accepted (duplicates count), got %d", resp.AcceptedCount)
	}
	if resp.AckCursor.LastAckedSequence == nil || *resp.AckCursor.LastAckedSequence != 2 {
		t.Fatalf("retry ack cursor: got %v, want 2", resp.AckCursor.LastAckedSequence)
	}

	count, err := store.CountEventsForUser(context.Background(), userID)
	if err != nil {
		t.Fatalf("count events: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 stored events after retry, got %d", count)
	}
}

func TestSyncPushRejectsInvalidEvents(t *testing.T) {
	srv, store := newTestServer(t)
	userID, token := createTestUser(t, store, "reject@test.com")

	good := evInput("WorkoutStarted", `{"workout_id":"w1","started_at":"2026-03-02T10:00:00Z"}`, 1)
	unknownType := evInput("WorkoutPaused", `{"workout_id":"w1"}`, 2)
	badPayload := evInput("WorkoutEnded", `{"workout_id":"w1"}`, 3) // missing ended_at
	badSeq := evInput("WorkoutCancelled", `{"workout_id":"w1"}`, 0)

	w := doRequest(srv, "POST", "/api/v1/sync", token, SyncRequest{
		DeviceID: "dev1",
		UserID:   userID,
		Events:   []EventInput{good, unknownType, badPayload, badSeq},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("push: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp SyncResponse
	json.NewDecoder(w.Body).Decode(&resp)

	if resp.AcceptedCount != 1 {
		t.Fatalf("expected 1 accepted, got %d", resp.AcceptedCount)
	}
	if resp.RejectedCount != 3 {
		t.Fatalf("expected 3 rejected, got %d", resp.RejectedCount)
	}
	if len(resp.Rejections) != 3 {
		t.Fatalf("expected 3 rejections, got %d", len(resp.Rejections))
	}

	reasons := map[string]string{}
	for _, rej := range resp.Rejections {
		reasons[rej.EventID] = rej.Reason
	}
	if !strings.Contains(reasons[unknownType.EventID], "unknown event type") {
		t.Errorf("unknown type reason: got %q", reasons[unknownType.EventID])
	}
	if !strings.Contains(reasons[badPayload.EventID], "ended_at") {
		t.Errorf("bad payload reason: got %q", reasons[badPayload.EventID])
	}
	if !strings.Contains(reasons[badSeq.EventID], "sequence_number") {
		t.Errorf("bad seq reason: got %q", reasons[badSeq.EventID])
	}

	// The rejected events must not land in the log.
	count, err := store.CountEventsForUser(context.Background(), userID)
	if err != nil {
		t.Fatalf("count events: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 stored event, got %d", count)
	}

	// Cursor covers only the accepted event.
	if resp.AckCursor.LastAckedSequence == nil || *resp.AckCursor.LastAckedSequence != 1 {
		t.Fatalf("ack cursor: got %v, want 1", resp.AckCursor.LastAckedSequence)
	}
}

func TestSyncPushUserMismatch(t *testing.T) {
	srv, store := newTestServer(t)
	_, token := createTestUser(t, store, "owner@test.com")
	otherID, _ := createTestUser(t, store, "other@test.com")

	w := doRequest(srv, "POST", "/api/v1/sync", token, SyncRequest{
		DeviceID: "dev1",
		UserID:   otherID,
		Events:   []EventInput{},
	})
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", w.Code, w.Body.String())
	}
	if code := errCodeOf(t, w); code != ErrCodeForbidden {
		t.Fatalf("expected error code forbidden, got %q", code)
	}
}

func TestSyncPushEmptyBatch(t *testing.T) {
	srv, store := newTestServer(t)
	userID, token := createTestUser(t, store, "empty@test.com")

	w := doRequest(srv, "POST", "/api/v1/sync", token, SyncRequest{
		DeviceID: "dev1",
		UserID:   userID,
		Events:   []EventInput{},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp SyncResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.AcceptedCount != 0 {
		t.Fatalf("expected 0 accepted, got %d", resp.AcceptedCount)
	}
	if resp.AckCursor.LastAckedSequence != nil {
		t.Fatalf("expected null cursor, got %d", *resp.AckCursor.LastAckedSequence)
	}
}

func TestSyncPushRequestValidation(t *testing.T) {
	srv, store := newTestServer(t)
	userID, token := createTestUser(t, store, "reqval@test.com")

	w := doRaw(srv, "POST", "/api/v1/sync", token, `{not json`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("malformed json: expected 400, got %d", w.Code)
	}

	w = doRequest(srv, "POST", "/api/v1/sync", token, SyncRequest{UserID: userID})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing device_id: expected 400, got %d", w.Code)
	}

	w = doRequest(srv, "POST", "/api/v1/sync", token, SyncRequest{DeviceID: "dev1"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing user_id: expected 400, got %d", w.Code)
	}
}

func TestSyncPushRejectsOversizedBatch(t *testing.T) {
	srv, store := newTestServerWithConfig(t, func(cfg *Config) {
		cfg.MaxBatch = 5
	})
	userID, token := createTestUser(t, store, "oversize@test.com")

	events := make([]EventInput, 6)
	for i := range events {
		events[i] = evInput("WorkoutCancelled", fmt.Sprintf(`{"workout_id":"w%d"}`, i+1), int64(i+1))
	}

	w := doRequest(srv, "POST", "/api/v1/sync", token, SyncRequest{
		DeviceID: "dev1", UserID: userID, Events: events,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized batch, got %d: %s", w.Code, w.Body.String())
	}

	// Exactly the cap is fine.
	w = doRequest(srv, "POST", "/api/v1/sync", token, SyncRequest{
		DeviceID: "dev1", UserID: userID, Events: events[:5],
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for batch at the cap, got %d: %s", w.Code, w.Body.String())
	}
}

func TestSyncStatus(t *testing.T) {
	srv, store := newTestServer(t)
	userID, token := createTestUser(t, store, "status@test.com")

	w := doRequest(srv, "GET", "/api/v1/sync/status?device_id=dev1", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: expected 200, got %d", w.Code)
	}
	var status SyncStatusResponse
	json.NewDecoder(w.Body).Decode(&status)
	if status.EventCount != 0 || status.LastAckedSequence != nil {
		t.Fatalf("fresh device: got count=%d cursor=%v", status.EventCount, status.LastAckedSequence)
	}

	w = doRequest(srv, "POST", "/api/v1/sync", token, SyncRequest{
		DeviceID: "dev1",
		UserID:   userID,
		Events: []EventInput{
			evInput("WorkoutStarted", `{"workout_id":"w1","started_at":"2026-03-02T10:00:00Z"}`, 1),
			evInput("WorkoutCancelled", `{"workout_id":"w1"}`, 4),
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("push: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doRequest(srv, "GET", "/api/v1/sync/status?device_id=dev1", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: expected 200, got %d", w.Code)
	}
	json.NewDecoder(w.Body).Decode(&status)
	if status.EventCount != 2 {
		t.Fatalf("expected 2 events, got %d", status.EventCount)
	}
	if status.LastAckedSequence == nil || *status.LastAckedSequence != 4 {
		t.Fatalf("cursor: got %v, want 4", status.LastAckedSequence)
	}

	// Other device, same user: empty.
	w = doRequest(srv, "GET", "/api/v1/sync/status?device_id=dev2", token, nil)
	json.NewDecoder(w.Body).Decode(&status)
	if status.EventCount != 0 {
		t.Fatalf("dev2: expected 0 events, got %d", status.EventCount)
	}
}

func TestSyncStatusRequiresDeviceID(t *testing.T) {
	srv, store := newTestServer(t)
	_, token := createTestUser(t, store, "nodevice@test.com")

	w := doRequest(srv, "GET", "/api/v1/sync/status", token, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestBackgroundRebuildAfterPush(t *testing.T) {
	srv, store := newTestServer(t)
	userID, token := createTestUser(t, store, "bg@test.com")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.rebuilds.run(ctx)

	w := doRequest(srv, "POST", "/api/v1/sync", token, SyncRequest{
		DeviceID: "dev1",
		UserID:   userID,
		Events: []EventInput{
			evInput("WorkoutStarted", `{"workout_id":"w-bg","started_at":"2026-03-02T10:00:00Z"}`, 1),
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("push: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		row, err := store.GetWorkoutRow(context.Background(), "w-bg")
		if err != nil {
			t.Fatalf("get workout: %v", err)
		}
		if row != nil {
			if row.Status != serverdb.WorkoutInProgress {
				t.Fatalf("status: got %s, want %s", row.Status, serverdb.WorkoutInProgress)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("projection was not rebuilt in the background")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSyncPushFiresWebhook(t *testing.T) {
	type hookCall struct {
		body []byte
		sig  string
		ts   string
	}
	calls := make(chan hookCall, 4)

	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		calls <- hookCall{
			body: body,
			sig:  r.Header.Get("X-Replog-Signature"),
			ts:   r.Header.Get("X-Replog-Timestamp"),
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer hook.Close()

	srv, store := newTestServerWithConfig(t, func(cfg *Config) {
		cfg.WebhookURL = hook.URL
		cfg.WebhookSecret = "hook-secret"
	})
	userID, token := createTestUser(t, store, "hook@test.com")

	body := SyncRequest{
		DeviceID: "dev1",
		UserID:   userID,
		Events: []EventInput{
			evInput("WorkoutStarted", `{"workout_id":"w1","started_at":"2026-03-02T10:00:00Z"}`, 1),
			evInput("WorkoutCancelled", `{"workout_id":"w1"}`, 2),
		},
	}

	w := doRequest(srv, "POST", "/api/v1/sync", token, body)
	if w.Code != http.StatusOK {
		t.Fatalf("push: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	select {
	case call := <-calls:
		var p webhook.Payload
		if err := json.Unmarshal(call.body, &p); err != nil {
			t.Fatalf("unmarshal webhook body: %v", err)
		}
		if p.UserID != userID || p.DeviceID != "dev1" {
			t.Errorf("webhook identity: got %+v", p)
		}
		if p.Inserted != 2 || p.Duplicates != 0 || p.Rejected != 0 {
			t.Errorf("webhook counts: got %+v", p)
		}
		if p.LastAckedSequence == nil || *p.LastAckedSequence != 2 {
			t.Errorf("webhook cursor: got %v, want 2", p.LastAckedSequence)
		}

		mac := hmac.New(sha256.New, []byte("hook-secret"))
		mac.Write([]byte(call.ts))
		mac.Write([]byte("."))
		mac.Write(call.body)
		want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
		if call.sig != want {
			t.Errorf("webhook signature mismatch:\n  got:  %s\n  want: %s", call.sig, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("webhook was not called after a push that inserted events")
	}

	// Redelivering the same batch inserts nothing, so no notification.
	w = doRequest(srv, "POST", "/api/v1/sync", token, body)
	if w.Code != http.StatusOK {
		t.Fatalf("retry push: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	select {
	case <-calls:
		t.Fatal("webhook fired for a duplicate-only push")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestRebuildWorkerCoalesces(t *testing.T) {
	rw := newRebuildWorker(nil, NewMetrics(), 0)
	rw.request("u2")
	rw.request("u1")
	rw.request("u2")

	users := rw.take()
	if len(users) != 2 {
		t.Fatalf("expected 2 dirty users, got %d", len(users))
	}
	if users[0] != "u1" || users[1] != "u2" {
		t.Fatalf("expected sorted [u1 u2], got %v", users)
	}

	if again := rw.take(); len(again) != 0 {
		t.Fatalf("expected drained dirty set, got %v", again)
	}
}
