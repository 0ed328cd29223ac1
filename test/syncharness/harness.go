// Package syncharness drives the full sync stack end to end: real local
// queues from internal/db, the coordinator, the HTTP client, the API
// server and the server store with its projections. Nothing is stubbed;
// every push crosses a real HTTP boundary.
package syncharness

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/mvarner/replog/internal/api"
	"github.com/mvarner/replog/internal/db"
	"github.com/mvarner/replog/internal/events"
	"github.com/mvarner/replog/internal/serverdb"
	replogsync "github.com/mvarner/replog/internal/sync"
	"github.com/mvarner/replog/internal/syncclient"
)

// SimulatedClient is one device: a local event queue plus the identity it
// syncs as. Identity is empty until minted, the same as a fresh install.
type SimulatedClient struct {
	DeviceID string
	UserID   string
	Token    string
	Store    *db.DB
}

// Harness wires simulated clients to one replog server over real HTTP.
type Harness struct {
	t          *testing.T
	Store      *serverdb.ServerDB
	Server     *httptest.Server
	ServerPath string
	Clients    map[string]*SimulatedClient
	clientKeys []string
}

// NewHarness starts an API server on a file-backed store and creates
// numClients local queues named client-A, client-B, ... with matching
// device ids. Clients carry no identity until MintIdentity runs.
func NewHarness(t *testing.T, numClients int) *Harness {
	t.Helper()

	serverPath := filepath.Join(t.TempDir(), "server.db")
	store, err := serverdb.Open(serverPath)
	if err != nil {
		t.Fatalf("open server store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	srv, err := api.NewServer(api.Config{DBPath: serverPath, MaxBatch: 10000}, store)
	if err != nil {
		t.Fatalf("new api server: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	h := &Harness{
		t:          t,
		Store:      store,
		Server:     ts,
		ServerPath: serverPath,
		Clients:    make(map[string]*SimulatedClient),
	}

	for i := 0; i < numClients; i++ {
		letter := string(rune('A' + i))
		clientID := "client-" + letter
		local, err := db.Initialize(t.TempDir())
		if err != nil {
			t.Fatalf("init %s store: %v", clientID, err)
		}
		t.Cleanup(func() { local.Close() })

		h.Clients[clientID] = &SimulatedClient{
			DeviceID: "device-" + strings.ToLower(letter),
			Store:    local,
		}
		h.clientKeys = append(h.clientKeys, clientID)
	}
	return h
}

func (h *Harness) client(clientID string) *SimulatedClient {
	h.t.Helper()
	c, ok := h.Clients[clientID]
	if !ok {
		h.t.Fatalf("unknown client: %s", clientID)
	}
	return c
}

// ─── Identity ───

// MintIdentity gives the named clients one locally minted anonymous user
// id without any server contact, the way replog init works offline.
func (h *Harness) MintIdentity(clientIDs ...string) string {
	h.t.Helper()
	userID := uuid.NewString()
	for _, id := range clientIDs {
		h.client(id).UserID = userID
	}
	return userID
}

// Provision registers the named clients' minted identity with the server
// and stores the returned token on each of them. All named clients must
// share one user id.
func (h *Harness) Provision(clientIDs ...string) string {
	h.t.Helper()
	if len(clientIDs) == 0 {
		h.t.Fatal("provision: no clients named")
	}
	userID := h.client(clientIDs[0]).UserID
	if userID == "" {
		h.t.Fatalf("provision: %s has no minted identity", clientIDs[0])
	}

	resp, err := syncclient.New(h.Server.URL, "").CreateAnonymousUser(context.Background(), userID)
	if err != nil {
		h.t.Fatalf("provision anonymous user: %v", err)
	}
	for _, id := range clientIDs {
		c := h.client(id)
		if c.UserID != userID {
			h.t.Fatalf("provision: %s has user %s, want %s", id, c.UserID, userID)
		}
		c.Token = resp.Token
	}
	return resp.Token
}

// RegisterUser creates a registered account with a token, the way the
// server admin CLI does.
func (h *Harness) RegisterUser(email string) (userID, token string) {
	h.t.Helper()
	ctx := context.Background()

	user, err := h.Store.CreateUser(ctx, email)
	if err != nil {
		h.t.Fatalf("create user: %v", err)
	}
	plaintext, _, err := h.Store.IssueToken(ctx, user.ID, "harness")
	if err != nil {
		h.t.Fatalf("issue token: %v", err)
	}
	return user.ID, plaintext
}

// Adopt points a client at a different account, as the merge command does
// once the server-side merge lands.
func (h *Harness) Adopt(clientID, userID, token string) {
	h.t.Helper()
	c := h.client(clientID)
	c.UserID = userID
	c.Token = token
}

// ─── Local mutations ───

// StartWorkout enqueues a WorkoutStarted event and opens the local
// workout scratch, the way the CLI start command does.
func (h *Harness) StartWorkout(clientID string, at time.Time) string {
	h.t.Helper()
	c := h.client(clientID)
	ctx := context.Background()

	workoutID := "w-" + uuid.NewString()[:8]
	rec, err := events.New(events.TypeWorkoutStarted, c.UserID, c.DeviceID, workoutID,
		events.WorkoutStarted{WorkoutID: workoutID, StartedAt: at})
	if err != nil {
		h.t.Fatalf("build WorkoutStarted: %v", err)
	}
	if err := c.Store.Enqueue(ctx, &rec); err != nil {
		h.t.Fatalf("enqueue WorkoutStarted: %v", err)
	}
	if err := c.Store.SetOpenWorkout(ctx, workoutID, at); err != nil {
		h.t.Fatalf("open workout scratch: %v", err)
	}
	return workoutID
}

// LogSet enqueues a set the way the CLI log command does: ExerciseAdded
// on the exercise's first use in the workout, then SetCompleted, both in
// one Enqueue call so their sequence numbers are adjacent.
func (h *Harness) LogSet(clientID, workoutID, exercise string, reps int, weight float64, at time.Time) string {
	h.t.Helper()
	c := h.client(clientID)
	ctx := context.Background()

	exerciseID, added, err := c.Store.EnsureExercise(ctx, workoutID, exercise)
	if err != nil {
		h.t.Fatalf("ensure exercise: %v", err)
	}

	setID := "s-" + uuid.NewString()[:8]
	var recs []*events.Record
	if added {
		rec, err := events.New(events.TypeExerciseAdded, c.UserID, c.DeviceID, workoutID,
			events.ExerciseAdded{WorkoutID: workoutID, ExerciseID: exerciseID, ExerciseName: exercise})
		if err != nil {
			h.t.Fatalf("build ExerciseAdded: %v", err)
		}
		recs = append(recs, &rec)
	}
	rec, err := events.New(events.TypeSetCompleted, c.UserID, c.DeviceID, workoutID,
		events.SetCompleted{
			WorkoutID:   workoutID,
			ExerciseID:  exerciseID,
			SetID:       setID,
			Reps:        &reps,
			Weight:      &weight,
			CompletedAt: at,
		})
	if err != nil {
		h.t.Fatalf("build SetCompleted: %v", err)
	}
	recs = append(recs, &rec)

	if err := c.Store.Enqueue(ctx, recs...); err != nil {
		h.t.Fatalf("enqueue set: %v", err)
	}
	return setID
}

// EditSet enqueues a SetUpdated carrying only the given fields.
func (h *Harness) EditSet(clientID, setID string, reps *int, weight *float64) {
	h.t.Helper()
	c := h.client(clientID)

	rec, err := events.New(events.TypeSetUpdated, c.UserID, c.DeviceID, "",
		events.SetUpdated{SetID: setID, Reps: reps, Weight: weight})
	if err != nil {
		h.t.Fatalf("build SetUpdated: %v", err)
	}
	if err := c.Store.Enqueue(context.Background(), &rec); err != nil {
		h.t.Fatalf("enqueue SetUpdated: %v", err)
	}
}

// DeleteSet enqueues a SetDeleted.
func (h *Harness) DeleteSet(clientID, setID string) {
	h.t.Helper()
	c := h.client(clientID)

	rec, err := events.New(events.TypeSetDeleted, c.UserID, c.DeviceID, "",
		events.SetDeleted{SetID: setID})
	if err != nil {
		h.t.Fatalf("build SetDeleted: %v", err)
	}
	if err := c.Store.Enqueue(context.Background(), &rec); err != nil {
		h.t.Fatalf("enqueue SetDeleted: %v", err)
	}
}

// FinishWorkout enqueues WorkoutEnded and clears the local scratch.
func (h *Harness) FinishWorkout(clientID, workoutID string, at time.Time) {
	h.t.Helper()
	c := h.client(clientID)
	ctx := context.Background()

	rec, err := events.New(events.TypeWorkoutEnded, c.UserID, c.DeviceID, workoutID,
		events.WorkoutEnded{WorkoutID: workoutID, EndedAt: at})
	if err != nil {
		h.t.Fatalf("build WorkoutEnded: %v", err)
	}
	if err := c.Store.Enqueue(ctx, &rec); err != nil {
		h.t.Fatalf("enqueue WorkoutEnded: %v", err)
	}
	if err := c.Store.ClearWorkoutScratch(ctx, workoutID); err != nil {
		h.t.Fatalf("clear workout scratch: %v", err)
	}
}

// CancelWorkout enqueues WorkoutCancelled and clears the local scratch.
func (h *Harness) CancelWorkout(clientID, workoutID string) {
	h.t.Helper()
	c := h.client(clientID)
	ctx := context.Background()

	rec, err := events.New(events.TypeWorkoutCancelled, c.UserID, c.DeviceID, workoutID,
		events.WorkoutCancelled{WorkoutID: workoutID})
	if err != nil {
		h.t.Fatalf("build WorkoutCancelled: %v", err)
	}
	if err := c.Store.Enqueue(ctx, &rec); err != nil {
		h.t.Fatalf("enqueue WorkoutCancelled: %v", err)
	}
	if err := c.Store.ClearWorkoutScratch(ctx, workoutID); err != nil {
		h.t.Fatalf("clear workout scratch: %v", err)
	}
}

// ─── Sync ───

// Sync runs one coordinator attempt for the client against the harness
// server. Every call builds a fresh coordinator, so recovery of events
// stranded at syncing runs exactly as it does on CLI process start.
func (h *Harness) Sync(clientID string) (replogsync.Result, error) {
	h.t.Helper()
	return h.SyncAgainst(clientID, h.Server.URL)
}

// SyncAgainst is Sync with an explicit base URL, so a test can point a
// client at an address nobody listens on.
func (h *Harness) SyncAgainst(clientID, baseURL string) (replogsync.Result, error) {
	h.t.Helper()
	c := h.client(clientID)

	transport := syncclient.New(baseURL, c.Token)
	co, err := replogsync.NewCoordinator(context.Background(), c.Store, transport, quietLogger())
	if err != nil {
		return replogsync.Result{}, err
	}
	return co.Sync(context.Background(), c.DeviceID, c.UserID)
}

// PushWithoutMark marks pending events syncing and pushes them, then
// deliberately skips the local bookkeeping. This simulates a crash after
// the server commits a batch but before the client records the acks.
func (h *Harness) PushWithoutMark(clientID string) (*syncclient.SyncResponse, error) {
	h.t.Helper()
	c := h.client(clientID)
	ctx := context.Background()

	pending, err := c.Store.GetPending(ctx, c.DeviceID, c.UserID, 0)
	if err != nil {
		return nil, fmt.Errorf("load pending: %w", err)
	}
	ids := make([]string, len(pending))
	wire := make([]syncclient.WireEvent, len(pending))
	for i, qe := range pending {
		ids[i] = qe.EventID
		wire[i] = syncclient.WireEvent{
			EventID:        qe.EventID,
			EventType:      string(qe.EventType),
			Payload:        qe.Payload,
			SequenceNumber: qe.SequenceNumber,
			CorrelationID:  qe.CorrelationID,
		}
	}
	if err := c.Store.MarkSyncing(ctx, ids); err != nil {
		return nil, fmt.Errorf("mark syncing: %w", err)
	}

	return syncclient.New(h.Server.URL, c.Token).Push(ctx, syncclient.SyncRequest{
		DeviceID: c.DeviceID,
		UserID:   c.UserID,
		Events:   wire,
	})
}

// DeadURL returns a base URL that refuses connections.
func (h *Harness) DeadURL() string {
	h.t.Helper()
	ts := httptest.NewServer(http.NotFoundHandler())
	ts.Close()
	return ts.URL
}

// ─── Server state ───

// Rebuild folds the server log into projections for one user, or for
// every user when userID is empty.
func (h *Harness) Rebuild(userID string) *serverdb.RebuildStats {
	h.t.Helper()
	stats, err := h.Store.RebuildProjections(context.Background(), userID)
	if err != nil {
		h.t.Fatalf("rebuild projections: %v", err)
	}
	return stats
}

// QueueStats returns local queue counts for a client.
func (h *Harness) QueueStats(clientID string) db.QueueStats {
	h.t.Helper()
	stats, err := h.client(clientID).Store.Stats(context.Background())
	if err != nil {
		h.t.Fatalf("queue stats: %v", err)
	}
	return stats
}

// inspect opens a second connection to the server database file, outside
// the server's own pool, to verify what actually hit disk.
func (h *Harness) inspect() *sql.DB {
	h.t.Helper()
	// The mattn driver is a non-functional stub when built with
	// CGO_ENABLED=0, so the inspection connection uses the pure-Go
	// driver that the stores under test already use.
	conn, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", h.ServerPath))
	if err != nil {
		h.t.Fatalf("open inspection connection: %v", err)
	}
	h.t.Cleanup(func() { conn.Close() })
	return conn
}

// ServerEventCount counts log rows for a user, straight from SQLite.
func (h *Harness) ServerEventCount(userID string) int {
	h.t.Helper()
	var n int
	err := h.inspect().QueryRow(`SELECT COUNT(*) FROM events WHERE user_id = ?`, userID).Scan(&n)
	if err != nil {
		h.t.Fatalf("count server events: %v", err)
	}
	return n
}

// DeviceLog returns "user seq type" lines for one device in replay order,
// for asserting attribution and sequence survival after merges.
func (h *Harness) DeviceLog(deviceID string) []string {
	h.t.Helper()
	rows, err := h.inspect().Query(`
		SELECT user_id, sequence_number, event_type FROM events
		WHERE device_id = ? ORDER BY sequence_number, user_id`, deviceID)
	if err != nil {
		h.t.Fatalf("read device log: %v", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var userID, eventType string
		var seq int64
		if err := rows.Scan(&userID, &seq, &eventType); err != nil {
			h.t.Fatalf("scan device log: %v", err)
		}
		out = append(out, fmt.Sprintf("%s %d %s", userID, seq, eventType))
	}
	if err := rows.Err(); err != nil {
		h.t.Fatalf("device log rows: %v", err)
	}
	return out
}

// ProjectionDump renders one user's projections as a deterministic
// string: every workout, set and weekly row in key order. Two stores
// that folded the same history dump identically.
func (h *Harness) ProjectionDump(userID string) string {
	h.t.Helper()
	conn := h.inspect()
	var sb strings.Builder

	dump := func(header, query string, args ...any) {
		rows, err := conn.Query(query, args...)
		if err != nil {
			h.t.Fatalf("dump %s: %v", header, err)
		}
		defer rows.Close()

		cols, err := rows.Columns()
		if err != nil {
			h.t.Fatalf("dump %s columns: %v", header, err)
		}
		sb.WriteString("== " + header + " ==\n")
		for rows.Next() {
			vals := make([]any, len(cols))
			ptrs := make([]any, len(cols))
			for i := range vals {
				ptrs[i] = &vals[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				h.t.Fatalf("dump %s scan: %v", header, err)
			}
			parts := make([]string, len(cols))
			for i, col := range cols {
				v := vals[i]
				if b, ok := v.([]byte); ok {
					v = string(b)
				}
				parts[i] = fmt.Sprintf("%s=%v", col, v)
			}
			sb.WriteString(strings.Join(parts, " | "))
			sb.WriteString("\n")
		}
		if err := rows.Err(); err != nil {
			h.t.Fatalf("dump %s rows: %v", header, err)
		}
	}

	dump("workouts", `
		SELECT workout_id, status, started_at, ended_at FROM workouts_projection
		WHERE user_id = ? ORDER BY workout_id`, userID)
	dump("sets", `
		SELECT s.set_id, s.workout_id, s.exercise_id, s.reps, s.weight, s.completed_at
		FROM sets_projection s
		JOIN workouts_projection w ON w.workout_id = s.workout_id
		WHERE w.user_id = ? ORDER BY s.set_id`, userID)
	dump("weekly", `
		SELECT week_start, total_workouts, total_volume, exercises_count
		FROM weekly_metrics WHERE user_id = ? ORDER BY week_start`, userID)

	return sb.String()
}

// quietLogger keeps coordinator logging out of test output.
func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
