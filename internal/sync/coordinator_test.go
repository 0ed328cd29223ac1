package sync

import (
	"context"
	"fmt"
	stdsync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvarner/replog/internal/db"
	"github.com/mvarner/replog/internal/events"
	"github.com/mvarner/replog/internal/syncclient"
)

// fakeTransport acks everything except the ids in rejects. When gate is
// set, Push blocks until the gate closes.
type fakeTransport struct {
	mu      stdsync.Mutex
	err     error
	rejects map[string]string
	gate    chan struct{}
	calls   int
	lastReq syncclient.SyncRequest
}

func (f *fakeTransport) Push(ctx context.Context, req syncclient.SyncRequest) (*syncclient.SyncResponse, error) {
	f.mu.Lock()
	f.calls++
	f.lastReq = req
	gate := f.gate
	err := f.err
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", syncclient.ErrTimeout, ctx.Err())
		}
	}
	if err != nil {
		return nil, err
	}

	resp := &syncclient.SyncResponse{AckCursor: syncclient.AckCursor{DeviceID: req.DeviceID}}
	var last int64
	for _, ev := range req.Events {
		if reason, bad := f.rejects[ev.EventID]; bad {
			resp.RejectedCount++
			resp.RejectedEventIDs = append(resp.RejectedEventIDs, ev.EventID)
			resp.Rejections = append(resp.Rejections, syncclient.Rejection{EventID: ev.EventID, Reason: reason})
			continue
		}
		resp.AcceptedCount++
		if ev.SequenceNumber > last {
			last = ev.SequenceNumber
		}
	}
	if resp.AcceptedCount > 0 {
		resp.AckCursor.LastAckedSequence = &last
	}
	return resp, nil
}

func (f *fakeTransport) pushCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testStore(t *testing.T) *db.DB {
	t.Helper()
	store, err := db.Initialize(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func enqueueN(t *testing.T, store *db.DB, userID, deviceID string, n int) []string {
	t.Helper()
	ctx := context.Background()
	ids := make([]string, n)
	for i := range ids {
		rec, err := events.New(events.TypeWorkoutCancelled, userID, deviceID, "", events.WorkoutCancelled{WorkoutID: "w1"})
		require.NoError(t, err)
		require.NoError(t, store.Enqueue(ctx, &rec))
		ids[i] = rec.EventID
	}
	return ids
}

func TestSyncMovesAckedEventsOut(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	enqueueN(t, store, "user-1", "dev-a", 3)
	enqueueN(t, store, "user-2", "dev-a", 1) // someone else's, stays put

	ft := &fakeTransport{}
	c, err := NewCoordinator(ctx, store, ft, nil)
	require.NoError(t, err)

	res, err := c.Sync(ctx, "dev-a", "user-1")
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, 3, res.Synced)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, int64(1), res.Pending)
	assert.Equal(t, "synced 3 events", res.Message)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Total)

	state, err := store.GetSyncState(ctx, "dev-a")
	require.NoError(t, err)
	require.NotNil(t, state)
	require.NotNil(t, state.LastAckedSequence)
	assert.Equal(t, int64(3), *state.LastAckedSequence)
	assert.Empty(t, state.LastError)
}

func TestSyncNothingPending(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	ft := &fakeTransport{}
	c, err := NewCoordinator(ctx, store, ft, nil)
	require.NoError(t, err)

	res, err := c.Sync(ctx, "dev-a", "user-1")
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, "nothing to sync", res.Message)
	assert.Equal(t, 0, ft.pushCalls())
}

func TestSyncTransportErrorRetriesAll(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	ids := enqueueN(t, store, "user-1", "dev-a", 2)

	ft := &fakeTransport{err: fmt.Errorf("%w: connection refused", syncclient.ErrUnreachable)}
	c, err := NewCoordinator(ctx, store, ft, nil)
	require.NoError(t, err)

	res, err := c.Sync(ctx, "dev-a", "user-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, syncclient.ErrUnreachable)
	assert.False(t, res.OK)
	assert.Equal(t, 2, res.Failed)
	assert.Contains(t, res.Message, "saved locally")

	for _, id := range ids {
		qe, err := store.GetEvent(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, qe)
		assert.Equal(t, db.StatusPending, qe.Status)
		assert.Equal(t, 1, qe.RetryCount)
	}

	state, err := store.GetSyncState(ctx, "dev-a")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Nil(t, state.LastAckedSequence)
	assert.Contains(t, state.LastError, "connection refused")
}

func TestSyncPartialRejection(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	ids := enqueueN(t, store, "user-1", "dev-a", 3)

	ft := &fakeTransport{rejects: map[string]string{
		ids[1]: "invalid payload: reps must be >= 0",
	}}
	c, err := NewCoordinator(ctx, store, ft, nil)
	require.NoError(t, err)

	res, err := c.Sync(ctx, "dev-a", "user-1")
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, 2, res.Synced)
	assert.Equal(t, 1, res.Failed)
	assert.Contains(t, res.Message, "1 rejected")
	assert.Contains(t, res.Message, "reps must be >= 0")

	gone, err := store.GetEvent(ctx, ids[0])
	require.NoError(t, err)
	assert.Nil(t, gone)

	kept, err := store.GetEvent(ctx, ids[1])
	require.NoError(t, err)
	require.NotNil(t, kept)
	assert.Equal(t, db.StatusPending, kept.Status)
	assert.Equal(t, 1, kept.RetryCount)
}

func TestSyncRetryBudgetParksAtFailed(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	ids := enqueueN(t, store, "user-1", "dev-a", 1)

	ft := &fakeTransport{err: fmt.Errorf("%w: boom", syncclient.ErrUnreachable)}
	c, err := NewCoordinator(ctx, store, ft, nil)
	require.NoError(t, err)

	for i := 0; i < db.MaxRetries; i++ {
		_, err := c.Sync(ctx, "dev-a", "user-1")
		require.Error(t, err)
	}
	assert.Equal(t, db.MaxRetries, ft.pushCalls())

	qe, err := store.GetEvent(ctx, ids[0])
	require.NoError(t, err)
	require.NotNil(t, qe)
	assert.Equal(t, db.StatusFailed, qe.Status)
	assert.Equal(t, db.MaxRetries, qe.RetryCount)

	// Parked events are no longer offered for sync.
	res, err := c.Sync(ctx, "dev-a", "user-1")
	require.NoError(t, err)
	assert.Equal(t, "nothing to sync", res.Message)
	assert.Equal(t, db.MaxRetries, ft.pushCalls())

	// After an explicit reset and a healthy server they drain.
	n, err := store.ResetFailed(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	ft.mu.Lock()
	ft.err = nil
	ft.mu.Unlock()

	res, err = c.Sync(ctx, "dev-a", "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Synced)
}

func TestSyncSingleFlight(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	enqueueN(t, store, "user-1", "dev-a", 1)

	gate := make(chan struct{})
	ft := &fakeTransport{gate: gate}
	c, err := NewCoordinator(ctx, store, ft, nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := c.Sync(ctx, "dev-a", "user-1")
		done <- err
	}()

	deadline := time.After(2 * time.Second)
	for !c.Syncing() {
		select {
		case <-deadline:
			t.Fatal("first sync never started")
		case <-time.After(time.Millisecond):
		}
	}

	_, err = c.Sync(ctx, "dev-a", "user-1")
	assert.ErrorIs(t, err, ErrSyncInProgress)

	close(gate)
	require.NoError(t, <-done)
	assert.Equal(t, 1, ft.pushCalls())
	assert.False(t, c.Syncing())
}

func TestSubscribeSeesLifecycle(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	enqueueN(t, store, "user-1", "dev-a", 2)

	ft := &fakeTransport{}
	c, err := NewCoordinator(ctx, store, ft, nil)
	require.NoError(t, err)

	ch, cancel := c.Subscribe()
	_, err = c.Sync(ctx, "dev-a", "user-1")
	require.NoError(t, err)

	first := <-ch
	assert.Equal(t, StateSyncing, first.State)
	assert.Nil(t, first.Result)

	second := <-ch
	assert.Equal(t, StateIdle, second.State)
	require.NotNil(t, second.Result)
	assert.Equal(t, 2, second.Result.Synced)
	assert.Empty(t, second.Err)

	cancel()
	_, open := <-ch
	assert.False(t, open)
}

func TestNewCoordinatorRecoversStranded(t *testing.T) {
	ctx := context.Background()
	store := testStore(t)
	ids := enqueueN(t, store, "user-1", "dev-a", 2)
	require.NoError(t, store.MarkSyncing(ctx, ids))

	_, err := NewCoordinator(ctx, store, &fakeTransport{}, nil)
	require.NoError(t, err)

	for _, id := range ids {
		qe, err := store.GetEvent(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, qe)
		assert.Equal(t, db.StatusPending, qe.Status)
		assert.Equal(t, 0, qe.RetryCount)
	}
}
