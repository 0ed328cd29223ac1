// Package sync drives push attempts from the local event queue to the
// server, owning the pending/syncing/synced/failed transitions.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/mvarner/replog/internal/db"
	"github.com/mvarner/replog/internal/syncclient"
)

// ErrSyncInProgress reports that another attempt already holds the
// in-flight token. The losing call has no side effects.
var ErrSyncInProgress = errors.New("sync already in progress")

// DefaultTimeout bounds one attempt when the caller's context carries no
// deadline of its own.
const DefaultTimeout = 30 * time.Second

// MaxBatch is the most events sent in one request, matching the server's
// request cap. Anything beyond it waits for the next attempt.
const MaxBatch = 10000

// Transport pushes one batch of queued events to the server.
type Transport interface {
	Push(ctx context.Context, req syncclient.SyncRequest) (*syncclient.SyncResponse, error)
}

// Result summarises one attempt.
type Result struct {
	Synced  int    `json:"synced"`  // acknowledged by the server and deleted locally
	Failed  int    `json:"failed"`  // picked up a retry or were rejected outright
	Pending int64  `json:"pending"` // still queued after the attempt
	OK      bool   `json:"ok"`      // true when nothing was rejected or stranded
	Message string `json:"message"` // one line suitable for CLI output
}

// Coordinator runs sync attempts against one local queue. It is safe for
// concurrent use; at most one attempt is in flight at a time.
type Coordinator struct {
	store     *db.DB
	transport Transport
	log       *slog.Logger
	syncing   atomic.Bool
	subs      *subscribers
}

// NewCoordinator wires a coordinator to a local store and transport.
// Events stranded at syncing by a crashed process are returned to
// pending here, before any new attempt can run.
func NewCoordinator(ctx context.Context, store *db.DB, transport Transport, log *slog.Logger) (*Coordinator, error) {
	if log == nil {
		log = slog.Default()
	}
	recovered, err := store.RecoverSyncing(ctx)
	if err != nil {
		return nil, fmt.Errorf("recover interrupted sync: %w", err)
	}
	if recovered > 0 {
		log.Warn("recovered events from interrupted sync", "count", recovered)
	}
	return &Coordinator{
		store:     store,
		transport: transport,
		log:       log,
		subs:      newSubscribers(),
	}, nil
}

// Syncing reports whether an attempt is currently in flight.
func (c *Coordinator) Syncing() bool {
	return c.syncing.Load()
}

// Subscribe returns a channel of state changes and a cancel function.
// The channel closes on cancel. Consumers poll it at their own pace.
func (c *Coordinator) Subscribe() (<-chan StateChange, func()) {
	return c.subs.add()
}

// Sync pushes pending events for the device and user. Only one attempt
// runs at a time; concurrent calls get ErrSyncInProgress. Acknowledged
// events are deleted, rejected or undeliverable ones pick up a retry,
// and events past the retry budget park at failed.
func (c *Coordinator) Sync(ctx context.Context, deviceID, userID string) (Result, error) {
	if !c.syncing.CompareAndSwap(false, true) {
		return Result{}, ErrSyncInProgress
	}
	defer c.syncing.Store(false)

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	c.subs.publish(StateChange{State: StateSyncing, At: time.Now()})

	res, err := c.push(ctx, deviceID, userID)
	if stats, statsErr := c.store.Stats(ctx); statsErr == nil {
		res.Pending = stats.Pending
	}

	change := StateChange{State: StateIdle, At: time.Now(), Result: &res}
	if err != nil {
		change.Err = err.Error()
	}
	c.subs.publish(change)

	return res, err
}

func (c *Coordinator) push(ctx context.Context, deviceID, userID string) (Result, error) {
	pending, err := c.store.GetPending(ctx, deviceID, userID, MaxBatch)
	if err != nil {
		return Result{}, fmt.Errorf("load pending events: %w", err)
	}
	if len(pending) == 0 {
		return Result{OK: true, Message: "nothing to sync"}, nil
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

	if err := c.store.MarkSyncing(ctx, ids); err != nil {
		return Result{}, fmt.Errorf("mark syncing: %w", err)
	}

	resp, err := c.transport.Push(ctx, syncclient.SyncRequest{
		DeviceID: deviceID,
		UserID:   userID,
		Events:   wire,
	})
	if err != nil {
		// The whole attempt failed; every event picks up a retry.
		if markErr := c.store.MarkFailed(ctx, ids); markErr != nil {
			c.log.Error("mark events failed after push error", "error", markErr)
		}
		if recErr := c.store.RecordSyncFailure(ctx, deviceID, err.Error()); recErr != nil {
			c.log.Error("record sync failure", "error", recErr)
		}
		c.log.Warn("sync push failed", "device_id", deviceID, "events", len(ids), "error", err)
		return Result{
			Failed:  len(ids),
			Message: offlineMessage(err),
		}, err
	}

	rejected := make(map[string]bool, len(resp.RejectedEventIDs))
	for _, id := range resp.RejectedEventIDs {
		rejected[id] = true
	}
	ackedIDs := make([]string, 0, len(ids))
	rejectedIDs := make([]string, 0, len(resp.RejectedEventIDs))
	for _, id := range ids {
		if rejected[id] {
			rejectedIDs = append(rejectedIDs, id)
		} else {
			ackedIDs = append(ackedIDs, id)
		}
	}

	if err := c.store.MarkSynced(ctx, ackedIDs); err != nil {
		return Result{}, fmt.Errorf("mark synced: %w", err)
	}
	if err := c.store.MarkFailed(ctx, rejectedIDs); err != nil {
		return Result{}, fmt.Errorf("mark rejected: %w", err)
	}
	if err := c.store.RecordSyncSuccess(ctx, deviceID, resp.AckCursor.LastAckedSequence); err != nil {
		c.log.Warn("record ack cursor", "error", err)
	}

	res := Result{
		Synced: len(ackedIDs),
		Failed: len(rejectedIDs),
		OK:     len(rejectedIDs) == 0,
	}
	switch {
	case res.Failed == 0:
		res.Message = fmt.Sprintf("synced %d events", res.Synced)
	case len(resp.Rejections) > 0:
		res.Message = fmt.Sprintf("synced %d events, %d rejected (%s)",
			res.Synced, res.Failed, resp.Rejections[0].Reason)
	default:
		res.Message = fmt.Sprintf("synced %d events, %d rejected", res.Synced, res.Failed)
	}
	c.log.Info("sync complete",
		"device_id", deviceID,
		"synced", res.Synced,
		"rejected", res.Failed,
	)
	return res, nil
}

func offlineMessage(err error) string {
	switch {
	case errors.Is(err, syncclient.ErrUnreachable):
		return "server unreachable, events saved locally and will sync later"
	case errors.Is(err, syncclient.ErrTimeout):
		return "sync timed out, events saved locally and will sync later"
	case errors.Is(err, syncclient.ErrUnauthorized):
		return "sync failed: token rejected, run 'replog init' or check REPLOG_TOKEN"
	default:
		return fmt.Sprintf("sync failed: %v", err)
	}
}
