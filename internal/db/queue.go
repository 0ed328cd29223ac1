package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mvarner/replog/internal/events"
)

// Status is the queue-local lifecycle state of an event.
type Status string

const (
	StatusPending Status = "pending"
	StatusSyncing Status = "syncing"
	StatusSynced  Status = "synced"
	StatusFailed  Status = "failed"
)

// MaxRetries is the retry budget. MarkFailed parks an event at failed once
// its retry count reaches this value; only ResetFailed brings it back.
const MaxRetries = 5

// QueuedEvent is an event record plus its queue-local state.
type QueuedEvent struct {
	events.Record
	Status     Status
	RetryCount int
}

// Enqueue validates and stores records inside one transaction, assigning
// each new record a sequence number from the per-device generator.
// Re-enqueueing an existing event id keeps its status, retry count and
// sequence number; only the payload, type and correlation id are refreshed.
// Records are updated in place with their assigned sequence numbers.
func (db *DB) Enqueue(ctx context.Context, recs ...*events.Record) error {
	for _, rec := range recs {
		if err := events.Validate(*rec); err != nil {
			return err
		}
	}
	return db.withTx(ctx, func(tx *sql.Tx) error {
		for _, rec := range recs {
			var existingSeq int64
			err := tx.QueryRowContext(ctx,
				`SELECT sequence_number FROM event_queue WHERE event_id = ?`, rec.EventID,
			).Scan(&existingSeq)
			switch {
			case err == nil:
				if _, err := tx.ExecContext(ctx, `
					UPDATE event_queue SET event_type = ?, payload = ?, correlation_id = ?
					WHERE event_id = ?
				`, string(rec.EventType), string(rec.Payload), rec.CorrelationID, rec.EventID); err != nil {
					return fmt.Errorf("refresh event %s: %w", rec.EventID, err)
				}
				rec.SequenceNumber = existingSeq
			case errors.Is(err, sql.ErrNoRows):
				seq, err := nextSequence(ctx, tx, rec.DeviceID)
				if err != nil {
					return err
				}
				rec.SequenceNumber = seq
				if rec.CreatedAt.IsZero() {
					rec.CreatedAt = time.Now().UTC()
				}
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO event_queue (event_id, event_type, payload, user_id, device_id, sequence_number, correlation_id, created_at, status, retry_count)
					VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'pending', 0)
				`, rec.EventID, string(rec.EventType), string(rec.Payload), rec.UserID, rec.DeviceID,
					seq, rec.CorrelationID, rec.CreatedAt.UTC().Format(time.RFC3339Nano)); err != nil {
					return fmt.Errorf("enqueue event %s: %w", rec.EventID, err)
				}
			default:
				return fmt.Errorf("check event %s: %w", rec.EventID, err)
			}
		}
		return nil
	})
}

// nextSequence allocates the next sequence number for a device and writes the
// generator through in the same transaction. The counter is floored at the
// live queue maximum, so numbers stay strictly monotonic even after synced
// rows are deleted or the generator row is lost.
func nextSequence(ctx context.Context, tx *sql.Tx, deviceID string) (int64, error) {
	var next int64
	err := tx.QueryRowContext(ctx,
		`SELECT next_sequence FROM device_state WHERE device_id = ?`, deviceID,
	).Scan(&next)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("read sequence state: %w", err)
	}

	var queueMax sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		`SELECT MAX(sequence_number) FROM event_queue WHERE device_id = ?`, deviceID,
	).Scan(&queueMax); err != nil {
		return 0, fmt.Errorf("read queue max: %w", err)
	}
	if queueMax.Valid && queueMax.Int64+1 > next {
		next = queueMax.Int64 + 1
	}
	if next < 1 {
		next = 1
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO device_state (device_id, next_sequence) VALUES (?, ?)
		ON CONFLICT(device_id) DO UPDATE SET next_sequence = excluded.next_sequence
	`, deviceID, next+1); err != nil {
		return 0, fmt.Errorf("advance sequence: %w", err)
	}
	return next, nil
}

// GetPending returns pending events for the device and user in sequence
// order. limit <= 0 means unbounded. Events at syncing or failed are hidden.
func (db *DB) GetPending(ctx context.Context, deviceID, userID string, limit int) ([]QueuedEvent, error) {
	query := `
		SELECT event_id, event_type, payload, user_id, device_id, sequence_number, correlation_id, created_at, status, retry_count
		FROM event_queue
		WHERE status = 'pending' AND device_id = ? AND user_id = ?
		ORDER BY sequence_number ASC`
	args := []any{deviceID, userID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []QueuedEvent
	for rows.Next() {
		qe, err := scanQueued(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, qe)
	}
	return out, rows.Err()
}

// GetEvent returns a single queued event, or nil when it is not in the queue.
func (db *DB) GetEvent(ctx context.Context, eventID string) (*QueuedEvent, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT event_id, event_type, payload, user_id, device_id, sequence_number, correlation_id, created_at, status, retry_count
		FROM event_queue WHERE event_id = ?
	`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	qe, err := scanQueued(rows)
	if err != nil {
		return nil, err
	}
	return &qe, nil
}

func scanQueued(rows *sql.Rows) (QueuedEvent, error) {
	var (
		qe        QueuedEvent
		eventType string
		payload   string
		createdAt string
		status    string
	)
	if err := rows.Scan(&qe.EventID, &eventType, &payload, &qe.UserID, &qe.DeviceID,
		&qe.SequenceNumber, &qe.CorrelationID, &createdAt, &status, &qe.RetryCount); err != nil {
		return qe, err
	}
	qe.EventType = events.Type(eventType)
	qe.Payload = json.RawMessage(payload)
	qe.Status = Status(status)
	if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		qe.CreatedAt = ts
	}
	return qe, nil
}

// MarkSyncing transitions pending events to syncing, hiding them from
// GetPending while a sync attempt is in flight.
func (db *DB) MarkSyncing(ctx context.Context, eventIDs []string) error {
	if len(eventIDs) == 0 {
		return nil
	}
	return db.withTx(ctx, func(tx *sql.Tx) error {
		query := fmt.Sprintf(
			`UPDATE event_queue SET status = 'syncing' WHERE status = 'pending' AND event_id IN (%s)`,
			placeholders(len(eventIDs)))
		_, err := tx.ExecContext(ctx, query, idArgs(eventIDs)...)
		return err
	})
}

// MarkSynced deletes acknowledged events from the queue. Deletion is the
// terminal synced state; the server's log owns them now.
func (db *DB) MarkSynced(ctx context.Context, eventIDs []string) error {
	if len(eventIDs) == 0 {
		return nil
	}
	return db.withTx(ctx, func(tx *sql.Tx) error {
		query := fmt.Sprintf(
			`DELETE FROM event_queue WHERE event_id IN (%s)`,
			placeholders(len(eventIDs)))
		_, err := tx.ExecContext(ctx, query, idArgs(eventIDs)...)
		return err
	})
}

// MarkFailed increments retry counts and returns events to pending, or parks
// them at failed once the retry budget is spent. The whole id set is updated
// in one statement inside one transaction; there are no partial outcomes.
func (db *DB) MarkFailed(ctx context.Context, eventIDs []string) error {
	if len(eventIDs) == 0 {
		return nil
	}
	return db.withTx(ctx, func(tx *sql.Tx) error {
		query := fmt.Sprintf(`
			UPDATE event_queue
			SET retry_count = retry_count + 1,
			    status = CASE WHEN retry_count + 1 >= %d THEN 'failed' ELSE 'pending' END
			WHERE event_id IN (%s)`, MaxRetries, placeholders(len(eventIDs)))
		_, err := tx.ExecContext(ctx, query, idArgs(eventIDs)...)
		return err
	})
}

// ResetFailed returns failed events to pending with a fresh retry budget.
// userID narrows the reset; empty resets every failed event.
func (db *DB) ResetFailed(ctx context.Context, userID string) (int64, error) {
	var affected int64
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		query := `UPDATE event_queue SET status = 'pending', retry_count = 0 WHERE status = 'failed'`
		args := []any{}
		if userID != "" {
			query += ` AND user_id = ?`
			args = append(args, userID)
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		affected, _ = res.RowsAffected()
		return nil
	})
	return affected, err
}

// RewriteUserID reassigns every queued event, regardless of status, from one
// user to another. Sequence numbers and device ids are untouched. Used when
// an anonymous identity is merged into an authenticated account.
func (db *DB) RewriteUserID(ctx context.Context, fromUserID, toUserID string) (int64, error) {
	if fromUserID == "" || toUserID == "" {
		return 0, fmt.Errorf("rewrite user id: both ids are required")
	}
	var affected int64
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE event_queue SET user_id = ? WHERE user_id = ?`, toUserID, fromUserID)
		if err != nil {
			return err
		}
		affected, _ = res.RowsAffected()
		return nil
	})
	return affected, err
}

// RecoverSyncing returns events stuck at syncing to pending. Called on
// process start so a crash between mark_syncing and the server response
// never strands events.
func (db *DB) RecoverSyncing(ctx context.Context) (int64, error) {
	var affected int64
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE event_queue SET status = 'pending' WHERE status = 'syncing'`)
		if err != nil {
			return err
		}
		affected, _ = res.RowsAffected()
		return nil
	})
	return affected, err
}

// QueueStats counts queued events by status.
type QueueStats struct {
	Pending int64 `json:"pending"`
	Syncing int64 `json:"syncing"`
	Failed  int64 `json:"failed"`
	Total   int64 `json:"total"`
}

// Stats returns queue counts by status.
func (db *DB) Stats(ctx context.Context) (QueueStats, error) {
	var stats QueueStats
	rows, err := db.conn.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM event_queue GROUP BY status`)
	if err != nil {
		return stats, err
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return stats, err
		}
		switch Status(status) {
		case StatusPending:
			stats.Pending = count
		case StatusSyncing:
			stats.Syncing = count
		case StatusFailed:
			stats.Failed = count
		}
		stats.Total += count
	}
	return stats, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func idArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
