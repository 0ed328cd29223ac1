package serverdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Event is one row of the append-only log.
type Event struct {
	EventID        string
	EventType      string
	Payload        json.RawMessage
	UserID         string
	DeviceID       string
	SequenceNumber int64
	CorrelationID  string
	CreatedAt      time.Time
}

// IngestResult reports what one batch did to the log.
type IngestResult struct {
	Inserted          int
	Duplicates        int
	LastAckedSequence *int64
}

// IngestEvents appends pre-validated events in a single transaction.
// Replays of event_ids the log already holds are counted as duplicates
// and leave the stored row untouched. All events in a batch belong to
// the given device; the returned cursor is the highest sequence number
// the log holds among the batch's event_ids, inserted now or earlier.
func (db *ServerDB) IngestEvents(ctx context.Context, deviceID string, evs []Event) (*IngestResult, error) {
	res := &IngestResult{}
	if len(evs) == 0 {
		return res, nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin ingest: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, ev := range evs {
		r, err := tx.ExecContext(ctx,
			`INSERT INTO events (event_id, event_type, payload, user_id, device_id, sequence_number, correlation_id, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(event_id) DO NOTHING`,
			ev.EventID, ev.EventType, string(ev.Payload), ev.UserID, deviceID, ev.SequenceNumber, ev.CorrelationID, now,
		)
		if err != nil {
			return nil, fmt.Errorf("insert event %s: %w", ev.EventID, err)
		}
		n, _ := r.RowsAffected()
		if n == 0 {
			res.Duplicates++
		} else {
			res.Inserted++
		}
	}

	ids := make([]any, len(evs))
	for i, ev := range evs {
		ids[i] = ev.EventID
	}
	query := fmt.Sprintf(
		`SELECT MAX(sequence_number) FROM events WHERE device_id = ? AND event_id IN (%s)`,
		placeholders(len(ids)))
	var maxSeq sql.NullInt64
	if err := tx.QueryRowContext(ctx, query, append([]any{deviceID}, ids...)...).Scan(&maxSeq); err != nil {
		return nil, fmt.Errorf("compute ack cursor: %w", err)
	}
	if maxSeq.Valid {
		res.LastAckedSequence = &maxSeq.Int64
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit ingest: %w", err)
	}
	return res, nil
}

// GetEvent returns one log row by id, or nil when absent.
func (db *ServerDB) GetEvent(ctx context.Context, eventID string) (*Event, error) {
	ev := &Event{}
	var payload string
	err := db.conn.QueryRowContext(ctx,
		`SELECT event_id, event_type, payload, user_id, device_id, sequence_number, correlation_id, created_at
		 FROM events WHERE event_id = ?`, eventID,
	).Scan(&ev.EventID, &ev.EventType, &payload, &ev.UserID, &ev.DeviceID, &ev.SequenceNumber, &ev.CorrelationID, &ev.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	ev.Payload = json.RawMessage(payload)
	return ev, nil
}

// DeviceCursor reports how many events the log holds for the user's
// device and the highest stored sequence number, nil when none.
func (db *ServerDB) DeviceCursor(ctx context.Context, userID, deviceID string) (int64, *int64, error) {
	var count int64
	var maxSeq sql.NullInt64
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*), MAX(sequence_number) FROM events WHERE user_id = ? AND device_id = ?`,
		userID, deviceID,
	).Scan(&count, &maxSeq)
	if err != nil {
		return 0, nil, fmt.Errorf("device cursor: %w", err)
	}
	if !maxSeq.Valid {
		return count, nil, nil
	}
	return count, &maxSeq.Int64, nil
}

// CountEventsForUser returns the size of one user's slice of the log.
func (db *ServerDB) CountEventsForUser(ctx context.Context, userID string) (int64, error) {
	var n int64
	if err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE user_id = ?`, userID,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
