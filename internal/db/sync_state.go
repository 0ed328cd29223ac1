package db

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// SyncState holds the last acknowledgment cursor the server returned for a
// device, plus bookkeeping about the most recent attempt.
type SyncState struct {
	DeviceID          string
	LastAckedSequence *int64
	LastSyncAt        *time.Time
	LastError         string
}

// GetSyncState returns the sync state for a device, or nil if the device has
// never attempted a sync.
func (db *DB) GetSyncState(ctx context.Context, deviceID string) (*SyncState, error) {
	var (
		s      SyncState
		acked  sql.NullInt64
		syncAt sql.NullString
	)
	err := db.conn.QueryRowContext(ctx, `
		SELECT device_id, last_acked_sequence, last_sync_at, last_error
		FROM sync_state WHERE device_id = ?
	`, deviceID).Scan(&s.DeviceID, &acked, &syncAt, &s.LastError)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if acked.Valid {
		s.LastAckedSequence = &acked.Int64
	}
	if syncAt.Valid {
		if ts, parseErr := time.Parse(time.RFC3339Nano, syncAt.String); parseErr == nil {
			s.LastSyncAt = &ts
		}
	}
	return &s, nil
}

// RecordSyncSuccess stores the ack cursor from a completed sync. A nil
// cursor (empty batch) keeps the previous one.
func (db *DB) RecordSyncSuccess(ctx context.Context, deviceID string, lastAcked *int64) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		var acked any
		if lastAcked != nil {
			acked = *lastAcked
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sync_state (device_id, last_acked_sequence, last_sync_at, last_error)
			VALUES (?, ?, ?, '')
			ON CONFLICT(device_id) DO UPDATE SET
				last_acked_sequence = COALESCE(excluded.last_acked_sequence, sync_state.last_acked_sequence),
				last_sync_at = excluded.last_sync_at,
				last_error = ''
		`, deviceID, acked, time.Now().UTC().Format(time.RFC3339Nano))
		return err
	})
}

// RecordSyncFailure stores the failure message for the last attempt without
// touching the ack cursor.
func (db *DB) RecordSyncFailure(ctx context.Context, deviceID, message string) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sync_state (device_id, last_acked_sequence, last_sync_at, last_error)
			VALUES (?, NULL, ?, ?)
			ON CONFLICT(device_id) DO UPDATE SET
				last_sync_at = excluded.last_sync_at,
				last_error = excluded.last_error
		`, deviceID, time.Now().UTC().Format(time.RFC3339Nano), message)
		return err
	})
}
