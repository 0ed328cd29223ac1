package serverdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrMergeConflict reports that the two users' histories claim the same
// (device_id, sequence_number) slot. Merges never renumber, so the
// operation is refused and nothing changes.
var ErrMergeConflict = errors.New("merge conflict: histories overlap")

// MergeUsers moves every event owned by the anonymous user to the
// target user, then deletes the anonymous user and its tokens, all in
// one transaction. device_id and sequence_number are never touched.
// After commit, the target's projections are rebuilt. Returns the
// number of events moved.
func (db *ServerDB) MergeUsers(ctx context.Context, anonymousUserID, targetUserID string) (int64, error) {
	if anonymousUserID == targetUserID {
		return 0, fmt.Errorf("cannot merge a user into itself")
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin merge: %w", err)
	}
	defer tx.Rollback()

	var sourceAnon bool
	err = tx.QueryRowContext(ctx, `SELECT is_anonymous FROM users WHERE id = ?`, anonymousUserID).Scan(&sourceAnon)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("anonymous user %s: %w", anonymousUserID, ErrUserNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("look up anonymous user: %w", err)
	}
	if !sourceAnon {
		return 0, fmt.Errorf("%w: %s", ErrNotAnonymous, anonymousUserID)
	}

	var targetAnon bool
	err = tx.QueryRowContext(ctx, `SELECT is_anonymous FROM users WHERE id = ?`, targetUserID).Scan(&targetAnon)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("target user %s: %w", targetUserID, ErrUserNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("look up target user: %w", err)
	}
	if targetAnon {
		return 0, fmt.Errorf("target user %s is anonymous", targetUserID)
	}

	var overlap int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM events a
		JOIN events b ON b.device_id = a.device_id AND b.sequence_number = a.sequence_number
		WHERE a.user_id = ? AND b.user_id = ?
	`, anonymousUserID, targetUserID).Scan(&overlap)
	if err != nil {
		return 0, fmt.Errorf("merge conflict check: %w", err)
	}
	if overlap > 0 {
		return 0, fmt.Errorf("%w: %d overlapping (device, sequence) pairs", ErrMergeConflict, overlap)
	}

	res, err := tx.ExecContext(ctx, `UPDATE events SET user_id = ? WHERE user_id = ?`, targetUserID, anonymousUserID)
	if err != nil {
		return 0, fmt.Errorf("rewrite event ownership: %w", err)
	}
	moved, _ := res.RowsAffected()

	// The anonymous user's derived rows are orphaned once its events
	// move; drop them with the user.
	if err := clearProjections(ctx, tx, anonymousUserID); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tokens WHERE user_id = ?`, anonymousUserID); err != nil {
		return 0, fmt.Errorf("delete anonymous tokens: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, anonymousUserID); err != nil {
		return 0, fmt.Errorf("delete anonymous user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit merge: %w", err)
	}

	if _, err := db.RebuildProjections(ctx, targetUserID); err != nil {
		return moved, fmt.Errorf("rebuild projections after merge: %w", err)
	}
	return moved, nil
}
