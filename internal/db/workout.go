package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNoOpenWorkout is returned by operations that need a workout in progress.
var ErrNoOpenWorkout = errors.New("no workout in progress")

// OpenWorkout is the workout currently being logged on this device.
type OpenWorkout struct {
	WorkoutID string
	StartedAt time.Time
}

// GetOpenWorkout returns the in-progress workout, or nil when there is none.
func (db *DB) GetOpenWorkout(ctx context.Context) (*OpenWorkout, error) {
	var (
		w         OpenWorkout
		startedAt string
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT workout_id, started_at FROM open_workout WHERE id = 1`,
	).Scan(&w.WorkoutID, &startedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if ts, parseErr := time.Parse(time.RFC3339Nano, startedAt); parseErr == nil {
		w.StartedAt = ts
	}
	return &w, nil
}

// SetOpenWorkout records the in-progress workout. Fails if one is already
// open; callers end or cancel it first.
func (db *DB) SetOpenWorkout(ctx context.Context, workoutID string, startedAt time.Time) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO open_workout (id, workout_id, started_at) VALUES (1, ?, ?)`,
			workoutID, startedAt.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("workout already in progress: %w", err)
		}
		return nil
	})
}

// ClearWorkoutScratch removes the open workout marker and the local exercise
// and set scratchpad for it. Called after finish and cancel; the queued
// events remain untouched.
func (db *DB) ClearWorkoutScratch(ctx context.Context, workoutID string) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM open_workout WHERE workout_id = ?`, workoutID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM workout_exercises WHERE workout_id = ?`, workoutID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM local_sets WHERE workout_id = ?`, workoutID)
		return err
	})
}

// EnsureExercise returns the exercise id for a name within a workout,
// registering it on first use. added reports whether the name is new to this
// workout, which is when an ExerciseAdded event should be emitted.
//
// Ids are name slugs ("Bench Press" -> "bench-press") so the same exercise
// carries the same id across workouts and devices, and weekly distinct
// exercise counts mean what they say.
func (db *DB) EnsureExercise(ctx context.Context, workoutID, name string) (exerciseID string, added bool, err error) {
	err = db.conn.QueryRowContext(ctx,
		`SELECT exercise_id FROM workout_exercises WHERE workout_id = ? AND name = ?`,
		workoutID, name,
	).Scan(&exerciseID)
	if err == nil {
		return exerciseID, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", false, err
	}

	exerciseID = ExerciseSlug(name)
	if exerciseID == "" {
		return "", false, fmt.Errorf("exercise name %q has no usable characters", name)
	}
	err = db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO workout_exercises (workout_id, name, exercise_id) VALUES (?, ?, ?)`,
			workoutID, name, exerciseID)
		return err
	})
	if err != nil {
		return "", false, err
	}
	return exerciseID, true, nil
}

// ListWorkoutExercises returns the exercise names registered in a workout,
// in first-use order.
func (db *DB) ListWorkoutExercises(ctx context.Context, workoutID string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT name FROM workout_exercises WHERE workout_id = ? ORDER BY rowid ASC`, workoutID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// ExerciseSlug derives a stable exercise id from a human name:
// "Bench Press" -> "bench-press".
func ExerciseSlug(name string) string {
	var sb strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				sb.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(sb.String(), "-")
}

// LocalSet is a row of the local set scratchpad.
type LocalSet struct {
	SetID        string
	WorkoutID    string
	ExerciseID   string
	ExerciseName string
	Reps         int
	Weight       float64
	CompletedAt  time.Time
}

// RecordLocalSet stores a freshly logged set.
func (db *DB) RecordLocalSet(ctx context.Context, s LocalSet) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO local_sets (set_id, workout_id, exercise_id, exercise_name, reps, weight, completed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, s.SetID, s.WorkoutID, s.ExerciseID, s.ExerciseName, s.Reps, s.Weight,
			s.CompletedAt.UTC().Format(time.RFC3339Nano))
		return err
	})
}

// GetLocalSet returns a scratchpad set by id, or nil when unknown.
func (db *DB) GetLocalSet(ctx context.Context, setID string) (*LocalSet, error) {
	var (
		s           LocalSet
		completedAt string
	)
	err := db.conn.QueryRowContext(ctx, `
		SELECT set_id, workout_id, exercise_id, exercise_name, reps, weight, completed_at
		FROM local_sets WHERE set_id = ?
	`, setID).Scan(&s.SetID, &s.WorkoutID, &s.ExerciseID, &s.ExerciseName, &s.Reps, &s.Weight, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if ts, parseErr := time.Parse(time.RFC3339Nano, completedAt); parseErr == nil {
		s.CompletedAt = ts
	}
	return &s, nil
}

// ApplyLocalSetUpdate mirrors a SetUpdated event onto the scratchpad. Nil
// fields are left alone.
func (db *DB) ApplyLocalSetUpdate(ctx context.Context, setID string, reps *int, weight *float64) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if reps != nil {
			if _, err := tx.ExecContext(ctx,
				`UPDATE local_sets SET reps = ? WHERE set_id = ?`, *reps, setID); err != nil {
				return err
			}
		}
		if weight != nil {
			if _, err := tx.ExecContext(ctx,
				`UPDATE local_sets SET weight = ? WHERE set_id = ?`, *weight, setID); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteLocalSet mirrors a SetDeleted event onto the scratchpad.
func (db *DB) DeleteLocalSet(ctx context.Context, setID string) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM local_sets WHERE set_id = ?`, setID)
		return err
	})
}

// ListLocalSets returns the scratchpad sets for a workout in completion order.
func (db *DB) ListLocalSets(ctx context.Context, workoutID string) ([]LocalSet, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT set_id, workout_id, exercise_id, exercise_name, reps, weight, completed_at
		FROM local_sets WHERE workout_id = ? ORDER BY completed_at ASC
	`, workoutID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sets []LocalSet
	for rows.Next() {
		var (
			s           LocalSet
			completedAt string
		)
		if err := rows.Scan(&s.SetID, &s.WorkoutID, &s.ExerciseID, &s.ExerciseName,
			&s.Reps, &s.Weight, &completedAt); err != nil {
			return nil, err
		}
		if ts, parseErr := time.Parse(time.RFC3339Nano, completedAt); parseErr == nil {
			s.CompletedAt = ts
		}
		sets = append(sets, s)
	}
	return sets, rows.Err()
}
