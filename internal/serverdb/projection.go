package serverdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/mvarner/replog/internal/events"
)

// Workout statuses as stored in workouts_projection.
const (
	WorkoutInProgress = "in_progress"
	WorkoutCompleted  = "completed"
	WorkoutCancelled  = "cancelled"
)

// RebuildStats reports one rebuild pass.
type RebuildStats struct {
	EventsProcessed int
	EventsSkipped   int
	WorkoutsWritten int
	SetsWritten     int
	WeeksWritten    int
}

type foldWorkout struct {
	userID    string
	status    string
	startedAt *time.Time
	endedAt   *time.Time
}

type foldSet struct {
	workoutID   string
	exerciseID  string
	reps        int
	weight      float64
	completedAt *time.Time
}

// RebuildProjections replays the event log and rewrites the derived
// tables from scratch. An empty userID rebuilds every user. The whole
// pass runs in one transaction: on any error the previous projections
// stay intact. Replay order is (device_id, sequence_number), so the
// same log always produces the same projections.
func (db *ServerDB) RebuildProjections(ctx context.Context, userID string) (*RebuildStats, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin rebuild: %w", err)
	}
	defer tx.Rollback()

	if err := clearProjections(ctx, tx, userID); err != nil {
		return nil, err
	}

	stats := &RebuildStats{}
	workouts := map[string]*foldWorkout{}
	sets := map[string]*foldSet{}

	query := `SELECT event_id, event_type, payload, user_id FROM events`
	args := []any{}
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY user_id, device_id, sequence_number, event_id`

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("replay events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var eventID, eventType, payload, owner string
		if err := rows.Scan(&eventID, &eventType, &payload, &owner); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if applyEvent(workouts, sets, owner, events.Type(eventType), []byte(payload)) {
			stats.EventsProcessed++
		} else {
			slog.Warn("projection skipped event", "event_id", eventID, "event_type", eventType)
			stats.EventsSkipped++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("replay events: iterate: %w", err)
	}

	if err := writeProjections(ctx, tx, workouts, sets, stats); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit rebuild: %w", err)
	}
	return stats, nil
}

// applyEvent folds one event into the in-memory state. Returns false
// when the event could not be applied: unknown type, undecodable
// payload, or a reference to a workout or set the fold has not seen.
func applyEvent(workouts map[string]*foldWorkout, sets map[string]*foldSet, owner string, typ events.Type, payload []byte) bool {
	switch typ {
	case events.TypeWorkoutStarted:
		p, err := events.DecodeWorkoutStarted(payload)
		if err != nil {
			return false
		}
		t := p.StartedAt.UTC()
		workouts[p.WorkoutID] = &foldWorkout{userID: owner, status: WorkoutInProgress, startedAt: &t}
		return true

	case events.TypeExerciseAdded:
		// Projection no-op; exercise identity rides on each set.
		_, err := events.DecodeExerciseAdded(payload)
		return err == nil

	case events.TypeSetCompleted:
		p, err := events.DecodeSetCompleted(payload)
		if err != nil || p.Reps == nil || p.Weight == nil {
			return false
		}
		if _, ok := workouts[p.WorkoutID]; !ok {
			return false
		}
		t := p.CompletedAt.UTC()
		sets[p.SetID] = &foldSet{
			workoutID:   p.WorkoutID,
			exerciseID:  p.ExerciseID,
			reps:        *p.Reps,
			weight:      *p.Weight,
			completedAt: &t,
		}
		return true

	case events.TypeSetUpdated:
		p, err := events.DecodeSetUpdated(payload)
		if err != nil {
			return false
		}
		s, ok := sets[p.SetID]
		if !ok {
			return false
		}
		if p.Reps != nil {
			s.reps = *p.Reps
		}
		if p.Weight != nil {
			s.weight = *p.Weight
		}
		if p.CompletedAt != nil {
			t := p.CompletedAt.UTC()
			s.completedAt = &t
		}
		return true

	case events.TypeSetDeleted:
		p, err := events.DecodeSetDeleted(payload)
		if err != nil {
			return false
		}
		if _, ok := sets[p.SetID]; !ok {
			return false
		}
		delete(sets, p.SetID)
		return true

	case events.TypeWorkoutEnded:
		p, err := events.DecodeWorkoutEnded(payload)
		if err != nil {
			return false
		}
		w, ok := workouts[p.WorkoutID]
		if !ok {
			return false
		}
		t := p.EndedAt.UTC()
		w.endedAt = &t
		w.status = WorkoutCompleted
		return true

	case events.TypeWorkoutCancelled:
		p, err := events.DecodeWorkoutCancelled(payload)
		if err != nil {
			return false
		}
		w, ok := workouts[p.WorkoutID]
		if !ok {
			return false
		}
		w.status = WorkoutCancelled
		return true

	default:
		return false
	}
}

// writeProjections inserts the folded state in sorted key order so
// rebuilds of the same log are byte-identical.
func writeProjections(ctx context.Context, tx *sql.Tx, workouts map[string]*foldWorkout, sets map[string]*foldSet, stats *RebuildStats) error {
	workoutIDs := make([]string, 0, len(workouts))
	for id := range workouts {
		workoutIDs = append(workoutIDs, id)
	}
	sort.Strings(workoutIDs)
	for _, id := range workoutIDs {
		w := workouts[id]
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO workouts_projection (workout_id, user_id, status, started_at, ended_at) VALUES (?, ?, ?, ?, ?)`,
			id, w.userID, w.status, w.startedAt, w.endedAt,
		); err != nil {
			return fmt.Errorf("insert workout %s: %w", id, err)
		}
		stats.WorkoutsWritten++
	}

	setIDs := make([]string, 0, len(sets))
	for id := range sets {
		setIDs = append(setIDs, id)
	}
	sort.Strings(setIDs)
	setsByWorkout := map[string][]*foldSet{}
	for _, id := range setIDs {
		s := sets[id]
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sets_projection (set_id, workout_id, exercise_id, reps, weight, completed_at) VALUES (?, ?, ?, ?, ?, ?)`,
			id, s.workoutID, s.exerciseID, s.reps, s.weight, s.completedAt,
		); err != nil {
			return fmt.Errorf("insert set %s: %w", id, err)
		}
		stats.SetsWritten++
		setsByWorkout[s.workoutID] = append(setsByWorkout[s.workoutID], s)
	}

	return writeWeeklyMetrics(ctx, tx, workouts, workoutIDs, setsByWorkout, stats)
}

type weeklyAgg struct {
	workouts  int
	volume    float64
	exercises map[string]bool
}

// writeWeeklyMetrics aggregates completed workouts by the Monday of
// their UTC week. total_volume is reps times weight summed over the
// week's sets; exercises_count is distinct exercise ids.
func writeWeeklyMetrics(ctx context.Context, tx *sql.Tx, workouts map[string]*foldWorkout, workoutIDs []string, setsByWorkout map[string][]*foldSet, stats *RebuildStats) error {
	type weekKey struct {
		userID string
		week   string
	}
	agg := map[weekKey]*weeklyAgg{}

	for _, id := range workoutIDs {
		w := workouts[id]
		if w.status != WorkoutCompleted || w.startedAt == nil {
			continue
		}
		k := weekKey{userID: w.userID, week: weekStart(*w.startedAt)}
		a := agg[k]
		if a == nil {
			a = &weeklyAgg{exercises: map[string]bool{}}
			agg[k] = a
		}
		a.workouts++
		for _, s := range setsByWorkout[id] {
			a.volume += float64(s.reps) * s.weight
			a.exercises[s.exerciseID] = true
		}
	}

	keys := make([]weekKey, 0, len(agg))
	for k := range agg {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].userID != keys[j].userID {
			return keys[i].userID < keys[j].userID
		}
		return keys[i].week < keys[j].week
	})

	for _, k := range keys {
		a := agg[k]
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO weekly_metrics (user_id, week_start, total_workouts, total_volume, exercises_count) VALUES (?, ?, ?, ?, ?)`,
			k.userID, k.week, a.workouts, a.volume, len(a.exercises),
		); err != nil {
			return fmt.Errorf("insert weekly metrics %s/%s: %w", k.userID, k.week, err)
		}
		stats.WeeksWritten++
	}
	return nil
}

// clearProjections deletes derived rows for one user, or for everyone
// when userID is empty. Sets go first: they reach their owner through
// the workout row.
func clearProjections(ctx context.Context, tx *sql.Tx, userID string) error {
	if userID == "" {
		for _, stmt := range []string{
			`DELETE FROM sets_projection`,
			`DELETE FROM workouts_projection`,
			`DELETE FROM weekly_metrics`,
		} {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("clear projections: %w", err)
			}
		}
		return nil
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM sets_projection WHERE workout_id IN (SELECT workout_id FROM workouts_projection WHERE user_id = ?)`,
		userID,
	); err != nil {
		return fmt.Errorf("clear sets projection: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM workouts_projection WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("clear workouts projection: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM weekly_metrics WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("clear weekly metrics: %w", err)
	}
	return nil
}

// weekStart returns the Monday of the timestamp's UTC week as a date.
func weekStart(t time.Time) string {
	t = t.UTC()
	offset := (int(t.Weekday()) + 6) % 7
	return t.AddDate(0, 0, -offset).Format("2006-01-02")
}

// --- Read queries ---

// WorkoutRow is one row of workouts_projection.
type WorkoutRow struct {
	WorkoutID string
	UserID    string
	Status    string
	StartedAt *time.Time
	EndedAt   *time.Time
}

// GetWorkoutRow returns one projected workout, or nil if not found.
func (db *ServerDB) GetWorkoutRow(ctx context.Context, workoutID string) (*WorkoutRow, error) {
	w := &WorkoutRow{}
	err := db.conn.QueryRowContext(ctx,
		`SELECT workout_id, user_id, status, started_at, ended_at FROM workouts_projection WHERE workout_id = ?`,
		workoutID,
	).Scan(&w.WorkoutID, &w.UserID, &w.Status, &w.StartedAt, &w.EndedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get workout: %w", err)
	}
	return w, nil
}

// WorkoutSummary is one workout with reader-computed aggregates.
// Volume is never stored; it is always derived from the sets.
type WorkoutSummary struct {
	WorkoutID   string
	Status      string
	StartedAt   *time.Time
	EndedAt     *time.Time
	SetsCount   int
	TotalVolume float64
}

// ListWorkouts returns a user's workouts, newest started_at first.
// status filters when non-empty.
func (db *ServerDB) ListWorkouts(ctx context.Context, userID, status string, limit, offset int) ([]WorkoutSummary, error) {
	query := `
		SELECT w.workout_id, w.status, w.started_at, w.ended_at,
		       COUNT(s.set_id), COALESCE(SUM(s.reps * s.weight), 0)
		FROM workouts_projection w
		LEFT JOIN sets_projection s ON s.workout_id = w.workout_id
		WHERE w.user_id = ?`
	args := []any{userID}
	if status != "" {
		query += ` AND w.status = ?`
		args = append(args, status)
	}
	query += `
		GROUP BY w.workout_id
		ORDER BY w.started_at DESC, w.workout_id
		LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list workouts: %w", err)
	}
	defer rows.Close()

	var out []WorkoutSummary
	for rows.Next() {
		var w WorkoutSummary
		if err := rows.Scan(&w.WorkoutID, &w.Status, &w.StartedAt, &w.EndedAt, &w.SetsCount, &w.TotalVolume); err != nil {
			return nil, fmt.Errorf("scan workout: %w", err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list workouts: iterate: %w", err)
	}
	return out, nil
}

// SetRow is one row of sets_projection.
type SetRow struct {
	SetID       string
	WorkoutID   string
	ExerciseID  string
	Reps        int
	Weight      float64
	CompletedAt *time.Time
}

// ListSetsForWorkout returns a workout's sets ordered by completion.
func (db *ServerDB) ListSetsForWorkout(ctx context.Context, workoutID string) ([]SetRow, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT set_id, workout_id, exercise_id, reps, weight, completed_at
		 FROM sets_projection WHERE workout_id = ?
		 ORDER BY completed_at, set_id`,
		workoutID,
	)
	if err != nil {
		return nil, fmt.Errorf("list sets: %w", err)
	}
	defer rows.Close()

	var out []SetRow
	for rows.Next() {
		var s SetRow
		if err := rows.Scan(&s.SetID, &s.WorkoutID, &s.ExerciseID, &s.Reps, &s.Weight, &s.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan set: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sets: iterate: %w", err)
	}
	return out, nil
}

// WeeklyMetric is one row of weekly_metrics.
type WeeklyMetric struct {
	WeekStart      string
	TotalWorkouts  int
	TotalVolume    float64
	ExercisesCount int
}

// ListWeeklyMetrics returns a user's weekly rows, newest week first.
func (db *ServerDB) ListWeeklyMetrics(ctx context.Context, userID string, limit int) ([]WeeklyMetric, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT week_start, total_workouts, total_volume, exercises_count
		 FROM weekly_metrics WHERE user_id = ?
		 ORDER BY week_start DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list weekly metrics: %w", err)
	}
	defer rows.Close()

	var out []WeeklyMetric
	for rows.Next() {
		var m WeeklyMetric
		if err := rows.Scan(&m.WeekStart, &m.TotalWorkouts, &m.TotalVolume, &m.ExercisesCount); err != nil {
			return nil, fmt.Errorf("scan weekly metric: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list weekly metrics: iterate: %w", err)
	}
	return out, nil
}
