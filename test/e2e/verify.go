package e2e

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mvarner/replog/internal/events"
	"github.com/mvarner/replog/internal/serverdb"
	"github.com/mvarner/replog/test/syncharness"
)

// modelWorkout and modelSet are the engine's predicted projection rows.
type modelWorkout struct {
	status    string
	startedAt time.Time
	endedAt   *time.Time
}

type modelSet struct {
	workoutID   string
	exerciseID  string
	reps        int
	weight      float64
	completedAt time.Time
}

// foldModel replays the journal in (device, enqueue order), the same
// order the server replays its log, and returns the predicted state.
func (e *ChaosEngine) foldModel() (map[string]*modelWorkout, map[string]*modelSet) {
	deviceIDs := make([]string, 0, len(e.devices))
	for _, d := range e.devices {
		deviceIDs = append(deviceIDs, d.DeviceID)
	}
	sort.Strings(deviceIDs)

	workouts := map[string]*modelWorkout{}
	sets := map[string]*modelSet{}

	for _, dev := range deviceIDs {
		for _, entry := range e.journal {
			if entry.device != dev {
				continue
			}
			switch p := entry.payload.(type) {
			case events.WorkoutStarted:
				workouts[p.WorkoutID] = &modelWorkout{
					status:    serverdb.WorkoutInProgress,
					startedAt: p.StartedAt.UTC(),
				}
			case events.ExerciseAdded:
				// Projection no-op.
			case events.SetCompleted:
				if _, ok := workouts[p.WorkoutID]; !ok {
					continue
				}
				sets[p.SetID] = &modelSet{
					workoutID:   p.WorkoutID,
					exerciseID:  p.ExerciseID,
					reps:        *p.Reps,
					weight:      *p.Weight,
					completedAt: p.CompletedAt.UTC(),
				}
			case events.SetUpdated:
				s, ok := sets[p.SetID]
				if !ok {
					continue
				}
				if p.Reps != nil {
					s.reps = *p.Reps
				}
				if p.Weight != nil {
					s.weight = *p.Weight
				}
				if p.CompletedAt != nil {
					s.completedAt = p.CompletedAt.UTC()
				}
			case events.SetDeleted:
				delete(sets, p.SetID)
			case events.WorkoutEnded:
				if w, ok := workouts[p.WorkoutID]; ok {
					t := p.EndedAt.UTC()
					w.endedAt = &t
					w.status = serverdb.WorkoutCompleted
				}
			case events.WorkoutCancelled:
				if w, ok := workouts[p.WorkoutID]; ok {
					w.status = serverdb.WorkoutCancelled
				}
			}
		}
	}
	return workouts, sets
}

// weekStart returns the Monday of the timestamp's UTC week, matching
// the server's weekly bucketing.
func weekStart(t time.Time) string {
	t = t.UTC()
	offset := (int(t.Weekday()) + 6) % 7
	return t.AddDate(0, 0, -offset).Format("2006-01-02")
}

// VerifyResult is one named check outcome.
type VerifyResult struct {
	Name    string
	OK      bool
	Details string
}

// Verifier runs convergence checks against the harness server and
// collects named results.
type Verifier struct {
	H       *syncharness.Harness
	Results []VerifyResult
}

// NewVerifier creates a Verifier over the harness.
func NewVerifier(h *syncharness.Harness) *Verifier {
	return &Verifier{H: h}
}

func (v *Verifier) check(name string, ok bool, details string) {
	if ok {
		details = ""
	}
	v.Results = append(v.Results, VerifyResult{Name: name, OK: ok, Details: details})
}

// FailedResults returns only the checks that failed.
func (v *Verifier) FailedResults() []VerifyResult {
	var out []VerifyResult
	for _, r := range v.Results {
		if !r.OK {
			out = append(out, r)
		}
	}
	return out
}

// Summary returns pass/fail counts for all checks run so far.
func (v *Verifier) Summary() string {
	passed := 0
	for _, r := range v.Results {
		if r.OK {
			passed++
		}
	}
	return fmt.Sprintf("Checks: %d passed, %d failed", passed, len(v.Results)-passed)
}

// VerifyQueuesDrained checks that no client holds queued events.
func (v *Verifier) VerifyQueuesDrained(clientIDs ...string) {
	for _, id := range clientIDs {
		stats := v.H.QueueStats(id)
		v.check("queue drained "+id, stats.Total == 0,
			fmt.Sprintf("pending=%d syncing=%d failed=%d", stats.Pending, stats.Syncing, stats.Failed))
	}
}

// VerifyLogComplete checks that the server log holds exactly the
// records the devices enqueued: right total, and per device an
// unbroken 1..N sequence with the enqueued event types in order.
func (v *Verifier) VerifyLogComplete(e *ChaosEngine, userID string) {
	total := e.TotalRecords()
	count := v.H.ServerEventCount(userID)
	v.check("server log complete", count == total,
		fmt.Sprintf("server holds %d events, devices enqueued %d", count, total))

	for _, clientID := range e.clients {
		d := e.devices[clientID]

		var expected []logged
		for _, entry := range e.journal {
			if entry.device == d.DeviceID {
				expected = append(expected, entry)
			}
		}

		lines := v.H.DeviceLog(d.DeviceID)
		if len(lines) != len(expected) {
			v.check("device log "+d.DeviceID, false,
				fmt.Sprintf("server holds %d events, device enqueued %d", len(lines), len(expected)))
			continue
		}

		ok, details := true, ""
		for i, line := range lines {
			fields := strings.Fields(line)
			if len(fields) != 3 {
				ok, details = false, fmt.Sprintf("malformed log line %q", line)
				break
			}
			seq, err := strconv.Atoi(fields[1])
			if err != nil || fields[0] != userID || seq != i+1 || fields[2] != string(expected[i].typ) {
				ok = false
				details = fmt.Sprintf("position %d: got %q, want user=%s seq=%d type=%s",
					i, line, userID, i+1, expected[i].typ)
				break
			}
		}
		v.check("device log "+d.DeviceID, ok, details)
	}
}

// VerifyProjections rebuilds the user's projections and compares every
// workout, set and weekly row against the engine's model fold.
func (v *Verifier) VerifyProjections(e *ChaosEngine, userID string) {
	ctx := context.Background()

	stats := v.H.Rebuild(userID)
	v.check("rebuild skips nothing", stats.EventsSkipped == 0,
		fmt.Sprintf("%d events skipped", stats.EventsSkipped))
	v.check("rebuild replays every event", stats.EventsProcessed == e.TotalRecords(),
		fmt.Sprintf("processed %d, enqueued %d", stats.EventsProcessed, e.TotalRecords()))

	workouts, sets := e.foldModel()

	summaries, err := v.H.Store.ListWorkouts(ctx, userID, "", 100000, 0)
	if err != nil {
		v.check("list workouts", false, err.Error())
		return
	}
	v.check("workout count", len(summaries) == len(workouts),
		fmt.Sprintf("projected %d workouts, model has %d", len(summaries), len(workouts)))

	workoutsOK, details := true, ""
	for id, m := range workouts {
		row, err := v.H.Store.GetWorkoutRow(ctx, id)
		if err != nil || row == nil {
			workoutsOK, details = false, fmt.Sprintf("workout %s: missing (%v)", id, err)
			break
		}
		ok := row.UserID == userID && row.Status == m.status &&
			row.StartedAt != nil && row.StartedAt.UTC().Equal(m.startedAt)
		if m.endedAt == nil {
			ok = ok && row.EndedAt == nil
		} else {
			ok = ok && row.EndedAt != nil && row.EndedAt.UTC().Equal(*m.endedAt)
		}
		if !ok {
			workoutsOK = false
			details = fmt.Sprintf("workout %s: got status=%s started=%v ended=%v, want status=%s started=%v ended=%v",
				id, row.Status, row.StartedAt, row.EndedAt, m.status, m.startedAt, m.endedAt)
			break
		}
	}
	v.check("workout rows match model", workoutsOK, details)

	modelByWorkout := map[string]map[string]*modelSet{}
	for setID, s := range sets {
		if modelByWorkout[s.workoutID] == nil {
			modelByWorkout[s.workoutID] = map[string]*modelSet{}
		}
		modelByWorkout[s.workoutID][setID] = s
	}

	setsOK, details := true, ""
	projectedSets := 0
	for workoutID := range workouts {
		rows, err := v.H.Store.ListSetsForWorkout(ctx, workoutID)
		if err != nil {
			setsOK, details = false, fmt.Sprintf("list sets for %s: %v", workoutID, err)
			break
		}
		projectedSets += len(rows)
		want := modelByWorkout[workoutID]
		if len(rows) != len(want) {
			setsOK = false
			details = fmt.Sprintf("workout %s: projected %d sets, model has %d", workoutID, len(rows), len(want))
			break
		}
		for _, row := range rows {
			m, ok := want[row.SetID]
			if !ok {
				setsOK, details = false, fmt.Sprintf("set %s: not in model", row.SetID)
				break
			}
			if row.ExerciseID != m.exerciseID || row.Reps != m.reps || row.Weight != m.weight ||
				row.CompletedAt == nil || !row.CompletedAt.UTC().Equal(m.completedAt) {
				setsOK = false
				details = fmt.Sprintf("set %s: got %s %dx%.1f at %v, want %s %dx%.1f at %v",
					row.SetID, row.ExerciseID, row.Reps, row.Weight, row.CompletedAt,
					m.exerciseID, m.reps, m.weight, m.completedAt)
				break
			}
		}
		if !setsOK {
			break
		}
	}
	if setsOK && projectedSets != len(sets) {
		setsOK, details = false, fmt.Sprintf("projected %d sets total, model has %d", projectedSets, len(sets))
	}
	v.check("set rows match model", setsOK, details)

	v.verifyWeekly(ctx, userID, workouts, sets)
}

// verifyWeekly compares weekly_metrics against aggregates computed from
// the model: completed workouts only, bucketed by Monday.
func (v *Verifier) verifyWeekly(ctx context.Context, userID string, workouts map[string]*modelWorkout, sets map[string]*modelSet) {
	type weekAgg struct {
		workouts  int
		volume    float64
		exercises map[string]bool
	}
	agg := map[string]*weekAgg{}
	for workoutID, w := range workouts {
		if w.status != serverdb.WorkoutCompleted {
			continue
		}
		week := weekStart(w.startedAt)
		a := agg[week]
		if a == nil {
			a = &weekAgg{exercises: map[string]bool{}}
			agg[week] = a
		}
		a.workouts++
		for _, s := range sets {
			if s.workoutID != workoutID {
				continue
			}
			a.volume += float64(s.reps) * s.weight
			a.exercises[s.exerciseID] = true
		}
	}

	rows, err := v.H.Store.ListWeeklyMetrics(ctx, userID, 100000)
	if err != nil {
		v.check("list weekly metrics", false, err.Error())
		return
	}
	v.check("weekly row count", len(rows) == len(agg),
		fmt.Sprintf("projected %d weeks, model has %d", len(rows), len(agg)))

	ok, details := true, ""
	for _, row := range rows {
		a := agg[row.WeekStart]
		if a == nil {
			ok, details = false, fmt.Sprintf("week %s: not in model", row.WeekStart)
			break
		}
		if row.TotalWorkouts != a.workouts || row.TotalVolume != a.volume || row.ExercisesCount != len(a.exercises) {
			ok = false
			details = fmt.Sprintf("week %s: got workouts=%d volume=%.1f exercises=%d, want workouts=%d volume=%.1f exercises=%d",
				row.WeekStart, row.TotalWorkouts, row.TotalVolume, row.ExercisesCount,
				a.workouts, a.volume, len(a.exercises))
			break
		}
	}
	v.check("weekly rows match model", ok, details)
}

// VerifyRebuildStable rebuilds twice and checks the projections dump
// identically both times.
func (v *Verifier) VerifyRebuildStable(userID string) {
	first := v.H.ProjectionDump(userID)
	v.H.Rebuild(userID)
	second := v.H.ProjectionDump(userID)
	v.check("rebuild stable", first == second,
		fmt.Sprintf("dumps differ:\n--- first ---\n%s\n--- second ---\n%s", first, second))
}
