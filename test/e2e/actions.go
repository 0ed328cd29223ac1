package e2e

import (
	"fmt"
	"math/rand"

	"github.com/mvarner/replog/internal/db"
	"github.com/mvarner/replog/internal/events"
)

// ActionDef defines a named action with weight and executor.
type ActionDef struct {
	Name   string
	Weight int
	Exec   func(e *ChaosEngine, clientID string) ActionResult
}

// actionDefs lists all chaos actions with their weights. The mix leans
// toward logging sets, with enough syncs mid-run that devices interleave
// on the server instead of arriving in one block each.
var actionDefs = []ActionDef{
	{Name: "start_workout", Weight: 12, Exec: execStartWorkout},
	{Name: "log_set", Weight: 25, Exec: execLogSet},
	{Name: "edit_set", Weight: 8, Exec: execEditSet},
	{Name: "delete_set", Weight: 4, Exec: execDeleteSet},
	{Name: "finish_workout", Weight: 10, Exec: execFinishWorkout},
	{Name: "cancel_workout", Weight: 3, Exec: execCancelWorkout},
	{Name: "sync", Weight: 15, Exec: execSync},
	{Name: "crash_push", Weight: 3, Exec: execCrashPush},
}

// totalWeight is the precomputed sum of all action weights.
var totalWeight int

func init() {
	for _, d := range actionDefs {
		totalWeight += d.Weight
	}
}

// SelectAction picks a weighted random action definition.
func SelectAction(rng *rand.Rand) ActionDef {
	roll := rng.Intn(totalWeight) + 1
	cumulative := 0
	for _, d := range actionDefs {
		cumulative += d.Weight
		if roll <= cumulative {
			return d
		}
	}
	return actionDefs[0]
}

// exerciseNames is the pool devices draw from. Weights on the bar are
// 2.5 kg multiples, so every reps*weight product is a clean half-unit
// and volume sums compare exactly.
var exerciseNames = []string{
	"Bench Press", "Squat", "Deadlift", "Overhead Press", "Barbell Row", "Pull Up",
}

func execStartWorkout(e *ChaosEngine, clientID string) ActionResult {
	d := e.devices[clientID]
	if d.OpenWorkout != "" {
		return ActionResult{Skipped: true}
	}
	at := e.tick()
	workoutID := e.H.StartWorkout(clientID, at)
	d.OpenWorkout = workoutID
	e.logEvent(d, events.TypeWorkoutStarted,
		events.WorkoutStarted{WorkoutID: workoutID, StartedAt: at})
	return ActionResult{Target: workoutID, OK: true}
}

func execLogSet(e *ChaosEngine, clientID string) ActionResult {
	d := e.devices[clientID]
	if d.OpenWorkout == "" {
		return ActionResult{Skipped: true}
	}
	name := exerciseNames[e.Rng.Intn(len(exerciseNames))]
	slug := db.ExerciseSlug(name)
	reps := 1 + e.Rng.Intn(15)
	weight := 2.5 * float64(1+e.Rng.Intn(60))
	at := e.tick()

	setID := e.H.LogSet(clientID, d.OpenWorkout, name, reps, weight, at)

	// Mirror the queue's bookkeeping: the first use of an exercise in a
	// workout enqueues an ExerciseAdded ahead of the set.
	if !d.exercises[d.OpenWorkout][slug] {
		if d.exercises[d.OpenWorkout] == nil {
			d.exercises[d.OpenWorkout] = make(map[string]bool)
		}
		d.exercises[d.OpenWorkout][slug] = true
		e.logEvent(d, events.TypeExerciseAdded,
			events.ExerciseAdded{WorkoutID: d.OpenWorkout, ExerciseID: slug, ExerciseName: name})
	}
	e.logEvent(d, events.TypeSetCompleted, events.SetCompleted{
		WorkoutID:   d.OpenWorkout,
		ExerciseID:  slug,
		SetID:       setID,
		Reps:        &reps,
		Weight:      &weight,
		CompletedAt: at,
	})
	d.sets = append(d.sets, setID)
	return ActionResult{Target: setID, OK: true}
}

func execEditSet(e *ChaosEngine, clientID string) ActionResult {
	d := e.devices[clientID]
	if len(d.sets) == 0 {
		return ActionResult{Skipped: true}
	}
	setID := d.sets[e.Rng.Intn(len(d.sets))]

	var repsPtr *int
	var weightPtr *float64
	switch e.Rng.Intn(3) {
	case 0:
		reps := 1 + e.Rng.Intn(15)
		repsPtr = &reps
	case 1:
		weight := 2.5 * float64(1+e.Rng.Intn(60))
		weightPtr = &weight
	default:
		reps := 1 + e.Rng.Intn(15)
		weight := 2.5 * float64(1+e.Rng.Intn(60))
		repsPtr, weightPtr = &reps, &weight
	}

	e.H.EditSet(clientID, setID, repsPtr, weightPtr)
	e.logEvent(d, events.TypeSetUpdated,
		events.SetUpdated{SetID: setID, Reps: repsPtr, Weight: weightPtr})
	return ActionResult{Target: setID, OK: true}
}

func execDeleteSet(e *ChaosEngine, clientID string) ActionResult {
	d := e.devices[clientID]
	if len(d.sets) == 0 {
		return ActionResult{Skipped: true}
	}
	i := e.Rng.Intn(len(d.sets))
	setID := d.sets[i]
	d.sets = append(d.sets[:i], d.sets[i+1:]...)

	e.H.DeleteSet(clientID, setID)
	e.logEvent(d, events.TypeSetDeleted, events.SetDeleted{SetID: setID})
	return ActionResult{Target: setID, OK: true}
}

func execFinishWorkout(e *ChaosEngine, clientID string) ActionResult {
	d := e.devices[clientID]
	if d.OpenWorkout == "" {
		return ActionResult{Skipped: true}
	}
	workoutID := d.OpenWorkout
	at := e.tick()
	e.H.FinishWorkout(clientID, workoutID, at)
	d.OpenWorkout = ""
	e.logEvent(d, events.TypeWorkoutEnded,
		events.WorkoutEnded{WorkoutID: workoutID, EndedAt: at})
	return ActionResult{Target: workoutID, OK: true}
}

func execCancelWorkout(e *ChaosEngine, clientID string) ActionResult {
	d := e.devices[clientID]
	if d.OpenWorkout == "" {
		return ActionResult{Skipped: true}
	}
	workoutID := d.OpenWorkout
	e.H.CancelWorkout(clientID, workoutID)
	d.OpenWorkout = ""
	e.logEvent(d, events.TypeWorkoutCancelled,
		events.WorkoutCancelled{WorkoutID: workoutID})
	return ActionResult{Target: workoutID, OK: true}
}

func execSync(e *ChaosEngine, clientID string) ActionResult {
	res, err := e.H.Sync(clientID)
	if err != nil {
		return ActionResult{Output: err.Error()}
	}
	if !res.OK {
		return ActionResult{Output: res.Message}
	}
	e.Stats.SyncCount++
	return ActionResult{OK: true, Output: res.Message}
}

// execCrashPush delivers the device's pending events to the server and
// then drops the acks on the floor, as if the process died mid-sync.
// The next sync re-sends them and the server deduplicates.
func execCrashPush(e *ChaosEngine, clientID string) ActionResult {
	if e.H.QueueStats(clientID).Pending == 0 {
		return ActionResult{Skipped: true}
	}
	resp, err := e.H.PushWithoutMark(clientID)
	if err != nil {
		return ActionResult{Output: err.Error()}
	}
	if resp.RejectedCount != 0 {
		return ActionResult{Output: fmt.Sprintf("%d events rejected", resp.RejectedCount)}
	}
	e.Stats.CrashPushes++
	return ActionResult{OK: true, Output: fmt.Sprintf("accepted %d, acks dropped", resp.AcceptedCount)}
}
