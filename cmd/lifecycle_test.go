package cmd

import (
	"context"
	"testing"
	"time"

	"github.com/mvarner/replog/internal/db"
	"github.com/mvarner/replog/internal/events"
)

// The lifecycle commands drive the event queue and the workout scratchpad
// together. This exercises the same call sequence the commands make,
// without cobra in the way.
func TestWorkoutLifecycleQueuesEvents(t *testing.T) {
	ctx := context.Background()
	database, err := db.Initialize(t.TempDir())
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer database.Close()

	const (
		userID   = "11111111-1111-1111-1111-111111111111"
		deviceID = "dev-test"
	)

	// start
	workoutID := newEntityID("w")
	startedAt := time.Now().UTC().Add(-30 * time.Minute)
	startRec, err := events.New(events.TypeWorkoutStarted, userID, deviceID, workoutID,
		events.WorkoutStarted{WorkoutID: workoutID, StartedAt: startedAt})
	if err != nil {
		t.Fatalf("New(WorkoutStarted) failed: %v", err)
	}
	if err := database.Enqueue(ctx, &startRec); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := database.SetOpenWorkout(ctx, workoutID, startedAt); err != nil {
		t.Fatalf("SetOpenWorkout failed: %v", err)
	}

	// log: the first set of an exercise also announces the exercise
	exerciseID, added, err := database.EnsureExercise(ctx, workoutID, "Bench Press")
	if err != nil {
		t.Fatalf("EnsureExercise failed: %v", err)
	}
	if !added {
		t.Fatal("first use of the exercise should report added")
	}
	reps, weight := 5, 100.0
	setID := newEntityID("s")
	exRec, err := events.New(events.TypeExerciseAdded, userID, deviceID, workoutID,
		events.ExerciseAdded{WorkoutID: workoutID, ExerciseID: exerciseID, ExerciseName: "Bench Press"})
	if err != nil {
		t.Fatalf("New(ExerciseAdded) failed: %v", err)
	}
	setRec, err := events.New(events.TypeSetCompleted, userID, deviceID, workoutID,
		events.SetCompleted{
			WorkoutID:   workoutID,
			ExerciseID:  exerciseID,
			SetID:       setID,
			Reps:        &reps,
			Weight:      &weight,
			CompletedAt: startedAt.Add(5 * time.Minute),
		})
	if err != nil {
		t.Fatalf("New(SetCompleted) failed: %v", err)
	}
	if err := database.Enqueue(ctx, &exRec, &setRec); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := database.RecordLocalSet(ctx, db.LocalSet{
		SetID:        setID,
		WorkoutID:    workoutID,
		ExerciseID:   exerciseID,
		ExerciseName: "Bench Press",
		Reps:         reps,
		Weight:       weight,
		CompletedAt:  startedAt.Add(5 * time.Minute),
	}); err != nil {
		t.Fatalf("RecordLocalSet failed: %v", err)
	}

	// a second set of the same exercise does not announce it again
	_, added, err = database.EnsureExercise(ctx, workoutID, "bench press")
	if err != nil {
		t.Fatalf("EnsureExercise failed: %v", err)
	}
	if added {
		t.Error("second use of the exercise should not report added")
	}

	// finish
	endRec, err := events.New(events.TypeWorkoutEnded, userID, deviceID, workoutID,
		events.WorkoutEnded{WorkoutID: workoutID, EndedAt: startedAt.Add(45 * time.Minute)})
	if err != nil {
		t.Fatalf("New(WorkoutEnded) failed: %v", err)
	}
	if err := database.Enqueue(ctx, &endRec); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := database.ClearWorkoutScratch(ctx, workoutID); err != nil {
		t.Fatalf("ClearWorkoutScratch failed: %v", err)
	}

	open, err := database.GetOpenWorkout(ctx)
	if err != nil {
		t.Fatalf("GetOpenWorkout failed: %v", err)
	}
	if open != nil {
		t.Error("workout should be closed after finish")
	}

	// the queue holds the whole stream in device order with contiguous
	// sequence numbers and the workout as correlation id
	pending, err := database.GetPending(ctx, deviceID, userID, 100)
	if err != nil {
		t.Fatalf("GetPending failed: %v", err)
	}
	wantTypes := []events.Type{
		events.TypeWorkoutStarted,
		events.TypeExerciseAdded,
		events.TypeSetCompleted,
		events.TypeWorkoutEnded,
	}
	if len(pending) != len(wantTypes) {
		t.Fatalf("queued %d events, want %d", len(pending), len(wantTypes))
	}
	for i, qe := range pending {
		if qe.EventType != wantTypes[i] {
			t.Errorf("event %d: type %s, want %s", i, qe.EventType, wantTypes[i])
		}
		if qe.SequenceNumber != int64(i+1) {
			t.Errorf("event %d: sequence %d, want %d", i, qe.SequenceNumber, i+1)
		}
		if qe.CorrelationID != workoutID {
			t.Errorf("event %d: correlation %q, want %q", i, qe.CorrelationID, workoutID)
		}
	}
}
