package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenWorkoutLifecycle(t *testing.T) {
	database := testDB(t)
	ctx := context.Background()

	w, err := database.GetOpenWorkout(ctx)
	require.NoError(t, err)
	assert.Nil(t, w)

	started := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, database.SetOpenWorkout(ctx, "w1", started))

	w, err = database.GetOpenWorkout(ctx)
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, "w1", w.WorkoutID)
	assert.True(t, w.StartedAt.Equal(started))

	// Only one workout can be open.
	err = database.SetOpenWorkout(ctx, "w2", time.Now())
	assert.Error(t, err)

	require.NoError(t, database.ClearWorkoutScratch(ctx, "w1"))
	w, err = database.GetOpenWorkout(ctx)
	require.NoError(t, err)
	assert.Nil(t, w)
}

func TestEnsureExerciseReusesIDsCaseInsensitively(t *testing.T) {
	database := testDB(t)
	ctx := context.Background()

	id1, added, err := database.EnsureExercise(ctx, "w1", "Bench Press")
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, "bench-press", id1)

	id2, added, err := database.EnsureExercise(ctx, "w1", "bench press")
	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, id1, id2)

	// The same exercise in another workout keeps its id but is announced
	// again, since ExerciseAdded is scoped to a workout.
	id3, added, err := database.EnsureExercise(ctx, "w2", "Bench Press")
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, id1, id3)
}

func TestListWorkoutExercises(t *testing.T) {
	database := testDB(t)
	ctx := context.Background()

	names, err := database.ListWorkoutExercises(ctx, "w1")
	require.NoError(t, err)
	assert.Empty(t, names)

	for _, name := range []string{"Squat", "Bench Press", "Barbell Row"} {
		_, _, err := database.EnsureExercise(ctx, "w1", name)
		require.NoError(t, err)
	}
	_, _, err = database.EnsureExercise(ctx, "w2", "Deadlift")
	require.NoError(t, err)

	// Re-logging an exercise must not reorder the list.
	_, added, err := database.EnsureExercise(ctx, "w1", "squat")
	require.NoError(t, err)
	assert.False(t, added)

	names, err = database.ListWorkoutExercises(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Squat", "Bench Press", "Barbell Row"}, names)
}

func TestExerciseSlug(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Bench Press", "bench-press"},
		{"  back squat ", "back-squat"},
		{"Romanian Deadlift (RDL)", "romanian-deadlift-rdl"},
		{"21s", "21s"},
		{"!!!", ""},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, ExerciseSlug(tc.name), "slug of %q", tc.name)
	}
}

func TestLocalSetScratchpad(t *testing.T) {
	database := testDB(t)
	ctx := context.Background()

	now := time.Now().UTC()
	set := LocalSet{
		SetID:        "s1",
		WorkoutID:    "w1",
		ExerciseID:   "e1",
		ExerciseName: "Squat",
		Reps:         5,
		Weight:       100,
		CompletedAt:  now,
	}
	require.NoError(t, database.RecordLocalSet(ctx, set))

	reps := 8
	require.NoError(t, database.ApplyLocalSetUpdate(ctx, "s1", &reps, nil))

	got, err := database.GetLocalSet(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 8, got.Reps)
	assert.Equal(t, 100.0, got.Weight)

	sets, err := database.ListLocalSets(ctx, "w1")
	require.NoError(t, err)
	assert.Len(t, sets, 1)

	require.NoError(t, database.DeleteLocalSet(ctx, "s1"))
	got, err = database.GetLocalSet(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, got)
}
