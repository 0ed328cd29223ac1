package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// WorkoutStarted opens a new workout.
type WorkoutStarted struct {
	WorkoutID string    `json:"workout_id"`
	StartedAt time.Time `json:"started_at"`
}

// WorkoutEnded completes an open workout.
type WorkoutEnded struct {
	WorkoutID string    `json:"workout_id"`
	EndedAt   time.Time `json:"ended_at"`
}

// WorkoutCancelled abandons a workout without completing it.
type WorkoutCancelled struct {
	WorkoutID string `json:"workout_id"`
}

// ExerciseAdded introduces an exercise into a workout. Projections ignore it;
// sets carry their own exercise id.
type ExerciseAdded struct {
	WorkoutID    string `json:"workout_id"`
	ExerciseID   string `json:"exercise_id"`
	ExerciseName string `json:"exercise_name"`
}

// SetCompleted records one performed set. Reps and Weight are pointers so a
// missing field can be told apart from an explicit zero.
type SetCompleted struct {
	WorkoutID   string    `json:"workout_id"`
	ExerciseID  string    `json:"exercise_id"`
	SetID       string    `json:"set_id"`
	Reps        *int      `json:"reps"`
	Weight      *float64  `json:"weight"`
	CompletedAt time.Time `json:"completed_at"`
}

// SetUpdated corrects an earlier set. Only the fields present in the payload
// change.
type SetUpdated struct {
	SetID       string     `json:"set_id"`
	Reps        *int       `json:"reps,omitempty"`
	Weight      *float64   `json:"weight,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// SetDeleted removes a set from its workout.
type SetDeleted struct {
	SetID string `json:"set_id"`
}

func decodePayload(typ Type, raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidPayload, typ, err)
	}
	return nil
}

// DecodeWorkoutStarted decodes a WorkoutStarted payload.
func DecodeWorkoutStarted(raw json.RawMessage) (WorkoutStarted, error) {
	var p WorkoutStarted
	err := decodePayload(TypeWorkoutStarted, raw, &p)
	return p, err
}

// DecodeWorkoutEnded decodes a WorkoutEnded payload.
func DecodeWorkoutEnded(raw json.RawMessage) (WorkoutEnded, error) {
	var p WorkoutEnded
	err := decodePayload(TypeWorkoutEnded, raw, &p)
	return p, err
}

// DecodeWorkoutCancelled decodes a WorkoutCancelled payload.
func DecodeWorkoutCancelled(raw json.RawMessage) (WorkoutCancelled, error) {
	var p WorkoutCancelled
	err := decodePayload(TypeWorkoutCancelled, raw, &p)
	return p, err
}

// DecodeExerciseAdded decodes an ExerciseAdded payload.
func DecodeExerciseAdded(raw json.RawMessage) (ExerciseAdded, error) {
	var p ExerciseAdded
	err := decodePayload(TypeExerciseAdded, raw, &p)
	return p, err
}

// DecodeSetCompleted decodes a SetCompleted payload.
func DecodeSetCompleted(raw json.RawMessage) (SetCompleted, error) {
	var p SetCompleted
	err := decodePayload(TypeSetCompleted, raw, &p)
	return p, err
}

// DecodeSetUpdated decodes a SetUpdated payload.
func DecodeSetUpdated(raw json.RawMessage) (SetUpdated, error) {
	var p SetUpdated
	err := decodePayload(TypeSetUpdated, raw, &p)
	return p, err
}

// DecodeSetDeleted decodes a SetDeleted payload.
func DecodeSetDeleted(raw json.RawMessage) (SetDeleted, error) {
	var p SetDeleted
	err := decodePayload(TypeSetDeleted, raw, &p)
	return p, err
}
