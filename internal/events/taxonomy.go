package events

// Type represents the canonical event types in the workout log.
type Type string

// Canonical event types, in the order they typically occur in a workout.
const (
	TypeWorkoutStarted   Type = "WorkoutStarted"
	TypeExerciseAdded    Type = "ExerciseAdded"
	TypeSetCompleted     Type = "SetCompleted"
	TypeSetUpdated       Type = "SetUpdated"
	TypeSetDeleted       Type = "SetDeleted"
	TypeWorkoutEnded     Type = "WorkoutEnded"
	TypeWorkoutCancelled Type = "WorkoutCancelled"
)

// AllTypes returns all valid event types.
func AllTypes() map[Type]bool {
	return map[Type]bool{
		TypeWorkoutStarted:   true,
		TypeExerciseAdded:    true,
		TypeSetCompleted:     true,
		TypeSetUpdated:       true,
		TypeSetDeleted:       true,
		TypeWorkoutEnded:     true,
		TypeWorkoutCancelled: true,
	}
}

// IsValidType checks if the given event type string is canonical.
func IsValidType(t string) bool {
	return AllTypes()[Type(t)]
}
