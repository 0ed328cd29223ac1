package events

import (
	"testing"
)

func TestIsValidType(t *testing.T) {
	tests := []struct {
		input string
		valid bool
	}{
		{"WorkoutStarted", true},
		{"WorkoutEnded", true},
		{"WorkoutCancelled", true},
		{"ExerciseAdded", true},
		{"SetCompleted", true},
		{"SetUpdated", true},
		{"SetDeleted", true},

		// Case matters on the wire.
		{"workoutstarted", false},
		{"workout_started", false},
		{"SETCOMPLETED", false},

		{"", false},
		{"MealLogged", false},
		{"BodyWeightRecorded", false},
	}

	for _, tt := range tests {
		if got := IsValidType(tt.input); got != tt.valid {
			t.Errorf("IsValidType(%q) = %v, want %v", tt.input, got, tt.valid)
		}
	}
}

func TestAllTypesCoversTaxonomy(t *testing.T) {
	all := AllTypes()
	if len(all) != 7 {
		t.Fatalf("expected 7 event types, got %d", len(all))
	}
	for typ := range all {
		if !IsValidType(string(typ)) {
			t.Errorf("type %q in AllTypes but not valid", typ)
		}
	}
}
