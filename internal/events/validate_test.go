package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func validRecord(t *testing.T, typ Type, payload any) Record {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return Record{
		EventID:   uuid.NewString(),
		EventType: typ,
		Payload:   raw,
		UserID:    uuid.NewString(),
		DeviceID:  uuid.NewString(),
	}
}

func TestValidateEnvelope(t *testing.T) {
	now := time.Now().UTC()
	base := validRecord(t, TypeWorkoutStarted, WorkoutStarted{WorkoutID: "w1", StartedAt: now})

	require.NoError(t, Validate(base))

	bad := base
	bad.EventID = "not-a-uuid"
	assert.ErrorIs(t, Validate(bad), ErrInvalidRecord)

	bad = base
	bad.UserID = ""
	assert.ErrorIs(t, Validate(bad), ErrInvalidRecord)

	bad = base
	bad.DeviceID = ""
	assert.ErrorIs(t, Validate(bad), ErrInvalidRecord)

	bad = base
	bad.EventType = "MealLogged"
	assert.ErrorIs(t, Validate(bad), ErrUnknownType)

	bad = base
	bad.Payload = nil
	assert.ErrorIs(t, Validate(bad), ErrInvalidPayload)
}

func TestValidatePayload(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name    string
		typ     Type
		payload any
		wantErr error
	}{
		{
			name:    "workout started ok",
			typ:     TypeWorkoutStarted,
			payload: WorkoutStarted{WorkoutID: "w1", StartedAt: now},
		},
		{
			name:    "workout started missing id",
			typ:     TypeWorkoutStarted,
			payload: WorkoutStarted{StartedAt: now},
			wantErr: ErrInvalidPayload,
		},
		{
			name:    "workout started missing time",
			typ:     TypeWorkoutStarted,
			payload: WorkoutStarted{WorkoutID: "w1"},
			wantErr: ErrInvalidPayload,
		},
		{
			name:    "workout ended ok",
			typ:     TypeWorkoutEnded,
			payload: WorkoutEnded{WorkoutID: "w1", EndedAt: now},
		},
		{
			name:    "workout cancelled ok",
			typ:     TypeWorkoutCancelled,
			payload: WorkoutCancelled{WorkoutID: "w1"},
		},
		{
			name:    "workout cancelled missing id",
			typ:     TypeWorkoutCancelled,
			payload: WorkoutCancelled{},
			wantErr: ErrInvalidPayload,
		},
		{
			name:    "exercise added ok",
			typ:     TypeExerciseAdded,
			payload: ExerciseAdded{WorkoutID: "w1", ExerciseID: "e1", ExerciseName: "Bench Press"},
		},
		{
			name:    "exercise added missing name",
			typ:     TypeExerciseAdded,
			payload: ExerciseAdded{WorkoutID: "w1", ExerciseID: "e1"},
			wantErr: ErrInvalidPayload,
		},
		{
			name: "set completed ok",
			typ:  TypeSetCompleted,
			payload: SetCompleted{
				WorkoutID: "w1", ExerciseID: "e1", SetID: "s1",
				Reps: ptr(8), Weight: ptr(80.0), CompletedAt: now,
			},
		},
		{
			name: "set completed zero reps is legal",
			typ:  TypeSetCompleted,
			payload: SetCompleted{
				WorkoutID: "w1", ExerciseID: "e1", SetID: "s1",
				Reps: ptr(0), Weight: ptr(0.0), CompletedAt: now,
			},
		},
		{
			name: "set completed negative reps",
			typ:  TypeSetCompleted,
			payload: SetCompleted{
				WorkoutID: "w1", ExerciseID: "e1", SetID: "s1",
				Reps: ptr(-1), Weight: ptr(80.0), CompletedAt: now,
			},
			wantErr: ErrInvalidPayload,
		},
		{
			name: "set completed negative weight",
			typ:  TypeSetCompleted,
			payload: SetCompleted{
				WorkoutID: "w1", ExerciseID: "e1", SetID: "s1",
				Reps: ptr(8), Weight: ptr(-2.5), CompletedAt: now,
			},
			wantErr: ErrInvalidPayload,
		},
		{
			name: "set completed missing reps",
			typ:  TypeSetCompleted,
			payload: SetCompleted{
				WorkoutID: "w1", ExerciseID: "e1", SetID: "s1",
				Weight: ptr(80.0), CompletedAt: now,
			},
			wantErr: ErrInvalidPayload,
		},
		{
			name:    "set updated reps only",
			typ:     TypeSetUpdated,
			payload: SetUpdated{SetID: "s1", Reps: ptr(10)},
		},
		{
			name:    "set updated empty subset",
			typ:     TypeSetUpdated,
			payload: SetUpdated{SetID: "s1"},
		},
		{
			name:    "set updated negative weight",
			typ:     TypeSetUpdated,
			payload: SetUpdated{SetID: "s1", Weight: ptr(-1.0)},
			wantErr: ErrInvalidPayload,
		},
		{
			name:    "set updated missing set id",
			typ:     TypeSetUpdated,
			payload: SetUpdated{Reps: ptr(10)},
			wantErr: ErrInvalidPayload,
		},
		{
			name:    "set deleted ok",
			typ:     TypeSetDeleted,
			payload: SetDeleted{SetID: "s1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := json.Marshal(tt.payload)
			require.NoError(t, err)
			err = ValidatePayload(tt.typ, raw)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidatePayloadMalformedJSON(t *testing.T) {
	err := ValidatePayload(TypeWorkoutStarted, json.RawMessage(`{"workout_id": "w1", "started_at": "yesterday"}`))
	assert.ErrorIs(t, err, ErrInvalidPayload)

	err = ValidatePayload(TypeSetCompleted, json.RawMessage(`{"reps": "eight"}`))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestNewAssignsIdentityAndValidates(t *testing.T) {
	rec, err := New(TypeWorkoutCancelled, "u1", "d1", "w1", WorkoutCancelled{WorkoutID: "w1"})
	require.NoError(t, err)
	_, err = uuid.Parse(rec.EventID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), rec.SequenceNumber)
	assert.Equal(t, "w1", rec.CorrelationID)
	assert.False(t, rec.CreatedAt.IsZero())

	_, err = New(TypeSetCompleted, "u1", "d1", "", SetCompleted{SetID: "s1"})
	assert.ErrorIs(t, err, ErrInvalidPayload)
}
