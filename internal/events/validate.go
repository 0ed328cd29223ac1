package events

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Validation sentinels. Callers discriminate with errors.Is.
var (
	// ErrUnknownType marks an event whose type is not in the taxonomy.
	ErrUnknownType = errors.New("unknown event type")
	// ErrInvalidPayload marks a payload that fails the schema for its type.
	ErrInvalidPayload = errors.New("invalid payload")
	// ErrInvalidRecord marks a record whose envelope fields are malformed.
	ErrInvalidRecord = errors.New("invalid record")
)

// Validate checks the record envelope and its payload against the schema for
// the record's type. It runs at both boundaries: the client queue rejects bad
// records at enqueue, and the server rejects them per event at ingestion.
// Sequence numbers are not checked here; the queue assigns them and the
// server bounds-checks them per request.
func Validate(rec Record) error {
	if _, err := uuid.Parse(rec.EventID); err != nil {
		return fmt.Errorf("%w: event_id %q is not a UUID", ErrInvalidRecord, rec.EventID)
	}
	if rec.UserID == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidRecord)
	}
	if rec.DeviceID == "" {
		return fmt.Errorf("%w: device_id is required", ErrInvalidRecord)
	}
	if !IsValidType(string(rec.EventType)) {
		return fmt.Errorf("%w: %q", ErrUnknownType, rec.EventType)
	}
	if len(rec.Payload) == 0 {
		return fmt.Errorf("%w: %s: payload is empty", ErrInvalidPayload, rec.EventType)
	}
	return ValidatePayload(rec.EventType, rec.Payload)
}

// ValidatePayload checks a raw payload against the schema for typ.
func ValidatePayload(typ Type, raw json.RawMessage) error {
	switch typ {
	case TypeWorkoutStarted:
		p, err := DecodeWorkoutStarted(raw)
		if err != nil {
			return err
		}
		if p.WorkoutID == "" {
			return missingField(typ, "workout_id")
		}
		if p.StartedAt.IsZero() {
			return missingField(typ, "started_at")
		}
	case TypeWorkoutEnded:
		p, err := DecodeWorkoutEnded(raw)
		if err != nil {
			return err
		}
		if p.WorkoutID == "" {
			return missingField(typ, "workout_id")
		}
		if p.EndedAt.IsZero() {
			return missingField(typ, "ended_at")
		}
	case TypeWorkoutCancelled:
		p, err := DecodeWorkoutCancelled(raw)
		if err != nil {
			return err
		}
		if p.WorkoutID == "" {
			return missingField(typ, "workout_id")
		}
	case TypeExerciseAdded:
		p, err := DecodeExerciseAdded(raw)
		if err != nil {
			return err
		}
		if p.WorkoutID == "" {
			return missingField(typ, "workout_id")
		}
		if p.ExerciseID == "" {
			return missingField(typ, "exercise_id")
		}
		if p.ExerciseName == "" {
			return missingField(typ, "exercise_name")
		}
	case TypeSetCompleted:
		p, err := DecodeSetCompleted(raw)
		if err != nil {
			return err
		}
		if p.WorkoutID == "" {
			return missingField(typ, "workout_id")
		}
		if p.ExerciseID == "" {
			return missingField(typ, "exercise_id")
		}
		if p.SetID == "" {
			return missingField(typ, "set_id")
		}
		if p.Reps == nil {
			return missingField(typ, "reps")
		}
		if *p.Reps < 0 {
			return negativeField(typ, "reps")
		}
		if p.Weight == nil {
			return missingField(typ, "weight")
		}
		if *p.Weight < 0 {
			return negativeField(typ, "weight")
		}
		if p.CompletedAt.IsZero() {
			return missingField(typ, "completed_at")
		}
	case TypeSetUpdated:
		p, err := DecodeSetUpdated(raw)
		if err != nil {
			return err
		}
		if p.SetID == "" {
			return missingField(typ, "set_id")
		}
		if p.Reps != nil && *p.Reps < 0 {
			return negativeField(typ, "reps")
		}
		if p.Weight != nil && *p.Weight < 0 {
			return negativeField(typ, "weight")
		}
	case TypeSetDeleted:
		p, err := DecodeSetDeleted(raw)
		if err != nil {
			return err
		}
		if p.SetID == "" {
			return missingField(typ, "set_id")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
	return nil
}

func missingField(typ Type, field string) error {
	return fmt.Errorf("%w: %s requires %s", ErrInvalidPayload, typ, field)
}

func negativeField(typ Type, field string) error {
	return fmt.Errorf("%w: %s: %s must be >= 0", ErrInvalidPayload, typ, field)
}
