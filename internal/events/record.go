package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Record is one immutable entry in the workout log. EventID is the global
// idempotency key. SequenceNumber orders the record within its device stream
// and is assigned by the client queue at enqueue time, so a freshly built
// Record carries zero until it is enqueued.
type Record struct {
	EventID        string          `json:"event_id"`
	EventType      Type            `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	UserID         string          `json:"user_id"`
	DeviceID       string          `json:"device_id"`
	SequenceNumber int64           `json:"sequence_number"`
	CorrelationID  string          `json:"correlation_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at,omitempty"`
}

// New builds an unsequenced Record with a fresh event id and validates the
// payload against the schema for typ.
func New(typ Type, userID, deviceID, correlationID string, payload any) (Record, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Record{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	rec := Record{
		EventID:       uuid.NewString(),
		EventType:     typ,
		Payload:       raw,
		UserID:        userID,
		DeviceID:      deviceID,
		CorrelationID: correlationID,
		CreatedAt:     time.Now().UTC(),
	}
	if err := Validate(rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}
