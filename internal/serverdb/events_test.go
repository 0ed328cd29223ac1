package serverdb

import (
	"context"
	"encoding/json"
	"testing"
)

func ev(id, typ, payload, userID string, seq int64) Event {
	return Event{
		EventID:        id,
		EventType:      typ,
		Payload:        json.RawMessage(payload),
		UserID:         userID,
		SequenceNumber: seq,
	}
}

func TestIngestEventsEmptyBatch(t *testing.T) {
	db := newTestDB(t)
	res, err := db.IngestEvents(context.Background(), "dev-a", nil)
	if err != nil {
		t.Fatalf("ingest empty: %v", err)
	}
	if res.Inserted != 0 || res.Duplicates != 0 {
		t.Errorf("empty batch counted something: %+v", res)
	}
	if res.LastAckedSequence != nil {
		t.Errorf("empty batch acked %d", *res.LastAckedSequence)
	}
}

func TestIngestEventsInsertsAndAcks(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	res, err := db.IngestEvents(ctx, "dev-a", []Event{
		ev("e1", "WorkoutStarted", `{"workout_id":"w1","started_at":"2026-03-02T10:00:00Z"}`, "u1", 1),
		ev("e2", "WorkoutEnded", `{"workout_id":"w1","ended_at":"2026-03-02T11:00:00Z"}`, "u1", 2),
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Inserted != 2 || res.Duplicates != 0 {
		t.Errorf("counts = %+v", res)
	}
	if res.LastAckedSequence == nil || *res.LastAckedSequence != 2 {
		t.Errorf("ack cursor = %v, want 2", res.LastAckedSequence)
	}

	stored, err := db.GetEvent(ctx, "e1")
	if err != nil {
		t.Fatal(err)
	}
	if stored == nil {
		t.Fatal("event e1 not stored")
	}
	if stored.DeviceID != "dev-a" || stored.SequenceNumber != 1 {
		t.Errorf("stored identity wrong: %+v", stored)
	}
	if stored.CreatedAt.IsZero() {
		t.Error("server arrival timestamp not stamped")
	}
}

func TestIngestEventsIdempotentOnEventID(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first := ev("e1", "WorkoutStarted", `{"workout_id":"w1","started_at":"2026-03-02T10:00:00Z"}`, "u1", 1)
	if _, err := db.IngestEvents(ctx, "dev-a", []Event{first}); err != nil {
		t.Fatal(err)
	}

	// Redelivery with a mutated payload must not touch the stored row.
	mutated := ev("e1", "WorkoutStarted", `{"workout_id":"HACKED","started_at":"2026-03-02T10:00:00Z"}`, "u1", 1)
	res, err := db.IngestEvents(ctx, "dev-a", []Event{mutated})
	if err != nil {
		t.Fatalf("redeliver: %v", err)
	}
	if res.Inserted != 0 || res.Duplicates != 1 {
		t.Errorf("redelivery counts = %+v", res)
	}
	if res.LastAckedSequence == nil || *res.LastAckedSequence != 1 {
		t.Errorf("duplicate not acked: %v", res.LastAckedSequence)
	}

	stored, err := db.GetEvent(ctx, "e1")
	if err != nil {
		t.Fatal(err)
	}
	if string(stored.Payload) != `{"workout_id":"w1","started_at":"2026-03-02T10:00:00Z"}` {
		t.Errorf("stored payload changed: %s", stored.Payload)
	}

	var count int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("log has %d rows, want 1", count)
	}
}

func TestIngestEventsMixedNewAndDuplicate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := db.IngestEvents(ctx, "dev-a", []Event{
		ev("e1", "WorkoutStarted", `{"workout_id":"w1","started_at":"2026-03-02T10:00:00Z"}`, "u1", 1),
	}); err != nil {
		t.Fatal(err)
	}

	res, err := db.IngestEvents(ctx, "dev-a", []Event{
		ev("e1", "WorkoutStarted", `{"workout_id":"w1","started_at":"2026-03-02T10:00:00Z"}`, "u1", 1),
		ev("e2", "WorkoutCancelled", `{"workout_id":"w1"}`, "u1", 2),
		ev("e3", "WorkoutStarted", `{"workout_id":"w2","started_at":"2026-03-03T10:00:00Z"}`, "u1", 5),
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Inserted != 2 || res.Duplicates != 1 {
		t.Errorf("counts = %+v", res)
	}
	// Gaps are fine; the cursor is the max stored, not a contiguous run.
	if res.LastAckedSequence == nil || *res.LastAckedSequence != 5 {
		t.Errorf("ack cursor = %v, want 5", res.LastAckedSequence)
	}
}

func TestDeviceCursor(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	count, last, err := db.DeviceCursor(ctx, "u1", "dev-a")
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 || last != nil {
		t.Errorf("fresh cursor = %d/%v", count, last)
	}

	if _, err := db.IngestEvents(ctx, "dev-a", []Event{
		ev("e1", "WorkoutStarted", `{"workout_id":"w1","started_at":"2026-03-02T10:00:00Z"}`, "u1", 3),
		ev("e2", "WorkoutCancelled", `{"workout_id":"w1"}`, "u1", 7),
	}); err != nil {
		t.Fatal(err)
	}

	count, last, err = db.DeviceCursor(ctx, "u1", "dev-a")
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
	if last == nil || *last != 7 {
		t.Errorf("last = %v, want 7", last)
	}

	// Another user's view of the same device is empty.
	count, last, err = db.DeviceCursor(ctx, "u2", "dev-a")
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 || last != nil {
		t.Errorf("foreign cursor = %d/%v", count, last)
	}
}
