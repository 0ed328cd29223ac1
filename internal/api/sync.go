package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mvarner/replog/internal/events"
	"github.com/mvarner/replog/internal/serverdb"
	"github.com/mvarner/replog/internal/webhook"
)

// EventInput is one event in a sync push request.
type EventInput struct {
	EventID        string          `json:"event_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	SequenceNumber int64           `json:"sequence_number"`
	CorrelationID  string          `json:"correlation_id,omitempty"`
}

// SyncRequest is the JSON body for POST /api/v1/sync.
type SyncRequest struct {
	DeviceID string       `json:"device_id"`
	UserID   string       `json:"user_id"`
	Events   []EventInput `json:"events"`
}

// AckCursor reports the device's durable high-water mark. LastAckedSequence
// is null until the device has an event in the log.
type AckCursor struct {
	DeviceID          string `json:"device_id"`
	LastAckedSequence *int64 `json:"last_acked_sequence"`
}

// Rejection explains why one event of a batch was turned away.
type Rejection struct {
	EventID string `json:"event_id"`
	Reason  string `json:"reason"`
}

// SyncResponse is the JSON response for POST /api/v1/sync. Duplicates of
// already-stored events count toward AcceptedCount.
type SyncResponse struct {
	AckCursor        AckCursor   `json:"ack_cursor"`
	AcceptedCount    int         `json:"accepted_count"`
	RejectedCount    int         `json:"rejected_count"`
	RejectedEventIDs []string    `json:"rejected_event_ids,omitempty"`
	Rejections       []Rejection `json:"rejections,omitempty"`
}

// SyncStatusResponse is the JSON response for GET /api/v1/sync/status.
type SyncStatusResponse struct {
	DeviceID          string `json:"device_id"`
	EventCount        int64  `json:"event_count"`
	LastAckedSequence *int64 `json:"last_acked_sequence"`
}

// handleSync handles POST /api/v1/sync.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid json body")
		return
	}

	if req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "device_id is required")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "user_id is required")
		return
	}
	if len(req.Events) > s.config.MaxBatch {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("batch exceeds %d events", s.config.MaxBatch))
		return
	}

	user := getUserFromContext(r.Context())
	if user.UserID != req.UserID {
		writeError(w, http.StatusForbidden, ErrCodeForbidden, "token does not belong to user_id")
		return
	}

	// Validate per event. A bad event is rejected individually; the rest of
	// the batch still lands.
	var (
		valid      []serverdb.Event
		rejections []Rejection
	)
	for _, in := range req.Events {
		rec := events.Record{
			EventID:        in.EventID,
			EventType:      events.Type(in.EventType),
			Payload:        in.Payload,
			UserID:         req.UserID,
			DeviceID:       req.DeviceID,
			SequenceNumber: in.SequenceNumber,
			CorrelationID:  in.CorrelationID,
		}
		if err := events.Validate(rec); err != nil {
			rejections = append(rejections, Rejection{EventID: in.EventID, Reason: err.Error()})
			continue
		}
		if in.SequenceNumber < 1 {
			rejections = append(rejections, Rejection{EventID: in.EventID, Reason: "sequence_number must be >= 1"})
			continue
		}
		valid = append(valid, serverdb.Event{
			EventID:        in.EventID,
			EventType:      in.EventType,
			Payload:        in.Payload,
			UserID:         req.UserID,
			DeviceID:       req.DeviceID,
			SequenceNumber: in.SequenceNumber,
			CorrelationID:  in.CorrelationID,
		})
	}

	res, err := s.store.IngestEvents(r.Context(), req.DeviceID, valid)
	if err != nil {
		logFor(r.Context()).Error("ingest events", "device", req.DeviceID, "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to store events")
		return
	}

	accepted := res.Inserted + res.Duplicates
	s.metrics.RecordEventsAccepted(int64(accepted))
	s.metrics.RecordEventsRejected(int64(len(rejections)))

	if res.Inserted > 0 {
		s.rebuilds.request(req.UserID)
		s.hooks.Notify(webhook.NewPayload(req.UserID, req.DeviceID, res.Inserted, res.Duplicates, len(rejections), res.LastAckedSequence))
	}

	resp := SyncResponse{
		AckCursor:     AckCursor{DeviceID: req.DeviceID, LastAckedSequence: res.LastAckedSequence},
		AcceptedCount: accepted,
		RejectedCount: len(rejections),
		Rejections:    rejections,
	}
	for _, rej := range rejections {
		resp.RejectedEventIDs = append(resp.RejectedEventIDs, rej.EventID)
	}

	logFor(r.Context()).Info("sync push",
		"device", req.DeviceID,
		"inserted", res.Inserted,
		"duplicates", res.Duplicates,
		"rejected", len(rejections),
	)

	writeJSON(w, http.StatusOK, resp)
}

// handleSyncStatus handles GET /api/v1/sync/status?device_id=.
func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "device_id is required")
		return
	}

	user := getUserFromContext(r.Context())
	count, last, err := s.store.DeviceCursor(r.Context(), user.UserID, deviceID)
	if err != nil {
		logFor(r.Context()).Error("device cursor", "device", deviceID, "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "database error")
		return
	}

	writeJSON(w, http.StatusOK, SyncStatusResponse{
		DeviceID:          deviceID,
		EventCount:        count,
		LastAckedSequence: last,
	})
}
