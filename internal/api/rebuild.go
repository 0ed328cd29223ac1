package api

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/mvarner/replog/internal/serverdb"
)

// RebuildResponse is the JSON response for POST /api/v1/projections/rebuild.
type RebuildResponse struct {
	WorkoutsWritten int   `json:"workouts_written"`
	SetsWritten     int   `json:"sets_written"`
	DurationMS      int64 `json:"duration_ms"`
}

// handleRebuildProjections handles POST /api/v1/projections/rebuild. It
// rebuilds every user's projections in the foreground and reports what it
// wrote.
func (s *Server) handleRebuildProjections(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	stats, err := s.store.RebuildProjections(r.Context(), "")
	if err != nil {
		logFor(r.Context()).Error("rebuild projections", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "rebuild failed")
		return
	}
	s.metrics.RecordRebuild()

	logFor(r.Context()).Info("projections rebuilt",
		"workouts", stats.WorkoutsWritten,
		"sets", stats.SetsWritten,
		"skipped", stats.EventsSkipped,
		"dur", time.Since(start).String(),
	)

	writeJSON(w, http.StatusOK, RebuildResponse{
		WorkoutsWritten: stats.WorkoutsWritten,
		SetsWritten:     stats.SetsWritten,
		DurationMS:      time.Since(start).Milliseconds(),
	})
}

// rebuildWorker rebuilds projections in the background for users whose logs
// grew. Requests coalesce: marking a user dirty twice before the worker
// wakes costs one rebuild.
type rebuildWorker struct {
	store    *serverdb.ServerDB
	metrics  *Metrics
	debounce time.Duration

	mu    sync.Mutex
	dirty map[string]struct{}
	wake  chan struct{}
}

func newRebuildWorker(store *serverdb.ServerDB, metrics *Metrics, debounce time.Duration) *rebuildWorker {
	return &rebuildWorker{
		store:    store,
		metrics:  metrics,
		debounce: debounce,
		dirty:    make(map[string]struct{}),
		wake:     make(chan struct{}, 1),
	}
}

// request marks a user's projections stale. Never blocks.
func (rw *rebuildWorker) request(userID string) {
	rw.mu.Lock()
	rw.dirty[userID] = struct{}{}
	rw.mu.Unlock()

	select {
	case rw.wake <- struct{}{}:
	default:
	}
}

// run services rebuild requests until ctx is cancelled.
func (rw *rebuildWorker) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-rw.wake:
		}

		// Let a burst of pushes settle before rebuilding.
		if rw.debounce > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(rw.debounce):
			}
		}

		for _, userID := range rw.take() {
			stats, err := rw.store.RebuildProjections(ctx, userID)
			if err != nil {
				// The log is intact; the next push retries the rebuild.
				slog.Error("background rebuild", "user", userID, "err", err)
				continue
			}
			rw.metrics.RecordRebuild()
			slog.Debug("background rebuild",
				"user", userID,
				"workouts", stats.WorkoutsWritten,
				"sets", stats.SetsWritten,
			)
		}
	}
}

// take swaps out the dirty set and returns its users in stable order.
func (rw *rebuildWorker) take() []string {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	users := make([]string, 0, len(rw.dirty))
	for u := range rw.dirty {
		users = append(users, u)
	}
	rw.dirty = make(map[string]struct{})
	sort.Strings(users)
	return users
}
