package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/mvarner/replog/internal/serverdb"
)

const (
	defWorkoutsLimit = 50
	maxWorkoutsLimit = 200
	defWeeksLimit    = 12
	maxWeeksLimit    = 52
)

// WorkoutResponse is one row in GET /api/v1/workouts.
type WorkoutResponse struct {
	WorkoutID   string  `json:"workout_id"`
	Status      string  `json:"status"`
	StartedAt   string  `json:"started_at"`
	EndedAt     *string `json:"ended_at"`
	SetsCount   int     `json:"sets_count"`
	TotalVolume float64 `json:"total_volume"`
}

// SetResponse is one row in GET /api/v1/workouts/{id}/sets.
type SetResponse struct {
	SetID       string  `json:"set_id"`
	WorkoutID   string  `json:"workout_id"`
	ExerciseID  string  `json:"exercise_id"`
	Reps        int     `json:"reps"`
	Weight      float64 `json:"weight"`
	CompletedAt string  `json:"completed_at"`
}

// WeeklyMetricResponse is one row in GET /api/v1/metrics/weekly.
type WeeklyMetricResponse struct {
	WeekStart      string  `json:"week_start"`
	TotalWorkouts  int     `json:"total_workouts"`
	TotalVolume    float64 `json:"total_volume"`
	ExercisesCount int     `json:"exercises_count"`
}

// handleListWorkouts handles GET /api/v1/workouts?status=&limit=&offset=.
func (s *Server) handleListWorkouts(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	switch status {
	case "", serverdb.WorkoutInProgress, serverdb.WorkoutCompleted, serverdb.WorkoutCancelled:
	default:
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid status")
		return
	}

	limit, ok := queryInt(r, "limit", defWorkoutsLimit, maxWorkoutsLimit)
	if !ok {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid limit")
		return
	}
	offset, ok := queryInt(r, "offset", 0, -1)
	if !ok {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid offset")
		return
	}

	user := getUserFromContext(r.Context())
	workouts, err := s.store.ListWorkouts(r.Context(), user.UserID, status, limit, offset)
	if err != nil {
		logFor(r.Context()).Error("list workouts", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "database error")
		return
	}

	out := make([]WorkoutResponse, len(workouts))
	for i, wk := range workouts {
		out[i] = WorkoutResponse{
			WorkoutID:   wk.WorkoutID,
			Status:      wk.Status,
			StartedAt:   formatTime(wk.StartedAt),
			EndedAt:     formatTimePtr(wk.EndedAt),
			SetsCount:   wk.SetsCount,
			TotalVolume: wk.TotalVolume,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleListWorkoutSets handles GET /api/v1/workouts/{id}/sets.
func (s *Server) handleListWorkoutSets(w http.ResponseWriter, r *http.Request) {
	workoutID := r.PathValue("id")

	workout, err := s.store.GetWorkoutRow(r.Context(), workoutID)
	if err != nil {
		logFor(r.Context()).Error("get workout", "workout", workoutID, "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "database error")
		return
	}
	if workout == nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "workout not found")
		return
	}

	user := getUserFromContext(r.Context())
	if workout.UserID != user.UserID {
		writeError(w, http.StatusForbidden, ErrCodeForbidden, "workout belongs to another user")
		return
	}

	sets, err := s.store.ListSetsForWorkout(r.Context(), workoutID)
	if err != nil {
		logFor(r.Context()).Error("list sets", "workout", workoutID, "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "database error")
		return
	}

	out := make([]SetResponse, len(sets))
	for i, st := range sets {
		out[i] = SetResponse{
			SetID:       st.SetID,
			WorkoutID:   st.WorkoutID,
			ExerciseID:  st.ExerciseID,
			Reps:        st.Reps,
			Weight:      st.Weight,
			CompletedAt: formatTime(st.CompletedAt),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleWeeklyMetrics handles GET /api/v1/metrics/weekly?limit=.
func (s *Server) handleWeeklyMetrics(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit", defWeeksLimit, maxWeeksLimit)
	if !ok {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid limit")
		return
	}

	user := getUserFromContext(r.Context())
	metrics, err := s.store.ListWeeklyMetrics(r.Context(), user.UserID, limit)
	if err != nil {
		logFor(r.Context()).Error("list weekly metrics", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "database error")
		return
	}

	out := make([]WeeklyMetricResponse, len(metrics))
	for i, m := range metrics {
		out[i] = WeeklyMetricResponse{
			WeekStart:      m.WeekStart,
			TotalWorkouts:  m.TotalWorkouts,
			TotalVolume:    m.TotalVolume,
			ExercisesCount: m.ExercisesCount,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// queryInt parses an integer query parameter. def applies when the parameter
// is absent; max caps the value when max >= 0. Returns ok=false on garbage
// or negative input.
func queryInt(r *http.Request, name string, def, max int) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	if max >= 0 && n > max {
		n = max
	}
	return n, true
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
