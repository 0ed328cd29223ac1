package api

import "net/http"

// handleListExercises handles GET /api/v1/exercises. The catalog is public
// so a client can browse it before it has an identity.
func (s *Server) handleListExercises(w http.ResponseWriter, r *http.Request) {
	exercises, err := s.store.ListExercises(r.Context())
	if err != nil {
		logFor(r.Context()).Error("list exercises", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "database error")
		return
	}
	writeJSON(w, http.StatusOK, exercises)
}
