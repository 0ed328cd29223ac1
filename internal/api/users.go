package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mvarner/replog/internal/serverdb"
)

// anonymousUserRequest is the JSON body for POST /api/v1/users/anonymous.
type anonymousUserRequest struct {
	UserID string `json:"user_id,omitempty"`
}

// anonymousUserResponse is the JSON response for POST /api/v1/users/anonymous.
type anonymousUserResponse struct {
	UserID      string `json:"user_id"`
	Token       string `json:"token"`
	IsAnonymous bool   `json:"is_anonymous"`
}

// userResponse is the JSON response for GET /api/v1/users/me.
type userResponse struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email,omitempty"`
	IsAnonymous bool   `json:"is_anonymous"`
	CreatedAt   string `json:"created_at"`
}

// mergeRequest is the JSON body for POST /api/v1/users/merge.
type mergeRequest struct {
	AnonymousUserID string `json:"anonymous_user_id"`
}

// mergeResponse is the JSON response for POST /api/v1/users/merge.
type mergeResponse struct {
	UserID           string `json:"user_id"`
	MergedEventCount int64  `json:"merged_event_count"`
}

// handleCreateAnonymousUser handles POST /api/v1/users/anonymous. The body
// may carry a client-minted user_id so a device that invented its identity
// offline keeps it; an empty body gets a server-minted one.
func (s *Server) handleCreateAnonymousUser(w http.ResponseWriter, r *http.Request) {
	var req anonymousUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid json body")
		return
	}

	if req.UserID != "" {
		if _, err := uuid.Parse(req.UserID); err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "user_id must be a UUID")
			return
		}
	}

	user, err := s.store.EnsureAnonymousUser(r.Context(), req.UserID)
	if err != nil {
		if errors.Is(err, serverdb.ErrNotAnonymous) {
			writeError(w, http.StatusConflict, ErrCodeConflict, "user_id belongs to a registered user")
			return
		}
		logFor(r.Context()).Error("ensure anonymous user", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to create user")
		return
	}

	plaintext, _, err := s.store.IssueToken(r.Context(), user.ID, "device")
	if err != nil {
		logFor(r.Context()).Error("issue token", "user_id", user.ID, "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to issue token")
		return
	}

	logFor(r.Context()).Info("anonymous user provisioned", "user_id", user.ID)

	writeJSON(w, http.StatusCreated, anonymousUserResponse{
		UserID:      user.ID,
		Token:       plaintext,
		IsAnonymous: true,
	})
}

// handleMe handles GET /api/v1/users/me.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	auth := getUserFromContext(r.Context())

	user, err := s.store.GetUserByID(r.Context(), auth.UserID)
	if err != nil {
		logFor(r.Context()).Error("get user", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to load user")
		return
	}
	if user == nil {
		// The token verified a moment ago; the row vanishing means a
		// concurrent merge deleted this identity.
		writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "user no longer exists")
		return
	}

	writeJSON(w, http.StatusOK, userResponse{
		UserID:      user.ID,
		Email:       user.Email,
		IsAnonymous: user.IsAnonymous,
		CreatedAt:   user.CreatedAt.UTC().Format(time.RFC3339),
	})
}

// handleMergeUsers handles POST /api/v1/users/merge. The authenticated user
// is the merge target; the body names the anonymous source.
func (s *Server) handleMergeUsers(w http.ResponseWriter, r *http.Request) {
	auth := getUserFromContext(r.Context())

	var req mergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid json body")
		return
	}
	if req.AnonymousUserID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "anonymous_user_id is required")
		return
	}
	if req.AnonymousUserID == auth.UserID {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "cannot merge a user into itself")
		return
	}
	if auth.IsAnonymous {
		writeError(w, http.StatusForbidden, ErrCodeForbidden, "merge target must be a registered user")
		return
	}

	moved, err := s.store.MergeUsers(r.Context(), req.AnonymousUserID, auth.UserID)
	if err != nil {
		switch {
		case errors.Is(err, serverdb.ErrMergeConflict):
			writeError(w, http.StatusConflict, ErrCodeMergeConflict, err.Error())
		case errors.Is(err, serverdb.ErrNotAnonymous):
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		case errors.Is(err, serverdb.ErrUserNotFound):
			writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
		default:
			logFor(r.Context()).Error("merge users", "source", req.AnonymousUserID, "err", err)
			writeError(w, http.StatusInternalServerError, ErrCodeInternal, "merge failed")
		}
		return
	}

	logFor(r.Context()).Info("users merged", "source", req.AnonymousUserID, "events", moved)

	writeJSON(w, http.StatusOK, mergeResponse{
		UserID:           auth.UserID,
		MergedEventCount: moved,
	})
}
