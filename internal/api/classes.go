package api

import (
	"net/http"
	"strconv"

	"classbook/internal/classes"
)

type classesResponse struct {
	Classes []classes.Listing `json:"classes"`
}

type joinRequest struct {
	UserID int64 `json:"user_id"`
}

// handleClasses lists visible class occurrences.
// GET /api/v1/classes?provider_id=
func (s *HTTPServer) handleClasses(w http.ResponseWriter, r *http.Request) {
	now := s.now()

	var (
		listings []classes.Listing
		err      error
	)
	if p := r.URL.Query().Get("provider_id"); p != "" {
		providerID, perr := strconv.ParseInt(p, 10, 64)
		if perr != nil {
			writeError(w, http.StatusBadRequest, "invalid provider_id")
			return
		}
		listings, err = s.classes.ListForProvider(r.Context(), providerID, now)
	} else {
		listings, err = s.classes.List(r.Context(), now)
	}
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if listings == nil {
		listings = []classes.Listing{}
	}
	writeJSON(w, http.StatusOK, classesResponse{Classes: listings})
}

// handleJoin runs the join decision for one occurrence.
// POST /api/v1/classes/{instanceID}/join
func (s *HTTPServer) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			s.writeErr(w, r, err)
			return
		}
	}

	viewer, err := s.viewer(r, req.UserID)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	result, err := s.classes.Join(r.Context(), viewer, r.PathValue("instanceID"), s.now())
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
