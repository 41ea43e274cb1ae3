package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"classbook/internal/booking"
	"classbook/internal/classes"
	"classbook/internal/db"
	"classbook/internal/model"
	"classbook/internal/series"
)

const (
	headerUserID   = "X-User-ID"
	headerUserRole = "X-User-Role"
)

var errUnauthenticated = errors.New("missing " + headerUserID + " header")

// ValidationError reports malformed request input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeErr maps service errors to status codes. Unknown errors are logged
// and reported without detail.
func (s *HTTPServer) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, errUnauthenticated):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, db.ErrNotFound), errors.Is(err, classes.ErrInstanceNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, booking.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, db.ErrDuplicateBooking),
		errors.Is(err, booking.ErrSlotTaken),
		errors.Is(err, booking.ErrInvalidTransition),
		errors.Is(err, db.ErrBookingNotActive):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, booking.ErrSessionTypeInvalid),
		errors.Is(err, series.ErrRecurrenceNotAllowed),
		errors.Is(err, series.ErrUnknownPattern),
		errors.Is(err, series.ErrUntilBeforeStart),
		errors.Is(err, series.ErrTooManyOccurrences),
		errors.Is(err, series.ErrInvalidDuration):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(r *http.Request, out any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return &ValidationError{Field: "body", Message: "invalid JSON body"}
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, &ValidationError{Field: name, Message: "must be a positive integer"}
	}
	return id, nil
}

// userID takes the caller from the gateway header. fallback, the user_id of
// the body or query, is used only when the server trusts it.
func (s *HTTPServer) userID(r *http.Request, fallback int64) (int64, error) {
	if h := r.Header.Get(headerUserID); h != "" {
		id, err := strconv.ParseInt(h, 10, 64)
		if err != nil || id <= 0 {
			return 0, &ValidationError{Field: "user_id", Message: "must be a positive integer"}
		}
		return id, nil
	}
	if !s.trustParam || fallback <= 0 {
		return 0, errUnauthenticated
	}
	return fallback, nil
}

// roles parses the comma-separated role header set by the gateway.
func roles(r *http.Request) []model.Role {
	var out []model.Role
	for _, part := range strings.Split(r.Header.Get(headerUserRole), ",") {
		if role := strings.ToLower(strings.TrimSpace(part)); role != "" {
			out = append(out, model.Role(role))
		}
	}
	return out
}

func (s *HTTPServer) viewer(r *http.Request, fallback int64) (model.Viewer, error) {
	id, err := s.userID(r, fallback)
	if err != nil {
		return model.Viewer{}, err
	}
	return s.db.LoadViewer(r.Context(), id, roles(r))
}
