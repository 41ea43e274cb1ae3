package api

import (
	"net/http"
	"strconv"

	"classbook/internal/booking"
	"classbook/internal/db"
	"classbook/internal/model"
)

// BookRequest is the body of POST /api/v1/bookings.
type BookRequest struct {
	UserID        int64                   `json:"user_id"`
	ProviderID    int64                   `json:"provider_id"`
	SessionTypeID int64                   `json:"session_type_id"`
	Date          string                  `json:"date"` // Format: YYYY-MM-DD
	Time          string                  `json:"time"` // Format: HH:MM
	Recurrence    *model.SeriesRecurrence `json:"recurrence,omitempty"`
}

type actorRequest struct {
	UserID int64 `json:"user_id"`
}

// RescheduleRequest is the body of POST /api/v1/bookings/{id}/reschedule.
type RescheduleRequest struct {
	UserID int64  `json:"user_id"`
	Date   string `json:"date"`
	Time   string `json:"time"`
}

func (req BookRequest) validate() error {
	switch {
	case req.ProviderID <= 0:
		return &ValidationError{Field: "provider_id", Message: "is required"}
	case req.SessionTypeID <= 0:
		return &ValidationError{Field: "session_type_id", Message: "is required"}
	case req.Date == "" || req.Time == "":
		return &ValidationError{Field: "date", Message: "date and time are required"}
	}
	return nil
}

// handleBook submits a single or recurring booking.
// POST /api/v1/bookings
func (s *HTTPServer) handleBook(w http.ResponseWriter, r *http.Request) {
	var req BookRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeErr(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		s.writeErr(w, r, err)
		return
	}
	uid, err := s.userID(r, req.UserID)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	result, err := s.bookings.Book(r.Context(), model.BookingRequest{
		UserID:      uid,
		ProviderID:  req.ProviderID,
		SessionType: model.SessionType{ID: req.SessionTypeID},
		Date:        req.Date,
		Time:        req.Time,
		Recurrence:  req.Recurrence,
	}, s.now())
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	status := http.StatusOK
	if len(result.Bookings) > 0 {
		status = http.StatusCreated
	}
	if result.Bookings == nil {
		result.Bookings = []model.Booking{}
	}
	writeJSON(w, status, result)
}

// handleCancel cancels a booking and refunds its credits.
// POST /api/v1/bookings/{id}/cancel
func (s *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	var req actorRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			s.writeErr(w, r, err)
			return
		}
	}
	uid, err := s.userID(r, req.UserID)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	result, err := s.bookings.Cancel(r.Context(), model.Viewer{UserID: uid, Roles: roles(r)}, id, s.now())
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleReschedule moves a booking to a new date and time.
// POST /api/v1/bookings/{id}/reschedule
func (s *HTTPServer) handleReschedule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	var req RescheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeErr(w, r, err)
		return
	}
	uid, err := s.userID(r, req.UserID)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	result, err := s.bookings.Reschedule(r.Context(), model.Viewer{UserID: uid, Roles: roles(r)}, id, req.Date, req.Time, s.now())
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleListBookings pages through the caller's bookings. Admins may pass
// ?user_id= to list another user's bookings.
// GET /api/v1/bookings?page=&page_size=
func (s *HTTPServer) handleListBookings(w http.ResponseWriter, r *http.Request) {
	var queryID int64
	if v := r.URL.Query().Get("user_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			s.writeErr(w, r, &ValidationError{Field: "user_id", Message: "must be a positive integer"})
			return
		}
		queryID = id
	}
	uid, err := s.userID(r, queryID)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	actor := model.Viewer{UserID: uid, Roles: roles(r)}
	target := uid
	if queryID > 0 && queryID != uid {
		if !actor.HasRole(model.RoleAdmin) {
			s.writeErr(w, r, booking.ErrForbidden)
			return
		}
		target = queryID
	}

	page, size, err := pageParams(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	list, err := s.db.ListBookings(r.Context(), db.BookingFilter{UserID: target})
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, paginate(list, page, size))
}
