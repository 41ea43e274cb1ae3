package api

import (
	"net/http"
	"strconv"

	"classbook/internal/model"
	"classbook/internal/slots"
	"classbook/internal/timeutil"
)

type slotsResponse struct {
	ProviderID    int64            `json:"provider_id"`
	Date          string           `json:"date"`
	SessionTypeID int64            `json:"session_type_id"`
	Slots         []model.TimeSlot `json:"slots"`
	StartOptions  []model.TimeSlot `json:"start_options"`
}

// handleSlots projects a provider's availability for one date.
// GET /api/v1/providers/{id}/slots?date=YYYY-MM-DD&session_type=ID
func (s *HTTPServer) handleSlots(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	providerID, err := pathID(r, "id")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	q := r.URL.Query()
	stID, err := strconv.ParseInt(q.Get("session_type"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session_type")
		return
	}
	st, err := s.db.GetSessionType(ctx, stID)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if st.ProviderID != providerID {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	validator, err := s.bookings.Validator(ctx, providerID)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	date, err := timeutil.ParseDate(q.Get("date"), validator.Location())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}

	windows, err := s.db.ListAvailability(ctx, providerID)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	gen := slots.NewGenerator(s.db, validator, s.granularity)
	projected, err := gen.Generate(ctx, providerID, date, windows, *st, s.now())
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	resp := slotsResponse{
		ProviderID:    providerID,
		Date:          date.Format(timeutil.DateLayout),
		SessionTypeID: st.ID,
		Slots:         projected,
		StartOptions:  slots.StartOptions(projected, st.DurationMinutes),
	}
	if resp.Slots == nil {
		resp.Slots = []model.TimeSlot{}
	}
	if resp.StartOptions == nil {
		resp.StartOptions = []model.TimeSlot{}
	}
	writeJSON(w, http.StatusOK, resp)
}
