package api

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/emersion/go-ical"

	"classbook/internal/model"
)

const calendarProductID = "-//classbook//Class Schedule//EN"

// handleCalendar exports a provider's upcoming class occurrences as iCalendar.
// GET /api/v1/providers/{id}/calendar.ics
func (s *HTTPServer) handleCalendar(w http.ResponseWriter, r *http.Request) {
	providerID, err := pathID(r, "id")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	provider, err := s.db.GetProvider(r.Context(), providerID)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	now := s.now()
	instances, err := s.classes.Instances(r.Context(), now)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	var own []model.EventInstance
	for _, inst := range instances {
		if inst.ProviderID == providerID {
			own = append(own, inst)
		}
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(buildCalendar(provider, own, now)); err != nil {
		s.writeErr(w, r, fmt.Errorf("encode calendar: %w", err))
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="provider-%d.ics"`, providerID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func buildCalendar(provider *model.Provider, instances []model.EventInstance, stamp time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropProductID, calendarProductID)
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropName, provider.Name)

	for _, inst := range instances {
		event := ical.NewEvent()
		event.Props.SetText(ical.PropUID, inst.InstanceID+"@classbook")
		event.Props.SetText(ical.PropSummary, inst.Name)
		event.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())
		event.Props.SetDateTime(ical.PropDateTimeStart, inst.StartAt.UTC())
		event.Props.SetDateTime(ical.PropDateTimeEnd, inst.EndAt().UTC())
		if inst.Description != "" {
			event.Props.SetText(ical.PropDescription, inst.Description)
		}
		if inst.JoinURL != "" {
			url := ical.NewProp(ical.PropURL)
			url.Value = inst.JoinURL
			event.Props.Set(url)
		}
		cal.Children = append(cal.Children, event.Component)
	}
	return cal
}
