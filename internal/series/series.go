// Package series expands a booking request into dated booking entries.
package series

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"classbook/internal/model"
	"classbook/internal/timeutil"
)

// MaxOccurrences caps the number of entries a single request may produce.
const MaxOccurrences = 104

var (
	ErrRecurrenceNotAllowed = errors.New("session type does not allow recurring bookings")
	ErrUnknownPattern       = errors.New("unknown recurrence pattern")
	ErrUntilBeforeStart     = errors.New("recurrence end date is before the first session")
	ErrTooManyOccurrences   = errors.New("recurrence produces too many sessions")
	ErrInvalidDuration      = errors.New("session duration must be positive")
)

var seriesNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("classbook:booking-series"))

// Expand turns req into entries in loc. Without a recurrence it returns the
// single requested entry.
func Expand(req model.BookingRequest, loc *time.Location) ([]model.BookingEntry, error) {
	st := req.SessionType
	if st.DurationMinutes <= 0 {
		return nil, ErrInvalidDuration
	}

	first, err := timeutil.Combine(req.Date, req.Time, loc)
	if err != nil {
		return nil, fmt.Errorf("parse first session: %w", err)
	}

	if req.Recurrence == nil {
		return []model.BookingEntry{entry(0, "", first, st)}, nil
	}
	if !st.AllowRecurring {
		return nil, ErrRecurrenceNotAllowed
	}

	until, err := timeutil.ParseDate(req.Recurrence.Until, first.Location())
	if err != nil {
		return nil, fmt.Errorf("parse until: %w", err)
	}
	if until.Before(timeutil.StartOfDay(first)) {
		return nil, ErrUntilBeforeStart
	}

	step, err := stepper(req.Recurrence.Pattern, first)
	if err != nil {
		return nil, err
	}

	seriesID := SeriesID(req, first)
	var entries []model.BookingEntry
	for k := 0; ; k++ {
		start := step(k)
		if timeutil.StartOfDay(start).After(until) {
			break
		}
		if k == MaxOccurrences {
			return nil, ErrTooManyOccurrences
		}
		entries = append(entries, entry(k, seriesID, start, st))
	}
	return entries, nil
}

// SeriesID derives a stable identifier for the series starting at first.
func SeriesID(req model.BookingRequest, first time.Time) string {
	name := fmt.Sprintf("%d/%d/%d/%s", req.UserID, req.ProviderID, req.SessionType.ID, first.UTC().Format(time.RFC3339))
	if req.Recurrence != nil {
		name += "/" + string(req.Recurrence.Pattern)
	}
	return uuid.NewSHA1(seriesNamespace, []byte(name)).String()
}

func stepper(pattern model.SeriesPattern, first time.Time) (func(k int) time.Time, error) {
	switch pattern {
	case model.SeriesWeekly:
		return func(k int) time.Time { return first.AddDate(0, 0, 7*k) }, nil
	case model.SeriesBiweekly:
		return func(k int) time.Time { return first.AddDate(0, 0, 14*k) }, nil
	case model.SeriesMonthly:
		return func(k int) time.Time { return addMonthsClamped(first, k) }, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPattern, pattern)
	}
}

// addMonthsClamped moves t by k calendar months, keeping the anchor day when
// the target month has it and using the month's last day otherwise.
func addMonthsClamped(t time.Time, k int) time.Time {
	firstOfMonth := time.Date(t.Year(), t.Month()+time.Month(k), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	day := t.Day()
	if last := daysIn(firstOfMonth); day > last {
		day = last
	}
	return firstOfMonth.AddDate(0, 0, day-1)
}

func daysIn(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}

func entry(k int, seriesID string, start time.Time, st model.SessionType) model.BookingEntry {
	return model.BookingEntry{
		Occurrence: k,
		SeriesID:   seriesID,
		StartAt:    start,
		EndAt:      start.Add(time.Duration(st.DurationMinutes) * time.Minute),
		CreditCost: st.CreditCost,
	}
}
