// Package slots projects provider availability into bookable time slots.
package slots

import (
	"context"
	"fmt"
	"sort"
	"time"

	"classbook/internal/model"
)

// Reasons attached to unavailable slots.
const (
	ReasonBooked = "already booked"
	ReasonPast   = "in the past"
)

// BookingChecker checks if a provider already has a booking in [start, end).
type BookingChecker interface {
	IsSlotBooked(ctx context.Context, providerID int64, start, end time.Time) (bool, error)
}

// Restrictor explains why a start instant may not be booked, or returns "".
type Restrictor interface {
	ReasonAt(candidate time.Time, st model.SessionType, now time.Time) string
}

// Generator projects slots and marks the ones that cannot be booked.
type Generator struct {
	checker     BookingChecker
	restrictor  Restrictor
	granularity int
}

// NewGenerator creates a new slot generator. checker and restrictor may be nil.
func NewGenerator(checker BookingChecker, restrictor Restrictor, granularity int) *Generator {
	if granularity <= 0 {
		granularity = DefaultGranularity
	}
	return &Generator{checker: checker, restrictor: restrictor, granularity: granularity}
}

// Generate returns the day's slots for a session type. Every projected slot is
// returned; those that cannot start a booking carry Available=false and a reason.
func (g *Generator) Generate(ctx context.Context, providerID int64, date time.Time, windows []model.AvailabilityWindow, st model.SessionType, now time.Time) ([]model.TimeSlot, error) {
	slots, err := Project(windows, date, g.granularity)
	if err != nil {
		return nil, err
	}

	for i := range slots {
		s := &slots[i]

		if s.Start.Before(now) {
			s.Available = false
			s.Reason = ReasonPast
			continue
		}

		if g.checker != nil {
			booked, err := g.checker.IsSlotBooked(ctx, providerID, s.Start, s.End)
			if err != nil {
				return nil, fmt.Errorf("check slot: %w", err)
			}
			if booked {
				s.Available = false
				s.Reason = ReasonBooked
				continue
			}
		}

		if g.restrictor != nil {
			if reason := g.restrictor.ReasonAt(s.Start, st, now); reason != "" {
				s.Available = false
				s.Reason = reason
			}
		}
	}

	return slots, nil
}

// AvailableSlots returns only available slots.
func AvailableSlots(slots []model.TimeSlot) []model.TimeSlot {
	var available []model.TimeSlot
	for _, s := range slots {
		if s.Available {
			available = append(available, s)
		}
	}
	return available
}

// FindConsecutiveSlots groups available slots into back-to-back runs.
func FindConsecutiveSlots(slots []model.TimeSlot) [][]model.TimeSlot {
	available := AvailableSlots(slots)
	if len(available) == 0 {
		return nil
	}

	sort.Slice(available, func(i, j int) bool {
		return available[i].Start.Before(available[j].Start)
	})

	var groups [][]model.TimeSlot
	current := []model.TimeSlot{available[0]}

	for i := 1; i < len(available); i++ {
		if available[i].Start.Equal(current[len(current)-1].End) {
			current = append(current, available[i])
		} else {
			groups = append(groups, current)
			current = []model.TimeSlot{available[i]}
		}
	}
	return append(groups, current)
}

// CanBookConsecutive checks that count back-to-back available slots begin at start.
func CanBookConsecutive(slots []model.TimeSlot, start time.Time, count int) bool {
	if count <= 0 {
		return false
	}

	startIdx := -1
	for i, s := range slots {
		if s.Start.Equal(start) {
			startIdx = i
			break
		}
	}
	if startIdx < 0 || startIdx+count > len(slots) {
		return false
	}

	for i := 0; i < count; i++ {
		idx := startIdx + i
		if !slots[idx].Available {
			return false
		}
		if i > 0 && !slots[idx].Start.Equal(slots[idx-1].End) {
			return false
		}
	}
	return true
}

// StartOptions returns the slots from which a session of durationMinutes
// fits in consecutive available slots.
func StartOptions(slots []model.TimeSlot, durationMinutes int) []model.TimeSlot {
	var options []model.TimeSlot
	for _, s := range slots {
		if !s.Available || s.DurationMinutes <= 0 {
			continue
		}
		count := (durationMinutes + s.DurationMinutes - 1) / s.DurationMinutes
		if count == 0 {
			count = 1
		}
		if CanBookConsecutive(slots, s.Start, count) {
			options = append(options, s)
		}
	}
	return options
}

// DurationOptions lists the session lengths, in minutes, that fit from start.
func DurationOptions(slots []model.TimeSlot, start time.Time) []int {
	startIdx := -1
	for i, s := range slots {
		if s.Start.Equal(start) && s.Available {
			startIdx = i
			break
		}
	}
	if startIdx < 0 {
		return nil
	}

	var options []int
	total := 0
	for i := startIdx; i < len(slots); i++ {
		if !slots[i].Available {
			break
		}
		if i > startIdx && !slots[i].Start.Equal(slots[i-1].End) {
			break
		}
		total += slots[i].DurationMinutes
		options = append(options, total)
	}
	return options
}
