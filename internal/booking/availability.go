package booking

import (
	"context"
	"fmt"
	"time"

	"classbook/internal/model"
	"classbook/internal/slots"
)

// SetSlotGranularity sets the slot length, in minutes, bookings must align to.
func (s *Service) SetSlotGranularity(minutes int) {
	if minutes > 0 {
		s.granularity = minutes
	}
}

// providerAvailability projects one provider's weekly windows on demand.
type providerAvailability struct {
	windows     []model.AvailabilityWindow
	loc         *time.Location
	granularity int
}

func (s *Service) availability(ctx context.Context, providerID int64, loc *time.Location) (*providerAvailability, error) {
	windows, err := s.store.ListAvailability(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("load availability of provider %d: %w", providerID, err)
	}
	return &providerAvailability{windows: windows, loc: loc, granularity: s.granularity}, nil
}

// fits reports whether a session of length d starting at start covers
// consecutive projected slots of the provider's windows on that day.
func (a *providerAvailability) fits(start time.Time, d time.Duration) (bool, error) {
	if d <= 0 {
		return false, nil
	}
	projected, err := slots.Project(a.windows, start.In(a.loc), a.granularity)
	if err != nil {
		return false, fmt.Errorf("project availability: %w", err)
	}
	step := time.Duration(a.granularity) * time.Minute
	count := int((d + step - 1) / step)
	return slots.CanBookConsecutive(projected, start, count), nil
}
