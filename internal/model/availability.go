package model

import "time"

// TimeRange is a wall-clock interval inside a day, "HH:MM" on both ends.
type TimeRange struct {
	Start string `json:"start" yaml:"start"`
	End   string `json:"end" yaml:"end"`
}

// AvailabilityWindow is a provider's recurring weekly offer.
// Either StartTime/EndTime or Ranges (or both) may be set.
type AvailabilityWindow struct {
	ID         int64       `json:"id" yaml:"-"`
	ProviderID int64       `json:"provider_id" yaml:"-"`
	DayOfWeek  string      `json:"day_of_week" yaml:"day"` // "monday", "mon" or "1" (0=Sunday)
	StartTime  string      `json:"start_time,omitempty" yaml:"start,omitempty"`
	EndTime    string      `json:"end_time,omitempty" yaml:"end,omitempty"`
	Ranges     []TimeRange `json:"ranges,omitempty" yaml:"ranges,omitempty"`
}

// TimeRanges flattens the window into its ranges.
func (w AvailabilityWindow) TimeRanges() []TimeRange {
	ranges := make([]TimeRange, 0, len(w.Ranges)+1)
	if w.StartTime != "" && w.EndTime != "" {
		ranges = append(ranges, TimeRange{Start: w.StartTime, End: w.EndTime})
	}
	return append(ranges, w.Ranges...)
}

// TimeSlot is a projected, dated, fixed-granularity offer.
type TimeSlot struct {
	Date            string    `json:"date"`       // "2006-01-02"
	StartTime       string    `json:"start_time"` // "15:04"
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	DurationMinutes int       `json:"duration_minutes"`
	Available       bool      `json:"available"`
	Reason          string    `json:"reason,omitempty"`
}
