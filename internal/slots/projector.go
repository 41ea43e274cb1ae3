package slots

import (
	"fmt"
	"sort"
	"time"

	"classbook/internal/model"
	"classbook/internal/timeutil"
)

// DefaultGranularity is the slot length in minutes when none is given.
const DefaultGranularity = 15

// Project turns the windows matching date's weekday into fixed-length slots.
// A slot is emitted only when it fits entirely inside its range. Overlapping
// ranges do not produce duplicates and the result is sorted by start.
func Project(windows []model.AvailabilityWindow, date time.Time, granularity int) ([]model.TimeSlot, error) {
	if granularity <= 0 {
		granularity = DefaultGranularity
	}

	seen := make(map[int]struct{})
	var offsets []int

	for _, w := range windows {
		day, err := timeutil.ParseWeekday(w.DayOfWeek)
		if err != nil {
			return nil, fmt.Errorf("window %d: %w", w.ID, err)
		}
		if day != date.Weekday() {
			continue
		}

		for _, r := range w.TimeRanges() {
			start, end, err := parseRange(r)
			if err != nil {
				return nil, fmt.Errorf("window %d: %w", w.ID, err)
			}
			for step := start; step+granularity <= end; step += granularity {
				if _, ok := seen[step]; ok {
					continue
				}
				seen[step] = struct{}{}
				offsets = append(offsets, step)
			}
		}
	}

	sort.Ints(offsets)

	day := timeutil.StartOfDay(date)
	result := make([]model.TimeSlot, 0, len(offsets))
	for _, m := range offsets {
		start := timeutil.OnDate(day, m)
		result = append(result, model.TimeSlot{
			Date:            day.Format(timeutil.DateLayout),
			StartTime:       timeutil.FormatClock(m),
			Start:           start,
			End:             start.Add(time.Duration(granularity) * time.Minute),
			DurationMinutes: granularity,
			Available:       true,
		})
	}
	return result, nil
}

func parseRange(r model.TimeRange) (int, int, error) {
	start, err := timeutil.ParseClock(r.Start)
	if err != nil {
		return 0, 0, fmt.Errorf("parse start time: %w", err)
	}
	end, err := timeutil.ParseClock(r.End)
	if err != nil {
		return 0, 0, fmt.Errorf("parse end time: %w", err)
	}
	if end <= start {
		return 0, 0, fmt.Errorf("range %s-%s ends before it starts", r.Start, r.End)
	}
	return start, end, nil
}
