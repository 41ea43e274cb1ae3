package slots

import (
	"testing"
	"time"

	"classbook/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2025-04-14 is a Monday.
var monday = time.Date(2025, 4, 14, 0, 0, 0, 0, time.UTC)

func startTimes(slots []model.TimeSlot) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.StartTime
	}
	return out
}

func TestProject_OneHourWindow(t *testing.T) {
	windows := []model.AvailabilityWindow{{DayOfWeek: "Monday", StartTime: "08:00", EndTime: "09:00"}}

	slots, err := Project(windows, monday, 15)
	require.NoError(t, err)
	assert.Equal(t, []string{"08:00", "08:15", "08:30", "08:45"}, startTimes(slots))

	for _, s := range slots {
		assert.Equal(t, "2025-04-14", s.Date)
		assert.Equal(t, 15, s.DurationMinutes)
		assert.True(t, s.Available)
		assert.Equal(t, s.Start.Add(15*time.Minute), s.End)
	}
}

func TestProject_NoPartialSlot(t *testing.T) {
	windows := []model.AvailabilityWindow{{DayOfWeek: "mon", StartTime: "08:00", EndTime: "08:40"}}

	slots, err := Project(windows, monday, 15)
	require.NoError(t, err)
	assert.Equal(t, []string{"08:00", "08:15"}, startTimes(slots))
}

func TestProject_DayMatching(t *testing.T) {
	tests := []struct {
		day     string
		matches bool
	}{
		{"monday", true},
		{"MONDAY", true},
		{"Mon", true},
		{"1", true},
		{"tuesday", false},
		{"0", false},
	}
	for _, tt := range tests {
		t.Run(tt.day, func(t *testing.T) {
			windows := []model.AvailabilityWindow{{DayOfWeek: tt.day, StartTime: "10:00", EndTime: "10:30"}}
			slots, err := Project(windows, monday, 15)
			require.NoError(t, err)
			assert.Equal(t, tt.matches, len(slots) == 2)
		})
	}
}

func TestProject_NestedEqualsFlat(t *testing.T) {
	flat := []model.AvailabilityWindow{
		{DayOfWeek: "monday", StartTime: "08:00", EndTime: "10:00"},
		{DayOfWeek: "monday", StartTime: "14:00", EndTime: "15:30"},
	}
	nested := []model.AvailabilityWindow{
		{DayOfWeek: "monday", Ranges: []model.TimeRange{
			{Start: "14:00", End: "15:30"},
			{Start: "08:00", End: "10:00"},
		}},
	}

	a, err := Project(flat, monday, 15)
	require.NoError(t, err)
	b, err := Project(nested, monday, 15)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 14)
}

func TestProject_OverlappingWindowsDedupe(t *testing.T) {
	windows := []model.AvailabilityWindow{
		{DayOfWeek: "monday", StartTime: "08:00", EndTime: "09:00"},
		{DayOfWeek: "mon", StartTime: "08:30", EndTime: "09:30"},
	}

	slots, err := Project(windows, monday, 15)
	require.NoError(t, err)
	assert.Equal(t, []string{"08:00", "08:15", "08:30", "08:45", "09:00", "09:15"}, startTimes(slots))
}

func TestProject_ContainmentAndOrder(t *testing.T) {
	windows := []model.AvailabilityWindow{
		{DayOfWeek: "monday", StartTime: "13:10", EndTime: "14:05"},
		{DayOfWeek: "monday", StartTime: "07:00", EndTime: "07:50"},
	}
	gran := 20

	slots, err := Project(windows, monday, gran)
	require.NoError(t, err)
	require.NotEmpty(t, slots)

	bounds := []struct{ start, end time.Time }{
		{monday.Add(13*time.Hour + 10*time.Minute), monday.Add(14*time.Hour + 5*time.Minute)},
		{monday.Add(7 * time.Hour), monday.Add(7*time.Hour + 50*time.Minute)},
	}
	for i, s := range slots {
		if i > 0 {
			assert.False(t, s.Start.Before(slots[i-1].Start))
		}
		contained := false
		for _, b := range bounds {
			if !s.Start.Before(b.start) && !s.Start.Add(time.Duration(gran)*time.Minute).After(b.end) {
				contained = true
			}
		}
		assert.True(t, contained, "slot %s escapes its window", s.StartTime)
	}
}

func TestProject_DefaultGranularity(t *testing.T) {
	windows := []model.AvailabilityWindow{{DayOfWeek: "monday", StartTime: "08:00", EndTime: "08:30"}}

	slots, err := Project(windows, monday, 0)
	require.NoError(t, err)
	assert.Len(t, slots, 2)
}

func TestProject_Errors(t *testing.T) {
	tests := []struct {
		name   string
		window model.AvailabilityWindow
	}{
		{"bad day", model.AvailabilityWindow{DayOfWeek: "someday", StartTime: "08:00", EndTime: "09:00"}},
		{"bad clock", model.AvailabilityWindow{DayOfWeek: "monday", StartTime: "8am", EndTime: "09:00"}},
		{"inverted", model.AvailabilityWindow{DayOfWeek: "monday", StartTime: "10:00", EndTime: "09:00"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Project([]model.AvailabilityWindow{tt.window}, monday, 15)
			assert.Error(t, err)
		})
	}
}
