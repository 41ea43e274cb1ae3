package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"classbook/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCatalog = `
time_zone: UTC
providers:
  - id: 7
    name: Ana
    is_active: true
    availability:
      - day: Monday
        start: "08:00"
        end: "12:00"
      - day: wed
        ranges:
          - start: "09:00"
            end: "10:00"
          - start: "15:00"
            end: "17:00"
    session_types:
      - id: 1
        name: Private session
        duration_minutes: 60
        credit_cost: 2
        allow_recurring: true
        is_active: true
        booking_restrictions:
          min_lead_hours: 2
          max_advance_days: 14
    classes:
      - id: 42
        name: Morning Flow
        start: "2025-04-14 08:00"
        duration_minutes: 60
        tags: [yoga]
        join_url: https://meet.example.com/flow
        recurrence:
          is_recurring: true
          frequency: weekly
          days_of_week: [1, 3, 5]
holidays:
  - date: "2025-12-25"
    name: Christmas
`

func TestParseCatalog(t *testing.T) {
	cat, err := ParseCatalog([]byte(sampleCatalog))
	require.NoError(t, err)
	require.Len(t, cat.Providers, 1)

	p := cat.Providers[0]
	assert.Equal(t, "UTC", p.TimeZone)
	assert.Equal(t, "monday", p.Availability[0].DayOfWeek)
	assert.Len(t, p.Availability[1].Ranges, 2)
	assert.Equal(t, int64(7), p.Availability[0].ProviderID)

	st := p.SessionTypes[0]
	assert.Equal(t, int64(7), st.ProviderID)
	assert.Equal(t, 2, st.Restrictions.MinLeadHours)
	assert.Equal(t, 14, st.Restrictions.MaxAdvanceDays)
	assert.True(t, st.AllowRecurring)

	tmpl, err := p.Classes[0].Template(p.ID, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 4, 14, 8, 0, 0, 0, time.UTC), tmpl.StartAt)
	assert.Equal(t, []int{1, 3, 5}, tmpl.Recurrence.DaysOfWeek)
	assert.Equal(t, model.FrequencyWeekly, tmpl.Recurrence.Frequency)

	holiday, name := cat.IsHoliday(time.Date(2025, 12, 25, 10, 0, 0, 0, time.UTC))
	assert.True(t, holiday)
	assert.Equal(t, "Christmas", name)

	assert.NotNil(t, cat.ProviderByID(7))
	assert.Nil(t, cat.ProviderByID(8))
	assert.Contains(t, cat.String(), "1 providers")
}

func TestCatalogValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(string) string
		errPart string
	}{
		{"bad day", func(s string) string { return strings.Replace(s, "day: Monday", "day: Funday", 1) }, "availability[0].day"},
		{"bad clock", func(s string) string { return strings.Replace(s, `end: "12:00"`, `end: "noon"`, 1) }, "invalid end"},
		{"clock with seconds", func(s string) string { return strings.Replace(s, `end: "12:00"`, `end: "12:00:99"`, 1) }, "invalid end"},
		{"single digit hour", func(s string) string { return strings.Replace(s, `end: "12:00"`, `end: "9:00"`, 1) }, "invalid end"},
		{"inverted range", func(s string) string { return strings.Replace(s, `end: "12:00"`, `end: "07:00"`, 1) }, "end must be after start"},
		{"zero duration", func(s string) string { return strings.Replace(s, "duration_minutes: 60\n        credit_cost", "duration_minutes: 0\n        credit_cost", 1) }, "duration_minutes must be positive"},
		{"bad class start", func(s string) string { return strings.Replace(s, `start: "2025-04-14 08:00"`, `start: "Monday 8am"`, 1) }, "classes[0].start"},
		{"bad frequency", func(s string) string { return strings.Replace(s, "frequency: weekly", "frequency: hourly", 1) }, "frequency"},
		{"bad weekday", func(s string) string { return strings.Replace(s, "[1, 3, 5]", "[1, 9]", 1) }, "days_of_week[1]"},
		{"bad holiday", func(s string) string { return strings.Replace(s, `"2025-12-25"`, `"25.12.2025"`, 1) }, "holiday[0]"},
		{"bad zone", func(s string) string { return strings.Replace(s, "time_zone: UTC", "time_zone: Nowhere/City", 1) }, "time_zone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tt.mutate(sampleCatalog)))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errPart)
		})
	}

	_, err := ParseCatalog([]byte("providers: []"))
	assert.ErrorContains(t, err, "no providers")
}

func TestWatchCatalog_Reloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleCatalog), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var updates, failures atomic.Int32
	var lastName atomic.Value
	err := WatchCatalog(ctx, path, 10*time.Millisecond, func(c *Catalog) {
		updates.Add(1)
		lastName.Store(c.Providers[0].Name)
	}, func(error) {
		failures.Add(1)
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), updates.Load())

	future := time.Now().Add(time.Minute)
	require.NoError(t, os.WriteFile(path, []byte(strings.Replace(sampleCatalog, "name: Ana", "name: Bea", 1)), 0o644))
	require.NoError(t, os.Chtimes(path, future, future))

	assert.Eventually(t, func() bool { return updates.Load() == 2 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, "Bea", lastName.Load())

	later := future.Add(time.Minute)
	require.NoError(t, os.WriteFile(path, []byte("providers: ["), 0o644))
	require.NoError(t, os.Chtimes(path, later, later))

	assert.Eventually(t, func() bool { return failures.Load() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(2), updates.Load())
}

func TestWatchCatalog_InitialLoadFails(t *testing.T) {
	err := WatchCatalog(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"), time.Second, nil, nil)
	assert.Error(t, err)
}

func TestShippedCatalogIsValid(t *testing.T) {
	cat, err := LoadCatalog(filepath.Join("..", "..", "configs", "catalog.yaml"))
	require.NoError(t, err)
	assert.Len(t, cat.Providers, 2)
}
