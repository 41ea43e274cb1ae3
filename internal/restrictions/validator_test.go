package restrictions

import (
	"testing"
	"time"

	"classbook/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 4, 14, 10, 0, 0, 0, time.UTC)

func sessionType(lead, advance int) model.SessionType {
	return model.SessionType{
		ID:              1,
		DurationMinutes: 60,
		Restrictions:    model.BookingRestrictions{MinLeadHours: lead, MaxAdvanceDays: advance},
	}
}

func TestCheck_LeadTimeScenario(t *testing.T) {
	v := NewValidator(time.UTC, 0)
	st := sessionType(2, 0)

	verdict := v.Check("2025-04-14", "11:30", st, now)
	assert.False(t, verdict.Allowed)
	require.Len(t, verdict.Violations, 1)
	assert.Equal(t, BoundLeadTime, verdict.Violations[0].Bound)
	assert.Contains(t, verdict.Reason, "2 hours ahead")

	assert.True(t, v.IsAllowed("2025-04-14", "13:00", st, now))
	assert.Empty(t, v.ReasonIfDenied("2025-04-14", "13:00", st, now))
}

func TestCheck_Boundaries(t *testing.T) {
	v := NewValidator(time.UTC, 0)
	st := sessionType(2, 10)

	tests := []struct {
		name      string
		candidate time.Time
		allowed   bool
		bound     Bound
	}{
		{"exact lead", now.Add(2 * time.Hour), true, ""},
		{"one minute short", now.Add(2*time.Hour - time.Minute), false, BoundLeadTime},
		{"exact advance", now.Add(10 * 24 * time.Hour), true, ""},
		{"one minute over", now.Add(10*24*time.Hour + time.Minute), false, BoundAdvance},
		{"in the past", now.Add(-time.Hour), false, BoundLeadTime},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := v.CheckAt(tt.candidate, st, now)
			assert.Equal(t, tt.allowed, verdict.Allowed)
			if !tt.allowed {
				require.NotEmpty(t, verdict.Violations)
				assert.Equal(t, tt.bound, verdict.Violations[0].Bound)
			}
		})
	}
}

func TestCheck_DefaultAdvanceWindow(t *testing.T) {
	v := NewValidator(time.UTC, 0)
	st := sessionType(0, 0)

	assert.True(t, v.CheckAt(now.Add(30*24*time.Hour), st, now).Allowed)
	verdict := v.CheckAt(now.Add(31*24*time.Hour), st, now)
	assert.False(t, verdict.Allowed)
	assert.Contains(t, verdict.Reason, "30 days")
}

func TestCheck_BothBoundsEvaluated(t *testing.T) {
	v := NewValidator(time.UTC, 0)
	// A lead time longer than the advance window fails both ways.
	st := model.SessionType{Restrictions: model.BookingRestrictions{MinLeadHours: 72, MaxAdvanceDays: 1}}

	verdict := v.CheckAt(now.Add(48*time.Hour), st, now)
	assert.False(t, verdict.Allowed)
	require.Len(t, verdict.Violations, 2)
	assert.Equal(t, BoundLeadTime, verdict.Violations[0].Bound)
	assert.Equal(t, BoundAdvance, verdict.Violations[1].Bound)
}

func TestCheck_UsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	v := NewValidator(loc, 0)
	st := sessionType(2, 0)

	// 13:00 at UTC+3 is 10:00 UTC, which is now.
	assert.False(t, v.IsAllowed("2025-04-14", "13:00", st, now))
	assert.True(t, v.IsAllowed("2025-04-14", "15:00", st, now))
}

func TestCheck_MalformedInput(t *testing.T) {
	v := NewValidator(time.UTC, 0)

	verdict := v.Check("14/04/2025", "10:00", sessionType(0, 0), now)
	assert.False(t, verdict.Allowed)
	assert.Equal(t, BoundInput, verdict.Violations[0].Bound)

	assert.False(t, v.IsAllowed("2025-04-14", "25:00", sessionType(0, 0), now))
}

func TestCanCancel(t *testing.T) {
	v := NewValidator(time.UTC, 0)
	st := model.SessionType{Restrictions: model.BookingRestrictions{MinCancelHours: 24}}

	assert.True(t, v.CanCancel(now.Add(24*time.Hour), st, now).Allowed)

	verdict := v.CanCancel(now.Add(23*time.Hour), st, now)
	assert.False(t, verdict.Allowed)
	assert.Equal(t, BoundCancel, verdict.Violations[0].Bound)

	assert.False(t, v.CanCancel(now.Add(-time.Minute), model.SessionType{}, now).Allowed)
}

func TestCanReschedule(t *testing.T) {
	v := NewValidator(time.UTC, 0)
	st := model.SessionType{Restrictions: model.BookingRestrictions{MinRescheduleHours: 12, MinLeadHours: 2}}

	assert.True(t, v.CanReschedule(now.Add(48*time.Hour), now.Add(72*time.Hour), st, now).Allowed)

	verdict := v.CanReschedule(now.Add(6*time.Hour), now.Add(time.Hour), st, now)
	assert.False(t, verdict.Allowed)
	require.Len(t, verdict.Violations, 2)
	assert.Equal(t, BoundReschedule, verdict.Violations[0].Bound)
	assert.Equal(t, BoundLeadTime, verdict.Violations[1].Bound)
}
