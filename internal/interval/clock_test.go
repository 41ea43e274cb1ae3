package interval

import (
	"testing"
	"time"

	"classbook/internal/model"

	"github.com/stretchr/testify/assert"
)

func testInstance() model.EventInstance {
	return model.EventInstance{
		InstanceID:      "i-1",
		StartAt:         time.Date(2025, 4, 14, 8, 0, 0, 0, time.UTC),
		DurationMinutes: 60,
	}
}

func TestClassify_Scenario(t *testing.T) {
	inst := testInstance()
	start := inst.StartAt
	end := inst.EndAt()

	now := start.Add(-6 * time.Minute)
	assert.Equal(t, NotStarted, Classify(inst, now))
	assert.False(t, CanJoinNow(inst, now))

	now = start.Add(-4 * time.Minute)
	assert.True(t, CanJoinNow(inst, now))
	assert.Equal(t, NotStarted, Classify(inst, now))

	now = end.Add(10 * time.Minute)
	assert.Equal(t, GraceVisible, Classify(inst, now))
	assert.True(t, Visible(inst, now))
	assert.False(t, CanJoinNow(inst, now))

	now = end.Add(16 * time.Minute)
	assert.Equal(t, Expired, Classify(inst, now))
	assert.False(t, Visible(inst, now))
}

func TestClassify_Boundaries(t *testing.T) {
	inst := testInstance()
	start := inst.StartAt
	end := inst.EndAt()

	tests := []struct {
		name string
		now  time.Time
		want State
	}{
		{"just before start", start.Add(-time.Nanosecond), NotStarted},
		{"at start", start, Live},
		{"just before end", end.Add(-time.Nanosecond), Live},
		{"at end", end, GraceVisible},
		{"just before grace ends", end.Add(DefaultGrace - time.Nanosecond), GraceVisible},
		{"at grace end", end.Add(DefaultGrace), Expired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(inst, tt.now))
		})
	}
}

func TestJoinWindow(t *testing.T) {
	inst := testInstance()
	opens := JoinWindowOpensAt(inst)
	assert.Equal(t, inst.StartAt.Add(-5*time.Minute), opens)

	assert.True(t, CanJoinNow(inst, opens))
	assert.False(t, CanJoinNow(inst, opens.Add(-time.Nanosecond)))
	assert.True(t, CanJoinNow(inst, inst.EndAt().Add(-time.Nanosecond)))
	assert.False(t, CanJoinNow(inst, inst.EndAt()))
}

func TestPredicatesAreConsistent(t *testing.T) {
	p := DefaultPolicy()
	inst := testInstance()

	for offset := -30 * time.Minute; offset <= 120*time.Minute; offset += 30 * time.Second {
		now := inst.StartAt.Add(offset)
		state := p.Classify(inst, now)
		joinable := p.CanJoinNow(inst, now)
		visible := p.Visible(inst, now)

		if joinable {
			assert.True(t, visible, "joinable but not visible at %s", offset)
		}
		if state == Expired {
			assert.False(t, joinable, "expired but joinable at %s", offset)
			assert.False(t, visible, "expired but visible at %s", offset)
		}
		if state == Live {
			assert.True(t, joinable, "live but not joinable at %s", offset)
		}
	}
}

func TestPolicy_Custom(t *testing.T) {
	p := Policy{Grace: 0, JoinLead: 10 * time.Minute}
	inst := testInstance()

	assert.Equal(t, Expired, p.Classify(inst, inst.EndAt()))
	assert.True(t, p.CanJoinNow(inst, inst.StartAt.Add(-9*time.Minute)))
}

func TestCountdown(t *testing.T) {
	inst := testInstance()
	p := DefaultPolicy()

	assert.Equal(t, 5*time.Minute, p.Countdown(inst, inst.StartAt.Add(-10*time.Minute)))
	assert.Equal(t, time.Duration(0), p.Countdown(inst, inst.StartAt.Add(-5*time.Minute)))
	assert.Equal(t, time.Duration(0), p.Countdown(inst, inst.StartAt.Add(time.Minute)))
}

func TestFilterVisible(t *testing.T) {
	p := DefaultPolicy()
	now := time.Date(2025, 4, 14, 12, 0, 0, 0, time.UTC)

	old := model.EventInstance{InstanceID: "old", StartAt: now.Add(-3 * time.Hour), DurationMinutes: 60}
	grace := model.EventInstance{InstanceID: "grace", StartAt: now.Add(-70 * time.Minute), DurationMinutes: 60}
	live := model.EventInstance{InstanceID: "live", StartAt: now.Add(-10 * time.Minute), DurationMinutes: 60}
	next := model.EventInstance{InstanceID: "next", StartAt: now.Add(time.Hour), DurationMinutes: 60}

	got := p.FilterVisible([]model.EventInstance{old, grace, live, next}, now)
	ids := make([]string, len(got))
	for i, inst := range got {
		ids[i] = inst.InstanceID
	}
	assert.Equal(t, []string{"grace", "live", "next"}, ids)
}
