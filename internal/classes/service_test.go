package classes

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"classbook/internal/cache"
	"classbook/internal/eligibility"
	"classbook/internal/interval"
	"classbook/internal/model"
	"classbook/internal/recurrence"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) ListTemplates(ctx context.Context, providerID int64, loc *time.Location) ([]model.EventTemplate, error) {
	args := m.Called(ctx, providerID, loc)
	return args.Get(0).([]model.EventTemplate), args.Error(1)
}

func (m *mockStore) ListOverrides(ctx context.Context, loc *time.Location) ([]model.InstanceOverride, error) {
	args := m.Called(ctx, loc)
	return args.Get(0).([]model.InstanceOverride), args.Error(1)
}

func (m *mockStore) RecordEnrollment(ctx context.Context, e *model.Enrollment) (bool, error) {
	args := m.Called(ctx, e)
	return args.Bool(0), args.Error(1)
}

// Monday 2025-04-14 08:00 UTC, weekly on Mon/Wed/Fri.
func flowTemplate() model.EventTemplate {
	return model.EventTemplate{
		ID:              42,
		Name:            "Morning Flow",
		ProviderID:      7,
		StartAt:         time.Date(2025, 4, 14, 8, 0, 0, 0, time.UTC),
		DurationMinutes: 60,
		JoinURL:         "https://meet.example.com/flow",
		Recurrence: &model.RecurrencePattern{
			IsRecurring: true,
			Frequency:   model.FrequencyWeekly,
			DaysOfWeek:  []int{1, 3, 5},
		},
	}
}

func newService(store Store, c InstanceCache) *Service {
	return NewService(store, c, interval.DefaultPolicy(), time.UTC, 2, zerolog.Nop())
}

func TestList_VisibleWithState(t *testing.T) {
	ctx := context.Background()
	store := new(mockStore)
	cancelled := recurrence.InstanceID(42, time.Date(2025, 4, 18, 0, 0, 0, 0, time.UTC))
	store.On("ListTemplates", ctx, int64(0), time.UTC).Return([]model.EventTemplate{flowTemplate()}, nil)
	store.On("ListOverrides", ctx, time.UTC).Return([]model.InstanceOverride{{InstanceID: cancelled, Cancelled: true}}, nil)

	svc := newService(store, nil)
	// Wednesday 08:03: Monday's class is long expired, Wednesday's is live.
	now := time.Date(2025, 4, 16, 8, 3, 0, 0, time.UTC)

	listings, err := svc.List(ctx, now)
	require.NoError(t, err)
	require.NotEmpty(t, listings)

	first := listings[0]
	assert.Equal(t, time.Date(2025, 4, 16, 8, 0, 0, 0, time.UTC), first.StartAt)
	assert.Equal(t, interval.Live, first.State)
	assert.True(t, first.Joinable)
	assert.Zero(t, first.CountdownSeconds)

	for _, l := range listings {
		assert.NotEqual(t, cancelled, l.InstanceID)
		assert.NotEqual(t, interval.Expired, l.State)
	}

	second := listings[1]
	assert.Equal(t, time.Date(2025, 4, 21, 8, 0, 0, 0, time.UTC), second.StartAt)
	assert.Equal(t, interval.NotStarted, second.State)
	assert.False(t, second.Joinable)
	assert.Equal(t, int64(second.JoinOpensAt.Sub(now)/time.Second), second.CountdownSeconds)
}

func TestJoin(t *testing.T) {
	ctx := context.Background()
	store := new(mockStore)
	store.On("ListTemplates", ctx, int64(0), time.UTC).Return([]model.EventTemplate{flowTemplate()}, nil)
	store.On("ListOverrides", ctx, time.UTC).Return([]model.InstanceOverride{}, nil)
	store.On("RecordEnrollment", ctx, mock.AnythingOfType("*model.Enrollment")).Return(true, nil).Once()

	svc := newService(store, nil)
	start := time.Date(2025, 4, 16, 8, 0, 0, 0, time.UTC)
	id := recurrence.InstanceID(42, start)
	member := model.Viewer{UserID: 1, Membership: model.Membership{Active: true}}

	early, err := svc.Join(ctx, member, id, start.Add(-10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, eligibility.Deny, early.Decision.Outcome)
	assert.Empty(t, early.JoinURL)

	guest, err := svc.Join(ctx, model.Viewer{UserID: 2}, id, start)
	require.NoError(t, err)
	assert.Equal(t, eligibility.PromptMembership, guest.Decision.Outcome)

	admitted, err := svc.Join(ctx, member, id, start.Add(-4*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, eligibility.Admit, admitted.Decision.Outcome)
	assert.True(t, admitted.Recorded)
	assert.Equal(t, "https://meet.example.com/flow", admitted.JoinURL)

	store.AssertNumberOfCalls(t, "RecordEnrollment", 1)
	enrollment := store.Calls[len(store.Calls)-1].Arguments.Get(1).(*model.Enrollment)
	assert.Equal(t, int64(1), enrollment.UserID)
	assert.Equal(t, id, enrollment.InstanceID)

	_, err = svc.Join(ctx, member, "nope", start)
	assert.ErrorIs(t, err, ErrInstanceNotFound)
}

func TestInstances_UsesCache(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := new(mockStore)
	store.On("ListTemplates", ctx, int64(0), time.UTC).Return([]model.EventTemplate{flowTemplate()}, nil)
	store.On("ListOverrides", ctx, time.UTC).Return([]model.InstanceOverride{}, nil)

	svc := newService(store, cache.New(client, time.Minute))
	now := time.Date(2025, 4, 16, 7, 0, 0, 0, time.UTC)

	first, err := svc.Instances(ctx, now)
	require.NoError(t, err)
	second, err := svc.Instances(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, second, len(first))
	store.AssertNumberOfCalls(t, "ListTemplates", 1)

	svc.Invalidate(ctx)
	_, err = svc.Instances(ctx, now)
	require.NoError(t, err)
	store.AssertNumberOfCalls(t, "ListTemplates", 2)
}

func TestListForProvider(t *testing.T) {
	ctx := context.Background()
	other := flowTemplate()
	other.ID = 43
	other.ProviderID = 8

	store := new(mockStore)
	store.On("ListTemplates", ctx, int64(0), time.UTC).Return([]model.EventTemplate{flowTemplate(), other}, nil)
	store.On("ListOverrides", ctx, time.UTC).Return([]model.InstanceOverride{}, nil)

	svc := newService(store, nil)
	listings, err := svc.ListForProvider(ctx, 8, time.Date(2025, 4, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotEmpty(t, listings)
	for _, l := range listings {
		assert.Equal(t, int64(8), l.ProviderID)
	}
}
