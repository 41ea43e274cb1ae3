package booking

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classbook/internal/db"
	"classbook/internal/events"
	"classbook/internal/model"
	"classbook/internal/restrictions"
)

var testNow = time.Date(2025, 4, 10, 9, 0, 0, 0, time.UTC)

func privateSession() model.SessionType {
	return model.SessionType{
		ID:              1,
		ProviderID:      7,
		Name:            "Private",
		DurationMinutes: 60,
		CreditCost:      2,
		AllowRecurring:  true,
		IsActive:        true,
		Restrictions: model.BookingRestrictions{
			MinLeadHours:       2,
			MinCancelHours:     24,
			MinRescheduleHours: 24,
		},
	}
}

func setup(t *testing.T, credits int) (*Service, *db.DB) {
	t.Helper()
	ctx := context.Background()
	store, err := db.Open(filepath.Join(t.TempDir(), "booking.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.UpsertProvider(ctx, model.Provider{ID: 7, Name: "Ana", TimeZone: "UTC", IsActive: true}))
	require.NoError(t, store.UpsertProvider(ctx, model.Provider{ID: 8, Name: "Ben", TimeZone: "UTC", IsActive: true}))
	require.NoError(t, store.UpsertSessionType(ctx, privateSession()))
	require.NoError(t, store.ReplaceAvailability(ctx, 7, everyDay("08:00", "18:00")))
	if credits > 0 {
		require.NoError(t, store.AddTransaction(ctx, &model.CreditTransaction{UserID: 1, Kind: model.TxPurchase, Amount: credits}))
	}
	return NewService(store, time.UTC, 30, zerolog.Nop()), store
}

func everyDay(start, end string) []model.AvailabilityWindow {
	var windows []model.AvailabilityWindow
	for _, day := range []string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"} {
		windows = append(windows, model.AvailabilityWindow{DayOfWeek: day, StartTime: start, EndTime: end})
	}
	return windows
}

func request(date, clock string) model.BookingRequest {
	return model.BookingRequest{
		UserID:      1,
		ProviderID:  7,
		SessionType: model.SessionType{ID: 1},
		Date:        date,
		Time:        clock,
	}
}

func TestBook_Single(t *testing.T) {
	ctx := context.Background()
	svc, store := setup(t, 5)

	res, err := svc.Book(ctx, request("2025-04-14", "10:00"), testNow)
	require.NoError(t, err)
	assert.True(t, res.Verdict.Allowed)
	require.Len(t, res.Bookings, 1)
	assert.Nil(t, res.Failure)

	b := res.Bookings[0]
	assert.Equal(t, time.Date(2025, 4, 14, 10, 0, 0, 0, time.UTC), b.StartAt)
	assert.Equal(t, b.StartAt.Add(time.Hour), b.EndAt)
	assert.Empty(t, b.SeriesID)
	assert.Equal(t, IdempotencyKey(1, 7, 1, b.StartAt), b.IdempotencyKey)

	balance, err := store.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, balance)
}

func TestBook_RestrictionDenied(t *testing.T) {
	ctx := context.Background()
	svc, store := setup(t, 5)

	res, err := svc.Book(ctx, request("2025-04-10", "10:00"), testNow)
	require.NoError(t, err)
	assert.False(t, res.Verdict.Allowed)
	assert.Equal(t, "must book at least 2 hours ahead", res.Verdict.Reason)
	assert.Equal(t, restrictions.BoundLeadTime, res.Verdict.Violations[0].Bound)
	assert.Empty(t, res.Bookings)

	bookings, err := store.ListBookings(ctx, db.BookingFilter{UserID: 1})
	require.NoError(t, err)
	assert.Empty(t, bookings)
}

func TestBook_OutsideAvailability(t *testing.T) {
	ctx := context.Background()
	svc, store := setup(t, 5)
	require.NoError(t, store.ReplaceAvailability(ctx, 7, []model.AvailabilityWindow{
		{DayOfWeek: "monday", StartTime: "08:00", EndTime: "09:00"},
	}))

	tests := []struct {
		name, date, clock string
	}{
		{"no window that day", "2025-04-13", "08:00"},
		{"off grid", "2025-04-14", "08:05"},
		{"before window", "2025-04-14", "07:00"},
		{"overruns window end", "2025-04-14", "08:15"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := svc.Book(ctx, request(tt.date, tt.clock), testNow)
			require.NoError(t, err)
			assert.False(t, res.Verdict.Allowed)
			require.Len(t, res.Verdict.Violations, 1)
			assert.Equal(t, restrictions.BoundAvailability, res.Verdict.Violations[0].Bound)
			assert.Equal(t, SkipUnavailable, res.Verdict.Reason)
			assert.Empty(t, res.Bookings)
		})
	}

	balance, err := store.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 5, balance)

	res, err := svc.Book(ctx, request("2025-04-14", "08:00"), testNow)
	require.NoError(t, err)
	assert.True(t, res.Verdict.Allowed)
	assert.Len(t, res.Bookings, 1)
}

func TestBook_SeriesSkipsUnavailableEntries(t *testing.T) {
	ctx := context.Background()
	svc, store := setup(t, 10)
	require.NoError(t, store.ReplaceAvailability(ctx, 7, []model.AvailabilityWindow{
		{DayOfWeek: "monday", StartTime: "10:00", EndTime: "11:00"},
		{DayOfWeek: "wednesday", StartTime: "10:00", EndTime: "11:00"},
	}))

	// Monthly from Monday 14 April: 14 May is a Wednesday, 14 June a Saturday.
	req := request("2025-04-14", "10:00")
	req.Recurrence = &model.SeriesRecurrence{Pattern: model.SeriesMonthly, Until: "2025-06-20"}
	res, err := svc.Book(ctx, req, testNow)
	require.NoError(t, err)
	assert.True(t, res.Verdict.Allowed)
	require.Len(t, res.Bookings, 2)
	assert.Equal(t, time.Date(2025, 5, 14, 10, 0, 0, 0, time.UTC), res.Bookings[1].StartAt)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, 2, res.Skipped[0].Occurrence)
	assert.Equal(t, SkipUnavailable, res.Skipped[0].Reason)
	assert.Nil(t, res.Failure)

	balance, err := store.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 6, balance)
}

func TestBook_OtherUserHoldsSlot(t *testing.T) {
	ctx := context.Background()
	svc, store := setup(t, 5)
	require.NoError(t, store.AddTransaction(ctx, &model.CreditTransaction{UserID: 2, Kind: model.TxPurchase, Amount: 5}))

	first, err := svc.Book(ctx, request("2025-04-14", "10:00"), testNow)
	require.NoError(t, err)
	require.Len(t, first.Bookings, 1)

	req := request("2025-04-14", "10:30")
	req.UserID = 2
	res, err := svc.Book(ctx, req, testNow)
	require.NoError(t, err)
	assert.Empty(t, res.Bookings)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, SkipSlotTaken, res.Skipped[0].Reason)

	balance, err := store.Balance(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, balance)
}

func TestBook_SeriesStopsAtShortfall(t *testing.T) {
	ctx := context.Background()
	svc, store := setup(t, 5)

	req := request("2025-04-14", "10:00")
	req.Recurrence = &model.SeriesRecurrence{Pattern: model.SeriesWeekly, Until: "2025-05-05"}

	res, err := svc.Book(ctx, req, testNow)
	require.NoError(t, err)
	require.Len(t, res.Bookings, 2)
	require.NotNil(t, res.Failure)
	assert.Equal(t, 2, res.Failure.Occurrence)
	assert.Equal(t, time.Date(2025, 4, 28, 10, 0, 0, 0, time.UTC), res.Failure.StartAt)
	assert.Equal(t, 1, res.Failure.Shortfall)

	seriesID := res.Bookings[0].SeriesID
	assert.NotEmpty(t, seriesID)
	assert.Equal(t, seriesID, res.Bookings[1].SeriesID)

	persisted, err := store.ListBookings(ctx, db.BookingFilter{SeriesID: seriesID})
	require.NoError(t, err)
	assert.Len(t, persisted, 2)

	balance, err := store.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, balance)
}

func TestBook_SkipsTakenSlot(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t, 10)

	_, err := svc.Book(ctx, request("2025-04-21", "10:30"), testNow)
	require.NoError(t, err)

	req := request("2025-04-14", "10:00")
	req.Recurrence = &model.SeriesRecurrence{Pattern: model.SeriesWeekly, Until: "2025-04-28"}
	res, err := svc.Book(ctx, req, testNow)
	require.NoError(t, err)
	assert.Len(t, res.Bookings, 2)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, 1, res.Skipped[0].Occurrence)
	assert.Equal(t, SkipSlotTaken, res.Skipped[0].Reason)
}

func TestBook_Errors(t *testing.T) {
	ctx := context.Background()
	svc, store := setup(t, 5)

	req := request("2025-04-14", "10:00")
	req.ProviderID = 8
	_, err := svc.Book(ctx, req, testNow)
	assert.ErrorIs(t, err, ErrSessionTypeInvalid)

	req = request("2025-04-14", "10:00")
	req.SessionType.ID = 99
	_, err = svc.Book(ctx, req, testNow)
	assert.ErrorIs(t, err, db.ErrNotFound)

	st := privateSession()
	st.AllowRecurring = false
	require.NoError(t, store.UpsertSessionType(ctx, st))
	req = request("2025-04-14", "10:00")
	req.Recurrence = &model.SeriesRecurrence{Pattern: model.SeriesWeekly, Until: "2025-05-05"}
	_, err = svc.Book(ctx, req, testNow)
	assert.Error(t, err)
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	svc, store := setup(t, 5)

	res, err := svc.Book(ctx, request("2025-04-14", "10:00"), testNow)
	require.NoError(t, err)
	id := res.Bookings[0].ID
	owner := model.Viewer{UserID: 1}

	_, err = svc.Cancel(ctx, model.Viewer{UserID: 2}, id, testNow)
	assert.ErrorIs(t, err, ErrForbidden)

	late, err := svc.Cancel(ctx, owner, id, time.Date(2025, 4, 14, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, late.Verdict.Allowed)
	assert.Equal(t, restrictions.BoundCancel, late.Verdict.Violations[0].Bound)
	assert.Nil(t, late.Booking)

	done, err := svc.Cancel(ctx, owner, id, testNow)
	require.NoError(t, err)
	assert.True(t, done.Verdict.Allowed)
	assert.Equal(t, model.StatusCanceled, done.Booking.Status)
	require.NotNil(t, done.Refund)
	assert.Equal(t, 2, done.Refund.Amount)

	balance, err := store.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 5, balance)

	_, err = svc.Cancel(ctx, owner, id, testNow)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCancel_AdminBypassesWindow(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t, 5)

	res, err := svc.Book(ctx, request("2025-04-14", "10:00"), testNow)
	require.NoError(t, err)

	admin := model.Viewer{UserID: 99, Roles: []model.Role{model.RoleAdmin}}
	done, err := svc.Cancel(ctx, admin, res.Bookings[0].ID, time.Date(2025, 4, 14, 9, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, done.Verdict.Allowed)
	assert.Equal(t, model.StatusCanceled, done.Booking.Status)
}

func TestReschedule(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t, 10)
	owner := model.Viewer{UserID: 1}

	first, err := svc.Book(ctx, request("2025-04-14", "10:00"), testNow)
	require.NoError(t, err)
	second, err := svc.Book(ctx, request("2025-04-16", "10:00"), testNow)
	require.NoError(t, err)
	id := first.Bookings[0].ID

	moved, err := svc.Reschedule(ctx, owner, id, "2025-04-15", "10:00", testNow)
	require.NoError(t, err)
	require.True(t, moved.Verdict.Allowed)
	assert.Equal(t, time.Date(2025, 4, 15, 10, 0, 0, 0, time.UTC), moved.Booking.StartAt)
	assert.Equal(t, time.Date(2025, 4, 15, 11, 0, 0, 0, time.UTC), moved.Booking.EndAt)

	overlapSelf, err := svc.Reschedule(ctx, owner, id, "2025-04-15", "10:30", testNow)
	require.NoError(t, err)
	assert.True(t, overlapSelf.Verdict.Allowed)

	_, err = svc.Reschedule(ctx, owner, id, "2025-04-16", "10:30", testNow)
	assert.ErrorIs(t, err, ErrSlotTaken)

	tooFar, err := svc.Reschedule(ctx, owner, id, "2025-06-16", "10:00", testNow)
	require.NoError(t, err)
	assert.False(t, tooFar.Verdict.Allowed)
	assert.Equal(t, restrictions.BoundAdvance, tooFar.Verdict.Violations[0].Bound)

	badInput, err := svc.Reschedule(ctx, owner, id, "2025-04-17", "25:00", testNow)
	require.NoError(t, err)
	assert.Equal(t, restrictions.BoundInput, badInput.Verdict.Violations[0].Bound)

	closed, err := svc.Reschedule(ctx, owner, id, "2025-04-17", "07:00", testNow)
	require.NoError(t, err)
	assert.False(t, closed.Verdict.Allowed)
	assert.Equal(t, restrictions.BoundAvailability, closed.Verdict.Violations[0].Bound)
	assert.Nil(t, closed.Booking)

	late, err := svc.Reschedule(ctx, owner, second.Bookings[0].ID, "2025-04-17", "10:00", time.Date(2025, 4, 16, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, late.Verdict.Allowed)
	assert.Equal(t, restrictions.BoundReschedule, late.Verdict.Violations[0].Bound)
}

func TestCompleteEnded(t *testing.T) {
	ctx := context.Background()
	svc, store := setup(t, 10)

	a, err := svc.Book(ctx, request("2025-04-14", "10:00"), testNow)
	require.NoError(t, err)
	b, err := svc.Book(ctx, request("2025-04-20", "10:00"), testNow)
	require.NoError(t, err)

	n, err := svc.CompleteEnded(ctx, time.Date(2025, 4, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.GetBooking(ctx, a.Bookings[0].ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)

	got, err = store.GetBooking(ctx, b.Bookings[0].ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, got.Status)

	_, err = svc.Cancel(ctx, model.Viewer{UserID: 1}, a.Bookings[0].ID, testNow)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestLifecycleEvents(t *testing.T) {
	ctx := context.Background()
	svc, _ := setup(t, 10)

	bus := events.NewEventBus(nil)
	var seen []string
	record := func(e events.Event) error {
		var b model.Booking
		if err := e.Decode(&b); err != nil {
			return err
		}
		seen = append(seen, e.Type+":"+string(b.Status))
		return nil
	}
	for _, typ := range []string{events.BookingCreated, events.BookingCanceled, events.BookingRescheduled, events.BookingCompleted} {
		bus.Subscribe(typ, record)
	}
	svc.SetPublisher(bus)

	owner := model.Viewer{UserID: 1}
	a, err := svc.Book(ctx, request("2025-04-14", "10:00"), testNow)
	require.NoError(t, err)
	b, err := svc.Book(ctx, request("2025-04-16", "10:00"), testNow)
	require.NoError(t, err)
	_, err = svc.Reschedule(ctx, owner, a.Bookings[0].ID, "2025-04-15", "10:00", testNow)
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, owner, b.Bookings[0].ID, testNow)
	require.NoError(t, err)
	_, err = svc.CompleteEnded(ctx, time.Date(2025, 4, 20, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"booking.created:confirmed",
		"booking.created:confirmed",
		"booking.rescheduled:confirmed",
		"booking.canceled:canceled",
		"booking.completed:completed",
	}, seen)
}
