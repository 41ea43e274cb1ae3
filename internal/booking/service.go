// Package booking submits, cancels, reschedules and completes session bookings.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"classbook/internal/credits"
	"classbook/internal/db"
	"classbook/internal/events"
	"classbook/internal/metrics"
	"classbook/internal/model"
	"classbook/internal/restrictions"
	"classbook/internal/series"
	"classbook/internal/slots"
	"classbook/internal/timeutil"
)

var (
	ErrForbidden          = errors.New("booking belongs to another user")
	ErrInvalidTransition  = errors.New("booking status transition not allowed")
	ErrSessionTypeInvalid = errors.New("session type does not belong to provider")
	ErrSlotTaken          = db.ErrSlotTaken
)

// Skip reasons reported for entries that were not persisted.
const (
	SkipSlotTaken   = "slot already booked"
	SkipDuplicate   = "already booked by this request"
	SkipUnavailable = "outside provider availability"
)

var keyNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("classbook:booking-key"))

// Store is the persistence the booking service needs.
type Store interface {
	GetProvider(ctx context.Context, id int64) (*model.Provider, error)
	GetSessionType(ctx context.Context, id int64) (*model.SessionType, error)
	Balance(ctx context.Context, userID int64) (int, error)
	ListAvailability(ctx context.Context, providerID int64) ([]model.AvailabilityWindow, error)
	CreateBooking(ctx context.Context, b *model.Booking) error
	GetBooking(ctx context.Context, id int64) (*model.Booking, error)
	CancelBooking(ctx context.Context, id int64) (*model.Booking, *model.CreditTransaction, error)
	RescheduleBooking(ctx context.Context, id int64, start, end time.Time, idempotencyKey string) (*model.Booking, error)
	UpdateBookingStatus(ctx context.Context, id int64, status model.BookingStatus) error
	ConfirmedBefore(ctx context.Context, t time.Time) ([]model.Booking, error)
}

// Skipped is an entry left out of a series without stopping it.
type Skipped struct {
	Occurrence int       `json:"occurrence"`
	StartAt    time.Time `json:"start_at"`
	Reason     string    `json:"reason"`
}

// Failure reports the entry a series stopped at for lack of credits.
type Failure struct {
	Occurrence int       `json:"occurrence"`
	StartAt    time.Time `json:"start_at"`
	Shortfall  int       `json:"shortfall"`
}

// Result is the outcome of a booking submission. When Verdict is not
// allowed nothing was persisted.
type Result struct {
	Verdict  restrictions.Verdict `json:"verdict"`
	Bookings []model.Booking      `json:"bookings"`
	Skipped  []Skipped            `json:"skipped,omitempty"`
	Failure  *Failure             `json:"failure,omitempty"`
}

// CancelResult is the outcome of a cancellation.
type CancelResult struct {
	Verdict restrictions.Verdict     `json:"verdict"`
	Booking *model.Booking           `json:"booking,omitempty"`
	Refund  *model.CreditTransaction `json:"refund,omitempty"`
}

// RescheduleResult is the outcome of a reschedule.
type RescheduleResult struct {
	Verdict restrictions.Verdict `json:"verdict"`
	Booking *model.Booking       `json:"booking,omitempty"`
}

// Service handles booking operations.
type Service struct {
	store             Store
	fsm               *FSM
	loc               *time.Location
	defaultMaxAdvance int
	granularity       int
	publisher         Publisher
	logger            zerolog.Logger
}

// Publisher receives booking lifecycle events.
type Publisher interface {
	PublishJSON(eventType string, payload any) error
}

// SetPublisher attaches p; events are dropped while no publisher is set.
func (s *Service) SetPublisher(p Publisher) {
	s.publisher = p
}

func (s *Service) publish(eventType string, b *model.Booking) {
	if s.publisher == nil || b == nil {
		return
	}
	if err := s.publisher.PublishJSON(eventType, b); err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Int64("booking_id", b.ID).Msg("Failed to publish event")
	}
}

// NewService creates a new booking service. loc is used for providers without a time zone.
func NewService(store Store, loc *time.Location, defaultMaxAdvanceDays int, logger zerolog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		store:             store,
		fsm:               NewFSM(),
		loc:               loc,
		defaultMaxAdvance: defaultMaxAdvanceDays,
		granularity:       slots.DefaultGranularity,
		logger:            logger.With().Str("component", "booking").Logger(),
	}
}

// IdempotencyKey derives the dedupe key of a booking for user, provider,
// session type and start.
func IdempotencyKey(userID, providerID, sessionTypeID int64, start time.Time) string {
	name := fmt.Sprintf("%d/%d/%d/%s", userID, providerID, sessionTypeID, start.UTC().Format(time.RFC3339))
	return uuid.NewSHA1(keyNamespace, []byte(name)).String()
}

// DefaultLocation returns the zone used for providers without one.
func (s *Service) DefaultLocation() *time.Location {
	return s.loc
}

// Location returns the zone bookings of providerID are expressed in.
func (s *Service) Location(ctx context.Context, providerID int64) (*time.Location, error) {
	p, err := s.store.GetProvider(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("load provider %d: %w", providerID, err)
	}
	if p.TimeZone == "" {
		return s.loc, nil
	}
	loc, err := time.LoadLocation(p.TimeZone)
	if err != nil {
		s.logger.Warn().Err(err).Int64("provider_id", providerID).Msg("Unknown provider time zone, using default")
		return s.loc, nil
	}
	return loc, nil
}

// Validator returns the restriction validator for providerID.
func (s *Service) Validator(ctx context.Context, providerID int64) (*restrictions.Validator, error) {
	loc, err := s.Location(ctx, providerID)
	if err != nil {
		return nil, err
	}
	return restrictions.NewValidator(loc, s.defaultMaxAdvance), nil
}

func (s *Service) sessionType(ctx context.Context, providerID, id int64) (model.SessionType, error) {
	st, err := s.store.GetSessionType(ctx, id)
	if err != nil {
		return model.SessionType{}, fmt.Errorf("load session type %d: %w", id, err)
	}
	if st.ProviderID != providerID || !st.IsActive {
		return model.SessionType{}, ErrSessionTypeInvalid
	}
	return *st, nil
}

// Book submits req. The first occurrence is checked against the session
// type's restrictions and the provider's availability. Later entries outside
// availability are skipped, then every entry of the series is authorized against
// the running balance and persisted in order. The series stops at the first
// entry the balance cannot cover; entries already persisted stay.
func (s *Service) Book(ctx context.Context, req model.BookingRequest, now time.Time) (Result, error) {
	st, err := s.sessionType(ctx, req.ProviderID, req.SessionType.ID)
	if err != nil {
		return Result{}, err
	}
	req.SessionType = st

	validator, err := s.Validator(ctx, req.ProviderID)
	if err != nil {
		return Result{}, err
	}

	result := Result{Verdict: validator.Check(req.Date, req.Time, st, now)}
	if !result.Verdict.Allowed {
		for _, v := range result.Verdict.Violations {
			metrics.IncRestrictionDenied(string(v.Bound))
		}
		metrics.IncBookingCreated("denied")
		return result, nil
	}

	loc := validator.Location()
	first, err := timeutil.Combine(req.Date, req.Time, loc)
	if err != nil {
		return Result{}, err
	}
	avail, err := s.availability(ctx, req.ProviderID, loc)
	if err != nil {
		return Result{}, err
	}
	ok, err := avail.fits(first, st.Duration())
	if err != nil {
		return Result{}, err
	}
	if !ok {
		result.Verdict = restrictions.Deny(restrictions.BoundAvailability, SkipUnavailable)
		metrics.IncRestrictionDenied(string(restrictions.BoundAvailability))
		metrics.IncBookingCreated("denied")
		return result, nil
	}

	entries, err := series.Expand(req, loc)
	if err != nil {
		return Result{}, err
	}

	balance, err := s.store.Balance(ctx, req.UserID)
	if err != nil {
		return Result{}, fmt.Errorf("load balance: %w", err)
	}

	for _, e := range entries {
		if !e.StartAt.Equal(first) {
			ok, err := avail.fits(e.StartAt, e.EndAt.Sub(e.StartAt))
			if err != nil {
				return result, err
			}
			if !ok {
				result.Skipped = append(result.Skipped, Skipped{Occurrence: e.Occurrence, StartAt: e.StartAt, Reason: SkipUnavailable})
				metrics.IncBookingCreated("unavailable")
				continue
			}
		}

		auth := credits.Authorize(balance, e.CreditCost)
		metrics.IncCreditAuthorization(auth.Authorized)
		if !auth.Authorized {
			result.Failure = &Failure{Occurrence: e.Occurrence, StartAt: e.StartAt, Shortfall: auth.Shortfall}
			metrics.IncBookingCreated("insufficient")
			break
		}

		b := &model.Booking{
			UserID:         req.UserID,
			ProviderID:     req.ProviderID,
			SessionTypeID:  st.ID,
			SeriesID:       e.SeriesID,
			Occurrence:     e.Occurrence,
			StartAt:        e.StartAt,
			EndAt:          e.EndAt,
			CreditCost:     e.CreditCost,
			Status:         model.StatusConfirmed,
			IdempotencyKey: IdempotencyKey(req.UserID, req.ProviderID, st.ID, e.StartAt),
		}
		err = s.store.CreateBooking(ctx, b)
		switch {
		case errors.Is(err, db.ErrSlotTaken):
			result.Skipped = append(result.Skipped, Skipped{Occurrence: e.Occurrence, StartAt: e.StartAt, Reason: SkipSlotTaken})
			metrics.IncBookingCreated("conflict")
			continue
		case errors.Is(err, db.ErrDuplicateBooking):
			result.Skipped = append(result.Skipped, Skipped{Occurrence: e.Occurrence, StartAt: e.StartAt, Reason: SkipDuplicate})
			metrics.IncBookingCreated("duplicate")
			continue
		case errors.Is(err, db.ErrInsufficientFunds):
			// Balance moved between the read above and the insert.
			fresh, berr := s.store.Balance(ctx, req.UserID)
			if berr != nil {
				return result, fmt.Errorf("load balance: %w", berr)
			}
			result.Failure = &Failure{Occurrence: e.Occurrence, StartAt: e.StartAt, Shortfall: credits.Authorize(fresh, e.CreditCost).Shortfall}
			metrics.IncBookingCreated("insufficient")
		case err != nil:
			return result, fmt.Errorf("create booking: %w", err)
		}
		if result.Failure != nil {
			break
		}

		balance -= e.CreditCost
		result.Bookings = append(result.Bookings, *b)
		metrics.IncBookingCreated("created")
		s.publish(events.BookingCreated, b)
	}

	event := s.logger.Info().
		Int64("user_id", req.UserID).
		Int64("provider_id", req.ProviderID).
		Int64("session_type_id", st.ID).
		Int("requested", len(entries)).
		Int("created", len(result.Bookings)).
		Int("skipped", len(result.Skipped))
	if result.Failure != nil {
		event = event.Int("failed_occurrence", result.Failure.Occurrence).Int("shortfall", result.Failure.Shortfall)
	}
	event.Msg("Booking request processed")

	return result, nil
}

func (s *Service) owned(ctx context.Context, actor model.Viewer, id int64) (*model.Booking, error) {
	b, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.UserID != actor.UserID && !actor.HasRole(model.RoleAdmin) {
		return nil, ErrForbidden
	}
	return b, nil
}

// Cancel cancels booking id for actor and refunds what it cost. Admins may
// cancel any booking and bypass the cancellation window.
func (s *Service) Cancel(ctx context.Context, actor model.Viewer, id int64, now time.Time) (CancelResult, error) {
	b, err := s.owned(ctx, actor, id)
	if err != nil {
		return CancelResult{}, err
	}
	if err := s.fsm.Check(b.Status, model.StatusCanceled); err != nil {
		return CancelResult{}, err
	}

	st, err := s.store.GetSessionType(ctx, b.SessionTypeID)
	if err != nil {
		return CancelResult{}, fmt.Errorf("load session type %d: %w", b.SessionTypeID, err)
	}
	validator, err := s.Validator(ctx, b.ProviderID)
	if err != nil {
		return CancelResult{}, err
	}

	result := CancelResult{Verdict: validator.CanCancel(b.StartAt, *st, now)}
	if !result.Verdict.Allowed && !actor.HasRole(model.RoleAdmin) {
		metrics.IncRestrictionDenied(string(restrictions.BoundCancel))
		return result, nil
	}
	result.Verdict = restrictions.Verdict{Allowed: true}

	canceled, refund, err := s.store.CancelBooking(ctx, id)
	if err != nil {
		return CancelResult{}, fmt.Errorf("cancel booking %d: %w", id, err)
	}
	result.Booking, result.Refund = canceled, refund
	metrics.IncBookingCancelled()
	s.publish(events.BookingCanceled, canceled)

	refunded := 0
	if refund != nil {
		refunded = refund.Amount
	}
	s.logger.Info().
		Int64("booking_id", id).
		Int64("user_id", canceled.UserID).
		Int64("actor_id", actor.UserID).
		Int("refunded", refunded).
		Msg("Booking canceled")
	return result, nil
}

// Reschedule moves booking id to date and clock in the provider's zone.
func (s *Service) Reschedule(ctx context.Context, actor model.Viewer, id int64, date, clock string, now time.Time) (RescheduleResult, error) {
	b, err := s.owned(ctx, actor, id)
	if err != nil {
		return RescheduleResult{}, err
	}
	if !b.IsActive() {
		return RescheduleResult{}, db.ErrBookingNotActive
	}

	st, err := s.store.GetSessionType(ctx, b.SessionTypeID)
	if err != nil {
		return RescheduleResult{}, fmt.Errorf("load session type %d: %w", b.SessionTypeID, err)
	}
	validator, err := s.Validator(ctx, b.ProviderID)
	if err != nil {
		return RescheduleResult{}, err
	}

	newStart, err := timeutil.Combine(date, clock, validator.Location())
	if err != nil {
		return RescheduleResult{Verdict: restrictions.Deny(restrictions.BoundInput, err.Error())}, nil
	}

	result := RescheduleResult{Verdict: validator.CanReschedule(b.StartAt, newStart, *st, now)}
	if !result.Verdict.Allowed {
		for _, v := range result.Verdict.Violations {
			metrics.IncRestrictionDenied(string(v.Bound))
		}
		return result, nil
	}

	avail, err := s.availability(ctx, b.ProviderID, validator.Location())
	if err != nil {
		return RescheduleResult{}, err
	}
	ok, err := avail.fits(newStart, b.Duration())
	if err != nil {
		return RescheduleResult{}, err
	}
	if !ok {
		metrics.IncRestrictionDenied(string(restrictions.BoundAvailability))
		return RescheduleResult{Verdict: restrictions.Deny(restrictions.BoundAvailability, SkipUnavailable)}, nil
	}

	newEnd := newStart.Add(b.Duration())

	key := IdempotencyKey(b.UserID, b.ProviderID, b.SessionTypeID, newStart)
	moved, err := s.store.RescheduleBooking(ctx, id, newStart, newEnd, key)
	if err != nil {
		return RescheduleResult{}, fmt.Errorf("reschedule booking %d: %w", id, err)
	}
	result.Booking = moved
	s.publish(events.BookingRescheduled, moved)

	s.logger.Info().
		Int64("booking_id", id).
		Time("from", b.StartAt).
		Time("to", newStart).
		Msg("Booking rescheduled")
	return result, nil
}
