package booking

import (
	"context"
	"fmt"
	"time"

	"classbook/internal/events"
	"classbook/internal/model"
)

// CompleteEnded marks confirmed bookings that ended by now as completed and
// returns how many changed.
func (s *Service) CompleteEnded(ctx context.Context, now time.Time) (int, error) {
	ended, err := s.store.ConfirmedBefore(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list ended bookings: %w", err)
	}

	done := 0
	for _, b := range ended {
		if err := s.fsm.Check(b.Status, model.StatusCompleted); err != nil {
			s.logger.Warn().Err(err).Int64("booking_id", b.ID).Msg("Skipping booking")
			continue
		}
		if err := s.store.UpdateBookingStatus(ctx, b.ID, model.StatusCompleted); err != nil {
			return done, fmt.Errorf("complete booking %d: %w", b.ID, err)
		}
		done++
		b.Status = model.StatusCompleted
		s.publish(events.BookingCompleted, &b)
	}
	return done, nil
}

// StartSweeper runs CompleteEnded every interval until ctx is done.
func (s *Service) StartSweeper(ctx context.Context, interval time.Duration, clock func() time.Time) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	s.logger.Info().Dur("interval", interval).Msg("Completion sweeper started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.CompleteEnded(ctx, clock())
			if err != nil {
				s.logger.Error().Err(err).Msg("Completion sweep failed")
				continue
			}
			if n > 0 {
				s.logger.Info().Int("completed", n).Msg("Bookings completed")
			}
		}
	}
}
