package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"classbook/internal/credits"
	"classbook/internal/model"
)

// ErrBookingNotActive is returned when changing a booking that is no longer confirmed.
var ErrBookingNotActive = errors.New("booking is not active")

// BookingFilter narrows ListBookings. Zero fields are ignored.
type BookingFilter struct {
	UserID     int64
	ProviderID int64
	SeriesID   string
	From       time.Time
	To         time.Time
}

const bookingColumns = `id, user_id, provider_id, session_type_id, series_id, occurrence,
	start_at, end_at, credit_cost, status, idempotency_key, created_at, updated_at`

func scanBooking(row scanner) (*model.Booking, error) {
	var b model.Booking
	var seriesID sql.NullString
	if err := row.Scan(
		&b.ID, &b.UserID, &b.ProviderID, &b.SessionTypeID, &seriesID, &b.Occurrence,
		&b.StartAt, &b.EndAt, &b.CreditCost, &b.Status, &b.IdempotencyKey, &b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		return nil, err
	}
	b.SeriesID = seriesID.String
	return &b, nil
}

// CreateBooking inserts a confirmed booking and debits its cost in one
// transaction. The idempotency key, the provider's overlapping bookings and
// the balance are all checked inside the transaction, in that order.
func (db *DB) CreateBooking(ctx context.Context, b *model.Booking) error {
	if b == nil {
		return fmt.Errorf("booking is nil")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var dup int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bookings WHERE idempotency_key = ?`, b.IdempotencyKey,
	).Scan(&dup); err != nil {
		return fmt.Errorf("check idempotency key: %w", err)
	}
	if dup > 0 {
		return ErrDuplicateBooking
	}

	taken, err := slotBooked(ctx, tx, b.ProviderID, b.StartAt, b.EndAt, 0)
	if err != nil {
		return err
	}
	if taken {
		return ErrSlotTaken
	}

	balance, err := balanceTx(ctx, tx, b.UserID)
	if err != nil {
		return err
	}
	if auth := credits.Authorize(balance, b.CreditCost); !auth.Authorized {
		return fmt.Errorf("%w: short by %d", ErrInsufficientFunds, auth.Shortfall)
	}

	now := time.Now().UTC()
	if b.Status == "" {
		b.Status = model.StatusConfirmed
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO bookings (
			user_id, provider_id, session_type_id, series_id, occurrence,
			start_at, end_at, credit_cost, status, idempotency_key, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.UserID, b.ProviderID, b.SessionTypeID, nullString(b.SeriesID), b.Occurrence,
		b.StartAt.UTC(), b.EndAt.UTC(), b.CreditCost, b.Status, b.IdempotencyKey, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateBooking
		}
		return fmt.Errorf("insert booking: %w", err)
	}
	if b.ID, err = res.LastInsertId(); err != nil {
		return err
	}

	if b.CreditCost > 0 {
		usage := credits.Usage(b.UserID, b.ID, b.CreditCost, now)
		if err := insertTransaction(ctx, tx, &usage); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	b.CreatedAt, b.UpdatedAt = now, now
	return nil
}

// GetBooking returns a booking by ID.
func (db *DB) GetBooking(ctx context.Context, id int64) (*model.Booking, error) {
	b, err := scanBooking(db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return b, nil
}

// ListBookings returns bookings matching f ordered by start.
func (db *DB) ListBookings(ctx context.Context, f BookingFilter) ([]model.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE 1 = 1`
	var args []any
	if f.UserID > 0 {
		query += ` AND user_id = ?`
		args = append(args, f.UserID)
	}
	if f.ProviderID > 0 {
		query += ` AND provider_id = ?`
		args = append(args, f.ProviderID)
	}
	if f.SeriesID != "" {
		query += ` AND series_id = ?`
		args = append(args, f.SeriesID)
	}
	if !f.From.IsZero() {
		query += ` AND start_at >= ?`
		args = append(args, f.From.UTC())
	}
	if !f.To.IsZero() {
		query += ` AND start_at < ?`
		args = append(args, f.To.UTC())
	}
	query += ` ORDER BY start_at, id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

// IsSlotBooked checks if a provider has a confirmed booking overlapping [start, end).
func (db *DB) IsSlotBooked(ctx context.Context, providerID int64, start, end time.Time) (bool, error) {
	return db.IsSlotBookedExcept(ctx, providerID, start, end, 0)
}

// IsSlotBookedExcept is IsSlotBooked ignoring booking exceptID.
func (db *DB) IsSlotBookedExcept(ctx context.Context, providerID int64, start, end time.Time, exceptID int64) (bool, error) {
	return slotBooked(ctx, db.DB, providerID, start, end, exceptID)
}

func slotBooked(ctx context.Context, ex execer, providerID int64, start, end time.Time, exceptID int64) (bool, error) {
	var count int
	err := ex.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM bookings
		WHERE provider_id = ?
		AND start_at < ? AND end_at > ?
		AND status = 'confirmed'
		AND id != ?`,
		providerID, end.UTC(), start.UTC(), exceptID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check slot: %w", err)
	}
	return count > 0, nil
}

// CancelBooking marks a booking canceled and credits back what it cost.
func (db *DB) CancelBooking(ctx context.Context, id int64) (*model.Booking, *model.CreditTransaction, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	b, err := scanBooking(tx.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id))
	if err != nil {
		return nil, nil, notFound(err)
	}
	if !b.IsActive() {
		return nil, nil, ErrBookingNotActive
	}

	now := time.Now().UTC()
	// The key is released so the same slot can be booked again.
	releasedKey := fmt.Sprintf("%s#canceled-%d", b.IdempotencyKey, b.ID)
	if _, err := tx.ExecContext(ctx,
		`UPDATE bookings SET status = ?, idempotency_key = ?, updated_at = ? WHERE id = ?`,
		model.StatusCanceled, releasedKey, now, id,
	); err != nil {
		return nil, nil, fmt.Errorf("cancel booking %d: %w", id, err)
	}
	b.Status = model.StatusCanceled
	b.IdempotencyKey = releasedKey
	b.UpdatedAt = now

	var refund *model.CreditTransaction
	var debited int
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(-SUM(amount), 0) FROM credit_transactions
		WHERE booking_id = ? AND kind IN ('usage', 'refund')`, id,
	).Scan(&debited)
	if err != nil {
		return nil, nil, fmt.Errorf("load debit for booking %d: %w", id, err)
	}
	if debited > 0 {
		r := credits.Refund(credits.Usage(b.UserID, b.ID, debited, now), now)
		if err := insertTransaction(ctx, tx, &r); err != nil {
			return nil, nil, err
		}
		refund = &r
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return b, refund, nil
}

// RescheduleBooking moves a confirmed booking to a new interval. The move is
// rejected with ErrSlotTaken when another confirmed booking of the provider
// overlaps it.
func (db *DB) RescheduleBooking(ctx context.Context, id int64, start, end time.Time, idempotencyKey string) (*model.Booking, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	b, err := scanBooking(tx.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err)
	}
	if !b.IsActive() {
		return nil, ErrBookingNotActive
	}

	taken, err := slotBooked(ctx, tx, b.ProviderID, start, end, id)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrSlotTaken
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		UPDATE bookings SET start_at = ?, end_at = ?, idempotency_key = ?, updated_at = ?
		WHERE id = ?`,
		start.UTC(), end.UTC(), idempotencyKey, now, id,
	); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateBooking
		}
		return nil, fmt.Errorf("reschedule booking %d: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	b.StartAt, b.EndAt = start.UTC(), end.UTC()
	b.IdempotencyKey = idempotencyKey
	b.UpdatedAt = now
	return b, nil
}

// UpdateBookingStatus sets the status of a booking.
func (db *DB) UpdateBookingStatus(ctx context.Context, id int64, status model.BookingStatus) error {
	res, err := db.ExecContext(ctx,
		`UPDATE bookings SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ConfirmedBefore returns confirmed bookings that ended before t.
func (db *DB) ConfirmedBefore(ctx context.Context, t time.Time) ([]model.Booking, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE status = 'confirmed' AND end_at <= ? ORDER BY end_at`,
		t.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
