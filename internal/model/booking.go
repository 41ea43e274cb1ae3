package model

import "time"

// SeriesPattern is the cadence a requester may opt into for a session.
type SeriesPattern string

const (
	SeriesWeekly   SeriesPattern = "weekly"
	SeriesBiweekly SeriesPattern = "biweekly"
	SeriesMonthly  SeriesPattern = "monthly"
)

// SeriesRecurrence asks for a booking to repeat until a date (inclusive).
type SeriesRecurrence struct {
	Pattern SeriesPattern `json:"pattern"`
	Until   string        `json:"until"` // "2006-01-02"
}

// BookingRequest is a single submission from the booking UI.
type BookingRequest struct {
	UserID      int64             `json:"user_id"`
	ProviderID  int64             `json:"provider_id"`
	SessionType SessionType       `json:"session_type"`
	Date        string            `json:"date"` // "2006-01-02"
	Time        string            `json:"time"` // "15:04"
	Recurrence  *SeriesRecurrence `json:"recurrence,omitempty"`
}

// BookingEntry is one dated occurrence produced from a request.
type BookingEntry struct {
	Occurrence int       `json:"occurrence"`
	SeriesID   string    `json:"series_id,omitempty"`
	StartAt    time.Time `json:"start_at"`
	EndAt      time.Time `json:"end_at"`
	CreditCost int       `json:"credit_cost"`
}

// BookingStatus is the lifecycle state of a persisted booking.
type BookingStatus string

const (
	StatusConfirmed BookingStatus = "confirmed"
	StatusCanceled  BookingStatus = "canceled"
	StatusCompleted BookingStatus = "completed"
)

// Booking is a persisted session booking.
type Booking struct {
	ID             int64         `json:"id"`
	UserID         int64         `json:"user_id"`
	ProviderID     int64         `json:"provider_id"`
	SessionTypeID  int64         `json:"session_type_id"`
	SeriesID       string        `json:"series_id,omitempty"`
	Occurrence     int           `json:"occurrence"`
	StartAt        time.Time     `json:"start_at"`
	EndAt          time.Time     `json:"end_at"`
	CreditCost     int           `json:"credit_cost"`
	Status         BookingStatus `json:"status"`
	IdempotencyKey string        `json:"-"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Duration returns the booked length.
func (b *Booking) Duration() time.Duration {
	return b.EndAt.Sub(b.StartAt)
}

// IsActive reports whether the booking still holds its slot.
func (b *Booking) IsActive() bool {
	return b.Status == StatusConfirmed
}

// OverlapsWith checks half-open [start, end) overlap with another booking.
func (b *Booking) OverlapsWith(other *Booking) bool {
	return b.StartAt.Before(other.EndAt) && other.StartAt.Before(b.EndAt)
}
