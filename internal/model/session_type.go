package model

import "time"

// BookingRestrictions bound when a session type may be booked or changed.
type BookingRestrictions struct {
	MinLeadHours       int `json:"min_lead_hours" yaml:"min_lead_hours"`
	MaxAdvanceDays     int `json:"max_advance_days" yaml:"max_advance_days"`
	MinCancelHours     int `json:"min_cancel_hours" yaml:"min_cancel_hours"`
	MinRescheduleHours int `json:"min_reschedule_hours" yaml:"min_reschedule_hours"`
}

// SessionType is a bookable 1-on-1 offering of a provider.
type SessionType struct {
	ID              int64               `json:"id" yaml:"id"`
	ProviderID      int64               `json:"provider_id" yaml:"-"`
	Name            string              `json:"name" yaml:"name"`
	DurationMinutes int                 `json:"duration_minutes" yaml:"duration_minutes"`
	CreditCost      int                 `json:"credit_cost" yaml:"credit_cost"`
	AllowRecurring  bool                `json:"allow_recurring" yaml:"allow_recurring"`
	Restrictions    BookingRestrictions `json:"booking_restrictions" yaml:"booking_restrictions"`
	IsActive        bool                `json:"is_active" yaml:"is_active"`
}

// Duration is the length of one session.
func (s SessionType) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}
