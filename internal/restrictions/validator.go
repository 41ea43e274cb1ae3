// Package restrictions enforces lead-time and advance-window booking rules.
package restrictions

import (
	"fmt"
	"time"

	"classbook/internal/model"
	"classbook/internal/timeutil"
)

// DefaultMaxAdvanceDays applies when a session type leaves the bound unset.
const DefaultMaxAdvanceDays = 30

// Bound names the rule a candidate violated.
type Bound string

const (
	BoundInput      Bound = "input"
	BoundLeadTime   Bound = "lead_time"
	BoundAdvance    Bound = "advance_window"
	BoundCancel     Bound = "cancel_window"
	BoundReschedule Bound = "reschedule_window"
	// BoundAvailability is checked by callers that know the provider's windows.
	BoundAvailability Bound = "availability"
)

// Violation is one failed bound with a user-facing message.
type Violation struct {
	Bound   Bound  `json:"bound"`
	Message string `json:"message"`
}

// Verdict is the outcome of a restriction check. Reason repeats the first
// violation's message.
type Verdict struct {
	Allowed    bool        `json:"allowed"`
	Violations []Violation `json:"violations,omitempty"`
	Reason     string      `json:"reason,omitempty"`
}

func (v *Verdict) add(b Bound, msg string) {
	v.Violations = append(v.Violations, Violation{Bound: b, Message: msg})
	if v.Reason == "" {
		v.Reason = msg
	}
	v.Allowed = false
}

// Deny builds a verdict rejecting a candidate on bound b.
func Deny(b Bound, msg string) Verdict {
	var v Verdict
	v.add(b, msg)
	return v
}

// Validator evaluates candidates in a fixed location.
type Validator struct {
	loc               *time.Location
	defaultMaxAdvance int
}

// NewValidator creates a validator. defaultMaxAdvanceDays <= 0 means 30.
func NewValidator(loc *time.Location, defaultMaxAdvanceDays int) *Validator {
	if loc == nil {
		loc = time.Local
	}
	if defaultMaxAdvanceDays <= 0 {
		defaultMaxAdvanceDays = DefaultMaxAdvanceDays
	}
	return &Validator{loc: loc, defaultMaxAdvance: defaultMaxAdvanceDays}
}

// Location returns the zone candidates are combined in.
func (v *Validator) Location() *time.Location {
	return v.loc
}

// Check combines date and clock and evaluates both bounds.
func (v *Validator) Check(date, clock string, st model.SessionType, now time.Time) Verdict {
	candidate, err := timeutil.Combine(date, clock, v.loc)
	if err != nil {
		verdict := Verdict{}
		verdict.add(BoundInput, err.Error())
		return verdict
	}
	return v.CheckAt(candidate, st, now)
}

// CheckAt evaluates both bounds for an already combined instant.
func (v *Validator) CheckAt(candidate time.Time, st model.SessionType, now time.Time) Verdict {
	verdict := Verdict{Allowed: true}
	ahead := candidate.Sub(now)

	lead := time.Duration(st.Restrictions.MinLeadHours) * time.Hour
	if ahead < lead {
		verdict.add(BoundLeadTime, fmt.Sprintf("must book at least %d hours ahead", st.Restrictions.MinLeadHours))
	}

	days := v.maxAdvanceDays(st)
	if ahead > time.Duration(days)*24*time.Hour {
		verdict.add(BoundAdvance, fmt.Sprintf("cannot book more than %d days ahead", days))
	}

	return verdict
}

// IsAllowed reports whether date and clock pass every bound.
func (v *Validator) IsAllowed(date, clock string, st model.SessionType, now time.Time) bool {
	return v.Check(date, clock, st, now).Allowed
}

// ReasonIfDenied returns the first failed bound's message, or "".
func (v *Validator) ReasonIfDenied(date, clock string, st model.SessionType, now time.Time) string {
	return v.Check(date, clock, st, now).Reason
}

// ReasonAt is ReasonIfDenied for an instant.
func (v *Validator) ReasonAt(candidate time.Time, st model.SessionType, now time.Time) string {
	return v.CheckAt(candidate, st, now).Reason
}

// CanCancel checks the cancellation window against the booked start.
func (v *Validator) CanCancel(start time.Time, st model.SessionType, now time.Time) Verdict {
	verdict := Verdict{Allowed: true}
	hours := st.Restrictions.MinCancelHours
	if start.Sub(now) < time.Duration(hours)*time.Hour {
		verdict.add(BoundCancel, cutoffMessage("cancel", hours))
	}
	return verdict
}

// CanReschedule checks the reschedule window against the booked start and
// both booking bounds against the new start.
func (v *Validator) CanReschedule(start, newStart time.Time, st model.SessionType, now time.Time) Verdict {
	verdict := Verdict{Allowed: true}
	hours := st.Restrictions.MinRescheduleHours
	if start.Sub(now) < time.Duration(hours)*time.Hour {
		verdict.add(BoundReschedule, cutoffMessage("reschedule", hours))
	}
	for _, viol := range v.CheckAt(newStart, st, now).Violations {
		verdict.add(viol.Bound, viol.Message)
	}
	return verdict
}

func (v *Validator) maxAdvanceDays(st model.SessionType) int {
	if st.Restrictions.MaxAdvanceDays > 0 {
		return st.Restrictions.MaxAdvanceDays
	}
	return v.defaultMaxAdvance
}

func cutoffMessage(action string, hours int) string {
	if hours <= 0 {
		return fmt.Sprintf("cannot %s a session that has already started", action)
	}
	return fmt.Sprintf("must %s at least %d hours before the start", action, hours)
}
