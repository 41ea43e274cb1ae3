package booking

import (
	"fmt"

	"classbook/internal/model"
)

// FSM holds the allowed booking status transitions.
type FSM struct {
	transitions map[model.BookingStatus][]model.BookingStatus
}

// NewFSM creates the booking lifecycle: confirmed bookings end as canceled
// or completed, and both end states are final.
func NewFSM() *FSM {
	return &FSM{
		transitions: map[model.BookingStatus][]model.BookingStatus{
			model.StatusConfirmed: {model.StatusCanceled, model.StatusCompleted},
			model.StatusCanceled:  {},
			model.StatusCompleted: {},
		},
	}
}

// CanTransition checks if transition is allowed.
func (f *FSM) CanTransition(from, to model.BookingStatus) bool {
	for _, s := range f.transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Check returns ErrInvalidTransition wrapped with the states when the move is not allowed.
func (f *FSM) Check(from, to model.BookingStatus) error {
	if !f.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// IsFinal reports whether no transition leaves s.
func (f *FSM) IsFinal(s model.BookingStatus) bool {
	next, ok := f.transitions[s]
	return ok && len(next) == 0
}
