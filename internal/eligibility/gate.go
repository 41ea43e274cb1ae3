// Package eligibility decides whether a viewer may join an event instance.
package eligibility

import (
	"time"

	"classbook/internal/interval"
	"classbook/internal/model"
)

// Outcome is the result kind of a join decision.
type Outcome string

const (
	Admit            Outcome = "admit"
	PromptMembership Outcome = "prompt_membership"
	Deny             Outcome = "deny"
)

// ReasonNotJoinable is reported whenever the join window is closed.
const ReasonNotJoinable = "not yet joinable"

// Decision is what the gate returns for one join attempt.
type Decision struct {
	Outcome  Outcome        `json:"outcome"`
	Reason   string         `json:"reason,omitempty"`
	State    interval.State `json:"state"`
	Elevated bool           `json:"elevated"`
	// RecordAttendance asks the caller to persist an enrollment marker.
	RecordAttendance bool `json:"record_attendance"`
}

// Gate authorizes joins. It never persists anything.
type Gate struct {
	policy interval.Policy
}

// NewGate creates a gate using the given interval policy.
func NewGate(policy interval.Policy) *Gate {
	return &Gate{policy: policy}
}

// Elevated reports whether the viewer bypasses the membership check for inst.
func Elevated(viewer model.Viewer, inst model.EventInstance) bool {
	if viewer.HasRole(model.RoleAdmin) {
		return true
	}
	return viewer.HasRole(model.RoleInstructor) && viewer.UserID == inst.ProviderID
}

// Decide evaluates a join attempt at now.
func (g *Gate) Decide(viewer model.Viewer, inst model.EventInstance, now time.Time) Decision {
	d := Decision{
		State:    g.policy.Classify(inst, now),
		Elevated: Elevated(viewer, inst),
	}

	if !g.policy.CanJoinNow(inst, now) {
		d.Outcome = Deny
		d.Reason = ReasonNotJoinable
		return d
	}

	if d.Elevated || viewer.Membership.IsActiveAt(now) {
		d.Outcome = Admit
		d.RecordAttendance = true
		return d
	}

	d.Outcome = PromptMembership
	d.Reason = "active membership required"
	return d
}
