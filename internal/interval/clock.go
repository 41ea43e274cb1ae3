// Package interval classifies event instances against an explicit "now".
//
// Nothing here reads the wall clock; callers poll by passing a fresh now.
package interval

import (
	"time"

	"classbook/internal/model"
)

// State is the position of now relative to an instance.
type State string

const (
	NotStarted   State = "not_started"
	Live         State = "live"
	GraceVisible State = "grace_visible"
	Expired      State = "expired"
)

const (
	DefaultGrace    = 15 * time.Minute
	DefaultJoinLead = 5 * time.Minute
)

// Policy holds the grace and join-lead windows.
type Policy struct {
	Grace    time.Duration
	JoinLead time.Duration
}

// DefaultPolicy returns the 15 minute grace and 5 minute join lead.
func DefaultPolicy() Policy {
	return Policy{Grace: DefaultGrace, JoinLead: DefaultJoinLead}
}

func (p Policy) normalized() Policy {
	if p.Grace < 0 {
		p.Grace = 0
	}
	if p.JoinLead < 0 {
		p.JoinLead = 0
	}
	return p
}

// Classify places now in [start, end) Live, [end, end+grace) GraceVisible,
// later Expired, earlier NotStarted.
func (p Policy) Classify(inst model.EventInstance, now time.Time) State {
	p = p.normalized()
	end := inst.EndAt()
	switch {
	case now.Before(inst.StartAt):
		return NotStarted
	case now.Before(end):
		return Live
	case now.Before(end.Add(p.Grace)):
		return GraceVisible
	default:
		return Expired
	}
}

// Visible reports whether the instance belongs in listings at now.
func (p Policy) Visible(inst model.EventInstance, now time.Time) bool {
	return p.Classify(inst, now) != Expired
}

// JoinWindowOpensAt returns the earliest instant a viewer may join.
func (p Policy) JoinWindowOpensAt(inst model.EventInstance) time.Time {
	return inst.StartAt.Add(-p.normalized().JoinLead)
}

// CanJoinNow reports whether now lies in [opensAt, end).
func (p Policy) CanJoinNow(inst model.EventInstance, now time.Time) bool {
	return !now.Before(p.JoinWindowOpensAt(inst)) && now.Before(inst.EndAt())
}

// Countdown returns the time left until the join window opens, zero once open.
func (p Policy) Countdown(inst model.EventInstance, now time.Time) time.Duration {
	left := p.JoinWindowOpensAt(inst).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// FilterVisible keeps the instances that are not expired at now, preserving order.
func (p Policy) FilterVisible(instances []model.EventInstance, now time.Time) []model.EventInstance {
	result := make([]model.EventInstance, 0, len(instances))
	for _, inst := range instances {
		if p.Visible(inst, now) {
			result = append(result, inst)
		}
	}
	return result
}

// Classify uses the default policy.
func Classify(inst model.EventInstance, now time.Time) State {
	return DefaultPolicy().Classify(inst, now)
}

// Visible uses the default policy.
func Visible(inst model.EventInstance, now time.Time) bool {
	return DefaultPolicy().Visible(inst, now)
}

// JoinWindowOpensAt uses the default policy.
func JoinWindowOpensAt(inst model.EventInstance) time.Time {
	return DefaultPolicy().JoinWindowOpensAt(inst)
}

// CanJoinNow uses the default policy.
func CanJoinNow(inst model.EventInstance, now time.Time) bool {
	return DefaultPolicy().CanJoinNow(inst, now)
}
