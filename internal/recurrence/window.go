package recurrence

import (
	"time"

	"classbook/internal/model"
)

// MaxWindowWeeks bounds how far past the authored start ExpandWindow reaches.
const MaxWindowWeeks = 520

const week = 7 * 24 * time.Hour

// ExpandWindow expands tmpl far enough to cover [from, to) and keeps the
// instances that overlap it. Templates authored long ago still produce the
// same instance IDs as a plain expansion from their authored start.
func (e *Expander) ExpandWindow(tmpl model.EventTemplate, from, to time.Time) (Expansion, error) {
	weeks := e.defaultHorizon
	if span := to.Sub(tmpl.StartAt); span > 0 {
		needed := int((span + week - 1) / week)
		if needed > weeks {
			weeks = needed
		}
	}
	if weeks > MaxWindowWeeks {
		weeks = MaxWindowWeeks
	}

	exp, err := e.Expand(tmpl, weeks)
	if err != nil {
		return Expansion{}, err
	}

	kept := exp.Instances[:0]
	for _, inst := range exp.Instances {
		if inst.EndAt().After(from) && inst.StartAt.Before(to) {
			kept = append(kept, inst)
		}
	}
	exp.Instances = kept
	return exp, nil
}
