package recurrence

import "classbook/internal/model"

// ApplyOverrides merges per-occurrence exceptions into an expansion: cancelled
// occurrences are dropped, moved ones take the override's start or duration.
// Overrides for instances outside the list are ignored.
func ApplyOverrides(instances []model.EventInstance, overrides []model.InstanceOverride) []model.EventInstance {
	if len(overrides) == 0 {
		return instances
	}

	byID := make(map[string]model.InstanceOverride, len(overrides))
	for _, o := range overrides {
		byID[o.InstanceID] = o
	}

	result := make([]model.EventInstance, 0, len(instances))
	for _, inst := range instances {
		o, ok := byID[inst.InstanceID]
		if !ok {
			result = append(result, inst)
			continue
		}
		if o.Cancelled {
			continue
		}
		if o.StartAt != nil {
			inst.StartAt = o.StartAt.In(inst.StartAt.Location())
			inst.Rescheduled = true
		}
		if o.DurationMinutes > 0 {
			inst.DurationMinutes = o.DurationMinutes
			inst.Rescheduled = true
		}
		result = append(result, inst)
	}

	sortInstances(result)
	return result
}

// ExpandAll expands every template and merges the listed overrides. Warnings
// of all templates are concatenated. A template that fails to expand is
// skipped and its error returned alongside the partial result.
func (e *Expander) ExpandAll(templates []model.EventTemplate, horizonWeeks int, overrides []model.InstanceOverride) (Expansion, []error) {
	var (
		out  Expansion
		errs []error
	)
	for _, tmpl := range templates {
		exp, err := e.Expand(tmpl, horizonWeeks)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out.Instances = append(out.Instances, exp.Instances...)
		out.Warnings = append(out.Warnings, exp.Warnings...)
	}
	out.Instances = ApplyOverrides(out.Instances, overrides)
	sortInstances(out.Instances)
	return out, errs
}
