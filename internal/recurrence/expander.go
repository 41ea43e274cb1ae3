// Package recurrence expands authored class templates into dated instances.
package recurrence

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"classbook/internal/model"
	"classbook/internal/timeutil"

	"github.com/google/uuid"
	"github.com/teambition/rrule-go"
)

// DefaultHorizonWeeks is used when the caller passes a non-positive horizon.
const DefaultHorizonWeeks = 4

// ErrInvalidDuration indicates the template duration is not positive.
var ErrInvalidDuration = errors.New("recurrence: template duration must be positive")

var instanceNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("classbook:event-instance"))

// rrule-go indexes weekdays from Monday; time.Weekday from Sunday.
var rruleWeekdays = [7]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

// Expansion is the result of expanding one template.
type Expansion struct {
	Instances []model.EventInstance
	// Warnings lists malformed-pattern degradations; callers log them.
	Warnings []string
}

// Expander expands templates over a bounded horizon.
type Expander struct {
	defaultHorizon int
}

// NewExpander creates an expander. Non-positive defaultHorizonWeeks falls back to 4.
func NewExpander(defaultHorizonWeeks int) *Expander {
	if defaultHorizonWeeks <= 0 {
		defaultHorizonWeeks = DefaultHorizonWeeks
	}
	return &Expander{defaultHorizon: defaultHorizonWeeks}
}

// InstanceID derives the stable identifier of the occurrence of templateID on date.
func InstanceID(templateID int64, date time.Time) string {
	key := fmt.Sprintf("%d/%s", templateID, date.Format(timeutil.DateLayout))
	return uuid.NewSHA1(instanceNamespace, []byte(key)).String()
}

// Expand turns tmpl into a sorted list of instances covering horizonWeeks
// weeks from the authored start. The authored occurrence is always present once.
func (e *Expander) Expand(tmpl model.EventTemplate, horizonWeeks int) (Expansion, error) {
	if tmpl.DurationMinutes <= 0 {
		return Expansion{}, ErrInvalidDuration
	}
	if horizonWeeks <= 0 {
		horizonWeeks = e.defaultHorizon
	}

	var out Expansion
	starts := []time.Time{tmpl.StartAt}

	rule, warning := ruleOptions(tmpl, horizonWeeks)
	if warning != "" {
		out.Warnings = append(out.Warnings, warning)
	}
	if rule != nil {
		r, err := rrule.NewRRule(*rule)
		if err != nil {
			return Expansion{}, fmt.Errorf("build rrule for template %d: %w", tmpl.ID, err)
		}
		starts = append(starts, r.All()...)
	}

	out.Instances = buildInstances(tmpl, starts)
	return out, nil
}

func ruleOptions(tmpl model.EventTemplate, horizonWeeks int) (*rrule.ROption, string) {
	p := tmpl.Recurrence
	if p == nil || !p.IsRecurring {
		return nil, ""
	}

	// Until is inclusive in rrule; stop one second before base + 7*h days.
	until := tmpl.StartAt.AddDate(0, 0, 7*horizonWeeks).Add(-time.Second)
	opt := rrule.ROption{
		Interval: 1,
		Dtstart:  tmpl.StartAt,
		Until:    until,
	}

	switch p.Frequency {
	case model.FrequencyDaily:
		opt.Freq = rrule.DAILY
		return &opt, ""
	case model.FrequencyWeekly:
		days := weekdays(p.DaysOfWeek)
		if len(days) == 0 {
			return nil, fmt.Sprintf("template %d: weekly recurrence without valid days_of_week, treated as single occurrence", tmpl.ID)
		}
		opt.Freq = rrule.WEEKLY
		opt.Byweekday = days
		return &opt, ""
	default:
		return nil, fmt.Sprintf("template %d: unknown recurrence frequency %q, treated as single occurrence", tmpl.ID, p.Frequency)
	}
}

func weekdays(days []int) []rrule.Weekday {
	seen := make(map[int]bool, len(days))
	result := make([]rrule.Weekday, 0, len(days))
	for _, d := range days {
		if d < 0 || d > 6 || seen[d] {
			continue
		}
		seen[d] = true
		result = append(result, rruleWeekdays[d])
	}
	return result
}

func buildInstances(tmpl model.EventTemplate, starts []time.Time) []model.EventInstance {
	loc := tmpl.StartAt.Location()
	seen := make(map[int64]bool, len(starts))
	instances := make([]model.EventInstance, 0, len(starts))

	for _, start := range starts {
		start = start.In(loc)
		key := start.Unix()
		if seen[key] {
			continue
		}
		seen[key] = true
		instances = append(instances, instanceAt(tmpl, start))
	}

	sortInstances(instances)
	return instances
}

func instanceAt(tmpl model.EventTemplate, start time.Time) model.EventInstance {
	return model.EventInstance{
		InstanceID:      InstanceID(tmpl.ID, start),
		TemplateID:      tmpl.ID,
		ProviderID:      tmpl.ProviderID,
		Name:            tmpl.Name,
		Description:     tmpl.Description,
		StartAt:         start,
		DurationMinutes: tmpl.DurationMinutes,
		Tags:            tmpl.Tags,
		JoinURL:         tmpl.JoinURL,
		Metadata:        tmpl.Metadata,
	}
}

func sortInstances(instances []model.EventInstance) {
	sort.SliceStable(instances, func(i, j int) bool {
		return instances[i].StartAt.Before(instances[j].StartAt)
	})
}
