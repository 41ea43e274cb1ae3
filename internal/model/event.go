package model

import "time"

// Frequency is the recurrence cadence of a class template.
type Frequency string

const (
	FrequencyDaily  Frequency = "daily"
	FrequencyWeekly Frequency = "weekly"
)

// RecurrencePattern describes how a template repeats.
type RecurrencePattern struct {
	IsRecurring bool      `json:"is_recurring" yaml:"is_recurring"`
	DaysOfWeek  []int     `json:"days_of_week" yaml:"days_of_week"` // 0-6 (Sunday-Saturday)
	Frequency   Frequency `json:"frequency" yaml:"frequency"`
}

// EventTemplate is the authored, non-dated definition of a class.
type EventTemplate struct {
	ID              int64              `json:"id"`
	Name            string             `json:"name"`
	ProviderID      int64              `json:"provider_id"`
	Description     string             `json:"description"`
	StartAt         time.Time          `json:"start_at"`
	DurationMinutes int                `json:"duration_minutes"`
	Tags            []string           `json:"tags,omitempty"`
	JoinURL         string             `json:"join_url,omitempty"`
	Recurrence      *RecurrencePattern `json:"recurrence,omitempty"`
	Metadata        map[string]string  `json:"metadata,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// Duration returns the class length.
func (t EventTemplate) Duration() time.Duration {
	return time.Duration(t.DurationMinutes) * time.Minute
}

// EventInstance is one concrete, dated occurrence of a template.
type EventInstance struct {
	InstanceID      string            `json:"instance_id"`
	TemplateID      int64             `json:"template_id"`
	ProviderID      int64             `json:"provider_id"`
	Name            string            `json:"name"`
	Description     string            `json:"description,omitempty"`
	StartAt         time.Time         `json:"start_at"`
	DurationMinutes int               `json:"duration_minutes"`
	Tags            []string          `json:"tags,omitempty"`
	JoinURL         string            `json:"join_url,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	Rescheduled     bool              `json:"rescheduled,omitempty"`
}

// Duration returns the occurrence length.
func (i EventInstance) Duration() time.Duration {
	return time.Duration(i.DurationMinutes) * time.Minute
}

// EndAt returns the exclusive end of the occurrence.
func (i EventInstance) EndAt() time.Time {
	return i.StartAt.Add(i.Duration())
}

// InstanceOverride is a per-occurrence exception merged after expansion.
type InstanceOverride struct {
	InstanceID      string     `json:"instance_id"`
	TemplateID      int64      `json:"template_id"`
	Cancelled       bool       `json:"cancelled"`
	StartAt         *time.Time `json:"start_at,omitempty"`
	DurationMinutes int        `json:"duration_minutes,omitempty"`
	Reason          string     `json:"reason,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Enrollment marks that a viewer was admitted into an occurrence.
type Enrollment struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	InstanceID string    `json:"instance_id"`
	TemplateID int64     `json:"template_id"`
	JoinedAt   time.Time `json:"joined_at"`
}
