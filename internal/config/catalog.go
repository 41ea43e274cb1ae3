package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"classbook/internal/model"
	"classbook/internal/timeutil"
)

// ClassStartLayout is the wall-clock format of a class's first start.
const ClassStartLayout = "2006-01-02 15:04"

// ClassConfig is an authored class template.
type ClassConfig struct {
	ID              int64                    `yaml:"id"`
	Name            string                   `yaml:"name"`
	Description     string                   `yaml:"description"`
	Start           string                   `yaml:"start"` // "2025-04-14 08:00" in the provider's zone
	DurationMinutes int                      `yaml:"duration_minutes"`
	Tags            []string                 `yaml:"tags"`
	JoinURL         string                   `yaml:"join_url"`
	Recurrence      *model.RecurrencePattern `yaml:"recurrence,omitempty"`
	Metadata        map[string]string        `yaml:"metadata"`
}

// ProviderConfig is one instructor or studio with everything it offers.
type ProviderConfig struct {
	ID           int64                      `yaml:"id"`
	Name         string                     `yaml:"name"`
	TimeZone     string                     `yaml:"time_zone"`
	IsActive     bool                       `yaml:"is_active"`
	Availability []model.AvailabilityWindow `yaml:"availability"`
	SessionTypes []model.SessionType        `yaml:"session_types"`
	Classes      []ClassConfig              `yaml:"classes"`
}

// HolidayConfig closes the studio for a date; classes on it are cancelled.
type HolidayConfig struct {
	Date string `yaml:"date"` // "2025-12-25"
	Name string `yaml:"name"`
}

// Catalog is the root of catalog.yaml.
type Catalog struct {
	TimeZone  string           `yaml:"time_zone"`
	Providers []ProviderConfig `yaml:"providers"`
	Holidays  []HolidayConfig  `yaml:"holidays"`
}

// LoadCatalog loads and validates the catalog from a YAML file.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		path = "configs/catalog.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates catalog YAML.
func ParseCatalog(data []byte) (*Catalog, error) {
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := cat.Validate(); err != nil {
		return nil, fmt.Errorf("validate catalog: %w", err)
	}
	cat.applyDefaults()
	return &cat, nil
}

// Validate checks the catalog for errors.
func (c *Catalog) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("no providers defined")
	}
	if _, err := loadZone(c.TimeZone, time.UTC); err != nil {
		return fmt.Errorf("time_zone: %w", err)
	}

	providerIDs := make(map[int64]bool)
	sessionIDs := make(map[int64]bool)
	classIDs := make(map[int64]bool)

	for i, p := range c.Providers {
		prefix := fmt.Sprintf("providers[%d]", i)
		if p.ID <= 0 {
			return fmt.Errorf("%s: id must be positive, got %d", prefix, p.ID)
		}
		if providerIDs[p.ID] {
			return fmt.Errorf("%s: duplicate id %d", prefix, p.ID)
		}
		providerIDs[p.ID] = true

		if p.Name == "" {
			return fmt.Errorf("%s: name is required", prefix)
		}
		if _, err := loadZone(p.TimeZone, time.UTC); err != nil {
			return fmt.Errorf("%s.time_zone: %w", prefix, err)
		}

		for j, w := range p.Availability {
			if err := validateWindow(w, fmt.Sprintf("%s.availability[%d]", prefix, j)); err != nil {
				return err
			}
		}

		for j, st := range p.SessionTypes {
			sp := fmt.Sprintf("%s.session_types[%d]", prefix, j)
			if st.ID <= 0 {
				return fmt.Errorf("%s: id must be positive, got %d", sp, st.ID)
			}
			if sessionIDs[st.ID] {
				return fmt.Errorf("%s: duplicate id %d", sp, st.ID)
			}
			sessionIDs[st.ID] = true
			if st.Name == "" {
				return fmt.Errorf("%s: name is required", sp)
			}
			if st.DurationMinutes <= 0 {
				return fmt.Errorf("%s.duration_minutes must be positive", sp)
			}
			if st.CreditCost < 0 {
				return fmt.Errorf("%s.credit_cost cannot be negative", sp)
			}
			r := st.Restrictions
			if r.MinLeadHours < 0 || r.MaxAdvanceDays < 0 || r.MinCancelHours < 0 || r.MinRescheduleHours < 0 {
				return fmt.Errorf("%s.booking_restrictions cannot be negative", sp)
			}
		}

		for j, cl := range p.Classes {
			cp := fmt.Sprintf("%s.classes[%d]", prefix, j)
			if cl.ID <= 0 {
				return fmt.Errorf("%s: id must be positive, got %d", cp, cl.ID)
			}
			if classIDs[cl.ID] {
				return fmt.Errorf("%s: duplicate id %d", cp, cl.ID)
			}
			classIDs[cl.ID] = true
			if cl.Name == "" {
				return fmt.Errorf("%s: name is required", cp)
			}
			if cl.DurationMinutes <= 0 {
				return fmt.Errorf("%s.duration_minutes must be positive", cp)
			}
			if _, err := time.Parse(ClassStartLayout, cl.Start); err != nil {
				return fmt.Errorf("%s.start: invalid format '%s', expected YYYY-MM-DD HH:MM", cp, cl.Start)
			}
			if rp := cl.Recurrence; rp != nil && rp.IsRecurring {
				switch rp.Frequency {
				case model.FrequencyDaily, model.FrequencyWeekly:
				default:
					return fmt.Errorf("%s.recurrence.frequency: unknown value '%s'", cp, rp.Frequency)
				}
				for k, d := range rp.DaysOfWeek {
					if d < 0 || d > 6 {
						return fmt.Errorf("%s.recurrence.days_of_week[%d]: invalid day %d, must be 0-6 (0=Sun)", cp, k, d)
					}
				}
			}
		}
	}

	for i, h := range c.Holidays {
		if _, err := time.Parse(timeutil.DateLayout, h.Date); err != nil {
			return fmt.Errorf("holiday[%d]: invalid date format '%s', expected YYYY-MM-DD", i, h.Date)
		}
	}

	return nil
}

func validateWindow(w model.AvailabilityWindow, prefix string) error {
	if _, err := timeutil.ParseWeekday(w.DayOfWeek); err != nil {
		return fmt.Errorf("%s.day: %w", prefix, err)
	}
	ranges := w.TimeRanges()
	if len(ranges) == 0 {
		return fmt.Errorf("%s: start/end or ranges are required", prefix)
	}
	for k, r := range ranges {
		start, err := timeutil.ParseClock(r.Start)
		if err != nil {
			return fmt.Errorf("%s range %d: invalid start '%s', expected HH:MM", prefix, k, r.Start)
		}
		end, err := timeutil.ParseClock(r.End)
		if err != nil {
			return fmt.Errorf("%s range %d: invalid end '%s', expected HH:MM", prefix, k, r.End)
		}
		if end <= start {
			return fmt.Errorf("%s range %d: end must be after start", prefix, k)
		}
	}
	return nil
}

func (c *Catalog) applyDefaults() {
	for i := range c.Providers {
		p := &c.Providers[i]
		if p.TimeZone == "" {
			p.TimeZone = c.TimeZone
		}
		for j := range p.SessionTypes {
			p.SessionTypes[j].ProviderID = p.ID
		}
		for j := range p.Availability {
			p.Availability[j].ProviderID = p.ID
			p.Availability[j].DayOfWeek = strings.ToLower(strings.TrimSpace(p.Availability[j].DayOfWeek))
		}
	}
}

// Location resolves a provider's zone, falling back to fallback when unset.
func (p ProviderConfig) Location(fallback *time.Location) (*time.Location, error) {
	return loadZone(p.TimeZone, fallback)
}

// Provider converts the entry to its model form.
func (p ProviderConfig) Provider() model.Provider {
	return model.Provider{ID: p.ID, Name: p.Name, TimeZone: p.TimeZone, IsActive: p.IsActive}
}

// Template converts a class entry into a template anchored in loc.
func (cl ClassConfig) Template(providerID int64, loc *time.Location) (model.EventTemplate, error) {
	start, err := time.ParseInLocation(ClassStartLayout, cl.Start, loc)
	if err != nil {
		return model.EventTemplate{}, fmt.Errorf("class %d start: %w", cl.ID, err)
	}
	return model.EventTemplate{
		ID:              cl.ID,
		Name:            cl.Name,
		ProviderID:      providerID,
		Description:     cl.Description,
		StartAt:         start,
		DurationMinutes: cl.DurationMinutes,
		Tags:            cl.Tags,
		JoinURL:         cl.JoinURL,
		Recurrence:      cl.Recurrence,
		Metadata:        cl.Metadata,
	}, nil
}

// ProviderByID returns the provider entry with the given id.
func (c *Catalog) ProviderByID(id int64) *ProviderConfig {
	for i := range c.Providers {
		if c.Providers[i].ID == id {
			return &c.Providers[i]
		}
	}
	return nil
}

// IsHoliday checks if a date is a holiday.
func (c *Catalog) IsHoliday(date time.Time) (bool, string) {
	dateStr := date.Format(timeutil.DateLayout)
	for _, h := range c.Holidays {
		if h.Date == dateStr {
			return true, h.Name
		}
	}
	return false, ""
}

// String returns a summary of the catalog.
func (c *Catalog) String() string {
	classes, sessions := 0, 0
	for _, p := range c.Providers {
		classes += len(p.Classes)
		sessions += len(p.SessionTypes)
	}
	return fmt.Sprintf("Catalog: %d providers, %d classes, %d session types, %d holidays",
		len(c.Providers), classes, sessions, len(c.Holidays))
}

func loadZone(name string, fallback *time.Location) (*time.Location, error) {
	if name == "" {
		return fallback, nil
	}
	return time.LoadLocation(name)
}
