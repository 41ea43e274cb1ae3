package model

// Provider is an instructor or studio offering classes and sessions.
type Provider struct {
	ID       int64  `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	TimeZone string `json:"time_zone,omitempty" yaml:"time_zone"`
	IsActive bool   `json:"is_active" yaml:"is_active"`
}
