// Package config loads the service configuration and the provider catalog.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Address        string  `yaml:"address"`
		RateLimitRPS   float64 `yaml:"rate_limit_rps"`
		RateLimitBurst int     `yaml:"rate_limit_burst"`

		// TrustUserIDParam accepts user_id from the body or query when the
		// gateway header is absent. Only for deployments without a gateway.
		TrustUserIDParam bool `yaml:"trust_user_id_param"`
	} `yaml:"server"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Backup BackupConfig `yaml:"backup"`

	Redis struct {
		Address         string `yaml:"address"`
		Password        string `yaml:"password"`
		DB              int    `yaml:"db"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	} `yaml:"redis"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Catalog struct {
		Path          string `yaml:"path"`
		ReloadSeconds int    `yaml:"reload_seconds"`
	} `yaml:"catalog"`

	Schedule struct {
		TimeZone                string `yaml:"time_zone"`
		GraceMinutes            int    `yaml:"grace_minutes"`
		JoinLeadMinutes         int    `yaml:"join_lead_minutes"`
		SlotGranularityMinutes  int    `yaml:"slot_granularity_minutes"`
		HorizonWeeks            int    `yaml:"horizon_weeks"`
		MaxAdvanceDays          int    `yaml:"max_advance_days"`
		CompleteIntervalMinutes int    `yaml:"complete_interval_minutes"`
	} `yaml:"schedule"`

	Audit struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"audit"`

	Logging struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"logging"`
}

// BackupConfig controls the periodic SQLite snapshot.
type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	IntervalHours int    `yaml:"interval_hours"`
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/classbook.db"
	}
	if cfg.Catalog.Path == "" {
		cfg.Catalog.Path = "configs/catalog.yaml"
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Audit.Path == "" {
		cfg.Audit.Path = "data/audit"
	}

	if _, err := cfg.Location(); err != nil {
		return nil, err
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Location resolves the studio time zone, UTC when unset.
func (c *Config) Location() (*time.Location, error) {
	if c.Schedule.TimeZone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Schedule.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("schedule.time_zone %q: %w", c.Schedule.TimeZone, err)
	}
	return loc, nil
}

func (c *Config) Grace() time.Duration {
	if c.Schedule.GraceMinutes <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(c.Schedule.GraceMinutes) * time.Minute
}

func (c *Config) JoinLead() time.Duration {
	if c.Schedule.JoinLeadMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Schedule.JoinLeadMinutes) * time.Minute
}

func (c *Config) SlotGranularity() int {
	if c.Schedule.SlotGranularityMinutes <= 0 {
		return 15
	}
	return c.Schedule.SlotGranularityMinutes
}

func (c *Config) HorizonWeeks() int {
	if c.Schedule.HorizonWeeks <= 0 {
		return 4
	}
	return c.Schedule.HorizonWeeks
}

func (c *Config) MaxAdvanceDays() int {
	if c.Schedule.MaxAdvanceDays <= 0 {
		return 30
	}
	return c.Schedule.MaxAdvanceDays
}

func (c *Config) CompleteInterval() time.Duration {
	if c.Schedule.CompleteIntervalMinutes <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.Schedule.CompleteIntervalMinutes) * time.Minute
}

func (c *Config) CacheTTL() time.Duration {
	if c.Redis.CacheTTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Redis.CacheTTLSeconds) * time.Second
}

func (c *Config) CatalogReloadInterval() time.Duration {
	if c.Catalog.ReloadSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Catalog.ReloadSeconds) * time.Second
}

func (c *Config) BackupInterval() time.Duration {
	if c.Backup.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Backup.IntervalHours) * time.Hour
}
