// Package classes lists class occurrences and runs the join flow.
package classes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"classbook/internal/eligibility"
	"classbook/internal/interval"
	"classbook/internal/metrics"
	"classbook/internal/model"
	"classbook/internal/recurrence"
	"classbook/internal/timeutil"
)

// ErrInstanceNotFound is returned when an instance ID is not in the current listing window.
var ErrInstanceNotFound = errors.New("class instance not found")

// Store is the persistence the service needs.
type Store interface {
	ListTemplates(ctx context.Context, providerID int64, loc *time.Location) ([]model.EventTemplate, error)
	ListOverrides(ctx context.Context, loc *time.Location) ([]model.InstanceOverride, error)
	RecordEnrollment(ctx context.Context, e *model.Enrollment) (bool, error)
}

// InstanceCache caches expansions per catalog version.
type InstanceCache interface {
	Instances(ctx context.Context, version int64, from time.Time, horizonWeeks int) ([]model.EventInstance, bool)
	StoreInstances(ctx context.Context, version int64, from time.Time, horizonWeeks int, instances []model.EventInstance)
	Version(ctx context.Context) int64
	BumpVersion(ctx context.Context) (int64, error)
}

// Listing is an occurrence annotated with its state at a given now.
type Listing struct {
	model.EventInstance
	State            interval.State `json:"state"`
	Joinable         bool           `json:"joinable"`
	JoinOpensAt      time.Time      `json:"join_opens_at"`
	CountdownSeconds int64          `json:"countdown_seconds"`
}

// JoinResult is the outcome of a join attempt.
type JoinResult struct {
	Decision eligibility.Decision `json:"decision"`
	Instance model.EventInstance  `json:"instance"`
	JoinURL  string               `json:"join_url,omitempty"`
	Recorded bool                 `json:"recorded"`
}

// Service provides class listing and joining.
type Service struct {
	store    Store
	cache    InstanceCache
	expander *recurrence.Expander
	policy   interval.Policy
	gate     *eligibility.Gate
	loc      *time.Location
	horizon  int
	logger   zerolog.Logger
}

// NewService creates a new classes service. cache may be nil.
func NewService(store Store, cache InstanceCache, policy interval.Policy, loc *time.Location, horizonWeeks int, logger zerolog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if horizonWeeks <= 0 {
		horizonWeeks = recurrence.DefaultHorizonWeeks
	}
	return &Service{
		store:    store,
		cache:    cache,
		expander: recurrence.NewExpander(horizonWeeks),
		policy:   policy,
		gate:     eligibility.NewGate(policy),
		loc:      loc,
		horizon:  horizonWeeks,
		logger:   logger.With().Str("component", "classes").Logger(),
	}
}

// Instances returns the occurrences from the day before now through the
// horizon, with overrides applied. Expired ones are still included.
func (s *Service) Instances(ctx context.Context, now time.Time) ([]model.EventInstance, error) {
	day := timeutil.StartOfDay(now.In(s.loc))

	var version int64
	if s.cache != nil {
		version = s.cache.Version(ctx)
		if cached, ok := s.cache.Instances(ctx, version, day, s.horizon); ok {
			return cached, nil
		}
	}

	templates, err := s.store.ListTemplates(ctx, 0, s.loc)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	overrides, err := s.store.ListOverrides(ctx, s.loc)
	if err != nil {
		return nil, fmt.Errorf("list overrides: %w", err)
	}

	from := day.AddDate(0, 0, -1)
	to := day.AddDate(0, 0, 7*s.horizon)

	var instances []model.EventInstance
	for _, tmpl := range templates {
		exp, err := s.expander.ExpandWindow(tmpl, from, to)
		if err != nil {
			s.logger.Error().Err(err).Int64("template_id", tmpl.ID).Msg("Skipping template that failed to expand")
			continue
		}
		for _, w := range exp.Warnings {
			s.logger.Warn().Int64("template_id", tmpl.ID).Msg(w)
		}
		instances = append(instances, exp.Instances...)
	}
	instances = recurrence.ApplyOverrides(instances, overrides)

	if s.cache != nil {
		s.cache.StoreInstances(ctx, version, day, s.horizon, instances)
	}
	return instances, nil
}

// List returns the visible occurrences at now with state and countdown.
func (s *Service) List(ctx context.Context, now time.Time) ([]Listing, error) {
	instances, err := s.Instances(ctx, now)
	if err != nil {
		return nil, err
	}

	visible := s.policy.FilterVisible(instances, now)
	listings := make([]Listing, 0, len(visible))
	for _, inst := range visible {
		listings = append(listings, s.annotate(inst, now))
	}
	return listings, nil
}

// ListForProvider is List restricted to one provider.
func (s *Service) ListForProvider(ctx context.Context, providerID int64, now time.Time) ([]Listing, error) {
	all, err := s.List(ctx, now)
	if err != nil {
		return nil, err
	}
	var out []Listing
	for _, l := range all {
		if l.ProviderID == providerID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *Service) annotate(inst model.EventInstance, now time.Time) Listing {
	return Listing{
		EventInstance:    inst,
		State:            s.policy.Classify(inst, now),
		Joinable:         s.policy.CanJoinNow(inst, now),
		JoinOpensAt:      s.policy.JoinWindowOpensAt(inst),
		CountdownSeconds: int64(s.policy.Countdown(inst, now) / time.Second),
	}
}

// Find returns the occurrence with instanceID.
func (s *Service) Find(ctx context.Context, instanceID string, now time.Time) (model.EventInstance, error) {
	instances, err := s.Instances(ctx, now)
	if err != nil {
		return model.EventInstance{}, err
	}
	for _, inst := range instances {
		if inst.InstanceID == instanceID {
			return inst, nil
		}
	}
	return model.EventInstance{}, ErrInstanceNotFound
}

// Join decides whether viewer may enter instanceID at now and, when
// admitted, records an attendance marker.
func (s *Service) Join(ctx context.Context, viewer model.Viewer, instanceID string, now time.Time) (JoinResult, error) {
	inst, err := s.Find(ctx, instanceID, now)
	if err != nil {
		return JoinResult{}, err
	}

	decision := s.gate.Decide(viewer, inst, now)
	metrics.IncJoinDecision(string(decision.Outcome))

	result := JoinResult{Decision: decision, Instance: inst}
	log := s.logger.Info().
		Int64("user_id", viewer.UserID).
		Str("instance_id", inst.InstanceID).
		Str("outcome", string(decision.Outcome)).
		Str("state", string(decision.State))

	if decision.Outcome != eligibility.Admit {
		log.Str("reason", decision.Reason).Msg("Join not admitted")
		return result, nil
	}

	result.JoinURL = inst.JoinURL
	if decision.RecordAttendance {
		recorded, err := s.store.RecordEnrollment(ctx, &model.Enrollment{
			UserID:     viewer.UserID,
			InstanceID: inst.InstanceID,
			TemplateID: inst.TemplateID,
			JoinedAt:   now,
		})
		if err != nil {
			return result, fmt.Errorf("record attendance: %w", err)
		}
		result.Recorded = recorded
	}
	log.Bool("elevated", decision.Elevated).Msg("Join admitted")
	return result, nil
}

// Invalidate drops cached expansions after a catalog or override change.
func (s *Service) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.BumpVersion(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to invalidate expansion cache")
	}
}
