package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"classbook/internal/model"
)

// UpsertProvider creates or updates a provider.
func (db *DB) UpsertProvider(ctx context.Context, p model.Provider) error {
	now := time.Now().UTC()
	_, err := db.ExecContext(ctx, `
		INSERT INTO providers (id, name, time_zone, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			time_zone = excluded.time_zone,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`,
		p.ID, p.Name, p.TimeZone, p.IsActive, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert provider %d: %w", p.ID, err)
	}
	return nil
}

// GetProvider returns a provider by ID.
func (db *DB) GetProvider(ctx context.Context, id int64) (*model.Provider, error) {
	var p model.Provider
	var tz sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT id, name, time_zone, is_active FROM providers WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &tz, &p.IsActive)
	if err != nil {
		return nil, notFound(err)
	}
	p.TimeZone = tz.String
	return &p, nil
}

// UpsertTemplate creates or updates an event template.
func (db *DB) UpsertTemplate(ctx context.Context, t model.EventTemplate) error {
	tags, err := json.Marshal(t.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	meta, err := json.Marshal(t.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	var recurrence []byte
	if t.Recurrence != nil {
		if recurrence, err = json.Marshal(t.Recurrence); err != nil {
			return fmt.Errorf("marshal recurrence: %w", err)
		}
	}

	now := time.Now().UTC()
	_, err = db.ExecContext(ctx, `
		INSERT INTO event_templates (
			id, provider_id, name, description, start_at, duration_minutes,
			tags, join_url, recurrence, metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			provider_id = excluded.provider_id,
			name = excluded.name,
			description = excluded.description,
			start_at = excluded.start_at,
			duration_minutes = excluded.duration_minutes,
			tags = excluded.tags,
			join_url = excluded.join_url,
			recurrence = excluded.recurrence,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at`,
		t.ID, t.ProviderID, t.Name, t.Description, t.StartAt.UTC(), t.DurationMinutes,
		string(tags), t.JoinURL, nullBytes(recurrence), string(meta), now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert template %d: %w", t.ID, err)
	}
	return nil
}

// ListTemplates returns templates, optionally for one provider (providerID > 0).
// Start times come back in the provider's zone, or loc when it has none.
func (db *DB) ListTemplates(ctx context.Context, providerID int64, loc *time.Location) ([]model.EventTemplate, error) {
	query := `
		SELECT t.id, t.provider_id, t.name, t.description, t.start_at, t.duration_minutes,
		       t.tags, t.join_url, t.recurrence, t.metadata, t.created_at, t.updated_at, p.time_zone
		FROM event_templates t
		JOIN providers p ON p.id = t.provider_id`
	var args []any
	if providerID > 0 {
		query += ` WHERE t.provider_id = ?`
		args = append(args, providerID)
	}
	query += ` ORDER BY t.start_at, t.id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []model.EventTemplate
	for rows.Next() {
		t, err := scanTemplate(rows, loc)
		if err != nil {
			return nil, err
		}
		templates = append(templates, *t)
	}
	return templates, rows.Err()
}

// DeleteTemplatesNotIn removes templates of a provider missing from keep.
func (db *DB) DeleteTemplatesNotIn(ctx context.Context, providerID int64, keep map[int64]struct{}) error {
	rows, err := db.QueryContext(ctx, `SELECT id FROM event_templates WHERE provider_id = ?`, providerID)
	if err != nil {
		return err
	}
	var stale []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		if _, ok := keep[id]; !ok {
			stale = append(stale, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range stale {
		if _, err := db.ExecContext(ctx, `DELETE FROM event_templates WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete template %d: %w", id, err)
		}
	}
	return nil
}

func scanTemplate(row scanner, loc *time.Location) (*model.EventTemplate, error) {
	var t model.EventTemplate
	var description, tags, joinURL, recurrence, meta, zone sql.NullString
	if err := row.Scan(
		&t.ID, &t.ProviderID, &t.Name, &description, &t.StartAt, &t.DurationMinutes,
		&tags, &joinURL, &recurrence, &meta, &t.CreatedAt, &t.UpdatedAt, &zone,
	); err != nil {
		return nil, err
	}
	t.Description = description.String
	t.JoinURL = joinURL.String

	if zone.String != "" {
		providerLoc, err := time.LoadLocation(zone.String)
		if err != nil {
			return nil, fmt.Errorf("template %d provider zone: %w", t.ID, err)
		}
		loc = providerLoc
	}
	if loc != nil {
		t.StartAt = t.StartAt.In(loc)
	}

	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &t.Tags); err != nil {
			return nil, fmt.Errorf("template %d tags: %w", t.ID, err)
		}
	}
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &t.Metadata); err != nil {
			return nil, fmt.Errorf("template %d metadata: %w", t.ID, err)
		}
	}
	if recurrence.Valid && recurrence.String != "" {
		var p model.RecurrencePattern
		if err := json.Unmarshal([]byte(recurrence.String), &p); err != nil {
			return nil, fmt.Errorf("template %d recurrence: %w", t.ID, err)
		}
		t.Recurrence = &p
	}
	return &t, nil
}

// SetOverride stores a per-instance cancellation or reschedule.
func (db *DB) SetOverride(ctx context.Context, o model.InstanceOverride) error {
	var start any
	if o.StartAt != nil {
		start = o.StartAt.UTC()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO instance_overrides (instance_id, template_id, cancelled, start_at, duration_minutes, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(instance_id) DO UPDATE SET
			cancelled = excluded.cancelled,
			start_at = excluded.start_at,
			duration_minutes = excluded.duration_minutes,
			reason = excluded.reason`,
		o.InstanceID, o.TemplateID, o.Cancelled, start, o.DurationMinutes, o.Reason, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set override %s: %w", o.InstanceID, err)
	}
	return nil
}

// DeleteOverride restores an instance to its generated form.
func (db *DB) DeleteOverride(ctx context.Context, instanceID string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM instance_overrides WHERE instance_id = ?`, instanceID)
	return err
}

// ListOverrides returns every stored override.
func (db *DB) ListOverrides(ctx context.Context, loc *time.Location) ([]model.InstanceOverride, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT instance_id, template_id, cancelled, start_at, duration_minutes, reason, created_at
		FROM instance_overrides`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var overrides []model.InstanceOverride
	for rows.Next() {
		var o model.InstanceOverride
		var start sql.NullTime
		var reason sql.NullString
		if err := rows.Scan(&o.InstanceID, &o.TemplateID, &o.Cancelled, &start, &o.DurationMinutes, &reason, &o.CreatedAt); err != nil {
			return nil, err
		}
		if start.Valid {
			s := start.Time
			if loc != nil {
				s = s.In(loc)
			}
			o.StartAt = &s
		}
		o.Reason = reason.String
		overrides = append(overrides, o)
	}
	return overrides, rows.Err()
}

// ReplaceAvailability swaps a provider's weekly windows in one transaction.
// Nested ranges are stored as separate rows.
func (db *DB) ReplaceAvailability(ctx context.Context, providerID int64, windows []model.AvailabilityWindow) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM availability_windows WHERE provider_id = ?`, providerID); err != nil {
		return fmt.Errorf("clear availability: %w", err)
	}
	for _, w := range windows {
		for _, r := range w.TimeRanges() {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO availability_windows (provider_id, day_of_week, start_time, end_time)
				VALUES (?, ?, ?, ?)`,
				providerID, w.DayOfWeek, r.Start, r.End,
			); err != nil {
				return fmt.Errorf("insert availability: %w", err)
			}
		}
	}
	return tx.Commit()
}

// ListAvailability returns a provider's windows as flat start/end pairs.
func (db *DB) ListAvailability(ctx context.Context, providerID int64) ([]model.AvailabilityWindow, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, provider_id, day_of_week, start_time, end_time
		FROM availability_windows WHERE provider_id = ? ORDER BY id`, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var windows []model.AvailabilityWindow
	for rows.Next() {
		var w model.AvailabilityWindow
		if err := rows.Scan(&w.ID, &w.ProviderID, &w.DayOfWeek, &w.StartTime, &w.EndTime); err != nil {
			return nil, err
		}
		windows = append(windows, w)
	}
	return windows, rows.Err()
}

// UpsertSessionType creates or updates a session type.
func (db *DB) UpsertSessionType(ctx context.Context, st model.SessionType) error {
	r := st.Restrictions
	_, err := db.ExecContext(ctx, `
		INSERT INTO session_types (
			id, provider_id, name, duration_minutes, credit_cost, allow_recurring,
			min_lead_hours, max_advance_days, min_cancel_hours, min_reschedule_hours, is_active
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			provider_id = excluded.provider_id,
			name = excluded.name,
			duration_minutes = excluded.duration_minutes,
			credit_cost = excluded.credit_cost,
			allow_recurring = excluded.allow_recurring,
			min_lead_hours = excluded.min_lead_hours,
			max_advance_days = excluded.max_advance_days,
			min_cancel_hours = excluded.min_cancel_hours,
			min_reschedule_hours = excluded.min_reschedule_hours,
			is_active = excluded.is_active`,
		st.ID, st.ProviderID, st.Name, st.DurationMinutes, st.CreditCost, st.AllowRecurring,
		r.MinLeadHours, r.MaxAdvanceDays, r.MinCancelHours, r.MinRescheduleHours, st.IsActive,
	)
	if err != nil {
		return fmt.Errorf("upsert session type %d: %w", st.ID, err)
	}
	return nil
}

const sessionTypeColumns = `id, provider_id, name, duration_minutes, credit_cost, allow_recurring,
	min_lead_hours, max_advance_days, min_cancel_hours, min_reschedule_hours, is_active`

func scanSessionType(row scanner) (*model.SessionType, error) {
	var st model.SessionType
	r := &st.Restrictions
	if err := row.Scan(
		&st.ID, &st.ProviderID, &st.Name, &st.DurationMinutes, &st.CreditCost, &st.AllowRecurring,
		&r.MinLeadHours, &r.MaxAdvanceDays, &r.MinCancelHours, &r.MinRescheduleHours, &st.IsActive,
	); err != nil {
		return nil, err
	}
	return &st, nil
}

// GetSessionType returns a session type by ID.
func (db *DB) GetSessionType(ctx context.Context, id int64) (*model.SessionType, error) {
	st, err := scanSessionType(db.QueryRowContext(ctx,
		`SELECT `+sessionTypeColumns+` FROM session_types WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return st, nil
}

// ListSessionTypes returns a provider's active session types.
func (db *DB) ListSessionTypes(ctx context.Context, providerID int64) ([]model.SessionType, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+sessionTypeColumns+` FROM session_types WHERE provider_id = ? AND is_active = 1 ORDER BY id`,
		providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var types []model.SessionType
	for rows.Next() {
		st, err := scanSessionType(rows)
		if err != nil {
			return nil, err
		}
		types = append(types, *st)
	}
	return types, rows.Err()
}

func nullBytes(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}
