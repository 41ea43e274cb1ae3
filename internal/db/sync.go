package db

import (
	"context"
	"fmt"
	"time"

	"classbook/internal/config"
	"classbook/internal/model"
	"classbook/internal/recurrence"
	"classbook/internal/timeutil"
)

// SyncCatalog applies catalog.yaml to the database. It upserts providers,
// their session types, availability and classes, marks providers missing from
// the catalog inactive, and cancels class occurrences falling on holidays.
func (db *DB) SyncCatalog(ctx context.Context, cat *config.Catalog, fallback *time.Location) error {
	if cat == nil {
		return fmt.Errorf("catalog is nil")
	}

	seen := make(map[int64]struct{})
	var templates []model.EventTemplate

	for _, p := range cat.Providers {
		loc, err := p.Location(fallback)
		if err != nil {
			return fmt.Errorf("provider %d zone: %w", p.ID, err)
		}
		if err := db.UpsertProvider(ctx, p.Provider()); err != nil {
			return err
		}
		seen[p.ID] = struct{}{}

		if err := db.ReplaceAvailability(ctx, p.ID, p.Availability); err != nil {
			return fmt.Errorf("sync provider %d availability: %w", p.ID, err)
		}

		if _, err := db.ExecContext(ctx, `UPDATE session_types SET is_active = 0 WHERE provider_id = ?`, p.ID); err != nil {
			return fmt.Errorf("reset provider %d session types: %w", p.ID, err)
		}
		for _, st := range p.SessionTypes {
			st.ProviderID = p.ID
			if err := db.UpsertSessionType(ctx, st); err != nil {
				return err
			}
		}

		keep := make(map[int64]struct{}, len(p.Classes))
		for _, cl := range p.Classes {
			tmpl, err := cl.Template(p.ID, loc)
			if err != nil {
				return err
			}
			if err := db.UpsertTemplate(ctx, tmpl); err != nil {
				return err
			}
			keep[cl.ID] = struct{}{}
			templates = append(templates, tmpl)
		}
		if err := db.DeleteTemplatesNotIn(ctx, p.ID, keep); err != nil {
			return fmt.Errorf("prune provider %d classes: %w", p.ID, err)
		}
	}

	// Deactivate providers that disappeared from the catalog.
	rows, err := db.QueryContext(ctx, `SELECT id FROM providers`)
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
		if _, ok := seen[id]; !ok {
			stale = append(stale, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for _, id := range stale {
		if _, err := db.ExecContext(ctx, `UPDATE providers SET is_active = 0, updated_at = ? WHERE id = ?`, time.Now().UTC(), id); err != nil {
			return fmt.Errorf("deactivate provider %d: %w", id, err)
		}
	}

	for _, h := range cat.Holidays {
		for _, tmpl := range templates {
			day, err := timeutil.ParseDate(h.Date, tmpl.StartAt.Location())
			if err != nil {
				return fmt.Errorf("parse holiday %s: %w", h.Date, err)
			}
			override := model.InstanceOverride{
				InstanceID: recurrence.InstanceID(tmpl.ID, day),
				TemplateID: tmpl.ID,
				Cancelled:  true,
				Reason:     h.Name,
			}
			if err := db.SetOverride(ctx, override); err != nil {
				return err
			}
		}
	}

	return nil
}
