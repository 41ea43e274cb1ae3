package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"classbook/internal/model"
)

// SetMembership stores a user's membership state.
func (db *DB) SetMembership(ctx context.Context, userID int64, m model.Membership) error {
	var expires any
	if m.ExpiresAt != nil {
		expires = m.ExpiresAt.UTC()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO memberships (user_id, active, expires_at, tier, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			active = excluded.active,
			expires_at = excluded.expires_at,
			tier = excluded.tier,
			updated_at = excluded.updated_at`,
		userID, m.Active, expires, m.Tier, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set membership for user %d: %w", userID, err)
	}
	return nil
}

// GetMembership returns a user's membership, inactive when none is stored.
func (db *DB) GetMembership(ctx context.Context, userID int64) (model.Membership, error) {
	var m model.Membership
	var expires sql.NullTime
	var tier sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT active, expires_at, tier FROM memberships WHERE user_id = ?`, userID,
	).Scan(&m.Active, &expires, &tier)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Membership{}, nil
	}
	if err != nil {
		return model.Membership{}, err
	}
	if expires.Valid {
		t := expires.Time
		m.ExpiresAt = &t
	}
	m.Tier = tier.String
	return m, nil
}

// LoadViewer assembles a viewer from stored membership and balance. Roles
// come from the authentication boundary and are passed through.
func (db *DB) LoadViewer(ctx context.Context, userID int64, roles []model.Role) (model.Viewer, error) {
	m, err := db.GetMembership(ctx, userID)
	if err != nil {
		return model.Viewer{}, err
	}
	balance, err := db.Balance(ctx, userID)
	if err != nil {
		return model.Viewer{}, err
	}
	return model.Viewer{UserID: userID, Roles: roles, Membership: m, Credits: balance}, nil
}

// RecordEnrollment stores an attendance marker. A repeated join for the same
// instance is a no-op and reports created=false.
func (db *DB) RecordEnrollment(ctx context.Context, e *model.Enrollment) (bool, error) {
	res, err := db.ExecContext(ctx, `
		INSERT OR IGNORE INTO enrollments (user_id, instance_id, template_id, joined_at)
		VALUES (?, ?, ?, ?)`,
		e.UserID, e.InstanceID, e.TemplateID, e.JoinedAt.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("record enrollment: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		e.ID, _ = res.LastInsertId()
	}
	return n > 0, nil
}

// ListEnrollments returns the viewers admitted into an instance.
func (db *DB) ListEnrollments(ctx context.Context, instanceID string) ([]model.Enrollment, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, user_id, instance_id, template_id, joined_at
		FROM enrollments WHERE instance_id = ? ORDER BY joined_at`, instanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Enrollment
	for rows.Next() {
		var e model.Enrollment
		if err := rows.Scan(&e.ID, &e.UserID, &e.InstanceID, &e.TemplateID, &e.JoinedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
