package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/notification"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/preference"
)

var _ preference.Repo = (*PreferenceRepo)(nil)

type PreferenceRepo struct{ db *DB }

func NewPreferenceRepo(db *DB) *PreferenceRepo { return &PreferenceRepo{db: db} }

const prefCols = `user_id, notification_type, in_app, email, push, quiet_start, quiet_end, timezone, updated_at`

const (
	qPrefGet = `
SELECT ` + prefCols + `
FROM notification_preferences
WHERE user_id = $1 AND notification_type = $2;`

	qPrefByUser = `
SELECT ` + prefCols + `
FROM notification_preferences
WHERE user_id = $1
ORDER BY notification_type;`

	qPrefUpsert = `
INSERT INTO notification_preferences (user_id, notification_type, in_app, email, push, quiet_start, quiet_end, timezone)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (user_id, notification_type) DO UPDATE SET
    in_app      = excluded.in_app,
    email       = excluded.email,
    push        = excluded.push,
    quiet_start = excluded.quiet_start,
    quiet_end   = excluded.quiet_end,
    timezone    = excluded.timezone,
    updated_at  = now()
RETURNING updated_at;`
)

func (r *PreferenceRepo) Get(ctx context.Context, userID int64, t notification.Type) (*preference.Preference, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	return scanPreference(r.db.Pool.QueryRow(ctx, qPrefGet, userID, string(t)))
}

func (r *PreferenceRepo) ListByUser(ctx context.Context, userID int64) ([]*preference.Preference, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, qPrefByUser, userID)
	if err != nil {
		return nil, fmt.Errorf("query preferences: %w", err)
	}
	defer rows.Close()

	var out []*preference.Preference
	for rows.Next() {
		p, err := scanPreference(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PreferenceRepo) Upsert(ctx context.Context, p *preference.Preference) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var start, end, tz *string
	if q := p.QuietHours; q != nil {
		start, end, tz = nullString(q.Start), nullString(q.End), nullString(q.Timezone)
	}
	if err := r.db.execQueryer(ctx).QueryRow(ctx, qPrefUpsert,
		p.UserID, string(p.Type), p.InApp, p.Email, p.Push, start, end, tz,
	).Scan(&p.UpdatedAt); err != nil {
		return mapPgErr("upsert preference", err)
	}
	return nil
}

func scanPreference(row pgx.Row) (*preference.Preference, error) {
	var (
		p              preference.Preference
		typ            string
		start, end, tz *string
	)
	if err := row.Scan(&p.UserID, &typ, &p.InApp, &p.Email, &p.Push, &start, &end, &tz, &p.UpdatedAt); err != nil {
		return nil, mapPgErr("scan preference", err)
	}
	p.Type = notification.Type(typ)
	if start != nil && end != nil {
		p.QuietHours = &preference.QuietHours{Start: *start, End: *end, Timezone: deref(tz)}
	}
	return &p, nil
}
