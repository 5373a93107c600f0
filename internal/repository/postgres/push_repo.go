package postgres

import (
	"context"
	"fmt"

	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/push"
)

var _ push.Repo = (*PushRepo)(nil)

type PushRepo struct{ db *DB }

func NewPushRepo(db *DB) *PushRepo { return &PushRepo{db: db} }

const (
	qPushUpsert = `
INSERT INTO push_subscriptions (user_id, endpoint, p256dh, auth, user_agent)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (user_id, endpoint) DO UPDATE SET
    p256dh     = excluded.p256dh,
    auth       = excluded.auth,
    user_agent = excluded.user_agent,
    active     = TRUE,
    updated_at = now()
RETURNING id, active, created_at, updated_at;`

	qPushActive = `
SELECT id, user_id, endpoint, p256dh, auth, active, user_agent, last_used_at, created_at, updated_at
FROM push_subscriptions
WHERE user_id = $1 AND active
ORDER BY id;`

	qPushDeactivate = `
UPDATE push_subscriptions
SET active = FALSE, updated_at = now()
WHERE id = $1;`

	qPushDeactivateEndpoint = `
UPDATE push_subscriptions
SET active = FALSE, updated_at = now()
WHERE user_id = $1 AND endpoint = $2 AND active;`

	qPushTouch = `UPDATE push_subscriptions SET last_used_at = now() WHERE id = $1;`
)

func (r *PushRepo) Upsert(ctx context.Context, s *push.Subscription) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if err := r.db.Pool.QueryRow(ctx, qPushUpsert, s.UserID, s.Endpoint, s.P256dh, s.Auth, nullString(s.UserAgent)).
		Scan(&s.ID, &s.Active, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return mapPgErr("upsert push subscription", err)
	}
	return nil
}

func (r *PushRepo) ListActive(ctx context.Context, userID int64) ([]*push.Subscription, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, qPushActive, userID)
	if err != nil {
		return nil, fmt.Errorf("query push subscriptions: %w", err)
	}
	defer rows.Close()

	var out []*push.Subscription
	for rows.Next() {
		var (
			s  push.Subscription
			ua *string
		)
		if err := rows.Scan(&s.ID, &s.UserID, &s.Endpoint, &s.P256dh, &s.Auth, &s.Active, &ua, &s.LastUsedAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan push subscription: %w", err)
		}
		s.UserAgent = deref(ua)
		out = append(out, &s)
	}
	return out, rows.Err()
}

func (r *PushRepo) Deactivate(ctx context.Context, id int64) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if _, err := r.db.Pool.Exec(ctx, qPushDeactivate, id); err != nil {
		return fmt.Errorf("deactivate push subscription: %w", err)
	}
	return nil
}

func (r *PushRepo) DeactivateEndpoint(ctx context.Context, userID int64, endpoint string) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.Pool.Exec(ctx, qPushDeactivateEndpoint, userID, endpoint)
	if err != nil {
		return fmt.Errorf("deactivate push endpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PushRepo) Touch(ctx context.Context, id int64) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if _, err := r.db.Pool.Exec(ctx, qPushTouch, id); err != nil {
		return fmt.Errorf("touch push subscription: %w", err)
	}
	return nil
}
