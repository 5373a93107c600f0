package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/delivery"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/notification"
)

var _ delivery.Repository = (*DeliveryRepo)(nil)

type DeliveryRepo struct{ db *DB }

func NewDeliveryRepo(db *DB) *DeliveryRepo { return &DeliveryRepo{db: db} }

const taskCols = `id, idempotency_key, notification_id, user_id, channel, type, payload, status,
       attempts, max_attempts, next_attempt_at, last_error, claimed_at, traceparent, tracestate,
       created_at, updated_at`

const (
	qTaskEnqueue = `
INSERT INTO delivery_tasks (idempotency_key, notification_id, user_id, channel, type, payload,
                            max_attempts, next_attempt_at, traceparent, tracestate)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (idempotency_key) DO NOTHING
RETURNING id, status, created_at, updated_at;`

	// stale DELIVERING rows are re-claimed only while attempts remain
	qTaskPick = `
WITH cand AS (
   SELECT id
   FROM delivery_tasks
   WHERE channel = $1
     AND attempts < max_attempts
     AND ((status = 'PENDING' AND next_attempt_at <= now())
       OR (status = 'DELIVERING' AND claimed_at < now() - $3::interval))
   ORDER BY next_attempt_at
   LIMIT $2
   FOR UPDATE SKIP LOCKED
), upd AS (
   UPDATE delivery_tasks d
   SET status = 'DELIVERING', attempts = d.attempts + 1, claimed_at = now(), updated_at = now()
   FROM cand
   WHERE d.id = cand.id
   RETURNING d.*
)
SELECT ` + taskCols + `
FROM upd;`

	qTaskFailExhausted = `
UPDATE delivery_tasks
SET status = 'FAILED',
    last_error = CASE WHEN last_error = '' THEN 'claim expired' ELSE last_error END,
    claimed_at = NULL,
    updated_at = now()
WHERE channel = $1
  AND status = 'DELIVERING'
  AND attempts >= max_attempts
  AND claimed_at < now() - $2::interval;`

	qTaskDone = `
UPDATE delivery_tasks
SET status = $2, last_error = '', claimed_at = NULL, updated_at = now()
WHERE id = $1 AND status = 'DELIVERING';`

	qTaskRetry = `
UPDATE delivery_tasks
SET status = 'PENDING', next_attempt_at = $2, last_error = $3, claimed_at = NULL, updated_at = now()
WHERE id = $1 AND status = 'DELIVERING';`

	qTaskFailed = `
UPDATE delivery_tasks
SET status = 'FAILED', last_error = $2, claimed_at = NULL, updated_at = now()
WHERE id = $1 AND status = 'DELIVERING';`
)

func (r *DeliveryRepo) Enqueue(ctx context.Context, t *delivery.Task) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	payload, err := t.Payload.Marshal()
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	next := t.NextAttemptAt
	if next.IsZero() {
		next = time.Now().UTC()
	}

	var status string
	err = r.db.execQueryer(ctx).QueryRow(ctx, qTaskEnqueue,
		t.IdempotencyKey, t.NotificationID, t.UserID, string(t.Channel), string(t.Type), payload,
		t.MaxAttempts, next, t.Traceparent, t.Tracestate,
	).Scan(&t.ID, &status, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// already enqueued under the same key
		return nil
	}
	if err != nil {
		return mapPgErr("enqueue delivery task", err)
	}
	t.Status = delivery.Status(status)
	t.NextAttemptAt = next
	return nil
}

func (r *DeliveryRepo) PickBatch(ctx context.Context, ch notification.Channel, batch int, staleTTL time.Duration) ([]*delivery.Task, error) {
	if batch <= 0 {
		return nil, errors.New("batch must be > 0")
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, qTaskPick, string(ch), batch, interval(staleTTL))
	if err != nil {
		return nil, fmt.Errorf("delivery pick: %w", err)
	}
	defer rows.Close()

	var out []*delivery.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *DeliveryRepo) FailExhausted(ctx context.Context, ch notification.Channel, staleTTL time.Duration) (int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.Pool.Exec(ctx, qTaskFailExhausted, string(ch), interval(staleTTL))
	if err != nil {
		return 0, fmt.Errorf("delivery fail exhausted: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *DeliveryRepo) MarkDelivered(ctx context.Context, id int64, st delivery.Status) error {
	return r.exec(ctx, "delivery mark done", qTaskDone, id, string(st))
}

func (r *DeliveryRepo) MarkRetry(ctx context.Context, id int64, next time.Time, lastErr string) error {
	return r.exec(ctx, "delivery mark retry", qTaskRetry, id, next, lastErr)
}

func (r *DeliveryRepo) MarkFailed(ctx context.Context, id int64, lastErr string) error {
	return r.exec(ctx, "delivery mark failed", qTaskFailed, id, lastErr)
}

func (r *DeliveryRepo) exec(ctx context.Context, op, q string, args ...any) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.Pool.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		// the claim expired and another worker owns the task now
		return fmt.Errorf("%s: %w", op, ErrConflict)
	}
	return nil
}

func scanTask(row pgx.Row) (*delivery.Task, error) {
	var (
		t               delivery.Task
		ch, typ, status string
		payload         []byte
	)
	if err := row.Scan(&t.ID, &t.IdempotencyKey, &t.NotificationID, &t.UserID, &ch, &typ, &payload, &status,
		&t.Attempts, &t.MaxAttempts, &t.NextAttemptAt, &t.LastError, &t.ClaimedAt, &t.Traceparent, &t.Tracestate,
		&t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, mapPgErr("scan delivery task", err)
	}
	t.Channel = notification.Channel(ch)
	t.Type = notification.Type(typ)
	t.Status = delivery.Status(status)
	if err := json.Unmarshal(payload, &t.Payload); err != nil {
		return nil, fmt.Errorf("decode delivery payload %d: %w", t.ID, err)
	}
	return &t, nil
}
