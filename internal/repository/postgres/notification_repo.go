package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/notification"
)

var _ notification.Repo = (*NotificationRepoImpl)(nil)

type NotificationRepoImpl struct{ db *DB }

func NewNotificationRepo(db *DB) *NotificationRepoImpl { return &NotificationRepoImpl{db: db} }

const notifCols = `id, type, title, message, user_id, ticket_id, metadata, read, created_at`

const (
	qNotifInsert = `
INSERT INTO notifications (type, title, message, user_id, ticket_id, metadata)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, read, created_at;`

	qNotifMarkOne = `
UPDATE notifications
SET read = TRUE
WHERE id = $1 AND user_id = $2
RETURNING ` + notifCols + `;`

	qNotifMarkMany = `
UPDATE notifications
SET read = $3
WHERE user_id = $1 AND id = ANY($2) AND read <> $3;`

	qNotifMarkAll = `
UPDATE notifications
SET read = TRUE
WHERE user_id = $1 AND NOT read AND ($2::text IS NULL OR type = $2::text);`

	qNotifUnread = `SELECT count(*) FROM notifications WHERE user_id = $1 AND NOT read;`

	qNotifDelete = `DELETE FROM notifications WHERE id = $1;`
)

func (r *NotificationRepoImpl) Create(ctx context.Context, n *notification.Notification) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var meta []byte
	if n.Metadata != nil {
		b, err := json.Marshal(n.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		meta = b
	}

	eq := r.db.execQueryer(ctx)
	if err := eq.QueryRow(ctx, qNotifInsert,
		string(n.Type), n.Title, n.Message, n.UserID, n.TicketID, meta,
	).Scan(&n.ID, &n.Read, &n.CreatedAt); err != nil {
		return mapPgErr("insert notification", err)
	}
	return nil
}

func (r *NotificationRepoImpl) List(ctx context.Context, userID int64, f notification.Filter) (*notification.Page, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	where := []string{"user_id = $1"}
	args := []any{userID}
	if f.Read != nil {
		args = append(args, *f.Read)
		where = append(where, fmt.Sprintf("read = $%d", len(args)))
	}
	if f.Type != nil {
		args = append(args, string(*f.Type))
		where = append(where, fmt.Sprintf("type = $%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.db.Pool.QueryRow(ctx, `SELECT count(*) FROM notifications WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count notifications: %w", err)
	}

	args = append(args, f.Limit, f.Offset())
	q := fmt.Sprintf(`SELECT %s FROM notifications WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		notifCols, cond, len(args)-1, len(args))
	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	items := make([]*notification.Notification, 0, f.Limit)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return &notification.Page{Items: items, Total: total, Page: f.Page, Limit: f.Limit}, nil
}

func (r *NotificationRepoImpl) MarkRead(ctx context.Context, userID int64, ids []int64, read bool) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, qNotifMarkMany, userID, ids, read)
	if err != nil {
		return 0, fmt.Errorf("mark notifications: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *NotificationRepoImpl) MarkOne(ctx context.Context, userID, id int64) (*notification.Notification, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	n, err := scanNotification(r.db.execQueryer(ctx).QueryRow(ctx, qNotifMarkOne, id, userID))
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (r *NotificationRepoImpl) MarkAllRead(ctx context.Context, userID int64, t *notification.Type) (int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var typ *string
	if t != nil {
		s := string(*t)
		typ = &s
	}
	tag, err := r.db.execQueryer(ctx).Exec(ctx, qNotifMarkAll, userID, typ)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *NotificationRepoImpl) UnreadCount(ctx context.Context, userID int64) (int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var n int64
	if err := r.db.Pool.QueryRow(ctx, qNotifUnread, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("unread count: %w", err)
	}
	return n, nil
}

func (r *NotificationRepoImpl) Delete(ctx context.Context, id int64) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, qNotifDelete, id)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanNotification(row pgx.Row) (*notification.Notification, error) {
	var (
		n    notification.Notification
		typ  string
		meta []byte
	)
	if err := row.Scan(&n.ID, &typ, &n.Title, &n.Message, &n.UserID, &n.TicketID, &meta, &n.Read, &n.CreatedAt); err != nil {
		return nil, mapPgErr("scan notification", err)
	}
	n.Type = notification.Type(typ)
	m, err := notification.DecodeMetadata(n.Type, meta)
	if err != nil {
		return nil, err
	}
	n.Metadata = m
	return &n, nil
}
