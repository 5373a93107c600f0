package notification

import "context"

type Repo interface {
	Create(ctx context.Context, n *Notification) error
	List(ctx context.Context, userID int64, f Filter) (*Page, error)
	MarkRead(ctx context.Context, userID int64, ids []int64, read bool) (int64, error)
	MarkOne(ctx context.Context, userID, id int64) (*Notification, error)
	MarkAllRead(ctx context.Context, userID int64, t *Type) (int64, error)
	UnreadCount(ctx context.Context, userID int64) (int64, error)
	Delete(ctx context.Context, id int64) error
}
