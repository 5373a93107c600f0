package preference

import (
	"context"

	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/notification"
)

type Repo interface {
	// Get returns postgres.ErrNotFound-wrapped errors when no explicit row exists.
	Get(ctx context.Context, userID int64, t notification.Type) (*Preference, error)
	ListByUser(ctx context.Context, userID int64) ([]*Preference, error)
	Upsert(ctx context.Context, p *Preference) error
}
