package push

import "context"

type Repo interface {
	// Upsert creates or reactivates the (user, endpoint) subscription.
	Upsert(ctx context.Context, s *Subscription) error
	ListActive(ctx context.Context, userID int64) ([]*Subscription, error)
	Deactivate(ctx context.Context, id int64) error
	DeactivateEndpoint(ctx context.Context, userID int64, endpoint string) error
	Touch(ctx context.Context, id int64) error
}
