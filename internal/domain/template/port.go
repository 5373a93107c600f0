package template

import (
	"context"

	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/notification"
)

type Repo interface {
	Get(ctx context.Context, t notification.Type, ch notification.Channel) (*Template, error)
	List(ctx context.Context) ([]*Template, error)
	Upsert(ctx context.Context, tpl *Template) error
}
