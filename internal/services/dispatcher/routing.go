package dispatcher

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/notification"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/preference"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/repository/postgres"
)

// Decision is the per-recipient channel set for one event.
type Decision struct {
	InApp bool
	Email bool
	Push  bool
	// NotBefore delays the secondary channels while the recipient is in quiet
	// hours. In-app is never delayed.
	NotBefore time.Time
}

// Secondary lists the enabled asynchronous channels.
func (d Decision) Secondary() []notification.Channel {
	var out []notification.Channel
	if d.Email {
		out = append(out, notification.ChannelEmail)
	}
	if d.Push {
		out = append(out, notification.ChannelPush)
	}
	return out
}

type Router struct {
	prefs preference.Repo
	clock notification.Clock
	log   *zap.Logger
}

func NewRouter(prefs preference.Repo, clock notification.Clock, log *zap.Logger) *Router {
	if clock == nil {
		clock = notification.SystemClock{}
	}
	return &Router{prefs: prefs, clock: clock, log: log}
}

// Preference returns the explicit row for (userID, t) or the all-enabled default.
func (r *Router) Preference(ctx context.Context, userID int64, t notification.Type) (preference.Preference, error) {
	p, err := r.prefs.Get(ctx, userID, t)
	if errors.Is(err, postgres.ErrNotFound) {
		return preference.Default(userID, t), nil
	}
	if err != nil {
		return preference.Preference{}, err
	}
	return *p, nil
}

func (r *Router) IsChannelEnabled(ctx context.Context, userID int64, t notification.Type, ch notification.Channel) (bool, error) {
	p, err := r.Preference(ctx, userID, t)
	if err != nil {
		return false, err
	}
	return p.Enabled(ch), nil
}

// Route reads the preference once and decides every channel. A failed lookup
// falls back to the defaults.
func (r *Router) Route(ctx context.Context, userID int64, t notification.Type) Decision {
	p, err := r.Preference(ctx, userID, t)
	if err != nil {
		r.log.Warn("preference lookup failed; using defaults",
			zap.Int64("user_id", userID), zap.String("type", string(t)), zap.Error(err))
		p = preference.Default(userID, t)
	}
	d := Decision{InApp: p.InApp, Email: p.Email, Push: p.Push}
	if p.QuietHours != nil && (d.Email || d.Push) {
		now := r.clock.Now()
		if until := p.QuietHours.DeferUntil(now); until.After(now) {
			d.NotBefore = until
		}
	}
	return d
}
