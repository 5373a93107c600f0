package pusher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/delivery"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/notification"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/push"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/obs"
	tpl "github.com/shubhankar-shipowl/help-desk-sub004/internal/template"
)

var mSubscriptionOutcome = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "push_subscription_outcome_total",
	Help: "Per-subscription push results.",
}, []string{"outcome"})

type Renderer interface {
	Render(ctx context.Context, t notification.Type, ch notification.Channel, vars map[string]string) (*tpl.Rendered, error)
}

// Payload is what the service worker receives.
type Payload struct {
	Title          string `json:"title"`
	Body           string `json:"body"`
	Type           string `json:"type"`
	NotificationID int64  `json:"notificationId"`
	TicketID       *int64 `json:"ticketId,omitempty"`
}

type Handler struct {
	subs     push.Repo
	renderer Renderer
	sender   Sender
	log      *zap.Logger
}

func NewHandler(subs push.Repo, renderer Renderer, sender Sender, log *zap.Logger) *Handler {
	return &Handler{subs: subs, renderer: renderer, sender: sender, log: obs.Component(log, "push-worker.handler")}
}

// Handle sends the task to every active subscription of the user. One
// success is enough; expired endpoints are deactivated on the way.
func (h *Handler) Handle(ctx context.Context, t *delivery.Task) (delivery.Status, error) {
	log := obs.WithTrace(ctx, h.log).With(zap.Int64("task_id", t.ID), zap.Int64("user_id", t.UserID))

	subs, err := h.subs.ListActive(ctx, t.UserID)
	if err != nil {
		return "", fmt.Errorf("list subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return delivery.StatusNoRecipient, nil
	}

	vars := make(map[string]string, len(t.Payload.Vars)+2)
	for k, v := range t.Payload.Vars {
		vars[k] = v
	}
	vars["title"], vars["message"] = t.Payload.Title, t.Payload.Message

	out, err := h.renderer.Render(ctx, t.Type, notification.ChannelPush, vars)
	if err != nil {
		if errors.Is(err, tpl.ErrTemplateNotFound) || errors.Is(err, tpl.ErrMissingVariable) {
			return "", delivery.Terminal(err)
		}
		return "", err
	}
	body, err := json.Marshal(Payload{
		Title:          out.Subject,
		Body:           out.Body,
		Type:           string(t.Type),
		NotificationID: t.NotificationID,
		TicketID:       t.Payload.TicketID,
	})
	if err != nil {
		return "", delivery.Terminal(fmt.Errorf("marshal push payload: %w", err))
	}

	var (
		delivered int
		lastErr   error
		retryable bool
	)
	for _, s := range subs {
		slog := log.With(zap.Int64("subscription_id", s.ID))
		code, err := h.sender.Send(ctx, s, body)
		switch {
		case err != nil:
			mSubscriptionOutcome.WithLabelValues("network_error").Inc()
			slog.Warn("push send failed", zap.Error(err))
			retryable, lastErr = true, err

		case isSuccess(code):
			mSubscriptionOutcome.WithLabelValues("delivered").Inc()
			delivered++
			if err := h.subs.Touch(ctx, s.ID); err != nil {
				slog.Debug("touch subscription", zap.Error(err))
			}

		case isGone(code):
			mSubscriptionOutcome.WithLabelValues("gone").Inc()
			slog.Info("subscription expired; deactivating", zap.Int("status", code))
			if err := h.subs.Deactivate(ctx, s.ID); err != nil {
				slog.Warn("deactivate subscription", zap.Error(err))
			}

		case isRetryable(code):
			mSubscriptionOutcome.WithLabelValues("retryable").Inc()
			slog.Warn("push service unavailable", zap.Int("status", code))
			retryable, lastErr = true, fmt.Errorf("push service responded %d", code)

		default:
			mSubscriptionOutcome.WithLabelValues("rejected").Inc()
			slog.Warn("push rejected", zap.Int("status", code))
			if lastErr == nil {
				lastErr = fmt.Errorf("push service rejected subscription %d: %d", s.ID, code)
			}
		}
	}

	switch {
	case delivered > 0:
		return delivery.StatusDelivered, nil
	case retryable:
		return "", lastErr
	case lastErr != nil:
		return "", delivery.Terminal(lastErr)
	default:
		// every endpoint was gone
		return delivery.StatusNoRecipient, nil
	}
}
