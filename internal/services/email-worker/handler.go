package notifier

import (
	"context"
	"errors"
	"fmt"
	"net/textproto"

	"go.uber.org/zap"

	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/delivery"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/notification"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/ticket"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/obs"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/repository/postgres"
	tpl "github.com/shubhankar-shipowl/help-desk-sub004/internal/template"
)

type UserReader interface {
	GetUser(ctx context.Context, id int64) (*ticket.User, error)
}

type Renderer interface {
	Render(ctx context.Context, t notification.Type, ch notification.Channel, vars map[string]string) (*tpl.Rendered, error)
}

// Handler turns one EMAIL delivery task into a sent message.
type Handler struct {
	users    UserReader
	renderer Renderer
	sender   notification.EmailSender
	log      *zap.Logger
}

func NewHandler(users UserReader, renderer Renderer, sender notification.EmailSender, log *zap.Logger) *Handler {
	return &Handler{users: users, renderer: renderer, sender: sender, log: obs.Component(log, "email-worker.handler")}
}

func (h *Handler) Handle(ctx context.Context, t *delivery.Task) (delivery.Status, error) {
	u, err := h.users.GetUser(ctx, t.UserID)
	if errors.Is(err, postgres.ErrNotFound) {
		obs.WithTrace(ctx, h.log).Info("recipient no longer exists", zap.Int64("user_id", t.UserID))
		return delivery.StatusNoRecipient, nil
	}
	if err != nil {
		return "", fmt.Errorf("load recipient: %w", err)
	}
	if !ValidAddress(u.Email) {
		return "", delivery.Terminal(fmt.Errorf("recipient %d has no usable email address", u.ID))
	}

	out, err := h.renderer.Render(ctx, t.Type, notification.ChannelEmail, Vars(t, u))
	if err != nil {
		if errors.Is(err, tpl.ErrTemplateNotFound) || errors.Is(err, tpl.ErrMissingVariable) {
			return "", delivery.Terminal(err)
		}
		return "", err
	}

	err = h.sender.Send(ctx, notification.EmailMessage{
		To:      u.Email,
		Subject: out.Subject,
		Text:    out.Body,
		HTML:    out.HTML,
	})
	if err != nil {
		return "", Classify(err)
	}
	return delivery.StatusDelivered, nil
}

// Vars adds the recipient to what the dispatcher captured at enqueue time.
func Vars(t *delivery.Task, u *ticket.User) map[string]string {
	vars := make(map[string]string, len(t.Payload.Vars)+3)
	for k, v := range t.Payload.Vars {
		vars[k] = v
	}
	if _, ok := vars["title"]; !ok {
		vars["title"] = t.Payload.Title
	}
	if _, ok := vars["message"]; !ok {
		vars["message"] = t.Payload.Message
	}
	name := u.Name
	if name == "" {
		name = u.Email
	}
	vars["recipientName"] = name
	return vars
}

// Classify marks SMTP address rejections as terminal. Everything else,
// including other 5xx replies, is left transient.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var perr *textproto.Error
	if errors.As(err, &perr) {
		switch perr.Code {
		case 501, 550, 551, 553:
			return delivery.Terminal(err)
		}
	}
	return err
}
