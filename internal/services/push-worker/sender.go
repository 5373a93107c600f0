package pusher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/push"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/obs"
)

type VAPID struct {
	PublicKey  string `mapstructure:"public_key"`
	PrivateKey string `mapstructure:"private_key"`

	// Subject is the contact (mailto: or https:) push services may use.
	Subject string        `mapstructure:"subject"`
	TTL     time.Duration `mapstructure:"ttl"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Sender posts one encrypted payload to one subscription and reports the
// push service's status code.
type Sender interface {
	Send(ctx context.Context, sub *push.Subscription, payload []byte) (int, error)
}

type WebPush struct {
	opts webpush.Options
}

func NewWebPush(cfg VAPID) *WebPush {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	return &WebPush{opts: webpush.Options{
		HTTPClient:      obs.HTTPClient(cfg.Timeout),
		Subscriber:      cfg.Subject,
		VAPIDPublicKey:  cfg.PublicKey,
		VAPIDPrivateKey: cfg.PrivateKey,
		TTL:             int(cfg.TTL.Seconds()),
		Urgency:         webpush.UrgencyNormal,
	}}
}

func (w *WebPush) Send(ctx context.Context, sub *push.Subscription, payload []byte) (int, error) {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys:     webpush.Keys{P256dh: sub.P256dh, Auth: sub.Auth},
	}, &w.opts)
	if err != nil {
		return 0, fmt.Errorf("web push: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return resp.StatusCode, nil
}

var _ Sender = (*WebPush)(nil)

func isSuccess(code int) bool { return code >= http.StatusOK && code < http.StatusMultipleChoices }
func isGone(code int) bool    { return code == http.StatusNotFound || code == http.StatusGone }
func isRetryable(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
