// Package triggerclient lets ticket-side services call the dispatcher's
// internal trigger routes.
package triggerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shubhankar-shipowl/help-desk-sub004/internal/auth"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/obs"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/obs/retry"
)

const idempotencyHeader = "Idempotency-Key"

type Config struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
	Retries int           `mapstructure:"retries"`
	// BaseDelay is the wait before the first retry; later waits double.
	BaseDelay time.Duration `mapstructure:"base_delay"`
}

// StatusError is a non-2xx answer from the dispatcher.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("dispatcher responded %d: %s", e.Code, e.Body)
}

type Result struct {
	NotificationIDs []int64 `json:"notificationIds"`
	Deduplicated    bool    `json:"deduplicated,omitempty"`
}

type Client struct {
	base   string
	key    string
	http   *http.Client
	policy retry.Policy
	log    *zap.Logger
}

func New(cfg Config, log *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	} else if cfg.Retries == 0 {
		cfg.Retries = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	l := obs.Component(log, "triggerclient")
	return &Client{
		base: strings.TrimRight(cfg.BaseURL, "/"),
		key:  cfg.APIKey,
		http: obs.HTTPClient(cfg.Timeout),
		policy: retry.Policy{
			Name:      "trigger_call",
			Attempts:  cfg.Retries + 1,
			Backoff:   retry.ExpoJitter{Base: cfg.BaseDelay},
			Retryable: Retryable,
			OnAttempt: func(i int, err error) {
				l.Warn("trigger call failed", zap.Int("attempt", i+1), zap.Error(err))
			},
		},
		log: l,
	}
}

// Retryable reports whether a failed call may succeed when repeated: network
// failures and gateway errors only.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		switch se.Code {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	var ne net.Error
	return errors.As(err, &ne) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF)
}

func (c *Client) TicketCreated(ctx context.Context, ticketID int64) (*Result, error) {
	return c.call(ctx, "ticket-created", map[string]any{"ticketId": ticketID})
}

func (c *Client) TicketAssigned(ctx context.Context, ticketID int64, assignedByID *int64) (*Result, error) {
	return c.call(ctx, "ticket-assigned", map[string]any{"ticketId": ticketID, "assignedById": assignedByID})
}

func (c *Client) NewReply(ctx context.Context, ticketID, commentID int64) (*Result, error) {
	return c.call(ctx, "new-reply", map[string]any{"ticketId": ticketID, "commentId": commentID})
}

func (c *Client) StatusChanged(ctx context.Context, ticketID int64, oldStatus string, changedByID *int64) (*Result, error) {
	return c.call(ctx, "status-changed", map[string]any{"ticketId": ticketID, "oldStatus": oldStatus, "changedById": changedByID})
}

func (c *Client) SLABreach(ctx context.Context, ticketID int64) (*Result, error) {
	return c.call(ctx, "sla-breach", map[string]any{"ticketId": ticketID})
}

// ExternalMessage describes an inbound email or Facebook message.
type ExternalMessage struct {
	Source     string `json:"source"`
	ExternalID string `json:"externalId"`
	Sender     string `json:"sender,omitempty"`
	Preview    string `json:"preview,omitempty"`
	TicketID   *int64 `json:"ticketId,omitempty"`
}

func (c *Client) ExternalMessage(ctx context.Context, m ExternalMessage) (*Result, error) {
	return c.call(ctx, "external-message", m)
}

func (c *Client) TicketDeleted(ctx context.Context, ticketID int64) error {
	_, err := c.call(ctx, "ticket-deleted", map[string]any{"ticketId": ticketID})
	return err
}

// call posts one trigger. Every attempt carries the same Idempotency-Key.
func (c *Client) call(ctx context.Context, trigger string, body any) (*Result, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", trigger, err)
	}
	url := c.base + "/internal/trigger/" + trigger
	key := uuid.NewString()

	var res Result
	err = retry.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(auth.InternalKeyHeader, c.key)
		req.Header.Set(idempotencyHeader, key)

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if resp.StatusCode/100 != 2 {
			return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
		}
		res = Result{}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &res); err != nil {
				return retry.Permanent(fmt.Errorf("decode %s response: %w", trigger, err))
			}
		}
		return nil
	}, c.policy)
	if err != nil {
		return nil, fmt.Errorf("trigger %s: %w", trigger, err)
	}
	return &res, nil
}

// NonFatal logs a failed trigger call. Ticket operations never fail because
// notifications could not be triggered.
func NonFatal(log *zap.Logger, err error) {
	if err == nil || log == nil {
		return
	}
	log.Warn("notification trigger failed", zap.Error(err))
}
