package delivery

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/notification"
)

type Status string

const (
	StatusPending     Status = "PENDING"
	StatusDelivering  Status = "DELIVERING"
	StatusDelivered   Status = "DELIVERED"
	StatusNoRecipient Status = "NO_RECIPIENT"
	StatusFailed      Status = "FAILED"
)

// Task is one pending delivery of a notification over a secondary channel.
type Task struct {
	ID             int64
	IdempotencyKey string
	NotificationID int64
	UserID         int64
	Channel        notification.Channel
	Type           notification.Type
	Payload        Payload
	Status         Status
	Attempts       int
	MaxAttempts    int
	NextAttemptAt  time.Time
	LastError      string
	ClaimedAt      *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Traceparent    string
	Tracestate     string
}

// Payload is what a worker needs to render and send without going back to
// the notification row.
type Payload struct {
	Title    string            `json:"title"`
	Message  string            `json:"message"`
	TicketID *int64            `json:"ticketId,omitempty"`
	Vars     map[string]string `json:"vars"`
}

func (p Payload) Marshal() ([]byte, error) { return json.Marshal(p) }

type Repository interface {
	Enqueue(ctx context.Context, t *Task) error

	// PickBatch claims up to batch due tasks of one channel, including tasks
	// left DELIVERING for longer than staleTTL. Claiming counts as an attempt.
	PickBatch(ctx context.Context, ch notification.Channel, batch int, staleTTL time.Duration) ([]*Task, error)

	// FailExhausted moves stale DELIVERING tasks with no attempts left to FAILED.
	FailExhausted(ctx context.Context, ch notification.Channel, staleTTL time.Duration) (int64, error)

	MarkDelivered(ctx context.Context, id int64, st Status) error
	MarkRetry(ctx context.Context, id int64, next time.Time, lastErr string) error
	MarkFailed(ctx context.Context, id int64, lastErr string) error
}

// Handler delivers one claimed task. The returned error is classified by the
// runner with IsTerminal.
type Handler func(ctx context.Context, t *Task) (Status, error)
