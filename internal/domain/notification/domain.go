package notification

import (
	"context"
	"strconv"
	"time"
)

type Type string

const (
	TypeTicketCreated   Type = "TICKET_CREATED"
	TypeTicketAssigned  Type = "TICKET_ASSIGNED"
	TypeNewReply        Type = "NEW_REPLY"
	TypeStatusChanged   Type = "STATUS_CHANGED"
	TypeSLABreach       Type = "SLA_BREACH"
	TypeExternalMessage Type = "EXTERNAL_MESSAGE"
)

// Types lists every known notification type in display order.
var Types = []Type{
	TypeTicketCreated,
	TypeTicketAssigned,
	TypeNewReply,
	TypeStatusChanged,
	TypeSLABreach,
	TypeExternalMessage,
}

func (t Type) Valid() bool {
	for _, k := range Types {
		if k == t {
			return true
		}
	}
	return false
}

type Channel string

const (
	ChannelInApp Channel = "IN_APP"
	ChannelEmail Channel = "EMAIL"
	ChannelPush  Channel = "PUSH"
)

// Notification is one in-app notification for exactly one recipient.
type Notification struct {
	ID        int64     `json:"id"`
	Type      Type      `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	UserID    int64     `json:"userId"`
	TicketID  *int64    `json:"ticketId,omitempty"`
	Metadata  Metadata  `json:"metadata,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

// IdempotencyKey identifies the delivery of n over ch. Re-enqueueing the same
// pair is a no-op.
func (n *Notification) IdempotencyKey(ch Channel) string {
	return "notification:" + strconv.FormatInt(n.ID, 10) + ":" + string(ch)
}

type Filter struct {
	Page  int
	Limit int
	Read  *bool
	Type  *Type
}

func (f Filter) Offset() int {
	if f.Page <= 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

type Page struct {
	Items []*Notification `json:"notifications"`
	Total int             `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

type EmailMessage struct {
	To      string
	Subject string
	Text    string
	HTML    string
}
