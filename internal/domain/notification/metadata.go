package notification

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Metadata is the event-specific payload of a notification. Each Type has
// exactly one concrete schema, always carried as a pointer.
type Metadata interface {
	Kind() Type
}

type TicketCreatedMeta struct {
	TicketNumber string `json:"ticketNumber" validate:"required"`
	Subject      string `json:"subject" validate:"required"`
	Priority     string `json:"priority,omitempty"`
}

type TicketAssignedMeta struct {
	TicketNumber string `json:"ticketNumber" validate:"required"`
	AssigneeID   int64  `json:"assigneeId" validate:"required,gt=0"`
	AssignedByID *int64 `json:"assignedById,omitempty"`
}

type NewReplyMeta struct {
	TicketNumber string `json:"ticketNumber" validate:"required"`
	CommentID    int64  `json:"commentId" validate:"required,gt=0"`
	AuthorID     int64  `json:"authorId" validate:"required,gt=0"`
	AuthorName   string `json:"authorName,omitempty"`
}

type StatusChangedMeta struct {
	TicketNumber string `json:"ticketNumber" validate:"required"`
	OldStatus    string `json:"oldStatus" validate:"required"`
	NewStatus    string `json:"newStatus" validate:"required"`
	ChangedByID  *int64 `json:"changedById,omitempty"`
}

type SLABreachMeta struct {
	TicketNumber string `json:"ticketNumber" validate:"required"`
	Priority     string `json:"priority,omitempty"`
}

type ExternalMessageMeta struct {
	Source     string `json:"source" validate:"required,oneof=email facebook"`
	ExternalID string `json:"externalId" validate:"required"`
	Sender     string `json:"sender,omitempty"`
}

func (TicketCreatedMeta) Kind() Type   { return TypeTicketCreated }
func (TicketAssignedMeta) Kind() Type  { return TypeTicketAssigned }
func (NewReplyMeta) Kind() Type        { return TypeNewReply }
func (StatusChangedMeta) Kind() Type   { return TypeStatusChanged }
func (SLABreachMeta) Kind() Type       { return TypeSLABreach }
func (ExternalMessageMeta) Kind() Type { return TypeExternalMessage }

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateMetadata checks that m matches the schema of t. Nil metadata is
// allowed for every type.
func ValidateMetadata(t Type, m Metadata) error {
	if !t.Valid() {
		return fmt.Errorf("unknown notification type %q", t)
	}
	if m == nil {
		return nil
	}
	if m.Kind() != t {
		return fmt.Errorf("metadata %s does not match type %s", m.Kind(), t)
	}
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("metadata %s: %w", t, err)
	}
	return nil
}

// DecodeMetadata restores the typed metadata stored for t.
func DecodeMetadata(t Type, raw []byte) (Metadata, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var m Metadata
	switch t {
	case TypeTicketCreated:
		m = &TicketCreatedMeta{}
	case TypeTicketAssigned:
		m = &TicketAssignedMeta{}
	case TypeNewReply:
		m = &NewReplyMeta{}
	case TypeStatusChanged:
		m = &StatusChangedMeta{}
	case TypeSLABreach:
		m = &SLABreachMeta{}
	case TypeExternalMessage:
		m = &ExternalMessageMeta{}
	default:
		return nil, fmt.Errorf("unknown notification type %q", t)
	}
	if err := json.Unmarshal(raw, m); err != nil {
		return nil, fmt.Errorf("decode %s metadata: %w", t, err)
	}
	return m, nil
}
