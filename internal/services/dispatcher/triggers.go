package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/notification"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/realtime"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/ticket"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/obs"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/repository/postgres"
)

// TicketEvent is the payload of ticket:* bus events.
type TicketEvent struct {
	TicketID     int64  `json:"ticketId"`
	TicketNumber string `json:"ticketNumber,omitempty"`
	Subject      string `json:"subject,omitempty"`
	Status       string `json:"status,omitempty"`
	Priority     string `json:"priority,omitempty"`
	AssignedToID *int64 `json:"assignedToId,omitempty"`
	Change       string `json:"change,omitempty"`
}

func ticketEvent(t *ticket.Ticket, change string) TicketEvent {
	return TicketEvent{
		TicketID:     t.ID,
		TicketNumber: t.Number,
		Subject:      t.Subject,
		Status:       t.Status,
		Priority:     t.Priority,
		AssignedToID: t.AssignedToID,
		Change:       change,
	}
}

// TicketCreated notifies the ticket creator and tells agents and admins about
// the new ticket.
func (s *Service) TicketCreated(ctx context.Context, ticketID int64) ([]*notification.Notification, error) {
	t, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	out, err := s.notify(ctx, nil, Input{
		Type:     notification.TypeTicketCreated,
		Title:    "Ticket created",
		Message:  fmt.Sprintf("Your ticket %s has been received: %s", t.Number, t.Subject),
		UserID:   t.CreatedByID,
		TicketID: &t.ID,
		Metadata: &notification.TicketCreatedMeta{TicketNumber: t.Number, Subject: t.Subject, Priority: t.Priority},
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, s.triggerLog(ctx, "ticket-created", t.ID), realtime.EventTicketCreated,
		ticketEvent(t, "created"), []string{realtime.RoomAgents, realtime.RoomAdmins})
	return out, nil
}

// TicketAssigned notifies the new assignee unless they assigned themselves.
func (s *Service) TicketAssigned(ctx context.Context, ticketID int64, assignedByID *int64) ([]*notification.Notification, error) {
	t, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	log := s.triggerLog(ctx, "ticket-assigned", t.ID)

	var out []*notification.Notification
	switch {
	case t.AssignedToID == nil:
		log.Info("ticket has no assignee; nothing to notify")
	case isActor(*t.AssignedToID, assignedByID):
		log.Debug("assignee is the actor; skipped")
	default:
		out, err = s.notify(ctx, out, Input{
			Type:     notification.TypeTicketAssigned,
			Title:    "Ticket assigned",
			Message:  fmt.Sprintf("Ticket %s has been assigned to you: %s", t.Number, t.Subject),
			UserID:   *t.AssignedToID,
			TicketID: &t.ID,
			Metadata: &notification.TicketAssignedMeta{TicketNumber: t.Number, AssigneeID: *t.AssignedToID, AssignedByID: assignedByID},
		})
		if err != nil {
			return nil, err
		}
	}

	s.emit(ctx, log, realtime.EventTicketUpdated, ticketEvent(t, "assigned"), ticketRooms(t, true))
	return out, nil
}

// NewReply notifies the creator and the assignee about a comment, except its
// author. Internal comments are never sent to the creator.
func (s *Service) NewReply(ctx context.Context, ticketID, commentID int64) ([]*notification.Notification, error) {
	t, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	c, err := s.tickets.GetComment(ctx, commentID)
	if errors.Is(err, postgres.ErrNotFound) || (err == nil && c.TicketID != t.ID) {
		return nil, fmt.Errorf("%w: comment %d on ticket %d", ErrNotFound, commentID, ticketID)
	}
	if err != nil {
		return nil, fmt.Errorf("load comment: %w", err)
	}
	log := s.triggerLog(ctx, "new-reply", t.ID).With(zap.Int64("comment_id", c.ID))

	authorName := ""
	if u, err := s.tickets.GetUser(ctx, c.AuthorID); err == nil {
		authorName = u.Name
	} else {
		log.Debug("comment author lookup failed", zap.Error(err))
	}
	if authorName == "" {
		authorName = "Someone"
	}

	var recipients []int64
	if !c.IsInternal {
		recipients = append(recipients, t.CreatedByID)
	}
	if t.AssignedToID != nil {
		recipients = append(recipients, *t.AssignedToID)
	}
	recipients = without(unique(recipients), c.AuthorID)

	out := make([]*notification.Notification, 0, len(recipients))
	for _, uid := range recipients {
		out, err = s.notify(ctx, out, Input{
			Type:     notification.TypeNewReply,
			Title:    "New reply",
			Message:  fmt.Sprintf("%s replied on ticket %s", authorName, t.Number),
			UserID:   uid,
			TicketID: &t.ID,
			Metadata: &notification.NewReplyMeta{TicketNumber: t.Number, CommentID: c.ID, AuthorID: c.AuthorID, AuthorName: authorName},
		})
		if err != nil {
			return out, err
		}
	}

	s.emit(ctx, log, realtime.EventTicketUpdated, ticketEvent(t, "reply"), ticketRooms(t, !c.IsInternal))
	return out, nil
}

// StatusChanged notifies the creator and the assignee, except the actor.
func (s *Service) StatusChanged(ctx context.Context, ticketID int64, oldStatus string, changedByID *int64) ([]*notification.Notification, error) {
	if oldStatus == "" {
		return nil, fmt.Errorf("%w: oldStatus is required", ErrValidation)
	}
	t, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	log := s.triggerLog(ctx, "status-changed", t.ID)

	recipients := []int64{t.CreatedByID}
	if t.AssignedToID != nil {
		recipients = append(recipients, *t.AssignedToID)
	}
	recipients = unique(recipients)
	if changedByID != nil {
		recipients = without(recipients, *changedByID)
	}

	out := make([]*notification.Notification, 0, len(recipients))
	for _, uid := range recipients {
		out, err = s.notify(ctx, out, Input{
			Type:     notification.TypeStatusChanged,
			Title:    "Ticket status changed",
			Message:  fmt.Sprintf("Ticket %s changed from %s to %s", t.Number, oldStatus, t.Status),
			UserID:   uid,
			TicketID: &t.ID,
			Metadata: &notification.StatusChangedMeta{TicketNumber: t.Number, OldStatus: oldStatus, NewStatus: t.Status, ChangedByID: changedByID},
		})
		if err != nil {
			return out, err
		}
	}

	s.emit(ctx, log, realtime.EventTicketUpdated, ticketEvent(t, "status"), ticketRooms(t, true))
	return out, nil
}

// SLABreach notifies the assignee, or every admin when nobody owns the ticket.
func (s *Service) SLABreach(ctx context.Context, ticketID int64) ([]*notification.Notification, error) {
	t, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	log := s.triggerLog(ctx, "sla-breach", t.ID)

	var recipients []int64
	if t.AssignedToID != nil {
		recipients = []int64{*t.AssignedToID}
	} else {
		admins, err := s.tickets.ListUsersByRole(ctx, ticket.RoleAdmin)
		if err != nil {
			return nil, fmt.Errorf("list admins: %w", err)
		}
		for _, a := range admins {
			recipients = append(recipients, a.ID)
		}
	}

	out := make([]*notification.Notification, 0, len(recipients))
	for _, uid := range recipients {
		out, err = s.notify(ctx, out, Input{
			Type:     notification.TypeSLABreach,
			Title:    "SLA breached",
			Message:  fmt.Sprintf("Ticket %s has breached its SLA", t.Number),
			UserID:   uid,
			TicketID: &t.ID,
			Metadata: &notification.SLABreachMeta{TicketNumber: t.Number, Priority: t.Priority},
		})
		if err != nil {
			return out, err
		}
	}

	s.emit(ctx, log, realtime.EventTicketUpdated, ticketEvent(t, "sla_breach"),
		[]string{realtime.RoomAgents, realtime.RoomAdmins})
	return out, nil
}

// ExternalMessage is an inbound message from an external channel (email inbox,
// Facebook page) that the ticketing app has already ingested.
type ExternalMessage struct {
	Source     string
	ExternalID string
	Sender     string
	Preview    string
	// TicketID links the message to an existing ticket, if it was matched.
	TicketID *int64
}

const previewMax = 140

// ExternalMessage notifies the assignee of the linked ticket, or every agent
// when the message is unlinked or its ticket has no owner.
func (s *Service) ExternalMessage(ctx context.Context, m ExternalMessage) ([]*notification.Notification, error) {
	meta := &notification.ExternalMessageMeta{Source: m.Source, ExternalID: m.ExternalID, Sender: m.Sender}
	if err := notification.ValidateMetadata(notification.TypeExternalMessage, meta); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	var t *ticket.Ticket
	if m.TicketID != nil {
		var err error
		if t, err = s.loadTicket(ctx, *m.TicketID); err != nil {
			return nil, err
		}
	}
	var logTicket int64
	if t != nil {
		logTicket = t.ID
	}
	log := s.triggerLog(ctx, "external-message", logTicket).With(zap.String("source", m.Source))

	var recipients []int64
	if t != nil && t.AssignedToID != nil {
		recipients = []int64{*t.AssignedToID}
	} else {
		agents, err := s.tickets.ListUsersByRole(ctx, ticket.RoleAgent)
		if err != nil {
			return nil, fmt.Errorf("list agents: %w", err)
		}
		for _, a := range agents {
			recipients = append(recipients, a.ID)
		}
	}

	sender := m.Sender
	if sender == "" {
		sender = "Someone"
	}
	title := "New " + sourceLabel(m.Source) + " message"
	msg := fmt.Sprintf("%s via %s", sender, sourceLabel(m.Source))
	if t != nil {
		msg += " on ticket " + t.Number
	}
	if p := truncate(strings.TrimSpace(m.Preview), previewMax); p != "" {
		msg += ": " + p
	}

	out := make([]*notification.Notification, 0, len(recipients))
	for _, uid := range unique(recipients) {
		var err error
		out, err = s.notify(ctx, out, Input{
			Type:     notification.TypeExternalMessage,
			Title:    title,
			Message:  msg,
			UserID:   uid,
			TicketID: m.TicketID,
			Metadata: meta,
		})
		if err != nil {
			return out, err
		}
	}

	if t != nil {
		s.emit(ctx, log, realtime.EventTicketUpdated, ticketEvent(t, "external_message"), ticketRooms(t, false))
	}
	return out, nil
}

func sourceLabel(source string) string {
	if source == "facebook" {
		return "Facebook"
	}
	return "email"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// TicketDeleted only tells connected staff; the ticket row may already be gone.
func (s *Service) TicketDeleted(ctx context.Context, ticketID int64) error {
	if ticketID <= 0 {
		return fmt.Errorf("%w: ticketId is required", ErrValidation)
	}
	s.emit(ctx, s.triggerLog(ctx, "ticket-deleted", ticketID), realtime.EventTicketDeleted,
		TicketEvent{TicketID: ticketID, Change: "deleted"}, []string{realtime.RoomAgents, realtime.RoomAdmins})
	return nil
}

func (s *Service) loadTicket(ctx context.Context, id int64) (*ticket.Ticket, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: ticketId is required", ErrValidation)
	}
	t, err := s.tickets.GetTicket(ctx, id)
	if errors.Is(err, postgres.ErrNotFound) {
		return nil, fmt.Errorf("%w: ticket %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load ticket: %w", err)
	}
	return t, nil
}

func (s *Service) triggerLog(ctx context.Context, trigger string, ticketID int64) *zap.Logger {
	return obs.WithTrace(ctx, s.log).With(zap.String("trigger", trigger), zap.Int64("ticket_id", ticketID))
}

// ticketRooms addresses staff and, when the change is visible to them, the creator.
func ticketRooms(t *ticket.Ticket, includeCreator bool) []string {
	rooms := []string{realtime.RoomAgents, realtime.RoomAdmins}
	if includeCreator {
		rooms = append(rooms, realtime.UserRoom(t.CreatedByID))
	}
	return rooms
}

func isActor(userID int64, actorID *int64) bool {
	return actorID != nil && *actorID == userID
}

func unique(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok || id <= 0 {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func without(ids []int64, drop int64) []int64 {
	out := ids[:0]
	for _, id := range ids {
		if id != drop {
			out = append(out, id)
		}
	}
	return out
}
