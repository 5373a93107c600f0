package realtime

import (
	"context"
	"strconv"
)

const (
	EventNotificationNew = "notification:new"
	EventTicketCreated   = "ticket:created"
	EventTicketUpdated   = "ticket:updated"
	EventTicketDeleted   = "ticket:deleted"
)

const (
	RoomAgents = "agents"
	RoomAdmins = "admins"
)

func UserRoom(userID int64) string { return "user:" + strconv.FormatInt(userID, 10) }

// Emitter pushes an event to every live connection in any of rooms.
// Delivery is best effort.
type Emitter interface {
	Emit(ctx context.Context, event string, data any, rooms []string) error
}
