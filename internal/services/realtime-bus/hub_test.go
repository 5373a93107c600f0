package bus

import (
	"encoding/json"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shubhankar-shipowl/help-desk-sub004/internal/auth"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/realtime"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/ticket"
)

func drain(c *Client) []Message {
	var out []Message
	for {
		select {
		case frame, ok := <-c.Send():
			if !ok {
				return out
			}
			var m Message
			if err := json.Unmarshal(frame, &m); err == nil {
				out = append(out, m)
			}
		default:
			return out
		}
	}
}

func join(h *Hub, id auth.Identity) *Client {
	c := NewClient(id.UserID, RoomsFor(id), 8)
	h.Register(c)
	return c
}

func TestRoomsFor(t *testing.T) {
	assert.Equal(t, []string{"user:1"}, RoomsFor(auth.Identity{UserID: 1, Role: ticket.RoleCustomer}))
	assert.Equal(t, []string{"user:2", realtime.RoomAgents}, RoomsFor(auth.Identity{UserID: 2, Role: ticket.RoleAgent}))
	assert.Equal(t, []string{"user:3", realtime.RoomAdmins}, RoomsFor(auth.Identity{UserID: 3, Role: ticket.RoleAdmin}))
}

func TestHub_RoomFanOut(t *testing.T) {
	h := NewHub(zap.NewNop())
	customer := join(h, auth.Identity{UserID: 1, Role: ticket.RoleCustomer})
	agent := join(h, auth.Identity{UserID: 2, Role: ticket.RoleAgent})
	admin := join(h, auth.Identity{UserID: 3, Role: ticket.RoleAdmin})
	customerTab := join(h, auth.Identity{UserID: 1, Role: ticket.RoleCustomer})

	n, err := h.Broadcast(realtime.EventTicketCreated, map[string]int{"ticketId": 7},
		[]string{realtime.RoomAgents, realtime.RoomAdmins})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Empty(t, drain(customer))
	assert.Len(t, drain(agent), 1)
	assert.Len(t, drain(admin), 1)

	n, err = h.Broadcast(realtime.EventNotificationNew, map[string]string{"title": "hi"}, []string{realtime.UserRoom(1)})
	require.NoError(t, err)
	assert.Equal(t, 2, n, "every tab of the user")
	got := drain(customer)
	require.Len(t, got, 1)
	assert.Equal(t, realtime.EventNotificationNew, got[0].Event)
	assert.Len(t, drain(customerTab), 1)
	assert.Empty(t, drain(agent))
}

func TestHub_SingleDeliveryAcrossRooms(t *testing.T) {
	h := NewHub(zap.NewNop())
	agent := join(h, auth.Identity{UserID: 2, Role: ticket.RoleAgent})

	n, err := h.Broadcast(realtime.EventTicketUpdated, nil,
		[]string{realtime.RoomAgents, realtime.UserRoom(2), realtime.RoomAgents})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, drain(agent), 1)
}

func TestHub_UnknownRoomIsNoop(t *testing.T) {
	h := NewHub(zap.NewNop())
	join(h, auth.Identity{UserID: 1, Role: ticket.RoleCustomer})

	n, err := h.Broadcast(realtime.EventTicketDeleted, nil, []string{"user:99"})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestHub_UnregisterRemovesAllMemberships(t *testing.T) {
	h := NewHub(zap.NewNop())
	agent := join(h, auth.Identity{UserID: 2, Role: ticket.RoleAgent})
	require.Equal(t, 1, h.RoomSize(realtime.RoomAgents))
	require.Equal(t, 1, h.RoomSize("user:2"))

	h.Unregister(agent)
	h.Unregister(agent)

	assert.Zero(t, h.Connections())
	assert.Zero(t, h.RoomSize(realtime.RoomAgents))
	assert.Zero(t, h.RoomSize("user:2"))
	_, open := <-agent.Send()
	assert.False(t, open)
}

func TestHub_DropsSlowConsumer(t *testing.T) {
	h := NewHub(zap.NewNop())
	slow := NewClient(5, []string{"user:5"}, 1)
	h.Register(slow)
	fast := NewClient(5, []string{"user:5"}, 4)
	h.Register(fast)

	_, err := h.Broadcast("ticket:updated", 1, []string{"user:5"})
	require.NoError(t, err)
	n, err := h.Broadcast("ticket:updated", 2, []string{"user:5"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, 1, h.Connections())
	assert.Len(t, drain(slow), 1, "buffered frame is still readable before close")
	assert.Len(t, drain(fast), 2)
	assert.Equal(t, websocket.ClosePolicyViolation, slow.CloseCode())
}

func TestHub_CloseDropsEveryone(t *testing.T) {
	h := NewHub(zap.NewNop())
	customer := join(h, auth.Identity{UserID: 1, Role: ticket.RoleCustomer})
	agent := join(h, auth.Identity{UserID: 2, Role: ticket.RoleAgent})
	h.Close()
	assert.Zero(t, h.Connections())
	for _, c := range []*Client{customer, agent} {
		_, open := <-c.Send()
		assert.False(t, open)
		assert.Equal(t, websocket.CloseGoingAway, c.CloseCode())
	}
}

func TestHub_UnregisterClosesNormally(t *testing.T) {
	h := NewHub(zap.NewNop())
	c := join(h, auth.Identity{UserID: 1, Role: ticket.RoleCustomer})
	h.Unregister(c)
	h.Close()
	assert.Equal(t, websocket.CloseNormalClosure, c.CloseCode())
}
