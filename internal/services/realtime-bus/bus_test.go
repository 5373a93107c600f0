package bus

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/realtime"
	kafkax "github.com/shubhankar-shipowl/help-desk-sub004/internal/repository/kafka"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []kafkax.RoomEvent
	err    error
}

func (p *capturePublisher) Publish(_ context.Context, e kafkax.RoomEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func TestBus_EmitPublishesWithOrigin(t *testing.T) {
	hub := NewHub(zap.NewNop())
	pub := &capturePublisher{}
	b := New(hub, pub, zap.NewNop())
	c := NewClient(1, []string{realtime.UserRoom(1)}, 4)
	hub.Register(c)

	require.NoError(t, b.Emit(context.Background(), realtime.EventNotificationNew, map[string]string{"title": "x"}, []string{realtime.UserRoom(1)}))
	b.Wait()

	assert.Len(t, drain(c), 1)
	require.Len(t, pub.events, 1)
	assert.Equal(t, b.Origin(), pub.events[0].Origin)
	assert.Equal(t, []string{realtime.UserRoom(1)}, pub.events[0].Rooms)
}

func TestBus_PublishFailureDoesNotFailEmit(t *testing.T) {
	hub := NewHub(zap.NewNop())
	b := New(hub, &capturePublisher{err: errors.New("broker down")}, zap.NewNop())
	require.NoError(t, b.Emit(context.Background(), realtime.EventTicketDeleted, nil, []string{realtime.RoomAdmins}))
	b.Wait()
}

func TestBus_HandleRemote(t *testing.T) {
	hub := NewHub(zap.NewNop())
	b := New(hub, nil, zap.NewNop())
	c := NewClient(2, []string{realtime.RoomAgents}, 4)
	hub.Register(c)

	own := kafkax.RoomEvent{Origin: b.Origin(), Event: realtime.EventTicketCreated, Rooms: []string{realtime.RoomAgents}}
	require.NoError(t, b.HandleRemote(context.Background(), own))
	assert.Empty(t, drain(c), "own events were already delivered locally")

	other := kafkax.RoomEvent{Origin: "other-instance", Event: realtime.EventTicketCreated, Rooms: []string{realtime.RoomAgents}}
	require.NoError(t, b.HandleRemote(context.Background(), other))
	got := drain(c)
	require.Len(t, got, 1)
	assert.Equal(t, realtime.EventTicketCreated, got[0].Event)
}

func TestBus_RelayRoundTrip(t *testing.T) {
	// instance A publishes, instance B consumes the encoded envelope
	hubB := NewHub(zap.NewNop())
	b := New(hubB, nil, zap.NewNop())
	c := NewClient(1, []string{realtime.UserRoom(1)}, 4)
	hubB.Register(c)

	msg, err := kafkax.EncodeRoomEvent(kafkax.RoomEvent{
		Origin: "instance-a",
		Event:  realtime.EventNotificationNew,
		Rooms:  []string{realtime.UserRoom(1)},
		Data:   map[string]any{"id": 10, "title": "Ticket created"},
	})
	require.NoError(t, err)
	ev, err := kafkax.DecodeRoomEvent(msg)
	require.NoError(t, err)
	require.NoError(t, b.HandleRemote(context.Background(), ev))

	got := drain(c)
	require.Len(t, got, 1)
	data, ok := got[0].Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Ticket created", data["title"])
	assert.EqualValues(t, 10, data["id"])
}
