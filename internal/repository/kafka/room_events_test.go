package kafka

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
)

func TestRoomEventRoundTripThroughProto(t *testing.T) {
	in := RoomEvent{
		Origin: "bus-1",
		Event:  "notification:new",
		Rooms:  []string{"user:7", "agents"},
		Data:   map[string]any{"id": 42, "title": "hello"},
	}
	msg, err := EncodeRoomEvent(in)
	require.NoError(t, err)

	raw, err := proto.Marshal(msg)
	require.NoError(t, err)

	var got RoomEvent
	h := RoomEventHandler(func(_ context.Context, e RoomEvent) error {
		got = e
		return nil
	})
	require.NoError(t, h(context.Background(), nil, raw))

	require.Equal(t, "bus-1", got.Origin)
	require.Equal(t, "notification:new", got.Event)
	require.Equal(t, []string{"user:7", "agents"}, got.Rooms)
	data, ok := got.Data.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "hello", data["title"])
	require.EqualValues(t, 42, data["id"])
}

func TestDecodeRoomEventRequiresName(t *testing.T) {
	msg, err := EncodeRoomEvent(RoomEvent{Origin: "x"})
	require.NoError(t, err)
	_, err = DecodeRoomEvent(msg)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestRoomEventHandler_GarbageIsMalformed(t *testing.T) {
	called := false
	h := RoomEventHandler(func(context.Context, RoomEvent) error {
		called = true
		return nil
	})
	err := h(context.Background(), nil, []byte{0xff, 0xff, 0xff})
	require.ErrorIs(t, err, ErrMalformed)
	require.False(t, called)
}

func TestHeaderCarrier(t *testing.T) {
	var hs []kafka.Header
	c := headerCarrier{hs: &hs}
	c.Set("traceparent", "a")
	c.Set("tracestate", "b")
	c.Set("traceparent", "c")

	require.Len(t, hs, 2)
	require.Equal(t, "c", c.Get("traceparent"))
	require.Equal(t, "", c.Get("missing"))
	require.ElementsMatch(t, []string{"traceparent", "tracestate"}, c.Keys())
}
