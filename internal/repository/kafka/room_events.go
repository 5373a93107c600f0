package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/shubhankar-shipowl/help-desk-sub004/internal/obs/retry"
)

// RoomEvent is one bus emit relayed between bus instances.
type RoomEvent struct {
	Origin string
	Event  string
	Rooms  []string
	Data   any
}

func EncodeRoomEvent(e RoomEvent) (*structpb.Struct, error) {
	// round-trip through JSON so arbitrary payloads become structpb-friendly values
	raw, err := json.Marshal(e.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal data: %w", err)
	}
	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("normalize data: %w", err)
	}
	rooms := make([]any, len(e.Rooms))
	for i, r := range e.Rooms {
		rooms[i] = r
	}
	return structpb.NewStruct(map[string]any{
		"origin": e.Origin,
		"event":  e.Event,
		"rooms":  rooms,
		"data":   data,
	})
}

func DecodeRoomEvent(s *structpb.Struct) (RoomEvent, error) {
	f := s.GetFields()
	e := RoomEvent{
		Origin: f["origin"].GetStringValue(),
		Event:  f["event"].GetStringValue(),
	}
	if e.Event == "" {
		return RoomEvent{}, fmt.Errorf("%w: room event without name", ErrMalformed)
	}
	for _, v := range f["rooms"].GetListValue().GetValues() {
		if r := v.GetStringValue(); r != "" {
			e.Rooms = append(e.Rooms, r)
		}
	}
	if d, ok := f["data"]; ok {
		e.Data = d.AsInterface()
	}
	return e, nil
}

type RoomEventsKafka struct {
	p      *Producer
	policy retry.Policy
}

func NewRoomEventsKafka(p *Producer, log *zap.Logger) *RoomEventsKafka {
	return &RoomEventsKafka{p: p, policy: retry.DefaultKafkaPolicy(log)}
}

func (k *RoomEventsKafka) Publish(ctx context.Context, e RoomEvent) error {
	msg, err := EncodeRoomEvent(e)
	if err != nil {
		return err
	}
	var key []byte
	if len(e.Rooms) > 0 {
		key = []byte(e.Rooms[0])
	}
	return retry.Do(ctx, func() error {
		return k.p.Publish(ctx, key, msg)
	}, k.policy)
}

// RoomEventHandler adapts fn to a consumer Handler decoding the structpb envelope.
func RoomEventHandler(fn func(context.Context, RoomEvent) error) Handler {
	return ProtoHandler(func() *structpb.Struct { return &structpb.Struct{} },
		func(ctx context.Context, _ []byte, s *structpb.Struct) error {
			e, err := DecodeRoomEvent(s)
			if err != nil {
				return err
			}
			return fn(ctx, e)
		})
}
