package kafka

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/protobuf/proto"
)

// Handler processes one consumed message.
type Handler func(ctx context.Context, key, value []byte) error

// ErrMalformed marks a message that can never be processed. The consumer
// drops it instead of reporting a handler failure.
var ErrMalformed = errors.New("malformed message")

// ProtoHandler decodes value into a fresh M before calling handle.
func ProtoHandler[M proto.Message](ctor func() M, handle func(context.Context, []byte, M) error) Handler {
	return func(ctx context.Context, key, value []byte) error {
		msg := ctor()
		if err := proto.Unmarshal(value, msg); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return handle(ctx, key, msg)
	}
}
