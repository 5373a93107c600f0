package kafka

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var mConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "kafka_messages_consumed_total",
	Help: "Consumed messages by topic and result (ok, malformed, error).",
}, []string{"topic", "result"})

const (
	fetchBackoffMin = 200 * time.Millisecond
	fetchBackoffMax = 5 * time.Second
)

type Consumer struct {
	reader *kafka.Reader
	topic  string
	log    *zap.Logger
}

type ConsumerConfig struct {
	Brokers []string
	GroupID string
	Topic   string

	// FromBeginning replays the topic for a new group. Bus relays start at
	// the tail: events older than the instance are of no use to it.
	FromBeginning bool
	Logger        *zap.Logger
}

func NewConsumer(cfg *ConsumerConfig) *Consumer {
	if cfg.Logger == nil {
		cfg.Logger = zap.L()
	}
	start := kafka.LastOffset
	if cfg.FromBeginning {
		start = kafka.FirstOffset
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:               cfg.Brokers,
		GroupID:               cfg.GroupID,
		Topic:                 cfg.Topic,
		StartOffset:           start,
		WatchPartitionChanges: true,

		MinBytes:          1,
		MaxBytes:          1 << 20,
		MaxWait:           100 * time.Millisecond,
		CommitInterval:    time.Second,
		SessionTimeout:    10 * time.Second,
		RebalanceTimeout:  15 * time.Second,
		HeartbeatInterval: 3 * time.Second,
	})

	return &Consumer{
		reader: r,
		topic:  cfg.Topic,
		log: cfg.Logger.With(
			zap.String("component", "kafka.consumer"),
			zap.String("topic", cfg.Topic),
			zap.String("group", cfg.GroupID),
		),
	}
}

// Consume blocks until ctx is done. Every fetched message is committed whether
// or not h succeeds; failures are logged and counted.
func (c *Consumer) Consume(ctx context.Context, h Handler) error {
	c.log.Info("consumer started")
	backoff := fetchBackoffMin

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info("consumer stopped")
				return ctx.Err()
			}
			if !errors.Is(err, io.EOF) {
				c.log.Warn("fetch failed", zap.Error(err), zap.Duration("backoff", backoff))
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, fetchBackoffMax)
			continue
		}
		backoff = fetchBackoffMin

		c.handle(ctx, h, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Warn("commit failed", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

func (c *Consumer) handle(ctx context.Context, h Handler, msg kafka.Message) {
	mctx := otel.GetTextMapPropagator().Extract(ctx, headerCarrier{hs: &msg.Headers})
	err := h(mctx, msg.Key, msg.Value)
	switch {
	case err == nil:
		mConsumed.WithLabelValues(c.topic, "ok").Inc()
	case errors.Is(err, ErrMalformed):
		mConsumed.WithLabelValues(c.topic, "malformed").Inc()
		c.log.Warn("dropping malformed message",
			zap.Int("partition", msg.Partition), zap.Int64("offset", msg.Offset), zap.Error(err))
	default:
		mConsumed.WithLabelValues(c.topic, "error").Inc()
		c.log.Error("handler error",
			zap.Int("partition", msg.Partition), zap.Int64("offset", msg.Offset), zap.Error(err))
	}
}

func (c *Consumer) Close() error { return c.reader.Close() }
