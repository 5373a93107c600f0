package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
)

var mProduced = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "kafka_messages_produced_total",
	Help: "Produced messages by topic and result (ok, error).",
}, []string{"topic", "result"})

type ProducerConfig struct {
	Brokers []string
	Topic   string
	// BatchTimeout bounds how long a message may wait for a batch to fill.
	BatchTimeout time.Duration
	Logger       *zap.Logger
}

// Producer writes proto-encoded messages to one topic, keyed so that all
// events for a room land on the same partition.
type Producer struct {
	w     *kafka.Writer
	topic string
	log   *zap.Logger
}

func NewProducer(cfg ProducerConfig) *Producer {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: max(cfg.BatchTimeout, 10*time.Millisecond),
			WriteTimeout: 5 * time.Second,
		},
		topic: cfg.Topic,
		log:   cfg.Logger.With(zap.String("component", "kafka.producer"), zap.String("topic", cfg.Topic)),
	}
}

// Publish encodes m and writes it under key with the caller's trace context
// in the message headers.
func (p *Producer) Publish(ctx context.Context, key []byte, m proto.Message) error {
	value, err := proto.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", p.topic, err)
	}

	ctx, span := otel.Tracer("kafka.producer").Start(ctx, "publish "+p.topic,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingDestinationName(p.topic),
			semconv.MessagingOperationPublish,
			semconv.MessagingMessageBodySize(len(value)),
		),
	)
	defer span.End()

	msg := kafka.Message{Key: key, Value: value}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier{hs: &msg.Headers})

	if err := p.w.WriteMessages(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		mProduced.WithLabelValues(p.topic, "error").Inc()
		return fmt.Errorf("write %s: %w", p.topic, err)
	}
	mProduced.WithLabelValues(p.topic, "ok").Inc()
	return nil
}

func (p *Producer) Close() error { return p.w.Close() }
