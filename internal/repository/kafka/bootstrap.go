package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// BootstrapConsumer makes sure the topic exists before joining its group.
func BootstrapConsumer(ctx context.Context, cfg *ConsumerConfig, spec TopicSpec, logger *zap.Logger) *Consumer {
	spec.Name = cfg.Topic
	if spec.MaxWait <= 0 {
		spec.MaxWait = 5 * time.Second
	}
	if err := EnsureTopic(ctx, cfg.Brokers, spec, logger); err != nil && logger != nil {
		logger.Warn("ensure topic", zap.String("topic", cfg.Topic), zap.Error(err))
	}
	return NewConsumer(cfg)
}
