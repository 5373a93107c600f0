package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	config "github.com/shubhankar-shipowl/help-desk-sub004/internal/config/realtime-bus"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/obs"
	kafkax "github.com/shubhankar-shipowl/help-desk-sub004/internal/repository/kafka"
	bus "github.com/shubhankar-shipowl/help-desk-sub004/internal/services/realtime-bus"
)

// relay joins the bus to the shared room-events topic. Each instance reads
// with its own group so every instance sees every event.
type relay struct {
	producer *kafkax.Producer
	consumer *kafkax.Consumer
	events   *kafkax.RoomEventsKafka
}

func newRelay(ctx context.Context, cfg config.Kafka, l *zap.Logger) *relay {
	producer := kafkax.NewProducer(kafkax.ProducerConfig{
		Brokers: cfg.Brokers,
		Topic:   cfg.Topic,
		Logger:  l,
	})
	consumer := kafkax.BootstrapConsumer(ctx, &kafkax.ConsumerConfig{
		Brokers: cfg.Brokers,
		GroupID: cfg.ConsumerGroup(),
		Topic:   cfg.Topic,
		Logger:  l,
	}, kafkax.TopicSpec{NumPartitions: cfg.Partitions, Retention: cfg.Retention}, l)
	return &relay{
		producer: producer,
		consumer: consumer,
		events:   kafkax.NewRoomEventsKafka(producer, l),
	}
}

func (r *relay) Close() {
	_ = r.consumer.Close()
	_ = r.producer.Close()
}

func main() {
	cfgPath := flag.String("config", "config/realtime-bus.yaml", "path to the YAML config")
	flag.Parse()

	root, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal(err)
	}

	// logger
	l, err := obs.NewLogger(cfg.Log.AsLoggerConfig(cfg.App))
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = l.Sync() }()

	// otel
	otelCloser, err := obs.SetupOTel(root, cfg.OTEL.AsOTELConfig(cfg.App))
	if err != nil {
		l.Warn("otel init", zap.Error(err))
	} else {
		defer func() { _ = otelCloser.Shutdown(context.Background()) }()
	}

	hub := bus.NewHub(l)

	// kafka
	var (
		pub bus.Publisher
		rel *relay
	)
	if cfg.Kafka.Enable {
		rel = newRelay(root, cfg.Kafka, l)
		defer rel.Close()
		pub = rel.events
		l.Info("kafka relay enabled",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
		)
	}
	b := bus.New(hub, pub, l)
	l.Info("starting realtime-bus", zap.String("addr", cfg.Server.Addr), zap.String("instance", b.Origin()))

	ctrl := bus.NewController(b, hub, bus.ControllerConfig{
		AllowedOrigins: cfg.Server.CORSOrigins,
		SendBuffer:     cfg.Server.SendBuffer,
	}, l)
	h := bus.NewHTTPHandler(ctrl, bus.Security{
		InternalAPIKey: cfg.Auth.InternalAPIKey,
		JWTSecret:      []byte(cfg.Auth.JWTSecret),
	}, cfg.Server.CORSOrigins)
	srv := bus.NewHTTPServer(cfg.Server, h)

	// metrics
	ms := obs.BootstrapMetricsServer(cfg.Metrics.Addr, l)

	g, gctx := errgroup.WithContext(root)
	g.Go(func() error {
		l.Info("http listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if rel != nil {
		g.Go(func() error {
			err := rel.consumer.Consume(gctx, kafkax.RoomEventHandler(b.HandleRemote))
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		l.Info("shutdown signal")
		hub.Close()
		obs.Shutdown(srv, cfg.Server.GracefulTimeout, l)
		b.Wait()
		obs.Shutdown(ms, 3*time.Second, l)
		return nil
	})

	if err := g.Wait(); err != nil {
		l.Error("realtime-bus stopped", zap.Error(err))
	}
	l.Info("bye")
}
