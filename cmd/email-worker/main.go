package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	config "github.com/shubhankar-shipowl/help-desk-sub004/internal/config/email-worker"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/delivery"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/notification"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/obs"
	pg "github.com/shubhankar-shipowl/help-desk-sub004/internal/repository/postgres"
	notifier "github.com/shubhankar-shipowl/help-desk-sub004/internal/services/email-worker"
	render "github.com/shubhankar-shipowl/help-desk-sub004/internal/template"
)

func wire(cfg *config.Config, db *pg.DB, l *zap.Logger) *delivery.Runner {
	h := notifier.NewHandler(
		pg.NewTicketReader(db),
		render.NewRenderer(pg.NewTemplateRepo(db)),
		notifier.NewMailer(cfg.SMTP, l),
		l,
	)
	return delivery.NewRunner(
		l,
		pg.NewDeliveryRepo(db),
		delivery.Instrument(string(notification.ChannelEmail), h.Handle),
		cfg.Delivery.AsRunnerConfig(notification.ChannelEmail),
	)
}

func main() {
	cfgPath := flag.String("config", "config/email-worker.yaml", "path to the YAML config")
	flag.Parse()

	// init
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

	l.Info("starting email-worker",
		zap.String("metrics_addr", cfg.Metrics.Addr),
		zap.String("smtp_addr", cfg.SMTP.Addr),
		zap.Int("workers", cfg.Delivery.Workers),
	)

	// otel
	otelCloser, err := obs.SetupOTel(root, cfg.OTEL.AsOTELConfig(cfg.App))
	if err != nil {
		l.Warn("otel init", zap.Error(err))
	} else {
		defer func() { _ = otelCloser.Shutdown(context.Background()) }()
	}

	// db
	db, err := pg.New(root, cfg.DB)
	if err != nil {
		l.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	l.Info("db connected")

	// metrics
	ms := obs.BootstrapMetricsServer(cfg.Metrics.Addr, l, obs.Check{Name: "postgres", Probe: db.Ping})

	// start
	runner := wire(cfg, db, l)
	errCh := make(chan error, 1)
	go func() {
		l.Info("runner starting")
		errCh <- runner.Run(root)
	}()

	// main loop
	select {
	case <-root.Done():
		l.Info("shutdown signal")
		<-errCh
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			l.Error("runner error", zap.Error(err))
		}
	}

	obs.Shutdown(ms, 3*time.Second, l)
	l.Info("bye")
}
