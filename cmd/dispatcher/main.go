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

	config "github.com/shubhankar-shipowl/help-desk-sub004/internal/config/dispatcher"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/obs"
	pg "github.com/shubhankar-shipowl/help-desk-sub004/internal/repository/postgres"
	redisrepo "github.com/shubhankar-shipowl/help-desk-sub004/internal/repository/redis"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/services/dispatcher"
)

func wire(cfg *config.Config, db *pg.DB, dedup dispatcher.Deduper, l *zap.Logger) http.Handler {
	notifs := pg.NewNotificationRepo(db)
	prefs := pg.NewPreferenceRepo(db)

	svc := dispatcher.NewService(dispatcher.Deps{
		Notifications: notifs,
		Tasks:         pg.NewDeliveryRepo(db),
		Tx:            pg.NewTransactor(db, l),
		Router:        dispatcher.NewRouter(prefs, nil, l),
		Emitter:       dispatcher.NewBusEmitter(cfg.Bus.URL, cfg.Auth.InternalAPIKey, cfg.Bus.Timeout),
		Tickets:       pg.NewTicketReader(db),
		Dedup:         dedup,
		Log:           l,
		MaxAttempts:   cfg.Delivery.MaxAttempts,
	})

	ctrl := dispatcher.NewController(dispatcher.ControllerDeps{
		Service:       svc,
		Notifications: notifs,
		Preferences:   prefs,
		Push:          pg.NewPushRepo(db),
		Templates:     pg.NewTemplateRepo(db),
		Dedup:         dedup,
		Log:           l,
	})

	return dispatcher.NewHTTPHandler(ctrl, dispatcher.Security{
		InternalAPIKey: cfg.Auth.InternalAPIKey,
		JWTSecret:      []byte(cfg.Auth.JWTSecret),
	}, cfg.Server.CORSOrigins)
}

func main() {
	cfgPath := flag.String("config", "config/dispatcher.yaml", "path to the YAML config")
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
	l.Info("starting dispatcher",
		zap.String("addr", cfg.Server.Addr),
		zap.String("bus_url", cfg.Bus.URL),
		zap.Bool("redis", cfg.Redis.Enable),
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

	checks := []obs.Check{{Name: "postgres", Probe: db.Ping}}

	// redis
	var dedup dispatcher.Deduper
	if cfg.Redis.Enable {
		rdb := redisrepo.NewClient(cfg.Redis.AsClientConfig())
		defer func() { _ = rdb.Close() }()
		pctx, cancel := context.WithTimeout(root, 2*time.Second)
		if err := rdb.Ping(pctx).Err(); err != nil {
			l.Warn("redis ping failed, trigger dedup degraded", zap.Error(err))
		}
		cancel()
		dedup = redisrepo.NewDedupStore(rdb, cfg.Redis.DedupTTL)
		checks = append(checks, obs.Check{
			Name:     "redis",
			Probe:    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
			Optional: true,
		})
	}

	// metrics
	ms := obs.BootstrapMetricsServer(cfg.Metrics.Addr, l, checks...)

	srv := dispatcher.NewHTTPServer(cfg.Server, wire(cfg, db, dedup, l))

	g, gctx := errgroup.WithContext(root)
	g.Go(func() error {
		l.Info("http listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		l.Info("shutdown signal")
		obs.Shutdown(srv, cfg.Server.GracefulTimeout, l)
		obs.Shutdown(ms, 3*time.Second, l)
		return nil
	})

	if err := g.Wait(); err != nil {
		l.Error("dispatcher stopped", zap.Error(err))
	}
	l.Info("bye")
}
