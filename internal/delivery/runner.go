package delivery

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/delivery"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/notification"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/obs"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/obs/retry"
)

var (
	mPicked = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "delivery_picked_total", Help: "Tasks claimed for processing.",
	}, []string{"channel"})
	mOutcome = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "delivery_outcome_total", Help: "Task outcomes by resulting status.",
	}, []string{"channel", "status"})
	mErr = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "delivery_runner_errors_total", Help: "Claim and bookkeeping errors.",
	}, []string{"channel"})
	mTickDur = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "delivery_tick_duration_seconds", Help: "Tick duration.",
		Buckets: prometheus.DefBuckets,
	}, []string{"channel"})
	mBatchSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "delivery_last_batch_size", Help: "Size of last claimed batch.",
	}, []string{"channel"})
)

type Config struct {
	Channel      notification.Channel
	Workers      int
	BatchSize    int
	PollInterval time.Duration
	StaleTTL     time.Duration
	// Backoff yields the retry delay for a task that has failed attempt+1 times.
	Backoff retry.Backoff
}

// Runner polls delivery tasks of one channel and hands each claimed task to
// the channel handler.
type Runner struct {
	log    *zap.Logger
	repo   delivery.Repository
	handle delivery.Handler
	cfg    Config
	now    func() time.Time
}

func NewRunner(log *zap.Logger, repo delivery.Repository, handle delivery.Handler, cfg Config) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.StaleTTL <= 0 {
		cfg.StaleTTL = 5 * time.Minute
	}
	if cfg.Backoff == nil {
		cfg.Backoff = retry.ExpoJitter{Base: 30 * time.Second, Max: time.Hour, Jitter: 0.2}
	}
	return &Runner{
		log:    obs.Component(log, "delivery.runner").With(zap.String("channel", string(cfg.Channel))),
		repo:   repo,
		handle: handle,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Run blocks until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < r.cfg.Workers; i++ {
		worker := i
		g.Go(func() error {
			r.loop(gctx, worker)
			return nil
		})
	}
	return g.Wait()
}

func (r *Runner) loop(ctx context.Context, worker int) {
	log := r.log.With(zap.Int("worker", worker))
	log.Info("delivery worker started", zap.Duration("poll", r.cfg.PollInterval))

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("delivery worker stop")
			return
		case <-ticker.C:
			if _, err := r.Tick(ctx); err != nil && ctx.Err() == nil {
				log.Error("delivery tick", zap.Error(err))
			}
		}
	}
}

// Tick claims one batch and processes it. It returns the number of claimed tasks.
func (r *Runner) Tick(ctx context.Context) (int, error) {
	ch := string(r.cfg.Channel)
	t0 := time.Now()
	defer func() { mTickDur.WithLabelValues(ch).Observe(time.Since(t0).Seconds()) }()

	tr := otel.Tracer("delivery.runner")
	ctxSpan, span := tr.Start(ctx, "delivery.tick", trace.WithAttributes(
		attribute.String("delivery.channel", ch),
		attribute.Int("batch.limit", r.cfg.BatchSize),
	))
	defer span.End()

	if n, err := r.repo.FailExhausted(ctxSpan, r.cfg.Channel, r.cfg.StaleTTL); err != nil {
		mErr.WithLabelValues(ch).Inc()
		obs.WithTrace(ctxSpan, r.log).Warn("fail exhausted", zap.Error(err))
	} else if n > 0 {
		mOutcome.WithLabelValues(ch, string(delivery.StatusFailed)).Add(float64(n))
		r.log.Warn("stale tasks out of attempts marked failed", zap.Int64("count", n))
	}

	tasks, err := r.repo.PickBatch(ctxSpan, r.cfg.Channel, r.cfg.BatchSize, r.cfg.StaleTTL)
	if err != nil {
		span.RecordError(err)
		mErr.WithLabelValues(ch).Inc()
		return 0, err
	}
	mPicked.WithLabelValues(ch).Add(float64(len(tasks)))
	mBatchSize.WithLabelValues(ch).Set(float64(len(tasks)))

	for _, t := range tasks {
		if ctx.Err() != nil {
			// unprocessed claims are picked up again after StaleTTL
			return len(tasks), ctx.Err()
		}
		r.process(ctx, t)
	}
	return len(tasks), nil
}

func (r *Runner) process(ctx context.Context, t *delivery.Task) {
	ch := string(r.cfg.Channel)
	parent := otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier{
		"traceparent": t.Traceparent,
		"tracestate":  t.Tracestate,
	})
	tctx, span := otel.Tracer("delivery.runner").Start(parent, "delivery.task", trace.WithAttributes(
		attribute.Int64("delivery.task_id", t.ID),
		attribute.Int64("delivery.notification_id", t.NotificationID),
		attribute.Int("delivery.attempt", t.Attempts),
	))
	defer span.End()

	log := obs.WithTrace(tctx, r.log).With(
		zap.Int64("task_id", t.ID),
		zap.Int64("user_id", t.UserID),
		zap.String("type", string(t.Type)),
		zap.Int("attempt", t.Attempts),
		zap.Int("max_attempts", t.MaxAttempts),
	)

	status, herr := r.handle(tctx, t)

	var err error
	switch {
	case herr == nil:
		err = r.repo.MarkDelivered(tctx, t.ID, status)
		mOutcome.WithLabelValues(ch, string(status)).Inc()
		log.Info("delivery done", zap.String("status", string(status)))

	case delivery.IsTerminal(herr):
		span.RecordError(herr)
		err = r.repo.MarkFailed(tctx, t.ID, herr.Error())
		mOutcome.WithLabelValues(ch, string(delivery.StatusFailed)).Inc()
		log.Error("delivery failed permanently", zap.Error(herr))

	case t.Attempts >= t.MaxAttempts:
		span.RecordError(herr)
		err = r.repo.MarkFailed(tctx, t.ID, herr.Error())
		mOutcome.WithLabelValues(ch, string(delivery.StatusFailed)).Inc()
		log.Error("delivery attempts exhausted", zap.Error(herr))

	default:
		next := r.now().Add(r.cfg.Backoff.Next(t.Attempts - 1))
		err = r.repo.MarkRetry(tctx, t.ID, next, herr.Error())
		mOutcome.WithLabelValues(ch, string(delivery.StatusPending)).Inc()
		log.Warn("delivery failed; rescheduled", zap.Time("next_attempt_at", next), zap.Error(herr))
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		mErr.WithLabelValues(ch).Inc()
		log.Error("delivery bookkeeping", zap.Error(err))
	}
}
