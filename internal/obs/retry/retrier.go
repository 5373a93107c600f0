package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Backoff interface {
	Next(attempt int) time.Duration
}

// ExpoJitter yields Base*2^attempt capped at Max, scaled by ±Jitter.
type ExpoJitter struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64
}

func (b ExpoJitter) Next(attempt int) time.Duration {
	d := float64(b.Base) * math.Pow(2, float64(max(attempt, 0)))
	if b.Max > 0 {
		d = math.Min(d, float64(b.Max))
	}
	if b.Jitter > 0 {
		d *= 1 + (rand.Float64()*2-1)*b.Jitter
	}
	return time.Duration(d)
}

// Constant waits the same duration between every attempt.
type Constant time.Duration

func (c Constant) Next(int) time.Duration { return time.Duration(c) }

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying whatever the policy says. Do
// returns the wrapped error itself.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type Policy struct {
	Name      string
	Attempts  int
	Backoff   Backoff
	Retryable func(error) bool
	OnAttempt func(attempt int, err error)
	OnExhaust func(lastErr error)

	// Sleep waits between attempts; nil means a timer bound to ctx.
	Sleep func(ctx context.Context, d time.Duration) error
}

func (p Policy) label() string {
	if p.Name == "" {
		return "default"
	}
	return p.Name
}

func (p Policy) retryable(err error) bool {
	var perm *permanentError
	if errors.As(err, &perm) {
		return false
	}
	if p.Retryable == nil {
		return true
	}
	return p.Retryable(err)
}

var (
	retryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "retry_attempts_total",
		Help: "Attempts made inside retry.Do by outcome (ok, retry, giveup).",
	}, []string{"name", "outcome"})
	retryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "retry_duration_seconds",
		Help:    "Wall time of a whole retry.Do call.",
		Buckets: prometheus.DefBuckets,
	}, []string{"name"})
)

// Do runs fn until it succeeds, returns a non-retryable error or runs out of
// attempts. The last error is returned as is, with any Permanent mark removed.
func Do(ctx context.Context, fn func() error, p Policy) error {
	name := p.label()
	defer func(start time.Time) {
		retryLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}(time.Now())

	attempts := max(p.Attempts, 1)
	backoff := p.Backoff
	if backoff == nil {
		backoff = Constant(0)
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	span := trace.SpanFromContext(ctx)

	for i := 0; ; i++ {
		err := fn()
		if err == nil {
			retryAttempts.WithLabelValues(name, "ok").Inc()
			return nil
		}
		if p.OnAttempt != nil {
			p.OnAttempt(i, err)
		}
		span.AddEvent("retry.attempt", trace.WithAttributes(
			attribute.String("retry.name", name),
			attribute.Int("retry.attempt", i+1),
		))

		if i+1 >= attempts || !p.retryable(err) {
			retryAttempts.WithLabelValues(name, "giveup").Inc()
			if perm, ok := err.(*permanentError); ok {
				err = perm.err
			}
			if p.OnExhaust != nil {
				p.OnExhaust(err)
			}
			return err
		}
		retryAttempts.WithLabelValues(name, "retry").Inc()
		if serr := sleep(ctx, backoff.Next(i)); serr != nil {
			return serr
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
