package delivery

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/delivery"
)

var handlerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "delivery_handler_latency_seconds",
	Help:    "Latency of channel handlers (render + send).",
	Buckets: prometheus.DefBuckets,
}, []string{"channel"})

// Instrument records handler latency under the channel label.
func Instrument(channel string, h delivery.Handler) delivery.Handler {
	return func(ctx context.Context, t *delivery.Task) (delivery.Status, error) {
		start := time.Now()
		st, err := h(ctx, t)
		handlerLatency.WithLabelValues(channel).Observe(time.Since(start).Seconds())
		return st, err
	}
}
