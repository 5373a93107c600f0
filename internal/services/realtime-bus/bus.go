package bus

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/realtime"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/obs"
	kafkax "github.com/shubhankar-shipowl/help-desk-sub004/internal/repository/kafka"
)

var (
	mEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bus_events_emitted_total",
		Help: "Events fanned out on this instance, by event and source.",
	}, []string{"event", "source"})
	mRelayErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bus_relay_publish_errors_total",
		Help: "Events that could not be published to the backbone.",
	})
)

// Publisher relays local emits to the other bus instances.
type Publisher interface {
	Publish(ctx context.Context, e kafkax.RoomEvent) error
}

var _ realtime.Emitter = (*Bus)(nil)

// Bus fans events out to local connections and, when a backbone is
// configured, to every other instance.
type Bus struct {
	hub     *Hub
	pub     Publisher
	origin  string
	timeout time.Duration
	log     *zap.Logger
	wg      sync.WaitGroup
}

// New builds a bus; pub may be nil for a single-instance deployment.
func New(hub *Hub, pub Publisher, log *zap.Logger) *Bus {
	return &Bus{
		hub:     hub,
		pub:     pub,
		origin:  uuid.NewString(),
		timeout: 5 * time.Second,
		log:     obs.Component(log, "bus"),
	}
}

func (b *Bus) Origin() string { return b.origin }

// Emit delivers locally and returns; the backbone publish runs in the background.
func (b *Bus) Emit(ctx context.Context, event string, data any, rooms []string) error {
	if _, err := b.fanOut(event, data, rooms, "local"); err != nil {
		return err
	}
	if b.pub == nil {
		return nil
	}

	ev := kafkax.RoomEvent{Origin: b.origin, Event: event, Rooms: rooms, Data: data}
	pctx := context.WithoutCancel(ctx)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ctx, cancel := context.WithTimeout(pctx, b.timeout)
		defer cancel()
		if err := b.pub.Publish(ctx, ev); err != nil {
			mRelayErrors.Inc()
			obs.WithTrace(ctx, b.log).Warn("backbone publish failed", zap.String("event", event), zap.Error(err))
		}
	}()
	return nil
}

// Deliver is Emit without the backbone publish; it reports local deliveries.
func (b *Bus) Deliver(event string, data any, rooms []string) (int, error) {
	return b.fanOut(event, data, rooms, "local")
}

// HandleRemote fans out an event received from the backbone. Events this
// instance published itself are skipped.
func (b *Bus) HandleRemote(_ context.Context, e kafkax.RoomEvent) error {
	if e.Origin == b.origin {
		return nil
	}
	_, err := b.fanOut(e.Event, e.Data, e.Rooms, "remote")
	return err
}

func (b *Bus) fanOut(event string, data any, rooms []string, source string) (int, error) {
	n, err := b.hub.Broadcast(event, data, rooms)
	if err != nil {
		return 0, err
	}
	mEmitted.WithLabelValues(event, source).Inc()
	b.log.Debug("event fanned out",
		zap.String("event", event), zap.Strings("rooms", rooms), zap.String("source", source), zap.Int("delivered", n))
	return n, nil
}

// Wait blocks until in-flight backbone publishes finish.
func (b *Bus) Wait() { b.wg.Wait() }
