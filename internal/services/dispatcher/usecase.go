package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/delivery"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/notification"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/realtime"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/ticket"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/obs"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/repository/postgres"
)

var (
	mCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatcher_notifications_created_total",
		Help: "Notification rows created, by type.",
	}, []string{"type"})
	mEmitErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatcher_emit_errors_total",
		Help: "Bus emits that failed or timed out.",
	}, []string{"event"})
	mEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatcher_tasks_enqueued_total",
		Help: "Delivery tasks enqueued, by channel.",
	}, []string{"channel"})
	mSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatcher_recipients_skipped_total",
		Help: "Recipients already notified by an earlier attempt of the same trigger.",
	}, []string{"type"})
)

// errAlreadyNotified reports that an earlier attempt of the same keyed
// trigger already created this recipient's notification.
var errAlreadyNotified = errors.New("recipient already notified")

type Deps struct {
	Notifications notification.Repo
	Tasks         delivery.Repository
	Tx            postgres.Transactor
	Router        *Router
	Emitter       realtime.Emitter
	Tickets       ticket.Reader
	Clock         notification.Clock
	Log           *zap.Logger

	// Dedup is optional. With it, a keyed trigger retried after a partial
	// failure skips the recipients it already notified.
	Dedup Deduper

	// MaxAttempts bounds delivery attempts per channel task.
	MaxAttempts int
}

type Service struct {
	notifs      notification.Repo
	tasks       delivery.Repository
	tx          postgres.Transactor
	router      *Router
	emitter     realtime.Emitter
	tickets     ticket.Reader
	dedup       Deduper
	clock       notification.Clock
	log         *zap.Logger
	maxAttempts int
}

func NewService(d Deps) *Service {
	if d.Clock == nil {
		d.Clock = notification.SystemClock{}
	}
	if d.MaxAttempts <= 0 {
		d.MaxAttempts = 5
	}
	return &Service{
		notifs:      d.Notifications,
		tasks:       d.Tasks,
		tx:          d.Tx,
		router:      d.Router,
		emitter:     d.Emitter,
		tickets:     d.Tickets,
		dedup:       d.Dedup,
		clock:       d.Clock,
		log:         obs.Component(d.Log, "dispatcher"),
		maxAttempts: d.MaxAttempts,
	}
}

type Input struct {
	Type     notification.Type
	Title    string
	Message  string
	UserID   int64
	TicketID *int64
	Metadata notification.Metadata
}

// CreateNotification stores one notification together with its EMAIL/PUSH
// delivery tasks, then announces it on the bus. Row and tasks commit in one
// transaction, so a stored notification always has its secondary deliveries.
// Only the persistence error is returned; emit failures are logged.
func (s *Service) CreateNotification(ctx context.Context, in Input) (*notification.Notification, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	n := &notification.Notification{
		Type:     in.Type,
		Title:    in.Title,
		Message:  in.Message,
		UserID:   in.UserID,
		TicketID: in.TicketID,
		Metadata: in.Metadata,
	}
	log := obs.WithTrace(ctx, s.log).With(
		zap.Int64("user_id", n.UserID),
		zap.String("type", string(n.Type)),
	)

	release, err := s.claimRecipient(ctx, log, n.UserID)
	if err != nil {
		return nil, err
	}

	d := s.router.Route(ctx, n.UserID, n.Type)
	chans := d.Secondary()

	persist := func(ctx context.Context) error {
		if err := s.notifs.Create(ctx, n); err != nil {
			return fmt.Errorf("persist notification: %w", err)
		}
		return s.enqueue(ctx, n, chans, d.NotBefore)
	}
	if s.tx != nil {
		err = s.tx.WithTx(ctx, persist)
	} else {
		err = persist(ctx)
	}
	if err != nil {
		release()
		return nil, err
	}

	mCreated.WithLabelValues(string(n.Type)).Inc()
	for _, ch := range chans {
		mEnqueued.WithLabelValues(string(ch)).Inc()
	}
	log = log.With(zap.Int64("notification_id", n.ID))

	if d.InApp {
		s.emit(ctx, log, realtime.EventNotificationNew, n, []string{realtime.UserRoom(n.UserID)})
	}
	return n, nil
}

// claimRecipient marks userID as notified for the keyed trigger in ctx. The
// returned func undoes the claim when persistence fails afterwards.
func (s *Service) claimRecipient(ctx context.Context, log *zap.Logger, userID int64) (func(), error) {
	tk, ok := triggerKeyFrom(ctx)
	if !ok || s.dedup == nil {
		return func() {}, nil
	}
	key := tk.key + "/user:" + strconv.FormatInt(userID, 10)
	first, err := s.dedup.Claim(ctx, tk.kind, key)
	switch {
	case err != nil:
		log.Warn("recipient dedup claim failed; notifying anyway", zap.Error(err))
		return func() {}, nil
	case !first:
		return nil, errAlreadyNotified
	}
	return func() {
		if err := s.dedup.Release(context.WithoutCancel(ctx), tk.kind, key); err != nil {
			log.Warn("recipient dedup release failed", zap.Error(err))
		}
	}, nil
}

// notify creates in and appends it to out. A recipient already served by an
// earlier attempt of the same trigger is skipped without error.
func (s *Service) notify(ctx context.Context, out []*notification.Notification, in Input) ([]*notification.Notification, error) {
	n, err := s.CreateNotification(ctx, in)
	switch {
	case errors.Is(err, errAlreadyNotified):
		mSkipped.WithLabelValues(string(in.Type)).Inc()
		return out, nil
	case err != nil:
		return out, err
	}
	return append(out, n), nil
}

// emit is fire-and-forget and outlives the caller's ctx: the rows it
// announces are already committed. The emitter bounds the call itself.
func (s *Service) emit(ctx context.Context, log *zap.Logger, event string, data any, rooms []string) {
	if s.emitter == nil {
		return
	}
	if err := s.emitter.Emit(context.WithoutCancel(ctx), event, data, rooms); err != nil {
		mEmitErrors.WithLabelValues(event).Inc()
		log.Warn("bus emit failed", zap.String("event", event), zap.Strings("rooms", rooms), zap.Error(err))
	}
}

// enqueue writes one delivery task per channel for n. Inside WithTx it joins
// the transaction that created n.
func (s *Service) enqueue(ctx context.Context, n *notification.Notification, chans []notification.Channel, notBefore time.Time) error {
	if len(chans) == 0 {
		return nil
	}
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	payload := delivery.Payload{
		Title:    n.Title,
		Message:  n.Message,
		TicketID: n.TicketID,
		Vars:     templateVars(n),
	}
	next := notBefore
	if next.IsZero() {
		next = s.clock.Now()
	}

	for _, ch := range chans {
		t := &delivery.Task{
			IdempotencyKey: n.IdempotencyKey(ch),
			NotificationID: n.ID,
			UserID:         n.UserID,
			Channel:        ch,
			Type:           n.Type,
			Payload:        payload,
			MaxAttempts:    s.maxAttempts,
			NextAttemptAt:  next,
			Traceparent:    carrier.Get("traceparent"),
			Tracestate:     carrier.Get("tracestate"),
		}
		if err := s.tasks.Enqueue(ctx, t); err != nil {
			return fmt.Errorf("enqueue %s: %w", ch, err)
		}
	}
	return nil
}

func validateInput(in Input) error {
	var problems []string
	if in.UserID <= 0 {
		problems = append(problems, "userId is required")
	}
	if strings.TrimSpace(in.Title) == "" {
		problems = append(problems, "title is required")
	}
	if strings.TrimSpace(in.Message) == "" {
		problems = append(problems, "message is required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrValidation, strings.Join(problems, "; "))
	}
	if err := notification.ValidateMetadata(in.Type, in.Metadata); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

// templateVars flattens what channel templates may reference.
func templateVars(n *notification.Notification) map[string]string {
	v := map[string]string{
		"title":   n.Title,
		"message": n.Message,
	}
	if n.TicketID != nil {
		v["ticketId"] = strconv.FormatInt(*n.TicketID, 10)
	}
	switch m := n.Metadata.(type) {
	case *notification.TicketCreatedMeta:
		v["ticketNumber"], v["subject"], v["priority"] = m.TicketNumber, m.Subject, m.Priority
	case *notification.TicketAssignedMeta:
		v["ticketNumber"] = m.TicketNumber
	case *notification.NewReplyMeta:
		v["ticketNumber"], v["authorName"] = m.TicketNumber, m.AuthorName
	case *notification.StatusChangedMeta:
		v["ticketNumber"], v["oldStatus"], v["newStatus"] = m.TicketNumber, m.OldStatus, m.NewStatus
	case *notification.SLABreachMeta:
		v["ticketNumber"], v["priority"] = m.TicketNumber, m.Priority
	case *notification.ExternalMessageMeta:
		v["source"], v["sender"] = m.Source, m.Sender
	}
	return v
}
