package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/shubhankar-shipowl/help-desk-sub004/internal/auth"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/notification"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/preference"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/push"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/template"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/obs"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/repository/postgres"
	render "github.com/shubhankar-shipowl/help-desk-sub004/internal/template"
)

const IdempotencyHeader = "Idempotency-Key"

// Deduper remembers trigger idempotency keys.
type Deduper interface {
	Claim(ctx context.Context, kind, key string) (bool, error)
	Release(ctx context.Context, kind, key string) error
}

type triggerKey struct{ kind, key string }

type triggerKeyCtx struct{}

func withTriggerKey(ctx context.Context, kind, key string) context.Context {
	return context.WithValue(ctx, triggerKeyCtx{}, triggerKey{kind: kind, key: key})
}

func triggerKeyFrom(ctx context.Context) (triggerKey, bool) {
	tk, ok := ctx.Value(triggerKeyCtx{}).(triggerKey)
	return tk, ok
}

type Controller struct {
	svc       *Service
	notifs    notification.Repo
	prefs     preference.Repo
	push      push.Repo
	templates template.Repo
	dedup     Deduper
	log       *zap.Logger
}

type ControllerDeps struct {
	Service       *Service
	Notifications notification.Repo
	Preferences   preference.Repo
	Push          push.Repo
	Templates     template.Repo

	// Dedup is optional; without it triggers are never deduplicated.
	Dedup Deduper
	Log   *zap.Logger
}

func NewController(d ControllerDeps) *Controller {
	return &Controller{
		svc:       d.Service,
		notifs:    d.Notifications,
		prefs:     d.Preferences,
		push:      d.Push,
		templates: d.Templates,
		dedup:     d.Dedup,
		log:       obs.Component(d.Log, "dispatcher.http"),
	}
}

// ---- triggers ----

type ticketReq struct {
	TicketID int64 `json:"ticketId" validate:"required,gt=0"`
}

type assignedReq struct {
	TicketID     int64  `json:"ticketId" validate:"required,gt=0"`
	AssignedByID *int64 `json:"assignedById,omitempty"`
}

type replyReq struct {
	TicketID  int64 `json:"ticketId" validate:"required,gt=0"`
	CommentID int64 `json:"commentId" validate:"required,gt=0"`
}

type statusReq struct {
	TicketID    int64  `json:"ticketId" validate:"required,gt=0"`
	OldStatus   string `json:"oldStatus" validate:"required"`
	ChangedByID *int64 `json:"changedById,omitempty"`
}

type externalReq struct {
	Source     string `json:"source" validate:"required,oneof=email facebook"`
	ExternalID string `json:"externalId" validate:"required"`
	Sender     string `json:"sender,omitempty"`
	Preview    string `json:"preview,omitempty"`
	TicketID   *int64 `json:"ticketId,omitempty" validate:"omitempty,gt=0"`
}

type triggerResp struct {
	NotificationIDs []int64 `json:"notificationIds"`
	Deduplicated    bool    `json:"deduplicated,omitempty"`
}

func (c *Controller) TicketCreated(w http.ResponseWriter, r *http.Request) {
	var req ticketReq
	c.trigger(w, r, "ticket-created", &req, func(ctx context.Context) ([]*notification.Notification, error) {
		return c.svc.TicketCreated(ctx, req.TicketID)
	})
}

func (c *Controller) TicketAssigned(w http.ResponseWriter, r *http.Request) {
	var req assignedReq
	c.trigger(w, r, "ticket-assigned", &req, func(ctx context.Context) ([]*notification.Notification, error) {
		return c.svc.TicketAssigned(ctx, req.TicketID, req.AssignedByID)
	})
}

func (c *Controller) NewReply(w http.ResponseWriter, r *http.Request) {
	var req replyReq
	c.trigger(w, r, "new-reply", &req, func(ctx context.Context) ([]*notification.Notification, error) {
		return c.svc.NewReply(ctx, req.TicketID, req.CommentID)
	})
}

func (c *Controller) StatusChanged(w http.ResponseWriter, r *http.Request) {
	var req statusReq
	c.trigger(w, r, "status-changed", &req, func(ctx context.Context) ([]*notification.Notification, error) {
		return c.svc.StatusChanged(ctx, req.TicketID, req.OldStatus, req.ChangedByID)
	})
}

func (c *Controller) SLABreach(w http.ResponseWriter, r *http.Request) {
	var req ticketReq
	c.trigger(w, r, "sla-breach", &req, func(ctx context.Context) ([]*notification.Notification, error) {
		return c.svc.SLABreach(ctx, req.TicketID)
	})
}

func (c *Controller) ExternalMessage(w http.ResponseWriter, r *http.Request) {
	var req externalReq
	c.trigger(w, r, "external-message", &req, func(ctx context.Context) ([]*notification.Notification, error) {
		return c.svc.ExternalMessage(ctx, ExternalMessage{
			Source:     req.Source,
			ExternalID: req.ExternalID,
			Sender:     req.Sender,
			Preview:    req.Preview,
			TicketID:   req.TicketID,
		})
	})
}

func (c *Controller) TicketDeleted(w http.ResponseWriter, r *http.Request) {
	var req ticketReq
	c.trigger(w, r, "ticket-deleted", &req, func(ctx context.Context) ([]*notification.Notification, error) {
		return nil, c.svc.TicketDeleted(ctx, req.TicketID)
	})
}

// trigger decodes the body, applies optional Idempotency-Key dedup and runs fn.
func (c *Controller) trigger(w http.ResponseWriter, r *http.Request, kind string, req any, fn func(context.Context) ([]*notification.Notification, error)) {
	if err := decode(r, req); err != nil {
		c.fail(w, r, err)
		return
	}
	ctx := r.Context()
	log := obs.WithTrace(ctx, c.log).With(zap.String("trigger", kind))

	key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	claimed := false
	if key != "" && c.dedup != nil {
		first, err := c.dedup.Claim(ctx, kind, key)
		switch {
		case err != nil:
			// the store being down must not block notifications
			log.Warn("dedup claim failed; processing anyway", zap.Error(err))
		case !first:
			log.Info("duplicate trigger ignored", zap.String("key", key))
			writeJSON(w, http.StatusOK, triggerResp{NotificationIDs: []int64{}, Deduplicated: true})
			return
		default:
			claimed = true
		}
		ctx = withTriggerKey(ctx, kind, key)
	}

	created, err := fn(ctx)
	if err != nil {
		if claimed {
			if rerr := c.dedup.Release(context.WithoutCancel(ctx), kind, key); rerr != nil {
				log.Warn("dedup release failed", zap.Error(rerr))
			}
		}
		c.fail(w, r, err)
		return
	}

	ids := make([]int64, 0, len(created))
	for _, n := range created {
		ids = append(ids, n.ID)
	}
	writeJSON(w, http.StatusOK, triggerResp{NotificationIDs: ids})
}

// ---- user notifications ----

const (
	defaultLimit = 20
	maxLimit     = 100
)

func (c *Controller) ListNotifications(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromCtx(r.Context())
	f, err := parseFilter(r)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	page, err := c.notifs.List(r.Context(), id.UserID, f)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func parseFilter(r *http.Request) (notification.Filter, error) {
	q := r.URL.Query()
	f := notification.Filter{Page: 1, Limit: defaultLimit}
	if v := q.Get("page"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil || p < 1 {
			return f, fmt.Errorf("%w: page must be a positive integer", ErrValidation)
		}
		f.Page = p
	}
	if v := q.Get("limit"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil || l < 1 {
			return f, fmt.Errorf("%w: limit must be a positive integer", ErrValidation)
		}
		f.Limit = min(l, maxLimit)
	}
	if v := q.Get("read"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, fmt.Errorf("%w: read must be true or false", ErrValidation)
		}
		f.Read = &b
	}
	if v := q.Get("type"); v != "" {
		t := notification.Type(v)
		if !t.Valid() {
			return f, fmt.Errorf("%w: unknown type %q", ErrValidation, v)
		}
		f.Type = &t
	}
	return f, nil
}

type markReq struct {
	NotificationIDs []int64 `json:"notificationIds" validate:"required_without=All,omitempty,dive,gt=0"`
	Read            *bool   `json:"read,omitempty"`
	All             bool    `json:"all,omitempty"`
	Type            string  `json:"type,omitempty"`
}

func (c *Controller) MarkNotifications(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromCtx(r.Context())
	var req markReq
	if err := decode(r, &req); err != nil {
		c.fail(w, r, err)
		return
	}

	var (
		updated int64
		err     error
	)
	if req.All {
		var t *notification.Type
		if req.Type != "" {
			tt := notification.Type(req.Type)
			if !tt.Valid() {
				c.fail(w, r, fmt.Errorf("%w: unknown type %q", ErrValidation, req.Type))
				return
			}
			t = &tt
		}
		updated, err = c.notifs.MarkAllRead(r.Context(), id.UserID, t)
	} else {
		read := true
		if req.Read != nil {
			read = *req.Read
		}
		updated, err = c.notifs.MarkRead(r.Context(), id.UserID, req.NotificationIDs, read)
	}
	if err != nil {
		c.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": updated})
}

func (c *Controller) MarkOne(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromCtx(r.Context())
	nid, err := pathID(r)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	n, err := c.notifs.MarkOne(r.Context(), id.UserID, nid)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (c *Controller) UnreadCount(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromCtx(r.Context())
	n, err := c.notifs.UnreadCount(r.Context(), id.UserID)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": n})
}

// ---- preferences ----

func (c *Controller) GetPreferences(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromCtx(r.Context())
	explicit, err := c.prefs.ListByUser(r.Context(), id.UserID)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	byType := make(map[notification.Type]*preference.Preference, len(explicit))
	for _, p := range explicit {
		byType[p.Type] = p
	}
	out := make([]preference.Preference, 0, len(notification.Types))
	for _, t := range notification.Types {
		if p, ok := byType[t]; ok {
			out = append(out, *p)
			continue
		}
		out = append(out, preference.Default(id.UserID, t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"preferences": out})
}

type preferenceReq struct {
	NotificationType string  `json:"notificationType" validate:"required"`
	InApp            *bool   `json:"inApp,omitempty"`
	Email            *bool   `json:"email,omitempty"`
	Push             *bool   `json:"push,omitempty"`
	QuietHoursStart  *string `json:"quietHoursStart,omitempty"`
	QuietHoursEnd    *string `json:"quietHoursEnd,omitempty"`
	Timezone         *string `json:"timezone,omitempty"`
}

func (c *Controller) UpdatePreference(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromCtx(r.Context())
	var req preferenceReq
	if err := decode(r, &req); err != nil {
		c.fail(w, r, err)
		return
	}
	t := notification.Type(req.NotificationType)
	if !t.Valid() {
		c.fail(w, r, fmt.Errorf("%w: unknown notificationType %q", ErrValidation, req.NotificationType))
		return
	}

	p, err := c.prefs.Get(r.Context(), id.UserID, t)
	switch {
	case errors.Is(err, postgres.ErrNotFound):
		d := preference.Default(id.UserID, t)
		p = &d
	case err != nil:
		c.fail(w, r, err)
		return
	}

	if err := applyPreference(p, req); err != nil {
		c.fail(w, r, err)
		return
	}
	if err := c.prefs.Upsert(r.Context(), p); err != nil {
		c.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func applyPreference(p *preference.Preference, req preferenceReq) error {
	if req.InApp != nil {
		p.InApp = *req.InApp
	}
	if req.Email != nil {
		p.Email = *req.Email
	}
	if req.Push != nil {
		p.Push = *req.Push
	}
	if req.QuietHoursStart == nil && req.QuietHoursEnd == nil && req.Timezone == nil {
		return nil
	}

	q := preference.QuietHours{}
	if p.QuietHours != nil {
		q = *p.QuietHours
	}
	if req.QuietHoursStart != nil {
		q.Start = *req.QuietHoursStart
	}
	if req.QuietHoursEnd != nil {
		q.End = *req.QuietHoursEnd
	}
	if req.Timezone != nil {
		q.Timezone = *req.Timezone
	}
	if q.Start == "" && q.End == "" {
		// empty bounds clear the window
		p.QuietHours = nil
		return nil
	}
	if err := q.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	p.QuietHours = &q
	return nil
}

// ---- push subscriptions ----

type subscribeReq struct {
	Endpoint string `json:"endpoint" validate:"required,url"`
	Keys     struct {
		P256dh string `json:"p256dh" validate:"required"`
		Auth   string `json:"auth" validate:"required"`
	} `json:"keys"`
}

type unsubscribeReq struct {
	Endpoint string `json:"endpoint" validate:"required"`
}

func (c *Controller) Subscribe(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromCtx(r.Context())
	var req subscribeReq
	if err := decode(r, &req); err != nil {
		c.fail(w, r, err)
		return
	}
	s := &push.Subscription{
		UserID:    id.UserID,
		Endpoint:  req.Endpoint,
		P256dh:    req.Keys.P256dh,
		Auth:      req.Keys.Auth,
		UserAgent: r.UserAgent(),
	}
	if err := c.push.Upsert(r.Context(), s); err != nil {
		c.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

func (c *Controller) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromCtx(r.Context())
	var req unsubscribeReq
	if err := decode(r, &req); err != nil {
		c.fail(w, r, err)
		return
	}
	if err := c.push.DeactivateEndpoint(r.Context(), id.UserID, req.Endpoint); err != nil {
		c.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- admin ----

func (c *Controller) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	nid, err := pathID(r)
	if err != nil {
		c.fail(w, r, err)
		return
	}
	if err := c.notifs.Delete(r.Context(), nid); err != nil {
		c.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *Controller) ListTemplates(w http.ResponseWriter, r *http.Request) {
	tpls, err := c.templates.List(r.Context())
	if err != nil {
		c.fail(w, r, err)
		return
	}
	if tpls == nil {
		tpls = []*template.Template{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": tpls})
}

type templateReq struct {
	Type      string   `json:"type" validate:"required"`
	Channel   string   `json:"channel" validate:"required,oneof=IN_APP EMAIL PUSH"`
	Subject   string   `json:"subject"`
	Body      string   `json:"body" validate:"required"`
	HTML      string   `json:"html"`
	Variables []string `json:"variables" validate:"dive,required"`
	Active    *bool    `json:"active,omitempty"`
}

func (c *Controller) UpsertTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateReq
	if err := decode(r, &req); err != nil {
		c.fail(w, r, err)
		return
	}
	t := notification.Type(req.Type)
	if !t.Valid() {
		c.fail(w, r, fmt.Errorf("%w: unknown type %q", ErrValidation, req.Type))
		return
	}
	tpl := &template.Template{
		Type:      t,
		Channel:   notification.Channel(req.Channel),
		Subject:   req.Subject,
		Body:      req.Body,
		HTML:      req.HTML,
		Variables: req.Variables,
		Active:    req.Active == nil || *req.Active,
	}

	// every token must be declared so that renders can be checked up front
	sample := make(map[string]string, len(tpl.Variables))
	for _, v := range tpl.Variables {
		sample[v] = v
	}
	if _, err := render.Apply(tpl, sample); err != nil {
		c.fail(w, r, fmt.Errorf("%w: %v", ErrValidation, err))
		return
	}

	if err := c.templates.Upsert(r.Context(), tpl); err != nil {
		c.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad id", ErrValidation)
	}
	return id, nil
}
