package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/delivery"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/notification"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/preference"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/push"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/template"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/ticket"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/repository/postgres"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type memNotifications struct {
	mu     sync.Mutex
	nextID int64
	rows   []*notification.Notification

	// failUser makes Create fail for that recipient until failTimes is spent.
	failUser  int64
	failTimes int
	// afterCreate runs once a row is stored.
	afterCreate func()
}

func (m *memNotifications) Create(ctx context.Context, n *notification.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	if n.UserID == m.failUser && m.failTimes > 0 {
		m.failTimes--
		m.mu.Unlock()
		return errors.New("insert notification: connection reset")
	}
	defer func() {
		if m.afterCreate != nil {
			m.afterCreate()
		}
	}()
	defer m.mu.Unlock()
	m.nextID++
	n.ID = m.nextID
	n.CreatedAt = time.Now().UTC()
	cp := *n
	m.rows = append(m.rows, &cp)
	return nil
}

func (m *memNotifications) List(_ context.Context, userID int64, f notification.Filter) (*notification.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*notification.Notification
	for i := len(m.rows) - 1; i >= 0; i-- {
		n := m.rows[i]
		if n.UserID != userID {
			continue
		}
		if f.Read != nil && n.Read != *f.Read {
			continue
		}
		if f.Type != nil && n.Type != *f.Type {
			continue
		}
		all = append(all, n)
	}
	page := &notification.Page{Items: []*notification.Notification{}, Total: len(all), Page: f.Page, Limit: f.Limit}
	for i := f.Offset(); i < len(all) && len(page.Items) < f.Limit; i++ {
		page.Items = append(page.Items, all[i])
	}
	return page, nil
}

func (m *memNotifications) MarkRead(_ context.Context, userID int64, ids []int64, read bool) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var n int64
	for _, r := range m.rows {
		if r.UserID == userID && want[r.ID] && r.Read != read {
			r.Read = read
			n++
		}
	}
	return n, nil
}

func (m *memNotifications) MarkOne(_ context.Context, userID, id int64) (*notification.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.ID == id && r.UserID == userID {
			r.Read = true
			cp := *r
			return &cp, nil
		}
	}
	return nil, postgres.ErrNotFound
}

func (m *memNotifications) MarkAllRead(_ context.Context, userID int64, t *notification.Type) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, r := range m.rows {
		if r.UserID != userID || r.Read || (t != nil && r.Type != *t) {
			continue
		}
		r.Read = true
		n++
	}
	return n, nil
}

func (m *memNotifications) UnreadCount(_ context.Context, userID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, r := range m.rows {
		if r.UserID == userID && !r.Read {
			n++
		}
	}
	return n, nil
}

func (m *memNotifications) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.rows {
		if r.ID == id {
			m.rows = append(m.rows[:i], m.rows[i+1:]...)
			return nil
		}
	}
	return postgres.ErrNotFound
}

func (m *memNotifications) forUser(userID int64) []*notification.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*notification.Notification
	for _, r := range m.rows {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out
}

func (m *memNotifications) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

type memTasks struct {
	mu    sync.Mutex
	tasks map[string]*delivery.Task
	err   error
}

func (m *memTasks) Enqueue(ctx context.Context, t *delivery.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.tasks == nil {
		m.tasks = map[string]*delivery.Task{}
	}
	if _, ok := m.tasks[t.IdempotencyKey]; !ok {
		cp := *t
		cp.Status = delivery.StatusPending
		m.tasks[t.IdempotencyKey] = &cp
	}
	return nil
}

func (m *memTasks) PickBatch(context.Context, notification.Channel, int, time.Duration) ([]*delivery.Task, error) {
	return nil, nil
}
func (m *memTasks) FailExhausted(context.Context, notification.Channel, time.Duration) (int64, error) {
	return 0, nil
}
func (m *memTasks) MarkDelivered(context.Context, int64, delivery.Status) error { return nil }
func (m *memTasks) MarkRetry(context.Context, int64, time.Time, string) error   { return nil }
func (m *memTasks) MarkFailed(context.Context, int64, string) error             { return nil }

func (m *memTasks) byChannel(userID int64) map[notification.Channel]*delivery.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[notification.Channel]*delivery.Task{}
	for _, t := range m.tasks {
		if t.UserID == userID {
			out[t.Channel] = t
		}
	}
	return out
}

// memTx gives the in-memory notification and task stores all-or-nothing
// semantics: a failed fn restores both to their state before the call.
type memTx struct {
	notifs *memNotifications
	tasks  *memTasks
}

func (m *memTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.notifs.mu.Lock()
	rows := len(m.notifs.rows)
	m.notifs.mu.Unlock()

	m.tasks.mu.Lock()
	tasks := make(map[string]*delivery.Task, len(m.tasks.tasks))
	for k, v := range m.tasks.tasks {
		tasks[k] = v
	}
	m.tasks.mu.Unlock()

	if err := fn(ctx); err != nil {
		m.notifs.mu.Lock()
		m.notifs.rows = m.notifs.rows[:rows]
		m.notifs.mu.Unlock()
		m.tasks.mu.Lock()
		m.tasks.tasks = tasks
		m.tasks.mu.Unlock()
		return err
	}
	return nil
}

type memPrefs struct {
	mu   sync.Mutex
	rows map[string]*preference.Preference
	err  error
}

func prefKey(userID int64, t notification.Type) string {
	return fmt.Sprintf("%d/%s", userID, t)
}

func (m *memPrefs) Get(_ context.Context, userID int64, t notification.Type) (*preference.Preference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.rows[prefKey(userID, t)]
	if !ok {
		return nil, postgres.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPrefs) ListByUser(_ context.Context, userID int64) ([]*preference.Preference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*preference.Preference
	for _, p := range m.rows {
		if p.UserID == userID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out, nil
}

func (m *memPrefs) Upsert(_ context.Context, p *preference.Preference) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rows == nil {
		m.rows = map[string]*preference.Preference{}
	}
	cp := *p
	m.rows[prefKey(p.UserID, p.Type)] = &cp
	return nil
}

type memPush struct {
	mu   sync.Mutex
	subs []*push.Subscription
}

func (m *memPush) Upsert(_ context.Context, s *push.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.subs {
		if e.UserID == s.UserID && e.Endpoint == s.Endpoint {
			e.P256dh, e.Auth, e.Active = s.P256dh, s.Auth, true
			s.ID, s.Active = e.ID, true
			return nil
		}
	}
	s.ID = int64(len(m.subs) + 1)
	s.Active = true
	cp := *s
	m.subs = append(m.subs, &cp)
	return nil
}

func (m *memPush) ListActive(_ context.Context, userID int64) ([]*push.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*push.Subscription
	for _, s := range m.subs {
		if s.UserID == userID && s.Active {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memPush) Deactivate(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.ID == id {
			s.Active = false
		}
	}
	return nil
}

func (m *memPush) DeactivateEndpoint(_ context.Context, userID int64, endpoint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.UserID == userID && s.Endpoint == endpoint {
			s.Active = false
		}
	}
	return nil
}

func (m *memPush) Touch(context.Context, int64) error { return nil }

type memTemplates struct {
	mu   sync.Mutex
	rows []*template.Template
}

func (m *memTemplates) Get(_ context.Context, t notification.Type, ch notification.Channel) (*template.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.Type == t && r.Channel == ch {
			return r, nil
		}
	}
	return nil, postgres.ErrNotFound
}

func (m *memTemplates) List(context.Context) ([]*template.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*template.Template(nil), m.rows...), nil
}

func (m *memTemplates) Upsert(_ context.Context, tpl *template.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.rows {
		if r.Type == tpl.Type && r.Channel == tpl.Channel {
			m.rows[i] = tpl
			return nil
		}
	}
	tpl.ID = int64(len(m.rows) + 1)
	m.rows = append(m.rows, tpl)
	return nil
}

type memTickets struct {
	mu       sync.RWMutex
	tickets  map[int64]*ticket.Ticket
	comments map[int64]*ticket.Comment
	users    map[int64]*ticket.User
}

func (m *memTickets) add(t *ticket.Ticket) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickets[t.ID] = t
}

func (m *memTickets) GetTicket(_ context.Context, id int64) (*ticket.Ticket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if t, ok := m.tickets[id]; ok {
		return t, nil
	}
	return nil, postgres.ErrNotFound
}

func (m *memTickets) GetComment(_ context.Context, id int64) (*ticket.Comment, error) {
	if c, ok := m.comments[id]; ok {
		return c, nil
	}
	return nil, postgres.ErrNotFound
}

func (m *memTickets) GetUser(_ context.Context, id int64) (*ticket.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, postgres.ErrNotFound
}

func (m *memTickets) ListUsersByRole(_ context.Context, role ticket.Role) ([]*ticket.User, error) {
	var out []*ticket.User
	for _, u := range m.users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type emitted struct {
	Event string
	Data  any
	Rooms []string
	// CtxErr is the state of the ctx the emit was made with.
	CtxErr error
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []emitted
	err    error
}

func (e *recordingEmitter) Emit(ctx context.Context, event string, data any, rooms []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, emitted{Event: event, Data: data, Rooms: rooms, CtxErr: ctx.Err()})
	return e.err
}

func (e *recordingEmitter) named(event string) []emitted {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []emitted
	for _, ev := range e.events {
		if ev.Event == event {
			out = append(out, ev)
		}
	}
	return out
}
