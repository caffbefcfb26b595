package notify

import (
	"sync"
	"testing"

	"parley/pkg/apperr"
	"parley/pkg/broker"
	"parley/pkg/logger"
	"parley/pkg/models"
	"parley/pkg/store"
)

type recorder struct {
	mu     sync.Mutex
	events []broker.Event
}

func (r *recorder) TrySend(ev broker.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return true
}

func (r *recorder) last() (broker.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return broker.Event{}, false
	}
	return r.events[len(r.events)-1], true
}

func newTestService(t *testing.T) (*Service, *recorder) {
	t.Helper()
	logger.Init()
	if err := store.Open(t.TempDir()); err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	b := broker.New()
	rec := &recorder{}
	b.Register("u1", rec)
	return New(b), rec
}

func TestPushStoresUnreadAndPublishes(t *testing.T) {
	svc, rec := newTestService(t)
	n, err := svc.Push("u1", "password changed", "your password was updated", models.IconSecurity)
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if !n.Unread || n.Time == "" {
		t.Fatalf("unexpected notification: %+v", n)
	}
	ev, ok := rec.last()
	if !ok || ev.Event != broker.EventNotificationNew {
		t.Fatalf("expected notification:new, got %+v", ev)
	}
	unread, err := svc.HasAnyUnread("u1")
	if err != nil || !unread {
		t.Fatalf("expected unread: %v %v", unread, err)
	}
}

func TestPushRejectsBadIcon(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.Push("u1", "t", "m", "sparkles"); !apperr.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.Push("u1", "", "m", models.IconMail); !apperr.IsValidation(err) {
		t.Fatalf("expected validation error for empty title, got %v", err)
	}
}

func TestListCapNewestFirst(t *testing.T) {
	svc, _ := newTestService(t)
	for i := 0; i < 15; i++ {
		if _, err := svc.Push("u1", "t", "m", models.IconMail); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}
	ns, err := svc.List("u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ns) != 10 {
		t.Fatalf("expected the 10-entry cap, got %d", len(ns))
	}
	for i := 1; i < len(ns); i++ {
		if ns[i-1].TS < ns[i].TS {
			t.Fatalf("not newest-first at %d", i)
		}
	}
}

func TestMarkOneRead(t *testing.T) {
	svc, rec := newTestService(t)
	n, _ := svc.Push("u1", "t", "m", models.IconPerson)
	if err := svc.MarkOneRead("u1", n.ID); err != nil {
		t.Fatalf("mark one: %v", err)
	}
	ns, _ := svc.List("u1")
	if ns[0].Unread {
		t.Fatalf("read flag not flipped")
	}
	ev, _ := rec.last()
	if ev.Event != broker.EventNotificationUpdate {
		t.Fatalf("expected notification:update, got %s", ev.Event)
	}
	// idempotent
	if err := svc.MarkOneRead("u1", n.ID); err != nil {
		t.Fatalf("second mark one: %v", err)
	}
	if err := svc.MarkOneRead("u1", "notif-ghost"); !apperr.IsNotFound(err) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestMarkAllRead(t *testing.T) {
	svc, rec := newTestService(t)
	for i := 0; i < 4; i++ {
		_, _ = svc.Push("u1", "t", "m", models.IconMail)
	}
	if err := svc.MarkAllRead("u1"); err != nil {
		t.Fatalf("mark all: %v", err)
	}
	ns, _ := svc.List("u1")
	for _, n := range ns {
		if n.Unread {
			t.Fatalf("notification %s still unread", n.ID)
		}
	}
	unread, _ := svc.HasAnyUnread("u1")
	if unread {
		t.Fatalf("account flag still unread")
	}
	ev, _ := rec.last()
	upd, ok := ev.Data.(models.NotificationUpdateEvent)
	if !ok || upd.NotificationID != MarkAllID {
		t.Fatalf("expected the all marker, got %+v", ev)
	}
}
