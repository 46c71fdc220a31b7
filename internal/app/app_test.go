package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/anees-mohamed-ar/logistic/internal/adapter/fsm"
	"github.com/anees-mohamed-ar/logistic/internal/adapter/sqlite"
	"github.com/anees-mohamed-ar/logistic/internal/app"
	"github.com/anees-mohamed-ar/logistic/internal/domain"
)

// --- Fakes ---

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.Notification
}

func (n *recordingNotifier) Publish(_ context.Context, e domain.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return nil
}

func (n *recordingNotifier) ofType(typ domain.NotificationType) []domain.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []domain.Notification
	for _, e := range n.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

type recordingHook struct {
	mu       sync.Mutex
	consumed []domain.Consumption
	err      error
}

func (h *recordingHook) NumberConsumed(_ context.Context, c domain.Consumption) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.consumed = append(h.consumed, c)
	return h.err
}

type fakeSubscription struct {
	ch chan domain.Notification
}

func (s *fakeSubscription) Events() <-chan domain.Notification { return s.ch }
func (s *fakeSubscription) Close()                             {}

// snapshotSubscriber delivers the snapshot and nothing else.
type snapshotSubscriber struct {
	tenantID int64
}

func (s *snapshotSubscriber) Subscribe(ctx context.Context, tenantID int64, snapshot domain.SnapshotFunc) (domain.Subscription, error) {
	s.tenantID = tenantID
	n, err := snapshot(ctx)
	if err != nil {
		return nil, err
	}
	sub := &fakeSubscription{ch: make(chan domain.Notification, 1)}
	sub.ch <- n
	return sub, nil
}

// --- Harness ---

const (
	company = int64(5)
	admin   = int64(1)
	userA   = int64(2)
	userB   = int64(3)
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func caller(user int64) app.Caller {
	return app.Caller{UserID: user, TenantID: company}
}

type harness struct {
	store   *sqlite.Store
	clock   *fakeClock
	notes   *recordingNotifier
	hook    *recordingHook
	subs    *snapshotSubscriber
	drafts  *app.DraftService
	ranges  *app.NumberAllocator
	sweeper *app.LeaseSweeper
	records *app.RecordService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	for _, m := range []domain.Member{
		{UserID: admin, TenantID: company, Role: domain.RoleAdmin},
		{UserID: userA, TenantID: company, Role: "staff"},
		{UserID: userB, TenantID: company, Role: "staff"},
	} {
		if err := store.PutMember(ctx, m); err != nil {
			t.Fatalf("PutMember: %v", err)
		}
	}

	h := &harness{
		store: store,
		clock: &fakeClock{now: t0},
		notes: &recordingNotifier{},
		hook:  &recordingHook{},
		subs:  &snapshotSubscriber{},
	}
	opts := []app.Option{app.WithClock(h.clock.Now)}
	gate := app.NewIdentityGate(store)

	h.drafts = app.NewDraftService(app.DraftDeps{
		Drafts:     store,
		Records:    store,
		Tx:         store,
		Gate:       gate,
		Validator:  fsm.New(),
		Notifier:   h.notes,
		Subscriber: h.subs,
		Hook:       h.hook,
	}, opts...)
	h.ranges = app.NewNumberAllocator(store, store, store, gate, opts...)
	h.sweeper = app.NewLeaseSweeper(store, gate, h.notes, opts...)
	h.records = app.NewRecordService(store, gate, opts...)
	return h
}

// seedDraft stores a draft with a fixed id in the default company.
func (h *harness) seedDraft(t *testing.T, id string, fields domain.ShipmentFields) {
	t.Helper()
	d := domain.NewDraftRecord(id, domain.Scope{TenantID: company}, admin, fields, h.clock.Now())
	if err := h.store.CreateDraft(context.Background(), d); err != nil {
		t.Fatalf("seeding draft: %v", err)
	}
}

func (h *harness) mustLock(t *testing.T, id string, user int64) {
	t.Helper()
	if _, err := h.drafts.Lock(context.Background(), caller(user), id); err != nil {
		t.Fatalf("Lock(%s, %d): %v", id, user, err)
	}
}

func wantKind(t *testing.T, err error, kind domain.Kind) {
	t.Helper()
	if got := domain.KindOf(err); got != kind {
		t.Errorf("error = %v (kind %q), want kind %q", err, got, kind)
	}
}

// --- Identity gate ---

func TestAuthorize(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	branch7, branch8 := int64(7), int64(8)
	if err := h.store.PutMember(ctx, domain.Member{UserID: 9, TenantID: company, BranchID: &branch7, Role: domain.RoleSuperAdmin}); err != nil {
		t.Fatalf("PutMember: %v", err)
	}
	gate := app.NewIdentityGate(h.store)

	tests := []struct {
		name   string
		caller app.Caller
		reason string
	}{
		{"unknown company", app.Caller{UserID: userA, TenantID: 99}, "user does not belong to company"},
		{"no branch assigned", app.Caller{UserID: userA, TenantID: company, BranchID: &branch7}, "user has no branch assigned"},
		{"wrong branch", app.Caller{UserID: 9, TenantID: company, BranchID: &branch8}, "user does not belong to branch"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := gate.Authorize(ctx, tt.caller)
			var denied *domain.AccessDeniedError
			if !errors.As(err, &denied) {
				t.Fatalf("error = %v, want AccessDeniedError", err)
			}
			if denied.Reason != tt.reason {
				t.Errorf("Reason = %q, want %q", denied.Reason, tt.reason)
			}
		})
	}

	ident, err := gate.Authorize(ctx, app.Caller{UserID: 9, TenantID: company, BranchID: &branch7})
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if !ident.Privileged || ident.BranchID == nil || *ident.BranchID != 7 {
		t.Errorf("identity = %+v, want privileged in branch 7", ident)
	}

	ident, err = gate.Authorize(ctx, caller(userA))
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if ident.Privileged {
		t.Error("staff member should not be privileged")
	}
}
