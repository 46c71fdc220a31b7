// Package bus fans draft notifications out to live subscribers of a company
// within one process.
package bus

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/anees-mohamed-ar/logistic/internal/domain"
)

// Compile-time checks: Hub is both ends of the notification bus.
var (
	_ domain.Notifier   = (*Hub)(nil)
	_ domain.Subscriber = (*Hub)(nil)
)

// DefaultBuffer is how many undelivered events a subscriber may fall behind
// before it is dropped.
const DefaultBuffer = 64

// Hub keeps the live subscriptions of every company. Publishing never
// blocks: a subscriber whose buffer is full is disconnected.
type Hub struct {
	mu     sync.RWMutex
	subs   map[int64]map[*subscription]struct{}
	buffer int
	logger *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subs:   make(map[int64]map[*subscription]struct{}),
		buffer: DefaultBuffer,
		logger: logger,
	}
}

// Subscribe registers a subscriber for tenantID. The snapshot is the first
// event on the returned subscription; events published while it is being
// built are delivered right after it. The subscription closes when ctx ends.
func (h *Hub) Subscribe(ctx context.Context, tenantID int64, snapshot domain.SnapshotFunc) (domain.Subscription, error) {
	sub := &subscription{
		hub:      h,
		tenantID: tenantID,
		ch:       make(chan domain.Notification, h.buffer),
	}
	h.add(sub)

	first, err := snapshot(ctx)
	if err != nil {
		sub.Close()
		return nil, fmt.Errorf("building snapshot: %w", err)
	}
	if !sub.start(first) {
		sub.Close()
		return nil, fmt.Errorf("subscriber for company %d fell behind before its snapshot", tenantID)
	}

	context.AfterFunc(ctx, sub.Close)
	return sub, nil
}

// Publish delivers n to every subscriber of n.TenantID.
func (h *Hub) Publish(_ context.Context, n domain.Notification) error {
	h.mu.RLock()
	targets := make([]*subscription, 0, len(h.subs[n.TenantID]))
	for sub := range h.subs[n.TenantID] {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	for _, sub := range targets {
		if !sub.deliver(n) {
			h.logger.Warn("dropping slow subscriber",
				zap.Int64("tenant_id", n.TenantID),
				zap.String("type", string(n.Type)),
			)
			sub.Close()
		}
	}
	return nil
}

// Subscribers reports how many live subscriptions tenantID has.
func (h *Hub) Subscribers(tenantID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[tenantID])
}

// Shutdown closes every subscription.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	var all []*subscription
	for _, set := range h.subs {
		for sub := range set {
			all = append(all, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range all {
		sub.Close()
	}
}

func (h *Hub) add(sub *subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[sub.tenantID]
	if !ok {
		set = make(map[*subscription]struct{})
		h.subs[sub.tenantID] = set
	}
	set[sub] = struct{}{}
}

func (h *Hub) remove(sub *subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.subs[sub.tenantID]
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subs, sub.tenantID)
	}
}

type subscription struct {
	hub      *Hub
	tenantID int64
	ch       chan domain.Notification

	mu      sync.Mutex
	started bool
	closed  bool
	// pending holds events published before the snapshot went out.
	pending []domain.Notification
}

func (s *subscription) Events() <-chan domain.Notification { return s.ch }

// Close ends the subscription and closes its channel. It is safe to call
// more than once.
func (s *subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.pending = nil
	close(s.ch)
	s.mu.Unlock()

	s.hub.remove(s)
}

// start sends the snapshot followed by anything queued while it was built.
func (s *subscription) start(snapshot domain.Notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if len(s.pending)+1 > cap(s.ch) {
		return false
	}
	s.ch <- snapshot
	for _, n := range s.pending {
		s.ch <- n
	}
	s.pending = nil
	s.started = true
	return true
}

// deliver queues n without blocking. It reports false when the subscriber
// cannot keep up.
func (s *subscription) deliver(n domain.Notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	if !s.started {
		if len(s.pending) >= cap(s.ch)-1 {
			return false
		}
		s.pending = append(s.pending, n)
		return true
	}
	select {
	case s.ch <- n:
		return true
	default:
		return false
	}
}
