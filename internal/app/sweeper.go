package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/anees-mohamed-ar/logistic/internal/domain"
)

// LeaseSweeper clears stale draft leases in bulk. Lock and CheckLock expire
// leases lazily, so the sweeper only tidies up leases nobody touched again.
type LeaseSweeper struct {
	drafts   domain.DraftRepository
	gate     *IdentityGate
	notifier domain.Notifier
	opts     options
}

// NewLeaseSweeper creates a sweeper over the draft store.
func NewLeaseSweeper(drafts domain.DraftRepository, gate *IdentityGate, notifier domain.Notifier, opts ...Option) *LeaseSweeper {
	return &LeaseSweeper{
		drafts:   drafts,
		gate:     gate,
		notifier: notifier,
		opts:     newOptions(opts),
	}
}

// Sweep clears every lease older than the lease TTL and publishes one
// autoUnlocked notification per affected company. It returns the number of
// leases cleared. Running it again right away clears nothing.
func (s *LeaseSweeper) Sweep(ctx context.Context) (int, error) {
	swept, err := s.drafts.SweepStaleLeases(ctx, s.opts.staleBefore(s.opts.clock()))
	if err != nil {
		return 0, fmt.Errorf("sweeping stale leases: %w", err)
	}

	total := 0
	for _, group := range swept {
		total += len(group.DraftIDs)
		publish(ctx, s.notifier, s.opts, domain.Notification{
			Type:     domain.NotifyAutoUnlocked,
			TenantID: group.TenantID,
			Count:    len(group.DraftIDs),
			DraftIDs: group.DraftIDs,
		})
	}
	if total > 0 {
		s.opts.logger.Info("stale leases cleared", zap.Int("count", total), zap.Int("companies", len(swept)))
	}
	return total, nil
}

// Tick runs one periodic sweep. Failures are logged; the next tick retries.
func (s *LeaseSweeper) Tick(ctx context.Context) {
	if _, err := s.Sweep(ctx); err != nil {
		s.opts.logger.Error("lease sweep failed", zap.Error(err))
	}
}

// Trigger runs a sweep on behalf of a privileged caller.
func (s *LeaseSweeper) Trigger(ctx context.Context, c Caller) (int, error) {
	if _, err := s.gate.authorizePrivileged(ctx, c); err != nil {
		return 0, err
	}
	return s.Sweep(ctx)
}
