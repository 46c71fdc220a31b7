package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/anees-mohamed-ar/logistic/internal/domain"
)

// DraftDeps groups the adapters a DraftService needs.
type DraftDeps struct {
	Drafts     domain.DraftRepository
	Records    domain.RecordRepository
	Tx         domain.TxManager
	Gate       *IdentityGate
	Validator  domain.TransitionValidator
	Notifier   domain.Notifier
	Subscriber domain.Subscriber
	// Hook is told about consumed numbers after a conversion commits. Optional.
	Hook domain.ConsumptionHook
}

// DraftService manages draft records, their edit leases and their
// conversion into permanent records.
type DraftService struct {
	drafts     domain.DraftRepository
	records    domain.RecordRepository
	tx         domain.TxManager
	gate       *IdentityGate
	validator  domain.TransitionValidator
	notifier   domain.Notifier
	subscriber domain.Subscriber
	hook       domain.ConsumptionHook
	opts       options
}

// NewDraftService creates a service with the given adapters.
func NewDraftService(deps DraftDeps, opts ...Option) *DraftService {
	return &DraftService{
		drafts:     deps.Drafts,
		records:    deps.Records,
		tx:         deps.Tx,
		gate:       deps.Gate,
		validator:  deps.Validator,
		notifier:   deps.Notifier,
		subscriber: deps.Subscriber,
		hook:       deps.Hook,
		opts:       newOptions(opts),
	}
}

// Create stores a new draft in the caller's company and branch.
func (s *DraftService) Create(ctx context.Context, c Caller, fields domain.ShipmentFields) (domain.DraftRecord, error) {
	ident, err := s.gate.authorizePrivileged(ctx, c)
	if err != nil {
		return domain.DraftRecord{}, err
	}

	now := s.opts.clock()
	id, err := generateDraftID(now)
	if err != nil {
		return domain.DraftRecord{}, fmt.Errorf("generating draft id: %w", err)
	}

	draft := domain.NewDraftRecord(id, ident.Scope(), ident.UserID, fields, now)
	if err := s.drafts.CreateDraft(ctx, draft); err != nil {
		return domain.DraftRecord{}, fmt.Errorf("creating draft: %w", err)
	}

	s.publish(ctx, domain.Notification{
		Type:     domain.NotifyCreated,
		TenantID: draft.TenantID,
		DraftID:  draft.ID,
		Actor:    ident.UserID,
		Draft:    &draft,
	})
	return draft, nil
}

// List returns the unconverted drafts the caller may work on: free drafts,
// drafts under a stale lease, and drafts the caller holds.
func (s *DraftService) List(ctx context.Context, c Caller) ([]domain.DraftRecord, error) {
	ident, err := s.gate.Authorize(ctx, c)
	if err != nil {
		return nil, err
	}
	return s.drafts.ListOpenDrafts(ctx, domain.DraftFilter{
		Scope:       ident.Scope(),
		StaleBefore: s.opts.staleBefore(s.opts.clock()),
		VisibleTo:   ident.UserID,
	})
}

// Get returns one draft of the caller's company.
func (s *DraftService) Get(ctx context.Context, c Caller, id string) (domain.DraftRecord, error) {
	ident, err := s.gate.Authorize(ctx, c)
	if err != nil {
		return domain.DraftRecord{}, err
	}
	return s.drafts.GetDraft(ctx, id, ident.Scope())
}

// Update replaces the fields of an unconverted draft. It is refused while
// another user holds a live lease.
func (s *DraftService) Update(ctx context.Context, c Caller, id string, fields domain.ShipmentFields) (domain.DraftRecord, error) {
	ident, err := s.gate.authorizePrivileged(ctx, c)
	if err != nil {
		return domain.DraftRecord{}, err
	}
	scope := ident.Scope()

	draft, err := s.mutable(ctx, id, scope, domain.EventEdit)
	if err != nil {
		return domain.DraftRecord{}, err
	}

	now := s.opts.clock()
	staleBefore := s.opts.staleBefore(now)
	if draft.Locked && !draft.HeldBy(ident.UserID) && !draft.LeaseStale(staleBefore) {
		return domain.DraftRecord{}, &domain.AlreadyLockedError{DraftID: id, Holder: *draft.LockedBy, LockedAt: *draft.LockedAt}
	}

	ok, err := s.drafts.UpdateDraftFields(ctx, id, scope, fields, ident.UserID, staleBefore, now)
	if err != nil {
		return domain.DraftRecord{}, fmt.Errorf("updating draft: %w", err)
	}
	if !ok {
		return domain.DraftRecord{}, s.leaseConflict(ctx, id, scope, staleBefore)
	}

	draft.Fields = fields
	draft.UpdatedAt = now
	s.publish(ctx, domain.Notification{
		Type:     domain.NotifyUpdated,
		TenantID: draft.TenantID,
		DraftID:  id,
		Actor:    ident.UserID,
		Draft:    &draft,
	})
	return draft, nil
}

// Delete removes an unconverted draft regardless of its lease.
func (s *DraftService) Delete(ctx context.Context, c Caller, id string) error {
	ident, err := s.gate.authorizePrivileged(ctx, c)
	if err != nil {
		return err
	}
	scope := ident.Scope()

	draft, err := s.mutable(ctx, id, scope, domain.EventDelete)
	if err != nil {
		return err
	}

	ok, err := s.drafts.DeleteDraft(ctx, id, scope)
	if err != nil {
		return fmt.Errorf("deleting draft: %w", err)
	}
	if !ok {
		return s.leaseConflict(ctx, id, scope, s.opts.staleBefore(s.opts.clock()))
	}

	s.publish(ctx, domain.Notification{
		Type:     domain.NotifyDeleted,
		TenantID: draft.TenantID,
		DraftID:  id,
		Actor:    ident.UserID,
	})
	return nil
}

// Lock acquires or refreshes the caller's lease on a draft. A lease held by
// someone else is taken over once it is older than the lease TTL.
func (s *DraftService) Lock(ctx context.Context, c Caller, id string) (domain.DraftRecord, error) {
	ident, err := s.gate.Authorize(ctx, c)
	if err != nil {
		return domain.DraftRecord{}, err
	}
	scope := ident.Scope()

	draft, err := s.mutable(ctx, id, scope, domain.EventLock)
	if err != nil {
		return domain.DraftRecord{}, err
	}

	now := s.opts.clock()
	staleBefore := s.opts.staleBefore(now)
	ok, err := s.drafts.AcquireLease(ctx, id, scope, ident.UserID, staleBefore, now)
	if err != nil {
		return domain.DraftRecord{}, fmt.Errorf("acquiring lease: %w", err)
	}
	if !ok {
		return domain.DraftRecord{}, s.leaseConflict(ctx, id, scope, staleBefore)
	}

	if draft.Locked && !draft.HeldBy(ident.UserID) {
		s.opts.logger.Info("stale lease taken over",
			zap.String("draft_id", id),
			zap.Int64("previous_holder", *draft.LockedBy),
			zap.Int64("user_id", ident.UserID),
		)
	}

	userID := ident.UserID
	draft.Locked = true
	draft.LockedBy = &userID
	draft.LockedAt = &now
	s.publish(ctx, domain.Notification{
		Type:     domain.NotifyLocked,
		TenantID: draft.TenantID,
		DraftID:  id,
		Actor:    userID,
		LockedAt: &now,
	})
	return draft, nil
}

// Unlock releases the caller's lease. Releasing a lease the caller does not
// hold is an error.
func (s *DraftService) Unlock(ctx context.Context, c Caller, id string) error {
	ident, err := s.gate.Authorize(ctx, c)
	if err != nil {
		return err
	}
	scope := ident.Scope()

	draft, err := s.drafts.GetDraft(ctx, id, scope)
	if err != nil {
		return err
	}
	if draft.Converted {
		return &domain.AlreadyConvertedError{DraftID: id, Number: draft.ConvertedToNumber}
	}
	if !draft.HeldBy(ident.UserID) {
		return &domain.NotHolderError{DraftID: id, UserID: ident.UserID, Holder: draft.LockedBy}
	}
	if _, err := s.validator.Apply(ctx, draft.State(), domain.EventUnlock); err != nil {
		return err
	}

	ok, err := s.drafts.ReleaseLease(ctx, id, scope, ident.UserID)
	if err != nil {
		return fmt.Errorf("releasing lease: %w", err)
	}
	if !ok {
		return &domain.NotHolderError{DraftID: id, UserID: ident.UserID}
	}

	s.publish(ctx, domain.Notification{
		Type:     domain.NotifyUnlocked,
		TenantID: draft.TenantID,
		DraftID:  id,
		Actor:    ident.UserID,
	})
	return nil
}

// ForceUnlock clears any lease on a draft regardless of holder or age.
func (s *DraftService) ForceUnlock(ctx context.Context, c Caller, id string) error {
	ident, err := s.gate.authorizePrivileged(ctx, c)
	if err != nil {
		return err
	}
	scope := ident.Scope()

	draft, err := s.drafts.GetDraft(ctx, id, scope)
	if err != nil {
		return err
	}
	if draft.Converted {
		return &domain.AlreadyConvertedError{DraftID: id, Number: draft.ConvertedToNumber}
	}
	if !draft.Locked {
		return domain.ErrNotLocked
	}
	if _, err := s.validator.Apply(ctx, draft.State(), domain.EventForceUnlock); err != nil {
		return err
	}

	ok, err := s.drafts.ForceReleaseLease(ctx, id, scope)
	if err != nil {
		return fmt.Errorf("force releasing lease: %w", err)
	}
	if !ok {
		return domain.ErrNotLocked
	}

	s.opts.logger.Info("lease force released",
		zap.String("draft_id", id),
		zap.Int64("holder", *draft.LockedBy),
		zap.Int64("admin_id", ident.UserID),
	)
	s.publish(ctx, domain.Notification{
		Type:     domain.NotifyUnlocked,
		TenantID: draft.TenantID,
		DraftID:  id,
		Actor:    ident.UserID,
		Forced:   true,
	})
	return nil
}

// CheckLock reports the lease on a draft. A lease older than the TTL is
// cleared on the spot and reported through WasLocked.
func (s *DraftService) CheckLock(ctx context.Context, c Caller, id string) (domain.LockStatus, error) {
	ident, err := s.gate.Authorize(ctx, c)
	if err != nil {
		return domain.LockStatus{}, err
	}
	scope := ident.Scope()

	draft, err := s.drafts.GetDraft(ctx, id, scope)
	if err != nil {
		return domain.LockStatus{}, err
	}

	status := domain.LockStatus{DraftID: id}
	if !draft.Locked {
		return status, nil
	}

	now := s.opts.clock()
	staleBefore := s.opts.staleBefore(now)
	if draft.LeaseStale(staleBefore) {
		if _, err := s.validator.Apply(ctx, draft.State(), domain.EventExpire); err != nil {
			return domain.LockStatus{}, err
		}
		cleared, err := s.drafts.ReleaseStaleLease(ctx, id, scope, staleBefore)
		if err != nil {
			return domain.LockStatus{}, fmt.Errorf("releasing stale lease: %w", err)
		}
		if cleared {
			status.WasLocked = true
			s.publish(ctx, domain.Notification{
				Type:     domain.NotifyAutoUnlocked,
				TenantID: draft.TenantID,
				Count:    1,
				DraftIDs: []string{id},
			})
			return status, nil
		}
		// Someone refreshed or replaced the lease meanwhile.
		if draft, err = s.drafts.GetDraft(ctx, id, scope); err != nil {
			return domain.LockStatus{}, err
		}
		if !draft.Locked {
			return status, nil
		}
	}

	status.IsLocked = true
	status.Holder = draft.LockedBy
	status.LockedAt = draft.LockedAt
	status.LockedAgo = now.Sub(*draft.LockedAt).Truncate(time.Second)
	return status, nil
}

// Subscribe registers the caller for their company's draft notifications.
// The first event delivered is a snapshot of the open drafts.
func (s *DraftService) Subscribe(ctx context.Context, c Caller) (domain.Subscription, error) {
	ident, err := s.gate.Authorize(ctx, c)
	if err != nil {
		return nil, err
	}
	tenantID := ident.TenantID

	snapshot := func(ctx context.Context) (domain.Notification, error) {
		now := s.opts.clock()
		drafts, err := s.drafts.ListOpenDrafts(ctx, domain.DraftFilter{
			Scope:       domain.Scope{TenantID: tenantID},
			StaleBefore: s.opts.staleBefore(now),
		})
		if err != nil {
			return domain.Notification{}, fmt.Errorf("listing open drafts: %w", err)
		}
		if drafts == nil {
			drafts = []domain.DraftRecord{}
		}
		return domain.Notification{
			ID:       uuid.NewString(),
			Type:     domain.NotifySnapshot,
			TenantID: tenantID,
			Count:    len(drafts),
			Drafts:   drafts,
			At:       now,
		}, nil
	}

	return s.subscriber.Subscribe(ctx, tenantID, snapshot)
}

// mutable loads an unconverted draft and checks that event applies to it.
// The draft is returned alongside a transition error.
func (s *DraftService) mutable(ctx context.Context, id string, scope domain.Scope, event domain.LeaseEvent) (domain.DraftRecord, error) {
	draft, err := s.drafts.GetDraft(ctx, id, scope)
	if err != nil {
		return domain.DraftRecord{}, err
	}
	if draft.Converted {
		return draft, &domain.AlreadyConvertedError{DraftID: id, Number: draft.ConvertedToNumber}
	}
	if _, err := s.validator.Apply(ctx, draft.State(), event); err != nil {
		return draft, err
	}
	return draft, nil
}

// leaseConflict explains why a conditional lease update matched no row.
func (s *DraftService) leaseConflict(ctx context.Context, id string, scope domain.Scope, staleBefore time.Time) error {
	draft, err := s.drafts.GetDraft(ctx, id, scope)
	if err != nil {
		return err
	}
	if draft.Converted {
		return &domain.AlreadyConvertedError{DraftID: id, Number: draft.ConvertedToNumber}
	}
	if draft.Locked && !draft.LeaseStale(staleBefore) {
		return &domain.AlreadyLockedError{DraftID: id, Holder: *draft.LockedBy, LockedAt: *draft.LockedAt}
	}
	return fmt.Errorf("draft %q changed concurrently", id)
}

func (s *DraftService) publish(ctx context.Context, n domain.Notification) {
	publish(ctx, s.notifier, s.opts, n)
}

// publish stamps n and hands it to the notifier. Delivery is best effort.
func publish(ctx context.Context, notifier domain.Notifier, o options, n domain.Notification) {
	if notifier == nil {
		return
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.At.IsZero() {
		n.At = o.clock()
	}
	if err := notifier.Publish(ctx, n); err != nil {
		o.logger.Warn("publishing notification",
			zap.String("type", string(n.Type)),
			zap.Int64("tenant_id", n.TenantID),
			zap.Error(err),
		)
	}
}
