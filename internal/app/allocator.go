package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/anees-mohamed-ar/logistic/internal/domain"
)

var errCursorMoved = errors.New("range cursor moved concurrently")

// RangeRequest describes a block of count numbers starting at Start.
type RangeRequest struct {
	OwnerID int64
	Start   int64
	Count   int64
	Status  domain.RangeStatus
}

// NumberAllocator hands out permanent numbers from per-user ranges.
type NumberAllocator struct {
	ranges  domain.RangeRepository
	members domain.MemberRepository
	tx      domain.TxManager
	gate    *IdentityGate
	opts    options
}

// NewNumberAllocator creates an allocator over the range store.
func NewNumberAllocator(ranges domain.RangeRepository, members domain.MemberRepository, tx domain.TxManager, gate *IdentityGate, opts ...Option) *NumberAllocator {
	return &NumberAllocator{
		ranges:  ranges,
		members: members,
		tx:      tx,
		gate:    gate,
		opts:    newOptions(opts),
	}
}

// AddRange gives req.OwnerID another range. A range requested as active
// while the owner already has one is queued behind it.
func (a *NumberAllocator) AddRange(ctx context.Context, c Caller, req RangeRequest) (domain.NumberRange, error) {
	ident, err := a.gate.authorizePrivileged(ctx, c)
	if err != nil {
		return domain.NumberRange{}, err
	}

	owner, err := a.owner(ctx, req.OwnerID, ident.TenantID)
	if err != nil {
		return domain.NumberRange{}, err
	}
	r, err := domain.NewNumberRange(owner.UserID, domain.Scope{TenantID: ident.TenantID, BranchID: owner.BranchID}, req.Start, req.Count, req.Status, a.opts.clock())
	if err != nil {
		return domain.NumberRange{}, err
	}

	err = a.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := a.checkOverlap(ctx, r); err != nil {
			return err
		}
		if r.Status == domain.RangeActive {
			_, err := a.ranges.ActiveRange(ctx, r.OwnerID, r.TenantID)
			switch {
			case err == nil:
				r.Status = domain.RangeQueued
			case !errors.Is(err, domain.ErrRangeNotFound):
				return fmt.Errorf("reading active range: %w", err)
			}
		}
		r, err = a.ranges.CreateRange(ctx, r)
		return err
	})
	if err != nil {
		return domain.NumberRange{}, err
	}

	a.opts.logger.Info("number range added",
		zap.Int64("range_id", r.ID),
		zap.Int64("owner_id", r.OwnerID),
		zap.Int64("start", r.Start),
		zap.Int64("end", r.End),
		zap.String("status", string(r.Status)),
	)
	return r, nil
}

// AssignRange gives a user with no ranges at all their first, active range.
// Users may assign to themselves; assigning to others needs privilege.
func (a *NumberAllocator) AssignRange(ctx context.Context, c Caller, req RangeRequest) (domain.NumberRange, error) {
	ident, err := a.gate.Authorize(ctx, c)
	if err != nil {
		return domain.NumberRange{}, err
	}
	owner, err := a.ownerFor(ctx, ident, req.OwnerID)
	if err != nil {
		return domain.NumberRange{}, err
	}
	r, err := domain.NewNumberRange(owner.UserID, domain.Scope{TenantID: ident.TenantID, BranchID: owner.BranchID}, req.Start, req.Count, domain.RangeActive, a.opts.clock())
	if err != nil {
		return domain.NumberRange{}, err
	}

	err = a.tx.RunInTx(ctx, func(ctx context.Context) error {
		n, err := a.ranges.CountRanges(ctx, r.OwnerID, r.TenantID, nil)
		if err != nil {
			return fmt.Errorf("counting ranges: %w", err)
		}
		if n > 0 {
			return domain.ErrAlreadyAssigned
		}
		if err := a.checkOverlap(ctx, r); err != nil {
			return err
		}
		r, err = a.ranges.CreateRange(ctx, r)
		return err
	})
	if err != nil {
		return domain.NumberRange{}, err
	}
	return r, nil
}

// NextNumber issues the caller's next permanent number. The cursor moves by
// compare-and-swap, so concurrent callers never receive the same number.
// Exhausting a range expires it and activates the earliest queued one.
func (a *NumberAllocator) NextNumber(ctx context.Context, c Caller) (int64, error) {
	ident, err := a.gate.Authorize(ctx, c)
	if err != nil {
		return 0, err
	}

	var number int64
	b := retry.WithMaxRetries(5, retry.NewExponential(5*time.Millisecond))
	err = retry.Do(ctx, b, func(ctx context.Context) error {
		err := a.tx.RunInTx(ctx, func(ctx context.Context) error {
			var err error
			number, err = a.issue(ctx, ident.UserID, ident.TenantID)
			return err
		})
		if errors.Is(err, errCursorMoved) || errors.Is(err, domain.ErrStoreBusy) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return 0, err
	}
	return number, nil
}

func (a *NumberAllocator) issue(ctx context.Context, ownerID, tenantID int64) (int64, error) {
	now := a.opts.clock()

	r, err := a.ranges.ActiveRange(ctx, ownerID, tenantID)
	if errors.Is(err, domain.ErrRangeNotFound) {
		r, err = a.ranges.PromoteQueued(ctx, ownerID, tenantID, now)
		if errors.Is(err, domain.ErrRangeNotFound) {
			return 0, domain.ErrNoActiveRange
		}
	}
	if err != nil {
		return 0, fmt.Errorf("reading active range: %w", err)
	}

	number := r.Cursor
	ok, err := a.ranges.AdvanceCursor(ctx, r.ID, number, now)
	if err != nil {
		return 0, fmt.Errorf("advancing cursor: %w", err)
	}
	if !ok {
		return 0, errCursorMoved
	}

	if number+1 == r.End {
		a.opts.logger.Info("number range exhausted", zap.Int64("range_id", r.ID), zap.Int64("owner_id", ownerID))
		next, err := a.ranges.PromoteQueued(ctx, ownerID, tenantID, now)
		switch {
		case err == nil:
			a.opts.logger.Info("queued range activated", zap.Int64("range_id", next.ID), zap.Int64("owner_id", ownerID))
		case !errors.Is(err, domain.ErrRangeNotFound):
			return 0, fmt.Errorf("promoting queued range: %w", err)
		}
	}
	return number, nil
}

// Usage reports ownerID's current range: the active one, or the most
// recent one when none is active. Zero ownerID means the caller; other
// owners need privilege.
func (a *NumberAllocator) Usage(ctx context.Context, c Caller, ownerID int64) (domain.RangeUsage, error) {
	ident, err := a.gate.Authorize(ctx, c)
	if err != nil {
		return domain.RangeUsage{}, err
	}
	owner, err := a.ownerFor(ctx, ident, ownerID)
	if err != nil {
		return domain.RangeUsage{}, err
	}

	r, err := a.ranges.ActiveRange(ctx, owner.UserID, ident.TenantID)
	if errors.Is(err, domain.ErrRangeNotFound) {
		r, err = a.ranges.LatestRange(ctx, owner.UserID, ident.TenantID)
	}
	if err != nil {
		return domain.RangeUsage{}, err
	}

	queued := domain.RangeQueued
	n, err := a.ranges.CountRanges(ctx, owner.UserID, ident.TenantID, &queued)
	if err != nil {
		return domain.RangeUsage{}, fmt.Errorf("counting queued ranges: %w", err)
	}
	consumed, err := a.ranges.CountConsumptions(ctx, owner.UserID, ident.TenantID)
	if err != nil {
		return domain.RangeUsage{}, fmt.Errorf("counting consumed numbers: %w", err)
	}

	return domain.RangeUsage{
		Range:       r,
		TotalIssued: r.Issued(),
		Remaining:   r.Remaining(),
		PercentUsed: math.Round(float64(r.Issued())/float64(r.Size())*10000) / 100,
		Queued:      n,
		Consumed:    consumed,
	}, nil
}

// HasActiveRanges reports whether ownerID has an active range. Zero
// ownerID means the caller; other owners need privilege.
func (a *NumberAllocator) HasActiveRanges(ctx context.Context, c Caller, ownerID int64) (bool, error) {
	ident, err := a.gate.Authorize(ctx, c)
	if err != nil {
		return false, err
	}
	owner, err := a.ownerFor(ctx, ident, ownerID)
	if err != nil {
		return false, err
	}
	active := domain.RangeActive
	n, err := a.ranges.CountRanges(ctx, owner.UserID, ident.TenantID, &active)
	if err != nil {
		return false, fmt.Errorf("counting active ranges: %w", err)
	}
	return n > 0, nil
}

// ListRanges lists ranges of the caller's company. Non-privileged callers
// only see their own.
func (a *NumberAllocator) ListRanges(ctx context.Context, c Caller, filter domain.RangeFilter) ([]domain.NumberRange, error) {
	ident, err := a.gate.Authorize(ctx, c)
	if err != nil {
		return nil, err
	}
	filter.TenantID = ident.TenantID
	if !ident.Privileged {
		self := ident.UserID
		filter.OwnerID = &self
	}
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, &domain.InvalidRangeError{Reason: fmt.Sprintf("unknown status %q", *filter.Status)}
	}
	return a.ranges.ListRanges(ctx, filter)
}

// RecordConsumption stores that a conversion used an issued number.
// Repeats of the same number are ignored.
func (a *NumberAllocator) RecordConsumption(ctx context.Context, consumed domain.Consumption) error {
	if err := a.ranges.RecordConsumption(ctx, consumed); err != nil {
		return fmt.Errorf("recording consumption of %q: %w", consumed.Number, err)
	}
	return nil
}

// ownerFor resolves the owner an operation acts on. Zero means the caller;
// acting on anyone else needs privilege.
func (a *NumberAllocator) ownerFor(ctx context.Context, ident domain.Identity, ownerID int64) (domain.Member, error) {
	if ownerID == 0 {
		ownerID = ident.UserID
	}
	if ownerID != ident.UserID && !ident.Privileged {
		return domain.Member{}, domain.ErrPrivilegeRequired
	}
	return a.owner(ctx, ownerID, ident.TenantID)
}

func (a *NumberAllocator) owner(ctx context.Context, ownerID, tenantID int64) (domain.Member, error) {
	m, err := a.members.GetMember(ctx, ownerID, tenantID)
	if errors.Is(err, domain.ErrMemberNotFound) {
		return domain.Member{}, &domain.InvalidRangeError{Reason: fmt.Sprintf("owner %d does not belong to company", ownerID)}
	}
	if err != nil {
		return domain.Member{}, fmt.Errorf("looking up range owner: %w", err)
	}
	return m, nil
}

func (a *NumberAllocator) checkOverlap(ctx context.Context, r domain.NumberRange) error {
	overlaps, err := a.ranges.Overlaps(ctx, r.TenantID, r.Start, r.End)
	if err != nil {
		return fmt.Errorf("checking range overlap: %w", err)
	}
	if overlaps {
		return &domain.InvalidRangeError{Reason: fmt.Sprintf("[%d, %d) overlaps an existing range", r.Start, r.End)}
	}
	return nil
}
