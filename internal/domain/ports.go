package domain

import (
	"context"
	"time"
)

// DraftRepository defines the persistence contract for draft records.
// Lease mutations are conditional updates: they report false when the
// stored state no longer satisfies the precondition.
type DraftRepository interface {
	CreateDraft(ctx context.Context, draft DraftRecord) error
	GetDraft(ctx context.Context, id string, scope Scope) (DraftRecord, error)
	ListOpenDrafts(ctx context.Context, filter DraftFilter) ([]DraftRecord, error)
	// UpdateDraftFields replaces the fields of an unconverted draft whose
	// lease is free, stale, or held by editor.
	UpdateDraftFields(ctx context.Context, id string, scope Scope, fields ShipmentFields, editor int64, staleBefore, now time.Time) (bool, error)
	DeleteDraft(ctx context.Context, id string, scope Scope) (bool, error)

	// AcquireLease locks an unconverted draft for userID when it is free,
	// already held by userID, or held under a lease acquired at or before
	// staleBefore.
	AcquireLease(ctx context.Context, id string, scope Scope, userID int64, staleBefore, now time.Time) (bool, error)
	ReleaseLease(ctx context.Context, id string, scope Scope, holder int64) (bool, error)
	ForceReleaseLease(ctx context.Context, id string, scope Scope) (bool, error)
	ReleaseStaleLease(ctx context.Context, id string, scope Scope, staleBefore time.Time) (bool, error)
	// MarkConverted finalizes a draft still leased by userID and clears its lease.
	MarkConverted(ctx context.Context, id string, scope Scope, userID int64, number string, at time.Time) (bool, error)
	// SweepStaleLeases clears every lease acquired at or before staleBefore
	// in one statement and reports what it cleared, grouped by company.
	SweepStaleLeases(ctx context.Context, staleBefore time.Time) ([]SweptLeases, error)
}

// SweptLeases lists the drafts of one company whose leases a sweep cleared.
type SweptLeases struct {
	TenantID int64
	DraftIDs []string
}

// RecordRepository defines the persistence contract for permanent records.
type RecordRepository interface {
	// CreateRecord inserts a record, returning a DuplicateNumberError when
	// the number is already taken in the company.
	CreateRecord(ctx context.Context, record PermanentRecord) error
	GetRecord(ctx context.Context, tenantID int64, number string) (PermanentRecord, error)
	RecordExists(ctx context.Context, tenantID int64, number string) (bool, error)
}

// RangeRepository defines the persistence contract for number ranges.
type RangeRepository interface {
	CreateRange(ctx context.Context, r NumberRange) (NumberRange, error)
	ListRanges(ctx context.Context, filter RangeFilter) ([]NumberRange, error)
	CountRanges(ctx context.Context, ownerID, tenantID int64, status *RangeStatus) (int, error)
	Overlaps(ctx context.Context, tenantID, start, end int64) (bool, error)
	// ActiveRange returns ErrRangeNotFound when the owner has no active range.
	ActiveRange(ctx context.Context, ownerID, tenantID int64) (NumberRange, error)
	LatestRange(ctx context.Context, ownerID, tenantID int64) (NumberRange, error)
	// AdvanceCursor moves the cursor of an active range from expected to
	// expected+1, expiring the range when it reaches its end. It reports
	// false when the cursor was moved by someone else.
	AdvanceCursor(ctx context.Context, id, expected int64, now time.Time) (bool, error)
	// PromoteQueued activates the owner's earliest queued range when no
	// range of theirs is active. It returns ErrRangeNotFound when none is queued.
	PromoteQueued(ctx context.Context, ownerID, tenantID int64, now time.Time) (NumberRange, error)
	// RecordConsumption stores c, ignoring repeats of the same number.
	RecordConsumption(ctx context.Context, c Consumption) error
	CountConsumptions(ctx context.Context, ownerID, tenantID int64) (int64, error)
}

// MemberRepository looks up company membership.
type MemberRepository interface {
	GetMember(ctx context.Context, userID, tenantID int64) (Member, error)
}

// TxManager runs fn in a store transaction carried by the context.
type TxManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// TransitionValidator checks lease state changes.
type TransitionValidator interface {
	Apply(ctx context.Context, current LeaseState, event LeaseEvent) (LeaseState, error)
}

// Notifier fans a notification out to a company's live subscribers.
type Notifier interface {
	Publish(ctx context.Context, n Notification) error
}

// SnapshotFunc builds the snapshot a new subscriber receives first.
type SnapshotFunc func(ctx context.Context) (Notification, error)

// Subscription is one live client's view of a company's notifications.
type Subscription interface {
	Events() <-chan Notification
	Close()
}

// Subscriber registers live clients for a company's notifications.
type Subscriber interface {
	Subscribe(ctx context.Context, tenantID int64, snapshot SnapshotFunc) (Subscription, error)
}

// ConsumptionHook is told, after commit, that a number was used by a conversion.
type ConsumptionHook interface {
	NumberConsumed(ctx context.Context, c Consumption) error
}

// RecordSink receives finalized permanent records for downstream export.
type RecordSink interface {
	Send(ctx context.Context, record PermanentRecord) error
}
