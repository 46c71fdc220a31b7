package domain

import "time"

// LeaseState is the lifecycle position of a draft record.
type LeaseState string

const (
	StateFree      LeaseState = "free"
	StateLocked    LeaseState = "locked"
	StateConverted LeaseState = "converted"
	StateDeleted   LeaseState = "deleted"
)

// LeaseEvent is an action that moves a draft between lease states.
type LeaseEvent string

const (
	EventLock        LeaseEvent = "lock"
	EventUnlock      LeaseEvent = "unlock"
	EventForceUnlock LeaseEvent = "force_unlock"
	EventExpire      LeaseEvent = "expire"
	EventEdit        LeaseEvent = "edit"
	EventConvert     LeaseEvent = "convert"
	EventDelete      LeaseEvent = "delete"
)

// Transition defines a valid state change: an event moves a draft from Src to Dst.
type Transition struct {
	Event LeaseEvent
	Src   LeaseState
	Dst   LeaseState
}

// Transitions defines all valid state changes of a draft lease.
// This is domain knowledge consumed by the FSM adapter.
var Transitions = []Transition{
	{Event: EventLock, Src: StateFree, Dst: StateLocked},
	{Event: EventLock, Src: StateLocked, Dst: StateLocked},
	{Event: EventUnlock, Src: StateLocked, Dst: StateFree},
	{Event: EventForceUnlock, Src: StateLocked, Dst: StateFree},
	{Event: EventExpire, Src: StateLocked, Dst: StateFree},
	{Event: EventEdit, Src: StateFree, Dst: StateFree},
	{Event: EventEdit, Src: StateLocked, Dst: StateLocked},
	{Event: EventConvert, Src: StateLocked, Dst: StateConverted},
	{Event: EventDelete, Src: StateFree, Dst: StateDeleted},
	{Event: EventDelete, Src: StateLocked, Dst: StateDeleted},
}

// Scope identifies the company and, optionally, the branch an operation
// is restricted to.
type Scope struct {
	TenantID int64
	BranchID *int64
}

// DraftRecord is an editable shipment record awaiting conversion.
type DraftRecord struct {
	ID        string         `json:"id"`
	TenantID  int64          `json:"tenantId"`
	BranchID  *int64         `json:"branchId,omitempty"`
	CreatedBy int64          `json:"createdBy"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	Fields    ShipmentFields `json:"fields"`

	Locked   bool       `json:"locked"`
	LockedBy *int64     `json:"lockedBy,omitempty"`
	LockedAt *time.Time `json:"lockedAt,omitempty"`

	Converted         bool       `json:"converted"`
	ConvertedToNumber string     `json:"convertedToNumber,omitempty"`
	ConvertedBy       *int64     `json:"convertedBy,omitempty"`
	ConvertedAt       *time.Time `json:"convertedAt,omitempty"`
}

// NewDraftRecord creates an unlocked, unconverted draft.
func NewDraftRecord(id string, scope Scope, createdBy int64, fields ShipmentFields, now time.Time) DraftRecord {
	now = now.UTC()
	return DraftRecord{
		ID:        id,
		TenantID:  scope.TenantID,
		BranchID:  scope.BranchID,
		CreatedBy: createdBy,
		CreatedAt: now,
		UpdatedAt: now,
		Fields:    fields,
	}
}

// State derives the lease state from the stored flags.
func (d DraftRecord) State() LeaseState {
	switch {
	case d.Converted:
		return StateConverted
	case d.Locked:
		return StateLocked
	default:
		return StateFree
	}
}

// HeldBy reports whether userID holds the lease, stale or not.
func (d DraftRecord) HeldBy(userID int64) bool {
	return d.Locked && d.LockedBy != nil && *d.LockedBy == userID
}

// LeaseStale reports whether the lease was acquired at or before staleBefore.
// A free draft is never stale.
func (d DraftRecord) LeaseStale(staleBefore time.Time) bool {
	return d.Locked && d.LockedAt != nil && !d.LockedAt.After(staleBefore)
}

// LockStatus is the read-only view returned by a lock check.
type LockStatus struct {
	DraftID   string
	IsLocked  bool
	Holder    *int64
	LockedAt  *time.Time
	LockedAgo time.Duration
	// WasLocked is set when the check itself cleared a stale lease.
	WasLocked bool
}

// DraftFilter selects open drafts for listing.
type DraftFilter struct {
	Scope Scope
	// StaleBefore marks leases acquired at or before it as expired.
	StaleBefore time.Time
	// VisibleTo keeps drafts whose live lease is held by this user. Zero
	// hides every draft with a live lease.
	VisibleTo int64
}
