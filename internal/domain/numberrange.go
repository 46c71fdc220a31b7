package domain

import "time"

// RangeStatus is the lifecycle position of a number range.
type RangeStatus string

const (
	RangeQueued  RangeStatus = "queued"
	RangeActive  RangeStatus = "active"
	RangeExpired RangeStatus = "expired"
)

// Valid reports whether s is a known status.
func (s RangeStatus) Valid() bool {
	switch s {
	case RangeQueued, RangeActive, RangeExpired:
		return true
	}
	return false
}

// NumberRange is a contiguous block [Start, End) of permanent numbers owned
// by one user. Cursor is the next number to issue.
type NumberRange struct {
	ID        int64
	OwnerID   int64
	TenantID  int64
	BranchID  *int64
	Start     int64
	End       int64
	Cursor    int64
	Status    RangeStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Issued is the count of numbers handed out so far.
func (r NumberRange) Issued() int64 { return r.Cursor - r.Start }

// Remaining is the count of numbers still available.
func (r NumberRange) Remaining() int64 { return r.End - r.Cursor }

// Size is the total count of numbers in the range.
func (r NumberRange) Size() int64 { return r.End - r.Start }

// NewNumberRange validates and builds a range of count numbers starting at start.
func NewNumberRange(ownerID int64, scope Scope, start, count int64, status RangeStatus, now time.Time) (NumberRange, error) {
	if count <= 0 {
		return NumberRange{}, &InvalidRangeError{Reason: "count must be positive"}
	}
	if start < 0 {
		return NumberRange{}, &InvalidRangeError{Reason: "start number must not be negative"}
	}
	if start > maxNumber-count {
		return NumberRange{}, &InvalidRangeError{Reason: "range exceeds the number space"}
	}
	if status == "" {
		status = RangeQueued
	}
	if status != RangeQueued && status != RangeActive {
		return NumberRange{}, &InvalidRangeError{Reason: "initial status must be queued or active"}
	}
	now = now.UTC()
	return NumberRange{
		OwnerID:   ownerID,
		TenantID:  scope.TenantID,
		BranchID:  scope.BranchID,
		Start:     start,
		End:       start + count,
		Cursor:    start,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

const maxNumber = int64(1)<<53 - 1

// RangeUsage is the derived view of a user's current range.
type RangeUsage struct {
	Range       NumberRange
	TotalIssued int64
	Remaining   int64
	PercentUsed float64
	Queued      int
	Consumed    int64
}

// RangeFilter holds optional criteria for listing ranges.
type RangeFilter struct {
	TenantID int64
	OwnerID  *int64
	Status   *RangeStatus
	Limit    int
	Offset   int
}

// Consumption records that an issued number was committed to a permanent record.
type Consumption struct {
	TenantID   int64     `json:"tenant_id"`
	OwnerID    int64     `json:"owner_id"`
	Number     string    `json:"number"`
	DraftID    string    `json:"draft_id"`
	ConsumedAt time.Time `json:"consumed_at"`
}
