package domain

import "time"

// PermanentRecord is a finalized, uniquely numbered shipment record.
type PermanentRecord struct {
	Number    string         `json:"number"`
	TenantID  int64          `json:"tenantId"`
	BranchID  *int64         `json:"branchId,omitempty"`
	DraftID   string         `json:"draftId"`
	Fields    ShipmentFields `json:"fields"`
	CreatedBy int64          `json:"createdBy"`
	CreatedAt time.Time      `json:"createdAt"`
}

// NewPermanentRecord finalizes a draft under number, merging overrides over
// the draft's fields.
func NewPermanentRecord(number string, draft DraftRecord, overrides ShipmentFields, userID int64, now time.Time) PermanentRecord {
	now = now.UTC()
	defaults := ConversionDefaults(overrides, draft.Fields, now)
	return PermanentRecord{
		Number:    number,
		TenantID:  draft.TenantID,
		BranchID:  draft.BranchID,
		DraftID:   draft.ID,
		Fields:    MergeShipmentFields(overrides, draft.Fields, defaults),
		CreatedBy: userID,
		CreatedAt: now,
	}
}

// EditPermission reports whether a user may still edit a permanent record.
type EditPermission struct {
	Number        string
	CanEdit       bool
	Privileged    bool
	EditableUntil time.Time
}
