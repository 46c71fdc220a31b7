package domain

import "time"

// NotificationType names a draft lifecycle event pushed to live clients.
type NotificationType string

const (
	NotifySnapshot     NotificationType = "snapshot"
	NotifyCreated      NotificationType = "created"
	NotifyUpdated      NotificationType = "updated"
	NotifyLocked       NotificationType = "locked"
	NotifyUnlocked     NotificationType = "unlocked"
	NotifyConverted    NotificationType = "converted"
	NotifyDeleted      NotificationType = "deleted"
	NotifyAutoUnlocked NotificationType = "autoUnlocked"
)

// Notification is one event on a company's notification stream.
type Notification struct {
	ID          string           `json:"id"`
	Type        NotificationType `json:"type"`
	TenantID    int64            `json:"tenantId"`
	DraftID     string           `json:"draftId,omitempty"`
	Actor       int64            `json:"actor,omitempty"`
	LockedAt    *time.Time       `json:"lockedAt,omitempty"`
	Forced      bool             `json:"forced,omitempty"`
	ConvertedTo string           `json:"convertedTo,omitempty"`
	Count       int              `json:"count,omitempty"`
	DraftIDs    []string         `json:"draftIds,omitempty"`
	Draft       *DraftRecord     `json:"draft,omitempty"`
	Drafts      []DraftRecord    `json:"drafts,omitempty"`
	At          time.Time        `json:"at"`
}
