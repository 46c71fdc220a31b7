package domain

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a domain error so callers can branch on meaning rather
// than on transport status.
type Kind string

const (
	KindAccessDenied      Kind = "access_denied"
	KindNotFound          Kind = "not_found"
	KindAlreadyLocked     Kind = "already_locked"
	KindNotHolder         Kind = "not_holder"
	KindNotLocked         Kind = "not_locked"
	KindAlreadyConverted  Kind = "already_converted"
	KindDuplicateNumber   Kind = "duplicate_number"
	KindNoActiveRange     Kind = "no_active_range"
	KindAlreadyAssigned   Kind = "already_assigned"
	KindInvalidRange      Kind = "invalid_range"
	KindInvalidTransition Kind = "invalid_transition"
	KindInvalidInput      Kind = "invalid_input"
	KindInternal          Kind = "internal"
)

type kinded interface {
	Kind() Kind
}

// KindOf reports the kind of err. Errors outside the taxonomy are Internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var k kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindInternal
}

// kindError is a sentinel carrying a fixed kind.
type kindError struct {
	kind Kind
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Kind() Kind    { return e.kind }

// Sentinel errors for simple conditions without extra context.
var (
	ErrDraftNotFound     = &kindError{kind: KindNotFound, msg: "draft not found"}
	ErrRecordNotFound    = &kindError{kind: KindNotFound, msg: "permanent record not found"}
	ErrRangeNotFound     = &kindError{kind: KindNotFound, msg: "number range not found"}
	ErrMemberNotFound    = &kindError{kind: KindAccessDenied, msg: "user does not belong to company"}
	ErrPrivilegeRequired = &kindError{kind: KindAccessDenied, msg: "privileged role required"}
	ErrNotLocked         = &kindError{kind: KindNotLocked, msg: "draft is not locked"}
	ErrNoActiveRange     = &kindError{kind: KindNoActiveRange, msg: "no active number range"}
	ErrAlreadyAssigned   = &kindError{kind: KindAlreadyAssigned, msg: "user already holds a number range"}
)

// ErrStoreBusy marks a transient store failure; the operation may be retried.
var ErrStoreBusy = errors.New("store busy")

// AccessDeniedError is returned by the identity gate when a caller does not
// belong to the claimed company or branch.
type AccessDeniedError struct {
	UserID   int64
	TenantID int64
	Reason   string
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("access denied for user %d in company %d: %s", e.UserID, e.TenantID, e.Reason)
}

func (e *AccessDeniedError) Kind() Kind { return KindAccessDenied }

// AlreadyLockedError is returned when another user holds a live lease.
type AlreadyLockedError struct {
	DraftID  string
	Holder   int64
	LockedAt time.Time
}

func (e *AlreadyLockedError) Error() string {
	return fmt.Sprintf("draft %q is locked by user %d since %s", e.DraftID, e.Holder, e.LockedAt.Format(time.RFC3339))
}

func (e *AlreadyLockedError) Kind() Kind { return KindAlreadyLocked }

// NotHolderError is returned when the caller does not hold the lease an
// operation requires. Holder is nil when the draft is not locked at all.
type NotHolderError struct {
	DraftID string
	UserID  int64
	Holder  *int64
}

func (e *NotHolderError) Error() string {
	if e.Holder == nil {
		return fmt.Sprintf("user %d does not hold draft %q: draft is not locked", e.UserID, e.DraftID)
	}
	return fmt.Sprintf("user %d does not hold draft %q: held by user %d", e.UserID, e.DraftID, *e.Holder)
}

func (e *NotHolderError) Kind() Kind { return KindNotHolder }

// AlreadyConvertedError is returned for any lease or field mutation on a
// converted draft.
type AlreadyConvertedError struct {
	DraftID string
	Number  string
}

func (e *AlreadyConvertedError) Error() string {
	return fmt.Sprintf("draft %q was already converted to %q", e.DraftID, e.Number)
}

func (e *AlreadyConvertedError) Kind() Kind { return KindAlreadyConverted }

// DuplicateNumberError is returned when a permanent number already exists
// for the company.
type DuplicateNumberError struct {
	TenantID int64
	Number   string
}

func (e *DuplicateNumberError) Error() string {
	return fmt.Sprintf("permanent number %q already exists in company %d", e.Number, e.TenantID)
}

func (e *DuplicateNumberError) Kind() Kind { return KindDuplicateNumber }

// InvalidRangeError is returned for malformed or overlapping ranges.
type InvalidRangeError struct {
	Reason string
}

func (e *InvalidRangeError) Error() string {
	return "invalid number range: " + e.Reason
}

func (e *InvalidRangeError) Kind() Kind { return KindInvalidRange }

// ValidationError is returned when a request field is missing or malformed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Kind() Kind { return KindInvalidInput }

// TransitionError is returned when a lease transition is not allowed.
type TransitionError struct {
	Event   LeaseEvent
	Current LeaseState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("event %q is not valid from state %q", e.Event, e.Current)
}

func (e *TransitionError) Kind() Kind { return KindInvalidTransition }
