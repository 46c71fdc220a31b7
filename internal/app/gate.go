package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/anees-mohamed-ar/logistic/internal/domain"
)

// Caller is the unverified identity presented with a request.
type Caller struct {
	UserID   int64
	TenantID int64
	BranchID *int64
}

// IdentityGate checks that a caller belongs to the company and branch it
// claims, and resolves its privilege.
type IdentityGate struct {
	members domain.MemberRepository
}

// NewIdentityGate creates a gate backed by the member store.
func NewIdentityGate(members domain.MemberRepository) *IdentityGate {
	return &IdentityGate{members: members}
}

// Authorize returns the verified identity of c.
func (g *IdentityGate) Authorize(ctx context.Context, c Caller) (domain.Identity, error) {
	deny := func(reason string) error {
		return &domain.AccessDeniedError{UserID: c.UserID, TenantID: c.TenantID, Reason: reason}
	}

	member, err := g.members.GetMember(ctx, c.UserID, c.TenantID)
	if errors.Is(err, domain.ErrMemberNotFound) {
		return domain.Identity{}, deny("user does not belong to company")
	}
	if err != nil {
		return domain.Identity{}, fmt.Errorf("looking up member: %w", err)
	}

	if c.BranchID != nil {
		if member.BranchID == nil {
			return domain.Identity{}, deny("user has no branch assigned")
		}
		if *member.BranchID != *c.BranchID {
			return domain.Identity{}, deny("user does not belong to branch")
		}
	}

	return domain.Identity{
		UserID:     c.UserID,
		TenantID:   c.TenantID,
		BranchID:   c.BranchID,
		Privileged: member.Privileged(),
	}, nil
}

// authorizePrivileged authorizes c and requires an administrative role.
func (g *IdentityGate) authorizePrivileged(ctx context.Context, c Caller) (domain.Identity, error) {
	id, err := g.Authorize(ctx, c)
	if err != nil {
		return domain.Identity{}, err
	}
	if !id.Privileged {
		return domain.Identity{}, domain.ErrPrivilegeRequired
	}
	return id, nil
}
