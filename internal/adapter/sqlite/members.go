package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/anees-mohamed-ar/logistic/internal/domain"
)

func (s *Store) GetMember(ctx context.Context, userID, tenantID int64) (domain.Member, error) {
	m := domain.Member{UserID: userID, TenantID: tenantID}
	var branchID sql.NullInt64

	err := s.conn(ctx).QueryRowContext(ctx,
		`SELECT branch_id, role FROM members WHERE user_id = ? AND tenant_id = ?`,
		userID, tenantID,
	).Scan(&branchID, &m.Role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Member{}, domain.ErrMemberNotFound
		}
		return domain.Member{}, fmt.Errorf("scanning member: %w", err)
	}

	m.BranchID = intPtr(branchID)
	return m, nil
}

// PutMember inserts or replaces a membership. Profiles are managed outside
// this service; this is the provisioning entry point.
func (s *Store) PutMember(ctx context.Context, m domain.Member) error {
	_, err := s.conn(ctx).ExecContext(ctx,
		`INSERT INTO members (user_id, tenant_id, branch_id, role) VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id, tenant_id) DO UPDATE SET branch_id = excluded.branch_id, role = excluded.role`,
		m.UserID, m.TenantID, nullInt(m.BranchID), m.Role,
	)
	if err != nil {
		return fmt.Errorf("upserting member: %w", err)
	}
	return nil
}
