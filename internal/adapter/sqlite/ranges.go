package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/anees-mohamed-ar/logistic/internal/domain"
)

const rangeColumns = `id, owner_id, tenant_id, branch_id, start_number, end_number, cursor, status, created_at, updated_at`

func (s *Store) CreateRange(ctx context.Context, r domain.NumberRange) (domain.NumberRange, error) {
	result, err := s.conn(ctx).ExecContext(ctx,
		`INSERT INTO number_ranges (owner_id, tenant_id, branch_id, start_number, end_number, cursor, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.OwnerID, r.TenantID, nullInt(r.BranchID), r.Start, r.End, r.Cursor, string(r.Status),
		formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.NumberRange{}, &domain.InvalidRangeError{Reason: "owner already has an active range"}
		}
		return domain.NumberRange{}, fmt.Errorf("inserting number range: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return domain.NumberRange{}, fmt.Errorf("reading range id: %w", err)
	}
	r.ID = id
	return r, nil
}

func (s *Store) ListRanges(ctx context.Context, filter domain.RangeFilter) ([]domain.NumberRange, error) {
	query := `SELECT ` + rangeColumns + ` FROM number_ranges WHERE tenant_id = ?`
	args := []any{filter.TenantID}

	if filter.OwnerID != nil {
		query += ` AND owner_id = ?`
		args = append(args, *filter.OwnerID)
	}
	if filter.Status != nil {
		query += ` AND status = ?`
		args = append(args, string(*filter.Status))
	}

	query += ` ORDER BY created_at DESC, id DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	if filter.Offset > 0 {
		if filter.Limit <= 0 {
			query += ` LIMIT -1`
		}
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing number ranges: %w", err)
	}
	defer rows.Close()

	ranges := []domain.NumberRange{}
	for rows.Next() {
		r, err := scanRange(rows)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, r)
	}
	return ranges, rows.Err()
}

func (s *Store) CountRanges(ctx context.Context, ownerID, tenantID int64, status *domain.RangeStatus) (int, error) {
	query := `SELECT COUNT(*) FROM number_ranges WHERE owner_id = ? AND tenant_id = ?`
	args := []any{ownerID, tenantID}
	if status != nil {
		query += ` AND status = ?`
		args = append(args, string(*status))
	}

	var n int
	if err := s.conn(ctx).QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting number ranges: %w", err)
	}
	return n, nil
}

func (s *Store) Overlaps(ctx context.Context, tenantID, start, end int64) (bool, error) {
	var overlaps bool
	err := s.conn(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM number_ranges
		 WHERE tenant_id = ? AND start_number < ? AND end_number > ?)`,
		tenantID, end, start,
	).Scan(&overlaps)
	if err != nil {
		return false, fmt.Errorf("checking range overlap: %w", err)
	}
	return overlaps, nil
}

func (s *Store) ActiveRange(ctx context.Context, ownerID, tenantID int64) (domain.NumberRange, error) {
	return scanRange(s.conn(ctx).QueryRowContext(ctx,
		`SELECT `+rangeColumns+` FROM number_ranges
		 WHERE owner_id = ? AND tenant_id = ? AND status = 'active'`,
		ownerID, tenantID,
	))
}

func (s *Store) LatestRange(ctx context.Context, ownerID, tenantID int64) (domain.NumberRange, error) {
	return scanRange(s.conn(ctx).QueryRowContext(ctx,
		`SELECT `+rangeColumns+` FROM number_ranges
		 WHERE owner_id = ? AND tenant_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT 1`,
		ownerID, tenantID,
	))
}

func (s *Store) AdvanceCursor(ctx context.Context, id, expected int64, now time.Time) (bool, error) {
	result, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE number_ranges
		 SET cursor = cursor + 1,
		     status = CASE WHEN cursor + 1 >= end_number THEN 'expired' ELSE status END,
		     updated_at = ?
		 WHERE id = ? AND cursor = ? AND status = 'active' AND cursor < end_number`,
		formatTime(now), id, expected,
	)
	if err != nil {
		return false, fmt.Errorf("advancing range cursor: %w", err)
	}
	return affected(result)
}

func (s *Store) PromoteQueued(ctx context.Context, ownerID, tenantID int64, now time.Time) (domain.NumberRange, error) {
	r, err := scanRange(s.conn(ctx).QueryRowContext(ctx,
		`UPDATE number_ranges SET status = 'active', updated_at = ?
		 WHERE id = (
		     SELECT id FROM number_ranges
		     WHERE owner_id = ? AND tenant_id = ? AND status = 'queued'
		     ORDER BY created_at, id LIMIT 1
		 )
		 AND NOT EXISTS (
		     SELECT 1 FROM number_ranges
		     WHERE owner_id = ? AND tenant_id = ? AND status = 'active'
		 )
		 RETURNING `+rangeColumns,
		formatTime(now), ownerID, tenantID, ownerID, tenantID,
	))
	if errors.Is(err, domain.ErrRangeNotFound) {
		// Nothing promoted: either nothing is queued or another caller
		// activated a range first.
		return s.ActiveRange(ctx, ownerID, tenantID)
	}
	return r, err
}

func (s *Store) RecordConsumption(ctx context.Context, c domain.Consumption) error {
	_, err := s.conn(ctx).ExecContext(ctx,
		`INSERT INTO number_consumptions (tenant_id, number, owner_id, draft_id, consumed_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (tenant_id, number) DO NOTHING`,
		c.TenantID, c.Number, c.OwnerID, c.DraftID, formatTime(c.ConsumedAt),
	)
	if err != nil {
		return fmt.Errorf("recording consumption: %w", err)
	}
	return nil
}

func (s *Store) CountConsumptions(ctx context.Context, ownerID, tenantID int64) (int64, error) {
	var n int64
	err := s.conn(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM number_consumptions WHERE owner_id = ? AND tenant_id = ?`,
		ownerID, tenantID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting consumptions: %w", err)
	}
	return n, nil
}

func scanRange(row scanner) (domain.NumberRange, error) {
	var r domain.NumberRange
	var branchID sql.NullInt64
	var status, createdAt, updatedAt string

	err := row.Scan(&r.ID, &r.OwnerID, &r.TenantID, &branchID, &r.Start, &r.End, &r.Cursor,
		&status, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NumberRange{}, domain.ErrRangeNotFound
		}
		return domain.NumberRange{}, fmt.Errorf("scanning number range: %w", err)
	}

	r.BranchID = intPtr(branchID)
	r.Status = domain.RangeStatus(status)
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)

	return r, nil
}
