package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/anees-mohamed-ar/logistic/internal/domain"
)

const draftColumns = `id, tenant_id, branch_id, created_by, fields,
	locked, locked_by, locked_at,
	converted, converted_to, converted_by, converted_at,
	created_at, updated_at`

const clearLease = `locked = 0, locked_by = NULL, locked_at = NULL`

func (s *Store) CreateDraft(ctx context.Context, d domain.DraftRecord) error {
	fields, err := json.Marshal(d.Fields)
	if err != nil {
		return fmt.Errorf("encoding draft fields: %w", err)
	}

	_, err = s.conn(ctx).ExecContext(ctx,
		`INSERT INTO drafts (id, tenant_id, branch_id, created_by, fields, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.TenantID, nullInt(d.BranchID), d.CreatedBy, string(fields),
		formatTime(d.CreatedAt), formatTime(d.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting draft: %w", err)
	}
	return nil
}

func (s *Store) GetDraft(ctx context.Context, id string, scope domain.Scope) (domain.DraftRecord, error) {
	clause, args := scopeClause(scope, []any{id})
	return scanDraft(s.conn(ctx).QueryRowContext(ctx,
		`SELECT `+draftColumns+` FROM drafts WHERE id = ?`+clause, args...,
	))
}

func (s *Store) ListOpenDrafts(ctx context.Context, filter domain.DraftFilter) ([]domain.DraftRecord, error) {
	clause, args := scopeClause(filter.Scope, nil)
	query := `SELECT ` + draftColumns + ` FROM drafts WHERE converted = 0` + clause

	visible := `locked = 0 OR locked_at <= ?`
	args = append(args, formatTime(filter.StaleBefore))
	if filter.VisibleTo != 0 {
		visible += ` OR locked_by = ?`
		args = append(args, filter.VisibleTo)
	}
	query += ` AND (` + visible + `) ORDER BY created_at DESC, id`

	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing drafts: %w", err)
	}
	defer rows.Close()

	drafts := []domain.DraftRecord{}
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, d)
	}
	return drafts, rows.Err()
}

func (s *Store) UpdateDraftFields(ctx context.Context, id string, scope domain.Scope, fields domain.ShipmentFields, editor int64, staleBefore, now time.Time) (bool, error) {
	encoded, err := json.Marshal(fields)
	if err != nil {
		return false, fmt.Errorf("encoding draft fields: %w", err)
	}

	clause, args := scopeClause(scope, []any{string(encoded), formatTime(now), id})
	args = append(args, editor, formatTime(staleBefore))
	result, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE drafts SET fields = ?, updated_at = ?
		 WHERE id = ?`+clause+` AND converted = 0
		   AND (locked = 0 OR locked_by = ? OR locked_at <= ?)`,
		args...,
	)
	if err != nil {
		return false, fmt.Errorf("updating draft fields: %w", err)
	}
	return affected(result)
}

func (s *Store) DeleteDraft(ctx context.Context, id string, scope domain.Scope) (bool, error) {
	clause, args := scopeClause(scope, []any{id})
	result, err := s.conn(ctx).ExecContext(ctx,
		`DELETE FROM drafts WHERE id = ?`+clause+` AND converted = 0`, args...,
	)
	if err != nil {
		return false, fmt.Errorf("deleting draft: %w", err)
	}
	return affected(result)
}

func (s *Store) AcquireLease(ctx context.Context, id string, scope domain.Scope, userID int64, staleBefore, now time.Time) (bool, error) {
	clause, args := scopeClause(scope, []any{userID, formatTime(now), id})
	args = append(args, userID, formatTime(staleBefore))
	result, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE drafts SET locked = 1, locked_by = ?, locked_at = ?
		 WHERE id = ?`+clause+` AND converted = 0
		   AND (locked = 0 OR locked_by = ? OR locked_at <= ?)`,
		args...,
	)
	if err != nil {
		return false, fmt.Errorf("acquiring lease: %w", err)
	}
	return affected(result)
}

func (s *Store) ReleaseLease(ctx context.Context, id string, scope domain.Scope, holder int64) (bool, error) {
	clause, args := scopeClause(scope, []any{id})
	args = append(args, holder)
	return s.release(ctx, `WHERE id = ?`+clause+` AND locked_by = ?`, args)
}

func (s *Store) ForceReleaseLease(ctx context.Context, id string, scope domain.Scope) (bool, error) {
	clause, args := scopeClause(scope, []any{id})
	return s.release(ctx, `WHERE id = ?`+clause, args)
}

func (s *Store) ReleaseStaleLease(ctx context.Context, id string, scope domain.Scope, staleBefore time.Time) (bool, error) {
	clause, args := scopeClause(scope, []any{id})
	args = append(args, formatTime(staleBefore))
	return s.release(ctx, `WHERE id = ?`+clause+` AND locked_at <= ?`, args)
}

func (s *Store) release(ctx context.Context, where string, args []any) (bool, error) {
	result, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE drafts SET `+clearLease+` `+where+` AND locked = 1 AND converted = 0`, args...,
	)
	if err != nil {
		return false, fmt.Errorf("releasing lease: %w", err)
	}
	return affected(result)
}

func (s *Store) MarkConverted(ctx context.Context, id string, scope domain.Scope, userID int64, number string, at time.Time) (bool, error) {
	clause, args := scopeClause(scope, []any{number, userID, formatTime(at), formatTime(at), id})
	args = append(args, userID)
	result, err := s.conn(ctx).ExecContext(ctx,
		`UPDATE drafts SET converted = 1, converted_to = ?, converted_by = ?, converted_at = ?,
		        updated_at = ?, `+clearLease+`
		 WHERE id = ?`+clause+` AND converted = 0 AND locked = 1 AND locked_by = ?`,
		args...,
	)
	if err != nil {
		return false, fmt.Errorf("marking draft converted: %w", err)
	}
	return affected(result)
}

func (s *Store) SweepStaleLeases(ctx context.Context, staleBefore time.Time) ([]domain.SweptLeases, error) {
	rows, err := s.conn(ctx).QueryContext(ctx,
		`UPDATE drafts SET `+clearLease+`
		 WHERE locked = 1 AND converted = 0 AND locked_at <= ?
		 RETURNING tenant_id, id`,
		formatTime(staleBefore),
	)
	if err != nil {
		return nil, fmt.Errorf("sweeping stale leases: %w", err)
	}
	defer rows.Close()

	byTenant := make(map[int64][]string)
	for rows.Next() {
		var tenantID int64
		var id string
		if err := rows.Scan(&tenantID, &id); err != nil {
			return nil, fmt.Errorf("scanning swept lease: %w", err)
		}
		byTenant[tenantID] = append(byTenant[tenantID], id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sweeping stale leases: %w", err)
	}

	swept := make([]domain.SweptLeases, 0, len(byTenant))
	for tenantID, ids := range byTenant {
		sort.Strings(ids)
		swept = append(swept, domain.SweptLeases{TenantID: tenantID, DraftIDs: ids})
	}
	sort.Slice(swept, func(i, j int) bool { return swept[i].TenantID < swept[j].TenantID })
	return swept, nil
}

func scanDraft(row scanner) (domain.DraftRecord, error) {
	var d domain.DraftRecord
	var (
		branchID, lockedBy, convertedBy    sql.NullInt64
		lockedAt, convertedTo, convertedAt sql.NullString
		fields, createdAt, updatedAt       string
	)

	err := row.Scan(&d.ID, &d.TenantID, &branchID, &d.CreatedBy, &fields,
		&d.Locked, &lockedBy, &lockedAt,
		&d.Converted, &convertedTo, &convertedBy, &convertedAt,
		&createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.DraftRecord{}, domain.ErrDraftNotFound
		}
		return domain.DraftRecord{}, fmt.Errorf("scanning draft: %w", err)
	}

	if err := json.Unmarshal([]byte(fields), &d.Fields); err != nil {
		return domain.DraftRecord{}, fmt.Errorf("decoding draft fields: %w", err)
	}

	d.BranchID = intPtr(branchID)
	d.LockedBy = intPtr(lockedBy)
	d.LockedAt = parseNullTime(lockedAt)
	d.ConvertedToNumber = convertedTo.String
	d.ConvertedBy = intPtr(convertedBy)
	d.ConvertedAt = parseNullTime(convertedAt)
	d.CreatedAt = parseTime(createdAt)
	d.UpdatedAt = parseTime(updatedAt)

	return d, nil
}
