package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anees-mohamed-ar/logistic/internal/domain"
)

func (s *Store) CreateRecord(ctx context.Context, rec domain.PermanentRecord) error {
	fields, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("encoding record fields: %w", err)
	}

	_, err = s.conn(ctx).ExecContext(ctx,
		`INSERT INTO permanent_records (tenant_id, number, branch_id, draft_id, fields, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.TenantID, rec.Number, nullInt(rec.BranchID), rec.DraftID, string(fields),
		rec.CreatedBy, formatTime(rec.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			if strings.Contains(err.Error(), "permanent_records.draft_id") {
				return &domain.AlreadyConvertedError{DraftID: rec.DraftID}
			}
			return &domain.DuplicateNumberError{TenantID: rec.TenantID, Number: rec.Number}
		}
		return fmt.Errorf("inserting permanent record: %w", err)
	}
	return nil
}

func (s *Store) GetRecord(ctx context.Context, tenantID int64, number string) (domain.PermanentRecord, error) {
	var rec domain.PermanentRecord
	var branchID sql.NullInt64
	var fields, createdAt string

	err := s.conn(ctx).QueryRowContext(ctx,
		`SELECT tenant_id, number, branch_id, draft_id, fields, created_by, created_at
		 FROM permanent_records WHERE tenant_id = ? AND number = ?`, tenantID, number,
	).Scan(&rec.TenantID, &rec.Number, &branchID, &rec.DraftID, &fields, &rec.CreatedBy, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.PermanentRecord{}, domain.ErrRecordNotFound
		}
		return domain.PermanentRecord{}, fmt.Errorf("scanning permanent record: %w", err)
	}

	if err := json.Unmarshal([]byte(fields), &rec.Fields); err != nil {
		return domain.PermanentRecord{}, fmt.Errorf("decoding record fields: %w", err)
	}
	rec.BranchID = intPtr(branchID)
	rec.CreatedAt = parseTime(createdAt)

	return rec, nil
}

func (s *Store) RecordExists(ctx context.Context, tenantID int64, number string) (bool, error) {
	var exists bool
	err := s.conn(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM permanent_records WHERE tenant_id = ? AND number = ?)`,
		tenantID, number,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking permanent record: %w", err)
	}
	return exists, nil
}
