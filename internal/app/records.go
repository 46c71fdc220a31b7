package app

import (
	"context"

	"github.com/anees-mohamed-ar/logistic/internal/domain"
)

// RecordService reads permanent records.
type RecordService struct {
	records domain.RecordRepository
	gate    *IdentityGate
	opts    options
}

// NewRecordService creates a service over the permanent record store.
func NewRecordService(records domain.RecordRepository, gate *IdentityGate, opts ...Option) *RecordService {
	return &RecordService{records: records, gate: gate, opts: newOptions(opts)}
}

// Get returns the permanent record numbered number in the caller's company.
func (s *RecordService) Get(ctx context.Context, c Caller, number string) (domain.PermanentRecord, error) {
	ident, err := s.gate.Authorize(ctx, c)
	if err != nil {
		return domain.PermanentRecord{}, err
	}
	return s.records.GetRecord(ctx, ident.TenantID, number)
}

// CanEdit reports whether the caller may still edit a record. Privileged
// users always may; others only within the edit window after creation.
func (s *RecordService) CanEdit(ctx context.Context, c Caller, number string) (domain.EditPermission, error) {
	ident, err := s.gate.Authorize(ctx, c)
	if err != nil {
		return domain.EditPermission{}, err
	}
	record, err := s.records.GetRecord(ctx, ident.TenantID, number)
	if err != nil {
		return domain.EditPermission{}, err
	}

	until := record.CreatedAt.Add(s.opts.editWindow)
	return domain.EditPermission{
		Number:        number,
		CanEdit:       ident.Privileged || s.opts.clock().Before(until),
		Privileged:    ident.Privileged,
		EditableUntil: until,
	}, nil
}
