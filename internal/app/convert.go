package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/anees-mohamed-ar/logistic/internal/domain"
)

// ConvertRequest asks for a leased draft to be finalized under Number.
type ConvertRequest struct {
	DraftID   string
	Number    string
	Overrides domain.ShipmentFields
}

// convertBackoff bounds how often a conversion is re-run after the store
// reported contention.
func convertBackoff() retry.Backoff {
	return retry.WithMaxRetries(2, retry.NewExponential(20*time.Millisecond))
}

// Convert turns a draft the caller holds into a permanent record numbered
// req.Number. The record insert and the draft update commit together or not
// at all. Consumption of the number and the converted notification follow
// the commit and never fail the call.
func (s *DraftService) Convert(ctx context.Context, c Caller, req ConvertRequest) (domain.PermanentRecord, error) {
	number := strings.TrimSpace(req.Number)
	if number == "" {
		return domain.PermanentRecord{}, &domain.ValidationError{Field: "number", Reason: "permanent number is empty"}
	}

	var (
		record domain.PermanentRecord
		ident  domain.Identity
	)
	err := retry.Do(ctx, convertBackoff(), func(ctx context.Context) error {
		err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
			var err error
			record, ident, err = s.convertInTx(ctx, c, req.DraftID, number, req.Overrides)
			return err
		})
		if errors.Is(err, domain.ErrStoreBusy) {
			s.opts.logger.Debug("retrying conversion", zap.String("draft_id", req.DraftID), zap.Error(err))
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return domain.PermanentRecord{}, err
	}

	s.afterConvert(ctx, ident, record)
	return record, nil
}

func (s *DraftService) convertInTx(ctx context.Context, c Caller, draftID, number string, overrides domain.ShipmentFields) (domain.PermanentRecord, domain.Identity, error) {
	ident, err := s.gate.Authorize(ctx, c)
	if err != nil {
		return domain.PermanentRecord{}, domain.Identity{}, err
	}
	scope := ident.Scope()

	draft, err := s.drafts.GetDraft(ctx, draftID, scope)
	if err != nil {
		return domain.PermanentRecord{}, ident, err
	}
	if draft.Converted {
		return domain.PermanentRecord{}, ident, &domain.AlreadyConvertedError{DraftID: draftID, Number: draft.ConvertedToNumber}
	}
	if !draft.HeldBy(ident.UserID) {
		return domain.PermanentRecord{}, ident, &domain.NotHolderError{DraftID: draftID, UserID: ident.UserID, Holder: draft.LockedBy}
	}
	if _, err := s.validator.Apply(ctx, draft.State(), domain.EventConvert); err != nil {
		return domain.PermanentRecord{}, ident, err
	}

	exists, err := s.records.RecordExists(ctx, draft.TenantID, number)
	if err != nil {
		return domain.PermanentRecord{}, ident, fmt.Errorf("checking permanent number: %w", err)
	}
	if exists {
		return domain.PermanentRecord{}, ident, &domain.DuplicateNumberError{TenantID: draft.TenantID, Number: number}
	}

	now := s.opts.clock()
	record := domain.NewPermanentRecord(number, draft, overrides, ident.UserID, now)
	if err := s.records.CreateRecord(ctx, record); err != nil {
		return domain.PermanentRecord{}, ident, err
	}

	ok, err := s.drafts.MarkConverted(ctx, draftID, scope, ident.UserID, number, now)
	if err != nil {
		return domain.PermanentRecord{}, ident, fmt.Errorf("marking draft converted: %w", err)
	}
	if !ok {
		return domain.PermanentRecord{}, ident, &domain.NotHolderError{DraftID: draftID, UserID: ident.UserID}
	}
	return record, ident, nil
}

// afterConvert runs the post-commit side effects of a conversion.
func (s *DraftService) afterConvert(ctx context.Context, ident domain.Identity, record domain.PermanentRecord) {
	log := s.opts.logger.With(
		zap.String("draft_id", record.DraftID),
		zap.String("number", record.Number),
		zap.Int64("tenant_id", record.TenantID),
	)
	log.Info("draft converted", zap.Int64("user_id", ident.UserID))

	if s.hook != nil {
		err := s.hook.NumberConsumed(ctx, domain.Consumption{
			TenantID:   record.TenantID,
			OwnerID:    ident.UserID,
			Number:     record.Number,
			DraftID:    record.DraftID,
			ConsumedAt: record.CreatedAt,
		})
		if err != nil {
			log.Warn("reporting consumed number", zap.Error(err))
		}
	}

	s.publish(ctx, domain.Notification{
		Type:        domain.NotifyConverted,
		TenantID:    record.TenantID,
		DraftID:     record.DraftID,
		Actor:       ident.UserID,
		ConvertedTo: record.Number,
	})
}
