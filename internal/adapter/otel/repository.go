package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/anees-mohamed-ar/logistic/internal/domain"
)

const tracerName = "github.com/anees-mohamed-ar/logistic/internal/adapter/otel"

// TracingDraftRepository wraps a domain.DraftRepository with OpenTelemetry
// tracing. Each method creates a span with draft attributes and records
// errors. Conditional updates also record whether they applied.
type TracingDraftRepository struct {
	next   domain.DraftRepository
	tracer trace.Tracer
}

// Compile-time check: TracingDraftRepository implements domain.DraftRepository.
var _ domain.DraftRepository = (*TracingDraftRepository)(nil)

// NewTracingDraftRepository creates a tracing decorator around the given repository.
func NewTracingDraftRepository(next domain.DraftRepository) *TracingDraftRepository {
	return &TracingDraftRepository{
		next:   next,
		tracer: otel.Tracer(tracerName),
	}
}

func (r *TracingDraftRepository) start(ctx context.Context, name, id string, scope domain.Scope, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.Int64("tenant.id", scope.TenantID))
	if id != "" {
		attrs = append(attrs, attribute.String("draft.id", id))
	}
	if scope.BranchID != nil {
		attrs = append(attrs, attribute.Int64("branch.id", *scope.BranchID))
	}
	return r.tracer.Start(ctx, "DraftRepository."+name, trace.WithAttributes(attrs...))
}

// recordError marks span as failed when err is set.
func recordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

func recordApplied(span trace.Span, ok bool, err error) {
	recordError(span, err)
	if err == nil {
		span.SetAttributes(attribute.Bool("result.applied", ok))
	}
}

func (r *TracingDraftRepository) CreateDraft(ctx context.Context, draft domain.DraftRecord) error {
	ctx, span := r.start(ctx, "CreateDraft", draft.ID, domain.Scope{TenantID: draft.TenantID, BranchID: draft.BranchID})
	defer span.End()

	err := r.next.CreateDraft(ctx, draft)
	recordError(span, err)
	return err
}

func (r *TracingDraftRepository) GetDraft(ctx context.Context, id string, scope domain.Scope) (domain.DraftRecord, error) {
	ctx, span := r.start(ctx, "GetDraft", id, scope)
	defer span.End()

	draft, err := r.next.GetDraft(ctx, id, scope)
	recordError(span, err)
	if err == nil {
		span.SetAttributes(attribute.String("draft.state", string(draft.State())))
	}
	return draft, err
}

func (r *TracingDraftRepository) ListOpenDrafts(ctx context.Context, filter domain.DraftFilter) ([]domain.DraftRecord, error) {
	ctx, span := r.start(ctx, "ListOpenDrafts", "", filter.Scope,
		attribute.Int64("filter.visible_to", filter.VisibleTo),
	)
	defer span.End()

	drafts, err := r.next.ListOpenDrafts(ctx, filter)
	recordError(span, err)
	if err == nil {
		span.SetAttributes(attribute.Int("result.count", len(drafts)))
	}
	return drafts, err
}

func (r *TracingDraftRepository) UpdateDraftFields(ctx context.Context, id string, scope domain.Scope, fields domain.ShipmentFields, editor int64, staleBefore, now time.Time) (bool, error) {
	ctx, span := r.start(ctx, "UpdateDraftFields", id, scope, attribute.Int64("user.id", editor))
	defer span.End()

	ok, err := r.next.UpdateDraftFields(ctx, id, scope, fields, editor, staleBefore, now)
	recordApplied(span, ok, err)
	return ok, err
}

func (r *TracingDraftRepository) DeleteDraft(ctx context.Context, id string, scope domain.Scope) (bool, error) {
	ctx, span := r.start(ctx, "DeleteDraft", id, scope)
	defer span.End()

	ok, err := r.next.DeleteDraft(ctx, id, scope)
	recordApplied(span, ok, err)
	return ok, err
}

func (r *TracingDraftRepository) AcquireLease(ctx context.Context, id string, scope domain.Scope, userID int64, staleBefore, now time.Time) (bool, error) {
	ctx, span := r.start(ctx, "AcquireLease", id, scope, attribute.Int64("user.id", userID))
	defer span.End()

	ok, err := r.next.AcquireLease(ctx, id, scope, userID, staleBefore, now)
	recordApplied(span, ok, err)
	return ok, err
}

func (r *TracingDraftRepository) ReleaseLease(ctx context.Context, id string, scope domain.Scope, holder int64) (bool, error) {
	ctx, span := r.start(ctx, "ReleaseLease", id, scope, attribute.Int64("user.id", holder))
	defer span.End()

	ok, err := r.next.ReleaseLease(ctx, id, scope, holder)
	recordApplied(span, ok, err)
	return ok, err
}

func (r *TracingDraftRepository) ForceReleaseLease(ctx context.Context, id string, scope domain.Scope) (bool, error) {
	ctx, span := r.start(ctx, "ForceReleaseLease", id, scope)
	defer span.End()

	ok, err := r.next.ForceReleaseLease(ctx, id, scope)
	recordApplied(span, ok, err)
	return ok, err
}

func (r *TracingDraftRepository) ReleaseStaleLease(ctx context.Context, id string, scope domain.Scope, staleBefore time.Time) (bool, error) {
	ctx, span := r.start(ctx, "ReleaseStaleLease", id, scope)
	defer span.End()

	ok, err := r.next.ReleaseStaleLease(ctx, id, scope, staleBefore)
	recordApplied(span, ok, err)
	return ok, err
}

func (r *TracingDraftRepository) MarkConverted(ctx context.Context, id string, scope domain.Scope, userID int64, number string, at time.Time) (bool, error) {
	ctx, span := r.start(ctx, "MarkConverted", id, scope,
		attribute.Int64("user.id", userID),
		attribute.String("record.number", number),
	)
	defer span.End()

	ok, err := r.next.MarkConverted(ctx, id, scope, userID, number, at)
	recordApplied(span, ok, err)
	return ok, err
}

func (r *TracingDraftRepository) SweepStaleLeases(ctx context.Context, staleBefore time.Time) ([]domain.SweptLeases, error) {
	ctx, span := r.tracer.Start(ctx, "DraftRepository.SweepStaleLeases")
	defer span.End()

	swept, err := r.next.SweepStaleLeases(ctx, staleBefore)
	recordError(span, err)
	if err == nil {
		total := 0
		for _, group := range swept {
			total += len(group.DraftIDs)
		}
		span.SetAttributes(
			attribute.Int("result.count", total),
			attribute.Int("result.tenants", len(swept)),
		)
	}
	return swept, err
}
