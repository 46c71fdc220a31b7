package otel

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/anees-mohamed-ar/logistic/internal/domain"
)

// TracingNotifier wraps a domain.Notifier with a span per publish and a
// counter of published notifications by type and outcome.
type TracingNotifier struct {
	next      domain.Notifier
	tracer    trace.Tracer
	published metric.Int64Counter
}

// Compile-time check: TracingNotifier implements domain.Notifier.
var _ domain.Notifier = (*TracingNotifier)(nil)

// NewTracingNotifier creates a tracing decorator around the given notifier.
func NewTracingNotifier(next domain.Notifier) (*TracingNotifier, error) {
	published, err := otel.Meter(tracerName).Int64Counter("logistic.notifications.published",
		metric.WithDescription("Draft notifications handed to the bus."),
		metric.WithUnit("{notification}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating notification counter: %w", err)
	}
	return &TracingNotifier{
		next:      next,
		tracer:    otel.Tracer(tracerName),
		published: published,
	}, nil
}

func (p *TracingNotifier) Publish(ctx context.Context, n domain.Notification) error {
	ctx, span := p.tracer.Start(ctx, "Notifier.Publish",
		trace.WithAttributes(
			attribute.String("notification.type", string(n.Type)),
			attribute.Int64("tenant.id", n.TenantID),
			attribute.String("draft.id", n.DraftID),
		),
	)
	defer span.End()

	err := p.next.Publish(ctx, n)
	recordError(span, err)

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	p.published.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", string(n.Type)),
		attribute.String("outcome", outcome),
	))
	return err
}
