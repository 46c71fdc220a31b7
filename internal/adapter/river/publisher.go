package river

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/riverqueue/river"

	"github.com/anees-mohamed-ar/logistic/internal/domain"
)

// Compile-time check: Publisher implements domain.ConsumptionHook.
var _ domain.ConsumptionHook = (*Publisher)(nil)

// NumberConsumedArgs carries a consumed number to the ledger worker. River
// serializes it as JSON into its job queue table, so the worker never needs
// the conversion's transaction.
type NumberConsumedArgs struct {
	domain.Consumption
}

// Kind returns the unique job type identifier used by River's job routing.
func (NumberConsumedArgs) Kind() string { return "number.consumed" }

// InsertOpts gives the ledger write more attempts than River's default.
func (NumberConsumedArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: 10}
}

// Client is the River client type parameterized for SQLite (*sql.Tx).
type Client = river.Client[*sql.Tx]

// Publisher implements domain.ConsumptionHook by enqueuing River jobs.
type Publisher struct {
	client *Client
}

// NewPublisher creates a publisher backed by the given River client.
func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

// NumberConsumed enqueues the consumption as an async job in River.
func (p *Publisher) NumberConsumed(ctx context.Context, c domain.Consumption) error {
	if _, err := p.client.Insert(ctx, NumberConsumedArgs{Consumption: c}, nil); err != nil {
		return fmt.Errorf("enqueuing consumption job: %w", err)
	}
	return nil
}
