package river

import (
	"context"
	"errors"
	"fmt"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"github.com/anees-mohamed-ar/logistic/internal/domain"
)

// ConsumptionRecorder stores consumed numbers in the allocator's ledger.
type ConsumptionRecorder interface {
	RecordConsumption(ctx context.Context, c domain.Consumption) error
}

// SweepTicker runs one lease sweep.
type SweepTicker interface {
	Tick(ctx context.Context)
}

// ConsumptionWorker records consumed numbers and exports the finalized
// record to the sink, when one is configured.
type ConsumptionWorker struct {
	river.WorkerDefaults[NumberConsumedArgs]

	recorder ConsumptionRecorder
	records  domain.RecordRepository
	sink     domain.RecordSink
	logger   *zap.Logger
}

// Work processes a single consumption job. Both steps are idempotent, so a
// retried job repeats them safely.
func (w *ConsumptionWorker) Work(ctx context.Context, job *river.Job[NumberConsumedArgs]) error {
	c := job.Args.Consumption
	log := w.logger.With(
		zap.Int64("tenant_id", c.TenantID),
		zap.String("number", c.Number),
		zap.Int64("job_id", job.ID),
		zap.Int("attempt", job.Attempt),
	)

	if err := w.recorder.RecordConsumption(ctx, c); err != nil {
		return err
	}
	log.Debug("consumption recorded", zap.Int64("owner_id", c.OwnerID))

	if w.sink == nil {
		return nil
	}
	record, err := w.records.GetRecord(ctx, c.TenantID, c.Number)
	if errors.Is(err, domain.ErrRecordNotFound) {
		log.Error("consumed number has no permanent record")
		return river.JobCancel(err)
	}
	if err != nil {
		return fmt.Errorf("loading record %q: %w", c.Number, err)
	}
	if err := w.sink.Send(ctx, record); err != nil {
		return fmt.Errorf("exporting record %q: %w", c.Number, err)
	}
	log.Info("record exported")
	return nil
}

// SweepArgs schedules one lease sweep.
type SweepArgs struct{}

// Kind returns the unique job type identifier used by River's job routing.
func (SweepArgs) Kind() string { return "lease.sweep" }

// SweepWorker runs the lease sweeper on River's periodic schedule.
type SweepWorker struct {
	river.WorkerDefaults[SweepArgs]

	sweeper SweepTicker
}

// Work runs one sweep. Failures are logged by the sweeper and retried by the
// next scheduled run rather than by River.
func (w *SweepWorker) Work(ctx context.Context, _ *river.Job[SweepArgs]) error {
	w.sweeper.Tick(ctx)
	return nil
}
