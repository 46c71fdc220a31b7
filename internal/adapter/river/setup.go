package river

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riversqlite"
	"github.com/riverqueue/river/rivermigrate"
	"go.uber.org/zap"

	"github.com/anees-mohamed-ar/logistic/internal/domain"
)

// Config wires the background jobs to the services they call.
type Config struct {
	Recorder ConsumptionRecorder
	Records  domain.RecordRepository
	// Sink receives exported records. Optional.
	Sink    domain.RecordSink
	Sweeper SweepTicker
	// SweepInterval schedules the periodic lease sweep. Zero disables it.
	SweepInterval time.Duration
	Logger        *zap.Logger
}

// Setup creates a River client with the consumption and sweep workers
// registered and runs River's internal migrations. The caller must call
// client.Start() to begin processing jobs and client.Stop() for graceful
// shutdown.
func Setup(ctx context.Context, db *sql.DB, cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	driver := riversqlite.New(db)

	// Run River's own migrations (creates river_job, river_leader, etc.).
	// These are separate from the app's goose migrations.
	migrator, err := rivermigrate.New(driver, nil)
	if err != nil {
		return nil, fmt.Errorf("creating river migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		return nil, fmt.Errorf("running river migrations: %w", err)
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, &ConsumptionWorker{
		recorder: cfg.Recorder,
		records:  cfg.Records,
		sink:     cfg.Sink,
		logger:   cfg.Logger.Named("consumption"),
	})

	var periodic []*river.PeriodicJob
	if cfg.Sweeper != nil {
		river.AddWorker(workers, &SweepWorker{sweeper: cfg.Sweeper})
		if cfg.SweepInterval > 0 {
			periodic = append(periodic, river.NewPeriodicJob(
				river.PeriodicInterval(cfg.SweepInterval),
				func() (river.JobArgs, *river.InsertOpts) {
					return SweepArgs{}, &river.InsertOpts{MaxAttempts: 1}
				},
				&river.PeriodicJobOpts{RunOnStart: true},
			))
		}
	}

	client, err := river.NewClient(driver, &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 2},
		},
		Workers:      workers,
		PeriodicJobs: periodic,
	})
	if err != nil {
		return nil, fmt.Errorf("creating river client: %w", err)
	}

	return client, nil
}
