// -----------------------------------------------------------------------
// Maintenance runner - cron-scheduled background loops
// -----------------------------------------------------------------------

package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/harmony-svc/orchestrator/internal/common"
	"github.com/harmony-svc/orchestrator/internal/interfaces"
)

// lockTTL bounds how long a loop's advisory lock survives a crashed holder
const lockTTL = 15 * time.Minute

// Runner schedules the maintenance loops. Each loop runs on its own cron
// entry and acquires an advisory lock keyed by its name first, so under a
// multi-replica deployment each tick executes on exactly one replica.
type Runner struct {
	cron     *cron.Cron
	storage  interfaces.StorageManager
	catalogs interfaces.CatalogStore
	metrics  interfaces.MetricsSink
	cluster  interfaces.Cluster
	config   *common.Config
	logger   arbor.ILogger
}

// NewRunner creates a maintenance runner. cluster may be nil; the loops that
// need the container orchestrator then skip their work.
func NewRunner(storage interfaces.StorageManager, catalogs interfaces.CatalogStore, metrics interfaces.MetricsSink, cluster interfaces.Cluster, config *common.Config, logger arbor.ILogger) *Runner {
	return &Runner{
		cron:     cron.New(),
		storage:  storage,
		catalogs: catalogs,
		metrics:  metrics,
		cluster:  cluster,
		config:   config,
		logger:   logger,
	}
}

// Start registers every loop and starts the scheduler
func (r *Runner) Start() error {
	m := r.config.Maintenance

	loops := []struct {
		name string
		expr string
		run  func(context.Context) error
	}{
		{"work-reaper", m.WorkReaperCron, r.ReapWork},
		{"user-work-updater", m.UserWorkUpdaterCron, r.ReconcileUserWork},
		{"service-failure-metrics", m.PublishServiceFailureMetricsCron, r.PublishFailureRates},
		{"restart-prometheus", m.RestartPrometheusCron, r.RestartWedgedPrometheus},
		{"memory-usage-collector", m.MemoryUsageCollectorCron, r.CollectMemoryUsage},
		{"badger-gc", m.BadgerGCCron, r.RunBadgerGC},
	}

	for _, loop := range loops {
		if loop.expr == "" {
			r.logger.Info().Str("loop", loop.name).Msg("Maintenance loop disabled")
			continue
		}
		if err := r.register(loop.name, loop.expr, loop.run); err != nil {
			return err
		}
	}

	r.cron.Start()
	r.logger.Info().Msg("Maintenance runner started")
	return nil
}

// Stop stops the scheduler and waits for running loops to finish
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info().Msg("Maintenance runner stopped")
}

func (r *Runner) register(name, expr string, run func(context.Context) error) error {
	_, err := r.cron.AddFunc(expr, func() {
		ctx := context.Background()

		acquired, err := r.storage.Locks().Acquire(ctx, name, lockTTL)
		if err != nil {
			r.logger.Error().Err(err).Str("loop", name).Msg("Failed to acquire maintenance lock")
			return
		}
		if !acquired {
			r.logger.Debug().Str("loop", name).Msg("Maintenance lock held elsewhere, skipping tick")
			return
		}
		defer func() {
			if err := r.storage.Locks().Release(ctx, name); err != nil {
				r.logger.Error().Err(err).Str("loop", name).Msg("Failed to release maintenance lock")
			}
		}()

		started := time.Now()
		if err := run(ctx); err != nil {
			r.logger.Error().Err(err).Str("loop", name).Msg("Maintenance loop failed")
			return
		}
		r.logger.Debug().
			Str("loop", name).
			Str("duration", time.Since(started).String()).
			Msg("Maintenance loop completed")
	})
	if err != nil {
		return err
	}

	r.logger.Info().Str("loop", name).Str("cron", expr).Msg("Registered maintenance loop")
	return nil
}
