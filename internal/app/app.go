// -----------------------------------------------------------------------
// App - wires the orchestrator components together
// -----------------------------------------------------------------------

package app

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/harmony-svc/orchestrator/internal/catalog"
	"github.com/harmony-svc/orchestrator/internal/common"
	"github.com/harmony-svc/orchestrator/internal/engine"
	"github.com/harmony-svc/orchestrator/internal/handlers"
	"github.com/harmony-svc/orchestrator/internal/interfaces"
	"github.com/harmony-svc/orchestrator/internal/kube"
	"github.com/harmony-svc/orchestrator/internal/maintenance"
	"github.com/harmony-svc/orchestrator/internal/metrics"
	"github.com/harmony-svc/orchestrator/internal/scheduler"
	"github.com/harmony-svc/orchestrator/internal/services/jobs"
	badgerstorage "github.com/harmony-svc/orchestrator/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager
	CatalogStore   interfaces.CatalogStore
	MetricsSink    *metrics.PrometheusSink
	Cluster        interfaces.Cluster

	Scheduler   *scheduler.Scheduler
	Engine      *engine.Engine
	JobService  *jobs.Service
	Maintenance *maintenance.Runner

	// HTTP handlers
	APIHandler  *handlers.APIHandler
	JobHandler  *handlers.JobHandler
	WorkHandler *handlers.WorkHandler
}

// New creates and wires the application
func New(config *common.Config, logger arbor.ILogger) (*App, error) {
	storageManager, err := badgerstorage.NewManager(logger, &config.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	catalogStore, err := catalog.NewFileStore(config, logger)
	if err != nil {
		storageManager.Close()
		return nil, fmt.Errorf("failed to initialize catalog store: %w", err)
	}

	sink := metrics.NewPrometheusSink(config.Metrics.ClientID)

	var cluster interfaces.Cluster
	if config.Kubernetes.Enabled {
		c, err := kube.NewCluster(config, logger)
		if err != nil {
			storageManager.Close()
			return nil, fmt.Errorf("failed to initialize cluster client: %w", err)
		}
		cluster = c
	}

	eng := engine.NewEngine(storageManager, catalogStore, sink, config, logger)
	sched := scheduler.NewScheduler(storageManager, sink, config, logger)
	jobService := jobs.NewService(storageManager, eng, config, logger)
	runner := maintenance.NewRunner(storageManager, catalogStore, sink, cluster, config, logger)

	a := &App{
		Config:         config,
		Logger:         logger,
		StorageManager: storageManager,
		CatalogStore:   catalogStore,
		MetricsSink:    sink,
		Cluster:        cluster,
		Scheduler:      sched,
		Engine:         eng,
		JobService:     jobService,
		Maintenance:    runner,
		APIHandler:     handlers.NewAPIHandler(),
		JobHandler:     handlers.NewJobHandler(jobService, logger),
		WorkHandler:    handlers.NewWorkHandler(sched, eng, logger),
	}

	if err := runner.Start(); err != nil {
		storageManager.Close()
		return nil, fmt.Errorf("failed to start maintenance runner: %w", err)
	}

	logger.Info().Msg("Application initialized")
	return a, nil
}

// Close stops background work and releases resources
func (a *App) Close() error {
	if a.Maintenance != nil {
		a.Maintenance.Stop()
	}
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
	}
	a.Logger.Info().Msg("Application closed")
	return nil
}
