// -----------------------------------------------------------------------
// Step Engine - reacts to work item completion updates
// -----------------------------------------------------------------------

package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/harmony-svc/orchestrator/internal/catalog"
	"github.com/harmony-svc/orchestrator/internal/common"
	"github.com/harmony-svc/orchestrator/internal/interfaces"
	"github.com/harmony-svc/orchestrator/internal/models"
)

// Engine applies work item completion updates: it persists the terminal
// transition, materializes the next step's items, runs the failure policy
// and keeps job progress and terminal status current.
//
// All mutation happens inside the job lock, so a completion, a concurrent
// dispatch and a cancellation for the same job serialize. The fencing rule
// (reject when the job is terminal or the item is not running) makes a
// worker's completion post safe to retry.
type Engine struct {
	storage  interfaces.StorageManager
	catalogs interfaces.CatalogStore
	metrics  interfaces.MetricsSink
	config   *common.Config
	logger   arbor.ILogger
}

// NewEngine creates an Engine
func NewEngine(storage interfaces.StorageManager, catalogs interfaces.CatalogStore, metrics interfaces.MetricsSink, config *common.Config, logger arbor.ILogger) *Engine {
	return &Engine{
		storage:  storage,
		catalogs: catalogs,
		metrics:  metrics,
		config:   config,
		logger:   logger,
	}
}

// UpdateWorkItem applies a worker's completion update. It returns
// models.ErrConflict (wrapped) when the update arrives out of state and
// models.ErrNotFound when the item does not exist.
func (e *Engine) UpdateWorkItem(ctx context.Context, update *models.WorkItemUpdate) error {
	if err := update.Validate(); err != nil {
		return models.NewValidationError("%s", err.Error())
	}

	// Locate the item first to learn which job lock to take
	probe, err := e.storage.WorkItems().Get(ctx, update.ID)
	if err != nil {
		return err
	}

	return e.storage.WithJobLock(probe.JobID, func() error {
		item, err := e.storage.WorkItems().Get(ctx, update.ID)
		if err != nil {
			return err
		}
		job, err := e.storage.Jobs().Get(ctx, item.JobID)
		if err != nil {
			return err
		}

		if job.IsTerminal() {
			return fmt.Errorf("job %s is %s: %w", job.JobID, job.Status, models.ErrConflict)
		}
		if item.Status != models.WorkItemStatusRunning {
			return fmt.Errorf("work item %d is %s, not running: %w", item.ID, item.Status, models.ErrConflict)
		}

		step, err := e.storage.Steps().Get(ctx, item.JobID, item.WorkflowStepIndex)
		if err != nil {
			return err
		}

		if update.Status == models.WorkItemStatusFailed {
			return e.handleFailure(ctx, job, step, item, update)
		}
		return e.handleSuccess(ctx, job, step, item, update)
	})
}

// handleSuccess processes a successful or warning completion. Catalog reads
// happen before the terminal status is persisted: a transient read failure
// leaves the item running so the worker's retried post can succeed.
func (e *Engine) handleSuccess(ctx context.Context, job *models.Job, step *models.WorkflowStep, item *models.WorkItem, update *models.WorkItemUpdate) error {
	nextStep, err := e.storage.Steps().Get(ctx, job.JobID, step.StepIndex+1)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return err
	}
	isFinal := nextStep == nil

	var linkItems []models.CatalogItem
	var produced int
	if isFinal || step.IsProducer {
		for _, url := range update.Results {
			catItems, err := catalog.CollectItems(ctx, e.catalogs, url)
			if err != nil {
				return fmt.Errorf("failed to read result catalog: %w", err)
			}
			produced += len(catItems)
			if isFinal {
				linkItems = append(linkItems, catItems...)
			}
		}
		for i := range linkItems {
			if verr := linkItems[i].Validate(); verr != nil {
				return e.failValidation(ctx, job, step, item, verr)
			}
		}
	}

	item.Status = update.Status
	item.Results = update.Results
	item.ScrollID = update.ScrollID
	item.Message = update.Message
	if err := e.storage.WorkItems().Save(ctx, item); err != nil {
		return err
	}
	if err := e.markCompleted(ctx, job.JobID, step.ServiceID, false); err != nil {
		return err
	}
	e.metrics.RecordCompletion(step.ServiceID, string(update.Status))

	if step.IsProducer {
		if err := e.continueProducer(ctx, job, step, item, update, produced); err != nil {
			return err
		}
	}

	if nextStep != nil && !nextStep.HasAggregatedOutput && len(update.Results) > 0 {
		if err := e.fanOut(ctx, job, nextStep, update.Results); err != nil {
			return err
		}
	}

	if isFinal {
		if err := e.attachLinks(ctx, job, step, item, linkItems); err != nil {
			return err
		}
	}

	return e.advanceJob(ctx, job)
}

// markCompleted adjusts the user-work counters for a completed item. A
// missing row means the aggregate was already reaped; that is not an error.
func (e *Engine) markCompleted(ctx context.Context, jobID, serviceID string, requeue bool) error {
	err := e.storage.UserWork().MarkCompleted(ctx, jobID, serviceID, requeue)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return err
	}
	return nil
}

// attachLinks decomposes a final-step item's catalog entries into the job's
// result link list, in deterministic order.
func (e *Engine) attachLinks(ctx context.Context, job *models.Job, step *models.WorkflowStep, item *models.WorkItem, catItems []models.CatalogItem) error {
	for _, ci := range catItems {
		link := &models.JobLink{
			JobID:      job.JobID,
			Href:       ci.Href,
			Title:      ci.Title,
			Type:       ci.Type,
			BBox:       ci.BBox,
			Temporal:   ci.Temporal,
			StepIndex:  step.StepIndex,
			WorkItemID: item.ID,
		}
		if err := e.storage.Links().Add(ctx, link); err != nil {
			return err
		}
	}
	return nil
}

// CancelJob cancels a job on user request: the job turns terminal and every
// non-terminal item is canceled in the same critical section, so in-flight
// workers see a conflict when they later post results.
func (e *Engine) CancelJob(ctx context.Context, jobID, message string) error {
	return e.storage.WithJobLock(jobID, func() error {
		job, err := e.storage.Jobs().Get(ctx, jobID)
		if err != nil {
			return err
		}
		if job.IsTerminal() {
			return fmt.Errorf("job %s is %s: %w", job.JobID, job.Status, models.ErrConflict)
		}

		job.Status = models.JobStatusCanceled
		job.Message = message
		if err := e.storage.Jobs().Save(ctx, job); err != nil {
			return err
		}
		return e.cascadeCancel(ctx, job.JobID)
	})
}

// cascadeCancel bulk-cancels every ready or running item of the job and
// clears the scheduler's view of it. Callers mark the job terminal first.
func (e *Engine) cascadeCancel(ctx context.Context, jobID string) error {
	canceled, err := e.storage.WorkItems().CancelNonTerminal(ctx, jobID)
	if err != nil {
		return err
	}
	if err := e.storage.UserWork().ZeroCountsByJob(ctx, jobID); err != nil {
		return err
	}

	e.logger.Info().
		Str("job_id", jobID).
		Int("canceled_items", canceled).
		Msg("Canceled outstanding work items")
	return nil
}
