// -----------------------------------------------------------------------
// Failure handling - retries, error tolerance and the cancellation cascade
// -----------------------------------------------------------------------

package engine

import (
	"context"

	"github.com/harmony-svc/orchestrator/internal/models"
)

// handleFailure applies the failure policy to a failed completion. A
// retryable failure within budget re-queues the item at the same step and is
// counter-neutral; anything else is a terminal failure that either fails the
// whole job or, under ignoreErrors, is tolerated up to maxErrorsForJob.
func (e *Engine) handleFailure(ctx context.Context, job *models.Job, step *models.WorkflowStep, item *models.WorkItem, update *models.WorkItemUpdate) error {
	if update.ErrorCategory.Retryable() && item.Retries < e.config.Work.MaxRetries {
		item.Status = models.WorkItemStatusReady
		item.Retries++
		item.Message = update.Message
		if err := e.storage.WorkItems().Save(ctx, item); err != nil {
			return err
		}
		if err := e.markCompleted(ctx, job.JobID, step.ServiceID, true); err != nil {
			return err
		}

		e.logger.Info().
			Str("job_id", job.JobID).
			Int("work_item_id", int(item.ID)).
			Int("retries", item.Retries).
			Str("message", update.Message).
			Msg("Re-queued failed work item for retry")
		return nil
	}

	item.Status = models.WorkItemStatusFailed
	item.Message = update.Message
	if err := e.storage.WorkItems().Save(ctx, item); err != nil {
		return err
	}
	if err := e.markCompleted(ctx, job.JobID, step.ServiceID, false); err != nil {
		return err
	}
	e.metrics.RecordCompletion(step.ServiceID, string(models.WorkItemStatusFailed))

	job.FailedItemCount++
	jobError := &models.JobError{
		JobID:      job.JobID,
		WorkItemID: item.ID,
		URL:        item.StacCatalogLocation,
		Message:    messageOr(update.Message, "unknown error"),
	}
	if err := e.storage.Errors().Add(ctx, jobError); err != nil {
		return err
	}

	if !job.IgnoreErrors || job.FailedItemCount > e.config.Work.MaxErrorsForJob {
		return e.failJob(ctx, job, messageOr(update.Message, models.InternalFailureMessage))
	}

	if job.Status == models.JobStatusRunning {
		job.Status = models.JobStatusRunningWithErrors
	}
	if err := e.storage.Jobs().Save(ctx, job); err != nil {
		return err
	}

	e.logger.Warn().
		Str("job_id", job.JobID).
		Int("work_item_id", int(item.ID)).
		Int("failed_items", job.FailedItemCount).
		Msg("Tolerated work item failure")

	// The tolerated failure may have been the last outstanding item
	return e.advanceJob(ctx, job)
}

// failValidation fails an item whose result catalog carries malformed
// metadata. The message is user-visible and the item is never retried.
func (e *Engine) failValidation(ctx context.Context, job *models.Job, step *models.WorkflowStep, item *models.WorkItem, verr error) error {
	e.logger.Warn().
		Str("job_id", job.JobID).
		Int("work_item_id", int(item.ID)).
		Str("error", verr.Error()).
		Msg("Result catalog failed validation")

	return e.handleFailure(ctx, job, step, item, &models.WorkItemUpdate{
		ID:            item.ID,
		Status:        models.WorkItemStatusFailed,
		ErrorCategory: models.ErrorCategoryValidation,
		Message:       verr.Error(),
	})
}

// failJob drives the job to failed and cancels everything still outstanding.
// The job turns terminal before the cascade so late completion posts from
// workers are fenced off as conflicts.
func (e *Engine) failJob(ctx context.Context, job *models.Job, message string) error {
	job.Status = models.JobStatusFailed
	job.Message = message
	if err := e.storage.Jobs().Save(ctx, job); err != nil {
		return err
	}

	e.logger.Warn().
		Str("job_id", job.JobID).
		Int("failed_items", job.FailedItemCount).
		Str("message", message).
		Msg("Job failed")

	return e.cascadeCancel(ctx, job.JobID)
}

func messageOr(message, fallback string) string {
	if message != "" {
		return message
	}
	return fallback
}
