// -----------------------------------------------------------------------
// Progress accounting and job finalization
// -----------------------------------------------------------------------

package engine

import (
	"context"

	"github.com/harmony-svc/orchestrator/internal/models"
)

// refreshProgress recomputes job progress from terminal final-step items and
// finalizes the job once every step is complete. Retries are invisible here:
// only terminal items count, so a retry never moves progress backwards.
func (e *Engine) refreshProgress(ctx context.Context, job *models.Job, steps []*models.WorkflowStep) error {
	if len(steps) == 0 || job.IsTerminal() {
		return nil
	}

	allComplete := true
	for _, s := range steps {
		if !s.IsComplete {
			allComplete = false
			break
		}
	}
	if allComplete {
		return e.finalizeJob(ctx, job)
	}

	final := steps[len(steps)-1]
	completed, err := e.storage.WorkItems().CountByStepAndStatus(ctx, job.JobID, final.StepIndex,
		models.WorkItemStatusSuccessful, models.WorkItemStatusWarning)
	if err != nil {
		return err
	}

	// While the producer stage is open the expected item count is only an
	// upper bound, so progress is clamped below 100.
	producerOpen := !steps[0].IsComplete

	expected := 1
	if !final.HasAggregatedOutput {
		expected = final.WorkItemCount
		if job.GranulesProduced > expected {
			expected = job.GranulesProduced
		}
		if producerOpen && job.GranuleBudget() > expected {
			expected = job.GranuleBudget()
		}
	}
	if expected < 1 {
		expected = 1
	}
	if completed > expected {
		expected = completed
	}

	progress := completed * 100 / expected
	if producerOpen && progress > 95 {
		progress = 95
	}
	if progress == job.Progress {
		return nil
	}

	job.Progress = progress
	return e.storage.Jobs().Save(ctx, job)
}

// finalizeJob moves a job whose every step is complete to its terminal
// status: successful with no failures, complete_with_errors when failures
// were tolerated but output exists, failed when nothing came out.
func (e *Engine) finalizeJob(ctx context.Context, job *models.Job) error {
	if job.IsTerminal() {
		return nil
	}

	linkCount, err := e.storage.Links().CountByJob(ctx, job.JobID)
	if err != nil {
		return err
	}

	switch {
	case job.FailedItemCount == 0:
		job.Status = models.JobStatusSuccessful
		job.Progress = 100
	case linkCount > 0:
		job.Status = models.JobStatusCompleteWithErrors
		job.Progress = 100
		job.Message = e.representativeFailure(ctx, job)
	default:
		job.Status = models.JobStatusFailed
		job.Message = e.representativeFailure(ctx, job)
	}

	if err := e.storage.Jobs().Save(ctx, job); err != nil {
		return err
	}

	e.logger.Info().
		Str("job_id", job.JobID).
		Str("status", string(job.Status)).
		Int("links", linkCount).
		Int("failed_items", job.FailedItemCount).
		Msg("Job finalized")
	return nil
}

// representativeFailure picks the most specific user-facing reason for a
// job's failures: the first recorded item failure, oldest first.
func (e *Engine) representativeFailure(ctx context.Context, job *models.Job) string {
	if job.Message != "" {
		return job.Message
	}
	errs, err := e.storage.Errors().ListByJob(ctx, job.JobID)
	if err != nil || len(errs) == 0 {
		return models.InternalFailureMessage
	}
	return errs[0].Message
}
