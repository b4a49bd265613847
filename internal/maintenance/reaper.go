// -----------------------------------------------------------------------
// Work reaper - deletes step and item rows of long-terminal jobs
// -----------------------------------------------------------------------

package maintenance

import (
	"context"
	"time"
)

// ReapWork deletes work items and workflow steps belonging to jobs that
// have been terminal for longer than the reapable age, in batches. The job
// row itself, its links and its error records survive: they are the
// user-visible result.
func (r *Runner) ReapWork(ctx context.Context) error {
	m := r.config.Maintenance
	cutoff := time.Now().UTC().Add(-time.Duration(m.ReapableWorkAgeMinutes) * time.Minute)
	batchSize := m.WorkReaperBatchSize
	if batchSize <= 0 {
		batchSize = 2000
	}

	jobs, err := r.storage.Jobs().ListTerminalBefore(ctx, cutoff, 0)
	if err != nil {
		return err
	}

	reapedItems, reapedSteps := 0, 0
	for _, job := range jobs {
		for {
			n, err := r.storage.WorkItems().DeleteByJob(ctx, job.JobID, batchSize)
			if err != nil {
				return err
			}
			reapedItems += n
			if n < batchSize {
				break
			}
		}

		n, err := r.storage.Steps().DeleteByJob(ctx, job.JobID)
		if err != nil {
			return err
		}
		reapedSteps += n

		if err := r.storage.UserWork().DeleteByJob(ctx, job.JobID); err != nil {
			return err
		}
	}

	if reapedItems > 0 || reapedSteps > 0 {
		r.logger.Info().
			Int("jobs", len(jobs)).
			Int("work_items", reapedItems).
			Int("steps", reapedSteps).
			Msg("Reaped terminal job work")
	}
	return nil
}
