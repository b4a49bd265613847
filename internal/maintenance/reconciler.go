// -----------------------------------------------------------------------
// User-work reconciler - repairs drifted scheduler counters
// -----------------------------------------------------------------------

package maintenance

import (
	"context"
	"errors"
	"time"

	"github.com/harmony-svc/orchestrator/internal/models"
)

// ReconcileUserWork repairs user-work rows that have not been worked for
// longer than the expiration window but still claim ready or running items.
// Rows of terminal or deleted jobs are removed, paused jobs are zeroed, and
// everything else is recounted from the work item table. This is the
// system's fixpoint for counter drift.
func (r *Runner) ReconcileUserWork(ctx context.Context) error {
	expiration := time.Duration(r.config.Maintenance.UserWorkExpirationMinutes) * time.Minute
	cutoff := time.Now().UTC().Add(-expiration)

	rows, err := r.storage.UserWork().ListExpired(ctx, cutoff)
	if err != nil {
		return err
	}

	repaired := 0
	for _, row := range rows {
		row := row
		err := r.storage.WithJobLock(row.JobID, func() error {
			job, err := r.storage.Jobs().Get(ctx, row.JobID)
			if err != nil {
				if errors.Is(err, models.ErrNotFound) {
					return r.storage.UserWork().Delete(ctx, row.JobID, row.ServiceID)
				}
				return err
			}

			switch {
			case job.IsTerminal():
				return r.storage.UserWork().Delete(ctx, row.JobID, row.ServiceID)
			case job.Status == models.JobStatusPaused:
				return r.storage.UserWork().SetCounts(ctx, row.JobID, row.ServiceID, 0, 0)
			default:
				ready, err := r.storage.WorkItems().CountByJobServiceStatus(ctx, row.JobID, row.ServiceID, models.WorkItemStatusReady)
				if err != nil {
					return err
				}
				running, err := r.storage.WorkItems().CountByJobServiceStatus(ctx, row.JobID, row.ServiceID, models.WorkItemStatusRunning)
				if err != nil {
					return err
				}
				if ready == row.ReadyCount && running == row.RunningCount {
					return nil
				}

				r.logger.Warn().
					Str("job_id", row.JobID).
					Str("service_id", row.ServiceID).
					Int("stored_ready", row.ReadyCount).
					Int("actual_ready", ready).
					Int("stored_running", row.RunningCount).
					Int("actual_running", running).
					Msg("Repaired drifted user-work counters")
				return r.storage.UserWork().SetCounts(ctx, row.JobID, row.ServiceID, ready, running)
			}
		})
		if err != nil {
			return err
		}
		repaired++
	}

	if repaired > 0 {
		r.logger.Info().Int("rows", repaired).Msg("Reconciled expired user-work rows")
	}
	return nil
}
