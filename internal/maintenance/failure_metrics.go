// -----------------------------------------------------------------------
// Failure-rate publisher - per-service failure percentages
// -----------------------------------------------------------------------

package maintenance

import (
	"context"
	"time"

	"github.com/harmony-svc/orchestrator/internal/models"
)

// PublishFailureRates computes, per service, the share of work items that
// failed over the lookback window and publishes it to the metrics sink.
func (r *Runner) PublishFailureRates(ctx context.Context) error {
	lookback := time.Duration(r.config.Maintenance.FailureMetricsLookBackMinutes) * time.Minute
	since := time.Now().UTC().Add(-lookback)

	services, err := r.storage.WorkItems().ListServices(ctx)
	if err != nil {
		return err
	}

	for _, serviceID := range services {
		failed, err := r.storage.WorkItems().CountByServiceStatusSince(ctx, serviceID, models.WorkItemStatusFailed, since)
		if err != nil {
			return err
		}
		successful, err := r.storage.WorkItems().CountByServiceStatusSince(ctx, serviceID, models.WorkItemStatusSuccessful, since)
		if err != nil {
			return err
		}
		warning, err := r.storage.WorkItems().CountByServiceStatusSince(ctx, serviceID, models.WorkItemStatusWarning, since)
		if err != nil {
			return err
		}

		total := failed + successful + warning
		if total == 0 {
			continue
		}
		percent := float64(failed) / float64(total) * 100

		r.metrics.PublishServiceFailureRate(serviceID, percent)
		r.logger.Debug().
			Str("service_id", serviceID).
			Int("failed", failed).
			Int("total", total).
			Msg("Published service failure rate")
	}
	return nil
}
