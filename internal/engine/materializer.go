// -----------------------------------------------------------------------
// Next-step materialization - turning step outputs into downstream items
// -----------------------------------------------------------------------

package engine

import (
	"context"
	"fmt"

	"github.com/harmony-svc/orchestrator/internal/catalog"
	"github.com/harmony-svc/orchestrator/internal/models"
)

// continueProducer applies the producer paging rules after a producer item
// completes: granules are counted against the job budget, and a follow-up
// item is created only while the worker returned a continuation and budget
// remains. An empty continuation or an exhausted budget closes the stage.
func (e *Engine) continueProducer(ctx context.Context, job *models.Job, step *models.WorkflowStep, item *models.WorkItem, update *models.WorkItemUpdate, produced int) error {
	job.GranulesProduced += produced
	if err := e.storage.Jobs().Save(ctx, job); err != nil {
		return err
	}

	if update.ScrollID == "" || job.RemainingGranuleBudget() == 0 {
		return nil
	}

	next := models.NewWorkItem(job.JobID, step.StepIndex, step.ServiceID, item.StacCatalogLocation)
	next.ScrollID = update.ScrollID
	if err := e.storage.WorkItems().Insert(ctx, next); err != nil {
		return err
	}

	step.WorkItemCount++
	if err := e.storage.Steps().Save(ctx, step); err != nil {
		return err
	}
	if err := e.storage.UserWork().AddReady(ctx, job, step.ServiceID, 1); err != nil {
		return err
	}

	e.logger.Debug().
		Str("job_id", job.JobID).
		Int("granules_produced", job.GranulesProduced).
		Int("remaining_budget", job.RemainingGranuleBudget()).
		Msg("Queued producer continuation")
	return nil
}

// fanOut creates one next-step item per output catalog of a completed item
func (e *Engine) fanOut(ctx context.Context, job *models.Job, nextStep *models.WorkflowStep, results []string) error {
	for _, url := range results {
		wi := models.NewWorkItem(job.JobID, nextStep.StepIndex, nextStep.ServiceID, url)
		if err := e.storage.WorkItems().Insert(ctx, wi); err != nil {
			return err
		}
	}

	nextStep.WorkItemCount += len(results)
	if err := e.storage.Steps().Save(ctx, nextStep); err != nil {
		return err
	}
	return e.storage.UserWork().AddReady(ctx, job, nextStep.ServiceID, len(results))
}

// advanceJob recomputes step completion front to back, materializes any
// aggregating step whose input just closed, and refreshes job progress and
// terminal status. Safe to call after every terminal item transition.
func (e *Engine) advanceJob(ctx context.Context, job *models.Job) error {
	steps, err := e.storage.Steps().ListByJob(ctx, job.JobID)
	if err != nil {
		return err
	}

	prevComplete := true
	for i, step := range steps {
		if !step.IsComplete {
			closed, err := e.stepClosed(ctx, job, step, prevComplete)
			if err != nil {
				return err
			}
			if closed {
				step.IsComplete = true
				if err := e.storage.Steps().Save(ctx, step); err != nil {
					return err
				}
			}
		}

		// An aggregating step materializes exactly once, when its whole
		// input is terminal.
		if step.IsComplete && i+1 < len(steps) && steps[i+1].HasAggregatedOutput &&
			steps[i+1].WorkItemCount == 0 && !steps[i+1].IsComplete {
			if err := e.materializeAggregate(ctx, job, step, steps[i+1]); err != nil {
				return err
			}
		}

		prevComplete = step.IsComplete
	}

	return e.refreshProgress(ctx, job, steps)
}

// stepClosed reports whether a step will never gain another item and every
// existing item is terminal. A step can only stop growing once the step
// before it is complete; the producer stage closes itself because its
// continuation items are created in the same critical section that would
// otherwise leave a non-terminal item behind.
func (e *Engine) stepClosed(ctx context.Context, job *models.Job, step *models.WorkflowStep, prevComplete bool) (bool, error) {
	if !prevComplete {
		return false, nil
	}
	// A step the completed prior stage handed no work to can never gain an
	// item; it closes empty so the job can finalize.
	if step.WorkItemCount == 0 {
		return true, nil
	}
	terminal, err := e.storage.WorkItems().CountByStepAndStatus(ctx, job.JobID, step.StepIndex,
		models.WorkItemStatusSuccessful, models.WorkItemStatusWarning,
		models.WorkItemStatusFailed, models.WorkItemStatusCanceled)
	if err != nil {
		return false, err
	}
	return terminal == step.WorkItemCount, nil
}

// materializeAggregate builds the single input of an aggregating step: one
// catalog page chain listing, in item order, every output catalog URL of the
// prior step's successful and warning items, then exactly one work item
// pointing at the head page.
func (e *Engine) materializeAggregate(ctx context.Context, job *models.Job, prior, aggStep *models.WorkflowStep) error {
	items, err := e.storage.WorkItems().ListByStep(ctx, job.JobID, prior.StepIndex)
	if err != nil {
		return err
	}

	var entries []models.CatalogItem
	for _, it := range items {
		if !it.Status.HasOutput() {
			continue
		}
		for _, url := range it.Results {
			entries = append(entries, models.CatalogItem{Href: url})
		}
	}

	// Nothing survived the prior step: the aggregating step stays empty and
	// closes as such, leaving finalization to record the failure.
	if len(entries) == 0 {
		return nil
	}

	keyPrefix := fmt.Sprintf("%s/%04d/aggregate", job.JobID, aggStep.StepIndex)
	headURL, err := catalog.WriteAggregate(ctx, e.catalogs, keyPrefix, entries, e.config.Work.AggregateStacCatalogMaxPageSize)
	if err != nil {
		return err
	}

	wi := models.NewWorkItem(job.JobID, aggStep.StepIndex, aggStep.ServiceID, headURL)
	if err := e.storage.WorkItems().Insert(ctx, wi); err != nil {
		return err
	}

	aggStep.WorkItemCount = 1
	if err := e.storage.Steps().Save(ctx, aggStep); err != nil {
		return err
	}
	if err := e.storage.UserWork().AddReady(ctx, job, aggStep.ServiceID, 1); err != nil {
		return err
	}

	e.logger.Info().
		Str("job_id", job.JobID).
		Int("step_index", aggStep.StepIndex).
		Int("input_entries", len(entries)).
		Msg("Materialized aggregating step input")
	return nil
}
