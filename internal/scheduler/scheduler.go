// -----------------------------------------------------------------------
// Scheduler - fair work queue feeding polling workers
// -----------------------------------------------------------------------

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/harmony-svc/orchestrator/internal/common"
	"github.com/harmony-svc/orchestrator/internal/interfaces"
	"github.com/harmony-svc/orchestrator/internal/models"
)

// Scheduler selects which job each polling worker serves next. Selection
// reads only the user-work aggregates, never the work item table, so a poll
// stays cheap no matter how many items a job holds.
//
// Fairness: each batch is filled in rounds. A round visits every user with
// ready work once and takes at most one item per user, so two users with
// ready work alternate in the batch regardless of how many jobs or items
// each holds. Within a user, synchronous jobs go before asynchronous ones,
// then the job least recently worked.
type Scheduler struct {
	storage interfaces.StorageManager
	metrics interfaces.MetricsSink
	config  *common.Config
	logger  arbor.ILogger
}

// NewScheduler creates a Scheduler
func NewScheduler(storage interfaces.StorageManager, metrics interfaces.MetricsSink, config *common.Config, logger arbor.ILogger) *Scheduler {
	return &Scheduler{
		storage: storage,
		metrics: metrics,
		config:  config,
		logger:  logger,
	}
}

// userQueue is one user's dispatchable jobs for the service being polled
type userQueue struct {
	username string
	rows     []*models.UserWork
}

// GetWork returns up to batchSize assignments for a polling worker of the
// given service. When no job has ready work for the service it returns
// models.ErrNoWork.
func (s *Scheduler) GetWork(ctx context.Context, serviceID string, batchSize int) ([]*models.WorkAssignment, error) {
	if serviceID == "" {
		return nil, models.NewValidationError("serviceID is required")
	}
	if batchSize <= 0 {
		batchSize = s.config.Work.DefaultBatchSize
	}

	var assignments []*models.WorkAssignment
	err := s.storage.WithServiceLock(serviceID, func() error {
		queues, err := s.candidateQueues(ctx, serviceID)
		if err != nil {
			return err
		}

		for len(assignments) < batchSize && len(queues) > 0 {
			progress := false
			for qi := 0; qi < len(queues) && len(assignments) < batchSize; qi++ {
				q := queues[qi]
				assignment, err := s.dispatchForUser(ctx, q, serviceID)
				if err != nil {
					return err
				}
				if assignment != nil {
					assignments = append(assignments, assignment)
					progress = true
				}
			}

			// Drop users with nothing left before the next round
			kept := queues[:0]
			for _, q := range queues {
				if len(q.rows) > 0 {
					kept = append(kept, q)
				}
			}
			queues = kept

			if !progress {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(assignments) == 0 {
		return nil, models.ErrNoWork
	}
	return assignments, nil
}

// candidateQueues builds the per-user job queues for one poll: user-work
// rows of the service with ready work whose job is still actively running.
func (s *Scheduler) candidateQueues(ctx context.Context, serviceID string) ([]*userQueue, error) {
	rows, err := s.storage.UserWork().ListByService(ctx, serviceID)
	if err != nil {
		return nil, err
	}

	byUser := make(map[string]*userQueue)
	for _, row := range rows {
		if row.ReadyCount <= 0 {
			continue
		}
		job, err := s.storage.Jobs().Get(ctx, row.JobID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if !job.Status.IsActive() {
			continue
		}

		q, ok := byUser[row.Username]
		if !ok {
			q = &userQueue{username: row.Username}
			byUser[row.Username] = q
		}
		q.rows = append(q.rows, row)
	}

	queues := make([]*userQueue, 0, len(byUser))
	for _, q := range byUser {
		queues = append(queues, q)
	}

	// Users with the longest-starved job go first; the per-round rotation
	// keeps this order stable for the whole batch.
	sort.Slice(queues, func(i, j int) bool {
		oi, oj := oldestLastWorked(queues[i]), oldestLastWorked(queues[j])
		if !oi.Equal(oj) {
			return oi.Before(oj)
		}
		return queues[i].username < queues[j].username
	})
	return queues, nil
}

func oldestLastWorked(q *userQueue) time.Time {
	oldest := q.rows[0].LastWorked
	for _, row := range q.rows[1:] {
		if row.LastWorked.Before(oldest) {
			oldest = row.LastWorked
		}
	}
	return oldest
}

// dispatchForUser takes one item from the user's best job, walking down the
// user's job list until a dispatch succeeds or the list is exhausted. Jobs
// that turn out to have nothing dispatchable are removed from the queue.
func (s *Scheduler) dispatchForUser(ctx context.Context, q *userQueue, serviceID string) (*models.WorkAssignment, error) {
	sort.Slice(q.rows, func(i, j int) bool {
		if q.rows[i].IsAsync != q.rows[j].IsAsync {
			return !q.rows[i].IsAsync
		}
		if !q.rows[i].LastWorked.Equal(q.rows[j].LastWorked) {
			return q.rows[i].LastWorked.Before(q.rows[j].LastWorked)
		}
		return q.rows[i].JobID < q.rows[j].JobID
	})

	for len(q.rows) > 0 {
		row := q.rows[0]
		assignment, err := s.dispatchOne(ctx, row.JobID, serviceID)
		if err != nil {
			return nil, err
		}
		if assignment == nil {
			q.rows = q.rows[1:]
			continue
		}
		// The dispatch stamped LastWorked, so this job rotates to the back
		// of the user's queue on the next round.
		row.LastWorked = time.Now().UTC()
		return assignment, nil
	}
	return nil, nil
}

// dispatchOne moves the oldest ready item of (jobID, serviceID) to running
// under the job lock. Returns nil when the job has nothing dispatchable.
func (s *Scheduler) dispatchOne(ctx context.Context, jobID, serviceID string) (*models.WorkAssignment, error) {
	var assignment *models.WorkAssignment
	err := s.storage.WithJobLock(jobID, func() error {
		// Re-check under the lock; a cancellation may have landed since the
		// candidate snapshot was taken.
		job, err := s.storage.Jobs().Get(ctx, jobID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return nil
			}
			return err
		}
		if !job.Status.IsActive() {
			return nil
		}

		item, err := s.storage.WorkItems().NextReady(ctx, jobID, serviceID)
		if err != nil {
			if errors.Is(err, models.ErrNoWork) {
				return nil
			}
			return err
		}

		item.Status = models.WorkItemStatusRunning
		if err := s.storage.WorkItems().Save(ctx, item); err != nil {
			return err
		}
		if err := s.storage.UserWork().MarkDispatched(ctx, jobID, serviceID); err != nil {
			return err
		}

		assignment = &models.WorkAssignment{WorkItem: item}

		step, err := s.storage.Steps().Get(ctx, jobID, item.WorkflowStepIndex)
		if err != nil {
			return fmt.Errorf("failed to load step for work item %d: %w", item.ID, err)
		}
		if step.IsProducer {
			assignment.MaxCmrGranules = producerPageBudget(job, s.config.Work.CmrMaxPageSize)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if assignment != nil {
		s.metrics.RecordDispatch(serviceID)
		s.logger.Debug().
			Str("job_id", jobID).
			Str("service_id", serviceID).
			Int("work_item_id", int(assignment.WorkItem.ID)).
			Msg("Dispatched work item")
	}
	return assignment, nil
}

// producerPageBudget caps one producer invocation at the smaller of the
// job's remaining granule budget and the per-page maximum.
func producerPageBudget(job *models.Job, cmrMaxPageSize int) int {
	remaining := job.RemainingGranuleBudget()
	if remaining > cmrMaxPageSize {
		return cmrMaxPageSize
	}
	return remaining
}
