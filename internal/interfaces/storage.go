// -----------------------------------------------------------------------
// Storage interfaces - contracts for the persistent store adapter
// -----------------------------------------------------------------------

package interfaces

import (
	"context"
	"time"

	"github.com/harmony-svc/orchestrator/internal/models"
)

// JobListOptions filters and pages job listings
type JobListOptions struct {
	Username string
	Status   string
	Limit    int
	Offset   int
}

// JobStorage persists jobs
type JobStorage interface {
	Save(ctx context.Context, job *models.Job) error
	Get(ctx context.Context, jobID string) (*models.Job, error)
	List(ctx context.Context, opts *JobListOptions) ([]*models.Job, error)
	Count(ctx context.Context, opts *JobListOptions) (int, error)
	Delete(ctx context.Context, jobID string) error

	// ListTerminalBefore returns terminal jobs not updated since the cutoff,
	// oldest first, for the work reaper.
	ListTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.Job, error)
}

// StepStorage persists workflow steps
type StepStorage interface {
	Save(ctx context.Context, step *models.WorkflowStep) error
	Get(ctx context.Context, jobID string, stepIndex int) (*models.WorkflowStep, error)
	ListByJob(ctx context.Context, jobID string) ([]*models.WorkflowStep, error)
	DeleteByJob(ctx context.Context, jobID string) (int, error)
}

// WorkItemStorage persists work items
type WorkItemStorage interface {
	// Insert stores a new item, assigning its monotonic ID from the store sequence
	Insert(ctx context.Context, item *models.WorkItem) error
	Save(ctx context.Context, item *models.WorkItem) error
	Get(ctx context.Context, id uint64) (*models.WorkItem, error)

	ListByStep(ctx context.Context, jobID string, stepIndex int) ([]*models.WorkItem, error)
	CountByStepAndStatus(ctx context.Context, jobID string, stepIndex int, statuses ...models.WorkItemStatus) (int, error)

	// NextReady returns the oldest ready item for (jobID, serviceID), or
	// models.ErrNoWork when none exists.
	NextReady(ctx context.Context, jobID, serviceID string) (*models.WorkItem, error)
	CountByJobServiceStatus(ctx context.Context, jobID, serviceID string, status models.WorkItemStatus) (int, error)

	// CancelNonTerminal bulk-cancels every ready or running item of the job
	// and returns the number of items affected.
	CancelNonTerminal(ctx context.Context, jobID string) (int, error)

	// DeleteByJob deletes up to limit items for the job, returning the count
	DeleteByJob(ctx context.Context, jobID string, limit int) (int, error)

	// CountByServiceStatusSince counts items for a service that reached the
	// given status after the cutoff, for the failure-rate publisher.
	CountByServiceStatusSince(ctx context.Context, serviceID string, status models.WorkItemStatus, since time.Time) (int, error)

	// ListServices returns the distinct service IDs present in the table
	ListServices(ctx context.Context) ([]string, error)
}

// UserWorkStorage persists the per (job, service) queue aggregates
type UserWorkStorage interface {
	Save(ctx context.Context, row *models.UserWork) error
	Get(ctx context.Context, jobID, serviceID string) (*models.UserWork, error)
	ListByService(ctx context.Context, serviceID string) ([]*models.UserWork, error)
	ListByJob(ctx context.Context, jobID string) ([]*models.UserWork, error)

	// AddReady adjusts the ready count by delta (creating the row if needed),
	// saturating at zero.
	AddReady(ctx context.Context, job *models.Job, serviceID string, delta int) error

	// MarkDispatched moves one unit ready -> running and stamps LastWorked
	MarkDispatched(ctx context.Context, jobID, serviceID string) error

	// MarkCompleted decrements the running count; when requeue is set the
	// ready count is incremented in the same write (retry path).
	MarkCompleted(ctx context.Context, jobID, serviceID string, requeue bool) error

	SetCounts(ctx context.Context, jobID, serviceID string, ready, running int) error
	ZeroCountsByJob(ctx context.Context, jobID string) error
	DeleteByJob(ctx context.Context, jobID string) error
	Delete(ctx context.Context, jobID, serviceID string) error

	// ListExpired returns rows with a non-zero count whose LastWorked is
	// older than the cutoff, for the reconciler.
	ListExpired(ctx context.Context, cutoff time.Time) ([]*models.UserWork, error)
}

// LinkStorage persists user-visible job result links
type LinkStorage interface {
	Add(ctx context.Context, link *models.JobLink) error
	ListByJob(ctx context.Context, jobID string) ([]*models.JobLink, error)
	CountByJob(ctx context.Context, jobID string) (int, error)
	DeleteByJob(ctx context.Context, jobID string) (int, error)
}

// ErrorStorage persists per-job failure records
type ErrorStorage interface {
	Add(ctx context.Context, jobError *models.JobError) error
	ListByJob(ctx context.Context, jobID string) ([]*models.JobError, error)
	DeleteByJob(ctx context.Context, jobID string) (int, error)
}

// LockStorage provides advisory locks for the maintenance loops, keyed by
// loop name, so a loop runs on at most one replica per tick.
type LockStorage interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, name string) error
}

// StorageManager aggregates the storage interfaces over one store
type StorageManager interface {
	Jobs() JobStorage
	Steps() StepStorage
	WorkItems() WorkItemStorage
	UserWork() UserWorkStorage
	Links() LinkStorage
	Errors() ErrorStorage
	Locks() LockStorage

	// WithJobLock serializes mutations for a job; this is the critical
	// section backing the dispatch/completion invariants.
	WithJobLock(jobID string, fn func() error) error

	// WithServiceLock serializes scheduling decisions per service
	WithServiceLock(serviceID string, fn func() error) error

	// RunValueLogGC runs one round of Badger value-log garbage collection
	RunValueLogGC(discardRatio float64) error

	Close() error
}
