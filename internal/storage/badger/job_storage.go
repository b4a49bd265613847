package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/harmony-svc/orchestrator/internal/interfaces"
	"github.com/harmony-svc/orchestrator/internal/models"
)

// JobStorage implements the JobStorage interface for Badger
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

func (s *JobStorage) Save(ctx context.Context, job *models.Job) error {
	if job.JobID == "" {
		return fmt.Errorf("job ID is required")
	}
	job.UpdatedAt = time.Now().UTC()

	if err := s.db.Store().Upsert(job.JobID, job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

func (s *JobStorage) Get(ctx context.Context, jobID string) (*models.Job, error) {
	var job models.Job
	if err := s.db.Store().Get(jobID, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("job %s: %w", jobID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

func (s *JobStorage) List(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.Job, error) {
	query := s.buildQuery(opts)

	if opts != nil {
		if opts.Limit > 0 {
			query = query.Limit(opts.Limit)
		}
		if opts.Offset > 0 {
			query = query.Skip(opts.Offset)
		}
	}
	query = query.SortBy("CreatedAt").Reverse()

	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	result := make([]*models.Job, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

func (s *JobStorage) Count(ctx context.Context, opts *interfaces.JobListOptions) (int, error) {
	count, err := s.db.Store().Count(&models.Job{}, s.buildQuery(opts))
	if err != nil {
		return 0, fmt.Errorf("failed to count jobs: %w", err)
	}
	return int(count), nil
}

func (s *JobStorage) buildQuery(opts *interfaces.JobListOptions) *badgerhold.Query {
	query := badgerhold.Where("JobID").Ne("")
	if opts != nil {
		if opts.Username != "" {
			query = query.And("Username").Eq(opts.Username)
		}
		if opts.Status != "" {
			query = query.And("Status").Eq(models.JobStatus(opts.Status))
		}
	}
	return query
}

func (s *JobStorage) Delete(ctx context.Context, jobID string) error {
	if err := s.db.Store().Delete(jobID, &models.Job{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}

func (s *JobStorage) ListTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.Job, error) {
	query := badgerhold.Where("Status").In(
		models.JobStatusSuccessful,
		models.JobStatusFailed,
		models.JobStatusCanceled,
		models.JobStatusCompleteWithErrors,
	).And("UpdatedAt").Lt(cutoff).SortBy("UpdatedAt")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to list terminal jobs: %w", err)
	}

	result := make([]*models.Job, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}
