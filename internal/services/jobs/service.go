// -----------------------------------------------------------------------
// Jobs service - submission and lifecycle management of jobs
// -----------------------------------------------------------------------

package jobs

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/harmony-svc/orchestrator/internal/common"
	"github.com/harmony-svc/orchestrator/internal/engine"
	"github.com/harmony-svc/orchestrator/internal/interfaces"
	"github.com/harmony-svc/orchestrator/internal/models"
)

// StepSpec describes one stage of a submitted workflow, in pipeline order
type StepSpec struct {
	ServiceID           string `json:"serviceID" validate:"required"`
	HasAggregatedOutput bool   `json:"hasAggregatedOutput"`
	IsProducer          bool   `json:"isProducer"`
}

// SubmitRequest is a job submission payload
type SubmitRequest struct {
	Username         string     `json:"username" validate:"required"`
	NumInputGranules int        `json:"numInputGranules" validate:"gte=0"`
	GranuleLimit     int        `json:"granuleLimit" validate:"gte=0"`
	IgnoreErrors     bool       `json:"ignoreErrors"`
	IsAsync          bool       `json:"isAsync"`
	Preview          bool       `json:"preview"`
	InputCatalogURL  string     `json:"inputCatalogURL" validate:"omitempty,uri"`
	Steps            []StepSpec `json:"steps" validate:"required,min=1,dive"`
}

// JobDetail is the full job view returned to callers
type JobDetail struct {
	Job    *models.Job             `json:"job"`
	Steps  []*models.WorkflowStep  `json:"steps"`
	Links  []*models.JobLink       `json:"links"`
	Errors []*models.JobError      `json:"errors,omitempty"`
}

// Service manages job lifecycle: submission, preview, pause/resume and
// cancellation. Status transitions run under the job lock so they serialize
// with the scheduler and the step engine.
type Service struct {
	storage  interfaces.StorageManager
	engine   *engine.Engine
	config   *common.Config
	validate *validator.Validate
	logger   arbor.ILogger
}

// NewService creates a jobs Service
func NewService(storage interfaces.StorageManager, eng *engine.Engine, config *common.Config, logger arbor.ILogger) *Service {
	return &Service{
		storage:  storage,
		engine:   eng,
		config:   config,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// Submit accepts a new job: the job row, its workflow steps and the first
// step's initial work item are created together, and the job begins running
// immediately unless preview was requested.
func (s *Service) Submit(ctx context.Context, req *SubmitRequest) (*models.Job, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, models.NewValidationError("invalid job submission: %s", err.Error())
	}

	job := models.NewJob(req.Username, req.NumInputGranules, req.IsAsync)
	job.IgnoreErrors = req.IgnoreErrors

	// The per-collection granule cap is snapshotted at submission
	job.GranuleLimit = req.GranuleLimit
	if max := s.config.Work.MaxGranuleLimit; max > 0 && (job.GranuleLimit == 0 || job.GranuleLimit > max) {
		job.GranuleLimit = max
	}

	if req.Preview {
		job.Status = models.JobStatusPreviewing
	} else {
		job.Status = models.JobStatusRunning
	}

	if err := s.storage.Jobs().Save(ctx, job); err != nil {
		return nil, err
	}

	for i, spec := range req.Steps {
		step := models.NewWorkflowStep(job.JobID, i+1, spec.ServiceID, spec.HasAggregatedOutput)
		step.IsProducer = spec.IsProducer
		if i == 0 {
			step.WorkItemCount = 1
		}
		if err := s.storage.Steps().Save(ctx, step); err != nil {
			return nil, err
		}
	}

	first := req.Steps[0]
	item := models.NewWorkItem(job.JobID, 1, first.ServiceID, req.InputCatalogURL)
	if err := s.storage.WorkItems().Insert(ctx, item); err != nil {
		return nil, err
	}
	if err := s.storage.UserWork().AddReady(ctx, job, first.ServiceID, 1); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("job_id", job.JobID).
		Str("username", job.Username).
		Int("steps", len(req.Steps)).
		Int("granules", job.NumInputGranules).
		Str("status", string(job.Status)).
		Msg("Job submitted")
	return job, nil
}

// Get returns a job with its steps, result links and failure records
func (s *Service) Get(ctx context.Context, jobID string) (*JobDetail, error) {
	job, err := s.storage.Jobs().Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	steps, err := s.storage.Steps().ListByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	links, err := s.storage.Links().ListByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	jobErrors, err := s.storage.Errors().ListByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if cap := s.config.Work.MaxErrorsForJob; cap > 0 && len(jobErrors) > cap {
		jobErrors = jobErrors[:cap]
	}

	return &JobDetail{Job: job, Steps: steps, Links: links, Errors: jobErrors}, nil
}

// List returns jobs matching the filter
func (s *Service) List(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.Job, int, error) {
	jobList, err := s.storage.Jobs().List(ctx, opts)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.storage.Jobs().Count(ctx, opts)
	if err != nil {
		return nil, 0, err
	}
	return jobList, total, nil
}

// Cancel cancels a job on user request
func (s *Service) Cancel(ctx context.Context, jobID string) error {
	return s.engine.CancelJob(ctx, jobID, "Canceled by user")
}

// Pause holds a running job: the scheduler's counters are zeroed so nothing
// further is dispatched, but ready items stay ready for resume.
func (s *Service) Pause(ctx context.Context, jobID string) error {
	return s.storage.WithJobLock(jobID, func() error {
		job, err := s.storage.Jobs().Get(ctx, jobID)
		if err != nil {
			return err
		}
		if !job.Status.IsActive() {
			return fmt.Errorf("job %s is %s, not running: %w", jobID, job.Status, models.ErrConflict)
		}

		job.Status = models.JobStatusPaused
		if err := s.storage.Jobs().Save(ctx, job); err != nil {
			return err
		}
		if err := s.storage.UserWork().ZeroCountsByJob(ctx, jobID); err != nil {
			return err
		}

		s.logger.Info().Str("job_id", jobID).Msg("Job paused")
		return nil
	})
}

// Resume returns a paused or previewing job to running, rebuilding the
// scheduler counters from the actual work item table.
func (s *Service) Resume(ctx context.Context, jobID string) error {
	return s.transitionToRunning(ctx, jobID, models.JobStatusPaused, models.JobStatusPreviewing)
}

// SkipPreview moves a previewing job straight to running
func (s *Service) SkipPreview(ctx context.Context, jobID string) error {
	return s.transitionToRunning(ctx, jobID, models.JobStatusPreviewing)
}

func (s *Service) transitionToRunning(ctx context.Context, jobID string, from ...models.JobStatus) error {
	return s.storage.WithJobLock(jobID, func() error {
		job, err := s.storage.Jobs().Get(ctx, jobID)
		if err != nil {
			return err
		}

		allowed := false
		for _, st := range from {
			if job.Status == st {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("job %s is %s: %w", jobID, job.Status, models.ErrConflict)
		}

		job.Status = models.JobStatusRunning
		if job.FailedItemCount > 0 {
			job.Status = models.JobStatusRunningWithErrors
		}
		if err := s.storage.Jobs().Save(ctx, job); err != nil {
			return err
		}
		if err := s.recomputeCounters(ctx, job); err != nil {
			return err
		}

		s.logger.Info().Str("job_id", jobID).Str("status", string(job.Status)).Msg("Job resumed")
		return nil
	})
}

// recomputeCounters rebuilds every user-work row of the job from the work
// item table, the same repair the reconciler performs for drifted rows.
func (s *Service) recomputeCounters(ctx context.Context, job *models.Job) error {
	rows, err := s.storage.UserWork().ListByJob(ctx, job.JobID)
	if err != nil {
		return err
	}
	for _, row := range rows {
		ready, err := s.storage.WorkItems().CountByJobServiceStatus(ctx, job.JobID, row.ServiceID, models.WorkItemStatusReady)
		if err != nil {
			return err
		}
		running, err := s.storage.WorkItems().CountByJobServiceStatus(ctx, job.JobID, row.ServiceID, models.WorkItemStatusRunning)
		if err != nil {
			return err
		}
		if err := s.storage.UserWork().SetCounts(ctx, job.JobID, row.ServiceID, ready, running); err != nil {
			return err
		}
	}
	return nil
}
