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

// StepStorage implements the StepStorage interface for Badger
type StepStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewStepStorage creates a new StepStorage instance
func NewStepStorage(db *BadgerDB, logger arbor.ILogger) interfaces.StepStorage {
	return &StepStorage{
		db:     db,
		logger: logger,
	}
}

func (s *StepStorage) Save(ctx context.Context, step *models.WorkflowStep) error {
	if step.ID == "" {
		step.ID = models.StepID(step.JobID, step.StepIndex)
	}
	step.UpdatedAt = time.Now().UTC()

	if err := s.db.Store().Upsert(step.ID, step); err != nil {
		return fmt.Errorf("failed to save workflow step: %w", err)
	}
	return nil
}

func (s *StepStorage) Get(ctx context.Context, jobID string, stepIndex int) (*models.WorkflowStep, error) {
	var step models.WorkflowStep
	if err := s.db.Store().Get(models.StepID(jobID, stepIndex), &step); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("workflow step %d for job %s: %w", stepIndex, jobID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get workflow step: %w", err)
	}
	return &step, nil
}

func (s *StepStorage) ListByJob(ctx context.Context, jobID string) ([]*models.WorkflowStep, error) {
	var steps []models.WorkflowStep
	// Step IDs embed a zero-padded index, so key order is step order
	if err := s.db.Store().Find(&steps, badgerhold.Where("JobID").Eq(jobID).SortBy("StepIndex")); err != nil {
		return nil, fmt.Errorf("failed to list workflow steps: %w", err)
	}

	result := make([]*models.WorkflowStep, len(steps))
	for i := range steps {
		result[i] = &steps[i]
	}
	return result, nil
}

func (s *StepStorage) DeleteByJob(ctx context.Context, jobID string) (int, error) {
	count, err := s.db.Store().Count(&models.WorkflowStep{}, badgerhold.Where("JobID").Eq(jobID))
	if err != nil {
		return 0, fmt.Errorf("failed to count workflow steps: %w", err)
	}
	if err := s.db.Store().DeleteMatching(&models.WorkflowStep{}, badgerhold.Where("JobID").Eq(jobID)); err != nil {
		return 0, fmt.Errorf("failed to delete workflow steps: %w", err)
	}
	return int(count), nil
}
