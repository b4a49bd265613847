package badger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/harmony-svc/orchestrator/internal/interfaces"
	"github.com/harmony-svc/orchestrator/internal/models"
)

// LinkStorage implements the LinkStorage interface for Badger
type LinkStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewLinkStorage creates a new LinkStorage instance
func NewLinkStorage(db *BadgerDB, logger arbor.ILogger) interfaces.LinkStorage {
	return &LinkStorage{
		db:     db,
		logger: logger,
	}
}

func (s *LinkStorage) Add(ctx context.Context, link *models.JobLink) error {
	if link.JobID == "" {
		return fmt.Errorf("job link jobID is required")
	}
	link.CreatedAt = time.Now().UTC()

	if err := s.db.Store().Insert(badgerhold.NextSequence(), link); err != nil {
		return fmt.Errorf("failed to add job link: %w", err)
	}
	// Sequences start at zero; keep link IDs one-based like every other row
	if link.ID == 0 {
		if err := s.db.Store().Delete(uint64(0), &models.JobLink{}); err != nil {
			return fmt.Errorf("failed to re-key job link: %w", err)
		}
		if err := s.db.Store().Insert(badgerhold.NextSequence(), link); err != nil {
			return fmt.Errorf("failed to add job link: %w", err)
		}
	}
	return nil
}

func (s *LinkStorage) ListByJob(ctx context.Context, jobID string) ([]*models.JobLink, error) {
	var links []models.JobLink
	if err := s.db.Store().Find(&links, badgerhold.Where("JobID").Eq(jobID)); err != nil {
		return nil, fmt.Errorf("failed to list job links: %w", err)
	}

	// Deterministic result order: step index ascending, then item ID
	sort.Slice(links, func(i, j int) bool {
		if links[i].StepIndex != links[j].StepIndex {
			return links[i].StepIndex < links[j].StepIndex
		}
		if links[i].WorkItemID != links[j].WorkItemID {
			return links[i].WorkItemID < links[j].WorkItemID
		}
		return links[i].ID < links[j].ID
	})

	result := make([]*models.JobLink, len(links))
	for i := range links {
		result[i] = &links[i]
	}
	return result, nil
}

func (s *LinkStorage) CountByJob(ctx context.Context, jobID string) (int, error) {
	count, err := s.db.Store().Count(&models.JobLink{}, badgerhold.Where("JobID").Eq(jobID))
	if err != nil {
		return 0, fmt.Errorf("failed to count job links: %w", err)
	}
	return int(count), nil
}

func (s *LinkStorage) DeleteByJob(ctx context.Context, jobID string) (int, error) {
	count, err := s.CountByJob(ctx, jobID)
	if err != nil {
		return 0, err
	}
	if err := s.db.Store().DeleteMatching(&models.JobLink{}, badgerhold.Where("JobID").Eq(jobID)); err != nil {
		return 0, fmt.Errorf("failed to delete job links: %w", err)
	}
	return count, nil
}

// ErrorStorage implements the ErrorStorage interface for Badger
type ErrorStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewErrorStorage creates a new ErrorStorage instance
func NewErrorStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ErrorStorage {
	return &ErrorStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ErrorStorage) Add(ctx context.Context, jobError *models.JobError) error {
	if jobError.JobID == "" {
		return fmt.Errorf("job error jobID is required")
	}
	jobError.CreatedAt = time.Now().UTC()

	if err := s.db.Store().Insert(badgerhold.NextSequence(), jobError); err != nil {
		return fmt.Errorf("failed to add job error: %w", err)
	}
	// Sequences start at zero; keep error IDs one-based like every other row
	if jobError.ID == 0 {
		if err := s.db.Store().Delete(uint64(0), &models.JobError{}); err != nil {
			return fmt.Errorf("failed to re-key job error: %w", err)
		}
		if err := s.db.Store().Insert(badgerhold.NextSequence(), jobError); err != nil {
			return fmt.Errorf("failed to add job error: %w", err)
		}
	}
	return nil
}

func (s *ErrorStorage) ListByJob(ctx context.Context, jobID string) ([]*models.JobError, error) {
	var errs []models.JobError
	if err := s.db.Store().Find(&errs, badgerhold.Where("JobID").Eq(jobID).SortBy("ID")); err != nil {
		return nil, fmt.Errorf("failed to list job errors: %w", err)
	}
	result := make([]*models.JobError, len(errs))
	for i := range errs {
		result[i] = &errs[i]
	}
	return result, nil
}

func (s *ErrorStorage) DeleteByJob(ctx context.Context, jobID string) (int, error) {
	count, err := s.db.Store().Count(&models.JobError{}, badgerhold.Where("JobID").Eq(jobID))
	if err != nil {
		return 0, fmt.Errorf("failed to count job errors: %w", err)
	}
	if err := s.db.Store().DeleteMatching(&models.JobError{}, badgerhold.Where("JobID").Eq(jobID)); err != nil {
		return 0, fmt.Errorf("failed to delete job errors: %w", err)
	}
	return int(count), nil
}
