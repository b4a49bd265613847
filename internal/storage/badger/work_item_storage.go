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

// WorkItemStorage implements the WorkItemStorage interface for Badger
type WorkItemStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewWorkItemStorage creates a new WorkItemStorage instance
func NewWorkItemStorage(db *BadgerDB, logger arbor.ILogger) interfaces.WorkItemStorage {
	return &WorkItemStorage{
		db:     db,
		logger: logger,
	}
}

func (s *WorkItemStorage) Insert(ctx context.Context, item *models.WorkItem) error {
	if item.JobID == "" {
		return fmt.Errorf("work item jobID is required")
	}
	item.UpdatedAt = time.Now().UTC()

	// The store sequence provides the monotonic integer identity
	if err := s.db.Store().Insert(badgerhold.NextSequence(), item); err != nil {
		return fmt.Errorf("failed to insert work item: %w", err)
	}
	// Badger sequences start at zero, but zero doubles as the unstored
	// marker, so the first row of a fresh store is re-keyed off it.
	if item.ID == 0 {
		if err := s.db.Store().Delete(uint64(0), &models.WorkItem{}); err != nil {
			return fmt.Errorf("failed to re-key work item: %w", err)
		}
		if err := s.db.Store().Insert(badgerhold.NextSequence(), item); err != nil {
			return fmt.Errorf("failed to insert work item: %w", err)
		}
	}
	return nil
}

func (s *WorkItemStorage) Save(ctx context.Context, item *models.WorkItem) error {
	if item.ID == 0 {
		return fmt.Errorf("work item ID is required")
	}
	item.UpdatedAt = time.Now().UTC()

	if err := s.db.Store().Upsert(item.ID, item); err != nil {
		return fmt.Errorf("failed to save work item: %w", err)
	}
	return nil
}

func (s *WorkItemStorage) Get(ctx context.Context, id uint64) (*models.WorkItem, error) {
	var item models.WorkItem
	if err := s.db.Store().Get(id, &item); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("work item %d: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get work item: %w", err)
	}
	return &item, nil
}

func (s *WorkItemStorage) ListByStep(ctx context.Context, jobID string, stepIndex int) ([]*models.WorkItem, error) {
	var items []models.WorkItem
	query := badgerhold.Where("JobID").Eq(jobID).And("WorkflowStepIndex").Eq(stepIndex)
	if err := s.db.Store().Find(&items, query); err != nil {
		return nil, fmt.Errorf("failed to list work items: %w", err)
	}

	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })

	result := make([]*models.WorkItem, len(items))
	for i := range items {
		result[i] = &items[i]
	}
	return result, nil
}

func (s *WorkItemStorage) CountByStepAndStatus(ctx context.Context, jobID string, stepIndex int, statuses ...models.WorkItemStatus) (int, error) {
	in := make([]interface{}, len(statuses))
	for i, st := range statuses {
		in[i] = st
	}
	query := badgerhold.Where("JobID").Eq(jobID).
		And("WorkflowStepIndex").Eq(stepIndex).
		And("Status").In(in...)
	count, err := s.db.Store().Count(&models.WorkItem{}, query)
	if err != nil {
		return 0, fmt.Errorf("failed to count work items: %w", err)
	}
	return int(count), nil
}

func (s *WorkItemStorage) NextReady(ctx context.Context, jobID, serviceID string) (*models.WorkItem, error) {
	var items []models.WorkItem
	query := badgerhold.Where("JobID").Eq(jobID).
		And("ServiceID").Eq(serviceID).
		And("Status").Eq(models.WorkItemStatusReady)
	if err := s.db.Store().Find(&items, query); err != nil {
		return nil, fmt.Errorf("failed to find ready work items: %w", err)
	}
	if len(items) == 0 {
		return nil, models.ErrNoWork
	}

	// Oldest item first keeps producer pages and retries in order
	oldest := &items[0]
	for i := range items {
		if items[i].ID < oldest.ID {
			oldest = &items[i]
		}
	}
	return oldest, nil
}

func (s *WorkItemStorage) CountByJobServiceStatus(ctx context.Context, jobID, serviceID string, status models.WorkItemStatus) (int, error) {
	query := badgerhold.Where("JobID").Eq(jobID).
		And("ServiceID").Eq(serviceID).
		And("Status").Eq(status)
	count, err := s.db.Store().Count(&models.WorkItem{}, query)
	if err != nil {
		return 0, fmt.Errorf("failed to count work items: %w", err)
	}
	return int(count), nil
}

func (s *WorkItemStorage) CancelNonTerminal(ctx context.Context, jobID string) (int, error) {
	count := 0
	query := badgerhold.Where("JobID").Eq(jobID).
		And("Status").In(models.WorkItemStatusReady, models.WorkItemStatusRunning)
	err := s.db.Store().UpdateMatching(&models.WorkItem{}, query, func(record interface{}) error {
		item, ok := record.(*models.WorkItem)
		if !ok {
			return fmt.Errorf("unexpected record type %T", record)
		}
		item.Status = models.WorkItemStatusCanceled
		item.UpdatedAt = time.Now().UTC()
		count++
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to cancel work items: %w", err)
	}
	return count, nil
}

func (s *WorkItemStorage) DeleteByJob(ctx context.Context, jobID string, limit int) (int, error) {
	query := badgerhold.Where("JobID").Eq(jobID)
	if limit > 0 {
		query = query.Limit(limit)
	}

	var items []models.WorkItem
	if err := s.db.Store().Find(&items, query); err != nil {
		return 0, fmt.Errorf("failed to find work items for deletion: %w", err)
	}
	for i := range items {
		if err := s.db.Store().Delete(items[i].ID, &models.WorkItem{}); err != nil && err != badgerhold.ErrNotFound {
			return i, fmt.Errorf("failed to delete work item %d: %w", items[i].ID, err)
		}
	}
	return len(items), nil
}

func (s *WorkItemStorage) CountByServiceStatusSince(ctx context.Context, serviceID string, status models.WorkItemStatus, since time.Time) (int, error) {
	query := badgerhold.Where("ServiceID").Eq(serviceID).
		And("Status").Eq(status).
		And("UpdatedAt").Ge(since)
	count, err := s.db.Store().Count(&models.WorkItem{}, query)
	if err != nil {
		return 0, fmt.Errorf("failed to count work items: %w", err)
	}
	return int(count), nil
}

func (s *WorkItemStorage) ListServices(ctx context.Context) ([]string, error) {
	var items []models.WorkItem
	if err := s.db.Store().Find(&items, nil); err != nil {
		return nil, fmt.Errorf("failed to list work items: %w", err)
	}

	seen := make(map[string]bool)
	var services []string
	for i := range items {
		if !seen[items[i].ServiceID] {
			seen[items[i].ServiceID] = true
			services = append(services, items[i].ServiceID)
		}
	}
	sort.Strings(services)
	return services, nil
}
