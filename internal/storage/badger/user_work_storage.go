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

// UserWorkStorage implements the UserWorkStorage interface for Badger.
// Counter updates are read-modify-write; callers serialize them through the
// manager's job lock. Drift from a crash between the item write and the
// counter write is repaired by the reconciler.
type UserWorkStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewUserWorkStorage creates a new UserWorkStorage instance
func NewUserWorkStorage(db *BadgerDB, logger arbor.ILogger) interfaces.UserWorkStorage {
	return &UserWorkStorage{
		db:     db,
		logger: logger,
	}
}

func (s *UserWorkStorage) Save(ctx context.Context, row *models.UserWork) error {
	if row.ID == "" {
		row.ID = models.UserWorkID(row.JobID, row.ServiceID)
	}
	row.UpdatedAt = time.Now().UTC()

	if err := s.db.Store().Upsert(row.ID, row); err != nil {
		return fmt.Errorf("failed to save user work row: %w", err)
	}
	return nil
}

func (s *UserWorkStorage) Get(ctx context.Context, jobID, serviceID string) (*models.UserWork, error) {
	var row models.UserWork
	if err := s.db.Store().Get(models.UserWorkID(jobID, serviceID), &row); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("user work for job %s service %s: %w", jobID, serviceID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user work row: %w", err)
	}
	return &row, nil
}

func (s *UserWorkStorage) ListByService(ctx context.Context, serviceID string) ([]*models.UserWork, error) {
	var rows []models.UserWork
	if err := s.db.Store().Find(&rows, badgerhold.Where("ServiceID").Eq(serviceID)); err != nil {
		return nil, fmt.Errorf("failed to list user work rows: %w", err)
	}
	result := make([]*models.UserWork, len(rows))
	for i := range rows {
		result[i] = &rows[i]
	}
	return result, nil
}

func (s *UserWorkStorage) ListByJob(ctx context.Context, jobID string) ([]*models.UserWork, error) {
	var rows []models.UserWork
	if err := s.db.Store().Find(&rows, badgerhold.Where("JobID").Eq(jobID)); err != nil {
		return nil, fmt.Errorf("failed to list user work rows: %w", err)
	}
	result := make([]*models.UserWork, len(rows))
	for i := range rows {
		result[i] = &rows[i]
	}
	return result, nil
}

func (s *UserWorkStorage) AddReady(ctx context.Context, job *models.Job, serviceID string, delta int) error {
	row, err := s.Get(ctx, job.JobID, serviceID)
	if err != nil {
		row = models.NewUserWork(job, serviceID)
	}

	row.ReadyCount += delta
	if row.ReadyCount < 0 {
		row.ReadyCount = 0
	}
	return s.Save(ctx, row)
}

func (s *UserWorkStorage) MarkDispatched(ctx context.Context, jobID, serviceID string) error {
	row, err := s.Get(ctx, jobID, serviceID)
	if err != nil {
		return err
	}

	// Ready saturates at zero so a drifted counter cannot go negative
	if row.ReadyCount > 0 {
		row.ReadyCount--
	}
	row.RunningCount++
	row.LastWorked = time.Now().UTC()
	return s.Save(ctx, row)
}

func (s *UserWorkStorage) MarkCompleted(ctx context.Context, jobID, serviceID string, requeue bool) error {
	row, err := s.Get(ctx, jobID, serviceID)
	if err != nil {
		return err
	}

	if row.RunningCount > 0 {
		row.RunningCount--
	}
	if requeue {
		row.ReadyCount++
	}
	return s.Save(ctx, row)
}

func (s *UserWorkStorage) SetCounts(ctx context.Context, jobID, serviceID string, ready, running int) error {
	row, err := s.Get(ctx, jobID, serviceID)
	if err != nil {
		return err
	}
	row.ReadyCount = ready
	row.RunningCount = running
	return s.Save(ctx, row)
}

func (s *UserWorkStorage) ZeroCountsByJob(ctx context.Context, jobID string) error {
	err := s.db.Store().UpdateMatching(&models.UserWork{}, badgerhold.Where("JobID").Eq(jobID), func(record interface{}) error {
		row, ok := record.(*models.UserWork)
		if !ok {
			return fmt.Errorf("unexpected record type %T", record)
		}
		row.ReadyCount = 0
		row.RunningCount = 0
		row.UpdatedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to zero user work counts: %w", err)
	}
	return nil
}

func (s *UserWorkStorage) DeleteByJob(ctx context.Context, jobID string) error {
	if err := s.db.Store().DeleteMatching(&models.UserWork{}, badgerhold.Where("JobID").Eq(jobID)); err != nil {
		return fmt.Errorf("failed to delete user work rows: %w", err)
	}
	return nil
}

func (s *UserWorkStorage) Delete(ctx context.Context, jobID, serviceID string) error {
	if err := s.db.Store().Delete(models.UserWorkID(jobID, serviceID), &models.UserWork{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete user work row: %w", err)
	}
	return nil
}

func (s *UserWorkStorage) ListExpired(ctx context.Context, cutoff time.Time) ([]*models.UserWork, error) {
	var rows []models.UserWork
	if err := s.db.Store().Find(&rows, badgerhold.Where("LastWorked").Lt(cutoff)); err != nil {
		return nil, fmt.Errorf("failed to list expired user work rows: %w", err)
	}

	var result []*models.UserWork
	for i := range rows {
		if rows[i].ReadyCount > 0 || rows[i].RunningCount > 0 {
			result = append(result, &rows[i])
		}
	}
	return result, nil
}
