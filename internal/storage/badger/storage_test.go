package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/harmony-svc/orchestrator/internal/common"
	"github.com/harmony-svc/orchestrator/internal/interfaces"
	"github.com/harmony-svc/orchestrator/internal/models"
)

// setupTestManager opens a storage manager over a throwaway database
func setupTestManager(t *testing.T) interfaces.StorageManager {
	t.Helper()

	config := &common.BadgerConfig{Path: t.TempDir() + "/db"}
	manager, err := NewManager(arbor.NewLogger(), config)
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })
	return manager
}

func TestJobStorageSaveAndGet(t *testing.T) {
	m := setupTestManager(t)
	ctx := context.Background()

	job := models.NewJob("alice", 5, false)
	require.NoError(t, m.Jobs().Save(ctx, job))

	got, err := m.Jobs().Get(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, models.JobStatusAccepted, got.Status)
	assert.False(t, got.UpdatedAt.IsZero())

	_, err = m.Jobs().Get(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestJobStorageListFilters(t *testing.T) {
	m := setupTestManager(t)
	ctx := context.Background()

	a := models.NewJob("alice", 1, false)
	a.Status = models.JobStatusRunning
	require.NoError(t, m.Jobs().Save(ctx, a))

	b := models.NewJob("bob", 1, false)
	b.Status = models.JobStatusFailed
	b.Message = "boom"
	require.NoError(t, m.Jobs().Save(ctx, b))

	jobs, err := m.Jobs().List(ctx, &interfaces.JobListOptions{Username: "alice"})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, a.JobID, jobs[0].JobID)

	count, err := m.Jobs().Count(ctx, &interfaces.JobListOptions{Status: string(models.JobStatusFailed)})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestJobStorageListTerminalBefore(t *testing.T) {
	m := setupTestManager(t)
	ctx := context.Background()

	old := models.NewJob("alice", 1, false)
	old.Status = models.JobStatusSuccessful
	require.NoError(t, m.Jobs().Save(ctx, old))

	active := models.NewJob("alice", 1, false)
	active.Status = models.JobStatusRunning
	require.NoError(t, m.Jobs().Save(ctx, active))

	time.Sleep(5 * time.Millisecond)
	cutoff := time.Now().UTC()

	fresh := models.NewJob("alice", 1, false)
	fresh.Status = models.JobStatusSuccessful
	require.NoError(t, m.Jobs().Save(ctx, fresh))

	jobs, err := m.Jobs().ListTerminalBefore(ctx, cutoff, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, old.JobID, jobs[0].JobID)
}

func TestWorkItemInsertAssignsSequentialIDs(t *testing.T) {
	m := setupTestManager(t)
	ctx := context.Background()

	first := models.NewWorkItem("job-1", 1, "svc", "")
	second := models.NewWorkItem("job-1", 1, "svc", "")
	require.NoError(t, m.WorkItems().Insert(ctx, first))
	require.NoError(t, m.WorkItems().Insert(ctx, second))

	assert.NotZero(t, first.ID)
	assert.Greater(t, second.ID, first.ID)

	// The very first row of a fresh store must survive a dispatch round-trip
	first.Status = models.WorkItemStatusRunning
	require.NoError(t, m.WorkItems().Save(ctx, first))
	got, err := m.WorkItems().Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkItemStatusRunning, got.Status)
}

func TestFirstRowsGetNonZeroIDs(t *testing.T) {
	m := setupTestManager(t)
	ctx := context.Background()

	link := &models.JobLink{JobID: "job-1", Href: "https://example.com/a.nc"}
	require.NoError(t, m.Links().Add(ctx, link))
	assert.NotZero(t, link.ID)

	jobError := &models.JobError{JobID: "job-1", Message: "boom"}
	require.NoError(t, m.Errors().Add(ctx, jobError))
	assert.NotZero(t, jobError.ID)
}

func TestWorkItemNextReadyReturnsOldest(t *testing.T) {
	m := setupTestManager(t)
	ctx := context.Background()

	first := models.NewWorkItem("job-1", 1, "svc", "")
	second := models.NewWorkItem("job-1", 1, "svc", "")
	require.NoError(t, m.WorkItems().Insert(ctx, first))
	require.NoError(t, m.WorkItems().Insert(ctx, second))

	item, err := m.WorkItems().NextReady(ctx, "job-1", "svc")
	require.NoError(t, err)
	assert.Equal(t, first.ID, item.ID)

	item.Status = models.WorkItemStatusRunning
	require.NoError(t, m.WorkItems().Save(ctx, item))

	item, err = m.WorkItems().NextReady(ctx, "job-1", "svc")
	require.NoError(t, err)
	assert.Equal(t, second.ID, item.ID)

	item.Status = models.WorkItemStatusRunning
	require.NoError(t, m.WorkItems().Save(ctx, item))

	_, err = m.WorkItems().NextReady(ctx, "job-1", "svc")
	assert.ErrorIs(t, err, models.ErrNoWork)
}

func TestWorkItemCancelNonTerminal(t *testing.T) {
	m := setupTestManager(t)
	ctx := context.Background()

	ready := models.NewWorkItem("job-1", 1, "svc", "")
	running := models.NewWorkItem("job-1", 1, "svc", "")
	done := models.NewWorkItem("job-1", 1, "svc", "")
	require.NoError(t, m.WorkItems().Insert(ctx, ready))
	require.NoError(t, m.WorkItems().Insert(ctx, running))
	require.NoError(t, m.WorkItems().Insert(ctx, done))

	running.Status = models.WorkItemStatusRunning
	require.NoError(t, m.WorkItems().Save(ctx, running))
	done.Status = models.WorkItemStatusSuccessful
	require.NoError(t, m.WorkItems().Save(ctx, done))

	canceled, err := m.WorkItems().CancelNonTerminal(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, 2, canceled)

	got, err := m.WorkItems().Get(ctx, done.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkItemStatusSuccessful, got.Status, "terminal items are untouched")

	got, err = m.WorkItems().Get(ctx, ready.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkItemStatusCanceled, got.Status)
}

func TestUserWorkCounterLifecycle(t *testing.T) {
	m := setupTestManager(t)
	ctx := context.Background()

	job := models.NewJob("alice", 1, false)
	require.NoError(t, m.Jobs().Save(ctx, job))

	require.NoError(t, m.UserWork().AddReady(ctx, job, "svc", 2))
	row, err := m.UserWork().Get(ctx, job.JobID, "svc")
	require.NoError(t, err)
	assert.Equal(t, 2, row.ReadyCount)
	assert.Equal(t, 0, row.RunningCount)

	require.NoError(t, m.UserWork().MarkDispatched(ctx, job.JobID, "svc"))
	row, err = m.UserWork().Get(ctx, job.JobID, "svc")
	require.NoError(t, err)
	assert.Equal(t, 1, row.ReadyCount)
	assert.Equal(t, 1, row.RunningCount)
	assert.False(t, row.LastWorked.IsZero())

	// Completion without requeue
	require.NoError(t, m.UserWork().MarkCompleted(ctx, job.JobID, "svc", false))
	row, err = m.UserWork().Get(ctx, job.JobID, "svc")
	require.NoError(t, err)
	assert.Equal(t, 1, row.ReadyCount)
	assert.Equal(t, 0, row.RunningCount)

	// Retry path requeues in the same write
	require.NoError(t, m.UserWork().MarkDispatched(ctx, job.JobID, "svc"))
	require.NoError(t, m.UserWork().MarkCompleted(ctx, job.JobID, "svc", true))
	row, err = m.UserWork().Get(ctx, job.JobID, "svc")
	require.NoError(t, err)
	assert.Equal(t, 1, row.ReadyCount)
	assert.Equal(t, 0, row.RunningCount)

	// Counters saturate at zero instead of going negative
	require.NoError(t, m.UserWork().MarkCompleted(ctx, job.JobID, "svc", false))
	row, err = m.UserWork().Get(ctx, job.JobID, "svc")
	require.NoError(t, err)
	assert.Equal(t, 0, row.RunningCount)
}

func TestUserWorkListExpired(t *testing.T) {
	m := setupTestManager(t)
	ctx := context.Background()

	job := models.NewJob("alice", 1, false)
	require.NoError(t, m.Jobs().Save(ctx, job))

	stale := models.NewUserWork(job, "svc-a")
	stale.ReadyCount = 3
	stale.LastWorked = time.Now().UTC().Add(-2 * time.Hour)
	require.NoError(t, m.UserWork().Save(ctx, stale))

	idle := models.NewUserWork(job, "svc-b")
	idle.LastWorked = time.Now().UTC().Add(-2 * time.Hour)
	require.NoError(t, m.UserWork().Save(ctx, idle))

	fresh := models.NewUserWork(job, "svc-c")
	fresh.ReadyCount = 1
	require.NoError(t, m.UserWork().Save(ctx, fresh))

	rows, err := m.UserWork().ListExpired(ctx, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 1, "only stale rows with non-zero counts are expired")
	assert.Equal(t, "svc-a", rows[0].ServiceID)
}

func TestLockStorageAcquireAndSteal(t *testing.T) {
	m := setupTestManager(t)
	ctx := context.Background()

	acquired, err := m.Locks().Acquire(ctx, "work-reaper", time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)

	// Held lock cannot be re-acquired
	acquired, err = m.Locks().Acquire(ctx, "work-reaper", time.Minute)
	require.NoError(t, err)
	assert.False(t, acquired)

	require.NoError(t, m.Locks().Release(ctx, "work-reaper"))
	acquired, err = m.Locks().Acquire(ctx, "work-reaper", time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)

	// An expired lock is stolen by the next acquirer
	require.NoError(t, m.Locks().Release(ctx, "work-reaper"))
	acquired, err = m.Locks().Acquire(ctx, "work-reaper", -time.Second)
	require.NoError(t, err)
	require.True(t, acquired)

	acquired, err = m.Locks().Acquire(ctx, "work-reaper", time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestLinkStorageOrdering(t *testing.T) {
	m := setupTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Links().Add(ctx, &models.JobLink{JobID: "job-1", Href: "https://example.com/b", StepIndex: 3, WorkItemID: 7}))
	require.NoError(t, m.Links().Add(ctx, &models.JobLink{JobID: "job-1", Href: "https://example.com/a", StepIndex: 3, WorkItemID: 2}))
	require.NoError(t, m.Links().Add(ctx, &models.JobLink{JobID: "job-1", Href: "https://example.com/c", StepIndex: 2, WorkItemID: 9}))
	require.NoError(t, m.Links().Add(ctx, &models.JobLink{JobID: "job-2", Href: "https://example.com/x", StepIndex: 1, WorkItemID: 1}))

	links, err := m.Links().ListByJob(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, links, 3)
	assert.Equal(t, "https://example.com/c", links[0].Href)
	assert.Equal(t, "https://example.com/a", links[1].Href)
	assert.Equal(t, "https://example.com/b", links[2].Href)

	count, err := m.Links().CountByJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	deleted, err := m.Links().DeleteByJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)
}

func TestStepStorageListOrder(t *testing.T) {
	m := setupTestManager(t)
	ctx := context.Background()

	for _, idx := range []int{3, 1, 2} {
		step := models.NewWorkflowStep("job-1", idx, "svc", false)
		require.NoError(t, m.Steps().Save(ctx, step))
	}

	steps, err := m.Steps().ListByJob(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, steps, 3)
	for i, step := range steps {
		assert.Equal(t, i+1, step.StepIndex)
	}
}
