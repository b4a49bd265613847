package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/harmony-svc/orchestrator/internal/common"
	"github.com/harmony-svc/orchestrator/internal/interfaces"
	"github.com/harmony-svc/orchestrator/internal/metrics"
	"github.com/harmony-svc/orchestrator/internal/models"
	badgerstorage "github.com/harmony-svc/orchestrator/internal/storage/badger"
)

const testService = "harmonyservices/service-example:latest"

func setupScheduler(t *testing.T) (*Scheduler, interfaces.StorageManager, *common.Config) {
	t.Helper()

	config := common.NewDefaultConfig()
	config.Storage.Badger.Path = t.TempDir() + "/db"

	logger := arbor.NewLogger()
	manager, err := badgerstorage.NewManager(logger, &config.Storage.Badger)
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	sched := NewScheduler(manager, metrics.NewPrometheusSink("test"), config, logger)
	return sched, manager, config
}

// seedJob creates a running job with a single step and n ready items
func seedJob(t *testing.T, m interfaces.StorageManager, username string, items int, isAsync bool) *models.Job {
	t.Helper()
	ctx := context.Background()

	job := models.NewJob(username, items, isAsync)
	job.Status = models.JobStatusRunning
	require.NoError(t, m.Jobs().Save(ctx, job))

	step := models.NewWorkflowStep(job.JobID, 1, testService, false)
	step.WorkItemCount = items
	require.NoError(t, m.Steps().Save(ctx, step))

	for i := 0; i < items; i++ {
		item := models.NewWorkItem(job.JobID, 1, testService, "")
		require.NoError(t, m.WorkItems().Insert(ctx, item))
	}
	require.NoError(t, m.UserWork().AddReady(ctx, job, testService, items))
	return job
}

func TestGetWorkNoWork(t *testing.T) {
	sched, _, _ := setupScheduler(t)

	_, err := sched.GetWork(context.Background(), testService, 4)
	assert.ErrorIs(t, err, models.ErrNoWork)
}

func TestGetWorkRequiresService(t *testing.T) {
	sched, _, _ := setupScheduler(t)

	_, err := sched.GetWork(context.Background(), "", 4)
	assert.True(t, models.IsValidationError(err))
}

func TestGetWorkAlternatesBetweenUsers(t *testing.T) {
	sched, m, _ := setupScheduler(t)
	ctx := context.Background()

	jobA := seedJob(t, m, "alice", 10, true)
	jobB := seedJob(t, m, "bob", 10, true)

	assignments, err := sched.GetWork(ctx, testService, 4)
	require.NoError(t, err)
	require.Len(t, assignments, 4)

	counts := map[string]int{}
	for _, a := range assignments {
		counts[a.WorkItem.JobID]++
		assert.Equal(t, models.WorkItemStatusRunning, a.WorkItem.Status)
	}
	assert.Equal(t, 2, counts[jobA.JobID])
	assert.Equal(t, 2, counts[jobB.JobID])

	// Strict alternation: no user is served twice in a row
	assert.NotEqual(t, assignments[0].WorkItem.JobID, assignments[1].WorkItem.JobID)
	assert.NotEqual(t, assignments[1].WorkItem.JobID, assignments[2].WorkItem.JobID)
	assert.NotEqual(t, assignments[2].WorkItem.JobID, assignments[3].WorkItem.JobID)

	// Counters moved with the dispatches
	rowA, err := m.UserWork().Get(ctx, jobA.JobID, testService)
	require.NoError(t, err)
	assert.Equal(t, 8, rowA.ReadyCount)
	assert.Equal(t, 2, rowA.RunningCount)
}

func TestGetWorkPrefersSyncJobs(t *testing.T) {
	sched, m, _ := setupScheduler(t)
	ctx := context.Background()

	asyncJob := seedJob(t, m, "alice", 2, true)
	syncJob := seedJob(t, m, "alice", 2, false)

	// Make the async job look starved so only the sync rule can win
	row, err := m.UserWork().Get(ctx, asyncJob.JobID, testService)
	require.NoError(t, err)
	row.LastWorked = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, m.UserWork().Save(ctx, row))

	assignments, err := sched.GetWork(ctx, testService, 1)
	require.NoError(t, err)
	require.Len(t, assignments, 1)
	assert.Equal(t, syncJob.JobID, assignments[0].WorkItem.JobID)
}

func TestGetWorkRotatesJobsWithinUser(t *testing.T) {
	sched, m, _ := setupScheduler(t)
	ctx := context.Background()

	job1 := seedJob(t, m, "alice", 5, true)
	job2 := seedJob(t, m, "alice", 5, true)

	assignments, err := sched.GetWork(ctx, testService, 4)
	require.NoError(t, err)
	require.Len(t, assignments, 4)

	counts := map[string]int{}
	for _, a := range assignments {
		counts[a.WorkItem.JobID]++
	}
	assert.Equal(t, 2, counts[job1.JobID])
	assert.Equal(t, 2, counts[job2.JobID])
}

func TestGetWorkSkipsInactiveJobs(t *testing.T) {
	sched, m, _ := setupScheduler(t)
	ctx := context.Background()

	job := seedJob(t, m, "alice", 3, true)
	job.Status = models.JobStatusPaused
	require.NoError(t, m.Jobs().Save(ctx, job))

	_, err := sched.GetWork(ctx, testService, 4)
	assert.ErrorIs(t, err, models.ErrNoWork)
}

func TestGetWorkProducerBudget(t *testing.T) {
	sched, m, config := setupScheduler(t)
	ctx := context.Background()

	job := models.NewJob("alice", 5000, true)
	job.Status = models.JobStatusRunning
	job.GranulesProduced = 4500
	require.NoError(t, m.Jobs().Save(ctx, job))

	step := models.NewWorkflowStep(job.JobID, 1, testService, false)
	step.IsProducer = true
	step.WorkItemCount = 1
	require.NoError(t, m.Steps().Save(ctx, step))

	item := models.NewWorkItem(job.JobID, 1, testService, "")
	require.NoError(t, m.WorkItems().Insert(ctx, item))
	require.NoError(t, m.UserWork().AddReady(ctx, job, testService, 1))

	assignments, err := sched.GetWork(ctx, testService, 1)
	require.NoError(t, err)
	require.Len(t, assignments, 1)

	// 500 remaining is under the page cap, so the budget is the remainder
	assert.Equal(t, 500, assignments[0].MaxCmrGranules)
	assert.Greater(t, config.Work.CmrMaxPageSize, 500)
}

func TestGetWorkProducerBudgetCappedByPageSize(t *testing.T) {
	sched, m, config := setupScheduler(t)
	ctx := context.Background()

	job := models.NewJob("alice", 100000, true)
	job.Status = models.JobStatusRunning
	require.NoError(t, m.Jobs().Save(ctx, job))

	step := models.NewWorkflowStep(job.JobID, 1, testService, false)
	step.IsProducer = true
	step.WorkItemCount = 1
	require.NoError(t, m.Steps().Save(ctx, step))

	item := models.NewWorkItem(job.JobID, 1, testService, "")
	require.NoError(t, m.WorkItems().Insert(ctx, item))
	require.NoError(t, m.UserWork().AddReady(ctx, job, testService, 1))

	assignments, err := sched.GetWork(ctx, testService, 1)
	require.NoError(t, err)
	require.Len(t, assignments, 1)
	assert.Equal(t, config.Work.CmrMaxPageSize, assignments[0].MaxCmrGranules)
}

func TestGetWorkDefaultBatchSize(t *testing.T) {
	sched, m, config := setupScheduler(t)
	ctx := context.Background()

	seedJob(t, m, "alice", config.Work.DefaultBatchSize+5, true)

	assignments, err := sched.GetWork(ctx, testService, 0)
	require.NoError(t, err)
	assert.Len(t, assignments, config.Work.DefaultBatchSize)
}
