package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/harmony-svc/orchestrator/internal/catalog"
	"github.com/harmony-svc/orchestrator/internal/common"
	"github.com/harmony-svc/orchestrator/internal/interfaces"
	"github.com/harmony-svc/orchestrator/internal/models"
	badgerstorage "github.com/harmony-svc/orchestrator/internal/storage/badger"
)

const testService = "harmonyservices/service-example:latest"

// recordingSink captures published metrics for assertions
type recordingSink struct {
	failureRates map[string]float64
}

func (s *recordingSink) PublishServiceFailureRate(serviceID string, percent float64) {
	s.failureRates[serviceID] = percent
}
func (s *recordingSink) RecordDispatch(string)          {}
func (s *recordingSink) RecordCompletion(string, string) {}

// fakeCluster serves canned autoscaler and pod data
type fakeCluster struct {
	autoscalers []interfaces.AutoscalerStatus
	pods        map[string][]interfaces.PodMemory
	limits      map[string]string
	deleted     []string
}

func (c *fakeCluster) ListAutoscalers(ctx context.Context, namespace string) ([]interfaces.AutoscalerStatus, error) {
	return c.autoscalers, nil
}

func (c *fakeCluster) DeletePodsWithPrefix(ctx context.Context, namespace, prefix string) (int, error) {
	c.deleted = append(c.deleted, namespace+"/"+prefix)
	return 1, nil
}

func (c *fakeCluster) PodMemoryUsage(ctx context.Context, namespace, workloadName string) ([]interfaces.PodMemory, error) {
	return c.pods[workloadName], nil
}

func (c *fakeCluster) WorkloadMemoryLimit(ctx context.Context, namespace, workloadName string) (string, error) {
	return c.limits[workloadName], nil
}

func setupRunner(t *testing.T, cluster interfaces.Cluster) (*Runner, interfaces.StorageManager, *recordingSink, *common.Config) {
	t.Helper()

	config := common.NewDefaultConfig()
	config.Storage.Badger.Path = t.TempDir() + "/db"
	config.Storage.Catalog.Path = t.TempDir()
	config.Kubernetes.Enabled = cluster != nil

	logger := arbor.NewLogger()
	manager, err := badgerstorage.NewManager(logger, &config.Storage.Badger)
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })

	store, err := catalog.NewFileStore(config, logger)
	require.NoError(t, err)

	sink := &recordingSink{failureRates: map[string]float64{}}
	runner := NewRunner(manager, store, sink, cluster, config, logger)
	return runner, manager, sink, config
}

func TestReapWorkDeletesChildRowsOnly(t *testing.T) {
	runner, m, _, config := setupRunner(t, nil)
	ctx := context.Background()

	// A negative age puts the cutoff in the future, so a job that just
	// turned terminal is already reapable.
	config.Maintenance.ReapableWorkAgeMinutes = -1

	job := models.NewJob("alice", 2, true)
	job.Status = models.JobStatusSuccessful
	require.NoError(t, m.Jobs().Save(ctx, job))

	step := models.NewWorkflowStep(job.JobID, 1, testService, false)
	require.NoError(t, m.Steps().Save(ctx, step))
	for i := 0; i < 3; i++ {
		item := models.NewWorkItem(job.JobID, 1, testService, "")
		require.NoError(t, m.WorkItems().Insert(ctx, item))
	}
	require.NoError(t, m.UserWork().AddReady(ctx, job, testService, 3))
	require.NoError(t, m.Links().Add(ctx, &models.JobLink{JobID: job.JobID, Href: "https://example.com/out.nc", StepIndex: 1, WorkItemID: 1}))

	require.NoError(t, runner.ReapWork(ctx))

	items, err := m.WorkItems().ListByStep(ctx, job.JobID, 1)
	require.NoError(t, err)
	assert.Empty(t, items)

	_, err = m.Steps().Get(ctx, job.JobID, 1)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = m.UserWork().Get(ctx, job.JobID, testService)
	assert.ErrorIs(t, err, models.ErrNotFound)

	// The user-visible result survives
	got, err := m.Jobs().Get(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusSuccessful, got.Status)

	links, err := m.Links().ListByJob(ctx, job.JobID)
	require.NoError(t, err)
	assert.Len(t, links, 1)
}

func TestReconcileRepairsDriftedCounters(t *testing.T) {
	runner, m, _, _ := setupRunner(t, nil)
	ctx := context.Background()

	job := models.NewJob("alice", 3, true)
	job.Status = models.JobStatusRunning
	require.NoError(t, m.Jobs().Save(ctx, job))

	// Three ready items on disk, but the counter claims nine
	for i := 0; i < 3; i++ {
		item := models.NewWorkItem(job.JobID, 1, testService, "")
		require.NoError(t, m.WorkItems().Insert(ctx, item))
	}
	row := models.NewUserWork(job, testService)
	row.ReadyCount = 9
	row.RunningCount = 2
	row.LastWorked = time.Now().UTC().Add(-2 * time.Hour)
	require.NoError(t, m.UserWork().Save(ctx, row))

	require.NoError(t, runner.ReconcileUserWork(ctx))

	got, err := m.UserWork().Get(ctx, job.JobID, testService)
	require.NoError(t, err)
	assert.Equal(t, 3, got.ReadyCount)
	assert.Equal(t, 0, got.RunningCount)
}

func TestReconcileRemovesTerminalJobRows(t *testing.T) {
	runner, m, _, _ := setupRunner(t, nil)
	ctx := context.Background()

	job := models.NewJob("alice", 1, true)
	job.Status = models.JobStatusCanceled
	require.NoError(t, m.Jobs().Save(ctx, job))

	row := models.NewUserWork(job, testService)
	row.ReadyCount = 4
	row.LastWorked = time.Now().UTC().Add(-2 * time.Hour)
	require.NoError(t, m.UserWork().Save(ctx, row))

	// A row whose job is gone entirely
	orphan := &models.UserWork{
		ID: models.UserWorkID("gone", testService), Username: "bob",
		JobID: "gone", ServiceID: testService, ReadyCount: 1,
		LastWorked: time.Now().UTC().Add(-2 * time.Hour),
	}
	require.NoError(t, m.UserWork().Save(ctx, orphan))

	require.NoError(t, runner.ReconcileUserWork(ctx))

	_, err := m.UserWork().Get(ctx, job.JobID, testService)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = m.UserWork().Get(ctx, "gone", testService)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestPublishFailureRates(t *testing.T) {
	runner, m, sink, _ := setupRunner(t, nil)
	ctx := context.Background()

	statuses := []models.WorkItemStatus{
		models.WorkItemStatusFailed,
		models.WorkItemStatusSuccessful,
		models.WorkItemStatusSuccessful,
		models.WorkItemStatusWarning,
	}
	for _, st := range statuses {
		item := models.NewWorkItem("job-1", 1, testService, "")
		require.NoError(t, m.WorkItems().Insert(ctx, item))
		item.Status = st
		require.NoError(t, m.WorkItems().Save(ctx, item))
	}

	// A service with only ready items publishes nothing
	idle := models.NewWorkItem("job-1", 2, "harmonyservices/idle:latest", "")
	require.NoError(t, m.WorkItems().Insert(ctx, idle))

	require.NoError(t, runner.PublishFailureRates(ctx))

	require.Contains(t, sink.failureRates, testService)
	assert.InDelta(t, 25.0, sink.failureRates[testService], 0.001)
	assert.NotContains(t, sink.failureRates, "harmonyservices/idle:latest")
}

func TestWatchdogRestartsOnUnknownMetrics(t *testing.T) {
	cluster := &fakeCluster{
		autoscalers: []interfaces.AutoscalerStatus{
			{Name: "svc-a", TargetName: "svc-a", MetricsUnknown: false},
			{Name: "svc-b", TargetName: "svc-b", MetricsUnknown: true},
		},
	}
	runner, _, _, _ := setupRunner(t, cluster)

	require.NoError(t, runner.RestartWedgedPrometheus(context.Background()))
	require.Len(t, cluster.deleted, 1)
}

func TestWatchdogHealthyMetricsNoRestart(t *testing.T) {
	cluster := &fakeCluster{
		autoscalers: []interfaces.AutoscalerStatus{
			{Name: "svc-a", TargetName: "svc-a"},
		},
	}
	runner, _, _, _ := setupRunner(t, cluster)

	require.NoError(t, runner.RestartWedgedPrometheus(context.Background()))
	assert.Empty(t, cluster.deleted)
}

func TestCollectMemoryUsageWritesSummary(t *testing.T) {
	cluster := &fakeCluster{
		autoscalers: []interfaces.AutoscalerStatus{
			{Name: "svc-a", TargetName: "svc-a"},
		},
		pods: map[string][]interfaces.PodMemory{
			"svc-a": {
				{PodName: "svc-a-1", UsageBytes: 100 << 20},
				{PodName: "svc-a-2", UsageBytes: 300 << 20},
			},
		},
		limits: map[string]string{"svc-a": "512Mi"},
	}
	runner, _, _, _ := setupRunner(t, cluster)

	require.NoError(t, runner.CollectMemoryUsage(context.Background()))
}

func TestParseMemoryLimit(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "512Mi", want: 512 << 20},
		{in: "2Gi", want: 2 << 30},
		{in: "1024Ki", want: 1024 << 10},
		{in: "123456789", want: 123456789},
		{in: "", wantErr: true},
		{in: "fastMi", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseMemoryLimit(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}
}

func TestRunBadgerGC(t *testing.T) {
	runner, _, _, _ := setupRunner(t, nil)
	require.NoError(t, runner.RunBadgerGC(context.Background()))
}
