package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	config := NewDefaultConfig()

	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, "localhost", config.Server.Host)
	assert.Equal(t, 10, config.Work.DefaultBatchSize)
	assert.Equal(t, 3, config.Work.MaxRetries)
	assert.Equal(t, 2000, config.Work.CmrMaxPageSize)
	assert.NotEmpty(t, config.Maintenance.WorkReaperCron)
	assert.False(t, config.Kubernetes.Enabled)

	require.NoError(t, config.Validate())
}

func TestLoadFromFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orchestrator.toml")
	content := `
environment = "production"

[server]
port = 9090

[work]
max_retries = 5

[maintenance]
work_reaper_cron = "0 3 * * *"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	config, err := LoadFromFiles(path)
	require.NoError(t, err)

	assert.Equal(t, "production", config.Environment)
	assert.Equal(t, 9090, config.Server.Port)
	assert.Equal(t, 5, config.Work.MaxRetries)
	assert.Equal(t, "0 3 * * *", config.Maintenance.WorkReaperCron)

	// Untouched sections keep their defaults
	assert.Equal(t, 10, config.Work.DefaultBatchSize)
	assert.Equal(t, "localhost", config.Server.Host)
}

func TestLoadFromFilesMissingFile(t *testing.T) {
	_, err := LoadFromFiles("/nonexistent/orchestrator.toml")
	assert.Error(t, err)
}

func TestLoadFromFilesEnvOverrides(t *testing.T) {
	t.Setenv("HARMONY_PORT", "7070")
	t.Setenv("HARMONY_LOG_LEVEL", "debug")

	config, err := LoadFromFiles()
	require.NoError(t, err)
	assert.Equal(t, 7070, config.Server.Port)
	assert.Equal(t, "debug", config.Logging.Level)
}

func TestValidateRejectsBadValues(t *testing.T) {
	config := NewDefaultConfig()
	config.Server.Port = -1
	assert.Error(t, config.Validate())

	config = NewDefaultConfig()
	config.Work.DefaultBatchSize = 0
	assert.Error(t, config.Validate())

	config = NewDefaultConfig()
	config.Maintenance.BadgerGCCron = "not a cron"
	assert.Error(t, config.Validate())

	// An empty cron expression disables the loop, it is not an error
	config = NewDefaultConfig()
	config.Maintenance.BadgerGCCron = ""
	assert.NoError(t, config.Validate())
}

func TestApplyFlagOverrides(t *testing.T) {
	config := NewDefaultConfig()
	ApplyFlagOverrides(config, 9999, "0.0.0.0")
	assert.Equal(t, 9999, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)

	// Zero values leave the config untouched
	ApplyFlagOverrides(config, 0, "")
	assert.Equal(t, 9999, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
}
