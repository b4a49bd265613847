// -----------------------------------------------------------------------
// Configuration - layered TOML config (defaults -> files -> env -> flags)
// -----------------------------------------------------------------------

package common

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the orchestrator configuration
type Config struct {
	Environment string            `toml:"environment"` // "development" or "production"
	Server      ServerConfig      `toml:"server"`
	Storage     StorageConfig     `toml:"storage"`
	Logging     LoggingConfig     `toml:"logging"`
	Work        WorkConfig        `toml:"work"`
	Maintenance MaintenanceConfig `toml:"maintenance"`
	Kubernetes  KubernetesConfig  `toml:"kubernetes"`
	Metrics     MetricsConfig     `toml:"metrics"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger  BadgerConfig  `toml:"badger"`
	Catalog CatalogConfig `toml:"catalog"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// CatalogConfig configures the artifact catalog object store
type CatalogConfig struct {
	Path    string `toml:"path"`     // Root directory for catalog documents
	BaseURL string `toml:"base_url"` // URL prefix workers use to fetch catalogs
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// WorkConfig holds scheduling and step-engine tunables
type WorkConfig struct {
	DefaultBatchSize                int `toml:"default_batch_size"`                    // Max items per GetWork response
	MaxRetries                      int `toml:"max_retries"`                           // Per-item retry budget
	MaxErrorsForJob                 int `toml:"max_errors_for_job"`                    // Tolerated failures when ignoreErrors is set
	CmrMaxPageSize                  int `toml:"cmr_max_page_size"`                     // Granules per producer page
	AggregateStacCatalogMaxPageSize int `toml:"aggregate_stac_catalog_max_page_size"`  // Items per aggregate catalog page
	MaxGranuleLimit                 int `toml:"max_granule_limit"`                     // Per-collection granule cap applied at submission
}

// MaintenanceConfig holds the cron expressions and thresholds for the
// background loops. Each loop runs under an advisory lock so only one
// replica executes it per tick.
type MaintenanceConfig struct {
	WorkReaperCron                      string `toml:"work_reaper_cron"`
	WorkReaperBatchSize                 int    `toml:"work_reaper_batch_size"`
	ReapableWorkAgeMinutes              int    `toml:"reapable_work_age_minutes"`
	UserWorkUpdaterCron                 string `toml:"user_work_updater_cron"`
	UserWorkExpirationMinutes           int    `toml:"user_work_expiration_minutes"`
	RestartPrometheusCron               string `toml:"restart_prometheus_cron"`
	PublishServiceFailureMetricsCron    string `toml:"publish_service_failure_metrics_cron"`
	FailureMetricsLookBackMinutes       int    `toml:"failure_metrics_look_back_minutes"`
	MemoryUsageCollectorCron            string `toml:"memory_usage_collector_cron"`
	MemoryUsageCollectorLookBackMinutes int    `toml:"memory_usage_collector_look_back_minutes"`
	MemoryUsageBucket                   string `toml:"memory_usage_bucket"`
	BadgerGCCron                        string `toml:"badger_gc_cron"`
}

// KubernetesConfig configures container-orchestrator access for the
// Prometheus watchdog and memory snapshotter loops
type KubernetesConfig struct {
	Enabled             bool    `toml:"enabled"`               // Loops are no-ops when false
	Kubeconfig          string  `toml:"kubeconfig"`            // Empty means in-cluster config
	ServicesNamespace   string  `toml:"services_namespace"`    // Namespace holding backend service pods
	MonitoringNamespace string  `toml:"monitoring_namespace"`  // Namespace holding the Prometheus pod
	PrometheusPodPrefix string  `toml:"prometheus_pod_prefix"` // Pod name prefix the watchdog may delete
	APIRequestsPerSec   float64 `toml:"api_requests_per_sec"`  // Client-side throttle for orchestrator API calls
}

// MetricsConfig configures the metrics sink
type MetricsConfig struct {
	ClientID string `toml:"client_id"` // Environment discriminator in the services namespace
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/db",
			},
			Catalog: CatalogConfig{
				Path:    "./data/catalogs",
				BaseURL: "http://localhost:8080/catalogs",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		Work: WorkConfig{
			DefaultBatchSize:                10,
			MaxRetries:                      3,
			MaxErrorsForJob:                 10,
			CmrMaxPageSize:                  2000,
			AggregateStacCatalogMaxPageSize: 10000,
			MaxGranuleLimit:                 350,
		},
		Maintenance: MaintenanceConfig{
			WorkReaperCron:                      "20 * * * *",
			WorkReaperBatchSize:                 2000,
			ReapableWorkAgeMinutes:              10080, // one week
			UserWorkUpdaterCron:                 "*/5 * * * *",
			UserWorkExpirationMinutes:           60,
			RestartPrometheusCron:               "*/10 * * * *",
			PublishServiceFailureMetricsCron:    "*/1 * * * *",
			FailureMetricsLookBackMinutes:       120,
			MemoryUsageCollectorCron:            "*/15 * * * *",
			MemoryUsageCollectorLookBackMinutes: 15,
			MemoryUsageBucket:                   "memory-metrics",
			BadgerGCCron:                        "45 * * * *",
		},
		Kubernetes: KubernetesConfig{
			Enabled:             false,
			ServicesNamespace:   "harmony",
			MonitoringNamespace: "monitoring",
			PrometheusPodPrefix: "prometheus-server",
			APIRequestsPerSec:   5,
		},
		Metrics: MetricsConfig{
			ClientID: "harmony-local",
		},
	}
}

// LoadFromFiles loads configuration from defaults, then overlays each TOML
// file in order, then applies environment overrides. Later files win.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// applyEnvOverrides applies environment variable overrides
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("HARMONY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.Server.Port = port
		}
	}
	if v := os.Getenv("HARMONY_HOST"); v != "" {
		config.Server.Host = v
	}
	if v := os.Getenv("HARMONY_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("HARMONY_DB_PATH"); v != "" {
		config.Storage.Badger.Path = v
	}
	if v := os.Getenv("HARMONY_CLIENT_ID"); v != "" {
		config.Metrics.ClientID = v
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks configuration consistency, including every cron expression
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Work.DefaultBatchSize <= 0 {
		return fmt.Errorf("default_batch_size must be positive")
	}
	if c.Work.CmrMaxPageSize <= 0 {
		return fmt.Errorf("cmr_max_page_size must be positive")
	}
	if c.Work.AggregateStacCatalogMaxPageSize <= 0 {
		return fmt.Errorf("aggregate_stac_catalog_max_page_size must be positive")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	crons := map[string]string{
		"work_reaper_cron":                     c.Maintenance.WorkReaperCron,
		"user_work_updater_cron":               c.Maintenance.UserWorkUpdaterCron,
		"restart_prometheus_cron":              c.Maintenance.RestartPrometheusCron,
		"publish_service_failure_metrics_cron": c.Maintenance.PublishServiceFailureMetricsCron,
		"memory_usage_collector_cron":          c.Maintenance.MemoryUsageCollectorCron,
		"badger_gc_cron":                       c.Maintenance.BadgerGCCron,
	}
	for name, expr := range crons {
		if expr == "" {
			continue
		}
		if _, err := parser.Parse(expr); err != nil {
			return fmt.Errorf("invalid cron expression for %s: %w", name, err)
		}
	}
	return nil
}
