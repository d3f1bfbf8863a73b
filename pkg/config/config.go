package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"cleanupd/pkg/archive"
	"cleanupd/pkg/backup"
	"cleanupd/pkg/cleanup"
	"cleanupd/pkg/guardian"
	"cleanupd/pkg/logging"
	"cleanupd/pkg/tuning"
)

// Config holds all daemon configuration
type Config struct {
	Server   ServerConfig     `mapstructure:"server"`
	Database archive.Config   `mapstructure:"database"`
	Metrics  MetricsConfig    `mapstructure:"metrics_store"`
	Tuning   tuning.Config    `mapstructure:"tuning"`
	Guardian guardian.Config  `mapstructure:"guardian"`
	Cleanup  cleanup.Options  `mapstructure:"cleanup"`
	Schedule cleanup.Schedule `mapstructure:"schedule"`
	S3       backup.S3Config  `mapstructure:"s3"`
	NATS     NATSConfig       `mapstructure:"nats"`
	Alerts   AlertsConfig     `mapstructure:"alerts"`
	Logging  logging.Config   `mapstructure:"logging"`
	System   SystemConfig     `mapstructure:"system"`
	Timezone string           `mapstructure:"timezone"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	CORSOrigins  []string      `mapstructure:"cors_origins"`
}

// MetricsConfig selects where performance samples are persisted
type MetricsConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

// NATSConfig holds event bus configuration
type NATSConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// AlertsConfig limits how often the same alert is delivered
type AlertsConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Burst    int           `mapstructure:"burst"`
}

// SystemConfig points the collectors at the monitored volume
type SystemConfig struct {
	DiskPath string `mapstructure:"disk_path"`
}

// Load loads configuration from the default search paths and environment
func Load() (*Config, error) {
	return LoadFromFile("")
}

// LoadFromFile loads configuration from a specific file
func LoadFromFile(configFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/cleanupd")

	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	v.SetEnvPrefix("CLEANUPD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Location resolves the configured timezone, defaulting to local time
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Validate enforces the bounds operators are allowed to configure
func (c *Config) Validate() error {
	var errs []error

	if c.Schedule.RetentionDays < 1 {
		errs = append(errs, fmt.Errorf("schedule.retention_days must be at least 1, got %d", c.Schedule.RetentionDays))
	}
	if c.Schedule.BatchSize < 100 || c.Schedule.BatchSize > 10000 {
		errs = append(errs, fmt.Errorf("schedule.batch_size must be within 100-10000, got %d", c.Schedule.BatchSize))
	}
	if c.Tuning.MinBatchSize < 1 {
		errs = append(errs, fmt.Errorf("tuning.min_batch_size must be positive, got %d", c.Tuning.MinBatchSize))
	}
	if c.Tuning.MinBatchSize > c.Tuning.MaxBatchSize {
		errs = append(errs, fmt.Errorf("tuning.min_batch_size %d exceeds max_batch_size %d",
			c.Tuning.MinBatchSize, c.Tuning.MaxBatchSize))
	}
	if c.Guardian.Threshold < 50 || c.Guardian.Threshold > 95 {
		errs = append(errs, fmt.Errorf("guardian.threshold must be within 50-95, got %.1f", c.Guardian.Threshold))
	}
	if c.Cleanup.BackupRetentionDays < 1 {
		errs = append(errs, fmt.Errorf("cleanup.backup_retention_days must be at least 1, got %d", c.Cleanup.BackupRetentionDays))
	}
	if c.S3.Enabled && strings.TrimSpace(c.S3.Bucket) == "" {
		errs = append(errs, errors.New("s3.bucket is required when s3 is enabled"))
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		errs = append(errs, errors.New("nats.url is required when nats is enabled"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.cors_origins", []string{"*"})

	// Database defaults
	v.SetDefault("database.dsn", "postgres://localhost:5432/cleanupd?sslmode=disable")
	v.SetDefault("database.table", "events")
	v.SetDefault("database.archive_table", "events_archive")
	v.SetDefault("database.timestamp_column", "created_at")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)

	// Sample store defaults
	v.SetDefault("metrics_store.driver", "file")
	v.SetDefault("metrics_store.path", "data/performance_samples.json")

	// Batch controller defaults
	tc := tuning.DefaultConfig()
	v.SetDefault("tuning.min_batch_size", tc.MinBatchSize)
	v.SetDefault("tuning.max_batch_size", tc.MaxBatchSize)
	v.SetDefault("tuning.target_duration", tc.TargetDuration)
	v.SetDefault("tuning.memory_ceiling", tc.MemoryCeiling)

	// Disk guardian defaults
	v.SetDefault("guardian.threshold", guardian.DefaultThreshold)
	v.SetDefault("guardian.log_dir", "logs")
	v.SetDefault("guardian.log_max_age", guardian.DefaultLogMaxAge.String())
	v.SetDefault("guardian.temp_dir", "tmp")
	v.SetDefault("guardian.check_interval", guardian.DefaultCheckInterval.String())
	v.SetDefault("guardian.run_timeout", guardian.DefaultRunTimeout.String())

	// Orchestrator defaults
	opts := cleanup.DefaultOptions()
	v.SetDefault("cleanup.backup_dir", opts.BackupDir)
	v.SetDefault("cleanup.backup_compress", opts.BackupCompress)
	v.SetDefault("cleanup.backup_retention_days", opts.BackupRetentionDays)
	v.SetDefault("cleanup.min_samples_for_retune", opts.MinSamplesForRetune)
	v.SetDefault("cleanup.run_timeout", opts.RunTimeout.String())
	v.SetDefault("cleanup.cpu_alert_percent", opts.CPUAlertPercent)
	v.SetDefault("cleanup.memory_alert_percent", opts.MemoryAlertPercent)

	// Schedule defaults
	sc := cleanup.DefaultSchedule()
	v.SetDefault("schedule.daily", sc.Daily)
	v.SetDefault("schedule.optimized", sc.Optimized)
	v.SetDefault("schedule.health_check_interval", sc.HealthCheckInterval.String())
	v.SetDefault("schedule.retention_days", sc.RetentionDays)
	v.SetDefault("schedule.batch_size", sc.BatchSize)
	v.SetDefault("schedule.backup_first", sc.BackupFirst)

	// Offsite replication defaults
	v.SetDefault("s3.enabled", false)
	v.SetDefault("s3.provider", string(backup.ProviderAWS))
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.prefix", "cleanupd/backups")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.endpoint_url", "")
	v.SetDefault("s3.access_key_id", "")
	v.SetDefault("s3.secret_access_key", "")
	v.SetDefault("s3.session_token", "")
	v.SetDefault("s3.force_path_style", false)

	// Event bus defaults
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.subject_prefix", "cleanupd")

	v.SetDefault("alerts.interval", "15m")
	v.SetDefault("alerts.burst", 1)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output_path", "stdout")
	v.SetDefault("logging.error_path", "stderr")

	v.SetDefault("system.disk_path", "/")
	v.SetDefault("timezone", "Local")
}
