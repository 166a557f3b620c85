package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the entire application configuration.
type Config struct {
	Storage    StorageConfig    `mapstructure:"storage"`
	Download   DownloadConfig   `mapstructure:"download"`
	Feed       FeedConfig       `mapstructure:"feed"`
	Validation ValidationConfig `mapstructure:"validation"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Database   DatabaseConfig   `mapstructure:"database"`
}

// StorageConfig contains the storage root and quota settings.
type StorageConfig struct {
	RootDir          string `mapstructure:"root_dir"`
	MaxSizeGB        int    `mapstructure:"max_size_gb"`
	WarnThresholdPct int    `mapstructure:"warn_threshold_pct"`
}

// DownloadConfig contains backend selection and retry settings.
type DownloadConfig struct {
	Backend           string `mapstructure:"backend"`
	AcceleratorPath   string `mapstructure:"accelerator_path"`
	ParallelDownloads int    `mapstructure:"parallel_downloads"`
	RequestDelay      string `mapstructure:"request_delay"`
	RequestTimeout    string `mapstructure:"request_timeout"`
	MaxRetries        int    `mapstructure:"max_retries"`
	ValidationRetries int    `mapstructure:"validation_retries"`
	RetryBaseDelay    string `mapstructure:"retry_base_delay"`
	UserAgent         string `mapstructure:"user_agent"`
}

// FeedConfig locates the source feed output consumed by the pipeline.
type FeedConfig struct {
	Dir string `mapstructure:"dir"`
}

// ValidationConfig contains integrity check settings.
type ValidationConfig struct {
	Enabled       bool  `mapstructure:"enabled"`
	MinVideoBytes int64 `mapstructure:"min_video_bytes"`
	MinCoverBytes int64 `mapstructure:"min_cover_bytes"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig contains database settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// Backend variants.
const (
	BackendDirect      = "direct"
	BackendAccelerator = "accelerator"
	BackendHybrid      = "hybrid"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// Load loads configuration from the specified file path.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.SetDefault("storage.max_size_gb", 100)
	v.SetDefault("storage.warn_threshold_pct", 90)
	v.SetDefault("download.backend", BackendDirect)
	v.SetDefault("download.parallel_downloads", 3)
	v.SetDefault("download.request_delay", "1s")
	v.SetDefault("download.request_timeout", "2m")
	v.SetDefault("download.max_retries", 3)
	v.SetDefault("download.validation_retries", 1)
	v.SetDefault("download.retry_base_delay", "2s")
	v.SetDefault("download.user_agent", defaultUserAgent)
	v.SetDefault("feed.dir", "feed")
	v.SetDefault("validation.enabled", true)
	v.SetDefault("validation.min_video_bytes", 1024*1024)
	v.SetDefault("validation.min_cover_bytes", 1024)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("database.path", "")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Storage.RootDir == "" {
		return fmt.Errorf("storage.root_dir is required")
	}
	if c.Storage.MaxSizeGB <= 0 {
		return fmt.Errorf("storage.max_size_gb must be positive")
	}
	if c.Storage.WarnThresholdPct <= 0 || c.Storage.WarnThresholdPct > 100 {
		return fmt.Errorf("storage.warn_threshold_pct must be between 1 and 100")
	}

	switch c.Download.Backend {
	case BackendDirect, BackendAccelerator, BackendHybrid:
	default:
		return fmt.Errorf("invalid download.backend: %s", c.Download.Backend)
	}
	if c.Download.Backend != BackendDirect && c.Download.AcceleratorPath == "" {
		return fmt.Errorf("download.accelerator_path is required for backend %q", c.Download.Backend)
	}
	if c.Download.ParallelDownloads < 1 || c.Download.ParallelDownloads > 10 {
		return fmt.Errorf("download.parallel_downloads must be between 1 and 10")
	}
	if c.Download.MaxRetries < 0 {
		return fmt.Errorf("download.max_retries must not be negative")
	}
	if c.Download.ValidationRetries < 0 {
		return fmt.Errorf("download.validation_retries must not be negative")
	}
	if _, err := time.ParseDuration(c.Download.RequestDelay); err != nil {
		return fmt.Errorf("invalid download.request_delay: %w", err)
	}
	if _, err := time.ParseDuration(c.Download.RequestTimeout); err != nil {
		return fmt.Errorf("invalid download.request_timeout: %w", err)
	}
	if _, err := time.ParseDuration(c.Download.RetryBaseDelay); err != nil {
		return fmt.Errorf("invalid download.retry_base_delay: %w", err)
	}

	if c.Validation.MinVideoBytes < 0 || c.Validation.MinCoverBytes < 0 {
		return fmt.Errorf("validation minimum sizes must not be negative")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid logging.format: %s", c.Logging.Format)
	}

	return nil
}

// MaxSizeBytes returns the quota ceiling in bytes.
func (c *StorageConfig) MaxSizeBytes() int64 {
	return int64(c.MaxSizeGB) * 1024 * 1024 * 1024
}

// GetRequestDelay returns the inter-request delay as time.Duration.
func (c *DownloadConfig) GetRequestDelay() time.Duration {
	d, _ := time.ParseDuration(c.RequestDelay)
	return d
}

// GetRequestTimeout returns the per-request timeout as time.Duration.
func (c *DownloadConfig) GetRequestTimeout() time.Duration {
	d, _ := time.ParseDuration(c.RequestTimeout)
	if d == 0 {
		return 2 * time.Minute
	}
	return d
}

// GetRetryBaseDelay returns the backoff base delay as time.Duration.
func (c *DownloadConfig) GetRetryBaseDelay() time.Duration {
	d, _ := time.ParseDuration(c.RetryBaseDelay)
	if d == 0 {
		return 2 * time.Second
	}
	return d
}

// DatabasePath returns the configured database path, defaulting to a
// file under the storage root.
func (c *Config) DatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(c.Storage.RootDir, "archiver.db")
}
