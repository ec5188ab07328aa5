// Package config loads and validates the GigSync configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (GIGSYNC_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/gigsync/gigsync/internal/bytesize"
	"github.com/gigsync/gigsync/pkg/catalog"
)

// Config is the GigSync daemon configuration.
//
// It covers the engine (cache budget, preload, sync, connectivity), the
// stores behind it (byte store, setlist catalog), the remote content
// service, and the ambient stack (logging, telemetry, metrics, control
// API).
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Remote configures the remote content service the engine syncs with
	Remote RemoteConfig `mapstructure:"remote" yaml:"remote"`

	// Store configures the persistent byte store backing the cache and
	// the mutation queue
	Store StoreConfig `mapstructure:"store" yaml:"store"`

	// Catalog configures the local setlist database (SQLite or PostgreSQL)
	Catalog catalog.Config `mapstructure:"catalog" yaml:"catalog"`

	// Cache configures the content cache budget and cleanup
	Cache CacheConfig `mapstructure:"cache" yaml:"cache"`

	// Preload configures the ahead-of-need fetch scheduler
	Preload PreloadConfig `mapstructure:"preload" yaml:"preload"`

	// Sync configures the mutation queue drain
	Sync SyncConfig `mapstructure:"sync" yaml:"sync"`

	// Network configures the connectivity monitor
	Network NetworkConfig `mapstructure:"network" yaml:"network"`

	// Retry is the shared backoff policy for preload and sync
	Retry RetryConfig `mapstructure:"retry" yaml:"retry"`

	// Metrics contains Prometheus metrics configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// API contains local control API server configuration
	API APIConfig `mapstructure:"api" yaml:"api"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
// When enabled, trace data is exported to an OTLP-compatible collector.
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false (opt-in for telemetry)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317" (standard OTLP gRPC port)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use insecure (non-TLS) connection
	// Default: true (for local development)
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	// Default: 1.0 (sample all)
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled
	// Default: false (opt-in for profiling)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server endpoint (URL)
	// Default: "http://localhost:4040"
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// RemoteConfig configures the remote content service.
type RemoteConfig struct {
	// BaseURL is the content service base URL, e.g.
	// "https://content.example.com/api". Required for sync and preload;
	// a daemon without it runs cache-only.
	BaseURL string `mapstructure:"base_url" validate:"omitempty,url" yaml:"base_url"`

	// Token is the bearer token presented on every request
	Token string `mapstructure:"token" yaml:"token,omitempty"`

	// Timeout bounds individual requests. Default: 30s
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// StoreType defines the supported byte store backends.
type StoreType string

const (
	// StoreTypeBadger stores bytes in a local Badger database (default).
	StoreTypeBadger StoreType = "badger"

	// StoreTypeS3 stores cache bytes in an S3-compatible bucket, for
	// self-hosted shared archives. The mutation queue stays local.
	StoreTypeS3 StoreType = "s3"
)

// BadgerConfig contains local byte store configuration.
type BadgerConfig struct {
	// Path is the Badger database directory.
	// Default: $XDG_DATA_HOME/gigsync/store
	Path string `mapstructure:"path" yaml:"path"`

	// SyncWrites forces an fsync per write. Slower, safest.
	// Default: false (the OS page cache is fine for cached content; the
	// mutation queue is re-sent on loss anyway, keyed by mutation ID)
	SyncWrites bool `mapstructure:"sync_writes" yaml:"sync_writes"`
}

// S3Config contains S3 byte store configuration.
type S3Config struct {
	// Endpoint is the S3 endpoint URL (empty for AWS)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`

	// Region is the S3 region
	Region string `mapstructure:"region" yaml:"region"`

	// Bucket is the bucket name (required when type is s3)
	Bucket string `mapstructure:"bucket" yaml:"bucket"`

	// KeyPrefix is prepended to every object key
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix,omitempty"`

	// AccessKeyID / SecretAccessKey are static credentials. When empty the
	// default AWS credential chain is used.
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key,omitempty"`

	// ForcePathStyle enables path-style addressing (MinIO and friends)
	ForcePathStyle bool `mapstructure:"force_path_style" yaml:"force_path_style,omitempty"`
}

// StoreConfig selects and configures the persistent byte store.
type StoreConfig struct {
	// Type selects the backend for cache bytes: badger or s3.
	// The mutation queue always lives in the local Badger store.
	Type StoreType `mapstructure:"type" validate:"omitempty,oneof=badger s3" yaml:"type"`

	Badger BadgerConfig `mapstructure:"badger" yaml:"badger"`
	S3     S3Config     `mapstructure:"s3" yaml:"s3,omitempty"`
}

// CacheConfig configures the content cache.
type CacheConfig struct {
	// MaxBytes is the cache budget.
	// Supports human-readable formats: "512Mi", "1GB", or plain bytes.
	// Default: 512Mi
	MaxBytes bytesize.ByteSize `mapstructure:"max_bytes" yaml:"max_bytes"`

	// CleanupAge is the staleness threshold for CleanupOldCache.
	// Default: 720h (30 days)
	CleanupAge time.Duration `mapstructure:"cleanup_age" yaml:"cleanup_age"`
}

// PreloadConfig configures the preload scheduler.
type PreloadConfig struct {
	// Workers is the fetch concurrency. Default: 4
	Workers int `mapstructure:"workers" validate:"omitempty,min=1" yaml:"workers"`

	// QueueSize bounds each priority queue. Default: 1000
	QueueSize int `mapstructure:"queue_size" validate:"omitempty,min=1" yaml:"queue_size"`

	// NearTermWindow is how close a performance must be for its setlist to
	// preload at high priority. Default: 24h
	NearTermWindow time.Duration `mapstructure:"near_term_window" validate:"omitempty,gt=0" yaml:"near_term_window"`

	// FetchTimeout bounds each remote fetch. Default: 2m
	FetchTimeout time.Duration `mapstructure:"fetch_timeout" yaml:"fetch_timeout"`
}

// SyncConfig configures the sync conductor.
type SyncConfig struct {
	// LaneConcurrency bounds how many entity lanes drain in parallel.
	// Default: 4
	LaneConcurrency int `mapstructure:"lane_concurrency" validate:"omitempty,min=1" yaml:"lane_concurrency"`

	// SendTimeout bounds each remote send. Default: 30s
	SendTimeout time.Duration `mapstructure:"send_timeout" yaml:"send_timeout"`
}

// NetworkConfig configures the connectivity monitor.
type NetworkConfig struct {
	// ProbeInterval is how often reachability is probed. Default: 30s
	ProbeInterval time.Duration `mapstructure:"probe_interval" validate:"omitempty,gt=0" yaml:"probe_interval"`

	// ProbeTimeout bounds each probe. Default: 5s
	ProbeTimeout time.Duration `mapstructure:"probe_timeout" yaml:"probe_timeout"`
}

// RetryConfig is the shared backoff policy for preload fetches and sync
// sends: base * 2^attempt, capped, with jitter, up to MaxAttempts.
type RetryConfig struct {
	// BaseDelay is the first backoff delay. Default: 500ms
	BaseDelay time.Duration `mapstructure:"base_delay" yaml:"base_delay"`

	// MaxDelay caps the backoff. Default: 30s
	MaxDelay time.Duration `mapstructure:"max_delay" yaml:"max_delay"`

	// MaxAttempts is the total attempt budget. Default: 3
	MaxAttempts uint `mapstructure:"max_attempts" yaml:"max_attempts"`

	// Jitter is the random spread factor (0.0 to 1.0). Default: 0.2
	Jitter float64 `mapstructure:"jitter" validate:"omitempty,gte=0,lte=1" yaml:"jitter"`
}

// MetricsConfig configures Prometheus metrics.
// When Enabled is false, no metrics are collected (zero overhead).
type MetricsConfig struct {
	// Enabled controls whether metrics collection is enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// APIConfig configures the local control API server.
type APIConfig struct {
	// Enabled controls whether the control API is served.
	// Default: true (the CLI talks to the daemon through it)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Host is the listen address. Default: 127.0.0.1 (local control only)
	Host string `mapstructure:"host" yaml:"host"`

	// Port is the listen port. Default: 7341
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
}

// Load loads configuration from file, environment, and defaults.
//
// Passing an empty configPath uses the default location
// ($XDG_CONFIG_HOME/gigsync/config.yaml); a missing file is not an error,
// defaults apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !configFileFound {
		return GetDefaultConfig(), nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages when the config
// file is missing.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  gigsync init\n\n"+
				"Or specify a custom config file:\n"+
				"  gigsync <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Please create the configuration file:\n"+
				"  gigsync init --config %s",
				configPath, configPath)
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path in YAML.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600: the config may carry the remote token and S3 credentials
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures environment variable and config file handling.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the GIGSYNC_ prefix and underscores.
	// Example: GIGSYNC_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("GIGSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error).
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook converts strings and integers to bytesize.ByteSize so
// config files can use human-readable sizes like "512Mi" or "1GB".
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.Parse(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings to time.Duration so config files can
// use human-readable durations like "30s", "5m", "24h".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to the
// current directory if the home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "gigsync")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "gigsync")
}

// getDataDir returns the data directory path for the byte store.
//
// Uses XDG_DATA_HOME if set, otherwise ~/.local/share.
func getDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "gigsync")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share", "gigsync")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for the
// init command).
func GetConfigDir() string {
	return getConfigDir()
}
