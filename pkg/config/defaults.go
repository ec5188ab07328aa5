package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/gigsync/gigsync/internal/bytesize"
	"github.com/gigsync/gigsync/pkg/catalog"
)

// ApplyDefaults sets default values for any unspecified configuration
// fields. Zero values (0, "", false, nil) are replaced; explicit values
// are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	applyRemoteDefaults(&cfg.Remote)
	applyStoreDefaults(&cfg.Store)
	cfg.Catalog.ApplyDefaults()
	applyCacheDefaults(&cfg.Cache)
	applyPreloadDefaults(&cfg.Preload)
	applySyncDefaults(&cfg.Sync)
	applyNetworkDefaults(&cfg.Network)
	applyRetryDefaults(&cfg.Retry)
	applyAPIDefaults(&cfg.API)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	applyProfilingDefaults(&cfg.Profiling)
}

func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

func applyRemoteDefaults(cfg *RemoteConfig) {
	// BaseURL has no default: without it the daemon runs cache-only
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
}

func applyStoreDefaults(cfg *StoreConfig) {
	if cfg.Type == "" {
		cfg.Type = StoreTypeBadger
	}
	if cfg.Badger.Path == "" {
		cfg.Badger.Path = filepath.Join(getDataDir(), "store")
	}
}

func applyCacheDefaults(cfg *CacheConfig) {
	if cfg.MaxBytes == 0 {
		cfg.MaxBytes = 512 * bytesize.MiB
	}
	if cfg.CleanupAge == 0 {
		cfg.CleanupAge = 30 * 24 * time.Hour
	}
}

func applyPreloadDefaults(cfg *PreloadConfig) {
	if cfg.Workers == 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = 1000
	}
	if cfg.NearTermWindow == 0 {
		cfg.NearTermWindow = 24 * time.Hour
	}
	if cfg.FetchTimeout == 0 {
		cfg.FetchTimeout = 2 * time.Minute
	}
}

func applySyncDefaults(cfg *SyncConfig) {
	if cfg.LaneConcurrency == 0 {
		cfg.LaneConcurrency = 4
	}
	if cfg.SendTimeout == 0 {
		cfg.SendTimeout = 30 * time.Second
	}
}

func applyNetworkDefaults(cfg *NetworkConfig) {
	if cfg.ProbeInterval == 0 {
		cfg.ProbeInterval = 30 * time.Second
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
}

func applyRetryDefaults(cfg *RetryConfig) {
	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Jitter == 0 {
		cfg.Jitter = 0.2
	}
}

func applyAPIDefaults(cfg *APIConfig) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 7341
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// Useful for generating sample configuration files, testing, and
// documentation.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Catalog: catalog.Config{
			Type: catalog.DatabaseTypeSQLite,
		},
		API: APIConfig{
			Enabled: true,
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
