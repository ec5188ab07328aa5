package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gigsync/gigsync/internal/logger"
	"github.com/gigsync/gigsync/pkg/apiclient"
	"github.com/gigsync/gigsync/pkg/config"
)

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// GetDefaultStateDir returns the default state directory path.
func GetDefaultStateDir() string {
	stateDir := os.Getenv("XDG_STATE_HOME")
	if stateDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), "gigsync")
		}
		stateDir = filepath.Join(homeDir, ".local", "state")
	}
	return filepath.Join(stateDir, "gigsync")
}

// GetDefaultPidFile returns the default PID file path.
func GetDefaultPidFile() string {
	return filepath.Join(GetDefaultStateDir(), "gigsync.pid")
}

// apiClient builds a control API client from the --api-url flag, falling
// back to the API address in the configuration.
func apiClient() (*apiclient.Client, error) {
	if apiURL != "" {
		return apiclient.New(apiURL), nil
	}

	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return apiclient.New(fmt.Sprintf("http://%s:%d", cfg.API.Host, cfg.API.Port)), nil
}
