package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gigsync/gigsync/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the gigsync configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  # Validate default config
  gigsync config validate

  # Validate specific config file
  gigsync config validate --config /etc/gigsync/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	// Get config path from parent's persistent flag
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	var warnings []string

	if cfg.Remote.BaseURL == "" {
		warnings = append(warnings, "remote.base_url not set - running in cache-only mode, no sync")
	}
	if !cfg.API.Enabled {
		warnings = append(warnings, "Control API disabled - CLI commands will not reach the daemon")
	}

	fmt.Printf("Configuration file: %s\n", displayPath)
	fmt.Println("Validation: OK")

	if len(warnings) > 0 {
		fmt.Println("\nWarnings:")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
	}

	fmt.Printf("\nConfiguration summary:\n")
	fmt.Printf("  Catalog type:    %s\n", cfg.Catalog.Type)
	fmt.Printf("  Store type:      %s\n", cfg.Store.Type)
	fmt.Printf("  Cache budget:    %s\n", cfg.Cache.MaxBytes)
	fmt.Printf("  API port:        %d\n", cfg.API.Port)
	fmt.Printf("  Log level:       %s\n", cfg.Logging.Level)

	return nil
}
