// Package commands implements the CLI commands for the gigsync daemon and
// its control client.
package commands

import (
	"github.com/spf13/cobra"

	configcmd "github.com/gigsync/gigsync/cmd/gigsync/commands/config"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
	apiURL  string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "gigsync",
	Short: "GigSync - Offline content cache and sync for performers",
	Long: `GigSync keeps a musician's performance content (lyrics, chords, tabs,
sheet music) available offline. It preloads upcoming setlists into a
budgeted local cache, queues edits made offline, and syncs them back to
the content service when connectivity returns.

The daemon runs with "gigsync start"; the other commands talk to it over
its local control API.

Use "gigsync [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/gigsync/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "daemon control API URL (default: from config)")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(setlistCmd)
	rootCmd.AddCommand(performCmd)
	rootCmd.AddCommand(configcmd.Cmd)
	rootCmd.AddCommand(completionCmd)

	// Hide the default completion command (we provide our own)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}
