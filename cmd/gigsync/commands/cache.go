package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gigsync/gigsync/internal/bytesize"
	"github.com/gigsync/gigsync/internal/cli/output"
	"github.com/gigsync/gigsync/internal/cli/prompt"
)

var (
	cacheInfoOutput   string
	cacheCleanupForce bool
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the local content cache",
	Long: `Inspect and maintain the daemon's local content cache.

Examples:
  # Show cache usage
  gigsync cache info

  # Remove entries unused past the configured cleanup age
  gigsync cache cleanup

  # Drop one cached payload
  gigsync cache remove song-1234`,
}

var cacheInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show cache usage",
	RunE:  runCacheInfo,
}

var cacheCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove stale cached content",
	Long: `Remove unpinned cached content that has not been used for the
configured cleanup age. Pinned content and the active performance are
never touched.`,
	RunE: runCacheCleanup,
}

var cacheRemoveCmd = &cobra.Command{
	Use:   "remove <content-id>",
	Short: "Drop one cached payload",
	Args:  cobra.ExactArgs(1),
	RunE:  runCacheRemove,
}

func init() {
	cacheInfoCmd.Flags().StringVarP(&cacheInfoOutput, "output", "o", "table", "Output format (table|json|yaml)")
	cacheCleanupCmd.Flags().BoolVarP(&cacheCleanupForce, "force", "f", false, "Skip confirmation prompt")

	cacheCmd.AddCommand(cacheInfoCmd)
	cacheCmd.AddCommand(cacheCleanupCmd)
	cacheCmd.AddCommand(cacheRemoveCmd)
}

func runCacheInfo(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(cacheInfoOutput)
	if err != nil {
		return err
	}

	client, err := apiClient()
	if err != nil {
		return err
	}

	info, err := client.CacheInfo()
	if err != nil {
		return fmt.Errorf("failed to fetch cache info: %w", err)
	}

	if format != output.FormatTable {
		return output.NewPrinter(os.Stdout, format, false).Print(info)
	}

	pairs := [][2]string{
		{"Used", bytesize.ByteSize(info.TotalSize).String()},
		{"Budget", bytesize.ByteSize(info.MaxSize).String()},
		{"Items", fmt.Sprintf("%d", info.ItemCount)},
	}
	if !info.OldestItem.IsZero() {
		pairs = append(pairs, [2]string{"Oldest access", info.OldestItem.Local().Format("2006-01-02 15:04:05")})
	}
	return output.SimpleTable(os.Stdout, pairs)
}

func runCacheCleanup(cmd *cobra.Command, args []string) error {
	ok, err := prompt.ConfirmWithForce("Remove stale cached content?", cacheCleanupForce)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("Cleanup cancelled.")
		return nil
	}

	client, err := apiClient()
	if err != nil {
		return err
	}

	result, err := client.CacheCleanup()
	if err != nil {
		return fmt.Errorf("cache cleanup failed: %w", err)
	}

	fmt.Printf("Removed %d entries, freed %s\n",
		result.CleanedCount, bytesize.ByteSize(result.FreedSpaceBytes))
	return nil
}

func runCacheRemove(cmd *cobra.Command, args []string) error {
	client, err := apiClient()
	if err != nil {
		return err
	}

	if err := client.CacheRemove(args[0]); err != nil {
		return fmt.Errorf("failed to remove cached content: %w", err)
	}

	fmt.Printf("Removed %s from the cache\n", args[0])
	return nil
}
