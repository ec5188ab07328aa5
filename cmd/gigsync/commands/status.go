package commands

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/gigsync/gigsync/internal/bytesize"
	"github.com/gigsync/gigsync/internal/cli/output"
)

var statusOutput string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long: `Display the current status of the gigsync daemon: connectivity, cache
usage, sync queue depth, and the active performance if any.

Examples:
  # Check status
  gigsync status

  # Output as JSON
  gigsync status --output json`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(statusOutput)
	if err != nil {
		return err
	}

	client, err := apiClient()
	if err != nil {
		return err
	}

	st, err := client.Status()
	if err != nil {
		return fmt.Errorf("daemon unreachable: %w (is it running? try: gigsync start)", err)
	}

	if format != output.FormatTable {
		return output.NewPrinter(os.Stdout, format, false).Print(st)
	}

	online := "offline"
	if st.Online {
		online = "online"
	}

	pairs := [][2]string{
		{"Connectivity", online},
		{"Cache usage", fmt.Sprintf("%s / %s (%d items)",
			bytesize.ByteSize(st.Cache.TotalSize), bytesize.ByteSize(st.Cache.MaxSize), st.Cache.ItemCount)},
		{"Queue depth", strconv.Itoa(st.QueueDepth)},
		{"Conflicts", strconv.Itoa(st.Conflicts)},
		{"Preload done", fmt.Sprintf("%d completed, %d failed, %d skipped",
			st.Preload.Completed, st.Preload.Failed, st.Preload.Skipped)},
		{"Preload pending", fmt.Sprintf("%d high, %d low", st.Preload.PendingHigh, st.Preload.PendingLow)},
	}
	if st.LastDrain != nil {
		pairs = append(pairs, [2]string{"Last drain", fmt.Sprintf("%d synced, %d failed",
			st.LastDrain.SuccessCount, st.LastDrain.FailureCount)})
	}
	if st.ActiveSetlistID != "" {
		pairs = append(pairs, [2]string{"Performing", st.ActiveSetlistID})
	}

	return output.SimpleTable(os.Stdout, pairs)
}
