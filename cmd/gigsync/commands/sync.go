package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gigsync/gigsync/internal/cli/output"
	"github.com/gigsync/gigsync/pkg/apiclient"
	"github.com/gigsync/gigsync/pkg/queue"
	"github.com/gigsync/gigsync/pkg/syncer"
)

var (
	syncListOutput  string
	syncListState   string
	resolveDiscard  bool
	resolvePayload  string
	resolveBaseVer  string
	conflictsOutput string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Manage the offline mutation queue",
	Long: `Manage the queue of edits made offline and their sync to the content
service.

Examples:
  # Drain the queue now
  gigsync sync drain

  # List queued mutations
  gigsync sync list

  # List conflicts and resolve one by discarding the local edit
  gigsync sync conflicts
  gigsync sync resolve 8f14e45f --discard`,
}

var syncDrainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Sync queued edits to the content service now",
	RunE:  runSyncDrain,
}

var syncListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued mutations",
	RunE:  runSyncList,
}

var syncRetryCmd = &cobra.Command{
	Use:   "retry <mutation-id>",
	Short: "Retry a terminally failed mutation",
	Args:  cobra.ExactArgs(1),
	RunE:  runSyncRetry,
}

var syncConflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "List mutations waiting on conflict resolution",
	RunE:  runSyncConflicts,
}

var syncResolveCmd = &cobra.Command{
	Use:   "resolve <mutation-id>",
	Short: "Resolve a sync conflict",
	Long: `Resolve a sync conflict either by discarding the local edit or by
submitting a rebased payload.

Examples:
  # Drop the local edit and keep the server version
  gigsync sync resolve 8f14e45f --discard

  # Submit a rebased payload against the server version you reviewed
  gigsync sync resolve 8f14e45f --payload '{"lyrics":"merged"}' --base-version v7`,
	Args: cobra.ExactArgs(1),
	RunE: runSyncResolve,
}

func init() {
	syncListCmd.Flags().StringVarP(&syncListOutput, "output", "o", "table", "Output format (table|json|yaml)")
	syncListCmd.Flags().StringVar(&syncListState, "state", "", "Filter by state (pending|in_flight|conflict|failed_terminal)")
	syncConflictsCmd.Flags().StringVarP(&conflictsOutput, "output", "o", "table", "Output format (table|json|yaml)")
	syncResolveCmd.Flags().BoolVar(&resolveDiscard, "discard", false, "Discard the local edit")
	syncResolveCmd.Flags().StringVar(&resolvePayload, "payload", "", "Rebased payload (JSON)")
	syncResolveCmd.Flags().StringVar(&resolveBaseVer, "base-version", "", "Server version the payload was rebased onto")

	syncCmd.AddCommand(syncDrainCmd)
	syncCmd.AddCommand(syncListCmd)
	syncCmd.AddCommand(syncRetryCmd)
	syncCmd.AddCommand(syncConflictsCmd)
	syncCmd.AddCommand(syncResolveCmd)
}

func runSyncDrain(cmd *cobra.Command, args []string) error {
	client, err := apiClient()
	if err != nil {
		return err
	}

	report, err := client.Drain()
	if err != nil {
		if apiclient.IsUnavailable(err) {
			return fmt.Errorf("cannot sync: %w", err)
		}
		return fmt.Errorf("sync drain failed: %w", err)
	}

	printReport(report)
	return nil
}

func runSyncList(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(syncListOutput)
	if err != nil {
		return err
	}

	client, err := apiClient()
	if err != nil {
		return err
	}

	muts, err := client.ListMutations(syncListState)
	if err != nil {
		return fmt.Errorf("failed to list mutations: %w", err)
	}

	return printMutations(format, muts, "No queued mutations.")
}

func runSyncRetry(cmd *cobra.Command, args []string) error {
	client, err := apiClient()
	if err != nil {
		return err
	}

	report, err := client.RetryMutation(args[0])
	if err != nil {
		return fmt.Errorf("retry failed: %w", err)
	}

	printReport(report)
	return nil
}

func runSyncConflicts(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(conflictsOutput)
	if err != nil {
		return err
	}

	client, err := apiClient()
	if err != nil {
		return err
	}

	conflicts, err := client.Conflicts()
	if err != nil {
		return fmt.Errorf("failed to list conflicts: %w", err)
	}

	return printMutations(format, conflicts, "No conflicts.")
}

func runSyncResolve(cmd *cobra.Command, args []string) error {
	if !resolveDiscard && resolvePayload == "" {
		return fmt.Errorf("either --discard or --payload is required")
	}

	client, err := apiClient()
	if err != nil {
		return err
	}

	err = client.ResolveConflict(args[0], resolveDiscard, []byte(resolvePayload), resolveBaseVer)
	if err != nil {
		return fmt.Errorf("failed to resolve conflict: %w", err)
	}

	if resolveDiscard {
		fmt.Println("Local edit discarded.")
	} else {
		fmt.Println("Conflict resolved, mutation re-queued.")
	}
	return nil
}

func printReport(report *syncer.Report) {
	fmt.Printf("Synced %d mutations, %d failed\n", report.SuccessCount, report.FailureCount)
	for _, r := range report.Results {
		if r.Outcome == syncer.OutcomeCommitted {
			continue
		}
		fmt.Printf("  %s %s (%s): %s\n", r.MutationID, r.EntityID, r.Outcome, r.Error)
	}
}

func printMutations(format output.Format, muts []queue.Mutation, emptyMsg string) error {
	if format != output.FormatTable {
		return output.NewPrinter(os.Stdout, format, false).Print(muts)
	}

	if len(muts) == 0 {
		fmt.Println(emptyMsg)
		return nil
	}

	table := output.NewTableData("ID", "Entity", "Op", "State", "Attempts", "Error")
	for _, m := range muts {
		errMsg := m.LastError
		if errMsg == "" {
			errMsg = "-"
		}
		table.AddRow(m.MutationID, fmt.Sprintf("%s/%s", m.EntityType, m.EntityID),
			string(m.Operation), string(m.State), fmt.Sprintf("%d", m.Attempts), errMsg)
	}
	return output.PrintTable(os.Stdout, table)
}
