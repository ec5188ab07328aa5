package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gigsync/gigsync/pkg/apiclient"
)

var performCmd = &cobra.Command{
	Use:   "perform <setlist-id>",
	Short: "Enter performance mode for a setlist",
	Long: `Enter performance mode for a setlist. The daemon pins every song in the
setlist so nothing can evict it until the performance ends.

Examples:
  # Start performing a setlist
  gigsync perform 4f2b9c

  # Check which setlist is being performed
  gigsync perform show

  # End the performance and unpin its content
  gigsync perform end`,
	Args: cobra.ExactArgs(1),
	RunE: runPerform,
}

var performShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the active performance",
	RunE:  runPerformShow,
}

var performEndCmd = &cobra.Command{
	Use:   "end",
	Short: "End the active performance",
	RunE:  runPerformEnd,
}

func init() {
	performCmd.AddCommand(performShowCmd)
	performCmd.AddCommand(performEndCmd)
}

func runPerform(cmd *cobra.Command, args []string) error {
	client, err := apiClient()
	if err != nil {
		return err
	}

	s, err := client.Perform(args[0])
	if err != nil {
		return fmt.Errorf("failed to enter performance mode: %w", err)
	}

	fmt.Printf("Performing %q, %d songs pinned\n", s.Name, len(s.Songs))
	return nil
}

func runPerformShow(cmd *cobra.Command, args []string) error {
	client, err := apiClient()
	if err != nil {
		return err
	}

	s, err := client.ActivePerformance()
	if err != nil {
		if apiclient.IsNotFound(err) {
			fmt.Println("No performance is active.")
			return nil
		}
		return fmt.Errorf("failed to fetch active performance: %w", err)
	}

	printSetlist(s)
	return nil
}

func runPerformEnd(cmd *cobra.Command, args []string) error {
	client, err := apiClient()
	if err != nil {
		return err
	}

	if err := client.EndPerformance(); err != nil {
		return fmt.Errorf("failed to end performance: %w", err)
	}

	fmt.Println("Performance ended, content unpinned.")
	return nil
}
