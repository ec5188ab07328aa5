package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gigsync/gigsync/internal/cli/output"
	"github.com/gigsync/gigsync/internal/cli/prompt"
	"github.com/gigsync/gigsync/pkg/catalog"
)

var (
	setlistListOutput string
	setlistShowOutput string
	setlistRmForce    bool
)

var setlistCmd = &cobra.Command{
	Use:   "setlist",
	Short: "Manage setlists",
	Long: `Manage the setlists the daemon preloads content for.

Examples:
  # List all setlists
  gigsync setlist list

  # Show one setlist with its songs
  gigsync setlist show 4f2b9c

  # Delete a setlist
  gigsync setlist delete 4f2b9c`,
}

var setlistListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all setlists",
	RunE:  runSetlistList,
}

var setlistShowCmd = &cobra.Command{
	Use:   "show <setlist-id>",
	Short: "Show a setlist with its songs",
	Args:  cobra.ExactArgs(1),
	RunE:  runSetlistShow,
}

var setlistDeleteCmd = &cobra.Command{
	Use:   "delete <setlist-id>",
	Short: "Delete a setlist",
	Args:  cobra.ExactArgs(1),
	RunE:  runSetlistDelete,
}

func init() {
	setlistListCmd.Flags().StringVarP(&setlistListOutput, "output", "o", "table", "Output format (table|json|yaml)")
	setlistShowCmd.Flags().StringVarP(&setlistShowOutput, "output", "o", "table", "Output format (table|json|yaml)")
	setlistDeleteCmd.Flags().BoolVarP(&setlistRmForce, "force", "f", false, "Skip confirmation prompt")

	setlistCmd.AddCommand(setlistListCmd)
	setlistCmd.AddCommand(setlistShowCmd)
	setlistCmd.AddCommand(setlistDeleteCmd)
}

func runSetlistList(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(setlistListOutput)
	if err != nil {
		return err
	}

	client, err := apiClient()
	if err != nil {
		return err
	}

	lists, err := client.ListSetlists()
	if err != nil {
		return fmt.Errorf("failed to list setlists: %w", err)
	}

	if format != output.FormatTable {
		return output.NewPrinter(os.Stdout, format, false).Print(lists)
	}

	if len(lists) == 0 {
		fmt.Println("No setlists.")
		return nil
	}

	table := output.NewTableData("ID", "Name", "Venue", "Performance", "Active")
	for _, s := range lists {
		venue := s.Venue
		if venue == "" {
			venue = "-"
		}
		active := ""
		if s.Active {
			active = "*"
		}
		table.AddRow(s.ID, s.Name, venue, s.PerformanceAt.Local().Format("2006-01-02 15:04"), active)
	}
	return output.PrintTable(os.Stdout, table)
}

func runSetlistShow(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(setlistShowOutput)
	if err != nil {
		return err
	}

	client, err := apiClient()
	if err != nil {
		return err
	}

	s, err := client.GetSetlist(args[0])
	if err != nil {
		return fmt.Errorf("failed to load setlist: %w", err)
	}

	if format != output.FormatTable {
		return output.NewPrinter(os.Stdout, format, false).Print(s)
	}

	printSetlist(s)
	return nil
}

func runSetlistDelete(cmd *cobra.Command, args []string) error {
	ok, err := prompt.ConfirmWithForce(fmt.Sprintf("Delete setlist %s?", args[0]), setlistRmForce)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("Delete cancelled.")
		return nil
	}

	client, err := apiClient()
	if err != nil {
		return err
	}

	if err := client.DeleteSetlist(args[0]); err != nil {
		return fmt.Errorf("failed to delete setlist: %w", err)
	}

	fmt.Printf("Setlist %s deleted\n", args[0])
	return nil
}

func printSetlist(s *catalog.Setlist) {
	fmt.Printf("%s", s.Name)
	if s.Venue != "" {
		fmt.Printf(" @ %s", s.Venue)
	}
	fmt.Printf("\n%s", s.PerformanceAt.Local().Format(time.RFC1123))
	if s.Active {
		fmt.Printf("  (performing now)")
	}
	fmt.Println()

	if len(s.Songs) == 0 {
		fmt.Println("\nNo songs.")
		return
	}

	fmt.Println()
	table := output.NewTableData("#", "Title", "Artist", "Kind", "Content")
	for _, song := range s.Songs {
		artist := song.Artist
		if artist == "" {
			artist = "-"
		}
		table.AddRow(fmt.Sprintf("%d", song.Position+1), song.Title, artist, song.Kind, song.ContentID)
	}
	_ = output.PrintTable(os.Stdout, table)
}
