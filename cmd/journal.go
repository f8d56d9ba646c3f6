package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/adalundhe/duet/core/handoff"
	"github.com/adalundhe/duet/core/journal"
)

// ANSI color codes for terminal output.
const (
	colorReset = "\033[0m"
	colorRed   = "\033[31m"
	colorGreen = "\033[32m"
	colorGray  = "\033[90m"
)

var (
	journalConversation string
	journalLimit        int
	journalJSON         bool
	journalPlain        bool
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Inspect recorded handoffs",
}

var journalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded handoffs, newest first",
	Long: `List handoffs recorded in the journal, newest first.

Examples:
  duet journal list
  duet journal list --conversation 5d1c... --limit 20
  duet journal list --json | jq '.[].to'`,
	Args: cobra.NoArgs,
	RunE: runJournalList,
}

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalListCmd)

	journalListCmd.Flags().StringVar(&journalConversation, "conversation", "", "Only show handoffs of this conversation")
	journalListCmd.Flags().IntVarP(&journalLimit, "limit", "l", journal.DefaultListLimit, "Maximum number of records")
	journalListCmd.Flags().BoolVar(&journalJSON, "json", false, "Output records as JSON")
	journalListCmd.Flags().BoolVar(&journalPlain, "plain", false, "Disable colors")
}

func runJournalList(cmd *cobra.Command, _ []string) error {
	mgr, dirs, err := loadConfig()
	if err != nil {
		return err
	}
	defer mgr.Close()

	path := mgr.Get().JournalPath(dirs)
	if path == "" {
		return fmt.Errorf("no journal path configured")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	j, err := journal.Open(journal.Config{Path: path})
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	entries, err := j.List(ctx, journal.Query{ConversationID: journalConversation, Limit: journalLimit})
	if err != nil {
		return err
	}

	if journalJSON {
		return writeEntriesJSON(cmd.OutOrStdout(), entries)
	}
	return writeEntries(cmd.OutOrStdout(), entries, !journalPlain)
}

func writeEntriesJSON(w io.Writer, entries []journal.Entry) error {
	if entries == nil {
		entries = []journal.Entry{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}

func writeEntries(w io.Writer, entries []journal.Entry, color bool) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "no handoffs recorded")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tCONVERSATION\tFROM\tTO\tCARRIED\tCONTEXT\tOUTCOME")
	for _, e := range entries {
		from := e.From
		if from == "" {
			from = "-"
		}
		// Outcome goes last: color codes would skew column widths.
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d/%d\t%d\t%s\n",
			e.At.Local().Format(time.DateTime),
			e.ConversationID,
			from,
			e.To,
			e.Carried, e.Window,
			e.ContextLen,
			paintOutcome(e.Outcome, color))
	}
	return tw.Flush()
}

func paintOutcome(o handoff.Outcome, color bool) string {
	if !color {
		return string(o)
	}
	switch o {
	case handoff.OutcomeActivated:
		return colorGreen + string(o) + colorReset
	case handoff.OutcomeRejected:
		return colorRed + string(o) + colorReset
	default:
		return colorGray + string(o) + colorReset
	}
}
