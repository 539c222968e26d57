package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dvarkless/sc2-replay-converter/internal/errors"
	"github.com/dvarkless/sc2-replay-converter/internal/report"
)

// summaryCmd is the cobra command for displaying a high-level database overview.
var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show a high-level overview of the database",
	Long: `Display stored games and snapshot ticks per matchup, followed by the
dataset tables built so far.`,
	Args: cobra.NoArgs,
	RunE: runSummary,
}

func runSummary(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	ov, err := db.Overview(cmd.Context())
	if err != nil {
		return errors.Wrap(err, "get overview")
	}
	fmt.Fprintf(os.Stdout, "\n=== Upstream (%s) ===\n\n", db.Driver())
	report.PrintOverview(os.Stdout, ov)

	tables, err := db.ListDatasetTables(cmd.Context())
	if err != nil {
		return errors.Wrap(err, "list dataset tables")
	}
	fmt.Fprintf(os.Stdout, "\n=== Datasets ===\n\n")
	report.PrintDatasetTables(os.Stdout, tables)
	return nil
}
