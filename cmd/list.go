package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/dvarkless/sc2-replay-converter/internal/errors"
	"github.com/dvarkless/sc2-replay-converter/internal/report"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List dataset tables with their row counts",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func runList(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	tables, err := db.ListDatasetTables(cmd.Context())
	if err != nil {
		return errors.Wrap(err, "list dataset tables")
	}
	report.PrintDatasetTables(os.Stdout, tables)
	return nil
}
