package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dvarkless/sc2-replay-converter/internal/errors"
	"github.com/dvarkless/sc2-replay-converter/internal/report"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export <table>",
	Short: "Export a dataset table as CSV",
	Long: `Write every row of a dataset table to CSV, header first. Features a row does
not carry are written as empty cells.

Example:
  sc2ds export zvt_comp --out zvt_comp.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file (default stdout)")
}

func runExport(cmd *cobra.Command, args []string) error {
	table := args[0]
	if err := checkDatasetTable(table); err != nil {
		return err
	}

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	records, err := db.ReadDataset(cmd.Context(), table)
	if err != nil {
		return errors.Wrapf(err, "read %s", table)
	}

	var w io.Writer = os.Stdout
	if exportOut != "" {
		f, err := os.Create(exportOut)
		if err != nil {
			return errors.Wrap(err, "create output file")
		}
		defer f.Close()
		w = f
	}
	if err := report.WriteCSV(w, records); err != nil {
		return err
	}
	if exportOut != "" {
		fmt.Fprintf(os.Stderr, "Wrote %d rows to %s\n", len(records)-1, exportOut)
	}
	return nil
}
