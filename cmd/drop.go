package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dvarkless/sc2-replay-converter/internal/errors"
	"github.com/dvarkless/sc2-replay-converter/internal/storage"
)

var dropForce bool

// dropCmd deletes one dataset table so it can be rebuilt from scratch.
var dropCmd = &cobra.Command{
	Use:   "drop <table>",
	Short: "Delete a dataset table",
	Long: `Permanently delete a dataset table such as zvt_comp. The upstream game_info
and build_order tables cannot be dropped. Run 'sc2ds build' afterwards to rebuild.`,
	Args: cobra.ExactArgs(1),
	RunE: runDrop,
}

func init() {
	dropCmd.Flags().BoolVarP(&dropForce, "force", "f", false, "skip confirmation prompt")
}

func runDrop(cmd *cobra.Command, args []string) error {
	table := args[0]
	if err := checkDatasetTable(table); err != nil {
		return err
	}
	if !dropForce {
		fmt.Fprintf(os.Stderr, "This will permanently delete table %s from %s\n", table, cfg.Database.DSN)
		fmt.Fprintf(os.Stderr, "Re-run with --force to confirm.\n")
		return nil
	}

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	exists, err := db.TableExists(cmd.Context(), table)
	if err != nil {
		return err
	}
	if !exists {
		fmt.Fprintf(os.Stdout, "Table %s does not exist, nothing to drop.\n", table)
		return nil
	}
	if err := db.DropTable(cmd.Context(), table); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Dropped: %s\n", table)
	return nil
}

func checkDatasetTable(table string) error {
	if !storage.IsDatasetTable(table) {
		return errors.WithHint(errors.Config("%q is not a dataset table", table),
			"dataset tables are named {player}v{enemy}_{flavor}, e.g. zvt_comp")
	}
	return nil
}
