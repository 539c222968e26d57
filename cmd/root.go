package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/dvarkless/sc2-replay-converter/internal/config"
	"github.com/dvarkless/sc2-replay-converter/internal/errors"
	"github.com/dvarkless/sc2-replay-converter/internal/logger"
	"github.com/dvarkless/sc2-replay-converter/internal/storage"
)

var (
	cfgPath  string
	dbDSN    string
	dbDriver string
	logLevel string

	cfg *config.Config
	log *logger.Logger
)

var rootCmd = &cobra.Command{
	Use:   "sc2ds",
	Short: "StarCraft II replay dataset converter",
	Long: `Turn stored StarCraft II replay telemetry (per-tick build orders of both
players) into per-matchup training datasets: army composition, win probability
and enemy composition.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if hints := errors.FlattenHints(err); hints != "" {
			fmt.Fprintln(os.Stderr, "hint:", hints)
		}
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "sc2ds.yaml", "path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&dbDSN, "db", "", "database DSN or sqlite path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&dbDriver, "driver", "", "database driver: sqlite or postgres (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides config)")

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(dropCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(sqlCmd)
}

func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if dbDriver != "" {
		c.Database.Driver = dbDriver
	}
	if dbDSN != "" {
		c.Database.DSN = dbDSN
	}
	if logLevel != "" {
		c.Log.Level = logLevel
	}
	if err := c.Validate(); err != nil {
		return err
	}
	cfg = c
	log = logger.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	return nil
}

func openStore() (*storage.DB, error) {
	db, err := storage.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s store", cfg.Database.Driver)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	return db, nil
}
