package cmd

import (
	"math"
	"os"

	"github.com/spf13/cobra"

	"github.com/dvarkless/sc2-replay-converter/internal/errors"
	"github.com/dvarkless/sc2-replay-converter/internal/filter"
	"github.com/dvarkless/sc2-replay-converter/internal/ingest"
	"github.com/dvarkless/sc2-replay-converter/internal/report"
)

var (
	ingestMaxTick   int
	ingestLadder    bool
	ingestMatchup   string
	ingestHasRace   string
	ingestMinLeague int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file.jsonl> [<file.jsonl>...]",
	Short: "Store parsed replays in the upstream tables",
	Long: `Read newline-delimited JSON produced by the replay parser, one game per line:

  {"game": {"timestamp_played": ..., "players_hash": "...", "end_time": <seconds>,
            "player_1": {"id": ..., "race": "Zerg", "winner": true, "league": 4},
            "player_2": {...}, "map_hash": "...", "is_ladder": true},
   "snapshots": [{"tick": 0, "counts": {"player_1_unit_drone": 12, ...}}, ...]}

Games already stored (same players hash and start time) are skipped. Records
that fail validation are logged and counted, the rest of the file still loads.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().IntVar(&ingestMaxTick, "max-tick", 28800, "drop snapshots after this tick (0 keeps all)")
	ingestCmd.Flags().BoolVar(&ingestLadder, "ladder", false, "keep ladder games only")
	ingestCmd.Flags().StringVar(&ingestMatchup, "matchup", "", "keep one matchup only, either order (e.g. ZvT)")
	ingestCmd.Flags().StringVar(&ingestHasRace, "has-race", "", "keep games with this race on either side")
	ingestCmd.Flags().IntVar(&ingestMinLeague, "min-league", 0, "keep games where both players are at least this league")
}

func ingestFilters() (*filter.Set, error) {
	var fs []filter.Filter
	if ingestLadder {
		fs = append(fs, filter.Ladder{})
	}
	if ingestMatchup != "" {
		f, err := filter.NewMatchup(ingestMatchup)
		if err != nil {
			return nil, err
		}
		fs = append(fs, f)
	}
	if ingestHasRace != "" {
		f, err := filter.NewHasRace(ingestHasRace)
		if err != nil {
			return nil, err
		}
		fs = append(fs, f)
	}
	if ingestMinLeague > 0 {
		f, err := filter.NewLeague(ingestMinLeague, math.MaxInt)
		if err != nil {
			return nil, err
		}
		fs = append(fs, f)
	}
	if len(fs) == 0 {
		return nil, nil
	}
	return filter.NewSet(fs...)
}

func runIngest(cmd *cobra.Command, args []string) error {
	filters, err := ingestFilters()
	if err != nil {
		return err
	}

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	in, err := ingest.New(db, ingest.Options{
		TickStep:       cfg.Pipeline.TickStep,
		MaxTick:        ingestMaxTick,
		TicksPerSecond: cfg.Database.TicksPerSecond,
		Filters:        filters,
	}, log)
	if err != nil {
		return err
	}

	for _, path := range args {
		f, err := os.Open(path)
		if err != nil {
			return errors.Wrap(err, "open input")
		}
		stats, err := in.Run(cmd.Context(), f)
		f.Close()
		if err != nil {
			return errors.Wrapf(err, "ingest %s", path)
		}
		report.PrintIngestStats(os.Stdout, path, stats)
	}
	return nil
}
