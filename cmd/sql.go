package cmd

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dvarkless/sc2-replay-converter/internal/report"
)

var sqlCmd = &cobra.Command{
	Use:   "sql <query>",
	Short: "Run a raw SQL query against the replay database",
	Long: `Run an arbitrary SQL query against the replay database and print results as a table.

Schema overview:
  game_info(game_id, timestamp_played, players_hash, end_time [seconds],
    player_1_id, player_1_race, player_1_winner, player_1_league,
    player_2_id, player_2_race, player_2_winner, player_2_league,
    map_hash, matchup, is_ladder, replay_path)
  build_order(game_id, tick, name, value)
    name is player_<1|2>_<unit|building|upgrade|special>_<entity>
  <p>v<e>_<comp|winprob|enemycomp>(match_id, tick, p_*, e_*, out_*)

Races are stored as one letter: z, t or p. Example:
  sc2ds sql "SELECT matchup, COUNT(*) FROM game_info GROUP BY matchup"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSQL,
}

func runSQL(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	cols, rows, err := db.QueryRaw(cmd.Context(), query)
	if err != nil {
		return err
	}
	report.PrintQueryResult(os.Stdout, cols, rows)
	return nil
}
