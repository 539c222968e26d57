package cmd

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/dvarkless/sc2-replay-converter/internal/errors"
	"github.com/dvarkless/sc2-replay-converter/internal/metrics"
	"github.com/dvarkless/sc2-replay-converter/internal/model"
	"github.com/dvarkless/sc2-replay-converter/internal/pipeline"
	"github.com/dvarkless/sc2-replay-converter/internal/reference"
	"github.com/dvarkless/sc2-replay-converter/internal/report"
)

var (
	buildMatchups    []string
	buildFlavor      string
	buildMetricsAddr string
	buildNoProgress  bool
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build dataset tables from the stored replays",
	Long: `Run the dataset pipelines over every stored game. Each (matchup, flavor) pair
writes one table, e.g. zvt_comp. Runs are resumable: games and ticks already in a
table are skipped, so an interrupted build can simply be started again.

Flavors:
  comp       player state + enemy army -> reduced growth of the player's army
  winprob    player and enemy state -> win probability label (out_is_win)
  enemycomp  enemy buildings -> reduced enemy army and buildings

Example:
  sc2ds build --matchup ZvT,TvZ --flavor comp --metrics-addr :9102`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringSliceVar(&buildMatchups, "matchup", []string{"all"}, "matchups to build (e.g. ZvT,PvP) or all")
	buildCmd.Flags().StringVar(&buildFlavor, "flavor", "all", "comp, winprob, enemycomp or all")
	buildCmd.Flags().StringVar(&buildMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while building (overrides config)")
	buildCmd.Flags().BoolVar(&buildNoProgress, "no-progress", false, "disable the progress bar")
}

func buildTargets() ([]string, []model.Flavor, error) {
	var matchups []string
	for _, m := range buildMatchups {
		if strings.EqualFold(m, "all") {
			matchups = matchups[:0]
			for _, p := range model.Races {
				for _, e := range model.Races {
					matchups = append(matchups, model.Matchup{Player: p, Enemy: e}.String())
				}
			}
			break
		}
		if _, err := model.ParseMatchup(m); err != nil {
			return nil, nil, err
		}
		matchups = append(matchups, m)
	}

	if len(matchups) == 0 {
		return nil, nil, errors.Config("no matchup given")
	}

	if strings.EqualFold(buildFlavor, "all") {
		return matchups, model.Flavors, nil
	}
	f, err := model.ParseFlavor(buildFlavor)
	if err != nil {
		return nil, nil, err
	}
	return matchups, []model.Flavor{f}, nil
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	matchups, flavors, err := buildTargets()
	if err != nil {
		return err
	}

	tables, err := reference.LoadFiles(cfg.Reference.TaxonomyFile, cfg.Reference.SupplyFile)
	if err != nil {
		return err
	}

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	games, err := db.CountGames(ctx)
	if err != nil {
		return errors.Wrap(err, "count games")
	}

	collector := metrics.New()
	addr := cfg.Metrics.Addr
	if buildMetricsAddr != "" {
		addr = buildMetricsAddr
	}
	if addr != "" {
		stop := serveMetrics(addr, collector)
		defer stop()
	}

	composer, err := pipeline.NewComposer(matchups[0], db, tables, cfg.Pipeline, cfg.Database.TicksPerSecond, log)
	if err != nil {
		return err
	}
	composer.WithMetrics(collector)

	var runs []pipeline.Stats
	for _, m := range matchups {
		if err := composer.ChangeMatchup(m); err != nil {
			return err
		}
		for _, f := range flavors {
			p, err := composer.For(ctx, f)
			if err != nil {
				return err
			}
			stats, err := runWithProgress(ctx, p, int(games))
			runs = append(runs, stats)
			if err != nil {
				report.PrintRunStats(os.Stdout, runs)
				return errors.Wrapf(err, "build %s", p.Table())
			}
		}
	}
	report.PrintRunStats(os.Stdout, runs)
	return nil
}

func runWithProgress(ctx context.Context, p *pipeline.Pipeline, total int) (pipeline.Stats, error) {
	if buildNoProgress || total == 0 {
		return p.Run(ctx)
	}
	bar, err := pterm.DefaultProgressbar.
		WithTotal(total).
		WithTitle(p.Table()).
		WithRemoveWhenDone(true).
		Start()
	if err != nil {
		return p.Run(ctx)
	}
	p.OnMatch(func(pipeline.Stats) { bar.Increment() })
	stats, err := p.Run(ctx)
	_, _ = bar.Stop()
	return stats, err
}

// serveMetrics exposes the collector over HTTP until the returned func is called.
func serveMetrics(addr string, c *metrics.Collector) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Errorf("metrics server on %s", addr)
		}
	}()
	log.Infof("serving metrics on %s/metrics", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
