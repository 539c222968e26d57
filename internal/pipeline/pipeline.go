// Package pipeline turns stored matches into dataset rows. A Pipeline is
// configured step by step (usually by a Composer), then run once over every
// stored match.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dvarkless/sc2-replay-converter/internal/errors"
	"github.com/dvarkless/sc2-replay-converter/internal/extract"
	"github.com/dvarkless/sc2-replay-converter/internal/features"
	"github.com/dvarkless/sc2-replay-converter/internal/filter"
	"github.com/dvarkless/sc2-replay-converter/internal/loader"
	"github.com/dvarkless/sc2-replay-converter/internal/logger"
	"github.com/dvarkless/sc2-replay-converter/internal/metrics"
	"github.com/dvarkless/sc2-replay-converter/internal/model"
	"github.com/dvarkless/sc2-replay-converter/internal/sampler"
)

// State is the lifecycle position of a pipeline.
type State int

const (
	StateConfigured State = iota
	StateRunning
	StateDone
)

func (s State) String() string {
	switch s {
	case StateConfigured:
		return "configured"
	case StateRunning:
		return "running"
	case StateDone:
		return "done"
	}
	return "unknown"
}

// Step names a configurable component.
type Step string

const (
	StepExtractor   Step = "extractor"
	StepReorganizer Step = "reorganizer"
	StepSampler     Step = "sampler"
	StepNormalizer  Step = "normalizer"
	StepReducer     Step = "reducer"
	StepLabeler     Step = "labeler"
	StepLoader      Step = "loader"
)

// Stats are the counters of one run.
type Stats struct {
	RunID             string
	Table             string
	Matches           int
	Filtered          int
	OrderingsAccepted int
	OrderingsRejected int
	MatchesSkipped    int
	TicksSkipped      int
	RowsWritten       int
	MatchesAborted    int
	Duration          time.Duration
}

// Pipeline is one flavor of dataset for one matchup.
type Pipeline struct {
	matchup   model.Matchup
	flavor    model.Flavor
	assembler assembler

	extractor   *extract.Extractor
	reorganizer *features.Reorganizer
	sampler     *sampler.TickSampler
	normalizer  *features.Normalizer
	reducer     *features.Reducer
	labeler     *features.WinProbLabeler
	loader      *loader.Loader
	filters     *filter.Set

	log     *logger.Logger
	metrics *metrics.Collector
	onMatch func(Stats)

	state State
	stats Stats
}

// New returns an unconfigured pipeline.
func New(m model.Matchup, f model.Flavor, log *logger.Logger) (*Pipeline, error) {
	a, err := assemblerFor(f)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Pipeline{
		matchup:   m,
		flavor:    f,
		assembler: a,
		log:       log,
		stats:     Stats{Table: model.TableName(m, f)},
	}, nil
}

func (p *Pipeline) ConfigureExtractor(e *extract.Extractor)     { p.extractor = e }
func (p *Pipeline) ConfigureReorganizer(r features.Reorganizer) { p.reorganizer = &r }
func (p *Pipeline) ConfigureSampler(s *sampler.TickSampler)     { p.sampler = s }
func (p *Pipeline) ConfigureNormalizer(n *features.Normalizer)  { p.normalizer = n }
func (p *Pipeline) ConfigureReducer(r *features.Reducer)        { p.reducer = r }
func (p *Pipeline) ConfigureLabeler(l features.WinProbLabeler)  { p.labeler = &l }
func (p *Pipeline) ConfigureLoader(l *loader.Loader)            { p.loader = l }
func (p *Pipeline) ConfigureFilters(s *filter.Set)              { p.filters = s }
func (p *Pipeline) ConfigureMetrics(c *metrics.Collector)       { p.metrics = c }

// OnMatch registers a callback invoked after every match with the running
// counters.
func (p *Pipeline) OnMatch(fn func(Stats)) { p.onMatch = fn }

func (p *Pipeline) Flavor() model.Flavor   { return p.flavor }
func (p *Pipeline) Matchup() model.Matchup { return p.matchup }
func (p *Pipeline) Table() string          { return p.stats.Table }
func (p *Pipeline) State() State           { return p.state }

func (p *Pipeline) configured(s Step) bool {
	switch s {
	case StepExtractor:
		return p.extractor != nil
	case StepReorganizer:
		return p.reorganizer != nil
	case StepSampler:
		return p.sampler != nil
	case StepNormalizer:
		return p.normalizer != nil
	case StepReducer:
		return p.reducer != nil
	case StepLabeler:
		return p.labeler != nil
	case StepLoader:
		return p.loader != nil
	}
	return false
}

// Validate checks that every step the flavor needs is configured.
func (p *Pipeline) Validate() error {
	var missing []string
	for _, s := range p.assembler.steps() {
		if !p.configured(s) {
			missing = append(missing, string(s))
		}
	}
	if len(missing) > 0 {
		return errors.Config("%s pipeline is missing steps: %s", p.stats.Table, strings.Join(missing, ", "))
	}
	if p.sampler.Config().RequireHorizon != p.assembler.requireHorizon() {
		return errors.Config("%s pipeline needs a sampler with require_horizon=%t",
			p.stats.Table, p.assembler.requireHorizon())
	}
	if p.loader.Table() != p.stats.Table {
		return errors.Config("loader writes %s, pipeline builds %s", p.loader.Table(), p.stats.Table)
	}
	return nil
}

// Run processes every stored match once. A match with inconsistent upstream
// data is logged and skipped; any other error stops the run.
func (p *Pipeline) Run(ctx context.Context) (Stats, error) {
	if p.state != StateConfigured {
		return p.stats, errors.Newf("pipeline %s cannot run from state %s", p.stats.Table, p.state)
	}
	if err := p.Validate(); err != nil {
		return p.stats, err
	}

	p.state = StateRunning
	p.stats.RunID = uuid.NewString()
	log := p.log.With("run_id", p.stats.RunID).With("table", p.stats.Table)
	start := time.Now()
	defer func() {
		p.state = StateDone
		p.stats.Duration = time.Since(start)
	}()

	log.Infof("building %s dataset for %s", p.flavor, p.matchup)
	for id, err := range p.extractor.IDs(ctx) {
		if err != nil {
			return p.stats, errors.Wrap(err, "list matches")
		}
		if err := ctx.Err(); err != nil {
			return p.stats, err
		}

		p.stats.Matches++
		p.metrics.Inc(metrics.MatchSeen, p.stats.Table)

		if err := p.processMatch(ctx, log.With("match_id", id), id); err != nil {
			if !errors.IsDataConsistency(err) {
				log.WithError(err).Errorf("match %d", id)
				return p.stats, errors.Wrapf(err, "match %d", id)
			}
			p.stats.MatchesAborted++
			p.metrics.Inc(metrics.MatchAborted, p.stats.Table)
			log.With("match_id", id).
				With("detail", errors.FlattenDetails(err)).
				WithError(err).
				Warn("match aborted")
		}
		if p.onMatch != nil {
			p.onMatch(p.stats)
		}
	}

	log.Infof("done: %d matches, %d rows written, %d aborted", p.stats.Matches, p.stats.RowsWritten, p.stats.MatchesAborted)
	return p.stats, nil
}

func (p *Pipeline) processMatch(ctx context.Context, log *logger.Logger, id int64) error {
	done, err := p.loader.MatchExists(ctx, id)
	if err != nil {
		return err
	}
	if done {
		p.stats.MatchesSkipped++
		p.metrics.Inc(metrics.MatchSkipped, p.stats.Table)
		log.Debug("match already loaded")
		return nil
	}

	summary, err := p.extractor.Summary(ctx, id)
	if err != nil {
		return err
	}
	if p.filters != nil {
		if report := p.filters.Evaluate(filter.FromSummary(summary)); !report.Passed() {
			p.stats.Filtered++
			p.metrics.Inc(metrics.MatchFiltered, p.stats.Table)
			log.Debugf("filtered out by %v", report.Failed())
			return nil
		}
	}

	var rows []loader.Row
	for _, o := range p.reorganizer.Orderings(summary) {
		if !o.Accepted {
			p.stats.OrderingsRejected++
			p.metrics.Inc(metrics.OrderingRejected, p.stats.Table)
			continue
		}
		p.stats.OrderingsAccepted++
		p.metrics.Inc(metrics.OrderingAccepted, p.stats.Table)

		r, err := p.processOrdering(ctx, log.With("player", o.Player), summary, o)
		if err != nil {
			return err
		}
		rows = append(rows, r...)
	}

	// Nothing of the match is written until every ordering assembled.
	written, err := p.loader.UploadMatch(ctx, id, rows)
	if err != nil {
		return err
	}
	p.stats.RowsWritten += written
	p.metrics.Add(metrics.RowWritten, p.stats.Table, written)
	p.stats.TicksSkipped += len(rows) - written
	p.metrics.Add(metrics.TickSkipped, p.stats.Table, len(rows)-written)
	log.Debugf("loaded %d rows", written)
	return nil
}

func (p *Pipeline) processOrdering(ctx context.Context, log *logger.Logger, m model.MatchSummary, o features.Ordering) ([]loader.Row, error) {
	var points []model.SampledPoint
	for _, pt := range p.sampler.Sample(m.DurationTicks) {
		exists, err := p.loader.TickExists(ctx, m.MatchID, pt.Start)
		if err != nil {
			return nil, err
		}
		if exists {
			p.stats.TicksSkipped++
			p.metrics.Inc(metrics.TickSkipped, p.stats.Table)
			continue
		}
		points = append(points, pt)
	}
	if len(points) == 0 {
		return nil, nil
	}

	starts, ends := ticksOf(points)
	startSnaps, err := p.extractor.Snapshots(ctx, m.MatchID, starts)
	if err != nil {
		return nil, err
	}
	var endSnaps []model.Snapshot
	if len(ends) > 0 {
		if endSnaps, err = p.extractor.Snapshots(ctx, m.MatchID, ends); err != nil {
			return nil, err
		}
	}

	rows := make([]loader.Row, 0, len(points))
	for i, pt := range points {
		in := sample{match: m, ordering: o, point: pt, start: startSnaps[i]}
		if endSnaps != nil {
			in.end = endSnaps[i]
		}
		player, enemy, out, err := p.assemble(in)
		if err != nil {
			return nil, errors.WithDetailf(err, "match_id=%d tick=%d", m.MatchID, pt.Start)
		}
		rows = append(rows, loader.Row{Tick: pt.Start, Player: player, Enemy: enemy, Out: out})
	}
	log.Debugf("assembled %d samples", len(rows))
	return rows, nil
}

func (p *Pipeline) assemble(in sample) (player, enemy, out model.FeatureVector, err error) {
	player = p.assembler.player(p, in)
	enemy = p.assembler.enemy(p, in)
	out, err = p.assembler.out(p, in)
	return player, enemy, out, err
}

func ticksOf(points []model.SampledPoint) (starts, ends []int) {
	starts = make([]int, len(points))
	for i, pt := range points {
		starts[i] = pt.Start
		if pt.HasEnd {
			ends = append(ends, pt.End)
		}
	}
	return starts, ends
}

func (p *Pipeline) String() string {
	return fmt.Sprintf("%s[%s]", p.stats.Table, p.state)
}
