package pipeline

import (
	"context"
	"math/rand/v2"

	"github.com/dvarkless/sc2-replay-converter/internal/config"
	"github.com/dvarkless/sc2-replay-converter/internal/errors"
	"github.com/dvarkless/sc2-replay-converter/internal/extract"
	"github.com/dvarkless/sc2-replay-converter/internal/features"
	"github.com/dvarkless/sc2-replay-converter/internal/filter"
	"github.com/dvarkless/sc2-replay-converter/internal/loader"
	"github.com/dvarkless/sc2-replay-converter/internal/logger"
	"github.com/dvarkless/sc2-replay-converter/internal/metrics"
	"github.com/dvarkless/sc2-replay-converter/internal/model"
	"github.com/dvarkless/sc2-replay-converter/internal/reference"
	"github.com/dvarkless/sc2-replay-converter/internal/sampler"
)

// Store is everything a pipeline reads and writes.
type Store interface {
	extract.Source
	loader.Store
}

// Composer assembles fully configured pipelines for one matchup at a time.
// The store and reference tables are shared by every pipeline it builds.
type Composer struct {
	store          Store
	tables         *reference.Tables
	cfg            config.PipelineConfig
	ticksPerSecond int
	log            *logger.Logger
	metrics        *metrics.Collector
	matchup        model.Matchup
}

// NewComposer validates the matchup and the numeric knobs up front.
func NewComposer(matchup string, store Store, tables *reference.Tables, cfg config.PipelineConfig, ticksPerSecond int, log *logger.Logger) (*Composer, error) {
	m, err := model.ParseMatchup(matchup)
	if err != nil {
		return nil, err
	}
	if store == nil || tables == nil {
		return nil, errors.Config("composer needs a store and reference tables")
	}
	if _, err := features.ParseReducer(cfg.Reducer); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Composer{
		store:          store,
		tables:         tables,
		cfg:            cfg,
		ticksPerSecond: ticksPerSecond,
		log:            log,
		matchup:        m,
	}, nil
}

// WithMetrics makes every pipeline built afterwards report to c.
func (c *Composer) WithMetrics(m *metrics.Collector) *Composer {
	c.metrics = m
	return c
}

// ChangeMatchup retargets the composer; pipelines already built keep theirs.
func (c *Composer) ChangeMatchup(matchup string) error {
	m, err := model.ParseMatchup(matchup)
	if err != nil {
		return err
	}
	c.matchup = m
	return nil
}

func (c *Composer) Matchup() model.Matchup { return c.matchup }

// Composition builds the army-composition pipeline.
func (c *Composer) Composition(ctx context.Context) (*Pipeline, error) {
	return c.For(ctx, model.FlavorComp)
}

// WinProbability builds the win-probability pipeline.
func (c *Composer) WinProbability(ctx context.Context) (*Pipeline, error) {
	return c.For(ctx, model.FlavorWinProb)
}

// EnemyComposition builds the enemy-composition pipeline.
func (c *Composer) EnemyComposition(ctx context.Context) (*Pipeline, error) {
	return c.For(ctx, model.FlavorEnemyComp)
}

// For builds the pipeline of flavor f for the current matchup.
func (c *Composer) For(ctx context.Context, f model.Flavor) (*Pipeline, error) {
	p, err := New(c.matchup, f, c.log)
	if err != nil {
		return nil, err
	}

	horizon := c.cfg.HorizonTicks()
	smp, err := sampler.New(sampler.Config{
		MeanStepTicks:  c.cfg.MeanStepTicks(),
		Sigma:          float64(horizon) * 0.5,
		TickStep:       c.cfg.TickStep,
		HorizonTicks:   horizon,
		RequireHorizon: p.assembler.requireHorizon(),
	}, c.randSource(f))
	if err != nil {
		return nil, errors.Wrapf(err, "%s sampler", f)
	}

	lengths, err := filter.NewGameLength(c.cfg.MinGameTicks, 0)
	if err != nil {
		return nil, err
	}
	filters, err := filter.NewSet(lengths)
	if err != nil {
		return nil, err
	}

	ld, err := loader.New(ctx, c.store, c.matchup, f)
	if err != nil {
		return nil, err
	}

	p.ConfigureExtractor(extract.New(c.store, c.ticksPerSecond))
	p.ConfigureReorganizer(features.Reorganizer{
		Matchup:         c.matchup,
		MinLeague:       c.cfg.MinLeague,
		IncludeUnranked: c.cfg.IncludeUnranked,
	})
	p.ConfigureSampler(smp)
	p.ConfigureNormalizer(features.NewNormalizer(c.tables.Taxonomy, c.tables.Supply))
	p.ConfigureFilters(filters)
	p.ConfigureLoader(ld)
	p.ConfigureMetrics(c.metrics)

	switch f {
	case model.FlavorWinProb:
		delay := c.cfg.WinProbDelay
		if delay == 0 {
			delay = features.DefaultWinProbDelay
		}
		p.ConfigureLabeler(features.WinProbLabeler{Delay: delay})
	default:
		red, err := features.NewReducer(c.cfg.Reducer, c.tables.Supply)
		if err != nil {
			return nil, err
		}
		p.ConfigureReducer(red)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// randSource is nil (entropy) unless a seed is configured. Each flavor gets
// its own stream.
func (c *Composer) randSource(f model.Flavor) rand.Source {
	if c.cfg.Seed == 0 {
		return nil
	}
	var stream uint64
	for i, fl := range model.Flavors {
		if fl == f {
			stream = uint64(i + 1)
		}
	}
	return rand.NewPCG(c.cfg.Seed, stream)
}
