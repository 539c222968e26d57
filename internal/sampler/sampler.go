// Package sampler picks the ticks of a match that become dataset rows.
package sampler

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/dvarkless/sc2-replay-converter/internal/errors"
	"github.com/dvarkless/sc2-replay-converter/internal/model"
)

// Config describes one sampler.
type Config struct {
	MeanStepTicks  int     // mean distance between two samples
	Sigma          float64 // standard deviation of a step, in ticks
	TickStep       int     // stored ticks are multiples of this
	HorizonTicks   int     // distance to the paired future tick
	RequireHorizon bool    // pair every sample with a future tick
}

// TickSampler walks a match with Gaussian steps.
type TickSampler struct {
	cfg  Config
	step distuv.Normal
}

// New validates cfg and builds a sampler drawing from src. A nil src seeds
// a PCG from the runtime's entropy.
func New(cfg Config, src rand.Source) (*TickSampler, error) {
	if cfg.TickStep <= 0 {
		return nil, errors.Config("tick step must be positive, got %d", cfg.TickStep)
	}
	if cfg.MeanStepTicks <= 0 {
		return nil, errors.Config("mean step must be positive, got %d ticks", cfg.MeanStepTicks)
	}
	if cfg.Sigma < 0 {
		return nil, errors.Config("sigma must not be negative, got %g", cfg.Sigma)
	}
	if cfg.RequireHorizon && cfg.HorizonTicks <= 0 {
		return nil, errors.Config("horizon must be positive when required, got %d ticks", cfg.HorizonTicks)
	}
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &TickSampler{
		cfg:  cfg,
		step: distuv.Normal{Mu: float64(cfg.MeanStepTicks), Sigma: cfg.Sigma, Src: src},
	}, nil
}

// Config returns the sampler's configuration.
func (s *TickSampler) Config() Config { return s.cfg }

// Sample returns the sample points of a match lasting durationTicks. Every
// call draws a fresh sequence.
func (s *TickSampler) Sample(durationTicks int) []model.SampledPoint {
	starts := s.startTicks(durationTicks)
	points := make([]model.SampledPoint, len(starts))
	end := s.align(durationTicks)
	for i, t := range starts {
		points[i] = model.SampledPoint{Start: t}
		if s.cfg.RequireHorizon {
			points[i].End = min(s.align(t+s.cfg.HorizonTicks), end)
			points[i].HasEnd = true
		}
	}
	return points
}

func (s *TickSampler) startTicks(durationTicks int) []int {
	limit := s.align(durationTicks)
	if s.cfg.RequireHorizon {
		limit -= s.cfg.HorizonTicks
	}

	var ticks []int
	tick := 0
	for {
		tick += s.nextStep()
		if tick >= limit {
			break
		}
		ticks = append(ticks, tick)
	}
	if len(ticks) == 0 {
		return []int{s.align(durationTicks / 2)}
	}
	return ticks
}

// nextStep draws one aligned step, at least one tick step long.
func (s *TickSampler) nextStep() int {
	d := s.align(int(s.step.Rand()))
	if d <= 0 {
		return s.cfg.TickStep
	}
	return d
}

func (s *TickSampler) align(tick int) int {
	if tick < 0 {
		return 0
	}
	return tick / s.cfg.TickStep * s.cfg.TickStep
}
