package pipeline

import (
	"github.com/dvarkless/sc2-replay-converter/internal/errors"
	"github.com/dvarkless/sc2-replay-converter/internal/features"
	"github.com/dvarkless/sc2-replay-converter/internal/model"
)

// OutIsWin is the label column of the win-probability dataset.
const OutIsWin = "is_win"

// sample is everything a flavor sees when assembling one row.
type sample struct {
	match    model.MatchSummary
	ordering features.Ordering
	point    model.SampledPoint
	start    model.Snapshot
	end      model.Snapshot // zero unless the flavor requires a horizon
}

// assembler is the per-flavor feature policy.
type assembler interface {
	steps() []Step
	requireHorizon() bool
	player(p *Pipeline, s sample) model.FeatureVector
	enemy(p *Pipeline, s sample) model.FeatureVector
	out(p *Pipeline, s sample) (model.FeatureVector, error)
}

func assemblerFor(f model.Flavor) (assembler, error) {
	switch f {
	case model.FlavorComp:
		return compAssembler{}, nil
	case model.FlavorWinProb:
		return winProbAssembler{}, nil
	case model.FlavorEnemyComp:
		return enemyCompAssembler{}, nil
	}
	return nil, errors.Config("unknown flavor %q", f)
}

func playerFilter(p *Pipeline, s sample) features.Filter {
	return features.Filter{Side: s.ordering.Player, Race: p.matchup.Player}
}

func enemyFilter(p *Pipeline, s sample) features.Filter {
	return features.Filter{Side: s.ordering.Enemy(), Race: p.matchup.Enemy}
}

// compAssembler predicts how the player's army changes over the horizon:
// inputs are the player's full state and the enemy's army, the output is the
// reduced growth of each player unit.
type compAssembler struct{}

func (compAssembler) steps() []Step {
	return []Step{StepExtractor, StepReorganizer, StepSampler, StepNormalizer, StepReducer, StepLoader}
}

func (compAssembler) requireHorizon() bool { return true }

func (compAssembler) player(p *Pipeline, s sample) model.FeatureVector {
	f := playerFilter(p, s)
	f.Units, f.Buildings, f.Special = true, true, true
	return p.normalizer.Normalize(f, s.start)
}

func (compAssembler) enemy(p *Pipeline, s sample) model.FeatureVector {
	f := enemyFilter(p, s)
	f.Units = true
	return p.normalizer.Normalize(f, s.start)
}

func (compAssembler) out(p *Pipeline, s sample) (model.FeatureVector, error) {
	f := playerFilter(p, s)
	f.Units = true
	before := p.normalizer.Normalize(f, s.start)
	after := p.normalizer.Normalize(f, s.end)
	return p.reducer.Diff(before, after)
}

// winProbAssembler labels a position with how likely the player is to win.
type winProbAssembler struct{}

func (winProbAssembler) steps() []Step {
	return []Step{StepExtractor, StepReorganizer, StepSampler, StepNormalizer, StepLabeler, StepLoader}
}

func (winProbAssembler) requireHorizon() bool { return true }

func (winProbAssembler) player(p *Pipeline, s sample) model.FeatureVector {
	f := playerFilter(p, s)
	f.Units, f.Buildings, f.Upgrades, f.Special = true, true, true, true
	return p.normalizer.Normalize(f, s.start)
}

func (winProbAssembler) enemy(p *Pipeline, s sample) model.FeatureVector {
	f := enemyFilter(p, s)
	f.Units, f.Buildings = true, true
	return p.normalizer.Normalize(f, s.start)
}

func (winProbAssembler) out(p *Pipeline, s sample) (model.FeatureVector, error) {
	label, err := p.labeler.Label(s.point.End, s.ordering.IsWin, s.match.DurationTicks)
	if err != nil {
		return nil, err
	}
	return model.FeatureVector{OutIsWin: label}, nil
}

// enemyCompAssembler infers the enemy's army from the buildings they show.
type enemyCompAssembler struct{}

func (enemyCompAssembler) steps() []Step {
	return []Step{StepExtractor, StepReorganizer, StepSampler, StepNormalizer, StepReducer, StepLoader}
}

func (enemyCompAssembler) requireHorizon() bool { return false }

func (enemyCompAssembler) player(*Pipeline, sample) model.FeatureVector {
	return model.FeatureVector{}
}

func (enemyCompAssembler) enemy(p *Pipeline, s sample) model.FeatureVector {
	f := enemyFilter(p, s)
	f.Buildings = true
	return p.normalizer.Normalize(f, s.start)
}

func (enemyCompAssembler) out(p *Pipeline, s sample) (model.FeatureVector, error) {
	f := enemyFilter(p, s)
	f.Units, f.Buildings = true, true
	return p.reducer.Single(p.normalizer.Normalize(f, s.start)), nil
}
