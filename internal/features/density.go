package features

import (
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/dvarkless/sc2-replay-converter/internal/errors"
	"github.com/dvarkless/sc2-replay-converter/internal/model"
	"github.com/dvarkless/sc2-replay-converter/internal/reference"
)

// ReducerKind names a density reduction.
type ReducerKind string

const (
	ReducerAvg     ReducerKind = "avg"
	ReducerSoftmax ReducerKind = "softmax"
)

func ParseReducer(s string) (ReducerKind, error) {
	switch k := ReducerKind(strings.ToLower(strings.TrimSpace(s))); k {
	case ReducerAvg, ReducerSoftmax:
		return k, nil
	}
	return "", errors.Config("invalid reducer %q, want avg or softmax", s)
}

// Reducer turns weighted counts into a bounded share-of-total vector. Only
// entities listed in the supply table take part in the denominator.
type Reducer struct {
	kind   ReducerKind
	supply *reference.SupplyTable
}

func NewReducer(kind string, supply *reference.SupplyTable) (*Reducer, error) {
	k, err := ParseReducer(kind)
	if err != nil {
		return nil, err
	}
	return &Reducer{kind: k, supply: supply}, nil
}

func (r *Reducer) Kind() ReducerKind { return r.kind }

// Single clamps v to non-negative values and reduces it.
func (r *Reducer) Single(v model.FeatureVector) model.FeatureVector {
	return r.reduce(clamp(v))
}

// Diff reduces end - start over the keys of end. A key of end missing from
// start means the two snapshots disagree on the schema.
func (r *Reducer) Diff(start, end model.FeatureVector) (model.FeatureVector, error) {
	delta := make(model.FeatureVector, len(end))
	for k, e := range end {
		s, ok := start[k]
		if !ok {
			return nil, errors.Inconsistent(k, "key %q missing from start vector", k)
		}
		delta[k] = e - s
	}
	return r.reduce(clamp(delta)), nil
}

func (r *Reducer) reduce(v model.FeatureVector) model.FeatureVector {
	_, vals := r.weighted(v)
	out := make(model.FeatureVector, len(v))

	switch r.kind {
	case ReducerSoftmax:
		// log of the denominator; an empty subset divides by 1
		lse := 0.0
		if len(vals) > 0 {
			lse = floats.LogSumExp(vals)
		}
		for k, x := range v {
			out[k] = math.Min(math.Exp(x-lse), 1)
		}
	default:
		denom := math.Max(floats.Sum(vals), 1)
		for k, x := range v {
			out[k] = math.Min(x/denom, 1)
		}
	}
	return out
}

// weighted returns the keys of v found in the supply table with their values.
func (r *Reducer) weighted(v model.FeatureVector) ([]string, []float64) {
	keys := make([]string, 0, len(v))
	vals := make([]float64, 0, len(v))
	for k, x := range v {
		if r.supply.Has(k) {
			keys = append(keys, k)
			vals = append(vals, x)
		}
	}
	return keys, vals
}

func clamp(v model.FeatureVector) model.FeatureVector {
	out := make(model.FeatureVector, len(v))
	for k, x := range v {
		out[k] = math.Max(x, 0)
	}
	return out
}
