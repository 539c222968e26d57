// Package features turns stored build-order snapshots into dataset features:
// side selection, taxonomy filtering, supply weighting, density reduction and
// the win-probability label.
package features

import (
	"strings"

	"github.com/dvarkless/sc2-replay-converter/internal/model"
	"github.com/dvarkless/sc2-replay-converter/internal/reference"
)

// SpecialNames are the resource gauges kept when a filter includes specials.
var SpecialNames = []string{"minerals_available", "vespene_available"}

// TickKey is the feature name carrying the raw snapshot tick.
const TickKey = "tick"

var categoryPrefixes = []string{
	string(model.CategoryUnit) + "_",
	string(model.CategoryBuilding) + "_",
	string(model.CategoryUpgrade) + "_",
	string(model.CategorySpecial) + "_",
}

// Filter selects which columns of one side survive normalization.
type Filter struct {
	Side      model.Side
	Race      model.Race
	Units     bool
	Buildings bool
	Upgrades  bool
	Special   bool
	Tick      bool
}

// Normalizer filters snapshots against the taxonomy and weights counts by
// supply. It holds no per-call state and can be shared.
type Normalizer struct {
	taxonomy *reference.Taxonomy
	supply   *reference.SupplyTable
}

func NewNormalizer(tax *reference.Taxonomy, supply *reference.SupplyTable) *Normalizer {
	return &Normalizer{taxonomy: tax, supply: supply}
}

// Whitelist is the set of entity names f lets through.
func (n *Normalizer) Whitelist(f Filter) map[string]struct{} {
	var cats []model.Category
	if f.Units {
		cats = append(cats, model.CategoryUnit)
	}
	if f.Buildings {
		cats = append(cats, model.CategoryBuilding)
	}
	if f.Upgrades {
		cats = append(cats, model.CategoryUpgrade)
	}
	set := n.taxonomy.Names(f.Race, cats...)
	if f.Special {
		for _, s := range SpecialNames {
			set[s] = struct{}{}
		}
	}
	return set
}

// Normalize returns the weighted counts of f.Side in snap, keyed by bare
// entity name. Every whitelisted entity is present in the result.
func (n *Normalizer) Normalize(f Filter, snap model.Snapshot) model.FeatureVector {
	allowed := n.Whitelist(f)
	prefix := string(f.Side) + "_"

	out := make(model.FeatureVector)
	for key, val := range snap.Counts {
		key = strings.ToLower(key)
		name, ok := strings.CutPrefix(key, prefix)
		if !ok {
			continue
		}
		name = stripCategory(name)
		if _, ok := allowed[name]; !ok {
			continue
		}
		out[name] = val * n.supply.Weight(name)
	}
	// Build orders are stored sparse; an entity not built yet counts as 0 so
	// every vector of one filter has the same keys.
	for name := range allowed {
		if _, ok := out[name]; !ok {
			out[name] = 0
		}
	}
	if f.Tick {
		out[TickKey] = float64(snap.Tick)
	}
	return out
}

func stripCategory(name string) string {
	for _, p := range categoryPrefixes {
		if rest, ok := strings.CutPrefix(name, p); ok {
			return rest
		}
	}
	return name
}
