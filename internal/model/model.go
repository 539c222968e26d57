package model

import (
	"fmt"
	"strings"

	"github.com/dvarkless/sc2-replay-converter/internal/errors"
)

// Race is a one-letter game race code.
type Race string

const (
	Zerg    Race = "z"
	Terran  Race = "t"
	Protoss Race = "p"
)

// Races lists every valid race in a stable order.
var Races = []Race{Zerg, Terran, Protoss}

// ParseRace accepts "z", "Z" or the full name ("Zerg").
func ParseRace(s string) (Race, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", errors.Config("empty race code")
	}
	switch r := Race(s[:1]); r {
	case Zerg, Terran, Protoss:
		if len(s) == 1 || s == r.Name() {
			return r, nil
		}
	}
	return "", errors.Config("invalid race %q, want one of z, t, p", s)
}

// Name is the lowercase full race name, as used by the entity taxonomy.
func (r Race) Name() string {
	switch r {
	case Zerg:
		return "zerg"
	case Terran:
		return "terran"
	case Protoss:
		return "protoss"
	default:
		return "?"
	}
}

// Flavor is one of the three dataset kinds.
type Flavor string

const (
	FlavorComp      Flavor = "comp"
	FlavorWinProb   Flavor = "winprob"
	FlavorEnemyComp Flavor = "enemycomp"
)

// Flavors lists every flavor in run order.
var Flavors = []Flavor{FlavorComp, FlavorWinProb, FlavorEnemyComp}

func ParseFlavor(s string) (Flavor, error) {
	switch f := Flavor(strings.ToLower(strings.TrimSpace(s))); f {
	case FlavorComp, FlavorWinProb, FlavorEnemyComp:
		return f, nil
	}
	return "", errors.Config("invalid flavor %q, want comp, winprob or enemycomp", s)
}

// Matchup is an ordered (player, enemy) race pair.
type Matchup struct {
	Player Race
	Enemy  Race
}

// ParseMatchup parses "ZvT" style strings, case-insensitively.
func ParseMatchup(s string) (Matchup, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(s)), "v")
	if len(parts) != 2 {
		return Matchup{}, errors.Config("invalid matchup %q, want e.g. ZvT", s)
	}
	p, err := ParseRace(parts[0])
	if err != nil {
		return Matchup{}, err
	}
	e, err := ParseRace(parts[1])
	if err != nil {
		return Matchup{}, err
	}
	return Matchup{Player: p, Enemy: e}, nil
}

// String renders the matchup as "ZvT".
func (m Matchup) String() string {
	return strings.ToUpper(string(m.Player)) + "v" + strings.ToUpper(string(m.Enemy))
}

// TableName is the dataset table for a matchup and flavor, e.g. "zvt_comp".
func TableName(m Matchup, f Flavor) string {
	return fmt.Sprintf("%sv%s_%s", m.Player, m.Enemy, f)
}

// Side names one of the two players of a stored match.
type Side string

const (
	SideA Side = "player_1"
	SideB Side = "player_2"
)

// Other returns the opposing side.
func (s Side) Other() Side {
	if s == SideA {
		return SideB
	}
	return SideA
}

// Category is the kind of entity a count refers to.
type Category string

const (
	CategoryUnit     Category = "unit"
	CategoryBuilding Category = "building"
	CategoryUpgrade  Category = "upgrade"
	CategorySpecial  Category = "special"
)

// ParseCategory maps taxonomy type names ("Unit", "building") to a Category.
func ParseCategory(s string) (Category, bool) {
	switch c := Category(strings.ToLower(strings.TrimSpace(s))); c {
	case CategoryUnit, CategoryBuilding, CategoryUpgrade, CategorySpecial:
		return c, true
	}
	return "", false
}

// ColumnName builds the stored snapshot key for one entity, e.g.
// "player_1_unit_drone".
func ColumnName(side Side, cat Category, entity string) string {
	return fmt.Sprintf("%s_%s_%s", side, cat, strings.ToLower(entity))
}

// PlayerSummary is what the store knows about one side of a match.
type PlayerSummary struct {
	Race   Race
	IsWin  bool
	League int // 0 = unranked
}

// MatchSummary is one stored match, immutable within a pipeline run.
type MatchSummary struct {
	MatchID       int64
	DurationTicks int
	A             PlayerSummary // side player_1
	B             PlayerSummary // side player_2
}

// Player returns the summary of the given side.
func (m MatchSummary) Player(s Side) PlayerSummary {
	if s == SideB {
		return m.B
	}
	return m.A
}

// Snapshot is the stored per-tick build order of both sides. Counts keys are
// stored column names (ColumnName).
type Snapshot struct {
	MatchID int64
	Tick    int
	Counts  map[string]float64
}

// SampledPoint is one sample tick, with its future tick when the flavor needs
// a horizon.
type SampledPoint struct {
	Start  int
	End    int
	HasEnd bool
}

// FeatureVector maps feature names to values.
type FeatureVector map[string]float64

// Clone returns an independent copy.
func (f FeatureVector) Clone() FeatureVector {
	out := make(FeatureVector, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}
