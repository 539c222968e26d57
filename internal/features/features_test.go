package features

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvarkless/sc2-replay-converter/internal/errors"
	"github.com/dvarkless/sc2-replay-converter/internal/model"
	"github.com/dvarkless/sc2-replay-converter/internal/reference"
)

func testTables() (*reference.Taxonomy, *reference.SupplyTable) {
	tax := reference.NewTaxonomy([]reference.Entity{
		{Name: "Drone", Race: model.Zerg, Category: model.CategoryUnit},
		{Name: "Zergling", Race: model.Zerg, Category: model.CategoryUnit},
		{Name: "Hatchery", Race: model.Zerg, Category: model.CategoryBuilding},
		{Name: "zerglingmovementspeed", Race: model.Zerg, Category: model.CategoryUpgrade},
		{Name: "SCV", Race: model.Terran, Category: model.CategoryUnit},
		{Name: "Marine", Race: model.Terran, Category: model.CategoryUnit},
		{Name: "Barracks", Race: model.Terran, Category: model.CategoryBuilding},
	})
	supply := reference.NewSupplyTable(map[string]float64{
		"drone":    1,
		"zergling": 0.5,
		"scv":      1,
		"marine":   1,
	})
	return tax, supply
}

func zvtMatch() model.MatchSummary {
	return model.MatchSummary{
		MatchID:       1,
		DurationTicks: 1920,
		A:             model.PlayerSummary{Race: model.Zerg, IsWin: true, League: 4},
		B:             model.PlayerSummary{Race: model.Terran, IsWin: false, League: 4},
	}
}

func TestReorganizerSymmetry(t *testing.T) {
	m := zvtMatch()

	zvt := Reorganizer{Matchup: model.Matchup{Player: model.Zerg, Enemy: model.Terran}, MinLeague: 3}
	got := zvt.Orderings(m)
	assert.True(t, got[0].Accepted)
	assert.Equal(t, model.SideA, got[0].Player)
	assert.Equal(t, model.SideB, got[0].Enemy())
	assert.True(t, got[0].IsWin)
	assert.False(t, got[1].Accepted)

	tvz := Reorganizer{Matchup: model.Matchup{Player: model.Terran, Enemy: model.Zerg}, MinLeague: 3}
	got = tvz.Orderings(m)
	assert.False(t, got[0].Accepted)
	assert.True(t, got[1].Accepted)
	assert.Equal(t, model.SideB, got[1].Player)
	assert.False(t, got[1].IsWin)
}

func TestReorganizerMirrorAcceptsBoth(t *testing.T) {
	m := zvtMatch()
	m.B.Race = model.Zerg
	r := Reorganizer{Matchup: model.Matchup{Player: model.Zerg, Enemy: model.Zerg}}
	got := r.Orderings(m)
	assert.True(t, got[0].Accepted)
	assert.True(t, got[1].Accepted)
}

func TestReorganizerLeague(t *testing.T) {
	zvt := model.Matchup{Player: model.Zerg, Enemy: model.Terran}
	cases := []struct {
		name      string
		league    int
		minLeague int
		unranked  bool
		want      bool
	}{
		{"unranked included", 0, 3, true, true},
		{"unranked excluded", 0, 3, false, false},
		{"below minimum", 2, 3, true, false},
		{"at minimum", 3, 3, false, true},
		{"above minimum", 6, 3, false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := zvtMatch()
			m.A.League = tc.league
			r := Reorganizer{Matchup: zvt, MinLeague: tc.minLeague, IncludeUnranked: tc.unranked}
			assert.Equal(t, tc.want, r.Evaluate(m, model.SideA).Accepted)
		})
	}
}

func snapshot(tick int, counts map[string]float64) model.Snapshot {
	return model.Snapshot{MatchID: 1, Tick: tick, Counts: counts}
}

func TestNormalizeUnits(t *testing.T) {
	tax, supply := testTables()
	n := NewNormalizer(tax, supply)

	snap := snapshot(480, map[string]float64{
		"player_1_unit_drone":                 12,
		"player_1_unit_Zergling":              8,
		"player_1_building_hatchery":          2,
		"player_1_special_minerals_available": 350,
		"player_2_unit_scv":                   14,
		"player_2_unit_marine":                3,
	})

	got := n.Normalize(Filter{Side: model.SideA, Race: model.Zerg, Units: true}, snap)
	assert.Equal(t, model.FeatureVector{"drone": 12, "zergling": 4}, got)

	got = n.Normalize(Filter{Side: model.SideB, Race: model.Terran, Units: true}, snap)
	assert.Equal(t, model.FeatureVector{"scv": 14, "marine": 3}, got)
}

func TestNormalizeToggles(t *testing.T) {
	tax, supply := testTables()
	n := NewNormalizer(tax, supply)
	snap := snapshot(960, map[string]float64{
		"player_1_unit_drone":                    20,
		"player_1_building_hatchery":             3,
		"player_1_upgrade_zerglingmovementspeed": 1,
		"player_1_special_minerals_available":    125,
		"player_1_special_vespene_available":     40,
	})

	got := n.Normalize(Filter{Side: model.SideA, Race: model.Zerg, Buildings: true, Special: true}, snap)
	assert.Equal(t, model.FeatureVector{
		"hatchery":           3,
		"minerals_available": 125,
		"vespene_available":  40,
	}, got)

	got = n.Normalize(Filter{Side: model.SideA, Race: model.Zerg, Upgrades: true, Tick: true}, snap)
	assert.Equal(t, model.FeatureVector{"zerglingmovementspeed": 1, TickKey: 960}, got)

	got = n.Normalize(Filter{Side: model.SideA, Race: model.Terran, Units: true}, snap)
	assert.Equal(t, model.FeatureVector{"scv": 0, "marine": 0}, got, "zerg entities are not terran entities")
}

func TestNormalizeFillsEntitiesNotBuiltYet(t *testing.T) {
	tax, supply := testTables()
	n := NewNormalizer(tax, supply)
	f := Filter{Side: model.SideA, Race: model.Zerg, Units: true, Special: true}

	early := n.Normalize(f, snapshot(480, map[string]float64{"player_1_unit_drone": 14}))
	assert.Equal(t, model.FeatureVector{
		"drone":              14,
		"zergling":           0,
		"minerals_available": 0,
		"vespene_available":  0,
	}, early)

	late := n.Normalize(f, snapshot(960, map[string]float64{
		"player_1_unit_drone":    20,
		"player_1_unit_zergling": 12,
	}))
	assert.ElementsMatch(t, keysOf(early), keysOf(late))

	r, err := NewReducer("avg", supply)
	require.NoError(t, err)
	got, err := r.Diff(early, late)
	require.NoError(t, err, "a unit appearing between start and end is a regular delta")
	assert.Positive(t, got["zergling"])
}

func keysOf(v model.FeatureVector) []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	return keys
}

func TestWhitelistDoesNotLeakBetweenCalls(t *testing.T) {
	tax, supply := testTables()
	n := NewNormalizer(tax, supply)

	w := n.Whitelist(Filter{Race: model.Zerg, Units: true, Special: true})
	assert.Contains(t, w, "minerals_available")

	w = n.Whitelist(Filter{Race: model.Zerg, Units: true})
	assert.NotContains(t, w, "minerals_available")
	assert.Len(t, w, 2)
}

func TestParseReducer(t *testing.T) {
	k, err := ParseReducer("SoftMax")
	require.NoError(t, err)
	assert.Equal(t, ReducerSoftmax, k)

	_, err = NewReducer("median", nil)
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
}

func TestAvgReducer(t *testing.T) {
	_, supply := testTables()
	r, err := NewReducer("avg", supply)
	require.NoError(t, err)

	got := r.Single(model.FeatureVector{"drone": 6, "zergling": 2, "hatchery": 3, "marine": -4})
	assert.InDelta(t, 0.75, got["drone"], 1e-9)
	assert.InDelta(t, 0.25, got["zergling"], 1e-9)
	assert.InDelta(t, 0.375, got["hatchery"], 1e-9, "non-supply keys share the denominator")
	assert.InDelta(t, 0.0, got["marine"], 1e-9, "negatives are clamped")
}

func TestAvgReducerSmallTotalNotAmplified(t *testing.T) {
	_, supply := testTables()
	r, err := NewReducer("avg", supply)
	require.NoError(t, err)

	got := r.Single(model.FeatureVector{"drone": 0.5, "hatchery": 3})
	assert.InDelta(t, 0.5, got["drone"], 1e-9)
	assert.InDelta(t, 1.0, got["hatchery"], 1e-9, "capped at one")
}

func TestAvgReducerBounds(t *testing.T) {
	_, supply := testTables()
	r, err := NewReducer("avg", supply)
	require.NoError(t, err)

	inputs := []model.FeatureVector{
		{},
		{"drone": 0},
		{"drone": 100, "zergling": 40, "scv": 1, "marine": 7},
		{"drone": 0.1, "zergling": 0.2},
		{"hatchery": 12, "minerals_available": 5000},
	}
	for _, in := range inputs {
		got := r.Single(in)
		sum := 0.0
		for k, v := range got {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
			if supply.Has(k) {
				sum += v
			}
		}
		assert.LessOrEqual(t, sum, 1.0+1e-9)
	}
}

func TestSoftmaxReducer(t *testing.T) {
	_, supply := testTables()
	r, err := NewReducer("softmax", supply)
	require.NoError(t, err)

	got := r.Single(model.FeatureVector{"drone": 2, "zergling": 1, "scv": -3, "hatchery": 7})
	sum := got["drone"] + got["zergling"] + got["scv"]
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Greater(t, got["drone"], got["zergling"])
	assert.InDelta(t, math.Exp(2)/(math.Exp(2)+math.Exp(1)+1), got["drone"], 1e-9)
	assert.InDelta(t, 1.0, got["hatchery"], 1e-9, "non-supply key is divided by the same denominator and capped")
}

func TestSoftmaxBounds(t *testing.T) {
	_, supply := testTables()
	r, err := NewReducer("softmax", supply)
	require.NoError(t, err)

	got := r.Single(model.FeatureVector{"drone": 4, "zergling": 6, "hatchery": 1, "barracks": 7})
	for k, v := range got {
		assert.GreaterOrEqual(t, v, 0.0, k)
		assert.LessOrEqual(t, v, 1.0, k)
	}
	denom := math.Exp(4) + math.Exp(6)
	assert.InDelta(t, math.Exp(1)/denom, got["hatchery"], 1e-9)
}

func TestSoftmaxLargeValues(t *testing.T) {
	_, supply := testTables()
	r, err := NewReducer("softmax", supply)
	require.NoError(t, err)

	got := r.Single(model.FeatureVector{"drone": 1000, "zergling": 1000})
	assert.InDelta(t, 0.5, got["drone"], 1e-9)
	assert.InDelta(t, 0.5, got["zergling"], 1e-9)
}

func TestSoftmaxEmptySubset(t *testing.T) {
	_, supply := testTables()
	r, err := NewReducer("softmax", supply)
	require.NoError(t, err)

	got := r.Single(model.FeatureVector{"hatchery": 2, "barracks": -1})
	assert.Equal(t, model.FeatureVector{"hatchery": 1, "barracks": 1}, got)
}

func TestDiff(t *testing.T) {
	_, supply := testTables()
	r, err := NewReducer("avg", supply)
	require.NoError(t, err)

	start := model.FeatureVector{"drone": 10, "zergling": 4}
	end := model.FeatureVector{"drone": 16, "zergling": 2}
	got, err := r.Diff(start, end)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, got["drone"], 1e-9, "6 over a denominator of 6")
	assert.InDelta(t, 0.0, got["zergling"], 1e-9, "losses clamp to zero")
}

func TestDiffMissingKey(t *testing.T) {
	_, supply := testTables()
	r, err := NewReducer("avg", supply)
	require.NoError(t, err)

	_, err = r.Diff(model.FeatureVector{"drone": 1}, model.FeatureVector{"drone": 2, "zergling": 2})
	require.Error(t, err)
	assert.True(t, errors.IsDataConsistency(err))
	assert.Contains(t, errors.FlattenDetails(err), "key=zergling")
}

func TestWinProbLabel(t *testing.T) {
	l := WinProbLabeler{Delay: DefaultWinProbDelay}

	prev := 0.0
	for _, final := range []int{0, 480, 960, 1440, 1920} {
		got, err := l.Label(final, true, 1920)
		require.NoError(t, err)
		assert.Greater(t, got, prev)
		prev = got
	}
	top, _ := l.Label(1920, true, 1920)
	assert.InDelta(t, 1/(1+math.Exp(-5)), top, 1e-12)

	for _, final := range []int{0, 960, 1920} {
		got, err := l.Label(final, false, 1920)
		require.NoError(t, err)
		assert.Equal(t, 0.5, got)
	}
}

func TestWinProbZeroDuration(t *testing.T) {
	_, err := WinProbLabeler{Delay: 5}.Label(480, true, 0)
	require.Error(t, err)
	assert.True(t, errors.IsDataConsistency(err))
}
