package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvarkless/sc2-replay-converter/internal/errors"
	"github.com/dvarkless/sc2-replay-converter/internal/model"
)

func TestBuildTargets(t *testing.T) {
	defer func(m []string, f string) { buildMatchups, buildFlavor = m, f }(buildMatchups, buildFlavor)

	buildMatchups, buildFlavor = []string{"all"}, "all"
	matchups, flavors, err := buildTargets()
	require.NoError(t, err)
	assert.Len(t, matchups, 9)
	assert.Contains(t, matchups, "ZvT")
	assert.Contains(t, matchups, "PvP")
	assert.Equal(t, model.Flavors, flavors)

	buildMatchups, buildFlavor = []string{"ZvT", "tvp"}, "winprob"
	matchups, flavors, err = buildTargets()
	require.NoError(t, err)
	assert.Equal(t, []string{"ZvT", "tvp"}, matchups)
	assert.Equal(t, []model.Flavor{model.FlavorWinProb}, flavors)

	buildMatchups, buildFlavor = []string{"ZvX"}, "comp"
	_, _, err = buildTargets()
	assert.True(t, errors.IsConfig(err))

	buildMatchups, buildFlavor = []string{"ZvT"}, "macro"
	_, _, err = buildTargets()
	assert.True(t, errors.IsConfig(err))

	buildMatchups, buildFlavor = nil, "comp"
	_, _, err = buildTargets()
	assert.True(t, errors.IsConfig(err))
}

func TestIngestFilters(t *testing.T) {
	defer func() { ingestLadder, ingestMatchup, ingestHasRace, ingestMinLeague = false, "", "", 0 }()

	set, err := ingestFilters()
	require.NoError(t, err)
	assert.Nil(t, set)

	ingestLadder, ingestMatchup, ingestMinLeague = true, "ZvT", 3
	set, err = ingestFilters()
	require.NoError(t, err)
	assert.Equal(t, 3, set.Len())

	ingestHasRace = "x"
	_, err = ingestFilters()
	assert.True(t, errors.IsConfig(err))
}

func TestCheckDatasetTable(t *testing.T) {
	require.NoError(t, checkDatasetTable("zvt_comp"))

	err := checkDatasetTable("game_info")
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
	assert.Contains(t, errors.FlattenHints(err), "zvt_comp")
}
