package reference

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvarkless/sc2-replay-converter/internal/model"
)

const taxonomyCSV = `name,race,type
Drone,Zerg,Unit
Zergling,Zerg,Unit
Hatchery,Zerg,Building
SpawningPool,Zerg,Building
zerglingmovementspeed,Zerg,Upgrade
SCV,Terran,Unit
Marine,Terran,Unit
Barracks,Terran,Building
MineralField,Neutral,Unit
`

const supplyCSV = `name,supply
Drone,1
Zergling,0.5
SCV,1
Marine,1
`

func TestLoadTaxonomy(t *testing.T) {
	tax, err := LoadTaxonomy(strings.NewReader(taxonomyCSV))
	require.NoError(t, err)

	assert.Equal(t, 8, tax.Len(), "neutral row is skipped")

	units := tax.Names(model.Zerg, model.CategoryUnit)
	assert.Len(t, units, 2)
	assert.Contains(t, units, "drone")
	assert.Contains(t, units, "zergling")

	zergAll := tax.Names(model.Zerg, model.CategoryUnit, model.CategoryBuilding, model.CategoryUpgrade)
	assert.Len(t, zergAll, 5)

	cat, ok := tax.Category(model.Terran, "BARRACKS")
	require.True(t, ok)
	assert.Equal(t, model.CategoryBuilding, cat)

	_, ok = tax.Category(model.Zerg, "marine")
	assert.False(t, ok)
}

func TestNamesReturnsIndependentSet(t *testing.T) {
	tax, err := LoadTaxonomy(strings.NewReader(taxonomyCSV))
	require.NoError(t, err)

	set := tax.Names(model.Zerg, model.CategoryUnit)
	delete(set, "drone")
	assert.Contains(t, tax.Names(model.Zerg, model.CategoryUnit), "drone")
}

func TestLoadSupply(t *testing.T) {
	sup, err := LoadSupply(strings.NewReader(supplyCSV))
	require.NoError(t, err)

	assert.Equal(t, 4, sup.Len())
	assert.InDelta(t, 0.5, sup.Weight("zergling"), 1e-9)
	assert.InDelta(t, 0.5, sup.Weight("Zergling"), 1e-9)
	assert.InDelta(t, 1.0, sup.Weight("hatchery"), 1e-9, "unlisted entity weighs 1")
	assert.True(t, sup.Has("marine"))
	assert.False(t, sup.Has("barracks"))
}

func TestLoadTaxonomyMissingColumn(t *testing.T) {
	_, err := LoadTaxonomy(strings.NewReader("name,race\nDrone,Zerg\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing column "type"`)
}
