package loader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvarkless/sc2-replay-converter/internal/errors"
	"github.com/dvarkless/sc2-replay-converter/internal/model"
	"github.com/dvarkless/sc2-replay-converter/internal/storage"
)

var zvt = model.Matchup{Player: model.Zerg, Enemy: model.Terran}

func openMemDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestUploadCreatesTableLazily(t *testing.T) {
	db := openMemDB(t)
	ctx := context.Background()

	l, err := New(ctx, db, zvt, model.FlavorComp)
	require.NoError(t, err)
	assert.Equal(t, "zvt_comp", l.Table())
	assert.False(t, l.Created())

	exists, err := db.TableExists(ctx, "zvt_comp")
	require.NoError(t, err)
	assert.False(t, exists, "no table before the first row")

	wrote, err := l.Upload(ctx, 1, 480,
		model.FeatureVector{"Hatchery": 1, "minerals_available": 50},
		model.FeatureVector{"marine": 4},
		model.FeatureVector{"drone": 0.5},
	)
	require.NoError(t, err)
	assert.True(t, wrote)
	assert.True(t, l.Created())

	cols, err := db.DatasetColumns(ctx, "zvt_comp")
	require.NoError(t, err)
	assert.Equal(t, []string{"match_id", "tick", "e_marine", "out_drone", "p_hatchery", "p_minerals_available"}, cols)
}

func TestUploadIdempotent(t *testing.T) {
	db := openMemDB(t)
	ctx := context.Background()
	l, err := New(ctx, db, zvt, model.FlavorWinProb)
	require.NoError(t, err)

	p := model.FeatureVector{"hatchery": 1}
	out := model.FeatureVector{"is_win": 0.7}
	for range 2 {
		_, err := l.Upload(ctx, 5, 960, p, nil, out)
		require.NoError(t, err)
	}
	n, err := db.CountRows(ctx, "zvt_winprob")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	ok, err := l.MatchExists(ctx, 5)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = l.TickExists(ctx, 5, 976)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewPicksUpExistingTable(t *testing.T) {
	db := openMemDB(t)
	ctx := context.Background()

	first, err := New(ctx, db, zvt, model.FlavorComp)
	require.NoError(t, err)
	_, err = first.Upload(ctx, 1, 16, model.FeatureVector{"hatchery": 1}, nil, model.FeatureVector{"drone": 1})
	require.NoError(t, err)

	second, err := New(ctx, db, zvt, model.FlavorComp)
	require.NoError(t, err)
	assert.True(t, second.Created())
	ok, err := second.MatchExists(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = second.Upload(ctx, 2, 16, model.FeatureVector{"HATCHERY": 2}, nil, nil)
	require.NoError(t, err, "casing differences map onto the same column")
}

func TestUploadUnknownColumn(t *testing.T) {
	db := openMemDB(t)
	ctx := context.Background()
	l, err := New(ctx, db, zvt, model.FlavorComp)
	require.NoError(t, err)

	_, err = l.Upload(ctx, 1, 16, model.FeatureVector{"hatchery": 1}, nil, nil)
	require.NoError(t, err)

	_, err = l.Upload(ctx, 1, 32, model.FeatureVector{"hatchery": 1, "lair": 1}, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.IsDataConsistency(err))
	assert.Contains(t, errors.FlattenDetails(err), "key=p_lair")
}

func TestUploadCollidingKeys(t *testing.T) {
	db := openMemDB(t)
	l, err := New(context.Background(), db, zvt, model.FlavorComp)
	require.NoError(t, err)

	_, err = l.Upload(context.Background(), 1, 16, model.FeatureVector{"Drone": 1, "drone": 2}, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.IsDataConsistency(err))
}

func TestColumnName(t *testing.T) {
	assert.Equal(t, "p_siegetank", ColumnName(PrefixPlayer, "SiegeTank"))
	assert.Equal(t, "e_siege_tank", ColumnName(PrefixEnemy, "Siege Tank"))
	assert.Equal(t, "out_is_win", ColumnName(PrefixOut, "is_win"))
}

func TestUploadMatchChecksEveryRowFirst(t *testing.T) {
	db := openMemDB(t)
	ctx := context.Background()
	l, err := New(ctx, db, zvt, model.FlavorComp)
	require.NoError(t, err)

	rows := []Row{
		{Tick: 16, Player: model.FeatureVector{"drone": 6}, Out: model.FeatureVector{"drone": 1}},
		{Tick: 32, Player: model.FeatureVector{"drone": 7}, Out: model.FeatureVector{"drone": 1}},
		{Tick: 48, Player: model.FeatureVector{"drone": 8, "lair": 1}, Out: model.FeatureVector{"drone": 1}},
	}
	_, err = l.UploadMatch(ctx, 9, rows)
	require.Error(t, err)
	assert.True(t, errors.IsDataConsistency(err))
	assert.Contains(t, errors.FlattenDetails(err), "tick=48")

	ok, err := l.MatchExists(ctx, 9)
	require.NoError(t, err)
	assert.False(t, ok, "nothing of a rejected match is written")

	n, err := l.UploadMatch(ctx, 9, rows[:2])
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = l.UploadMatch(ctx, 9, rows[:2])
	require.NoError(t, err)
	assert.Zero(t, n, "loaded rows are not written twice")
}
