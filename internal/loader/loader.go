// Package loader writes feature rows into a per-matchup, per-flavor dataset
// table, creating it from the first row it sees.
package loader

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/dvarkless/sc2-replay-converter/internal/errors"
	"github.com/dvarkless/sc2-replay-converter/internal/model"
	"github.com/dvarkless/sc2-replay-converter/internal/storage"
)

// Column prefixes of the three feature groups.
const (
	PrefixPlayer = "p_"
	PrefixEnemy  = "e_"
	PrefixOut    = "out_"
)

// Store is the part of storage the loader writes through.
type Store interface {
	TableExists(ctx context.Context, table string) (bool, error)
	DatasetColumns(ctx context.Context, table string) ([]string, error)
	CreateDatasetTable(ctx context.Context, table string, columns []string) error
	InsertDatasetRows(ctx context.Context, table string, rows []storage.DatasetRow) (int, error)
	DatasetMatchExists(ctx context.Context, table string, matchID int64) (bool, error)
	DatasetTickExists(ctx context.Context, table string, matchID int64, tick int) (bool, error)
}

// Loader owns one dataset table for its whole lifetime.
type Loader struct {
	store   Store
	table   string
	columns map[string]struct{} // nil until the table exists
}

// New binds a loader to the table of matchup and flavor and picks up its
// columns if a previous run already created it.
func New(ctx context.Context, store Store, m model.Matchup, f model.Flavor) (*Loader, error) {
	l := &Loader{store: store, table: model.TableName(m, f)}
	ok, err := store.TableExists(ctx, l.table)
	if err != nil {
		return nil, errors.Wrapf(err, "check table %s", l.table)
	}
	if ok {
		cols, err := store.DatasetColumns(ctx, l.table)
		if err != nil {
			return nil, errors.Wrapf(err, "columns of %s", l.table)
		}
		l.columns = make(map[string]struct{}, len(cols))
		for _, c := range cols {
			l.columns[c] = struct{}{}
		}
	}
	return l, nil
}

// Table is the backing table name.
func (l *Loader) Table() string { return l.table }

// Created reports whether the backing table exists yet.
func (l *Loader) Created() bool { return l.columns != nil }

// MatchExists reports whether any row of the match has been loaded.
func (l *Loader) MatchExists(ctx context.Context, matchID int64) (bool, error) {
	if !l.Created() {
		return false, nil
	}
	return l.store.DatasetMatchExists(ctx, l.table, matchID)
}

// TickExists reports whether the (match, tick) row has been loaded.
func (l *Loader) TickExists(ctx context.Context, matchID int64, tick int) (bool, error) {
	if !l.Created() {
		return false, nil
	}
	return l.store.DatasetTickExists(ctx, l.table, matchID, tick)
}

// Row is one sample of a match before its features get column prefixes.
type Row struct {
	Tick               int
	Player, Enemy, Out model.FeatureVector
}

// Upload writes one row and reports whether it was written. See UploadMatch.
func (l *Loader) Upload(ctx context.Context, matchID int64, tick int, player, enemy, out model.FeatureVector) (bool, error) {
	n, err := l.UploadMatch(ctx, matchID, []Row{{Tick: tick, Player: player, Enemy: enemy, Out: out}})
	return n > 0, err
}

// UploadMatch writes every row of a match in one transaction, so a match is
// either fully loaded or absent. All rows are checked before anything is
// written. The first upload creates the table from the first row's columns;
// later rows may leave columns out (stored as NULL) but may not add new ones.
// It returns the number of rows written.
func (l *Loader) UploadMatch(ctx context.Context, matchID int64, rows []Row) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	batch := make([]storage.DatasetRow, len(rows))
	for i, r := range rows {
		vals, err := columns(matchID, r)
		if err != nil {
			return 0, err
		}
		batch[i] = storage.DatasetRow{MatchID: matchID, Tick: r.Tick, Values: vals}
	}

	if !l.Created() {
		cols := make([]string, 0, len(batch[0].Values))
		for c := range batch[0].Values {
			cols = append(cols, c)
		}
		sort.Strings(cols)
		if err := l.store.CreateDatasetTable(ctx, l.table, cols); err != nil {
			return 0, errors.Wrapf(err, "create %s", l.table)
		}
		l.columns = make(map[string]struct{}, len(cols))
		for _, c := range cols {
			l.columns[c] = struct{}{}
		}
	}

	for _, r := range batch {
		for c := range r.Values {
			if _, ok := l.columns[c]; !ok {
				return 0, errors.DataConsistency(matchID, r.Tick, c, "column %s is not in table %s", c, l.table)
			}
		}
	}
	return l.store.InsertDatasetRows(ctx, l.table, batch)
}

func columns(matchID int64, r Row) (map[string]float64, error) {
	row := make(map[string]float64, len(r.Player)+len(r.Enemy)+len(r.Out))
	for _, g := range []struct {
		prefix string
		vals   model.FeatureVector
	}{
		{PrefixPlayer, r.Player},
		{PrefixEnemy, r.Enemy},
		{PrefixOut, r.Out},
	} {
		for k, v := range g.vals {
			col := ColumnName(g.prefix, k)
			if _, dup := row[col]; dup {
				return nil, errors.DataConsistency(matchID, r.Tick, k, "features collide on column %s", col)
			}
			row[col] = v
		}
	}
	return row, nil
}

var unsafeChars = regexp.MustCompile(`[^a-z0-9_]+`)

// ColumnName lowercases key and reduces it to [a-z0-9_] behind prefix.
func ColumnName(prefix, key string) string {
	k := unsafeChars.ReplaceAllString(strings.ToLower(strings.TrimSpace(key)), "_")
	return prefix + k
}
