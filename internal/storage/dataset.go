package storage

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/dvarkless/sc2-replay-converter/internal/errors"
)

var (
	identRe   = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)
	datasetRe = regexp.MustCompile(`^[ztp]v[ztp]_(comp|winprob|enemycomp)$`)
)

// Key columns of every dataset table.
const (
	ColMatchID = "match_id"
	ColTick    = "tick"
)

// DatasetTable is a dataset table and its size.
type DatasetTable struct {
	Name string
	Rows int64
}

// IsDatasetTable reports whether name follows the "{p}v{e}_{flavor}" scheme.
func IsDatasetTable(name string) bool { return datasetRe.MatchString(name) }

func quoteIdent(name string) (string, error) {
	if !identRe.MatchString(name) {
		return "", errors.Newf("invalid identifier %q", name)
	}
	return `"` + name + `"`, nil
}

// CreateDatasetTable creates a wide dataset table keyed by (match_id, tick)
// with one numeric column per feature. Existing tables are left untouched.
func (db *DB) CreateDatasetTable(ctx context.Context, table string, columns []string) error {
	t, err := quoteIdent(table)
	if err != nil {
		return err
	}
	defs := []string{ColMatchID + " BIGINT NOT NULL", ColTick + " INTEGER NOT NULL"}
	for _, c := range columns {
		q, err := quoteIdent(c)
		if err != nil {
			return errors.Wrapf(err, "table %s", table)
		}
		defs = append(defs, q+" "+db.dialect.floatType)
	}
	defs = append(defs, "PRIMARY KEY ("+ColMatchID+", "+ColTick+")")

	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", t, strings.Join(defs, ",\n\t"))
	return db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, stmt)
		return err
	})
}

// DatasetRow is one row of a dataset table, keyed by (MatchID, Tick).
type DatasetRow struct {
	MatchID int64
	Tick    int
	Values  map[string]float64
}

// InsertDatasetRow writes one row, leaving an existing (match_id, tick) row
// untouched. It reports whether a row was written.
func (db *DB) InsertDatasetRow(ctx context.Context, table string, matchID int64, tick int, values map[string]float64) (bool, error) {
	n, err := db.InsertDatasetRows(ctx, table, []DatasetRow{{MatchID: matchID, Tick: tick, Values: values}})
	return n > 0, err
}

// InsertDatasetRows writes rows in a single transaction: either all of them
// land or none do. Rows whose (match_id, tick) already exists are left
// untouched and not counted. It returns the number of rows written.
func (db *DB) InsertDatasetRows(ctx context.Context, table string, rows []DatasetRow) (int, error) {
	t, err := quoteIdent(table)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	stmts := make([]string, len(rows))
	args := make([][]any, len(rows))
	for i, r := range rows {
		stmts[i], args[i], err = db.insertStmt(t, r)
		if err != nil {
			return 0, errors.Wrapf(err, "insert %s match %d tick %d", table, r.MatchID, r.Tick)
		}
	}

	var written int
	err = db.withTx(ctx, func(tx *sql.Tx) error {
		written = 0
		for i := range stmts {
			res, err := tx.ExecContext(ctx, stmts[i], args[i]...)
			if err != nil {
				return errors.Wrapf(err, "match %d tick %d", rows[i].MatchID, rows[i].Tick)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			written += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, errors.Wrapf(err, "insert %s", table)
	}
	return written, nil
}

func (db *DB) insertStmt(table string, r DatasetRow) (string, []any, error) {
	names := make([]string, 0, len(r.Values))
	for k := range r.Values {
		names = append(names, k)
	}
	sort.Strings(names)

	cols := []string{ColMatchID, ColTick}
	args := []any{r.MatchID, r.Tick}
	for _, n := range names {
		q, err := quoteIdent(n)
		if err != nil {
			return "", nil, err
		}
		cols = append(cols, q)
		args = append(args, r.Values[n])
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	return db.dialect.rebind(fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s, %s) DO NOTHING",
		table, strings.Join(cols, ", "), marks, ColMatchID, ColTick)), args, nil
}

// DatasetMatchExists reports whether any row of matchID is in table.
func (db *DB) DatasetMatchExists(ctx context.Context, table string, matchID int64) (bool, error) {
	t, err := quoteIdent(table)
	if err != nil {
		return false, err
	}
	return db.exists(ctx, `SELECT 1 FROM `+t+` WHERE match_id = ? LIMIT 1`, matchID)
}

// DatasetTickExists reports whether the (matchID, tick) row is in table.
func (db *DB) DatasetTickExists(ctx context.Context, table string, matchID int64, tick int) (bool, error) {
	t, err := quoteIdent(table)
	if err != nil {
		return false, err
	}
	return db.exists(ctx, `SELECT 1 FROM `+t+` WHERE match_id = ? AND tick = ? LIMIT 1`, matchID, tick)
}

func (db *DB) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var one int
	err := db.withRetry(ctx, func() error {
		return db.conn.QueryRowContext(ctx, db.dialect.rebind(query), args...).Scan(&one)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// TableExists reports whether a table of that name exists.
func (db *DB) TableExists(ctx context.Context, table string) (bool, error) {
	tables, err := db.tables(ctx)
	if err != nil {
		return false, err
	}
	for _, t := range tables {
		if t == table {
			return true, nil
		}
	}
	return false, nil
}

// DatasetColumns lists the columns of table in definition order.
func (db *DB) DatasetColumns(ctx context.Context, table string) ([]string, error) {
	var cols []string
	err := db.withRetry(ctx, func() error {
		cols = cols[:0]
		rows, err := db.conn.QueryContext(ctx, db.dialect.rebind(db.dialect.columns), table)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var c string
			if err := rows.Scan(&c); err != nil {
				return err
			}
			cols = append(cols, c)
		}
		return rows.Err()
	})
	return cols, err
}

// ListDatasetTables returns every dataset table with its row count.
func (db *DB) ListDatasetTables(ctx context.Context) ([]DatasetTable, error) {
	tables, err := db.tables(ctx)
	if err != nil {
		return nil, err
	}
	var out []DatasetTable
	for _, t := range tables {
		if !IsDatasetTable(t) {
			continue
		}
		n, err := db.CountRows(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, DatasetTable{Name: t, Rows: n})
	}
	return out, nil
}

func (db *DB) tables(ctx context.Context) ([]string, error) {
	var out []string
	err := db.withRetry(ctx, func() error {
		out = out[:0]
		rows, err := db.conn.QueryContext(ctx, db.dialect.listTables)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return err
			}
			out = append(out, name)
		}
		return rows.Err()
	})
	return out, err
}

// CountRows returns the number of rows in table.
func (db *DB) CountRows(ctx context.Context, table string) (int64, error) {
	t, err := quoteIdent(table)
	if err != nil {
		return 0, err
	}
	var n int64
	err = db.withRetry(ctx, func() error {
		return db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+t).Scan(&n)
	})
	return n, err
}

// DropTable drops a dataset table. Upstream tables cannot be dropped.
func (db *DB) DropTable(ctx context.Context, table string) error {
	if !IsDatasetTable(table) {
		return errors.WithHint(errors.Newf("refusing to drop %q", table),
			"only dataset tables such as zvt_comp can be dropped")
	}
	t, _ := quoteIdent(table)
	return db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+t)
		return err
	})
}

// ReadDataset returns a dataset table as CSV-style records, header first,
// ordered by match and tick.
func (db *DB) ReadDataset(ctx context.Context, table string) ([][]string, error) {
	t, err := quoteIdent(table)
	if err != nil {
		return nil, err
	}
	cols, rows, err := db.QueryRaw(ctx, `SELECT * FROM `+t+` ORDER BY match_id, tick`)
	if err != nil {
		return nil, err
	}
	return append([][]string{cols}, rows...), nil
}

// QueryRaw runs an arbitrary query and returns column names and rows as strings.
func (db *DB) QueryRaw(ctx context.Context, query string) ([]string, [][]string, error) {
	var (
		cols []string
		out  [][]string
	)
	err := db.withRetry(ctx, func() error {
		out = out[:0]
		rows, err := db.conn.QueryContext(ctx, query)
		if err != nil {
			return err
		}
		defer rows.Close()

		cols, err = rows.Columns()
		if err != nil {
			return err
		}
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		for rows.Next() {
			if err := rows.Scan(ptrs...); err != nil {
				return err
			}
			rec := make([]string, len(cols))
			for i, v := range vals {
				rec[i] = formatValue(v)
			}
			out = append(out, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "query")
	}
	return cols, out, nil
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(x)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	default:
		return fmt.Sprint(x)
	}
}
