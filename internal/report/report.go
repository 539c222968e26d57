package report

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/dvarkless/sc2-replay-converter/internal/errors"
	"github.com/dvarkless/sc2-replay-converter/internal/ingest"
	"github.com/dvarkless/sc2-replay-converter/internal/pipeline"
	"github.com/dvarkless/sc2-replay-converter/internal/storage"
)

func newTable(w io.Writer) *tablewriter.Table {
	return tablewriter.NewTable(w, tablewriter.WithConfig(tablewriter.Config{
		Row: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignRight},
		},
		Header: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignCenter},
		},
	}))
}

// PrintRunStats prints one row per pipeline run.
// Columns: TABLE | MATCHES | FILTERED | ACCEPTED | REJECTED | SKIPPED | TICKS_SKIPPED | ROWS | ABORTED | TIME
func PrintRunStats(w io.Writer, runs []pipeline.Stats) {
	table := newTable(w)
	table.Header("TABLE", "MATCHES", "FILTERED", "ACCEPTED", "REJECTED",
		"SKIPPED", "TICKS_SKIPPED", "ROWS", "ABORTED", "TIME")

	var rows, aborted int
	for _, s := range runs {
		rows += s.RowsWritten
		aborted += s.MatchesAborted
		table.Append(
			s.Table,
			strconv.Itoa(s.Matches),
			strconv.Itoa(s.Filtered),
			strconv.Itoa(s.OrderingsAccepted),
			strconv.Itoa(s.OrderingsRejected),
			strconv.Itoa(s.MatchesSkipped),
			strconv.Itoa(s.TicksSkipped),
			strconv.Itoa(s.RowsWritten),
			strconv.Itoa(s.MatchesAborted),
			s.Duration.Round(time.Millisecond).String(),
		)
	}
	table.Render()
	fmt.Fprintf(w, "\n%d rows written, %d matches aborted\n", rows, aborted)
}

// PrintDatasetTables lists dataset tables with their row counts.
func PrintDatasetTables(w io.Writer, tables []storage.DatasetTable) {
	if len(tables) == 0 {
		fmt.Fprintln(w, "No dataset tables yet. Run 'sc2ds build' to create some.")
		return
	}
	table := newTable(w)
	table.Header("TABLE", "ROWS")
	for _, t := range tables {
		table.Append(t.Name, strconv.FormatInt(t.Rows, 10))
	}
	table.Render()
}

// PrintOverview prints stored games and snapshot ticks per matchup.
func PrintOverview(w io.Writer, counts []storage.MatchupCount) {
	if len(counts) == 0 {
		fmt.Fprintln(w, "No games stored yet. Run 'sc2ds ingest <file.jsonl>' to add some.")
		return
	}
	table := newTable(w)
	table.Header("MATCHUP", "GAMES", "TICKS", "TICKS/GAME")

	var games, ticks int64
	for _, c := range counts {
		games += c.Games
		ticks += c.Ticks
		perGame := "-"
		if c.Games > 0 {
			perGame = fmt.Sprintf("%.0f", float64(c.Ticks)/float64(c.Games))
		}
		table.Append(c.Matchup, strconv.FormatInt(c.Games, 10), strconv.FormatInt(c.Ticks, 10), perGame)
	}
	table.Render()
	fmt.Fprintf(w, "\n%d games, %d ticks\n", games, ticks)
}

// PrintQueryResult prints the result of a raw query.
func PrintQueryResult(w io.Writer, cols []string, rows [][]string) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "(no rows)")
		return
	}
	table := newTable(w)

	colsAny := make([]any, len(cols))
	for i, c := range cols {
		colsAny[i] = c
	}
	table.Header(colsAny...)

	for _, row := range rows {
		rowAny := make([]any, len(row))
		for i, v := range row {
			rowAny[i] = v
		}
		table.Append(rowAny...)
	}
	table.Render()
	fmt.Fprintf(w, "\n(%d rows)\n", len(rows))
}

// PrintIngestStats prints the outcome of one ingest file.
func PrintIngestStats(w io.Writer, path string, s ingest.Stats) {
	fmt.Fprintf(w, "\n%s: %d records\n\n", path, s.Records)
	table := newTable(w)
	table.Header("INSERTED", "DUPLICATES", "FILTERED", "INVALID")
	table.Append(
		strconv.Itoa(s.Inserted),
		strconv.Itoa(s.Duplicates),
		strconv.Itoa(s.Filtered),
		strconv.Itoa(s.Invalid),
	)
	table.Render()
}

// WriteCSV writes a dataset (header row first, as returned by
// storage.ReadDataset) as CSV. Cells are kept as text so NULL features stay
// empty instead of turning into NaN.
func WriteCSV(w io.Writer, records [][]string) error {
	if len(records) == 0 {
		return errors.New("dataset has no header")
	}
	df := dataframe.LoadRecords(records,
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.HasHeader(true),
	)
	if df.Err != nil {
		return errors.Wrap(df.Err, "load dataset")
	}
	return df.WriteCSV(w)
}
