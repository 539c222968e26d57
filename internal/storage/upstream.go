package storage

import (
	"context"
	"database/sql"
	"iter"
	"sort"

	"github.com/dvarkless/sc2-replay-converter/internal/errors"
)

// GameInfo is one row of game_info. EndTime is in seconds; a nil winner flag
// means the replay did not record an outcome.
type GameInfo struct {
	GameID          int64
	TimestampPlayed int64
	PlayersHash     string
	EndTime         int
	Player1ID       int64
	Player1Race     string
	Player1Winner   *bool
	Player1League   int
	Player2ID       int64
	Player2Race     string
	Player2Winner   *bool
	Player2League   int
	MapHash         string
	Matchup         string
	IsLadder        bool
	ReplayPath      string
}

// TickCounts is the build order of both players at one tick, keyed by
// stored column name (player_1_unit_drone).
type TickCounts struct {
	Tick   int
	Counts map[string]float64
}

// PlayersInfo is what get_players_info returns for a game.
type PlayersInfo struct {
	EndTime int // seconds
	Race1   string
	Win1    sql.NullBool
	League1 int
	Race2   string
	Win2    sql.NullBool
	League2 int
}

// GameExists returns the id of the game with the given players hash and
// start time, if stored.
func (db *DB) GameExists(ctx context.Context, playersHash string, timestampPlayed int64) (int64, bool, error) {
	var id int64
	err := db.withRetry(ctx, func() error {
		return db.conn.QueryRowContext(ctx, db.dialect.rebind(
			`SELECT game_id FROM game_info WHERE players_hash = ? AND timestamp_played = ?`),
			playersHash, timestampPlayed).Scan(&id)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// InsertGame stores a game and its build order in one transaction and
// returns the game id. A zero GameID lets the store assign one.
func (db *DB) InsertGame(ctx context.Context, g GameInfo, ticks []TickCounts) (int64, error) {
	var id int64
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		id, err = db.insertGameInfo(ctx, tx, g)
		if err != nil {
			return errors.Wrap(err, "insert game_info")
		}
		return db.insertBuildOrder(ctx, tx, id, ticks)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// InsertGameInfo stores a single game_info row.
func (db *DB) InsertGameInfo(ctx context.Context, g GameInfo) (int64, error) {
	return db.InsertGame(ctx, g, nil)
}

// InsertBuildOrder appends build-order ticks to an existing game.
func (db *DB) InsertBuildOrder(ctx context.Context, gameID int64, ticks []TickCounts) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		return db.insertBuildOrder(ctx, tx, gameID, ticks)
	})
}

func (db *DB) insertGameInfo(ctx context.Context, tx *sql.Tx, g GameInfo) (int64, error) {
	cols := `timestamp_played, players_hash, end_time,
		player_1_id, player_1_race, player_1_winner, player_1_league,
		player_2_id, player_2_race, player_2_winner, player_2_league,
		map_hash, matchup, is_ladder, replay_path`
	marks := `?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?`
	args := []any{
		g.TimestampPlayed, g.PlayersHash, g.EndTime,
		g.Player1ID, g.Player1Race, nullableFlag(g.Player1Winner), g.Player1League,
		g.Player2ID, g.Player2Race, nullableFlag(g.Player2Winner), g.Player2League,
		g.MapHash, g.Matchup, boolInt(g.IsLadder), g.ReplayPath,
	}
	if g.GameID != 0 {
		cols = "game_id, " + cols
		marks = "?, " + marks
		args = append([]any{g.GameID}, args...)
	}

	var id int64
	err := tx.QueryRowContext(ctx, db.dialect.rebind(
		`INSERT INTO game_info(`+cols+`) VALUES (`+marks+`) RETURNING game_id`), args...).Scan(&id)
	return id, err
}

func (db *DB) insertBuildOrder(ctx context.Context, tx *sql.Tx, gameID int64, ticks []TickCounts) error {
	if len(ticks) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, db.dialect.rebind(`
		INSERT INTO build_order(game_id, tick, name, value) VALUES (?, ?, ?, ?)
		ON CONFLICT (game_id, tick, name) DO UPDATE SET value = excluded.value`))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, t := range ticks {
		names := make([]string, 0, len(t.Counts))
		for n := range t.Counts {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			if _, err := stmt.ExecContext(ctx, gameID, t.Tick, n, t.Counts[n]); err != nil {
				return errors.Wrapf(err, "insert build_order game %d tick %d", gameID, t.Tick)
			}
		}
	}
	return nil
}

// DeleteGame removes a game and its build order.
func (db *DB) DeleteGame(ctx context.Context, gameID int64) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, db.dialect.rebind(`DELETE FROM build_order WHERE game_id = ?`), gameID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, db.dialect.rebind(`DELETE FROM game_info WHERE game_id = ?`), gameID)
		return err
	})
}

// GetPlayersInfo returns the duration and both players of a game. The second
// return is false when the game does not exist.
func (db *DB) GetPlayersInfo(ctx context.Context, gameID int64) (PlayersInfo, bool, error) {
	var p PlayersInfo
	err := db.withRetry(ctx, func() error {
		return db.conn.QueryRowContext(ctx, db.dialect.rebind(`
			SELECT end_time,
			       player_1_race, player_1_winner, player_1_league,
			       player_2_race, player_2_winner, player_2_league
			FROM game_info WHERE game_id = ?`), gameID).
			Scan(&p.EndTime,
				&p.Race1, &p.Win1, &p.League1,
				&p.Race2, &p.Win2, &p.League2)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return PlayersInfo{}, false, nil
	}
	if err != nil {
		return PlayersInfo{}, false, errors.Wrapf(err, "players info for game %d", gameID)
	}
	return p, true, nil
}

// GetByKey returns the build order of a game at one tick. The second return
// is false when nothing is stored for that tick.
func (db *DB) GetByKey(ctx context.Context, gameID int64, tick int) (map[string]float64, bool, error) {
	var out map[string]float64
	err := db.withRetry(ctx, func() error {
		rows, err := db.conn.QueryContext(ctx, db.dialect.rebind(
			`SELECT name, value FROM build_order WHERE game_id = ? AND tick = ?`), gameID, tick)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = make(map[string]float64)
		for rows.Next() {
			var name string
			var v float64
			if err := rows.Scan(&name, &v); err != nil {
				return err
			}
			out[name] = v
		}
		return rows.Err()
	})
	if err != nil {
		return nil, false, errors.Wrapf(err, "build order of game %d at tick %d", gameID, tick)
	}
	return out, len(out) > 0, nil
}

// GameIDs yields every stored game id in ascending order, one round trip per
// id. The sequence ends when the ids run out or after the first error.
func (db *DB) GameIDs(ctx context.Context) iter.Seq2[int64, error] {
	return func(yield func(int64, error) bool) {
		q := db.dialect.rebind(`SELECT game_id FROM game_info WHERE game_id > ? ORDER BY game_id LIMIT 1`)
		last := int64(-1 << 63)
		for {
			var id int64
			err := db.withRetry(ctx, func() error {
				return db.conn.QueryRowContext(ctx, q, last).Scan(&id)
			})
			if errors.Is(err, sql.ErrNoRows) {
				return
			}
			if err != nil {
				yield(0, errors.Wrap(err, "next game id"))
				return
			}
			if !yield(id, nil) {
				return
			}
			last = id
		}
	}
}

// CountGames returns the number of stored games.
func (db *DB) CountGames(ctx context.Context) (int64, error) {
	var n int64
	err := db.withRetry(ctx, func() error {
		return db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM game_info`).Scan(&n)
	})
	return n, err
}

// MatchupCount is the number of stored games of one matchup.
type MatchupCount struct {
	Matchup string
	Games   int64
	Ticks   int64
}

// Overview counts stored games and distinct ticks per matchup.
func (db *DB) Overview(ctx context.Context) ([]MatchupCount, error) {
	var out []MatchupCount
	err := db.withRetry(ctx, func() error {
		out = out[:0]
		rows, err := db.conn.QueryContext(ctx, `
			SELECT g.matchup, COUNT(DISTINCT g.game_id),
			       COUNT(DISTINCT b.game_id * 1000000 + b.tick)
			FROM game_info g
			LEFT JOIN build_order b ON b.game_id = g.game_id
			GROUP BY g.matchup
			ORDER BY g.matchup`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var m MatchupCount
			if err := rows.Scan(&m.Matchup, &m.Games, &m.Ticks); err != nil {
				return err
			}
			out = append(out, m)
		}
		return rows.Err()
	})
	return out, err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableFlag(b *bool) any {
	if b == nil {
		return nil
	}
	return boolInt(*b)
}
