// Package ingest loads parsed replays into the upstream store. Input is
// newline-delimited JSON, one game per line, as written by the external
// replay parser.
package ingest

import (
	"bufio"
	"context"
	"io"
	"sort"
	"strings"
	"time"

	gojson "github.com/goccy/go-json"

	"github.com/dvarkless/sc2-replay-converter/internal/errors"
	"github.com/dvarkless/sc2-replay-converter/internal/filter"
	"github.com/dvarkless/sc2-replay-converter/internal/logger"
	"github.com/dvarkless/sc2-replay-converter/internal/model"
	"github.com/dvarkless/sc2-replay-converter/internal/storage"
)

// maxLine bounds one record; a long game has a few thousand snapshots.
const maxLine = 64 << 20

// PlayerRecord is one side of a parsed game.
type PlayerRecord struct {
	ID     int64  `json:"id"`
	Race   string `json:"race"`
	Winner *bool  `json:"winner"`
	League int    `json:"league"`
}

// GameRecord is the game_info part of a record. Times are in seconds.
type GameRecord struct {
	TimestampPlayed int64        `json:"timestamp_played"`
	PlayersHash     string       `json:"players_hash"`
	EndTime         int          `json:"end_time"`
	Player1         PlayerRecord `json:"player_1"`
	Player2         PlayerRecord `json:"player_2"`
	MapHash         string       `json:"map_hash"`
	Matchup         string       `json:"matchup"`
	IsLadder        bool         `json:"is_ladder"`
	ReplayPath      string       `json:"replay_path"`
}

// SnapshotRecord is the build order of both players at one tick.
type SnapshotRecord struct {
	Tick   int                `json:"tick"`
	Counts map[string]float64 `json:"counts"`
}

// Record is one line of input.
type Record struct {
	Game      GameRecord       `json:"game"`
	Snapshots []SnapshotRecord `json:"snapshots"`
}

// Store is the part of the upstream store ingest writes to.
type Store interface {
	GameExists(ctx context.Context, playersHash string, timestampPlayed int64) (int64, bool, error)
	InsertGame(ctx context.Context, g storage.GameInfo, ticks []storage.TickCounts) (int64, error)
}

// Options control validation. Filters may be nil.
type Options struct {
	TickStep       int
	MaxTick        int // snapshots past it are dropped; 0 keeps all
	TicksPerSecond int
	Filters        *filter.Set
}

// Outcome is what happened to one record.
type Outcome int

const (
	Inserted Outcome = iota
	Duplicate
	Filtered
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Duplicate:
		return "duplicate"
	case Filtered:
		return "filtered"
	}
	return "unknown"
}

// Stats counts the records of one Run.
type Stats struct {
	Records    int
	Inserted   int
	Duplicates int
	Filtered   int
	Invalid    int
}

type Ingester struct {
	store Store
	opts  Options
	log   *logger.Logger
}

func New(store Store, opts Options, log *logger.Logger) (*Ingester, error) {
	if store == nil {
		return nil, errors.Config("ingest needs a store")
	}
	if opts.TickStep <= 0 {
		return nil, errors.Config("tick_step must be positive, got %d", opts.TickStep)
	}
	if opts.MaxTick < 0 {
		return nil, errors.Config("max_tick must not be negative, got %d", opts.MaxTick)
	}
	if opts.TicksPerSecond <= 0 {
		opts.TicksPerSecond = 16
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Ingester{store: store, opts: opts, log: log}, nil
}

// Run ingests every record of r. Malformed or inconsistent records are
// logged and counted; storage errors stop the run.
func (in *Ingester) Run(ctx context.Context, r io.Reader) (Stats, error) {
	var stats Stats
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 1<<20), maxLine)

	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Records++
		log := in.log.With("line", line)

		var rec Record
		if err := gojson.Unmarshal([]byte(raw), &rec); err != nil {
			stats.Invalid++
			log.WithError(err).Warn("malformed record")
			continue
		}

		out, err := in.Ingest(ctx, rec)
		switch {
		case errors.IsDataConsistency(err):
			stats.Invalid++
			log.With("detail", errors.FlattenDetails(err)).WithError(err).Warn("invalid record")
			continue
		case err != nil:
			return stats, errors.Wrapf(err, "line %d", line)
		}
		switch out {
		case Inserted:
			stats.Inserted++
		case Duplicate:
			stats.Duplicates++
		case Filtered:
			stats.Filtered++
		}
		log.Debugf("%s %s", rec.Game.PlayersHash, out)
	}
	if err := sc.Err(); err != nil {
		return stats, errors.Wrapf(err, "read line %d", line+1)
	}
	return stats, nil
}

// Ingest validates and stores one record.
func (in *Ingester) Ingest(ctx context.Context, rec Record) (Outcome, error) {
	g, ticks, err := in.convert(rec)
	if err != nil {
		return 0, errors.WithDetailf(err, "players_hash=%s", rec.Game.PlayersHash)
	}

	if in.opts.Filters != nil {
		if report := in.opts.Filters.Evaluate(in.match(g)); !report.Passed() {
			in.log.Debugf("%s filtered out:\n%s", g.PlayersHash, report)
			return Filtered, nil
		}
	}

	if _, ok, err := in.store.GameExists(ctx, g.PlayersHash, g.TimestampPlayed); err != nil {
		return 0, err
	} else if ok {
		return Duplicate, nil
	}
	if _, err := in.store.InsertGame(ctx, g, ticks); err != nil {
		return 0, errors.Wrapf(err, "insert %s", g.PlayersHash)
	}
	return Inserted, nil
}

func (in *Ingester) match(g storage.GameInfo) filter.Match {
	return filter.Match{
		DurationTicks: g.EndTime * in.opts.TicksPerSecond,
		RaceA:         model.Race(g.Player1Race),
		RaceB:         model.Race(g.Player2Race),
		LeagueA:       g.Player1League,
		LeagueB:       g.Player2League,
		IsLadder:      g.IsLadder,
		Played:        time.Unix(g.TimestampPlayed, 0).UTC(),
	}
}

func (in *Ingester) convert(rec Record) (storage.GameInfo, []storage.TickCounts, error) {
	gr := rec.Game
	if gr.PlayersHash == "" {
		return storage.GameInfo{}, nil, errors.Inconsistent("players_hash", "record has no players hash")
	}
	if gr.EndTime <= 0 {
		return storage.GameInfo{}, nil, errors.Inconsistent("end_time", "end time %d is not positive", gr.EndTime)
	}
	r1, err := model.ParseRace(gr.Player1.Race)
	if err != nil {
		return storage.GameInfo{}, nil, errors.Inconsistent("player_1_race", "%v", err)
	}
	r2, err := model.ParseRace(gr.Player2.Race)
	if err != nil {
		return storage.GameInfo{}, nil, errors.Inconsistent("player_2_race", "%v", err)
	}

	matchup := gr.Matchup
	if matchup == "" {
		matchup = model.Matchup{Player: r1, Enemy: r2}.String()
	}
	g := storage.GameInfo{
		TimestampPlayed: gr.TimestampPlayed,
		PlayersHash:     gr.PlayersHash,
		EndTime:         gr.EndTime,
		Player1ID:       gr.Player1.ID,
		Player1Race:     string(r1),
		Player1Winner:   gr.Player1.Winner,
		Player1League:   gr.Player1.League,
		Player2ID:       gr.Player2.ID,
		Player2Race:     string(r2),
		Player2Winner:   gr.Player2.Winner,
		Player2League:   gr.Player2.League,
		MapHash:         gr.MapHash,
		Matchup:         matchup,
		IsLadder:        gr.IsLadder,
		ReplayPath:      gr.ReplayPath,
	}

	ticks, err := in.ticks(rec.Snapshots)
	if err != nil {
		return storage.GameInfo{}, nil, err
	}
	return g, ticks, nil
}

func (in *Ingester) ticks(snaps []SnapshotRecord) ([]storage.TickCounts, error) {
	seen := make(map[int]struct{}, len(snaps))
	out := make([]storage.TickCounts, 0, len(snaps))
	for _, s := range snaps {
		if s.Tick < 0 || s.Tick%in.opts.TickStep != 0 {
			return nil, errors.Inconsistent("tick", "tick %d is not a multiple of %d", s.Tick, in.opts.TickStep)
		}
		if in.opts.MaxTick > 0 && s.Tick > in.opts.MaxTick {
			continue
		}
		if _, dup := seen[s.Tick]; dup {
			return nil, errors.Inconsistent("tick", "tick %d appears twice", s.Tick)
		}
		seen[s.Tick] = struct{}{}

		counts := make(map[string]float64, len(s.Counts))
		for k, v := range s.Counts {
			k = strings.ToLower(k)
			if !strings.HasPrefix(k, string(model.SideA)+"_") && !strings.HasPrefix(k, string(model.SideB)+"_") {
				return nil, errors.Inconsistent(k, "count at tick %d names no player", s.Tick)
			}
			if _, dup := counts[k]; dup {
				return nil, errors.Inconsistent(k, "count at tick %d appears twice with different case", s.Tick)
			}
			counts[k] = v
		}
		out = append(out, storage.TickCounts{Tick: s.Tick, Counts: counts})
	}
	if len(out) == 0 {
		return nil, errors.Inconsistent("snapshots", "record has no snapshots")
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tick < out[j].Tick })
	return out, nil
}
