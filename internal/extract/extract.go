// Package extract reads matches out of the upstream store in the shape the
// pipeline works with.
package extract

import (
	"context"
	"iter"

	"github.com/dvarkless/sc2-replay-converter/internal/errors"
	"github.com/dvarkless/sc2-replay-converter/internal/model"
	"github.com/dvarkless/sc2-replay-converter/internal/storage"
)

// Source is the upstream read contract.
type Source interface {
	GameIDs(ctx context.Context) iter.Seq2[int64, error]
	GetPlayersInfo(ctx context.Context, gameID int64) (storage.PlayersInfo, bool, error)
	GetByKey(ctx context.Context, gameID int64, tick int) (map[string]float64, bool, error)
}

// Extractor converts stored games into match summaries and snapshots.
type Extractor struct {
	src            Source
	ticksPerSecond int
}

func New(src Source, ticksPerSecond int) *Extractor {
	if ticksPerSecond <= 0 {
		ticksPerSecond = 16
	}
	return &Extractor{src: src, ticksPerSecond: ticksPerSecond}
}

// IDs yields every stored match id once.
func (e *Extractor) IDs(ctx context.Context) iter.Seq2[int64, error] {
	return e.src.GameIDs(ctx)
}

// Summary reads one match. The stored duration is converted from seconds to
// ticks; a missing win flag reads as a loss.
func (e *Extractor) Summary(ctx context.Context, matchID int64) (model.MatchSummary, error) {
	info, ok, err := e.src.GetPlayersInfo(ctx, matchID)
	if err != nil {
		return model.MatchSummary{}, err
	}
	if !ok {
		return model.MatchSummary{}, errors.DataConsistency(matchID, 0, "", "match %d has no game_info row", matchID)
	}

	a, err := player(matchID, info.Race1, info.Win1.Valid && info.Win1.Bool, info.League1)
	if err != nil {
		return model.MatchSummary{}, err
	}
	b, err := player(matchID, info.Race2, info.Win2.Valid && info.Win2.Bool, info.League2)
	if err != nil {
		return model.MatchSummary{}, err
	}
	return model.MatchSummary{
		MatchID:       matchID,
		DurationTicks: info.EndTime * e.ticksPerSecond,
		A:             a,
		B:             b,
	}, nil
}

func player(matchID int64, race string, win bool, league int) (model.PlayerSummary, error) {
	r, err := model.ParseRace(race)
	if err != nil {
		// a bad race in the store is bad data, not bad configuration
		return model.PlayerSummary{}, errors.DataConsistency(matchID, 0, "race", "stored race %q is not z, t or p", race)
	}
	if league < 0 {
		league = 0
	}
	return model.PlayerSummary{Race: r, IsWin: win, League: league}, nil
}

// Snapshots reads the build order at each tick, in the order given. A tick
// with nothing stored is a data-consistency error.
func (e *Extractor) Snapshots(ctx context.Context, matchID int64, ticks []int) ([]model.Snapshot, error) {
	out := make([]model.Snapshot, 0, len(ticks))
	for _, t := range ticks {
		counts, found, err := e.src.GetByKey(ctx, matchID, t)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, errors.DataConsistency(matchID, t, "", "no build order stored for match %d at tick %d", matchID, t)
		}
		out = append(out, model.Snapshot{MatchID: matchID, Tick: t, Counts: counts})
	}
	return out, nil
}
