package features

import "github.com/dvarkless/sc2-replay-converter/internal/model"

// Reorganizer decides which side of a match plays the "player" role for a
// target matchup.
type Reorganizer struct {
	Matchup         model.Matchup
	MinLeague       int
	IncludeUnranked bool
}

// Ordering is the result of evaluating one side as the player.
type Ordering struct {
	Accepted bool
	Player   model.Side
	IsWin    bool
}

// Enemy is the side opposing the player.
func (o Ordering) Enemy() model.Side { return o.Player.Other() }

// Evaluate tries side as the player. Races must match the matchup exactly;
// the reversed pairing is covered by evaluating the other side.
func (r Reorganizer) Evaluate(m model.MatchSummary, side model.Side) Ordering {
	player, enemy := m.Player(side), m.Player(side.Other())
	return Ordering{
		Accepted: player.Race == r.Matchup.Player &&
			enemy.Race == r.Matchup.Enemy &&
			r.leagueOK(player.League),
		Player: side,
		IsWin:  player.IsWin,
	}
}

// Orderings evaluates both sides, player_1 first.
func (r Reorganizer) Orderings(m model.MatchSummary) [2]Ordering {
	return [2]Ordering{r.Evaluate(m, model.SideA), r.Evaluate(m, model.SideB)}
}

func (r Reorganizer) leagueOK(league int) bool {
	if league == 0 && r.IncludeUnranked {
		return true
	}
	return league >= r.MinLeague
}
