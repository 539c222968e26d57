// Package filter holds the match filters applied before a match is turned
// into dataset rows or accepted by ingest. Each filter kind is its own type,
// validated when it is constructed.
package filter

import (
	"fmt"
	"strings"
	"time"

	"github.com/dvarkless/sc2-replay-converter/internal/errors"
	"github.com/dvarkless/sc2-replay-converter/internal/model"
)

// Kind identifies a filter variant.
type Kind int

const (
	KindLadder Kind = iota + 1
	KindLeague
	KindTimePlayed
	KindHasRace
	KindMatchup
	KindGameLength
)

func (k Kind) String() string {
	switch k {
	case KindLadder:
		return "ladder"
	case KindLeague:
		return "league"
	case KindTimePlayed:
		return "time_played"
	case KindHasRace:
		return "has_race"
	case KindMatchup:
		return "matchup"
	case KindGameLength:
		return "game_length"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Match is the view of a game the filters look at.
type Match struct {
	DurationTicks int
	RaceA, RaceB  model.Race
	LeagueA       int
	LeagueB       int
	IsLadder      bool
	Played        time.Time
}

// FromSummary builds a Match from a stored summary. Ladder flag and play
// time are not part of a summary and stay zero.
func FromSummary(m model.MatchSummary) Match {
	return Match{
		DurationTicks: m.DurationTicks,
		RaceA:         m.A.Race,
		RaceB:         m.B.Race,
		LeagueA:       m.A.League,
		LeagueB:       m.B.League,
	}
}

// Filter is one of Ladder, League, TimePlayed, HasRace, Matchup or GameLength.
type Filter interface {
	Kind() Kind
	Pass(m Match) bool
	String() string
	sealed()
}

// Ladder passes ladder games only.
type Ladder struct{}

func (Ladder) Kind() Kind        { return KindLadder }
func (Ladder) Pass(m Match) bool { return m.IsLadder }
func (Ladder) String() string    { return "ladder games only" }
func (Ladder) sealed()           {}

// League passes games where both players sit within [Min, Max].
type League struct {
	Min, Max int
}

func NewLeague(lo, hi int) (League, error) {
	if lo < 0 || hi < lo {
		return League{}, errors.Config("invalid league range [%d, %d]", lo, hi)
	}
	return League{Min: lo, Max: hi}, nil
}

func (League) Kind() Kind { return KindLeague }
func (f League) Pass(m Match) bool {
	return f.in(m.LeagueA) && f.in(m.LeagueB)
}
func (f League) in(l int) bool  { return l >= f.Min && l <= f.Max }
func (f League) String() string { return fmt.Sprintf("league in [%d, %d]", f.Min, f.Max) }
func (League) sealed()          {}

// TimePlayed passes games played in [From, To). A zero To is open-ended.
type TimePlayed struct {
	From, To time.Time
}

func NewTimePlayed(from, to time.Time) (TimePlayed, error) {
	if !to.IsZero() && !to.After(from) {
		return TimePlayed{}, errors.Config("empty time window %s .. %s", from.Format(time.DateOnly), to.Format(time.DateOnly))
	}
	return TimePlayed{From: from, To: to}, nil
}

func (TimePlayed) Kind() Kind { return KindTimePlayed }
func (f TimePlayed) Pass(m Match) bool {
	if m.Played.Before(f.From) {
		return false
	}
	return f.To.IsZero() || m.Played.Before(f.To)
}
func (f TimePlayed) String() string {
	if f.To.IsZero() {
		return "played since " + f.From.Format(time.DateOnly)
	}
	return fmt.Sprintf("played %s .. %s", f.From.Format(time.DateOnly), f.To.Format(time.DateOnly))
}
func (TimePlayed) sealed() {}

// HasRace passes games where either side plays Race.
type HasRace struct {
	Race model.Race
}

func NewHasRace(code string) (HasRace, error) {
	r, err := model.ParseRace(code)
	if err != nil {
		return HasRace{}, err
	}
	return HasRace{Race: r}, nil
}

func (HasRace) Kind() Kind          { return KindHasRace }
func (f HasRace) Pass(m Match) bool { return m.RaceA == f.Race || m.RaceB == f.Race }
func (f HasRace) String() string    { return "has race " + f.Race.Name() }
func (HasRace) sealed()             {}

// Matchup passes games of the matchup in either order.
type Matchup struct {
	Matchup model.Matchup
}

func NewMatchup(s string) (Matchup, error) {
	m, err := model.ParseMatchup(s)
	if err != nil {
		return Matchup{}, err
	}
	return Matchup{Matchup: m}, nil
}

func (Matchup) Kind() Kind { return KindMatchup }
func (f Matchup) Pass(m Match) bool {
	p, e := f.Matchup.Player, f.Matchup.Enemy
	return (m.RaceA == p && m.RaceB == e) || (m.RaceA == e && m.RaceB == p)
}
func (f Matchup) String() string { return "matchup " + f.Matchup.String() }
func (Matchup) sealed()          {}

// GameLength passes games lasting at least Min ticks and, when Max is
// positive, at most Max ticks.
type GameLength struct {
	Min, Max int
}

func NewGameLength(lo, hi int) (GameLength, error) {
	if lo < 0 || (hi > 0 && hi < lo) {
		return GameLength{}, errors.Config("invalid game length range [%d, %d] ticks", lo, hi)
	}
	return GameLength{Min: lo, Max: hi}, nil
}

func (GameLength) Kind() Kind { return KindGameLength }
func (f GameLength) Pass(m Match) bool {
	if m.DurationTicks < f.Min {
		return false
	}
	return f.Max <= 0 || m.DurationTicks <= f.Max
}
func (f GameLength) String() string {
	if f.Max <= 0 {
		return fmt.Sprintf("at least %d ticks", f.Min)
	}
	return fmt.Sprintf("%d..%d ticks", f.Min, f.Max)
}
func (GameLength) sealed() {}

// Set is an ordered collection with at most one filter per kind.
type Set struct {
	filters []Filter
}

func NewSet(filters ...Filter) (*Set, error) {
	seen := make(map[Kind]bool, len(filters))
	for _, f := range filters {
		if seen[f.Kind()] {
			return nil, errors.Config("filter %s configured twice", f.Kind())
		}
		seen[f.Kind()] = true
	}
	return &Set{filters: filters}, nil
}

func (s *Set) Len() int { return len(s.filters) }

// Evaluate runs every filter against m.
func (s *Set) Evaluate(m Match) Report {
	r := Report{Results: make([]Result, len(s.filters))}
	for i, f := range s.filters {
		r.Results[i] = Result{Filter: f, Passed: f.Pass(m)}
	}
	return r
}

// Result is the outcome of one filter.
type Result struct {
	Filter Filter
	Passed bool
}

// Report is the outcome of a Set.
type Report struct {
	Results []Result
}

// Passed reports whether every filter passed.
func (r Report) Passed() bool {
	for _, res := range r.Results {
		if !res.Passed {
			return false
		}
	}
	return true
}

// Failed lists the kinds that rejected the match.
func (r Report) Failed() []Kind {
	var out []Kind
	for _, res := range r.Results {
		if !res.Passed {
			out = append(out, res.Filter.Kind())
		}
	}
	return out
}

func (r Report) String() string {
	lines := make([]string, len(r.Results))
	for i, res := range r.Results {
		verdict := "pass"
		if !res.Passed {
			verdict = "FAIL"
		}
		lines[i] = fmt.Sprintf("%-12s %-4s (%s)", res.Filter.Kind(), verdict, res.Filter)
	}
	return strings.Join(lines, "\n")
}
