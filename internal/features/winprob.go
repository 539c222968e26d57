package features

import (
	"math"

	"github.com/dvarkless/sc2-replay-converter/internal/errors"
)

// DefaultWinProbDelay sets how sharply the label rises toward the end of a won match.
const DefaultWinProbDelay = 5.0

// WinProbLabeler computes sigmoid(isWin * finalTick/endTick * delay).
// Losses always map to 0.5.
type WinProbLabeler struct {
	Delay float64
}

func (l WinProbLabeler) Label(finalTick int, isWin bool, endTick int) (float64, error) {
	if endTick == 0 {
		return 0, errors.Inconsistent("end_tick", "match duration is zero")
	}
	w := 0.0
	if isWin {
		w = 1
	}
	arg := w * (float64(finalTick) / float64(endTick)) * l.Delay
	return 1 / (1 + math.Exp(-arg)), nil
}
