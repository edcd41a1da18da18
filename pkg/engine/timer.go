package engine

import (
	"context"
	"time"

	. "github.com/chesnaught/chesnaught/pkg/common"
)

// moveTimeOverhead is kept back from movetime for stopping and reporting.
const moveTimeOverhead = 10 * time.Millisecond

// timeControl is derived once per search from the go limits.
type timeControl struct {
	soft time.Duration
	hard time.Duration
}

func newTimeControl(limits LimitsType, whiteMove bool) timeControl {
	var tc timeControl
	if limits.MoveTime > 0 {
		var moveTime = time.Duration(limits.MoveTime) * time.Millisecond
		tc.hard = limitDuration(moveTime-moveTimeOverhead, moveTime/2, moveTime)
	} else if limits.WhiteTime > 0 || limits.BlackTime > 0 {
		var main, inc time.Duration
		if whiteMove {
			main = time.Duration(limits.WhiteTime) * time.Millisecond
			inc = time.Duration(limits.WhiteIncrement) * time.Millisecond
		} else {
			main = time.Duration(limits.BlackTime) * time.Millisecond
			inc = time.Duration(limits.BlackIncrement) * time.Millisecond
		}
		tc.soft, tc.hard = calcLimits(main, inc, limits.MovesToGo)
	}
	return tc
}

func (tc timeControl) bounded() bool {
	return tc.hard != 0
}

func calcLimits(main, inc time.Duration, moves int) (soft, hard time.Duration) {
	const (
		DefaultMovesToGo = 40
		MoveOverhead     = 300 * time.Millisecond
		MinTimeLimit     = 1 * time.Millisecond
	)

	main -= MoveOverhead
	if main < MinTimeLimit {
		main = MinTimeLimit
	}

	if moves == 0 {
		var ideal = main/35 + inc/2
		soft = ideal * 7 / 10
		hard = ideal * 21 / 10
	} else {
		moves = Min(moves, DefaultMovesToGo)
		soft = (main/time.Duration(moves+1) + inc) * 7 / 10
		hard = (main/time.Duration(moves+1) + inc) * 21 / 10
	}

	hard = limitDuration(hard, MinTimeLimit, main)
	soft = limitDuration(soft, MinTimeLimit, main)

	return
}

func limitDuration(v, min, max time.Duration) time.Duration {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// runTimer reports expiry of the hard limit unless cancelled first. The
// generation lets the controller drop expiries of searches that already ended.
func runTimer(ctx context.Context, generation uint64, d time.Duration, events chan<- event) {
	var timer = time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}
	select {
	case events <- timerExpired{generation: generation}:
	case <-ctx.Done():
	}
}
