package engine

import (
	"context"
	"testing"
	"time"

	. "github.com/chesnaught/chesnaught/pkg/common"
)

func TestCalcLimits(t *testing.T) {
	var tests = []struct {
		main, inc time.Duration
		moves     int
		soft      time.Duration
		hard      time.Duration
	}{
		{35300 * time.Millisecond, 0, 0, 700 * time.Millisecond, 2100 * time.Millisecond},
		{10300 * time.Millisecond, 2 * time.Second, 0, (10*time.Second/35 + time.Second) * 7 / 10, (10*time.Second/35 + time.Second) * 21 / 10},
		{4300 * time.Millisecond, 0, 3, 700 * time.Millisecond, 2100 * time.Millisecond},
		{100 * time.Millisecond, 0, 0, time.Millisecond, time.Millisecond},
	}
	for _, test := range tests {
		var soft, hard = calcLimits(test.main, test.inc, test.moves)
		if soft != test.soft || hard != test.hard {
			t.Errorf("calcLimits(%v, %v, %v) = %v, %v want %v, %v",
				test.main, test.inc, test.moves, soft, hard, test.soft, test.hard)
		}
	}
}

func TestNewTimeControl(t *testing.T) {
	var tests = []struct {
		limits    LimitsType
		whiteMove bool
		bounded   bool
		hard      time.Duration
	}{
		{LimitsType{MoveTime: 100}, true, true, 90 * time.Millisecond},
		{LimitsType{MoveTime: 10}, true, true, 5 * time.Millisecond},
		{LimitsType{Depth: 5}, true, false, 0},
		{LimitsType{Infinite: true}, false, false, 0},
		{LimitsType{WhiteTime: 35300, BlackTime: 300}, true, true, 2100 * time.Millisecond},
		{LimitsType{WhiteTime: 35300, BlackTime: 300}, false, true, time.Millisecond},
	}
	for i, test := range tests {
		var tc = newTimeControl(test.limits, test.whiteMove)
		if tc.bounded() != test.bounded || tc.hard != test.hard {
			t.Errorf("%v: bounded %v hard %v", i, tc.bounded(), tc.hard)
		}
	}
}

func TestRunTimerExpires(t *testing.T) {
	var events = make(chan event, 1)
	var ctx, cancel = context.WithCancel(context.Background())
	defer cancel()
	go runTimer(ctx, 7, 10*time.Millisecond, events)
	select {
	case ev := <-events:
		if te, ok := ev.(timerExpired); !ok || te.generation != 7 {
			t.Fatalf("unexpected event %#v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestRunTimerCancelled(t *testing.T) {
	var events = make(chan event, 1)
	var ctx, cancel = context.WithCancel(context.Background())
	var done = make(chan struct{})
	go func() {
		defer close(done)
		runTimer(ctx, 1, time.Hour, events)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timer not cancelled")
	}
	if len(events) != 0 {
		t.Error("cancelled timer reported expiry")
	}
}
