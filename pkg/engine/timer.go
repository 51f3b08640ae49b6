package engine

import (
	"math"
	"time"
)

const (
	GraceSeconds = 30
	CycleSeconds = 30

	DefaultReserveSeconds = 300
)

type TimerState struct {
	Enabled        bool             `json:"enabled"`
	ReserveSeconds float64          `json:"reserveSeconds"`
	ReserveLeft    PerSide[float64] `json:"reserveLeft"`
	GraceLeft      float64          `json:"graceLeft"`
	Paused         PerSide[bool]    `json:"paused"`
	LastSyncedAt   time.Time        `json:"lastSyncedAt"`
	PenaltyCount   PerSide[int]     `json:"penaltyCount"`

	// Bookkeeping for the turn in progress.
	Turn        int     `json:"turn"`
	TurnElapsed float64 `json:"turnElapsed"`
	TurnReserve float64 `json:"turnReserve"`
	Credited    int     `json:"credited"`
}

type Clock struct {
	Grace   float64 `json:"grace"`
	Reserve float64 `json:"reserve"`
	Cycles  int     `json:"cycles"`
}

// ComputeGraceReserveCycles drains grace first, then reserve, then counts
// cycleLength-second penalty windows. Grace in the result is the time left in
// the current window once reserve is gone.
func ComputeGraceReserveCycles(grace0, reserve0, elapsed, cycleLength float64) Clock {
	if cycleLength <= 0 {
		cycleLength = CycleSeconds
	}
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed <= grace0 {
		return Clock{Grace: grace0 - elapsed, Reserve: reserve0}
	}
	rem := elapsed - grace0
	if rem <= reserve0 {
		return Clock{Reserve: reserve0 - rem}
	}
	rem -= reserve0
	return Clock{
		Grace:  cycleLength - math.Mod(rem, cycleLength),
		Cycles: 1 + int(math.Floor(rem/cycleLength)),
	}
}

func newTimer(enabled bool, reserve float64, now time.Time) TimerState {
	return TimerState{
		Enabled:        enabled,
		ReserveSeconds: reserve,
		ReserveLeft:    PerSide[float64]{Blue: reserve, Red: reserve},
		GraceLeft:      GraceSeconds,
		LastSyncedAt:   now,
		TurnReserve:    reserve,
	}
}

// burningSide reports the side whose clock runs right now, if any. The first
// ban slot of each side never burns.
func (s Session) burningSide() (Side, bool) {
	if !s.Timer.Enabled || s.Complete() {
		return "", false
	}
	slot := s.Sequence[s.CurrentTurn]
	if slot.FirstBan || s.Timer.Paused.Get(slot.Side) {
		return "", false
	}
	return slot.Side, true
}

func (s *Session) syncTimer(now time.Time) {
	t := &s.Timer
	if t.Turn != s.CurrentTurn {
		s.resetTurnClock()
	}
	dt := now.Sub(t.LastSyncedAt).Seconds()
	if t.LastSyncedAt.IsZero() || dt < 0 {
		dt = 0
	}
	if now.After(t.LastSyncedAt) {
		t.LastSyncedAt = now
	}

	side, ok := s.burningSide()
	if !ok || dt == 0 {
		return
	}
	t.TurnElapsed += dt
	c := ComputeGraceReserveCycles(GraceSeconds, t.TurnReserve, t.TurnElapsed, CycleSeconds)
	t.GraceLeft = c.Grace
	t.ReserveLeft.Set(side, c.Reserve)
	if c.Cycles > t.Credited {
		t.PenaltyCount.Set(side, t.PenaltyCount.Get(side)+c.Cycles-t.Credited)
		t.Credited = c.Cycles
	}
}

// resetTurnClock starts a fresh grace window for whoever owns CurrentTurn.
func (s *Session) resetTurnClock() {
	t := &s.Timer
	t.GraceLeft = GraceSeconds
	t.TurnElapsed = 0
	t.Credited = 0
	t.Turn = s.CurrentTurn
	if !s.Complete() {
		t.TurnReserve = t.ReserveLeft.Get(s.Sequence[s.CurrentTurn].Side)
	}
}

// ProjectTimer returns the timer as it would read at now without touching s.
func ProjectTimer(s Session, now time.Time) TimerState {
	next := s.Clone()
	next.syncTimer(now)
	return next.Timer
}
