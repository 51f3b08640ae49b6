package engine

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// ErrInvalidTransition and ErrBannedSelection classify every rejection Apply returns.
var (
	ErrInvalidTransition = errors.New("invalid transition")
	ErrBannedSelection   = errors.New("banned selection")
)

var (
	ErrWrongTurn          = fmt.Errorf("%w: invalid turn", ErrInvalidTransition)
	ErrWrongSide          = fmt.Errorf("%w: slot belongs to the other side", ErrInvalidTransition)
	ErrWrongSlotKind      = fmt.Errorf("%w: slot kind does not match command", ErrInvalidTransition)
	ErrNotPermitted       = fmt.Errorf("%w: actor may not issue this command", ErrInvalidTransition)
	ErrIllegalPick        = fmt.Errorf("%w: illegal character", ErrInvalidTransition)
	ErrIllegalBan         = fmt.Errorf("%w: illegal ban", ErrInvalidTransition)
	ErrGameAlreadyDone    = fmt.Errorf("%w: draft already completed", ErrInvalidTransition)
	ErrNothingToUndo      = fmt.Errorf("%w: nothing to undo", ErrInvalidTransition)
	ErrSideLocked         = fmt.Errorf("%w: side is locked", ErrInvalidTransition)
	ErrFinalized          = fmt.Errorf("%w: session is finalized", ErrInvalidTransition)
	ErrNotFinalized       = fmt.Errorf("%w: session is not finalized", ErrInvalidTransition)
	ErrEmptySlot          = fmt.Errorf("%w: slot is not filled", ErrInvalidTransition)
	ErrValueOutOfRange    = fmt.Errorf("%w: value out of range", ErrInvalidTransition)
	ErrDraftIncomplete    = fmt.Errorf("%w: draft is not complete", ErrInvalidTransition)
	ErrScoresIncomplete   = fmt.Errorf("%w: scores are not all entered", ErrInvalidTransition)
	ErrModeLocked         = fmt.Errorf("%w: mode can only change before the first action", ErrInvalidTransition)
	ErrTimerIdle          = fmt.Errorf("%w: timer is not running", ErrInvalidTransition)
	ErrNoChange           = fmt.Errorf("%w: command does not change state", ErrInvalidTransition)
	ErrInvalidSettings    = fmt.Errorf("%w: invalid settings", ErrInvalidTransition)
	ErrUnsupportedCommand = fmt.Errorf("%w: unsupported command", ErrInvalidTransition)

	ErrCharacterBanned = fmt.Errorf("%w: character is banned", ErrBannedSelection)
	ErrLightconeBanned = fmt.Errorf("%w: light cone is banned", ErrBannedSelection)
)

type Side string

const (
	SideBlue Side = "blue"
	SideRed  Side = "red"
)

func (s Side) Valid() bool { return s == SideBlue || s == SideRed }

func (s Side) Opponent() Side {
	if s == SideBlue {
		return SideRed
	}
	return SideBlue
}

// Role is who issued a command. Owners may act for either side.
type Role string

const (
	RoleOwner     Role = "owner"
	RoleBlue      Role = "blue"
	RoleRed       Role = "red"
	RoleSpectator Role = "spectator"
)

func RoleForSide(s Side) Role {
	if s == SideRed {
		return RoleRed
	}
	return RoleBlue
}

func (r Role) Side() (Side, bool) {
	switch r {
	case RoleBlue:
		return SideBlue, true
	case RoleRed:
		return SideRed, true
	default:
		return "", false
	}
}

type Kind string

const (
	KindBan  Kind = "ban"
	KindPick Kind = "pick"
)

type Slot struct {
	Side     Side `json:"side"`
	Kind     Kind `json:"kind"`
	FirstBan bool `json:"firstBan,omitempty"`
	Ace      bool `json:"ace,omitempty"`
}

// Pick fills a slot. Ban slots only carry Character.
type Pick struct {
	Character   string `json:"character"`
	Eidolon     int    `json:"eidolon"`
	Lightcone   string `json:"lightcone,omitempty"`
	Superimpose int    `json:"superimpose"`
}

// PerSide holds one value for each team.
type PerSide[T any] struct {
	Blue T `json:"blue"`
	Red  T `json:"red"`
}

func (p PerSide[T]) Get(s Side) T {
	if s == SideRed {
		return p.Red
	}
	return p.Blue
}

func (p *PerSide[T]) Set(s Side, v T) {
	if s == SideRed {
		p.Red = v
		return
	}
	p.Blue = v
}

type PenaltyToggles struct {
	Cost  bool `json:"cost"`
	Timer bool `json:"timer"`
}

type Session struct {
	Key               string              `json:"key"`
	Mode              Mode                `json:"mode"`
	Sequence          []Slot              `json:"sequence"`
	Picks             []*Pick             `json:"picks"`
	CurrentTurn       int                 `json:"currentTurn"`
	Names             PerSide[string]     `json:"names"`
	Featured          []FeaturedOverride  `json:"featured"`
	CostProfile       string              `json:"costProfile"`
	CycleBreakpoint   int                 `json:"cycleBreakpoint"`
	PlayerCount       int                 `json:"playerCount"`
	Locks             PerSide[bool]       `json:"locks"`
	Scores            PerSide[[]*float64] `json:"scores"`
	ExtraCyclePenalty PerSide[float64]    `json:"extraCyclePenalty"`
	Penalties         PenaltyToggles      `json:"penalties"`
	Timer             TimerState          `json:"timer"`
	Finalized         bool                `json:"finalized"`
	CreatedAt         time.Time           `json:"createdAt"`
	CompletedAt       *time.Time          `json:"completedAt,omitempty"`
}

func (s Session) Complete() bool { return s.CurrentTurn >= len(s.Sequence) }

type CommandType string

const (
	CmdPick           CommandType = "pick"
	CmdBan            CommandType = "ban"
	CmdUndoLast       CommandType = "undoLast"
	CmdSetEidolon     CommandType = "setEidolon"
	CmdSetLightcone   CommandType = "setLightcone"
	CmdSetSuperimpose CommandType = "setSuperimpose"
	CmdSetLock        CommandType = "setLock"
	CmdFinalize       CommandType = "finalize"
	CmdUnfinalize     CommandType = "unfinalize"
	CmdSetMode        CommandType = "setMode"
	CmdSetPaused      CommandType = "setPaused"
	CmdSync           CommandType = "sync"
)

/*
	CmdPick / CmdBan    -> EvtCharacterPicked|EvtCharacterBanned -> EvtTurnAdvanced (-> EvtDraftCompleted)
	CmdUndoLast         -> EvtPickCleared -> EvtTurnRewound
	CmdSet*             -> EvtPickUpdated
	CmdSetLock          -> EvtSideLocked|EvtSideUnlocked
	CmdSync             -> EvtTimerSynced (-> EvtPenaltyCharged)
*/

type Command struct {
	Type      CommandType `json:"op"`
	Actor     Role        `json:"-"`
	Side      Side        `json:"side,omitempty"`
	Index     int         `json:"index"`
	Character string      `json:"character,omitempty"`
	Lightcone string      `json:"lightcone,omitempty"`
	Value     int         `json:"value,omitempty"`
	Locked    bool        `json:"locked,omitempty"`
	Paused    bool        `json:"paused,omitempty"`
	Mode      Mode        `json:"mode,omitempty"`
}

type EventType string

const (
	EvtCharacterPicked EventType = "CharacterPicked"
	EvtCharacterBanned EventType = "CharacterBanned"
	EvtPickCleared     EventType = "PickCleared"
	EvtTurnAdvanced    EventType = "TurnAdvanced"
	EvtTurnRewound     EventType = "TurnRewound"
	EvtDraftCompleted  EventType = "DraftCompleted"
	EvtPickUpdated     EventType = "PickUpdated"
	EvtSideLocked      EventType = "SideLocked"
	EvtSideUnlocked    EventType = "SideUnlocked"
	EvtFinalized       EventType = "Finalized"
	EvtUnfinalized     EventType = "Unfinalized"
	EvtModeChanged     EventType = "ModeChanged"
	EvtTimerPaused     EventType = "TimerPaused"
	EvtTimerResumed    EventType = "TimerResumed"
	EvtTimerSynced     EventType = "TimerSynced"
	EvtPenaltyCharged  EventType = "PenaltyCharged"
	EvtSettingsChanged EventType = "SettingsChanged"
)

type Event struct {
	Type      EventType `json:"type"`
	Side      Side      `json:"side,omitempty"`
	Index     int       `json:"index,omitempty"`
	Character string    `json:"character,omitempty"`
}

// Apply validates cmd against s and returns the next state. s is never mutated;
// on error the returned state is s itself.
func Apply(s Session, cmd Command, now time.Time) ([]Event, Session, error) {
	side, err := actingSide(cmd)
	if err != nil {
		return nil, s, err
	}

	next := s.Clone()
	var events []Event

	switch cmd.Type {
	case CmdPick, CmdBan:
		events, err = applySelection(&next, side, cmd, now)
	case CmdUndoLast:
		events, err = applyUndo(&next, side, cmd, now)
	case CmdSetEidolon, CmdSetLightcone, CmdSetSuperimpose:
		events, err = applyPickEdit(&next, side, cmd)
	case CmdSetLock:
		events, err = applyLock(&next, side, cmd)
	case CmdFinalize:
		events, err = applyFinalize(&next, cmd, now)
	case CmdUnfinalize:
		events, err = applyUnfinalize(&next, cmd)
	case CmdSetMode:
		events, err = applySetMode(&next, cmd, now)
	case CmdSetPaused:
		events, err = applyPause(&next, side, cmd, now)
	case CmdSync:
		events, err = applySync(&next, now)
	default:
		err = ErrUnsupportedCommand
	}
	if err != nil {
		return nil, s, err
	}
	return events, next, nil
}

// actingSide resolves the side a command acts for. Sides may only act for
// themselves; the owner names the side explicitly.
func actingSide(cmd Command) (Side, error) {
	switch cmd.Actor {
	case RoleOwner:
		return cmd.Side, nil
	case RoleBlue, RoleRed:
		own, _ := cmd.Actor.Side()
		if cmd.Side != "" && cmd.Side != own {
			return "", ErrWrongSide
		}
		return own, nil
	default:
		return "", ErrNotPermitted
	}
}

func applySelection(s *Session, side Side, cmd Command, now time.Time) ([]Event, error) {
	if s.Complete() {
		return nil, ErrGameAlreadyDone
	}
	if cmd.Index != s.CurrentTurn {
		return nil, ErrWrongTurn
	}
	slot := s.Sequence[s.CurrentTurn]
	if slot.Side != side {
		return nil, ErrWrongSide
	}
	want := KindPick
	if cmd.Type == CmdBan {
		want = KindBan
	}
	if slot.Kind != want {
		return nil, ErrWrongSlotKind
	}
	if cmd.Character == "" {
		return nil, ErrIllegalPick
	}
	if s.EffectiveBans()[cmd.Character] {
		return nil, ErrCharacterBanned
	}

	var evt EventType
	switch slot.Kind {
	case KindBan:
		if !canBan(*s, cmd.Character) {
			return nil, ErrIllegalBan
		}
		evt = EvtCharacterBanned
	default:
		if !canPick(*s, side, slot, cmd.Character) {
			return nil, ErrIllegalPick
		}
		evt = EvtCharacterPicked
	}

	s.syncTimer(now)
	s.Picks[s.CurrentTurn] = &Pick{Character: cmd.Character, Superimpose: 1}
	events := []Event{
		{Type: evt, Side: side, Index: s.CurrentTurn, Character: cmd.Character},
		{Type: EvtTurnAdvanced, Index: s.CurrentTurn + 1},
	}
	s.CurrentTurn++
	s.resetTurnClock()

	if s.Complete() {
		events = append(events, Event{Type: EvtDraftCompleted})
	}
	return events, nil
}

func applyUndo(s *Session, side Side, cmd Command, now time.Time) ([]Event, error) {
	if s.CurrentTurn <= 0 {
		return nil, ErrNothingToUndo
	}
	if s.Finalized {
		return nil, ErrFinalized
	}
	last := s.CurrentTurn - 1
	if s.Sequence[last].Side != side {
		return nil, ErrWrongSide
	}
	if cmd.Actor != RoleOwner && s.Locks.Get(side) {
		return nil, ErrSideLocked
	}

	s.syncTimer(now)
	cleared := s.Picks[last]
	s.Picks[last] = nil
	s.CurrentTurn = last
	s.resetTurnClock()

	evt := Event{Type: EvtPickCleared, Side: side, Index: last}
	if cleared != nil {
		evt.Character = cleared.Character
	}
	return []Event{evt, {Type: EvtTurnRewound, Index: last}}, nil
}

func applyPickEdit(s *Session, side Side, cmd Command) ([]Event, error) {
	if s.Finalized {
		return nil, ErrFinalized
	}
	if cmd.Index < 0 || cmd.Index >= len(s.Sequence) {
		return nil, ErrWrongTurn
	}
	slot := s.Sequence[cmd.Index]
	if slot.Side != side {
		return nil, ErrWrongSide
	}
	if slot.Kind != KindPick {
		return nil, ErrWrongSlotKind
	}
	p := s.Picks[cmd.Index]
	if p == nil {
		return nil, ErrEmptySlot
	}
	if s.Complete() && cmd.Actor != RoleOwner && s.Locks.Get(side) {
		return nil, ErrSideLocked
	}

	switch cmd.Type {
	case CmdSetEidolon:
		if cmd.Value < MinEidolon || cmd.Value > MaxEidolon {
			return nil, ErrValueOutOfRange
		}
		p.Eidolon = cmd.Value
	case CmdSetSuperimpose:
		if cmd.Value < MinSuperimpose || cmd.Value > MaxSuperimpose {
			return nil, ErrValueOutOfRange
		}
		p.Superimpose = cmd.Value
	case CmdSetLightcone:
		if cmd.Lightcone != "" && s.featuredBanned(FeaturedLightcone, cmd.Lightcone) {
			return nil, ErrLightconeBanned
		}
		if p.Lightcone != cmd.Lightcone {
			p.Superimpose = MinSuperimpose
		}
		p.Lightcone = cmd.Lightcone
	}
	return []Event{{Type: EvtPickUpdated, Side: side, Index: cmd.Index, Character: p.Character}}, nil
}

func applyLock(s *Session, side Side, cmd Command) ([]Event, error) {
	if !side.Valid() {
		return nil, ErrWrongSide
	}
	if cmd.Actor != RoleOwner {
		if !cmd.Locked {
			return nil, ErrNotPermitted
		}
		if s.Locks.Get(side) {
			return nil, ErrNoChange
		}
	}
	s.Locks.Set(side, cmd.Locked)
	if cmd.Locked {
		return []Event{{Type: EvtSideLocked, Side: side}}, nil
	}
	return []Event{{Type: EvtSideUnlocked, Side: side}}, nil
}

func applyFinalize(s *Session, cmd Command, now time.Time) ([]Event, error) {
	if cmd.Actor != RoleOwner {
		return nil, ErrNotPermitted
	}
	if s.Finalized {
		return nil, ErrFinalized
	}
	if !s.Complete() {
		return nil, ErrDraftIncomplete
	}
	if !s.scoresComplete() {
		return nil, ErrScoresIncomplete
	}
	s.syncTimer(now)
	s.Finalized = true
	at := now
	s.CompletedAt = &at
	return []Event{{Type: EvtFinalized}}, nil
}

func applyUnfinalize(s *Session, cmd Command) ([]Event, error) {
	if cmd.Actor != RoleOwner {
		return nil, ErrNotPermitted
	}
	if !s.Finalized {
		return nil, ErrNotFinalized
	}
	s.Finalized = false
	s.CompletedAt = nil
	return []Event{{Type: EvtUnfinalized}}, nil
}

func applySetMode(s *Session, cmd Command, now time.Time) ([]Event, error) {
	if cmd.Actor != RoleOwner {
		return nil, ErrNotPermitted
	}
	if s.CurrentTurn != 0 {
		return nil, ErrModeLocked
	}
	s.syncTimer(now)
	s.setMode(cmd.Mode)
	return []Event{{Type: EvtModeChanged}}, nil
}

func applyPause(s *Session, side Side, cmd Command, now time.Time) ([]Event, error) {
	if cmd.Actor != RoleOwner {
		return nil, ErrNotPermitted
	}
	if !side.Valid() {
		return nil, ErrWrongSide
	}
	if s.Timer.Paused.Get(side) == cmd.Paused {
		return nil, ErrNoChange
	}
	s.syncTimer(now)
	s.Timer.Paused.Set(side, cmd.Paused)
	if cmd.Paused {
		return []Event{{Type: EvtTimerPaused, Side: side}}, nil
	}
	return []Event{{Type: EvtTimerResumed, Side: side}}, nil
}

func applySync(s *Session, now time.Time) ([]Event, error) {
	side, ok := s.burningSide()
	if !ok || !now.After(s.Timer.LastSyncedAt) {
		return nil, ErrTimerIdle
	}
	before := s.Timer.PenaltyCount.Get(side)
	s.syncTimer(now)
	events := []Event{{Type: EvtTimerSynced, Side: side}}
	if s.Timer.PenaltyCount.Get(side) > before {
		events = append(events, Event{Type: EvtPenaltyCharged, Side: side})
	}
	return events, nil
}

func holds(s Session, side Side, id string) bool {
	for i, slot := range s.Sequence {
		if slot.Side != side || slot.Kind != KindPick {
			continue
		}
		if p := s.Picks[i]; p != nil && p.Character == id {
			return true
		}
	}
	return false
}

func hasPick(s Session, id string) bool {
	return holds(s, SideBlue, id) || holds(s, SideRed, id)
}

func canPick(s Session, side Side, slot Slot, id string) bool {
	// one copy per side, always; ACE slots do not lift this even for globalPick
	if holds(s, side, id) {
		return false
	}
	if holds(s, side.Opponent(), id) {
		return slot.Ace || s.featuredPicked(FeaturedCharacter, id)
	}
	return true
}

func canBan(s Session, id string) bool {
	if s.featuredPicked(FeaturedCharacter, id) {
		return false
	}
	return !hasPick(s, id)
}

func (s Session) scoresComplete() bool {
	for _, side := range []Side{SideBlue, SideRed} {
		scores := s.Scores.Get(side)
		if len(scores) != s.PlayerCount || slices.Contains(scores, nil) {
			return false
		}
	}
	return true
}
