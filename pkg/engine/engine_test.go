package engine

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestSession(t *testing.T, mutate func(*Settings)) Session {
	t.Helper()
	cfg := DefaultSettings()
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := NewSession("ABC123", cfg, t0)
	require.NoError(t, err)
	return s
}

func mustApply(t *testing.T, s Session, cmd Command, now time.Time) Session {
	t.Helper()
	_, next, err := Apply(s, cmd, now)
	require.NoError(t, err, "command %+v", cmd)
	return next
}

// selectAt issues the right pick/ban for whatever slot is active.
func selectAt(s Session, character string) Command {
	slot := s.Sequence[s.CurrentTurn]
	typ := CmdPick
	if slot.Kind == KindBan {
		typ = CmdBan
	}
	return Command{Type: typ, Actor: RoleForSide(slot.Side), Index: s.CurrentTurn, Character: character}
}

// playOut fills every remaining slot with unique characters.
func playOut(t *testing.T, s Session, now time.Time) Session {
	t.Helper()
	for !s.Complete() {
		s = mustApply(t, s, selectAt(s, fmt.Sprintf("c%02d", s.CurrentTurn)), now)
	}
	return s
}

// firstPickSlot bans through the opening ban phase.
func firstPickSlot(t *testing.T, s Session) Session {
	t.Helper()
	for s.Sequence[s.CurrentTurn].Kind == KindBan {
		s = mustApply(t, s, selectAt(s, fmt.Sprintf("ban%d", s.CurrentTurn)), t0)
	}
	return s
}

func TestDuplicatePickIsRejected(t *testing.T) {
	s := firstPickSlot(t, newTestSession(t, nil))
	s = mustApply(t, s, selectAt(s, "kafka"), t0)   // blue
	s = mustApply(t, s, selectAt(s, "acheron"), t0) // red

	cases := []struct {
		name    string
		cmd     Command
		wantErr error
	}{
		{
			name:    "opponent already holds it",
			cmd:     Command{Type: CmdPick, Actor: RoleRed, Index: s.CurrentTurn, Character: "kafka"},
			wantErr: ErrIllegalPick,
		},
		{
			name:    "own side already holds it",
			cmd:     Command{Type: CmdPick, Actor: RoleRed, Index: s.CurrentTurn, Character: "acheron"},
			wantErr: ErrIllegalPick,
		},
		{
			name:    "wrong side",
			cmd:     Command{Type: CmdPick, Actor: RoleBlue, Index: s.CurrentTurn, Character: "firefly"},
			wantErr: ErrWrongSide,
		},
		{
			name:    "stale index",
			cmd:     Command{Type: CmdPick, Actor: RoleRed, Index: s.CurrentTurn - 1, Character: "firefly"},
			wantErr: ErrWrongTurn,
		},
		{
			name:    "ban on a pick slot",
			cmd:     Command{Type: CmdBan, Actor: RoleRed, Index: s.CurrentTurn, Character: "firefly"},
			wantErr: ErrWrongSlotKind,
		},
		{
			name:    "spectators cannot act",
			cmd:     Command{Type: CmdPick, Actor: RoleSpectator, Side: SideRed, Index: s.CurrentTurn, Character: "firefly"},
			wantErr: ErrNotPermitted,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, next, err := Apply(s, tc.cmd, t0)
			require.ErrorIs(t, err, tc.wantErr)
			assert.ErrorIs(t, err, ErrInvalidTransition, "every rejection is classified")
			assert.Equal(t, s, next)
		})
	}
}

func TestBannedSelectionIsClassified(t *testing.T) {
	s := firstPickSlot(t, newTestSession(t, nil))
	_, _, err := Apply(s, selectAt(s, "ban0"), t0)
	assert.ErrorIs(t, err, ErrBannedSelection)
	assert.NotErrorIs(t, err, ErrInvalidTransition)
}

func TestGlobalBanRejectsPickUnlessGlobalPick(t *testing.T) {
	cases := []struct {
		name     string
		featured []FeaturedOverride
		wantErr  error
	}{
		{
			name:     "global ban",
			featured: []FeaturedOverride{{Kind: FeaturedCharacter, ID: "jingliu", Rule: RuleGlobalBan}},
			wantErr:  ErrCharacterBanned,
		},
		{
			name: "global ban cancelled by global pick",
			featured: []FeaturedOverride{
				{Kind: FeaturedCharacter, ID: "jingliu", Rule: RuleGlobalBan},
				{Kind: FeaturedCharacter, ID: "jingliu", Rule: RuleGlobalPick},
			},
		},
		{
			name:     "light cone ban does not touch characters",
			featured: []FeaturedOverride{{Kind: FeaturedLightcone, ID: "jingliu", Rule: RuleGlobalBan}},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := firstPickSlot(t, newTestSession(t, func(c *Settings) { c.Featured = tc.featured }))
			_, _, err := Apply(s, selectAt(s, "jingliu"), t0)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestBanOfGlobalPickIsRejected(t *testing.T) {
	s := newTestSession(t, func(c *Settings) {
		c.Featured = []FeaturedOverride{{Kind: FeaturedCharacter, ID: "robin", Rule: RuleGlobalPick}}
	})

	_, next, err := Apply(s, Command{Type: CmdBan, Actor: RoleBlue, Index: 0, Character: "robin"}, t0)
	require.ErrorIs(t, err, ErrIllegalBan)
	assert.Equal(t, 0, next.CurrentTurn)
}

func TestBanOfPickedCharacterIsRejected(t *testing.T) {
	s := firstPickSlot(t, newTestSession(t, nil))
	for s.Sequence[s.CurrentTurn].Kind == KindPick {
		s = mustApply(t, s, selectAt(s, fmt.Sprintf("p%d", s.CurrentTurn)), t0)
	}
	_, _, err := Apply(s, selectAt(s, "p2"), t0)
	assert.ErrorIs(t, err, ErrIllegalBan)
}

func TestGlobalPickAllowsOneCopyPerSide(t *testing.T) {
	s := firstPickSlot(t, newTestSession(t, func(c *Settings) {
		c.Featured = []FeaturedOverride{{Kind: FeaturedCharacter, ID: "ruanmei", Rule: RuleGlobalPick}}
	}))
	s = mustApply(t, s, selectAt(s, "ruanmei"), t0) // blue
	s = mustApply(t, s, selectAt(s, "ruanmei"), t0) // red, second copy

	_, _, err := Apply(s, selectAt(s, "ruanmei"), t0) // red again
	assert.ErrorIs(t, err, ErrIllegalPick)
}

func TestAceSlotAllowsOpponentCharacter(t *testing.T) {
	s := newTestSession(t, func(c *Settings) { c.Mode = Mode3Ban })
	for !s.Sequence[s.CurrentTurn].Ace {
		s = mustApply(t, s, selectAt(s, fmt.Sprintf("c%02d", s.CurrentTurn)), t0)
	}
	ace := s.Sequence[s.CurrentTurn]
	require.Equal(t, SideRed, ace.Side)

	// c04 was blue's first pick (slot 4 in 3ban)
	require.Equal(t, SideBlue, s.Sequence[4].Side)
	s = mustApply(t, s, Command{Type: CmdPick, Actor: RoleRed, Index: s.CurrentTurn, Character: "c04"}, t0)

	// ACE still respects the own-side copy rule
	_, _, err := Apply(s, Command{Type: CmdPick, Actor: RoleBlue, Index: s.CurrentTurn, Character: "c04"}, t0)
	assert.ErrorIs(t, err, ErrIllegalPick)
}

func TestPickThenUndoRoundTrip(t *testing.T) {
	for _, mode := range []Mode{Mode2Ban, Mode3Ban, Mode6Ban} {
		t.Run(string(mode), func(t *testing.T) {
			s := firstPickSlot(t, newTestSession(t, func(c *Settings) { c.Mode = mode }))
			side := s.Sequence[s.CurrentTurn].Side

			events, picked, err := Apply(s, selectAt(s, "sparkle"), t0.Add(5*time.Second))
			require.NoError(t, err)
			assert.True(t, ContainsEvent(events, EvtCharacterPicked))
			assert.Equal(t, s.CurrentTurn+1, picked.CurrentTurn)

			events, undone, err := Apply(picked, Command{Type: CmdUndoLast, Actor: RoleForSide(side)}, t0.Add(9*time.Second))
			require.NoError(t, err)
			assert.True(t, ContainsEvent(events, EvtTurnRewound))

			assert.Equal(t, s.Sequence, undone.Sequence)
			assert.Equal(t, s.Picks, undone.Picks)
			assert.Equal(t, s.CurrentTurn, undone.CurrentTurn)
		})
	}
}

func TestUndoRules(t *testing.T) {
	fresh := newTestSession(t, nil)
	_, _, err := Apply(fresh, Command{Type: CmdUndoLast, Actor: RoleBlue}, t0)
	assert.ErrorIs(t, err, ErrNothingToUndo)

	s := mustApply(t, fresh, selectAt(fresh, "x"), t0) // blue ban
	_, _, err = Apply(s, Command{Type: CmdUndoLast, Actor: RoleRed}, t0)
	assert.ErrorIs(t, err, ErrWrongSide)

	locked := mustApply(t, s, Command{Type: CmdSetLock, Actor: RoleBlue, Locked: true}, t0)
	_, _, err = Apply(locked, Command{Type: CmdUndoLast, Actor: RoleBlue}, t0)
	assert.ErrorIs(t, err, ErrSideLocked)

	byOwner := mustApply(t, locked, Command{Type: CmdUndoLast, Actor: RoleOwner, Side: SideBlue}, t0)
	assert.Equal(t, 0, byOwner.CurrentTurn)
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	s := firstPickSlot(t, newTestSession(t, nil))
	before := s.Clone()

	_, next, err := Apply(s, selectAt(s, "huohuo"), t0)
	require.NoError(t, err)
	next.Picks[0].Character = "changed"

	assert.Equal(t, before, s)
}

func TestApply_EmitsDraftCompletedOnLastStep(t *testing.T) {
	s := newTestSession(t, nil)
	for s.CurrentTurn < len(s.Sequence)-1 {
		s = mustApply(t, s, selectAt(s, fmt.Sprintf("c%02d", s.CurrentTurn)), t0)
	}

	events, done, err := Apply(s, selectAt(s, "last"), t0)
	require.NoError(t, err)
	assert.True(t, ContainsEvent(events, EvtDraftCompleted))
	assert.True(t, done.Complete())
	assert.Equal(t, PhaseDone, DerivePhase(done))

	_, _, err = Apply(done, Command{Type: CmdPick, Actor: RoleBlue, Index: len(done.Sequence), Character: "more"}, t0)
	assert.ErrorIs(t, err, ErrGameAlreadyDone)
}

func TestPickEdits(t *testing.T) {
	s := firstPickSlot(t, newTestSession(t, func(c *Settings) {
		c.Featured = []FeaturedOverride{{Kind: FeaturedLightcone, ID: "cruising", Rule: RuleGlobalBan}}
	}))
	idx := s.CurrentTurn
	s = mustApply(t, s, selectAt(s, "seele"), t0) // blue

	cases := []struct {
		name    string
		cmd     Command
		wantErr error
		check   func(t *testing.T, p Pick)
	}{
		{
			name:  "eidolon",
			cmd:   Command{Type: CmdSetEidolon, Actor: RoleBlue, Index: idx, Value: 6},
			check: func(t *testing.T, p Pick) { assert.Equal(t, 6, p.Eidolon) },
		},
		{
			name:    "eidolon out of range",
			cmd:     Command{Type: CmdSetEidolon, Actor: RoleBlue, Index: idx, Value: 7},
			wantErr: ErrValueOutOfRange,
		},
		{
			name:  "light cone",
			cmd:   Command{Type: CmdSetLightcone, Actor: RoleBlue, Index: idx, Lightcone: "night"},
			check: func(t *testing.T, p Pick) { assert.Equal(t, "night", p.Lightcone) },
		},
		{
			name:    "banned light cone",
			cmd:     Command{Type: CmdSetLightcone, Actor: RoleBlue, Index: idx, Lightcone: "cruising"},
			wantErr: ErrLightconeBanned,
		},
		{
			name:    "superimpose out of range",
			cmd:     Command{Type: CmdSetSuperimpose, Actor: RoleBlue, Index: idx, Value: 0},
			wantErr: ErrValueOutOfRange,
		},
		{
			name:    "other side's slot",
			cmd:     Command{Type: CmdSetEidolon, Actor: RoleRed, Index: idx, Value: 1},
			wantErr: ErrWrongSide,
		},
		{
			name:    "ban slot",
			cmd:     Command{Type: CmdSetEidolon, Actor: RoleBlue, Index: 0, Value: 1},
			wantErr: ErrWrongSlotKind,
		},
		{
			name:    "empty slot",
			cmd:     Command{Type: CmdSetEidolon, Actor: RoleRed, Index: idx + 1, Value: 1},
			wantErr: ErrEmptySlot,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, next, err := Apply(s, tc.cmd, t0)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			tc.check(t, *next.Picks[idx])
		})
	}
}

func TestLightconeChangeResetsSuperimpose(t *testing.T) {
	s := firstPickSlot(t, newTestSession(t, nil))
	idx := s.CurrentTurn
	s = mustApply(t, s, selectAt(s, "seele"), t0)
	s = mustApply(t, s, Command{Type: CmdSetLightcone, Actor: RoleBlue, Index: idx, Lightcone: "a"}, t0)
	s = mustApply(t, s, Command{Type: CmdSetSuperimpose, Actor: RoleBlue, Index: idx, Value: 5}, t0)
	s = mustApply(t, s, Command{Type: CmdSetLightcone, Actor: RoleBlue, Index: idx, Lightcone: "b"}, t0)
	assert.Equal(t, 1, s.Picks[idx].Superimpose)
}

func TestLockAfterCompletion(t *testing.T) {
	s := playOut(t, newTestSession(t, nil), t0)
	idx := 2 // blue's first pick in 2ban
	require.Equal(t, SideBlue, s.Sequence[idx].Side)
	require.Equal(t, KindPick, s.Sequence[idx].Kind)

	s = mustApply(t, s, Command{Type: CmdSetLock, Actor: RoleBlue, Locked: true}, t0)

	edit := Command{Type: CmdSetEidolon, Actor: RoleBlue, Index: idx, Value: 2}
	_, _, err := Apply(s, edit, t0)
	require.ErrorIs(t, err, ErrSideLocked)

	_, _, err = Apply(s, Command{Type: CmdSetLock, Actor: RoleBlue, Locked: false}, t0)
	require.ErrorIs(t, err, ErrNotPermitted, "sides cannot unlock themselves")

	s = mustApply(t, s, Command{Type: CmdSetLock, Actor: RoleOwner, Side: SideBlue, Locked: false}, t0)
	s = mustApply(t, s, edit, t0)
	assert.Equal(t, 2, s.Picks[idx].Eidolon)
}

func TestLockBeforeCompletionStillAllowsEdits(t *testing.T) {
	s := firstPickSlot(t, newTestSession(t, nil))
	idx := s.CurrentTurn
	s = mustApply(t, s, selectAt(s, "seele"), t0)
	s = mustApply(t, s, Command{Type: CmdSetLock, Actor: RoleBlue, Locked: true}, t0)
	s = mustApply(t, s, Command{Type: CmdSetEidolon, Actor: RoleBlue, Index: idx, Value: 1}, t0)
	assert.Equal(t, 1, s.Picks[idx].Eidolon)
}

func TestFinalize(t *testing.T) {
	s := newTestSession(t, func(c *Settings) { c.PlayerCount = 1 })
	_, _, err := Apply(s, Command{Type: CmdFinalize, Actor: RoleOwner}, t0)
	require.ErrorIs(t, err, ErrDraftIncomplete)

	s = playOut(t, s, t0)
	_, _, err = Apply(s, Command{Type: CmdFinalize, Actor: RoleOwner}, t0)
	require.ErrorIs(t, err, ErrScoresIncomplete)

	cfg := s.Settings()
	cfg.Scores = PerSide[[]*float64]{Blue: []*float64{ptr(3.0)}, Red: []*float64{ptr(4.0)}}
	_, s, err = ApplySettings(s, cfg, t0)
	require.NoError(t, err)

	_, _, err = Apply(s, Command{Type: CmdFinalize, Actor: RoleBlue}, t0)
	require.ErrorIs(t, err, ErrNotPermitted)

	done := t0.Add(time.Hour)
	s = mustApply(t, s, Command{Type: CmdFinalize, Actor: RoleOwner}, done)
	assert.True(t, s.Finalized)
	require.NotNil(t, s.CompletedAt)
	assert.Equal(t, done, *s.CompletedAt)

	cfg.Scores.Blue[0] = ptr(9.0)
	_, _, err = ApplySettings(s, cfg, t0)
	assert.ErrorIs(t, err, ErrFinalized, "scores are locked while finalized")

	s = mustApply(t, s, Command{Type: CmdUnfinalize, Actor: RoleOwner}, t0)
	assert.False(t, s.Finalized)
	assert.Nil(t, s.CompletedAt)
	_, _, err = ApplySettings(s, cfg, t0)
	assert.NoError(t, err)
}

func TestSetMode(t *testing.T) {
	s := newTestSession(t, nil)
	s = mustApply(t, s, Command{Type: CmdSetMode, Actor: RoleOwner, Mode: Mode6Ban}, t0)
	assert.Len(t, s.Sequence, 28)
	assert.Len(t, s.Picks, 28)

	_, _, err := Apply(s, Command{Type: CmdSetMode, Actor: RoleRed, Mode: Mode2Ban}, t0)
	assert.ErrorIs(t, err, ErrNotPermitted)

	s = mustApply(t, s, selectAt(s, "x"), t0)
	_, _, err = Apply(s, Command{Type: CmdSetMode, Actor: RoleOwner, Mode: Mode2Ban}, t0)
	assert.ErrorIs(t, err, ErrModeLocked)
}

func TestApplySettingsValidation(t *testing.T) {
	s := newTestSession(t, nil)
	cases := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"zero breakpoint", func(c *Settings) { c.CycleBreakpoint = 0 }},
		{"too many players", func(c *Settings) { c.PlayerCount = MaxPlayerCount + 1 }},
		{"negative extra penalty", func(c *Settings) { c.ExtraCyclePenalty.Red = -1 }},
		{"unknown rule", func(c *Settings) {
			c.Featured = []FeaturedOverride{{Kind: FeaturedCharacter, ID: "x", Rule: "sometimes"}}
		}},
		{"more scores than players", func(c *Settings) {
			c.Scores.Blue = []*float64{ptr(1), ptr(2), ptr(3)}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := s.Settings()
			tc.mutate(&cfg)
			_, next, err := ApplySettings(s, cfg, t0)
			assert.ErrorIs(t, err, ErrInvalidSettings)
			assert.Equal(t, s, next)
		})
	}
}

func TestApplySettingsNormalizesNames(t *testing.T) {
	s := newTestSession(t, nil)
	cfg := s.Settings()
	cfg.Names = PerSide[string]{Blue: "  Café  ", Red: ""}
	_, s, err := ApplySettings(s, cfg, t0)
	require.NoError(t, err)
	assert.Equal(t, "Café", s.Names.Blue)
	assert.Equal(t, "Red", s.Names.Red)
}

func TestConcurrentPicksOnlyOneWins(t *testing.T) {
	s := firstPickSlot(t, newTestSession(t, nil))
	a := selectAt(s, "aventurine")
	b := selectAt(s, "topaz")

	_, afterA, errA := Apply(s, a, t0)
	_, _, errB := Apply(afterA, b, t0)
	require.NoError(t, errA)
	assert.ErrorIs(t, errB, ErrInvalidTransition)
}

func ptr(v float64) *float64 { return &v }
