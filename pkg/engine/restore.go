package engine

import (
	"fmt"
	"time"
)

// Restore replays an imported prefix of filled slots onto a fresh session.
// Each slot goes through Apply as the owner, so an import obeys the same
// ban, duplicate and ACE rules as a live draft. nil entries end the prefix;
// a filled slot after a nil one is rejected.
func Restore(s Session, picks []*Pick, now time.Time) (Session, error) {
	if len(picks) > len(s.Sequence) {
		return s, fmt.Errorf("%w: %d slots for a %d slot sequence", ErrValueOutOfRange, len(picks), len(s.Sequence))
	}
	next := s
	for i, p := range picks {
		if p == nil {
			for _, rest := range picks[i:] {
				if rest != nil {
					return s, fmt.Errorf("slot %d: %w", i, ErrEmptySlot)
				}
			}
			break
		}
		slot := next.Sequence[i]
		cmds := []Command{{Type: CmdPick, Side: slot.Side, Index: i, Character: p.Character}}
		if slot.Kind == KindBan {
			cmds[0].Type = CmdBan
		} else {
			if p.Eidolon != MinEidolon {
				cmds = append(cmds, Command{Type: CmdSetEidolon, Side: slot.Side, Index: i, Value: p.Eidolon})
			}
			if p.Lightcone != "" {
				cmds = append(cmds, Command{Type: CmdSetLightcone, Side: slot.Side, Index: i, Lightcone: p.Lightcone})
				if p.Superimpose > MinSuperimpose {
					cmds = append(cmds, Command{Type: CmdSetSuperimpose, Side: slot.Side, Index: i, Value: p.Superimpose})
				}
			}
		}
		for _, cmd := range cmds {
			cmd.Actor = RoleOwner
			var err error
			if _, next, err = Apply(next, cmd, now); err != nil {
				return s, fmt.Errorf("slot %d: %w", i, err)
			}
		}
	}
	return next, nil
}
