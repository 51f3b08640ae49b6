package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildSequence(t *testing.T) {
	cases := []struct {
		mode       Mode
		wantLen    int
		wantBans   int
		wantAces   int
		equivalent Mode
	}{
		{mode: Mode2Ban, wantLen: 20, wantBans: 2, wantAces: 0, equivalent: Mode2Ban},
		{mode: Mode3Ban, wantLen: 22, wantBans: 3, wantAces: 1, equivalent: Mode3Ban},
		{mode: Mode6Ban, wantLen: 28, wantBans: 6, wantAces: 1, equivalent: Mode6Ban},
		{mode: "9ban", wantLen: 20, wantBans: 2, wantAces: 0, equivalent: Mode2Ban},
		{mode: "", wantLen: 20, wantBans: 2, wantAces: 0, equivalent: Mode2Ban},
	}

	for _, tc := range cases {
		t.Run(string(tc.mode), func(t *testing.T) {
			seq := BuildSequence(tc.mode)
			assert.Equal(t, seq, BuildSequence(tc.mode), "deterministic")
			assert.Equal(t, BuildSequence(tc.equivalent), seq)
			assert.Len(t, seq, tc.wantLen)

			for _, side := range []Side{SideBlue, SideRed} {
				var bans, picks, aces, firsts int
				firstIdx := -1
				for i, slot := range seq {
					if slot.Side != side {
						continue
					}
					switch slot.Kind {
					case KindBan:
						bans++
						if firstIdx < 0 {
							firstIdx = i
						}
					case KindPick:
						picks++
					}
					if slot.Ace {
						aces++
					}
					if slot.FirstBan {
						firsts++
						assert.Equal(t, firstIdx, i, "first ban flag sits on the side's first ban")
					}
				}
				assert.Equal(t, tc.wantBans, bans, "bans for %s", side)
				assert.Equal(t, 8, picks, "picks for %s", side)
				assert.Equal(t, tc.wantAces, aces, "aces for %s", side)
				assert.Equal(t, 1, firsts, "first-ban flags for %s", side)
			}
		})
	}
}

func TestBuildSequence_ReturnsFreshSlice(t *testing.T) {
	a := BuildSequence(Mode2Ban)
	a[0].Side = SideRed
	assert.Equal(t, SideBlue, BuildSequence(Mode2Ban)[0].Side)
}

func TestOrderLookup(t *testing.T) {
	seq := BuildSequence(Mode6Ban)
	cases := []struct {
		name string
		idx  int
		want Slot
	}{
		{"blue opening ban", 0, Slot{Side: SideBlue, Kind: KindBan, FirstBan: true}},
		{"red opening ban", 1, Slot{Side: SideRed, Kind: KindBan, FirstBan: true}},
		{"blue first pick", 6, Slot{Side: SideBlue, Kind: KindPick}},
		{"red second ban phase", 14, Slot{Side: SideRed, Kind: KindBan}},
		{"red ace", 20, Slot{Side: SideRed, Kind: KindPick, Ace: true}},
		{"blue ace", 21, Slot{Side: SideBlue, Kind: KindPick, Ace: true}},
		{"blue last pick", 27, Slot{Side: SideBlue, Kind: KindPick}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, seq[tc.idx])
		})
	}
}
