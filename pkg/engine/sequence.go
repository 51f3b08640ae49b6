package engine

type Mode string

const (
	Mode2Ban Mode = "2ban"
	Mode3Ban Mode = "3ban"
	Mode6Ban Mode = "6ban"
)

// NormalizeMode coerces unknown modes to the default.
func NormalizeMode(m Mode) Mode {
	switch m {
	case Mode2Ban, Mode3Ban, Mode6Ban:
		return m
	default:
		return Mode2Ban
	}
}

const (
	sb = SideBlue
	sr = SideRed
)

func bans(sides ...Side) []Slot  { return run(KindBan, false, sides) }
func picks(sides ...Side) []Slot { return run(KindPick, false, sides) }
func aces(sides ...Side) []Slot  { return run(KindPick, true, sides) }

func run(kind Kind, ace bool, sides []Side) []Slot {
	out := make([]Slot, len(sides))
	for i, s := range sides {
		out[i] = Slot{Side: s, Kind: kind, Ace: ace}
	}
	return out
}

// Each side gets 8 pick slots in every mode; the mode name is the bans per side.
var modeOrder = map[Mode][][]Slot{
	Mode2Ban: {
		bans(sb, sr),
		picks(sb, sr, sr, sb, sb, sr, sr, sb),
		bans(sr, sb),
		picks(sr, sb, sb, sr, sr, sb, sb, sr),
	},
	Mode3Ban: {
		bans(sb, sr, sb, sr),
		picks(sb, sr, sr, sb, sb, sr, sr, sb),
		aces(sr, sb),
		bans(sr, sb),
		picks(sr, sb, sb, sr, sr, sb),
	},
	Mode6Ban: {
		bans(sb, sr, sb, sr, sb, sr),
		picks(sb, sr, sr, sb, sb, sr, sr, sb),
		bans(sr, sb, sr, sb, sr, sb),
		aces(sr, sb),
		picks(sr, sb, sb, sr, sr, sb),
	},
}

// BuildSequence returns a fresh slot list for the mode.
func BuildSequence(m Mode) []Slot {
	var seq []Slot
	for _, phase := range modeOrder[NormalizeMode(m)] {
		seq = append(seq, phase...)
	}

	seen := map[Side]bool{}
	for i := range seq {
		if seq[i].Kind == KindBan && !seen[seq[i].Side] {
			seq[i].FirstBan = true
			seen[seq[i].Side] = true
		}
	}
	return seq
}
