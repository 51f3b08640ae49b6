package engine

import (
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	DefaultCycleBreakpoint = 4
	DefaultPlayerCount     = 2
	MaxPlayerCount         = 4
	MaxNameRunes           = 64
)

// Settings are the owner-mediated fields of a session.
type Settings struct {
	Names             PerSide[string]     `json:"names"`
	Mode              Mode                `json:"mode"`
	Featured          []FeaturedOverride  `json:"featured"`
	CostProfile       string              `json:"costProfile"`
	CycleBreakpoint   int                 `json:"cycleBreakpoint"`
	PlayerCount       int                 `json:"playerCount"`
	Scores            PerSide[[]*float64] `json:"scores"`
	ExtraCyclePenalty PerSide[float64]    `json:"extraCyclePenalty"`
	Penalties         PenaltyToggles      `json:"penalties"`
	Timer             TimerSettings       `json:"timer"`
}

type TimerSettings struct {
	Enabled        bool    `json:"enabled"`
	ReserveSeconds float64 `json:"reserveSeconds"`
}

func DefaultSettings() Settings {
	return Settings{
		Names:           PerSide[string]{Blue: "Blue", Red: "Red"},
		Mode:            Mode2Ban,
		CostProfile:     "default",
		CycleBreakpoint: DefaultCycleBreakpoint,
		PlayerCount:     DefaultPlayerCount,
		Penalties:       PenaltyToggles{Cost: true, Timer: true},
		Timer:           TimerSettings{Enabled: true, ReserveSeconds: DefaultReserveSeconds},
	}
}

// NewSession seeds a session from validated settings.
func NewSession(key string, cfg Settings, now time.Time) (Session, error) {
	if err := cfg.validate(); err != nil {
		return Session{}, err
	}
	s := Session{
		Key:       key,
		CreatedAt: now,
		Timer:     newTimer(cfg.Timer.Enabled, cfg.Timer.ReserveSeconds, now),
	}
	s.copySettings(cfg)
	s.setMode(cfg.Mode)
	return s, nil
}

// ApplySettings is the owner's whole-document update. Picks, turn and locks
// are left alone; it either applies every field or none.
func ApplySettings(s Session, cfg Settings, now time.Time) ([]Event, Session, error) {
	if err := cfg.validate(); err != nil {
		return nil, s, err
	}
	mode := NormalizeMode(cfg.Mode)
	if mode != s.Mode && s.CurrentTurn != 0 {
		return nil, s, ErrModeLocked
	}
	if s.Finalized && !sameScores(s.Scores, fitScores(cfg.Scores, cfg.PlayerCount)) {
		return nil, s, ErrFinalized
	}
	if cfg.Timer.ReserveSeconds != s.Timer.ReserveSeconds && s.CurrentTurn != 0 {
		return nil, s, ErrInvalidSettings
	}

	next := s.Clone()
	next.syncTimer(now)
	next.copySettings(cfg)
	next.Timer.Enabled = cfg.Timer.Enabled
	if cfg.Timer.ReserveSeconds != s.Timer.ReserveSeconds {
		next.Timer.ReserveSeconds = cfg.Timer.ReserveSeconds
		next.Timer.ReserveLeft = PerSide[float64]{Blue: cfg.Timer.ReserveSeconds, Red: cfg.Timer.ReserveSeconds}
		next.resetTurnClock()
	}
	if mode != s.Mode {
		next.setMode(mode)
	}
	return []Event{{Type: EvtSettingsChanged}}, next, nil
}

// Settings reads back the owner-mediated fields.
func (s Session) Settings() Settings {
	return Settings{
		Names:             s.Names,
		Mode:              s.Mode,
		Featured:          slices.Clone(s.Featured),
		CostProfile:       s.CostProfile,
		CycleBreakpoint:   s.CycleBreakpoint,
		PlayerCount:       s.PlayerCount,
		Scores:            PerSide[[]*float64]{Blue: cloneScores(s.Scores.Blue), Red: cloneScores(s.Scores.Red)},
		ExtraCyclePenalty: s.ExtraCyclePenalty,
		Penalties:         s.Penalties,
		Timer:             TimerSettings{Enabled: s.Timer.Enabled, ReserveSeconds: s.Timer.ReserveSeconds},
	}
}

func (s *Session) copySettings(cfg Settings) {
	s.Names = PerSide[string]{Blue: NormalizeName(cfg.Names.Blue, "Blue"), Red: NormalizeName(cfg.Names.Red, "Red")}
	s.Featured = slices.Clone(cfg.Featured)
	s.CostProfile = cfg.CostProfile
	s.CycleBreakpoint = cfg.CycleBreakpoint
	s.PlayerCount = cfg.PlayerCount
	s.Scores = fitScores(cfg.Scores, cfg.PlayerCount)
	s.ExtraCyclePenalty = cfg.ExtraCyclePenalty
	s.Penalties = cfg.Penalties
}

func (s *Session) setMode(m Mode) {
	s.Mode = NormalizeMode(m)
	s.Sequence = BuildSequence(s.Mode)
	s.Picks = make([]*Pick, len(s.Sequence))
	s.CurrentTurn = 0
	s.resetTurnClock()
}

func (cfg Settings) validate() error {
	if cfg.CycleBreakpoint < 1 || cfg.PlayerCount < 1 || cfg.PlayerCount > MaxPlayerCount {
		return ErrInvalidSettings
	}
	if cfg.ExtraCyclePenalty.Blue < 0 || cfg.ExtraCyclePenalty.Red < 0 || cfg.Timer.ReserveSeconds < 0 {
		return ErrInvalidSettings
	}
	for _, side := range []Side{SideBlue, SideRed} {
		if len(cfg.Scores.Get(side)) > cfg.PlayerCount {
			return ErrInvalidSettings
		}
	}
	for _, f := range cfg.Featured {
		if f.ID == "" || (f.Kind != FeaturedCharacter && f.Kind != FeaturedLightcone) {
			return ErrInvalidSettings
		}
		switch f.Rule {
		case RuleNone, RuleGlobalBan, RuleGlobalPick:
		default:
			return ErrInvalidSettings
		}
		if f.CustomCost != nil && *f.CustomCost < 0 {
			return ErrInvalidSettings
		}
	}
	return nil
}

// fitScores pads (or truncates) each side to exactly n entries.
func fitScores(in PerSide[[]*float64], n int) PerSide[[]*float64] {
	fit := func(src []*float64) []*float64 {
		out := make([]*float64, n)
		for i := 0; i < n && i < len(src); i++ {
			if src[i] != nil {
				v := *src[i]
				out[i] = &v
			}
		}
		return out
	}
	return PerSide[[]*float64]{Blue: fit(in.Blue), Red: fit(in.Red)}
}

func cloneScores(in []*float64) []*float64 {
	if in == nil {
		return nil
	}
	out := make([]*float64, len(in))
	for i, v := range in {
		if v != nil {
			cp := *v
			out[i] = &cp
		}
	}
	return out
}

func sameScores(a, b PerSide[[]*float64]) bool {
	eq := func(x, y *float64) bool {
		if x == nil || y == nil {
			return x == y
		}
		return *x == *y
	}
	return slices.EqualFunc(a.Blue, b.Blue, eq) && slices.EqualFunc(a.Red, b.Red, eq)
}

// NormalizeName trims and NFC-normalizes a team name, falling back to def.
func NormalizeName(name, def string) string {
	name = strings.TrimSpace(norm.NFC.String(name))
	if name == "" {
		return def
	}
	if utf8.RuneCountInString(name) > MaxNameRunes {
		name = string([]rune(name)[:MaxNameRunes])
	}
	return name
}

// Clone deep-copies s so Apply never aliases the caller's slices.
func (s Session) Clone() Session {
	c := s
	c.Sequence = slices.Clone(s.Sequence)
	c.Picks = make([]*Pick, len(s.Picks))
	for i, p := range s.Picks {
		if p != nil {
			cp := *p
			c.Picks[i] = &cp
		}
	}
	c.Featured = slices.Clone(s.Featured)
	c.Scores = PerSide[[]*float64]{Blue: cloneScores(s.Scores.Blue), Red: cloneScores(s.Scores.Red)}
	if s.CompletedAt != nil {
		at := *s.CompletedAt
		c.CompletedAt = &at
	}
	return c
}

func (s Session) featuredHas(kind FeaturedKind, id string, rule Rule) bool {
	return slices.ContainsFunc(s.Featured, func(f FeaturedOverride) bool {
		return f.Kind == kind && f.ID == id && f.Rule == rule
	})
}

func (s Session) featuredPicked(kind FeaturedKind, id string) bool {
	return s.featuredHas(kind, id, RuleGlobalPick)
}

// featuredBanned is a global ban that is not cancelled by a global pick.
func (s Session) featuredBanned(kind FeaturedKind, id string) bool {
	return s.featuredHas(kind, id, RuleGlobalBan) && !s.featuredPicked(kind, id)
}

func (s Session) customCost(kind FeaturedKind, id string) *float64 {
	for _, f := range s.Featured {
		if f.Kind == kind && f.ID == id && f.CustomCost != nil {
			return f.CustomCost
		}
	}
	return nil
}

// EffectiveBans is every character banned by a slot or globally, minus the
// globally picked ones.
func (s Session) EffectiveBans() map[string]bool {
	out := map[string]bool{}
	for i, slot := range s.Sequence {
		if p := s.Picks[i]; p != nil && slot.Kind == KindBan {
			out[p.Character] = true
		}
	}
	for _, f := range s.Featured {
		if f.Kind == FeaturedCharacter && f.Rule == RuleGlobalBan {
			out[f.ID] = true
		}
	}
	for _, f := range s.Featured {
		if f.Kind == FeaturedCharacter && f.Rule == RuleGlobalPick {
			delete(out, f.ID)
		}
	}
	return out
}

// ActiveSlot returns the slot awaiting action, or false once the draft is done.
func (s Session) ActiveSlot() (Slot, bool) {
	if s.Complete() {
		return Slot{}, false
	}
	return s.Sequence[s.CurrentTurn], true
}

type Phase string

const (
	PhaseBan  Phase = "ban"
	PhasePick Phase = "pick"
	PhaseDone Phase = "done"
)

func DerivePhase(s Session) Phase {
	slot, ok := s.ActiveSlot()
	switch {
	case !ok:
		return PhaseDone
	case slot.Kind == KindBan:
		return PhaseBan
	default:
		return PhasePick
	}
}

func ContainsEvent(events []Event, eventType EventType) bool {
	return slices.ContainsFunc(events, func(e Event) bool { return e.Type == eventType })
}

// Derived is the read-side projection shipped alongside every snapshot.
type Derived struct {
	Phase  Phase               `json:"phase"`
	Timer  TimerState          `json:"timer"`
	Slots  []SlotCost          `json:"slots"`
	Totals PerSide[SideTotals] `json:"totals"`
	Bans   []string            `json:"bans"`
}

func Derive(s Session, rules CostRules, now time.Time) Derived {
	projected := s.Clone()
	projected.syncTimer(now)

	bans := make([]string, 0)
	for id := range projected.EffectiveBans() {
		bans = append(bans, id)
	}
	slices.Sort(bans)

	return Derived{
		Phase:  DerivePhase(projected),
		Timer:  projected.Timer,
		Slots:  projected.SlotCosts(rules),
		Totals: projected.Totals(rules),
		Bans:   bans,
	}
}
