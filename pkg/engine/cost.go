package engine

import "math"

const (
	MinEidolon     = 0
	MaxEidolon     = 6
	MinSuperimpose = 1
	MaxSuperimpose = 5
)

type FeaturedKind string

const (
	FeaturedCharacter FeaturedKind = "character"
	FeaturedLightcone FeaturedKind = "lightcone"
)

type Rule string

const (
	RuleNone       Rule = "none"
	RuleGlobalBan  Rule = "globalBan"
	RuleGlobalPick Rule = "globalPick"
)

type FeaturedOverride struct {
	Kind       FeaturedKind `json:"kind"`
	ID         string       `json:"id"`
	Rule       Rule         `json:"rule"`
	CustomCost *float64     `json:"customCost,omitempty"`
}

// CostProfile holds preset cost rows: 7 entries per character (by eidolon)
// and 5 per light cone (by superimpose).
type CostProfile struct {
	ID         string               `json:"id"`
	Characters map[string][]float64 `json:"characters"`
	Lightcones map[string][]float64 `json:"lightcones"`
}

type CharacterInfo struct {
	Code    string `json:"code"`
	Rarity  int    `json:"rarity"`
	Limited bool   `json:"limited"`
}

type LightconeInfo struct {
	ID      string `json:"id"`
	Rarity  int    `json:"rarity"`
	Limited bool   `json:"limited"`
}

// Catalog supplies the rarity data the fallback formulas need.
type Catalog interface {
	Character(code string) (CharacterInfo, bool)
	Lightcone(id string) (LightconeInfo, bool)
}

// CostRules bundles everything a cost lookup reads.
type CostRules struct {
	Profile CostProfile
	Catalog Catalog
}

// Formula names the row a cost lookup resolved to.
type Formula string

const (
	FormulaPreset       Formula = "preset"
	FormulaStandard4    Formula = "standard4"
	FormulaStandard5    Formula = "standard5"
	FormulaLimited5     Formula = "limited5"
	FormulaFreeItem     Formula = "freeItem"
	FormulaStandardItem Formula = "standardItem"
	FormulaLimitedItem  Formula = "limitedItem"
)

var fallbackRows = map[Formula][]float64{
	FormulaStandard4:    {0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5},
	FormulaStandard5:    {1, 1, 1, 1, 1, 1, 1.5},
	FormulaLimited5:     {1, 1.25, 1.75, 1.75, 2, 2, 2.5},
	FormulaFreeItem:     {0, 0, 0, 0, 0},
	FormulaStandardItem: {0, 0, 0.25, 0.25, 0.25},
	FormulaLimitedItem:  {0.5, 0.75, 1, 1, 1.25},
}

type costRow struct {
	formula Formula
	values  []float64
}

func characterRow(rules CostRules, code string) costRow {
	if row, ok := rules.Profile.Characters[code]; ok && len(row) == MaxEidolon+1 {
		return costRow{FormulaPreset, row}
	}
	f := FormulaLimited5
	if rules.Catalog != nil {
		if info, ok := rules.Catalog.Character(code); ok {
			switch {
			case info.Rarity <= 4:
				f = FormulaStandard4
			case !info.Limited:
				f = FormulaStandard5
			}
		}
	}
	return costRow{f, fallbackRows[f]}
}

func lightconeRow(rules CostRules, id string) costRow {
	if row, ok := rules.Profile.Lightcones[id]; ok && len(row) == MaxSuperimpose {
		return costRow{FormulaPreset, row}
	}
	f := FormulaLimitedItem
	if rules.Catalog != nil {
		if info, ok := rules.Catalog.Lightcone(id); ok {
			switch {
			case info.Rarity <= 4:
				f = FormulaFreeItem
			case !info.Limited:
				f = FormulaStandardItem
			}
		}
	}
	return costRow{f, fallbackRows[f]}
}

// compose keeps a custom base cost while still applying the row's scaling.
func (c costRow) compose(base *float64, idx int) float64 {
	b := c.values[0]
	if base != nil {
		b = *base
	}
	delta := round2(c.values[idx] - c.values[0])
	return round2(round2(b) + delta)
}

type SlotCost struct {
	Character float64 `json:"character"`
	Item      float64 `json:"item"`
	Total     float64 `json:"total"`
}

// PickCost prices one filled pick slot with the session's featured overrides.
func (s Session) PickCost(p Pick, rules CostRules) SlotCost {
	e := min(max(p.Eidolon, MinEidolon), MaxEidolon)
	out := SlotCost{
		Character: characterRow(rules, p.Character).compose(s.customCost(FeaturedCharacter, p.Character), e),
	}
	if p.Lightcone != "" {
		si := min(max(p.Superimpose, MinSuperimpose), MaxSuperimpose)
		out.Item = lightconeRow(rules, p.Lightcone).compose(s.customCost(FeaturedLightcone, p.Lightcone), si-1)
	}
	out.Total = round2(out.Character + out.Item)
	return out
}

// SlotCosts prices every slot; ban and empty slots cost nothing.
func (s Session) SlotCosts(rules CostRules) []SlotCost {
	out := make([]SlotCost, len(s.Sequence))
	for i, slot := range s.Sequence {
		if p := s.Picks[i]; p != nil && slot.Kind == KindPick {
			out[i] = s.PickCost(*p, rules)
		}
	}
	return out
}

func (s Session) TeamCost(side Side, rules CostRules) float64 {
	var total float64
	for i, c := range s.SlotCosts(rules) {
		if s.Sequence[i].Side == side {
			total = round2(total + c.Total)
		}
	}
	return total
}

func (s Session) CyclePenalty(side Side, rules CostRules) float64 {
	return round2(s.TeamCost(side, rules) / float64(max(1, s.CycleBreakpoint)))
}

type SideTotals struct {
	Cost         float64 `json:"cost"`
	CostPenalty  float64 `json:"costPenalty"`
	TimerPenalty int     `json:"timerPenalty"`
	ExtraPenalty float64 `json:"extraPenalty"`
	Score        float64 `json:"score"`
	Scored       bool    `json:"scored"`
	Adjusted     float64 `json:"adjusted"`
}

func (s Session) Totals(rules CostRules) PerSide[SideTotals] {
	var out PerSide[SideTotals]
	for _, side := range []Side{SideBlue, SideRed} {
		t := SideTotals{
			Cost:         s.TeamCost(side, rules),
			CostPenalty:  s.CyclePenalty(side, rules),
			TimerPenalty: s.Timer.PenaltyCount.Get(side),
			ExtraPenalty: round2(s.ExtraCyclePenalty.Get(side)),
			Scored:       len(s.Scores.Get(side)) > 0,
		}
		for _, v := range s.Scores.Get(side) {
			if v == nil {
				t.Scored = false
				continue
			}
			t.Score = round2(t.Score + *v)
		}
		adjusted := t.Score + t.ExtraPenalty
		if s.Penalties.Cost {
			adjusted += t.CostPenalty
		}
		if s.Penalties.Timer {
			adjusted += float64(t.TimerPenalty)
		}
		t.Adjusted = round2(adjusted)
		out.Set(side, t)
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
