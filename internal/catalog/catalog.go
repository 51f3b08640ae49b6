package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/DoyleJ11/starrail-draft-backend/pkg/engine"
)

//go:embed data/catalog.json
var builtin []byte

const DefaultProfile = "default"

type document struct {
	Characters []engine.CharacterInfo `json:"characters"`
	Lightcones []engine.LightconeInfo `json:"lightcones"`
	Profiles   []engine.CostProfile   `json:"profiles"`
}

// Catalog is read-only after construction and safe for concurrent use.
type Catalog struct {
	characters map[string]engine.CharacterInfo
	lightcones map[string]engine.LightconeInfo
	profiles   map[string]engine.CostProfile
}

// Builtin returns the catalog compiled into the binary.
func Builtin() *Catalog {
	c, err := Parse(builtin)
	if err != nil {
		panic(fmt.Sprintf("catalog: builtin data: %v", err))
	}
	return c
}

// Load reads a catalog file; an empty path means the builtin one.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Builtin(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}

	c := &Catalog{
		characters: make(map[string]engine.CharacterInfo, len(doc.Characters)),
		lightcones: make(map[string]engine.LightconeInfo, len(doc.Lightcones)),
		profiles:   map[string]engine.CostProfile{DefaultProfile: {ID: DefaultProfile}},
	}
	for _, ch := range doc.Characters {
		if ch.Code == "" {
			return nil, fmt.Errorf("catalog: character with empty code")
		}
		c.characters[ch.Code] = ch
	}
	for _, lc := range doc.Lightcones {
		if lc.ID == "" {
			return nil, fmt.Errorf("catalog: light cone with empty id")
		}
		c.lightcones[lc.ID] = lc
	}
	for _, p := range doc.Profiles {
		if err := checkProfile(p); err != nil {
			return nil, err
		}
		c.profiles[p.ID] = p
	}
	return c, nil
}

func checkProfile(p engine.CostProfile) error {
	if p.ID == "" {
		return fmt.Errorf("catalog: profile with empty id")
	}
	for code, row := range p.Characters {
		if len(row) != engine.MaxEidolon+1 {
			return fmt.Errorf("catalog: profile %s: character %s has %d costs, want %d", p.ID, code, len(row), engine.MaxEidolon+1)
		}
	}
	for id, row := range p.Lightcones {
		if len(row) != engine.MaxSuperimpose {
			return fmt.Errorf("catalog: profile %s: light cone %s has %d costs, want %d", p.ID, id, len(row), engine.MaxSuperimpose)
		}
	}
	return nil
}

func (c *Catalog) Character(code string) (engine.CharacterInfo, bool) {
	info, ok := c.characters[code]
	return info, ok
}

func (c *Catalog) Lightcone(id string) (engine.LightconeInfo, bool) {
	info, ok := c.lightcones[id]
	return info, ok
}

// Profile falls back to the empty default profile for unknown ids, so every
// cost resolves through the rarity formulas.
func (c *Catalog) Profile(id string) engine.CostProfile {
	if p, ok := c.profiles[id]; ok {
		return p
	}
	return c.profiles[DefaultProfile]
}

func (c *Catalog) HasProfile(id string) bool {
	_, ok := c.profiles[id]
	return ok
}

func (c *Catalog) Rules(profile string) engine.CostRules {
	return engine.CostRules{Profile: c.Profile(profile), Catalog: c}
}
