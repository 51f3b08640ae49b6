package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/DoyleJ11/starrail-draft-backend/pkg/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltin(t *testing.T) {
	c := Builtin()

	info, ok := c.Character("pela")
	require.True(t, ok)
	assert.Equal(t, 4, info.Rarity)

	_, ok = c.Lightcone("earthlyescapade")
	assert.True(t, ok)

	assert.True(t, c.HasProfile(DefaultProfile))
	assert.True(t, c.HasProfile("sample"))
	assert.Len(t, c.Profile("sample").Characters["acheron"], engine.MaxEidolon+1)
}

func TestProfileFallsBackToDefault(t *testing.T) {
	c := Builtin()
	p := c.Profile("missing")
	assert.Equal(t, DefaultProfile, p.ID)
	assert.Empty(t, p.Characters)
}

func TestRulesPriceThroughFormulas(t *testing.T) {
	c := Builtin()
	var s engine.Session

	// 4-star characters use the flat standard row.
	cost := s.PickCost(engine.Pick{Character: "pela", Eidolon: 6}, c.Rules(DefaultProfile))
	assert.Equal(t, 0.5, cost.Character)

	// The sample profile overrides acheron.
	cost = s.PickCost(engine.Pick{Character: "acheron"}, c.Rules("sample"))
	assert.Equal(t, 1.5, cost.Character)

	// Unknown characters are treated as limited.
	cost = s.PickCost(engine.Pick{Character: "nobody"}, c.Rules(DefaultProfile))
	assert.Equal(t, 1.0, cost.Character)
}

func TestParseRejectsBadRows(t *testing.T) {
	cases := map[string]string{
		"short character row": `{"profiles":[{"id":"x","characters":{"a":[1,2]}}]}`,
		"long lightcone row":  `{"profiles":[{"id":"x","lightcones":{"a":[1,2,3,4,5,6]}}]}`,
		"empty profile id":    `{"profiles":[{"id":""}]}`,
		"empty code":          `{"characters":[{"code":""}]}`,
		"not json":            `{`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"characters":[{"code":"march","rarity":4}]}`), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	_, ok := c.Character("march")
	assert.True(t, ok)
	assert.True(t, c.HasProfile(DefaultProfile), "default profile always exists")

	_, err = Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
