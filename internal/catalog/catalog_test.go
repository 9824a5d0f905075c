package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	cat := Default()
	require.Equal(t, 35, cat.Len())

	first, ok := cat.First()
	require.True(t, ok)
	assert.Equal(t, "gpt-4.1", first.ID)

	sonnet, ok := cat.Lookup("claude-sonnet-4")
	require.True(t, ok)
	assert.Equal(t, "Anthropic", sonnet.Provider)
	assert.Equal(t, 3.00, sonnet.InputCostPerMillion)
	assert.Equal(t, 15.00, sonnet.OutputCostPerMillion)
	assert.Equal(t, 200000, sonnet.ContextWindow)
	assert.Equal(t, SpeedMedium, sonnet.Speed)
	assert.Equal(t, "Knowledge Cutoff: January 2025.", sonnet.Notes)
}

func TestDefaultCatalogIDsUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, m := range Default().Models() {
		assert.False(t, seen[m.ID], "duplicate id %s", m.ID)
		seen[m.ID] = true
	}
}

func TestLookupMissing(t *testing.T) {
	_, ok := Default().Lookup("nonexistent")
	assert.False(t, ok)
	_, ok = Default().Lookup("")
	assert.False(t, ok)

	var nilCatalog *Catalog
	_, ok = nilCatalog.Lookup("gpt-4o")
	assert.False(t, ok)
}

func TestLookupReturnsCopy(t *testing.T) {
	cat, err := New([]ModelPrice{{ID: "a", Capabilities: Capabilities{"x"}}})
	require.NoError(t, err)

	m, _ := cat.Lookup("a")
	m.Capabilities[0] = "mutated"
	m.Notes = "mutated"

	again, _ := cat.Lookup("a")
	assert.Equal(t, Capabilities{"x"}, again.Capabilities)
	assert.Empty(t, again.Notes)
}

func TestNewRejectsInvalidIDs(t *testing.T) {
	_, err := New([]ModelPrice{{ID: "a"}, {ID: "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")

	_, err = New([]ModelPrice{{ID: " "}})
	require.Error(t, err)
}

func TestEmptyCatalog(t *testing.T) {
	cat, err := New(nil)
	require.NoError(t, err)
	_, ok := cat.First()
	assert.False(t, ok)
	assert.Empty(t, cat.Models())
}

func TestByProviderAndProviders(t *testing.T) {
	cat := Default()
	cohere := cat.ByProvider("cohere")
	require.Len(t, cohere, 7)
	assert.Equal(t, "command-a", cohere[0].ID)

	assert.Equal(t, cat.Len(), len(cat.ByProvider("")))
	assert.Equal(t, []string{"Anthropic", "Cohere", "Google", "Meta", "Mistral AI", "OpenAI"}, cat.Providers())
}

func TestCapabilitiesFromString(t *testing.T) {
	m, ok := Default().Lookup("gpt-4o")
	require.True(t, ok)
	assert.Equal(t, Capabilities{"Multimodal (text, image, audio)", "fast inference"}, m.Capabilities)
	assert.Equal(t, "Multimodal (text, image, audio), fast inference", m.Capabilities.String())
}

func TestLoadFileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.json")
	content := `[
  {"id": "m1", "name": "Model One", "provider": "Acme",
   "inputCostPerMillionTokens": 3, "outputCostPerMillionTokens": 15,
   "keyCapabilities": ["chat", "tools"], "notes": "first"},
  {"id": "m2", "name": "Model Two", "provider": "Acme",
   "inputCostPerMillionTokens": 0.5, "outputCostPerMillionTokens": 1}
]`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cat, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, 2, cat.Len())

	m1, ok := cat.Lookup("m1")
	require.True(t, ok)
	assert.Equal(t, Capabilities{"chat", "tools"}, m1.Capabilities)
	assert.Equal(t, "first", m1.Notes)

	m2, ok := cat.Lookup("m2")
	require.True(t, ok)
	assert.Nil(t, m2.Capabilities)
	assert.Zero(t, m2.ContextWindow)
	assert.Empty(t, m2.Speed)
}

func TestLoadFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.yaml")
	content := `
- id: local-small
  name: Local Small
  provider: Self-hosted
  inputCostPerMillionTokens: 0.05
  outputCostPerMillionTokens: 0.10
  contextWindow: 8192
  keyCapabilities: summarization, extraction
  speedRating: Fast
  qualityRating: 2
- id: local-large
  name: Local Large
  provider: Self-hosted
  inputCostPerMillionTokens: 0.5
  outputCostPerMillionTokens: 1.5
  keyCapabilities:
    - reasoning
    - coding
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cat, err := LoadFile(path)
	require.NoError(t, err)

	small, ok := cat.Lookup("local-small")
	require.True(t, ok)
	assert.Equal(t, Capabilities{"summarization", "extraction"}, small.Capabilities)
	assert.Equal(t, SpeedFast, small.Speed)
	assert.Equal(t, 8192, small.ContextWindow)

	large, ok := cat.Lookup("local-large")
	require.True(t, ok)
	assert.Equal(t, Capabilities{"reasoning", "coding"}, large.Capabilities)
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile("")
	require.Error(t, err)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "models.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,name\n"), 0o600))
	_, err = LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported catalog format")

	dup := filepath.Join(t.TempDir(), "dup.json")
	require.NoError(t, os.WriteFile(dup, []byte(`[{"id":"x"},{"id":"x"}]`), 0o600))
	_, err = LoadFile(dup)
	require.Error(t, err)
}
