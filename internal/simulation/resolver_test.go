package simulation

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blueberrycongee/tutormux/pkg/types"
)

func testTable(t *testing.T) *Table {
	t.Helper()
	table, err := NewTable([]types.ResolvedSimulation{
		{
			Identifier: "gravity-lab",
			URL:        "https://sims.example.edu/gravity-lab",
			Source:     types.SourceExternal,
			Provider:   "PhET",
			Available:  true,
		},
		{
			Identifier: "pendulum",
			Source:     types.SourceProprietary,
			Available:  false,
		},
	})
	require.NoError(t, err)
	return table
}

func TestNewTable_Validation(t *testing.T) {
	tests := []struct {
		name    string
		records []types.ResolvedSimulation
	}{
		{"empty identifier", []types.ResolvedSimulation{{Source: types.SourceExternal}}},
		{"reserved none", []types.ResolvedSimulation{{Identifier: "none", Source: types.SourceExternal}}},
		{"duplicate", []types.ResolvedSimulation{
			{Identifier: "a", Source: types.SourceExternal},
			{Identifier: "a", Source: types.SourceExternal},
		}},
		{"invalid source", []types.ResolvedSimulation{{Identifier: "a", Source: "curated"}}},
		{"http url rejected", []types.ResolvedSimulation{
			{Identifier: "a", URL: "http://insecure.example.com", Source: types.SourceExternal},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTable(tt.records)
			require.Error(t, err)
		})
	}
}

func TestResolver_None(t *testing.T) {
	r := NewResolver(testTable(t), nil)

	for _, id := range []string{"none", ""} {
		got := r.Resolve(context.Background(), id)
		assert.Equal(t, "none", got.Identifier)
		assert.Equal(t, types.SourceNone, got.Source)
		assert.Empty(t, got.URL)
		assert.False(t, got.Available)
	}
}

func TestResolver_Whitelisted(t *testing.T) {
	r := NewResolver(testTable(t), nil)

	got := r.Resolve(context.Background(), "gravity-lab")
	assert.Equal(t, "https://sims.example.edu/gravity-lab", got.URL)
	assert.Equal(t, types.SourceExternal, got.Source)
	assert.True(t, got.Available)
}

func TestResolver_UnknownIdentifier(t *testing.T) {
	r := NewResolver(testTable(t), nil)

	got := r.Resolve(context.Background(), "../../etc/passwd")
	assert.Equal(t, types.SourceNone, got.Source)
	assert.Empty(t, got.URL, "unknown identifiers must never yield a URL")
	assert.False(t, got.Available)
}

func TestResolver_Replace(t *testing.T) {
	r := NewResolver(testTable(t), nil)
	require.Equal(t, 2, r.TableSize())

	bigger, err := NewTable([]types.ResolvedSimulation{
		{Identifier: "gravity-lab", Source: types.SourceExternal, Available: true},
		{Identifier: "pendulum", Source: types.SourceProprietary},
		{Identifier: "waves", Source: types.SourceExternal},
	})
	require.NoError(t, err)

	r.Replace(bigger)
	assert.Equal(t, 3, r.TableSize())
}

func TestManager_LoadAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "whitelist.yaml")

	initial := `simulations:
  - identifier: gravity-lab
    url: https://sims.example.edu/gravity-lab
    source: external
    provider: PhET
    available: true
`
	require.NoError(t, os.WriteFile(path, []byte(initial), 0o600))

	mgr, err := NewManager(path, nil)
	require.NoError(t, err)
	defer mgr.Close()

	require.Equal(t, 1, mgr.Resolver().TableSize())

	updated := initial + `  - identifier: pendulum
    source: proprietary
    available: false
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))
	require.NoError(t, mgr.Reload())
	assert.Equal(t, 2, mgr.Resolver().TableSize())

	// A broken file keeps the current table.
	require.NoError(t, os.WriteFile(path, []byte("simulations: [{identifier: bad, url: http://x, source: external}]"), 0o600))
	require.Error(t, mgr.Reload())
	assert.Equal(t, 2, mgr.Resolver().TableSize())
}
