package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_CoversAllFragments(t *testing.T) {
	r := Default()
	assert.Equal(t,
		[]string{"economy", "emissions", "equality", "goals", "industry", "initiatives"},
		r.Names(),
	)

	p, err := r.Get("emissions")
	require.NoError(t, err)
	assert.Equal(t, "emissions", p.Schema)
	assert.NotEmpty(t, p.System)
	assert.NotEmpty(t, p.Instructions)
}

func TestGet_UnknownFragment(t *testing.T) {
	_, err := Default().Get("weather")
	assert.Error(t, err)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	r, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Len(t, r.Names(), 6)
}

func TestLoad_OverridesMergeOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
prompts:
  emissions:
    instructions: "Only extract scope 1 and 2."
  sasb:
    schema: sasb_metrics
    system: "You map disclosures to SASB metrics."
    instructions: "Extract SASB metric codes."
`), 0o644))

	r, err := Load(path)
	require.NoError(t, err)

	em, err := r.Get("emissions")
	require.NoError(t, err)
	assert.Equal(t, "Only extract scope 1 and 2.", em.Instructions)
	// Untouched fields keep their defaults.
	assert.Equal(t, "emissions", em.Schema)
	assert.NotEmpty(t, em.System)

	extra, err := r.Get("sasb")
	require.NoError(t, err)
	assert.Equal(t, "sasb_metrics", extra.Schema)
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.yaml")
	require.NoError(t, os.WriteFile(path, []byte("prompts: [not a map"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
