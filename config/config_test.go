package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileStartsFromDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	store, err := Load(path, Defaults("/opt/envdesk"), nil)
	require.NoError(t, err)

	assert.Equal(t, "/opt/envdesk", store.GetString(SectionMain, KeyDefaultEnv, ""))
	assert.True(t, store.GetBool(SectionMain, KeyFirstRun, false))
	assert.Equal(t, path, store.Path())
}

func TestSetPersistsAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	store, err := Load(path, Defaults("/opt/envdesk"), nil)
	require.NoError(t, err)
	require.NoError(t, store.Set(SectionMain, KeyDefaultEnv, "/opt/envdesk/envs/work"))
	require.NoError(t, store.Set(SectionMain, KeyFirstRun, false))

	reloaded, err := Load(path, Defaults("/opt/envdesk"), nil)
	require.NoError(t, err)
	assert.Equal(t, "/opt/envdesk/envs/work", reloaded.GetString(SectionMain, KeyDefaultEnv, ""))
	assert.False(t, reloaded.GetBool(SectionMain, KeyFirstRun, true))
}

func TestLoadMalformedFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(":\n\t- not yaml"), 0o644))

	_, err := Load(path, nil, nil)
	require.Error(t, err)
}

func TestSetRejectsEmptySectionOrKey(t *testing.T) {
	store := InMemory(nil)
	assert.Error(t, store.Set("", KeyGeo, "x"))
	assert.Error(t, store.Set(SectionMain, "", "x"))
}

func TestGetFallbackChain(t *testing.T) {
	store := InMemory(Defaults("/opt/envdesk"))

	// Default applies before any write
	assert.Equal(t, "/opt/envdesk", store.GetString(SectionMain, KeyDefaultEnv, "fallback"))

	// Written value overrides the default
	require.NoError(t, store.Set(SectionMain, KeyDefaultEnv, "/elsewhere"))
	assert.Equal(t, "/elsewhere", store.GetString(SectionMain, KeyDefaultEnv, "fallback"))

	// Unknown key falls back to the caller's default
	assert.Equal(t, "fallback", store.GetString(SectionMain, "nonexistent", "fallback"))
}

func TestGetIntToleratesYAMLNumericTypes(t *testing.T) {
	store := InMemory(nil)
	require.NoError(t, store.Set(SectionInternal, "a", 7))
	require.NoError(t, store.Set(SectionInternal, "b", int64(8)))
	require.NoError(t, store.Set(SectionInternal, "c", float64(9)))
	require.NoError(t, store.Set(SectionInternal, "d", "not a number"))

	assert.Equal(t, 7, store.GetInt(SectionInternal, "a", 0))
	assert.Equal(t, 8, store.GetInt(SectionInternal, "b", 0))
	assert.Equal(t, 9, store.GetInt(SectionInternal, "c", 0))
	assert.Equal(t, -1, store.GetInt(SectionInternal, "d", -1))
}

func TestMistypedValueFallsBack(t *testing.T) {
	store := InMemory(nil)
	require.NoError(t, store.Set(SectionMain, KeyFirstRun, "yes"))
	assert.True(t, store.GetBool(SectionMain, KeyFirstRun, true))
}

func TestResetClearsStateAndFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	store, err := Load(path, Defaults("/opt/envdesk"), nil)
	require.NoError(t, err)
	require.NoError(t, store.Set(SectionMain, KeyGeo, "abc"))

	require.NoError(t, store.Reset())
	assert.Equal(t, "", store.GetString(SectionMain, KeyGeo, ""))
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestStringDoesNotLeakValues(t *testing.T) {
	store := InMemory(nil)
	require.NoError(t, store.Set(SectionMain, KeyGeo, "secret-geometry"))
	assert.NotContains(t, store.String(), "secret-geometry")
}
