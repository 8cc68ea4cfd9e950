package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDotEnv_Missing(t *testing.T) {
	assert.NoError(t, loadDotEnv(filepath.Join(t.TempDir(), ".env")))
}

func TestLoadDotEnv_SetsVars(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("FOLIO_DOTENV_TEST=loaded\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("FOLIO_DOTENV_TEST") })

	require.NoError(t, loadDotEnv(path))
	assert.Equal(t, "loaded", os.Getenv("FOLIO_DOTENV_TEST"))
}

func TestLoadConfig_DefaultsWhenMissing(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Len(t, cfg.Providers, 3)
}

func TestLoadConfig_ExplicitMissingFails(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadConfig_ReadsFolioYAML(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, defaultConfigFile), []byte(`
providers:
  - name: only
    kind: groq
    priority: 1
`), 0o600))

	cfg, err := loadConfig("")
	require.NoError(t, err)
	require.Len(t, cfg.Providers, 1)
	assert.Equal(t, "only", cfg.Providers[0].Name)
}
