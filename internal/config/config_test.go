package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := parse([]byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"/"}, cfg.Roots)
	assert.Equal(t, float64(30), cfg.SettleSeconds)
}

func TestParseFullConfig(t *testing.T) {
	doc := `{
		"roots": ["/tmp/a", "/tmp/b"],
		"exclude": {
			"paths": ["/tmp/a/skip"],
			"directories": ["node_modules"],
			"patterns": ["\\.tmp$"],
			"globs": ["**/build"]
		},
		"db": {"dir": "/tmp/db"},
		"times": {"settle": 5.5}
	}`
	cfg, err := parse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, []string{"/tmp/a", "/tmp/b"}, cfg.Roots)
	assert.Equal(t, []string{"/tmp/a/skip"}, cfg.ExcludePaths)
	assert.Equal(t, []string{"node_modules"}, cfg.ExcludeDirectories)
	assert.Equal(t, []string{"\\.tmp$"}, cfg.ExcludePatterns)
	assert.Equal(t, []string{"**/build"}, cfg.ExcludeGlobs)
	assert.Equal(t, "/tmp/db", cfg.DBDir)
	assert.Equal(t, 5.5, cfg.SettleSeconds)
}

func TestParseClampsNegativeSettle(t *testing.T) {
	cfg, err := parse([]byte(`{"times": {"settle": -5}}`))
	require.NoError(t, err)
	assert.Equal(t, float64(0), cfg.SettleSeconds)
}

func TestParseRejectsMalformedJSON(t *testing.T) {
	_, err := parse([]byte(`{not json`))
	assert.Error(t, err)
}

func TestParseWarnsOnUnknownKeysButSucceeds(t *testing.T) {
	cfg, err := parse([]byte(`{"roots": ["/tmp"], "bogus": true}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"/tmp"}, cfg.Roots)
}

func TestLoadFirstExistingFileWins(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	home := filepath.Join(dir, "home")
	require.NoError(t, os.MkdirAll(home, 0o755))
	t.Setenv("HOME", home)

	homeCfg := filepath.Join(home, ".filer_config.json")
	data, err := json.Marshal(map[string]any{"roots": []string{"/from-home"}})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(homeCfg, data, 0o644))

	localCfg := filepath.Join(dir, "local_filer_config.json")
	data2, err := json.Marshal(map[string]any{"roots": []string{"/from-local"}})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(localCfg, data2, 0o644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"/from-local"}, cfg.Roots)
	assert.Equal(t, "./local_filer_config.json", cfg.SourcePath)
}

func TestLoadFallsBackToDefaultsWhenNoFileExists(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", filepath.Join(dir, "nonexistent-home"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "", cfg.SourcePath)
	assert.Equal(t, []string{"/"}, cfg.Roots)
}
