package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "varasto.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
storage:
  dir: /var/lib/varasto
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "/var/lib/varasto", cfg.Storage.Dir)
	assert.Equal(t, "/var/lib/varasto/journal", cfg.Storage.JournalDir)
	assert.Equal(t, 30*time.Minute, cfg.Collection.RunTimeout)
	assert.Zero(t, cfg.Collection.Interval)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "varasto", cfg.Telemetry.ServiceName)
}

func TestLoadParsesDurations(t *testing.T) {
	path := writeConfig(t, `
collection:
  run_timeout: 5m
  interval: 1h
log:
  level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.Collection.RunTimeout)
	assert.Equal(t, time.Hour, cfg.Collection.Interval)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, `
collection:
  run_timeout: quite-long
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsMissingTaxonomyFile(t *testing.T) {
	path := writeConfig(t, `
taxonomy:
  file: /nonexistent/taxonomy.yml
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 30*time.Minute, cfg.Collection.RunTimeout)
	require.NoError(t, cfg.Validate())
}
