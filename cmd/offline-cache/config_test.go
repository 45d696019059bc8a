package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetConfig(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "config.yaml")
	err := os.WriteFile(filename, []byte(`
origin: https://associacao.example
version: associacao-v3
assets:
  - /
  - /login
  - /static/css/bootstrap.min.css
staticPrefix: /static/
offlineFallback: /login
strategy: network-first
fetchTimeout: 5s
carryOver: [associacao-v2]
`), 0644)
	require.NoError(t, err)

	config, err := getConfig(filename)
	require.NoError(t, err)
	assert.Equal(t, "https://associacao.example", config.Origin)
	assert.Equal(t, "associacao-v3", config.Version)
	assert.Equal(t, []string{"/", "/login", "/static/css/bootstrap.min.css"}, config.Assets)
	assert.Equal(t, "/login", config.OfflineFallback)
	assert.Equal(t, 5*time.Second, config.FetchTimeout)
	assert.Equal(t, []string{"associacao-v2"}, config.CarryOver)
	assert.NoError(t, config.validate())
}

func TestGetConfigDefaults(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(filename, []byte("origin: http://localhost:5000\n"), 0644))

	config, err := getConfig(filename)
	require.NoError(t, err)
	assert.Equal(t, "v1", config.Version)
	assert.Equal(t, []string{"/"}, config.Assets)
}

func TestValidate(t *testing.T) {
	assert.Error(t, Config{Version: "v1"}.validate())
	assert.Error(t, Config{Origin: "http://localhost"}.validate())
}

func TestGetConfigMissingFile(t *testing.T) {
	_, err := getConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestCarryOverMigrations(t *testing.T) {
	config := Config{CarryOver: []string{"v1", "v2"}}
	migrations := config.migrations()
	assert.Len(t, migrations, 2)
	assert.Contains(t, migrations, "v1")
	assert.Contains(t, migrations, "v2")

	assert.Empty(t, defaultConfig.migrations())
}
