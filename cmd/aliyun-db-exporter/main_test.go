package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fraser-isbester/aliyun-db-exporter/pkg/config"
)

func writeConfig(t *testing.T, body string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aliyun-db-exporter.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	previous := configPath
	configPath = path
	t.Cleanup(func() { configPath = previous })
}

const accountsYAML = `
accounts:
  - name: prod
    access_key_id: ak
    access_key_secret: sk
    region_id: cn-hangzhou
`

func TestLoadConfig(t *testing.T) {
	writeConfig(t, "log_level: warn\n"+accountsYAML)

	cfg, err := loadConfig(collectCmd)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
	require.Len(t, cfg.Accounts, 1)
	assert.NotNil(t, cfg.GetLogger())
}

func TestLoadConfigInvalidLogLevel(t *testing.T) {
	writeConfig(t, "log_level: loud\n"+accountsYAML)

	_, err := loadConfig(collectCmd)
	require.ErrorIs(t, err, config.ErrInvalidConfig)
	assert.Equal(t, 1, strings.Count(err.Error(), config.ErrInvalidConfig.Error()))
	assert.Contains(t, err.Error(), "log_level")
}
