package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsAndOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
database:
  mode: memory
telemetry:
  auto_export: true
  auto_export_interval: 2s
broadcast:
  suppress: [OnStatChange]
security:
  ingest_secret: s3cret
  allowed_ips: [127.0.0.1]
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "memory", cfg.Database.Mode)
	assert.True(t, cfg.Telemetry.AutoExport)
	assert.Equal(t, 2*time.Second, cfg.Telemetry.AutoExportInterval)
	assert.Equal(t, "battle_modes.json", cfg.Telemetry.BattleModesPath)
	assert.Equal(t, "battle_summaries", cfg.Telemetry.SummaryDir)
	assert.Equal(t, []string{"OnStatChange"}, cfg.Broadcast.Suppress)
	assert.Equal(t, "battle", cfg.Broadcast.Channel)
	assert.Equal(t, "s3cret", cfg.Security.IngestSecret)
	assert.Equal(t, time.Hour, cfg.Database.MySQLMaxLife)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 1305, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Mode)
	assert.Equal(t, 30*time.Second, cfg.Cache.LocalGCInterval)
	assert.Equal(t, 256, cfg.Broadcast.SubscriberBuf)
	assert.True(t, cfg.Telemetry.DateFolders)
}
