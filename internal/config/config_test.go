package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DATA_DIR", dir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, filepath.Join(dir, "simtrader.db"), cfg.DatabasePath())
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, MissingDataSkip, cfg.MissingDataPolicy)
	assert.Zero(t, cfg.RiskFreeRate)
	assert.Equal(t, []string{"Cryptocurrency"}, cfg.FractionalSectors)
	assert.False(t, cfg.EntryMinimum)
	assert.False(t, cfg.Backup.Enabled())
	assert.Equal(t, 30, cfg.Backup.RetentionDays)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("RISK_FREE_RATE", "0.02")
	t.Setenv("MISSING_DATA_POLICY", "halt")
	t.Setenv("SIMULATION_WORKERS", "3")
	t.Setenv("FRACTIONAL_SECTORS", "Cryptocurrency, Commodities")
	t.Setenv("ENTRY_MINIMUM", "true")
	t.Setenv("BACKUP_S3_BUCKET", "backups")
	t.Setenv("BACKUP_S3_ACCESS_KEY_ID", "key")
	t.Setenv("BACKUP_S3_SECRET_ACCESS_KEY", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.InDelta(t, 0.02, cfg.RiskFreeRate, 1e-12)
	assert.Equal(t, MissingDataHalt, cfg.MissingDataPolicy)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, []string{"Cryptocurrency", "Commodities"}, cfg.FractionalSectors)
	assert.True(t, cfg.EntryMinimum)
	assert.True(t, cfg.Backup.Enabled())
}

func TestValidateRejectsUnknownPolicy(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("MISSING_DATA_POLICY", "retry")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MISSING_DATA_POLICY")
}

func TestValidateRejectsNegativeRiskFreeRate(t *testing.T) {
	cfg := &Config{MissingDataPolicy: MissingDataSkip, RiskFreeRate: -0.01}
	assert.Error(t, cfg.Validate())
}
