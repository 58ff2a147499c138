package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "outreach.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)

	assert.Equal(t, 20, cfg.Verifier.SyntaxWeight)
	assert.Equal(t, 30, cfg.Verifier.MXWeight)
	assert.Equal(t, 60, cfg.Verifier.VerifiedThreshold)
	assert.Contains(t, cfg.Verifier.DisposableDomains, "mailinator")
	assert.Contains(t, cfg.Verifier.FreeDomains, "gmail.com")
	assert.Contains(t, cfg.Verifier.HRKeywords, "recruit")

	assert.InDelta(t, 30.0, cfg.Ranker.FlagshipBonus, 0.001)
	assert.InDelta(t, 20.0, cfg.Ranker.ScalingBonus, 0.001)
	assert.InDelta(t, 10.0, cfg.Ranker.VolumeBonus, 0.001)
	assert.InDelta(t, 20.0, cfg.Ranker.KeywordBonusCap, 0.001)

	assert.Equal(t, 20, cfg.Scheduler.MaxSendsPerRun)
	assert.Equal(t, 5, cfg.Scheduler.WorkerLimit)

	assert.Equal(t, 3, cfg.FollowUp.Day3Offset)
	assert.Equal(t, 7, cfg.FollowUp.Day7Offset)
	assert.Equal(t, 14, cfg.FollowUp.Day14Offset)

	assert.Equal(t, 2, cfg.Retry.MaxContactsPerCompany)

	assert.Equal(t, "smtp.gmail.com", cfg.Transport.Host)
	assert.Equal(t, 587, cfg.Transport.Port)
	assert.Equal(t, 30, cfg.Transport.SendTimeoutSecs)
	assert.Equal(t, 10, cfg.Transport.MaxSendRate)
	assert.Equal(t, 2, cfg.Transport.InRunRetries)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/outreach
scheduler:
  max_sends_per_run: 5
  worker_limit: 2
ranker:
  flagship_companies: [google, stripe]
transport:
  dry_run: true
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile("config.yaml", []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/outreach", cfg.Store.DatabaseURL)
	assert.Equal(t, 5, cfg.Scheduler.MaxSendsPerRun)
	assert.Equal(t, 2, cfg.Scheduler.WorkerLimit)
	assert.Equal(t, []string{"google", "stripe"}, cfg.Ranker.FlagshipCompanies)
	assert.True(t, cfg.Transport.DryRun)
	assert.Equal(t, "debug", cfg.Log.Level)

	// Un-overridden defaults survive.
	assert.Equal(t, 60, cfg.Verifier.VerifiedThreshold)
	assert.Equal(t, 3, cfg.FollowUp.Day3Offset)
}

func TestInitLogger(t *testing.T) {
	tests := []struct {
		name    string
		cfg     LogConfig
		wantErr bool
	}{
		{"json info", LogConfig{Level: "info", Format: "json"}, false},
		{"console debug", LogConfig{Level: "debug", Format: "console"}, false},
		{"bad level", LogConfig{Level: "shouty", Format: "json"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := InitLogger(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, zap.L())
		})
	}
}
