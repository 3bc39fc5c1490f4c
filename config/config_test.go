package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load(NewViper())
	require.NoError(t, err)

	assert.Equal(t, "./jobs", cfg.JobsDir)
	assert.Equal(t, "./job_history.json", cfg.HistoryFile)
	assert.Equal(t, "./secrets.json.enc", cfg.SecretsFile)
	assert.Equal(t, "./secrets.key", cfg.KeyFile)
	assert.Equal(t, 15*time.Minute, cfg.SyncInterval)
	assert.Equal(t, "ruby", cfg.Interpreter)
	assert.False(t, cfg.Watch)
	assert.Empty(t, cfg.RepoURL)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("CADENCE_REPO_URL", "git@github.com:org/jobs.git")
	t.Setenv("CADENCE_SYNC_INTERVAL", "5m")
	t.Setenv("CADENCE_INTERPRETER", "/usr/bin/ruby")

	cfg, err := Load(NewViper())
	require.NoError(t, err)

	assert.Equal(t, "git@github.com:org/jobs.git", cfg.RepoURL)
	assert.Equal(t, 5*time.Minute, cfg.SyncInterval)
	assert.Equal(t, "/usr/bin/ruby", cfg.Interpreter)
}
