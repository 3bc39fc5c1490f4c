package gitsync

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teranos/cadence/errors"
)

func TestValidateRepoURL(t *testing.T) {
	valid := []string{
		"https://github.com/org/jobs.git",
		"http://git.internal/jobs.git",
		"git://example.com/jobs.git",
		"ssh://git@example.com/jobs.git",
		"git@github.com:org/jobs.git",
		"deploy-user@git.internal:srv/jobs",
	}
	for _, url := range valid {
		assert.NoError(t, ValidateRepoURL(url), url)
	}

	invalid := []string{
		"",
		"ftp://example.com/jobs.git",
		"file:///etc/passwd",
		"/just/a/path",
		"not a url at all",
	}
	for _, url := range invalid {
		err := ValidateRepoURL(url)
		require.Error(t, err, url)
		assert.True(t, errors.IsValidation(err), url)
	}
}

func TestValidateJobsDir(t *testing.T) {
	assert.NoError(t, ValidateJobsDir("./jobs"))
	assert.NoError(t, ValidateJobsDir("/srv/jobs"))
	assert.NoError(t, ValidateJobsDir("jobs/..hidden")) // ".." only as a full segment

	for _, dir := range []string{"", "../jobs", "jobs/../../etc", "/srv/../jobs"} {
		err := ValidateJobsDir(dir)
		require.Error(t, err, dir)
		assert.True(t, errors.IsValidation(err), dir)
	}
}

func TestNewSyncerValidates(t *testing.T) {
	log := zap.NewNop().Sugar()

	_, err := NewSyncer("ftp://nope", "./jobs", log)
	require.Error(t, err)

	_, err = NewSyncer("https://example.com/jobs.git", "../escape", log)
	require.Error(t, err)

	s, err := NewSyncer("https://example.com/jobs.git", t.TempDir(), log)
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestStatusNotCloned(t *testing.T) {
	dir := t.TempDir()
	s, err := NewSyncer("https://example.com/jobs.git", dir, zap.NewNop().Sugar())
	require.NoError(t, err)

	status := s.Status()
	assert.Equal(t, "not_cloned", status.Status)
}

func TestStatusBrokenClone(t *testing.T) {
	dir := t.TempDir()
	// A .git directory that is not a repository
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0o755))

	s, err := NewSyncer("https://example.com/jobs.git", dir, zap.NewNop().Sugar())
	require.NoError(t, err)

	status := s.Status()
	assert.Equal(t, "error", status.Status)
	assert.NotEmpty(t, status.Message)
}

func TestSyncBrokenCloneIsGitError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0o755))

	s, err := NewSyncer("https://example.com/jobs.git", dir, zap.NewNop().Sugar())
	require.NoError(t, err)

	err = s.Sync()
	require.Error(t, err)
	assert.True(t, errors.IsGit(err))
	assert.Contains(t, err.Error(), "Failed to sync repository")
}
