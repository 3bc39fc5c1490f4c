// Package gitsync reconciles the jobs working tree with its remote
// source repository.
package gitsync

import (
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"go.uber.org/zap"

	"github.com/teranos/cadence/errors"
)

// allowed URL schemes for the source repository
var allowedSchemes = map[string]bool{
	"http":  true,
	"https": true,
	"git":   true,
	"ssh":   true,
}

// SSH shorthand like git@github.com:org/repo.git
var scpShorthand = regexp.MustCompile(`^[A-Za-z0-9._~-]+@[A-Za-z0-9._-]+:.+$`)

// Syncer keeps jobsDir synchronized with repoURL: fast-forward pull
// when a clone exists, fresh clone otherwise.
type Syncer struct {
	repoURL string
	jobsDir string
	logger  *zap.SugaredLogger
}

// NewSyncer validates the URL and directory once at construction.
func NewSyncer(repoURL, jobsDir string, log *zap.SugaredLogger) (*Syncer, error) {
	if err := ValidateRepoURL(repoURL); err != nil {
		return nil, err
	}
	if err := ValidateJobsDir(jobsDir); err != nil {
		return nil, err
	}
	return &Syncer{repoURL: repoURL, jobsDir: jobsDir, logger: log}, nil
}

// ValidateRepoURL accepts http/https/git/ssh URLs and the scp-style
// user@host:path shorthand.
func ValidateRepoURL(raw string) error {
	if raw == "" {
		return errors.Validationf("Repository URL is required")
	}
	if scpShorthand.MatchString(raw) {
		return nil
	}
	parsed, err := url.Parse(raw)
	if err != nil || !allowedSchemes[parsed.Scheme] {
		return errors.Validationf("Invalid repository URL: %s", raw)
	}
	return nil
}

// ValidateJobsDir rejects any input path containing a ".." segment,
// before any expansion happens.
func ValidateJobsDir(dir string) error {
	if dir == "" {
		return errors.Validationf("Jobs directory is required")
	}
	for _, segment := range strings.FieldsFunc(dir, func(r rune) bool { return r == '/' || r == '\\' }) {
		if segment == ".." {
			return errors.Validationf("Jobs directory must not contain '..': %s", dir)
		}
	}
	return nil
}

// Sync reconciles the working tree: fast-forward pull if jobsDir/.git
// exists, otherwise clear jobsDir and clone fresh. Underlying git
// failures wrap as GitError.
func (s *Syncer) Sync() error {
	if _, err := os.Stat(filepath.Join(s.jobsDir, ".git")); err == nil {
		return s.pull()
	}
	return s.clone()
}

func (s *Syncer) pull() error {
	repo, err := git.PlainOpen(s.jobsDir)
	if err != nil {
		return errors.Gitf("Failed to sync repository: %v", err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return errors.Gitf("Failed to sync repository: %v", err)
	}

	err = worktree.Pull(&git.PullOptions{RemoteName: "origin"})
	if err == git.NoErrAlreadyUpToDate {
		s.logger.Debugw("Repository already up to date", "dir", s.jobsDir)
		return nil
	}
	if err != nil {
		return errors.Gitf("Failed to sync repository: %v", err)
	}

	s.logger.Infow("Pulled repository", "dir", s.jobsDir)
	return nil
}

func (s *Syncer) clone() error {
	// A partial checkout or stale contents would confuse the clone;
	// clear the directory first.
	if entries, err := os.ReadDir(s.jobsDir); err == nil && len(entries) > 0 {
		s.logger.Warnw("Jobs directory is not a clone, clearing it", "dir", s.jobsDir)
		for _, entry := range entries {
			if err := os.RemoveAll(filepath.Join(s.jobsDir, entry.Name())); err != nil {
				return errors.Gitf("Failed to sync repository: %v", err)
			}
		}
	}

	_, err := git.PlainClone(s.jobsDir, false, &git.CloneOptions{URL: s.repoURL})
	if err != nil {
		return errors.Gitf("Failed to sync repository: %v", err)
	}

	s.logger.Infow("Cloned repository", "url", s.repoURL, "dir", s.jobsDir)
	return nil
}

// RepoStatus is the repository portion of the health check.
type RepoStatus struct {
	Status         string `json:"status"` // "not_cloned", "healthy", "error"
	LastCommit     string `json:"last_commit,omitempty"`
	LastCommitDate string `json:"last_commit_date,omitempty"`
	Message        string `json:"message,omitempty"`
}

// Status inspects the working tree's head commit without touching the
// remote.
func (s *Syncer) Status() RepoStatus {
	if _, err := os.Stat(filepath.Join(s.jobsDir, ".git")); err != nil {
		return RepoStatus{Status: "not_cloned"}
	}

	repo, err := git.PlainOpen(s.jobsDir)
	if err != nil {
		return RepoStatus{Status: "error", Message: err.Error()}
	}
	head, err := repo.Head()
	if err != nil {
		return RepoStatus{Status: "error", Message: err.Error()}
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return RepoStatus{Status: "error", Message: err.Error()}
	}

	return RepoStatus{
		Status:         "healthy",
		LastCommit:     head.Hash().String()[:7],
		LastCommitDate: commit.Author.When.UTC().Format(time.RFC3339),
	}
}
