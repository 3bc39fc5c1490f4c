// Package scheduler owns cron dispatch, periodic repository
// reconciliation, active-execution tracking, and history integration.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/teranos/cadence/errors"
	"github.com/teranos/cadence/gitsync"
	"github.com/teranos/cadence/history"
	"github.com/teranos/cadence/job"
	"github.com/teranos/cadence/runner"
	"github.com/teranos/cadence/secrets"
	"github.com/teranos/cadence/version"
)

// DefaultSyncInterval is how often the reserved entry reconciles the
// working tree and reloads jobs.
const DefaultSyncInterval = 15 * time.Minute

// Config parameterizes a Supervisor.
type Config struct {
	RepoURL      string
	JobsDir      string
	HistoryFile  string
	SecretsFile  string
	KeyFile      string
	SyncInterval time.Duration
	Interpreter  string
	Watch        bool
}

// ActiveExecution is one in-flight firing, keyed by its execution id.
type ActiveExecution struct {
	ID        string    `json:"id"`
	JobName   string    `json:"job_name"`
	StartedAt time.Time `json:"started_at"`
}

// Supervisor wires the syncer, loader, runner, history, and secrets
// into the cron engine. Exactly one instance owns a working tree and
// its history.
type Supervisor struct {
	cfg     Config
	syncer  *gitsync.Syncer
	history *history.History
	secrets *secrets.Store
	runner  *runner.Runner
	cron    *cron.Cron
	logger  *zap.SugaredLogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// reservedID drives periodic sync+reload and survives every reload
	reservedID cron.EntryID

	mu      sync.Mutex
	entries map[cron.EntryID]string // non-reserved scheduled entries

	activeMu sync.Mutex
	active   map[string]ActiveExecution

	watcher *dirWatcher
}

// New constructs a supervisor, validating the repository URL and jobs
// directory and creating the directory if absent. The secrets store is
// wired lazily; its files are only touched on first use.
func New(cfg Config, log *zap.SugaredLogger) (*Supervisor, error) {
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = DefaultSyncInterval
	}

	syncer, err := gitsync.NewSyncer(cfg.RepoURL, cfg.JobsDir, log)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.JobsDir, 0o755); err != nil {
		return nil, errors.Configurationf("Cannot create jobs directory %s: %v", cfg.JobsDir, err)
	}

	store := secrets.NewStore(cfg.SecretsFile, cfg.KeyFile, log)
	run, err := runner.NewRunner(store, cfg.Interpreter, log)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		cfg:     cfg,
		syncer:  syncer,
		history: history.NewHistory(cfg.HistoryFile, log),
		secrets: store,
		runner:  run,
		cron:    cron.New(),
		logger:  log,
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[cron.EntryID]string),
		active:  make(map[string]ActiveExecution),
	}, nil
}

// Secrets exposes the injected secrets store.
func (s *Supervisor) Secrets() *secrets.Store { return s.secrets }

// History exposes the injected execution history.
func (s *Supervisor) History() *history.History { return s.history }

// Start registers the reserved sync entry, performs one immediate
// sync+reload, and starts the cron engine. It does not block; use Run
// for the blocking form.
func (s *Supervisor) Start() error {
	spec := fmt.Sprintf("@every %s", s.cfg.SyncInterval)
	id, err := s.cron.AddFunc(spec, func() { s.syncAndReload() })
	if err != nil {
		return errors.Configurationf("Cannot register sync entry: %v", err)
	}
	s.reservedID = id

	s.syncAndReload()
	s.cron.Start()

	if s.cfg.Watch {
		if err := s.startWatcher(); err != nil {
			s.logger.Warnw("Jobs directory watch unavailable, relying on periodic sync", "error", err)
		}
	}

	s.logger.Infow("Scheduler started",
		"repo", s.cfg.RepoURL,
		"jobs_dir", s.cfg.JobsDir,
		"sync_interval", s.cfg.SyncInterval.String())
	return nil
}

// Run starts the supervisor and blocks until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}

// Stop halts dispatch and waits for in-flight firings to complete.
func (s *Supervisor) Stop() {
	s.cancel()
	if s.watcher != nil {
		s.watcher.stop()
	}
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.wg.Wait()
	s.logger.Infow("Scheduler stopped")
}

// ForceSync performs one synchronous sync+reload and returns.
func (s *Supervisor) ForceSync() {
	s.syncAndReload()
}

// syncAndReload reconciles the working tree and rebuilds the schedule.
// A sync failure aborts the pass; previously registered jobs remain
// scheduled.
func (s *Supervisor) syncAndReload() {
	if err := s.syncer.Sync(); err != nil {
		s.logger.Errorw("Repository sync failed", "error", err)
		return
	}
	s.Reload()
}

// Reload cancels every registered entry except the reserved one, then
// re-scans the jobs directory and registers a fresh descriptor per job.
// Per-job failures are logged and do not stop the pass.
func (s *Supervisor) Reload() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range s.entries {
		s.cron.Remove(id)
	}
	s.entries = make(map[cron.EntryID]string)

	dirs, err := os.ReadDir(s.cfg.JobsDir)
	if err != nil {
		s.logger.Errorw("Cannot scan jobs directory", "dir", s.cfg.JobsDir, "error", err)
		return
	}

	loaded := 0
	for _, entry := range dirs {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		dir := filepath.Join(s.cfg.JobsDir, name)

		// Directories still being assembled are skipped silently.
		if !job.HasRequiredFiles(dir) {
			continue
		}

		desc, err := job.Load(name, dir)
		if err != nil {
			s.logJobLoadError(name, err)
			continue
		}

		if err := s.register(desc); err != nil {
			s.logJobLoadError(name, err)
			continue
		}
		loaded++
	}

	s.logger.Infow("Jobs reloaded", "loaded", loaded)
}

func (s *Supervisor) logJobLoadError(name string, err error) {
	switch {
	case errors.IsConfiguration(err):
		s.logger.Errorw("Configuration error in job", "job", name, "error", err)
	case errors.IsSecurity(err):
		// SecurityError is never swallowed and never retried
		s.logger.Errorw("Security error in job", "job", name, "error", err)
	default:
		s.logger.Errorw("Failed to load job", "job", name, "error", err)
	}
}

// register binds a descriptor to the cron engine. Caller holds mu.
func (s *Supervisor) register(desc *job.Descriptor) error {
	id, err := s.cron.AddFunc(desc.Schedule, func() { s.dispatch(desc) })
	if err != nil {
		return errors.Configurationf("Invalid cron schedule %q: %v", desc.Schedule, err)
	}
	s.entries[id] = desc.Name
	s.logger.Debugw("Job registered", "job", desc.Name, "schedule", desc.Schedule)
	return nil
}

// dispatch runs one firing: allocate an execution id, track it, execute,
// record the outcome. Failures are recorded in history and logged; the
// scheduler keeps running.
func (s *Supervisor) dispatch(desc *job.Descriptor) {
	s.wg.Add(1)
	defer s.wg.Done()

	execID := uuid.NewString()
	s.activeMu.Lock()
	s.active[execID] = ActiveExecution{ID: execID, JobName: desc.Name, StartedAt: time.Now()}
	s.activeMu.Unlock()

	defer func() {
		s.activeMu.Lock()
		delete(s.active, execID)
		s.activeMu.Unlock()
	}()

	s.logger.Infow("Executing job", "job", desc.Name, "execution_id", execID)

	result, err := s.runner.Execute(desc)
	switch {
	case err == nil:
		s.history.Add(desc.Name, true, result.ExecutionTimeSeconds, result.Output)
		s.logger.Infow("Job completed",
			"job", desc.Name,
			"execution_id", execID,
			"execution_time", fmt.Sprintf("%.2fs", result.ExecutionTimeSeconds))

	case errors.IsTimeout(err):
		// The configured budget is recorded as the elapsed time
		s.history.Add(desc.Name, false, float64(desc.TimeoutSeconds), err.Error())
		s.logger.Errorw("Job timed out", "job", desc.Name, "execution_id", execID, "error", err)

	case errors.IsSecurity(err):
		s.history.Add(desc.Name, false, 0, err.Error())
		s.logger.Errorw("Security error during execution", "job", desc.Name, "execution_id", execID, "error", err)

	case errors.IsExecution(err):
		s.history.Add(desc.Name, false, 0, err.Error())
		s.logger.Errorw("Job failed", "job", desc.Name, "execution_id", execID, "error", err)

	default:
		s.history.Add(desc.Name, false, 0, err.Error())
		s.logger.Errorw("Unexpected error executing job", "job", desc.Name, "execution_id", execID, "error", err)
	}
}

// ScheduledJobs returns the names of currently registered jobs.
func (s *Supervisor) ScheduledJobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.entries))
	for _, name := range s.entries {
		names = append(names, name)
	}
	return names
}

// ActiveExecutions returns a snapshot of in-flight firings.
func (s *Supervisor) ActiveExecutions() []ActiveExecution {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()
	out := make([]ActiveExecution, 0, len(s.active))
	for _, a := range s.active {
		out = append(out, a)
	}
	return out
}

// SystemInfo reports host memory pressure alongside the health check.
type SystemInfo struct {
	MemoryUsedGB  float64 `json:"memory_used_gb"`
	MemoryTotalGB float64 `json:"memory_total_gb"`
	MemoryPercent float64 `json:"memory_percent"`
}

// Health is the observability snapshot exposed to operators.
type Health struct {
	Status           string             `json:"status"`
	Version          string             `json:"version"`
	ActiveJobs       int                `json:"active_jobs"`
	ScheduledJobs    int                `json:"scheduled_jobs"`
	TotalExecutions  int                `json:"total_executions"`
	RecentFailures   []history.Failure  `json:"recent_failures"`
	RepositoryStatus gitsync.RepoStatus `json:"repository_status"`
	System           SystemInfo         `json:"system"`
}

// HealthCheck summarizes scheduler, history, and repository state.
func (s *Supervisor) HealthCheck() Health {
	s.activeMu.Lock()
	activeCount := len(s.active)
	s.activeMu.Unlock()

	s.mu.Lock()
	scheduledCount := len(s.entries)
	s.mu.Unlock()

	health := Health{
		Status:           "healthy",
		Version:          version.Get().Version,
		ActiveJobs:       activeCount,
		ScheduledJobs:    scheduledCount,
		TotalExecutions:  s.history.Total(),
		RecentFailures:   s.history.RecentFailures(5),
		RepositoryStatus: s.syncer.Status(),
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		health.System = SystemInfo{
			MemoryUsedGB:  float64(vm.Used) / (1 << 30),
			MemoryTotalGB: float64(vm.Total) / (1 << 30),
			MemoryPercent: vm.UsedPercent,
		}
	}
	return health
}

// JobStats returns the history's global statistics.
func (s *Supervisor) JobStats() history.Stats {
	return s.history.Stats()
}

// JobStatsFor returns statistics filtered to one job.
func (s *Supervisor) JobStatsFor(name string) history.JobStats {
	return s.history.StatsFor(name)
}
