// Package runner executes one job descriptor as an isolated child
// process with a hard wall-clock deadline, constructed environment, and
// bounded output capture.
package runner

import (
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/kballard/go-shellquote"
	"go.uber.org/zap"

	"github.com/teranos/cadence/errors"
	"github.com/teranos/cadence/job"
)

const (
	// DefaultInterpreter runs job scripts; the supervisor does not embed
	// the scripting runtime, it delegates to this command.
	DefaultInterpreter = "ruby"

	// killGrace is how long a timed-out child gets between SIGTERM and SIGKILL
	killGrace = 2 * time.Second

	// captureLimit bounds the in-memory output buffer per execution
	captureLimit = 64 * 1024
)

// sanitizedPrefixes are stripped from the child environment so the
// supervisor's interpreter configuration never leaks into jobs.
var sanitizedPrefixes = []string{"RUBY_", "GEM_"}

// Result is the outcome of one successful execution.
type Result struct {
	Success              bool
	Output               string
	ExecutionTimeSeconds float64
}

// Runner executes descriptors. Construct with NewRunner and inject the
// secrets accessor; runners are safe for concurrent use.
type Runner struct {
	resolver    job.SecretResolver
	interpreter []string
	grace       time.Duration
	logger      *zap.SugaredLogger
}

// NewRunner creates a runner over the given secrets accessor.
// interpreter is a command line (split shell-style); empty selects
// DefaultInterpreter.
func NewRunner(resolver job.SecretResolver, interpreter string, log *zap.SugaredLogger) (*Runner, error) {
	if interpreter == "" {
		interpreter = DefaultInterpreter
	}
	argv, err := shellquote.Split(interpreter)
	if err != nil {
		return nil, errors.Configurationf("Invalid interpreter command %q: %v", interpreter, err)
	}
	if len(argv) == 0 {
		return nil, errors.Configurationf("Interpreter command is empty")
	}
	return &Runner{
		resolver:    resolver,
		interpreter: argv,
		grace:       killGrace,
		logger:      log,
	}, nil
}

// Execute runs the descriptor once.
//
// Exit status zero returns a Result; a non-zero exit raises
// ExecutionError, deadline expiry raises TimeoutError, and any
// lower-level spawn failure raises ExecutionError. The returned
// ExecutionTimeSeconds measures wall clock from just before spawn to
// just after reap.
func (r *Runner) Execute(d *job.Descriptor) (*Result, error) {
	// Guard against the script being swapped out between load and fire.
	if _, err := os.Stat(d.ScriptPath()); err != nil {
		return nil, errors.Executionf("Execution failed: %v", err)
	}
	if err := job.ScanScript(d.ScriptPath()); err != nil {
		return nil, err
	}

	env, err := r.buildEnvironment(d)
	if err != nil {
		return nil, err
	}

	argv := append(append([]string{}, r.interpreter...), job.ScriptFileName)
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = d.Path
	cmd.Env = env
	// Own process group so a timeout can terminate the whole tree, not
	// just the interpreter.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	capture := &boundedBuffer{max: captureLimit}
	cmd.Stdout = capture
	cmd.Stderr = capture

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, errors.Executionf("Execution failed: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timeout := time.Duration(d.TimeoutSeconds) * time.Second
	select {
	case waitErr := <-done:
		elapsed := time.Since(start).Seconds()
		output := capture.String()
		if waitErr == nil {
			return &Result{Success: true, Output: output, ExecutionTimeSeconds: elapsed}, nil
		}
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return nil, errors.Executionf("Job failed with exit code %d: %s", exitErr.ExitCode(), output)
		}
		return nil, errors.Executionf("Execution failed: %v", waitErr)

	case <-time.After(timeout):
		r.terminate(cmd, done, d)
		return nil, errors.Timeoutf("Job timed out after %d seconds", d.TimeoutSeconds)
	}
}

// terminate delivers SIGTERM, escalating to SIGKILL after the grace
// period, and reaps the child.
func (r *Runner) terminate(cmd *exec.Cmd, done <-chan error, d *job.Descriptor) {
	if cmd.Process == nil {
		return
	}
	pgid := -cmd.Process.Pid
	if err := syscall.Kill(pgid, syscall.SIGTERM); err != nil {
		r.logger.Debugw("SIGTERM failed, killing", "job", d.Name, "error", err)
	}
	select {
	case <-done:
	case <-time.After(r.grace):
		r.logger.Warnw("Job ignored SIGTERM, sending SIGKILL", "job", d.Name)
		syscall.Kill(pgid, syscall.SIGKILL)
		<-done
	}
}

// buildEnvironment resolves the descriptor environment through the
// secrets accessor and sanitizes it for the child. Resolution errors
// here (unlike in the loader's degraded path) abort the execution.
func (r *Runner) buildEnvironment(d *job.Descriptor) ([]string, error) {
	resolved := make(map[string]string, len(d.Environment))
	for _, ev := range d.Environment {
		value, err := r.resolver.ResolveExpression(ev.Expr)
		if err != nil {
			return nil, errors.Executionf("Execution failed: %v", err)
		}
		resolved[ev.Name] = value
	}

	names := make([]string, 0, len(resolved))
	for name := range resolved {
		if sanitized(name) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	// The child sees exactly sanitize(resolve(env)); only PATH passes
	// through so the interpreter itself can be found.
	env := []string{"PATH=" + os.Getenv("PATH")}
	for _, name := range names {
		env = append(env, name+"="+resolved[name])
	}
	return env, nil
}

func sanitized(name string) bool {
	for _, prefix := range sanitizedPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// boundedBuffer captures combined output up to a fixed cap, discarding
// the excess so pathological jobs cannot exhaust memory.
type boundedBuffer struct {
	mu  sync.Mutex
	buf strings.Builder
	max int
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.buf.Len() < b.max {
		room := b.max - b.buf.Len()
		if room > len(p) {
			room = len(p)
		}
		b.buf.Write(p[:room])
	}
	return len(p), nil
}

func (b *boundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
