package scheduler

import (
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces a burst of filesystem events (a git checkout
// touches every file) into a single reload.
const watchDebounce = 2 * time.Second

// dirWatcher triggers a reload when the jobs directory changes between
// sync ticks. It supplements the reserved periodic entry, never
// replaces it. If the watcher cannot be started the supervisor relies on
// periodic reloads only; errors reported while watching are logged and
// watching continues.
type dirWatcher struct {
	fsw  *fsnotify.Watcher
	done chan struct{}
}

func (s *Supervisor) startWatcher() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if err := fsw.Add(s.cfg.JobsDir); err != nil {
		fsw.Close()
		return err
	}
	// fsnotify is not recursive; watch each job directory as well so
	// edits to config.yml / execute.rb are seen.
	if entries, err := s.cfg.readJobDirs(); err == nil {
		for _, dir := range entries {
			fsw.Add(dir)
		}
	}

	w := &dirWatcher{fsw: fsw, done: make(chan struct{})}
	s.watcher = w

	go s.watchLoop(w)
	s.logger.Infow("Watching jobs directory for changes", "dir", s.cfg.JobsDir)
	return nil
}

func (s *Supervisor) watchLoop(w *dirWatcher) {
	var debounce *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-w.done:
			return
		case <-s.ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			// New job directories need their own watch
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					w.fsw.Add(event.Name)
				}
			}
			if debounce == nil {
				debounce = time.AfterFunc(watchDebounce, func() {
					select {
					case fire <- struct{}{}:
					default:
					}
				})
			} else {
				debounce.Reset(watchDebounce)
			}

		case <-fire:
			debounce = nil
			s.logger.Infow("Jobs directory changed, reloading")
			s.Reload()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			s.logger.Warnw("Jobs directory watch error", "error", err)
		}
	}
}

func (w *dirWatcher) stop() {
	close(w.done)
	w.fsw.Close()
}

// readJobDirs lists the direct child directories of the jobs dir.
func (c Config) readJobDirs() ([]string, error) {
	entries, err := os.ReadDir(c.JobsDir)
	if err != nil {
		return nil, err
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(c.JobsDir, e.Name()))
		}
	}
	return dirs, nil
}
