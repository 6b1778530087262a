package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Nomadcxx/jellylink/internal/config"
	"github.com/Nomadcxx/jellylink/internal/logging"
	"github.com/Nomadcxx/jellylink/internal/reporter"
	"github.com/Nomadcxx/jellylink/internal/runner"
)

// reportRetention is how long report files are kept
const reportRetention = 30 * 24 * time.Hour

// Daemon represents the background service
type Daemon struct {
	runner    *runner.Runner
	roots     []runner.Root
	debounce  time.Duration
	reportDir string // empty disables report files
	logger    *slog.Logger
}

// New creates a new daemon instance from a validated config
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if logger == nil {
		logger = logging.Discard()
	}

	debounce, err := cfg.DebounceDuration()
	if err != nil {
		return nil, err
	}

	r, err := runner.New(runner.OptionsFromConfig(cfg), logger)
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		runner:   r,
		debounce: debounce,
		logger:   logger,
	}
	for _, root := range cfg.Roots {
		input, err := filepath.Abs(root.Input)
		if err != nil {
			return nil, fmt.Errorf("resolve input root %s: %w", root.Input, err)
		}
		output, err := filepath.Abs(root.Output)
		if err != nil {
			return nil, fmt.Errorf("resolve output root %s: %w", root.Output, err)
		}
		d.roots = append(d.roots, runner.Root{Input: input, Output: output})
	}
	if cfg.Daemon.Reports {
		d.reportDir = reporter.ReportDir()
	}

	return d, nil
}

// RunAll runs every configured root once. A failing root does not stop
// the others; their errors are joined.
func (d *Daemon) RunAll(ctx context.Context) ([]*reporter.Summary, error) {
	indexes := make([]int, len(d.roots))
	for i := range d.roots {
		indexes[i] = i
	}
	return d.runRoots(ctx, indexes)
}

func (d *Daemon) runRoots(ctx context.Context, indexes []int) ([]*reporter.Summary, error) {
	var (
		summaries []*reporter.Summary
		errs      []error
	)

	for _, i := range indexes {
		if err := ctx.Err(); err != nil {
			return summaries, err
		}
		summary, err := d.runner.Run(ctx, d.roots[i], nil)
		if err != nil {
			d.logger.Error("root failed", "input", d.roots[i].Input, "error", err)
			errs = append(errs, err)
			continue
		}
		summaries = append(summaries, summary)
	}

	if d.reportDir != "" && len(summaries) > 0 {
		path, err := reporter.GenerateIn(d.reportDir, time.Now(), summaries)
		if err != nil {
			d.logger.Warn("failed to write report", "error", err)
		} else {
			d.logger.Info("report saved", "path", path)
		}
		if _, err := cleanupOldReports(d.reportDir, reportRetention); err != nil {
			d.logger.Warn("failed to clean up reports", "error", err)
		}
	}

	return summaries, errors.Join(errs...)
}

// Watch watches every input root and its title directories, re-running a
// root once its events have been quiet for the debounce interval. It
// returns when ctx is done.
func (d *Daemon) Watch(ctx context.Context) error {
	w, err := d.newWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	return d.loop(ctx, w)
}

// newWatcher creates the fsnotify watcher and registers every directory.
// A root that cannot be watched is logged and skipped; it is an error only
// when no root can be watched at all.
func (d *Daemon) newWatcher() (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("unable to create watcher: %w", err)
	}

	var errs []error
	for _, root := range d.roots {
		if err := d.watchRoot(w, root); err != nil {
			d.logger.Error("root not watched", "input", root.Input, "error", err)
			errs = append(errs, err)
		}
	}
	if len(d.roots) > 0 && len(errs) == len(d.roots) {
		w.Close()
		return nil, fmt.Errorf("no root could be watched: %w", errors.Join(errs...))
	}

	return w, nil
}

// watchRoot registers an input root and its title directories
func (d *Daemon) watchRoot(w *fsnotify.Watcher, root runner.Root) error {
	entries, err := os.ReadDir(root.Input)
	if err != nil {
		return fmt.Errorf("unable to list %s: %w", root.Input, err)
	}
	if err := w.Add(root.Input); err != nil {
		return fmt.Errorf("unable to watch %s: %w", root.Input, err)
	}
	d.logger.Info("watching", "path", root.Input)

	for _, e := range entries {
		path := filepath.Join(root.Input, e.Name())
		if d.isOutput(path) {
			continue
		}
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if err := w.Add(path); err != nil {
				d.logger.Warn("unable to watch title", "path", path, "error", err)
				continue
			}
			d.logger.Debug("watching", "path", path)
		}
	}
	return nil
}

func (d *Daemon) loop(ctx context.Context, w *fsnotify.Watcher) error {
	pending := make(map[int]bool)
	timer := time.NewTimer(d.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}

			idx := d.rootFor(event.Name)
			if idx < 0 || filepath.Base(event.Name) == runner.LockFile {
				continue
			}

			// New title directories directly under the root get their own watch
			if event.Op&fsnotify.Create == fsnotify.Create && filepath.Dir(event.Name) == d.roots[idx].Input {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.Add(event.Name); err != nil {
						d.logger.Warn("unable to watch title", "path", event.Name, "error", err)
					} else {
						d.logger.Info("now watching new title", "path", event.Name)
					}
				}
			}

			d.logger.Debug("event", "op", event.Op.String(), "path", event.Name)
			pending[idx] = true
			timer.Reset(d.debounce)

		case err, ok := <-w.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			d.logger.Warn("watcher error", "error", err)

		case <-timer.C:
			indexes := make([]int, 0, len(pending))
			for i := range pending {
				indexes = append(indexes, i)
			}
			sort.Ints(indexes)
			pending = make(map[int]bool)

			if _, err := d.runRoots(ctx, indexes); err != nil && ctx.Err() == nil {
				d.logger.Error("triggered run failed", "error", err)
			}
		}
	}
}

// rootFor returns the index of the root whose input contains path, or -1.
// Paths inside any output root are ignored so our own links never
// trigger a run.
func (d *Daemon) rootFor(path string) int {
	if d.isOutput(path) {
		return -1
	}
	for i, root := range d.roots {
		if within(path, root.Input) {
			return i
		}
	}
	return -1
}

func (d *Daemon) isOutput(path string) bool {
	for _, root := range d.roots {
		if within(path, root.Output) {
			return true
		}
	}
	return false
}

// within reports whether path is dir or below it
func within(path, dir string) bool {
	return path == dir || strings.HasPrefix(path, dir+string(filepath.Separator))
}

// cleanupOldReports removes report files older than maxAge
func cleanupOldReports(dir string, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read report directory: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	deleted := 0

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(dir, entry.Name())); err == nil {
				deleted++
			}
		}
	}

	return deleted, nil
}
