// Package runner drives one link run over an input root: it enumerates
// title directories, resolves each one and materializes the result.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Nomadcxx/jellylink/internal/config"
	"github.com/Nomadcxx/jellylink/internal/linker"
	"github.com/Nomadcxx/jellylink/internal/logging"
	"github.com/Nomadcxx/jellylink/internal/reporter"
	"github.com/Nomadcxx/jellylink/internal/scanner"
)

// LockFile is created in every output root while a run holds it
const LockFile = ".jellylink.lock"

var (
	// ErrInputRoot is returned when the input root cannot be listed
	ErrInputRoot = errors.New("input root not accessible")
	// ErrLocked is returned when another run holds the output root
	ErrLocked = errors.New("output root is locked by another run")
)

// Options configures a Runner
type Options struct {
	Scanner scanner.Options
	Links   linker.Config
	Workers int
	Lock    bool
}

// OptionsFromConfig builds runner options from a loaded config
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Scanner: scanner.Options{
			Postfixes:       cfg.Parsing.Postfixes,
			Broadcast:       cfg.Broadcast,
			SeasonSource:    scanner.SeasonSource(cfg.Parsing.SeasonSource),
			TieBreak:        scanner.TieBreak(cfg.Parsing.TieBreak),
			NormalizeTitles: cfg.Parsing.NormalizeTitles,
		},
		Links: linker.Config{
			Mode:    linker.Mode(cfg.Links.Mode),
			GroupBy: linker.GroupBy(cfg.Links.GroupBy),
		},
		Workers: cfg.Run.Workers,
		Lock:    cfg.Links.Lock,
	}
}

// Root pairs an input root with its output root
type Root struct {
	Input  string
	Output string
}

// Runner executes link runs. A Runner holds no per-run state and may run
// several roots concurrently.
type Runner struct {
	opts     Options
	resolver *scanner.Resolver
	logger   *slog.Logger
}

// New validates opts and creates a runner
func New(opts Options, logger *slog.Logger) (*Runner, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Scanner.TieBreak == "" {
		opts.Scanner.TieBreak = scanner.TieBreakLexical
	}

	classifier, err := scanner.NewClassifier(opts.Scanner)
	if err != nil {
		return nil, err
	}
	resolver, err := scanner.NewResolver(classifier, opts.Scanner.TieBreak, logger)
	if err != nil {
		return nil, err
	}
	// Fail on bad link settings before any root is touched
	if _, err := linker.New("", "", opts.Links, nil); err != nil {
		return nil, err
	}

	return &Runner{opts: opts, resolver: resolver, logger: logger}, nil
}

// DryRun reports whether the runner only computes what it would do
func (r *Runner) DryRun() bool {
	return r.opts.Links.DryRun
}

// titleOutcome is the result of processing one title directory
type titleOutcome struct {
	title string
	path  string
	files int
	stats scanner.Stats
	set   *scanner.EpisodeSet
	links linker.Result
	err   error
}

// Run processes every title directory under root.Input. Title failures are
// recorded in the summary; only errors that stop the whole root are
// returned. progressCh may be nil.
func (r *Runner) Run(ctx context.Context, root Root, progressCh chan<- scanner.ScanProgress) (*reporter.Summary, error) {
	input, err := filepath.Abs(root.Input)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInputRoot, root.Input, err)
	}
	output, err := filepath.Abs(root.Output)
	if err != nil {
		return nil, fmt.Errorf("resolve output root %s: %w", root.Output, err)
	}

	summary := &reporter.Summary{
		RunID:     uuid.NewString(),
		Input:     input,
		Output:    output,
		StartedAt: time.Now(),
		DryRun:    r.opts.Links.DryRun,
	}
	logger := r.logger.With("run_id", summary.RunID, "input", input, "output", output)

	titles, err := listTitles(input, output)
	if err != nil {
		logger.Error("input root not accessible", "error", err)
		return nil, fmt.Errorf("%w: %s: %v", ErrInputRoot, input, err)
	}

	if r.opts.Lock && !r.opts.Links.DryRun {
		unlock, err := lockOutput(output)
		if err != nil {
			logger.Error("cannot lock output root", "error", err)
			return nil, err
		}
		defer unlock()
	}

	lk, err := linker.New(input, output, r.opts.Links, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("run started", "titles", len(titles), "workers", r.opts.Workers, "dry_run", summary.DryRun)

	pr := scanner.NewProgressReporter(progressCh, "linking")
	pr.Start(len(titles), fmt.Sprintf("Linking %d titles from %s", len(titles), input))

	// Titles are resolved in parallel and linked in title order; the first
	// title wins a link name shared with a later one.
	outcomes := make([]titleOutcome, len(titles))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)
	for i, title := range titles {
		i, title := i, title // per-iteration copy (go 1.21 loop semantics)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = r.resolveTitle(input, title, logger)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i := range outcomes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		o := &outcomes[i]
		if o.err == nil {
			r.materializeTitle(o, lk, logger)
		}

		if o.err != nil {
			pr.Fail(i+1, o.title, o.err)
		} else {
			pr.Title(i+1, o.title, o.links.CreatedFiles, o.files,
				fmt.Sprintf("%s: %d created, %d existed", o.title, o.links.CreatedFiles, o.links.ExistedFiles))
		}
	}

	for _, o := range outcomes {
		summary.TitlesChecked++
		summary.Stats.Add(o.stats)
		summary.CreatedFiles += o.links.CreatedFiles
		summary.ExistedFiles += o.links.ExistedFiles
		summary.CreatedDirs += o.links.CreatedDirs

		episodes := 0
		if o.set != nil {
			episodes = o.set.Len()
		}
		summary.Titles = append(summary.Titles, reporter.TitleSummary{
			Title:        o.title,
			FilesChecked: o.files,
			Episodes:     episodes,
			CreatedFiles: o.links.CreatedFiles,
			ExistedFiles: o.links.ExistedFiles,
		})

		if o.err != nil {
			summary.TitlesFailed++
			summary.Failures = append(summary.Failures, reporter.TitleFailure{
				Title: o.title,
				Path:  o.path,
				Error: o.err.Error(),
			})
		}
	}
	summary.Duration = time.Since(summary.StartedAt)

	pr.Complete(fmt.Sprintf("Finished %s: %d created, %d existed, %d failed titles",
		input, summary.CreatedFiles, summary.ExistedFiles, summary.TitlesFailed))

	logger.Info("run finished",
		"titles", summary.TitlesChecked,
		"failed", summary.TitlesFailed,
		"files", summary.Stats.FilesChecked,
		"created", summary.CreatedFiles,
		"existed", summary.ExistedFiles,
		"dirs", summary.CreatedDirs,
		"duration", summary.Duration.Round(time.Millisecond))

	return summary, nil
}

// resolveTitle lists and resolves one title directory. Errors stay inside
// the outcome so one broken title never stops the others.
func (r *Runner) resolveTitle(input, title string, logger *slog.Logger) titleOutcome {
	path := filepath.Join(input, title)
	outcome := titleOutcome{title: title, path: path}

	entries, err := os.ReadDir(path)
	if err != nil {
		outcome.err = fmt.Errorf("list %s: %w", path, err)
		logger.Error("title failed", "title", title, "path", path, "error", err)
		return outcome
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	outcome.files = len(names)

	outcome.set, outcome.stats = r.resolver.Resolve(names)
	return outcome
}

// materializeTitle links the resolved episodes of one title
func (r *Runner) materializeTitle(o *titleOutcome, lk *linker.Linker, logger *slog.Logger) {
	logger = logger.With("title", o.title)

	links, err := lk.Materialize(o.title, o.set)
	o.links = links
	if err != nil {
		o.err = err
		logger.Error("title failed", "path", o.path, "error", err)
		return
	}

	logger.Debug("title done",
		"files", o.files,
		"episodes", o.set.Len(),
		"created", o.links.CreatedFiles,
		"existed", o.links.ExistedFiles)
}

// listTitles returns the names of title directories under input in
// directory order. Symlinks to directories count as titles; plain files
// and the output root itself are skipped.
func listTitles(input, output string) ([]string, error) {
	info, err := os.Stat(input)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory")
	}

	entries, err := os.ReadDir(input)
	if err != nil {
		return nil, err
	}

	var titles []string
	for _, e := range entries {
		path := filepath.Join(input, e.Name())
		if path == output {
			continue
		}
		switch {
		case e.IsDir():
			titles = append(titles, e.Name())
		case e.Type()&os.ModeSymlink != 0:
			if target, err := os.Stat(path); err == nil && target.IsDir() {
				titles = append(titles, e.Name())
			}
		}
	}
	return titles, nil
}

// lockOutput takes an exclusive lock on the output root, creating it when
// missing
func lockOutput(output string) (func(), error) {
	if err := os.MkdirAll(output, 0755); err != nil {
		return nil, fmt.Errorf("create output root %s: %w", output, err)
	}

	lock := flock.New(filepath.Join(output, LockFile))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock output root %s: %w", output, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, output)
	}
	return func() { _ = lock.Unlock() }, nil
}
