package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Nomadcxx/jellylink/internal/config"
	"github.com/Nomadcxx/jellylink/internal/reporter"
	"github.com/Nomadcxx/jellylink/internal/runner"
	"github.com/Nomadcxx/jellylink/internal/scanner"
	"github.com/Nomadcxx/jellylink/internal/ui"
)

var (
	linkInput   string
	linkOutput  string
	linkDryRun  bool
	linkTUI     bool
	linkJSON    bool
	linkWorkers int
)

var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Link episodes from every configured root",
	Long: "Link episodes from every configured root, or from the single root\n" +
		"given with --input and --output. Exit status is 1 when a root could not\n" +
		"be processed and 2 when some titles failed.",
	RunE: runLink,
}

func init() {
	linkCmd.Flags().StringVar(&linkInput, "input", "", "input root to link instead of the configured roots")
	linkCmd.Flags().StringVar(&linkOutput, "output", "", "output root for --input")
	linkCmd.Flags().BoolVar(&linkDryRun, "dry-run", false, "show what would be linked without touching the filesystem")
	linkCmd.Flags().BoolVar(&linkTUI, "tui", false, "show live progress in a terminal UI")
	linkCmd.Flags().BoolVar(&linkJSON, "json", false, "print summaries as JSON")
	linkCmd.Flags().IntVar(&linkWorkers, "workers", 0, "titles processed in parallel (overrides config)")
}

// applyLinkFlags folds the link command flags into cfg
func applyLinkFlags(cfg *config.Config) error {
	if linkInput != "" || linkOutput != "" {
		if linkInput == "" || linkOutput == "" {
			return fmt.Errorf("--input and --output must be given together")
		}
		cfg.Roots = []config.RootConfig{{Input: linkInput, Output: linkOutput}}
	}
	if linkWorkers > 0 {
		cfg.Run.Workers = linkWorkers
	}
	return cfg.Validate()
}

func runLink(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := applyLinkFlags(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, closeLog, err := newLogger(cfg, linkTUI)
	if err != nil {
		return err
	}
	defer closeLog()

	opts := runner.OptionsFromConfig(cfg)
	opts.Links.DryRun = linkDryRun
	r, err := runner.New(opts, logger)
	if err != nil {
		return err
	}

	roots := make([]runner.Root, 0, len(cfg.Roots))
	for _, root := range cfg.Roots {
		roots = append(roots, runner.Root{Input: root.Input, Output: root.Output})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		summaries []*reporter.Summary
		runErr    error
	)
	if linkTUI {
		summaries, runErr = runWithTUI(ctx, r, roots)
	} else {
		summaries, runErr = runRoots(ctx, r, roots, nil)
	}

	if linkJSON {
		err = reporter.WriteJSON(os.Stdout, summaries)
	} else {
		err = reporter.Print(os.Stdout, summaries)
	}
	if err != nil {
		return err
	}
	if linkDryRun && !linkJSON {
		fmt.Fprintln(os.Stderr, ui.FormatStatusInfo("dry run: no links or directories were created"))
	}

	if runErr != nil {
		return &exitError{code: exitFatal, err: runErr}
	}
	failed := 0
	for _, s := range summaries {
		failed += s.TitlesFailed
	}
	if failed > 0 {
		return &exitError{code: exitTitlesFailed, err: fmt.Errorf("%d titles failed", failed)}
	}
	return nil
}

// runRoots runs each root in order. A root that cannot be processed is
// skipped; cancellation stops the loop.
func runRoots(ctx context.Context, r *runner.Runner, roots []runner.Root, progressCh chan<- scanner.ScanProgress) ([]*reporter.Summary, error) {
	var (
		summaries []*reporter.Summary
		errs      []error
	)
	for _, root := range roots {
		summary, err := r.Run(ctx, root, progressCh)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				errs = append(errs, fmt.Errorf("run cancelled"))
				break
			}
			errs = append(errs, err)
			continue
		}
		summaries = append(summaries, summary)
	}
	return summaries, errors.Join(errs...)
}

// runWithTUI runs the roots in the background while the TUI renders their
// progress
func runWithTUI(ctx context.Context, r *runner.Runner, roots []runner.Root) ([]*reporter.Summary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	progressCh := make(chan scanner.ScanProgress, 64)
	done := make(chan struct{})

	var (
		summaries []*reporter.Summary
		runErr    error
	)
	go func() {
		defer close(done)
		defer close(progressCh)
		summaries, runErr = runRoots(ctx, r, roots, progressCh)
	}()

	p := tea.NewProgram(ui.NewRunModel(progressCh, cancel), tea.WithAltScreen())
	_, tuiErr := p.Run()
	if tuiErr != nil {
		cancel()
		tuiErr = fmt.Errorf("running TUI: %w", tuiErr)
	}

	// Drain whatever the run still sends after the TUI has exited
	for range progressCh {
	}
	<-done

	return summaries, errors.Join(runErr, tuiErr)
}
