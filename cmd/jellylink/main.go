package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Nomadcxx/jellylink/internal/cleaner"
	"github.com/Nomadcxx/jellylink/internal/config"
	"github.com/Nomadcxx/jellylink/internal/logging"
	"github.com/Nomadcxx/jellylink/internal/runner"
	"github.com/Nomadcxx/jellylink/internal/scanner"
	"github.com/Nomadcxx/jellylink/internal/ui"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string
	debug     bool

	pruneOutput string
	pruneDryRun bool

	// Version information (set via -ldflags during build)
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

// Exit codes
const (
	exitOK           = 0
	exitFatal        = 1
	exitTitlesFailed = 2
)

// exitError carries a process exit code through cobra
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// exitCode maps a command error onto the process exit code
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitFatal
}

var rootCmd = &cobra.Command{
	Use:           "jellylink",
	Short:         "Link recorded episodes into a Plex friendly library",
	Long:          getLongDescription(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

var classifyCmd = &cobra.Command{
	Use:   "classify NAME...",
	Short: "Show how filenames are parsed",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runClassify,
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove dangling links from output roots",
	RunE:  runPrune,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show configuration file location and contents",
	RunE:  runConfig,
}

var addRootCmd = &cobra.Command{
	Use:   "add-root INPUT OUTPUT",
	Short: "Add an input/output root pair to the config file",
	Args:  cobra.ExactArgs(2),
	RunE:  runAddRoot,
}

var removeRootCmd = &cobra.Command{
	Use:   "remove-root INPUT",
	Short: "Remove every root reading from INPUT",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemoveRoot,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("jellylink %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Built:      %s\n", buildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/jellylink/config.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: console, json (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "log every listing and parse result")

	pruneCmd.Flags().StringVar(&pruneOutput, "output", "", "prune this output root instead of the configured ones")
	pruneCmd.Flags().BoolVar(&pruneDryRun, "dry-run", false, "show what would be removed without removing it")

	configCmd.AddCommand(addRootCmd)
	configCmd.AddCommand(removeRootCmd)

	rootCmd.AddCommand(linkCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(exitCode(err))
}

func getLongDescription() string {
	return ui.FormatASCIIHeaderWithSubtext(
		"jellylink scans recording directories, picks the best copy of every episode\n" +
			"and links it into an output library under a canonical Title_sNN_eNNN name.\n" +
			"Sources are never moved, renamed or deleted.")
}

// loadConfig reads --config or the default config file and applies the
// global logging flags
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if cfgFile != "" {
		cfg, err = config.LoadFrom(cfgFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	if debug {
		cfg.Run.Debug = true
	}
	return cfg, nil
}

func saveConfig(cfg *config.Config) error {
	if cfgFile != "" {
		return config.SaveTo(cfg, cfgFile)
	}
	return config.Save(cfg)
}

// newLogger builds the logger for a command. quiet drops console output,
// keeping only the optional log file.
func newLogger(cfg *config.Config, quiet bool) (*slog.Logger, func() error, error) {
	var w io.Writer = os.Stderr
	if quiet {
		w = io.Discard
	}
	return logging.New(w, logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
		Debug:  cfg.Run.Debug,
	})
}

func runClassify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	classifier, err := scanner.NewClassifier(runner.OptionsFromConfig(cfg).Scanner)
	if err != nil {
		return err
	}

	results := make([]scanner.Result, 0, len(args))
	for _, name := range args {
		results = append(results, classifier.Classify(name))
	}
	fmt.Println(renderClassification(results))
	return nil
}

// renderClassification renders parse results as a table
func renderClassification(results []scanner.Result) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Name", "Shape", "Key", "Priority", "Note"})

	for _, r := range results {
		if !r.Accepted() {
			tw.AppendRow(table.Row{r.Name, r.Shape.String(), "-", 0, string(r.Reason)})
			continue
		}
		id := r.Identity
		var notes []string
		if id.Broadcast != "" {
			notes = append(notes, "broadcast "+id.Broadcast)
		}
		if id.Postfix != "" {
			notes = append(notes, "postfix "+id.Postfix)
		}
		if id.Priority <= 0 {
			notes = append(notes, "discarded")
		}
		tw.AppendRow(table.Row{r.Name, r.Shape.String(), id.LinkName(), id.Priority, strings.Join(notes, ", ")})
	}

	return tw.Render()
}

func runPrune(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, closeLog, err := newLogger(cfg, false)
	if err != nil {
		return err
	}
	defer closeLog()

	outputs := cfg.OutputRoots()
	if pruneOutput != "" {
		outputs = []string{pruneOutput}
	}
	if len(outputs) == 0 {
		return fmt.Errorf("no output roots configured; pass --output")
	}

	cleanerCfg := cleaner.DefaultConfig()
	cleanerCfg.DryRun = pruneDryRun

	failed := false
	for _, output := range outputs {
		result, err := cleaner.Prune(output, cleanerCfg, logger)
		if err != nil {
			fmt.Println(ui.FormatStatusFail(fmt.Sprintf("%s: %v", output, err)))
			failed = true
			continue
		}

		verb := "removed"
		if result.DryRun {
			verb = "would remove"
		}
		fmt.Println(ui.FormatStatusOK(fmt.Sprintf("%s: checked %d links, %s %d dangling links and %d empty directories",
			output, result.Checked, verb, result.Removed, result.DirsPruned)))
		for _, e := range result.Errors {
			fmt.Println(ui.FormatStatusWarn(e.Error()))
		}
	}

	if failed {
		return &exitError{code: exitFatal, err: fmt.Errorf("prune failed for one or more output roots")}
	}
	return nil
}

func runConfig(cmd *cobra.Command, args []string) error {
	path := cfgFile
	if path == "" {
		var err error
		if path, err = config.ConfigPath(); err != nil {
			return err
		}
	}
	_, statErr := os.Stat(path)

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	fmt.Printf("Configuration file: %s\n", path)
	if os.IsNotExist(statErr) {
		fmt.Println("(created with defaults; add roots with 'jellylink config add-root INPUT OUTPUT')")
	}
	fmt.Println()

	if err := toml.NewEncoder(os.Stdout).Encode(cfg); err != nil {
		return fmt.Errorf("failed to print config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Println()
		fmt.Println(ui.FormatStatusWarn(err.Error()))
	}
	return nil
}

func runAddRoot(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.AddRoot(args[0], args[1]); err != nil {
		return err
	}
	if err := saveConfig(cfg); err != nil {
		return err
	}
	fmt.Println(ui.FormatStatusOK(fmt.Sprintf("added root %s -> %s", args[0], args[1])))
	return nil
}

func runRemoveRoot(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.RemoveRoot(args[0]); err != nil {
		return err
	}
	if err := saveConfig(cfg); err != nil {
		return err
	}
	fmt.Println(ui.FormatStatusOK(fmt.Sprintf("removed root %s", args[0])))
	return nil
}
