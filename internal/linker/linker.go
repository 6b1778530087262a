// Package linker materializes resolved episode sets as links in an output
// root. It never overwrites, moves or deletes anything.
package linker

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Nomadcxx/jellylink/internal/logging"
	"github.com/Nomadcxx/jellylink/internal/scanner"
)

// Mode selects the kind of link created
type Mode string

const (
	ModeSymlink  Mode = "symlink"  // absolute symbolic link
	ModeRelative Mode = "relative" // symbolic link relative to the link's directory
	ModeHardlink Mode = "hardlink"
)

// GroupBy selects how output directories are named
type GroupBy string

const (
	GroupByTitle     GroupBy = "title"      // parsed title of each identity
	GroupBySourceDir GroupBy = "source_dir" // name of the input title directory
)

// Config holds linker configuration
type Config struct {
	Mode    Mode
	GroupBy GroupBy
	DryRun  bool
}

// DefaultConfig returns the default linker configuration
func DefaultConfig() Config {
	return Config{Mode: ModeSymlink, GroupBy: GroupByTitle}
}

// Operation represents a single filesystem operation
type Operation struct {
	Type        string // "mkdir", "link"
	Key         string // canonical identity key, empty for mkdir
	Source      string
	Destination string
	Timestamp   time.Time
	Completed   bool
}

// Result counts what one Materialize call did
type Result struct {
	CreatedFiles int
	ExistedFiles int
	CreatedDirs  int
	Operations   []Operation
	DryRun       bool
}

// Linker creates links from an input root into an output root
type Linker struct {
	inputRoot  string
	outputRoot string
	config     Config
	logger     *slog.Logger
}

// New creates a linker. Both roots should be absolute so that symlink
// targets resolve regardless of the working directory.
func New(inputRoot, outputRoot string, config Config, logger *slog.Logger) (*Linker, error) {
	switch config.Mode {
	case "":
		config.Mode = ModeSymlink
	case ModeSymlink, ModeRelative, ModeHardlink:
	default:
		return nil, fmt.Errorf("unknown link mode: %q", config.Mode)
	}
	switch config.GroupBy {
	case "":
		config.GroupBy = GroupByTitle
	case GroupByTitle, GroupBySourceDir:
	default:
		return nil, fmt.Errorf("unknown group by: %q", config.GroupBy)
	}
	if logger == nil {
		logger = logging.Discard()
	}

	return &Linker{
		inputRoot:  inputRoot,
		outputRoot: outputRoot,
		config:     config,
		logger:     logger,
	}, nil
}

// Materialize creates one link per key of set. Destinations that already
// exist, including dangling links, are counted and left alone. On error
// the returned Result still counts everything done before the failure.
func (l *Linker) Materialize(titleDir string, set *scanner.EpisodeSet) (Result, error) {
	result := Result{DryRun: l.config.DryRun}
	ensured := make(map[string]bool)

	for _, id := range set.Identities() {
		outDir := filepath.Join(l.outputRoot, l.dirName(titleDir, id))

		if !ensured[outDir] {
			created, err := l.ensureDir(outDir)
			if err != nil {
				return result, err
			}
			ensured[outDir] = true
			if created {
				result.CreatedDirs++
				result.Operations = append(result.Operations, Operation{
					Type:        "mkdir",
					Destination: outDir,
					Timestamp:   time.Now(),
					Completed:   true,
				})
			}
		}

		source := filepath.Join(l.inputRoot, titleDir, id.SourceName)
		dest := filepath.Join(outDir, id.LinkName())

		if _, err := os.Lstat(dest); err == nil {
			result.ExistedFiles++
			l.logger.Debug("link exists", "key", id.Key(), "dest", dest)
			continue
		} else if !errors.Is(err, fs.ErrNotExist) {
			return result, fmt.Errorf("check destination %s: %w", dest, err)
		}

		op := Operation{
			Type:        "link",
			Key:         id.Key(),
			Source:      source,
			Destination: dest,
			Timestamp:   time.Now(),
		}

		if l.config.DryRun {
			op.Completed = true
			result.CreatedFiles++
			result.Operations = append(result.Operations, op)
			l.logger.Debug("would link", "key", id.Key(), "source", source, "dest", dest)
			continue
		}

		if err := l.link(source, dest); err != nil {
			if errors.Is(err, fs.ErrExist) {
				// Created by another process between the Lstat and the link
				result.ExistedFiles++
				continue
			}
			return result, fmt.Errorf("link %s -> %s: %w", dest, source, err)
		}

		op.Completed = true
		result.CreatedFiles++
		result.Operations = append(result.Operations, op)
		l.logger.Debug("link created", "key", id.Key(), "source", source, "dest", dest)
	}

	return result, nil
}

func (l *Linker) dirName(titleDir string, id scanner.Identity) string {
	if l.config.GroupBy == GroupBySourceDir {
		return titleDir
	}
	return id.Title
}

// ensureDir creates dir if it is missing and reports whether it did
func (l *Linker) ensureDir(dir string) (bool, error) {
	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return false, fmt.Errorf("output path exists and is not a directory: %s", dir)
		}
		return false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("check output directory %s: %w", dir, err)
	}

	if l.config.DryRun {
		return true, nil
	}

	if err := os.MkdirAll(filepath.Dir(dir), 0755); err != nil {
		return false, fmt.Errorf("failed to create directory %s: %w", filepath.Dir(dir), err)
	}
	if err := os.Mkdir(dir, 0755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return true, nil
}

func (l *Linker) link(source, dest string) error {
	switch l.config.Mode {
	case ModeHardlink:
		return os.Link(source, dest)
	case ModeRelative:
		rel, err := filepath.Rel(filepath.Dir(dest), source)
		if err != nil {
			return fmt.Errorf("relative path: %w", err)
		}
		return os.Symlink(rel, dest)
	default:
		return os.Symlink(source, dest)
	}
}
