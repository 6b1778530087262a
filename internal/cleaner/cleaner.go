// Package cleaner prunes links left behind in output roots after their
// source recordings were removed.
package cleaner

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/Nomadcxx/jellylink/internal/logging"
)

// PruneResult represents the result of a prune operation
type PruneResult struct {
	Checked    int // canonical links inspected
	Removed    int
	DirsPruned int
	Errors     []error
	Operations []Operation
	DryRun     bool
}

// Operation represents a single filesystem operation
type Operation struct {
	Type      string // "unlink", "rmdir"
	Path      string
	Target    string // link target, for unlink
	Timestamp time.Time
	Completed bool
}

// Config holds cleaner configuration
type Config struct {
	DryRun         bool
	ProtectedPaths []string
	LogPath        string // operation log, empty disables it
}

// DefaultConfig returns safe default configuration
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		ProtectedPaths: []string{
			"/usr", "/etc", "/bin", "/sbin", "/boot",
			"/sys", "/proc", "/dev", "/run",
			"/lib", "/lib32", "/lib64", "/libx32",
		},
		LogPath: filepath.Join(home, ".local/share/jellylink/operations.log"),
	}
}

// linkName matches names produced by the linker: title_sNN_eNNN.ext
var linkName = regexp.MustCompile(`^[^.]+_s[0-9]{2,}_e[0-9]{3,}\.[^.]+$`)

// Prune removes dangling symbolic links with canonical names from the title
// directories of outputRoot. Other entries are never touched. Directories
// emptied by the prune are removed as well, but never outputRoot itself.
func Prune(outputRoot string, config Config, logger *slog.Logger) (PruneResult, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	result := PruneResult{DryRun: config.DryRun}

	root, err := filepath.Abs(outputRoot)
	if err != nil {
		return result, fmt.Errorf("resolve output root: %w", err)
	}
	if err := validatePath(root); err != nil {
		return result, err
	}
	if isProtectedPath(root, config.ProtectedPaths) {
		return result, fmt.Errorf("refusing to prune protected path: %s", root)
	}

	titles, err := os.ReadDir(root)
	if err != nil {
		return result, fmt.Errorf("read output root %s: %w", root, err)
	}

	for _, title := range titles {
		if !title.IsDir() {
			continue
		}
		dir := filepath.Join(root, title.Name())

		entries, err := os.ReadDir(dir)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("read %s: %w", dir, err))
			continue
		}

		removedHere := 0
		for _, e := range entries {
			if e.Type()&os.ModeSymlink == 0 || !linkName.MatchString(e.Name()) {
				continue
			}
			path := filepath.Join(dir, e.Name())
			result.Checked++

			if _, err := os.Stat(path); err == nil {
				continue
			} else if !errors.Is(err, fs.ErrNotExist) {
				result.Errors = append(result.Errors, fmt.Errorf("check %s: %w", path, err))
				continue
			}

			target, _ := os.Readlink(path)
			op := Operation{
				Type:      "unlink",
				Path:      path,
				Target:    target,
				Timestamp: time.Now(),
			}

			if !config.DryRun {
				if err := os.Remove(path); err != nil {
					result.Errors = append(result.Errors, fmt.Errorf("failed to remove %s: %w", path, err))
					result.Operations = append(result.Operations, op)
					continue
				}
			}

			op.Completed = true
			result.Removed++
			removedHere++
			result.Operations = append(result.Operations, op)
			logger.Info("dangling link removed", "path", path, "target", target, "dry_run", config.DryRun)
		}

		if removedHere > 0 && removedHere == len(entries) {
			op := Operation{Type: "rmdir", Path: dir, Timestamp: time.Now()}
			if !config.DryRun {
				if err := os.Remove(dir); err != nil {
					result.Errors = append(result.Errors, fmt.Errorf("failed to remove %s: %w", dir, err))
					result.Operations = append(result.Operations, op)
					continue
				}
			}
			op.Completed = true
			result.DirsPruned++
			result.Operations = append(result.Operations, op)
		}
	}

	if !config.DryRun && config.LogPath != "" && len(result.Operations) > 0 {
		if err := writeOperationLog(result.Operations, config.LogPath); err != nil {
			result.Errors = append(result.Errors,
				fmt.Errorf("failed to write operation log: %w", err))
		}
	}

	return result, nil
}

// validatePath sanitizes and validates a file path for safety
func validatePath(path string) error {
	cleaned := filepath.Clean(path)

	if !filepath.IsAbs(cleaned) {
		return fmt.Errorf("invalid path: must be absolute path")
	}
	if cleaned == string(filepath.Separator) {
		return fmt.Errorf("invalid path: refusing to prune filesystem root")
	}

	return nil
}

// isProtectedPath checks if path is inside one of the protected directories
func isProtectedPath(path string, protected []string) bool {
	for _, p := range protected {
		if path == p || strings.HasPrefix(path, p+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// writeOperationLog appends completed operations to the log file
func writeOperationLog(ops []Operation, logPath string) error {
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return err
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	for _, op := range ops {
		if !op.Completed {
			continue
		}

		line := fmt.Sprintf("%s|%s|%s|%s\n",
			op.Timestamp.Format(time.RFC3339),
			op.Type,
			op.Path,
			op.Target)

		if _, err := f.WriteString(line); err != nil {
			return err
		}
	}

	return nil
}
