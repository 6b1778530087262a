package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"github.com/Nomadcxx/jellylink/internal/scanner"
)

// Summary is the outcome of one run over one input root
type Summary struct {
	RunID     string        `json:"run_id"`
	Input     string        `json:"input"`
	Output    string        `json:"output"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
	DryRun    bool          `json:"dry_run"`

	TitlesChecked int `json:"titles_checked"`
	TitlesFailed  int `json:"titles_failed"`
	CreatedFiles  int `json:"created_files"`
	ExistedFiles  int `json:"existed_files"`
	CreatedDirs   int `json:"created_dirs"`

	Stats    scanner.Stats  `json:"stats"`
	Titles   []TitleSummary `json:"titles,omitempty"`
	Failures []TitleFailure `json:"failures,omitempty"`
}

// TitleSummary holds per-title counters
type TitleSummary struct {
	Title        string `json:"title"`
	FilesChecked int    `json:"files_checked"`
	Episodes     int    `json:"episodes"`
	CreatedFiles int    `json:"created_files"`
	ExistedFiles int    `json:"existed_files"`
}

// TitleFailure records a title that was aborted
type TitleFailure struct {
	Title string `json:"title"`
	Path  string `json:"path"`
	Error string `json:"error"`
}

// Failed reports whether any title of the run was aborted
func (s *Summary) Failed() bool {
	return s.TitlesFailed > 0
}

// Text renders the plain summary block
func Text(s *Summary) string {
	var sb strings.Builder

	sb.WriteString("\n" + strings.Repeat("-", 47) + "\n")
	sb.WriteString(fmt.Sprintf(" [%s] -> [%s]\n", s.Input, s.Output))
	if s.DryRun {
		sb.WriteString(" (dry run, nothing was written)\n")
	}
	sb.WriteString(fmt.Sprintf(" * Checked Titles: %d\n", s.TitlesChecked))
	sb.WriteString(fmt.Sprintf(" * Checked Files: %d\n", s.Stats.FilesChecked))
	sb.WriteString(fmt.Sprintf(" * Created Files: %d\n", s.CreatedFiles))
	sb.WriteString(fmt.Sprintf(" * Existed Files: %d\n", s.ExistedFiles))
	sb.WriteString(fmt.Sprintf(" * Created Dirs: %d\n", s.CreatedDirs))
	sb.WriteString(fmt.Sprintf(" * Check Case 1: %d\n", s.Stats.ShapeBroadcast))
	sb.WriteString(fmt.Sprintf(" * Check Case 2: %d\n", s.Stats.ShapeCompact))
	sb.WriteString(fmt.Sprintf(" * Check Case Error: %d\n", s.Stats.Unparseable))
	sb.WriteString(fmt.Sprintf(" * Discarded: %d\n", s.Stats.Discarded))
	sb.WriteString(fmt.Sprintf(" * Superseded: %d\n", s.Stats.Superseded))
	sb.WriteString(fmt.Sprintf(" * Failed Titles: %d\n", s.TitlesFailed))

	for _, f := range s.Failures {
		sb.WriteString(fmt.Sprintf("   ! %s: %s\n", f.Title, f.Error))
	}

	return sb.String()
}

var headerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("#7D56F4"))

// Table renders the summary as a rounded table. styled adds color to the
// header line.
func Table(s *Summary, styled bool) string {
	var sb strings.Builder

	header := fmt.Sprintf("%s -> %s", s.Input, s.Output)
	if s.DryRun {
		header += " (dry run)"
	}
	if styled {
		header = headerStyle.Render(header)
	}
	sb.WriteString(header + "\n")

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Counter", "Value"})

	rows := []struct {
		name  string
		value int
	}{
		{"Checked titles", s.TitlesChecked},
		{"Checked files", s.Stats.FilesChecked},
		{"Created files", s.CreatedFiles},
		{"Existed files", s.ExistedFiles},
		{"Created dirs", s.CreatedDirs},
		{"Broadcast names", s.Stats.ShapeBroadcast},
		{"Compact names", s.Stats.ShapeCompact},
		{"Unparseable", s.Stats.Unparseable},
		{"Discarded", s.Stats.Discarded},
		{"Superseded", s.Stats.Superseded},
		{"Failed titles", s.TitlesFailed},
	}
	for _, r := range rows {
		tw.AppendRow(table.Row{r.name, humanize.Comma(int64(r.value))})
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft, AlignHeader: text.AlignLeft},
		{Number: 2, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})

	sb.WriteString(tw.Render())
	sb.WriteString("\n")

	for _, f := range s.Failures {
		sb.WriteString(fmt.Sprintf("  failed: %s: %s\n", f.Title, f.Error))
	}

	return sb.String()
}

// Print writes each summary to w, as a table when w is a terminal and as
// the plain block otherwise
func Print(w io.Writer, summaries []*Summary) error {
	terminal := shouldColorize(w)
	for _, s := range summaries {
		var out string
		if terminal {
			out = Table(s, true)
		} else {
			out = Text(s)
		}
		if _, err := io.WriteString(w, out); err != nil {
			return err
		}
	}
	return nil
}

// WriteJSON writes summaries as an indented JSON array
func WriteJSON(w io.Writer, summaries []*Summary) error {
	if summaries == nil {
		summaries = []*Summary{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(summaries)
}

func shouldColorize(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// GenerateIn writes a report file named after timestamp into dir
func GenerateIn(dir string, timestamp time.Time, summaries []*Summary) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	filename := filepath.Join(dir, timestamp.Format("20060102_150405")+".txt")

	var sb strings.Builder
	sb.WriteString("JELLYLINK RUN REPORT\n")
	sb.WriteString(strings.Repeat("=", 80) + "\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n", timestamp.Format("2006-01-02 15:04:05")))
	for _, s := range summaries {
		sb.WriteString(fmt.Sprintf("Run: %s (%s)\n", s.RunID, s.Duration.Round(time.Millisecond)))
		sb.WriteString(Text(s))
	}

	if err := os.WriteFile(filename, []byte(sb.String()), 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}

	return filename, nil
}

// ReportDir returns the directory where reports are stored
func ReportDir() string {
	home, err := realUserHome()
	if err != nil {
		return "/tmp/jellylink/reports"
	}
	return filepath.Join(home, ".local/share/jellylink/reports")
}

// realUserHome returns SUDO_USER's home when running through sudo, so
// reports land where the invoking user can read them
func realUserHome() (string, error) {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		return filepath.Join("/home", sudoUser), nil
	}
	return os.UserHomeDir()
}
