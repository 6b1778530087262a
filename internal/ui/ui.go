package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Nomadcxx/jellylink/internal/scanner"
)

// maxLogLines bounds the run log kept in memory
const maxLogLines = 1000

// Custom messages for progress updates
type progressMsg scanner.ScanProgress
type runDoneMsg struct{}

// LogLine is one entry of the run log
type LogLine struct {
	Timestamp string
	Operation string
	Message   string
	Severity  string
}

// RunModel shows live progress of a link run. The run itself happens
// elsewhere and feeds the model through a progress channel; closing the
// channel ends the program.
type RunModel struct {
	events   <-chan scanner.ScanProgress
	cancel   func()
	spinner  spinner.Model
	viewport viewport.Model
	ready    bool
	width    int
	height   int

	logs      []LogLine
	current   scanner.ScanProgress
	roots     int
	cancelled bool
	finished  bool
}

// NewRunModel creates a model reading events until the channel is closed.
// cancel is called when the user quits early and may be nil.
func NewRunModel(events <-chan scanner.ScanProgress, cancel func()) RunModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = StatStyle

	return RunModel{
		events:  events,
		cancel:  cancel,
		spinner: s,
	}
}

// Init starts the spinner and the event pump
func (m RunModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForProgress(m.events))
}

// waitForProgress reads the next progress event
func waitForProgress(events <-chan scanner.ScanProgress) tea.Cmd {
	return func() tea.Msg {
		p, ok := <-events
		if !ok {
			return runDoneMsg{}
		}
		return progressMsg(p)
	}
}

// Update handles messages
func (m RunModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case progressMsg:
		p := scanner.ScanProgress(msg)
		m.current = p
		if p.Stage == "complete" {
			m.roots++
		}

		m.logs = append(m.logs, LogLine{
			Timestamp: fmt.Sprintf("%02d:%02d", p.ElapsedSeconds/60, p.ElapsedSeconds%60),
			Operation: p.Operation,
			Message:   p.Message,
			Severity:  p.Severity,
		})
		if len(m.logs) > maxLogLines {
			m.logs = m.logs[len(m.logs)-maxLogLines:]
		}

		if m.ready {
			m.viewport.SetContent(m.renderLog())
			m.viewport.GotoBottom()
		}
		return m, waitForProgress(m.events)

	case runDoneMsg:
		m.finished = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if !m.cancelled && m.cancel != nil {
				m.cancel()
			}
			m.cancelled = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		// Header (6) + spacing (2) + status (3) + footer (2)
		logHeight := msg.Height - 13
		if logHeight < 3 {
			logHeight = 3
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width, logHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = logHeight
		}
		m.viewport.SetContent(m.renderLog())
		m.viewport.GotoBottom()
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the model
func (m RunModel) View() string {
	var sb strings.Builder

	sb.WriteString(FormatASCIIHeader() + "\n\n")

	status := m.current.Message
	if status == "" {
		status = "Waiting for the first title..."
	}
	if m.finished {
		sb.WriteString(FormatStatusOK("Run finished") + "\n")
	} else {
		sb.WriteString(m.spinner.View() + " " + ContentStyle.Render(status) + "\n")
	}
	sb.WriteString(renderProgressBar(m.current.Percentage, 50) +
		fmt.Sprintf(" %d/%d titles\n", m.current.Current, m.current.Total))
	sb.WriteString(MutedStyle.Render(fmt.Sprintf("links created: %d  files: %d  errors: %d  roots done: %d",
		m.current.LinksCreated, m.current.FilesProcessed, m.current.ErrorsEncountered, m.roots)) + "\n\n")

	if m.ready {
		sb.WriteString(m.viewport.View() + "\n")
	} else {
		sb.WriteString(m.renderLog())
	}

	if m.cancelled {
		sb.WriteString("\n" + ErrorStyle.Render("Run cancelled by user") + "\n")
	}
	sb.WriteString(FormatFooter(FormatKeybinding("q", "cancel")))

	return sb.String()
}

// renderLog renders the run log, newest last
func (m RunModel) renderLog() string {
	var sb strings.Builder
	for _, entry := range m.logs {
		lineStyle := MutedStyle
		switch entry.Severity {
		case "error":
			lineStyle = ErrorStyle
		case "warn":
			lineStyle = WarningStyle
		}
		sb.WriteString(lineStyle.Render(fmt.Sprintf("%s %s [%s] %s",
			entry.Timestamp, entry.Operation, strings.ToUpper(entry.Severity), entry.Message)) + "\n")
	}
	return sb.String()
}

// Cancelled reports whether the user quit before the run finished
func (m RunModel) Cancelled() bool {
	return m.cancelled
}

// Logs returns the collected run log
func (m RunModel) Logs() []LogLine {
	return m.logs
}

// renderProgressBar creates a text-based progress bar
func renderProgressBar(percent float64, width int) string {
	filled := int((percent / 100.0) * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}

	bar := "[" + strings.Repeat("█", filled) + strings.Repeat(" ", width-filled) + "]"
	return SuccessStyle.Render(bar)
}
