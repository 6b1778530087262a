package scanner

import (
	"time"
)

// ScanProgress represents real-time run progress
type ScanProgress struct {
	Operation  string  // "linking", "pruning"
	Stage      string  // "scanning", "complete"
	Current    int     // titles finished so far
	Total      int     // titles in the root
	Percentage float64 // 0-100
	Message    string  // Human-readable status
	Severity   string  // "info", "warn", "error"
	Title      string  // title directory the update refers to, if any

	// Statistics
	LinksCreated      int
	FilesProcessed    int
	ErrorsEncountered int

	// Timing
	StartTime      time.Time
	ElapsedSeconds int
}

// ProgressReporter helps send progress updates. A reporter built on a nil
// channel, or a nil reporter, drops every update.
type ProgressReporter struct {
	ch        chan<- ScanProgress
	operation string
	startTime time.Time
	total     int

	linksCreated      int
	filesProcessed    int
	errorsEncountered int
}

// NewProgressReporter creates a new progress reporter
func NewProgressReporter(ch chan<- ScanProgress, operation string) *ProgressReporter {
	return &ProgressReporter{
		ch:        ch,
		operation: operation,
		startTime: time.Now(),
	}
}

// Start sends initial progress with total count
func (pr *ProgressReporter) Start(total int, message string) {
	if pr == nil {
		return
	}
	pr.total = total
	pr.send(0, "", "info", message)
}

// Title records a finished title and sends an update
func (pr *ProgressReporter) Title(current int, title string, created, files int, message string) {
	if pr == nil {
		return
	}
	pr.linksCreated += created
	pr.filesProcessed += files
	pr.send(current, title, "info", message)
}

// Fail records a failed title and sends an error update
func (pr *ProgressReporter) Fail(current int, title string, err error) {
	if pr == nil {
		return
	}
	pr.errorsEncountered++
	pr.send(current, title, "error", err.Error())
}

// Complete sends completion message
func (pr *ProgressReporter) Complete(message string) {
	if pr == nil || pr.ch == nil {
		return
	}
	pr.ch <- ScanProgress{
		Operation:         pr.operation,
		Stage:             "complete",
		Current:           pr.total,
		Total:             pr.total,
		Percentage:        100.0,
		Message:           message,
		Severity:          "info",
		LinksCreated:      pr.linksCreated,
		FilesProcessed:    pr.filesProcessed,
		ErrorsEncountered: pr.errorsEncountered,
		StartTime:         pr.startTime,
		ElapsedSeconds:    int(time.Since(pr.startTime).Seconds()),
	}
}

// send helper for building and sending progress
func (pr *ProgressReporter) send(current int, title, severity, message string) {
	if pr.ch == nil {
		return
	}

	percentage := 0.0
	if pr.total > 0 {
		percentage = (float64(current) / float64(pr.total)) * 100.0
	}

	pr.ch <- ScanProgress{
		Operation:         pr.operation,
		Stage:             "scanning",
		Current:           current,
		Total:             pr.total,
		Percentage:        percentage,
		Message:           message,
		Severity:          severity,
		Title:             title,
		LinksCreated:      pr.linksCreated,
		FilesProcessed:    pr.filesProcessed,
		ErrorsEncountered: pr.errorsEncountered,
		StartTime:         pr.startTime,
		ElapsedSeconds:    int(time.Since(pr.startTime).Seconds()),
	}
}
