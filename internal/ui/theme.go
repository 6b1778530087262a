package ui

import "github.com/charmbracelet/lipgloss"

// RAMA theme colors (from sysc family)
var (
	RAMARed        = lipgloss.Color("#ef233c") // Pantone red
	RAMABackground = lipgloss.Color("#2b2d42") // Space cadet
	RAMAForeground = lipgloss.Color("#edf2f4") // Anti-flash white
	RAMAMuted      = lipgloss.Color("#8d99ae") // Cool gray

	ColorSuccess = lipgloss.Color("#2ecc71")
	ColorWarning = lipgloss.Color("#f39c12")
	ColorError   = RAMARed
	ColorInfo    = lipgloss.Color("#3498db")
)

// Styles for TUI components
var (
	// Footer style (keybindings)
	FooterStyle = lipgloss.NewStyle().
			Foreground(RAMAMuted).
			Background(RAMABackground).
			Padding(0, 1)

	ContentStyle = lipgloss.NewStyle().
			Foreground(RAMAForeground)

	MutedStyle = lipgloss.NewStyle().
			Foreground(RAMAMuted)

	// Success style (progress bar, finished runs)
	SuccessStyle = lipgloss.NewStyle().
			Foreground(ColorSuccess).
			Bold(true)

	// Error style (failed titles)
	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorError).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(ColorWarning).
			Bold(true)

	// Stat style (spinner, numbers)
	StatStyle = lipgloss.NewStyle().
			Foreground(RAMARed).
			Bold(true)
)

// FormatKeybinding formats a keybinding for display in footer
func FormatKeybinding(key, description string) string {
	keyStyle := lipgloss.NewStyle().
		Foreground(RAMARed).
		Bold(true)

	return keyStyle.Render(key) + " " + MutedStyle.Render(description)
}

// FormatFooter formats footer with keybindings
func FormatFooter(keybindings ...string) string {
	footer := ""
	for i, kb := range keybindings {
		if i > 0 {
			footer += "  "
		}
		footer += kb
	}
	return FooterStyle.Render(footer)
}

// Status marker styles
var (
	OKMarker   = lipgloss.NewStyle().Foreground(ColorSuccess).SetString("[OK]")
	InfoMarker = lipgloss.NewStyle().Foreground(ColorInfo).SetString("[INFO]")
	WarnMarker = lipgloss.NewStyle().Foreground(ColorWarning).SetString("[WARN]")
	FailMarker = lipgloss.NewStyle().Foreground(ColorError).SetString("[FAIL]")
)

// FormatStatusOK returns an [OK] marker with message
func FormatStatusOK(message string) string {
	return OKMarker.String() + " " + message
}

// FormatStatusInfo returns an [INFO] marker with message
func FormatStatusInfo(message string) string {
	return InfoMarker.String() + " " + message
}

// FormatStatusWarn returns a [WARN] marker with message
func FormatStatusWarn(message string) string {
	return WarnMarker.String() + " " + message
}

// FormatStatusFail returns a [FAIL] marker with message
func FormatStatusFail(message string) string {
	return FailMarker.String() + " " + message
}
