package ui

import "github.com/charmbracelet/lipgloss"

// ASCII art for the jellylink header as a single string to keep its spacing
const jellylinkASCII = `   _      _ _       _ _       _
  (_) ___| | |_   _| (_)_ __ | | __
  | |/ _ \ | | | | | | | '_ \| |/ /
  | |  __/ | | |_| | | | | | |   <
 _/ |\___|_|_|\__, |_|_|_| |_|_|\_\
|__/          |___/`

// FormatASCIIHeader renders the jellylink header in the theme color
func FormatASCIIHeader() string {
	headerStyle := lipgloss.NewStyle().
		Foreground(RAMARed).
		Bold(true)

	return headerStyle.Render(jellylinkASCII)
}

// FormatASCIIHeaderWithSubtext renders header with subtitle
func FormatASCIIHeaderWithSubtext(subtext string) string {
	subtitle := lipgloss.NewStyle().
		Foreground(RAMAMuted).
		Render(subtext)

	return FormatASCIIHeader() + "\n\n" + subtitle
}
