package main

import "github.com/charmbracelet/lipgloss"

var (
	pink   = lipgloss.Color("205")
	cyan   = lipgloss.Color("86")
	green  = lipgloss.Color("82")
	red    = lipgloss.Color("196")
	yellow = lipgloss.Color("220")
	gray   = lipgloss.Color("245")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(pink)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(cyan)

	okStyle = lipgloss.NewStyle().
		Foreground(green).
		Bold(true)

	badStyle = lipgloss.NewStyle().
			Foreground(red).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(yellow)

	mutedStyle = lipgloss.NewStyle().
			Foreground(gray)

	addStyle    = lipgloss.NewStyle().Foreground(green)
	removeStyle = lipgloss.NewStyle().Foreground(red)
	hunkStyle   = lipgloss.NewStyle().Foreground(cyan)

	errorStyle = badStyle
)

func verdict(changed bool, yes, no string) string {
	if changed {
		return badStyle.Render(yes)
	}
	return okStyle.Render(no)
}
