package ui

import "github.com/charmbracelet/lipgloss"

var (
	StatusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	ErrorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	SenderStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	ReceiverStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	PrivateStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("135"))
	SystemStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Italic(true)
	TimestampStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Faint(true)
)
