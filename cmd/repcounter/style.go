package main

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/ayusman/repcounter/internal/rep"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Faint(true)
	repStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	downStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	resetStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

func eventStyle(kind rep.EventKind) lipgloss.Style {
	switch kind {
	case rep.EventRepCompleted:
		return repStyle
	case rep.EventEnteredDown:
		return downStyle
	case rep.EventReset:
		return resetStyle
	default:
		return dimStyle
	}
}
