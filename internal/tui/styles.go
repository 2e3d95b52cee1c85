package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/pitabwire/charlist/model"
)

var (
	colorAccent = lipgloss.Color("#97ce4c")
	colorText   = lipgloss.Color("#FFFFFF")
	colorDim    = lipgloss.Color("#6B7280")
	colorError  = lipgloss.Color("#EF4444")
	colorDark   = lipgloss.Color("#1F2937")
)

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorAccent)

	ItemStyle = lipgloss.NewStyle().
			Foreground(colorText)

	SelectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorAccent)

	DimmedStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	HelpStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	SpinnerStyle = lipgloss.NewStyle().
			Foreground(colorAccent)

	PickerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorAccent).
			Padding(0, 1)
)

// chipStyle renders a filter option in its own color. Selected chips are
// filled; the focused chip is underlined.
func chipStyle(o model.FilterOption, focused bool) lipgloss.Style {
	c := lipgloss.Color(o.Color)
	s := lipgloss.NewStyle().Padding(0, 1)
	if o.Selected {
		s = s.Background(c).Foreground(colorDark).Bold(true)
	} else {
		s = s.Foreground(c)
	}
	if focused {
		s = s.Underline(true)
	}
	return s
}

// attributeStyle colors an attribute value with its category color.
func attributeStyle(cat model.FilterCategory) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(cat.Color()))
}
