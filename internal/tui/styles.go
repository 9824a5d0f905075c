package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/macfox/costcalc/internal/theme"
)

type palette struct {
	title    lipgloss.Style
	label    lipgloss.Style
	focused  lipgloss.Style
	selected lipgloss.Style
	muted    lipgloss.Style
	cost     lipgloss.Style
	errorMsg lipgloss.Style
	box      lipgloss.Style
}

func paletteFor(t theme.Theme) palette {
	if t == theme.Dark {
		return palette{
			title:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#EEEEEE")),
			label:    lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA")),
			focused:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D9CFF")),
			selected: lipgloss.NewStyle().Background(lipgloss.Color("#5A56E0")).Foreground(lipgloss.Color("#FFFFFF")),
			muted:    lipgloss.NewStyle().Foreground(lipgloss.Color("#777777")),
			cost:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5FD787")),
			errorMsg: lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")),
			box: lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("#666666")).
				Padding(0, 1),
		}
	}
	return palette{
		title:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#222222")),
		label:    lipgloss.NewStyle().Foreground(lipgloss.Color("#555555")),
		focused:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#3B4CCA")),
		selected: lipgloss.NewStyle().Background(lipgloss.Color("#D6D4FF")).Foreground(lipgloss.Color("#111111")),
		muted:    lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		cost:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#1E7B34")),
		errorMsg: lipgloss.NewStyle().Foreground(lipgloss.Color("#B00020")),
		box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#AAAAAA")).
			Padding(0, 1),
	}
}
