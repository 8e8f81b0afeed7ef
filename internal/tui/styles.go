package tui

import "github.com/charmbracelet/lipgloss"

// Color palette
var (
	colorPrimary    = lipgloss.Color("#6C63FF")
	colorSecondary  = lipgloss.Color("#2EC4B6")
	colorAccent     = lipgloss.Color("#FF6B6B")
	colorMuted      = lipgloss.Color("#666666")
	colorSuccess    = lipgloss.Color("#2ECC71")
	colorWarning    = lipgloss.Color("#F39C12")
	colorError      = lipgloss.Color("#E74C3C")
	colorFg         = lipgloss.Color("#C0CAF5")
	colorSubtle     = lipgloss.Color("#414868")
	colorHighlight  = lipgloss.Color("#7AA2F7")
	colorUnassigned = lipgloss.Color("#565F89")
)

var (
	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary).
			Border(lipgloss.NormalBorder(), false, false, true, false).
			BorderForeground(colorPrimary).
			Padding(0, 2)

	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(colorMuted).
				Padding(0, 2)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorSubtle).
			Padding(1, 2)

	activePanelStyle = panelStyle.
				BorderForeground(colorPrimary)

	// Daily goal
	goalMetStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorSuccess)

	goalPendingStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(colorPrimary)

	// Classification
	unassignedStyle = lipgloss.NewStyle().
			Foreground(colorUnassigned)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorFg)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	accentStyle = lipgloss.NewStyle().
			Foreground(colorAccent)

	successStyle = lipgloss.NewStyle().
			Foreground(colorSuccess)

	warningStyle = lipgloss.NewStyle().
			Foreground(colorWarning)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorError)

	mutedStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	highlightStyle = lipgloss.NewStyle().
			Foreground(colorHighlight)

	headerStyle = lipgloss.NewStyle().
			Padding(0, 1)

	footerStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			Padding(0, 1)

	selectedItemStyle = lipgloss.NewStyle().
				Foreground(colorPrimary).
				Bold(true)

	normalItemStyle = lipgloss.NewStyle().
			Foreground(colorFg)
)

// dot renders a brand or project color swatch. Invalid colors fall back to
// the terminal default.
func dot(color string) string {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render("●")
}

func unassignedDot() string {
	return unassignedStyle.Render("○")
}
