package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// viewState represents the currently active view.
type viewState int

const (
	viewDashboard viewState = iota
	viewProjects
	viewReports
	viewSuggestions
	viewSettings
)

var viewNames = []string{"Dashboard", "Projects", "Reports", "Suggestions", "Settings"}

// refreshInterval is how often the active view reloads while the tracker
// keeps writing in the background.
const refreshInterval = 5 * time.Second

// --- Messages ---

type statusMsg struct {
	text    string
	isError bool
}

type tickMsg time.Time

type exportDoneMsg struct {
	path string
}

// taxonomyChangedMsg is emitted after a brand, project or rule mutation.
type taxonomyChangedMsg struct{}

func errStatus(prefix string, err error) tea.Cmd {
	return func() tea.Msg {
		return statusMsg{text: fmt.Sprintf("%s: %v", prefix, err), isError: true}
	}
}

func okStatus(format string, args ...any) tea.Cmd {
	return func() tea.Msg {
		return statusMsg{text: fmt.Sprintf(format, args...)}
	}
}

// --- Helpers ---

func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func formatSeconds(secs int64) string {
	return formatDuration(time.Duration(secs) * time.Second)
}

func formatHours(secs int64) string {
	h := float64(secs) / 3600
	return fmt.Sprintf("%.1fh", h)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
