package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sadopc/autotrackr/internal/api"
	"github.com/sadopc/autotrackr/internal/store"
)

type dashboardModel struct {
	service *api.Service
	width   int
	height  int

	today      *api.TodayReport
	brands     []store.BrandSummary
	unassigned int64
	goal       progress.Model
}

func newDashboardModel(svc *api.Service) dashboardModel {
	return dashboardModel{
		service: svc,
		goal:    progress.New(progress.WithGradient(string(colorPrimary), string(colorSecondary))),
	}
}

func (d dashboardModel) Init() tea.Cmd {
	return d.loadData()
}

func (d *dashboardModel) setSize(w, h int) {
	d.width = w
	d.height = h
	d.goal.Width = max(10, w-12)
}

type dashboardDataMsg struct {
	today      *api.TodayReport
	brands     []store.BrandSummary
	unassigned int64
}

func (d dashboardModel) loadData() tea.Cmd {
	return func() tea.Msg {
		today, err := d.service.Today()
		if err != nil {
			return statusMsg{text: fmt.Sprintf("Load error: %v", err), isError: true}
		}
		brands, _ := d.service.BrandReport(today.Date)

		var classified int64
		for _, b := range brands {
			classified += b.TotalSeconds
		}
		return dashboardDataMsg{
			today:      today,
			brands:     brands,
			unassigned: max(0, today.TotalSeconds-classified),
		}
	}
}

type autoAssignedMsg struct {
	assigned int
}

func (d dashboardModel) autoAssign() tea.Cmd {
	return func() tea.Msg {
		res, err := d.service.AutoAssign(api.AutoAssignInput{})
		if err != nil {
			return statusMsg{text: fmt.Sprintf("Auto-assign error: %v", err), isError: true}
		}
		return autoAssignedMsg{assigned: res.Assigned}
	}
}

func (d dashboardModel) update(msg tea.Msg) (dashboardModel, tea.Cmd) {
	switch msg := msg.(type) {
	case dashboardDataMsg:
		d.today = msg.today
		d.brands = msg.brands
		d.unassigned = msg.unassigned
		return d, nil

	case autoAssignedMsg:
		return d, tea.Batch(d.loadData(), okStatus("Assigned %d records", msg.assigned))

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.AutoAssign):
			return d, d.autoAssign()
		case key.Matches(msg, keys.Refresh):
			return d, d.loadData()
		}
	}
	return d, nil
}

func (d dashboardModel) view() string {
	if d.width < 20 {
		return "Terminal too small"
	}
	if d.today == nil {
		return mutedStyle.Render("Loading...")
	}

	contentWidth := d.width - 4

	goalPanel := d.renderGoalPanel(contentWidth)
	brandPanel := d.renderBrandPanel(contentWidth)

	half := contentWidth/2 - 1
	apps := lipgloss.JoinHorizontal(lipgloss.Top,
		d.renderAppsPanel("Top apps today", d.today.TopApps, half),
		d.renderAppsPanel("Last 15 minutes", d.today.RecentApps, contentWidth-half),
	)

	return lipgloss.JoinVertical(lipgloss.Left, goalPanel, brandPanel, apps)
}

func (d dashboardModel) renderGoalPanel(w int) string {
	t := d.today
	pct := 0.0
	if t.DailyGoal > 0 {
		pct = min(1, float64(t.TotalSeconds)/float64(t.DailyGoal))
	}

	style := goalPendingStyle
	if t.TotalSeconds >= t.DailyGoal {
		style = goalMetStyle
	}
	header := fmt.Sprintf("%s  %s  %s",
		titleStyle.Render("Today"),
		style.Render(formatSeconds(t.TotalSeconds)),
		mutedStyle.Render("of "+formatHours(t.DailyGoal)+" goal"),
	)

	rows := []string{header, d.goal.ViewAs(pct)}
	if len(t.RecentDates) > 0 {
		var days []string
		for _, rd := range t.RecentDates[:min(len(t.RecentDates), 6)] {
			days = append(days, fmt.Sprintf("%s %s", rd.Date, formatHours(rd.TotalSeconds)))
		}
		rows = append(rows, mutedStyle.Render("Recent: "+strings.Join(days, "  ")))
	}
	return activePanelStyle.Width(w).Render(strings.Join(rows, "\n"))
}

func (d dashboardModel) renderBrandPanel(w int) string {
	title := titleStyle.Render("By project")
	if len(d.brands) == 0 && d.unassigned == 0 {
		return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left,
			title,
			mutedStyle.Render("Nothing tracked today"),
		))
	}

	rows := []string{title}
	for _, b := range d.brands {
		rows = append(rows, fmt.Sprintf("  %s %-24s %s", dot(b.Color), truncate(b.Name, 24), formatSeconds(b.TotalSeconds)))
		for _, p := range b.Projects {
			pdot := lipgloss.NewStyle().Foreground(lipgloss.Color(p.Color)).Render("·")
			rows = append(rows, mutedStyle.Render(fmt.Sprintf("      %s %-20s %s", pdot, truncate(p.Name, 20), formatSeconds(p.TotalSeconds))))
		}
	}
	if d.unassigned > 0 {
		rows = append(rows, fmt.Sprintf("  %s %s", unassignedDot(),
			unassignedStyle.Render(fmt.Sprintf("%-24s %s", "Unassigned", formatSeconds(d.unassigned)))))
		rows = append(rows, mutedStyle.Render("  a: auto-assign with rules"))
	}
	return panelStyle.Width(w).Render(strings.Join(rows, "\n"))
}

func (d dashboardModel) renderAppsPanel(title string, apps []store.AppTotal, w int) string {
	rows := []string{titleStyle.Render(title)}
	if len(apps) == 0 {
		rows = append(rows, mutedStyle.Render("No activity"))
	}
	for _, a := range apps {
		rows = append(rows, fmt.Sprintf("  %-20s %s", truncate(a.AppName, 20), formatSeconds(a.TotalSeconds)))
	}
	return panelStyle.Width(w).Render(strings.Join(rows, "\n"))
}
