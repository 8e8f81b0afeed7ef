package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/barchart"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sadopc/autotrackr/internal/api"
	"github.com/sadopc/autotrackr/internal/store"
)

const dateLayout = "2006-01-02"

type reportMode int

const (
	reportDaily reportMode = iota
	reportWeekly
)

// reportDay is one column of the chart.
type reportDay struct {
	date   time.Time
	total  int64
	brands []store.BrandSummary
}

func (d reportDay) classified() int64 {
	var n int64
	for _, b := range d.brands {
		n += b.TotalSeconds
	}
	return n
}

type reportsModel struct {
	service *api.Service
	now     func() time.Time
	width   int
	height  int

	mode      reportMode
	weekStart time.Weekday
	days      []reportDay
	offset    int // weeks or 7-day blocks offset from today (0 = current)

	chart barchart.Model
}

func newReportsModel(svc *api.Service) reportsModel {
	return reportsModel{
		service:   svc,
		now:       time.Now,
		weekStart: time.Monday,
		chart:     barchart.New(60, 12),
	}
}

func (r *reportsModel) setSize(w, h int) {
	r.width = w
	r.height = h
}

type reportsDataMsg struct {
	weekStart time.Weekday
	days      []reportDay
}

func (r reportsModel) refresh() tea.Cmd {
	return func() tea.Msg {
		weekStart := time.Monday
		if settings, err := r.service.Settings(); err == nil && settings["week_start"] == "sunday" {
			weekStart = time.Sunday
		}
		r.weekStart = weekStart

		from, to := r.dateRange()
		summaries, err := r.service.RangeReport(from.Format(dateLayout), to.AddDate(0, 0, -1).Format(dateLayout))
		if err != nil {
			return statusMsg{text: fmt.Sprintf("Report error: %v", err), isError: true}
		}
		totals := make(map[string]int64, len(summaries))
		for _, s := range summaries {
			totals[s.Date] = s.TotalSeconds
		}

		var days []reportDay
		for d := from; d.Before(to); d = d.AddDate(0, 0, 1) {
			day := reportDay{date: d, total: totals[d.Format(dateLayout)]}
			if day.total > 0 {
				day.brands, err = r.service.BrandReport(d.Format(dateLayout))
				if err != nil {
					return statusMsg{text: fmt.Sprintf("Report error: %v", err), isError: true}
				}
			}
			days = append(days, day)
		}
		return reportsDataMsg{weekStart: weekStart, days: days}
	}
}

// dateRange returns the half-open [from, to) range shown for the current
// mode and offset.
func (r reportsModel) dateRange() (time.Time, time.Time) {
	now := r.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch r.mode {
	case reportWeekly:
		back := (int(today.Weekday()) - int(r.weekStart) + 7) % 7
		startOfWeek := today.AddDate(0, 0, -back-7*r.offset)
		return startOfWeek, startOfWeek.AddDate(0, 0, 7)
	default:
		// Daily: last 7 days
		end := today.AddDate(0, 0, 1-7*r.offset)
		start := end.AddDate(0, 0, -7)
		return start, end
	}
}

func (r reportsModel) update(msg tea.Msg) (reportsModel, tea.Cmd) {
	switch msg := msg.(type) {
	case reportsDataMsg:
		r.weekStart = msg.weekStart
		r.days = msg.days
		r.buildChart()
		return r, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Left):
			r.offset++
			return r, r.refresh()
		case key.Matches(msg, keys.Right):
			if r.offset > 0 {
				r.offset--
			}
			return r, r.refresh()
		case key.Matches(msg, keys.Mode):
			if r.mode == reportDaily {
				r.mode = reportWeekly
			} else {
				r.mode = reportDaily
			}
			r.offset = 0
			return r, r.refresh()
		case key.Matches(msg, keys.Refresh):
			return r, r.refresh()
		}
	}
	return r, nil
}

func (r *reportsModel) buildChart() {
	chartWidth := max(20, r.width-8)
	chartHeight := 12
	if r.height > 30 {
		chartHeight = 16
	}

	r.chart = barchart.New(chartWidth, chartHeight)

	var bars []barchart.BarData
	for _, d := range r.days {
		var values []barchart.BarValue
		for _, b := range d.brands {
			for _, p := range b.Projects {
				values = append(values, barchart.BarValue{
					Name:  p.Name,
					Value: float64(p.TotalSeconds) / 3600.0,
					Style: lipgloss.NewStyle().Foreground(lipgloss.Color(p.Color)),
				})
			}
		}
		if rest := d.total - d.classified(); rest > 0 {
			values = append(values, barchart.BarValue{
				Name:  "Unassigned",
				Value: float64(rest) / 3600.0,
				Style: unassignedStyle,
			})
		}
		if len(values) == 0 {
			values = []barchart.BarValue{{Name: "", Value: 0, Style: unassignedStyle}}
		}

		bars = append(bars, barchart.BarData{
			Label:  d.date.Format("Mon 02"),
			Values: values,
		})
	}

	r.chart.PushAll(bars)
	r.chart.Draw()
}

func (r reportsModel) view() string {
	w := r.width - 4

	dailyTab := inactiveTabStyle.Render("Daily")
	weeklyTab := inactiveTabStyle.Render("Weekly")
	if r.mode == reportDaily {
		dailyTab = activeTabStyle.Render("Daily")
	} else {
		weeklyTab = activeTabStyle.Render("Weekly")
	}
	modeTabs := lipgloss.JoinHorizontal(lipgloss.Bottom, dailyTab, weeklyTab)

	from, to := r.dateRange()
	dateLabel := mutedStyle.Render(fmt.Sprintf("%s to %s", from.Format("Jan 02"), to.AddDate(0, 0, -1).Format("Jan 02, 2006")))

	header := lipgloss.JoinHorizontal(lipgloss.Bottom,
		titleStyle.Render("Reports"), "  ", modeTabs, "  ", dateLabel,
	)

	nav := mutedStyle.Render("  ←/→: navigate  m: switch mode  r: refresh")

	return panelStyle.Width(w).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			header, "", r.chart.View(), "", r.renderLegend(), "", r.renderSummaryTable(w), "", nav,
		),
	)
}

func (r reportsModel) total() int64 {
	var n int64
	for _, d := range r.days {
		n += d.total
	}
	return n
}

func (r reportsModel) renderSummaryTable(w int) string {
	if r.total() == 0 {
		return mutedStyle.Render("  No data for this period")
	}

	rows := []string{
		mutedStyle.Render(fmt.Sprintf("  %-12s %10s %10s %10s", "Date", "Tracked", "Assigned", "Unassigned")),
		mutedStyle.Render("  " + strings.Repeat("─", min(w-6, 46))),
	}
	for _, d := range r.days {
		if d.total == 0 {
			continue
		}
		classified := d.classified()
		rows = append(rows, fmt.Sprintf("  %-12s %10s %10s %10s",
			d.date.Format(dateLayout), formatSeconds(d.total), formatSeconds(classified),
			formatSeconds(max(0, d.total-classified)),
		))
	}
	rows = append(rows, titleStyle.Render(fmt.Sprintf("  %-12s %10s", "Total", formatSeconds(r.total()))))
	return strings.Join(rows, "\n")
}

func (r reportsModel) renderLegend() string {
	seen := make(map[int64]bool)
	var items []string
	unassigned := false
	for _, d := range r.days {
		for _, b := range d.brands {
			for _, p := range b.Projects {
				if seen[p.ProjectID] {
					continue
				}
				seen[p.ProjectID] = true
				items = append(items, fmt.Sprintf("%s %s / %s", dot(p.Color), b.Name, p.Name))
			}
		}
		if d.total > d.classified() {
			unassigned = true
		}
	}
	if unassigned {
		items = append(items, unassignedStyle.Render("● Unassigned"))
	}
	if len(items) == 0 {
		return ""
	}
	return "  " + strings.Join(items, "  ")
}
