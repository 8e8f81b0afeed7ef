package tui

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/sadopc/autotrackr/internal/api"
)

type settingsModel struct {
	service *api.Service
	width   int
	height  int

	settings   map[string]string
	formActive bool
	form       *huh.Form

	// Form values as pointers (survive value copies)
	dailyGoal *string
	weekStart *string
}

func newSettingsModel(svc *api.Service) settingsModel {
	dg, ws := "", ""
	return settingsModel{
		service:   svc,
		dailyGoal: &dg,
		weekStart: &ws,
	}
}

func (s *settingsModel) setSize(w, h int) {
	s.width = w
	s.height = h
}

type settingsDataMsg struct {
	settings map[string]string
}

func (s settingsModel) refresh() tea.Cmd {
	return func() tea.Msg {
		settings, err := s.service.Settings()
		if err != nil {
			return statusMsg{text: fmt.Sprintf("Load error: %v", err), isError: true}
		}
		return settingsDataMsg{settings: settings}
	}
}

func (s settingsModel) update(msg tea.Msg) (settingsModel, tea.Cmd) {
	if s.formActive && s.form != nil {
		return s.updateForm(msg)
	}

	switch msg := msg.(type) {
	case settingsDataMsg:
		s.settings = msg.settings
		return s, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Enter), key.Matches(msg, keys.Edit):
			return s.showForm()
		}
	}
	return s, nil
}

func validateHours(v string) error {
	h, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || h <= 0 || h > 24 {
		return fmt.Errorf("enter hours between 0 and 24")
	}
	return nil
}

func (s settingsModel) showForm() (settingsModel, tea.Cmd) {
	*s.dailyGoal = secsToHours(s.getVal("daily_goal", "28800"))
	*s.weekStart = s.getVal("week_start", "monday")

	s.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Daily goal (hours)").Value(s.dailyGoal).Validate(validateHours),
			huh.NewSelect[string]().Title("Week starts on").
				Options(
					huh.NewOption("Monday", "monday"),
					huh.NewOption("Sunday", "sunday"),
				).Value(s.weekStart),
		).Title("General"),
	).WithShowHelp(true).WithShowErrors(true)

	s.formActive = true
	return s, s.form.Init()
}

func (s settingsModel) updateForm(msg tea.Msg) (settingsModel, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		if msg.String() == "esc" {
			s.formActive = false
			s.form = nil
			return s, nil
		}
	}

	form, cmd := s.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		s.form = f
	}

	if s.form.State == huh.StateCompleted {
		s.formActive = false
		if err := s.saveSettings(); err != nil {
			return s, tea.Batch(s.refresh(), errStatus("Save error", err))
		}
		return s, tea.Batch(s.refresh(), okStatus("Settings saved"))
	}

	return s, cmd
}

func (s settingsModel) saveSettings() error {
	if _, err := s.service.UpdateSetting("daily_goal", api.SettingInput{Value: hoursToSecs(*s.dailyGoal)}); err != nil {
		return err
	}
	_, err := s.service.UpdateSetting("week_start", api.SettingInput{Value: *s.weekStart})
	return err
}

func (s settingsModel) getVal(k, fallback string) string {
	if v, ok := s.settings[k]; ok {
		return v
	}
	return fallback
}

func (s settingsModel) view() string {
	w := s.width - 4

	if s.formActive && s.form != nil {
		title := titleStyle.Render("Settings")
		return panelStyle.Width(w).Render(
			lipgloss.JoinVertical(lipgloss.Left, title, "", s.form.View()),
		)
	}

	rows := []string{titleStyle.Render("Settings"), ""}
	for _, k := range slices.Sorted(maps.Keys(s.settings)) {
		label := lipgloss.NewStyle().Width(24).Render(k)
		value := highlightStyle.Render(formatSettingValue(k, s.settings[k]))
		rows = append(rows, fmt.Sprintf("  %s %s", label, value))
	}
	rows = append(rows, "", mutedStyle.Render("Press enter to edit settings"))

	return panelStyle.Width(w).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func formatSettingValue(k, v string) string {
	switch k {
	case "daily_goal":
		if secs, err := strconv.Atoi(v); err == nil {
			return fmt.Sprintf("%.1f hours", float64(secs)/3600)
		}
	case "week_start":
		if v != "" {
			return strings.ToUpper(v[:1]) + v[1:]
		}
	}
	return v
}

func secsToHours(s string) string {
	if secs, err := strconv.Atoi(s); err == nil {
		return fmt.Sprintf("%.1f", float64(secs)/3600)
	}
	return s
}

func hoursToSecs(s string) string {
	if hours, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
		return strconv.Itoa(int(hours * 3600))
	}
	return s
}
