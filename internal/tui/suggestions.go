package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/sadopc/autotrackr/internal/api"
	"github.com/sadopc/autotrackr/internal/detector"
)

// suggestionRow is one selectable detected project with its brand.
type suggestionRow struct {
	brand   detector.DetectedBrand
	project detector.DetectedProject
}

type suggestionsModel struct {
	service *api.Service
	width   int
	height  int

	rows   []suggestionRow
	cursor int
	loaded bool

	formActive bool
	form       *huh.Form
	formKey    string

	brandName   *string
	projectName *string
}

func newSuggestionsModel(svc *api.Service) suggestionsModel {
	b, p := "", ""
	return suggestionsModel{
		service:     svc,
		brandName:   &b,
		projectName: &p,
	}
}

func (s *suggestionsModel) setSize(w, h int) {
	s.width = w
	s.height = h
}

type suggestionsDataMsg struct {
	rows []suggestionRow
}

func (s suggestionsModel) refresh() tea.Cmd {
	return func() tea.Msg {
		brands, err := s.service.ListSuggestions()
		if err != nil {
			return statusMsg{text: fmt.Sprintf("Detection error: %v", err), isError: true}
		}
		var rows []suggestionRow
		for _, b := range brands {
			for _, p := range b.Projects {
				rows = append(rows, suggestionRow{brand: b, project: p})
			}
		}
		return suggestionsDataMsg{rows: rows}
	}
}

func (s suggestionsModel) selected() (suggestionRow, bool) {
	if s.cursor < len(s.rows) {
		return s.rows[s.cursor], true
	}
	return suggestionRow{}, false
}

func (s suggestionsModel) update(msg tea.Msg) (suggestionsModel, tea.Cmd) {
	if s.formActive && s.form != nil {
		return s.updateForm(msg)
	}

	switch msg := msg.(type) {
	case suggestionsDataMsg:
		s.rows = msg.rows
		s.loaded = true
		if s.cursor >= len(s.rows) {
			s.cursor = max(0, len(s.rows)-1)
		}
		return s, nil

	case suggestionAcceptedMsg:
		return s, tea.Batch(
			func() tea.Msg { return taxonomyChangedMsg{} },
			okStatus("Created %s / %s, assigned %d records", msg.brand, msg.project, msg.assigned),
		)

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Up):
			if s.cursor > 0 {
				s.cursor--
			}
		case key.Matches(msg, keys.Down):
			if s.cursor < len(s.rows)-1 {
				s.cursor++
			}
		case key.Matches(msg, keys.Accept):
			if row, ok := s.selected(); ok {
				return s.showForm(row)
			}
		case key.Matches(msg, keys.Dismiss):
			if row, ok := s.selected(); ok {
				return s, s.dismiss(row.project.Key)
			}
		case key.Matches(msg, keys.Refresh):
			return s, s.refresh()
		}
	}
	return s, nil
}

// showForm lets the user rename the brand and project before accepting.
func (s suggestionsModel) showForm(row suggestionRow) (suggestionsModel, tea.Cmd) {
	s.formKey = row.project.Key
	*s.brandName = row.brand.Name
	*s.projectName = row.project.Name

	s.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Brand").Value(s.brandName),
			huh.NewInput().Title("Project").Value(s.projectName),
		),
	).WithShowHelp(true).WithShowErrors(true)

	s.formActive = true
	return s, s.form.Init()
}

func (s suggestionsModel) updateForm(msg tea.Msg) (suggestionsModel, tea.Cmd) {
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
		return s, s.accept(api.AcceptInput{
			Key:         s.formKey,
			BrandName:   strings.TrimSpace(*s.brandName),
			ProjectName: strings.TrimSpace(*s.projectName),
		})
	}

	return s, cmd
}

type suggestionAcceptedMsg struct {
	brand    string
	project  string
	assigned int
}

func (s suggestionsModel) accept(in api.AcceptInput) tea.Cmd {
	return func() tea.Msg {
		res, err := s.service.AcceptSuggestion(in)
		if err != nil {
			return statusMsg{text: fmt.Sprintf("Accept error: %v", err), isError: true}
		}
		return suggestionAcceptedMsg{
			brand:    res.Brand.Name,
			project:  res.Project.Name,
			assigned: res.Assigned,
		}
	}
}

func (s suggestionsModel) dismiss(key string) tea.Cmd {
	return func() tea.Msg {
		if err := s.service.DismissSuggestion(api.DismissInput{Key: key}); err != nil {
			return statusMsg{text: fmt.Sprintf("Dismiss error: %v", err), isError: true}
		}
		return taxonomyChangedMsg{}
	}
}

func (s suggestionsModel) view() string {
	w := s.width - 4

	if s.formActive && s.form != nil {
		title := titleStyle.Render("Accept Suggestion")
		return panelStyle.Width(w).Render(
			lipgloss.JoinVertical(lipgloss.Left, title, "", s.form.View()),
		)
	}

	rows := []string{titleStyle.Render("Suggestions"), ""}
	switch {
	case !s.loaded:
		rows = append(rows, mutedStyle.Render("Analyzing unassigned activity..."))
	case len(s.rows) == 0:
		rows = append(rows, mutedStyle.Render("No suggestions. Unassigned history has no recurring patterns."))
	}

	var lastBrand string
	for i, r := range s.rows {
		if r.brand.Root != lastBrand {
			lastBrand = r.brand.Root
			rows = append(rows, fmt.Sprintf("%s %s %s", dot(r.brand.Color), titleStyle.Render(r.brand.Name),
				mutedStyle.Render(fmt.Sprintf("(%d records)", r.brand.Count))))
		}
		line := fmt.Sprintf("%-24s %4d  %s", truncate(r.project.Name, 24), r.project.Count,
			truncate(strings.Join(r.project.Apps, ", "), 30))
		rows = append(rows, "  "+cursorRow(i == s.cursor, line))
	}

	if row, ok := s.selected(); ok && len(row.project.Rules) > 0 {
		rows = append(rows, "", subtitleStyle.Render("Rules for "+row.project.Name))
		for _, rule := range row.project.Rules {
			mode := "contains"
			if rule.IsRegex {
				mode = "regex"
			}
			rows = append(rows, accentStyle.Render(fmt.Sprintf("    %-16s %-8s %s", rule.RuleType, mode, rule.Pattern)))
		}
	}

	rows = append(rows, "", mutedStyle.Render("  enter/y: accept  x: dismiss  r: rescan"))
	return panelStyle.Width(w).Render(strings.Join(rows, "\n"))
}
