package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/sadopc/autotrackr/internal/api"
	"github.com/sadopc/autotrackr/internal/matcher"
	"github.com/sadopc/autotrackr/internal/store"
)

var projectColors = []string{"#6C63FF", "#2EC4B6", "#FF6B6B", "#F39C12", "#2ECC71", "#E74C3C", "#9B59B6", "#3498DB"}

// taxonomyLevel is how deep the projects view has drilled.
type taxonomyLevel int

const (
	levelBrands taxonomyLevel = iota
	levelProjects
	levelRules
)

type formKind int

const (
	formBrand formKind = iota
	formProject
	formRule
)

type projectsModel struct {
	service *api.Service
	width   int
	height  int

	level    taxonomyLevel
	brands   []store.Brand
	projects []store.Project
	rules    []store.ProjectRule
	cursors  [3]int

	formActive bool
	form       *huh.Form
	formKind   formKind
	editingID  int64 // 0 when creating

	// Form field pointers (survive value copies)
	formName     *string
	formColor    *string
	formRuleType *string
	formPattern  *string
	formRegex    *bool
	formPriority *string
}

func newProjectsModel(svc *api.Service) projectsModel {
	name, color, ruleType, pattern, priority := "", projectColors[0], string(store.RuleWindowTitle), "", "0"
	regex := false
	return projectsModel{
		service:      svc,
		formName:     &name,
		formColor:    &color,
		formRuleType: &ruleType,
		formPattern:  &pattern,
		formRegex:    &regex,
		formPriority: &priority,
	}
}

func (p *projectsModel) setSize(w, h int) {
	p.width = w
	p.height = h
}

func (p projectsModel) selectedBrand() (store.Brand, bool) {
	if c := p.cursors[levelBrands]; c < len(p.brands) {
		return p.brands[c], true
	}
	return store.Brand{}, false
}

func (p projectsModel) selectedProject() (store.Project, bool) {
	if c := p.cursors[levelProjects]; c < len(p.projects) {
		return p.projects[c], true
	}
	return store.Project{}, false
}

type taxonomyDataMsg struct {
	level    taxonomyLevel
	brands   []store.Brand
	projects []store.Project
	rules    []store.ProjectRule
}

// refresh reloads the list shown at the current level.
func (p projectsModel) refresh() tea.Cmd {
	level := p.level
	brand, _ := p.selectedBrand()
	project, _ := p.selectedProject()
	return func() tea.Msg {
		switch level {
		case levelProjects:
			projects, err := p.service.ListProjects(&brand.ID)
			if err != nil {
				return statusMsg{text: fmt.Sprintf("Load error: %v", err), isError: true}
			}
			return taxonomyDataMsg{level: level, projects: projects}
		case levelRules:
			rules, err := p.service.ListRules(project.ID)
			if err != nil {
				return statusMsg{text: fmt.Sprintf("Load error: %v", err), isError: true}
			}
			return taxonomyDataMsg{level: level, rules: rules}
		default:
			brands, err := p.service.ListBrands()
			if err != nil {
				return statusMsg{text: fmt.Sprintf("Load error: %v", err), isError: true}
			}
			return taxonomyDataMsg{level: level, brands: brands}
		}
	}
}

func (p projectsModel) listLen() int {
	switch p.level {
	case levelProjects:
		return len(p.projects)
	case levelRules:
		return len(p.rules)
	}
	return len(p.brands)
}

func (p projectsModel) update(msg tea.Msg) (projectsModel, tea.Cmd) {
	if p.formActive && p.form != nil {
		return p.updateForm(msg)
	}

	switch msg := msg.(type) {
	case taxonomyDataMsg:
		switch msg.level {
		case levelBrands:
			p.brands = msg.brands
		case levelProjects:
			p.projects = msg.projects
		case levelRules:
			p.rules = msg.rules
		}
		if n := p.listLen(); p.cursors[p.level] >= n {
			p.cursors[p.level] = max(0, n-1)
		}
		return p, nil

	case tea.KeyMsg:
		return p.updateList(msg)
	}
	return p, nil
}

func (p projectsModel) updateList(msg tea.KeyMsg) (projectsModel, tea.Cmd) {
	c := &p.cursors[p.level]
	switch {
	case key.Matches(msg, keys.Up):
		if *c > 0 {
			*c--
		}
	case key.Matches(msg, keys.Down):
		if *c < p.listLen()-1 {
			*c++
		}
	case key.Matches(msg, keys.Enter):
		if p.level < levelRules && p.listLen() > 0 {
			p.level++
			p.cursors[p.level] = 0
			return p, p.refresh()
		}
	case key.Matches(msg, keys.Back):
		if p.level > levelBrands {
			p.level--
			return p, p.refresh()
		}
	case key.Matches(msg, keys.New):
		return p.showForm(0)
	case key.Matches(msg, keys.Edit):
		if p.listLen() > 0 {
			return p.showForm(p.selectedID())
		}
	case key.Matches(msg, keys.Delete):
		if p.listLen() > 0 {
			return p, p.deleteSelected()
		}
	}
	return p, nil
}

func (p projectsModel) selectedID() int64 {
	c := p.cursors[p.level]
	switch p.level {
	case levelProjects:
		return p.projects[c].ID
	case levelRules:
		return p.rules[c].ID
	}
	return p.brands[c].ID
}

func (p projectsModel) deleteSelected() tea.Cmd {
	id, level := p.selectedID(), p.level
	return func() tea.Msg {
		var err error
		switch level {
		case levelBrands:
			err = p.service.DeleteBrand(id)
		case levelProjects:
			err = p.service.DeleteProject(id)
		case levelRules:
			err = p.service.DeleteRule(id)
		}
		if err != nil {
			return statusMsg{text: fmt.Sprintf("Delete error: %v", err), isError: true}
		}
		return taxonomyChangedMsg{}
	}
}

func colorOptions() []huh.Option[string] {
	opts := make([]huh.Option[string], len(projectColors))
	for i, c := range projectColors {
		opts[i] = huh.NewOption(fmt.Sprintf("● %s", c), c)
	}
	return opts
}

func ruleTypeOptions() []huh.Option[string] {
	opts := make([]huh.Option[string], len(store.RuleTypes))
	for i, rt := range store.RuleTypes {
		opts[i] = huh.NewOption(string(rt), string(rt))
	}
	return opts
}

func validatePriority(s string) error {
	if _, err := strconv.Atoi(strings.TrimSpace(s)); err != nil {
		return fmt.Errorf("priority must be a whole number")
	}
	return nil
}

// showForm opens the create (id 0) or edit form for the current level.
func (p projectsModel) showForm(id int64) (projectsModel, tea.Cmd) {
	p.editingID = id
	*p.formName = ""
	*p.formColor = projectColors[0]

	switch p.level {
	case levelRules:
		p.formKind = formRule
		*p.formRuleType = string(store.RuleWindowTitle)
		*p.formPattern = ""
		*p.formRegex = false
		*p.formPriority = "0"
		if id != 0 {
			r := p.rules[p.cursors[levelRules]]
			*p.formRuleType = string(r.RuleType)
			*p.formPattern = r.Pattern
			*p.formRegex = r.IsRegex
			*p.formPriority = strconv.Itoa(r.Priority)
		}
		p.form = huh.NewForm(
			huh.NewGroup(
				huh.NewSelect[string]().Title("Match against").Options(ruleTypeOptions()...).Value(p.formRuleType),
				huh.NewInput().Title("Pattern").Value(p.formPattern).
					Validate(func(s string) error { return matcher.ValidatePattern(s, false) }),
				huh.NewConfirm().Title("Regular expression?").Value(p.formRegex),
				huh.NewInput().Title("Priority").Value(p.formPriority).Validate(validatePriority),
			),
		).WithShowHelp(true).WithShowErrors(true)

	case levelProjects:
		p.formKind = formProject
		if id != 0 {
			proj := p.projects[p.cursors[levelProjects]]
			*p.formName, *p.formColor = proj.Name, proj.Color
		}
		p.form = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().Title("Project Name").Value(p.formName),
				huh.NewSelect[string]().Title("Color").Options(colorOptions()...).Value(p.formColor),
			),
		).WithShowHelp(true).WithShowErrors(true)

	default:
		p.formKind = formBrand
		if id != 0 {
			b := p.brands[p.cursors[levelBrands]]
			*p.formName, *p.formColor = b.Name, b.Color
		}
		p.form = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().Title("Brand Name").Value(p.formName),
				huh.NewSelect[string]().Title("Color").Options(colorOptions()...).Value(p.formColor),
			),
		).WithShowHelp(true).WithShowErrors(true)
	}

	p.formActive = true
	return p, p.form.Init()
}

func (p projectsModel) updateForm(msg tea.Msg) (projectsModel, tea.Cmd) {
	// Check for escape to cancel form
	if msg, ok := msg.(tea.KeyMsg); ok {
		if msg.String() == "esc" {
			p.formActive = false
			p.form = nil
			return p, nil
		}
	}

	form, cmd := p.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		p.form = f
	}

	if p.form.State == huh.StateCompleted {
		p.formActive = false
		return p, p.save()
	}

	return p, cmd
}

// save persists the completed form through the service.
func (p projectsModel) save() tea.Cmd {
	kind, id := p.formKind, p.editingID
	name, color := strings.TrimSpace(*p.formName), *p.formColor
	brand, _ := p.selectedBrand()
	project, _ := p.selectedProject()
	priority, _ := strconv.Atoi(strings.TrimSpace(*p.formPriority))
	rule := store.RuleInput{
		RuleType: store.RuleType(*p.formRuleType),
		Pattern:  *p.formPattern,
		IsRegex:  *p.formRegex,
		Priority: priority,
	}

	return func() tea.Msg {
		var err error
		switch {
		case kind == formBrand && id == 0:
			_, err = p.service.CreateBrand(api.BrandInput{Name: name, Color: color})
		case kind == formBrand:
			_, err = p.service.UpdateBrand(id, api.BrandInput{Name: name, Color: color})
		case kind == formProject && id == 0:
			_, err = p.service.CreateProject(api.ProjectInput{BrandID: brand.ID, Name: name, Color: color})
		case kind == formProject:
			_, err = p.service.UpdateProject(id, api.ProjectInput{Name: name, Color: color})
		case kind == formRule && id == 0:
			_, err = p.service.CreateRule(project.ID, rule)
		case kind == formRule:
			_, err = p.service.UpdateRule(id, rule)
		}
		if err != nil {
			return statusMsg{text: fmt.Sprintf("Save error: %v", err), isError: true}
		}
		return taxonomyChangedMsg{}
	}
}

func (p projectsModel) view() string {
	w := p.width - 4
	if p.formActive && p.form != nil {
		noun := [...]string{"Brand", "Project", "Rule"}[p.formKind]
		verb := "New"
		if p.editingID != 0 {
			verb = "Edit"
		}
		title := titleStyle.Render(verb + " " + noun)
		content := lipgloss.JoinVertical(lipgloss.Left, title, "", p.form.View())
		return panelStyle.Width(w).Render(content)
	}

	switch p.level {
	case levelProjects:
		return p.renderProjects(w)
	case levelRules:
		return p.renderRules(w)
	}
	return p.renderBrands(w)
}

func cursorRow(selected bool, text string) string {
	if selected {
		return selectedItemStyle.Render("> " + text)
	}
	return normalItemStyle.Render("  " + text)
}

func (p projectsModel) renderBrands(w int) string {
	rows := []string{titleStyle.Render("Brands"), ""}
	if len(p.brands) == 0 {
		rows = append(rows, mutedStyle.Render("No brands yet. Press n to create one, or accept a suggestion."))
	}
	for i, b := range p.brands {
		rows = append(rows, cursorRow(i == p.cursors[levelBrands], fmt.Sprintf("%s %s", dot(b.Color), b.Name)))
	}
	rows = append(rows, "", mutedStyle.Render("  n: new  e: edit  d: delete  enter: projects"))
	return panelStyle.Width(w).Render(strings.Join(rows, "\n"))
}

func (p projectsModel) renderProjects(w int) string {
	brand, _ := p.selectedBrand()
	rows := []string{titleStyle.Render(fmt.Sprintf("%s %s / Projects", dot(brand.Color), brand.Name)), ""}
	if len(p.projects) == 0 {
		rows = append(rows, mutedStyle.Render("No projects. Press n to add one."))
	}
	for i, proj := range p.projects {
		rows = append(rows, cursorRow(i == p.cursors[levelProjects], fmt.Sprintf("%s %s", dot(proj.Color), proj.Name)))
	}
	rows = append(rows, "", mutedStyle.Render("  n: new  e: edit  d: delete  enter: rules  esc: back"))
	return panelStyle.Width(w).Render(strings.Join(rows, "\n"))
}

func (p projectsModel) renderRules(w int) string {
	brand, _ := p.selectedBrand()
	project, _ := p.selectedProject()
	title := titleStyle.Render(fmt.Sprintf("%s %s / %s / Rules", dot(project.Color), brand.Name, project.Name))
	rows := []string{title, ""}
	if len(p.rules) == 0 {
		rows = append(rows, mutedStyle.Render("No rules. Press n to add one."))
	} else {
		rows = append(rows, mutedStyle.Render(fmt.Sprintf("  %-5s %-16s %-8s %s", "Prio", "Type", "Mode", "Pattern")))
	}
	for i, r := range p.rules {
		mode := "contains"
		if r.IsRegex {
			mode = "regex"
		}
		line := fmt.Sprintf("%-5d %-16s %-8s %s", r.Priority, r.RuleType, mode, truncate(r.Pattern, max(10, w-40)))
		if err := matcher.ValidatePattern(r.Pattern, r.IsRegex); err != nil {
			line += " " + warningStyle.Render("(never matches)")
		}
		rows = append(rows, cursorRow(i == p.cursors[levelRules], line))
	}
	rows = append(rows, "", mutedStyle.Render("  n: new  e: edit  d: delete  esc: back"))
	return panelStyle.Width(w).Render(strings.Join(rows, "\n"))
}
