// Package detector proposes brands, projects and rules by mining recurring
// tokens in unassigned activity history.
package detector

import (
	"fmt"
	"net"
	"path"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/sadopc/autotrackr/internal/matcher"
	"github.com/sadopc/autotrackr/internal/ordered"
	"github.com/sadopc/autotrackr/internal/store"
)

// DefaultMinOccurrences is the fewest records a token needs to be suggested.
const DefaultMinOccurrences = 2

const (
	titleSeparator = " — "
	figmaBundleID  = "com.figma.Desktop"
	minTokenLength = 3
)

var skippedTitleTokens = map[string]bool{
	"unknown": true,
	"home":    true,
}

var skippedFigmaTitles = map[string]bool{
	"":      true,
	"home":  true,
	"figma": true,
}

// Second-level labels of sites that say nothing about which project is
// being worked on.
var genericDomains = map[string]bool{
	"localhost":     true,
	"google":        true,
	"bing":          true,
	"duckduckgo":    true,
	"yahoo":         true,
	"github":        true,
	"gitlab":        true,
	"bitbucket":     true,
	"stackoverflow": true,
	"twitter":       true,
	"x":             true,
	"facebook":      true,
	"instagram":     true,
	"linkedin":      true,
	"reddit":        true,
	"youtube":       true,
	"netflix":       true,
	"twitch":        true,
	"chatgpt":       true,
	"openai":        true,
	"claude":        true,
	"anthropic":     true,
	"perplexity":    true,
	"gemini":        true,
}

var palette = []string{
	"#6C63FF", "#FF6584", "#43AA8B", "#F9A826",
	"#00B4D8", "#E76F51", "#8338EC", "#2A9D8F",
}

// DetectedProject is a suggested project with the rules that would classify
// its records.
type DetectedProject struct {
	Key     string            `json:"key"`
	Token   string            `json:"token"`
	Name    string            `json:"name"`
	Color   string            `json:"color"`
	Count   int               `json:"count"`
	Apps    []string          `json:"apps"`
	Sources []store.RuleType  `json:"sources"`
	Rules   []store.RuleInput `json:"rules"`
}

// DetectedBrand groups the suggested projects sharing a root word.
type DetectedBrand struct {
	Root     string            `json:"root"`
	Name     string            `json:"name"`
	Color    string            `json:"color"`
	Count    int               `json:"count"`
	Projects []DetectedProject `json:"projects"`
}

// SuggestionKey identifies a suggested project across runs.
func SuggestionKey(root, token string) string {
	return root + "/" + token
}

type tokenInfo struct {
	count   int
	apps    map[string]bool
	sources map[store.RuleType]bool
	domains map[string]bool
	folders map[string]bool
	figma   map[string]bool
}

func newTokenInfo() tokenInfo {
	return tokenInfo{
		apps:    map[string]bool{},
		sources: map[store.RuleType]bool{},
		domains: map[string]bool{},
		folders: map[string]bool{},
		figma:   map[string]bool{},
	}
}

// Store is what the detector reads.
type Store interface {
	QueryUnassignedRaw(date *string) ([]store.RawActivity, error)
	ListAllRules() ([]store.ProjectRule, error)
}

// Config holds detector configuration
type Config struct {
	MinOccurrences int
}

// Detector runs detection against the store.
type Detector struct {
	store          Store
	minOccurrences int
	logger         zerolog.Logger
}

func New(s Store, cfg Config, logger zerolog.Logger) *Detector {
	if cfg.MinOccurrences <= 0 {
		cfg.MinOccurrences = DefaultMinOccurrences
	}
	return &Detector{
		store:          s,
		minOccurrences: cfg.MinOccurrences,
		logger:         logger.With().Str("component", "detector").Logger(),
	}
}

// Detect proposes suggestions from the current unassigned history. It has
// no side effects.
func (d *Detector) Detect() ([]DetectedBrand, error) {
	records, err := d.store.QueryUnassignedRaw(nil)
	if err != nil {
		return nil, fmt.Errorf("load unassigned: %w", err)
	}
	rules, err := d.store.ListAllRules()
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	brands := Analyze(records, rules, d.minOccurrences)
	d.logger.Debug().
		Int("records", len(records)).
		Int("brands", len(brands)).
		Msg("Pattern detection finished")
	return brands, nil
}

// Analyze is the detection algorithm over records, skipping signals already
// covered by an existing rule that reads the same field.
func Analyze(records []store.RawActivity, existingRules []store.ProjectRule, minOccurrences int) []DetectedBrand {
	tokens := ordered.NewGroup[string, tokenInfo]()
	for _, r := range records {
		extract(tokens, r)
	}

	existing := make(map[recordField][]string)
	for _, r := range existingRules {
		if f, ok := ruleFields[r.RuleType]; ok {
			existing[f] = append(existing[f], strings.ToLower(r.Pattern))
		}
	}

	type brandGroup struct {
		root     string
		projects []DetectedProject
	}
	groups := ordered.NewGroup[string, brandGroup]()
	for _, token := range tokens.Keys() {
		info, _ := tokens.Lookup(token)
		if info.count < minOccurrences {
			continue
		}
		root, rest := splitRoot(token)
		rules := synthesizeRules(token, info, existing)
		if len(rules) == 0 {
			continue
		}
		name := titleCase(rest)
		if rest == "" {
			name = titleCase(root)
		}
		g := groups.Get(root, func() brandGroup { return brandGroup{root: root} })
		g.projects = append(g.projects, DetectedProject{
			Key:     SuggestionKey(root, token),
			Token:   token,
			Name:    name,
			Count:   info.count,
			Apps:    sortedKeys(info.apps),
			Sources: sortedSources(info.sources),
			Rules:   rules,
		})
	}

	out := make([]DetectedBrand, 0, groups.Len())
	for _, g := range groups.Values() {
		b := DetectedBrand{Root: g.root, Name: titleCase(g.root), Projects: g.projects}
		for _, p := range g.projects {
			b.Count += p.Count
		}
		sortProjects(b.Projects)
		out = append(out, b)
	}
	sortBrands(out)
	assignColors(out)
	return out
}

// WithoutDismissed drops dismissed suggestions and brands left empty.
func WithoutDismissed(brands []DetectedBrand, dismissed map[string]bool) []DetectedBrand {
	out := make([]DetectedBrand, 0, len(brands))
	for _, b := range brands {
		kept := b
		kept.Projects = nil
		kept.Count = 0
		for _, p := range b.Projects {
			if dismissed[p.Key] {
				continue
			}
			kept.Projects = append(kept.Projects, p)
			kept.Count += p.Count
		}
		if len(kept.Projects) > 0 {
			out = append(out, kept)
		}
	}
	sortBrands(out)
	return out
}

// Find returns the suggestion with key.
func Find(brands []DetectedBrand, key string) (DetectedBrand, DetectedProject, bool) {
	for _, b := range brands {
		for _, p := range b.Projects {
			if p.Key == key {
				return b, p, true
			}
		}
	}
	return DetectedBrand{}, DetectedProject{}, false
}

func extract(tokens *ordered.Group[string, tokenInfo], r store.RawActivity) {
	add := func(token string, source store.RuleType) *tokenInfo {
		info := tokens.Get(token, newTokenInfo)
		info.count++
		info.apps[r.AppName] = true
		info.sources[source] = true
		return info
	}

	if token, ok := titleToken(r.WindowTitle); ok {
		add(token, store.RuleWindowTitle)
	}
	if token, domain, ok := domainToken(r.URL); ok {
		add(token, store.RuleURLDomain).domains[domain] = true
	}
	if token, ok := folderToken(r.ExtraInfo); ok {
		add(token, store.RuleTerminalFolder).folders[*r.ExtraInfo] = true
	}
	if r.BundleID == figmaBundleID {
		if token, ok := figmaToken(r.WindowTitle); ok {
			add(token, store.RuleFigmaFile).figma[r.WindowTitle] = true
		}
	}
}

func titleToken(title string) (string, bool) {
	i := strings.Index(title, titleSeparator)
	if i < 0 {
		return "", false
	}
	token := strings.ToLower(strings.TrimSpace(title[:i]))
	if len(token) < minTokenLength || skippedTitleTokens[token] {
		return "", false
	}
	return token, true
}

func domainToken(raw *string) (token, domain string, ok bool) {
	host := matcher.Host(raw)
	if host == "" {
		return "", "", false
	}
	domain = strings.TrimPrefix(host, "www.")
	if net.ParseIP(domain) != nil {
		return "", "", false
	}
	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return "", "", false
	}
	token = labels[len(labels)-2]
	if token == "" || genericDomains[token] {
		return "", "", false
	}
	return token, domain, true
}

func folderToken(extra *string) (string, bool) {
	if extra == nil {
		return "", false
	}
	dir := strings.TrimRight(strings.TrimSpace(*extra), "/")
	if dir == "" || dir == "~" {
		return "", false
	}
	base := strings.ToLower(path.Base(dir))
	if base == "~" {
		return "", false
	}
	base = strings.NewReplacer("-", " ", "_", " ").Replace(base)
	base = strings.TrimSpace(base)
	if len(base) < minTokenLength {
		return "", false
	}
	return base, true
}

func figmaToken(title string) (string, bool) {
	trimmed := strings.TrimSpace(title)
	if skippedFigmaTitles[strings.ToLower(trimmed)] {
		return "", false
	}
	words := strings.Fields(strings.ToLower(trimmed))
	if len(words) == 0 || len(words[0]) < minTokenLength {
		return "", false
	}
	return words[0], true
}

func splitRoot(token string) (root, rest string) {
	fields := strings.Fields(token)
	if len(fields) == 0 {
		return token, ""
	}
	return fields[0], strings.Join(fields[1:], " ")
}

// recordField is the activity field a rule type is evaluated against.
type recordField int

const (
	fieldTitle recordField = iota
	fieldURL
	fieldFolder
	fieldBundle
)

var ruleFields = map[store.RuleType]recordField{
	store.RuleWindowTitle:    fieldTitle,
	store.RulePageTitle:      fieldTitle,
	store.RuleFigmaFile:      fieldTitle,
	store.RuleURLDomain:      fieldURL,
	store.RuleURLPath:        fieldURL,
	store.RuleTerminalFolder: fieldFolder,
	store.RuleBundleID:       fieldBundle,
}

func synthesizeRules(token string, info *tokenInfo, existing map[recordField][]string) []store.RuleInput {
	var rules []store.RuleInput
	if info.sources[store.RuleWindowTitle] && !covered(token, existing[fieldTitle]) {
		rules = append(rules, store.RuleInput{
			RuleType: store.RuleWindowTitle,
			Pattern:  "^" + regexp.QuoteMeta(token),
			IsRegex:  true,
		})
	}
	for _, domain := range sortedKeys(info.domains) {
		if !covered(domain, existing[fieldURL]) {
			rules = append(rules, store.RuleInput{RuleType: store.RuleURLDomain, Pattern: domain})
		}
	}
	for _, dir := range sortedKeys(info.folders) {
		if !covered(dir, existing[fieldFolder]) {
			rules = append(rules, store.RuleInput{RuleType: store.RuleTerminalFolder, Pattern: dir})
		}
	}
	for _, title := range sortedKeys(info.figma) {
		if !covered(title, existing[fieldTitle]) {
			rules = append(rules, store.RuleInput{RuleType: store.RuleFigmaFile, Pattern: title})
		}
	}
	return rules
}

func covered(candidate string, existing []string) bool {
	candidate = strings.ToLower(candidate)
	for _, p := range existing {
		if p != "" && strings.Contains(p, candidate) {
			return true
		}
	}
	return false
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

func sortProjects(ps []DetectedProject) {
	sort.SliceStable(ps, func(i, j int) bool {
		if ps[i].Count != ps[j].Count {
			return ps[i].Count > ps[j].Count
		}
		return ps[i].Token < ps[j].Token
	})
}

func sortBrands(bs []DetectedBrand) {
	sort.SliceStable(bs, func(i, j int) bool {
		if bs[i].Count != bs[j].Count {
			return bs[i].Count > bs[j].Count
		}
		return bs[i].Root < bs[j].Root
	})
}

func assignColors(bs []DetectedBrand) {
	for i := range bs {
		bs[i].Color = palette[i%len(palette)]
		for j := range bs[i].Projects {
			bs[i].Projects[j].Color = palette[(i+j)%len(palette)]
		}
	}
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedSources(m map[store.RuleType]bool) []store.RuleType {
	out := make([]store.RuleType, 0, len(m))
	for _, t := range store.RuleTypes {
		if m[t] {
			out = append(out, t)
		}
	}
	return out
}
