// Package matcher assigns activities to projects by evaluating the configured
// project rules in precedence order.
package matcher

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"github.com/sadopc/autotrackr/internal/clock"
	"github.com/sadopc/autotrackr/internal/metrics"
	"github.com/sadopc/autotrackr/internal/store"
)

const (
	// DefaultCacheTTL bounds how stale the cached rule set may get.
	DefaultCacheTTL = 60 * time.Second

	// DefaultRegexCacheSize is the number of compiled patterns kept.
	DefaultRegexCacheSize = 512
)

// ErrInvalidPattern is returned by ValidatePattern for patterns that can never match.
var ErrInvalidPattern = errors.New("invalid pattern")

// Fields is the part of a heartbeat or stored record that rules look at.
type Fields struct {
	AppName     string
	BundleID    string
	WindowTitle string
	URL         *string
	ExtraInfo   *string
}

// FromRaw converts a stored unassigned record.
func FromRaw(r store.RawActivity) Fields {
	return Fields{
		AppName:     r.AppName,
		BundleID:    r.BundleID,
		WindowTitle: r.WindowTitle,
		URL:         r.URL,
		ExtraInfo:   r.ExtraInfo,
	}
}

// Store is what the matcher needs from the activity log.
type Store interface {
	ListAllRules() ([]store.ProjectRule, error)
	TaxonomyVersion() (int64, error)
	QueryUnassignedRaw(date *string) ([]store.RawActivity, error)
	BulkUpdateProjectAssignment(ids []int64, projectID *int64, source store.ProjectSource) (int64, error)
}

// Config holds matcher configuration
type Config struct {
	CacheTTL       time.Duration
	RegexCacheSize int
	Clock          clock.Clock
}

// Matcher caches the rule set and evaluates it. Safe for concurrent use.
type Matcher struct {
	store   Store
	ttl     time.Duration
	clock   clock.Clock
	regexes *lru.Cache[string, *regexp.Regexp]
	logger  zerolog.Logger

	mu       sync.RWMutex
	rules    []store.ProjectRule
	loadedAt time.Time
	stale    bool
	// generation counts Invalidate calls; a reload only clears stale if
	// none arrived while it was reading.
	generation uint64
	// version is the store's taxonomy version the cached rules were read at.
	version int64
}

// New creates a matcher. Rules are loaded lazily on first use.
func New(s Store, cfg Config, logger zerolog.Logger) (*Matcher, error) {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.RegexCacheSize <= 0 {
		cfg.RegexCacheSize = DefaultRegexCacheSize
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}

	cache, err := lru.New[string, *regexp.Regexp](cfg.RegexCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create regex cache: %w", err)
	}

	return &Matcher{
		store:   s,
		ttl:     cfg.CacheTTL,
		clock:   cfg.Clock,
		regexes: cache,
		logger:  logger.With().Str("component", "matcher").Logger(),
		stale:   true,
	}, nil
}

// Invalidate forces the next match to reload rules from the store.
func (m *Matcher) Invalidate() {
	m.mu.Lock()
	m.stale = true
	m.generation++
	m.mu.Unlock()
}

// Reload fetches the rule set from the store now.
func (m *Matcher) Reload() error {
	m.mu.RLock()
	gen := m.generation
	m.mu.RUnlock()

	version, err := m.store.TaxonomyVersion()
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	rules, err := m.store.ListAllRules()
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority > rules[j].Priority
		}
		return rules[i].ID < rules[j].ID
	})

	m.mu.Lock()
	m.rules = rules
	m.loadedAt = m.clock.Now()
	m.version = version
	if m.generation == gen {
		m.stale = false
	}
	m.mu.Unlock()

	metrics.RuleCacheReloads.Inc()
	m.logger.Debug().Int("rules", len(rules)).Msg("Rule cache reloaded")
	return nil
}

// Rules returns the cached rule set in match order, refreshing it if needed.
func (m *Matcher) Rules() []store.ProjectRule {
	m.refreshIfStale()
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]store.ProjectRule(nil), m.rules...)
}

func (m *Matcher) refreshIfStale() {
	m.mu.RLock()
	stale := m.stale || m.clock.Now().Sub(m.loadedAt) >= m.ttl
	seen := m.version
	m.mu.RUnlock()
	if !stale {
		// Another process may have changed the rules.
		v, err := m.store.TaxonomyVersion()
		if err != nil {
			m.logger.Warn().Err(err).Msg("Failed to read taxonomy version")
			return
		}
		if v == seen {
			return
		}
	}
	if err := m.Reload(); err != nil {
		// Keep matching against the previous rule set.
		m.logger.Error().Err(err).Msg("Failed to refresh rules")
	}
}

// Match returns the project of the first rule that matches f.
func (m *Matcher) Match(f Fields) (int64, bool) {
	for _, r := range m.Rules() {
		if m.ruleMatches(r, f) {
			metrics.RuleMatches.WithLabelValues("matched").Inc()
			return r.ProjectID, true
		}
	}
	metrics.RuleMatches.WithLabelValues("unmatched").Inc()
	return 0, false
}

// AutoAssignUnclassified classifies every unassigned record (optionally of a
// single date) with the current rules and returns how many were assigned.
func (m *Matcher) AutoAssignUnclassified(date *string) (int, error) {
	if err := m.Reload(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	empty := len(m.rules) == 0
	m.mu.RUnlock()
	if empty {
		return 0, nil
	}

	raws, err := m.store.QueryUnassignedRaw(date)
	if err != nil {
		return 0, fmt.Errorf("load unassigned: %w", err)
	}

	byProject := make(map[int64][]int64)
	var order []int64
	for _, r := range raws {
		pid, ok := m.Match(FromRaw(r))
		if !ok {
			continue
		}
		if _, seen := byProject[pid]; !seen {
			order = append(order, pid)
		}
		byProject[pid] = append(byProject[pid], r.ID)
	}

	assigned := 0
	for _, pid := range order {
		projectID := pid
		n, err := m.store.BulkUpdateProjectAssignment(byProject[pid], &projectID, store.SourceAutoRule)
		if err != nil {
			return assigned, fmt.Errorf("assign project %d: %w", pid, err)
		}
		assigned += int(n)
	}

	metrics.AutoAssigned.Add(float64(assigned))
	m.logger.Info().Int("candidates", len(raws)).Int("assigned", assigned).Msg("Retroactive assignment finished")
	return assigned, nil
}

// InvalidRule is a configured rule that can never match.
type InvalidRule struct {
	Rule  store.ProjectRule `json:"rule"`
	Error string            `json:"error"`
}

// InvalidRules lists configured rules whose pattern fails validation.
func (m *Matcher) InvalidRules() ([]InvalidRule, error) {
	rules, err := m.store.ListAllRules()
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	out := []InvalidRule{}
	for _, r := range rules {
		if err := ValidatePattern(r.Pattern, r.IsRegex); err != nil {
			out = append(out, InvalidRule{Rule: r, Error: err.Error()})
		}
	}
	return out, nil
}

// ValidatePattern reports whether a rule pattern can be evaluated.
func ValidatePattern(pattern string, isRegex bool) error {
	if strings.TrimSpace(pattern) == "" {
		return fmt.Errorf("%w: empty pattern", ErrInvalidPattern)
	}
	if isRegex {
		if _, err := regexp.Compile("(?i)" + pattern); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPattern, err)
		}
	}
	return nil
}

// ruleMatches dispatches on the rule type. Unknown types never match.
func (m *Matcher) ruleMatches(r store.ProjectRule, f Fields) bool {
	var target *string
	switch r.RuleType {
	case store.RuleTerminalFolder:
		target = f.ExtraInfo
	case store.RuleURLDomain:
		host := Host(f.URL)
		if host == "" {
			return false
		}
		target = &host
	case store.RuleURLPath:
		target = f.URL
	case store.RulePageTitle, store.RuleFigmaFile, store.RuleWindowTitle:
		target = &f.WindowTitle
	case store.RuleBundleID:
		target = &f.BundleID
	default:
		return false
	}
	if target == nil {
		return false
	}
	return m.patternMatches(r.Pattern, r.IsRegex, *target)
}

func (m *Matcher) patternMatches(pattern string, isRegex bool, value string) bool {
	if pattern == "" {
		return false
	}
	if !isRegex {
		return strings.Contains(strings.ToLower(value), strings.ToLower(pattern))
	}
	re := m.compile(pattern)
	return re != nil && re.MatchString(value)
}

// compile returns the cached case-insensitive regex for pattern, or nil if
// it does not compile.
func (m *Matcher) compile(pattern string) *regexp.Regexp {
	if re, ok := m.regexes.Get(pattern); ok {
		return re
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		m.logger.Warn().Err(err).Str("pattern", pattern).Msg("Invalid rule pattern, treating as non-matching")
		re = nil
	}
	m.regexes.Add(pattern, re)
	return re
}

// Host returns the lowercased host of a URL, accepting scheme-less values
// like "example.com/path". It returns "" when there is none.
func Host(raw *string) string {
	if raw == nil || *raw == "" {
		return ""
	}
	u, err := url.Parse(*raw)
	if err != nil {
		return ""
	}
	if u.Host == "" && !strings.Contains(*raw, "://") {
		u, err = url.Parse("http://" + *raw)
		if err != nil {
			return ""
		}
	}
	return strings.ToLower(u.Hostname())
}
