package matcher

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sadopc/autotrackr/internal/clock"
	"github.com/sadopc/autotrackr/internal/store"
)

var testTime = time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.NewMemory()
	if err != nil {
		t.Fatalf("new memory store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestMatcher(t *testing.T, s Store, c clock.Clock) *Matcher {
	t.Helper()
	m, err := New(s, Config{Clock: c}, zerolog.Nop())
	if err != nil {
		t.Fatalf("new matcher: %v", err)
	}
	return m
}

func createProject(t *testing.T, s *store.Store, brand, name string) int64 {
	t.Helper()
	b, err := s.GetBrandByName(brand)
	if err != nil {
		t.Fatal(err)
	}
	if b == nil {
		b, err = s.CreateBrand(brand, "#111111")
		if err != nil {
			t.Fatal(err)
		}
	}
	p, err := s.CreateProject(b.ID, name, "#222222")
	if err != nil {
		t.Fatal(err)
	}
	return p.ID
}

func createRule(t *testing.T, s *store.Store, projectID int64, typ store.RuleType, pattern string, isRegex bool, priority int) int64 {
	t.Helper()
	r, err := s.CreateRule(projectID, store.RuleInput{RuleType: typ, Pattern: pattern, IsRegex: isRegex, Priority: priority})
	if err != nil {
		t.Fatal(err)
	}
	return r.ID
}

func insertRecord(t *testing.T, s *store.Store, app, bundle, title string, url, extra *string) int64 {
	t.Helper()
	id, err := s.InsertActivity(store.ActivityRecord{
		Timestamp:       testTime,
		AppName:         app,
		BundleID:        bundle,
		WindowTitle:     title,
		URL:             url,
		ExtraInfo:       extra,
		DurationSeconds: 30,
	}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func strPtr(s string) *string { return &s }

// frozenStore reports a constant taxonomy version, so only the TTL and
// Invalidate refresh the cache. afterList runs once, after the next
// ListAllRules has read its rows.
type frozenStore struct {
	*store.Store
	afterList func()
}

func (f *frozenStore) TaxonomyVersion() (int64, error) { return 0, nil }

func (f *frozenStore) ListAllRules() ([]store.ProjectRule, error) {
	rules, err := f.Store.ListAllRules()
	if fn := f.afterList; fn != nil {
		f.afterList = nil
		fn()
	}
	return rules, err
}

// ============================================================
// Predicates
// ============================================================

func TestMatchRuleTypes(t *testing.T) {
	s := newTestStore(t)
	pid := createProject(t, s, "Acme", "Acme")

	tests := []struct {
		name    string
		typ     store.RuleType
		pattern string
		regex   bool
		fields  Fields
		want    bool
	}{
		{"window title substring", store.RuleWindowTitle, "acme", false, Fields{WindowTitle: "ACME — Roadmap"}, true},
		{"window title miss", store.RuleWindowTitle, "acme", false, Fields{WindowTitle: "Inbox"}, false},
		{"page title", store.RulePageTitle, "pricing", false, Fields{WindowTitle: "Pricing page"}, true},
		{"figma file", store.RuleFigmaFile, "logo", false, Fields{WindowTitle: "Logo v2"}, true},
		{"bundle id", store.RuleBundleID, "com.acme", false, Fields{BundleID: "com.acme.editor"}, true},
		{"terminal folder", store.RuleTerminalFolder, "/src/acme", false, Fields{ExtraInfo: strPtr("/home/u/src/acme-api")}, true},
		{"terminal folder absent", store.RuleTerminalFolder, "acme", false, Fields{WindowTitle: "acme"}, false},
		{"url path", store.RuleURLPath, "/acme/", false, Fields{URL: strPtr("https://github.com/acme/api")}, true},
		{"url path absent", store.RuleURLPath, "acme", false, Fields{WindowTitle: "acme"}, false},
		{"url domain host only", store.RuleURLDomain, "acme", false, Fields{URL: strPtr("https://github.com/acme/api")}, false},
		{"url domain host", store.RuleURLDomain, "acme.io", false, Fields{URL: strPtr("https://app.ACME.io/x")}, true},
		{"url domain regex", store.RuleURLDomain, `^app\.acme\.io$`, true, Fields{URL: strPtr("https://app.acme.io/x")}, true},
		{"url domain scheme-less", store.RuleURLDomain, "acme.io", false, Fields{URL: strPtr("acme.io/docs")}, true},
		{"regex case insensitive", store.RuleWindowTitle, `^acme\b`, true, Fields{WindowTitle: "Acme — Board"}, true},
		{"regex not anchored", store.RuleWindowTitle, `board`, true, Fields{WindowTitle: "Acme — Board"}, true},
		{"invalid regex never matches", store.RuleWindowTitle, `acme(`, true, Fields{WindowTitle: "acme("}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := newTestMatcher(t, s, clock.NewFixed(testTime))
			rule := store.ProjectRule{ID: 1, ProjectID: pid, RuleType: tc.typ, Pattern: tc.pattern, IsRegex: tc.regex}
			if got := m.ruleMatches(rule, tc.fields); got != tc.want {
				t.Fatalf("ruleMatches = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestUnknownRuleTypeNeverMatches(t *testing.T) {
	m := newTestMatcher(t, newTestStore(t), clock.NewFixed(testTime))
	rule := store.ProjectRule{ID: 1, ProjectID: 1, RuleType: "clipboard", Pattern: "x"}
	if m.ruleMatches(rule, Fields{WindowTitle: "x", BundleID: "x"}) {
		t.Fatal("unknown rule type matched")
	}
}

func TestEmptyPatternNeverMatches(t *testing.T) {
	m := newTestMatcher(t, newTestStore(t), clock.NewFixed(testTime))
	rule := store.ProjectRule{ID: 1, ProjectID: 1, RuleType: store.RuleWindowTitle, Pattern: ""}
	if m.ruleMatches(rule, Fields{WindowTitle: "anything"}) {
		t.Fatal("empty pattern matched")
	}
}

// ============================================================
// Precedence
// ============================================================

func TestMatchPrecedence(t *testing.T) {
	s := newTestStore(t)
	low := createProject(t, s, "Acme", "Low")
	high := createProject(t, s, "Acme", "High")
	createRule(t, s, low, store.RuleWindowTitle, "acme", false, 0)
	createRule(t, s, high, store.RuleWindowTitle, "acme", false, 10)

	m := newTestMatcher(t, s, clock.NewFixed(testTime))
	for i := 0; i < 5; i++ {
		got, ok := m.Match(Fields{WindowTitle: "Acme board"})
		if !ok || got != high {
			t.Fatalf("call %d: Match = %d,%v want %d", i, got, ok, high)
		}
	}
}

func TestMatchTieBreaksByID(t *testing.T) {
	s := newTestStore(t)
	first := createProject(t, s, "Acme", "First")
	second := createProject(t, s, "Acme", "Second")
	createRule(t, s, first, store.RuleWindowTitle, "acme", false, 5)
	secondRule := createRule(t, s, second, store.RuleWindowTitle, "acme", false, 5)

	m := newTestMatcher(t, s, clock.NewFixed(testTime))
	if got, _ := m.Match(Fields{WindowTitle: "acme"}); got != first {
		t.Fatalf("expected first project %d, got %d", first, got)
	}

	// Raising the later rule's priority must flip precedence.
	if err := s.UpdateRule(secondRule, store.RuleInput{RuleType: store.RuleWindowTitle, Pattern: "acme", Priority: 6}); err != nil {
		t.Fatal(err)
	}
	m.Invalidate()
	if got, _ := m.Match(Fields{WindowTitle: "acme"}); got != second {
		t.Fatalf("expected second project %d after reprioritising, got %d", second, got)
	}
}

func TestMatchNoRules(t *testing.T) {
	m := newTestMatcher(t, newTestStore(t), clock.NewFixed(testTime))
	if _, ok := m.Match(Fields{WindowTitle: "anything"}); ok {
		t.Fatal("expected no match with empty rule set")
	}
}

// ============================================================
// Cache
// ============================================================

func TestRuleCacheTTL(t *testing.T) {
	s := newTestStore(t)
	pid := createProject(t, s, "Acme", "Acme")
	c := clock.NewFixed(testTime)
	m := newTestMatcher(t, &frozenStore{Store: s}, c)

	if _, ok := m.Match(Fields{WindowTitle: "acme"}); ok {
		t.Fatal("unexpected match before any rule exists")
	}

	// Insert behind the matcher's back, bypassing every change signal.
	createRule(t, s, pid, store.RuleWindowTitle, "acme", false, 0)
	if _, ok := m.Match(Fields{WindowTitle: "acme"}); ok {
		t.Fatal("cache should still be fresh")
	}

	c.Advance(DefaultCacheTTL)
	if got, ok := m.Match(Fields{WindowTitle: "acme"}); !ok || got != pid {
		t.Fatalf("expected reload after TTL, got %d,%v", got, ok)
	}
}

func TestTaxonomyHookInvalidates(t *testing.T) {
	s := newTestStore(t)
	pid := createProject(t, s, "Acme", "Acme")
	m := newTestMatcher(t, s, clock.NewFixed(testTime))
	s.OnTaxonomyChange(m.Invalidate)

	if _, ok := m.Match(Fields{WindowTitle: "acme"}); ok {
		t.Fatal("unexpected match")
	}
	createRule(t, s, pid, store.RuleWindowTitle, "acme", false, 0)
	if got, ok := m.Match(Fields{WindowTitle: "acme"}); !ok || got != pid {
		t.Fatalf("expected immediate reload after mutation, got %d,%v", got, ok)
	}
}

func TestInvalidateDuringReload(t *testing.T) {
	s := newTestStore(t)
	pid := createProject(t, s, "Acme", "Acme")
	fs := &frozenStore{Store: s}
	m := newTestMatcher(t, fs, clock.NewFixed(testTime))
	s.OnTaxonomyChange(m.Invalidate)

	// The rule commits after the reload has read the old rule set.
	fs.afterList = func() {
		createRule(t, s, pid, store.RuleWindowTitle, "acme", false, 0)
	}
	if _, ok := m.Match(Fields{WindowTitle: "Acme board"}); ok {
		t.Fatal("first match should see the old rule set")
	}
	if got, ok := m.Match(Fields{WindowTitle: "Acme board"}); !ok || got != pid {
		t.Fatalf("invalidation during reload was lost, got %d,%v", got, ok)
	}
}

func TestRuleChangeFromOtherConnection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "autotrackr.db")
	open := func() *store.Store {
		s, err := store.New(path)
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { s.Close() })
		return s
	}
	server, editor := open(), open()

	m := newTestMatcher(t, server, clock.NewFixed(testTime))
	server.OnTaxonomyChange(m.Invalidate)
	if _, ok := m.Match(Fields{WindowTitle: "Acme board"}); ok {
		t.Fatal("unexpected match before any rule exists")
	}

	pid := createProject(t, editor, "Acme", "Acme")
	createRule(t, editor, pid, store.RuleWindowTitle, "acme", false, 0)
	if got, ok := m.Match(Fields{WindowTitle: "Acme board"}); !ok || got != pid {
		t.Fatalf("rule created on another connection not picked up, got %d,%v", got, ok)
	}

	// Activity writes elsewhere do not force reloads to return stale results.
	insertRecord(t, editor, "Editor", "com.editor", "Acme board", nil, nil)
	if got, ok := m.Match(Fields{WindowTitle: "Acme board"}); !ok || got != pid {
		t.Fatalf("unexpected result after unrelated write, got %d,%v", got, ok)
	}
}

// ============================================================
// Retroactive assignment
// ============================================================

func TestAutoAssignUnclassified(t *testing.T) {
	s := newTestStore(t)
	acme := createProject(t, s, "Acme", "Acme")
	createRule(t, s, acme, store.RuleWindowTitle, "acme", false, 0)

	hit := insertRecord(t, s, "Editor", "com.editor", "Acme — spec", nil, nil)
	insertRecord(t, s, "Editor", "com.editor", "Notes", nil, nil)

	m := newTestMatcher(t, s, clock.NewFixed(testTime))
	n, err := m.AutoAssignUnclassified(nil)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 assigned, got %d", n)
	}

	rec, err := s.GetActivity(hit)
	if err != nil {
		t.Fatal(err)
	}
	if rec.ProjectID == nil || *rec.ProjectID != acme {
		t.Fatalf("expected project %d, got %v", acme, rec.ProjectID)
	}
	if rec.ProjectSource == nil || *rec.ProjectSource != store.SourceAutoRule {
		t.Fatalf("expected auto_rule source, got %v", rec.ProjectSource)
	}

	again, err := m.AutoAssignUnclassified(nil)
	if err != nil {
		t.Fatal(err)
	}
	if again != 0 {
		t.Fatalf("second run should assign 0, got %d", again)
	}
}

func TestAutoAssignNoRules(t *testing.T) {
	s := newTestStore(t)
	insertRecord(t, s, "Editor", "com.editor", "Acme", nil, nil)

	m := newTestMatcher(t, s, clock.NewFixed(testTime))
	n, err := m.AutoAssignUnclassified(nil)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("expected 0, got %d", n)
	}
}

func TestAutoAssignDateFilter(t *testing.T) {
	s := newTestStore(t)
	acme := createProject(t, s, "Acme", "Acme")
	createRule(t, s, acme, store.RuleWindowTitle, "acme", false, 0)
	insertRecord(t, s, "Editor", "com.editor", "Acme", nil, nil)

	m := newTestMatcher(t, s, clock.NewFixed(testTime))
	other := "2020-01-01"
	n, err := m.AutoAssignUnclassified(&other)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("expected 0 for another date, got %d", n)
	}

	day := testTime.Format("2006-01-02")
	n, err = m.AutoAssignUnclassified(&day)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 for the record's date, got %d", n)
	}
}

// ============================================================
// Validation
// ============================================================

func TestValidatePattern(t *testing.T) {
	if err := ValidatePattern("acme", false); err != nil {
		t.Fatalf("plain pattern: %v", err)
	}
	if err := ValidatePattern(`^acme\b`, true); err != nil {
		t.Fatalf("valid regex: %v", err)
	}
	if err := ValidatePattern("acme(", true); !errors.Is(err, ErrInvalidPattern) {
		t.Fatalf("expected ErrInvalidPattern, got %v", err)
	}
	if err := ValidatePattern("  ", false); !errors.Is(err, ErrInvalidPattern) {
		t.Fatalf("expected ErrInvalidPattern for blank pattern, got %v", err)
	}
}

func TestInvalidRules(t *testing.T) {
	s := newTestStore(t)
	pid := createProject(t, s, "Acme", "Acme")
	createRule(t, s, pid, store.RuleWindowTitle, "acme", false, 0)
	bad := createRule(t, s, pid, store.RuleWindowTitle, "[acme", true, 0)

	m := newTestMatcher(t, s, clock.NewFixed(testTime))
	invalid, err := m.InvalidRules()
	if err != nil {
		t.Fatal(err)
	}
	if len(invalid) != 1 || invalid[0].Rule.ID != bad {
		t.Fatalf("expected rule %d flagged, got %+v", bad, invalid)
	}
}
