package detector

import (
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sadopc/autotrackr/internal/store"
)

func raw(id int64, app, bundle, title string, url, extra *string) store.RawActivity {
	return store.RawActivity{ID: id, AppName: app, BundleID: bundle, WindowTitle: title, URL: url, ExtraInfo: extra}
}

func strPtr(s string) *string { return &s }

func findBrand(t *testing.T, brands []DetectedBrand, root string) DetectedBrand {
	t.Helper()
	for _, b := range brands {
		if b.Root == root {
			return b
		}
	}
	t.Fatalf("brand %q not found in %+v", root, brands)
	return DetectedBrand{}
}

// ============================================================
// Token extraction
// ============================================================

func TestTitleToken(t *testing.T) {
	cases := []struct {
		title string
		want  string
		ok    bool
	}{
		{"Acme — Roadmap", "acme", true},
		{"  Acme Api  — Board — Chrome", "acme api", true},
		{"No separator here", "", false},
		{"Home — Feed", "", false},
		{"Unknown — x", "", false},
		{"ab — short", "", false},
		{"Acme - hyphen only", "", false},
	}
	for _, tc := range cases {
		got, ok := titleToken(tc.title)
		if got != tc.want || ok != tc.ok {
			t.Errorf("titleToken(%q) = %q,%v want %q,%v", tc.title, got, ok, tc.want, tc.ok)
		}
	}
}

func TestDomainToken(t *testing.T) {
	cases := []struct {
		url    *string
		token  string
		domain string
		ok     bool
	}{
		{strPtr("https://www.acme.io/dashboard"), "acme", "acme.io", true},
		{strPtr("https://app.ACME.co/x"), "acme", "app.acme.co", true},
		{strPtr("https://github.com/acme/api"), "", "", false},
		{strPtr("https://mail.google.com/"), "", "", false},
		{strPtr("http://localhost:3000"), "", "", false},
		{strPtr("http://127.0.0.1:8080"), "", "", false},
		{strPtr("acme.io/board"), "acme", "acme.io", true},
		{strPtr("www.globex.com"), "globex", "globex.com", true},
		{strPtr(""), "", "", false},
		{nil, "", "", false},
	}
	for _, tc := range cases {
		token, domain, ok := domainToken(tc.url)
		if token != tc.token || domain != tc.domain || ok != tc.ok {
			t.Errorf("domainToken(%v) = %q,%q,%v", tc.url, token, domain, ok)
		}
	}
}

func TestFolderToken(t *testing.T) {
	cases := []struct {
		extra *string
		want  string
		ok    bool
	}{
		{strPtr("/Users/me/src/acme-api"), "acme api", true},
		{strPtr("/Users/me/src/Acme_Web/"), "acme web", true},
		{strPtr("~"), "", false},
		{strPtr("/tmp/go"), "", false},
		{nil, "", false},
	}
	for _, tc := range cases {
		got, ok := folderToken(tc.extra)
		if got != tc.want || ok != tc.ok {
			t.Errorf("folderToken(%v) = %q,%v want %q,%v", tc.extra, got, ok, tc.want, tc.ok)
		}
	}
}

func TestFigmaToken(t *testing.T) {
	cases := []struct {
		title string
		want  string
		ok    bool
	}{
		{"Acme Landing v3", "acme", true},
		{"Home", "", false},
		{"Figma", "", false},
		{"", "", false},
		{"UI kit", "", false},
	}
	for _, tc := range cases {
		got, ok := figmaToken(tc.title)
		if got != tc.want || ok != tc.ok {
			t.Errorf("figmaToken(%q) = %q,%v want %q,%v", tc.title, got, ok, tc.want, tc.ok)
		}
	}
}

// ============================================================
// Analyze
// ============================================================

func TestAnalyzeSharedTitlePrefix(t *testing.T) {
	records := []store.RawActivity{
		raw(1, "Editor", "com.editor", "Acme — spec.md", nil, nil),
		raw(2, "Browser", "com.browser", "Acme — Board", nil, nil),
		raw(3, "Editor", "com.editor", "Zeta — notes", nil, nil),
	}

	brands := Analyze(records, nil, DefaultMinOccurrences)
	if len(brands) != 1 {
		t.Fatalf("expected only Acme, got %+v", brands)
	}
	b := brands[0]
	if b.Name != "Acme" || b.Count < 2 {
		t.Fatalf("unexpected brand: %+v", b)
	}
	if len(b.Projects) != 1 {
		t.Fatalf("expected 1 project, got %d", len(b.Projects))
	}
	p := b.Projects[0]
	if p.Key != "acme/acme" || p.Name != "Acme" {
		t.Fatalf("unexpected project: %+v", p)
	}
	if !reflect.DeepEqual(p.Apps, []string{"Browser", "Editor"}) {
		t.Fatalf("unexpected apps: %v", p.Apps)
	}
	want := []store.RuleInput{{RuleType: store.RuleWindowTitle, Pattern: "^acme", IsRegex: true}}
	if !reflect.DeepEqual(p.Rules, want) {
		t.Fatalf("unexpected rules: %+v", p.Rules)
	}
}

func TestAnalyzeGroupsByRoot(t *testing.T) {
	records := []store.RawActivity{
		raw(1, "Editor", "com.editor", "Acme — a", nil, nil),
		raw(2, "Editor", "com.editor", "Acme — b", nil, nil),
		raw(3, "Terminal", "com.term", "zsh", nil, strPtr("/src/acme-api")),
		raw(4, "Terminal", "com.term", "zsh", nil, strPtr("/src/acme-api")),
		raw(5, "Terminal", "com.term", "zsh", nil, strPtr("/src/acme-api")),
	}

	brands := Analyze(records, nil, DefaultMinOccurrences)
	b := findBrand(t, brands, "acme")
	if b.Count != 5 {
		t.Fatalf("expected brand count 5, got %d", b.Count)
	}
	if len(b.Projects) != 2 {
		t.Fatalf("expected 2 projects, got %+v", b.Projects)
	}
	// Sorted by count: the folder project (3) first.
	if b.Projects[0].Token != "acme api" || b.Projects[0].Name != "Api" {
		t.Fatalf("unexpected first project: %+v", b.Projects[0])
	}
	if b.Projects[0].Rules[0].RuleType != store.RuleTerminalFolder || b.Projects[0].Rules[0].Pattern != "/src/acme-api" {
		t.Fatalf("unexpected folder rule: %+v", b.Projects[0].Rules)
	}
	if b.Projects[1].Token != "acme" || b.Projects[1].Name != "Acme" {
		t.Fatalf("unexpected main project: %+v", b.Projects[1])
	}
}

func TestAnalyzeDomainAndFigmaRules(t *testing.T) {
	figma := "com.figma.Desktop"
	records := []store.RawActivity{
		raw(1, "Browser", "com.browser", "Dashboard", strPtr("https://www.globex.com/a"), nil),
		raw(2, "Browser", "com.browser", "Billing", strPtr("https://app.globex.com/b"), nil),
		raw(3, "Figma", figma, "Globex Landing", nil, nil),
	}

	brands := Analyze(records, nil, DefaultMinOccurrences)
	b := findBrand(t, brands, "globex")
	if b.Count != 3 {
		t.Fatalf("expected count 3, got %d", b.Count)
	}
	want := []store.RuleInput{
		{RuleType: store.RuleURLDomain, Pattern: "app.globex.com"},
		{RuleType: store.RuleURLDomain, Pattern: "globex.com"},
		{RuleType: store.RuleFigmaFile, Pattern: "Globex Landing"},
	}
	if !reflect.DeepEqual(b.Projects[0].Rules, want) {
		t.Fatalf("unexpected rules: %+v", b.Projects[0].Rules)
	}
	wantSources := []store.RuleType{store.RuleURLDomain, store.RuleFigmaFile}
	if !reflect.DeepEqual(b.Projects[0].Sources, wantSources) {
		t.Fatalf("unexpected sources: %v", b.Projects[0].Sources)
	}
}

func TestAnalyzeSkipsCoveredSignals(t *testing.T) {
	records := []store.RawActivity{
		raw(1, "Editor", "com.editor", "Acme — a", nil, nil),
		raw(2, "Editor", "com.editor", "Acme — b", nil, nil),
	}
	existing := []store.ProjectRule{{ID: 1, RuleType: store.RuleWindowTitle, Pattern: "^ACME", IsRegex: true}}
	brands := Analyze(records, existing, DefaultMinOccurrences)
	if len(brands) != 0 {
		t.Fatalf("expected covered project dropped, got %+v", brands)
	}
}

func TestAnalyzeCoverageFollowsRuleField(t *testing.T) {
	records := []store.RawActivity{
		raw(1, "Editor", "com.editor", "Acme — a", nil, nil),
		raw(2, "Editor", "com.editor", "Acme — b", nil, nil),
	}
	// A domain rule never reads window titles.
	existing := []store.ProjectRule{{ID: 1, RuleType: store.RuleURLDomain, Pattern: "acme.com"}}
	brands := Analyze(records, existing, DefaultMinOccurrences)
	b := findBrand(t, brands, "acme")
	want := []store.RuleInput{{RuleType: store.RuleWindowTitle, Pattern: "^acme", IsRegex: true}}
	if !reflect.DeepEqual(b.Projects[0].Rules, want) {
		t.Fatalf("unexpected rules: %+v", b.Projects[0].Rules)
	}
}

func TestAnalyzeSchemelessURLs(t *testing.T) {
	records := []store.RawActivity{
		raw(1, "Browser", "com.browser", "Board", strPtr("acme.io/board"), nil),
		raw(2, "Browser", "com.browser", "Docs", strPtr("acme.io/docs"), nil),
	}
	brands := Analyze(records, nil, DefaultMinOccurrences)
	b := findBrand(t, brands, "acme")
	want := []store.RuleInput{{RuleType: store.RuleURLDomain, Pattern: "acme.io"}}
	if b.Count != 2 || !reflect.DeepEqual(b.Projects[0].Rules, want) {
		t.Fatalf("unexpected suggestion: %+v", b)
	}
}

func TestAnalyzeMinOccurrences(t *testing.T) {
	records := []store.RawActivity{
		raw(1, "Editor", "com.editor", "Acme — a", nil, nil),
		raw(2, "Editor", "com.editor", "Acme — b", nil, nil),
	}
	if got := Analyze(records, nil, 3); len(got) != 0 {
		t.Fatalf("expected nothing above threshold, got %+v", got)
	}
}

func TestAnalyzeBrandOrder(t *testing.T) {
	var records []store.RawActivity
	for i := 0; i < 2; i++ {
		records = append(records, raw(int64(len(records)+1), "E", "e", "Beta — x", nil, nil))
	}
	for i := 0; i < 4; i++ {
		records = append(records, raw(int64(len(records)+1), "E", "e", "Alpha — x", nil, nil))
	}
	for i := 0; i < 2; i++ {
		records = append(records, raw(int64(len(records)+1), "E", "e", "Aardvark — x", nil, nil))
	}

	brands := Analyze(records, nil, DefaultMinOccurrences)
	var roots []string
	for _, b := range brands {
		roots = append(roots, b.Root)
	}
	want := []string{"alpha", "aardvark", "beta"}
	if !reflect.DeepEqual(roots, want) {
		t.Fatalf("brand order = %v, want %v", roots, want)
	}
}

func TestAnalyzeDeterministic(t *testing.T) {
	records := []store.RawActivity{
		raw(1, "Editor", "com.editor", "Acme — a", strPtr("https://acme.io"), strPtr("/src/acme")),
		raw(2, "Browser", "com.browser", "Acme — b", strPtr("https://docs.acme.io"), strPtr("/src/acme")),
		raw(3, "Editor", "com.editor", "Globex — a", nil, nil),
		raw(4, "Editor", "com.editor", "Globex — b", nil, nil),
	}
	first := Analyze(records, nil, DefaultMinOccurrences)
	for i := 0; i < 10; i++ {
		if got := Analyze(records, nil, DefaultMinOccurrences); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d differs:\n%+v\n%+v", i, got, first)
		}
	}
}

func TestWithoutDismissed(t *testing.T) {
	brands := []DetectedBrand{
		{Root: "acme", Count: 5, Projects: []DetectedProject{
			{Key: "acme/acme", Count: 2},
			{Key: "acme/acme api", Count: 3},
		}},
		{Root: "beta", Count: 4, Projects: []DetectedProject{{Key: "beta/beta", Count: 4}}},
	}

	got := WithoutDismissed(brands, map[string]bool{"acme/acme api": true})
	if len(got) != 2 {
		t.Fatalf("expected 2 brands, got %d", len(got))
	}
	// acme drops to 2 and now ranks below beta.
	if got[0].Root != "beta" || got[1].Root != "acme" || got[1].Count != 2 {
		t.Fatalf("unexpected result: %+v", got)
	}

	got = WithoutDismissed(brands, map[string]bool{"beta/beta": true})
	if len(got) != 1 || got[0].Root != "acme" {
		t.Fatalf("expected empty brand removed, got %+v", got)
	}
}

func TestFind(t *testing.T) {
	brands := []DetectedBrand{{Root: "acme", Projects: []DetectedProject{{Key: "acme/acme"}}}}
	if _, p, ok := Find(brands, "acme/acme"); !ok || p.Key != "acme/acme" {
		t.Fatal("expected suggestion found")
	}
	if _, _, ok := Find(brands, "acme/other"); ok {
		t.Fatal("expected missing suggestion")
	}
}

// ============================================================
// Detector against the store
// ============================================================

func TestDetectFromStore(t *testing.T) {
	s, err := store.NewMemory()
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	ts := time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)
	for _, title := range []string{"Acme — a", "Acme — b", "Initech — c"} {
		if _, err := s.InsertActivity(store.ActivityRecord{
			Timestamp: ts, AppName: "Editor", BundleID: "com.editor", WindowTitle: title, DurationSeconds: 60,
		}, nil, nil); err != nil {
			t.Fatal(err)
		}
	}

	d := New(s, Config{}, zerolog.Nop())
	brands, err := d.Detect()
	if err != nil {
		t.Fatal(err)
	}
	if len(brands) != 1 || brands[0].Root != "acme" {
		t.Fatalf("unexpected detection: %+v", brands)
	}

	// Once a rule covers the signal, the suggestion disappears.
	b, err := s.CreateBrand("Acme", "#111111")
	if err != nil {
		t.Fatal(err)
	}
	p, err := s.CreateProject(b.ID, "Acme", "#111111")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateRule(p.ID, store.RuleInput{RuleType: store.RuleWindowTitle, Pattern: "acme"}); err != nil {
		t.Fatal(err)
	}
	brands, err = d.Detect()
	if err != nil {
		t.Fatal(err)
	}
	if len(brands) != 0 {
		t.Fatalf("expected no suggestions, got %+v", brands)
	}
}
