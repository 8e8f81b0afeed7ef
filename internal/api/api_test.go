package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sadopc/autotrackr/internal/clock"
	"github.com/sadopc/autotrackr/internal/detector"
	"github.com/sadopc/autotrackr/internal/matcher"
	"github.com/sadopc/autotrackr/internal/merger"
	"github.com/sadopc/autotrackr/internal/store"
)

var testTime = time.Date(2026, 3, 10, 9, 0, 0, 0, time.Local)

type fixture struct {
	store  *store.Store
	clock  *clock.Fixed
	router *Router
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.NewMemory()
	if err != nil {
		t.Fatalf("new memory store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	c := clock.NewFixed(testTime)
	s.SetClock(c)
	m, err := matcher.New(s, matcher.Config{Clock: c}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	s.OnTaxonomyChange(m.Invalidate)

	svc := NewService(Options{
		Store:    s,
		Matcher:  m,
		Detector: detector.New(s, detector.Config{}, zerolog.Nop()),
		Pool:     merger.NewPool(s, m, merger.Config{Clock: c}, zerolog.Nop()),
		Clock:    c,
	}, zerolog.Nop())
	return &fixture{store: s, clock: c, router: NewRouter(svc, zerolog.Nop())}
}

func (f *fixture) do(t *testing.T, method, target string, body any) Response {
	t.Helper()
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
	}
	return f.router.Dispatch(method, target, raw)
}

func (f *fixture) insert(t *testing.T, app, title string, seconds int64) int64 {
	t.Helper()
	id, err := f.store.InsertActivity(store.ActivityRecord{
		Timestamp: testTime, AppName: app, BundleID: "com." + strings.ToLower(app),
		WindowTitle: title, DurationSeconds: seconds,
	}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func expectStatus(t *testing.T, resp Response, want int) {
	t.Helper()
	if resp.Status != want {
		t.Fatalf("status = %d, want %d (body %+v)", resp.Status, want, resp.Body)
	}
}

func expectKind(t *testing.T, resp Response, kind string) {
	t.Helper()
	p, ok := resp.Body.(ErrorPayload)
	if !ok {
		t.Fatalf("expected ErrorPayload, got %T %+v", resp.Body, resp.Body)
	}
	if p.Kind != kind {
		t.Fatalf("kind = %q, want %q (%s)", p.Kind, kind, p.Message)
	}
}

// ============================================================
// Routing
// ============================================================

func TestDispatchUnknownRoute(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/api/nope", nil)
	expectStatus(t, resp, http.StatusNotFound)
	expectKind(t, resp, KindNotFound)
}

func TestDispatchMethodNotAllowed(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodPatch, "/api/brands", nil)
	expectStatus(t, resp, http.StatusMethodNotAllowed)
	expectKind(t, resp, KindMethodNotAllowed)
}

func TestDispatchMissingBody(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodPost, "/api/brands", nil)
	expectStatus(t, resp, http.StatusBadRequest)
	expectKind(t, resp, KindInvalidRequest)
}

// ============================================================
// Taxonomy
// ============================================================

func TestBrandLifecycle(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/api/brands", BrandInput{Name: "Acme", Color: "#ff0000"})
	expectStatus(t, resp, http.StatusCreated)
	brand := resp.Body.(*store.Brand)

	resp = f.do(t, http.MethodPost, "/api/brands", BrandInput{Name: "Acme"})
	expectStatus(t, resp, http.StatusConflict)
	expectKind(t, resp, KindConstraintViolation)

	resp = f.do(t, http.MethodPut, fmt.Sprintf("/api/brands/%d", brand.ID), BrandInput{Name: "Acme Corp"})
	expectStatus(t, resp, http.StatusOK)
	if got := resp.Body.(*store.Brand); got.Name != "Acme Corp" || got.Color != defaultColor {
		t.Fatalf("unexpected updated brand: %+v", got)
	}

	resp = f.do(t, http.MethodGet, "/api/brands", nil)
	expectStatus(t, resp, http.StatusOK)
	if brands := resp.Body.([]store.Brand); len(brands) != 1 {
		t.Fatalf("expected 1 brand, got %d", len(brands))
	}

	resp = f.do(t, http.MethodDelete, fmt.Sprintf("/api/brands/%d", brand.ID), nil)
	expectStatus(t, resp, http.StatusNoContent)

	resp = f.do(t, http.MethodDelete, fmt.Sprintf("/api/brands/%d", brand.ID), nil)
	expectStatus(t, resp, http.StatusNotFound)
	expectKind(t, resp, KindNotFound)
}

func TestProjectAndRuleRoutes(t *testing.T) {
	f := newFixture(t)
	brand := f.do(t, http.MethodPost, "/api/brands", BrandInput{Name: "Acme"}).Body.(*store.Brand)

	resp := f.do(t, http.MethodPost, "/api/projects", ProjectInput{BrandID: brand.ID, Name: "API"})
	expectStatus(t, resp, http.StatusCreated)
	project := resp.Body.(*store.Project)

	resp = f.do(t, http.MethodPost, "/api/projects", ProjectInput{BrandID: brand.ID, Name: "API"})
	expectStatus(t, resp, http.StatusConflict)

	resp = f.do(t, http.MethodGet, fmt.Sprintf("/api/projects?brand_id=%d", brand.ID), nil)
	expectStatus(t, resp, http.StatusOK)
	if ps := resp.Body.([]store.Project); len(ps) != 1 || ps[0].ID != project.ID {
		t.Fatalf("unexpected projects: %+v", ps)
	}

	rulesPath := fmt.Sprintf("/api/projects/%d/rules", project.ID)
	resp = f.do(t, http.MethodPost, rulesPath, store.RuleInput{RuleType: store.RuleWindowTitle, Pattern: "acme"})
	expectStatus(t, resp, http.StatusCreated)
	rule := resp.Body.(*store.ProjectRule)

	resp = f.do(t, http.MethodPost, rulesPath, store.RuleInput{RuleType: store.RuleWindowTitle, Pattern: "acme(", IsRegex: true})
	expectStatus(t, resp, http.StatusUnprocessableEntity)
	expectKind(t, resp, KindInvalidPattern)

	resp = f.do(t, http.MethodPost, rulesPath, store.RuleInput{RuleType: "clipboard", Pattern: "x"})
	expectStatus(t, resp, http.StatusBadRequest)

	resp = f.do(t, http.MethodPut, fmt.Sprintf("/api/rules/%d", rule.ID), store.RuleInput{RuleType: store.RuleBundleID, Pattern: "com.acme", Priority: 3})
	expectStatus(t, resp, http.StatusOK)
	if got := resp.Body.(*store.ProjectRule); got.RuleType != store.RuleBundleID || got.Priority != 3 {
		t.Fatalf("unexpected updated rule: %+v", got)
	}

	resp = f.do(t, http.MethodGet, rulesPath, nil)
	expectStatus(t, resp, http.StatusOK)
	if rules := resp.Body.([]store.ProjectRule); len(rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(rules))
	}

	resp = f.do(t, http.MethodGet, "/api/projects/999/rules", nil)
	expectStatus(t, resp, http.StatusNotFound)

	resp = f.do(t, http.MethodDelete, fmt.Sprintf("/api/rules/%d", rule.ID), nil)
	expectStatus(t, resp, http.StatusNoContent)
}

func TestValidateAndInvalidRules(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/api/rules/validate", PatternInput{Pattern: "^acme", IsRegex: true})
	expectStatus(t, resp, http.StatusOK)
	if v := resp.Body.(PatternValidation); !v.Valid {
		t.Fatalf("expected valid pattern: %+v", v)
	}

	resp = f.do(t, http.MethodPost, "/api/rules/validate", PatternInput{Pattern: "[", IsRegex: true})
	if v := resp.Body.(PatternValidation); v.Valid || v.Error == "" {
		t.Fatalf("expected invalid pattern: %+v", v)
	}

	// Stored directly, bypassing boundary validation.
	b, _ := f.store.CreateBrand("Acme", "#111111")
	p, _ := f.store.CreateProject(b.ID, "Acme", "#111111")
	if _, err := f.store.CreateRule(p.ID, store.RuleInput{RuleType: store.RuleWindowTitle, Pattern: "[", IsRegex: true}); err != nil {
		t.Fatal(err)
	}

	resp = f.do(t, http.MethodGet, "/api/rules/invalid", nil)
	expectStatus(t, resp, http.StatusOK)
	if invalid := resp.Body.([]matcher.InvalidRule); len(invalid) != 1 {
		t.Fatalf("expected 1 invalid rule, got %+v", invalid)
	}
}

// ============================================================
// Classification
// ============================================================

func TestAssignAndUnassign(t *testing.T) {
	f := newFixture(t)
	b, _ := f.store.CreateBrand("Acme", "#111111")
	p, _ := f.store.CreateProject(b.ID, "Acme", "#111111")
	a := f.insert(t, "Editor", "one", 60)
	c := f.insert(t, "Editor", "two", 60)

	resp := f.do(t, http.MethodPost, "/api/activities/assign", AssignInput{ActivityIDs: []int64{a, c}, ProjectID: &p.ID})
	expectStatus(t, resp, http.StatusOK)
	if r := resp.Body.(*AssignResult); r.Updated != 2 {
		t.Fatalf("expected 2 updated, got %d", r.Updated)
	}
	rec, _ := f.store.GetActivity(a)
	if rec.ProjectSource == nil || *rec.ProjectSource != store.SourceManual {
		t.Fatalf("expected manual source, got %v", rec.ProjectSource)
	}

	resp = f.do(t, http.MethodPost, "/api/activities/assign", AssignInput{ActivityIDs: []int64{a}})
	expectStatus(t, resp, http.StatusOK)
	rec, _ = f.store.GetActivity(a)
	if rec.ProjectID != nil || rec.ProjectSource != nil {
		t.Fatalf("expected cleared assignment, got %+v", rec)
	}

	missing := int64(999)
	resp = f.do(t, http.MethodPost, "/api/activities/assign", AssignInput{ActivityIDs: []int64{a}, ProjectID: &missing})
	expectStatus(t, resp, http.StatusNotFound)

	resp = f.do(t, http.MethodPost, "/api/activities/assign", AssignInput{})
	expectStatus(t, resp, http.StatusBadRequest)
}

func TestGetActivityRoute(t *testing.T) {
	f := newFixture(t)
	id := f.insert(t, "Editor", "main.go", 42)

	resp := f.do(t, http.MethodGet, fmt.Sprintf("/api/activities/%d", id), nil)
	expectStatus(t, resp, http.StatusOK)
	if rec := resp.Body.(*store.ActivityRecord); rec.AppName != "Editor" || rec.DurationSeconds != 42 {
		t.Fatalf("unexpected record: %+v", rec)
	}

	resp = f.do(t, http.MethodGet, "/api/activities/999", nil)
	expectStatus(t, resp, http.StatusNotFound)
	expectKind(t, resp, KindNotFound)
}

func TestAutoAssignRoute(t *testing.T) {
	f := newFixture(t)
	b, _ := f.store.CreateBrand("Acme", "#111111")
	p, _ := f.store.CreateProject(b.ID, "Acme", "#111111")
	f.store.CreateRule(p.ID, store.RuleInput{RuleType: store.RuleWindowTitle, Pattern: "acme"})
	f.insert(t, "Editor", "Acme notes", 60)

	resp := f.do(t, http.MethodPost, "/api/activities/auto-assign", nil)
	expectStatus(t, resp, http.StatusOK)
	if r := resp.Body.(*AutoAssignResult); r.Assigned != 1 {
		t.Fatalf("expected 1 assigned, got %d", r.Assigned)
	}

	resp = f.do(t, http.MethodPost, "/api/activities/auto-assign", nil)
	if r := resp.Body.(*AutoAssignResult); r.Assigned != 0 {
		t.Fatalf("expected 0 on second run, got %d", r.Assigned)
	}

	resp = f.do(t, http.MethodPost, "/api/activities/auto-assign?date=10-03-2026", nil)
	expectStatus(t, resp, http.StatusBadRequest)
}

// ============================================================
// Ingestion
// ============================================================

func TestHeartbeatIngestion(t *testing.T) {
	f := newFixture(t)
	hb := merger.Heartbeat{AppName: "Editor", BundleID: "com.editor", WindowTitle: "main.go"}

	for i := 0; i < 3; i++ {
		resp := f.do(t, http.MethodPost, "/api/heartbeats", HeartbeatInput{Heartbeat: hb, IntervalSeconds: 2})
		expectStatus(t, resp, http.StatusAccepted)
		res := resp.Body.(*HeartbeatResult)
		if res.Session != merger.SessionForeground || res.Current == nil {
			t.Fatalf("unexpected result: %+v", res)
		}
		f.clock.Advance(2 * time.Second)
	}

	// Switching apps closes the first record with its full duration.
	other := merger.Heartbeat{AppName: "Mail", BundleID: "com.mail", WindowTitle: "Inbox"}
	f.do(t, http.MethodPost, "/api/heartbeats", HeartbeatInput{Heartbeat: other})

	resp := f.do(t, http.MethodGet, "/api/reports/day?date=2026-03-10", nil)
	expectStatus(t, resp, http.StatusOK)
	day := resp.Body.(*store.DaySummary)
	if day.TotalSeconds != 8 {
		t.Fatalf("expected 6s editor + 2s default mail, got %d", day.TotalSeconds)
	}

	resp = f.do(t, http.MethodPost, "/api/heartbeats", HeartbeatInput{})
	expectStatus(t, resp, http.StatusBadRequest)
}

// ============================================================
// Reports
// ============================================================

func TestReportRoutes(t *testing.T) {
	f := newFixture(t)
	f.insert(t, "Editor", "main.go", 120)
	f.insert(t, "Browser", "Docs", 60)

	resp := f.do(t, http.MethodGet, "/api/reports/day", nil)
	expectStatus(t, resp, http.StatusOK)
	if day := resp.Body.(*store.DaySummary); day.Date != "2026-03-10" || day.TotalSeconds != 180 {
		t.Fatalf("unexpected day: %+v", day)
	}

	resp = f.do(t, http.MethodGet, "/api/reports/day?date=2026-02-30", nil)
	expectStatus(t, resp, http.StatusBadRequest)

	resp = f.do(t, http.MethodGet, "/api/reports/week", nil)
	expectStatus(t, resp, http.StatusOK)
	if days := resp.Body.([]store.DaySummary); len(days) != 1 {
		t.Fatalf("expected 1 tracked day this week, got %d", len(days))
	}

	resp = f.do(t, http.MethodGet, "/api/reports/month?month=2026-03", nil)
	expectStatus(t, resp, http.StatusOK)
	if days := resp.Body.([]store.DaySummary); len(days) != 1 {
		t.Fatalf("expected 1 tracked day this month, got %d", len(days))
	}

	resp = f.do(t, http.MethodGet, "/api/reports/month?month=March", nil)
	expectStatus(t, resp, http.StatusBadRequest)

	resp = f.do(t, http.MethodGet, "/api/reports/range?from=2026-03-01&to=2026-03-31", nil)
	expectStatus(t, resp, http.StatusOK)

	resp = f.do(t, http.MethodGet, "/api/reports/range?from=2026-03-31&to=2026-03-01", nil)
	expectStatus(t, resp, http.StatusBadRequest)

	resp = f.do(t, http.MethodGet, "/api/reports/app?name=edit", nil)
	expectStatus(t, resp, http.StatusOK)
	if app := resp.Body.(*store.AppDetailReport); app.TotalSeconds != 120 {
		t.Fatalf("unexpected app report: %+v", app)
	}

	resp = f.do(t, http.MethodGet, "/api/reports/app", nil)
	expectStatus(t, resp, http.StatusBadRequest)

	resp = f.do(t, http.MethodGet, "/api/reports/brands", nil)
	expectStatus(t, resp, http.StatusOK)

	resp = f.do(t, http.MethodGet, "/api/reports/unassigned", nil)
	expectStatus(t, resp, http.StatusOK)
	if recs := resp.Body.([]store.ActivityRecord); len(recs) != 2 || recs[0].AppName != "Editor" {
		t.Fatalf("unexpected unassigned: %+v", recs)
	}

	resp = f.do(t, http.MethodGet, "/api/reports/timeline", nil)
	expectStatus(t, resp, http.StatusOK)
	if tl := resp.Body.([]store.TimelineEntry); len(tl) != 2 {
		t.Fatalf("unexpected timeline: %+v", tl)
	}

	resp = f.do(t, http.MethodGet, "/api/reports/today", nil)
	expectStatus(t, resp, http.StatusOK)
	today := resp.Body.(*TodayReport)
	if today.TotalSeconds != 180 || today.DailyGoal != 28800 || len(today.TopApps) != 2 {
		t.Fatalf("unexpected today report: %+v", today)
	}
}

// ============================================================
// Suggestions
// ============================================================

func TestSuggestionAcceptRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.insert(t, "Editor", "Acme — spec", 60)
	f.insert(t, "Browser", "Acme — board", 60)
	f.insert(t, "Editor", "Unrelated", 60)

	resp := f.do(t, http.MethodGet, "/api/suggestions", nil)
	expectStatus(t, resp, http.StatusOK)
	brands := resp.Body.([]detector.DetectedBrand)
	if len(brands) != 1 || len(brands[0].Projects) != 1 {
		t.Fatalf("unexpected suggestions: %+v", brands)
	}
	suggestion := brands[0].Projects[0]

	resp = f.do(t, http.MethodPost, "/api/suggestions/accept", AcceptInput{Key: suggestion.Key})
	expectStatus(t, resp, http.StatusCreated)
	accepted := resp.Body.(*AcceptResult)
	if len(accepted.Rules) != len(suggestion.Rules) {
		t.Fatalf("expected %d rules, got %d", len(suggestion.Rules), len(accepted.Rules))
	}
	for _, r := range accepted.Rules {
		if r.ProjectID != accepted.Project.ID {
			t.Fatalf("rule %d references project %d", r.ID, r.ProjectID)
		}
	}
	if accepted.Assigned != 2 {
		t.Fatalf("expected both Acme records assigned, got %d", accepted.Assigned)
	}

	resp = f.do(t, http.MethodGet, "/api/suggestions", nil)
	if brands := resp.Body.([]detector.DetectedBrand); len(brands) != 0 {
		t.Fatalf("expected no suggestions after accept, got %+v", brands)
	}

	resp = f.do(t, http.MethodPost, "/api/suggestions/accept", AcceptInput{Key: suggestion.Key})
	expectStatus(t, resp, http.StatusNotFound)
}

func TestSuggestionDismiss(t *testing.T) {
	f := newFixture(t)
	f.insert(t, "Editor", "Acme — spec", 60)
	f.insert(t, "Editor", "Acme — board", 60)

	resp := f.do(t, http.MethodPost, "/api/suggestions/dismiss", DismissInput{Key: "acme/acme"})
	expectStatus(t, resp, http.StatusNoContent)

	resp = f.do(t, http.MethodGet, "/api/suggestions", nil)
	if brands := resp.Body.([]detector.DetectedBrand); len(brands) != 0 {
		t.Fatalf("expected dismissed suggestion hidden, got %+v", brands)
	}

	resp = f.do(t, http.MethodPost, "/api/suggestions/dismiss", DismissInput{})
	expectStatus(t, resp, http.StatusBadRequest)
}

// ============================================================
// Settings
// ============================================================

func TestSettingsRoutes(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/api/settings", nil)
	expectStatus(t, resp, http.StatusOK)
	settings := resp.Body.(map[string]string)
	if settings["daily_goal"] != "28800" || settings["week_start"] != "monday" {
		t.Fatalf("unexpected defaults: %v", settings)
	}

	resp = f.do(t, http.MethodPut, "/api/settings/daily_goal", SettingInput{Value: "3600"})
	expectStatus(t, resp, http.StatusOK)
	if got := resp.Body.(map[string]string)["daily_goal"]; got != "3600" {
		t.Fatalf("daily_goal = %q, want 3600", got)
	}

	resp = f.do(t, http.MethodGet, "/api/reports/today", nil)
	if goal := resp.Body.(*TodayReport).DailyGoal; goal != 3600 {
		t.Fatalf("today daily_goal = %d, want 3600", goal)
	}

	resp = f.do(t, http.MethodPut, "/api/settings/week_start", SettingInput{Value: "Sunday"})
	expectStatus(t, resp, http.StatusOK)

	resp = f.do(t, http.MethodPut, "/api/settings/daily_goal", SettingInput{Value: "-5"})
	expectStatus(t, resp, http.StatusBadRequest)
	expectKind(t, resp, KindInvalidRequest)

	resp = f.do(t, http.MethodPut, "/api/settings/theme", SettingInput{Value: "dark"})
	expectStatus(t, resp, http.StatusNotFound)
}

// ============================================================
// HTTP adapter
// ============================================================

func TestHTTPHandler(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.router.Handler())
	defer srv.Close()

	res, err := http.Post(srv.URL+"/api/brands", "application/json", strings.NewReader(`{"name":"Acme"}`))
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", res.StatusCode)
	}

	res, err = http.Get(srv.URL + "/api/brands")
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	if ct := res.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type = %q", ct)
	}
	var brands []store.Brand
	if err := json.NewDecoder(res.Body).Decode(&brands); err != nil {
		t.Fatal(err)
	}
	if len(brands) != 1 || brands[0].Name != "Acme" {
		t.Fatalf("unexpected brands: %+v", brands)
	}

	res, err = http.Get(srv.URL + "/api/unknown")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(res.Body)
	res.Body.Close()
	if res.StatusCode != http.StatusNotFound || !strings.Contains(string(body), KindNotFound) {
		t.Fatalf("unexpected 404 response: %d %s", res.StatusCode, body)
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/brands/1", nil)
	res, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", res.StatusCode)
	}
}

func TestMountedHandlerNotDispatched(t *testing.T) {
	f := newFixture(t)
	f.router.Mount("/metrics", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	f.router.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("mounted handler status = %d", rec.Code)
	}

	resp := f.do(t, http.MethodGet, "/metrics", nil)
	expectStatus(t, resp, http.StatusNotFound)
}
