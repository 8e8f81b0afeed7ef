package export

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sadopc/autotrackr/internal/store"
)

func strPtr(s string) *string { return &s }

func sampleData() ([]store.ActivityRecord, map[int64]ProjectLabel) {
	now := time.Now().UTC()
	pid := int64(1)
	source := store.SourceAutoRule

	records := []store.ActivityRecord{
		{
			ID:              1,
			Timestamp:       now.Add(-1 * time.Hour),
			AppName:         "Google Chrome",
			BundleID:        "com.google.Chrome",
			WindowTitle:     "Pull request #42",
			URL:             strPtr("https://github.com/acme/web/pull/42"),
			DurationSeconds: 3600,
			Date:            now.Format("2006-01-02"),
			ProjectID:       &pid,
			ProjectSource:   &source,
		},
		{
			ID:              2,
			Timestamp:       now.Add(-30 * time.Minute),
			AppName:         "Terminal",
			BundleID:        "com.apple.Terminal",
			WindowTitle:     "zsh",
			ExtraInfo:       strPtr("~/code/acme"),
			DurationSeconds: 1800,
			Date:            now.Format("2006-01-02"),
		},
	}

	labels := Labels(
		[]store.Brand{{ID: 7, Name: "Acme"}},
		[]store.Project{{ID: 1, BrandID: 7, Name: "Website"}},
	)
	return records, labels
}

// ============================================================
// Labels
// ============================================================

func TestLabels(t *testing.T) {
	labels := Labels(
		[]store.Brand{{ID: 1, Name: "Acme"}, {ID: 2, Name: "Globex"}},
		[]store.Project{{ID: 10, BrandID: 1, Name: "Web"}, {ID: 11, BrandID: 2, Name: "Ops"}},
	)
	if labels[10] != (ProjectLabel{Brand: "Acme", Project: "Web"}) {
		t.Fatalf("labels[10] = %+v", labels[10])
	}
	if labels[11] != (ProjectLabel{Brand: "Globex", Project: "Ops"}) {
		t.Fatalf("labels[11] = %+v", labels[11])
	}
}

// ============================================================
// CSV
// ============================================================

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	return records
}

func TestToCSV(t *testing.T) {
	records, labels := sampleData()
	path := filepath.Join(t.TempDir(), "test.csv")

	if err := ToCSV(records, labels, path); err != nil {
		t.Fatalf("ToCSV: %v", err)
	}

	rows := readCSV(t, path)
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows (1 header + 2 data), got %d", len(rows))
	}

	if rows[0][0] != "ID" || rows[0][11] != "Project" {
		t.Fatalf("unexpected header: %v", rows[0])
	}

	first := rows[1]
	if first[3] != "Google Chrome" {
		t.Fatalf("App = %q", first[3])
	}
	if first[6] != "https://github.com/acme/web/pull/42" {
		t.Fatalf("URL = %q", first[6])
	}
	if first[8] != "3600" || first[9] != "01:00:00" {
		t.Fatalf("duration = %q / %q", first[8], first[9])
	}
	if first[10] != "Acme" || first[11] != "Website" || first[12] != "auto_rule" {
		t.Fatalf("classification = %v", first[10:])
	}

	second := rows[2]
	if second[7] != "~/code/acme" {
		t.Fatalf("Extra Info = %q", second[7])
	}
	if second[10] != "" || second[11] != "Unassigned" || second[12] != "" {
		t.Fatalf("unassigned row classification = %v", second[10:])
	}
}

func TestToCSVEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	if err := ToCSV(nil, nil, path); err != nil {
		t.Fatal(err)
	}
	if rows := readCSV(t, path); len(rows) != 1 {
		t.Fatalf("expected header only, got %d rows", len(rows))
	}
}

func TestToCSVUnknownProject(t *testing.T) {
	pid := int64(999)
	records := []store.ActivityRecord{
		{ID: 1, AppName: "Xcode", Timestamp: time.Now(), DurationSeconds: 60, ProjectID: &pid},
	}
	path := filepath.Join(t.TempDir(), "unknown.csv")

	if err := ToCSV(records, map[int64]ProjectLabel{}, path); err != nil {
		t.Fatal(err)
	}
	rows := readCSV(t, path)
	if rows[1][11] != "Unknown" {
		t.Fatalf("expected 'Unknown' for missing project, got %q", rows[1][11])
	}
}

func TestToCSVBadPath(t *testing.T) {
	if err := ToCSV(nil, nil, "/nonexistent/dir/file.csv"); err == nil {
		t.Fatal("expected error for bad path")
	}
}

func TestToCSVSpecialCharacters(t *testing.T) {
	records := []store.ActivityRecord{
		{
			ID:              1,
			Timestamp:       time.Now(),
			AppName:         "Safari",
			WindowTitle:     `title with "quotes" and, commas`,
			DurationSeconds: 60,
		},
	}
	path := filepath.Join(t.TempDir(), "special.csv")

	if err := ToCSV(records, nil, path); err != nil {
		t.Fatal(err)
	}
	rows := readCSV(t, path)
	if rows[1][5] != `title with "quotes" and, commas` {
		t.Fatalf("window title mangled: %q", rows[1][5])
	}
}

// ============================================================
// JSON
// ============================================================

func readJSON(t *testing.T, path string) jsonExport {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var result jsonExport
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	return result
}

func TestToJSON(t *testing.T) {
	records, labels := sampleData()
	path := filepath.Join(t.TempDir(), "test.json")

	if err := ToJSON(records, labels, path); err != nil {
		t.Fatalf("ToJSON: %v", err)
	}

	result := readJSON(t, path)
	if result.Count != 2 || len(result.Entries) != 2 {
		t.Fatalf("count = %d, entries = %d, want 2", result.Count, len(result.Entries))
	}
	if result.TotalSeconds != 5400 {
		t.Fatalf("total_seconds = %d, want 5400", result.TotalSeconds)
	}
	if _, err := time.Parse(time.RFC3339, result.ExportedAt); err != nil {
		t.Fatalf("exported_at is not valid RFC3339: %q", result.ExportedAt)
	}

	e := result.Entries[0]
	if e.Brand != "Acme" || e.Project != "Website" {
		t.Fatalf("classification = %q/%q", e.Brand, e.Project)
	}
	if e.ProjectID == nil || *e.ProjectID != 1 {
		t.Fatalf("project_id = %v", e.ProjectID)
	}
	if e.Duration != "01:00:00" {
		t.Fatalf("Duration = %q", e.Duration)
	}
	if _, err := time.Parse(time.RFC3339, e.Timestamp); err != nil {
		t.Fatalf("timestamp is not valid RFC3339: %q", e.Timestamp)
	}

	u := result.Entries[1]
	if u.Project != "Unassigned" || u.ProjectID != nil || u.ProjectSource != "" {
		t.Fatalf("unassigned entry = %+v", u)
	}
	if u.ExtraInfo == nil || *u.ExtraInfo != "~/code/acme" {
		t.Fatalf("extra_info = %v", u.ExtraInfo)
	}
}

func TestToJSONEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	if err := ToJSON(nil, nil, path); err != nil {
		t.Fatal(err)
	}

	result := readJSON(t, path)
	if result.Count != 0 {
		t.Fatalf("count = %d, want 0", result.Count)
	}
	if result.Entries != nil {
		t.Fatal("entries should be nil/null for empty export")
	}
}

func TestToJSONBadPath(t *testing.T) {
	if err := ToJSON(nil, nil, "/nonexistent/dir/file.json"); err == nil {
		t.Fatal("expected error for bad path")
	}
}

func TestToJSONPrettyPrinted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pretty.json")
	if err := ToJSON(nil, nil, path); err != nil {
		t.Fatal(err)
	}

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "\n  ") {
		t.Fatal("JSON should be indented")
	}
}

// ============================================================
// formatDuration (internal helper)
// ============================================================

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		secs int64
		want string
	}{
		{0, "00:00:00"},
		{1, "00:00:01"},
		{60, "00:01:00"},
		{3600, "01:00:00"},
		{3661, "01:01:01"},
		{90061, "25:01:01"},
	}

	for _, tt := range tests {
		if got := formatDuration(tt.secs); got != tt.want {
			t.Errorf("formatDuration(%d) = %q, want %q", tt.secs, got, tt.want)
		}
	}
}
