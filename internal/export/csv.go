package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"time"

	"github.com/sadopc/autotrackr/internal/store"
)

const (
	unassignedLabel = "Unassigned"
	unknownLabel    = "Unknown"
)

// ProjectLabel is the display name of a project and its brand.
type ProjectLabel struct {
	Brand   string
	Project string
}

// Labels indexes projects by id for export.
func Labels(brands []store.Brand, projects []store.Project) map[int64]ProjectLabel {
	brandNames := make(map[int64]string, len(brands))
	for _, b := range brands {
		brandNames[b.ID] = b.Name
	}
	labels := make(map[int64]ProjectLabel, len(projects))
	for _, p := range projects {
		labels[p.ID] = ProjectLabel{Brand: brandNames[p.BrandID], Project: p.Name}
	}
	return labels
}

func labelFor(rec store.ActivityRecord, labels map[int64]ProjectLabel) ProjectLabel {
	if rec.ProjectID == nil {
		return ProjectLabel{Project: unassignedLabel}
	}
	if l, ok := labels[*rec.ProjectID]; ok {
		return l
	}
	return ProjectLabel{Project: unknownLabel}
}

func ToCSV(records []store.ActivityRecord, labels map[int64]ProjectLabel, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)

	// Header
	if err := w.Write([]string{
		"ID", "Timestamp", "Date", "App", "Bundle ID", "Window Title", "URL", "Extra Info",
		"Duration (s)", "Duration", "Brand", "Project", "Source",
	}); err != nil {
		return err
	}

	for _, rec := range records {
		label := labelFor(rec, labels)
		source := ""
		if rec.ProjectSource != nil {
			source = string(*rec.ProjectSource)
		}

		row := []string{
			fmt.Sprintf("%d", rec.ID),
			rec.Timestamp.Local().Format(time.RFC3339),
			rec.Date,
			rec.AppName,
			rec.BundleID,
			rec.WindowTitle,
			deref(rec.URL),
			deref(rec.ExtraInfo),
			fmt.Sprintf("%d", rec.DurationSeconds),
			formatDuration(rec.DurationSeconds),
			label.Brand,
			label.Project,
			source,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatDuration(secs int64) string {
	h := secs / 3600
	m := (secs % 3600) / 60
	s := secs % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
