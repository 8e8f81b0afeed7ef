package export

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/sadopc/autotrackr/internal/store"
)

type jsonExport struct {
	ExportedAt   string      `json:"exported_at"`
	Count        int         `json:"count"`
	TotalSeconds int64       `json:"total_seconds"`
	Entries      []jsonEntry `json:"entries"`
}

type jsonEntry struct {
	ID            int64   `json:"id"`
	Timestamp     string  `json:"timestamp"`
	Date          string  `json:"date"`
	AppName       string  `json:"app_name"`
	BundleID      string  `json:"bundle_id"`
	WindowTitle   string  `json:"window_title"`
	URL           *string `json:"url,omitempty"`
	ExtraInfo     *string `json:"extra_info,omitempty"`
	DurationSec   int64   `json:"duration_seconds"`
	Duration      string  `json:"duration"`
	Brand         string  `json:"brand,omitempty"`
	Project       string  `json:"project"`
	ProjectID     *int64  `json:"project_id,omitempty"`
	ProjectSource string  `json:"project_source,omitempty"`
}

func ToJSON(records []store.ActivityRecord, labels map[int64]ProjectLabel, path string) error {
	export := jsonExport{
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Count:      len(records),
	}

	for _, rec := range records {
		label := labelFor(rec, labels)
		source := ""
		if rec.ProjectSource != nil {
			source = string(*rec.ProjectSource)
		}

		export.TotalSeconds += rec.DurationSeconds
		export.Entries = append(export.Entries, jsonEntry{
			ID:            rec.ID,
			Timestamp:     rec.Timestamp.Local().Format(time.RFC3339),
			Date:          rec.Date,
			AppName:       rec.AppName,
			BundleID:      rec.BundleID,
			WindowTitle:   rec.WindowTitle,
			URL:           rec.URL,
			ExtraInfo:     rec.ExtraInfo,
			DurationSec:   rec.DurationSeconds,
			Duration:      formatDuration(rec.DurationSeconds),
			Brand:         label.Brand,
			Project:       label.Project,
			ProjectID:     rec.ProjectID,
			ProjectSource: source,
		})
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write json file: %w", err)
	}
	return nil
}
