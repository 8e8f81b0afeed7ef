package store

import "time"

// ProjectSource records how an activity got its project.
type ProjectSource string

const (
	SourceManual   ProjectSource = "manual"
	SourceAutoRule ProjectSource = "auto_rule"
)

// RuleType selects which activity field a rule pattern is matched against.
type RuleType string

const (
	RuleWindowTitle    RuleType = "window_title"
	RuleURLDomain      RuleType = "url_domain"
	RuleURLPath        RuleType = "url_path"
	RulePageTitle      RuleType = "page_title"
	RuleFigmaFile      RuleType = "figma_file"
	RuleBundleID       RuleType = "bundle_id"
	RuleTerminalFolder RuleType = "terminal_folder"
)

// RuleTypes lists every supported rule type.
var RuleTypes = []RuleType{
	RuleWindowTitle,
	RuleURLDomain,
	RuleURLPath,
	RulePageTitle,
	RuleFigmaFile,
	RuleBundleID,
	RuleTerminalFolder,
}

// Valid reports whether t is one of RuleTypes.
func (t RuleType) Valid() bool {
	for _, rt := range RuleTypes {
		if rt == t {
			return true
		}
	}
	return false
}

type ActivityRecord struct {
	ID              int64          `json:"id"`
	Timestamp       time.Time      `json:"timestamp"`
	AppName         string         `json:"app_name"`
	BundleID        string         `json:"bundle_id"`
	WindowTitle     string         `json:"window_title"`
	URL             *string        `json:"url,omitempty"`
	ExtraInfo       *string        `json:"extra_info,omitempty"`
	DurationSeconds int64          `json:"duration_seconds"`
	Date            string         `json:"date"`
	ProjectID       *int64         `json:"project_id,omitempty"`
	ProjectSource   *ProjectSource `json:"project_source,omitempty"`
}

// RawActivity is the unaggregated subset of an activity used for classification.
type RawActivity struct {
	ID          int64   `json:"id"`
	AppName     string  `json:"app_name"`
	BundleID    string  `json:"bundle_id"`
	WindowTitle string  `json:"window_title"`
	URL         *string `json:"url,omitempty"`
	ExtraInfo   *string `json:"extra_info,omitempty"`
}

type Brand struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	SortOrder int       `json:"sort_order"`
	CreatedAt time.Time `json:"created_at"`
}

type Project struct {
	ID        int64     `json:"id"`
	BrandID   int64     `json:"brand_id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	SortOrder int       `json:"sort_order"`
	CreatedAt time.Time `json:"created_at"`
}

type ProjectRule struct {
	ID        int64     `json:"id"`
	ProjectID int64     `json:"project_id"`
	RuleType  RuleType  `json:"rule_type"`
	Pattern   string    `json:"pattern"`
	IsRegex   bool      `json:"is_regex"`
	Priority  int       `json:"priority"`
	CreatedAt time.Time `json:"created_at"`
}

// RuleInput describes a rule to be created.
type RuleInput struct {
	RuleType RuleType `json:"rule_type"`
	Pattern  string   `json:"pattern"`
	IsRegex  bool     `json:"is_regex"`
	Priority int      `json:"priority"`
}

type Setting struct {
	Key   string
	Value string
}

// EntryFilter is used to filter activities in export queries.
type EntryFilter struct {
	ProjectID *int64
	From      *string // YYYY-MM-DD inclusive
	To        *string // YYYY-MM-DD inclusive
	Limit     int
}

// --- Report types. Always recomputed, never stored. ---

type WindowDetail struct {
	WindowTitle  string  `json:"window_title"`
	ExtraInfo    *string `json:"extra_info,omitempty"`
	URL          *string `json:"url,omitempty"`
	TotalSeconds int64   `json:"total_seconds"`
}

type ActivitySummary struct {
	AppName      string         `json:"app_name"`
	BundleID     string         `json:"bundle_id"`
	TotalSeconds int64          `json:"total_seconds"`
	Windows      []WindowDetail `json:"windows"`
}

type DaySummary struct {
	Date                  string            `json:"date"`
	TotalSeconds          int64             `json:"total_seconds"`
	ActiveTrackingSeconds int64             `json:"active_tracking_seconds"`
	WallClockSeconds      int64             `json:"wall_clock_seconds"`
	FirstActivity         *string           `json:"first_activity"`
	LastActivity          *string           `json:"last_activity"`
	Apps                  []ActivitySummary `json:"apps"`
}

type AppTotal struct {
	AppName      string `json:"app_name"`
	TotalSeconds int64  `json:"total_seconds"`
}

type DayTotal struct {
	Date         string `json:"date"`
	TotalSeconds int64  `json:"total_seconds"`
}

type AppDetailReport struct {
	Query        string         `json:"query"`
	TotalSeconds int64          `json:"total_seconds"`
	Days         []DayTotal     `json:"days"`
	TopWindows   []WindowDetail `json:"top_windows"`
}

type ProjectSummary struct {
	ProjectID    int64      `json:"project_id"`
	Name         string     `json:"name"`
	Color        string     `json:"color"`
	TotalSeconds int64      `json:"total_seconds"`
	Apps         []AppTotal `json:"apps"`
}

type BrandSummary struct {
	BrandID      int64            `json:"brand_id"`
	Name         string           `json:"name"`
	Color        string           `json:"color"`
	TotalSeconds int64            `json:"total_seconds"`
	Projects     []ProjectSummary `json:"projects"`
}

type TimelineEntry struct {
	ID              int64     `json:"id"`
	Timestamp       time.Time `json:"timestamp"`
	AppName         string    `json:"app_name"`
	WindowTitle     string    `json:"window_title"`
	URL             *string   `json:"url,omitempty"`
	ExtraInfo       *string   `json:"extra_info,omitempty"`
	DurationSeconds int64     `json:"duration_seconds"`
	ProjectID       *int64    `json:"project_id,omitempty"`
}
