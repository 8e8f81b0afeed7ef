// Package api exposes the tracking core as transport-independent operations
// and maps them onto routes.
package api

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sadopc/autotrackr/internal/clock"
	"github.com/sadopc/autotrackr/internal/detector"
	"github.com/sadopc/autotrackr/internal/matcher"
	"github.com/sadopc/autotrackr/internal/merger"
	"github.com/sadopc/autotrackr/internal/store"
)

const (
	dateLayout  = "2006-01-02"
	monthLayout = "2006-01"

	defaultColor = "#6C63FF"

	todayTopApps       = 5
	recentAppsWindow   = 15 * time.Minute
	recentAppsMinimum  = 30
	recentDatesLimit   = 14
	defaultDailyGoal   = 8 * 60 * 60
	defaultIntervalSec = 2
)

// Service is the set of operations offered to boundary collaborators. Every
// method returns a JSON-serializable value or an error.
type Service struct {
	store           *store.Store
	matcher         *matcher.Matcher
	detector        *detector.Detector
	pool            *merger.Pool
	clock           clock.Clock
	defaultInterval int64
	logger          zerolog.Logger
}

// Options configures a Service.
type Options struct {
	Store    *store.Store
	Matcher  *matcher.Matcher
	Detector *detector.Detector
	Pool     *merger.Pool // optional; heartbeat ingestion is rejected without it
	Clock    clock.Clock
	// DefaultInterval is used for heartbeats that omit interval_seconds.
	DefaultInterval time.Duration
}

func NewService(opts Options, logger zerolog.Logger) *Service {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	interval := int64(opts.DefaultInterval / time.Second)
	if interval <= 0 {
		interval = defaultIntervalSec
	}
	return &Service{
		store:           opts.Store,
		matcher:         opts.Matcher,
		detector:        opts.Detector,
		pool:            opts.Pool,
		clock:           opts.Clock,
		defaultInterval: interval,
		logger:          logger.With().Str("component", "api").Logger(),
	}
}

// --- Taxonomy ---

type BrandInput struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

type ProjectInput struct {
	BrandID int64  `json:"brand_id"`
	Name    string `json:"name"`
	Color   string `json:"color"`
}

func (s *Service) ListBrands() ([]store.Brand, error) {
	brands, err := s.store.ListBrands()
	if brands == nil && err == nil {
		brands = []store.Brand{}
	}
	return brands, err
}

func (s *Service) CreateBrand(in BrandInput) (*store.Brand, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalidf("brand name is required")
	}
	return s.store.CreateBrand(name, colorOr(in.Color))
}

func (s *Service) UpdateBrand(id int64, in BrandInput) (*store.Brand, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalidf("brand name is required")
	}
	if err := s.store.UpdateBrand(id, name, colorOr(in.Color)); err != nil {
		return nil, err
	}
	return s.store.GetBrand(id)
}

func (s *Service) DeleteBrand(id int64) error {
	return s.store.DeleteBrand(id)
}

func (s *Service) ListProjects(brandID *int64) ([]store.Project, error) {
	projects, err := s.store.ListProjects(brandID)
	if projects == nil && err == nil {
		projects = []store.Project{}
	}
	return projects, err
}

func (s *Service) CreateProject(in ProjectInput) (*store.Project, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalidf("project name is required")
	}
	if in.BrandID == 0 {
		return nil, invalidf("brand_id is required")
	}
	return s.store.CreateProject(in.BrandID, name, colorOr(in.Color))
}

func (s *Service) UpdateProject(id int64, in ProjectInput) (*store.Project, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalidf("project name is required")
	}
	if err := s.store.UpdateProject(id, name, colorOr(in.Color)); err != nil {
		return nil, err
	}
	return s.store.GetProject(id)
}

func (s *Service) DeleteProject(id int64) error {
	return s.store.DeleteProject(id)
}

func (s *Service) ListRules(projectID int64) ([]store.ProjectRule, error) {
	if _, err := s.store.GetProject(projectID); err != nil {
		return nil, err
	}
	rules, err := s.store.ListRules(projectID)
	if rules == nil && err == nil {
		rules = []store.ProjectRule{}
	}
	return rules, err
}

func (s *Service) CreateRule(projectID int64, in store.RuleInput) (*store.ProjectRule, error) {
	if err := matcher.ValidatePattern(in.Pattern, in.IsRegex); err != nil {
		return nil, err
	}
	return s.store.CreateRule(projectID, in)
}

func (s *Service) UpdateRule(id int64, in store.RuleInput) (*store.ProjectRule, error) {
	if err := matcher.ValidatePattern(in.Pattern, in.IsRegex); err != nil {
		return nil, err
	}
	if err := s.store.UpdateRule(id, in); err != nil {
		return nil, err
	}
	return s.store.GetRule(id)
}

func (s *Service) DeleteRule(id int64) error {
	return s.store.DeleteRule(id)
}

func (s *Service) InvalidRules() ([]matcher.InvalidRule, error) {
	return s.matcher.InvalidRules()
}

type PatternInput struct {
	Pattern string `json:"pattern"`
	IsRegex bool   `json:"is_regex"`
}

type PatternValidation struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// ValidatePattern never fails; the outcome is in the result.
func (s *Service) ValidatePattern(in PatternInput) PatternValidation {
	if err := matcher.ValidatePattern(in.Pattern, in.IsRegex); err != nil {
		return PatternValidation{Valid: false, Error: err.Error()}
	}
	return PatternValidation{Valid: true}
}

// --- Classification ---

type AssignInput struct {
	ActivityIDs []int64 `json:"activity_ids"`
	ProjectID   *int64  `json:"project_id"` // null unassigns
}

type AssignResult struct {
	Updated int64 `json:"updated"`
}

// AssignActivities manually classifies (or unassigns) a set of records.
func (s *Service) AssignActivities(in AssignInput) (*AssignResult, error) {
	if len(in.ActivityIDs) == 0 {
		return nil, invalidf("activity_ids is required")
	}
	if in.ProjectID != nil {
		if _, err := s.store.GetProject(*in.ProjectID); err != nil {
			return nil, err
		}
	}
	n, err := s.store.BulkUpdateProjectAssignment(in.ActivityIDs, in.ProjectID, store.SourceManual)
	if err != nil {
		return nil, err
	}
	return &AssignResult{Updated: n}, nil
}

func (s *Service) GetActivity(id int64) (*store.ActivityRecord, error) {
	return s.store.GetActivity(id)
}

type AutoAssignInput struct {
	Date *string `json:"date"`
}

type AutoAssignResult struct {
	Assigned int `json:"assigned"`
}

func (s *Service) AutoAssign(in AutoAssignInput) (*AutoAssignResult, error) {
	if in.Date != nil {
		if err := checkDate(*in.Date); err != nil {
			return nil, err
		}
	}
	n, err := s.matcher.AutoAssignUnclassified(in.Date)
	if err != nil {
		return nil, err
	}
	return &AutoAssignResult{Assigned: n}, nil
}

// --- Ingestion ---

type HeartbeatInput struct {
	Session         string           `json:"session"`
	Heartbeat       merger.Heartbeat `json:"heartbeat"`
	IntervalSeconds int64            `json:"interval_seconds"`
}

type HeartbeatResult struct {
	Session      string                `json:"session"`
	Current      *store.ActivityRecord `json:"current"`
	PassiveMedia bool                  `json:"passive_media"`
}

// RecordHeartbeat feeds one heartbeat to its session merger.
func (s *Service) RecordHeartbeat(in HeartbeatInput) (*HeartbeatResult, error) {
	if s.pool == nil {
		return nil, invalidf("heartbeat ingestion is not enabled")
	}
	if strings.TrimSpace(in.Heartbeat.AppName) == "" {
		return nil, invalidf("heartbeat app_name is required")
	}
	if in.IntervalSeconds < 0 {
		return nil, invalidf("interval_seconds must not be negative")
	}
	session := in.Session
	if session == "" {
		session = merger.SessionForeground
	}
	interval := in.IntervalSeconds
	if interval == 0 {
		interval = s.defaultInterval
	}

	s.pool.Process(session, in.Heartbeat, interval)
	return &HeartbeatResult{
		Session:      session,
		Current:      s.pool.Current(session),
		PassiveMedia: s.pool.IsPassiveMedia(),
	}, nil
}

// --- Reports ---

func (s *Service) today() string {
	return s.clock.Now().Format(dateLayout)
}

func (s *Service) dateOrToday(date string) (string, error) {
	if date == "" {
		return s.today(), nil
	}
	return date, checkDate(date)
}

func (s *Service) DayReport(date string) (*store.DaySummary, error) {
	d, err := s.dateOrToday(date)
	if err != nil {
		return nil, err
	}
	return s.store.QueryDay(d)
}

func (s *Service) WeekReport() ([]store.DaySummary, error) {
	return s.store.QueryWeek()
}

// MonthReport takes a YYYY-MM month, defaulting to the current one.
func (s *Service) MonthReport(month string) ([]store.DaySummary, error) {
	t := s.clock.Now()
	if month != "" {
		parsed, err := time.ParseInLocation(monthLayout, month, time.Local)
		if err != nil {
			return nil, invalidf("month %q must be YYYY-MM", month)
		}
		t = parsed
	}
	return s.store.QueryMonth(t.Year(), t.Month())
}

func (s *Service) RangeReport(from, to string) ([]store.DaySummary, error) {
	if err := checkDate(from); err != nil {
		return nil, err
	}
	if err := checkDate(to); err != nil {
		return nil, err
	}
	if from > to {
		return nil, invalidf("from %s is after to %s", from, to)
	}
	return s.store.QueryDays(from, to)
}

func (s *Service) AppReport(name string) (*store.AppDetailReport, error) {
	if strings.TrimSpace(name) == "" {
		return nil, invalidf("app name is required")
	}
	return s.store.QueryApp(name)
}

func (s *Service) BrandReport(date string) ([]store.BrandSummary, error) {
	d, err := s.dateOrToday(date)
	if err != nil {
		return nil, err
	}
	return s.store.QueryDayByProject(d)
}

func (s *Service) UnassignedReport(date string) ([]store.ActivityRecord, error) {
	d, err := s.dateOrToday(date)
	if err != nil {
		return nil, err
	}
	return s.store.QueryUnassignedActivities(d)
}

func (s *Service) TimelineReport(date string) ([]store.TimelineEntry, error) {
	d, err := s.dateOrToday(date)
	if err != nil {
		return nil, err
	}
	return s.store.QueryTimeline(d)
}

type TodayReport struct {
	Date         string           `json:"date"`
	TotalSeconds int64            `json:"total_seconds"`
	DailyGoal    int64            `json:"daily_goal"`
	TopApps      []store.AppTotal `json:"top_apps"`
	RecentApps   []store.AppTotal `json:"recent_apps"`
	RecentDates  []store.DayTotal `json:"recent_dates"`
}

func (s *Service) Today() (*TodayReport, error) {
	total, err := s.store.GetTodayTotal()
	if err != nil {
		return nil, err
	}
	top, err := s.store.TodayTopApps(todayTopApps)
	if err != nil {
		return nil, err
	}
	recent, err := s.store.RecentApps(recentAppsWindow, recentAppsMinimum)
	if err != nil {
		return nil, err
	}
	dates, err := s.store.RecentDates(recentDatesLimit)
	if err != nil {
		return nil, err
	}
	return &TodayReport{
		Date:         s.today(),
		TotalSeconds: total,
		DailyGoal:    s.store.GetIntSetting("daily_goal", defaultDailyGoal),
		TopApps:      top,
		RecentApps:   recent,
		RecentDates:  dates,
	}, nil
}

// --- Suggestions ---

// ListSuggestions runs detection and hides dismissed suggestions.
func (s *Service) ListSuggestions() ([]detector.DetectedBrand, error) {
	brands, err := s.detector.Detect()
	if err != nil {
		return nil, err
	}
	dismissed, err := s.store.DismissedSuggestions()
	if err != nil {
		return nil, err
	}
	return detector.WithoutDismissed(brands, dismissed), nil
}

type AcceptInput struct {
	Key string `json:"key"`
	// Optional overrides of the detected names and rules.
	BrandName   string            `json:"brand_name,omitempty"`
	ProjectName string            `json:"project_name,omitempty"`
	Rules       []store.RuleInput `json:"rules,omitempty"`
}

type AcceptResult struct {
	store.AcceptedProject
	Assigned int `json:"assigned"`
}

// AcceptSuggestion turns a detected project into a brand, project and rules,
// then classifies matching history.
func (s *Service) AcceptSuggestion(in AcceptInput) (*AcceptResult, error) {
	if in.Key == "" {
		return nil, invalidf("key is required")
	}
	suggestions, err := s.ListSuggestions()
	if err != nil {
		return nil, err
	}
	brand, project, ok := detector.Find(suggestions, in.Key)
	if !ok {
		return nil, fmt.Errorf("suggestion %q: %w", in.Key, store.ErrNotFound)
	}

	brandName := firstNonEmpty(in.BrandName, brand.Name)
	projectName := firstNonEmpty(in.ProjectName, project.Name)
	rules := project.Rules
	if len(in.Rules) > 0 {
		rules = in.Rules
	}
	for _, r := range rules {
		if err := matcher.ValidatePattern(r.Pattern, r.IsRegex); err != nil {
			return nil, err
		}
	}

	accepted, err := s.store.CreateProjectWithRules(brandName, brand.Color, projectName, project.Color, rules)
	if err != nil {
		return nil, err
	}
	s.matcher.Invalidate()

	assigned, err := s.matcher.AutoAssignUnclassified(nil)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("key", in.Key).
		Int64("project_id", accepted.Project.ID).
		Int("rules", len(accepted.Rules)).
		Int("assigned", assigned).
		Msg("Suggestion accepted")
	return &AcceptResult{AcceptedProject: *accepted, Assigned: assigned}, nil
}

type DismissInput struct {
	Key string `json:"key"`
}

func (s *Service) DismissSuggestion(in DismissInput) error {
	if in.Key == "" {
		return invalidf("key is required")
	}
	return s.store.DismissSuggestion(in.Key)
}

func checkDate(date string) error {
	if _, err := time.ParseInLocation(dateLayout, date, time.Local); err != nil {
		return invalidf("date %q must be YYYY-MM-DD", date)
	}
	return nil
}

func colorOr(c string) string {
	if c == "" {
		return defaultColor
	}
	return c
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// --- Settings ---

// settingValidators lists the user-editable settings.
var settingValidators = map[string]func(string) error{
	"daily_goal": func(v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return invalidf("daily_goal must be a positive number of seconds")
		}
		return nil
	},
	"week_start": func(v string) error {
		if v != "monday" && v != "sunday" {
			return invalidf("week_start must be monday or sunday")
		}
		return nil
	},
}

type SettingInput struct {
	Value string `json:"value"`
}

func (s *Service) Settings() (map[string]string, error) {
	list, err := s.store.GetAllSettings()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(list))
	for _, st := range list {
		out[st.Key] = st.Value
	}
	return out, nil
}

func (s *Service) UpdateSetting(key string, in SettingInput) (map[string]string, error) {
	validate, ok := settingValidators[key]
	if !ok {
		return nil, fmt.Errorf("setting %q: %w", key, store.ErrNotFound)
	}
	value := strings.TrimSpace(strings.ToLower(in.Value))
	if err := validate(value); err != nil {
		return nil, err
	}
	if err := s.store.SetSetting(key, value); err != nil {
		return nil, err
	}
	return s.Settings()
}
