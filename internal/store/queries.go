package store

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sadopc/autotrackr/internal/ordered"
)

const (
	// unassignedMinSeconds hides blips from the manual classification list.
	unassignedMinSeconds = 10

	appTopWindows = 20

	placeholderBrandName   = "Unknown brand"
	placeholderProjectName = "Unknown project"
	placeholderColor       = "#666666"
)

type windowKey struct {
	title    string
	extra    string
	hasExtra bool
}

type appGroup struct {
	summary ActivitySummary
	windows *ordered.Group[windowKey, WindowDetail]
}

// QueryDay aggregates one day's records by app and, within an app, by
// (window title, extra info).
func (s *Store) QueryDay(date string) (*DaySummary, error) {
	records, err := s.queryActivities(activitySelect+` WHERE date = ? ORDER BY timestamp, id`, date)
	if err != nil {
		return nil, fmt.Errorf("query day %s: %w", date, err)
	}
	return summarizeDay(date, records), nil
}

func summarizeDay(date string, records []ActivityRecord) *DaySummary {
	day := &DaySummary{Date: date, Apps: []ActivitySummary{}}
	if len(records) == 0 {
		return day
	}

	apps := ordered.NewGroup[string, appGroup]()
	var first, last time.Time
	for i, r := range records {
		app := apps.Get(r.AppName, func() appGroup {
			return appGroup{
				summary: ActivitySummary{AppName: r.AppName, BundleID: r.BundleID},
				windows: ordered.NewGroup[windowKey, WindowDetail](),
			}
		})
		key := windowKey{title: r.WindowTitle}
		if r.ExtraInfo != nil {
			key.extra, key.hasExtra = *r.ExtraInfo, true
		}
		w := app.windows.Get(key, func() WindowDetail {
			return WindowDetail{WindowTitle: r.WindowTitle, ExtraInfo: r.ExtraInfo, URL: r.URL}
		})
		w.TotalSeconds += r.DurationSeconds

		end := r.Timestamp.Add(time.Duration(r.DurationSeconds) * time.Second)
		if i == 0 || r.Timestamp.Before(first) {
			first = r.Timestamp
		}
		if i == 0 || end.After(last) {
			last = end
		}
	}

	for _, app := range apps.Values() {
		windows := make([]WindowDetail, 0, app.windows.Len())
		for _, w := range app.windows.Values() {
			app.summary.TotalSeconds += w.TotalSeconds
			windows = append(windows, *w)
		}
		sort.SliceStable(windows, func(i, j int) bool {
			if windows[i].TotalSeconds != windows[j].TotalSeconds {
				return windows[i].TotalSeconds > windows[j].TotalSeconds
			}
			return windows[i].WindowTitle < windows[j].WindowTitle
		})
		app.summary.Windows = windows
		day.TotalSeconds += app.summary.TotalSeconds
		day.Apps = append(day.Apps, app.summary)
	}
	sortAppSummaries(day.Apps)

	day.ActiveTrackingSeconds = day.TotalSeconds
	day.WallClockSeconds = int64(last.Sub(first) / time.Second)
	firstStr, lastStr := first.Format("15:04"), last.Format("15:04")
	day.FirstActivity, day.LastActivity = &firstStr, &lastStr
	return day
}

func sortAppSummaries(apps []ActivitySummary) {
	sort.SliceStable(apps, func(i, j int) bool {
		if apps[i].TotalSeconds != apps[j].TotalSeconds {
			return apps[i].TotalSeconds > apps[j].TotalSeconds
		}
		return apps[i].AppName < apps[j].AppName
	})
}

// QueryDays runs QueryDay for every date in [from, to] and keeps the days
// with tracked time.
func (s *Store) QueryDays(from, to string) ([]DaySummary, error) {
	start, err := time.ParseInLocation("2006-01-02", from, time.Local)
	if err != nil {
		return nil, fmt.Errorf("parse from %q: %w", from, err)
	}
	end, err := time.ParseInLocation("2006-01-02", to, time.Local)
	if err != nil {
		return nil, fmt.Errorf("parse to %q: %w", to, err)
	}

	days := []DaySummary{}
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		day, err := s.QueryDay(d.Format("2006-01-02"))
		if err != nil {
			return nil, err
		}
		if day.TotalSeconds > 0 {
			days = append(days, *day)
		}
	}
	return days, nil
}

// QueryWeek reports the current week, starting on the configured week_start day.
func (s *Store) QueryWeek() ([]DaySummary, error) {
	now := s.clock.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	weekStart := time.Monday
	if v, err := s.GetSetting("week_start"); err == nil && strings.EqualFold(v, "sunday") {
		weekStart = time.Sunday
	}
	offset := (int(today.Weekday()) - int(weekStart) + 7) % 7
	start := today.AddDate(0, 0, -offset)
	return s.QueryDays(start.Format("2006-01-02"), start.AddDate(0, 0, 6).Format("2006-01-02"))
}

// QueryMonth reports every tracked day of a calendar month.
func (s *Store) QueryMonth(year int, month time.Month) ([]DaySummary, error) {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.Local)
	last := first.AddDate(0, 1, -1)
	return s.QueryDays(first.Format("2006-01-02"), last.Format("2006-01-02"))
}

// QueryApp aggregates every record whose app name contains name, ignoring case.
func (s *Store) QueryApp(name string) (*AppDetailReport, error) {
	records, err := s.queryActivities(
		activitySelect+` WHERE instr(lower(app_name), lower(?)) > 0 ORDER BY timestamp, id`, name,
	)
	if err != nil {
		return nil, fmt.Errorf("query app %q: %w", name, err)
	}

	report := &AppDetailReport{Query: name, Days: []DayTotal{}, TopWindows: []WindowDetail{}}
	days := ordered.NewGroup[string, DayTotal]()
	windows := ordered.NewGroup[string, WindowDetail]()
	for _, r := range records {
		report.TotalSeconds += r.DurationSeconds
		d := days.Get(r.Date, func() DayTotal { return DayTotal{Date: r.Date} })
		d.TotalSeconds += r.DurationSeconds
		w := windows.Get(r.WindowTitle, func() WindowDetail {
			return WindowDetail{WindowTitle: r.WindowTitle, URL: r.URL, ExtraInfo: r.ExtraInfo}
		})
		w.TotalSeconds += r.DurationSeconds
	}

	for _, d := range days.Values() {
		report.Days = append(report.Days, *d)
	}
	sort.Slice(report.Days, func(i, j int) bool { return report.Days[i].Date < report.Days[j].Date })

	for _, w := range windows.Values() {
		report.TopWindows = append(report.TopWindows, *w)
	}
	sort.SliceStable(report.TopWindows, func(i, j int) bool {
		a, b := report.TopWindows[i], report.TopWindows[j]
		if a.TotalSeconds != b.TotalSeconds {
			return a.TotalSeconds > b.TotalSeconds
		}
		return a.WindowTitle < b.WindowTitle
	})
	if len(report.TopWindows) > appTopWindows {
		report.TopWindows = report.TopWindows[:appTopWindows]
	}
	return report, nil
}

type projectGroup struct {
	summary ProjectSummary
	brandID int64
	apps    *ordered.Group[string, AppTotal]
}

// QueryDayByProject rolls up one day's classified records into
// brand → project → app totals.
func (s *Store) QueryDayByProject(date string) ([]BrandSummary, error) {
	records, err := s.queryActivities(
		activitySelect+` WHERE date = ? AND project_id IS NOT NULL ORDER BY timestamp, id`, date,
	)
	if err != nil {
		return nil, fmt.Errorf("query day by project %s: %w", date, err)
	}
	brandList, err := s.ListBrands()
	if err != nil {
		return nil, err
	}
	projectList, err := s.ListProjects(nil)
	if err != nil {
		return nil, err
	}

	brandsByID := make(map[int64]Brand, len(brandList))
	for _, b := range brandList {
		brandsByID[b.ID] = b
	}
	projectsByID := make(map[int64]Project, len(projectList))
	for _, p := range projectList {
		projectsByID[p.ID] = p
	}

	projects := ordered.NewGroup[int64, projectGroup]()
	for _, r := range records {
		if r.ProjectID == nil {
			continue
		}
		pid := *r.ProjectID
		pg := projects.Get(pid, func() projectGroup {
			g := projectGroup{
				summary: ProjectSummary{ProjectID: pid, Name: placeholderProjectName, Color: placeholderColor},
				apps:    ordered.NewGroup[string, AppTotal](),
			}
			if p, ok := projectsByID[pid]; ok {
				g.summary.Name, g.summary.Color, g.brandID = p.Name, p.Color, p.BrandID
			}
			return g
		})
		pg.summary.TotalSeconds += r.DurationSeconds
		a := pg.apps.Get(r.AppName, func() AppTotal { return AppTotal{AppName: r.AppName} })
		a.TotalSeconds += r.DurationSeconds
	}

	brands := ordered.NewGroup[int64, BrandSummary]()
	for _, pg := range projects.Values() {
		bs := brands.Get(pg.brandID, func() BrandSummary {
			if b, ok := brandsByID[pg.brandID]; ok {
				return BrandSummary{BrandID: b.ID, Name: b.Name, Color: b.Color}
			}
			return BrandSummary{BrandID: pg.brandID, Name: placeholderBrandName, Color: placeholderColor}
		})
		apps := make([]AppTotal, 0, pg.apps.Len())
		for _, a := range pg.apps.Values() {
			apps = append(apps, *a)
		}
		sortAppTotals(apps)
		pg.summary.Apps = apps
		bs.TotalSeconds += pg.summary.TotalSeconds
		bs.Projects = append(bs.Projects, pg.summary)
	}

	out := make([]BrandSummary, 0, brands.Len())
	for _, b := range brands.Values() {
		sort.SliceStable(b.Projects, func(i, j int) bool {
			if b.Projects[i].TotalSeconds != b.Projects[j].TotalSeconds {
				return b.Projects[i].TotalSeconds > b.Projects[j].TotalSeconds
			}
			return b.Projects[i].Name < b.Projects[j].Name
		})
		out = append(out, *b)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TotalSeconds != out[j].TotalSeconds {
			return out[i].TotalSeconds > out[j].TotalSeconds
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// QueryUnassignedActivities lists unclassified records of a day that lasted
// at least ten seconds, longest first.
func (s *Store) QueryUnassignedActivities(date string) ([]ActivityRecord, error) {
	records, err := s.queryActivities(
		activitySelect+` WHERE date = ? AND project_id IS NULL AND duration_seconds >= ?
		ORDER BY duration_seconds DESC, id ASC`,
		date, unassignedMinSeconds,
	)
	if err != nil {
		return nil, fmt.Errorf("query unassigned %s: %w", date, err)
	}
	if records == nil {
		records = []ActivityRecord{}
	}
	return records, nil
}

// QueryUnassignedRaw returns every unclassified record, optionally for one date.
func (s *Store) QueryUnassignedRaw(date *string) ([]RawActivity, error) {
	query := `SELECT id, app_name, bundle_id, window_title, url, extra_info FROM activities WHERE project_id IS NULL`
	var args []any
	if date != nil {
		query += ` AND date = ?`
		args = append(args, *date)
	}
	query += ` ORDER BY id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query unassigned raw: %w", err)
	}
	defer rows.Close()

	var out []RawActivity
	for rows.Next() {
		var r RawActivity
		var url, extra sql.NullString
		if err := rows.Scan(&r.ID, &r.AppName, &r.BundleID, &r.WindowTitle, &url, &extra); err != nil {
			return nil, err
		}
		r.URL, r.ExtraInfo = stringPtr(url), stringPtr(extra)
		out = append(out, r)
	}
	return out, rows.Err()
}

// QueryTimeline returns a day's records in time order, unaggregated.
func (s *Store) QueryTimeline(date string) ([]TimelineEntry, error) {
	records, err := s.queryActivities(activitySelect+` WHERE date = ? ORDER BY timestamp, id`, date)
	if err != nil {
		return nil, fmt.Errorf("query timeline %s: %w", date, err)
	}
	out := make([]TimelineEntry, 0, len(records))
	for _, r := range records {
		out = append(out, TimelineEntry{
			ID:              r.ID,
			Timestamp:       r.Timestamp,
			AppName:         r.AppName,
			WindowTitle:     r.WindowTitle,
			URL:             r.URL,
			ExtraInfo:       r.ExtraInfo,
			DurationSeconds: r.DurationSeconds,
			ProjectID:       r.ProjectID,
		})
	}
	return out, nil
}

func (s *Store) today() string {
	return dateOf(s.clock.Now())
}

func (s *Store) GetTodayTotal() (int64, error) {
	var total int64
	err := s.db.QueryRow(
		`SELECT COALESCE(SUM(duration_seconds), 0) FROM activities WHERE date = ?`, s.today(),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("today total: %w", err)
	}
	return total, nil
}

// TodayTopApps returns the n apps with the most tracked time today.
func (s *Store) TodayTopApps(n int) ([]AppTotal, error) {
	day, err := s.QueryDay(s.today())
	if err != nil {
		return nil, err
	}
	apps := make([]AppTotal, 0, len(day.Apps))
	for _, a := range day.Apps {
		apps = append(apps, AppTotal{AppName: a.AppName, TotalSeconds: a.TotalSeconds})
	}
	if n > 0 && len(apps) > n {
		apps = apps[:n]
	}
	return apps, nil
}

// RecentApps returns apps active within the trailing window whose summed
// duration there is at least minSeconds.
func (s *Store) RecentApps(window time.Duration, minSeconds int64) ([]AppTotal, error) {
	now := s.clock.Now()
	cutoff := now.Add(-window)
	records, err := s.queryActivities(
		activitySelect+` WHERE date >= ? ORDER BY timestamp, id`, dateOf(cutoff.AddDate(0, 0, -1)),
	)
	if err != nil {
		return nil, fmt.Errorf("recent apps: %w", err)
	}

	apps := ordered.NewGroup[string, AppTotal]()
	for _, r := range records {
		end := r.Timestamp.Add(time.Duration(r.DurationSeconds) * time.Second)
		if end.Before(cutoff) {
			continue
		}
		a := apps.Get(r.AppName, func() AppTotal { return AppTotal{AppName: r.AppName} })
		a.TotalSeconds += r.DurationSeconds
	}

	out := []AppTotal{}
	for _, a := range apps.Values() {
		if a.TotalSeconds >= minSeconds {
			out = append(out, *a)
		}
	}
	sortAppTotals(out)
	return out, nil
}

// RecentDates returns up to limit most recent dates with tracked time.
func (s *Store) RecentDates(limit int) ([]DayTotal, error) {
	rows, err := s.db.Query(
		`SELECT date, SUM(duration_seconds) AS total FROM activities
		 GROUP BY date HAVING total > 0 ORDER BY date DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent dates: %w", err)
	}
	defer rows.Close()

	out := []DayTotal{}
	for rows.Next() {
		var d DayTotal
		if err := rows.Scan(&d.Date, &d.TotalSeconds); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func sortAppTotals(apps []AppTotal) {
	sort.SliceStable(apps, func(i, j int) bool {
		if apps[i].TotalSeconds != apps[j].TotalSeconds {
			return apps[i].TotalSeconds > apps[j].TotalSeconds
		}
		return apps[i].AppName < apps[j].AppName
	})
}
