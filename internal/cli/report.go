package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/sadopc/autotrackr/internal/store"
	"github.com/spf13/cobra"
)

var (
	reportDate  string
	reportMonth string
	reportFrom  string
	reportTo    string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show aggregated activity reports",
}

var reportDayCmd = &cobra.Command{
	Use:   "day",
	Short: "Per-app totals for one day",
	Args:  cobra.NoArgs,
	RunE: withApp(func(a *app, args []string) error {
		day, err := a.service.DayReport(reportDate)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(day)
		}
		printDay(os.Stdout, *day)
		return nil
	}),
}

var reportWeekCmd = &cobra.Command{
	Use:   "week",
	Short: "Every tracked day of the current week",
	Args:  cobra.NoArgs,
	RunE: withApp(func(a *app, args []string) error {
		days, err := a.service.WeekReport()
		if err != nil {
			return err
		}
		return printDays(days)
	}),
}

var reportMonthCmd = &cobra.Command{
	Use:   "month",
	Short: "Every tracked day of a month (YYYY-MM, default current)",
	Args:  cobra.NoArgs,
	RunE: withApp(func(a *app, args []string) error {
		days, err := a.service.MonthReport(reportMonth)
		if err != nil {
			return err
		}
		return printDays(days)
	}),
}

var reportRangeCmd = &cobra.Command{
	Use:   "range",
	Short: "Every tracked day between --from and --to",
	Args:  cobra.NoArgs,
	RunE: withApp(func(a *app, args []string) error {
		days, err := a.service.RangeReport(reportFrom, reportTo)
		if err != nil {
			return err
		}
		return printDays(days)
	}),
}

var reportAppCmd = &cobra.Command{
	Use:   "app NAME",
	Short: "All-time totals for apps whose name contains NAME",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(a *app, args []string) error {
		rep, err := a.service.AppReport(args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(rep)
		}
		printApp(os.Stdout, rep)
		return nil
	}),
}

var reportBrandsCmd = &cobra.Command{
	Use:   "brands",
	Short: "Brand and project totals for one day",
	Args:  cobra.NoArgs,
	RunE: withApp(func(a *app, args []string) error {
		brands, err := a.service.BrandReport(reportDate)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(brands)
		}
		printBrands(os.Stdout, brands)
		return nil
	}),
}

var reportTimelineCmd = &cobra.Command{
	Use:   "timeline",
	Short: "Chronological records for one day",
	Args:  cobra.NoArgs,
	RunE: withApp(func(a *app, args []string) error {
		entries, err := a.service.TimelineReport(reportDate)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(entries)
		}
		printTimeline(os.Stdout, entries)
		return nil
	}),
}

var reportUnassignedCmd = &cobra.Command{
	Use:   "unassigned",
	Short: "Records without a project for one day",
	Args:  cobra.NoArgs,
	RunE: withApp(func(a *app, args []string) error {
		records, err := a.service.UnassignedReport(reportDate)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(records)
		}
		printUnassigned(os.Stdout, records)
		return nil
	}),
}

func init() {
	for _, c := range []*cobra.Command{reportDayCmd, reportBrandsCmd, reportTimelineCmd, reportUnassignedCmd} {
		c.Flags().StringVar(&reportDate, "date", "", "Day to report (YYYY-MM-DD, default today)")
	}
	reportMonthCmd.Flags().StringVar(&reportMonth, "month", "", "Month to report (YYYY-MM)")
	reportRangeCmd.Flags().StringVar(&reportFrom, "from", "", "First day (YYYY-MM-DD)")
	reportRangeCmd.Flags().StringVar(&reportTo, "to", "", "Last day (YYYY-MM-DD)")
	_ = reportRangeCmd.MarkFlagRequired("from")
	_ = reportRangeCmd.MarkFlagRequired("to")

	reportCmd.AddCommand(reportDayCmd, reportWeekCmd, reportMonthCmd, reportRangeCmd,
		reportAppCmd, reportBrandsCmd, reportTimelineCmd, reportUnassignedCmd)
	rootCmd.AddCommand(reportCmd)
}

// withApp opens the engine for the duration of one command.
func withApp(fn func(a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp(appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(a, args)
	}
}

func printDays(days []store.DaySummary) error {
	if jsonOutput {
		return printJSON(days)
	}
	if len(days) == 0 {
		yellow.Println("No tracked activity in this period.")
		return nil
	}

	var total, peak int64
	for _, d := range days {
		total += d.TotalSeconds
		if d.TotalSeconds > peak {
			peak = d.TotalSeconds
		}
	}
	heading(os.Stdout, "%d days, %s tracked", len(days), humanDuration(total))
	for _, d := range days {
		fmt.Printf("%s  %9s  ", d.Date, humanDuration(d.TotalSeconds))
		green.Println(bar(d.TotalSeconds, peak, 30))
	}
	return nil
}

func printDay(w io.Writer, day store.DaySummary) {
	if day.TotalSeconds == 0 {
		yellow.Fprintf(w, "No tracked activity on %s.\n", day.Date)
		return
	}
	heading(w, "%s  %s tracked (%s to %s)", day.Date, humanDuration(day.TotalSeconds),
		*day.FirstActivity, *day.LastActivity)
	for _, app := range day.Apps {
		fmt.Fprintf(w, "%-28s %9s  ", truncate(app.AppName, 28), humanDuration(app.TotalSeconds))
		green.Fprintln(w, bar(app.TotalSeconds, day.TotalSeconds, 24))
		for _, win := range app.Windows {
			title := win.WindowTitle
			if title == "" {
				title = "(untitled)"
			}
			faint.Fprintf(w, "    %-50s %9s\n", truncate(title, 50), humanDuration(win.TotalSeconds))
		}
	}
	fmt.Fprintf(w, "\nWall clock %s, active %s\n",
		humanDuration(day.WallClockSeconds), humanDuration(day.ActiveTrackingSeconds))
}

func printApp(w io.Writer, rep *store.AppDetailReport) {
	if rep.TotalSeconds == 0 {
		yellow.Fprintf(w, "No activity for apps matching %q.\n", rep.Query)
		return
	}
	heading(w, "%q  %s across %d days", rep.Query, humanDuration(rep.TotalSeconds), len(rep.Days))
	for _, d := range rep.Days {
		fmt.Fprintf(w, "%s  %9s\n", d.Date, humanDuration(d.TotalSeconds))
	}
	if len(rep.TopWindows) > 0 {
		cyan.Fprintln(w, "\nTop windows")
		for _, win := range rep.TopWindows {
			fmt.Fprintf(w, "  %-50s %9s\n", truncate(win.WindowTitle, 50), humanDuration(win.TotalSeconds))
		}
	}
}

func printBrands(w io.Writer, brands []store.BrandSummary) {
	if len(brands) == 0 {
		yellow.Fprintln(w, "No tracked activity.")
		return
	}
	for _, b := range brands {
		cyan.Fprintf(w, "%-30s %9s\n", b.Name, humanDuration(b.TotalSeconds))
		for _, p := range b.Projects {
			fmt.Fprintf(w, "  %-28s %9s\n", truncate(p.Name, 28), humanDuration(p.TotalSeconds))
			for _, app := range p.Apps {
				faint.Fprintf(w, "    %-26s %9s\n", truncate(app.AppName, 26), humanDuration(app.TotalSeconds))
			}
		}
	}
}

func printTimeline(w io.Writer, entries []store.TimelineEntry) {
	if len(entries) == 0 {
		yellow.Fprintln(w, "No tracked activity.")
		return
	}
	for _, e := range entries {
		marker := " "
		if e.ProjectID != nil {
			marker = "●"
		}
		fmt.Fprintf(w, "%s %s %-20s %8s  ", e.Timestamp.Local().Format("15:04:05"), marker,
			truncate(e.AppName, 20), humanDuration(e.DurationSeconds))
		faint.Fprintln(w, truncate(e.WindowTitle, 60))
	}
}

func printUnassigned(w io.Writer, records []store.ActivityRecord) {
	if len(records) == 0 {
		green.Fprintln(w, "Everything is assigned.")
		return
	}
	var total int64
	for _, r := range records {
		total += r.DurationSeconds
	}
	heading(w, "%d unassigned records, %s", len(records), humanDuration(total))
	for _, r := range records {
		fmt.Fprintf(w, "%6d  %-20s %8s  ", r.ID, truncate(r.AppName, 20), humanDuration(r.DurationSeconds))
		faint.Fprintln(w, truncate(r.WindowTitle, 50))
	}
}
