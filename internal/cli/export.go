package cli

import (
	"fmt"
	"strings"

	"github.com/sadopc/autotrackr/internal/export"
	"github.com/sadopc/autotrackr/internal/store"
	"github.com/spf13/cobra"
)

var (
	exportFormat  string
	exportOutput  string
	exportFrom    string
	exportTo      string
	exportProject int64
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export activity records to CSV or JSON",
	Args:  cobra.NoArgs,
	RunE: withApp(func(a *app, args []string) error {
		format := strings.ToLower(exportFormat)
		if format != "csv" && format != "json" {
			return fmt.Errorf("unsupported format %q (want csv or json)", exportFormat)
		}

		filter := store.EntryFilter{}
		if exportFrom != "" {
			filter.From = &exportFrom
		}
		if exportTo != "" {
			filter.To = &exportTo
		}
		if exportProject > 0 {
			filter.ProjectID = &exportProject
		}

		records, err := a.store.ListActivities(filter)
		if err != nil {
			return err
		}
		brands, err := a.store.ListBrands()
		if err != nil {
			return err
		}
		projects, err := a.store.ListProjects(nil)
		if err != nil {
			return err
		}
		labels := export.Labels(brands, projects)

		path := exportOutput
		if path == "" {
			path = "autotrackr-export." + format
		}
		if format == "csv" {
			err = export.ToCSV(records, labels, path)
		} else {
			err = export.ToJSON(records, labels, path)
		}
		if err != nil {
			return err
		}

		a.logger.Info().Str("path", path).Int("records", len(records)).Msg("Export written")
		green.Printf("Exported %d records to %s\n", len(records), path)
		return nil
	}),
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "Output format: csv, json")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default autotrackr-export.<format>)")
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "First day (YYYY-MM-DD)")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "Last day (YYYY-MM-DD)")
	exportCmd.Flags().Int64Var(&exportProject, "project", 0, "Only records assigned to this project id")
	rootCmd.AddCommand(exportCmd)
}
