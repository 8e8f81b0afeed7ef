package cli

import (
	"fmt"
	"strconv"

	"github.com/sadopc/autotrackr/internal/api"
	"github.com/spf13/cobra"
)

var assignDate string

var assignCmd = &cobra.Command{
	Use:   "assign",
	Short: "Classify activity records",
}

var assignAutoCmd = &cobra.Command{
	Use:   "auto",
	Short: "Apply project rules to unassigned records",
	Args:  cobra.NoArgs,
	RunE: withApp(func(a *app, args []string) error {
		in := api.AutoAssignInput{}
		if assignDate != "" {
			in.Date = &assignDate
		}
		res, err := a.service.AutoAssign(in)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(res)
		}
		green.Printf("Assigned %d records\n", res.Assigned)
		return nil
	}),
}

var assignSetCmd = &cobra.Command{
	Use:   "set PROJECT_ID ACTIVITY_ID...",
	Short: "Manually assign records to a project",
	Args:  cobra.MinimumNArgs(2),
	RunE: withApp(func(a *app, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		projectID := ids[0]
		return assign(a, api.AssignInput{ActivityIDs: ids[1:], ProjectID: &projectID})
	}),
}

var assignClearCmd = &cobra.Command{
	Use:   "clear ACTIVITY_ID...",
	Short: "Remove the project from records",
	Args:  cobra.MinimumNArgs(1),
	RunE: withApp(func(a *app, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		return assign(a, api.AssignInput{ActivityIDs: ids})
	}),
}

func init() {
	assignAutoCmd.Flags().StringVar(&assignDate, "date", "", "Only classify records from this day (YYYY-MM-DD)")
	assignCmd.AddCommand(assignAutoCmd, assignSetCmd, assignClearCmd)
	rootCmd.AddCommand(assignCmd)
}

func assign(a *app, in api.AssignInput) error {
	res, err := a.service.AssignActivities(in)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(res)
	}
	green.Printf("Updated %d records\n", res.Updated)
	return nil
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
