package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/sadopc/autotrackr/internal/api"
	"github.com/sadopc/autotrackr/internal/detector"
	"github.com/spf13/cobra"
)

var (
	acceptBrand   string
	acceptProject string
)

var suggestCmd = &cobra.Command{
	Use:   "suggest",
	Short: "Detect recurring projects in unassigned history",
	Args:  cobra.NoArgs,
	RunE: withApp(func(a *app, args []string) error {
		brands, err := a.service.ListSuggestions()
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(brands)
		}
		printSuggestions(brands)
		return nil
	}),
}

var suggestAcceptCmd = &cobra.Command{
	Use:   "accept KEY",
	Short: "Create the suggested brand, project and rules",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(a *app, args []string) error {
		res, err := a.service.AcceptSuggestion(api.AcceptInput{
			Key:         args[0],
			BrandName:   acceptBrand,
			ProjectName: acceptProject,
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(res)
		}
		green.Printf("Created %s / %s with %d rules, assigned %d records\n",
			res.Brand.Name, res.Project.Name, len(res.Rules), res.Assigned)
		return nil
	}),
}

var suggestDismissCmd = &cobra.Command{
	Use:   "dismiss KEY",
	Short: "Hide a suggestion permanently",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(a *app, args []string) error {
		if err := a.service.DismissSuggestion(api.DismissInput{Key: args[0]}); err != nil {
			return err
		}
		if !jsonOutput {
			fmt.Printf("Dismissed %s\n", args[0])
		}
		return nil
	}),
}

func init() {
	suggestAcceptCmd.Flags().StringVar(&acceptBrand, "brand", "", "Override the brand name")
	suggestAcceptCmd.Flags().StringVar(&acceptProject, "project", "", "Override the project name")
	suggestCmd.AddCommand(suggestAcceptCmd, suggestDismissCmd)
	rootCmd.AddCommand(suggestCmd)
}

func printSuggestions(brands []detector.DetectedBrand) {
	if len(brands) == 0 {
		green.Println("No suggestions.")
		return
	}
	for _, b := range brands {
		cyan.Fprintf(os.Stdout, "%s  (%d records)\n", b.Name, b.Count)
		for _, p := range b.Projects {
			fmt.Printf("  %-24s %5d  %s\n", p.Name, p.Count, strings.Join(p.Apps, ", "))
			faint.Printf("    key: %s\n", p.Key)
			for _, r := range p.Rules {
				kind := "contains"
				if r.IsRegex {
					kind = "regex"
				}
				faint.Printf("    %s %s %q\n", r.RuleType, kind, r.Pattern)
			}
		}
	}
}
