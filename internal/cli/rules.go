package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/sadopc/autotrackr/internal/matcher"
	"github.com/sadopc/autotrackr/internal/store"
	"github.com/spf13/cobra"
)

var (
	ruleType     string
	rulePattern  string
	ruleRegex    bool
	rulePriority int
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and edit project rules",
}

var rulesListCmd = &cobra.Command{
	Use:   "list [PROJECT_ID]",
	Short: "List rules in evaluation order",
	Args:  cobra.MaximumNArgs(1),
	RunE: withApp(func(a *app, args []string) error {
		var rules []store.ProjectRule
		if len(args) == 1 {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid project id %q", args[0])
			}
			if rules, err = a.service.ListRules(id); err != nil {
				return err
			}
		} else {
			rules = a.matcher.Rules()
		}
		if jsonOutput {
			return printJSON(rules)
		}
		if len(rules) == 0 {
			yellow.Println("No rules.")
			return nil
		}
		for _, r := range rules {
			kind := "contains"
			if r.IsRegex {
				kind = "regex"
			}
			fmt.Fprintf(os.Stdout, "%5d  project %-5d prio %-4d %-16s %-8s %q\n",
				r.ID, r.ProjectID, r.Priority, r.RuleType, kind, r.Pattern)
		}
		return nil
	}),
}

var rulesAddCmd = &cobra.Command{
	Use:   "add PROJECT_ID",
	Short: "Add a rule to a project",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(a *app, args []string) error {
		projectID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid project id %q", args[0])
		}
		rule, err := a.service.CreateRule(projectID, store.RuleInput{
			RuleType: store.RuleType(ruleType),
			Pattern:  rulePattern,
			IsRegex:  ruleRegex,
			Priority: rulePriority,
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(rule)
		}
		green.Printf("Created rule %d\n", rule.ID)
		return nil
	}),
}

var rulesInvalidCmd = &cobra.Command{
	Use:   "invalid",
	Short: "List rules whose pattern cannot match",
	Args:  cobra.NoArgs,
	RunE: withApp(func(a *app, args []string) error {
		invalid, err := a.service.InvalidRules()
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(invalid)
		}
		if len(invalid) == 0 {
			green.Println("All rules are valid.")
			return nil
		}
		for _, ir := range invalid {
			yellow.Printf("%5d  %-16s %q: %s\n", ir.Rule.ID, ir.Rule.RuleType, ir.Rule.Pattern, ir.Error)
		}
		return nil
	}),
}

var rulesCheckCmd = &cobra.Command{
	Use:   "check PATTERN",
	Short: "Validate a pattern without saving it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := matcher.ValidatePattern(args[0], ruleRegex); err != nil {
			return err
		}
		green.Println("Pattern is valid.")
		return nil
	},
}

func init() {
	rulesAddCmd.Flags().StringVarP(&ruleType, "type", "t", string(store.RuleWindowTitle), "Rule type")
	rulesAddCmd.Flags().StringVarP(&rulePattern, "pattern", "p", "", "Pattern to match")
	rulesAddCmd.Flags().BoolVar(&ruleRegex, "regex", false, "Treat the pattern as a case-insensitive regular expression")
	rulesAddCmd.Flags().IntVar(&rulePriority, "priority", 0, "Higher priorities are evaluated first")
	_ = rulesAddCmd.MarkFlagRequired("pattern")
	rulesCheckCmd.Flags().BoolVar(&ruleRegex, "regex", false, "Treat the pattern as a regular expression")

	rulesCmd.AddCommand(rulesListCmd, rulesAddCmd, rulesInvalidCmd, rulesCheckCmd)
	rootCmd.AddCommand(rulesCmd)
}
