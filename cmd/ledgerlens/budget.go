package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ledgerlens/internal/cli"
	"ledgerlens/internal/core"
)

func budgetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Manage budget rules and check spending against them",
	}

	cmd.AddCommand(setBudgetCmd())
	cmd.AddCommand(removeBudgetCmd())
	cmd.AddCommand(listBudgetsCmd())
	cmd.AddCommand(budgetStatusCmd())

	return cmd
}

func setBudgetCmd() *cobra.Command {
	var (
		period     string
		thresholds []float64
	)
	cmd := &cobra.Command{
		Use:   "set <category|all> <limit>",
		Short: "Set a budget limit for a category, or for all spending",
		Example: `  ledgerlens budget set food 8000 --period monthly
  ledgerlens budget set all 5000 --period weekly --thresholds 0.5,0.8,1`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, err := core.ParseAmount(args[1])
			if err != nil {
				return err
			}
			rule, err := app.Engine.SetBudget(cmd.Context(), userID, core.BudgetRule{
				Category:   categoryArg(args[0]),
				Period:     core.Period(period),
				Limit:      limit,
				Thresholds: thresholds,
			})
			if err != nil {
				return err
			}
			return render(cmd, rule, func() {
				fmt.Fprintf(cmd.OutOrStdout(), "Budget %s set to %s\n", rule.Key(), rule.Limit)
			})
		},
	}
	cmd.Flags().StringVarP(&period, "period", "p", string(core.Monthly), "budget period (weekly, monthly, yearly)")
	cmd.Flags().Float64SliceVar(&thresholds, "thresholds", nil, "alert thresholds as fractions of the limit (default 0.8,1)")
	return cmd
}

func removeBudgetCmd() *cobra.Command {
	var period string
	cmd := &cobra.Command{
		Use:     "rm <category|all>",
		Aliases: []string{"remove"},
		Short:   "Remove a budget rule",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			category := categoryArg(args[0])
			if err := app.Engine.RemoveBudget(cmd.Context(), userID, category, core.Period(period)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Budget %s removed\n", core.BudgetRule{Category: category, Period: core.Period(period)}.Key())
			return nil
		},
	}
	cmd.Flags().StringVarP(&period, "period", "p", string(core.Monthly), "budget period (weekly, monthly, yearly)")
	return cmd
}

func listBudgetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the budget rules in effect",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rules, err := app.Engine.Budgets(cmd.Context(), userID)
			if err != nil {
				return err
			}
			return render(cmd, rules, func() { cli.PrintRules(cmd.OutOrStdout(), rules) })
		},
	}
}

func budgetStatusCmd() *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show spending against every budget rule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var asOf core.Date
			if at != "" {
				var err error
				if asOf, err = core.ParseDate(at); err != nil {
					return err
				}
			}
			statuses, err := app.Engine.CheckBudget(cmd.Context(), userID, asOf)
			if err != nil {
				return err
			}
			return render(cmd, statuses, func() { cli.PrintBudgetStatus(cmd.OutOrStdout(), statuses) })
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "report the windows containing this date (YYYY-MM-DD); default today")
	return cmd
}

// categoryArg maps "all" to the global rule.
func categoryArg(s string) core.Category {
	if s == "all" || s == "*" {
		return ""
	}
	return core.Category(s)
}
