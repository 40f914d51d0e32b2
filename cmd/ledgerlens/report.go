package main

import (
	"time"

	"github.com/spf13/cobra"

	"ledgerlens/internal/cli"
	"ledgerlens/internal/core"
)

// timeNow is the command clock.
var timeNow = time.Now

type periodFlags struct {
	kind   string
	anchor string
	from   string
	to     string
}

func (f *periodFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.kind, "period", "p", string(core.Monthly), "calendar period (weekly, monthly, yearly)")
	cmd.Flags().StringVar(&f.anchor, "at", "", "any date inside the period (YYYY-MM-DD); default today")
	cmd.Flags().StringVar(&f.from, "from", "", "custom range start (YYYY-MM-DD), with --to")
	cmd.Flags().StringVar(&f.to, "to", "", "custom range end, inclusive (YYYY-MM-DD)")
}

func (f *periodFlags) resolve() (core.PeriodRange, error) {
	return cli.ResolvePeriod(f.kind, f.anchor, f.from, f.to, core.DateOf(timeNow()))
}

func summaryCmd() *cobra.Command {
	var flags periodFlags
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show spending totals by category and top merchants",
		Example: `  ledgerlens summary
  ledgerlens summary --period weekly --at 2024-03-05
  ledgerlens summary --from 2024-01-01 --to 2024-03-31`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			period, err := flags.resolve()
			if err != nil {
				return err
			}
			s, err := app.Engine.GetSummary(cmd.Context(), userID, period)
			if err != nil {
				return err
			}
			return render(cmd, s, func() { cli.PrintSummary(cmd.OutOrStdout(), s) })
		},
	}
	flags.bind(cmd)
	return cmd
}

func insightsCmd() *cobra.Command {
	var flags periodFlags
	cmd := &cobra.Command{
		Use:   "insights",
		Short: "Show category trends and unusual expenses for a period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			period, err := flags.resolve()
			if err != nil {
				return err
			}
			insights, err := app.Engine.GetInsights(cmd.Context(), userID, period)
			if err != nil {
				return err
			}
			return render(cmd, insights, func() { cli.PrintInsights(cmd.OutOrStdout(), insights) })
		},
	}
	flags.bind(cmd)
	return cmd
}
