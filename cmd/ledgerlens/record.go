package main

import (
	"github.com/spf13/cobra"

	"ledgerlens/internal/cli"
	"ledgerlens/internal/core"
)

type expenseFlags struct {
	id       string
	date     string
	category string
	source   string
	version  int
}

func (f *expenseFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.date, "date", "", "expense date (YYYY-MM-DD, 2/1/2006, Jan 2, 2006...); default today")
	cmd.Flags().StringVarP(&f.category, "category", "c", "", "category hint")
	cmd.Flags().StringVar(&f.source, "source", "manual", "record source (manual, scanned, imported)")
}

func (f *expenseFlags) raw(merchant, amount string) core.RawExpense {
	return core.RawExpense{
		ID:       f.id,
		Merchant: merchant,
		Amount:   amount,
		Date:     f.date,
		Category: f.category,
		Source:   f.source,
		Version:  f.version,
	}
}

func recordCmd() *cobra.Command {
	var (
		flags   expenseFlags
		confirm bool
	)
	cmd := &cobra.Command{
		Use:   "record <merchant> <amount>",
		Short: "Record an expense",
		Long: `Record an expense after normalizing it and checking it against recent
records. A likely duplicate is not recorded unless --confirm is given.
Passing --id with a higher --version replaces an earlier record.`,
		Example: `  ledgerlens record "Jollibee Ayala" "₱1,250.50" --category food
  ledgerlens record Grab 180 --date 2024-03-05 --confirm`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := flags.raw(args[0], args[1])
			raw.Confirmed = confirm
			res, err := app.Engine.RecordExpense(cmd.Context(), userID, raw)
			if err != nil {
				return err
			}
			return render(cmd, res, func() { cli.PrintRecordResult(cmd.OutOrStdout(), res) })
		},
	}
	flags.bind(cmd)
	cmd.Flags().StringVar(&flags.id, "id", "", "record ID; generated when empty")
	cmd.Flags().IntVar(&flags.version, "version", 1, "record version; must increase to correct a record")
	cmd.Flags().BoolVar(&confirm, "confirm", false, "record even if a likely duplicate exists")
	return cmd
}

func duplicatesCmd() *cobra.Command {
	var flags expenseFlags
	cmd := &cobra.Command{
		Use:   "duplicates <merchant> <amount>",
		Short: "Preview duplicates of an expense without recording it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pairs, err := app.Engine.FindDuplicates(cmd.Context(), userID, flags.raw(args[0], args[1]))
			if err != nil {
				return err
			}
			if pairs == nil {
				pairs = []core.DuplicatePair{}
			}
			return render(cmd, pairs, func() { cli.PrintDuplicates(cmd.OutOrStdout(), pairs) })
		},
	}
	flags.bind(cmd)
	return cmd
}

type correctFlags struct {
	merchant string
	amount   string
	date     string
	category string
	source   string
	confirm  bool
}

// patch leaves every unset field empty so the stored value is kept.
func (f *correctFlags) patch() core.RawExpense {
	p := core.RawExpense{
		Merchant:  f.merchant,
		Category:  f.category,
		Source:    f.source,
		Confirmed: f.confirm,
	}
	if f.amount != "" {
		p.Amount = f.amount
	}
	if f.date != "" {
		p.Date = f.date
	}
	return p
}

func correctCmd() *cobra.Command {
	var flags correctFlags
	cmd := &cobra.Command{
		Use:   "correct <id>",
		Short: "Correct a recorded expense",
		Long: `Correct a recorded expense by storing its next version. Only the given
fields change. Budget alerts fire only for thresholds the change crosses.`,
		Example: `  ledgerlens correct 3f2a... --amount 41.00
  ledgerlens correct receipt-7 --date 2024-03-21 --category transport`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := app.Engine.CorrectExpense(cmd.Context(), userID, args[0], flags.patch())
			if err != nil {
				return err
			}
			return render(cmd, res, func() { cli.PrintRecordResult(cmd.OutOrStdout(), res) })
		},
	}
	cmd.Flags().StringVar(&flags.merchant, "merchant", "", "new merchant")
	cmd.Flags().StringVar(&flags.amount, "amount", "", "new amount")
	cmd.Flags().StringVar(&flags.date, "date", "", "new date")
	cmd.Flags().StringVarP(&flags.category, "category", "c", "", "new category")
	cmd.Flags().StringVar(&flags.source, "source", "", "new source")
	cmd.Flags().BoolVar(&flags.confirm, "confirm", false, "apply even if the change creates a likely duplicate")
	return cmd
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import expenses from a YAML or JSON file",
		Long: `Import a batch of expenses. Every entry is validated before anything is
stored. Likely duplicates are held back unless the entry sets confirmed.`,
		Example: `  ledgerlens import march.yaml
  ledgerlens import export.json --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raws, err := cli.LoadImportFile(args[0])
			if err != nil {
				return err
			}
			res, err := app.Engine.ImportExpenses(cmd.Context(), userID, raws)
			if err != nil {
				return err
			}
			return render(cmd, res, func() { cli.PrintImportResult(cmd.OutOrStdout(), res) })
		},
	}
}
