package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ledgerlens/internal/cli"
	"ledgerlens/internal/log"
)

var (
	version = "dev"

	userID     string
	jsonOutput bool
	logLevel   string
	logFormat  string

	// app is set by the root pre-run for every command that needs it.
	app *cli.App

	rootCmd = &cobra.Command{
		Use:   "ledgerlens",
		Short: "Expense analytics and duplicate detection",
		Long: `ledgerlens records expenses, flags likely duplicates, tracks budgets
and reports spending summaries, trends and anomalies.

Configuration comes from the environment (and a .env file when present).`,
		SilenceUsage:       true,
		PersistentPreRunE:  initApp,
		PersistentPostRunE: closeApp,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", envOr("LEDGER_USER", "default"), "user whose ledger to use")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print JSON instead of tables")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides LOG_LEVEL")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (text, json); overrides LOG_FORMAT")

	rootCmd.AddCommand(recordCmd())
	rootCmd.AddCommand(correctCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(duplicatesCmd())
	rootCmd.AddCommand(summaryCmd())
	rootCmd.AddCommand(insightsCmd())
	rootCmd.AddCommand(budgetCmd())
	rootCmd.AddCommand(eventsCmd())
	rootCmd.AddCommand(versionCmd())
}

func main() {
	ctx, cancel := cli.SignalContext(log.Nop())
	err := rootCmd.ExecuteContext(ctx)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initApp(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == "version" {
		return nil
	}

	cli.LoadEnvFile()
	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}
	logger := log.Setup(cfg.LogLevel, cfg.LogFormat)
	cmd.SetContext(log.WithContext(cmd.Context(), logger.With("command", cmd.CommandPath())))

	app, err = cli.NewApp(cmd.Context(), cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize", log.FieldError, err.Error())
		return err
	}
	return nil
}

func closeApp(_ *cobra.Command, _ []string) error {
	if app == nil {
		return nil
	}
	err := app.Close()
	app = nil
	return err
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ledgerlens %s\n", version)
		},
	}
}

// render prints v as JSON when --json is set, otherwise calls table.
func render(cmd *cobra.Command, v any, table func()) error {
	if jsonOutput {
		return cli.PrintJSON(cmd.OutOrStdout(), v)
	}
	table()
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
