package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ledgerlens/internal/amqp"
	"ledgerlens/internal/cli"
)

var errNoPublisher = errors.New("AMQP_URL is not set or the broker is unreachable")

func eventsCmd() *cobra.Command {
	var queue string
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Follow published events (expense.recorded, budget.alert, duplicate.detected)",
		Long: `Bind a durable queue to the events exchange and print every event as it
arrives, until interrupted. Requires AMQP_URL.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if app.Publisher == nil {
				return errNoPublisher
			}
			out := cmd.OutOrStdout()
			err := app.Publisher.ConsumeEvents(cmd.Context(), queue, func(msg *amqp.EventMessage) error {
				if jsonOutput {
					return cli.PrintJSON(out, msg)
				}
				ev := msg.Event
				switch {
				case ev.Expense != nil:
					fmt.Fprintf(out, "%s %s %s: %s %s %s\n", msg.Timestamp.Format(time.RFC3339), ev.Type, ev.UserID, ev.Expense.Merchant, ev.Expense.Amount, ev.Expense.Category)
				case ev.Alert != nil:
					fmt.Fprintf(out, "%s %s %s: %s crossed %.0f%% (%s of %s)\n", msg.Timestamp.Format(time.RFC3339), ev.Type, ev.UserID, ev.Alert.Rule.Key(), ev.Alert.Threshold*100, ev.Alert.After, ev.Alert.Rule.Limit)
				case ev.Duplicate != nil:
					fmt.Fprintf(out, "%s %s %s: %s ~ %s (%.2f)\n", msg.Timestamp.Format(time.RFC3339), ev.Type, ev.UserID, ev.Duplicate.Candidate.ID, ev.Duplicate.Existing.ID, ev.Duplicate.Score)
				default:
					fmt.Fprintf(out, "%s %s %s\n", msg.Timestamp.Format(time.RFC3339), ev.Type, ev.UserID)
				}
				return nil
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&queue, "queue", "ledgerlens.cli", "queue to bind and consume from")
	return cmd
}
