package main

import (
	"context"
	"fmt"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"kakeibo/internal/cli"
	"kakeibo/internal/core"
)

var drawStates = []core.DrawState{
	core.DrawStarted,
	core.DrawCatalogFetched,
	core.DrawDeducted,
	core.DrawGranting,
	core.DrawGranted,
	core.DrawCatalogFetchFailed,
	core.DrawDeductionFailed,
	core.DrawGrantFailed,
	core.DrawGrantAbandoned,
}

func newBalanceCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show every assignee's points and whether they can draw",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *cli.App) error {
				balances, err := app.Chores.Balances(ctx, app.Gacha.Cost())
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ASSIGNEE\tNAME\tPOINTS\tRECORDS\tCAN DRAW")
				for _, b := range balances {
					fmt.Fprintf(tw, "%s\t%s\t%.2f\t%d\t%t\n", b.Assignee, b.DisplayName, b.Points, b.Records, b.CanDraw)
				}
				return tw.Flush()
			})
		},
	}
}

func newAttemptsCmd(opts *options) *cobra.Command {
	var (
		state string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "attempts",
		Short: "List recorded draw attempts, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if state != "" && !slices.Contains(drawStates, core.DrawState(state)) {
				return fmt.Errorf("unknown state %q, want one of %v", state, drawStates)
			}
			return opts.withApp(cmd, func(ctx context.Context, app *cli.App) error {
				attempts, err := app.Store.ListAttemptsByState(ctx, core.DrawState(state), limit)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tASSIGNEE\tSTATE\tRETRIES\tUPDATED\tLAST ERROR")
				for _, a := range attempts {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
						a.ID, a.Assignee, a.State, a.Retries, a.UpdatedAt.Format("2006-01-02 15:04:05"), a.LastError)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "only list attempts in this state")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum attempts to list (0 for all)")
	return cmd
}

func newRecoverCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Retry the grant step of failed draws once",
		Long: `Run one grant recovery pass. Attempts that deducted points but failed to
grant the prize are retried; attempts past RECOVERY_MAX_RETRIES are
abandoned.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, app *cli.App) error {
				report, err := app.Recovery.RunOnce(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "scanned %d, granted %d, retrying %d, abandoned %d\n",
					report.Scanned, report.Granted, report.Retrying, report.Abandoned)
				return nil
			})
		},
	}
}
