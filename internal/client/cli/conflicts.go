package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/offpay/internal/api"
	"github.com/dmitrijs2005/offpay/internal/client/config"
	"github.com/spf13/cobra"
)

func newConflictsCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "Review reconciliation conflicts",
	}
	cmd.AddCommand(newConflictsListCmd(cfg), newConflictsResolveCmd(cfg))
	return cmd
}

func newConflictsListCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List conflicts on this account's transactions",
		Args:  cobra.NoArgs,
		RunE: withApp(cfg, func(ctx context.Context, a *app, _ []string) error {
			conflicts, err := a.client.ListConflicts(ctx)
			if err != nil {
				return err
			}
			if len(conflicts) == 0 {
				fmt.Fprintln(a.out, "No conflicts")
				return nil
			}
			return printConflicts(a.out, conflicts)
		}),
	}
}

func newConflictsResolveCmd(cfg *config.Config) *cobra.Command {
	var outcome, notes string

	cmd := &cobra.Command{
		Use:   "resolve <id>",
		Short: "Resolve a conflict",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(cfg, func(ctx context.Context, a *app, args []string) error {
			c, err := a.client.ResolveConflict(ctx, args[0], outcome, notes)
			if err != nil {
				return err
			}
			return printConflicts(a.out, []api.Conflict{*c})
		}),
	}

	cmd.Flags().StringVar(&outcome, "outcome", "MANUAL_RESOLVED", "MANUAL_RESOLVED, REJECTED or PENDING_USER")
	cmd.Flags().StringVar(&notes, "notes", "", "resolution notes")
	return cmd
}

func printConflicts(w io.Writer, conflicts []api.Conflict) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTRANSACTION\tTYPE\tPRIORITY\tSTATUS\tDETECTED")
	for _, c := range conflicts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			c.ID, short(c.TransactionHash), c.Type, c.Priority, c.Status,
			c.DetectedAt.UTC().Format(time.RFC3339))
	}
	return tw.Flush()
}
