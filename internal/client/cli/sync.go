package cli

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/offpay/internal/client/config"
	"github.com/dmitrijs2005/offpay/internal/client/services"
	"github.com/dmitrijs2005/offpay/internal/cryptox"
	"github.com/spf13/cobra"
)

func newSyncCmd(cfg *config.Config) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Push unsynced payments to the server",
		Long: `Submits PENDING and CONFLICT payments to the server reconciler in
chain order and records each verdict in the outbox. With --watch it keeps
syncing at the configured interval until interrupted.`,
		Args: cobra.NoArgs,
		RunE: withApp(cfg, func(ctx context.Context, a *app, _ []string) error {
			s := services.NewSyncer(a.client, a.db, a.accounts, a.cfg.BatchSize, a.logger)
			if watch {
				fmt.Fprintf(a.errOut, "Syncing every %s, interrupt to stop\n", a.cfg.SyncInterval)
				return s.Run(ctx, a.cfg.SyncInterval)
			}

			res, err := s.SyncOnce(ctx)
			if err != nil {
				return err
			}
			printSyncResult(a, res)
			return nil
		}),
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep syncing")
	cmd.Flags().DurationVar(&cfg.SyncInterval, "interval", cfg.SyncInterval, "sync interval for --watch")
	cmd.Flags().IntVar(&cfg.BatchSize, "batch", cfg.BatchSize, "payments per batch")
	return cmd
}

func printSyncResult(a *app, res *services.SyncResult) {
	if res.Submitted == 0 {
		fmt.Fprintln(a.out, "Nothing to sync")
		return
	}
	fmt.Fprintf(a.out, "Batch %s: %d submitted, %d synced, %d conflicts, %d failed, %d waiting\n",
		res.BatchID, res.Submitted, res.Synced, res.Conflicts, res.Failed, res.Waiting)
	if r := res.Report; r != nil {
		fmt.Fprintf(a.out, "Projected balance: %s %s\n", cryptox.FormatAmount(r.ProjectedBalance), a.cfg.Currency)
		if r.DoubleSpend {
			fmt.Fprintln(a.out, "Double spend detected, see conflicts list")
		}
	}
}
