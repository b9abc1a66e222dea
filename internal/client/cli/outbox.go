package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dmitrijs2005/offpay/internal/client/config"
	"github.com/dmitrijs2005/offpay/internal/client/models"
	"github.com/dmitrijs2005/offpay/internal/client/repositories/outbox"
	"github.com/dmitrijs2005/offpay/internal/common"
	"github.com/dmitrijs2005/offpay/internal/cryptox"
	"github.com/spf13/cobra"
)

func newOutboxCmd(cfg *config.Config) *cobra.Command {
	var statuses []string

	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "List payments signed on this device",
		Args:  cobra.NoArgs,
		RunE: withApp(cfg, func(ctx context.Context, a *app, _ []string) error {
			filter, err := parseStatuses(statuses)
			if err != nil {
				return err
			}
			txs, err := outbox.NewSQLiteRepository(a.db).List(ctx, filter...)
			if err != nil {
				return err
			}
			if len(txs) == 0 {
				fmt.Fprintln(a.out, "Outbox is empty")
				return nil
			}
			return printOutbox(a.out, txs)
		}),
	}

	cmd.Flags().StringSliceVar(&statuses, "status", nil, "only show these statuses")
	return cmd
}

func parseStatuses(in []string) ([]models.Status, error) {
	out := make([]models.Status, 0, len(in))
	for _, s := range in {
		st := models.Status(strings.ToUpper(strings.TrimSpace(s)))
		switch st {
		case models.StatusPending, models.StatusSynced, models.StatusConflict, models.StatusFailed:
			out = append(out, st)
		default:
			return nil, fmt.Errorf("%w: unknown status %q", common.ErrValidation, s)
		}
	}
	return out, nil
}

func printOutbox(w io.Writer, txs []models.Transaction) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tHASH\tTO\tAMOUNT\tCHANNEL\tSTATUS\tTRIES\tERROR")
	for _, t := range txs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s %s\t%s\t%s\t%d\t%s\n",
			t.Seq, short(t.Hash), t.RecipientID, cryptox.FormatAmount(t.Amount), t.Currency,
			t.Channel, t.Status, t.SyncAttempts, t.LastError)
	}
	return tw.Flush()
}

func printTransaction(w io.Writer, t *models.Transaction) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Signed:\t%s\n", t.Hash)
	fmt.Fprintf(tw, "To:\t%s\n", t.RecipientID)
	fmt.Fprintf(tw, "Amount:\t%s %s\n", cryptox.FormatAmount(t.Amount), t.Currency)
	fmt.Fprintf(tw, "Channel:\t%s\n", t.Channel)
	fmt.Fprintf(tw, "Status:\t%s\n", t.Status)
	return tw.Flush()
}

func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
