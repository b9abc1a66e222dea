package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/offpay/internal/client/config"
	"github.com/dmitrijs2005/offpay/internal/cryptox"
	"github.com/spf13/cobra"
)

func newRequestCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "request",
		Short: "Issue and check QR payment requests",
	}
	cmd.AddCommand(newRequestCreateCmd(cfg), newRequestCheckCmd(cfg))
	return cmd
}

func newRequestCreateCmd(cfg *config.Config) *cobra.Command {
	var amount, note, out string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Ask the server for a payment request and sign it",
		Args:  cobra.NoArgs,
		RunE: withApp(cfg, func(ctx context.Context, a *app, _ []string) error {
			value, err := parseAmount(amount)
			if err != nil {
				return err
			}
			resp, err := a.client.CreatePaymentRequest(ctx, value, note)
			if err != nil {
				return err
			}
			w, err := a.wallet(ctx)
			if err != nil {
				return err
			}
			signed, err := w.SignRequest(ctx, resp.Payload)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.errOut, "Request %s expires %s\n", resp.RequestID, resp.ExpiresAt.UTC().Format(time.RFC3339))
			return a.writeOutput(out, signed)
		}),
	}

	cmd.Flags().StringVar(&amount, "amount", "", "requested amount")
	cmd.Flags().StringVar(&note, "note", "", "note shown to the payer")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the QR payload to a file")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newRequestCheckCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "check <file|->",
		Short: "Validate a scanned payment request with the server",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(cfg, func(ctx context.Context, a *app, args []string) error {
			data, err := a.readInput(args[0])
			if err != nil {
				return err
			}
			resp, err := a.client.ValidatePaymentRequest(ctx, data)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "Valid:\t%t\n", resp.Valid)
			if resp.Reason != "" {
				fmt.Fprintf(tw, "Reason:\t%s\n", resp.Reason)
			}
			if resp.RequestID != "" {
				fmt.Fprintf(tw, "Request:\t%s\n", resp.RequestID)
				fmt.Fprintf(tw, "Recipient:\t%s\n", resp.RecipientID)
				fmt.Fprintf(tw, "Amount:\t%s\n", cryptox.FormatAmount(resp.Amount))
			}
			return tw.Flush()
		}),
	}
}
