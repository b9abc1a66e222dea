package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/dmitrijs2005/offpay/internal/api"
	"github.com/dmitrijs2005/offpay/internal/client/client"
	"github.com/dmitrijs2005/offpay/internal/client/config"
	"github.com/dmitrijs2005/offpay/internal/client/wallet"
	"github.com/dmitrijs2005/offpay/internal/common"
	"github.com/dmitrijs2005/offpay/internal/cryptox"
	"github.com/spf13/cobra"
)

func newNFCCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nfc",
		Short: "Build and receive NFC payment payloads",
	}
	cmd.AddCommand(newNFCSendCmd(cfg), newNFCReceiveCmd(cfg))
	return cmd
}

func newNFCSendCmd(cfg *config.Config) *cobra.Command {
	var peer, amount, note, out string

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Sign a payment to a payee card and emit the NFC payload",
		Args:  cobra.NoArgs,
		RunE: withApp(cfg, func(ctx context.Context, a *app, _ []string) error {
			raw, err := a.readInput(peer)
			if err != nil {
				return err
			}
			var card wallet.Peer
			if err := json.Unmarshal(raw, &card); err != nil {
				return fmt.Errorf("%w: payee card: %v", common.ErrInvalidPayload, err)
			}
			value, err := parseAmount(amount)
			if err != nil {
				return err
			}

			w, err := a.wallet(ctx)
			if err != nil {
				return err
			}
			payload, tx, err := w.PayNFC(ctx, card, value, note)
			if err != nil {
				return err
			}
			if err := printTransaction(a.errOut, tx); err != nil {
				return err
			}
			return a.writeOutput(out, payload)
		}),
	}

	cmd.Flags().StringVar(&peer, "peer", "", "payee card file")
	cmd.Flags().StringVar(&amount, "amount", "", "amount to pay")
	cmd.Flags().StringVar(&note, "note", "", "note for the payee")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the payload to a file")
	_ = cmd.MarkFlagRequired("peer")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newNFCReceiveCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "receive <file|->",
		Short: "Submit a received NFC payload to the server",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(cfg, func(ctx context.Context, a *app, args []string) error {
			data, err := a.readInput(args[0])
			if err != nil {
				return err
			}
			resp, err := a.client.SubmitOfflinePayment(ctx, data)
			if err != nil {
				return err
			}
			if err := printChecks(a, resp); err != nil {
				return err
			}
			if !resp.Valid {
				return fmt.Errorf("%w: payload failed validation", client.ErrRejected)
			}
			return nil
		}),
	}
}

func printChecks(a *app, resp *api.SubmitOfflinePaymentResponse) error {
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	c := resp.Checks
	for _, row := range []struct {
		name string
		ok   bool
	}{
		{"size", c.Size},
		{"structure", c.Structure},
		{"version", c.Version},
		{"type", c.Type},
		{"fields", c.Fields},
		{"timestamp", c.Timestamp},
		{"nonce", c.Nonce},
		{"hash", c.Hash},
		{"signature", c.Signature},
		{"amount", c.Amount},
		{"currency", c.Currency},
	} {
		fmt.Fprintf(tw, "%s\t%s\n", row.name, okText(row.ok))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, e := range resp.Errors {
		fmt.Fprintf(a.out, "error: %s\n", e)
	}
	for _, w := range resp.Warnings {
		fmt.Fprintf(a.out, "warning: %s\n", w)
	}
	if t := resp.Transaction; resp.Valid && t != nil {
		fmt.Fprintf(a.out, "Accepted %s %s from %s (%s)\n", cryptox.FormatAmount(t.Amount), t.Currency, t.SenderID, t.Hash)
	}
	return nil
}

func okText(ok bool) string {
	if ok {
		return "ok"
	}
	return "FAIL"
}
