package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/offpay/internal/client/client"
	"github.com/dmitrijs2005/offpay/internal/client/config"
	"github.com/dmitrijs2005/offpay/internal/client/models"
	"github.com/spf13/cobra"
)

func newPayCmd(cfg *config.Config) *cobra.Command {
	var to, amount, request string

	cmd := &cobra.Command{
		Use:   "pay",
		Short: "Sign a payment and queue it in the outbox",
		Long: `Signs a payment with the device key and appends it to the outbox.

With --request the payment settles a QR payment request. The request is
checked with the server when it can be reached and paid offline when not.
Otherwise --to and --amount queue a plain transfer for batch sync.`,
		Args: cobra.NoArgs,
		RunE: withApp(cfg, func(ctx context.Context, a *app, _ []string) error {
			if request != "" {
				return payRequest(ctx, a, request)
			}
			if to == "" || amount == "" {
				return errors.New("either --request or both --to and --amount are required")
			}
			value, err := parseAmount(amount)
			if err != nil {
				return err
			}
			w, err := a.wallet(ctx)
			if err != nil {
				return err
			}
			tx, err := w.Pay(ctx, to, value, models.ChannelBatch)
			if err != nil {
				return err
			}
			return printTransaction(a.out, tx)
		}),
	}

	cmd.Flags().StringVar(&to, "to", "", "recipient user id")
	cmd.Flags().StringVar(&amount, "amount", "", "amount to pay")
	cmd.Flags().StringVar(&request, "request", "", "QR payment request file, - for stdin")
	cmd.MarkFlagsMutuallyExclusive("request", "to")
	cmd.MarkFlagsMutuallyExclusive("request", "amount")
	return cmd
}

func payRequest(ctx context.Context, a *app, path string) error {
	data, err := a.readInput(path)
	if err != nil {
		return err
	}

	online := true
	check, err := a.client.ValidatePaymentRequest(ctx, data)
	switch {
	case errors.Is(err, client.ErrUnavailable):
		online = false
		fmt.Fprintln(a.errOut, "Server unreachable, paying offline")
	case err != nil:
		return err
	case !check.Valid:
		return fmt.Errorf("%w: %s", client.ErrRejected, check.Reason)
	}

	w, err := a.wallet(ctx)
	if err != nil {
		return err
	}
	tx, req, err := w.PayRequest(ctx, data)
	if err != nil {
		return err
	}

	if online {
		if err := a.client.ConsumePaymentRequest(ctx, req.PaymentRequestID); err != nil {
			fmt.Fprintf(a.errOut, "Payment queued but request %s was not marked paid: %v\n", req.PaymentRequestID, err)
		}
	}
	return printTransaction(a.out, tx)
}
