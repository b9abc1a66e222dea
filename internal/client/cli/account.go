package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dmitrijs2005/offpay/internal/client/config"
	"github.com/dmitrijs2005/offpay/internal/client/services"
	"github.com/dmitrijs2005/offpay/internal/common"
	"github.com/dmitrijs2005/offpay/internal/cryptox"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func newRegisterCmd(cfg *config.Config) *cobra.Command {
	var phone, name, opening string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Open a server account for this device",
		Args:  cobra.NoArgs,
		RunE: withApp(cfg, func(ctx context.Context, a *app, _ []string) error {
			amount, err := parseAmount(opening)
			if err != nil {
				return err
			}
			acc, err := a.accounts.Register(ctx, phone, name, amount)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Registered %s\n", acc.UserID)
			return printAccount(a.out, acc, a.cfg.Currency)
		}),
	}

	cmd.Flags().StringVar(&phone, "phone", "", "phone number")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&opening, "opening", "0", "opening balance")
	_ = cmd.MarkFlagRequired("phone")
	return cmd
}

func newAccountCmd(cfg *config.Config) *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "account",
		Short: "Show the account and offline spendable balance",
		Long: `Shows the account as cached at the last sync. With --refresh the
balance and chain head are pulled from the server first.`,
		Args: cobra.NoArgs,
		RunE: withApp(cfg, func(ctx context.Context, a *app, _ []string) error {
			var (
				acc *services.Account
				err error
			)
			if refresh {
				acc, err = a.accounts.Refresh(ctx)
			} else {
				acc, err = a.accounts.Local(ctx)
			}
			if err != nil {
				return err
			}
			return printAccount(a.out, acc, a.cfg.Currency)
		}),
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "fetch the account from the server")
	return cmd
}

func newForgetCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "forget",
		Short: "Drop the stored identity and session, keeping the outbox",
		Args:  cobra.NoArgs,
		RunE: withApp(cfg, func(ctx context.Context, a *app, _ []string) error {
			if err := a.accounts.Forget(ctx); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Session cleared")
			return nil
		}),
	}
}

func printAccount(w io.Writer, acc *services.Account, currency string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "User:\t%s\n", acc.UserID)
	fmt.Fprintf(tw, "Phone:\t%s\n", acc.PhoneNumber)
	if acc.DisplayName != "" {
		fmt.Fprintf(tw, "Name:\t%s\n", acc.DisplayName)
	}
	fmt.Fprintf(tw, "Balance:\t%s %s\n", cryptox.FormatAmount(acc.Balance), currency)
	fmt.Fprintf(tw, "Spendable:\t%s %s\n", cryptox.FormatAmount(acc.Spendable), currency)
	if acc.ChainHead != "" {
		fmt.Fprintf(tw, "Chain head:\t%s\n", acc.ChainHead)
	}
	if acc.LastSync != "" {
		fmt.Fprintf(tw, "Last sync:\t%s\n", acc.LastSync)
	}
	return tw.Flush()
}

func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", common.ErrInvalidAmount, s)
	}
	return d, nil
}
