package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/offpay/internal/client/config"
	"github.com/spf13/cobra"
)

func newRootCmd(cfg *config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:   "offpay",
		Short: "Offline payment wallet",
		Long: `offpay signs payments on this device while offline and reconciles
them with the server once a connection is available.

Payments can be handed over as a signed NFC payload, made against a
recipient's QR payment request, or queued for batch sync.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := root.PersistentFlags()
	f.StringVarP(&cfg.ServerEndpointAddr, "server", "a", cfg.ServerEndpointAddr, "server gRPC address")
	f.StringVar(&cfg.DatabaseDSN, "db", cfg.DatabaseDSN, "wallet database file")
	f.StringVar(&cfg.KeyFile, "key-file", cfg.KeyFile, "sealed signing key file")
	f.StringVar(&cfg.Currency, "currency", cfg.Currency, "currency code for new payments")
	f.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "JSON log file, logging is off when empty")
	// Read by config.LoadConfig before the command tree runs.
	f.StringP("config", "c", "", "JSON config file")

	root.AddCommand(
		newRegisterCmd(cfg),
		newAccountCmd(cfg),
		newForgetCmd(cfg),
		newKeygenCmd(cfg),
		newCardCmd(cfg),
		newRequestCmd(cfg),
		newPayCmd(cfg),
		newNFCCmd(cfg),
		newOutboxCmd(cfg),
		newSyncCmd(cfg),
		newConflictsCmd(cfg),
	)
	return root
}

// Execute runs the wallet command line.
func Execute(version string) error {
	cfg := config.LoadConfig()

	root := newRootCmd(cfg)
	root.Version = version

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}
