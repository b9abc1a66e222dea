package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/offpay/internal/client/config"
	"github.com/dmitrijs2005/offpay/internal/common"
	"github.com/dmitrijs2005/offpay/internal/cryptox"
	"github.com/spf13/cobra"
)

func newKeygenCmd(cfg *config.Config) *cobra.Command {
	var (
		alg   string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate and register the device signing key",
		Long: `Generates a key pair on this device, registers the public key with
the server and seals the private key under a passphrase in the key file.

Rotating the key is refused while the outbox holds unsynced payments,
since the server could no longer verify them. --force overrides this.`,
		Args: cobra.NoArgs,
		RunE: withApp(cfg, func(ctx context.Context, a *app, _ []string) error {
			algorithm, err := cryptox.ParseAlgorithm(alg)
			if err != nil {
				return err
			}
			pass, err := GetNewPassphrase(a.errOut)
			if err != nil {
				return err
			}
			defer common.WipeByteArray(pass)

			key, err := a.keys.Generate(ctx, algorithm, a.cfg.KeyFile, pass, force)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Key %s registered (%s, %d bits)\n", key.ID, key.Algorithm, key.KeySize)
			fmt.Fprintf(a.out, "Fingerprint: %s\n", key.Fingerprint)
			if !key.ExpiresAt.IsZero() {
				fmt.Fprintf(a.out, "Expires: %s\n", key.ExpiresAt.UTC().Format(time.RFC3339))
			}
			fmt.Fprintf(a.out, "Private key sealed in %s\n", a.cfg.KeyFile)
			return nil
		}),
	}

	cmd.Flags().StringVar(&alg, "alg", string(cryptox.AlgorithmECDSA), "key algorithm, RSA or ECDSA")
	cmd.Flags().BoolVar(&force, "force", false, "rotate even with unsynced payments")
	return cmd
}

func newCardCmd(cfg *config.Config) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "card",
		Short: "Print this device's payee card for NFC payers",
		Args:  cobra.NoArgs,
		RunE: withApp(cfg, func(ctx context.Context, a *app, _ []string) error {
			w, err := a.wallet(ctx)
			if err != nil {
				return err
			}
			card, err := w.Card(ctx)
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(card, "", "  ")
			if err != nil {
				return err
			}
			return a.writeOutput(out, data)
		}),
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "write the card to a file")
	return cmd
}
