package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/offpay/internal/client/client"
	"github.com/dmitrijs2005/offpay/internal/client/config"
	"github.com/dmitrijs2005/offpay/internal/client/services"
	"github.com/dmitrijs2005/offpay/internal/client/wallet"
	"github.com/dmitrijs2005/offpay/internal/common"
	"github.com/dmitrijs2005/offpay/internal/filex"
	"github.com/dmitrijs2005/offpay/internal/logging"
	"github.com/spf13/cobra"
)

// dialServer is a test seam for the gRPC client constructor.
var dialServer = func(addr string, sink client.TokenSink) (client.Client, error) {
	return client.NewOfflinePayClient(addr, sink)
}

// app holds what a single command invocation needs. The gRPC connection is
// lazy, so offline commands never touch the network.
type app struct {
	cfg    *config.Config
	in     io.Reader
	out    io.Writer
	errOut io.Writer
	logger logging.Logger

	db       *sql.DB
	client   client.Client
	accounts services.AccountService
	keys     services.KeyService
}

func newApp(ctx context.Context, cfg *config.Config, cmd *cobra.Command) (*app, error) {
	logger := newLogger(cfg)

	db, err := client.InitDatabase(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	var accounts services.AccountService
	c, err := dialServer(cfg.ServerEndpointAddr, func(access, refresh string) {
		accounts.SaveTokens(access, refresh)
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	accounts = services.NewAccountService(c, db, logger)

	if err := accounts.Restore(ctx); err != nil && !errors.Is(err, client.ErrUnauthorized) {
		_ = c.Close()
		_ = db.Close()
		return nil, err
	}

	return &app{
		cfg:      cfg,
		in:       cmd.InOrStdin(),
		out:      cmd.OutOrStdout(),
		errOut:   cmd.ErrOrStderr(),
		logger:   logger,
		db:       db,
		client:   c,
		accounts: accounts,
		keys:     services.NewKeyService(c, db, logger),
	}, nil
}

func (a *app) Close() error {
	return errors.Join(a.client.Close(), a.db.Close())
}

// wallet unseals the signing key. It prompts for the passphrase.
func (a *app) wallet(ctx context.Context) (*wallet.Wallet, error) {
	pass, err := GetPassphrase(a.errOut, "Key passphrase: ")
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(pass)

	signer, alg, err := a.keys.Load(a.cfg.KeyFile, pass)
	if err != nil {
		return nil, err
	}
	return wallet.New(a.db, signer, alg, a.cfg.Currency, a.logger), nil
}

// readInput reads a payload file, or standard input for "-".
func (a *app) readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(a.in)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// writeOutput writes data to path, or to standard output when path is empty.
func (a *app) writeOutput(path string, data []byte) error {
	if path == "" {
		_, err := fmt.Fprintln(a.out, string(data))
		return err
	}
	if err := filex.EnsureParentDir(path); err != nil {
		return err
	}
	if err := filex.WriteFileAtomic(path, data, 0o600); err != nil {
		return err
	}
	fmt.Fprintf(a.errOut, "Wrote %d bytes to %s\n", len(data), path)
	return nil
}

func newLogger(cfg *config.Config) logging.Logger {
	if cfg.LogFile == "" {
		return logging.Nop{}
	}
	return logging.NewJSONLogger(logging.NewOutput(logging.FileOptions{
		Path:       cfg.LogFile,
		MaxSizeMB:  10,
		MaxBackups: 3,
		MaxAgeDays: 30,
	}))
}

type runFunc func(ctx context.Context, a *app, args []string) error

// withApp opens the wallet for the duration of one command.
func withApp(cfg *config.Config, run runFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg, cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		return run(ctx, a, args)
	}
}
